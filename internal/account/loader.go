package account

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// keyFileEntry is one account in a key file. Either a bare hex string or an
// object with a privateKey field is accepted.
type keyFileEntry struct {
	PrivateKey string `json:"privateKey"`
}

func (e *keyFileEntry) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &e.PrivateKey)
	}
	type alias keyFileEntry
	return json.Unmarshal(data, (*alias)(e))
}

// LoadFromFile loads accounts from a JSON key file. Keys arrive fully
// formed; this package never generates or persists them.
func LoadFromFile(path string) ([]*Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	var entries []keyFileEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse key file %s: %w", path, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("key file %s contains no accounts", path)
	}

	accounts := make([]*Account, 0, len(entries))
	for i, entry := range entries {
		hexKey := strings.TrimPrefix(strings.TrimSpace(entry.PrivateKey), "0x")
		acc, err := NewAccountFromHex(i, hexKey)
		if err != nil {
			return nil, fmt.Errorf("invalid private key at index %d: %w", i, err)
		}
		accounts = append(accounts, acc)
	}

	return accounts, nil
}

// Well-known test private keys (from Anvil/Hardhat default accounts).
var TestPrivateKeys = []string{
	"ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80", // Account 0
	"59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d", // Account 1
	"5de4111afa1a4b94908f83103eb1f1706367c2e68ca870fc3fb9a804cdab365a", // Account 2
	"7c852118294e51e653712a81e05800f419141751be58f605c371e15141b007a6", // Account 3
	"47e179ec197488593b187f80a00eb0da91f1b9d0b13f8733639f19c30a34926a", // Account 4
	"8b3a350cf5c34c9194ca85829a2df0ec3153be0318b5e2d3348e872092edffba", // Account 5
	"92db14e403b83dfe3df233f83dfa3a0d7096f21ca9b0d6d6b8d88b2b4ec1564e", // Account 6
	"4bbbf85ce3377467afe5d46f804f221813b2bb87f24d81f60f1fcdbf7cbf4356", // Account 7
	"dbda1821b80551c9d65939329250298aa3472ba22feea921c0cf5d620ea67b97", // Account 8
	"2a871d0798f97d79848a013d4936a73bf4cc922c825d33c1cf7073dff6d409c6", // Account 9
}

// LoadTestAccounts loads the standard test accounts.
func LoadTestAccounts() ([]*Account, error) {
	accounts := make([]*Account, 0, len(TestPrivateKeys))
	for i, hexKey := range TestPrivateKeys {
		acc, err := NewAccountFromHex(i, hexKey)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, nil
}
