// Package account manages signing accounts and their nonce state.
package account

import (
	"crypto/ecdsa"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Account holds a signing account's key material and local nonce state.
//
// The nonce is guarded by a per-account mutex; no global lock is ever taken.
// Reserved values are never returned: a reservation that ends in a failed
// submission leaves a gap, and the periodic reconciliation sweep closes it.
type Account struct {
	Index      int
	PrivateKey *ecdsa.PrivateKey
	Address    common.Address

	mu          sync.Mutex
	nonce       uint64
	initialized bool
}

// NewAccount creates an account from a private key.
func NewAccount(index int, privateKey *ecdsa.PrivateKey) *Account {
	return &Account{
		Index:      index,
		PrivateKey: privateKey,
		Address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}
}

// NewAccountFromHex creates an account from a hex-encoded private key.
func NewAccountFromHex(index int, hexKey string) (*Account, error) {
	privateKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, err
	}
	return NewAccount(index, privateKey), nil
}

// Initialize seeds the nonce from an observed chain value. The first call
// wins; later calls are ignored so a racing re-read cannot clobber values
// already handed out. Use Reconcile for deliberate overwrites.
func (a *Account) Initialize(observed uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialized {
		return
	}
	a.nonce = observed
	a.initialized = true
}

// Reserve returns the next nonce and advances the counter. Values handed out
// between reconciliations are strictly increasing and gap-free. There is no
// rollback: a reservation belongs to its work item no matter how submission
// ends.
func (a *Account) Reserve() uint64 {
	a.mu.Lock()
	nonce := a.nonce
	a.nonce++
	a.mu.Unlock()
	return nonce
}

// Reconcile overwrites the local nonce with an observed chain value whenever
// the two differ, in either direction. Moving down is deliberate: if the
// local counter ran ahead of the chain (failed sends left gaps), the next
// Reserve must return the value the chain actually expects.
func (a *Account) Reconcile(observed uint64) (changed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.nonce == observed {
		return false
	}
	a.nonce = observed
	a.initialized = true
	return true
}

// Resync raises the local nonce to an observed value, never lowering it.
// Safe to call while reservations are in flight: a concurrent Reserve that
// advanced past the observation is not undone.
func (a *Account) Resync(observed uint64) {
	a.mu.Lock()
	if observed > a.nonce {
		a.nonce = observed
	}
	a.initialized = true
	a.mu.Unlock()
}

// Peek returns the next nonce that Reserve would hand out, without reserving.
func (a *Account) Peek() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nonce
}
