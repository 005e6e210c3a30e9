package account

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/gateway-fm/transactioneer/internal/endpoint"
	"github.com/gateway-fm/transactioneer/internal/rpc"
)

// nonceClient serves confirmed nonces from a fixed map and fails reads for
// one designated address.
type nonceClient struct {
	nonces   map[string]uint64
	failAddr string
}

var _ rpc.Client = (*nonceClient)(nil)

func (c *nonceClient) GetConfirmedNonce(_ context.Context, address string) (uint64, error) {
	if address == c.failAddr {
		return 0, errors.New("connection refused")
	}
	return c.nonces[address], nil
}

func (c *nonceClient) Call(context.Context, string, []interface{}) (json.RawMessage, error) {
	return nil, errors.New("not implemented")
}

func (c *nonceClient) BatchCall(context.Context, []rpc.BatchRequest) ([]rpc.BatchResponse, error) {
	return nil, errors.New("not implemented")
}

func (c *nonceClient) SendRawTransaction(context.Context, []byte) (string, error) {
	return "", errors.New("not implemented")
}

func (c *nonceClient) GetPendingNonce(context.Context, string) (uint64, error) {
	return 0, errors.New("not implemented")
}

func (c *nonceClient) GetConfirmedNonceBatch(context.Context, []string) ([]rpc.NonceResult, error) {
	return nil, errors.New("not implemented")
}

func (c *nonceClient) GetBlockNumber(context.Context) (uint64, error) { return 0, nil }
func (c *nonceClient) GetGasPrice(context.Context) (uint64, error)   { return 0, nil }
func (c *nonceClient) GetBalance(context.Context, string) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (c *nonceClient) GetChainID(context.Context) (*big.Int, error) { return big.NewInt(1), nil }
func (c *nonceClient) URL() string                                  { return "mock://nonce" }

func newNonceTestAccounts(t *testing.T, n int) []*Account {
	t.Helper()
	accounts := make([]*Account, n)
	for i := 0; i < n; i++ {
		acc, err := NewAccountFromHex(i, TestPrivateKeys[i])
		if err != nil {
			t.Fatalf("failed to create account %d: %v", i, err)
		}
		accounts[i] = acc
	}
	return accounts
}

func TestInitializeNonces(t *testing.T) {
	accounts := newNonceTestAccounts(t, 3)
	client := &nonceClient{nonces: map[string]uint64{
		accounts[0].Address.Hex(): 7,
		accounts[1].Address.Hex(): 0,
		accounts[2].Address.Hex(): 42,
	}}
	pool, err := endpoint.New([]rpc.Client{client})
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := InitializeNonces(context.Background(), pool, accounts, logger); err != nil {
		t.Fatalf("InitializeNonces() error: %v", err)
	}

	for i, want := range []uint64{7, 0, 42} {
		if got := accounts[i].Peek(); got != want {
			t.Errorf("account %d Peek() = %d, want %d", i, got, want)
		}
	}
}

func TestInitializeNoncesReadFailureDefaultsToZero(t *testing.T) {
	// A failed nonce read must not abort startup: the affected account
	// stays at zero and the rest are seeded from the chain.
	accounts := newNonceTestAccounts(t, 3)
	client := &nonceClient{
		nonces: map[string]uint64{
			accounts[0].Address.Hex(): 10,
			accounts[2].Address.Hex(): 30,
		},
		failAddr: accounts[1].Address.Hex(),
	}
	pool, err := endpoint.New([]rpc.Client{client})
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := InitializeNonces(context.Background(), pool, accounts, logger); err != nil {
		t.Fatalf("InitializeNonces() error: %v, want nil on a per-account read failure", err)
	}

	if got := accounts[0].Peek(); got != 10 {
		t.Errorf("account 0 Peek() = %d, want 10", got)
	}
	if got := accounts[1].Peek(); got != 0 {
		t.Errorf("failed-read account Peek() = %d, want 0", got)
	}
	if got := accounts[1].Reserve(); got != 0 {
		t.Errorf("failed-read account Reserve() = %d, want 0", got)
	}
	if got := accounts[2].Peek(); got != 30 {
		t.Errorf("account 2 Peek() = %d, want 30", got)
	}
}

func TestInitializeNoncesCanceledContext(t *testing.T) {
	accounts := newNonceTestAccounts(t, 2)
	client := &nonceClient{nonces: map[string]uint64{}}
	pool, err := endpoint.New([]rpc.Client{client})
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := InitializeNonces(ctx, pool, accounts, logger); !errors.Is(err, context.Canceled) {
		t.Errorf("InitializeNonces() error = %v, want context.Canceled", err)
	}
}
