package account

import "sync/atomic"

// Ring hands out accounts round-robin. Producers that spread work items
// across the whole pool use one Ring; the cursor is a single atomic counter
// so selection never contends with nonce locks.
type Ring struct {
	accounts []*Account
	cursor   atomic.Uint64
}

// NewRing creates a ring over the given accounts.
func NewRing(accounts []*Account) *Ring {
	return &Ring{accounts: accounts}
}

// Next returns the next account in rotation.
func (r *Ring) Next() *Account {
	idx := r.cursor.Add(1) - 1
	return r.accounts[idx%uint64(len(r.accounts))]
}

// Size returns the number of accounts in the ring.
func (r *Ring) Size() int {
	return len(r.accounts)
}

// Accounts returns the underlying slice. Callers must not mutate it.
func (r *Ring) Accounts() []*Account {
	return r.accounts
}
