// Package endpoint rotates JSON-RPC clients across submissions and reads.
package endpoint

import (
	"fmt"
	"sync/atomic"

	"github.com/gateway-fm/transactioneer/internal/rpc"
)

// Pool spreads traffic across a fixed set of endpoints round-robin.
//
// Reads and writes keep separate cursors so a burst of nonce reads never
// skews which endpoints receive transactions. The pool does no health
// checking; a failing endpoint stays in rotation and its errors surface to
// the caller.
type Pool struct {
	clients     []rpc.Client
	readCursor  atomic.Uint64
	writeCursor atomic.Uint64
}

// New creates a pool over the given clients.
func New(clients []rpc.Client) (*Pool, error) {
	if len(clients) == 0 {
		return nil, fmt.Errorf("endpoint pool requires at least one client")
	}
	return &Pool{clients: clients}, nil
}

// NextRead returns the next endpoint in read rotation.
func (p *Pool) NextRead() rpc.Client {
	idx := p.readCursor.Add(1) - 1
	return p.clients[idx%uint64(len(p.clients))]
}

// NextWrite returns the next endpoint in write rotation.
func (p *Pool) NextWrite() rpc.Client {
	idx := p.writeCursor.Add(1) - 1
	return p.clients[idx%uint64(len(p.clients))]
}

// Size returns the number of endpoints in the pool.
func (p *Pool) Size() int {
	return len(p.clients)
}

// Clients returns the underlying clients. Callers must not mutate the slice.
func (p *Pool) Clients() []rpc.Client {
	return p.clients
}
