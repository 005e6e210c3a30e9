// Package txbuilder turns work item payloads into signed-ready transactions.
package txbuilder

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	ptypes "github.com/gateway-fm/transactioneer/pkg/types"
)

// TxParams holds per-submission parameters for building a transaction.
type TxParams struct {
	ChainID   *big.Int
	Nonce     uint64
	GasTipCap *big.Int
	GasFeeCap *big.Int
	From      common.Address
	UseLegacy bool // Use legacy (type 0) transactions instead of EIP-1559
}

// Builder builds transactions for one payload kind.
type Builder interface {
	// Kind returns the payload kind this builder handles.
	Kind() ptypes.PayloadKind

	// GasLimit returns the gas limit for this payload kind.
	GasLimit() uint64

	// Build creates a transaction from a work item's payload.
	// Malformed payloads yield a *BuildError.
	Build(params TxParams, item ptypes.WorkItem) (*types.Transaction, error)
}

// Registry manages builder lookup by payload kind.
type Registry struct {
	builders map[ptypes.PayloadKind]Builder
}

// NewRegistry creates a new builder registry.
func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[ptypes.PayloadKind]Builder),
	}
}

// Register adds a builder to the registry.
func (r *Registry) Register(builder Builder) {
	r.builders[builder.Kind()] = builder
}

// Get returns a builder for the given kind. An empty kind resolves to
// the contract-call builder.
func (r *Registry) Get(kind ptypes.PayloadKind) (Builder, error) {
	if kind == "" {
		kind = ptypes.PayloadKindCall
	}
	builder, ok := r.builders[kind]
	if !ok {
		return nil, &BuildError{Stage: "resolve", Err: fmt.Errorf("unknown payload kind: %s", kind)}
	}
	return builder, nil
}

// BuildError marks a payload that cannot become a valid signed transaction.
// Build failures are terminal and never reach the wire.
type BuildError struct {
	Stage string // resolve, validate, pack, sign, encode
	Err   error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build failed at %s: %v", e.Stage, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}
