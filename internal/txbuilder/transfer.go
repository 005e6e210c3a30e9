package txbuilder

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	ptypes "github.com/gateway-fm/transactioneer/pkg/types"
)

// TransferBuilder builds plain value transfers. Funding producers use these
// to move balance from funder accounts to submission accounts.
type TransferBuilder struct{}

// NewTransferBuilder creates a transfer builder.
func NewTransferBuilder() *TransferBuilder {
	return &TransferBuilder{}
}

// Kind returns the payload kind this builder handles.
func (b *TransferBuilder) Kind() ptypes.PayloadKind {
	return ptypes.PayloadKindTransfer
}

// GasLimit returns the gas limit for a plain transfer (21000).
func (b *TransferBuilder) GasLimit() uint64 {
	return 21000
}

// Build creates a value transfer from the work item's To and Value fields.
func (b *TransferBuilder) Build(params TxParams, item ptypes.WorkItem) (*types.Transaction, error) {
	if params.ChainID == nil || params.ChainID.Sign() == 0 {
		return nil, &BuildError{Stage: "validate", Err: fmt.Errorf("ChainID must be non-nil and non-zero")}
	}
	if !common.IsHexAddress(item.To) {
		return nil, &BuildError{Stage: "validate", Err: fmt.Errorf("invalid recipient address %q", item.To)}
	}

	value, ok := new(big.Int).SetString(item.Value, 10)
	if !ok || value.Sign() < 0 {
		return nil, &BuildError{Stage: "validate", Err: fmt.Errorf("invalid transfer value %q", item.Value)}
	}

	return NewPayloadTx(params.ChainID, params.Nonce, common.HexToAddress(item.To), value,
		b.GasLimit(), params.GasTipCap, params.GasFeeCap, nil, params.UseLegacy), nil
}
