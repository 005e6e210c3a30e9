package txbuilder

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	ptypes "github.com/gateway-fm/transactioneer/pkg/types"
)

// CallBuilder builds calls to one method of the target contract.
// The contract is already deployed; this package never deploys anything.
type CallBuilder struct {
	contract common.Address
	method   abi.Method
	parsed   abi.ABI
	gasLimit uint64
}

// NewCallBuilder binds a builder to a deployed contract method.
func NewCallBuilder(contract common.Address, abiJSON, method string, gasLimit uint64) (*CallBuilder, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract ABI: %w", err)
	}

	m, ok := parsed.Methods[method]
	if !ok {
		return nil, fmt.Errorf("method %q not found in contract ABI", method)
	}

	return &CallBuilder{
		contract: contract,
		method:   m,
		parsed:   parsed,
		gasLimit: gasLimit,
	}, nil
}

// Kind returns the payload kind this builder handles.
func (b *CallBuilder) Kind() ptypes.PayloadKind {
	return ptypes.PayloadKindCall
}

// GasLimit returns the gas limit for contract calls.
func (b *CallBuilder) GasLimit() uint64 {
	return b.gasLimit
}

// Contract returns the bound contract address.
func (b *CallBuilder) Contract() common.Address {
	return b.contract
}

// Build packs the work item's arguments into calldata and wraps them in a
// transaction. Wrong arity or uncoercible argument types yield a *BuildError.
func (b *CallBuilder) Build(params TxParams, item ptypes.WorkItem) (*types.Transaction, error) {
	if params.ChainID == nil || params.ChainID.Sign() == 0 {
		return nil, &BuildError{Stage: "validate", Err: fmt.Errorf("ChainID must be non-nil and non-zero")}
	}
	if len(item.Args) != len(b.method.Inputs) {
		return nil, &BuildError{Stage: "validate", Err: fmt.Errorf(
			"method %s expects %d arguments, got %d", b.method.Name, len(b.method.Inputs), len(item.Args))}
	}

	args := make([]interface{}, len(item.Args))
	for i, input := range b.method.Inputs {
		coerced, err := coerceArg(input.Type, item.Args[i])
		if err != nil {
			return nil, &BuildError{Stage: "pack", Err: fmt.Errorf("argument %d (%s): %w", i, input.Name, err)}
		}
		args[i] = coerced
	}

	data, err := b.parsed.Pack(b.method.Name, args...)
	if err != nil {
		return nil, &BuildError{Stage: "pack", Err: err}
	}

	return NewPayloadTx(params.ChainID, params.Nonce, b.contract, big.NewInt(0),
		b.gasLimit, params.GasTipCap, params.GasFeeCap, data, params.UseLegacy), nil
}

// coerceArg converts a loosely-typed payload value (often decoded from JSON)
// into the Go type the ABI encoder expects.
func coerceArg(t abi.Type, v interface{}) (interface{}, error) {
	switch t.T {
	case abi.StringTy:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return s, nil

	case abi.AddressTy:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected address string, got %T", v)
		}
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("invalid address %q", s)
		}
		return common.HexToAddress(s), nil

	case abi.BoolTy:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", v)
		}
		return b, nil

	case abi.UintTy, abi.IntTy:
		n, err := toBigInt(v)
		if err != nil {
			return nil, err
		}
		if t.T == abi.UintTy {
			if n.Sign() < 0 {
				return nil, fmt.Errorf("negative value %s for uint%d", n.String(), t.Size)
			}
			if n.BitLen() > t.Size {
				return nil, fmt.Errorf("value %s overflows uint%d", n.String(), t.Size)
			}
			if t.Size > 64 {
				return n, nil
			}
			switch t.Size {
			case 8:
				return uint8(n.Uint64()), nil
			case 16:
				return uint16(n.Uint64()), nil
			case 32:
				return uint32(n.Uint64()), nil
			default:
				return n.Uint64(), nil
			}
		}
		if t.Size > 64 {
			return n, nil
		}
		if !n.IsInt64() {
			return nil, fmt.Errorf("value %s overflows int%d", n.String(), t.Size)
		}
		i := n.Int64()
		switch t.Size {
		case 8:
			if i < math.MinInt8 || i > math.MaxInt8 {
				return nil, fmt.Errorf("value %d overflows int8", i)
			}
			return int8(i), nil
		case 16:
			if i < math.MinInt16 || i > math.MaxInt16 {
				return nil, fmt.Errorf("value %d overflows int16", i)
			}
			return int16(i), nil
		case 32:
			if i < math.MinInt32 || i > math.MaxInt32 {
				return nil, fmt.Errorf("value %d overflows int32", i)
			}
			return int32(i), nil
		default:
			return i, nil
		}

	case abi.BytesTy:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected hex bytes string, got %T", v)
		}
		data, err := hexutil.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("invalid hex bytes: %w", err)
		}
		return data, nil

	case abi.FixedBytesTy:
		if t.Size != 32 {
			return nil, fmt.Errorf("unsupported fixed bytes size %d", t.Size)
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected hex bytes32 string, got %T", v)
		}
		data, err := hexutil.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("invalid hex bytes32: %w", err)
		}
		if len(data) != 32 {
			return nil, fmt.Errorf("bytes32 requires 32 bytes, got %d", len(data))
		}
		var out [32]byte
		copy(out[:], data)
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported ABI type %s", t.String())
	}
}

// toBigInt accepts the numeric encodings payloads arrive in: JSON numbers,
// Go integers from in-process producers, and decimal strings for values
// beyond float precision.
func toBigInt(v interface{}) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		return n, nil
	case float64:
		if n != float64(int64(n)) {
			return nil, fmt.Errorf("non-integer number %v", n)
		}
		return big.NewInt(int64(n)), nil
	case int:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case string:
		out, ok := new(big.Int).SetString(n, 10)
		if !ok {
			return nil, fmt.Errorf("invalid decimal number %q", n)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected number, got %T", v)
	}
}
