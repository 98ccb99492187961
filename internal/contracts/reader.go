package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Caller performs eth_call. *chain.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// TokenDecimals reads ERC20 decimals().
func TokenDecimals(ctx context.Context, caller Caller, token common.Address) (uint8, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return 0, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := callMethod(ctx, caller, token, parsed, "decimals", nil)
	if err != nil {
		return 0, err
	}
	return asUint8(values[0])
}

// TotalSupply reads ERC20 totalSupply() at latest state.
func TotalSupply(ctx context.Context, caller Caller, token common.Address) (*big.Int, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := callMethod(ctx, caller, token, parsed, "totalSupply", nil)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// BalanceOf reads ERC20 balanceOf(owner). A nil blockNumber reads latest state.
func BalanceOf(ctx context.Context, caller Caller, token, owner common.Address, blockNumber *big.Int) (*big.Int, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := callMethod(ctx, caller, token, parsed, "balanceOf", blockNumber, owner)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("balanceOf return size %d", len(values))
	}
	return asBigInt(values[0])
}

// LatestPrice reads the feed answer (8-decimal fixed point for USD feeds).
func LatestPrice(ctx context.Context, caller Caller, feed common.Address, blockNumber *big.Int) (*big.Int, error) {
	parsed, err := OracleABI()
	if err != nil {
		return nil, fmt.Errorf("parse oracle abi: %w", err)
	}
	values, err := callMethod(ctx, caller, feed, parsed, "latestRoundData", blockNumber)
	if err != nil {
		return nil, err
	}
	if len(values) < 2 {
		return nil, fmt.Errorf("latestRoundData return size %d", len(values))
	}
	answer, err := asBigInt(values[1])
	if err != nil {
		return nil, err
	}
	if answer.Sign() < 0 {
		return nil, fmt.Errorf("negative price answer %s", answer)
	}
	return answer, nil
}

func callMethod(ctx context.Context, caller Caller, to common.Address, parsed abi.ABI, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	if caller == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := caller.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return values, nil
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
