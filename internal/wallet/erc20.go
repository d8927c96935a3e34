package wallet

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Minimal ERC20 surface used by the wallet:
//
//	decimals()          -> 0x313ce567
//	balanceOf(address)  -> 0x70a08231
//	transfer(a,u256)    -> 0xa9059cbb
const erc20ABI = `[
{"type":"function","name":"decimals","inputs":[],"outputs":[{"name":"","type":"uint8"}],"stateMutability":"view"},
{"type":"function","name":"balanceOf","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable"}
]`

var parsedERC20 = mustParseABI(erc20ABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("wallet: parse erc20 abi: %v", err))
	}
	return parsed
}

// erc20 binds the token ABI to one contract address.
type erc20 struct {
	contract *bind.BoundContract
}

func newERC20(address common.Address, backend bind.ContractBackend) *erc20 {
	return &erc20{contract: bind.NewBoundContract(address, parsedERC20, backend, backend, backend)}
}

func (t *erc20) decimals(ctx context.Context) (uint8, error) {
	var out []interface{}
	if err := t.contract.Call(&bind.CallOpts{Context: ctx}, &out, "decimals"); err != nil {
		return 0, err
	}
	if len(out) == 0 {
		return 0, fmt.Errorf("decimals: empty result")
	}
	return *abi.ConvertType(out[0], new(uint8)).(*uint8), nil
}

func (t *erc20) balanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	var out []interface{}
	if err := t.contract.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", owner); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("balanceOf: empty result")
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (t *erc20) transfer(opts *bind.TransactOpts, to common.Address, value *big.Int) (*types.Transaction, error) {
	return t.contract.Transact(opts, "transfer", to, value)
}
