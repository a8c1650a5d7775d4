// Package erc20 provides read bindings and calldata encoders for ERC20 tokens
// and the lending pool supply entry point.
package erc20

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// Token is a read-only binding to an ERC20 contract.
type Token struct {
	address  common.Address
	contract *bind.BoundContract
}

// NewToken binds the token at address to a contract caller, usually an
// *ethclient.Client.
func NewToken(address common.Address, caller bind.ContractCaller) *Token {
	return &Token{
		address:  address,
		contract: bind.NewBoundContract(address, TokenABI, caller, nil, nil),
	}
}

// Address returns the token contract address.
func (t *Token) Address() common.Address { return t.address }

// BalanceOf returns the token balance of holder.
func (t *Token) BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error) {
	out, err := t.call(ctx, "balanceOf", holder)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// Decimals returns the token's decimals.
func (t *Token) Decimals(ctx context.Context) (uint8, error) {
	out, err := t.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	return *abi.ConvertType(out[0], new(uint8)).(*uint8), nil
}

// Symbol returns the token's symbol.
func (t *Token) Symbol(ctx context.Context) (string, error) {
	out, err := t.call(ctx, "symbol")
	if err != nil {
		return "", err
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

func (t *Token) call(ctx context.Context, method string, params ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := t.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, fmt.Errorf("%s on %s: %w", method, t.address.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s on %s: empty result", method, t.address.Hex())
	}
	return out, nil
}

// EncodeTransfer returns calldata for transfer(to, amount).
func EncodeTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	return TokenABI.Pack("transfer", to, amount)
}

// EncodeApprove returns calldata for approve(spender, amount).
func EncodeApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return TokenABI.Pack("approve", spender, amount)
}

// EncodeSupply returns calldata for supply(asset, amount, onBehalfOf, referralCode).
func EncodeSupply(asset common.Address, amount *big.Int, onBehalfOf common.Address, referralCode uint16) ([]byte, error) {
	return PoolABI.Pack("supply", asset, amount, onBehalfOf, referralCode)
}
