package chaintest

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// callArgs accepts both the "input" and legacy "data" calldata fields.
type callArgs struct {
	From  *common.Address `json:"from"`
	To    *common.Address `json:"to"`
	Gas   *hexutil.Uint64 `json:"gas"`
	Value *hexutil.Big    `json:"value"`
	Input hexutil.Bytes   `json:"input"`
	Data  hexutil.Bytes   `json:"data"`
}

func (a callArgs) calldata() []byte {
	if len(a.Input) > 0 {
		return a.Input
	}
	return a.Data
}

func (a callArgs) sender() common.Address {
	if a.From == nil {
		return common.Address{}
	}
	return *a.From
}

type ethAPI struct{ c *Chain }

func (api *ethAPI) ChainId() *hexutil.Big {
	api.c.record("eth_chainId")
	return (*hexutil.Big)(big.NewInt(ChainID))
}

func (api *ethAPI) BlockNumber() hexutil.Uint64 {
	api.c.record("eth_blockNumber")
	api.c.mu.Lock()
	defer api.c.mu.Unlock()
	return hexutil.Uint64(api.c.block)
}

func (api *ethAPI) GetBalance(addr common.Address, block string) *hexutil.Big {
	api.c.record("eth_getBalance")
	return (*hexutil.Big)(api.c.NativeBalance(addr))
}

func (api *ethAPI) GetCode(addr common.Address, block string) hexutil.Bytes {
	api.c.record("eth_getCode")
	api.c.mu.Lock()
	defer api.c.mu.Unlock()
	if api.c.hasCode(addr) {
		return dummyCode
	}
	return hexutil.Bytes{}
}

func (api *ethAPI) Call(args callArgs, block string) (hexutil.Bytes, error) {
	api.c.record("eth_call")
	if args.To == nil {
		return nil, errors.New("contract creation not supported")
	}
	api.c.mu.Lock()
	defer api.c.mu.Unlock()
	return api.c.exec(args.sender(), *args.To, args.calldata(), false)
}

func (api *ethAPI) SendTransaction(args callArgs) (common.Hash, error) {
	api.c.record("eth_sendTransaction")
	if args.To == nil {
		return common.Hash{}, errors.New("contract creation not supported")
	}
	from := args.sender()

	api.c.mu.Lock()
	defer api.c.mu.Unlock()
	if !api.c.impersonated.Contains(from) {
		return common.Hash{}, errNotImpersonal
	}
	if balance(api.c.native, from).Sign() == 0 {
		return common.Hash{}, errors.New("insufficient funds for gas")
	}
	_, err := api.c.exec(from, *args.To, args.calldata(), true)
	return api.c.mine(from, args.calldata(), err == nil), nil
}

func (api *ethAPI) GetTransactionReceipt(hash common.Hash) *types.Receipt {
	api.c.record("eth_getTransactionReceipt")
	api.c.mu.Lock()
	defer api.c.mu.Unlock()
	return api.c.receipts[hash]
}

type anvilAPI struct{ c *Chain }

func (api *anvilAPI) ImpersonateAccount(addr common.Address) {
	api.c.record("anvil_impersonateAccount")
	api.c.mu.Lock()
	defer api.c.mu.Unlock()
	api.c.impersonated.Add(addr)
}

func (api *anvilAPI) StopImpersonatingAccount(addr common.Address) {
	api.c.record("anvil_stopImpersonatingAccount")
	api.c.mu.Lock()
	defer api.c.mu.Unlock()
	api.c.impersonated.Remove(addr)
}

func (api *anvilAPI) SetBalance(addr common.Address, value hexutil.Big) {
	api.c.record("anvil_setBalance")
	api.c.SetNativeBalance(addr, value.ToInt())
}
