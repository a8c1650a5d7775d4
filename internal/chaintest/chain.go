// Package chaintest is an in-process stand-in for a forked Anvil node. It
// serves the JSON-RPC subset the commands use (eth_call, eth_getBalance,
// eth_getCode, eth_sendTransaction, eth_getTransactionReceipt and the anvil_*
// admin methods) over ERC20 tokens, a lending pool and a smart account factory
// held in memory.
package chaintest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/clydemeng/mee-fusion/internal/erc20"
	"github.com/clydemeng/mee-fusion/nexus"
)

// ChainID is the chain id reported by the fake node.
const ChainID = 1

var (
	errReverted      = errors.New("execution reverted")
	errNotImpersonal = errors.New("no such account: sender is not impersonated")
	dummyCode        = hexutil.Bytes{0x60, 0x80, 0x60, 0x40}
)

type token struct {
	symbol     string
	decimals   uint8
	balances   map[common.Address]*big.Int
	allowances map[[2]common.Address]*big.Int
	reverts    bool
}

// Chain holds the fake ledger. All methods are safe for concurrent use.
type Chain struct {
	mu           sync.Mutex
	native       map[common.Address]*big.Int
	tokens       map[common.Address]*token
	pools        map[common.Address]map[common.Address]common.Address // pool -> asset -> aToken
	factories    mapset.Set[common.Address]
	impersonated mapset.Set[common.Address]
	receipts     map[common.Hash]*types.Receipt
	nonce        uint64
	block        uint64
	calls        []string

	server *rpc.Server
}

// New creates an empty chain and its RPC server.
func New() *Chain {
	c := &Chain{
		native:       make(map[common.Address]*big.Int),
		tokens:       make(map[common.Address]*token),
		pools:        make(map[common.Address]map[common.Address]common.Address),
		factories:    mapset.NewThreadUnsafeSet[common.Address](),
		impersonated: mapset.NewThreadUnsafeSet[common.Address](),
		receipts:     make(map[common.Hash]*types.Receipt),
		server:       rpc.NewServer(),
	}
	if err := c.server.RegisterName("eth", &ethAPI{c}); err != nil {
		panic(err)
	}
	if err := c.server.RegisterName("anvil", &anvilAPI{c}); err != nil {
		panic(err)
	}
	return c
}

// Client returns an ethclient connected to the chain in-process.
func (c *Chain) Client() *ethclient.Client {
	return ethclient.NewClient(rpc.DialInProc(c.server))
}

// Handler exposes the RPC server for serving over HTTP.
func (c *Chain) Handler() http.Handler { return c.server }

// Close stops the RPC server.
func (c *Chain) Close() { c.server.Stop() }

// DeployToken registers an ERC20 token.
func (c *Chain) DeployToken(addr common.Address, symbol string, decimals uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[addr] = &token{
		symbol:     symbol,
		decimals:   decimals,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[[2]common.Address]*big.Int),
	}
}

// SetReverting makes every call to the token revert.
func (c *Chain) SetReverting(addr common.Address, reverts bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[addr].reverts = reverts
}

// DeployPool registers a lending pool minting aToken for deposits of asset.
func (c *Chain) DeployPool(pool, asset, aToken common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pools[pool] == nil {
		c.pools[pool] = make(map[common.Address]common.Address)
	}
	c.pools[pool][asset] = aToken
}

// DeployFactory registers a smart account factory.
func (c *Chain) DeployFactory(addr common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories.Add(addr)
}

// Mint credits amount of token to holder.
func (c *Chain) Mint(tokenAddr, holder common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.tokens[tokenAddr]
	t.balances[holder] = new(big.Int).Add(balance(t.balances, holder), amount)
}

// TokenBalance returns holder's balance of token.
func (c *Chain) TokenBalance(tokenAddr, holder common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(balance(c.tokens[tokenAddr].balances, holder))
}

// NativeBalance returns addr's native balance.
func (c *Chain) NativeBalance(addr common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(balance(c.native, addr))
}

// SetNativeBalance sets addr's native balance.
func (c *Chain) SetNativeBalance(addr common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.native[addr] = new(big.Int).Set(amount)
}

// IsImpersonated reports whether addr is currently impersonated.
func (c *Chain) IsImpersonated(addr common.Address) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.impersonated.Contains(addr)
}

// Calls returns the RPC methods served so far, in order.
func (c *Chain) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// AccountAddress is the address every factory reports for owner and index.
func AccountAddress(owner common.Address, index *big.Int) common.Address {
	return common.BytesToAddress(crypto.Keccak256(owner.Bytes(), common.LeftPadBytes(index.Bytes(), 32))[12:])
}

// Apply executes calldata against to as if sent by from. State is left
// untouched when the call fails.
func (c *Chain) Apply(from, to common.Address, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.exec(from, to, data, true)
	return err
}

func (c *Chain) record(method string) {
	c.mu.Lock()
	c.calls = append(c.calls, method)
	c.mu.Unlock()
}

func (c *Chain) hasCode(addr common.Address) bool {
	_, isToken := c.tokens[addr]
	_, isPool := c.pools[addr]
	return isToken || isPool || c.factories.Contains(addr)
}

// exec must be called with c.mu held.
func (c *Chain) exec(from, to common.Address, data []byte, write bool) ([]byte, error) {
	if len(data) < 4 {
		return nil, nil
	}
	if t, ok := c.tokens[to]; ok {
		return c.execToken(t, from, data, write)
	}
	if assets, ok := c.pools[to]; ok {
		return c.execPool(to, assets, from, data, write)
	}
	if c.factories.Contains(to) {
		return execFactory(data)
	}
	// Calls to addresses without code succeed with empty output.
	return nil, nil
}

func (c *Chain) execToken(t *token, from common.Address, data []byte, write bool) ([]byte, error) {
	if t.reverts {
		return nil, errReverted
	}
	method, args, err := decode(erc20.TokenABI, data)
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "balanceOf":
		return method.Outputs.Pack(new(big.Int).Set(balance(t.balances, args[0].(common.Address))))
	case "decimals":
		return method.Outputs.Pack(t.decimals)
	case "symbol":
		return method.Outputs.Pack(t.symbol)
	case "transfer":
		to, amount := args[0].(common.Address), args[1].(*big.Int)
		if balance(t.balances, from).Cmp(amount) < 0 {
			return nil, fmt.Errorf("%w: transfer amount exceeds balance", errReverted)
		}
		if write {
			t.balances[from] = new(big.Int).Sub(balance(t.balances, from), amount)
			t.balances[to] = new(big.Int).Add(balance(t.balances, to), amount)
		}
		return method.Outputs.Pack(true)
	case "approve":
		spender, amount := args[0].(common.Address), args[1].(*big.Int)
		if write {
			t.allowances[[2]common.Address{from, spender}] = new(big.Int).Set(amount)
		}
		return method.Outputs.Pack(true)
	}
	return nil, errReverted
}

func (c *Chain) execPool(pool common.Address, assets map[common.Address]common.Address, from common.Address, data []byte, write bool) ([]byte, error) {
	method, args, err := decode(erc20.PoolABI, data)
	if err != nil {
		return nil, err
	}
	asset, amount, onBehalfOf := args[0].(common.Address), args[1].(*big.Int), args[2].(common.Address)
	aTokenAddr, ok := assets[asset]
	if !ok {
		return nil, fmt.Errorf("%w: asset not listed", errReverted)
	}
	underlying, aToken := c.tokens[asset], c.tokens[aTokenAddr]
	key := [2]common.Address{from, pool}
	if balance(underlying.allowances, key).Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: insufficient allowance", errReverted)
	}
	if balance(underlying.balances, from).Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: insufficient balance", errReverted)
	}
	if write {
		underlying.allowances[key] = new(big.Int).Sub(underlying.allowances[key], amount)
		underlying.balances[from] = new(big.Int).Sub(underlying.balances[from], amount)
		underlying.balances[pool] = new(big.Int).Add(balance(underlying.balances, pool), amount)
		aToken.balances[onBehalfOf] = new(big.Int).Add(balance(aToken.balances, onBehalfOf), amount)
	}
	return method.Outputs.Pack()
}

func execFactory(data []byte) ([]byte, error) {
	method, args, err := decode(nexus.FactoryABI, data)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(AccountAddress(args[0].(common.Address), args[1].(*big.Int)))
}

func decode(contract abi.ABI, data []byte) (*abi.Method, []interface{}, error) {
	method, err := contract.MethodById(data[:4])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: unknown selector %x", errReverted, data[:4])
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errReverted, err)
	}
	return method, args, nil
}

func balance[K comparable](m map[K]*big.Int, key K) *big.Int {
	if v, ok := m[key]; ok {
		return v
	}
	return new(big.Int)
}

// mine stores a receipt for a transaction sent by from. Must be called with
// c.mu held.
func (c *Chain) mine(from common.Address, data []byte, success bool) common.Hash {
	c.nonce++
	c.block++
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], c.nonce)
	hash := crypto.Keccak256Hash(from.Bytes(), nonce[:], data)

	status := types.ReceiptStatusFailed
	if success {
		status = types.ReceiptStatusSuccessful
	}
	c.receipts[hash] = &types.Receipt{
		Status:            status,
		CumulativeGasUsed: 50_000,
		GasUsed:           50_000,
		Logs:              []*types.Log{},
		TxHash:            hash,
		BlockNumber:       new(big.Int).SetUint64(c.block),
	}
	return hash
}
