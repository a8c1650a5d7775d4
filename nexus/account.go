// Package nexus models a multichain smart account controlled by a single EOA
// signer. The account address on every configured chain is the counterfactual
// address reported by the account factory deployed on that chain.
package nexus

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
)

// DefaultFactory is the K1 validator account factory used when a chain
// configuration does not name one.
var DefaultFactory = common.HexToAddress("0x000000001D1D5004a02bAfAb9de2D6CE5b7B13de")

const factoryABIJSON = `
[
	{
		"type": "function",
		"name": "computeAccountAddress",
		"stateMutability": "view",
		"inputs": [
			{"name": "eoaOwner", "type": "address"},
			{"name": "index", "type": "uint256"},
			{"name": "attesters", "type": "address[]"},
			{"name": "threshold", "type": "uint8"}
		],
		"outputs": [{"name": "expectedAddress", "type": "address"}]
	}
]`

// FactoryABI is the account factory subset used for address derivation.
var FactoryABI, _ = abi.JSON(strings.NewReader(factoryABIJSON))

var errZeroAddress = errors.New("factory returned the zero address")

// ChainConfig describes one chain the account lives on.
type ChainConfig struct {
	ChainID uint64
	Backend bind.ContractCaller
	Factory common.Address // zero value selects DefaultFactory
	Index   *big.Int       // account index, nil means 0
}

// Deployment is the account's address on one chain.
type Deployment struct {
	ChainID uint64
	Address common.Address
}

// MultichainAccount is an EOA-owned smart account with one deployment per
// configured chain.
type MultichainAccount struct {
	signer      *ecdsa.PrivateKey
	owner       common.Address
	deployments map[uint64]Deployment
}

// ToMultichainAccount derives the account's address on every configured chain.
// It performs one eth_call per chain.
func ToMultichainAccount(ctx context.Context, signer *ecdsa.PrivateKey, chains []ChainConfig) (*MultichainAccount, error) {
	if signer == nil {
		return nil, errors.New("nexus: nil signer")
	}
	if len(chains) == 0 {
		return nil, errors.New("nexus: no chain configurations")
	}
	acc := &MultichainAccount{
		signer:      signer,
		owner:       crypto.PubkeyToAddress(signer.PublicKey),
		deployments: make(map[uint64]Deployment, len(chains)),
	}
	for _, chain := range chains {
		if _, dup := acc.deployments[chain.ChainID]; dup {
			return nil, fmt.Errorf("nexus: chain %d configured twice", chain.ChainID)
		}
		addr, err := computeAddress(ctx, chain, acc.owner)
		if err != nil {
			return nil, fmt.Errorf("nexus: derive address on chain %d: %w", chain.ChainID, err)
		}
		acc.deployments[chain.ChainID] = Deployment{ChainID: chain.ChainID, Address: addr}
		log.Debug("Derived smart account address", "chain", chain.ChainID, "owner", acc.owner, "account", addr)
	}
	return acc, nil
}

func computeAddress(ctx context.Context, chain ChainConfig, owner common.Address) (common.Address, error) {
	if chain.Backend == nil {
		return common.Address{}, errors.New("no backend")
	}
	factory := chain.Factory
	if factory == (common.Address{}) {
		factory = DefaultFactory
	}
	index := chain.Index
	if index == nil {
		index = new(big.Int)
	}
	contract := bind.NewBoundContract(factory, FactoryABI, chain.Backend, nil, nil)

	var out []interface{}
	err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "computeAccountAddress", owner, index, []common.Address{}, uint8(0))
	if err != nil {
		return common.Address{}, err
	}
	addr := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	if addr == (common.Address{}) {
		return common.Address{}, errZeroAddress
	}
	return addr, nil
}

// Owner returns the EOA that controls the account.
func (a *MultichainAccount) Owner() common.Address { return a.owner }

// AddressOn returns the account address on chainID, reporting false when the
// account is not configured for that chain.
func (a *MultichainAccount) AddressOn(chainID uint64) (common.Address, bool) {
	d, ok := a.deployments[chainID]
	return d.Address, ok
}

// Deployments returns all deployments ordered by chain id.
func (a *MultichainAccount) Deployments() []Deployment {
	out := make([]Deployment, 0, len(a.deployments))
	for _, d := range a.deployments {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

// SignMessage signs msg with the EIP-191 personal message prefix. The
// recovery id is shifted to 27/28.
func (a *MultichainAccount) SignMessage(msg []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(msg), a.signer)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}
