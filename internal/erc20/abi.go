package erc20

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// TokenABIJSON is the ERC20 subset the commands read and encode.
const TokenABIJSON = `
[
	{
		"type": "function",
		"name": "balanceOf",
		"stateMutability": "view",
		"inputs": [{"name": "account", "type": "address"}],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"type": "function",
		"name": "decimals",
		"stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "uint8"}]
	},
	{
		"type": "function",
		"name": "symbol",
		"stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "string"}]
	},
	{
		"type": "function",
		"name": "transfer",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "to", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"outputs": [{"name": "", "type": "bool"}]
	},
	{
		"type": "function",
		"name": "approve",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "spender", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"outputs": [{"name": "", "type": "bool"}]
	}
]`

// PoolABIJSON is the lending pool subset used by the supply step.
const PoolABIJSON = `
[
	{
		"type": "function",
		"name": "supply",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "asset", "type": "address"},
			{"name": "amount", "type": "uint256"},
			{"name": "onBehalfOf", "type": "address"},
			{"name": "referralCode", "type": "uint16"}
		],
		"outputs": []
	}
]`

var (
	TokenABI = mustParse(TokenABIJSON)
	PoolABI  = mustParse(PoolABIJSON)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("erc20: invalid ABI definition: " + err.Error())
	}
	return parsed
}
