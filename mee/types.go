package mee

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Call is a single contract call inside a supertransaction. It is built once
// and never mutated; Value is the native amount sent with the call.
type Call struct {
	To    common.Address `json:"to"`
	Data  hexutil.Bytes  `json:"data"`
	Value *big.Int       `json:"value"`
}

// Instruction groups the calls executed on one chain.
type Instruction struct {
	ChainID uint64 `json:"chainId"`
	Calls   []Call `json:"calls"`
}

// Trigger is the funding transfer that starts a fusion supertransaction: the
// EOA moves Amount of TokenAddress into the smart account on ChainID.
type Trigger struct {
	ChainID      uint64         `json:"chainId"`
	TokenAddress common.Address `json:"tokenAddress"`
	Amount       *big.Int       `json:"amount"`
}

// FeeToken names the token the node charges execution fees in.
type FeeToken struct {
	Address common.Address `json:"address"`
	ChainID uint64         `json:"chainId"`
}

// FusionQuoteRequest is the input of GetFusionQuote.
type FusionQuoteRequest struct {
	Trigger      Trigger       `json:"trigger"`
	FeeToken     FeeToken      `json:"feeToken"`
	Instructions []Instruction `json:"instructions"`
}

// FusionQuote is the node's priced description of a supertransaction. The
// payload is opaque to the client and is sent back verbatim on execution.
type FusionQuote struct {
	Hash    common.Hash
	Raw     json.RawMessage
	Request FusionQuoteRequest

	consumed bool
}

// Consumed reports whether the quote was already submitted for execution.
func (q *FusionQuote) Consumed() bool { return q.consumed }

// UserOpStatus is the per-chain execution state inside a receipt.
type UserOpStatus struct {
	ChainID         uint64            `json:"chainId"`
	ExecutionStatus TransactionStatus `json:"executionStatus"`
	TxHash          *common.Hash      `json:"txHash,omitempty"`
}

// Receipt is the node's view of a supertransaction.
type Receipt struct {
	Hash              common.Hash       `json:"hash"`
	TransactionStatus TransactionStatus `json:"transactionStatus"`
	Confirmations     uint64            `json:"confirmations"`
	UserOps           []UserOpStatus    `json:"userOps"`

	// RawStatus is the status name as sent by the node.
	RawStatus string `json:"-"`
}

// UnmarshalJSON keeps the node's status name next to the decoded status.
func (r *Receipt) UnmarshalJSON(data []byte) error {
	type plain Receipt
	var dec struct {
		plain
		Status string `json:"transactionStatus"`
	}
	if err := json.Unmarshal(data, &dec); err != nil {
		return err
	}
	*r = Receipt(dec.plain)
	r.RawStatus = dec.Status
	return r.TransactionStatus.UnmarshalText([]byte(dec.Status))
}

// StatusText returns the node's status name, falling back to the decoded
// status.
func (r *Receipt) StatusText() string {
	if r.RawStatus != "" {
		return r.RawStatus
	}
	return r.TransactionStatus.String()
}

// Succeeded reports whether the supertransaction was mined successfully.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.TransactionStatus == StatusMinedSuccess
}

// NodeInfo is the payload of the node's /info endpoint.
type NodeInfo struct {
	Version         string      `json:"version"`
	Node            string      `json:"node"`
	SupportedChains []ChainInfo `json:"supportedChains"`
}

// ChainInfo describes one chain supported by the node.
type ChainInfo struct {
	ChainID     string `json:"chainId"`
	Name        string `json:"name"`
	HealthCheck struct {
		Status string `json:"status"`
	} `json:"healthCheck"`
}

// HealthStatus returns the health status of the first supported chain, or
// "unknown" when the node did not report one.
func (i *NodeInfo) HealthStatus() string {
	if i == nil || len(i.SupportedChains) == 0 || i.SupportedChains[0].HealthCheck.Status == "" {
		return "unknown"
	}
	return i.SupportedChains[0].HealthCheck.Status
}

type quoteRequest struct {
	Mode         string         `json:"mode"`
	Owner        common.Address `json:"ownerAddress"`
	Account      []deployment   `json:"account"`
	Trigger      Trigger        `json:"trigger"`
	FeeToken     FeeToken       `json:"feeToken"`
	Instructions []Instruction  `json:"instructions"`
}

type deployment struct {
	ChainID uint64         `json:"chainId"`
	Address common.Address `json:"address"`
}

type quoteResponse struct {
	Hash common.Hash `json:"hash"`
}

type execRequest struct {
	Quote     json.RawMessage `json:"quote"`
	Signature hexutil.Bytes   `json:"signature"`
}

type execResponse struct {
	Hash common.Hash `json:"hash"`
}
