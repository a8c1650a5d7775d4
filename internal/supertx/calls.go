package supertx

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/clydemeng/mee-fusion/internal/erc20"
	"github.com/clydemeng/mee-fusion/mee"
)

// BuildCalls returns the four calls of the deposit flow, in execution order:
// move the token into the smart account, approve the pool, supply on behalf
// of the smart account and send the yield token back to the EOA.
func BuildCalls(cfg Config, nexus common.Address) ([]mee.Call, error) {
	amount := cfg.amount()
	transferIn, err := erc20.EncodeTransfer(nexus, amount)
	if err != nil {
		return nil, err
	}
	approve, err := erc20.EncodeApprove(cfg.Pool, amount)
	if err != nil {
		return nil, err
	}
	supply, err := erc20.EncodeSupply(cfg.Token, amount, nexus, 0)
	if err != nil {
		return nil, err
	}
	transferOut, err := erc20.EncodeTransfer(cfg.EOA, amount)
	if err != nil {
		return nil, err
	}
	return []mee.Call{
		{To: cfg.Token, Data: transferIn, Value: new(big.Int)},
		{To: cfg.Token, Data: approve, Value: new(big.Int)},
		{To: cfg.Pool, Data: supply, Value: new(big.Int)},
		{To: cfg.YieldToken, Data: transferOut, Value: new(big.Int)},
	}, nil
}

// QuoteRequest wraps the calls into a fusion quote request triggered and
// paid in the deposit token.
func QuoteRequest(cfg Config, calls []mee.Call) mee.FusionQuoteRequest {
	return mee.FusionQuoteRequest{
		Trigger:      mee.Trigger{ChainID: ChainID, TokenAddress: cfg.Token, Amount: cfg.amount()},
		FeeToken:     mee.FeeToken{Address: cfg.Token, ChainID: ChainID},
		Instructions: []mee.Instruction{{ChainID: ChainID, Calls: calls}},
	}
}

var selectors = [][]byte{
	erc20.TokenABI.Methods["transfer"].ID,
	erc20.TokenABI.Methods["approve"].ID,
	erc20.PoolABI.Methods["supply"].ID,
	erc20.TokenABI.Methods["transfer"].ID,
}

func validateRequest(cfg Config, req mee.FusionQuoteRequest) error {
	if len(req.Instructions) != 1 {
		return fmt.Errorf("want 1 instruction, have %d", len(req.Instructions))
	}
	ins := req.Instructions[0]
	if ins.ChainID != ChainID {
		return fmt.Errorf("instruction targets chain %d, want %d", ins.ChainID, ChainID)
	}
	if len(ins.Calls) != len(selectors) {
		return fmt.Errorf("want %d calls, have %d", len(selectors), len(ins.Calls))
	}
	targets := []common.Address{cfg.Token, cfg.Token, cfg.Pool, cfg.YieldToken}
	for i, call := range ins.Calls {
		if call.To != targets[i] {
			return fmt.Errorf("call %d targets %s, want %s", i, call.To, targets[i])
		}
		if len(call.Data) < 4 || !bytes.Equal(call.Data[:4], selectors[i]) {
			return fmt.Errorf("call %d has unexpected selector", i)
		}
		if call.Value != nil && call.Value.Sign() != 0 {
			return errors.New("calls must not carry value")
		}
	}
	return nil
}
