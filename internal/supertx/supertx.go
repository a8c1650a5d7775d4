// Package supertx runs the fusion deposit flow: it moves a token from the EOA
// into its smart account, supplies it to a lending pool and returns the yield
// token to the EOA, all as one supertransaction.
package supertx

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/clydemeng/mee-fusion/internal/erc20"
	"github.com/clydemeng/mee-fusion/internal/units"
	"github.com/clydemeng/mee-fusion/mee"
)

const (
	// ChainID is the chain the supertransaction runs on.
	ChainID = 1
	// TokenDecimals is the default decimals of the deposit token.
	TokenDecimals = 6
)

// ErrInsufficientBalance is returned when the EOA holds less than the
// deposit.
var ErrInsufficientBalance = errors.New("insufficient token balance")

// DepositAmount returns 1000 units of a 6 decimal token.
func DepositAmount() *big.Int { return big.NewInt(1_000_000_000) }

// Supertransactor quotes and executes supertransactions. *mee.Client
// implements it.
type Supertransactor interface {
	GetFusionQuote(ctx context.Context, req mee.FusionQuoteRequest) (*mee.FusionQuote, error)
	ExecuteFusionQuote(ctx context.Context, quote *mee.FusionQuote) (common.Hash, error)
	WaitForSupertransactionReceipt(ctx context.Context, hash common.Hash, confirmations uint64) (*mee.Receipt, error)
}

// Connect yields the supertransactor and the smart account address it acts
// for.
type Connect func(ctx context.Context) (Supertransactor, common.Address, error)

// Config names the accounts and contracts of the flow.
type Config struct {
	EOA           common.Address
	Token         common.Address // deposited token
	YieldToken    common.Address // token minted by the pool
	Pool          common.Address
	Amount        *big.Int // nil means DepositAmount()
	Decimals      uint8    // zero means TokenDecimals
	Confirmations uint64   // zero means 1
}

// amount returns a copy so the calls and the request never share the
// caller's value.
func (c Config) amount() *big.Int {
	if c.Amount == nil {
		return DepositAmount()
	}
	return new(big.Int).Set(c.Amount)
}

func (c Config) decimals() uint8 {
	if c.Decimals == 0 {
		return TokenDecimals
	}
	return c.Decimals
}

// Result describes a completed run.
type Result struct {
	Nexus    common.Address
	Hash     common.Hash
	ScanLink string
	Status   mee.TransactionStatus
	// StatusText is the status name reported by the node.
	StatusText string
	Decimals   uint8

	InitialToken, InitialYield *big.Int
	FinalToken, FinalYield     *big.Int
}

// Succeeded reports whether the supertransaction was mined successfully.
func (r *Result) Succeeded() bool { return r.Status == mee.StatusMinedSuccess }

// TokenDelta is the change of the EOA's deposit token balance.
func (r *Result) TokenDelta() *big.Int { return new(big.Int).Sub(r.FinalToken, r.InitialToken) }

// YieldDelta is the change of the EOA's yield token balance.
func (r *Result) YieldDelta() *big.Int { return new(big.Int).Sub(r.FinalYield, r.InitialYield) }

// Run executes the flow. Errors are *PhaseError values. A supertransaction
// that ends in a status other than MINED_SUCCESS is not an error; check
// Result.Succeeded.
func Run(ctx context.Context, connect Connect, reader bind.ContractCaller, cfg Config) (*Result, error) {
	amount, decimals := cfg.amount(), cfg.decimals()
	confirmations := cfg.Confirmations
	if confirmations == 0 {
		confirmations = 1
	}
	token := erc20.NewToken(cfg.Token, reader)
	yield := erc20.NewToken(cfg.YieldToken, reader)

	log.Info("Initializing MEE client")
	client, nexus, err := connect(ctx)
	if err != nil {
		return nil, fail(PhaseInit, err)
	}
	log.Info("Resolved accounts", "eoa", cfg.EOA, "nexus", nexus)
	res := &Result{Nexus: nexus, Decimals: decimals}

	res.InitialToken, res.InitialYield, err = balances(ctx, token, yield, cfg.EOA)
	if err != nil {
		return nil, fail(PhaseBalanceCheck, err)
	}
	log.Info("Initial balances", "token", units.FormatUnits(res.InitialToken, decimals), "yield", units.FormatUnits(res.InitialYield, decimals))
	if res.InitialToken.Cmp(amount) < 0 {
		return nil, fail(PhaseBalanceCheck, fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance,
			units.FormatUnits(res.InitialToken, decimals), units.FormatUnits(amount, decimals)))
	}

	calls, err := BuildCalls(cfg, nexus)
	if err != nil {
		return nil, fail(PhaseBuildCalls, err)
	}
	req := QuoteRequest(cfg, calls)
	if err := validateRequest(cfg, req); err != nil {
		return nil, fail(PhaseBuildCalls, err)
	}

	log.Info("Requesting fusion quote", "calls", len(calls), "amount", units.FormatUnits(amount, decimals))
	quote, err := client.GetFusionQuote(ctx, req)
	if err != nil {
		return nil, fail(PhaseQuote, err)
	}
	log.Info("Fusion quote received", "hash", quote.Hash)

	log.Info("Executing fusion supertransaction")
	res.Hash, err = client.ExecuteFusionQuote(ctx, quote)
	if err != nil {
		return nil, fail(PhaseExecute, err)
	}
	res.ScanLink = mee.ScanLink(res.Hash)
	log.Info("Executed supertransaction", "hash", res.Hash, "explorer", res.ScanLink)

	log.Info("Waiting for confirmation", "confirmations", confirmations)
	receipt, err := client.WaitForSupertransactionReceipt(ctx, res.Hash, confirmations)
	if err != nil {
		return nil, fail(PhaseConfirm, err)
	}
	res.Status, res.StatusText = receipt.TransactionStatus, receipt.StatusText()
	if res.Succeeded() {
		log.Info("Supertransaction confirmed", "hash", res.Hash)
	} else {
		log.Warn("Supertransaction did not succeed", "hash", res.Hash, "status", res.StatusText)
	}

	res.FinalToken, res.FinalYield, err = balances(ctx, token, yield, cfg.EOA)
	if err != nil {
		return nil, fail(PhaseReport, err)
	}
	log.Info("Final balances",
		"token", units.FormatUnits(res.FinalToken, decimals), "token-delta", units.FormatUnits(res.TokenDelta(), decimals),
		"yield", units.FormatUnits(res.FinalYield, decimals), "yield-delta", units.FormatUnits(res.YieldDelta(), decimals))
	return res, nil
}

func balances(ctx context.Context, token, yield *erc20.Token, holder common.Address) (tok, yld *big.Int, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		tok, err = token.BalanceOf(gctx, holder)
		return err
	})
	g.Go(func() (err error) {
		yld, err = yield.BalanceOf(gctx, holder)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return tok, yld, nil
}
