// Package balance reads native and ERC20 balances of one holder.
package balance

import (
	"context"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/sync/errgroup"

	"github.com/clydemeng/mee-fusion/internal/erc20"
	"github.com/clydemeng/mee-fusion/internal/units"
)

// NotAvailable is shown for tokens whose balance could not be read.
const NotAvailable = "Not available"

// Backend is the chain access needed by Inspect.
type Backend interface {
	bind.ContractCaller
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// TokenRef names a token to report. An empty Symbol or zero Decimals is read
// from the contract.
type TokenRef struct {
	Symbol   string
	Label    string // shown when the symbol cannot be read
	Decimals uint8
	Address  common.Address
	Required bool // a failed read fails the whole inspection
}

// Line is the outcome of reading one token.
type Line struct {
	Symbol   string
	Address  common.Address
	Amount   *big.Int
	Decimals uint8
	Required bool
	Err      error
}

// Available reports whether the balance was read.
func (l Line) Available() bool { return l.Err == nil && l.Amount != nil }

// Formatted renders the balance with its symbol, or NotAvailable.
func (l Line) Formatted() string {
	if !l.Available() {
		return NotAvailable
	}
	return units.FormatUnits(l.Amount, l.Decimals) + " " + l.Symbol
}

// Report holds the balances of one holder.
type Report struct {
	Holder common.Address
	Native *big.Int
	Tokens []Line
}

// Err returns the first failed read of a required token.
func (r *Report) Err() error {
	for _, l := range r.Tokens {
		if l.Required && !l.Available() {
			return fmt.Errorf("read %s balance: %w", l.Symbol, l.Err)
		}
	}
	return nil
}

// Token returns the line for the token at addr.
func (r *Report) Token(addr common.Address) (Line, bool) {
	for _, l := range r.Tokens {
		if l.Address == addr {
			return l, true
		}
	}
	return Line{}, false
}

// Render writes the report as a table.
func (r *Report) Render(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Asset", "Contract", "Balance"})
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.Append([]string{"ETH", "native", units.FormatEther(r.Native) + " ETH"})
	for _, l := range r.Tokens {
		table.Append([]string{l.Symbol, l.Address.Hex(), l.Formatted()})
	}
	table.Render()
}

// Inspect reads the native balance and every token balance of holder
// concurrently. Failed token reads are recorded on their line. The error is
// non-nil when the native balance cannot be read, or when a required token
// fails; in the latter case the partial report is returned as well.
func Inspect(ctx context.Context, backend Backend, holder common.Address, refs []TokenRef) (*Report, error) {
	report := &Report{Holder: holder, Tokens: make([]Line, len(refs))}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bal, err := backend.BalanceAt(gctx, holder, nil)
		if err != nil {
			return fmt.Errorf("read native balance of %s: %w", holder, err)
		}
		report.Native = bal
		return nil
	})
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			report.Tokens[i] = readToken(gctx, backend, holder, ref)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := report.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func readToken(ctx context.Context, backend bind.ContractCaller, holder common.Address, ref TokenRef) Line {
	line := Line{Symbol: ref.Symbol, Address: ref.Address, Decimals: ref.Decimals, Required: ref.Required}
	fallback := ref.Label
	if fallback == "" {
		fallback = ref.Address.Hex()
	}
	if line.Symbol == "" {
		line.Symbol = fallback
	}
	token := erc20.NewToken(ref.Address, backend)

	amount, err := token.BalanceOf(ctx, holder)
	if err != nil {
		line.Err = err
		log.Debug("Token balance unavailable", "token", ref.Address, "err", err)
		return line
	}
	if ref.Decimals == 0 {
		if line.Decimals, err = token.Decimals(ctx); err != nil {
			line.Err = err
			return line
		}
	}
	if ref.Symbol == "" {
		if line.Symbol, err = token.Symbol(ctx); err != nil {
			line.Symbol = fallback
			line.Err = err
			return line
		}
	}
	line.Amount = amount
	return line
}
