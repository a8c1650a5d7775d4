// check-balance prints the native and token balances of the test account.
package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/urfave/cli/v2"

	"github.com/clydemeng/mee-fusion/internal/balance"
	"github.com/clydemeng/mee-fusion/internal/cmdutil"
	"github.com/clydemeng/mee-fusion/internal/config"
)

const failTitle = "Error checking balance"

func main() {
	cmdutil.Main(cmdutil.NewApp("check-balance", "Print ETH, USDC and aUSDC balances of TEST_ADDRESS", checkBalance))
}

func checkBalance(ctx *cli.Context) error {
	cfg := config.Load()
	if err := cfg.Require(config.EnvUSDC, config.EnvTestAddress, config.EnvRPCURL); err != nil {
		return cmdutil.Fail(err, failTitle)
	}
	holder, err := cfg.Address(config.EnvTestAddress)
	if err != nil {
		return cmdutil.Fail(err, failTitle)
	}
	usdc, err := cfg.Address(config.EnvUSDC)
	if err != nil {
		return cmdutil.Fail(err, failTitle)
	}
	refs := []balance.TokenRef{{Address: usdc, Label: "USDC", Required: true}}
	if ausdc, ok, err := cfg.OptionalAddress(config.EnvAUSDC); err != nil {
		return cmdutil.Fail(err, failTitle)
	} else if ok {
		refs = append(refs, balance.TokenRef{Address: ausdc, Label: "aUSDC"})
	}

	ec, err := ethclient.DialContext(ctx.Context, cfg.RPCURL)
	if err != nil {
		return cmdutil.Fail(fmt.Errorf("dial %s: %w", cfg.RPCURL, err), failTitle, "Make sure Anvil is running.")
	}
	defer ec.Close()

	cmdutil.Printf("Checking balances for address: %s", holder)
	report, err := balance.Inspect(ctx.Context, ec, holder, refs)
	if err != nil {
		return cmdutil.Fail(err, failTitle, "Make sure Anvil is running.", "Confirm USDC_ADDRESS points at a deployed token.")
	}
	report.Render(cmdutil.Stdout)
	for _, line := range report.Tokens[1:] {
		if !line.Available() {
			cmdutil.Warn("%s Balance: %s (contract may not exist or not deployed)", line.Symbol, balance.NotAvailable)
		}
	}
	cmdutil.Success("Balance check complete.")
	return nil
}
