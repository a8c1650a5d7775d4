// fund-account transfers USDC from an impersonated whale to the test account
// on an Anvil fork.
package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/urfave/cli/v2"

	"github.com/clydemeng/mee-fusion/internal/cmdutil"
	"github.com/clydemeng/mee-fusion/internal/config"
	"github.com/clydemeng/mee-fusion/internal/funding"
	"github.com/clydemeng/mee-fusion/internal/units"
)

const failTitle = "Error funding account"

var hints = []string{
	"Make sure Anvil is running as a mainnet fork.",
	"Confirm USDC_WHALE_ADDRESS holds enough USDC at the fork block.",
}

func main() {
	cmdutil.Main(cmdutil.NewApp("fund-account", "Fund TEST_ADDRESS with 1,000,000 USDC from USDC_WHALE_ADDRESS", fundAccount))
}

func fundAccount(ctx *cli.Context) error {
	cfg := config.Load()
	if err := cfg.Require(config.EnvUSDC, config.EnvTestAddress, config.EnvWhale, config.EnvRPCURL); err != nil {
		return cmdutil.Fail(err, failTitle)
	}
	req := funding.Request{Amount: funding.DefaultAmount()}
	var err error
	if req.Token, err = cfg.Address(config.EnvUSDC); err != nil {
		return cmdutil.Fail(err, failTitle)
	}
	if req.Recipient, err = cfg.Address(config.EnvTestAddress); err != nil {
		return cmdutil.Fail(err, failTitle)
	}
	if req.Whale, err = cfg.Address(config.EnvWhale); err != nil {
		return cmdutil.Fail(err, failTitle)
	}

	ec, err := ethclient.DialContext(ctx.Context, cfg.RPCURL)
	if err != nil {
		return cmdutil.Fail(fmt.Errorf("dial %s: %w", cfg.RPCURL, err), failTitle, hints...)
	}
	defer ec.Close()

	res, err := funding.Fund(ctx.Context, ec.Client(), ec, req)
	if err != nil {
		return cmdutil.Fail(err, failTitle, hints...)
	}
	cmdutil.Printf("Whale USDC balance: %s USDC", units.FormatUnits(res.WhaleBefore, res.Decimals))
	cmdutil.Printf("Test account previous USDC balance: %s USDC", units.FormatUnits(res.RecipientBefore, res.Decimals))
	cmdutil.Printf("Test account new USDC balance: %s USDC", units.FormatUnits(res.RecipientAfter, res.Decimals))
	cmdutil.Printf("Transaction: %s", res.TxHash)
	cmdutil.Success("Account funded successfully.")
	return nil
}
