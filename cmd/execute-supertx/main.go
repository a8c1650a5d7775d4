// execute-supertx deposits USDC into the lending pool through the smart
// account as a single fusion supertransaction.
package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/urfave/cli/v2"

	"github.com/clydemeng/mee-fusion/internal/clientcache"
	"github.com/clydemeng/mee-fusion/internal/cmdutil"
	"github.com/clydemeng/mee-fusion/internal/config"
	"github.com/clydemeng/mee-fusion/internal/supertx"
	"github.com/clydemeng/mee-fusion/internal/units"
)

const failTitle = "Fusion supertransaction failed"

var hints = []string{
	"Ensure the MEE node and Anvil are running.",
	"Fund the Nexus account with ETH if gasless execution is not supported locally.",
	"Confirm contract addresses and ABIs are correct.",
}

func main() {
	cmdutil.Main(cmdutil.NewApp("execute-supertx", "Supply 1000 USDC to the lending pool as one fusion supertransaction", execute))
}

func connect(ctx context.Context) (supertx.Supertransactor, common.Address, error) {
	client, err := clientcache.Get(ctx)
	if err != nil {
		return nil, common.Address{}, err
	}
	addr, err := clientcache.AccountAddress(ctx)
	if err != nil {
		return nil, common.Address{}, err
	}
	return client, addr, nil
}

func execute(ctx *cli.Context) error {
	defer clientcache.Reset()

	cfg := config.Load()
	if err := cfg.Require(config.EnvTestAddress, config.EnvUSDC, config.EnvPool, config.EnvAUSDC, config.EnvRPCURL); err != nil {
		return cmdutil.Fail(err, failTitle)
	}
	var (
		run supertx.Config
		err error
	)
	for name, dst := range map[string]*common.Address{
		config.EnvTestAddress: &run.EOA,
		config.EnvUSDC:        &run.Token,
		config.EnvAUSDC:       &run.YieldToken,
		config.EnvPool:        &run.Pool,
	} {
		if *dst, err = cfg.Address(name); err != nil {
			return cmdutil.Fail(err, failTitle)
		}
	}

	ec, err := ethclient.DialContext(ctx.Context, cfg.RPCURL)
	if err != nil {
		return cmdutil.Fail(fmt.Errorf("dial %s: %w", cfg.RPCURL, err), failTitle, hints...)
	}
	defer ec.Close()

	cmdutil.Printf("Starting fusion supertransaction execution...")
	res, err := supertx.Run(ctx.Context, connect, ec, run)
	if err != nil {
		return cmdutil.Fail(err, failTitle, hints...)
	}

	cmdutil.Printf("EOA address: %s", run.EOA)
	cmdutil.Printf("Nexus smart account: %s", res.Nexus)
	cmdutil.Success("Executed fusion supertransaction (single tx)")
	cmdutil.Printf("Hash: %s", res.Hash)
	cmdutil.Printf("Explorer: %s", res.ScanLink)
	if res.Succeeded() {
		cmdutil.Success("Supertransaction confirmed successfully.")
	} else {
		cmdutil.Warn("Transaction status: %s", res.StatusText)
	}

	d := res.Decimals
	cmdutil.Rule()
	cmdutil.Printf("EOA USDC: %s (Δ %s)", units.FormatUnits(res.FinalToken, d), units.FormatUnits(res.TokenDelta(), d))
	cmdutil.Printf("EOA aUSDC: %s (Δ %s)", units.FormatUnits(res.FinalYield, d), units.FormatUnits(res.YieldDelta(), d))
	cmdutil.Rule()
	if res.Succeeded() {
		cmdutil.Success("Fusion supertransaction completed successfully (atomic execution).")
	}
	return nil
}
