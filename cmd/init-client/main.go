// init-client initializes the MEE client and probes the node's health.
package main

import (
	"github.com/urfave/cli/v2"

	"github.com/clydemeng/mee-fusion/internal/clientcache"
	"github.com/clydemeng/mee-fusion/internal/cmdutil"
	"github.com/clydemeng/mee-fusion/internal/probe"
)

func main() {
	cmdutil.Main(cmdutil.NewApp("init-client", "Initialize the MEE client and check node health", initClient))
}

func initClient(ctx *cli.Context) error {
	defer clientcache.Reset()

	res, err := probe.Run(ctx.Context, clientcache.Default)
	if err != nil {
		return cmdutil.Fail(err, "Error initializing MEE client",
			"Make sure the MEE node is running.",
			"Make sure Anvil is running.",
			"Make sure environment variables are set in .env.",
		)
	}
	cmdutil.Success("MEE client initialized successfully.")
	cmdutil.Printf("Connected to MEE node: %s", res.NodeURL)
	cmdutil.Printf("Account address: %s", res.Account)
	if res.InfoErr != nil {
		cmdutil.Warn("Could not fetch MEE node health: %v", res.InfoErr)
		return nil
	}
	cmdutil.Printf("MEE node health check:")
	cmdutil.Printf("  - Version: %s", res.Info.Version)
	cmdutil.Printf("  - Node: %s", res.Info.Node)
	cmdutil.Printf("  - Status: %s", res.Status())
	return nil
}
