// Package probe initializes the MEE client and checks the node's health.
package probe

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/clydemeng/mee-fusion/internal/clientcache"
	"github.com/clydemeng/mee-fusion/mee"
)

// Result is what the probe learned. InfoErr is set when the health check
// failed; initialization itself still succeeded.
type Result struct {
	NodeURL string
	Account common.Address
	Info    *mee.NodeInfo
	InfoErr error
}

// Status returns the health of the node's first chain, or "unknown".
func (r *Result) Status() string { return r.Info.HealthStatus() }

// Run builds the cached client, resolves the account address and queries the
// node's /info endpoint. Only initialization failures are returned as errors.
func Run(ctx context.Context, cache *clientcache.Cache) (*Result, error) {
	log.Info("Initializing MEE client")
	client, err := cache.Get(ctx)
	if err != nil {
		return nil, err
	}
	log.Info("MEE client initialized", "node", client.URL())

	addr, err := cache.AccountAddress(ctx)
	if err != nil {
		return nil, err
	}
	log.Info("Resolved account address", "account", addr)

	res := &Result{NodeURL: client.URL(), Account: addr}
	res.Info, res.InfoErr = client.Info(ctx)
	if res.InfoErr != nil {
		log.Warn("Could not fetch MEE node health", "err", res.InfoErr)
		return res, nil
	}
	log.Info("MEE node health", "version", res.Info.Version, "node", res.Info.Node, "status", res.Status())
	return res, nil
}
