// Package clientcache holds the process-wide MEE client. The client is built
// lazily on first use and kept until Reset.
package clientcache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/singleflight"

	"github.com/clydemeng/mee-fusion/internal/config"
	"github.com/clydemeng/mee-fusion/mee"
	"github.com/clydemeng/mee-fusion/nexus"
)

// ChainID is the chain the cached account is resolved on.
const ChainID = 1

var errStale = errors.New("client cache reset during initialization")

// Builder creates a client from a validated configuration.
type Builder func(ctx context.Context, cfg *config.Config) (*mee.Client, error)

// Cache owns at most one live client.
type Cache struct {
	load  func() *config.Config
	build Builder

	mu     sync.Mutex
	client *mee.Client
	gen    uint64 // bumped by Reset
	group  singleflight.Group
}

// New creates an empty cache. load is consulted on every initialization.
func New(load func() *config.Config, build Builder) *Cache {
	return &Cache{load: load, build: build}
}

// Get returns the cached client, building it on first use. Concurrent callers
// share a single initialization. Missing configuration is reported before
// anything is dialled.
func (c *Cache) Get(ctx context.Context) (*mee.Client, error) {
	for {
		c.mu.Lock()
		if c.client != nil {
			client := c.client
			c.mu.Unlock()
			return client, nil
		}
		gen := c.gen
		c.mu.Unlock()

		v, err, _ := c.group.Do(fmt.Sprint(gen), func() (interface{}, error) {
			return c.initialize(ctx, gen)
		})
		if errors.Is(err, errStale) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return v.(*mee.Client), nil
	}
}

func (c *Cache) initialize(ctx context.Context, gen uint64) (*mee.Client, error) {
	c.mu.Lock()
	if c.client != nil && c.gen == gen {
		client := c.client
		c.mu.Unlock()
		return client, nil
	}
	c.mu.Unlock()

	cfg := c.load()
	if err := cfg.RequireClient(); err != nil {
		return nil, err
	}
	client, err := c.build(ctx, cfg)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		client.Close()
		return nil, errStale
	}
	c.client = client
	log.Debug("Initialized MEE client", "node", client.URL(), "owner", client.Account().Owner())
	return client, nil
}

// Reset discards the cached client. It is safe to call at any time.
func (c *Cache) Reset() {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.gen++
	c.mu.Unlock()

	if client != nil {
		client.Close()
		log.Debug("Discarded MEE client")
	}
}

// IsInitialized reports whether a client is cached.
func (c *Cache) IsInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client != nil
}

// AccountAddress returns the smart account address on ChainID, initializing
// the client if needed.
func (c *Cache) AccountAddress(ctx context.Context) (common.Address, error) {
	client, err := c.Get(ctx)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := client.Account().AddressOn(ChainID)
	if !ok {
		return common.Address{}, fmt.Errorf("account has no address on chain %d", ChainID)
	}
	return addr, nil
}

// Build dials the local RPC endpoint, derives the smart account and wires
// the MEE client. The RPC connection is closed with the client.
func Build(ctx context.Context, cfg *config.Config) (*mee.Client, error) {
	signer, err := cfg.Signer()
	if err != nil {
		return nil, err
	}
	factory, _, err := cfg.OptionalAddress(config.EnvFactory)
	if err != nil {
		return nil, err
	}
	poll, err := cfg.Poll()
	if err != nil {
		return nil, err
	}

	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.RPCURL, err)
	}
	account, err := nexus.ToMultichainAccount(ctx, signer, []nexus.ChainConfig{
		{ChainID: ChainID, Backend: ec, Factory: factory},
	})
	if err != nil {
		ec.Close()
		return nil, err
	}
	client, err := mee.New(mee.Options{
		URL:          cfg.NodeURL,
		APIKey:       cfg.APIKey,
		Account:      account,
		PollInterval: poll,
		OnClose:      ec.Close,
	})
	if err != nil {
		ec.Close()
		return nil, err
	}
	return client, nil
}

// Default is the process-wide cache, configured from the environment.
var Default = New(config.Load, Build)

// Get returns the default cache's client.
func Get(ctx context.Context) (*mee.Client, error) { return Default.Get(ctx) }

// Reset discards the default cache's client.
func Reset() { Default.Reset() }

// IsInitialized reports whether the default cache holds a client.
func IsInitialized() bool { return Default.IsInitialized() }

// AccountAddress returns the default account's address on ChainID.
func AccountAddress(ctx context.Context) (common.Address, error) {
	return Default.AccountAddress(ctx)
}
