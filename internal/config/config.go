// Package config loads the environment shared by the fusion commands.
package config

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvPrivateKey   = "TEST_PRIVATE_KEY"
	EnvNodeURL      = "MEE_NODE_URL"
	EnvRPCURL       = "LOCAL_RPC_URL"
	EnvAPIKey       = "BICONOMY_API_KEY"
	EnvUSDC         = "USDC_ADDRESS"
	EnvAUSDC        = "AUSDC_ADDRESS"
	EnvPool         = "AAVE_POOL_ADDRESS"
	EnvWhale        = "USDC_WHALE_ADDRESS"
	EnvTestAddress  = "TEST_ADDRESS"
	EnvFactory      = "NEXUS_FACTORY_ADDRESS"
	EnvPollInterval = "MEE_POLL_INTERVAL"
	EnvLogLevel     = "LOG_LEVEL"
	EnvLogFormat    = "LOG_FORMAT"
	EnvLogFile      = "LOG_FILE"
)

const defaultPollPeriod = 2 * time.Second

// ErrMissing is wrapped by every error reporting absent required variables.
var ErrMissing = errors.New("missing required environment variables")

// MissingError lists the required variables that were not set.
type MissingError struct {
	Vars []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("%v: %s", ErrMissing, strings.Join(e.Vars, ", "))
}

func (e *MissingError) Unwrap() error { return ErrMissing }

// Config is the raw environment. Values are kept as strings until a command
// asks for them so that each command only fails on what it actually needs.
type Config struct {
	PrivateKey   string
	NodeURL      string
	RPCURL       string
	APIKey       string
	USDC         string
	AUSDC        string
	Pool         string
	Whale        string
	TestAddress  string
	Factory      string
	PollInterval string
	LogLevel     string
	LogFormat    string
	LogFile      string
}

// Load reads a .env file from the working directory when present and then
// the process environment. A missing .env file is not an error.
func Load() *Config {
	_ = godotenv.Load()
	return FromLookup(os.Getenv)
}

// FromLookup builds a Config from an arbitrary lookup function.
func FromLookup(get func(string) string) *Config {
	v := func(name string) string { return strings.TrimSpace(get(name)) }
	return &Config{
		PrivateKey:   v(EnvPrivateKey),
		NodeURL:      strings.TrimRight(v(EnvNodeURL), "/"),
		RPCURL:       v(EnvRPCURL),
		APIKey:       v(EnvAPIKey),
		USDC:         v(EnvUSDC),
		AUSDC:        v(EnvAUSDC),
		Pool:         v(EnvPool),
		Whale:        v(EnvWhale),
		TestAddress:  v(EnvTestAddress),
		Factory:      v(EnvFactory),
		PollInterval: v(EnvPollInterval),
		LogLevel:     v(EnvLogLevel),
		LogFormat:    v(EnvLogFormat),
		LogFile:      v(EnvLogFile),
	}
}

// Require returns a *MissingError naming every listed variable that is empty.
func (c *Config) Require(names ...string) error {
	var missing []string
	for _, name := range names {
		if c.value(name) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &MissingError{Vars: missing}
	}
	return nil
}

// RequireClient checks the variables needed to build the MEE client.
func (c *Config) RequireClient() error {
	return c.Require(EnvPrivateKey, EnvNodeURL, EnvRPCURL)
}

func (c *Config) value(name string) string {
	switch name {
	case EnvPrivateKey:
		return c.PrivateKey
	case EnvNodeURL:
		return c.NodeURL
	case EnvRPCURL:
		return c.RPCURL
	case EnvAPIKey:
		return c.APIKey
	case EnvUSDC:
		return c.USDC
	case EnvAUSDC:
		return c.AUSDC
	case EnvPool:
		return c.Pool
	case EnvWhale:
		return c.Whale
	case EnvTestAddress:
		return c.TestAddress
	case EnvFactory:
		return c.Factory
	case EnvPollInterval:
		return c.PollInterval
	case EnvLogLevel:
		return c.LogLevel
	case EnvLogFormat:
		return c.LogFormat
	case EnvLogFile:
		return c.LogFile
	}
	return ""
}

// Signer parses TEST_PRIVATE_KEY. A 0x prefix is accepted.
func (c *Config) Signer() (*ecdsa.PrivateKey, error) {
	if c.PrivateKey == "" {
		return nil, &MissingError{Vars: []string{EnvPrivateKey}}
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(c.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EnvPrivateKey, err)
	}
	return key, nil
}

// Address parses the named address variable.
func (c *Config) Address(name string) (common.Address, error) {
	raw := c.value(name)
	if raw == "" {
		return common.Address{}, &MissingError{Vars: []string{name}}
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid %s: %q is not a hex address", name, raw)
	}
	return common.HexToAddress(raw), nil
}

// OptionalAddress parses the named address variable, reporting false when it
// is unset.
func (c *Config) OptionalAddress(name string) (common.Address, bool, error) {
	if c.value(name) == "" {
		return common.Address{}, false, nil
	}
	addr, err := c.Address(name)
	if err != nil {
		return common.Address{}, false, err
	}
	return addr, true, nil
}

// Poll returns the receipt polling interval.
func (c *Config) Poll() (time.Duration, error) {
	if c.PollInterval == "" {
		return defaultPollPeriod, nil
	}
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", EnvPollInterval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", EnvPollInterval)
	}
	return d, nil
}
