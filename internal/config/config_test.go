package config

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func lookup(env map[string]string) func(string) string {
	return func(k string) string { return env[k] }
}

func TestRequireClientReportsEveryMissingVar(t *testing.T) {
	cfg := FromLookup(lookup(map[string]string{EnvNodeURL: "http://localhost:3000/v3/"}))

	err := cfg.RequireClient()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrMissing))

	var missing *MissingError
	require.True(t, errors.As(err, &missing))
	require.Equal(t, []string{EnvPrivateKey, EnvRPCURL}, missing.Vars)
	require.Equal(t, "http://localhost:3000/v3", cfg.NodeURL)
}

func TestRequireClientComplete(t *testing.T) {
	cfg := FromLookup(lookup(map[string]string{
		EnvPrivateKey: "0xb71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291",
		EnvNodeURL:    "http://localhost:3000",
		EnvRPCURL:     "http://localhost:8545",
	}))
	require.NoError(t, cfg.RequireClient())

	key, err := cfg.Signer()
	require.NoError(t, err)
	want, _ := crypto.HexToECDSA("b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
	require.Equal(t, crypto.PubkeyToAddress(want.PublicKey), crypto.PubkeyToAddress(key.PublicKey))
}

func TestSignerRejectsGarbage(t *testing.T) {
	cfg := FromLookup(lookup(map[string]string{EnvPrivateKey: "not-a-key"}))
	_, err := cfg.Signer()
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrMissing))
}

func TestAddress(t *testing.T) {
	cfg := FromLookup(lookup(map[string]string{
		EnvUSDC:  "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		EnvWhale: "0x1234",
	}))

	addr, err := cfg.Address(EnvUSDC)
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), addr)

	_, err = cfg.Address(EnvWhale)
	require.Error(t, err)

	_, err = cfg.Address(EnvPool)
	require.ErrorIs(t, err, ErrMissing)

	_, ok, err := cfg.OptionalAddress(EnvAUSDC)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPoll(t *testing.T) {
	d, err := FromLookup(lookup(nil)).Poll()
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, d)

	d, err = FromLookup(lookup(map[string]string{EnvPollInterval: "250ms"})).Poll()
	require.NoError(t, err)
	require.Equal(t, 250*time.Millisecond, d)

	_, err = FromLookup(lookup(map[string]string{EnvPollInterval: "-1s"})).Poll()
	require.Error(t, err)
}
