package funding_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/clydemeng/mee-fusion/internal/chaintest"
	"github.com/clydemeng/mee-fusion/internal/funding"
	"github.com/clydemeng/mee-fusion/internal/units"
)

var (
	usdc     = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	whale    = common.HexToAddress("0x37305B1cD40574E4C5Ce33f8e8306Be057fD7341")
	testAddr = common.HexToAddress("0x0D3ab14BBaD3D99F4203bd7a11aCB94882050E7e")
)

func setup(t *testing.T, whaleBalance string) (*chaintest.Chain, funding.Request, func() (funding.RPC, funding.Backend)) {
	t.Helper()
	chain := chaintest.New()
	chain.DeployToken(usdc, "USDC", 6)
	chain.Mint(usdc, whale, units.MustParseUnits(whaleBalance, 6))
	backend := chain.Client()
	t.Cleanup(func() {
		backend.Close()
		chain.Close()
	})
	req := funding.Request{Token: usdc, Whale: whale, Recipient: testAddr, Poll: time.Millisecond}
	return chain, req, func() (funding.RPC, funding.Backend) { return backend.Client(), backend }
}

func TestFund(t *testing.T) {
	chain, req, clients := setup(t, "10000000")
	rpc, backend := clients()

	res, err := funding.Fund(context.Background(), rpc, backend, req)
	require.NoError(t, err)
	require.Equal(t, units.MustParseUnits("1000000", 6), res.Received())
	require.Equal(t, "1000000.0", units.FormatUnits(res.RecipientAfter, res.Decimals))
	require.Equal(t, "0.0", units.FormatUnits(res.RecipientBefore, res.Decimals))
	require.Equal(t, "10000000.0", units.FormatUnits(res.WhaleBefore, res.Decimals))
	require.NotEqual(t, common.Hash{}, res.TxHash)

	require.Equal(t, units.MustParseUnits("9000000", 6), chain.TokenBalance(usdc, whale))
	require.Equal(t, funding.WhaleNativeBalance.ToBig(), chain.NativeBalance(whale))
	require.False(t, chain.IsImpersonated(whale))
}

func TestFundCopiesAmount(t *testing.T) {
	_, req, clients := setup(t, "10000000")
	rpc, backend := clients()
	amount := units.MustParseUnits("250", 6)
	req.Amount = amount

	res, err := funding.Fund(context.Background(), rpc, backend, req)
	require.NoError(t, err)
	res.Amount.SetInt64(0)
	require.Equal(t, units.MustParseUnits("250", 6), amount)
	require.Equal(t, amount, res.Received())
}

func TestFundOrdering(t *testing.T) {
	chain, req, clients := setup(t, "10000000")
	rpc, backend := clients()

	_, err := funding.Fund(context.Background(), rpc, backend, req)
	require.NoError(t, err)

	var admin []string
	for _, call := range chain.Calls() {
		switch call {
		case "anvil_impersonateAccount", "anvil_setBalance", "eth_sendTransaction", "anvil_stopImpersonatingAccount":
			admin = append(admin, call)
		}
	}
	require.Equal(t, []string{
		"anvil_impersonateAccount",
		"anvil_setBalance",
		"eth_sendTransaction",
		"anvil_stopImpersonatingAccount",
	}, admin)
}

func TestFundInsufficientWhaleBalance(t *testing.T) {
	chain, req, clients := setup(t, "10")
	rpc, backend := clients()

	_, err := funding.Fund(context.Background(), rpc, backend, req)
	require.ErrorIs(t, err, funding.ErrInsufficientWhaleBalance)
	require.Zero(t, chain.TokenBalance(usdc, testAddr).Sign())
	require.False(t, chain.IsImpersonated(whale))
	require.NotContains(t, chain.Calls(), "eth_sendTransaction")
}

func TestFundUnreadableToken(t *testing.T) {
	chain, req, clients := setup(t, "10000000")
	rpc, backend := clients()
	chain.SetReverting(usdc, true)

	_, err := funding.Fund(context.Background(), rpc, backend, req)
	require.Error(t, err)
	require.False(t, chain.IsImpersonated(whale))
	require.NotContains(t, chain.Calls(), "eth_sendTransaction")
}

func TestWhaleNativeBalance(t *testing.T) {
	require.Equal(t, "0x1000000000000000000", funding.WhaleNativeBalance.Hex())
	require.Equal(t, int64(1_000_000_000_000), funding.DefaultAmount().Int64())
	funding.DefaultAmount().SetInt64(1)
	require.Equal(t, int64(1_000_000_000_000), funding.DefaultAmount().Int64())
	require.Equal(t, 100_000, funding.TransferGasLimit)
}
