package balance_test

import (
	"bytes"
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/clydemeng/mee-fusion/internal/balance"
	"github.com/clydemeng/mee-fusion/internal/chaintest"
	"github.com/clydemeng/mee-fusion/internal/units"
)

var (
	usdc   = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	ausdc  = common.HexToAddress("0x98C23E9d8f34FEFb1B7BD6a91B7FF122F4e16F5c")
	holder = common.HexToAddress("0x0D3ab14BBaD3D99F4203bd7a11aCB94882050E7e")
)

func setup(t *testing.T) (*chaintest.Chain, balance.Backend) {
	t.Helper()
	chain := chaintest.New()
	backend := chain.Client()
	t.Cleanup(func() {
		backend.Close()
		chain.Close()
	})
	chain.DeployToken(usdc, "USDC", 6)
	chain.Mint(usdc, holder, units.MustParseUnits("5000000", 6))
	chain.SetNativeBalance(holder, units.MustParseUnits("1.5", units.EtherDecimals))
	return chain, backend
}

func TestInspect(t *testing.T) {
	chain, backend := setup(t)
	chain.DeployToken(ausdc, "aEthUSDC", 6)
	chain.Mint(ausdc, holder, units.MustParseUnits("1000", 6))

	report, err := balance.Inspect(context.Background(), backend, holder, []balance.TokenRef{
		{Address: usdc, Required: true},
		{Address: ausdc, Label: "aUSDC"},
	})
	require.NoError(t, err)
	require.NoError(t, report.Err())
	require.Equal(t, "1.5", units.FormatEther(report.Native))

	line, ok := report.Token(usdc)
	require.True(t, ok)
	require.Equal(t, "USDC", line.Symbol)
	require.Equal(t, uint8(6), line.Decimals)
	require.Equal(t, "5000000.0 USDC", line.Formatted())

	line, ok = report.Token(ausdc)
	require.True(t, ok)
	require.Equal(t, "1000.0 aEthUSDC", line.Formatted())
}

func TestInspectSecondaryNotAvailable(t *testing.T) {
	_, backend := setup(t)

	report, err := balance.Inspect(context.Background(), backend, holder, []balance.TokenRef{
		{Address: usdc, Required: true},
		{Address: ausdc, Label: "aUSDC"},
	})
	require.NoError(t, err)

	line, _ := report.Token(ausdc)
	require.False(t, line.Available())
	require.Error(t, line.Err)
	require.Equal(t, "aUSDC", line.Symbol)
	require.Equal(t, balance.NotAvailable, line.Formatted())

	line, _ = report.Token(usdc)
	require.True(t, line.Available())
	require.Equal(t, "5000000.0 USDC", line.Formatted())

	var buf bytes.Buffer
	report.Render(&buf)
	require.Contains(t, buf.String(), "5000000.0 USDC")
	require.Contains(t, buf.String(), balance.NotAvailable)
	require.Contains(t, buf.String(), "1.5 ETH")
}

func TestInspectRequiredFailure(t *testing.T) {
	chain, backend := setup(t)
	chain.SetReverting(usdc, true)
	chain.DeployToken(ausdc, "aEthUSDC", 6)

	report, err := balance.Inspect(context.Background(), backend, holder, []balance.TokenRef{
		{Address: usdc, Label: "USDC", Required: true},
		{Address: ausdc},
	})
	require.Error(t, err)
	require.NotNil(t, report)

	line, _ := report.Token(ausdc)
	require.True(t, line.Available())
	require.Equal(t, "0.0 aEthUSDC", line.Formatted())
}

func TestInspectFixedMetadata(t *testing.T) {
	_, backend := setup(t)

	report, err := balance.Inspect(context.Background(), backend, holder, []balance.TokenRef{
		{Address: usdc, Symbol: "USD Coin", Decimals: 6},
	})
	require.NoError(t, err)
	require.Equal(t, "5000000.0 USD Coin", report.Tokens[0].Formatted())
	require.Equal(t, big.NewInt(5_000_000_000_000), report.Tokens[0].Amount)
}
