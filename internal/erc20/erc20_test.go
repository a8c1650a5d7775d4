package erc20_test

import (
	"bytes"
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/clydemeng/mee-fusion/internal/chaintest"
	"github.com/clydemeng/mee-fusion/internal/erc20"
)

var (
	usdcAddr = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	holder   = common.HexToAddress("0x0D3ab14BBaD3D99F4203bd7a11aCB94882050E7e")
	pool     = common.HexToAddress("0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2")
)

func TestTokenReads(t *testing.T) {
	chain := chaintest.New()
	defer chain.Close()
	chain.DeployToken(usdcAddr, "USDC", 6)
	chain.Mint(usdcAddr, holder, big.NewInt(5_000_000_000_000))
	backend := chain.Client()
	defer backend.Close()

	token := erc20.NewToken(usdcAddr, backend)
	ctx := context.Background()

	bal, err := token.BalanceOf(ctx, holder)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(5_000_000_000_000), bal)

	dec, err := token.Decimals(ctx)
	require.NoError(t, err)
	require.Equal(t, uint8(6), dec)

	sym, err := token.Symbol(ctx)
	require.NoError(t, err)
	require.Equal(t, "USDC", sym)
	require.Equal(t, usdcAddr, token.Address())
}

func TestTokenReadsFailWithoutContract(t *testing.T) {
	chain := chaintest.New()
	defer chain.Close()
	backend := chain.Client()
	defer backend.Close()

	_, err := erc20.NewToken(usdcAddr, backend).BalanceOf(context.Background(), holder)
	require.Error(t, err)
}

func TestTokenReadsFailOnRevert(t *testing.T) {
	chain := chaintest.New()
	defer chain.Close()
	chain.DeployToken(usdcAddr, "USDC", 6)
	chain.SetReverting(usdcAddr, true)
	backend := chain.Client()
	defer backend.Close()

	_, err := erc20.NewToken(usdcAddr, backend).Symbol(context.Background())
	require.Error(t, err)
}

func TestEncoders(t *testing.T) {
	amount := big.NewInt(1_000_000_000)

	transfer, err := erc20.EncodeTransfer(holder, amount)
	require.NoError(t, err)
	require.Equal(t, []byte{0xa9, 0x05, 0x9c, 0xbb}, transfer[:4])
	require.Len(t, transfer, 4+32*2)
	require.True(t, bytes.Equal(common.LeftPadBytes(holder.Bytes(), 32), transfer[4:36]))
	require.Equal(t, amount, new(big.Int).SetBytes(transfer[36:]))

	approve, err := erc20.EncodeApprove(pool, amount)
	require.NoError(t, err)
	require.Equal(t, []byte{0x09, 0x5e, 0xa7, 0xb3}, approve[:4])

	supply, err := erc20.EncodeSupply(usdcAddr, amount, holder, 0)
	require.NoError(t, err)
	require.Equal(t, []byte{0x61, 0x7b, 0xa0, 0x37}, supply[:4])
	require.Len(t, supply, 4+32*4)

	args, err := erc20.PoolABI.Methods["supply"].Inputs.Unpack(supply[4:])
	require.NoError(t, err)
	require.Equal(t, usdcAddr, args[0])
	require.Equal(t, amount, args[1])
	require.Equal(t, holder, args[2])
	require.Equal(t, uint16(0), args[3])
}
