package mee_test

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/clydemeng/mee-fusion/internal/chaintest"
	"github.com/clydemeng/mee-fusion/mee"
	"github.com/clydemeng/mee-fusion/mee/meetest"
	"github.com/clydemeng/mee-fusion/nexus"
)

var (
	factory = common.HexToAddress("0xfac7000000000000000000000000000000000001")
	usdc    = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
)

func newClient(t *testing.T, node *meetest.Node, apiKey string) *mee.Client {
	t.Helper()
	chain := chaintest.New()
	chain.DeployFactory(factory)
	backend := chain.Client()
	t.Cleanup(func() {
		backend.Close()
		chain.Close()
	})

	key, _ := crypto.HexToECDSA("8a1f9a8f95be41cd7ccb6168179afb4504aefe388d1e14474d32c45c72ce7b7a")
	account, err := nexus.ToMultichainAccount(context.Background(), key, []nexus.ChainConfig{
		{ChainID: 1, Backend: backend, Factory: factory},
	})
	require.NoError(t, err)

	client, err := mee.New(mee.Options{URL: node.URL + "/", APIKey: apiKey, Account: account, PollInterval: time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func quoteRequest() mee.FusionQuoteRequest {
	amount := big.NewInt(1_000_000_000)
	return mee.FusionQuoteRequest{
		Trigger:  mee.Trigger{ChainID: 1, TokenAddress: usdc, Amount: amount},
		FeeToken: mee.FeeToken{Address: usdc, ChainID: 1},
		Instructions: []mee.Instruction{{
			ChainID: 1,
			Calls:   []mee.Call{{To: usdc, Data: []byte{0xa9, 0x05, 0x9c, 0xbb}, Value: new(big.Int)}},
		}},
	}
}

func TestInfo(t *testing.T) {
	node := meetest.NewNode()
	defer node.Close()
	client := newClient(t, node, "")

	info, err := client.Info(context.Background())
	require.NoError(t, err)
	require.Equal(t, "2.1.0", info.Version)
	require.Equal(t, "healthy", info.HealthStatus())

	node.SetInfoStatus(http.StatusServiceUnavailable)
	_, err = client.Info(context.Background())
	var httpErr *mee.HTTPError
	require.True(t, errors.As(err, &httpErr))
	require.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
	require.Equal(t, "/info", httpErr.Path)
}

func TestHealthStatusUnknown(t *testing.T) {
	require.Equal(t, "unknown", (&mee.NodeInfo{}).HealthStatus())
	require.Equal(t, "unknown", (*mee.NodeInfo)(nil).HealthStatus())
}

func TestQuoteExecuteWait(t *testing.T) {
	node := meetest.NewNode()
	defer node.Close()
	client := newClient(t, node, "secret")
	ctx := context.Background()

	quote, err := client.GetFusionQuote(ctx, quoteRequest())
	require.NoError(t, err)
	require.NotEqual(t, common.Hash{}, quote.Hash)
	require.False(t, quote.Consumed())

	quotes := node.Quotes()
	require.Len(t, quotes, 1)
	require.Equal(t, "fusion", quotes[0].Mode)
	require.Equal(t, client.Account().Owner(), quotes[0].Owner)
	nexusAddr, ok := client.Account().AddressOn(1)
	require.True(t, ok)
	require.Equal(t, nexusAddr, quotes[0].Account[0].Address)
	require.Equal(t, big.NewInt(1_000_000_000), quotes[0].Trigger.Amount)

	hash, err := client.ExecuteFusionQuote(ctx, quote)
	require.NoError(t, err)
	require.Equal(t, quote.Hash, hash)
	require.True(t, quote.Consumed())

	_, err = client.ExecuteFusionQuote(ctx, quote)
	require.ErrorIs(t, err, mee.ErrQuoteConsumed)
	require.Len(t, node.Executed(), 1)

	receipt, err := client.WaitForSupertransactionReceipt(ctx, hash, 1)
	require.NoError(t, err)
	require.True(t, receipt.Succeeded())
	require.Equal(t, uint64(1), receipt.Confirmations)

	for _, key := range node.APIKeys() {
		require.Equal(t, "secret", key)
	}
	for _, id := range node.RequestIDs() {
		require.NotEmpty(t, id)
	}
}

func TestQuoteValidation(t *testing.T) {
	node := meetest.NewNode()
	defer node.Close()
	client := newClient(t, node, "")

	empty := quoteRequest()
	empty.Instructions[0].Calls = nil
	_, err := client.GetFusionQuote(context.Background(), empty)
	require.ErrorIs(t, err, mee.ErrEmptyInstructions)

	otherChain := quoteRequest()
	otherChain.Instructions[0].ChainID = 10
	_, err = client.GetFusionQuote(context.Background(), otherChain)
	require.Error(t, err)

	node.SetQuoteStatus(http.StatusBadRequest)
	_, err = client.GetFusionQuote(context.Background(), quoteRequest())
	var httpErr *mee.HTTPError
	require.True(t, errors.As(err, &httpErr))
	require.Empty(t, node.Quotes())
}

func TestWaitPollsUntilTerminal(t *testing.T) {
	node := meetest.NewNode()
	defer node.Close()
	node.SetStatuses(1, mee.StatusPending, mee.StatusMining, mee.StatusMinedSuccess)
	client := newClient(t, node, "")
	ctx := context.Background()

	quote, err := client.GetFusionQuote(ctx, quoteRequest())
	require.NoError(t, err)
	hash, err := client.ExecuteFusionQuote(ctx, quote)
	require.NoError(t, err)

	receipt, err := client.WaitForSupertransactionReceipt(ctx, hash, 1)
	require.NoError(t, err)
	require.Equal(t, mee.StatusMinedSuccess, receipt.TransactionStatus)
	require.Equal(t, 3, node.Polls())
}

func TestWaitReturnsFailedStatus(t *testing.T) {
	node := meetest.NewNode()
	defer node.Close()
	node.SetStatuses(0, mee.StatusMining, mee.StatusMinedFail)
	client := newClient(t, node, "")
	ctx := context.Background()

	quote, err := client.GetFusionQuote(ctx, quoteRequest())
	require.NoError(t, err)
	hash, err := client.ExecuteFusionQuote(ctx, quote)
	require.NoError(t, err)

	receipt, err := client.WaitForSupertransactionReceipt(ctx, hash, 1)
	require.NoError(t, err)
	require.False(t, receipt.Succeeded())
	require.Equal(t, "MINED_FAIL", receipt.TransactionStatus.String())
}

func TestWaitSurvivesUnrecognizedStatus(t *testing.T) {
	node := meetest.NewNode()
	defer node.Close()
	node.SetStatusNames(1, "NOT_FOUND", "QUEUED", "MINED_SUCCESS")
	client := newClient(t, node, "")
	ctx := context.Background()

	quote, err := client.GetFusionQuote(ctx, quoteRequest())
	require.NoError(t, err)
	hash, err := client.ExecuteFusionQuote(ctx, quote)
	require.NoError(t, err)

	receipt, err := client.WaitForSupertransactionReceipt(ctx, hash, 1)
	require.NoError(t, err)
	require.True(t, receipt.Succeeded())
	require.Equal(t, 3, node.Polls())
}

func TestWaitGivesUpOnUnrecognizedStatus(t *testing.T) {
	node := meetest.NewNode()
	defer node.Close()
	node.SetStatusNames(0, "NOT_FOUND")
	client := newClient(t, node, "")
	ctx := context.Background()

	quote, err := client.GetFusionQuote(ctx, quoteRequest())
	require.NoError(t, err)
	hash, err := client.ExecuteFusionQuote(ctx, quote)
	require.NoError(t, err)

	receipt, err := client.WaitForSupertransactionReceipt(ctx, hash, 1)
	require.NoError(t, err)
	require.False(t, receipt.Succeeded())
	require.Equal(t, mee.StatusUnknown, receipt.TransactionStatus)
	require.Equal(t, "NOT_FOUND", receipt.StatusText())
	require.Equal(t, 10, node.Polls())
}

func TestInfoOmitsAPIKey(t *testing.T) {
	node := meetest.NewNode()
	defer node.Close()
	client := newClient(t, node, "secret")
	ctx := context.Background()

	_, err := client.Info(ctx)
	require.NoError(t, err)
	_, err = client.GetFusionQuote(ctx, quoteRequest())
	require.NoError(t, err)
	require.Equal(t, []string{"", "secret"}, node.APIKeys())
}

func TestWaitHonoursContext(t *testing.T) {
	node := meetest.NewNode()
	defer node.Close()
	node.SetStatuses(0, mee.StatusPending)
	client := newClient(t, node, "")

	quote, err := client.GetFusionQuote(context.Background(), quoteRequest())
	require.NoError(t, err)
	hash, err := client.ExecuteFusionQuote(context.Background(), quote)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.WaitForSupertransactionReceipt(ctx, hash, 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScanLink(t *testing.T) {
	hash := common.HexToHash("0x01")
	require.Equal(t, "https://meescan.biconomy.io/details/"+hash.Hex(), mee.ScanLink(hash))
}
