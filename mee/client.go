// Package mee is a client for a Modular Execution Environment node: it
// requests fusion quotes for a multichain smart account, submits them for
// bundled execution and follows the resulting supertransaction.
package mee

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/clydemeng/mee-fusion/nexus"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultTimeout      = 30 * time.Second
	maxUnknownPolls     = 10
	scanURL             = "https://meescan.biconomy.io/details/"
)

var (
	// ErrQuoteConsumed is returned when a quote is submitted a second time.
	ErrQuoteConsumed = errors.New("mee: quote already executed")
	// ErrEmptyInstructions is returned for a quote request without calls.
	ErrEmptyInstructions = errors.New("mee: quote request has no calls")
)

// HTTPError is a non-2xx answer from the node.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("mee: %s %s: http %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Options configures a Client.
type Options struct {
	URL          string // node base URL, e.g. http://localhost:3000/v3
	APIKey       string // optional
	Account      *nexus.MultichainAccount
	PollInterval time.Duration
	HTTPClient   *http.Client
	OnClose      func() // releases resources owned alongside the client
}

// Client talks to one MEE node on behalf of one multichain account.
type Client struct {
	url     string
	apiKey  string
	account *nexus.MultichainAccount
	poll    time.Duration
	http    *http.Client
	onClose func()
}

// New creates a client. It does not contact the node.
func New(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("mee: empty node URL")
	}
	if opts.Account == nil {
		return nil, errors.New("mee: nil account")
	}
	c := &Client{
		url:     strings.TrimRight(opts.URL, "/"),
		apiKey:  opts.APIKey,
		account: opts.Account,
		poll:    opts.PollInterval,
		http:    opts.HTTPClient,
		onClose: opts.OnClose,
	}
	if c.poll <= 0 {
		c.poll = defaultPollInterval
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultTimeout}
	}
	return c, nil
}

// URL returns the node base URL.
func (c *Client) URL() string { return c.url }

// Account returns the smart account the client acts for.
func (c *Client) Account() *nexus.MultichainAccount { return c.account }

// Close releases idle connections and anything registered through
// Options.OnClose.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
	if c.onClose != nil {
		c.onClose()
	}
}

// Info fetches the node's /info document.
func (c *Client) Info(ctx context.Context) (*NodeInfo, error) {
	var info NodeInfo
	if err := c.send(ctx, http.MethodGet, "/info", nil, &info, false); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetFusionQuote asks the node to price the given instructions, funded by the
// trigger transfer.
func (c *Client) GetFusionQuote(ctx context.Context, req FusionQuoteRequest) (*FusionQuote, error) {
	calls := 0
	for _, ins := range req.Instructions {
		if _, ok := c.account.AddressOn(ins.ChainID); !ok {
			return nil, fmt.Errorf("mee: account not configured on chain %d", ins.ChainID)
		}
		calls += len(ins.Calls)
	}
	if calls == 0 {
		return nil, ErrEmptyInstructions
	}
	body := quoteRequest{
		Mode:         "fusion",
		Owner:        c.account.Owner(),
		Trigger:      req.Trigger,
		FeeToken:     req.FeeToken,
		Instructions: req.Instructions,
	}
	for _, d := range c.account.Deployments() {
		body.Account = append(body.Account, deployment{ChainID: d.ChainID, Address: d.Address})
	}

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/quote", body, &raw); err != nil {
		return nil, err
	}
	var head quoteResponse
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("mee: decode quote: %w", err)
	}
	if head.Hash == (common.Hash{}) {
		return nil, errors.New("mee: quote without hash")
	}
	log.Debug("Received fusion quote", "hash", head.Hash, "calls", calls)
	return &FusionQuote{Hash: head.Hash, Raw: raw, Request: req}, nil
}

// ExecuteFusionQuote signs the quote hash with the account owner and submits
// the quote. The returned hash identifies the whole bundle. A quote can be
// executed once.
func (c *Client) ExecuteFusionQuote(ctx context.Context, quote *FusionQuote) (common.Hash, error) {
	if quote == nil {
		return common.Hash{}, errors.New("mee: nil quote")
	}
	if quote.consumed {
		return common.Hash{}, ErrQuoteConsumed
	}
	sig, err := c.account.SignMessage(quote.Hash.Bytes())
	if err != nil {
		return common.Hash{}, fmt.Errorf("mee: sign quote: %w", err)
	}
	quote.consumed = true

	var resp execResponse
	if err := c.do(ctx, http.MethodPost, "/exec", execRequest{Quote: quote.Raw, Signature: sig}, &resp); err != nil {
		return common.Hash{}, err
	}
	if resp.Hash == (common.Hash{}) {
		return common.Hash{}, errors.New("mee: execution returned no hash")
	}
	return resp.Hash, nil
}

// GetSupertransactionReceipt fetches the current state of a supertransaction.
func (c *Client) GetSupertransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	var r Receipt
	if err := c.do(ctx, http.MethodGet, "/explorer/"+hash.Hex(), nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// WaitForSupertransactionReceipt polls until the supertransaction reaches a
// terminal status. A successful one is additionally held until it has at
// least the requested number of confirmations. Failed statuses are returned
// as receipts, not errors. A status the client does not recognize is polled
// again, and returned as is after maxUnknownPolls consecutive answers.
func (c *Client) WaitForSupertransactionReceipt(ctx context.Context, hash common.Hash, confirmations uint64) (*Receipt, error) {
	limiter := rate.NewLimiter(rate.Every(c.poll), 1)
	unknown := 0
	for {
		if err := limiter.Wait(ctx); err != nil {
			// The next poll falls after the deadline.
			<-ctx.Done()
			return nil, ctx.Err()
		}
		r, err := c.GetSupertransactionReceipt(ctx, hash)
		if err != nil {
			return nil, err
		}
		if r.TransactionStatus.Terminal() {
			if r.TransactionStatus != StatusMinedSuccess || r.Confirmations >= confirmations {
				return r, nil
			}
		}
		if r.TransactionStatus == StatusUnknown {
			if unknown++; unknown >= maxUnknownPolls {
				log.Warn("Giving up on unrecognized supertransaction status", "hash", hash, "status", r.StatusText())
				return r, nil
			}
		} else {
			unknown = 0
		}
		log.Debug("Waiting for supertransaction", "hash", hash, "status", r.StatusText(), "confirmations", r.Confirmations)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	return c.send(ctx, method, path, body, result, true)
}

// send performs one request. The API key is attached only when authenticated
// is set; the /info health document is public.
func (c *Client) send(ctx context.Context, method, path string, body, result interface{}, authenticated bool) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("mee: marshal %s body: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url+path, reader)
	if err != nil {
		return fmt.Errorf("mee: create request: %w", err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated && c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("mee: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	log.Trace("MEE request", "method", method, "path", path, "id", reqID, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &HTTPError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("mee: decode %s response: %w", path, err)
		}
	}
	return nil
}

// ScanLink returns the explorer page of a supertransaction.
func ScanLink(hash common.Hash) string {
	return scanURL + hash.Hex()
}
