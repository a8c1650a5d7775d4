// Package meetest provides an in-memory MEE node for tests.
package meetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/mux"

	"github.com/clydemeng/mee-fusion/mee"
)

// QuoteRequest is the body the node receives on /quote.
type QuoteRequest struct {
	Mode    string         `json:"mode"`
	Owner   common.Address `json:"ownerAddress"`
	Account []struct {
		ChainID uint64         `json:"chainId"`
		Address common.Address `json:"address"`
	} `json:"account"`
	Trigger      mee.Trigger       `json:"trigger"`
	FeeToken     mee.FeeToken      `json:"feeToken"`
	Instructions []mee.Instruction `json:"instructions"`
}

// Node is a fake MEE node served over httptest.
type Node struct {
	*httptest.Server

	mu            sync.Mutex
	info          mee.NodeInfo
	infoStatus    int
	quoteStatus   int
	statuses      []string
	confirmations uint64
	onExecute     func(QuoteRequest) error

	quotes     map[common.Hash]QuoteRequest
	executed   []common.Hash
	polls      int
	apiKeys    []string
	requestIDs []string
}

// NewNode starts a node whose supertransactions succeed on the first poll.
func NewNode() *Node {
	n := &Node{
		info: mee.NodeInfo{
			Version: "2.1.0",
			Node:    "0x1111111111111111111111111111111111111111",
		},
		infoStatus:    http.StatusOK,
		quoteStatus:   http.StatusOK,
		statuses:      []string{mee.StatusMinedSuccess.String()},
		confirmations: 1,
		quotes:        make(map[common.Hash]QuoteRequest),
	}
	n.info.SupportedChains = []mee.ChainInfo{{ChainID: "1", Name: "Ethereum"}}
	n.info.SupportedChains[0].HealthCheck.Status = "healthy"

	router := mux.NewRouter()
	router.Use(n.track)
	router.HandleFunc("/info", n.handleInfo).Methods(http.MethodGet)
	router.HandleFunc("/quote", n.handleQuote).Methods(http.MethodPost)
	router.HandleFunc("/exec", n.handleExec).Methods(http.MethodPost)
	router.HandleFunc("/explorer/{hash}", n.handleExplorer).Methods(http.MethodGet)
	n.Server = httptest.NewServer(router)
	return n
}

// SetInfoStatus makes /info answer with the given HTTP status.
func (n *Node) SetInfoStatus(code int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.infoStatus = code
}

// SetQuoteStatus makes /quote answer with the given HTTP status.
func (n *Node) SetQuoteStatus(code int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.quoteStatus = code
}

// SetStatuses sets the status sequence returned by successive explorer polls.
// The last status repeats.
func (n *Node) SetStatuses(confirmations uint64, statuses ...mee.TransactionStatus) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = s.String()
	}
	n.SetStatusNames(confirmations, names...)
}

// SetStatusNames is SetStatuses with raw wire names, including ones the
// client does not know.
func (n *Node) SetStatusNames(confirmations uint64, names ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = names
	n.confirmations = confirmations
}

// OnExecute registers a hook run when a quote is executed. A hook error fails
// the /exec request.
func (n *Node) OnExecute(fn func(QuoteRequest) error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onExecute = fn
}

// Quotes returns the quote requests received so far.
func (n *Node) Quotes() []QuoteRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]QuoteRequest, 0, len(n.quotes))
	for _, q := range n.quotes {
		out = append(out, q)
	}
	return out
}

// Executed returns the hashes of executed quotes.
func (n *Node) Executed() []common.Hash {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]common.Hash(nil), n.executed...)
}

// Polls returns the number of explorer requests served.
func (n *Node) Polls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.polls
}

// APIKeys returns the X-API-Key headers seen, one per request.
func (n *Node) APIKeys() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.apiKeys...)
}

// RequestIDs returns the X-Request-Id headers seen, one per request.
func (n *Node) RequestIDs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.requestIDs...)
}

func (n *Node) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.mu.Lock()
		n.apiKeys = append(n.apiKeys, r.Header.Get("X-API-Key"))
		n.requestIDs = append(n.requestIDs, r.Header.Get("X-Request-Id"))
		n.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (n *Node) handleInfo(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	code, info := n.infoStatus, n.info
	n.mu.Unlock()
	if code != http.StatusOK {
		http.Error(w, "unavailable", code)
		return
	}
	writeJSON(w, info)
}

func (n *Node) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.quoteStatus != http.StatusOK {
		http.Error(w, "quote rejected", n.quoteStatus)
		return
	}
	body, _ := json.Marshal(req)
	hash := crypto.Keccak256Hash(body, []byte(fmt.Sprint(len(n.quotes))))
	n.quotes[hash] = req
	writeJSON(w, map[string]interface{}{
		"hash":        hash,
		"node":        n.info.Node,
		"paymentInfo": map[string]interface{}{"token": req.FeeToken.Address, "chainId": req.FeeToken.ChainID},
		"userOps":     req.Instructions,
	})
}

func (n *Node) handleExec(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quote     json.RawMessage `json:"quote"`
		Signature hexutil.Bytes   `json:"signature"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var head struct {
		Hash common.Hash `json:"hash"`
	}
	if err := json.Unmarshal(req.Quote, &head); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	quote, ok := n.quotes[head.Hash]
	hook := n.onExecute
	n.mu.Unlock()
	if !ok {
		http.Error(w, "unknown quote", http.StatusNotFound)
		return
	}
	if err := verify(head.Hash, req.Signature, quote.Owner); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	if hook != nil {
		if err := hook(quote); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
	}
	n.mu.Lock()
	n.executed = append(n.executed, head.Hash)
	n.mu.Unlock()
	writeJSON(w, map[string]interface{}{"hash": head.Hash})
}

func (n *Node) handleExplorer(w http.ResponseWriter, r *http.Request) {
	hash := common.HexToHash(mux.Vars(r)["hash"])

	n.mu.Lock()
	defer n.mu.Unlock()
	known := false
	for _, h := range n.executed {
		known = known || h == hash
	}
	if !known {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	idx := n.polls
	if idx >= len(n.statuses) {
		idx = len(n.statuses) - 1
	}
	n.polls++
	name := n.statuses[idx]
	var status mee.TransactionStatus
	_ = status.UnmarshalText([]byte(name))
	confirmations := uint64(0)
	if status.Terminal() {
		confirmations = n.confirmations
	}
	writeJSON(w, map[string]interface{}{
		"hash":              hash,
		"transactionStatus": name,
		"confirmations":     confirmations,
		"userOps":           []map[string]interface{}{{"chainId": 1, "executionStatus": name}},
	})
}

func verify(hash common.Hash, sig []byte, owner common.Address) error {
	if len(sig) != crypto.SignatureLength {
		return fmt.Errorf("bad signature length %d", len(sig))
	}
	rsv := append([]byte(nil), sig...)
	rsv[crypto.RecoveryIDOffset] -= 27
	pub, err := crypto.SigToPub(accounts.TextHash(hash.Bytes()), rsv)
	if err != nil {
		return err
	}
	if signer := crypto.PubkeyToAddress(*pub); signer != owner {
		return fmt.Errorf("quote signed by %s, want %s", signer, owner)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
