// Package funding moves tokens from an impersonated holder to a test account
// on an Anvil fork.
package funding

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/clydemeng/mee-fusion/internal/erc20"
	"github.com/clydemeng/mee-fusion/internal/units"
)

// TransferGasLimit is the gas limit of the funding transfer.
const TransferGasLimit = 100_000

const defaultPoll = 500 * time.Millisecond

var (
	// WhaleNativeBalance is the native balance granted to the whale for gas.
	WhaleNativeBalance = uint256.MustFromHex("0x1000000000000000000")

	// ErrInsufficientWhaleBalance is returned when the whale cannot cover the
	// transfer.
	ErrInsufficientWhaleBalance = errors.New("whale balance below transfer amount")
)

// DefaultAmount returns 1,000,000 units of a 6 decimal token.
func DefaultAmount() *big.Int { return big.NewInt(1_000_000_000_000) }

// RPC issues raw JSON-RPC calls, as *rpc.Client does.
type RPC interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// Backend reads contract state and receipts.
type Backend interface {
	bind.ContractCaller
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Request describes one funding transfer.
type Request struct {
	Token     common.Address
	Whale     common.Address
	Recipient common.Address
	Amount    *big.Int      // nil means DefaultAmount()
	Poll      time.Duration // receipt polling interval
}

// Result reports balances around the transfer.
type Result struct {
	TxHash          common.Hash
	Decimals        uint8
	Amount          *big.Int
	WhaleBefore     *big.Int
	RecipientBefore *big.Int
	RecipientAfter  *big.Int
}

// Received returns how much the recipient gained.
func (r *Result) Received() *big.Int {
	return new(big.Int).Sub(r.RecipientAfter, r.RecipientBefore)
}

// Fund impersonates the whale, tops up its native balance and transfers
// Amount of Token to the recipient. Impersonation is stopped before
// returning, also on failure.
func Fund(ctx context.Context, rpc RPC, backend Backend, req Request) (res *Result, err error) {
	amount := DefaultAmount()
	if req.Amount != nil {
		amount = new(big.Int).Set(req.Amount)
	}
	poll := req.Poll
	if poll <= 0 {
		poll = defaultPoll
	}
	token := erc20.NewToken(req.Token, backend)

	log.Info("Impersonating token holder", "whale", req.Whale)
	if err := rpc.CallContext(ctx, nil, "anvil_impersonateAccount", req.Whale); err != nil {
		return nil, fmt.Errorf("impersonate %s: %w", req.Whale, err)
	}
	defer func() {
		stopErr := rpc.CallContext(context.WithoutCancel(ctx), nil, "anvil_stopImpersonatingAccount", req.Whale)
		if stopErr != nil {
			log.Warn("Failed to stop impersonation", "whale", req.Whale, "err", stopErr)
			if err == nil {
				err = fmt.Errorf("stop impersonating %s: %w", req.Whale, stopErr)
				res = nil
			}
		}
	}()

	log.Info("Funding whale with native balance for gas", "balance", WhaleNativeBalance.Hex())
	if err := rpc.CallContext(ctx, nil, "anvil_setBalance", req.Whale, WhaleNativeBalance.Hex()); err != nil {
		return nil, fmt.Errorf("set whale balance: %w", err)
	}

	decimals, err := token.Decimals(ctx)
	if err != nil {
		return nil, err
	}
	res = &Result{Decimals: decimals, Amount: amount}
	if res.WhaleBefore, err = token.BalanceOf(ctx, req.Whale); err != nil {
		return nil, err
	}
	if res.RecipientBefore, err = token.BalanceOf(ctx, req.Recipient); err != nil {
		return nil, err
	}
	log.Info("Balances before funding", "whale", units.FormatUnits(res.WhaleBefore, decimals), "recipient", units.FormatUnits(res.RecipientBefore, decimals))

	if res.WhaleBefore.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientWhaleBalance,
			units.FormatUnits(res.WhaleBefore, decimals), units.FormatUnits(amount, decimals))
	}

	data, err := erc20.EncodeTransfer(req.Recipient, amount)
	if err != nil {
		return nil, err
	}
	tx := map[string]interface{}{
		"from": req.Whale,
		"to":   req.Token,
		"data": hexutil.Bytes(data),
		"gas":  hexutil.Uint64(TransferGasLimit),
	}
	log.Info("Transferring tokens", "to", req.Recipient, "amount", units.FormatUnits(amount, decimals))
	if err := rpc.CallContext(ctx, &res.TxHash, "eth_sendTransaction", tx); err != nil {
		return nil, fmt.Errorf("send transfer: %w", err)
	}

	receipt, err := waitMined(ctx, backend, res.TxHash, poll)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("transfer %s reverted", res.TxHash)
	}
	log.Debug("Transfer mined", "tx", res.TxHash, "block", receipt.BlockNumber, "gas", receipt.GasUsed)

	if res.RecipientAfter, err = token.BalanceOf(ctx, req.Recipient); err != nil {
		return nil, err
	}
	log.Info("Account funded", "recipient", req.Recipient, "balance", units.FormatUnits(res.RecipientAfter, decimals))
	return res, nil
}

func waitMined(ctx context.Context, backend Backend, hash common.Hash, poll time.Duration) (*types.Receipt, error) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
		receipt, err := backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("receipt of %s: %w", hash, err)
		}
		log.Trace("Transaction not yet mined", "tx", hash)
		timer.Reset(poll)
	}
}
