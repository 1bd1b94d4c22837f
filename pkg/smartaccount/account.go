package smartaccount

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/mrz1836/quorum/pkg/chain"
	qerr "github.com/mrz1836/quorum/pkg/errors"
	"github.com/mrz1836/quorum/pkg/signer"
)

// DefaultReceiptTimeout bounds WaitTransactionReceipt when no timeout is given.
const DefaultReceiptTimeout = 2 * time.Minute

// State is an account's lifecycle stage.
type State int

// Account lifecycle. Transitions only move forward.
const (
	StateUninitialized State = iota
	StateReady
	StateDisposed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// WaitOptions tunes WaitTransactionReceipt.
type WaitOptions struct {
	// Confirmations is the number of blocks, including the one holding the
	// transaction, required before returning. Zero is treated as one.
	Confirmations uint64

	// ChainID selects the chain to wait on. Zero means the active chain.
	// Any other value must be one of the account's chain options.
	ChainID chain.ID

	// Timeout bounds the wait. Zero selects DefaultReceiptTimeout.
	Timeout time.Duration
}

// Account is a built smart account. The zero value is an uninitialized
// account on which every operation fails with ErrAccountNotInitialized.
//
// Operations on one Account are serialized: each holds the account slot for
// its full duration, including engine round trips. A call waiting for the
// slot gives up when its context is done.
type Account struct {
	semOnce  sync.Once
	sem      chan struct{}
	handle   Handle
	chains   *chain.Options
	disposed bool
	logger   LogWriter
	recorder Recorder
}

// newAccount wraps a built handle. chains is the builder's validated set.
func newAccount(h Handle, chains *chain.Options, logger LogWriter, recorder Recorder) *Account {
	return &Account{
		handle:   h,
		chains:   chains,
		logger:   logger,
		recorder: recorder,
	}
}

// State returns the account's lifecycle stage.
func (a *Account) State() State {
	release, _ := a.acquire(context.Background())
	defer release()
	return a.stateLocked()
}

// acquire takes the account slot, or returns ctx's error once ctx is done.
func (a *Account) acquire(ctx context.Context) (func(), error) {
	a.semOnce.Do(func() { a.sem = make(chan struct{}, 1) })
	select {
	case a.sem <- struct{}{}:
		return func() { <-a.sem }, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	}
}

func (a *Account) stateLocked() State {
	switch {
	case a.disposed:
		return StateDisposed
	case a.handle == nil:
		return StateUninitialized
	default:
		return StateReady
	}
}

// Address returns the account's 0x-prefixed address.
func (a *Account) Address() (string, error) {
	var addr string
	err := a.run(context.Background(), "address", func(_ context.Context, h Handle) error {
		addr = h.Address().Hex()
		return nil
	})
	return addr, err
}

// IsDeployed reports whether the account contract exists on the active chain.
func (a *Account) IsDeployed(ctx context.Context) (bool, error) {
	var deployed bool
	err := a.run(ctx, "is_deployed", func(ctx context.Context, h Handle) error {
		var err error
		deployed, err = h.IsDeployed(ctx)
		return engineErr("is_deployed", err)
	})
	return deployed, err
}

// ChainID returns the active chain. An engine-reported id outside the chain
// registry fails with ErrUnknownChain.
func (a *Account) ChainID() (chain.ID, error) {
	var id chain.ID
	err := a.run(context.Background(), "chain_id", func(_ context.Context, h Handle) error {
		var err error
		id, err = chain.Lookup(h.Chain())
		return err
	})
	return id, err
}

// SwitchChain makes id the active chain for later calls. A chain that was not
// among the account's chain options fails with ErrChainNotConfigured and the
// active chain is left unchanged.
func (a *Account) SwitchChain(id chain.ID) error {
	return a.run(context.Background(), "switch_chain", func(_ context.Context, h Handle) error {
		if !a.chains.Has(id) {
			return qerr.WithDetails(qerr.ErrChainNotConfigured, map[string]string{
				"chain_id":   strconv.FormatUint(id.Uint64(), 10),
				"configured": joinIDs(a.chains.IDs()),
			})
		}
		return engineErr("switch_chain", h.SwitchChain(id.Uint64()))
	})
}

// Nonce returns the account's replay counter on the active chain.
func (a *Account) Nonce(ctx context.Context) (uint64, error) {
	var nonce uint64
	err := a.run(ctx, "nonce", func(ctx context.Context, h Handle) error {
		var err error
		nonce, err = h.Nonce(ctx)
		return engineErr("nonce", err)
	})
	return nonce, err
}

// SignMessage signs msg with the account's keys and returns a 0x-prefixed hex
// signature. A nil msg returns nil without signing; an empty non-nil msg is
// signed.
func (a *Account) SignMessage(ctx context.Context, msg []byte) (*string, error) {
	var out *string
	err := a.run(ctx, "sign_message", func(ctx context.Context, h Handle) error {
		if msg == nil {
			return nil
		}
		sig, err := h.SignMessage(ctx, msg)
		if err != nil {
			return engineErr("sign_message", err)
		}
		encoded := signer.EncodeSignature(sig)
		out = &encoded
		return nil
	})
	return out, err
}

// SignText signs the UTF-8 bytes of msg. A nil msg returns nil; a pointer to
// the empty string is signed.
func (a *Account) SignText(ctx context.Context, msg *string) (*string, error) {
	if msg == nil {
		return a.SignMessage(ctx, nil)
	}
	return a.SignMessage(ctx, []byte(*msg))
}

// SignTypedData signs an EIP-712 payload with the account's keys.
func (a *Account) SignTypedData(ctx context.Context, data *apitypes.TypedData) (string, error) {
	var out string
	err := a.run(ctx, "sign_typed_data", func(ctx context.Context, h Handle) error {
		if data == nil {
			return qerr.WithDetails(qerr.ErrInvalidInput, map[string]string{
				"reason": "typed data is nil",
			})
		}
		sig, err := h.SignTypedData(ctx, data)
		if err != nil {
			return engineErr("sign_typed_data", err)
		}
		out = signer.EncodeSignature(sig)
		return nil
	})
	return out, err
}

// SimulateTransaction dry-runs a single transaction.
func (a *Account) SimulateTransaction(ctx context.Context, tx Transaction, opts SimulateOptions) (*SimulateResult, error) {
	return a.SimulateTransactions(ctx, []Transaction{tx}, opts)
}

// SimulateTransactions dry-runs a batch without submitting it. An empty batch
// fails with ErrEmptyBatch.
func (a *Account) SimulateTransactions(ctx context.Context, txs []Transaction, opts SimulateOptions) (*SimulateResult, error) {
	var out *SimulateResult
	err := a.run(ctx, "simulate", func(ctx context.Context, h Handle) error {
		if err := validateBatch(txs); err != nil {
			return err
		}
		var err error
		out, err = h.SimulateTransactions(ctx, txs, opts)
		return engineErr("simulate", err)
	})
	return out, err
}

// SendTransaction submits a single transaction.
func (a *Account) SendTransaction(ctx context.Context, tx Transaction, opts SendOptions) (common.Hash, error) {
	return a.SendTransactions(ctx, []Transaction{tx}, opts)
}

// SendTransactions submits a batch as one authorized operation and returns
// its transaction hash. An empty batch fails with ErrEmptyBatch.
func (a *Account) SendTransactions(ctx context.Context, txs []Transaction, opts SendOptions) (common.Hash, error) {
	var hash common.Hash
	err := a.run(ctx, "send", func(ctx context.Context, h Handle) error {
		if err := validateBatch(txs); err != nil {
			return err
		}
		var err error
		hash, err = h.SendTransactions(ctx, txs, opts)
		if err != nil {
			return engineErr("send", err)
		}
		a.log().Debug("batch submitted: hash=%s txs=%d", hash.Hex(), len(txs))
		return nil
	})
	return hash, err
}

// SignTransaction is not supported and always fails with ErrNotImplemented.
func (a *Account) SignTransaction(ctx context.Context, _ []Transaction, _ SendOptions) ([]byte, error) {
	err := a.run(ctx, "sign_transaction", func(context.Context, Handle) error {
		return qerr.WithDetails(qerr.ErrNotImplemented, map[string]string{"operation": "sign_transaction"})
	})
	return nil, err
}

// SendSignedTransaction is not supported and always fails with ErrNotImplemented.
func (a *Account) SendSignedTransaction(ctx context.Context, _ []byte) (common.Hash, error) {
	err := a.run(ctx, "send_signed_transaction", func(context.Context, Handle) error {
		return qerr.WithDetails(qerr.ErrNotImplemented, map[string]string{"operation": "send_signed_transaction"})
	})
	return common.Hash{}, err
}

// WaitTransactionReceipt waits for hash to be mined. When the wait exceeds
// opts.Timeout it returns a nil receipt and ErrTimeout. Cancelling ctx aborts
// the wait with ctx's error.
func (a *Account) WaitTransactionReceipt(ctx context.Context, hash common.Hash, opts WaitOptions) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := a.run(ctx, "wait_receipt", func(ctx context.Context, h Handle) error {
		if hash == (common.Hash{}) {
			return qerr.WithDetails(qerr.ErrInvalidInput, map[string]string{
				"reason": "transaction hash is empty",
			})
		}

		target := chain.ID(h.Chain())
		if opts.ChainID != 0 {
			if !a.chains.Has(opts.ChainID) {
				return qerr.WithDetails(qerr.ErrChainNotConfigured, map[string]string{
					"chain_id":   strconv.FormatUint(opts.ChainID.Uint64(), 10),
					"configured": joinIDs(a.chains.IDs()),
				})
			}
			target = opts.ChainID
		}
		confirmations := opts.Confirmations
		if confirmations == 0 {
			confirmations = 1
		}
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultReceiptTimeout
		}

		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		r, err := h.WaitForTransaction(waitCtx, target.Uint64(), hash, confirmations)
		switch {
		case err == nil && r != nil:
			receipt = r
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case err == nil, errors.Is(err, context.DeadlineExceeded):
			return qerr.WithDetails(qerr.ErrTimeout, map[string]string{
				"hash":    hash.Hex(),
				"chain":   target.String(),
				"timeout": timeout.String(),
			})
		default:
			return engineErr("wait_receipt", err)
		}
	})
	return receipt, err
}

// KeysetJSON serializes the account's roster in the form WithKeysetJSON accepts.
func (a *Account) KeysetJSON() (string, error) {
	var out string
	err := a.run(context.Background(), "keyset_json", func(_ context.Context, h Handle) error {
		var err error
		out, err = h.KeysetJSON()
		return engineErr("keyset_json", err)
	})
	return out, err
}

// Close releases the engine handle. The account is disposed afterwards even
// if the engine reports an error. Closing a disposed or uninitialized account
// is a no-op.
func (a *Account) Close() error {
	release, _ := a.acquire(context.Background())
	defer release()

	if a.handle == nil {
		return nil
	}
	err := a.handle.Close()
	a.handle = nil
	a.disposed = true
	a.log().Debug("account disposed")
	return engineErr("close", err)
}

// run serializes fn against the account and requires the Ready state.
func (a *Account) run(ctx context.Context, op string, fn func(context.Context, Handle) error) error {
	release, err := a.acquire(ctx)
	defer release()
	if err != nil {
		return err
	}

	if a.stateLocked() != StateReady {
		return qerr.WithDetails(qerr.ErrAccountNotInitialized, map[string]string{
			"operation": op,
			"state":     a.stateLocked().String(),
		})
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	err = fn(ctx, a.handle)
	a.rec().RecordAccountOp(op, time.Since(start), err)
	if err != nil {
		a.log().Error("%s failed: %v", op, err)
	}
	return err
}

func (a *Account) log() LogWriter {
	if a.logger == nil {
		return nopLogger{}
	}
	return a.logger
}

func (a *Account) rec() Recorder {
	if a.recorder == nil {
		return nopRecorder{}
	}
	return a.recorder
}

func engineErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return qerr.Engine(op, err)
}

func joinIDs(ids []chain.ID) string {
	out := make([]byte, 0, len(ids)*6)
	for i, id := range ids {
		if i > 0 {
			out = append(out, ',')
		}
		out = strconv.AppendUint(out, id.Uint64(), 10)
	}
	return string(out)
}
