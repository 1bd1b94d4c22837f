// Package smartaccounttest provides an in-memory account engine for tests.
//
// The stub derives a deterministic address from the keyset, signs with the
// master signer when one is configured (or with a key derived from the
// keyset otherwise), mines every sent batch instantly, and records each call
// so tests can assert ordering and serialization.
package smartaccounttest

import (
	"context"
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/mrz1836/quorum/pkg/smartaccount"
)

// ErrClosed is returned by every call on a closed handle.
var ErrClosed = errors.New("stub handle closed")

// StubGasPerTx is the gas reported for each simulated transaction.
const StubGasPerTx = 21000

// Engine is a smartaccount.Engine that builds Handles.
type Engine struct {
	// BuildErr, when set, is returned by Build.
	BuildErr error

	// BuildGate, when set, blocks Build until it is closed or ctx is done.
	BuildGate chan struct{}

	// CallDelay is slept inside every handle call, widening the window in
	// which overlapping calls would be detected.
	CallDelay time.Duration

	mu      sync.Mutex
	builds  int
	configs []*smartaccount.EngineConfig
	handles []*Handle
}

// NewEngine returns a stub engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Build implements smartaccount.Engine.
func (e *Engine) Build(ctx context.Context, cfg *smartaccount.EngineConfig) (smartaccount.Handle, error) {
	e.mu.Lock()
	e.builds++
	e.configs = append(e.configs, cfg)
	gate := e.BuildGate
	e.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.BuildErr != nil {
		return nil, e.BuildErr
	}

	h, err := newHandle(cfg, e.CallDelay)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.handles = append(e.handles, h)
	e.mu.Unlock()
	return h, nil
}

// Builds returns how many times Build was called.
func (e *Engine) Builds() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.builds
}

// LastConfig returns the most recent configuration passed to Build.
func (e *Engine) LastConfig() *smartaccount.EngineConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.configs) == 0 {
		return nil
	}
	return e.configs[len(e.configs)-1]
}

// LastHandle returns the most recently built handle.
func (e *Engine) LastHandle() *Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.handles) == 0 {
		return nil
	}
	return e.handles[len(e.handles)-1]
}

// Handle is the stub account.
type Handle struct {
	cfg     *smartaccount.EngineConfig
	key     *ecdsa.PrivateKey
	address common.Address
	delay   time.Duration

	inflight   atomic.Int32
	overlapped atomic.Bool

	mu       sync.Mutex
	chainID  uint64
	reported *uint64
	nonce    uint64
	deployed bool
	closed   bool
	block    uint64
	calls    []string
	fail     map[string]error
	receipts map[common.Hash]*types.Receipt
	pending  map[common.Hash]bool
}

// DeriveAddress returns the address the stub assigns to a keyset hash.
func DeriveAddress(keysetHash common.Hash) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("quorum-stub"), keysetHash[:])[12:])
}

func newHandle(cfg *smartaccount.EngineConfig, delay time.Duration) (*Handle, error) {
	hash := cfg.Keyset.Hash()
	key, err := crypto.ToECDSA(crypto.Keccak256(hash[:]))
	if err != nil {
		return nil, err
	}
	return &Handle{
		cfg:      cfg,
		key:      key,
		address:  DeriveAddress(hash),
		delay:    delay,
		chainID:  cfg.ActiveChain.Uint64(),
		block:    100,
		fail:     make(map[string]error),
		receipts: make(map[common.Hash]*types.Receipt),
		pending:  make(map[common.Hash]bool),
	}, nil
}

// FailWith makes every later call to op return err. Op names match the
// names in Calls.
func (h *Handle) FailWith(op string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fail[op] = err
}

// ReportChain makes Chain return id regardless of the active chain.
func (h *Handle) ReportChain(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reported = &id
}

// SetDeployed sets the value IsDeployed reports.
func (h *Handle) SetDeployed(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deployed = v
}

// HoldReceipt keeps hash unmined so waits on it block until their deadline.
func (h *Handle) HoldReceipt(hash common.Hash) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending[hash] = true
	delete(h.receipts, hash)
}

// Calls returns the operations invoked so far, in order.
func (h *Handle) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.calls))
	copy(out, h.calls)
	return out
}

// Overlapped reports whether two calls were ever in flight at once.
func (h *Handle) Overlapped() bool {
	return h.overlapped.Load()
}

// Closed reports whether Close was called.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// ActiveChain returns the chain the handle is bound to.
func (h *Handle) ActiveChain() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.chainID
}

// enter records op, flags overlap and returns the injected error, if any.
func (h *Handle) enter(op string) (func(), error) {
	if h.inflight.Add(1) > 1 {
		h.overlapped.Store(true)
	}
	done := func() { h.inflight.Add(-1) }

	if h.delay > 0 {
		time.Sleep(h.delay)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, op)
	if h.closed {
		return done, ErrClosed
	}
	return done, h.fail[op]
}

// Address implements smartaccount.Handle.
func (h *Handle) Address() common.Address {
	done, _ := h.enter("address")
	defer done()
	return h.address
}

// IsDeployed implements smartaccount.Handle.
func (h *Handle) IsDeployed(_ context.Context) (bool, error) {
	done, err := h.enter("is_deployed")
	defer done()
	if err != nil {
		return false, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.deployed, nil
}

// Chain implements smartaccount.Handle.
func (h *Handle) Chain() uint64 {
	done, _ := h.enter("chain")
	defer done()
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.reported != nil {
		return *h.reported
	}
	return h.chainID
}

// SwitchChain implements smartaccount.Handle.
func (h *Handle) SwitchChain(id uint64) error {
	done, err := h.enter("switch_chain")
	defer done()
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chainID = id
	return nil
}

// Nonce implements smartaccount.Handle.
func (h *Handle) Nonce(_ context.Context) (uint64, error) {
	done, err := h.enter("nonce")
	defer done()
	if err != nil {
		return 0, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nonce, nil
}

// SignMessage implements smartaccount.Handle.
func (h *Handle) SignMessage(_ context.Context, msg []byte) ([]byte, error) {
	done, err := h.enter("sign_message")
	defer done()
	if err != nil {
		return nil, err
	}
	if h.cfg.MasterSigner != nil {
		return h.cfg.MasterSigner.SignMessage(msg)
	}
	return signDigest(h.key, accounts.TextHash(msg))
}

// SignTypedData implements smartaccount.Handle.
func (h *Handle) SignTypedData(_ context.Context, data *apitypes.TypedData) ([]byte, error) {
	done, err := h.enter("sign_typed_data")
	defer done()
	if err != nil {
		return nil, err
	}
	digest, _, err := apitypes.TypedDataAndHash(*data)
	if err != nil {
		return nil, err
	}
	if h.cfg.MasterSigner != nil {
		return h.cfg.MasterSigner.SignHash(common.BytesToHash(digest))
	}
	return signDigest(h.key, digest)
}

// SimulateTransactions implements smartaccount.Handle.
func (h *Handle) SimulateTransactions(_ context.Context, txs []smartaccount.Transaction, _ smartaccount.SimulateOptions) (*smartaccount.SimulateResult, error) {
	done, err := h.enter("simulate")
	defer done()
	if err != nil {
		return nil, err
	}

	res := &smartaccount.SimulateResult{Success: true}
	for range txs {
		res.Results = append(res.Results, smartaccount.TxResult{Success: true, GasUsed: StubGasPerTx})
		res.GasLimit += StubGasPerTx
	}
	res.FeeOptions = []smartaccount.FeeOption{{
		Name:     "native",
		Symbol:   "ETH",
		Decimals: 18,
		Amount:   new(big.Int).SetUint64(res.GasLimit),
	}}
	return res, nil
}

// SendTransactions implements smartaccount.Handle. The batch is mined
// immediately unless its hash is held.
func (h *Handle) SendTransactions(_ context.Context, txs []smartaccount.Transaction, _ smartaccount.SendOptions) (common.Hash, error) {
	done, err := h.enter("send")
	defer done()
	if err != nil {
		return common.Hash{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], h.chainID)
	binary.BigEndian.PutUint64(buf[8:], h.nonce)
	hash := crypto.Keccak256Hash(h.address[:], buf[:])

	h.nonce++
	h.block++
	h.deployed = true
	if !h.pending[hash] {
		h.receipts[hash] = &types.Receipt{
			Status:      types.ReceiptStatusSuccessful,
			TxHash:      hash,
			BlockNumber: new(big.Int).SetUint64(h.block),
			GasUsed:     uint64(len(txs)) * StubGasPerTx,
		}
	}
	return hash, nil
}

// WaitForTransaction implements smartaccount.Handle. Unknown or held hashes
// block until ctx is done.
func (h *Handle) WaitForTransaction(ctx context.Context, _ uint64, hash common.Hash, _ uint64) (*types.Receipt, error) {
	done, err := h.enter("wait_receipt")
	defer done()
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	r, ok := h.receipts[hash]
	h.mu.Unlock()
	if ok {
		return r, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

// KeysetJSON implements smartaccount.Handle.
func (h *Handle) KeysetJSON() (string, error) {
	done, err := h.enter("keyset_json")
	defer done()
	if err != nil {
		return "", err
	}
	return h.cfg.Keyset.JSON()
}

// Close implements smartaccount.Handle.
func (h *Handle) Close() error {
	done, err := h.enter("close")
	defer done()
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// signDigest signs with v in {27, 28}.
func signDigest(key *ecdsa.PrivateKey, digest []byte) ([]byte, error) {
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}
