package evm

import (
	"context"
	"errors"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/mrz1836/quorum/internal/relayer"
	"github.com/mrz1836/quorum/pkg/chain"
	qerr "github.com/mrz1836/quorum/pkg/errors"
	"github.com/mrz1836/quorum/pkg/keyset"
	"github.com/mrz1836/quorum/pkg/signer"
	"github.com/mrz1836/quorum/pkg/smartaccount"
)

// ErrClosed is returned by a handle after Close.
var ErrClosed = errors.New("evm: account handle closed")

type handle struct {
	engine    *Engine
	keyset    *keyset.Keyset
	master    signer.Binary
	options   []chain.Option
	serverURL string
	address   common.Address

	mu       sync.Mutex
	active   chain.ID
	backends map[chain.ID]Backend
	relayers map[chain.ID]Relayer
	closed   bool
}

func (h *handle) Address() common.Address {
	return h.address
}

func (h *handle) Chain() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active.Uint64()
}

func (h *handle) SwitchChain(id uint64) error {
	target, err := chain.Lookup(id)
	if err != nil {
		return err
	}
	if _, ok := h.option(target); !ok {
		return qerr.WithDetails(qerr.ErrChainNotConfigured, map[string]string{"chain_id": target.String()})
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	h.active = target
	return nil
}

func (h *handle) IsDeployed(ctx context.Context) (bool, error) {
	id := h.activeChain()
	b, err := h.backend(ctx, id)
	if err != nil {
		return false, err
	}

	start := time.Now()
	code, err := b.CodeAt(ctx, h.address, nil)
	h.observe(id, start, err)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

func (h *handle) Nonce(ctx context.Context) (uint64, error) {
	id := h.activeChain()
	b, err := h.backend(ctx, id)
	if err != nil {
		return 0, err
	}
	return h.nonce(ctx, id, b)
}

// nonce reads getNonce(). An undeployed account has no code and reports 0.
func (h *handle) nonce(ctx context.Context, id chain.ID, b Backend) (uint64, error) {
	start := time.Now()
	ret, err := b.CallContract(ctx, ethereum.CallMsg{To: &h.address, Data: packGetNonce()}, nil)
	h.observe(id, start, err)
	if err != nil {
		return 0, err
	}
	if len(ret) == 0 {
		return 0, nil
	}
	return unpackNonce(ret)
}

func (h *handle) SignMessage(_ context.Context, msg []byte) ([]byte, error) {
	if h.master == nil {
		return nil, qerr.ErrNoSigner
	}
	return h.master.SignMessage(msg)
}

// SignTypedData signs the EIP-712 digest of data with the master key. The
// digest is already domain separated, so it is signed without a prefix.
func (h *handle) SignTypedData(_ context.Context, data *apitypes.TypedData) ([]byte, error) {
	if h.master == nil {
		return nil, qerr.ErrNoSigner
	}
	digest, _, err := apitypes.TypedDataAndHash(*data)
	if err != nil {
		return nil, qerr.Wrap(qerr.ErrInvalidInput, "typed data: %v", err)
	}
	return h.master.SignHash(common.BytesToHash(digest))
}

func (h *handle) SimulateTransactions(ctx context.Context, txs []smartaccount.Transaction, opts smartaccount.SimulateOptions) (*smartaccount.SimulateResult, error) {
	id := h.activeChain()
	b, err := h.backend(ctx, id)
	if err != nil {
		return nil, err
	}

	res := &smartaccount.SimulateResult{Success: true, Results: make([]smartaccount.TxResult, len(txs))}
	calls := toCalls(txs)
	var total uint64
	for i, c := range calls {
		to := c.To
		start := time.Now()
		gas, err := b.EstimateGas(ctx, ethereum.CallMsg{From: h.address, To: &to, Value: c.Value, Data: c.Data})
		h.observe(id, start, err)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			res.Success = false
			res.Results[i] = smartaccount.TxResult{Error: err.Error()}
			continue
		}
		res.Results[i] = smartaccount.TxResult{Success: true, GasUsed: gas}
		total += gas
	}
	res.GasLimit = total + executeOverhead

	start := time.Now()
	price, err := b.SuggestGasPrice(ctx)
	h.observe(id, start, err)
	if err != nil {
		return nil, err
	}

	fees, err := h.feeOptions(ctx, id, b, calls, res.GasLimit, price)
	if err != nil {
		return nil, err
	}
	res.FeeOptions = filterFees(fees, opts.Token)
	return res, nil
}

// feeOptions prefers the relayer's quotes. Without a relayer, or when the
// relayer fails, it falls back to a native-currency estimate; a relayer
// failure is reported in that option's Error.
func (h *handle) feeOptions(ctx context.Context, id chain.ID, b Backend, calls []call, gasLimit uint64, price *big.Int) ([]smartaccount.FeeOption, error) {
	info, _ := id.Info()
	native := smartaccount.FeeOption{
		Name:     info.Name,
		Symbol:   info.Symbol,
		Decimals: uint8(info.Decimals), //nolint:gosec // Registry decimals are small
		Amount:   new(big.Int).Mul(new(big.Int).SetUint64(gasLimit), price),
	}

	rel, err := h.relayer(id)
	if err != nil {
		return []smartaccount.FeeOption{native}, nil //nolint:nilerr // No relayer means native only
	}

	nonce, err := h.nonce(ctx, id, b)
	if err != nil {
		return nil, err
	}
	data, err := packExecute(calls, nonce, nil)
	if err != nil {
		return nil, err
	}

	quotes, err := rel.FeeOptions(ctx, relayer.FeeQuery{
		ChainID: hexutil.Uint64(id.Uint64()),
		Wallet:  h.address,
		Data:    data,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		h.engine.logger.Error("evm: fee quote on %s failed: %v", id, err)
		native.Error = err.Error()
		return []smartaccount.FeeOption{native}, nil
	}

	out := make([]smartaccount.FeeOption, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, fromWireFee(q))
	}
	return out, nil
}

func filterFees(fees []smartaccount.FeeOption, token *common.Address) []smartaccount.FeeOption {
	if token == nil {
		return fees
	}
	out := make([]smartaccount.FeeOption, 0, len(fees))
	for _, f := range fees {
		if f.Token == *token {
			out = append(out, f)
		}
	}
	return out
}

func (h *handle) SendTransactions(ctx context.Context, txs []smartaccount.Transaction, opts smartaccount.SendOptions) (common.Hash, error) {
	if h.master == nil {
		return common.Hash{}, qerr.ErrNoSigner
	}

	id := h.activeChain()
	rel, err := h.relayer(id)
	if err != nil {
		return common.Hash{}, err
	}
	b, err := h.backend(ctx, id)
	if err != nil {
		return common.Hash{}, err
	}

	nonce, err := h.nonce(ctx, id, b)
	if err != nil {
		return common.Hash{}, err
	}
	calls := toCalls(txs)
	digest, err := batchDigest(id.Uint64(), h.address, nonce, calls)
	if err != nil {
		return common.Hash{}, err
	}
	sig, err := h.master.SignMessage(digest.Bytes())
	if err != nil {
		return common.Hash{}, err
	}
	data, err := packExecute(calls, nonce, sig)
	if err != nil {
		return common.Hash{}, err
	}

	hash, err := rel.SendTransaction(ctx, relayer.Submission{
		ChainID: hexutil.Uint64(id.Uint64()),
		Wallet:  h.address,
		Data:    data,
		Fee:     toWireFee(opts.Fee),
	})
	if err != nil {
		return common.Hash{}, err
	}

	h.engine.logger.Debug("evm: submitted batch of %d on %s nonce %d: %s", len(txs), id, nonce, hash.Hex())
	return hash, nil
}

// WaitForTransaction polls for the receipt until it has enough confirmations
// or ctx is done. Transient RPC failures are logged and polling continues.
func (h *handle) WaitForTransaction(ctx context.Context, chainID uint64, hash common.Hash, confirmations uint64) (*types.Receipt, error) {
	id, err := chain.Lookup(chainID)
	if err != nil {
		return nil, err
	}
	b, err := h.backend(ctx, id)
	if err != nil {
		return nil, err
	}
	if confirmations == 0 {
		confirmations = 1
	}

	ticker := time.NewTicker(h.engine.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := h.confirmedReceipt(ctx, id, b, hash, confirmations)
		switch {
		case err == nil && receipt != nil:
			return receipt, nil
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			h.engine.logger.Debug("evm: receipt poll for %s on %s: %v", hash.Hex(), id, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// confirmedReceipt returns nil, nil while the transaction is pending or short
// of confirmations.
func (h *handle) confirmedReceipt(ctx context.Context, id chain.ID, b Backend, hash common.Hash, confirmations uint64) (*types.Receipt, error) {
	start := time.Now()
	receipt, err := b.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		h.observe(id, start, nil)
		return nil, nil
	}
	h.observe(id, start, err)
	if err != nil {
		return nil, err
	}
	if confirmations == 1 || receipt.BlockNumber == nil {
		return receipt, nil
	}

	start = time.Now()
	head, err := b.BlockNumber(ctx)
	h.observe(id, start, err)
	if err != nil {
		return nil, err
	}
	if head+1 < receipt.BlockNumber.Uint64()+confirmations {
		return nil, nil
	}
	return receipt, nil
}

func (h *handle) KeysetJSON() (string, error) {
	return h.keyset.JSON()
}

func (h *handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for id, b := range h.backends {
		b.Close()
		delete(h.backends, id)
	}
	clear(h.relayers)
	return nil
}

func (h *handle) activeChain() chain.ID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

func (h *handle) option(id chain.ID) (chain.Option, bool) {
	for _, o := range h.options {
		if o.ID == id {
			return o, true
		}
	}
	return chain.Option{}, false
}

// backend returns the cached backend for id, dialing on first use. A node
// serving a different chain than configured is rejected.
func (h *handle) backend(ctx context.Context, id chain.ID) (Backend, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	if b, ok := h.backends[id]; ok {
		h.mu.Unlock()
		return b, nil
	}
	h.mu.Unlock()

	opt, ok := h.option(id)
	if !ok {
		return nil, qerr.WithDetails(qerr.ErrChainNotConfigured, map[string]string{"chain_id": id.String()})
	}

	// Dial without the lock so Chain and Close never wait on a slow node.
	b, err := h.engine.dial(ctx, opt.RPCURL)
	if err != nil {
		return nil, qerr.Wrap(qerr.ErrNetworkError, "dial %s: %v", id, err)
	}

	start := time.Now()
	served, err := b.ChainID(ctx)
	h.observe(id, start, err)
	if err != nil {
		b.Close()
		return nil, qerr.Wrap(qerr.ErrNetworkError, "chain id from %s: %v", id, err)
	}
	if !served.IsUint64() || served.Uint64() != id.Uint64() {
		b.Close()
		return nil, qerr.WithDetails(qerr.ErrConfiguration, map[string]string{
			"reason":   "rpc endpoint serves a different chain",
			"chain_id": strconv.FormatUint(id.Uint64(), 10),
			"served":   served.String(),
		})
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		b.Close()
		return nil, ErrClosed
	}
	if cached, ok := h.backends[id]; ok {
		b.Close()
		return cached, nil
	}
	h.backends[id] = b
	h.engine.logger.Debug("evm: connected %s", id)
	return b, nil
}

// relayer returns the relayer for id. The chain's own relayer endpoint wins
// over the account-wide server URL.
func (h *handle) relayer(id chain.ID) (Relayer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	if r, ok := h.relayers[id]; ok {
		return r, nil
	}

	url := h.serverURL
	if opt, ok := h.option(id); ok && opt.RelayerURL != "" {
		url = opt.RelayerURL
	}
	if url == "" {
		return nil, qerr.WithDetails(qerr.ErrConfiguration, map[string]string{
			"reason":   "no relayer endpoint for chain",
			"chain_id": id.String(),
		})
	}

	r, err := h.engine.newRelayer(url)
	if err != nil {
		return nil, err
	}
	h.relayers[id] = r
	return r, nil
}

func (h *handle) observe(id chain.ID, start time.Time, err error) {
	h.engine.metrics.RecordRPCCall(id.String(), time.Since(start), err)
}

func toWireFee(f *smartaccount.FeeOption) *relayer.Fee {
	if f == nil {
		return nil
	}
	out := &relayer.Fee{
		Token:    f.Token,
		Name:     f.Name,
		Symbol:   f.Symbol,
		Decimals: f.Decimals,
		To:       f.To,
	}
	if f.Amount != nil {
		out.Amount = (*hexutil.Big)(f.Amount)
	}
	return out
}

func fromWireFee(f relayer.Fee) smartaccount.FeeOption {
	out := smartaccount.FeeOption{
		Token:    f.Token,
		Name:     f.Name,
		Symbol:   f.Symbol,
		Decimals: f.Decimals,
		To:       f.To,
		Error:    f.Error,
	}
	if f.Amount != nil {
		out.Amount = f.Amount.ToInt()
	}
	return out
}
