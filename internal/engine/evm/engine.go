// Package evm implements the account engine on top of EVM JSON-RPC nodes and
// a relayer service.
//
// The account address is derived counterfactually with CREATE2 from the
// keyset hash, so it is known before deployment and identical on every chain.
// Reads go to the chain's RPC endpoint. Batches are authorized by the master
// key and submitted through the relayer, which pays gas and deploys the
// account on first use.
package evm

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/quorum/internal/metrics"
	"github.com/mrz1836/quorum/internal/relayer"
	"github.com/mrz1836/quorum/pkg/chain"
	qerr "github.com/mrz1836/quorum/pkg/errors"
	"github.com/mrz1836/quorum/pkg/smartaccount"
)

// DefaultFactory is the EIP-2470 singleton factory.
//
//nolint:gochecknoglobals // Well-known deployment address
var DefaultFactory = common.HexToAddress("0xce0042B868300000d44A59004Da54A005ffdcf9f")

// DefaultPollInterval is how often receipts are polled while waiting.
const DefaultPollInterval = 2 * time.Second

// executeOverhead is the gas the account contract spends around the batch
// itself (signature check, nonce bump, loop).
const executeOverhead = 50_000

// LogWriter receives engine diagnostics.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

// Relayer submits signed batches and quotes fees.
// *relayer.Client satisfies it.
type Relayer interface {
	SendTransaction(ctx context.Context, sub relayer.Submission) (common.Hash, error)
	FeeOptions(ctx context.Context, q relayer.FeeQuery) ([]relayer.Fee, error)
}

// RelayerFunc opens a Relayer for an endpoint.
type RelayerFunc func(url string) (Relayer, error)

// Options configures an Engine.
type Options struct {
	// Factory deploys accounts. Zero means DefaultFactory.
	Factory common.Address

	// InitCodeHash is the keccak256 of the account proxy init code. Required.
	InitCodeHash common.Hash

	// Dial opens chain backends. Nil means DialEthclient.
	Dial DialFunc

	// NewRelayer opens relayers. Nil means a relayer.Client sharing RateLimiter.
	NewRelayer RelayerFunc

	RateLimiter *relayer.RateLimiter

	// Retry and UserAgent apply to the default relayer client.
	Retry     *relayer.RetryConfig
	UserAgent string

	PollInterval time.Duration
	Logger       LogWriter
	Metrics      *metrics.Metrics
}

// Engine builds account handles.
type Engine struct {
	factory      common.Address
	initCodeHash common.Hash
	dial         DialFunc
	newRelayer   RelayerFunc
	pollInterval time.Duration
	logger       LogWriter
	metrics      *metrics.Metrics
}

// Compile-time interface check
var _ smartaccount.Engine = (*Engine)(nil)

// New creates an Engine.
func New(opts Options) (*Engine, error) {
	if opts.InitCodeHash == (common.Hash{}) {
		return nil, qerr.WithDetails(qerr.ErrConfiguration, map[string]string{
			"reason": "account init code hash is required",
		})
	}

	e := &Engine{
		factory:      opts.Factory,
		initCodeHash: opts.InitCodeHash,
		dial:         opts.Dial,
		newRelayer:   opts.NewRelayer,
		pollInterval: opts.PollInterval,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
	}
	if e.factory == (common.Address{}) {
		e.factory = DefaultFactory
	}
	if e.dial == nil {
		e.dial = DialEthclient
	}
	if e.pollInterval <= 0 {
		e.pollInterval = DefaultPollInterval
	}
	if e.logger == nil {
		e.logger = nopLogger{}
	}
	if e.metrics == nil {
		e.metrics = metrics.Global
	}
	if e.newRelayer == nil {
		limiter := opts.RateLimiter
		if limiter == nil {
			limiter = relayer.DefaultRateLimiter()
		}
		e.newRelayer = func(url string) (Relayer, error) {
			return relayer.NewClient(url, relayer.Options{
				RateLimiter: limiter,
				Retry:       opts.Retry,
				Logger:      e.logger,
				Metrics:     e.metrics,
				UserAgent:   opts.UserAgent,
			})
		}
	}
	return e, nil
}

// Build derives the account address and returns a handle bound to the
// configured active chain. It performs no network I/O.
func (e *Engine) Build(ctx context.Context, cfg *smartaccount.EngineConfig) (smartaccount.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg == nil || cfg.Keyset == nil {
		return nil, qerr.WithDetails(qerr.ErrConfiguration, map[string]string{"reason": "keyset is required"})
	}
	if _, ok := cfg.Option(cfg.ActiveChain); !ok {
		return nil, qerr.WithDetails(qerr.ErrChainNotConfigured, map[string]string{
			"chain_id": cfg.ActiveChain.String(),
		})
	}

	options := make([]chain.Option, len(cfg.ChainOptions))
	copy(options, cfg.ChainOptions)

	h := &handle{
		engine:    e,
		keyset:    cfg.Keyset,
		master:    cfg.MasterSigner,
		options:   options,
		serverURL: cfg.ServerURL,
		address:   AccountAddress(e.factory, cfg.Keyset.Hash(), e.initCodeHash),
		active:    cfg.ActiveChain,
		backends:  make(map[chain.ID]Backend),
		relayers:  make(map[chain.ID]Relayer),
	}

	e.logger.Debug("evm: built account %s for app %q on %s", h.address.Hex(), cfg.AppID, cfg.ActiveChain)
	return h, nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}
