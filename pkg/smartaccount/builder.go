package smartaccount

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mrz1836/quorum/pkg/chain"
	qerr "github.com/mrz1836/quorum/pkg/errors"
	"github.com/mrz1836/quorum/pkg/keyset"
	"github.com/mrz1836/quorum/pkg/signer"
)

// Builder states.
const (
	builderIdle int32 = iota
	builderBuilding
	builderConsumed
)

// Builder assembles an account configuration and builds it exactly once.
//
// Each configuration call returns its violation, if any, and a rejected call
// leaves the builder unchanged. A Build that reaches the engine consumes the
// builder whether or not the engine succeeds. A Build rejected by local
// validation leaves it reusable.
type Builder struct {
	state atomic.Int32

	mu           sync.Mutex
	engine       Engine
	masterSigner signer.Signer
	masterWeight *keyset.RoleWeight
	masterKey    *keyset.Key
	imported     *keyset.Keyset
	guardians    []keyset.Key
	chains       *chain.Options
	activeChain  chain.ID
	appID        string
	serverURL    string
	logger       LogWriter
	recorder     Recorder
}

// NewBuilder creates a builder from constructor options. An invalid or
// duplicate chain option fails here.
func NewBuilder(opts Options) (*Builder, error) {
	b := &Builder{
		engine:       opts.Engine,
		masterSigner: opts.MasterKeySigner,
		masterWeight: opts.MasterKeyRoleWeight,
		chains:       &chain.Options{},
		appID:        opts.AppID,
		serverURL:    opts.ServerURL,
		logger:       opts.Logger,
		recorder:     opts.Recorder,
	}
	if b.logger == nil {
		b.logger = nopLogger{}
	}
	if b.recorder == nil {
		b.recorder = nopRecorder{}
	}
	for _, o := range opts.ChainOptions {
		if err := b.AddChainOption(o.ID, o.RPCURL, o.RelayerURL); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// WithMasterKeySigner registers s as the master key. Nil rw selects the
// default master weight.
func (b *Builder) WithMasterKeySigner(s signer.Signer, rw *keyset.RoleWeight) error {
	return b.configure(func() error {
		if s == nil {
			return conflict("master key signer is nil")
		}
		if b.masterKey != nil {
			return conflict("master key signer and raw master key are mutually exclusive")
		}
		b.masterSigner = s
		b.masterWeight = rw
		return nil
	})
}

// WithMasterKey registers a raw key descriptor as the master key.
func (b *Builder) WithMasterKey(k keyset.Key) error {
	return b.configure(func() error {
		if b.masterSigner != nil {
			return conflict("master key signer and raw master key are mutually exclusive")
		}
		if b.imported != nil {
			return conflict("raw master key and keyset json are mutually exclusive")
		}
		if err := k.Validate(); err != nil {
			return err
		}
		b.masterKey = &k
		return nil
	})
}

// AddGuardianKeys appends guardians in the order given.
func (b *Builder) AddGuardianKeys(keys ...keyset.Key) error {
	return b.configure(func() error {
		for i, k := range keys {
			if err := k.Validate(); err != nil {
				return qerr.Wrap(err, "guardian %d", i)
			}
		}
		b.guardians = append(b.guardians, keys...)
		return nil
	})
}

// WithKeysetJSON imports a full roster. The first key is the master unless a
// master key signer is registered, in which case the signer replaces it.
func (b *Builder) WithKeysetJSON(data string) error {
	return b.configure(func() error {
		if b.masterKey != nil {
			return conflict("raw master key and keyset json are mutually exclusive")
		}
		ks, err := keyset.Parse(data)
		if err != nil {
			return err
		}
		b.imported = ks
		return nil
	})
}

// WithActiveChain sets the chain the account starts on. It must be one of the
// registered chain options by the time Build runs.
func (b *Builder) WithActiveChain(id chain.ID) error {
	return b.configure(func() error {
		if _, err := chain.Lookup(id.Uint64()); err != nil {
			return err
		}
		b.activeChain = id
		return nil
	})
}

// AddChainOption registers the endpoints for one chain. Registering the same
// chain twice is an error.
func (b *Builder) AddChainOption(id chain.ID, rpcURL, relayerURL string) error {
	return b.configure(func() error {
		return b.chains.Add(chain.Option{ID: id, RPCURL: rpcURL, RelayerURL: relayerURL})
	})
}

// WithAppID sets the application id passed to the engine.
func (b *Builder) WithAppID(appID string) error {
	return b.configure(func() error {
		b.appID = appID
		return nil
	})
}

// WithServerURL sets the account server endpoint passed to the engine.
func (b *Builder) WithServerURL(url string) error {
	return b.configure(func() error {
		b.serverURL = url
		return nil
	})
}

// Build validates the configuration and asks the engine for an account.
// A second Build fails with ErrBuilderConsumed; a Build overlapping another
// fails with ErrBuilderBusy.
func (b *Builder) Build(ctx context.Context) (*Account, error) {
	if !b.state.CompareAndSwap(builderIdle, builderBuilding) {
		if b.state.Load() == builderConsumed {
			return nil, qerr.ErrBuilderConsumed
		}
		return nil, qerr.ErrBuilderBusy
	}

	if err := ctx.Err(); err != nil {
		b.state.Store(builderIdle)
		return nil, err
	}

	b.mu.Lock()
	cfg, err := b.finalize()
	chains := b.chains.Clone()
	engine, logger, recorder := b.engine, b.logger, b.recorder
	b.mu.Unlock()
	if err != nil {
		b.state.Store(builderIdle)
		logger.Error("account build rejected: %v", err)
		return nil, err
	}

	start := time.Now()
	handle, err := engine.Build(ctx, cfg)
	b.consume()
	if err != nil {
		err = qerr.Engine("build", err)
		recorder.RecordAccountOp("build", time.Since(start), err)
		logger.Error("account build failed: %v", err)
		return nil, err
	}
	if handle == nil {
		err = qerr.WithDetails(qerr.ErrEngine, map[string]string{
			"operation": "build",
			"reason":    "engine returned no account",
		})
		recorder.RecordAccountOp("build", time.Since(start), err)
		return nil, err
	}
	recorder.RecordAccountOp("build", time.Since(start), nil)

	acct := newAccount(handle, chains, logger, recorder)
	logger.Debug("account built: address=%s chain=%s keys=%d",
		handle.Address().Hex(), cfg.ActiveChain, cfg.Keyset.Len())
	return acct, nil
}

func (b *Builder) hasMasterSigner() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.masterSigner != nil
}

// configure applies fn while the builder is idle. fn must validate before it
// mutates, so that a rejected call changes nothing.
func (b *Builder) configure(fn func() error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state.Load() {
	case builderConsumed:
		return qerr.ErrBuilderConsumed
	case builderBuilding:
		return qerr.ErrBuilderBusy
	}
	return fn()
}

// consume marks the builder used and drops its references.
func (b *Builder) consume() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Store(builderConsumed)
	b.masterSigner = nil
	b.masterKey = nil
	b.imported = nil
	b.guardians = nil
	b.engine = nil
}

// finalize reconciles the master key sources into one roster and checks the
// chain configuration. Callers hold b.mu.
func (b *Builder) finalize() (*EngineConfig, error) {
	if b.engine == nil {
		return nil, conflict("no account engine configured")
	}

	cfg := &EngineConfig{
		ChainOptions: b.chains.List(),
		ActiveChain:  b.activeChain,
		AppID:        b.appID,
		ServerURL:    b.serverURL,
	}

	var (
		master    keyset.Key
		guardians []keyset.Key
	)
	if b.imported != nil {
		guardians = append(guardians, b.imported.Guardians()...)
	}
	guardians = append(guardians, b.guardians...)

	switch {
	case b.masterSigner != nil:
		bin := signer.NewDelegating(b.masterSigner)
		addr, err := bin.Address()
		if err != nil {
			return nil, qerr.Wrap(err, "master key signer")
		}
		rw := keyset.DefaultMasterRoleWeight
		if b.masterWeight != nil {
			rw = *b.masterWeight
		}
		master = keyset.Secp256k1(addr.Hex(), rw)
		cfg.MasterSigner = bin
	case b.masterKey != nil:
		master = *b.masterKey
	case b.imported != nil:
		master = b.imported.Master()
	default:
		return nil, qerr.WithSuggestion(conflict("keyset is empty: no master key configured"),
			"register a master key signer, a raw master key or a keyset json")
	}

	ks, err := keyset.New(master, guardians...)
	if err != nil {
		return nil, err
	}
	cfg.Keyset = ks

	if b.chains.Len() == 0 {
		return nil, conflict("no chain options configured")
	}
	if b.activeChain == 0 {
		return nil, conflict("no active chain selected")
	}
	if !b.chains.Has(b.activeChain) {
		return nil, qerr.WithDetails(qerr.ErrConfiguration, map[string]string{
			"reason":   "active chain is not among the chain options",
			"chain_id": strconv.FormatUint(b.activeChain.Uint64(), 10),
		})
	}
	return cfg, nil
}

func conflict(reason string) error {
	return qerr.WithDetails(qerr.ErrConfiguration, map[string]string{"reason": reason})
}
