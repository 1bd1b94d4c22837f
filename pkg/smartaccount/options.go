package smartaccount

import (
	"context"

	"github.com/mrz1836/quorum/pkg/chain"
	"github.com/mrz1836/quorum/pkg/keyset"
	"github.com/mrz1836/quorum/pkg/signer"
)

// Options configures a Builder at construction.
type Options struct {
	// MasterKeySigner, when set, is the master key of every account built.
	MasterKeySigner signer.Signer

	// MasterKeyRoleWeight applies to MasterKeySigner. Nil selects
	// keyset.DefaultMasterRoleWeight.
	MasterKeyRoleWeight *keyset.RoleWeight

	AppID     string
	ServerURL string

	ChainOptions []chain.Option

	// Engine builds the account handle. Required.
	Engine Engine

	// Logger and Recorder are optional.
	Logger   LogWriter
	Recorder Recorder
}

// InitOption selects how an account is initialized. It is implemented by
// InitByChain, InitByKeys and InitByKeysetJSON.
type InitOption interface {
	apply(b *Builder) error
}

// InitByChain initializes on ChainID using only the constructor master signer.
type InitByChain struct {
	ChainID chain.ID
}

// InitByKeys initializes on ChainID with an explicit key list. Without a
// constructor master signer the first key becomes the master and the rest
// are guardians; with one, every key is a guardian.
type InitByKeys struct {
	ChainID chain.ID
	Keys    []keyset.Key
}

// InitByKeysetJSON initializes on ChainID from a serialized roster. A
// constructor master signer replaces the roster's master at build time.
type InitByKeysetJSON struct {
	ChainID    chain.ID
	KeysetJSON string
}

func (o InitByChain) apply(b *Builder) error {
	return b.WithActiveChain(o.ChainID)
}

func (o InitByKeys) apply(b *Builder) error {
	keys := o.Keys
	if !b.hasMasterSigner() && len(keys) > 0 {
		if err := b.WithMasterKey(keys[0]); err != nil {
			return err
		}
		keys = keys[1:]
	}
	if err := b.AddGuardianKeys(keys...); err != nil {
		return err
	}
	return b.WithActiveChain(o.ChainID)
}

func (o InitByKeysetJSON) apply(b *Builder) error {
	if err := b.WithKeysetJSON(o.KeysetJSON); err != nil {
		return err
	}
	return b.WithActiveChain(o.ChainID)
}

// Init constructs a builder from opts, applies init and builds the account.
func Init(ctx context.Context, opts Options, init InitOption) (*Account, error) {
	b, err := NewBuilder(opts)
	if err != nil {
		return nil, err
	}
	if init != nil {
		if err := init.apply(b); err != nil {
			return nil, err
		}
	}
	return b.Build(ctx)
}
