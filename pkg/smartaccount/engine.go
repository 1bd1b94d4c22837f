// Package smartaccount orchestrates a multi-chain smart-contract account that
// is authorized by a weighted keyset.
//
// A Builder collects the master key, guardians and chain endpoints, then hands
// the final configuration to an Engine exactly once. The Engine returns a
// Handle, which is wrapped in an *Account. Every Account operation checks the
// account's state and active chain before delegating to the Handle, and
// operations on one Account are serialized.
package smartaccount

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/mrz1836/quorum/pkg/chain"
	"github.com/mrz1836/quorum/pkg/keyset"
	"github.com/mrz1836/quorum/pkg/signer"
)

// EngineConfig is the finalized configuration handed to Engine.Build.
type EngineConfig struct {
	// Keyset is the final roster, master first.
	Keyset *keyset.Keyset

	// MasterSigner signs on behalf of the master key. It is nil when the
	// master was supplied as a raw key descriptor.
	MasterSigner signer.Binary

	// ChainOptions lists every chain the account may operate on.
	ChainOptions []chain.Option

	// ActiveChain is the initial chain and is always present in ChainOptions.
	ActiveChain chain.ID

	AppID     string
	ServerURL string
}

// Option returns the endpoints configured for id.
func (c *EngineConfig) Option(id chain.ID) (chain.Option, bool) {
	for _, o := range c.ChainOptions {
		if o.ID == id {
			return o, true
		}
	}
	return chain.Option{}, false
}

// Engine constructs account handles. Implementations own signing, contract
// semantics and transport.
type Engine interface {
	Build(ctx context.Context, cfg *EngineConfig) (Handle, error)
}

// Handle is one engine-side account. Handles are not required to be safe for
// concurrent use; Account serializes every call.
type Handle interface {
	// Address returns the account's on-chain address.
	Address() common.Address

	IsDeployed(ctx context.Context) (bool, error)

	// Chain returns the numeric id of the active chain.
	Chain() uint64

	// SwitchChain rebinds the active chain. It performs no network I/O.
	SwitchChain(id uint64) error

	Nonce(ctx context.Context) (uint64, error)
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
	SignTypedData(ctx context.Context, data *apitypes.TypedData) ([]byte, error)
	SimulateTransactions(ctx context.Context, txs []Transaction, opts SimulateOptions) (*SimulateResult, error)
	SendTransactions(ctx context.Context, txs []Transaction, opts SendOptions) (common.Hash, error)

	// WaitForTransaction blocks until the transaction is mined on chainID with
	// at least confirmations blocks, or ctx is done. A nil receipt with a nil
	// error means the engine stopped waiting without a result.
	WaitForTransaction(ctx context.Context, chainID uint64, hash common.Hash, confirmations uint64) (*types.Receipt, error)

	KeysetJSON() (string, error)
	Close() error
}
