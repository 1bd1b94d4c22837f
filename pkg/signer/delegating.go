package signer

import (
	"github.com/ethereum/go-ethereum/common"

	qerr "github.com/mrz1836/quorum/pkg/errors"
)

// Delegating presents a caller-supplied Signer in the binary form the engine
// consumes. Hex signatures are decoded losslessly; anything that is not a
// 65-byte signature is rejected rather than passed on.
type Delegating struct {
	inner Signer
}

// Compile-time interface check
var _ Binary = (*Delegating)(nil)

// NewDelegating wraps s.
func NewDelegating(s Signer) *Delegating {
	return &Delegating{inner: s}
}

// Inner returns the wrapped signer.
func (d *Delegating) Inner() Signer {
	return d.inner
}

// Address parses the wrapped signer's address.
func (d *Delegating) Address() (common.Address, error) {
	raw := d.inner.Address()
	if !common.IsHexAddress(raw) {
		return common.Address{}, qerr.WithDetails(qerr.ErrInvalidAddress, map[string]string{
			"address": raw,
		})
	}
	return common.HexToAddress(raw), nil
}

// SignHash signs a precomputed digest. The wrapped signer must implement
// HashSigner; a signer that only offers personal-sign fails with ErrNoSigner.
func (d *Delegating) SignHash(hash common.Hash) ([]byte, error) {
	hs, ok := d.inner.(HashSigner)
	if !ok {
		return nil, qerr.WithDetails(qerr.ErrNoSigner, map[string]string{
			"reason": "master key signer cannot sign raw digests",
		})
	}
	sig, err := hs.SignHash(hash)
	if err != nil {
		return nil, err
	}
	return DecodeSignature(sig)
}

// SignMessage signs msg with the wrapped signer and returns raw signature bytes.
func (d *Delegating) SignMessage(msg []byte) ([]byte, error) {
	if msg == nil {
		msg = []byte{}
	}
	sig, err := d.inner.SignMessage(msg)
	if err != nil {
		return nil, err
	}
	return DecodeSignature(sig)
}
