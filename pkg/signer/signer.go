// Package signer defines the signing capability a smart account's master key
// is authorized through, with a local-key implementation and an adapter that
// presents any capability in the binary form the account engine consumes.
//
// Message signatures use EIP-191 personal-sign hashing. Hash signatures sign
// a precomputed digest, such as an EIP-712 hash, as is. Both are 65 bytes
// (r || s || v) with v in {27, 28}, hex-encoded with a 0x prefix.
package signer

import (
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	qerr "github.com/mrz1836/quorum/pkg/errors"
)

// SignatureLength is the byte length of an r || s || v signature.
const SignatureLength = crypto.SignatureLength

// recoveryOffset converts a 0/1 recovery id to the 27/28 personal-sign form.
const recoveryOffset = 27

// Signer is the capability a caller supplies for the master key.
type Signer interface {
	// Address returns the signer's 0x-prefixed address.
	Address() string

	// SignMessage signs msg under the personal-sign prefix and returns a
	// 0x-prefixed hex signature.
	SignMessage(msg []byte) (string, error)

	// SignText signs the UTF-8 bytes of msg exactly as SignMessage would.
	SignText(msg string) (string, error)
}

// HashSigner is implemented by signers that can sign a 32-byte digest
// without the personal-sign prefix. Typed-data signing requires it.
type HashSigner interface {
	SignHash(hash common.Hash) (string, error)
}

// Binary is the form of a signer the account engine consumes.
type Binary interface {
	Address() (common.Address, error)
	SignMessage(msg []byte) ([]byte, error)
	SignHash(hash common.Hash) ([]byte, error)
}

// Recover returns the address that produced sig over msg under the
// personal-sign scheme. Both 0/1 and 27/28 recovery ids are accepted.
func Recover(msg []byte, sig string) (common.Address, error) {
	raw, err := DecodeSignature(sig)
	if err != nil {
		return common.Address{}, err
	}
	return RecoverBytes(msg, raw)
}

// RecoverBytes is Recover for an already decoded signature.
func RecoverBytes(msg, sig []byte) (common.Address, error) {
	return recoverDigest(accounts.TextHash(msg), sig)
}

// RecoverHash returns the address that signed hash as is, without the
// personal-sign prefix.
func RecoverHash(hash common.Hash, sig []byte) (common.Address, error) {
	return recoverDigest(hash[:], sig)
}

func recoverDigest(digest, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, qerr.ErrInvalidSignature
	}

	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	if normalized[64] >= recoveryOffset {
		normalized[64] -= recoveryOffset
	}

	pub, err := crypto.SigToPub(digest, normalized)
	if err != nil {
		return common.Address{}, qerr.Wrap(qerr.ErrInvalidSignature, "recover: %v", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// DecodeSignature decodes a 0x-prefixed hex signature and checks its length.
func DecodeSignature(sig string) ([]byte, error) {
	raw, err := hexutil.Decode(sig)
	if err != nil {
		return nil, qerr.WithDetails(qerr.ErrInvalidSignature, map[string]string{
			"reason": err.Error(),
		})
	}
	if len(raw) != SignatureLength {
		return nil, qerr.WithDetails(qerr.ErrInvalidSignature, map[string]string{
			"reason": "signature must be 65 bytes",
		})
	}
	return raw, nil
}

// EncodeSignature hex-encodes a signature with the 0x prefix.
func EncodeSignature(sig []byte) string {
	return hexutil.Encode(sig)
}
