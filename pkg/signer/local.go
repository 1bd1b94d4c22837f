package signer

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	"github.com/mrz1836/quorum/internal/secure"
	qerr "github.com/mrz1836/quorum/pkg/errors"
)

// BIP-44 path components for m/44'/60'/0'/0/index.
const (
	purpose      = 44
	coinTypeETH  = 60
	accountIndex = 0
	externalPath = 0
)

// Local signs with secp256k1 key material held in process.
type Local struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// Compile-time interface check
var _ Signer = (*Local)(nil)

// NewLocal creates a signer from a hex private key, with or without 0x prefix.
func NewLocal(hexKey string) (*Local, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, qerr.Wrap(qerr.ErrInvalidKey, "parse private key: %v", err)
	}
	return fromECDSA(key), nil
}

// NewLocalFromBytes creates a signer from a 32-byte private key.
func NewLocalFromBytes(raw []byte) (*Local, error) {
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, qerr.Wrap(qerr.ErrInvalidKey, "parse private key: %v", err)
	}
	return fromECDSA(key), nil
}

// GenerateLocal creates a signer with a fresh random key.
func GenerateLocal() (*Local, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, qerr.Wrap(qerr.ErrInvalidKey, "generate key: %v", err)
	}
	return fromECDSA(key), nil
}

// NewLocalFromMnemonic derives the signer at m/44'/60'/0'/0/index from a
// BIP-39 mnemonic and optional passphrase.
func NewLocalFromMnemonic(mnemonic, passphrase string, index uint32) (*Local, error) {
	mnemonic = strings.Join(strings.Fields(strings.ToLower(mnemonic)), " ")
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, qerr.ErrInvalidMnemonic
	}

	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, qerr.Wrap(qerr.ErrInvalidMnemonic, "seed: %v", err)
	}
	defer secure.Zero(seed)

	node, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, qerr.Wrap(qerr.ErrInvalidKey, "master key: %v", err)
	}

	path := []uint32{
		bip32.FirstHardenedChild + purpose,
		bip32.FirstHardenedChild + coinTypeETH,
		bip32.FirstHardenedChild + accountIndex,
		externalPath,
		index,
	}
	for _, child := range path {
		node, err = node.NewChildKey(child)
		if err != nil {
			return nil, qerr.Wrap(qerr.ErrInvalidKey, "derive child %d: %v", child, err)
		}
	}

	return NewLocalFromBytes(node.Key)
}

func fromECDSA(key *ecdsa.PrivateKey) *Local {
	return &Local{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// Address returns the EIP-55 checksummed address.
func (l *Local) Address() string {
	return l.address.Hex()
}

// CommonAddress returns the address in go-ethereum form.
func (l *Local) CommonAddress() common.Address {
	return l.address
}

// SignMessage signs msg under the personal-sign prefix.
func (l *Local) SignMessage(msg []byte) (string, error) {
	sig, err := l.sign(msg)
	if err != nil {
		return "", err
	}
	return EncodeSignature(sig), nil
}

// SignHash signs a precomputed digest without the personal-sign prefix.
func (l *Local) SignHash(hash common.Hash) (string, error) {
	sig, err := l.signDigest(hash[:])
	if err != nil {
		return "", err
	}
	return EncodeSignature(sig), nil
}

// SignText signs the UTF-8 bytes of msg.
func (l *Local) SignText(msg string) (string, error) {
	return l.SignMessage([]byte(msg))
}

// KeyBytes returns a copy of the raw private key for persistence.
// Callers must zero the returned slice when done.
func (l *Local) KeyBytes() []byte {
	return crypto.FromECDSA(l.key)
}

func (l *Local) sign(msg []byte) ([]byte, error) {
	return l.signDigest(accounts.TextHash(msg))
}

func (l *Local) signDigest(digest []byte) ([]byte, error) {
	sig, err := crypto.Sign(digest, l.key)
	if err != nil {
		return nil, qerr.Wrap(qerr.ErrInvalidSignature, "sign: %v", err)
	}
	sig[64] += recoveryOffset
	return sig, nil
}
