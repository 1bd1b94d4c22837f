// Package keystore persists the master signing key, sealed with a passphrase.
package keystore

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/quorum/internal/fileutil"
	"github.com/mrz1836/quorum/internal/secure"
	qerr "github.com/mrz1836/quorum/pkg/errors"
	"github.com/mrz1836/quorum/pkg/signer"
)

const (
	fileVersion    = 1
	keyLength      = 32
	maxKeyAttempts = 4
)

// Key sources recorded in the file.
const (
	SourceGenerated = "generated"
	SourceImported  = "imported"
	SourceMnemonic  = "mnemonic"
)

// Info is the unencrypted part of the keystore file.
type Info struct {
	Version   int            `json:"version"`
	Address   common.Address `json:"address"`
	Source    string         `json:"source"`
	CreatedAt time.Time      `json:"created_at"`
}

type keyFile struct {
	Info

	// Sealed is the ASCII-armored age file holding the raw key.
	Sealed string `json:"sealed_key"`
}

// Store is a single-key file keystore.
type Store struct {
	path string

	// WorkFactor overrides the scrypt cost; 0 keeps age's default.
	WorkFactor int
}

// New returns a store at path.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the keystore file path.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a keystore file is present.
func (s *Store) Exists() (bool, error) {
	_, err := os.Stat(s.path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Info reads the keystore metadata without decrypting the key.
func (s *Store) Info() (*Info, error) {
	kf, err := s.read()
	if err != nil {
		return nil, err
	}
	return &kf.Info, nil
}

// Generate creates, stores and returns a fresh key.
func (s *Store) Generate(passphrase string, overwrite bool) (*signer.Local, error) {
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		raw, err := secure.RandomBytes(keyLength)
		if err != nil {
			return nil, qerr.Wrap(qerr.ErrInvalidKey, "entropy: %v", err)
		}
		l, err := signer.NewLocalFromBytes(raw.Bytes())
		raw.Destroy()
		if err != nil {
			// Out-of-range scalar; draw again.
			continue
		}
		if err := s.Save(l, SourceGenerated, passphrase, overwrite); err != nil {
			return nil, err
		}
		return l, nil
	}
	return nil, qerr.WithDetails(qerr.ErrInvalidKey, map[string]string{"reason": "could not draw a valid key"})
}

// Save seals l's key under passphrase. An existing file is replaced only
// when overwrite is set.
func (s *Store) Save(l *signer.Local, source, passphrase string, overwrite bool) error {
	exists, err := s.Exists()
	if err != nil {
		return fmt.Errorf("checking keystore: %w", err)
	}
	if exists && !overwrite {
		return qerr.WithDetails(qerr.ErrKeystoreExists, map[string]string{"path": s.path})
	}

	raw := l.KeyBytes()
	key := secure.FromSlice(raw)
	secure.Zero(raw)
	defer key.Destroy()

	sealed, err := secure.Seal(key.Bytes(), passphrase, s.WorkFactor)
	if err != nil {
		return err
	}

	kf := keyFile{
		Info: Info{
			Version:   fileVersion,
			Address:   l.CommonAddress(),
			Source:    source,
			CreatedAt: time.Now().UTC().Truncate(time.Second),
		},
		Sealed: string(sealed),
	}
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling keystore: %w", err)
	}

	return fileutil.WritePrivate(s.path, data)
}

// Load decrypts the key and returns a signer for it. The stored address is
// checked against the decrypted key.
func (s *Store) Load(passphrase string) (*signer.Local, error) {
	kf, err := s.read()
	if err != nil {
		return nil, err
	}

	key, err := secure.Open([]byte(kf.Sealed), passphrase)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	l, err := signer.NewLocalFromBytes(key.Bytes())
	if err != nil {
		return nil, err
	}
	if l.CommonAddress() != kf.Address {
		return nil, qerr.WithDetails(qerr.ErrDecryptionFailed, map[string]string{
			"path":   s.path,
			"reason": "decrypted key does not match stored address",
		})
	}
	return l, nil
}

// Delete removes the keystore file.
func (s *Store) Delete() error {
	if err := os.Remove(s.path); err != nil {
		if os.IsNotExist(err) {
			return qerr.WithDetails(qerr.ErrKeystoreNotFound, map[string]string{"path": s.path})
		}
		return err
	}
	return nil
}

func (s *Store) read() (*keyFile, error) {
	// #nosec G304 -- keystore path is from validated config
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, qerr.WithSuggestion(
				qerr.WithDetails(qerr.ErrKeystoreNotFound, map[string]string{"path": s.path}),
				"create one with 'quorum key new' or 'quorum key import'",
			)
		}
		return nil, err
	}

	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, qerr.Wrap(qerr.ErrDecryptionFailed, "parse keystore %s: %v", s.path, err)
	}
	if kf.Version != fileVersion {
		return nil, qerr.WithDetails(qerr.ErrDecryptionFailed, map[string]string{
			"path":    s.path,
			"version": fmt.Sprint(kf.Version),
		})
	}
	return &kf, nil
}
