package secure

import (
	"bytes"
	"fmt"
	"io"

	"filippo.io/age"
	"filippo.io/age/armor"

	qerr "github.com/mrz1836/quorum/pkg/errors"
)

// Seal encrypts plaintext to an ASCII-armored age file keyed by passphrase.
// workFactor is the scrypt log2 cost; 0 keeps age's default.
func Seal(plaintext []byte, passphrase string, workFactor int) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, qerr.Wrap(qerr.ErrInvalidInput, "passphrase: %v", err)
	}
	if workFactor > 0 {
		recipient.SetWorkFactor(workFactor)
	}

	buf := &bytes.Buffer{}
	aw := armor.NewWriter(buf)
	w, err := age.Encrypt(aw, recipient)
	if err != nil {
		return nil, fmt.Errorf("initializing encryption: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing encrypted data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}
	if err := aw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing armor: %w", err)
	}
	return buf.Bytes(), nil
}

// Open decrypts a file produced by Seal into locked memory. A wrong
// passphrase or corrupted file yields ErrDecryptionFailed.
func Open(sealed []byte, passphrase string) (*Bytes, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, qerr.Wrap(qerr.ErrInvalidInput, "passphrase: %v", err)
	}

	r, err := age.Decrypt(armor.NewReader(bytes.NewReader(sealed)), identity)
	if err != nil {
		return nil, qerr.Wrap(qerr.ErrDecryptionFailed, "%v", err)
	}

	plaintext, err := io.ReadAll(r)
	defer Zero(plaintext)
	if err != nil {
		return nil, qerr.Wrap(qerr.ErrDecryptionFailed, "%v", err)
	}
	return FromSlice(plaintext), nil
}
