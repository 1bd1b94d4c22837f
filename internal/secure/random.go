package secure

import (
	"crypto/rand"
	"io"
)

// Reader is the entropy source for RandomBytes. Tests may replace it.
//
//nolint:gochecknoglobals // Package-level RNG is required for testability
var Reader io.Reader = rand.Reader

// RandomBytes fills n bytes of locked memory from Reader.
func RandomBytes(n int) (*Bytes, error) {
	b := New(n)
	if _, err := io.ReadFull(Reader, b.Bytes()); err != nil {
		b.Destroy()
		return nil, err
	}
	return b, nil
}
