// Package secure holds key material in locked, zeroable memory and seals it
// at rest with age passphrase encryption.
package secure

import (
	"runtime"
	"sync"
	"sync/atomic"
)

//nolint:gochecknoglobals // Process-wide setting from config
var memoryLock atomic.Bool

//nolint:gochecknoinits // Locking is on unless config turns it off
func init() {
	memoryLock.Store(true)
}

// SetMemoryLock enables or disables mlock for Bytes allocated afterwards.
func SetMemoryLock(enabled bool) {
	memoryLock.Store(enabled)
}

// Bytes wraps sensitive bytes. The backing memory is mlocked when the
// platform allows it and zeroed by Destroy.
type Bytes struct {
	mu     sync.Mutex
	data   []byte
	locked bool
}

// New allocates size zeroed bytes of locked memory.
func New(size int) *Bytes {
	b := &Bytes{data: make([]byte, size)}
	if memoryLock.Load() {
		b.locked = mlock(b.data)
	}

	runtime.SetFinalizer(b, func(b *Bytes) {
		b.Destroy()
	})
	return b
}

// FromSlice copies data into locked memory. The caller still owns data and
// should Zero it.
func FromSlice(data []byte) *Bytes {
	b := New(len(data))
	copy(b.data, data)
	return b
}

// Bytes returns the underlying slice, nil after Destroy.
func (b *Bytes) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data
}

// Len returns the length of the data, 0 after Destroy.
func (b *Bytes) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// IsLocked reports whether the memory is mlocked.
func (b *Bytes) IsLocked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.locked
}

// Destroy zeros and unlocks the memory. Safe to call more than once.
func (b *Bytes) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.data == nil {
		return
	}
	Zero(b.data)
	if b.locked {
		munlock(b.data)
		b.locked = false
	}
	b.data = nil
	runtime.SetFinalizer(b, nil)
}

// Zero overwrites buf with zeros.
func Zero(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
