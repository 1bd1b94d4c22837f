package keyset

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	qerr "github.com/mrz1836/quorum/pkg/errors"
)

// Keyset is an ordered roster: the master key first, then guardians in the
// order they were added. A Keyset is immutable once built; methods that
// change the roster return a new value.
type Keyset struct {
	keys []Key
}

// New builds a keyset from a master key and guardians, in that order.
func New(master Key, guardians ...Key) (*Keyset, error) {
	keys := make([]Key, 0, len(guardians)+1)
	keys = append(keys, master.normalized())
	for _, g := range guardians {
		keys = append(keys, g.normalized())
	}

	ks := &Keyset{keys: keys}
	if err := ks.Validate(); err != nil {
		return nil, err
	}
	return ks, nil
}

// FromKeys builds a keyset whose first element is the master key.
func FromKeys(keys []Key) (*Keyset, error) {
	if len(keys) == 0 {
		return nil, qerr.WithDetails(qerr.ErrInvalidKeyset, map[string]string{
			"reason": "keyset is empty",
		})
	}
	return New(keys[0], keys[1:]...)
}

// Validate checks that the roster is non-empty, every key is well formed and
// no identity appears twice.
func (k *Keyset) Validate() error {
	if k == nil || len(k.keys) == 0 {
		return qerr.WithDetails(qerr.ErrInvalidKeyset, map[string]string{
			"reason": "keyset is empty",
		})
	}

	seen := make(map[string]int, len(k.keys))
	for i, key := range k.keys {
		if err := key.Validate(); err != nil {
			return qerr.Wrap(err, "key %d", i)
		}
		if first, dup := seen[key.ID()]; dup {
			return qerr.WithDetails(qerr.ErrInvalidKeyset, map[string]string{
				"reason":   "duplicate key identity",
				"identity": key.Identity,
				"indexes":  strconv.Itoa(first) + "," + strconv.Itoa(i),
			})
		}
		seen[key.ID()] = i
	}
	return nil
}

// Master returns the master key.
func (k *Keyset) Master() Key {
	return k.keys[0]
}

// Guardians returns the guardian keys in insertion order.
func (k *Keyset) Guardians() []Key {
	out := make([]Key, len(k.keys)-1)
	copy(out, k.keys[1:])
	return out
}

// Keys returns the roster in canonical order: master, then guardians.
func (k *Keyset) Keys() []Key {
	out := make([]Key, len(k.keys))
	copy(out, k.keys)
	return out
}

// Len returns the number of keys including the master.
func (k *Keyset) Len() int {
	if k == nil {
		return 0
	}
	return len(k.keys)
}

// WithMaster returns a copy of the keyset whose master is replaced by master.
// Guardians keep their order.
func (k *Keyset) WithMaster(master Key) (*Keyset, error) {
	return New(master, k.keys[1:]...)
}

// WithGuardians returns a copy of the keyset with guardians appended.
func (k *Keyset) WithGuardians(guardians ...Key) (*Keyset, error) {
	all := make([]Key, 0, len(k.keys)+len(guardians))
	all = append(all, k.keys[1:]...)
	all = append(all, guardians...)
	return New(k.keys[0], all...)
}

// Equal reports whether two keysets hold the same keys in the same order.
func (k *Keyset) Equal(o *Keyset) bool {
	if k.Len() != o.Len() {
		return false
	}
	for i := range k.keys {
		if !k.keys[i].Equal(o.keys[i]) {
			return false
		}
	}
	return true
}

// Hash returns the Keccak-256 digest of the canonical JSON encoding.
// Equal keysets always hash equally.
func (k *Keyset) Hash() common.Hash {
	data, err := k.MarshalJSON()
	if err != nil {
		return common.Hash{}
	}
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(data)
	return common.BytesToHash(h.Sum(nil))
}
