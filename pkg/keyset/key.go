// Package keyset models the weighted authorization roster of a smart account:
// one master key followed by guardian keys, each carrying its own role weight.
//
// The roster never evaluates thresholds itself; it only preserves identity and
// order so that the engine can run quorum checks against it.
package keyset

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	qerr "github.com/mrz1836/quorum/pkg/errors"
)

// Type identifies the kind of authority behind a key.
type Type string

// Key types understood by the engine.
const (
	TypeSecp256k1 Type = "secp256k1" // EOA key, identity is its address
	TypeERC1271   Type = "erc1271"   // contract signer, identity is its address
	TypeEmail     Type = "email"     // email guardian, identity is a 32-byte hash
	TypeOpenID    Type = "openid"    // OpenID guardian, identity is a 32-byte hash
)

// hashIdentityLength is the byte length of hash-based identities.
const hashIdentityLength = 32

// RoleWeight is a key's contribution toward the account's authorization quorum.
type RoleWeight struct {
	Weight    uint32 `json:"weight" yaml:"weight"`
	Threshold uint32 `json:"threshold" yaml:"threshold"`
}

// DefaultMasterRoleWeight is applied to a master key registered or parsed
// without one.
//
//nolint:gochecknoglobals // Read-only default
var DefaultMasterRoleWeight = RoleWeight{Weight: 100, Threshold: 100}

// DefaultGuardianRoleWeight is applied to guardians parsed without one.
//
//nolint:gochecknoglobals // Read-only default
var DefaultGuardianRoleWeight = RoleWeight{Weight: 50, Threshold: 100}

// Key is one roster entry. Payload is opaque to this package and is carried
// through serialization unchanged.
type Key struct {
	Type       Type            `json:"type"`
	Identity   string          `json:"identity"`
	RoleWeight RoleWeight      `json:"roleWeight"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Secp256k1 returns an EOA key descriptor for address.
func Secp256k1(address string, rw RoleWeight) Key {
	return Key{Type: TypeSecp256k1, Identity: address, RoleWeight: rw}
}

// Validate checks the key's type and identity encoding.
func (k Key) Validate() error {
	switch k.Type {
	case TypeSecp256k1, TypeERC1271:
		if !common.IsHexAddress(k.Identity) || !strings.HasPrefix(k.Identity, "0x") {
			return qerr.WithDetails(qerr.ErrInvalidKeyset, map[string]string{
				"type":     string(k.Type),
				"identity": k.Identity,
				"reason":   "identity must be a 0x-prefixed 20-byte address",
			})
		}
	case TypeEmail, TypeOpenID:
		b, err := hexutil.Decode(k.Identity)
		if err != nil || len(b) != hashIdentityLength {
			return qerr.WithDetails(qerr.ErrInvalidKeyset, map[string]string{
				"type":     string(k.Type),
				"identity": k.Identity,
				"reason":   "identity must be a 0x-prefixed 32-byte hash",
			})
		}
	default:
		return qerr.WithDetails(qerr.ErrInvalidKeyset, map[string]string{
			"type":   string(k.Type),
			"reason": "unknown key type",
		})
	}
	return nil
}

// ID returns the normalized identity used for duplicate detection.
func (k Key) ID() string {
	return string(k.Type) + ":" + strings.ToLower(k.Identity)
}

// Equal reports whether two keys describe the same entry.
func (k Key) Equal(o Key) bool {
	return k.ID() == o.ID() &&
		k.RoleWeight == o.RoleWeight &&
		bytes.Equal(compactPayload(k.Payload), compactPayload(o.Payload))
}

// normalized returns a copy with a checksummed address identity and compact payload.
func (k Key) normalized() Key {
	out := k
	switch k.Type {
	case TypeSecp256k1, TypeERC1271:
		if common.IsHexAddress(k.Identity) {
			out.Identity = common.HexToAddress(k.Identity).Hex()
		}
	case TypeEmail, TypeOpenID:
		out.Identity = strings.ToLower(k.Identity)
	}
	out.Payload = compactPayload(k.Payload)
	return out
}

func compactPayload(p json.RawMessage) json.RawMessage {
	if len(p) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, p); err != nil {
		return p
	}
	if buf.String() == "null" {
		return nil
	}
	return buf.Bytes()
}
