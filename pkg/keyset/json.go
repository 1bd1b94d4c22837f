package keyset

import (
	"bytes"
	"encoding/json"
	"strings"

	qerr "github.com/mrz1836/quorum/pkg/errors"
)

// document is the serialized keyset schema. The first entry is the master key.
type document struct {
	Keys []Key `json:"keys"`
}

// wireKey is Key as decoded, so that an absent roleWeight can be told apart
// from an explicit zero.
type wireKey struct {
	Type       Type            `json:"type"`
	Identity   string          `json:"identity"`
	RoleWeight *RoleWeight     `json:"roleWeight"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// MarshalJSON encodes the keyset in canonical order.
func (k *Keyset) MarshalJSON() ([]byte, error) {
	if k.Len() == 0 {
		return nil, qerr.WithDetails(qerr.ErrInvalidKeyset, map[string]string{
			"reason": "keyset is empty",
		})
	}
	return json.Marshal(document{Keys: k.keys})
}

// UnmarshalJSON decodes and validates a serialized keyset. A key without a
// roleWeight gets DefaultMasterRoleWeight when it is first and
// DefaultGuardianRoleWeight otherwise.
func (k *Keyset) UnmarshalJSON(data []byte) error {
	var doc struct {
		Keys []wireKey `json:"keys"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return qerr.WithDetails(qerr.ErrInvalidKeyset, map[string]string{
			"reason": err.Error(),
		})
	}

	keys := make([]Key, len(doc.Keys))
	for i, w := range doc.Keys {
		rw := DefaultGuardianRoleWeight
		if i == 0 {
			rw = DefaultMasterRoleWeight
		}
		if w.RoleWeight != nil {
			rw = *w.RoleWeight
		}
		keys[i] = Key{Type: w.Type, Identity: w.Identity, RoleWeight: rw, Payload: w.Payload}
	}

	parsed, err := FromKeys(keys)
	if err != nil {
		return err
	}
	k.keys = parsed.keys
	return nil
}

// Parse decodes a keyset JSON string.
func Parse(s string) (*Keyset, error) {
	if strings.TrimSpace(s) == "" {
		return nil, qerr.WithDetails(qerr.ErrInvalidKeyset, map[string]string{
			"reason": "keyset json is empty",
		})
	}

	ks := &Keyset{}
	if err := ks.UnmarshalJSON([]byte(s)); err != nil {
		return nil, err
	}
	return ks, nil
}

// JSON returns the canonical keyset JSON string accepted by Parse.
func (k *Keyset) JSON() (string, error) {
	data, err := k.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(data), nil
}
