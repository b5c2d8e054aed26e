// Package identity is a thin wrapper storing {public_key, created_at,
// metadata} documents under the reserved namespace __identity__, using
// the ordinary store.Put/store.Get path exactly as spec.md §6 specifies
// ("uses the same put/get primitives under a reserved namespace").
//
// ed25519 (crypto/ed25519, standard library) is deliberately not
// swapped for a third-party crypto dependency — see DESIGN.md.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"

	"koru-delta/internal/kerr"
)

// Namespace is the reserved namespace identity documents live under.
const Namespace = "__identity__"

// Record is the document persisted per identity.
type Record struct {
	PublicKey []byte         `json:"public_key"`
	CreatedAt int64          `json:"created_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Store is the subset of store.Store identity needs, named to avoid a
// signature clash with store.Store's own richer Put/Get (same pattern
// as internal/query's adapter).
type Store interface {
	PutValue(ns, key string, value []byte) error
	GetRawValue(ns, key string) ([]byte, bool)
}

// CreateIdentity mints an ed25519 keypair, persists {public_key,
// created_at, metadata} under Namespace/<name>, and returns the private
// key (never stored) for the caller to hold.
func CreateIdentity(s Store, name string, createdAtNS int64, metadata map[string]any) (ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: generate identity keypair: %v", kerr.StorageFailure, err)
	}

	rec := Record{PublicKey: pub, CreatedAt: createdAtNS, Metadata: metadata}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal identity record: %v", kerr.SerializationFailure, err)
	}
	if err := s.PutValue(Namespace, name, data); err != nil {
		return nil, err
	}
	return priv, nil
}

// GetIdentity returns the stored record for name.
func GetIdentity(s Store, name string) (Record, error) {
	data, ok := s.GetRawValue(Namespace, name)
	if !ok {
		return Record{}, fmt.Errorf("%w: identity %q", kerr.NotFound, name)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("%w: decode identity record: %v", kerr.Corruption, err)
	}
	return rec, nil
}

// VerifyIdentity checks sig over message against name's stored public
// key.
func VerifyIdentity(s Store, name string, message, sig []byte) (bool, error) {
	rec, err := GetIdentity(s, name)
	if err != nil {
		return false, err
	}
	if len(rec.PublicKey) != ed25519.PublicKeySize {
		return false, fmt.Errorf("%w: stored public key has wrong size", kerr.Corruption)
	}
	return ed25519.Verify(ed25519.PublicKey(rec.PublicKey), message, sig), nil
}
