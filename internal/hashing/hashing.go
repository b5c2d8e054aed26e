// Package hashing computes the content-addressed distinction identity
// that underlies KoruDelta's deduplication: two writes of bytewise-equal
// serialized values always share one DistinctionID.
package hashing

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"lukechampine.com/blake3"
)

// DistinctionID is the 32-byte BLAKE3 hash of a value's canonical
// serialized bytes.
type DistinctionID [32]byte

// String renders the hex form used in logs, WAL diagnostics, and the
// Merkle/Bloom reconciliation wire format.
func (d DistinctionID) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether d is the zero value (used to mean "no previous
// distinction", never a real hash by construction since BLAKE3 is
// effectively collision-free on non-empty canonical input).
func (d DistinctionID) IsZero() bool {
	return d == DistinctionID{}
}

// Canonicalize re-encodes an arbitrary value into the bytes that feed the
// content hash. Values are opaque structured documents (spec.md §1 — no
// schema enforcement), so canonicalization is generic: decode into
// map[string]any/[]any/scalar and re-encode, which normalizes field order
// (encoding/json already sorts map keys) and whitespace without requiring
// any schema.
func Canonicalize(value []byte) ([]byte, error) {
	var generic any
	dec := json.NewDecoder(bytes.NewReader(value))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		// Not JSON — treat the bytes as an opaque blob and hash them
		// as-is. This keeps the store usable for non-JSON payloads
		// (e.g. the identity subsystem's raw key material) while still
		// giving JSON documents deterministic canonical form.
		return value, nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Distinction computes the DistinctionID of value's canonical bytes,
// returning the canonical bytes alongside so the caller can store exactly
// what was hashed (content determinism requires storing the bytes that
// were actually hashed, not the caller's original encoding).
func Distinction(value []byte) (DistinctionID, []byte, error) {
	canon, err := Canonicalize(value)
	if err != nil {
		return DistinctionID{}, nil, err
	}
	sum := blake3.Sum256(canon)
	return DistinctionID(sum), canon, nil
}
