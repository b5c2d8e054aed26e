package hashing

import (
	"bytes"
	"testing"
)

func TestDistinction(t *testing.T) {
	t.Run("identical JSON values share a distinction id regardless of field order", func(t *testing.T) {
		a, canonA, err := Distinction([]byte(`{"a":1,"b":2}`))
		if err != nil {
			t.Fatalf("Distinction: %v", err)
		}
		b, canonB, err := Distinction([]byte(`{"b":2,"a":1}`))
		if err != nil {
			t.Fatalf("Distinction: %v", err)
		}
		if a != b {
			t.Errorf("expected equal distinction ids, got %s and %s", a, b)
		}
		if !bytes.Equal(canonA, canonB) {
			t.Errorf("expected equal canonical bytes, got %q and %q", canonA, canonB)
		}
	})

	t.Run("different values hash differently", func(t *testing.T) {
		a, _, err := Distinction([]byte(`{"a":1}`))
		if err != nil {
			t.Fatalf("Distinction: %v", err)
		}
		b, _, err := Distinction([]byte(`{"a":2}`))
		if err != nil {
			t.Fatalf("Distinction: %v", err)
		}
		if a == b {
			t.Errorf("expected different distinction ids for different values")
		}
	})

	t.Run("non-JSON bytes hash as an opaque blob", func(t *testing.T) {
		raw := []byte{0x00, 0x01, 0xFF, 0x10}
		id, canon, err := Distinction(raw)
		if err != nil {
			t.Fatalf("Distinction: %v", err)
		}
		if !bytes.Equal(canon, raw) {
			t.Errorf("expected canonical bytes to equal raw input for non-JSON, got %v", canon)
		}
		if id.IsZero() {
			t.Errorf("expected non-zero distinction id")
		}
	})

	t.Run("zero value reports IsZero", func(t *testing.T) {
		var id DistinctionID
		if !id.IsZero() {
			t.Errorf("expected zero DistinctionID to report IsZero")
		}
	})

	t.Run("String renders hex", func(t *testing.T) {
		id, _, err := Distinction([]byte(`"x"`))
		if err != nil {
			t.Fatalf("Distinction: %v", err)
		}
		if len(id.String()) != 64 {
			t.Errorf("expected 64 hex chars, got %d (%s)", len(id.String()), id)
		}
	})
}
