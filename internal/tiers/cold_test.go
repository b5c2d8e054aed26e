package tiers

import (
	"testing"

	"koru-delta/internal/store"
)

func entryWithValue(b byte, ns, key string, value []byte) Entry {
	e := entryFor(b)
	e.Version.Namespace = ns
	e.Version.Key = key
	e.Value = value
	return e
}

func TestCold(t *testing.T) {
	t.Run("admit then get round-trips an entry through zstd compression", func(t *testing.T) {
		c := NewCold(t.TempDir())
		e := entryWithValue(1, "ns", "key1", []byte(`"hello"`))

		if err := c.Admit("epoch-1", []Entry{e}); err != nil {
			t.Fatalf("Admit: %v", err)
		}

		got, ok := c.Get(e.Version.WriteID)
		if !ok {
			t.Fatalf("expected entry to be retrievable after admission")
		}
		if got.Version.Namespace != "ns" || got.Version.Key != "key1" {
			t.Errorf("expected ns/key1, got %s/%s", got.Version.Namespace, got.Version.Key)
		}
		if string(got.Value) != `"hello"` {
			t.Errorf("expected value %q, got %q", `"hello"`, got.Value)
		}
	})

	t.Run("ReadEpoch returns every entry admitted to that epoch", func(t *testing.T) {
		c := NewCold(t.TempDir())
		entries := []Entry{
			entryWithValue(1, "ns", "a", []byte("1")),
			entryWithValue(2, "ns", "b", []byte("2")),
		}
		if err := c.Admit("epoch-1", entries); err != nil {
			t.Fatalf("Admit: %v", err)
		}

		got, err := c.ReadEpoch("epoch-1")
		if err != nil {
			t.Fatalf("ReadEpoch: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(got))
		}
	})

	t.Run("ListEpochs reports admitted epoch ids", func(t *testing.T) {
		c := NewCold(t.TempDir())
		if err := c.Admit("epoch-a", []Entry{entryFor(1)}); err != nil {
			t.Fatalf("Admit: %v", err)
		}
		if err := c.Admit("epoch-b", []Entry{entryFor(2)}); err != nil {
			t.Fatalf("Admit: %v", err)
		}

		epochs, err := c.ListEpochs()
		if err != nil {
			t.Fatalf("ListEpochs: %v", err)
		}
		if len(epochs) != 2 {
			t.Errorf("expected 2 epochs, got %d", len(epochs))
		}
	})

	t.Run("Get of an unknown write id reports not found", func(t *testing.T) {
		c := NewCold(t.TempDir())
		var unknown store.Version
		if _, ok := c.Get(unknown.WriteID); ok {
			t.Errorf("expected not found for an unknown write id")
		}
	})
}
