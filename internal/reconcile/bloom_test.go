package reconcile

import (
	"testing"

	"koru-delta/internal/hashing"
)

func TestBloomFilter(t *testing.T) {
	t.Run("never reports a false negative for an added id", func(t *testing.T) {
		f, err := NewBloomFilter(100, 0.01)
		if err != nil {
			t.Fatalf("NewBloomFilter: %v", err)
		}
		ids := []hashing.DistinctionID{}
		for i := byte(0); i < 20; i++ {
			id := distIDFor(i)
			f.Add(id)
			ids = append(ids, id)
		}
		for _, id := range ids {
			if !f.Contains(id) {
				t.Errorf("expected %s to be reported present after Add", id)
			}
		}
	})

	t.Run("CandidateMissing filters out present ids", func(t *testing.T) {
		f, err := NewBloomFilter(10, 0.01)
		if err != nil {
			t.Fatalf("NewBloomFilter: %v", err)
		}
		present := distIDFor(1)
		f.Add(present)

		absent := distIDFor(99)
		missing := f.CandidateMissing([]hashing.DistinctionID{present, absent})

		found := false
		for _, id := range missing {
			if id == present {
				found = true
			}
		}
		if found {
			t.Errorf("expected the added id to not appear in CandidateMissing's output")
		}
	})

	t.Run("round-trips through MarshalBinary/UnmarshalBloomFilter", func(t *testing.T) {
		f, err := NewBloomFilter(50, 0.01)
		if err != nil {
			t.Fatalf("NewBloomFilter: %v", err)
		}
		id := distIDFor(7)
		f.Add(id)

		data, err := f.MarshalBinary()
		if err != nil {
			t.Fatalf("MarshalBinary: %v", err)
		}

		restored, err := UnmarshalBloomFilter(data)
		if err != nil {
			t.Fatalf("UnmarshalBloomFilter: %v", err)
		}
		if !restored.Contains(id) {
			t.Errorf("expected the restored filter to still contain the added id")
		}
	})
}
