package reconcile

import (
	"testing"

	"koru-delta/internal/hashing"
)

func distIDFor(b byte) hashing.DistinctionID {
	var id hashing.DistinctionID
	id[0] = b
	return id
}

func TestMerkleTree(t *testing.T) {
	t.Run("identical sets produce identical root hashes", func(t *testing.T) {
		ids := []hashing.DistinctionID{distIDFor(1), distIDFor(2), distIDFor(3)}
		a := BuildMerkleTree(ids)
		b := BuildMerkleTree(append([]hashing.DistinctionID{}, ids...))

		if a.RootHash() != b.RootHash() {
			t.Errorf("expected equal root hashes for identical sets")
		}
		if diff := a.Diff(b); len(diff) != 0 {
			t.Errorf("expected no diff between identical trees, got %v", diff)
		}
	})

	t.Run("differing sets produce differing root hashes", func(t *testing.T) {
		a := BuildMerkleTree([]hashing.DistinctionID{distIDFor(1), distIDFor(2)})
		b := BuildMerkleTree([]hashing.DistinctionID{distIDFor(1), distIDFor(3)})

		if a.RootHash() == b.RootHash() {
			t.Errorf("expected different root hashes for different sets")
		}
		diff := a.Diff(b)
		if len(diff) == 0 {
			t.Errorf("expected Diff to report at least one differing leaf")
		}
	})

	t.Run("handles an empty set without panicking", func(t *testing.T) {
		empty := BuildMerkleTree(nil)
		if empty.LeafCount() != 1 {
			t.Errorf("expected a single empty leaf, got %d", empty.LeafCount())
		}
		if empty.RootHash() != 0 {
			t.Errorf("expected root hash 0 for an empty tree, got %d", empty.RootHash())
		}
	})

	t.Run("Diff falls back gracefully when leaf counts differ", func(t *testing.T) {
		small := buildMerkleTree([]hashing.DistinctionID{distIDFor(1)}, 1)
		large := buildMerkleTree([]hashing.DistinctionID{distIDFor(1), distIDFor(2), distIDFor(3)}, 1)

		diff := small.Diff(large)
		if len(diff) == 0 {
			t.Errorf("expected a nonempty diff when leaf counts differ")
		}
	})

	t.Run("Leaf returns nil out of range", func(t *testing.T) {
		tree := BuildMerkleTree([]hashing.DistinctionID{distIDFor(1)})
		if tree.Leaf(-1) != nil || tree.Leaf(1000) != nil {
			t.Errorf("expected nil for out-of-range leaf indices")
		}
	})
}
