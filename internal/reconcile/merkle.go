// Package reconcile implements KoruDelta's peer reconciliation protocol:
// a Merkle-tree/Bloom-filter diff phase that finds candidate missing
// content, followed by fetch-and-apply over an injected Transport,
// structurally modeled on the teacher's Replicator (peer fan-out with
// per-peer goroutines and quorum-style collection) but driving a
// pull-based diff instead of a push-based quorum write.
package reconcile

import (
	"sort"

	"github.com/cespare/xxhash/v2"
	"koru-delta/internal/hashing"
)

// defaultLeafSize is the number of sorted distinction_ids grouped into
// one Merkle leaf.
const defaultLeafSize = 256

// MerkleTree is a fixed-arity hash tree over sorted distinction_ids,
// used to localize divergence between two replicas' content sets
// without transferring the full set. Leaf/node hashing uses
// cespare/xxhash/v2 — fast and non-cryptographic, deliberately distinct
// from the BLAKE3 content-addressing hash, since this is an internal
// integrity structure, not a stored identity.
type MerkleTree struct {
	leafSize int
	leaves   [][]hashing.DistinctionID
	levels   [][]uint64 // levels[0] = leaf hashes, levels[len-1] = root (single element)
}

// BuildMerkleTree sorts ids and groups them into fixed-size leaves,
// building the hash tree bottom-up.
func BuildMerkleTree(ids []hashing.DistinctionID) *MerkleTree {
	return buildMerkleTree(ids, defaultLeafSize)
}

func buildMerkleTree(ids []hashing.DistinctionID, leafSize int) *MerkleTree {
	sorted := append([]hashing.DistinctionID{}, ids...)
	sort.Slice(sorted, func(i, j int) bool {
		return string(sorted[i][:]) < string(sorted[j][:])
	})

	t := &MerkleTree{leafSize: leafSize}
	if len(sorted) == 0 {
		t.leaves = [][]hashing.DistinctionID{{}}
	} else {
		for i := 0; i < len(sorted); i += leafSize {
			end := i + leafSize
			if end > len(sorted) {
				end = len(sorted)
			}
			t.leaves = append(t.leaves, sorted[i:end])
		}
	}

	leafHashes := make([]uint64, len(t.leaves))
	for i, leaf := range t.leaves {
		leafHashes[i] = hashLeaf(leaf)
	}
	t.levels = [][]uint64{leafHashes}

	for len(t.levels[len(t.levels)-1]) > 1 {
		cur := t.levels[len(t.levels)-1]
		next := make([]uint64, 0, (len(cur)+1)/2)
		for i := 0; i < len(cur); i += 2 {
			if i+1 < len(cur) {
				next = append(next, hashPair(cur[i], cur[i+1]))
			} else {
				next = append(next, cur[i])
			}
		}
		t.levels = append(t.levels, next)
	}
	return t
}

func hashLeaf(ids []hashing.DistinctionID) uint64 {
	if len(ids) == 0 {
		return 0
	}
	h := xxhash.New()
	for _, id := range ids {
		h.Write(id[:])
	}
	return h.Sum64()
}

func hashPair(a, b uint64) uint64 {
	h := xxhash.New()
	var buf [16]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(a >> (8 * i))
		buf[8+i] = byte(b >> (8 * i))
	}
	h.Write(buf[:])
	return h.Sum64()
}

// RootHash returns the tree's single top-level hash.
func (t *MerkleTree) RootHash() uint64 {
	top := t.levels[len(t.levels)-1]
	if len(top) == 0 {
		return 0
	}
	return top[0]
}

// LeafCount reports the number of leaves in the tree.
func (t *MerkleTree) LeafCount() int {
	return len(t.leaves)
}

// Leaf returns the distinction_ids in leaf i.
func (t *MerkleTree) Leaf(i int) []hashing.DistinctionID {
	if i < 0 || i >= len(t.leaves) {
		return nil
	}
	return t.leaves[i]
}

// Diff walks both trees' level hashes top-down and returns the indices
// of leaves whose hash differs, descending only into mismatched
// subtrees for O(log n) work when the trees are mostly identical, and
// falling back to a full leaf-index comparison if the two trees have a
// different leaf count (their level shapes don't align).
func (t *MerkleTree) Diff(other *MerkleTree) []int {
	if t.RootHash() == other.RootHash() {
		return nil
	}
	if len(t.leaves) != len(other.leaves) {
		return t.diffByLeafCountMismatch(other)
	}

	var differing []int
	var walk func(level, idx int)
	walk = func(level, idx int) {
		if level < 0 {
			return
		}
		a := t.levels[level]
		b := other.levels[level]
		if idx >= len(a) || idx >= len(b) || a[idx] == b[idx] {
			return
		}
		if level == 0 {
			differing = append(differing, idx)
			return
		}
		walk(level-1, idx*2)
		walk(level-1, idx*2+1)
	}
	walk(len(t.levels)-1, 0)
	sort.Ints(differing)
	return differing
}

func (t *MerkleTree) diffByLeafCountMismatch(other *MerkleTree) []int {
	n := len(t.leaves)
	if len(other.leaves) > n {
		n = len(other.leaves)
	}
	var differing []int
	for i := 0; i < n; i++ {
		var a, b uint64
		if i < len(t.leaves) {
			a = hashLeaf(t.leaves[i])
		}
		if i < len(other.leaves) {
			b = hashLeaf(other.leaves[i])
		}
		if a != b {
			differing = append(differing, i)
		}
	}
	return differing
}
