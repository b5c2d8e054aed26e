package reconcile

import (
	"fmt"
	"hash"

	"github.com/cespare/xxhash/v2"
	"github.com/holiman/bloomfilter/v2"
	"koru-delta/internal/hashing"
	"koru-delta/internal/kerr"
)

// defaultFPR is bloom_fpr's documented default.
const defaultFPR = 0.01

// BloomFilter is a thin wrapper over holiman/bloomfilter/v2, sized for a
// peer's set cardinality and a target false-positive rate, used to
// quickly rule out distinction_ids the peer almost certainly already
// has before falling back to an explicit fetch.
type BloomFilter struct {
	filter *bloomfilter.Filter
}

// NewBloomFilter sizes a filter for n elements at the given false
// positive rate (bloom_fpr; <= 0 uses the 0.01 default).
func NewBloomFilter(n uint64, fpr float64) (*BloomFilter, error) {
	if fpr <= 0 {
		fpr = defaultFPR
	}
	if n == 0 {
		n = 1
	}
	f, err := bloomfilter.NewOptimal(n, fpr)
	if err != nil {
		return nil, fmt.Errorf("%w: size bloom filter: %v", kerr.StorageFailure, err)
	}
	return &BloomFilter{filter: f}, nil
}

// Add inserts id into the filter.
func (b *BloomFilter) Add(id hashing.DistinctionID) {
	b.filter.Add(hashKey(id))
}

// Contains reports whether id is possibly present (false positives
// possible, false negatives never).
func (b *BloomFilter) Contains(id hashing.DistinctionID) bool {
	return b.filter.Contains(hashKey(id))
}

// CandidateMissing filters ids down to those not present in this filter
// (the peer's filter, once received) — the candidate set a session
// still needs to confirm via an explicit fetch.
func (b *BloomFilter) CandidateMissing(ids []hashing.DistinctionID) []hashing.DistinctionID {
	var out []hashing.DistinctionID
	for _, id := range ids {
		if !b.Contains(id) {
			out = append(out, id)
		}
	}
	return out
}

// MarshalBinary serializes the filter for wire transport.
func (b *BloomFilter) MarshalBinary() ([]byte, error) {
	return b.filter.MarshalBinary()
}

// UnmarshalBloomFilter reconstructs a filter from MarshalBinary's output.
func UnmarshalBloomFilter(data []byte) (*BloomFilter, error) {
	f := &bloomfilter.Filter{}
	if err := f.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("%w: unmarshal bloom filter: %v", kerr.Corruption, err)
	}
	return &BloomFilter{filter: f}, nil
}

// hashKey adapts a distinction_id into the hash.Hash64 the filter keys
// on, reusing cespare/xxhash/v2 (whose *Digest already implements
// hash.Hash64) rather than a second hash implementation.
func hashKey(id hashing.DistinctionID) hash.Hash64 {
	h := xxhash.New()
	h.Write(id[:])
	return h
}
