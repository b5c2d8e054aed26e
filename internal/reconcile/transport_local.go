package reconcile

import (
	"context"

	"koru-delta/internal/hashing"
)

// DistinctionSource is the subset of store.Store a LocalTransport needs:
// enumerate known distinction_ids and resolve one to its version
// records. Implemented by *store.Store.
type DistinctionSource interface {
	AllDistinctionIDs() []hashing.DistinctionID
	VersionsByDistinction(d hashing.DistinctionID) []WireVersion
}

// LocalTransport is an in-process Transport over a peer's own store,
// used in tests and in single-process multi-replica setups in place of
// the HTTP transport internal/api exposes.
type LocalTransport struct {
	peer DistinctionSource
}

// NewLocalTransport wraps peer as a Transport.
func NewLocalTransport(peer DistinctionSource) *LocalTransport {
	return &LocalTransport{peer: peer}
}

func (t *LocalTransport) FetchMerkleRoot(ctx context.Context) (*MerkleTree, error) {
	return BuildMerkleTree(t.peer.AllDistinctionIDs()), nil
}

func (t *LocalTransport) FetchBloomFilter(ctx context.Context, cardinality uint64, fpr float64) (*BloomFilter, error) {
	ids := t.peer.AllDistinctionIDs()
	f, err := NewBloomFilter(uint64(len(ids)), fpr)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		f.Add(id)
	}
	return f, nil
}

func (t *LocalTransport) FetchMissing(ctx context.Context, ids []hashing.DistinctionID) ([]WireVersion, error) {
	var out []WireVersion
	for _, id := range ids {
		out = append(out, t.peer.VersionsByDistinction(id)...)
	}
	return out, nil
}
