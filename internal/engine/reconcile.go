package engine

import (
	"koru-delta/internal/hashing"
	"koru-delta/internal/reconcile"
)

// AllDistinctionIDs enumerates every distinction_id this engine's store
// holds, the peer side of a Transport's FetchMerkleRoot/FetchBloomFilter.
func (e *Engine) AllDistinctionIDs() []hashing.DistinctionID {
	return e.store.AllDistinctionIDs()
}

// VersionsByDistinction returns every version record for distinction_id
// d, the peer side of a Transport's FetchMissing.
func (e *Engine) VersionsByDistinction(d hashing.DistinctionID) []reconcile.WireVersion {
	return e.store.VersionsByDistinction(d)
}

// ParseDistinctionID decodes the hex wire form of a distinction_id.
func (e *Engine) ParseDistinctionID(s string) (hashing.DistinctionID, error) {
	return reconcile.ParseDistinctionID(s)
}
