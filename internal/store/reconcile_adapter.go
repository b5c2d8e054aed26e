package store

import (
	"koru-delta/internal/hashing"
	"koru-delta/internal/ids"
	"koru-delta/internal/reconcile"
)

// ApplyIncomingWire implements reconcile.Applier: it converts a wire
// version into the store's own Version record and applies it through
// the standard ApplyIncoming path, so reconciliation never bypasses the
// write/distinction bookkeeping a live Put performs.
func (s *Store) ApplyIncomingWire(v reconcile.WireVersion) (bool, error) {
	ver := Version{
		WriteID:       v.WriteID,
		DistinctionID: v.DistinctionID,
		Namespace:     v.Namespace,
		Key:           v.Key,
		TimestampNS:   v.TimestampNS,
		PreviousWrite: v.PreviousWrite,
		HasPrevious:   v.HasPrevious,
		Tombstone:     v.Tombstone,
	}
	return s.ApplyIncoming(ver, v.Value)
}

// HasWrite reports whether write_id w has already been applied locally,
// used by reconcile.Session to decide whether an incoming version's
// ancestor is satisfied yet.
func (s *Store) HasWrite(w ids.WriteID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.versions[w]
	return ok
}

// AllDistinctionIDs enumerates every distinction_id ever stored, the
// input to Merkle tree / Bloom filter construction for reconciliation.
func (s *Store) AllDistinctionIDs() []hashing.DistinctionID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]hashing.DistinctionID, 0, len(s.values))
	for id := range s.values {
		out = append(out, id)
	}
	return out
}

// VersionsByDistinction returns every version record whose value hashes
// to d — a scan over the version store, used by an in-process
// reconciliation transport to answer FetchMissing by distinction_id.
func (s *Store) VersionsByDistinction(d hashing.DistinctionID) []reconcile.WireVersion {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []reconcile.WireVersion
	for _, v := range s.versions {
		if v.DistinctionID != d {
			continue
		}
		out = append(out, reconcile.WireVersion{
			WriteID:       v.WriteID,
			DistinctionID: v.DistinctionID,
			Namespace:     v.Namespace,
			Key:           v.Key,
			TimestampNS:   v.TimestampNS,
			PreviousWrite: v.PreviousWrite,
			HasPrevious:   v.HasPrevious,
			Tombstone:     v.Tombstone,
			Value:         s.values[v.DistinctionID],
		})
	}
	return out
}
