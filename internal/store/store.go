// Package store implements KoruDelta's causal storage engine: a
// content-addressed, versioned key-value store with an immutable causal
// graph and crash-safe durability, generalizing the teacher repo's
// WAL-first sync.RWMutex-guarded map from a single flat namespace with
// vector-clock conflict resolution to namespaced causal history with a
// write/distinction identity split and time travel.
package store

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"

	"koru-delta/internal/graph"
	"koru-delta/internal/hashing"
	"koru-delta/internal/ids"
	"koru-delta/internal/kerr"
	"koru-delta/internal/wal"
)

const numStripes = 256

// WriteObserver is notified after every successfully applied write
// (live or replayed). It feeds the tier manager's Hot-tier insertion and
// the ANN index's registration — both of which live above this package
// to avoid an import cycle, per Design Notes' "ANN index as a separate,
// opt-in subsystem".
type WriteObserver func(v Version, value []byte)

// Store is KoruDelta's causal storage engine. Safe for concurrent use.
type Store struct {
	dir   string // "" means ephemeral in-memory, no WAL
	wal   *wal.WAL
	lock  *wal.LockFile
	clock *ids.Clock

	mu       sync.RWMutex
	values   map[hashing.DistinctionID][]byte
	versions map[ids.WriteID]*Version
	current  map[nsKey]ids.WriteID

	stripes [numStripes]sync.Mutex

	Causal *graph.CausalGraph
	Refs   *graph.ReferenceGraph

	observersMu sync.RWMutex
	observers   []WriteObserver
}

// NewMemory creates an ephemeral, non-durable store — KoruDelta's default
// configuration per spec.md §6 ("storage_path ... default ephemeral
// in-memory").
func NewMemory() *Store {
	return &Store{
		clock:    &ids.Clock{},
		values:   make(map[hashing.DistinctionID][]byte),
		versions: make(map[ids.WriteID]*Version),
		current:  make(map[nsKey]ids.WriteID),
		Causal:   graph.NewCausalGraph(),
		Refs:     graph.NewReferenceGraph(),
	}
}

// Open opens or creates a durable store rooted at dir: it acquires the
// lock file, opens the WAL, and replays every recovered record, applying
// each exactly as a live write would (without re-appending to the WAL
// and without re-issuing timestamps — the record's own timestamp_ns is
// authoritative), per spec.md §4.2 "Restart".
func Open(dir string, walSegmentSize int64) (*Store, error) {
	s := NewMemory()
	s.dir = dir

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create store dir: %v", kerr.StorageFailure, err)
	}

	lf, _, err := wal.AcquireLock(dir)
	if err != nil {
		return nil, err
	}
	s.lock = lf

	w, err := wal.Open(filepath.Join(dir, "wal"), walSegmentSize)
	if err != nil {
		return nil, err
	}
	s.wal = w

	if err := s.replay(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) replay() error {
	return s.wal.Replay(func(payload []byte) error {
		env, err := wal.DecodeEnvelope(payload)
		if err != nil {
			// Corruption during replay is non-fatal (spec.md §7): the
			// WAL's own Replay already logged and stopped at the bad
			// record; a decode error here (vs. a framing error) is
			// treated the same way — skip and move on.
			return nil
		}
		v := Version{
			WriteID:       env.WriteID,
			DistinctionID: env.DistinctionID,
			Namespace:     env.Namespace,
			Key:           env.Key,
			TimestampNS:   env.TimestampNS,
			PreviousWrite: env.PreviousWrite,
			HasPrevious:   env.HasPrevious,
			Tombstone:     env.Kind == wal.KindTombstone,
		}
		_, err = s.applyLocked(v, env.Value, true)
		return err
	})
}

// Subscribe registers an observer called after every successfully
// applied write (live write, WAL replay, or reconciliation import).
func (s *Store) Subscribe(obs WriteObserver) {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()
	s.observers = append(s.observers, obs)
}

func (s *Store) notify(v Version, value []byte) {
	s.observersMu.RLock()
	obs := append([]WriteObserver{}, s.observers...)
	s.observersMu.RUnlock()
	for _, fn := range obs {
		fn(v, value)
	}
}

func stripeFor(ns, key string) int {
	h := fnv.New32a()
	h.Write([]byte(ns))
	h.Write([]byte{0})
	h.Write([]byte(key))
	return int(h.Sum32() % numStripes)
}

func validateKey(ns, key string) error {
	if ns == "" || key == "" {
		return fmt.Errorf("%w: namespace and key must be non-empty", kerr.InvalidInput)
	}
	return nil
}

// Put stores or updates (ns, key), implementing the write algorithm of
// spec.md §4.2: compute the distinction identity, allocate a monotone
// timestamp, link to the previous version, append to the WAL, then apply
// to in-memory state.
func (s *Store) Put(ns, key string, value []byte) (VersionedValue, error) {
	if err := validateKey(ns, key); err != nil {
		return VersionedValue{}, err
	}

	distID, canon, err := hashing.Distinction(value)
	if err != nil {
		return VersionedValue{}, fmt.Errorf("%w: %v", kerr.SerializationFailure, err)
	}

	idx := stripeFor(ns, key)
	s.stripes[idx].Lock()
	defer s.stripes[idx].Unlock()

	s.mu.RLock()
	prevWrite, hasPrev := s.current[nsKey{ns, key}]
	s.mu.RUnlock()

	v := Version{
		WriteID:       ids.NewWriteID(),
		DistinctionID: distID,
		Namespace:     ns,
		Key:           key,
		TimestampNS:   s.clock.Now(),
		PreviousWrite: prevWrite,
		HasPrevious:   hasPrev,
	}

	if err := s.persist(v, canon, wal.KindPut); err != nil {
		return VersionedValue{}, err
	}
	if _, err := s.applyLocked(v, canon, true); err != nil {
		return VersionedValue{}, err
	}
	return VersionedValue{Version: v, Value: canon}, nil
}

// Delete performs a soft delete: a new tombstone version that preserves
// history while hiding the key from Get/Contains.
func (s *Store) Delete(ns, key string) (VersionedValue, error) {
	if err := validateKey(ns, key); err != nil {
		return VersionedValue{}, err
	}

	idx := stripeFor(ns, key)
	s.stripes[idx].Lock()
	defer s.stripes[idx].Unlock()

	s.mu.RLock()
	prevWrite, hasPrev := s.current[nsKey{ns, key}]
	s.mu.RUnlock()

	distID, canon, _ := hashing.Distinction(nil)
	v := Version{
		WriteID:       ids.NewWriteID(),
		DistinctionID: distID,
		Namespace:     ns,
		Key:           key,
		TimestampNS:   s.clock.Now(),
		PreviousWrite: prevWrite,
		HasPrevious:   hasPrev,
		Tombstone:     true,
	}

	if err := s.persist(v, canon, wal.KindTombstone); err != nil {
		return VersionedValue{}, err
	}
	if _, err := s.applyLocked(v, canon, true); err != nil {
		return VersionedValue{}, err
	}
	return VersionedValue{Version: v, Value: canon}, nil
}

func (s *Store) persist(v Version, value []byte, kind wal.Kind) error {
	if s.wal == nil {
		return nil // ephemeral in-memory store: no durability to provide
	}
	env := &wal.Envelope{
		Kind:          kind,
		WriteID:       v.WriteID,
		DistinctionID: v.DistinctionID,
		Namespace:     v.Namespace,
		Key:           v.Key,
		PreviousWrite: v.PreviousWrite,
		HasPrevious:   v.HasPrevious,
		TimestampNS:   v.TimestampNS,
		Value:         value,
	}
	return s.wal.Append(env.Encode())
}

// applyLocked installs v+value into the value store, version store,
// current-state map, and causal graph, resolving current-state pointer
// races per spec.md §4.6 step 6 (greater timestamp wins; ties broken by
// the lexicographically greater write_id). It is the single path used by
// live writes, WAL replay, and reconciliation import, so every invariant
// holds uniformly regardless of entry point. observeTimestamp controls
// whether the issuing clock should fold in v's timestamp (skipped only
// when the caller already owns that accounting).
func (s *Store) applyLocked(v Version, value []byte, observeTimestamp bool) (applied bool, err error) {
	s.mu.Lock()
	if observeTimestamp {
		s.clock.Observe(v.TimestampNS)
	}

	if _, exists := s.versions[v.WriteID]; exists {
		s.mu.Unlock()
		return false, nil // idempotent: already applied
	}

	s.values[v.DistinctionID] = value
	vCopy := v
	s.versions[v.WriteID] = &vCopy

	key := nsKey{v.Namespace, v.Key}
	if existingID, ok := s.current[key]; ok {
		existing := s.versions[existingID]
		if existing == nil || v.TimestampNS > existing.TimestampNS ||
			(v.TimestampNS == existing.TimestampNS && existingID.Less(v.WriteID)) {
			s.current[key] = v.WriteID
		}
	} else {
		s.current[key] = v.WriteID
	}
	s.mu.Unlock()

	if v.HasPrevious {
		s.Causal.AddEdge(v.PreviousWrite, v.WriteID)
		s.Refs.AddReference(v.WriteID, v.PreviousWrite)
	} else {
		s.Causal.AddRoot(v.WriteID)
	}

	s.notify(v, value)
	return true, nil
}

// ApplyIncoming applies a fully-formed version received from a peer
// during reconciliation. Unlike Put, it never mints a write_id or
// timestamp — both are authoritative from the source — but it does
// persist to this node's own WAL for durability. Applying the same
// write_id twice is a no-op (idempotence, spec.md §4.6).
func (s *Store) ApplyIncoming(v Version, value []byte) (applied bool, err error) {
	s.mu.RLock()
	_, exists := s.versions[v.WriteID]
	s.mu.RUnlock()
	if exists {
		return false, nil
	}

	kind := wal.KindPut
	if v.Tombstone {
		kind = wal.KindTombstone
	}
	if err := s.persist(v, value, kind); err != nil {
		return false, err
	}
	return s.applyLocked(v, value, true)
}

// Get returns the latest value for (ns, key). Tombstones are hidden —
// NotFound either when the key never existed or its latest version is a
// tombstone.
func (s *Store) Get(ns, key string) (VersionedValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	writeID, ok := s.current[nsKey{ns, key}]
	if !ok {
		return VersionedValue{}, fmt.Errorf("%w: %s/%s", kerr.NotFound, ns, key)
	}
	v := s.versions[writeID]
	if v.Tombstone {
		return VersionedValue{}, fmt.Errorf("%w: %s/%s", kerr.NotFound, ns, key)
	}
	return VersionedValue{Version: *v, Value: s.values[v.DistinctionID]}, nil
}

// GetRaw returns the current version exactly as stored, tombstone or
// not — used by tiers and reconciliation to see the true current state.
func (s *Store) GetRaw(ns, key string) (VersionedValue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	writeID, ok := s.current[nsKey{ns, key}]
	if !ok {
		return VersionedValue{}, false
	}
	v := s.versions[writeID]
	return VersionedValue{Version: *v, Value: s.values[v.DistinctionID]}, true
}

// GetAt returns the version visible at timestamp t: the greatest
// timestamp_ns <= t among writes to (ns, key), walking the
// previous_write_id chain from the current version.
func (s *Store) GetAt(ns, key string, t int64) (VersionedValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	writeID, ok := s.current[nsKey{ns, key}]
	if !ok {
		return VersionedValue{}, fmt.Errorf("%w: %s/%s", kerr.NotFound, ns, key)
	}

	cur := s.versions[writeID]
	for cur != nil {
		if cur.TimestampNS <= t {
			return VersionedValue{Version: *cur, Value: s.values[cur.DistinctionID]}, nil
		}
		if !cur.HasPrevious {
			break
		}
		cur = s.versions[cur.PreviousWrite]
	}
	return VersionedValue{}, fmt.Errorf("%w: no version of %s/%s at or before t=%d", kerr.NotFound, ns, key, t)
}

// History returns every version of (ns, key), newest first.
func (s *Store) History(ns, key string) []VersionedValue {
	s.mu.RLock()
	defer s.mu.RUnlock()

	writeID, ok := s.current[nsKey{ns, key}]
	if !ok {
		return nil
	}

	var out []VersionedValue
	cur := s.versions[writeID]
	for cur != nil {
		out = append(out, VersionedValue{Version: *cur, Value: s.values[cur.DistinctionID]})
		if !cur.HasPrevious {
			break
		}
		cur = s.versions[cur.PreviousWrite]
	}
	return out
}

// Contains reports whether (ns, key) currently has a non-tombstone
// value.
func (s *Store) Contains(ns, key string) bool {
	_, err := s.Get(ns, key)
	return err == nil
}

// ListNamespaces returns the set of namespaces with at least one version
// ever written.
func (s *Store) ListNamespaces() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for k := range s.current {
		if _, ok := seen[k.ns]; !ok {
			seen[k.ns] = struct{}{}
			out = append(out, k.ns)
		}
	}
	return out
}

// ListKeys returns the keys in ns that currently hold a non-tombstone
// value.
func (s *Store) ListKeys(ns string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for k, writeID := range s.current {
		if k.ns != ns {
			continue
		}
		if v := s.versions[writeID]; v != nil && !v.Tombstone {
			out = append(out, k.key)
		}
	}
	return out
}

// VersionByID looks up a version record directly, used by tiers and
// reconciliation.
func (s *Store) VersionByID(w ids.WriteID) (Version, []byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.versions[w]
	if !ok {
		return Version{}, nil, false
	}
	return *v, s.values[v.DistinctionID], true
}

// CurrentRoots returns the write_ids currently pointed to by the
// current-state map — the reachability roots used for garbage
// classification (spec.md §4.4).
func (s *Store) CurrentRoots() []ids.WriteID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ids.WriteID, 0, len(s.current))
	for _, w := range s.current {
		out = append(out, w)
	}
	return out
}

// TimestampOf implements graph.Timestamps for LCA computation.
func (s *Store) TimestampOf(w ids.WriteID) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.versions[w]
	if !ok {
		return 0, false
	}
	return v.TimestampNS, true
}

// Stats summarizes store size for the public Stats() API.
type Stats struct {
	Namespaces int
	Versions   int
	Values     int
}

// Stats reports coarse size counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nsSet := make(map[string]struct{})
	for k := range s.current {
		nsSet[k.ns] = struct{}{}
	}
	return Stats{
		Namespaces: len(nsSet),
		Versions:   len(s.versions),
		Values:     len(s.values),
	}
}

// Close flushes and closes the WAL and releases the lock file on a clean
// shutdown.
func (s *Store) Close() error {
	if s.wal == nil {
		return nil
	}
	if err := s.wal.Close(); err != nil {
		return err
	}
	return s.lock.Release()
}
