// Package tiers implements KoruDelta's four-level memory hierarchy —
// Hot, Warm, Cold, Deep — replacing the teacher's single JSON
// Snapshot/SnapshotManager with a state machine that migrates version
// records between tiers under a canonical lock order (Hot, then Warm,
// then Cold, then Deep), matching spec.md §4.3.
package tiers

import (
	"sync"
	"time"

	"koru-delta/internal/graph"
	"koru-delta/internal/ids"
	"koru-delta/internal/store"
)

// TierState names the tier a version currently resides in.
type TierState int

const (
	StateHot TierState = iota
	StateWarm
	StateCold
	StateDeep
)

func (s TierState) String() string {
	switch s {
	case StateHot:
		return "hot"
	case StateWarm:
		return "warm"
	case StateCold:
		return "cold"
	case StateDeep:
		return "deep"
	default:
		return "unknown"
	}
}

// Entry is the unit of migration between tiers: a version record plus
// the value bytes it addresses.
type Entry struct {
	Version store.Version
	Value   []byte
}

// Config holds the tunables documented in SPEC_FULL.md §6 and
// internal/config's defaults.
type Config struct {
	HotCapacity        int
	WarmIdleDemotion    time.Duration
	ColdEpochRotation   time.Duration
	DistillThreshold    float64
	ColdDir             string
	DeepDir             string
	FitnessWeights      FitnessWeights
	ConsolidatorPeriod  time.Duration
	DistillerPeriod     time.Duration
	GenomeUpdaterPeriod time.Duration
}

// DefaultConfig matches SPEC_FULL.md §11's documented defaults.
func DefaultConfig() Config {
	return Config{
		HotCapacity:         1000,
		WarmIdleDemotion:    time.Hour,
		ColdEpochRotation:   24 * time.Hour,
		DistillThreshold:    0.2,
		ColdDir:             "cold",
		DeepDir:             "deep",
		FitnessWeights:      DefaultFitnessWeights(),
		ConsolidatorPeriod:  5 * time.Minute,
		DistillerPeriod:     time.Hour,
		GenomeUpdaterPeriod: time.Hour,
	}
}

// Manager owns the four tiers and the background processes that migrate
// entries between them. The tier membership of a write_id lives
// exclusively here (store.Version itself carries no tier field),
// matching SPEC_FULL.md §6's "tier exclusivity" requirement.
type Manager struct {
	cfg Config

	Hot  *Hot
	Warm *Warm
	Cold *Cold
	Deep *Deep

	mu      sync.RWMutex
	located map[ids.WriteID]TierState

	causal *graph.CausalGraph
	refs   *graph.ReferenceGraph
}

// NewManager builds a tier hierarchy over the given causal/reference
// graphs, which the scheduler consults for fitness scoring and genome
// extraction.
func NewManager(cfg Config, causal *graph.CausalGraph, refs *graph.ReferenceGraph) *Manager {
	m := &Manager{
		cfg:     cfg,
		Warm:    NewWarm(),
		Cold:    NewCold(cfg.ColdDir),
		Deep:    NewDeep(cfg.DeepDir),
		located: make(map[ids.WriteID]TierState),
		causal:  causal,
		refs:    refs,
	}
	m.Hot = NewHot(cfg.HotCapacity, m.onHotEvict)
	return m
}

// Observe implements store.WriteObserver: every successful write lands
// in Hot first, per spec.md §4.3's "writes enter at the hot tier".
func (m *Manager) Observe(v store.Version, value []byte) {
	m.Insert(Entry{Version: v, Value: value})
}

// Insert admits e into Hot, removing any stale membership record for its
// write_id in another tier (a write_id is immutable so this only
// happens on replay/reconciliation re-delivery, which applyLocked
// already de-duplicates — this is defensive bookkeeping, not a hot
// path).
func (m *Manager) Insert(e Entry) {
	m.mu.Lock()
	m.located[e.Version.WriteID] = StateHot
	m.mu.Unlock()
	m.Hot.Put(e)
}

// Locate reports which tier currently holds w.
func (m *Manager) Locate(w ids.WriteID) (TierState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.located[w]
	return s, ok
}

// Get retrieves e regardless of which tier it resides in, promoting
// nothing (read-through, not read-and-promote; the scheduler does not
// promote Warm or Cold entries back to Hot either).
func (m *Manager) Get(w ids.WriteID) (Entry, bool) {
	if e, ok := m.Hot.Get(w); ok {
		return e, true
	}
	if e, ok := m.Warm.Get(w); ok {
		return e, true
	}
	if e, ok := m.Cold.Get(w); ok {
		return e, true
	}
	return Entry{}, false
}

// onHotEvict is golang-lru's eviction callback: it demotes the evicted
// entry to Warm, generalizing the teacher's "evict and drop" to "evict
// and demote" per SPEC_FULL.md §6.
func (m *Manager) onHotEvict(w ids.WriteID, e Entry) {
	m.Warm.Admit(e)
	m.mu.Lock()
	m.located[w] = StateWarm
	m.mu.Unlock()
}

// demoteWarmToCold moves w from Warm into the named Cold epoch
// container, removing it from Warm only after the Cold write succeeds —
// the ordering guarantee of spec.md §4.3 ("every transition removes
// from source after confirming insertion into target").
func (m *Manager) demoteWarmToCold(epochID string, entries []Entry) error {
	if err := m.Cold.Admit(epochID, entries); err != nil {
		return err
	}
	for _, e := range entries {
		m.Warm.Evict(e.Version.WriteID)
		m.mu.Lock()
		m.located[e.Version.WriteID] = StateCold
		m.mu.Unlock()
	}
	return nil
}

// markDeep records that the given write_ids have been archived into the
// genome and are no longer individually resident.
func (m *Manager) markDeep(writeIDs []ids.WriteID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range writeIDs {
		m.located[w] = StateDeep
	}
}

// Stats summarizes per-tier population for the engine's Stats() API.
type Stats struct {
	Hot, Warm, Cold, Deep int
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var s Stats
	for _, state := range m.located {
		switch state {
		case StateHot:
			s.Hot++
		case StateWarm:
			s.Warm++
		case StateCold:
			s.Cold++
		case StateDeep:
			s.Deep++
		}
	}
	return s
}
