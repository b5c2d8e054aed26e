// Package engine wires KoruDelta's subsystems into the single
// Start/StartWithConfig/Shutdown lifecycle spec.md §6 specifies,
// replacing the teacher's ad hoc store.New + cluster.NewMembership +
// cluster.NewReplicator sequence (cmd/server/main.go) with one object.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"koru-delta/internal/ann"
	"koru-delta/internal/config"
	"koru-delta/internal/identity"
	"koru-delta/internal/kerr"
	"koru-delta/internal/query"
	"koru-delta/internal/reconcile"
	"koru-delta/internal/store"
	"koru-delta/internal/tiers"
)

// Engine is the top-level object cmd/server/main.go constructs.
type Engine struct {
	cfg       config.Config
	store     *store.Store
	tiers     *tiers.Manager
	scheduler *tiers.Scheduler
	ann       *ann.Index
	cancel    context.CancelFunc
}

// Start builds an engine with default configuration (ephemeral
// in-memory storage, ANN disabled).
func Start() (*Engine, error) {
	return StartWithConfig(config.Default())
}

// StartWithConfig builds wal -> store -> graphs -> tiers -> optional
// ann -> query/identity (stateless over store) in leaf-first order,
// then starts the tier scheduler's background tickers.
func StartWithConfig(cfg config.Config) (*Engine, error) {
	cfg = config.WithDefaults(cfg)

	var st *store.Store
	var err error
	if cfg.StoragePath == "" {
		st = store.NewMemory()
	} else {
		st, err = store.Open(cfg.StoragePath, cfg.WALSegmentSize)
		if err != nil {
			return nil, err
		}
	}

	tcfg := tiers.DefaultConfig()
	tcfg.HotCapacity = cfg.HotCapacity
	tcfg.WarmIdleDemotion = cfg.WarmIdleDemotion
	tcfg.ColdEpochRotation = cfg.ColdEpochRotation
	tcfg.ConsolidatorPeriod = cfg.ConsolidatorPeriod
	tcfg.DistillerPeriod = cfg.DistillerPeriod
	tcfg.GenomeUpdaterPeriod = cfg.GenomeUpdaterPeriod
	if cfg.StoragePath != "" {
		tcfg.ColdDir = filepath.Join(cfg.StoragePath, "cold")
		tcfg.DeepDir = filepath.Join(cfg.StoragePath, "deep")
	}

	tm := tiers.NewManager(tcfg, st.Causal, st.Refs)
	st.Subscribe(tm.Observe)

	var annIdx *ann.Index
	if cfg.ANNEnabled {
		annIdx = ann.NewIndex(cfg.ANNM)
		if err := rebuildANN(annIdx, st); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	sched := tiers.NewScheduler(tm, tcfg)
	sched.Start(ctx)

	return &Engine{cfg: cfg, store: st, tiers: tm, scheduler: sched, ann: annIdx, cancel: cancel}, nil
}

// Shutdown cancels the tier scheduler's tickers and closes the store
// (closing the WAL and releasing the lock file). It runs no final
// consolidation or Cold admission pass.
func (e *Engine) Shutdown() error {
	e.cancel()
	return e.store.Close()
}

// Put stores or updates (ns, key).
func (e *Engine) Put(ns, key string, value []byte) (store.VersionedValue, error) {
	return e.store.Put(ns, key, value)
}

// Get returns the latest non-tombstone value for (ns, key).
func (e *Engine) Get(ns, key string) (store.VersionedValue, error) {
	return e.store.Get(ns, key)
}

// GetAt returns the version visible at timestamp t.
func (e *Engine) GetAt(ns, key string, t int64) (store.VersionedValue, error) {
	return e.store.GetAt(ns, key, t)
}

// History returns every version of (ns, key), newest first.
func (e *Engine) History(ns, key string) []store.VersionedValue {
	return e.store.History(ns, key)
}

// Delete soft-deletes (ns, key).
func (e *Engine) Delete(ns, key string) (store.VersionedValue, error) {
	return e.store.Delete(ns, key)
}

// Contains reports whether (ns, key) currently has a non-tombstone
// value.
func (e *Engine) Contains(ns, key string) bool {
	return e.store.Contains(ns, key)
}

// ListNamespaces returns every namespace with at least one version ever
// written.
func (e *Engine) ListNamespaces() []string {
	return e.store.ListNamespaces()
}

// ListKeys returns the keys in ns holding a current non-tombstone value.
func (e *Engine) ListKeys(ns string) []string {
	return e.store.ListKeys(ns)
}

// Stats summarizes store and tier population.
type Stats struct {
	Store store.Stats
	Tiers tiers.Stats
}

// Stats reports coarse size counters across the store and tier
// hierarchy.
func (e *Engine) Stats() Stats {
	return Stats{Store: e.store.Stats(), Tiers: e.tiers.Stats()}
}

// Query executes a filter-query against the store.
func (e *Engine) Query(q query.Query) (query.Result, error) {
	return query.Execute(e.store, q)
}

// CreateView persists a named view definition.
func (e *Engine) CreateView(v query.View) error {
	return query.PutView(e.store, v)
}

// RefreshView re-executes a view's query and materializes the result.
func (e *Engine) RefreshView(name string) (query.Result, error) {
	return query.RefreshView(e.store, name)
}

// QueryView returns a view's last materialized result set.
func (e *Engine) QueryView(name string) (query.Result, error) {
	return query.QueryView(e.store, name)
}

// DeleteView removes a view definition.
func (e *Engine) DeleteView(name string) error {
	return query.DeleteView(e.store, name)
}

// CreateIdentity mints and persists a new identity, returning its
// private key (never stored).
func (e *Engine) CreateIdentity(name string, metadata map[string]any) ([]byte, error) {
	priv, err := identity.CreateIdentity(e.store, name, time.Now().UnixNano(), metadata)
	if err != nil {
		return nil, err
	}
	return priv, nil
}

// GetIdentity returns a stored identity record.
func (e *Engine) GetIdentity(name string) (identity.Record, error) {
	return identity.GetIdentity(e.store, name)
}

// VerifyIdentity checks a signature against a stored identity's public
// key.
func (e *Engine) VerifyIdentity(name string, message, sig []byte) (bool, error) {
	return identity.VerifyIdentity(e.store, name, message, sig)
}

// NewReconcileSession builds a reconciliation session against a peer
// reachable through transport, using this engine's store as the local
// Applier — reconciliation's "pure data exchange" runs through the same
// apply path live writes and WAL replay use.
func (e *Engine) NewReconcileSession(transport reconcile.Transport) *reconcile.Session {
	return reconcile.NewSession(e.store, transport)
}

// LocalTransport exposes this engine's store as a reconcile.Transport
// peer for in-process or same-host reconciliation testing.
func (e *Engine) LocalTransport() *reconcile.LocalTransport {
	return reconcile.NewLocalTransport(e.store)
}

func rebuildANN(idx *ann.Index, st *store.Store) error {
	for _, key := range st.ListKeys(embedNamespace) {
		v, err := st.Get(embedNamespace, key)
		if err != nil {
			continue
		}
		rec, err := decodeEmbedRecord(v.Value)
		if err != nil {
			return fmt.Errorf("%w: rebuild ann index: %v", kerr.Corruption, err)
		}
		id, _, err := embedID(rec.Namespace, rec.Key)
		if err != nil {
			return err
		}
		if err := idx.Insert(context.Background(), id, rec.Vector, map[string]any{
			"namespace": rec.Namespace, "key": rec.Key, "model": rec.Model, "created_at": rec.CreatedAt,
		}); err != nil {
			return err
		}
	}
	return nil
}
