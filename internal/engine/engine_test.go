package engine

import (
	"context"
	"errors"
	"testing"

	"koru-delta/internal/config"
	"koru-delta/internal/kerr"
	"koru-delta/internal/query"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.StoragePath = t.TempDir()
	e, err := StartWithConfig(cfg)
	if err != nil {
		t.Fatalf("StartWithConfig: %v", err)
	}
	t.Cleanup(func() {
		if err := e.Shutdown(); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})
	return e
}

func TestEngineStartWithDefaults(t *testing.T) {
	e, err := Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.Shutdown(); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestEnginePutGetDeleteHistory(t *testing.T) {
	e := newTestEngine(t)

	if _, err := e.Put("ns", "key", []byte(`"v1"`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := e.Get("ns", "key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got.Value) != `"v1"` {
		t.Errorf("expected v1, got %s", got.Value)
	}
	if !e.Contains("ns", "key") {
		t.Errorf("expected Contains to report true")
	}

	if _, err := e.Delete("ns", "key"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if e.Contains("ns", "key") {
		t.Errorf("expected Contains to report false after delete")
	}
	if got := e.History("ns", "key"); len(got) != 2 {
		t.Errorf("expected 2 history entries (put + delete), got %d", len(got))
	}

	atFirst, err := e.GetAt("ns", "key", got.TimestampNS)
	if err != nil {
		t.Fatalf("GetAt: %v", err)
	}
	if string(atFirst.Value) != `"v1"` {
		t.Errorf("expected GetAt the original write's timestamp to see v1, got %s", atFirst.Value)
	}
}

func TestEngineListNamespacesAndKeys(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Put("ns1", "a", []byte(`1`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := e.Put("ns2", "b", []byte(`2`)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	namespaces := e.ListNamespaces()
	if len(namespaces) != 2 {
		t.Fatalf("expected 2 namespaces, got %v", namespaces)
	}
	if keys := e.ListKeys("ns1"); len(keys) != 1 || keys[0] != "a" {
		t.Errorf("expected [a], got %v", keys)
	}
}

func TestEngineStats(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Put("ns", "a", []byte(`1`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	stats := e.Stats()
	if stats.Tiers.Hot == 0 && stats.Tiers.Warm == 0 {
		t.Errorf("expected at least one entry across hot/warm tiers after a write, got %+v", stats.Tiers)
	}
}

func TestEngineQueryAndViews(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Put("users", "alice", []byte(`{"status":"active"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := e.Put("users", "bob", []byte(`{"status":"inactive"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	result, err := e.Query(query.Query{Namespace: "users", Filter: query.Eq("status", "active")})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(result.Hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(result.Hits))
	}

	v := query.View{Name: "active", SourceNamespace: "users", Filter: query.Eq("status", "active")}
	if err := e.CreateView(v); err != nil {
		t.Fatalf("CreateView: %v", err)
	}
	if _, err := e.RefreshView("active"); err != nil {
		t.Fatalf("RefreshView: %v", err)
	}
	queried, err := e.QueryView("active")
	if err != nil {
		t.Fatalf("QueryView: %v", err)
	}
	if len(queried.Hits) != 1 {
		t.Errorf("expected 1 materialized hit, got %d", len(queried.Hits))
	}
	if err := e.DeleteView("active"); err != nil {
		t.Fatalf("DeleteView: %v", err)
	}
}

func TestEngineIdentity(t *testing.T) {
	e := newTestEngine(t)
	priv, err := e.CreateIdentity("alice", map[string]any{"role": "admin"})
	if err != nil {
		t.Fatalf("CreateIdentity: %v", err)
	}
	if len(priv) == 0 {
		t.Fatalf("expected a non-empty private key")
	}
	rec, err := e.GetIdentity("alice")
	if err != nil {
		t.Fatalf("GetIdentity: %v", err)
	}
	if rec.Metadata["role"] != "admin" {
		t.Errorf("expected metadata role=admin, got %v", rec.Metadata)
	}
}

func TestEngineEmbedAndSimilar(t *testing.T) {
	cfg := config.Default()
	cfg.StoragePath = t.TempDir()
	cfg.ANNEnabled = true
	e, err := StartWithConfig(cfg)
	if err != nil {
		t.Fatalf("StartWithConfig: %v", err)
	}
	defer e.Shutdown()

	if _, err := e.Put("docs", "a", []byte(`"doc a"`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := e.Embed("docs", "a", []float32{1, 0, 0}, "test-model", nil); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if _, err := e.Put("docs", "b", []byte(`"doc b"`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := e.Embed("docs", "b", []float32{0, 1, 0}, "test-model", nil); err != nil {
		t.Fatalf("Embed: %v", err)
	}

	hits, err := e.Similar("docs", []float32{0.9, 0.1, 0}, 1, 10, 0)
	if err != nil {
		t.Fatalf("Similar: %v", err)
	}
	if len(hits) != 1 || hits[0].Key != "a" {
		t.Fatalf("expected doc a to be the closest match, got %v", hits)
	}

	if err := e.DeleteEmbed("docs", "a"); err != nil {
		t.Fatalf("DeleteEmbed: %v", err)
	}
	hits, err = e.Similar("docs", []float32{0.9, 0.1, 0}, 1, 10, 0)
	if err != nil {
		t.Fatalf("Similar: %v", err)
	}
	if len(hits) != 1 || hits[0].Key != "b" {
		t.Fatalf("expected only doc b left after deletion, got %v", hits)
	}
}

func TestEngineEmbedWithoutANNIsPreconditionViolation(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Embed("docs", "a", []float32{1, 0, 0}, "m", nil); !errors.Is(err, kerr.PreconditionViolation) {
		t.Errorf("expected PreconditionViolation embedding while ANN is disabled, got %v", err)
	}
}

func TestEngineReconcileBetweenTwoEngines(t *testing.T) {
	a := newTestEngine(t)
	b := newTestEngine(t)

	if _, err := b.Put("ns", "key", []byte(`"from b"`)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	session := a.NewReconcileSession(b.LocalTransport())
	applied, err := session.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if applied != 1 {
		t.Fatalf("expected 1 version applied, got %d", applied)
	}

	got, err := a.Get("ns", "key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got.Value) != `"from b"` {
		t.Errorf("expected the peer's value to be applied, got %s", got.Value)
	}
}

func TestEngineAllDistinctionIDsAndVersionsByDistinction(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Put("ns", "key", []byte(`"v"`)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	ids := e.AllDistinctionIDs()
	if len(ids) != 1 {
		t.Fatalf("expected 1 distinction id, got %d", len(ids))
	}
	versions := e.VersionsByDistinction(ids[0])
	if len(versions) != 1 {
		t.Errorf("expected 1 version for the distinction id, got %d", len(versions))
	}

	parsed, err := e.ParseDistinctionID(ids[0].String())
	if err != nil {
		t.Fatalf("ParseDistinctionID: %v", err)
	}
	if parsed != ids[0] {
		t.Errorf("expected parsed id to round-trip, got %v want %v", parsed, ids[0])
	}
}
