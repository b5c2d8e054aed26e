package client_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"koru-delta/internal/api"
	"koru-delta/internal/client"
	"koru-delta/internal/cluster"
	"koru-delta/internal/config"
	"koru-delta/internal/engine"
)

func newTestServer(t *testing.T) (*client.Client, *engine.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.StoragePath = t.TempDir()
	e, err := engine.StartWithConfig(cfg)
	if err != nil {
		t.Fatalf("StartWithConfig: %v", err)
	}

	m := cluster.NewMembership(nil, 10)
	h := api.NewHandler(e, m, "self")
	r := gin.New()
	h.Register(r)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		e.Shutdown()
	})

	return client.New(srv.URL, 0), e
}

func TestClientPutGetDeleteHistory(t *testing.T) {
	c, _ := newTestServer(t)
	ctx := context.Background()

	v, err := c.Put(ctx, "ns", "key", []byte(`"hello"`))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if v.Namespace != "ns" || v.Key != "key" {
		t.Errorf("expected ns/key to round-trip, got %+v", v)
	}

	got, err := c.Get(ctx, "ns", "key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got.Value) != `"hello"` {
		t.Errorf("expected hello, got %s", got.Value)
	}

	if _, err := c.Delete(ctx, "ns", "key"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	history, err := c.History(ctx, "ns", "key")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("expected 2 history entries, got %d", len(history))
	}
}

func TestClientGetOfMissingKeyIsErrNotFound(t *testing.T) {
	c, _ := newTestServer(t)
	_, err := c.Get(context.Background(), "ns", "nope")
	if err != client.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestClientQueryAndViews(t *testing.T) {
	c, _ := newTestServer(t)
	ctx := context.Background()

	if _, err := c.Put(ctx, "users", "alice", []byte(`{"status":"active"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := c.Put(ctx, "users", "bob", []byte(`{"status":"inactive"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	filter := map[string]any{"Cond": map[string]any{"Field": "status", "Op": "eq", "Value": "active"}}
	if _, err := c.Query(ctx, "users", filter, nil, 0, 0, false); err != nil {
		t.Fatalf("Query: %v", err)
	}

	view := map[string]any{"Name": "active", "SourceNamespace": "users", "Filter": filter}
	if err := c.CreateView(ctx, view); err != nil {
		t.Fatalf("CreateView: %v", err)
	}
	if _, err := c.RefreshView(ctx, "active"); err != nil {
		t.Fatalf("RefreshView: %v", err)
	}
	if _, err := c.QueryView(ctx, "active"); err != nil {
		t.Fatalf("QueryView: %v", err)
	}
	if err := c.DeleteView(ctx, "active"); err != nil {
		t.Fatalf("DeleteView: %v", err)
	}
}

func TestClientEmbedWithoutANNIsRejected(t *testing.T) {
	c, e := newTestServer(t)
	ctx := context.Background()
	_ = e

	if _, err := c.Put(ctx, "docs", "a", []byte(`"doc a"`)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := c.Embed(ctx, "docs", "a", []float32{1, 0, 0}, "m", nil); err == nil {
		t.Errorf("expected an error embedding while ANN is disabled on the server")
	}
}

func TestClientClusterJoinLeave(t *testing.T) {
	c, _ := newTestServer(t)
	ctx := context.Background()

	if err := c.JoinCluster(ctx, "n1", "localhost:9000"); err != nil {
		t.Fatalf("JoinCluster: %v", err)
	}

	raw, err := c.GetRaw(ctx, "/cluster/nodes")
	if err != nil {
		t.Fatalf("GetRaw: %v", err)
	}
	if raw == "" {
		t.Errorf("expected a non-empty node list")
	}

	if err := c.LeaveCluster(ctx, "n1"); err != nil {
		t.Fatalf("LeaveCluster: %v", err)
	}
	if err := c.LeaveCluster(ctx, "n1"); err == nil {
		t.Errorf("expected an error leaving an already-departed node")
	}
}
