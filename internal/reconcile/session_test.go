package reconcile_test

import (
	"context"
	"testing"

	"koru-delta/internal/reconcile"
	"koru-delta/internal/store"
)

func TestSessionRunConvergesTwoStores(t *testing.T) {
	t.Run("pulls every version the peer has that the local store lacks", func(t *testing.T) {
		local := store.NewMemory()
		peer := store.NewMemory()

		if _, err := peer.Put("ns", "a", []byte(`"from peer"`)); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if _, err := peer.Put("ns", "b", []byte(`"also from peer"`)); err != nil {
			t.Fatalf("Put: %v", err)
		}

		transport := reconcile.NewLocalTransport(peer)
		session := reconcile.NewSession(local, transport)

		applied, err := session.Run(context.Background())
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if applied != 2 {
			t.Errorf("expected 2 versions applied, got %d", applied)
		}

		got, err := local.Get("ns", "a")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(got.Value) != `"from peer"` {
			t.Errorf("expected the peer's value to have been applied, got %q", got.Value)
		}
	})

	t.Run("a second run against an already-converged peer applies nothing", func(t *testing.T) {
		local := store.NewMemory()
		peer := store.NewMemory()
		if _, err := peer.Put("ns", "a", []byte(`"x"`)); err != nil {
			t.Fatalf("Put: %v", err)
		}

		transport := reconcile.NewLocalTransport(peer)
		session := reconcile.NewSession(local, transport)
		if _, err := session.Run(context.Background()); err != nil {
			t.Fatalf("first Run: %v", err)
		}

		applied, err := session.Run(context.Background())
		if err != nil {
			t.Fatalf("second Run: %v", err)
		}
		if applied != 0 {
			t.Errorf("expected no further versions applied once converged, got %d", applied)
		}
	})

	t.Run("two already-identical stores report zero applied without a fetch", func(t *testing.T) {
		local := store.NewMemory()
		peer := store.NewMemory()
		transport := reconcile.NewLocalTransport(peer)
		session := reconcile.NewSession(local, transport)

		applied, err := session.Run(context.Background())
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if applied != 0 {
			t.Errorf("expected 0 applied between two empty stores, got %d", applied)
		}
	})

	t.Run("a run that refetches an already-applied version alongside a new one counts only the new one", func(t *testing.T) {
		local := store.NewMemory()
		peer := store.NewMemory()
		transport := reconcile.NewLocalTransport(peer)
		session := reconcile.NewSession(local, transport)

		if _, err := peer.Put("ns", "a", []byte(`"x"`)); err != nil {
			t.Fatalf("Put a: %v", err)
		}
		first, err := session.Run(context.Background())
		if err != nil {
			t.Fatalf("first Run: %v", err)
		}
		if first != 1 {
			t.Fatalf("expected 1 version applied on the first run, got %d", first)
		}

		// A new key lands in the same small Merkle leaf as "a"; the
		// candidate set for the second run ends up containing both the
		// already-applied distinction for "a" and the new one for "b".
		if _, err := peer.Put("ns", "b", []byte(`"y"`)); err != nil {
			t.Fatalf("Put b: %v", err)
		}

		second, err := session.Run(context.Background())
		if err != nil {
			t.Fatalf("second Run: %v", err)
		}
		if second != 1 {
			t.Errorf("expected only the new version to be counted, got %d applied", second)
		}

		got, err := local.Get("ns", "b")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(got.Value) != `"y"` {
			t.Errorf("expected the new value to have been applied, got %q", got.Value)
		}
	})
}
