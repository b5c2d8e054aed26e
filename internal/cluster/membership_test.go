package cluster

import "testing"

func TestMembership(t *testing.T) {
	t.Run("NewMembership seeds nodes as alive and on the ring", func(t *testing.T) {
		m := NewMembership([]Node{{ID: "n1", Address: "a:1"}, {ID: "n2", Address: "b:2"}}, 10)
		if len(m.All()) != 2 {
			t.Fatalf("expected 2 seeded nodes, got %d", len(m.All()))
		}
		n, ok := m.GetNode("n1")
		if !ok || !n.IsAlive {
			t.Errorf("expected n1 to be present and alive")
		}
	})

	t.Run("Join adds a new node", func(t *testing.T) {
		m := NewMembership(nil, 10)
		if err := m.Join(Node{ID: "n1", Address: "a:1"}); err != nil {
			t.Fatalf("Join: %v", err)
		}
		if _, ok := m.GetNode("n1"); !ok {
			t.Errorf("expected n1 to be joined")
		}
	})

	t.Run("Join rejects a duplicate node id", func(t *testing.T) {
		m := NewMembership([]Node{{ID: "n1", Address: "a:1"}}, 10)
		if err := m.Join(Node{ID: "n1", Address: "a:2"}); err == nil {
			t.Errorf("expected an error joining an already-present node")
		}
	})

	t.Run("Leave removes a node", func(t *testing.T) {
		m := NewMembership([]Node{{ID: "n1", Address: "a:1"}}, 10)
		if err := m.Leave("n1"); err != nil {
			t.Fatalf("Leave: %v", err)
		}
		if _, ok := m.GetNode("n1"); ok {
			t.Errorf("expected n1 to be gone after Leave")
		}
	})

	t.Run("Leave of an unknown node is an error", func(t *testing.T) {
		m := NewMembership(nil, 10)
		if err := m.Leave("nope"); err == nil {
			t.Errorf("expected an error leaving an unknown node")
		}
	})

	t.Run("PeersFor returns known nodes close to a key on the ring", func(t *testing.T) {
		m := NewMembership([]Node{{ID: "n1", Address: "a:1"}, {ID: "n2", Address: "b:2"}, {ID: "n3", Address: "c:3"}}, 20)
		peers := m.PeersFor("some-key", 2)
		if len(peers) != 2 {
			t.Fatalf("expected 2 peers, got %d", len(peers))
		}
		for _, p := range peers {
			if p == nil {
				t.Errorf("expected non-nil peer entries")
			}
		}
	})

	t.Run("Live returns only nodes currently marked alive", func(t *testing.T) {
		m := NewMembership([]Node{{ID: "n1", Address: "a:1"}, {ID: "n2", Address: "b:2"}}, 10)
		m.MarkAlive("n2", false)

		live := m.Live()
		if len(live) != 1 || live[0].ID != "n1" {
			t.Errorf("expected only n1 to be live, got %v", live)
		}
	})

	t.Run("MarkAlive on an unknown node is a no-op", func(t *testing.T) {
		m := NewMembership(nil, 10)
		m.MarkAlive("nope", true)
	})

	t.Run("Ring exposes the underlying ring for direct routing", func(t *testing.T) {
		m := NewMembership([]Node{{ID: "n1", Address: "a:1"}}, 10)
		if m.Ring() == nil {
			t.Errorf("expected a non-nil ring")
		}
		if m.Ring().NodeCount() != 1 {
			t.Errorf("expected the ring to track 1 node, got %d", m.Ring().NodeCount())
		}
	})
}
