package graph

import (
	"koru-delta/internal/ids"
	"sync"
)

type edge struct {
	from, to ids.WriteID
}

// ReferenceGraph tracks outgoing/incoming reference sets per node and
// answers reachability/garbage-classification questions that feed
// distillation and hot-tier promotion.
type ReferenceGraph struct {
	mu  sync.RWMutex
	out map[ids.WriteID]map[ids.WriteID]struct{}
	in  map[ids.WriteID]map[ids.WriteID]struct{}
	all map[ids.WriteID]struct{}
}

// NewReferenceGraph creates an empty reference graph.
func NewReferenceGraph() *ReferenceGraph {
	return &ReferenceGraph{
		out: make(map[ids.WriteID]map[ids.WriteID]struct{}),
		in:  make(map[ids.WriteID]map[ids.WriteID]struct{}),
		all: make(map[ids.WriteID]struct{}),
	}
}

// AddReference records that `from` references `to`. Idempotent: calling
// it twice with the same pair is a no-op on the second call.
func (g *ReferenceGraph) AddReference(from, to ids.WriteID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.all[from] = struct{}{}
	g.all[to] = struct{}{}

	if g.out[from] == nil {
		g.out[from] = make(map[ids.WriteID]struct{})
	}
	if _, exists := g.out[from][to]; exists {
		return
	}
	g.out[from][to] = struct{}{}

	if g.in[to] == nil {
		g.in[to] = make(map[ids.WriteID]struct{})
	}
	g.in[to][from] = struct{}{}
}

// ReferenceCount returns the in-degree of w.
func (g *ReferenceGraph) ReferenceCount(w ids.WriteID) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.in[w])
}

// OutDegree returns the out-degree of w.
func (g *ReferenceGraph) OutDegree(w ids.WriteID) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.out[w])
}

// IsReachable reports whether any node in roots can reach w by following
// out-edges.
func (g *ReferenceGraph) IsReachable(roots []ids.WriteID, w ids.WriteID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[ids.WriteID]struct{})
	queue := append([]ids.WriteID{}, roots...)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if n == w {
			return true
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		for next := range g.out[n] {
			queue = append(queue, next)
		}
	}
	return false
}

// FindGarbage returns the set of nodes not reachable from any of roots —
// candidates for distillation.
func (g *ReferenceGraph) FindGarbage(roots []ids.WriteID) []ids.WriteID {
	g.mu.RLock()
	reachable := make(map[ids.WriteID]struct{})
	queue := append([]ids.WriteID{}, roots...)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if _, ok := reachable[n]; ok {
			continue
		}
		reachable[n] = struct{}{}
		for next := range g.out[n] {
			queue = append(queue, next)
		}
	}

	var garbage []ids.WriteID
	for n := range g.all {
		if _, ok := reachable[n]; !ok {
			garbage = append(garbage, n)
		}
	}
	g.mu.RUnlock()
	return garbage
}

// FindHotCandidates returns nodes whose in-degree exceeds threshold —
// candidates for promotion into Hot memory.
func (g *ReferenceGraph) FindHotCandidates(threshold int) []ids.WriteID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []ids.WriteID
	for n := range g.all {
		if len(g.in[n]) > threshold {
			out = append(out, n)
		}
	}
	return out
}
