// Package ann implements KoruDelta's approximate nearest-neighbor index:
// an in-memory K-NN graph over cosine similarity, grounded on the
// teacher's Ring — an in-memory map guarded by one mutex, scored by a
// pure function — but applied to embedding vectors instead of hash
// positions.
//
// The index is optional: callers that never call Insert never pay for
// it, matching Design Notes' "ANN index as a separate, opt-in subsystem"
// guidance.
package ann

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"koru-delta/internal/hashing"
	"koru-delta/internal/kerr"
)

// Edge is a scored link from one node to a neighbor.
type Edge struct {
	To         hashing.DistinctionID
	Similarity float32
}

// Node is one vector's entry in the index.
type Node struct {
	ID        hashing.DistinctionID
	Vector    []float32
	Metadata  map[string]any
	Neighbors []Edge
}

// Index is a K-NN graph capped at M neighbors per node, kept sorted by
// similarity descending.
type Index struct {
	mu  sync.RWMutex
	dim int
	m   int
	nodes map[hashing.DistinctionID]*Node
	order []hashing.DistinctionID // insertion order, used to seed search entry points
}

// NewIndex creates an empty index with neighbor cap m (ann_m, default
// 16). dim is fixed by the first Insert.
func NewIndex(m int) *Index {
	if m <= 0 {
		m = 16
	}
	return &Index{m: m, nodes: make(map[hashing.DistinctionID]*Node)}
}

func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := float32(math.Sqrt(sumSq))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func cosine(a, b []float32) float32 {
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot // both pre-normalized, so dot product is the cosine similarity
}

// Insert adds or replaces the vector for id, computing similarity
// against every existing node with an errgroup-sharded scan across
// GOMAXPROCS workers, then keeping the top-M neighbors and wiring
// bidirectional edges. Trimming a neighbor's list back down to M (or
// replacing a re-embedded node's stale neighbor set) always removes the
// matching reciprocal edge on the other side, so every edge the index
// holds stays bidirectional.
func (idx *Index) Insert(ctx context.Context, id hashing.DistinctionID, vector []float32, metadata map[string]any) error {
	vec := normalize(append([]float32{}, vector...))

	idx.mu.Lock()
	if idx.dim == 0 {
		idx.dim = len(vec)
	} else if len(vec) != idx.dim {
		idx.mu.Unlock()
		return fmt.Errorf("%w: vector has dimension %d, index expects %d", kerr.InvalidInput, len(vec), idx.dim)
	}

	existing := make([]*Node, 0, len(idx.nodes))
	for _, n := range idx.nodes {
		if n.ID != id {
			existing = append(existing, n)
		}
	}
	idx.mu.Unlock()

	scored, err := scoreAgainst(ctx, vec, existing)
	if err != nil {
		return err
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Similarity > scored[j].Similarity })
	if len(scored) > idx.m {
		scored = scored[:idx.m]
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	var oldNeighbors []Edge
	if old, wasPresent := idx.nodes[id]; wasPresent {
		oldNeighbors = old.Neighbors
	} else {
		idx.order = append(idx.order, id)
	}

	node := &Node{ID: id, Vector: vec, Metadata: metadata, Neighbors: scored}
	idx.nodes[id] = node

	inNewSet := make(map[hashing.DistinctionID]struct{}, len(scored))
	for _, edge := range append([]Edge(nil), scored...) {
		inNewSet[edge.To] = struct{}{}
		neighbor := idx.nodes[edge.To]
		if neighbor == nil {
			continue
		}
		var dropped *Edge
		neighbor.Neighbors, dropped = insertSorted(neighbor.Neighbors, Edge{To: id, Similarity: edge.Similarity}, idx.m)
		if dropped != nil {
			removeEdge(idx.nodes[dropped.To], neighbor.ID)
		}
	}

	// Re-embedding an id that was already present: any old neighbor not
	// chosen again in the freshly recomputed top-M set is holding a
	// stale back-edge to id now that node.Neighbors no longer lists it.
	for _, old := range oldNeighbors {
		if _, stillNeighbor := inNewSet[old.To]; stillNeighbor {
			continue
		}
		removeEdge(idx.nodes[old.To], id)
	}
	return nil
}

// removeEdge drops the edge to target from n's neighbor list, if n is
// non-nil and holds one.
func removeEdge(n *Node, target hashing.DistinctionID) {
	if n == nil {
		return
	}
	for i, e := range n.Neighbors {
		if e.To == target {
			n.Neighbors = append(n.Neighbors[:i], n.Neighbors[i+1:]...)
			return
		}
	}
}

// insertSorted inserts or replaces e in edges (kept sorted by
// similarity descending), reporting the edge dropped to stay within cap
// so the caller can strip its reciprocal.
func insertSorted(edges []Edge, e Edge, cap int) ([]Edge, *Edge) {
	for i, existing := range edges {
		if existing.To == e.To {
			edges[i] = e
			sort.Slice(edges, func(i, j int) bool { return edges[i].Similarity > edges[j].Similarity })
			return edges, nil
		}
	}
	edges = append(edges, e)
	sort.Slice(edges, func(i, j int) bool { return edges[i].Similarity > edges[j].Similarity })
	if len(edges) > cap {
		dropped := edges[cap]
		edges = edges[:cap]
		return edges, &dropped
	}
	return edges, nil
}

func scoreAgainst(ctx context.Context, vec []float32, nodes []*Node) ([]Edge, error) {
	if len(nodes) == 0 {
		return nil, nil
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > len(nodes) {
		workers = len(nodes)
	}
	if workers < 1 {
		workers = 1
	}

	results := make([][]Edge, workers)
	g, _ := errgroup.WithContext(ctx)
	chunk := (len(nodes) + workers - 1) / workers

	for w := 0; w < workers; w++ {
		w := w
		start := w * chunk
		if start >= len(nodes) {
			continue
		}
		end := start + chunk
		if end > len(nodes) {
			end = len(nodes)
		}
		g.Go(func() error {
			local := make([]Edge, 0, end-start)
			for _, n := range nodes[start:end] {
				local = append(local, Edge{To: n.ID, Similarity: cosine(vec, n.Vector)})
			}
			results[w] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Edge
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// Remove drops id from the index, unlinking it from every neighbor that
// referenced it.
func (idx *Index) Remove(id hashing.DistinctionID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	delete(idx.nodes, id)
	for i, oid := range idx.order {
		if oid == id {
			idx.order = append(idx.order[:i], idx.order[i+1:]...)
			break
		}
	}
	for _, n := range idx.nodes {
		filtered := n.Neighbors[:0]
		for _, e := range n.Neighbors {
			if e.To != id {
				filtered = append(filtered, e)
			}
		}
		n.Neighbors = filtered
	}
}

// Len reports the current node count.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.nodes)
}
