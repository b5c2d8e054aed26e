package ann

import (
	"container/heap"
	"fmt"
	"sort"

	"koru-delta/internal/hashing"
	"koru-delta/internal/kerr"
)

// numEntryPoints bounds how many of the index's highest-degree nodes
// seed the beam search frontier (spec.md §4.5 step 1: "a small set of
// entry-point nodes").
const numEntryPoints = 8

// candidate is one entry in the beam-search frontier: a node scored
// against the query vector.
type candidate struct {
	id         hashing.DistinctionID
	similarity float32
}

// candidateHeap is a max-heap on similarity: Pop always returns the
// currently-best unvisited candidate, which is exactly the operation
// beam search repeats.
type candidateHeap []candidate

func (h candidateHeap) Len() int            { return len(h) }
func (h candidateHeap) Less(i, j int) bool  { return h[i].similarity > h[j].similarity }
func (h candidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Result is one ranked hit returned by Search.
type Result struct {
	ID         hashing.DistinctionID
	Similarity float32
	Metadata   map[string]any
}

// Search performs the beam search of spec.md §4.5 step 1: seed a
// max-heap with a small set of entry-point nodes (the index's own
// highest-degree nodes), then repeatedly pop the best unvisited
// candidate, mark it visited, add it to the result set, and push its
// unvisited neighbors onto the heap — stopping once the result set
// reaches efSearch or the heap is empty. The collected candidates are
// then exactly re-ranked and truncated to k (step 2). An empty index
// returns an empty result with no error; a query vector of the wrong
// dimension is kerr.InvalidInput.
func (idx *Index) Search(query []float32, k, efSearch int) ([]Result, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.nodes) == 0 {
		return nil, nil
	}
	if idx.dim != 0 && len(query) != idx.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, index expects %d", kerr.InvalidInput, len(query), idx.dim)
	}
	if efSearch <= 0 {
		efSearch = 100
	}

	q := normalize(append([]float32{}, query...))

	seedCount := numEntryPoints
	if seedCount > len(idx.nodes) {
		seedCount = len(idx.nodes)
	}
	entryPoints := idx.entryPoints(seedCount)

	visited := make(map[hashing.DistinctionID]struct{}, efSearch*2)
	frontier := &candidateHeap{}
	heap.Init(frontier)
	for _, id := range entryPoints {
		n := idx.nodes[id]
		if n == nil {
			continue
		}
		visited[id] = struct{}{}
		heap.Push(frontier, candidate{id: id, similarity: cosine(q, n.Vector)})
	}

	var results []candidate
	for frontier.Len() > 0 && len(results) < efSearch {
		best := heap.Pop(frontier).(candidate)
		results = append(results, best)

		n := idx.nodes[best.id]
		if n == nil {
			continue
		}
		for _, edge := range n.Neighbors {
			if _, seen := visited[edge.To]; seen {
				continue
			}
			visited[edge.To] = struct{}{}
			neighbor := idx.nodes[edge.To]
			if neighbor == nil {
				continue
			}
			heap.Push(frontier, candidate{id: edge.To, similarity: cosine(q, neighbor.Vector)})
		}
	}

	// Step 2: exact re-rank of the collected candidates, then truncate
	// to k. Similarities above were already computed exactly (cosine on
	// pre-normalized vectors), so this is a plain sort.
	sort.Slice(results, func(i, j int) bool { return results[i].similarity > results[j].similarity })
	if k > 0 && k < len(results) {
		results = results[:k]
	}

	out := make([]Result, 0, len(results))
	for _, c := range results {
		n := idx.nodes[c.id]
		if n == nil {
			continue
		}
		out = append(out, Result{ID: c.id, Similarity: c.similarity, Metadata: n.Metadata})
	}
	return out, nil
}

// entryPoints returns up to n node ids ordered by neighbor-count
// descending (the index's own highest-degree nodes), falling back to
// insertion order once degree ties.
func (idx *Index) entryPoints(n int) []hashing.DistinctionID {
	type scored struct {
		id     hashing.DistinctionID
		degree int
	}
	all := make([]scored, 0, len(idx.order))
	for _, id := range idx.order {
		node := idx.nodes[id]
		if node == nil {
			continue
		}
		all = append(all, scored{id: id, degree: len(node.Neighbors)})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].degree > all[j].degree })

	if n > len(all) {
		n = len(all)
	}
	out := make([]hashing.DistinctionID, n)
	for i := 0; i < n; i++ {
		out[i] = all[i].id
	}
	return out
}
