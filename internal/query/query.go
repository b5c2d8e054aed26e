package query

import (
	"fmt"
	"sort"

	"koru-delta/internal/kerr"
)

// KVSource is the subset of store.Store the query engine reads through:
// list keys in a namespace, then fetch each one. *store.Store implements
// this via the small adapter in internal/store/query_adapter.go (its own
// Get returns a richer VersionedValue, so query stays free of an import
// cycle on internal/store).
type KVSource interface {
	ListKeys(ns string) []string
	GetValue(ns, key string) (Versioned, error)
}

// Versioned is the minimal shape a query needs from a stored value:
// enough to filter, sort, and return. store.Store.GetValue fills it by
// copying the same-named fields of store.VersionedValue.
type Versioned struct {
	Key         string
	TimestampNS int64
	Value       []byte
}

// SortSpec orders results by a field, ascending unless Desc is set.
type SortSpec struct {
	Field string
	Desc  bool
}

// Query describes one filter-query execution, matching spec.md §6's
// "filter-based query ... optional sort, limit, offset, count-only".
type Query struct {
	Namespace string
	Filter    Filter
	Sort      *SortSpec
	Limit     int
	Offset    int
	CountOnly bool
}

// Hit is one matching row.
type Hit struct {
	Key         string
	Value       []byte
	TimestampNS int64
}

// Result is Execute's return: either a row set or, for CountOnly
// queries, just a count.
type Result struct {
	Hits  []Hit
	Count int
}

// Execute scans store.ListKeys(ns) then store.Get + filter predicate —
// acceptable for the in-process reference implementation; a secondary
// index is a documented non-goal extension (SPEC_FULL.md §14).
func Execute(src KVSource, q Query) (Result, error) {
	if q.Namespace == "" {
		return Result{}, fmt.Errorf("%w: query namespace must be non-empty", kerr.InvalidInput)
	}

	keys := src.ListKeys(q.Namespace)
	var hits []Hit
	for _, k := range keys {
		v, err := src.GetValue(q.Namespace, k)
		if err != nil {
			continue // deleted/tombstoned between ListKeys and Get: skip
		}
		ok, err := q.Filter.Match(v.Value)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			continue
		}
		hits = append(hits, Hit{Key: k, Value: v.Value, TimestampNS: v.TimestampNS})
	}

	if q.Sort != nil {
		sortHits(hits, *q.Sort)
	}

	if q.CountOnly {
		return Result{Count: len(hits)}, nil
	}

	if q.Offset > 0 {
		if q.Offset >= len(hits) {
			hits = nil
		} else {
			hits = hits[q.Offset:]
		}
	}
	if q.Limit > 0 && q.Limit < len(hits) {
		hits = hits[:q.Limit]
	}
	return Result{Hits: hits, Count: len(hits)}, nil
}

func sortHits(hits []Hit, spec SortSpec) {
	sort.SliceStable(hits, func(i, j int) bool {
		vi, _ := decodeDoc(hits[i].Value)
		vj, _ := decodeDoc(hits[j].Value)
		a, aok := fieldValue(vi, spec.Field)
		b, bok := fieldValue(vj, spec.Field)
		less := compareLess(a, aok, b, bok)
		if spec.Desc {
			return !less && a != nil && b != nil
		}
		return less
	})
}

func compareLess(a any, aok bool, b any, bok bool) bool {
	if !aok || !bok {
		return false
	}
	af, aIsNum := asFloat(a)
	bf, bIsNum := asFloat(b)
	if aIsNum && bIsNum {
		return af < bf
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}
