package query

import (
	"encoding/json"
	"fmt"

	"koru-delta/internal/kerr"
)

// ViewsNamespace and ResultsNamespace are the reserved namespaces views
// are persisted under, mirroring internal/identity's reserved-namespace
// pattern over the ordinary KV path (spec.md §6).
const (
	ViewsNamespace   = "__views__"
	ResultsNamespace = "__view_results__"
)

// View is a named, persisted query definition.
type View struct {
	Name            string
	SourceNamespace string
	Filter          Filter
	Sort            *SortSpec
	Desc            bool
}

// ViewStore is the subset of store.Store views need: write/read/delete
// over the reserved namespaces, plus KVSource for RefreshView's
// execution. Named PutValue/DeleteValue (not Put/Delete) so the small
// adapter in internal/store/query_adapter.go can implement them
// alongside store.Store's own richer Put/Delete without a signature
// clash.
type ViewStore interface {
	KVSource
	PutValue(ns, key string, value []byte) error
	DeleteValue(ns, key string) error
}

// PutView persists a view definition under ViewsNamespace/<name>.
func PutView(vs ViewStore, v View) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: marshal view: %v", kerr.SerializationFailure, err)
	}
	return vs.PutValue(ViewsNamespace, v.Name, data)
}

// GetView loads a view definition by name.
func GetView(vs ViewStore, name string) (View, error) {
	vv, err := vs.GetValue(ViewsNamespace, name)
	if err != nil {
		return View{}, err
	}
	var v View
	if err := json.Unmarshal(vv.Value, &v); err != nil {
		return View{}, fmt.Errorf("%w: decode view: %v", kerr.Corruption, err)
	}
	return v, nil
}

// DeleteView removes a view definition. It does not clear a previously
// materialized result set, which RefreshView would simply overwrite.
func DeleteView(vs ViewStore, name string) error {
	return vs.DeleteValue(ViewsNamespace, name)
}

// RefreshView executes the named view's query against its source
// namespace and materializes the hit set under
// ResultsNamespace/<name>. An unknown view is kerr.PreconditionViolation
// per SPEC_FULL.md §9.
func RefreshView(vs ViewStore, name string) (Result, error) {
	v, err := GetView(vs, name)
	if err != nil {
		return Result{}, fmt.Errorf("%w: view %q: %v", kerr.PreconditionViolation, name, err)
	}

	sortSpec := v.Sort
	if sortSpec == nil && v.Desc {
		sortSpec = &SortSpec{Desc: true}
	}

	result, err := Execute(vs, Query{Namespace: v.SourceNamespace, Filter: v.Filter, Sort: sortSpec})
	if err != nil {
		return Result{}, err
	}

	data, err := json.Marshal(result.Hits)
	if err != nil {
		return Result{}, fmt.Errorf("%w: marshal view result: %v", kerr.SerializationFailure, err)
	}
	if err := vs.PutValue(ResultsNamespace, name, data); err != nil {
		return Result{}, err
	}
	return result, nil
}

// QueryView returns the last materialized result set for name, without
// re-executing the underlying query.
func QueryView(vs ViewStore, name string) (Result, error) {
	vv, err := vs.GetValue(ResultsNamespace, name)
	if err != nil {
		return Result{}, err
	}
	var hits []Hit
	if err := json.Unmarshal(vv.Value, &hits); err != nil {
		return Result{}, fmt.Errorf("%w: decode materialized view: %v", kerr.Corruption, err)
	}
	return Result{Hits: hits, Count: len(hits)}, nil
}
