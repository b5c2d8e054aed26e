package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"koru-delta/internal/ann"
	"koru-delta/internal/hashing"
	"koru-delta/internal/kerr"
)

// embedNamespace persists embed records so the ANN index can be rebuilt
// on restart, the same reserved-namespace-over-ordinary-KV mechanism
// internal/identity and internal/query's views use.
const embedNamespace = "__embeddings__"

type embedRecord struct {
	Namespace string    `json:"namespace"`
	Key       string    `json:"key"`
	Vector    []float32 `json:"vector"`
	Model     string    `json:"model"`
	CreatedAt int64     `json:"created_at"`
}

func embedKey(ns, key string) string { return ns + "/" + key }

func embedID(ns, key string) (hashing.DistinctionID, []byte, error) {
	return hashing.Distinction([]byte(ns + "\x00" + key))
}

func decodeEmbedRecord(data []byte) (embedRecord, error) {
	var rec embedRecord
	err := json.Unmarshal(data, &rec)
	return rec, err
}

// Embed associates a vector with (ns, key), per spec.md §6's
// `embed(ns, key, vector, model, metadata?)`. The engine must have been
// started with ANN enabled.
func (e *Engine) Embed(ns, key string, vector []float32, model string, metadata map[string]any) error {
	if e.ann == nil {
		return fmt.Errorf("%w: ANN index not enabled", kerr.PreconditionViolation)
	}

	v, err := e.store.Get(ns, key)
	createdAt := int64(0)
	if err == nil {
		createdAt = v.TimestampNS
	}

	rec := embedRecord{Namespace: ns, Key: key, Vector: vector, Model: model, CreatedAt: createdAt}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: marshal embed record: %v", kerr.SerializationFailure, err)
	}
	if _, err := e.store.Put(embedNamespace, embedKey(ns, key), data); err != nil {
		return err
	}

	id, _, err := embedID(ns, key)
	if err != nil {
		return err
	}

	meta := map[string]any{"namespace": ns, "key": key, "model": model, "created_at": createdAt}
	for k, v := range metadata {
		meta[k] = v
	}
	return e.ann.Insert(context.Background(), id, vector, meta)
}

// DeleteEmbed removes (ns, key)'s vector from the index and its
// persisted record.
func (e *Engine) DeleteEmbed(ns, key string) error {
	if e.ann == nil {
		return fmt.Errorf("%w: ANN index not enabled", kerr.PreconditionViolation)
	}
	id, _, err := embedID(ns, key)
	if err != nil {
		return err
	}
	e.ann.Remove(id)
	_, err = e.store.Delete(embedNamespace, embedKey(ns, key))
	return err
}

// SimilarHit is one ranked match returned by Similar/SimilarAt.
type SimilarHit struct {
	Namespace  string
	Key        string
	Similarity float32
}

// Similar searches for the k nearest embedded vectors to query, scoped
// to ns if non-empty and filtered to similarity >= threshold if
// threshold > 0.
func (e *Engine) Similar(ns string, query []float32, k, efSearch int, threshold float64) ([]SimilarHit, error) {
	if e.ann == nil {
		return nil, fmt.Errorf("%w: ANN index not enabled", kerr.PreconditionViolation)
	}
	results, err := e.ann.Search(query, k*4+k, efSearch) // overfetch so post-filtering still yields k
	if err != nil {
		return nil, err
	}
	return filterSimilar(results, ns, k, threshold), nil
}

// SimilarAt searches as Similar does, further restricting results to
// embeddings whose source value existed at or before timestamp at —
// an approximation of true point-in-time vector search, since the ANN
// graph itself reflects only the current embedding set (see DESIGN.md).
func (e *Engine) SimilarAt(ns string, query []float32, at int64, k int) ([]SimilarHit, error) {
	if e.ann == nil {
		return nil, fmt.Errorf("%w: ANN index not enabled", kerr.PreconditionViolation)
	}
	results, err := e.ann.Search(query, k*4+k, 0)
	if err != nil {
		return nil, err
	}

	var filtered []ann.Result
	for _, r := range results {
		createdAt, _ := r.Metadata["created_at"].(int64)
		if createdAt <= at {
			filtered = append(filtered, r)
		}
	}
	return filterSimilar(filtered, ns, k, 0), nil
}

func filterSimilar(results []ann.Result, ns string, k int, threshold float64) []SimilarHit {
	var out []SimilarHit
	for _, r := range results {
		if threshold > 0 && float64(r.Similarity) < threshold {
			continue
		}
		rns, _ := r.Metadata["namespace"].(string)
		if ns != "" && rns != ns {
			continue
		}
		rkey, _ := r.Metadata["key"].(string)
		out = append(out, SimilarHit{Namespace: rns, Key: rkey, Similarity: r.Similarity})
		if k > 0 && len(out) >= k {
			break
		}
	}
	return out
}
