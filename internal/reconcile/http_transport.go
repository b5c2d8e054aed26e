package reconcile

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"koru-delta/internal/hashing"
	"koru-delta/internal/ids"
	"koru-delta/internal/kerr"
)

// HTTPTransport is the peer-facing Transport implementation internal/api
// exposes over /internal/reconcile/*, structurally modeled on the
// teacher's Replicator.doHTTPReplicate/fetchFromPeer: a context-scoped
// http.Client call per round, JSON bodies, and exponential backoff
// retries on transient failures. Unlike the teacher's fan-out-to-N-peers
// quorum writer, a Session reconciles with exactly one peer at a time.
type HTTPTransport struct {
	peerAddr string
	client   *http.Client
}

// NewHTTPTransport builds a Transport that talks to the peer reachable
// at addr (host:port).
func NewHTTPTransport(addr string) *HTTPTransport {
	return &HTTPTransport{peerAddr: addr, client: &http.Client{Timeout: 10 * time.Second}}
}

type wireVersionDTO struct {
	WriteID       string `json:"write_id"`
	DistinctionID string `json:"distinction_id"`
	Namespace     string `json:"namespace"`
	Key           string `json:"key"`
	TimestampNS   int64  `json:"timestamp_ns"`
	PreviousWrite string `json:"previous_write_id,omitempty"`
	HasPrevious   bool   `json:"has_previous"`
	Tombstone     bool   `json:"tombstone"`
	Value         []byte `json:"value,omitempty"`
}

func toDTO(v WireVersion) wireVersionDTO {
	dto := wireVersionDTO{
		WriteID:       v.WriteID.String(),
		DistinctionID: v.DistinctionID.String(),
		Namespace:     v.Namespace,
		Key:           v.Key,
		TimestampNS:   v.TimestampNS,
		HasPrevious:   v.HasPrevious,
		Tombstone:     v.Tombstone,
		Value:         v.Value,
	}
	if v.HasPrevious {
		dto.PreviousWrite = v.PreviousWrite.String()
	}
	return dto
}

func fromDTO(dto wireVersionDTO) (WireVersion, error) {
	w, err := ids.ParseWriteID(dto.WriteID)
	if err != nil {
		return WireVersion{}, fmt.Errorf("%w: decode write_id: %v", kerr.Corruption, err)
	}
	d, err := decodeDistinctionID(dto.DistinctionID)
	if err != nil {
		return WireVersion{}, err
	}
	wv := WireVersion{
		WriteID:       w,
		DistinctionID: d,
		Namespace:     dto.Namespace,
		Key:           dto.Key,
		TimestampNS:   dto.TimestampNS,
		HasPrevious:   dto.HasPrevious,
		Tombstone:     dto.Tombstone,
		Value:         dto.Value,
	}
	if dto.HasPrevious {
		prev, err := ids.ParseWriteID(dto.PreviousWrite)
		if err != nil {
			return WireVersion{}, fmt.Errorf("%w: decode previous_write_id: %v", kerr.Corruption, err)
		}
		wv.PreviousWrite = prev
	}
	return wv, nil
}

// ParseDistinctionID decodes the hex form a Transport exchanges back
// into a hashing.DistinctionID, for server-side handlers that receive
// the same wire encoding HTTPTransport sends.
func ParseDistinctionID(s string) (hashing.DistinctionID, error) {
	return decodeDistinctionID(s)
}

func decodeDistinctionID(s string) (hashing.DistinctionID, error) {
	var d hashing.DistinctionID
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(d) {
		return d, fmt.Errorf("%w: decode distinction_id %q", kerr.Corruption, s)
	}
	copy(d[:], b)
	return d, nil
}

// FetchMerkleRoot retrieves the peer's full distinction_id set and
// rebuilds the tree locally, since leaf hashing is deterministic — the
// O(n) id-list transfer is the same simplicity tradeoff documented for
// internal/store's reconciliation adapters (see DESIGN.md).
func (t *HTTPTransport) FetchMerkleRoot(ctx context.Context) (*MerkleTree, error) {
	var hexIDs []string
	if err := t.doJSON(ctx, http.MethodGet, "/internal/reconcile/ids", nil, &hexIDs); err != nil {
		return nil, err
	}
	out := make([]hashing.DistinctionID, 0, len(hexIDs))
	for _, h := range hexIDs {
		d, err := decodeDistinctionID(h)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return BuildMerkleTree(out), nil
}

// FetchBloomFilter asks the peer to size and populate a filter over its
// own id set and returns the deserialized result.
func (t *HTTPTransport) FetchBloomFilter(ctx context.Context, cardinality uint64, fpr float64) (*BloomFilter, error) {
	url := fmt.Sprintf("http://%s/internal/reconcile/bloom?n=%d&fpr=%s", t.peerAddr, cardinality, formatFPR(fpr))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.doWithRetry(req)
	if err != nil {
		return nil, wrapTimeout(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return UnmarshalBloomFilter(data)
}

// FetchMissing posts the candidate distinction_id set and returns every
// version record the peer holds for them.
func (t *HTTPTransport) FetchMissing(ctx context.Context, idsWanted []hashing.DistinctionID) ([]WireVersion, error) {
	hexIDs := make([]string, len(idsWanted))
	for i, d := range idsWanted {
		hexIDs[i] = d.String()
	}

	var dtos []wireVersionDTO
	if err := t.doJSON(ctx, http.MethodPost, "/internal/reconcile/missing", hexIDs, &dtos); err != nil {
		return nil, err
	}

	out := make([]WireVersion, 0, len(dtos))
	for _, dto := range dtos {
		wv, err := fromDTO(dto)
		if err != nil {
			return nil, err
		}
		out = append(out, wv)
	}
	return out, nil
}

func (t *HTTPTransport) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	url := fmt.Sprintf("http://%s%s", t.peerAddr, path)
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.doWithRetry(req)
	if err != nil {
		return wrapTimeout(err)
	}
	defer resp.Body.Close()

	return json.NewDecoder(resp.Body).Decode(out)
}

// doWithRetry sends req with exponential backoff retries, mirroring the
// teacher's sendReplicateRequest thundering-herd-prevention rationale.
func (t *HTTPTransport) doWithRetry(req *http.Request) (*http.Response, error) {
	const maxRetries = 3
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))*100) * time.Millisecond
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(delay):
			}
		}

		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			req.Body = body
		}

		resp, err := t.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 300 {
			resp.Body.Close()
			lastErr = fmt.Errorf("peer returned HTTP %d", resp.StatusCode)
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("reconcile request to %s after %d attempts: %w", t.peerAddr, maxRetries, lastErr)
}

func formatFPR(fpr float64) string {
	if fpr <= 0 {
		fpr = defaultFPR
	}
	return fmt.Sprintf("%g", fpr)
}
