package reconcile

import (
	"context"
	"fmt"
	"sync"

	"koru-delta/internal/hashing"
	"koru-delta/internal/ids"
	"koru-delta/internal/kerr"
)

// WireVersion is a version record plus its value bytes, as exchanged
// with a peer — the over-the-wire counterpart of store.VersionedValue,
// kept free of a store import so Transport implementations don't need
// to depend on internal/store.
type WireVersion struct {
	WriteID       ids.WriteID
	DistinctionID hashing.DistinctionID
	Namespace     string
	Key           string
	TimestampNS   int64
	PreviousWrite ids.WriteID
	HasPrevious   bool
	Tombstone     bool
	Value         []byte
}

// Transport is the peer-facing half of reconciliation. The HTTP
// implementation lives in internal/api's /internal/reconcile/* routes
// (a generalization of the teacher's /internal/replicate and
// /internal/fetch/:key); tests inject an in-process implementation.
type Transport interface {
	FetchMerkleRoot(ctx context.Context) (*MerkleTree, error)
	FetchBloomFilter(ctx context.Context, cardinality uint64, fpr float64) (*BloomFilter, error)
	FetchMissing(ctx context.Context, ids []hashing.DistinctionID) ([]WireVersion, error)
}

// Applier is the local half of reconciliation: whatever can apply an
// incoming version, report whether a write_id is already known (to
// decide buffering), and enumerate its own distinction_id set for
// Merkle/Bloom construction. internal/store.Store implements this
// directly.
type Applier interface {
	ApplyIncomingWire(v WireVersion) (applied bool, err error)
	HasWrite(w ids.WriteID) bool
	AllDistinctionIDs() []hashing.DistinctionID
}

// Session drives one run of the 6-step protocol of spec.md §4.6 against
// a single peer, buffering versions whose previous_write_id hasn't
// arrived yet and retrying them once their ancestor lands. Divergence
// (step 6) and idempotence are resolved by Applier.ApplyIncomingWire
// itself (store.ApplyIncoming), since reconciliation is pure data
// exchange over the same apply path live writes use.
type Session struct {
	local     Applier
	transport Transport

	mu       sync.Mutex
	awaiting map[ids.WriteID][]WireVersion
}

// NewSession builds a reconciliation session against one peer.
func NewSession(local Applier, transport Transport) *Session {
	return &Session{local: local, transport: transport, awaiting: make(map[ids.WriteID][]WireVersion)}
}

// Run executes the full protocol and returns the number of versions
// newly applied (versions already present locally, detected via
// idempotent apply, are not counted).
func (s *Session) Run(ctx context.Context) (applied int, err error) {
	localIDs := s.local.AllDistinctionIDs()
	localTree := BuildMerkleTree(localIDs)

	// Step 1: exchange root hashes; equal means already converged.
	peerTree, err := s.transport.FetchMerkleRoot(ctx)
	if err != nil {
		return 0, wrapTimeout(err)
	}
	if localTree.RootHash() == peerTree.RootHash() {
		return 0, nil
	}

	// Step 2: bloom exchange. The peer's filter lets us narrow what we
	// ask for, but the decisive signal for what to fetch remains the
	// Merkle diff below — the bloom pass exists to let large, mostly
	// converged peers skip an O(n) id-list exchange; here it narrows the
	// eventual fetch further by re-testing.
	peerFilter, err := s.transport.FetchBloomFilter(ctx, uint64(len(localIDs)), defaultFPR)
	if err != nil {
		return 0, wrapTimeout(err)
	}

	// Step 3: collect every id either side holds in a differing leaf —
	// the region may contain ids unique to the peer (what we need to
	// fetch) as well as ids we already share with it (harmless to
	// re-request; ApplyIncomingWire's idempotence skips them).
	differing := localTree.Diff(peerTree)
	seen := make(map[hashing.DistinctionID]struct{})
	var candidates []hashing.DistinctionID
	for _, leafIdx := range differing {
		for _, id := range localTree.Leaf(leafIdx) {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				candidates = append(candidates, id)
			}
		}
		for _, id := range peerTree.Leaf(leafIdx) {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				candidates = append(candidates, id)
			}
		}
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	// The ids we might be missing are the ones in differing leaves that
	// the peer holds: keep only the candidates the peer's filter reports
	// as (possibly) present on its side.
	var candidateMissingLocally []hashing.DistinctionID
	for _, id := range candidates {
		if peerFilter.Contains(id) {
			candidateMissingLocally = append(candidateMissingLocally, id)
		}
	}
	if len(candidateMissingLocally) == 0 {
		candidateMissingLocally = candidates
	}

	// Step 4: fetch the full version records for the candidate set.
	missing, err := s.transport.FetchMissing(ctx, candidateMissingLocally)
	if err != nil {
		return 0, wrapTimeout(err)
	}

	// Step 5: apply, buffering anything whose ancestor hasn't arrived
	// yet and retrying once that ancestor is applied.
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, wv := range missing {
		n, err := s.applyLocked(wv)
		if err != nil {
			return applied, err
		}
		applied += n
	}
	return applied, nil
}

// applyLocked applies wv if its ancestor (if any) is already known
// locally, then recursively drains anything buffered under wv's own
// write_id. Caller must hold s.mu.
func (s *Session) applyLocked(wv WireVersion) (int, error) {
	if wv.HasPrevious && !s.local.HasWrite(wv.PreviousWrite) {
		s.awaiting[wv.PreviousWrite] = append(s.awaiting[wv.PreviousWrite], wv)
		return 0, nil
	}

	applied, err := s.local.ApplyIncomingWire(wv)
	if err != nil {
		return 0, err
	}

	count := 0
	if applied {
		count = 1
	}
	ready := s.awaiting[wv.WriteID]
	delete(s.awaiting, wv.WriteID)
	for _, b := range ready {
		n, err := s.applyLocked(b)
		if err != nil {
			return count, err
		}
		count += n
	}
	return count, nil
}

// Pending reports how many versions remain buffered awaiting an
// ancestor that was never fetched (e.g. it lies outside this run's
// candidate set) — a non-zero count means a follow-up Run is needed.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, vs := range s.awaiting {
		n += len(vs)
	}
	return n
}

func wrapTimeout(err error) error {
	if err == context.DeadlineExceeded || err == context.Canceled {
		return fmt.Errorf("%w: %v", kerr.Timeout, err)
	}
	return err
}
