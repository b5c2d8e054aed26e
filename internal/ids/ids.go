// Package ids mints the two identifiers that make up KoruDelta's write
// model: a per-write WriteID (random, content-independent) and a
// monotone nanosecond Clock shared by a process's writes.
//
// The write/content split is the one piece of the design that must never
// be collapsed: two puts of byte-identical values must share a
// DistinctionID (see internal/hashing) but mint distinct WriteIDs, or
// history silently loses entries.
package ids

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// WriteID is a per-write unique identifier, independent of value content.
type WriteID [16]byte

// NewWriteID mints a fresh random write identity.
func NewWriteID() WriteID {
	return WriteID(uuid.New())
}

// String renders the canonical UUID text form.
func (w WriteID) String() string {
	return uuid.UUID(w).String()
}

// Less gives the lexicographic tie-break order spec.md requires for LCA
// and divergence resolution ("ties broken by lower/greater write_id
// lexicographically").
func (w WriteID) Less(other WriteID) bool {
	for i := range w {
		if w[i] != other[i] {
			return w[i] < other[i]
		}
	}
	return false
}

// ParseWriteID parses the canonical text form back into a WriteID.
func ParseWriteID(s string) (WriteID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return WriteID{}, err
	}
	return WriteID(u), nil
}

// Clock allocates monotone nanosecond timestamps for one process.
//
// timestamp_ns = max(wall_clock_ns, last_issued + 1), then last_issued is
// updated — so timestamps never decrease within a process even under a
// burst of writes landing in the same wall-clock nanosecond, and two
// writes issued back-to-back always compare strictly greater.
type Clock struct {
	mu         sync.Mutex
	lastIssued int64
}

// Now allocates the next monotone timestamp.
func (c *Clock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	wall := time.Now().UnixNano()
	next := c.lastIssued + 1
	if wall > next {
		next = wall
	}
	c.lastIssued = next
	return next
}

// Observe folds an externally-supplied timestamp (e.g. replayed from the
// WAL, or received from a peer during reconciliation) into the clock so
// that subsequently minted timestamps still come out monotone.
func (c *Clock) Observe(ts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts > c.lastIssued {
		c.lastIssued = ts
	}
}
