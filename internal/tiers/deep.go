package tiers

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"koru-delta/internal/graph"
	"koru-delta/internal/ids"
	"koru-delta/internal/kerr"
)

// genomeFormatVersion is bumped whenever Genome's shape changes, per the
// resolved Open Question "genome format must be versioned" — Import
// rejects a mismatched version rather than guessing at a layout.
const genomeFormatVersion uint8 = 1

// EpochSummary is the per-epoch rollup retained in the genome once an
// epoch's individual entries have been distilled away.
type EpochSummary struct {
	EpochID    string
	EntryCount int
	MinTS      int64
	MaxTS      int64
}

// Genome is the maximally-compacted representation of history: no
// entry bytes, just roots, a skeleton of the causal graph (roots and
// high-degree nodes only — spec.md §4.3's "skeleton"), and per-epoch
// summaries.
type Genome struct {
	FormatVersion  uint8
	Roots          []ids.WriteID
	SkeletonEdges  []graph.Edge
	EpochSummaries []EpochSummary
}

// Deep stores the genome and archived epoch blobs under dir.
type Deep struct {
	mu     sync.RWMutex
	dir    string
	genome Genome
}

// NewDeep builds an empty Deep tier rooted at dir.
func NewDeep(dir string) *Deep {
	return &Deep{dir: dir, genome: Genome{FormatVersion: genomeFormatVersion}}
}

// SetGenome replaces the current genome, called by the GenomeUpdater
// after recomputing roots/skeleton/summaries.
func (d *Deep) SetGenome(g Genome) {
	g.FormatVersion = genomeFormatVersion
	d.mu.Lock()
	defer d.mu.Unlock()
	d.genome = g
}

// Genome returns the current genome snapshot.
func (d *Deep) Genome() Genome {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.genome
}

// Export serializes the current genome with encoding/gob, a leading
// version byte ahead of the gob stream so a future format change can be
// detected before attempting to decode.
func (d *Deep) Export() ([]byte, error) {
	d.mu.RLock()
	g := d.genome
	d.mu.RUnlock()

	var buf bytes.Buffer
	buf.WriteByte(genomeFormatVersion)
	if err := gob.NewEncoder(&buf).Encode(g); err != nil {
		return nil, fmt.Errorf("%w: encode genome: %v", kerr.SerializationFailure, err)
	}
	return buf.Bytes(), nil
}

// Import decodes a genome previously produced by Export and installs it
// as current.
func (d *Deep) Import(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty genome blob", kerr.Corruption)
	}
	version := data[0]
	if version != genomeFormatVersion {
		return fmt.Errorf("%w: genome format version %d unsupported (want %d)", kerr.Corruption, version, genomeFormatVersion)
	}

	var g Genome
	if err := gob.NewDecoder(bytes.NewReader(data[1:])).Decode(&g); err != nil {
		return fmt.Errorf("%w: decode genome: %v", kerr.Corruption, err)
	}

	d.mu.Lock()
	d.genome = g
	d.mu.Unlock()
	return nil
}

// ArchiveEpoch persists epoch data (the original epoch container bytes,
// or a distilled summary blob) under deep/archive for long-term cold
// storage once Cold no longer needs to retain it in full.
func (d *Deep) ArchiveEpoch(epochID string, blob []byte) error {
	archiveDir := filepath.Join(d.dir, "archive")
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return fmt.Errorf("%w: create deep archive dir: %v", kerr.StorageFailure, err)
	}
	path := filepath.Join(archiveDir, epochID+".blob")
	if err := os.WriteFile(path, blob, 0644); err != nil {
		return fmt.Errorf("%w: write archived epoch: %v", kerr.StorageFailure, err)
	}
	return nil
}

// Retrieve reads back an archived epoch blob by id.
func (d *Deep) Retrieve(epochID string) ([]byte, error) {
	path := filepath.Join(d.dir, "archive", epochID+".blob")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: archived epoch %s", kerr.NotFound, epochID)
		}
		return nil, fmt.Errorf("%w: read archived epoch: %v", kerr.StorageFailure, err)
	}
	return data, nil
}
