package tiers

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"koru-delta/internal/ids"
	"koru-delta/internal/kerr"
	"koru-delta/internal/store"
	"koru-delta/internal/wal"
)

// Cold holds zstd-compressed epoch containers under dir, one file per
// rotation (cold/epoch-<id>.bin), each a stream of the same length-
// prefixed envelope payloads the WAL uses, reused here for format
// consistency per SPEC_FULL.md §6.
type Cold struct {
	mu  sync.RWMutex
	dir string

	// index caches write_id -> epochID so Get only has to scan one
	// container instead of every container on every lookup.
	index map[string]coldLocation
}

type coldLocation struct {
	epochID string
}

// NewCold builds a Cold tier rooted at dir. The directory is created
// lazily on first Admit.
func NewCold(dir string) *Cold {
	return &Cold{dir: dir, index: make(map[string]coldLocation)}
}

// Admit compresses entries into the named epoch container, appending if
// the container already exists.
func (c *Cold) Admit(epochID string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("%w: create cold dir: %v", kerr.StorageFailure, err)
	}

	path := filepath.Join(c.dir, fmt.Sprintf("epoch-%s.bin", epochID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("%w: open cold container: %v", kerr.StorageFailure, err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("%w: init zstd writer: %v", kerr.StorageFailure, err)
	}
	for _, e := range entries {
		env := entryToEnvelope(e)
		payload := env.Encode()
		var header [8]byte
		binary.LittleEndian.PutUint32(header[0:4], uint32(len(payload)))
		binary.LittleEndian.PutUint32(header[4:8], crc32.ChecksumIEEE(payload))
		if _, err := zw.Write(header[:]); err != nil {
			return fmt.Errorf("%w: write cold header: %v", kerr.StorageFailure, err)
		}
		if _, err := zw.Write(payload); err != nil {
			return fmt.Errorf("%w: write cold payload: %v", kerr.StorageFailure, err)
		}
		c.index[e.Version.WriteID.String()] = coldLocation{epochID: epochID}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("%w: close zstd writer: %v", kerr.StorageFailure, err)
	}
	return nil
}

// Get scans the epoch container recorded for id and returns the entry,
// if found.
func (c *Cold) Get(id ids.WriteID) (Entry, bool) {
	c.mu.RLock()
	loc, ok := c.index[id.String()]
	c.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}
	entries, err := c.ReadEpoch(loc.epochID)
	if err != nil {
		return Entry{}, false
	}
	for _, e := range entries {
		if e.Version.WriteID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// ReadEpoch decompresses and decodes every entry in the named epoch
// container.
func (c *Cold) ReadEpoch(epochID string) ([]Entry, error) {
	path := filepath.Join(c.dir, fmt.Sprintf("epoch-%s.bin", epochID))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open cold container: %v", kerr.StorageFailure, err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: init zstd reader: %v", kerr.StorageFailure, err)
	}
	defer zr.Close()

	r := bufio.NewReader(zr)
	var out []Entry
	for {
		var header [8]byte
		if _, err := io.ReadFull(r, header[:]); err != nil {
			if err == io.EOF {
				break
			}
			return out, fmt.Errorf("%w: truncated cold header", kerr.Corruption)
		}
		length := binary.LittleEndian.Uint32(header[0:4])
		wantCRC := binary.LittleEndian.Uint32(header[4:8])
		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return out, fmt.Errorf("%w: truncated cold payload", kerr.Corruption)
		}
		if crc32.ChecksumIEEE(payload) != wantCRC {
			return out, fmt.Errorf("%w: cold container crc mismatch", kerr.Corruption)
		}
		env, err := wal.DecodeEnvelope(payload)
		if err != nil {
			return out, err
		}
		out = append(out, envelopeToEntry(env))
	}
	return out, nil
}

// ReadRawEpoch returns the epoch container's raw (still zstd-compressed)
// bytes, used when archiving a whole epoch into Deep storage without
// re-encoding it.
func (c *Cold) ReadRawEpoch(epochID string) ([]byte, error) {
	path := filepath.Join(c.dir, fmt.Sprintf("epoch-%s.bin", epochID))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read cold container: %v", kerr.StorageFailure, err)
	}
	return data, nil
}

// ListEpochs returns the epoch ids currently present under dir.
func (c *Cold) ListEpochs() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: list cold dir: %v", kerr.StorageFailure, err)
	}
	var out []string
	const prefix, suffix = "epoch-", ".bin"
	for _, e := range entries {
		name := e.Name()
		if len(name) > len(prefix)+len(suffix) && name[:len(prefix)] == prefix {
			out = append(out, name[len(prefix):len(name)-len(suffix)])
		}
	}
	return out, nil
}

func entryToEnvelope(e Entry) *wal.Envelope {
	kind := wal.KindPut
	if e.Version.Tombstone {
		kind = wal.KindTombstone
	}
	return &wal.Envelope{
		Kind:          kind,
		WriteID:       e.Version.WriteID,
		DistinctionID: e.Version.DistinctionID,
		Namespace:     e.Version.Namespace,
		Key:           e.Version.Key,
		PreviousWrite: e.Version.PreviousWrite,
		HasPrevious:   e.Version.HasPrevious,
		TimestampNS:   e.Version.TimestampNS,
		Value:         e.Value,
	}
}

func envelopeToEntry(env *wal.Envelope) Entry {
	return Entry{
		Version: store.Version{
			WriteID:       env.WriteID,
			DistinctionID: env.DistinctionID,
			Namespace:     env.Namespace,
			Key:           env.Key,
			TimestampNS:   env.TimestampNS,
			PreviousWrite: env.PreviousWrite,
			HasPrevious:   env.HasPrevious,
			Tombstone:     env.Kind == wal.KindTombstone,
		},
		Value: env.Value,
	}
}
