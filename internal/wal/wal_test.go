package wal

import (
	"bytes"
	"os"
	"testing"
)

func TestWALAppendAndReplay(t *testing.T) {
	t.Run("replays records in append order", func(t *testing.T) {
		dir := t.TempDir()
		w, err := Open(dir, 0)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}

		records := [][]byte{[]byte("first"), []byte("second"), []byte("third")}
		for _, r := range records {
			if err := w.Append(r); err != nil {
				t.Fatalf("Append: %v", err)
			}
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}

		w2, err := Open(dir, 0)
		if err != nil {
			t.Fatalf("reopen: %v", err)
		}
		defer w2.Close()

		var got [][]byte
		err = w2.Replay(func(payload []byte) error {
			cp := append([]byte{}, payload...)
			got = append(got, cp)
			return nil
		})
		if err != nil {
			t.Fatalf("Replay: %v", err)
		}

		if len(got) != len(records) {
			t.Fatalf("expected %d records, got %d", len(records), len(got))
		}
		for i, r := range records {
			if !bytes.Equal(got[i], r) {
				t.Errorf("record %d: expected %q, got %q", i, r, got[i])
			}
		}
	})

	t.Run("rotates segments once the size threshold is crossed", func(t *testing.T) {
		dir := t.TempDir()
		// A tiny segment size forces a rotation after the first record.
		w, err := Open(dir, 1)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer w.Close()

		if err := w.Append([]byte("one")); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if err := w.Append([]byte("two")); err != nil {
			t.Fatalf("Append: %v", err)
		}

		idxs, err := listSegments(dir)
		if err != nil {
			t.Fatalf("listSegments: %v", err)
		}
		if len(idxs) < 2 {
			t.Errorf("expected at least 2 segments after crossing the size threshold, got %d", len(idxs))
		}
	})

	t.Run("replay stops at a corrupted record but keeps earlier ones", func(t *testing.T) {
		dir := t.TempDir()
		w, err := Open(dir, 0)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if err := w.Append([]byte("good")); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}

		// Corrupt the CRC of the single record by flipping a payload byte
		// directly on disk, after the 8-byte header.
		path := segmentPath(dir, 1)
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read segment: %v", err)
		}
		data[len(data)-1] ^= 0xFF
		if err := os.WriteFile(path, data, 0644); err != nil {
			t.Fatalf("write segment: %v", err)
		}

		w2, err := Open(dir, 0)
		if err != nil {
			t.Fatalf("reopen: %v", err)
		}
		defer w2.Close()

		var got [][]byte
		err = w2.Replay(func(payload []byte) error {
			got = append(got, payload)
			return nil
		})
		if err != nil {
			t.Fatalf("Replay should not itself error on a bad CRC, got %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected the sole corrupted record to be dropped, got %d records", len(got))
		}
	})
}

func TestLockFile(t *testing.T) {
	t.Run("reports no prior lock on first acquisition", func(t *testing.T) {
		dir := t.TempDir()
		lf, preexisting, err := AcquireLock(dir)
		if err != nil {
			t.Fatalf("AcquireLock: %v", err)
		}
		if preexisting {
			t.Errorf("expected preexisting=false on a fresh directory")
		}
		if err := lf.Release(); err != nil {
			t.Fatalf("Release: %v", err)
		}
	})

	t.Run("detects an unclean prior shutdown", func(t *testing.T) {
		dir := t.TempDir()
		lf1, _, err := AcquireLock(dir)
		if err != nil {
			t.Fatalf("AcquireLock: %v", err)
		}
		_ = lf1 // simulate a crash: never call Release

		_, preexisting, err := AcquireLock(dir)
		if err != nil {
			t.Fatalf("AcquireLock: %v", err)
		}
		if !preexisting {
			t.Errorf("expected preexisting=true when the lock file was never released")
		}
	})
}
