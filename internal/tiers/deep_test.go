package tiers

import (
	"errors"
	"testing"

	"koru-delta/internal/graph"
	"koru-delta/internal/ids"
	"koru-delta/internal/kerr"
)

func TestDeepGenomeExportImport(t *testing.T) {
	t.Run("round-trips a genome through Export/Import", func(t *testing.T) {
		d := NewDeep(t.TempDir())
		root := ids.NewWriteID()
		g := Genome{
			Roots:          []ids.WriteID{root},
			SkeletonEdges:  []graph.Edge{{Parent: root, Child: ids.NewWriteID()}},
			EpochSummaries: []EpochSummary{{EpochID: "epoch-1", EntryCount: 3, MinTS: 1, MaxTS: 10}},
		}
		d.SetGenome(g)

		data, err := d.Export()
		if err != nil {
			t.Fatalf("Export: %v", err)
		}

		d2 := NewDeep(t.TempDir())
		if err := d2.Import(data); err != nil {
			t.Fatalf("Import: %v", err)
		}

		got := d2.Genome()
		if len(got.Roots) != 1 || got.Roots[0] != root {
			t.Errorf("expected roots %v, got %v", g.Roots, got.Roots)
		}
		if len(got.EpochSummaries) != 1 || got.EpochSummaries[0].EpochID != "epoch-1" {
			t.Errorf("expected epoch summary epoch-1, got %v", got.EpochSummaries)
		}
	})

	t.Run("rejects an empty blob", func(t *testing.T) {
		d := NewDeep(t.TempDir())
		if err := d.Import(nil); !errors.Is(err, kerr.Corruption) {
			t.Errorf("expected Corruption for an empty blob, got %v", err)
		}
	})

	t.Run("rejects a mismatched format version", func(t *testing.T) {
		d := NewDeep(t.TempDir())
		data, err := d.Export()
		if err != nil {
			t.Fatalf("Export: %v", err)
		}
		data[0] = genomeFormatVersion + 1

		if err := d.Import(data); !errors.Is(err, kerr.Corruption) {
			t.Errorf("expected Corruption for a mismatched version, got %v", err)
		}
	})
}

func TestDeepArchiveRetrieve(t *testing.T) {
	d := NewDeep(t.TempDir())
	blob := []byte("archived epoch bytes")

	if err := d.ArchiveEpoch("epoch-1", blob); err != nil {
		t.Fatalf("ArchiveEpoch: %v", err)
	}

	got, err := d.Retrieve("epoch-1")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if string(got) != string(blob) {
		t.Errorf("expected %q, got %q", blob, got)
	}

	if _, err := d.Retrieve("missing"); !errors.Is(err, kerr.NotFound) {
		t.Errorf("expected NotFound for a missing epoch, got %v", err)
	}
}
