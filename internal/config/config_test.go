package config

import "testing"

func TestDefault(t *testing.T) {
	d := Default()
	if d.HotCapacity != 1000 {
		t.Errorf("expected hot capacity 1000, got %d", d.HotCapacity)
	}
	if d.BloomFPR != 0.01 {
		t.Errorf("expected bloom fpr 0.01, got %v", d.BloomFPR)
	}
	if d.StoragePath != "" {
		t.Errorf("expected the default storage path to be empty (ephemeral), got %q", d.StoragePath)
	}
	if d.ANNEnabled {
		t.Errorf("expected ANN to be disabled by default")
	}
}

func TestWithDefaults(t *testing.T) {
	t.Run("fills zero-valued fields from Default", func(t *testing.T) {
		c := WithDefaults(Config{})
		d := Default()
		if c.HotCapacity != d.HotCapacity {
			t.Errorf("expected hot capacity filled to %d, got %d", d.HotCapacity, c.HotCapacity)
		}
		if c.WALSegmentSize != d.WALSegmentSize {
			t.Errorf("expected wal segment size filled to %d, got %d", d.WALSegmentSize, c.WALSegmentSize)
		}
		if c.ConsolidatorPeriod != d.ConsolidatorPeriod {
			t.Errorf("expected consolidator period filled, got %v", c.ConsolidatorPeriod)
		}
	})

	t.Run("preserves explicitly set fields", func(t *testing.T) {
		c := WithDefaults(Config{HotCapacity: 42, StoragePath: "/data"})
		if c.HotCapacity != 42 {
			t.Errorf("expected hot capacity to stay 42, got %d", c.HotCapacity)
		}
		if c.StoragePath != "/data" {
			t.Errorf("expected storage path to stay /data, got %q", c.StoragePath)
		}
		// unset fields still fall back to defaults
		if c.BloomFPR != Default().BloomFPR {
			t.Errorf("expected bloom fpr to fall back to default, got %v", c.BloomFPR)
		}
	})

	t.Run("leaves an explicit true ANNEnabled alone", func(t *testing.T) {
		c := WithDefaults(Config{ANNEnabled: true})
		if !c.ANNEnabled {
			t.Errorf("expected ANNEnabled to stay true")
		}
	})
}
