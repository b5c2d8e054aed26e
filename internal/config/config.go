// Package config holds koru-delta's tunables, generalizing the
// teacher's flag-based cmd/server/main.go configuration into a single
// struct with documented defaults, per SPEC_FULL.md's ambient-stack
// expansion of spec.md §6.
package config

import "time"

// Config bundles every tunable the engine's subsystems need at startup.
type Config struct {
	// StoragePath is the root directory for the WAL, Cold containers,
	// and the genome. Empty means ephemeral in-memory (spec.md §6's
	// documented default).
	StoragePath string

	MemoryLimitBytes int64
	DiskLimitBytes   int64

	HotCapacity       int
	WarmIdleDemotion  time.Duration
	ColdEpochRotation time.Duration

	WALSegmentSize int64

	ANNEnabled  bool
	ANNM        int
	ANNEfSearch int

	BloomFPR float64

	ConsolidatorPeriod  time.Duration
	DistillerPeriod     time.Duration
	GenomeUpdaterPeriod time.Duration
}

// Default returns the documented defaults: 512 MiB memory limit, 10 GiB
// disk limit, hot_capacity 1000, warm_idle_demotion 1h,
// cold_epoch_rotation 24h, ann_m 16, ann_ef_search 100, wal_segment_size
// 64 MiB, bloom_fpr 0.01.
func Default() Config {
	return Config{
		StoragePath:         "",
		MemoryLimitBytes:    512 * 1024 * 1024,
		DiskLimitBytes:      10 * 1024 * 1024 * 1024,
		HotCapacity:         1000,
		WarmIdleDemotion:    time.Hour,
		ColdEpochRotation:   24 * time.Hour,
		WALSegmentSize:      64 * 1024 * 1024,
		ANNEnabled:          false,
		ANNM:                16,
		ANNEfSearch:         100,
		BloomFPR:            0.01,
		ConsolidatorPeriod:  5 * time.Minute,
		DistillerPeriod:     time.Hour,
		GenomeUpdaterPeriod: time.Hour,
	}
}

// WithDefaults fills any zero-valued field of c with Default()'s value,
// so callers building a Config from partial flags/env don't need to
// repeat every default themselves.
func WithDefaults(c Config) Config {
	d := Default()
	if c.MemoryLimitBytes == 0 {
		c.MemoryLimitBytes = d.MemoryLimitBytes
	}
	if c.DiskLimitBytes == 0 {
		c.DiskLimitBytes = d.DiskLimitBytes
	}
	if c.HotCapacity == 0 {
		c.HotCapacity = d.HotCapacity
	}
	if c.WarmIdleDemotion == 0 {
		c.WarmIdleDemotion = d.WarmIdleDemotion
	}
	if c.ColdEpochRotation == 0 {
		c.ColdEpochRotation = d.ColdEpochRotation
	}
	if c.WALSegmentSize == 0 {
		c.WALSegmentSize = d.WALSegmentSize
	}
	if c.ANNM == 0 {
		c.ANNM = d.ANNM
	}
	if c.ANNEfSearch == 0 {
		c.ANNEfSearch = d.ANNEfSearch
	}
	if c.BloomFPR == 0 {
		c.BloomFPR = d.BloomFPR
	}
	if c.ConsolidatorPeriod == 0 {
		c.ConsolidatorPeriod = d.ConsolidatorPeriod
	}
	if c.DistillerPeriod == 0 {
		c.DistillerPeriod = d.DistillerPeriod
	}
	if c.GenomeUpdaterPeriod == 0 {
		c.GenomeUpdaterPeriod = d.GenomeUpdaterPeriod
	}
	return c
}
