package tiers

import (
	"context"
	"fmt"
	"log"
	"time"

	"koru-delta/internal/graph"
	"koru-delta/internal/ids"
)

// Scheduler runs the three background processes that migrate entries
// between tiers, generalizing the teacher's single 60s snapshot ticker
// (cmd/server/main.go) into three independently-paced tickers. Each
// logs and continues on error rather than propagating to foreground
// writes, per spec.md §7's error-propagation policy.
type Scheduler struct {
	m   *Manager
	cfg Config
}

// NewScheduler builds a scheduler over m.
func NewScheduler(m *Manager, cfg Config) *Scheduler {
	return &Scheduler{m: m, cfg: cfg}
}

// Start launches the Consolidator, Distiller, and GenomeUpdater as
// goroutines, each on its own time.Ticker, stopping when ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	go s.runConsolidator(ctx)
	go s.runDistiller(ctx)
	go s.runGenomeUpdater(ctx)
}

func (s *Scheduler) runConsolidator(ctx context.Context) {
	t := time.NewTicker(s.cfg.ConsolidatorPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.consolidate(); err != nil {
				log.Printf("tiers: consolidator pass failed: %v", err)
			}
		}
	}
}

func (s *Scheduler) runDistiller(ctx context.Context) {
	t := time.NewTicker(s.cfg.DistillerPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.distill(); err != nil {
				log.Printf("tiers: distiller pass failed: %v", err)
			}
		}
	}
}

func (s *Scheduler) runGenomeUpdater(ctx context.Context) {
	t := time.NewTicker(s.cfg.GenomeUpdaterPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.updateGenome()
		}
	}
}

// consolidate ages idle Warm entries into a Cold epoch container named
// for the current rotation bucket. Hot->Warm demotion under capacity
// pressure is already handled by the LRU eviction callback.
func (s *Scheduler) consolidate() error {
	idleCutoff := time.Now().Add(-s.cfg.WarmIdleDemotion).UnixNano()
	idle := s.m.Warm.IdleSince(idleCutoff)
	if len(idle) == 0 {
		return nil
	}
	epochID := currentEpochID(s.cfg.ColdEpochRotation)
	return s.m.demoteWarmToCold(epochID, idle)
}

// distill scores every entry in each Cold epoch container and archives
// whole epochs whose mean fitness falls below the configured threshold
// into the genome, per SPEC_FULL.md §6's fitness-scored Cold->Deep
// archival.
func (s *Scheduler) distill() error {
	epochs, err := s.m.Cold.ListEpochs()
	if err != nil {
		return err
	}

	now := time.Now().UnixNano()
	for _, epochID := range epochs {
		entries, err := s.m.Cold.ReadEpoch(epochID)
		if err != nil {
			log.Printf("tiers: distiller: skipping unreadable epoch %s: %v", epochID, err)
			continue
		}
		if len(entries) == 0 {
			continue
		}

		minTS, maxTS := entries[0].Version.TimestampNS, entries[0].Version.TimestampNS
		var total float64
		for _, e := range entries {
			refCount := s.m.refs.ReferenceCount(e.Version.WriteID)
			descCount := len(s.m.causal.Descendants(e.Version.WriteID))
			ageSeconds := float64(now-e.Version.TimestampNS) / 1e9
			total += Fitness(s.cfg.FitnessWeights, refCount, descCount, ageSeconds, 0)
			if e.Version.TimestampNS < minTS {
				minTS = e.Version.TimestampNS
			}
			if e.Version.TimestampNS > maxTS {
				maxTS = e.Version.TimestampNS
			}
		}
		if total/float64(len(entries)) >= s.cfg.DistillThreshold {
			continue
		}

		blob, err := s.m.Cold.ReadRawEpoch(epochID)
		if err != nil {
			log.Printf("tiers: distiller: could not read raw epoch %s for archival: %v", epochID, err)
			continue
		}
		if err := s.m.Deep.ArchiveEpoch(epochID, blob); err != nil {
			log.Printf("tiers: distiller: could not archive epoch %s: %v", epochID, err)
			continue
		}

		g := s.m.Deep.Genome()
		g.EpochSummaries = append(g.EpochSummaries, EpochSummary{
			EpochID: epochID, EntryCount: len(entries), MinTS: minTS, MaxTS: maxTS,
		})
		s.m.Deep.SetGenome(g)

		writeIDs := make([]ids.WriteID, 0, len(entries))
		for _, e := range entries {
			writeIDs = append(writeIDs, e.Version.WriteID)
		}
		s.m.markDeep(writeIDs)
	}
	return nil
}

// updateGenome rebuilds the skeleton (roots plus high-degree nodes) from
// the causal/reference graphs, per SPEC_FULL.md §6.
func (s *Scheduler) updateGenome() {
	roots := s.m.causal.Roots()
	hot := s.m.refs.FindHotCandidates(1)

	keep := make(map[ids.WriteID]struct{}, len(roots)+len(hot))
	for _, r := range roots {
		keep[r] = struct{}{}
	}
	for _, h := range hot {
		keep[h] = struct{}{}
	}

	var skeleton []graph.Edge
	for _, e := range s.m.causal.AllEdges() {
		_, pOk := keep[e.Parent]
		_, cOk := keep[e.Child]
		if pOk || cOk {
			skeleton = append(skeleton, e)
		}
	}

	g := s.m.Deep.Genome()
	g.Roots = roots
	g.SkeletonEdges = skeleton
	s.m.Deep.SetGenome(g)
}

func currentEpochID(rotation time.Duration) string {
	if rotation <= 0 {
		rotation = 24 * time.Hour
	}
	bucket := time.Now().Unix() / int64(rotation/time.Second)
	return fmt.Sprintf("%012d", bucket)
}
