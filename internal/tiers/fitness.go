package tiers

import "math"

// FitnessWeights parameterizes the distillation fitness function
// (resolved Open Question, see DESIGN.md): a version with high fitness
// stays resident longer; low fitness is distilled into the genome
// first. Monotonic in reference count and descendant count, decaying in
// recency, as spec.md §8's property list requires.
type FitnessWeights struct {
	RefWeight      float64
	DescWeight     float64
	RecencyWeight  float64
	PatternWeight  float64
	HalflifeSecond float64
}

// DefaultFitnessWeights balances reference count and recency about
// evenly, with a modest pattern-importance nudge reserved for callers
// that have query/access-pattern signal to contribute.
func DefaultFitnessWeights() FitnessWeights {
	return FitnessWeights{
		RefWeight:      0.35,
		DescWeight:     0.25,
		RecencyWeight:  0.30,
		PatternWeight:  0.10,
		HalflifeSecond: 6 * 3600,
	}
}

// Fitness computes fitness = w_ref*log1p(refCount) + w_desc*log1p(descCount)
// + w_recency*exp(-Δt/halflife) + w_pattern*patternImportance.
// ageSeconds is the time since the version's last access or write,
// whichever is more recent; patternImportance is a caller-supplied
// [0,1] signal (0 when no pattern model is wired in).
func Fitness(w FitnessWeights, refCount, descCount int, ageSeconds, patternImportance float64) float64 {
	recency := math.Exp(-ageSeconds / w.HalflifeSecond)
	return w.RefWeight*math.Log1p(float64(refCount)) +
		w.DescWeight*math.Log1p(float64(descCount)) +
		w.RecencyWeight*recency +
		w.PatternWeight*patternImportance
}
