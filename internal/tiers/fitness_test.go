package tiers

import "testing"

func TestFitness(t *testing.T) {
	w := DefaultFitnessWeights()

	t.Run("is monotonic in reference count", func(t *testing.T) {
		low := Fitness(w, 1, 0, 0, 0)
		high := Fitness(w, 100, 0, 0, 0)
		if high <= low {
			t.Errorf("expected fitness to increase with reference count, got low=%f high=%f", low, high)
		}
	})

	t.Run("is monotonic in descendant count", func(t *testing.T) {
		low := Fitness(w, 0, 1, 0, 0)
		high := Fitness(w, 0, 100, 0, 0)
		if high <= low {
			t.Errorf("expected fitness to increase with descendant count, got low=%f high=%f", low, high)
		}
	})

	t.Run("decays with age", func(t *testing.T) {
		fresh := Fitness(w, 5, 5, 0, 0)
		old := Fitness(w, 5, 5, w.HalflifeSecond*10, 0)
		if old >= fresh {
			t.Errorf("expected fitness to decay with age, got fresh=%f old=%f", fresh, old)
		}
	})

	t.Run("pattern importance adds a nonnegative contribution", func(t *testing.T) {
		without := Fitness(w, 1, 1, 0, 0)
		with := Fitness(w, 1, 1, 0, 1)
		if with < without {
			t.Errorf("expected a positive pattern-importance signal to not decrease fitness")
		}
	})
}
