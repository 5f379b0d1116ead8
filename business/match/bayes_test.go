package match

import (
	"testing"

	"github.com/sebastianknopf/avl2gtfsrt/business/model"
)

func TestUpdateBayesianPriorsConvergesOnDominantCandidate(t *testing.T) {
	var priors map[string][]float64
	var converged bool

	// A dominant candidate repeatedly scoring far above its rivals should
	// converge well before MaxPriorVectorLength rounds are exhausted.
	for round := 0; round < 5 && !converged; round++ {
		likelihood := map[string]float64{
			"trip-a": 5.0,
			"trip-b": 0.1,
			"trip-c": 0.1,
		}
		converged, priors = UpdateBayesianPriors(priors, likelihood)
	}

	if !converged {
		t.Fatalf("expected convergence on a dominant candidate, priors=%v", priors)
	}

	best, bestValue := "", -1.0
	for key, vector := range priors {
		last := vector[len(vector)-1]
		if last > bestValue {
			bestValue, best = last, key
		}
	}
	if best != "trip-a" {
		t.Fatalf("expected trip-a to win, got %s (priors=%v)", best, priors)
	}
}

func TestUpdateBayesianPriorsDoesNotConvergeOnTies(t *testing.T) {
	var priors map[string][]float64
	converged, priors := UpdateBayesianPriors(priors, map[string]float64{
		"trip-a": 1.0,
		"trip-b": 1.0,
	})

	if converged {
		t.Fatalf("expected no convergence on a tied first round, priors=%v", priors)
	}
}

func TestUpdateBayesianPriorsTrimsVectorLength(t *testing.T) {
	var priors map[string][]float64
	for round := 0; round < 20; round++ {
		_, priors = UpdateBayesianPriors(priors, map[string]float64{
			"trip-a": 1.0,
			"trip-b": 1.01,
		})
	}
	for key, vector := range priors {
		if len(vector) > model.MaxPriorVectorLength {
			t.Fatalf("vector for %s not trimmed: len=%d, want <= %d", key, len(vector), model.MaxPriorVectorLength)
		}
	}
}

func TestUpdateBayesianPriorsPosteriorsSumToOne(t *testing.T) {
	_, priors := UpdateBayesianPriors(nil, map[string]float64{
		"trip-a": 2.0,
		"trip-b": 1.0,
		"trip-c": 0.3,
	})

	sum := 0.0
	for _, vector := range priors {
		sum += vector[len(vector)-1]
	}
	const epsilon = 1e-9
	if diff := sum - 1.0; diff > epsilon || diff < -epsilon {
		t.Fatalf("posteriors summed to %v, want 1.0", sum)
	}
}

func TestUpdateBayesianPriorsEmptyLikelihoodDoesNotConverge(t *testing.T) {
	converged, priors := UpdateBayesianPriors(nil, map[string]float64{})
	if converged {
		t.Fatalf("expected no convergence on empty input")
	}
	if len(priors) != 0 {
		t.Fatalf("expected no posteriors, got %v", priors)
	}
}
