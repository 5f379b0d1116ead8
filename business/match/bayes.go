package match

import (
	"math"
	"sort"

	"github.com/sebastianknopf/avl2gtfsrt/business/model"
)

// ConvergenceAlpha is the exponent applied to the likelihood term in the
// Bayesian update (§4.3.3); 1.0 reduces to a plain product of prior and
// likelihood.
const ConvergenceAlpha = 1.0

// highConvergenceThreshold is the posterior above which a single sample is
// enough to declare convergence.
const highConvergenceThreshold = 0.98

// stableConvergenceThreshold is the posterior above which three consecutive
// stable samples are enough to declare convergence.
const stableConvergenceThreshold = 0.50

// stableConvergenceSpread is the maximum pairwise difference among the last
// three posteriors for the stable-convergence test to pass.
const stableConvergenceSpread = 0.02

// softmax normalizes raw scores into a probability distribution, subtracting
// the max for numerical stability.
func softmax(likelihood map[string]float64) map[string]float64 {
	if len(likelihood) == 0 {
		return map[string]float64{}
	}
	max := math.Inf(-1)
	for _, v := range likelihood {
		if v > max {
			max = v
		}
	}
	exp := make(map[string]float64, len(likelihood))
	sum := 0.0
	for k, v := range likelihood {
		e := math.Exp(v - max)
		exp[k] = e
		sum += e
	}
	result := make(map[string]float64, len(likelihood))
	for k, e := range exp {
		if sum == 0 {
			result[k] = 0
			continue
		}
		result[k] = e / sum
	}
	return result
}

// sortedKeys returns m's keys sorted for deterministic pairing.
func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// UpdateBayesianPriors runs one round of the Bayesian convergence update
// (§4.3.3) given raw candidate scores (product of spatial and temporal
// scores) and the prior posterior vectors carried from the previous round
// (nil or empty on the first round for a vehicle). It returns whether the
// arg-max candidate has converged and the updated posterior vectors.
func UpdateBayesianPriors(priors map[string][]float64, likelihood map[string]float64) (bool, map[string][]float64) {
	normalized := softmax(likelihood)

	// Priors for keys appearing for the first time are seeded with the raw
	// (pre-softmax) likelihood value, matching how a vehicle's very first
	// matching round seeds its whole prior map from the raw candidate scores.
	working := make(map[string][]float64, len(normalized))
	for key := range normalized {
		if existing, ok := priors[key]; ok && len(existing) > 0 {
			working[key] = append([]float64(nil), existing...)
		} else {
			working[key] = []float64{likelihood[key]}
		}
	}

	keys := sortedKeys(normalized)

	rawPosteriors := make(map[string]float64, len(keys))
	total := 0.0
	for _, key := range keys {
		priorVector := working[key]
		priorLast := priorVector[len(priorVector)-1]
		raw := priorLast * math.Pow(normalized[key], ConvergenceAlpha)
		rawPosteriors[key] = raw
		total += raw
	}

	result := make(map[string][]float64, len(keys))
	for _, key := range keys {
		posterior := 0.0
		if total > 0 {
			posterior = rawPosteriors[key] / total
		}
		vector := append(working[key], posterior)
		if len(vector) > model.MaxPriorVectorLength {
			vector = vector[len(vector)-model.MaxPriorVectorLength:]
		}
		result[key] = vector
	}

	return isConverged(result), result
}

// isConverged applies the convergence test (§4.3.3) to the arg-max candidate
// in posteriors.
func isConverged(posteriors map[string][]float64) bool {
	if len(posteriors) == 0 {
		return false
	}
	bestKey, bestValue := "", -1.0
	for key, vector := range posteriors {
		last := vector[len(vector)-1]
		if last > bestValue {
			bestValue, bestKey = last, key
		}
	}
	vector := posteriors[bestKey]
	if bestValue > highConvergenceThreshold {
		return true
	}
	if bestValue > stableConvergenceThreshold && len(vector) >= 3 {
		last3 := vector[len(vector)-3:]
		if spreadWithin(last3, stableConvergenceSpread) {
			return true
		}
	}
	return false
}

// spreadWithin reports whether every pairwise difference among values is
// strictly less than tolerance.
func spreadWithin(values []float64, tolerance float64) bool {
	for i := 0; i < len(values); i++ {
		for j := i + 1; j < len(values); j++ {
			diff := values[i] - values[j]
			if diff < 0 {
				diff = -diff
			}
			if diff >= tolerance {
				return false
			}
		}
	}
	return true
}
