package match

import (
	"time"

	"github.com/sebastianknopf/avl2gtfsrt/business/geo"
	"github.com/sebastianknopf/avl2gtfsrt/business/model"
)

// CandidateTrip pairs a candidate Trip with its decoded shape, computed once
// per matching round and reused across spatial, temporal and metrics scoring.
type CandidateTrip struct {
	Trip  *model.Trip
	Shape *geo.ShapeLine
}

// NewCandidateTrip decodes trip's shape polyline. Returns nil if the shape
// cannot be decoded (fewer than two points), mirroring SSA's "invalid
// candidates are dropped" rule for callers that build candidates lazily.
func NewCandidateTrip(trip *model.Trip) *CandidateTrip {
	shape := geo.NewShapeLine(trip.ShapePolyline)
	if shape == nil {
		return nil
	}
	return &CandidateTrip{Trip: trip, Shape: shape}
}

// MatchResult is the outcome of one matching round over a vehicle's current
// GNSS buffer and candidate trips.
type MatchResult struct {
	Converged    bool
	Posteriors   map[string][]float64
}

// RunMatchPipeline executes the per-vehicle-snapshot match pipeline (§4.3.4).
// isExcluded is called once per candidate and candidates for which it
// returns true are skipped, so callers can apply the exclusivity rule against
// live state without building an extra slice. now is truncated to the minute
// for the temporal match.
func RunMatchPipeline(
	candidates []*CandidateTrip,
	positions []model.GnssPosition,
	now time.Time,
	priorPosteriors map[string][]float64,
	isExcluded func(tripId string) bool,
) MatchResult {
	likelihood := make(map[string]float64)

	for _, candidate := range candidates {
		tripId := candidate.Trip.Descriptor.TripId
		if isExcluded != nil && isExcluded(tripId) {
			continue
		}

		spatial := ScoreSpatialMatch(candidate.Shape, positions)
		if spatial.Score == 0 {
			continue
		}

		temporal := ScoreTemporalMatch(candidate.Trip.StopTimes, candidate.Shape, now.Truncate(time.Minute), spatial.ProgressPercent)
		if temporal.Score == 0 {
			continue
		}

		likelihood[tripId] = spatial.Score * temporal.Score
	}

	if len(likelihood) == 0 {
		return MatchResult{Converged: false, Posteriors: map[string][]float64{}}
	}

	converged, posteriors := UpdateBayesianPriors(priorPosteriors, likelihood)
	return MatchResult{Converged: converged, Posteriors: posteriors}
}

// ArgMax returns the trip id with the highest last posterior value in
// posteriors, and whether any candidate was present.
func ArgMax(posteriors map[string][]float64) (string, bool) {
	bestKey, bestValue, found := "", -1.0, false
	for key, vector := range posteriors {
		if len(vector) == 0 {
			continue
		}
		last := vector[len(vector)-1]
		if !found || last > bestValue {
			bestKey, bestValue, found = key, last, true
		}
	}
	return bestKey, found
}

// VerifyResult is the outcome of on-trip verification (§4.3.5).
type VerifyResult struct {
	Matches bool
	// SnappedPosition is the last GNSS position projected onto the shape,
	// populated only when shape-snap filtering applies.
	SnappedPosition *model.GnssPosition
}

// VerifyOnTrip runs the single-candidate spatial check used while a vehicle
// is operationally logged on (§4.3.5). When shapeFilterEnabled is true and
// the last position lies within shapeFilterDistanceMeters of the shape, the
// returned result carries a position snapped onto the shape at the match's
// projected arc-length, for the caller to substitute into the vehicle's GNSS
// buffer.
func VerifyOnTrip(candidate *CandidateTrip, positions []model.GnssPosition, shapeFilterEnabled bool, shapeFilterDistanceMeters float64) VerifyResult {
	spatial := ScoreSpatialMatch(candidate.Shape, positions)
	result := VerifyResult{Matches: spatial.Score > 0}

	if len(positions) == 0 {
		return result
	}
	last := positions[len(positions)-1]

	if !shapeFilterEnabled {
		return result
	}

	point := geo.Project(last.Latitude, last.Longitude)
	_, distance := candidate.Shape.Project(point)
	if distance >= shapeFilterDistanceMeters {
		return result
	}

	snapped := candidate.Shape.Interpolate(spatial.ProgressDistance)
	lat, lon := geo.Unproject(snapped)
	result.SnappedPosition = &model.GnssPosition{
		Latitude:  lat,
		Longitude: lon,
		Timestamp: last.Timestamp,
	}
	return result
}
