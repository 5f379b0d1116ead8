// Package match implements the Match Engine: spatial and temporal scoring of
// a vehicle's recent GNSS samples against a candidate trip's shape and
// schedule, Bayesian convergence across successive samples, and prediction
// of per-stop delay metrics once a vehicle is on a trip.
package match

import (
	"github.com/sebastianknopf/avl2gtfsrt/business/geo"
	"github.com/sebastianknopf/avl2gtfsrt/business/model"
)

// ShapeBufferMeters is the distance a candidate trip's shape is conceptually
// buffered by when testing whether a GNSS sample lies "on" the shape.
const ShapeBufferMeters = 30.0

// MinimumMatchRatio is the minimum fraction of GNSS samples that must fall
// within ShapeBufferMeters of the shape for spatial matching to continue.
const MinimumMatchRatio = 0.60

// MinimumForwardRatio is the minimum ratio of forward-moving to
// backward-moving consecutive sample pairs (clamped to 1) for spatial
// matching to continue.
const MinimumForwardRatio = 0.75

// SpatialResult is the outcome of scoring a sequence of GNSS samples against
// a single candidate shape.
type SpatialResult struct {
	// Score is match_ratio * forward_ratio, or 0 if either gate failed.
	Score float64
	// ProgressPercent is the last sample's projection onto the shape,
	// expressed as a percentage of the shape's total length.
	ProgressPercent float64
	// ProgressDistance is the last sample's projection onto the shape in
	// meters, used by on-trip verification to snap a position to the shape.
	ProgressDistance float64
}

// ScoreSpatialMatch runs the two-stage spatial match (§4.3.1): it requires at
// least 2 positions, scores the fraction of positions lying within the
// buffered shape, and the ratio of consecutive position pairs moving forward
// along the shape to those moving backward. A zero Score means the candidate should
// be discarded without running the temporal match.
func ScoreSpatialMatch(shape *geo.ShapeLine, positions []model.GnssPosition) SpatialResult {
	n := len(positions)
	if shape == nil || n < 2 {
		return SpatialResult{}
	}

	projections := make([]float64, n)
	within := 0
	for i, pos := range positions {
		pt := geo.Project(pos.Latitude, pos.Longitude)
		progress, distance := shape.Project(pt)
		projections[i] = progress
		if distance <= ShapeBufferMeters {
			within++
		}
	}

	matchRatio := float64(within) / float64(n)
	if matchRatio < MinimumMatchRatio {
		return SpatialResult{}
	}

	forward, backward := 0, 0
	for i := 0; i+1 < n; i++ {
		if projections[i] < projections[i+1] {
			forward++
		} else if projections[i] > projections[i+1] {
			backward++
		}
	}

	forwardRatio := 1.0
	if backward > 0 {
		forwardRatio = float64(forward) / float64(backward)
		if forwardRatio > 1 {
			forwardRatio = 1
		} else if forwardRatio < 0 {
			forwardRatio = 0
		}
	}
	if forwardRatio < MinimumForwardRatio {
		return SpatialResult{}
	}

	length := shape.Length()
	progressPercent := 0.0
	if length > 0 {
		progressPercent = projections[n-1] / length * 100
	}

	return SpatialResult{
		Score:            matchRatio * forwardRatio,
		ProgressPercent:  progressPercent,
		ProgressDistance: projections[n-1],
	}
}
