package match

import (
	"github.com/sebastianknopf/avl2gtfsrt/business/geo"
	"github.com/sebastianknopf/avl2gtfsrt/business/model"
)

// MinimumMovementMeters is the minimum cumulative distance a GNSS buffer must
// cover before it is considered movement rather than noise around a single
// point.
const MinimumMovementMeters = 50.0

// MinimumMovementLinearity is the minimum ratio of direct-line distance to
// cumulative path distance for a buffer to count as movement, filtering out
// a vehicle idling and jittering in place.
const MinimumMovementLinearity = 0.35

// IsMovement reports whether positions show genuine forward movement (§4.4,
// "is_movement()"), requiring at least 2 positions.
func IsMovement(positions []model.GnssPosition) bool {
	if len(positions) < 2 {
		return false
	}

	totalDistance := 0.0
	for i := 0; i+1 < len(positions); i++ {
		totalDistance += planarDistance(positions[i], positions[i+1])
	}
	if totalDistance < MinimumMovementMeters {
		return false
	}

	directDistance := planarDistance(positions[0], positions[len(positions)-1])
	linearity := 0.0
	if totalDistance > 0 {
		linearity = directDistance / totalDistance
	}
	return linearity > MinimumMovementLinearity
}

func planarDistance(a, b model.GnssPosition) float64 {
	return geo.Distance(geo.Project(a.Latitude, a.Longitude), geo.Project(b.Latitude, b.Longitude))
}
