package match

import (
	"time"

	"github.com/sebastianknopf/avl2gtfsrt/business/geo"
	"github.com/sebastianknopf/avl2gtfsrt/business/model"
)

// StopArrivalThresholdMeters is the projected distance to a stop below which
// a vehicle is considered STOPPED_AT it (§4.3.6).
const StopArrivalThresholdMeters = 30.0

// StopApproachThresholdMeters is the projected distance to a stop below which
// a vehicle is considered INCOMING_AT it, once StopArrivalThresholdMeters has
// been ruled out.
const StopApproachThresholdMeters = 60.0

// PredictTripMetrics runs trip-metrics prediction (§4.3.6) for a vehicle
// known to be on candidate, given its last GNSS position and the current
// time. Returns nil if the trip has no stop times or no position is given.
func PredictTripMetrics(candidate *CandidateTrip, position *model.GnssPosition, now time.Time) *model.TripMetrics {
	if candidate == nil || position == nil || len(candidate.Trip.StopTimes) == 0 {
		return nil
	}
	stopTimes := candidate.Trip.StopTimes

	point := geo.Project(position.Latitude, position.Longitude)
	pp, _ := candidate.Shape.Project(point)

	targetIndex := -1
	for i, st := range stopTimes {
		pi, _ := candidate.Shape.Project(geo.Project(st.Stop.Latitude, st.Stop.Longitude))
		if pi >= pp {
			targetIndex = i
			break
		}
	}
	if targetIndex == -1 {
		targetIndex = len(stopTimes) - 1
	}

	target := stopTimes[targetIndex]
	targetProjection, _ := candidate.Shape.Project(geo.Project(target.Stop.Latitude, target.Stop.Longitude))
	delta := targetProjection - pp

	isFinal := targetIndex == len(stopTimes)-1

	var status model.StopStatus
	switch {
	case abs(delta) < StopArrivalThresholdMeters:
		status = model.StoppedAt
	case delta < StopApproachThresholdMeters:
		status = model.IncomingAt
	default:
		status = model.InTransitTo
	}

	metrics := &model.TripMetrics{
		CurrentStopStatus:  status,
		CurrentStopIsFinal: isFinal && status != model.InTransitTo,
		NextStopSequence:   intPtr(target.StopSequence),
		NextStopId:         strPtr(target.Stop.StopId),
		CurrentDelay:       int(now.Unix() - target.DepartureTimestamp),
	}

	if targetIndex > 0 {
		previous := stopTimes[targetIndex-1]
		metrics.CurrentStopSequence = intPtr(previous.StopSequence)
		metrics.CurrentStopId = strPtr(previous.Stop.StopId)
	}

	return metrics
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func intPtr(v int) *int {
	return &v
}

func strPtr(v string) *string {
	return &v
}
