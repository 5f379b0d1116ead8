package match

import (
	"testing"
	"time"

	"github.com/sebastianknopf/avl2gtfsrt/business/geo"
	"github.com/sebastianknopf/avl2gtfsrt/business/model"
)

func straightShape(t *testing.T) *geo.ShapeLine {
	t.Helper()
	points := []geo.LatLng{
		{Latitude: 48.0, Longitude: 9.0},
		{Latitude: 48.0, Longitude: 9.02},
	}
	shape := geo.NewShapeLine(geo.EncodePolyline(points))
	if shape == nil {
		t.Fatal("expected a non-nil shape")
	}
	return shape
}

func TestScoreSpatialMatchRequiresAtLeastTwoPositions(t *testing.T) {
	shape := straightShape(t)
	result := ScoreSpatialMatch(shape, []model.GnssPosition{{Latitude: 48.0, Longitude: 9.0}})
	if result.Score != 0 {
		t.Fatalf("expected zero score with a single position, got %+v", result)
	}
}

func TestScoreSpatialMatchOnShapeWithForwardProgress(t *testing.T) {
	shape := straightShape(t)
	positions := []model.GnssPosition{
		{Latitude: 48.0, Longitude: 9.002, Timestamp: 100},
		{Latitude: 48.0, Longitude: 9.008, Timestamp: 110},
		{Latitude: 48.0, Longitude: 9.014, Timestamp: 120},
	}
	result := ScoreSpatialMatch(shape, positions)
	if result.Score == 0 {
		t.Fatalf("expected a non-zero score for on-shape forward-moving positions, got %+v", result)
	}
	if result.ProgressPercent <= 0 || result.ProgressPercent >= 100 {
		t.Fatalf("expected progress strictly between 0 and 100, got %v", result.ProgressPercent)
	}
}

func TestScoreSpatialMatchDiscardsOffShapePositions(t *testing.T) {
	shape := straightShape(t)
	positions := []model.GnssPosition{
		{Latitude: 49.0, Longitude: 10.0, Timestamp: 100},
		{Latitude: 49.1, Longitude: 10.1, Timestamp: 110},
	}
	result := ScoreSpatialMatch(shape, positions)
	if result.Score != 0 {
		t.Fatalf("expected zero score for positions far from the shape, got %+v", result)
	}
}

func TestScoreSpatialMatchDiscardsBackwardMovement(t *testing.T) {
	shape := straightShape(t)
	positions := []model.GnssPosition{
		{Latitude: 48.0, Longitude: 9.016, Timestamp: 100},
		{Latitude: 48.0, Longitude: 9.010, Timestamp: 110},
		{Latitude: 48.0, Longitude: 9.004, Timestamp: 120},
	}
	result := ScoreSpatialMatch(shape, positions)
	if result.Score != 0 {
		t.Fatalf("expected zero score for consistently backward movement, got %+v", result)
	}
}

func TestScoreTemporalMatchBeforeFirstDeparture(t *testing.T) {
	stopTimes := []model.StopTime{
		{StopSequence: 1, DepartureTimestamp: 1000, Stop: model.Stop{Latitude: 48.0, Longitude: 9.0}},
		{StopSequence: 2, DepartureTimestamp: 1200, Stop: model.Stop{Latitude: 48.0, Longitude: 9.02}},
	}
	shape := straightShape(t)
	now := time.Unix(500, 0)

	result := ScoreTemporalMatch(stopTimes, shape, now, 0)
	if result.TimeProgressPercent != 0 {
		t.Fatalf("expected zero time progress before the first departure, got %v", result.TimeProgressPercent)
	}
}

func TestScoreTemporalMatchAfterLastDeparture(t *testing.T) {
	stopTimes := []model.StopTime{
		{StopSequence: 1, DepartureTimestamp: 1000, Stop: model.Stop{Latitude: 48.0, Longitude: 9.0}},
		{StopSequence: 2, DepartureTimestamp: 1200, Stop: model.Stop{Latitude: 48.0, Longitude: 9.02}},
	}
	shape := straightShape(t)
	now := time.Unix(5000, 0)

	result := ScoreTemporalMatch(stopTimes, shape, now, 100)
	if result.TimeProgressPercent != 100 {
		t.Fatalf("expected full time progress after the last departure, got %v", result.TimeProgressPercent)
	}
	if result.Score == 0 {
		t.Fatalf("expected a non-zero score when time and spatial progress agree")
	}
}

func TestScoreTemporalMatchPenalizesEarlyRunning(t *testing.T) {
	stopTimes := []model.StopTime{
		{StopSequence: 1, DepartureTimestamp: 1000, Stop: model.Stop{Latitude: 48.0, Longitude: 9.0}},
		{StopSequence: 2, DepartureTimestamp: 1200, Stop: model.Stop{Latitude: 48.0, Longitude: 9.02}},
	}
	shape := straightShape(t)
	now := time.Unix(1100, 0)

	// At now=1100, time progress is 50%. Spatial progress of 80% means the
	// vehicle has already covered more ground than the schedule predicts
	// (running early); 20% means it has covered less (running late).
	aheadOfScheduleResult := ScoreTemporalMatch(stopTimes, shape, now, 80)
	behindScheduleResult := ScoreTemporalMatch(stopTimes, shape, now, 20)

	if aheadOfScheduleResult.Score >= behindScheduleResult.Score {
		t.Fatalf("expected running-early score %v to be penalized below running-late score %v", aheadOfScheduleResult.Score, behindScheduleResult.Score)
	}
}

func TestScoreTemporalMatchDiscardsLargeDelta(t *testing.T) {
	stopTimes := []model.StopTime{
		{StopSequence: 1, DepartureTimestamp: 1000, Stop: model.Stop{Latitude: 48.0, Longitude: 9.0}},
		{StopSequence: 2, DepartureTimestamp: 1200, Stop: model.Stop{Latitude: 48.0, Longitude: 9.02}},
	}
	shape := straightShape(t)
	now := time.Unix(1100, 0)

	result := ScoreTemporalMatch(stopTimes, shape, now, 99)
	if result.Score != 0 {
		t.Fatalf("expected zero score for a large spatial/temporal delta, got %+v", result)
	}
}
