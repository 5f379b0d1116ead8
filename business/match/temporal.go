package match

import (
	"time"

	"github.com/sebastianknopf/avl2gtfsrt/business/geo"
	"github.com/sebastianknopf/avl2gtfsrt/business/model"
)

// MaxTemporalDeltaPercent is the largest allowed gap between spatial and
// temporal progress before a candidate is discarded (§4.3.2).
const MaxTemporalDeltaPercent = 30.0

// EarlyPenaltyFactor is applied to the temporal score when the vehicle
// appears to be running early rather than late, since lateness is the far
// more common case in practice.
const EarlyPenaltyFactor = 0.8

// TemporalResult is the outcome of scoring "now" against a candidate trip's
// schedule, given the vehicle's spatial progress along the same trip's shape.
type TemporalResult struct {
	Score               float64
	TimeProgressPercent float64
	CurrentStopSequence int
	NextStopSequence    int
}

// ScoreTemporalMatch runs the temporal match (§4.3.2). stopTimes must be
// ordered by stop sequence and shape must be the same shape spatialProgress
// was computed against. RunMatchPipeline truncates now to the minute before
// calling; this function uses it as given.
func ScoreTemporalMatch(stopTimes []model.StopTime, shape *geo.ShapeLine, now time.Time, spatialProgressPercent float64) TemporalResult {
	if len(stopTimes) < 2 || shape == nil {
		return TemporalResult{}
	}

	first := stopTimes[0]
	last := stopTimes[len(stopTimes)-1]
	nowUnix := now.Unix()

	var timeProgressPercent float64
	var currentSeq, nextSeq int

	switch {
	case nowUnix <= first.DepartureTimestamp:
		timeProgressPercent = 0
		currentSeq, nextSeq = 0, 0
	case nowUnix >= last.DepartureTimestamp:
		timeProgressPercent = 100
		currentSeq = len(stopTimes) - 2
		nextSeq = len(stopTimes) - 1
	default:
		length := shape.Length()
		for i := 0; i+1 < len(stopTimes); i++ {
			sk := stopTimes[i]
			sk1 := stopTimes[i+1]
			if sk.DepartureTimestamp <= nowUnix && nowUnix <= sk1.DepartureTimestamp {
				currentSeq, nextSeq = i, i+1

				piK, _ := shape.Project(geo.Project(sk.Stop.Latitude, sk.Stop.Longitude))
				piK1, _ := shape.Project(geo.Project(sk1.Stop.Latitude, sk1.Stop.Longitude))

				span := sk1.DepartureTimestamp - sk.DepartureTimestamp
				elapsed := nowUnix - sk.DepartureTimestamp
				fraction := 0.0
				if span > 0 {
					fraction = float64(elapsed) / float64(span)
				}

				progressDistance := piK + (piK1-piK)*fraction
				if length > 0 {
					timeProgressPercent = progressDistance / length * 100
				}
				if timeProgressPercent < 0 {
					timeProgressPercent = 0
				} else if timeProgressPercent > 100 {
					timeProgressPercent = 100
				}
				break
			}
		}
	}

	result := TemporalResult{
		TimeProgressPercent: timeProgressPercent,
		CurrentStopSequence: currentSeq,
		NextStopSequence:    nextSeq,
	}

	if spatialProgressPercent != 0 && timeProgressPercent == 0 {
		return result
	}

	delta := timeProgressPercent - spatialProgressPercent
	absDelta := delta
	if absDelta < 0 {
		absDelta = -absDelta
	}
	if absDelta > MaxTemporalDeltaPercent {
		return result
	}

	score := 1 - absDelta/100
	if delta < 0 {
		score *= EarlyPenaltyFactor
	}
	result.Score = score
	return result
}
