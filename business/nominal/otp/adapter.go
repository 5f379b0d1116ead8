// Package otp implements the nominal.Adapter interface against an
// OpenTripPlanner-style GraphQL Transmodel API, translating a coordinate
// lookup into the nearest stop place's upcoming estimated calls.
package otp

import (
	"context"
	"fmt"
	"time"

	"github.com/sebastianknopf/avl2gtfsrt/business/model"
	"github.com/sebastianknopf/avl2gtfsrt/foundation/httpclient"
)

// LookBackWindow absorbs small clock skew and early departures: candidates
// whose next boarding at a nearby stop is within this window in the past are
// still considered (§4.1).
const LookBackWindow = 15 * time.Minute

// MaximumDistanceMeters bounds how far the nearest-stop lookup searches.
const MaximumDistanceMeters = 200

// NumberOfDepartures bounds how many estimated calls are requested per stop.
const NumberOfDepartures = 20

const tripCandidatesQuery = `
query TripCandidates($lat: Float!, $lon: Float!, $startTime: DateTime!) {
  nearest(latitude: $lat, longitude: $lon, maximumDistance: 200, filterByPlaceTypes: stopPlace) {
    edges {
      node {
        distance
        place {
          ... on StopPlace {
            id
            estimatedCalls(startTime: $startTime, numberOfDepartures: 20) {
              date
              serviceJourney {
                id
                journeyPattern {
                  line {
                    id
                  }
                }
                pointsOnLink {
                  points
                }
                estimatedCalls {
                  aimedArrivalTime
                  aimedDepartureTime
                  stopPositionInPattern
                  quay {
                    id
                    latitude
                    longitude
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}
`

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type quay struct {
	Id        string  `json:"id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type estimatedCall struct {
	AimedArrivalTime    int64  `json:"aimedArrivalTime"`
	AimedDepartureTime  int64  `json:"aimedDepartureTime"`
	StopPositionInPattern int  `json:"stopPositionInPattern"`
	Quay                quay   `json:"quay"`
}

type line struct {
	Id string `json:"id"`
}

type journeyPattern struct {
	Line line `json:"line"`
}

type pointsOnLink struct {
	Points string `json:"points"`
}

type serviceJourney struct {
	Id              string          `json:"id"`
	JourneyPattern  journeyPattern  `json:"journeyPattern"`
	PointsOnLink    pointsOnLink    `json:"pointsOnLink"`
	EstimatedCalls  []estimatedCall `json:"estimatedCalls"`
}

type stopPlaceCall struct {
	Date           string         `json:"date"`
	ServiceJourney serviceJourney `json:"serviceJourney"`
}

type place struct {
	Id              string          `json:"id"`
	EstimatedCalls  []stopPlaceCall `json:"estimatedCalls"`
}

type nearestNode struct {
	Distance float64 `json:"distance"`
	Place    place   `json:"place"`
}

type nearestEdge struct {
	Node nearestNode `json:"node"`
}

type graphQLResponse struct {
	Data struct {
		Nearest struct {
			Edges []nearestEdge `json:"edges"`
		} `json:"nearest"`
	} `json:"data"`
}

// Adapter queries an OpenTripPlanner GraphQL endpoint for trip candidates.
type Adapter struct {
	client                 *httpclient.Client
	operatingDayEndSeconds int
}

// NewAdapter builds an Adapter for endpoint, applying requestTimeout to every
// call and operatingDayEndSeconds to anchor returned descriptors to the right
// operating day.
func NewAdapter(endpoint string, requestTimeout time.Duration, operatingDayEndSeconds int) *Adapter {
	return &Adapter{
		client:                 httpclient.NewClient(endpoint, requestTimeout),
		operatingDayEndSeconds: operatingDayEndSeconds,
	}
}

// GetTripCandidates implements nominal.Adapter.
func (a *Adapter) GetTripCandidates(ctx context.Context, latitude, longitude float64) ([]*model.Trip, error) {
	referenceTime := time.Now().UTC().Add(-LookBackWindow).Truncate(time.Second)

	request := graphQLRequest{
		Query: tripCandidatesQuery,
		Variables: map[string]interface{}{
			"lat":       latitude,
			"lon":       longitude,
			"startTime": referenceTime.Format(time.RFC3339),
		},
	}

	var response graphQLResponse
	if err := a.client.PostJSON(ctx, "", request, &response); err != nil {
		return nil, fmt.Errorf("otp: request trip candidates: %w", err)
	}

	if len(response.Data.Nearest.Edges) == 0 {
		return nil, nil
	}

	calls := response.Data.Nearest.Edges[0].Node.Place.EstimatedCalls
	trips := make([]*model.Trip, 0, len(calls))
	for _, call := range calls {
		trip := a.toTrip(call)
		if trip != nil {
			trips = append(trips, trip)
		}
	}
	return trips, nil
}

func (a *Adapter) toTrip(call stopPlaceCall) *model.Trip {
	journey := call.ServiceJourney
	if len(journey.EstimatedCalls) == 0 || journey.PointsOnLink.Points == "" {
		return nil
	}

	stopTimes := make([]model.StopTime, 0, len(journey.EstimatedCalls))
	var operatingDayMidnight time.Time
	for i, ec := range journey.EstimatedCalls {
		arrival := time.Unix(ec.AimedArrivalTime, 0).UTC()
		departure := time.Unix(ec.AimedDepartureTime, 0).UTC()
		if i == 0 {
			operatingDayMidnight = model.OperatingDayMidnight(departure, a.operatingDayEndSeconds)
		}
		stopTimes = append(stopTimes, model.StopTime{
			StopSequence:       ec.StopPositionInPattern,
			ArrivalTimestamp:   arrival.Unix(),
			DepartureTimestamp: departure.Unix(),
			ArrivalTime:        arrival,
			DepartureTime:      departure,
			Stop: model.Stop{
				StopId:    ec.Quay.Id,
				Latitude:  ec.Quay.Latitude,
				Longitude: ec.Quay.Longitude,
			},
		})
	}

	startSeconds := model.OperatingDaySeconds(stopTimes[0].DepartureTime, operatingDayMidnight)

	trip := &model.Trip{
		Descriptor: model.TripDescriptor{
			TripId:    journey.Id,
			RouteId:   journey.JourneyPattern.Line.Id,
			StartDate: model.FormatOperatingDayDate(operatingDayMidnight),
			StartTime: model.FormatOperatingDaySeconds(startSeconds),
		},
		StopTimes:     stopTimes,
		ShapePolyline: journey.PointsOnLink.Points,
	}
	if !trip.Valid() {
		return nil
	}
	return trip
}
