// Package nominal implements the Schedule Source Adapter: a pluggable query
// translator that turns a WGS-84 coordinate into a list of nominal trip
// candidates fetched from an external schedule service.
package nominal

import (
	"context"
	"log"
	"time"

	"github.com/sebastianknopf/avl2gtfsrt/business/model"
)

// Adapter is implemented by each concrete schedule-source backend.
type Adapter interface {
	GetTripCandidates(ctx context.Context, latitude, longitude float64) ([]*model.Trip, error)
}

// Client wraps a configured Adapter, applying the SSA's failure semantics:
// adapter errors are logged and degrade to an empty candidate list rather
// than propagating, since the caller (the vehicle Machine) falls back to the
// vehicle's cached candidates.
// No retries happen inside the client or the adapter.
type Client struct {
	adapter  Adapter
	holidays *HolidayCalendar
}

// NewClient builds a Client around adapter, observing Germany's nationwide
// holiday calendar for degraded-lookup logging context.
func NewClient(adapter Adapter) *Client {
	return &Client{adapter: adapter, holidays: NewHolidayCalendar()}
}

// GetTripCandidates fetches candidates near (latitude, longitude), dropping
// any trip missing a shape or stop_times, and logging+swallowing adapter
// failures into an empty result. An adapter failure on a holiday is logged
// with that context. An empty result without an error is not logged.
func (c *Client) GetTripCandidates(ctx context.Context, latitude, longitude float64) []*model.Trip {
	trips, err := c.adapter.GetTripCandidates(ctx, latitude, longitude)
	if err != nil {
		if c.holidays.IsHoliday(time.Now()) {
			log.Printf("nominal: fetching trip candidates failed on a holiday: %s", err)
		} else {
			log.Printf("nominal: fetching trip candidates failed: %s", err)
		}
		return nil
	}

	valid := make([]*model.Trip, 0, len(trips))
	for _, trip := range trips {
		if trip == nil || !trip.Valid() {
			continue
		}
		valid = append(valid, trip)
	}
	return valid
}

// IsHoliday reports whether at falls on a holiday observed by the client's
// calendar, for callers that want to annotate their own logging.
func (c *Client) IsHoliday(at time.Time) bool {
	return c.holidays.IsHoliday(at)
}
