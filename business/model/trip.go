package model

import "time"

// ScheduleRelationship mirrors the GTFS-Realtime trip descriptor enum, kept
// narrow to the values the match engine and feed assembler actually produce.
type ScheduleRelationship string

const (
	ScheduledRelationship ScheduleRelationship = "SCHEDULED"
	AddedRelationship     ScheduleRelationship = "ADDED"
	CanceledRelationship  ScheduleRelationship = "CANCELED"
)

// TripDescriptor identifies a scheduled trip a vehicle is believed to be
// operating. StartTime is formatted HH:MM:SS in operating-day-relative
// seconds and may exceed 24:00:00 for trips that run past midnight.
// StartDate is the operating day in YYYYMMDD form.
type TripDescriptor struct {
	TripId               string                `json:"trip_id"`
	RouteId              string                `json:"route_id"`
	StartDate            string                `json:"start_date"`
	StartTime            string                `json:"start_time"`
	DirectionId          *uint32               `json:"direction_id,omitempty"`
	ScheduleRelationship *ScheduleRelationship `json:"schedule_relationship,omitempty"`
}

// Stop is a physical transit stop.
type Stop struct {
	StopId    string  `json:"stop_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      *string `json:"name,omitempty"`
}

// StopTime is one scheduled visit of a trip to a Stop. Arrival/Departure are
// epoch seconds anchored to the trip's operating day, not seconds-since-midnight.
type StopTime struct {
	StopSequence       int       `json:"stop_sequence"`
	ArrivalTimestamp   int64     `json:"arrival_timestamp"`
	DepartureTimestamp int64     `json:"departure_timestamp"`
	Stop               Stop      `json:"stop"`
	ArrivalTime        time.Time `json:"-"`
	DepartureTime      time.Time `json:"-"`
}

// Trip is a nominal schedule candidate as returned by the Schedule Source
// Adapter, or the trip a vehicle has been operationally matched onto.
// ShapePolyline is a Google encoded-polyline string (precision 5).
// DifferentialDeleted is a tombstone set on operational log-off so one more
// differential GTFS-Realtime update can carry is_deleted=true before the
// State Store removes the row.
type Trip struct {
	Descriptor           TripDescriptor `json:"descriptor"`
	StopTimes            []StopTime     `json:"stop_times"`
	ShapePolyline        string         `json:"shape_polyline"`
	DifferentialDeleted  bool           `json:"differential_deleted"`
}

// FirstStopTime returns the earliest StopTime, or nil if the trip has none.
func (t *Trip) FirstStopTime() *StopTime {
	if len(t.StopTimes) == 0 {
		return nil
	}
	return &t.StopTimes[0]
}

// LastStopTime returns the latest StopTime, or nil if the trip has none.
func (t *Trip) LastStopTime() *StopTime {
	if len(t.StopTimes) == 0 {
		return nil
	}
	return &t.StopTimes[len(t.StopTimes)-1]
}

// Valid reports whether the trip carries enough data to be used as a match
// candidate: at least two stop times and a non-empty shape.
func (t *Trip) Valid() bool {
	return len(t.StopTimes) >= 2 && t.ShapePolyline != ""
}
