package model

// StopStatus mirrors GTFS-Realtime VehiclePosition.VehicleStopStatus.
type StopStatus string

const (
	InTransitTo StopStatus = "IN_TRANSIT_TO"
	IncomingAt  StopStatus = "INCOMING_AT"
	StoppedAt   StopStatus = "STOPPED_AT"
)

// TripMetrics holds the per-stop progress and delay prediction for a vehicle
// that is operationally logged on to a trip. CurrentStopSequence/CurrentStopId
// describe the stop just passed (or nil before the first stop); Next* describe
// the stop the vehicle is heading to.
type TripMetrics struct {
	CurrentStopSequence *int       `json:"current_stop_sequence,omitempty"`
	CurrentStopId       *string    `json:"current_stop_id,omitempty"`
	NextStopSequence    *int       `json:"next_stop_sequence,omitempty"`
	NextStopId          *string    `json:"next_stop_id,omitempty"`
	CurrentStopStatus   StopStatus `json:"current_stop_status"`
	CurrentStopIsFinal  bool       `json:"current_stop_is_final"`
	CurrentDelay        int        `json:"current_delay"`
}
