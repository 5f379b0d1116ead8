package model

// MaxPriorVectorLength bounds how many posteriors are kept per trip
// candidate in VehicleActivity.TripCandidateProbabilities (design note §9:
// "keep only the last N entries to bound memory").
const MaxPriorVectorLength = 10

// VehicleActivity is the working state the Match Engine and Vehicle Pipeline
// accumulate while a vehicle is technically logged on. It is reset (replaced
// with a fresh zero value) on every technical log-on; technical log-off
// leaves it in place.
type VehicleActivity struct {
	GnssPositions                []GnssPosition     `json:"gnss_positions"`
	TripDescriptor               *TripDescriptor    `json:"trip_descriptor,omitempty"`
	TripMetrics                  *TripMetrics       `json:"trip_metrics,omitempty"`
	TripCandidateProbabilities   map[string][]float64 `json:"trip_candidate_probabilities,omitempty"`
	TripCandidateConvergence     bool               `json:"trip_candidate_convergence"`
	TripCandidateFailures        int                `json:"trip_candidate_failures"`
}

// LastPosition returns the most recently appended GnssPosition, or nil if the
// buffer is empty.
func (a *VehicleActivity) LastPosition() *GnssPosition {
	if a == nil || len(a.GnssPositions) == 0 {
		return nil
	}
	p := a.GnssPositions[len(a.GnssPositions)-1]
	return &p
}

// VehicleCache holds the last set of nominal trip candidates retrieved for a
// vehicle, consulted only as a fallback when the Schedule Source Adapter
// fails to answer. It is opaque to the Match Engine beyond that read.
type VehicleCache struct {
	TripCandidates []Trip `json:"trip_candidates"`
}

// Vehicle is the durable per-vehicle record the State Store owns.
// OperationallyLoggedOn implies TechnicallyLoggedOn; Activity is created on
// technical log-on and left in place by technical log-off; DifferentialDeleted
// is a tombstone cleared on the next technical log-on.
type Vehicle struct {
	VehicleRef             string           `json:"vehicle_ref"`
	TechnicallyLoggedOn    bool             `json:"technically_logged_on"`
	OperationallyLoggedOn  bool             `json:"operationally_logged_on"`
	DifferentialDeleted    bool             `json:"differential_deleted"`
	Activity               *VehicleActivity `json:"activity,omitempty"`
	Cache                  *VehicleCache    `json:"cache,omitempty"`
}

// ResetActivity replaces Activity/Cache with fresh, empty values, as happens
// on every technical log-on.
func (v *Vehicle) ResetActivity() {
	v.Activity = &VehicleActivity{}
	v.Cache = &VehicleCache{}
}
