package vehicle

import (
	"context"
	"log"
	"time"

	"github.com/sebastianknopf/avl2gtfsrt/business/match"
	"github.com/sebastianknopf/avl2gtfsrt/business/model"
)

// GnssFreshnessSeconds bounds how old a GNSS sample may be before it is
// discarded on arrival (§4.4).
const GnssFreshnessSeconds = 150

// DefaultMatchingMaxInterval is the sample-rate gate: matching only runs once
// the newest sample is at least this far ahead of the oldest sample
// considered, preventing CPU waste under high-frequency publishers.
const DefaultMatchingMaxInterval = 5 * time.Second

// DefaultMatchingMaxFailures is the number of consecutive on-trip
// verification failures tolerated before a vehicle is operationally logged
// off.
const DefaultMatchingMaxFailures = 5

// Config bundles the Vehicle Pipeline's tunables, all sourced from
// environment configuration (§6).
type Config struct {
	MatchingMaxInterval       time.Duration
	MatchingMaxFailures       int
	OperatingDayEndSeconds    int
	ShapeFilterEnabled        bool
	ShapeFilterDistanceMeters float64
}

// VehicleStore is the subset of store.Store the Machine depends on, kept
// narrow so tests can exercise the state machine against a fake/in-memory
// implementation instead of a live postgres-backed Store.
type VehicleStore interface {
	GetVehicles(ctx context.Context) ([]*model.Vehicle, error)
	UpdateVehicle(ctx context.Context, v *model.Vehicle, now time.Time) error
	GetTrip(ctx context.Context, id string) (*model.Trip, error)
	UpdateTrip(ctx context.Context, t *model.Trip) error
}

// NominalClient is the subset of nominal.Client the Machine depends on, kept
// narrow for the same reason as VehicleStore.
type NominalClient interface {
	GetTripCandidates(ctx context.Context, latitude, longitude float64) []*model.Trip
	IsHoliday(at time.Time) bool
}

// Machine runs the acquisition/tracking state machine on top of the State
// Store and the Schedule Source Adapter, grounded on the original matching
// handler's flow: technical log-on resets activity, a GNSS update either
// runs the match pipeline (not yet operationally on) or verifies the current
// trip (already on), and failures/natural end drive log-off.
type Machine struct {
	store   VehicleStore
	nominal NominalClient
	config  Config
	logger  *log.Logger
}

// NewMachine builds a Machine. st and nominalClient are ordinarily a
// *store.Store and a *nominal.Client, which satisfy VehicleStore/
// NominalClient respectively.
func NewMachine(st VehicleStore, nominalClient NominalClient, config Config, logger *log.Logger) *Machine {
	if config.MatchingMaxInterval <= 0 {
		config.MatchingMaxInterval = DefaultMatchingMaxInterval
	}
	if config.MatchingMaxFailures <= 0 {
		config.MatchingMaxFailures = DefaultMatchingMaxFailures
	}
	return &Machine{store: st, nominal: nominalClient, config: config, logger: logger}
}

// HandleTechnicalLogOn resets v's activity/cache and clears any tombstone,
// as happens unconditionally on technical log-on regardless of prior state.
func (m *Machine) HandleTechnicalLogOn(ctx context.Context, v *model.Vehicle) error {
	v.TechnicallyLoggedOn = true
	v.OperationallyLoggedOn = false
	v.DifferentialDeleted = false
	v.ResetActivity()
	return m.store.UpdateVehicle(ctx, v, time.Now())
}

// HandleTechnicalLogOff marks v technically and operationally logged off and
// tombstones it for one more differential update, preserving its trip
// descriptor/metrics so that update can still describe the trip it was on.
func (m *Machine) HandleTechnicalLogOff(ctx context.Context, v *model.Vehicle) error {
	v.TechnicallyLoggedOn = false
	v.OperationallyLoggedOn = false
	v.DifferentialDeleted = true
	return m.store.UpdateVehicle(ctx, v, time.Now())
}

// HandleGnssUpdate appends position to v's buffer (after freshness and
// dedup checks), then runs acquisition matching or on-trip verification
// depending on v's current state.
func (m *Machine) HandleGnssUpdate(ctx context.Context, v *model.Vehicle, position model.GnssPosition) error {
	if !v.TechnicallyLoggedOn || v.Activity == nil {
		m.logger.Printf("vehicle: GNSS update for %s ignored, not technically logged on", v.VehicleRef)
		return nil
	}

	now := time.Now()
	if position.Timestamp < now.Unix()-GnssFreshnessSeconds {
		m.logger.Printf("vehicle: GNSS update for %s is older than %ds and was discarded", v.VehicleRef, GnssFreshnessSeconds)
		return nil
	}
	if last := v.Activity.LastPosition(); last != nil && position.Same(last, 0) {
		return nil
	}

	v.Activity.GnssPositions = append(v.Activity.GnssPositions, position)
	if err := m.store.UpdateVehicle(ctx, v, now); err != nil {
		return err
	}

	if len(v.Activity.GnssPositions) < 2 {
		return nil
	}
	if !match.IsMovement(v.Activity.GnssPositions) {
		return nil
	}
	if !m.sampleRateGateOpen(v.Activity.GnssPositions, now) {
		return nil
	}

	if !v.OperationallyLoggedOn {
		return m.runAcquisition(ctx, v, position, now)
	}
	return m.runVerification(ctx, v, now)
}

// sampleRateGateOpen implements the MATCHING_MAX_INTERVAL gate: matching only
// runs once the newest sample is at least MatchingMaxInterval ahead of the
// oldest sample in the buffer.
func (m *Machine) sampleRateGateOpen(positions []model.GnssPosition, now time.Time) bool {
	if len(positions) < 2 {
		return false
	}
	newest := positions[len(positions)-1]
	oldest := positions[0]
	age := newest.Timestamp - oldest.Timestamp
	return time.Duration(age)*time.Second >= m.config.MatchingMaxInterval
}

func (m *Machine) runAcquisition(ctx context.Context, v *model.Vehicle, position model.GnssPosition, now time.Time) error {
	candidateTrips := m.nominal.GetTripCandidates(ctx, position.Latitude, position.Longitude)
	if len(candidateTrips) == 0 && v.Cache != nil {
		for i := range v.Cache.TripCandidates {
			candidateTrips = append(candidateTrips, &v.Cache.TripCandidates[i])
		}
	} else if len(candidateTrips) > 0 {
		cached := make([]model.Trip, len(candidateTrips))
		for i, t := range candidateTrips {
			cached[i] = *t
		}
		v.Cache = &model.VehicleCache{TripCandidates: cached}
	}

	candidates := make([]*match.CandidateTrip, 0, len(candidateTrips))
	byTripId := make(map[string]*model.Trip, len(candidateTrips))
	for _, trip := range candidateTrips {
		candidate := match.NewCandidateTrip(trip)
		if candidate == nil {
			continue
		}
		candidates = append(candidates, candidate)
		byTripId[trip.Descriptor.TripId] = trip
	}

	isExcluded := func(tripId string) bool {
		vehicles, err := m.store.GetVehicles(ctx)
		if err != nil {
			m.logger.Printf("vehicle: exclusivity check failed: %s", err)
			return false
		}
		for _, other := range vehicles {
			if other.VehicleRef == v.VehicleRef {
				continue
			}
			if other.Activity != nil && other.Activity.TripDescriptor != nil && other.Activity.TripDescriptor.TripId == tripId {
				return true
			}
		}
		return false
	}

	result := match.RunMatchPipeline(candidates, v.Activity.GnssPositions, now, v.Activity.TripCandidateProbabilities, isExcluded)
	v.Activity.TripCandidateProbabilities = result.Posteriors
	v.Activity.TripCandidateConvergence = result.Converged

	if err := m.store.UpdateVehicle(ctx, v, now); err != nil {
		return err
	}
	if !result.Converged {
		return nil
	}

	tripId, ok := match.ArgMax(result.Posteriors)
	if !ok {
		return nil
	}
	trip, ok := byTripId[tripId]
	if !ok {
		return nil
	}
	candidate := match.NewCandidateTrip(trip)
	if candidate == nil {
		return nil
	}

	m.logger.Printf("vehicle: %s matched to trip %s, performing operational log-on", v.VehicleRef, tripId)
	v.OperationallyLoggedOn = true
	v.Activity.TripDescriptor = &trip.Descriptor
	v.Activity.TripMetrics = match.PredictTripMetrics(candidate, &position, now)

	if err := m.store.UpdateVehicle(ctx, v, now); err != nil {
		return err
	}
	return m.store.UpdateTrip(ctx, trip)
}

func (m *Machine) runVerification(ctx context.Context, v *model.Vehicle, now time.Time) error {
	tripId := v.Activity.TripDescriptor.TripId
	trip, err := m.store.GetTrip(ctx, tripId)
	if err != nil {
		return err
	}
	if trip == nil {
		m.logger.Printf("vehicle: %s references unknown trip %s, logging off", v.VehicleRef, tripId)
		return m.logOffTrip(ctx, v, now, false)
	}
	candidate := match.NewCandidateTrip(trip)
	if candidate == nil {
		return m.logOffTrip(ctx, v, now, false)
	}

	result := match.VerifyOnTrip(candidate, v.Activity.GnssPositions, m.config.ShapeFilterEnabled, m.config.ShapeFilterDistanceMeters)

	if result.Matches {
		v.Activity.TripCandidateFailures = 0
		if result.SnappedPosition != nil {
			v.Activity.GnssPositions[len(v.Activity.GnssPositions)-1] = *result.SnappedPosition
		}
		lastPosition := v.Activity.LastPosition()
		v.Activity.TripMetrics = match.PredictTripMetrics(candidate, lastPosition, now)
	} else {
		v.Activity.TripCandidateFailures++
	}

	if err := m.store.UpdateVehicle(ctx, v, now); err != nil {
		return err
	}

	if v.Activity.TripMetrics != nil && v.Activity.TripMetrics.CurrentStopIsFinal {
		m.logger.Printf("vehicle: %s reached the final stop of trip %s naturally", v.VehicleRef, tripId)
		return m.logOffTrip(ctx, v, now, true)
	}
	if v.Activity.TripCandidateFailures >= m.config.MatchingMaxFailures {
		if m.nominal.IsHoliday(now) {
			m.logger.Printf("vehicle: %s exceeded match failure threshold on trip %s (holiday service day)", v.VehicleRef, tripId)
		} else {
			m.logger.Printf("vehicle: %s exceeded match failure threshold on trip %s", v.VehicleRef, tripId)
		}
		return m.logOffTrip(ctx, v, now, false)
	}
	return nil
}

// logOffTrip transitions v from TRACKING back to TECH_ON_IDLE. On a natural
// end (naturalEnd=true) the GNSS buffer is cleared to prevent immediate
// re-binding to the same trip. The trip being left is tombstoned and
// persisted here, but v.Activity.TripDescriptor/TripMetrics are deliberately
// left in place: BuildDifferential's tombstone path (feed.go) only discovers
// a trip to clean up via v.Activity.TripDescriptor != nil, and only clears
// it through CleanupVehicleTripRefs once that tombstone has actually been
// emitted. Clearing it here first would orphan the trip row forever.
func (m *Machine) logOffTrip(ctx context.Context, v *model.Vehicle, now time.Time, naturalEnd bool) error {
	if v.Activity.TripDescriptor != nil {
		trip, err := m.store.GetTrip(ctx, v.Activity.TripDescriptor.TripId)
		if err != nil {
			return err
		}
		if trip != nil {
			trip.DifferentialDeleted = true
			if err := m.store.UpdateTrip(ctx, trip); err != nil {
				return err
			}
		}
	}

	v.OperationallyLoggedOn = false
	if naturalEnd {
		v.Activity.GnssPositions = nil
	}
	return m.store.UpdateVehicle(ctx, v, now)
}
