package vehicle

import (
	"context"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sebastianknopf/avl2gtfsrt/business/geo"
	"github.com/sebastianknopf/avl2gtfsrt/business/model"
)

// fakeStore is a minimal in-memory VehicleStore double, letting the state
// machine's acquisition/tracking transitions be exercised without a live
// postgres-backed store.Store.
type fakeStore struct {
	mu       sync.Mutex
	vehicles map[string]*model.Vehicle
	trips    map[string]*model.Trip
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		vehicles: make(map[string]*model.Vehicle),
		trips:    make(map[string]*model.Trip),
	}
}

func (s *fakeStore) GetVehicles(ctx context.Context) ([]*model.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Vehicle, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		out = append(out, v)
	}
	return out, nil
}

func (s *fakeStore) UpdateVehicle(ctx context.Context, v *model.Vehicle, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vehicles[v.VehicleRef] = v
	return nil
}

func (s *fakeStore) GetTrip(ctx context.Context, id string) (*model.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trips[id], nil
}

func (s *fakeStore) UpdateTrip(ctx context.Context, t *model.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trips[t.Descriptor.TripId] = t
	return nil
}

// fakeNominal is a fixed-response NominalClient double standing in for the
// Schedule Source Adapter.
type fakeNominal struct {
	candidates []*model.Trip
}

func (n *fakeNominal) GetTripCandidates(ctx context.Context, latitude, longitude float64) []*model.Trip {
	return n.candidates
}

func (n *fakeNominal) IsHoliday(at time.Time) bool {
	return false
}

func testLog() *log.Logger {
	return log.New(os.Stderr, "test : ", log.LstdFlags)
}

// straightTrip builds a two-stop trip along a straight shape from
// (48.0, 9.000) to (48.0, 9.020), with stop departures anchored around base
// so ScoreTemporalMatch's wall-clock-relative scoring lands mid-trip.
func straightTrip(tripId string, base time.Time) *model.Trip {
	points := []geo.LatLng{
		{Latitude: 48.0, Longitude: 9.000},
		{Latitude: 48.0, Longitude: 9.020},
	}
	return &model.Trip{
		Descriptor:    model.TripDescriptor{TripId: tripId, RouteId: "route-1"},
		ShapePolyline: geo.EncodePolyline(points),
		StopTimes: []model.StopTime{
			{StopSequence: 1, ArrivalTimestamp: base.Unix() - 300, DepartureTimestamp: base.Unix() - 300, Stop: model.Stop{StopId: "s1", Latitude: 48.0, Longitude: 9.000}},
			{StopSequence: 2, ArrivalTimestamp: base.Unix() + 300, DepartureTimestamp: base.Unix() + 300, Stop: model.Stop{StopId: "s2", Latitude: 48.0, Longitude: 9.020}},
		},
	}
}

func newTestVehicle(ref string) *model.Vehicle {
	v := &model.Vehicle{VehicleRef: ref}
	v.ResetActivity()
	v.TechnicallyLoggedOn = true
	return v
}

// Scenario 1: acquisition from cold start. Three forward-moving GNSS samples
// along the single nominal candidate's shape converge the vehicle onto it.
func TestMachineAcquiresFromColdStart(t *testing.T) {
	base := time.Now()
	trip := straightTrip("trip-1", base)
	store := newFakeStore()
	nominal := &fakeNominal{candidates: []*model.Trip{trip}}
	m := NewMachine(store, nominal, Config{MatchingMaxInterval: 8 * time.Second}, testLog())

	v := newTestVehicle("v1")
	ctx := context.Background()

	samples := []model.GnssPosition{
		{Latitude: 48.0, Longitude: 9.000, Timestamp: base.Unix()},
		{Latitude: 48.0, Longitude: 9.006, Timestamp: base.Unix() + 5},
		{Latitude: 48.0, Longitude: 9.012, Timestamp: base.Unix() + 15},
	}
	for _, sample := range samples {
		if err := m.HandleGnssUpdate(ctx, v, sample); err != nil {
			t.Fatalf("HandleGnssUpdate: %s", err)
		}
	}

	if !v.OperationallyLoggedOn {
		t.Fatalf("expected the vehicle to be operationally logged on after converging")
	}
	if v.Activity.TripDescriptor == nil || v.Activity.TripDescriptor.TripId != "trip-1" {
		t.Fatalf("expected the vehicle matched to trip-1, got %+v", v.Activity.TripDescriptor)
	}
}

// Scenario 2: rejection by forward-movement. The same candidate, but the
// samples arrive in reverse spatial order, so the forward-ratio gate fails
// and the vehicle never converges or logs on.
func TestMachineRejectsBackwardMovement(t *testing.T) {
	base := time.Now()
	trip := straightTrip("trip-1", base)
	store := newFakeStore()
	nominal := &fakeNominal{candidates: []*model.Trip{trip}}
	m := NewMachine(store, nominal, Config{MatchingMaxInterval: 8 * time.Second}, testLog())

	v := newTestVehicle("v1")
	ctx := context.Background()

	samples := []model.GnssPosition{
		{Latitude: 48.0, Longitude: 9.012, Timestamp: base.Unix()},
		{Latitude: 48.0, Longitude: 9.006, Timestamp: base.Unix() + 5},
		{Latitude: 48.0, Longitude: 9.000, Timestamp: base.Unix() + 15},
	}
	for _, sample := range samples {
		if err := m.HandleGnssUpdate(ctx, v, sample); err != nil {
			t.Fatalf("HandleGnssUpdate: %s", err)
		}
	}

	if v.OperationallyLoggedOn {
		t.Fatalf("expected the vehicle to remain in acquisition, got operationally logged on")
	}
	if v.Activity.TripDescriptor != nil {
		t.Fatalf("expected no trip descriptor, got %+v", v.Activity.TripDescriptor)
	}
}

// Scenario 3: trip exclusivity. Once V1 has converged onto T, V2 must never
// adopt T even when fed the exact same samples that would otherwise match.
func TestMachineEnforcesTripExclusivity(t *testing.T) {
	base := time.Now()
	trip := straightTrip("trip-1", base)
	store := newFakeStore()
	nominal := &fakeNominal{candidates: []*model.Trip{trip}}
	m := NewMachine(store, nominal, Config{MatchingMaxInterval: 8 * time.Second}, testLog())

	ctx := context.Background()
	samples := []model.GnssPosition{
		{Latitude: 48.0, Longitude: 9.000, Timestamp: base.Unix()},
		{Latitude: 48.0, Longitude: 9.006, Timestamp: base.Unix() + 5},
		{Latitude: 48.0, Longitude: 9.012, Timestamp: base.Unix() + 15},
	}

	v1 := newTestVehicle("v1")
	for _, sample := range samples {
		if err := m.HandleGnssUpdate(ctx, v1, sample); err != nil {
			t.Fatalf("HandleGnssUpdate v1: %s", err)
		}
	}
	if !v1.OperationallyLoggedOn || v1.Activity.TripDescriptor == nil || v1.Activity.TripDescriptor.TripId != "trip-1" {
		t.Fatalf("expected v1 to converge onto trip-1 first, got %+v", v1)
	}

	v2 := newTestVehicle("v2")
	for _, sample := range samples {
		if err := m.HandleGnssUpdate(ctx, v2, sample); err != nil {
			t.Fatalf("HandleGnssUpdate v2: %s", err)
		}
	}

	if v2.OperationallyLoggedOn {
		t.Fatalf("expected v2 to never adopt trip-1 while v1 holds it")
	}
	if v2.Activity.TripDescriptor != nil {
		t.Fatalf("expected v2 to have no trip descriptor, got %+v", v2.Activity.TripDescriptor)
	}
}

// Scenario 4: natural end-of-trip. A vehicle already TRACKING on T whose
// predicted metrics report current_stop_is_final transitions back to
// TECH_ON_IDLE, its GNSS buffer is cleared, and the trip it left is
// tombstoned for differential cleanup (trip.DifferentialDeleted=true),
// while v.Activity.TripDescriptor is deliberately left in place for
// BuildDifferential to discover on its next pass.
func TestMachineEndsTripNaturallyAtFinalStop(t *testing.T) {
	base := time.Now()
	trip := straightTrip("trip-1", base)
	store := newFakeStore()
	if err := store.UpdateTrip(context.Background(), trip); err != nil {
		t.Fatalf("seed trip: %s", err)
	}
	nominal := &fakeNominal{}
	m := NewMachine(store, nominal, Config{MatchingMaxInterval: time.Second}, testLog())

	v := newTestVehicle("v1")
	v.OperationallyLoggedOn = true
	v.Activity.TripDescriptor = &trip.Descriptor
	v.Activity.GnssPositions = []model.GnssPosition{
		{Latitude: 48.0, Longitude: 9.014, Timestamp: base.Unix() - 10},
		{Latitude: 48.0, Longitude: 9.017, Timestamp: base.Unix() - 5},
	}

	ctx := context.Background()
	finalApproach := model.GnssPosition{Latitude: 48.0, Longitude: 9.0199, Timestamp: base.Unix()}
	if err := m.HandleGnssUpdate(ctx, v, finalApproach); err != nil {
		t.Fatalf("HandleGnssUpdate: %s", err)
	}

	if v.OperationallyLoggedOn {
		t.Fatalf("expected the vehicle to be logged off the trip at its final stop")
	}
	if len(v.Activity.GnssPositions) != 0 {
		t.Fatalf("expected the GNSS buffer to be cleared on natural end, got %v", v.Activity.GnssPositions)
	}
	if v.Activity.TripDescriptor == nil || v.Activity.TripDescriptor.TripId != "trip-1" {
		t.Fatalf("expected the trip descriptor to still reference trip-1 pending differential cleanup, got %+v", v.Activity.TripDescriptor)
	}

	stored, err := store.GetTrip(ctx, "trip-1")
	if err != nil {
		t.Fatalf("GetTrip: %s", err)
	}
	if stored == nil || !stored.DifferentialDeleted {
		t.Fatalf("expected trip-1 to be tombstoned in the store, got %+v", stored)
	}
}

// Scenario 6: stale GNSS discard. A sample older than GnssFreshnessSeconds is
// dropped without mutating the buffer or transitioning state.
func TestMachineDiscardsStaleGnssSample(t *testing.T) {
	store := newFakeStore()
	nominal := &fakeNominal{}
	m := NewMachine(store, nominal, Config{}, testLog())

	v := newTestVehicle("v1")
	ctx := context.Background()

	stale := model.GnssPosition{
		Latitude:  48.0,
		Longitude: 9.0,
		Timestamp: time.Now().Unix() - (GnssFreshnessSeconds + 10),
	}
	if err := m.HandleGnssUpdate(ctx, v, stale); err != nil {
		t.Fatalf("HandleGnssUpdate: %s", err)
	}

	if len(v.Activity.GnssPositions) != 0 {
		t.Fatalf("expected the stale sample to be discarded, buffer = %v", v.Activity.GnssPositions)
	}
	if v.OperationallyLoggedOn {
		t.Fatalf("expected no state transition from a discarded sample")
	}
}
