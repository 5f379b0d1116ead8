// Package store implements the State Store: durable CRUD of vehicles and
// trips with round-trippable JSON serialization, windowed GNSS trimming, and
// an in-memory read-through cache guarding every round trip to Postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sebastianknopf/avl2gtfsrt/business/model"
)

// Store is the State Store. dataReviewSeconds and maxDataPoints configure the
// GNSS trim discipline applied on every UpdateVehicle call.
type Store struct {
	db                *sqlx.DB
	dataReviewSeconds int
	maxDataPoints     int

	mu       sync.RWMutex
	vehicles map[string]*model.Vehicle
	trips    map[string]*model.Trip
}

// New builds a Store backed by db, with an empty in-memory cache.
func New(db *sqlx.DB, dataReviewSeconds, maxDataPoints int) *Store {
	return &Store{
		db:                db,
		dataReviewSeconds: dataReviewSeconds,
		maxDataPoints:     maxDataPoints,
		vehicles:          make(map[string]*model.Vehicle),
		trips:             make(map[string]*model.Trip),
	}
}

type vehicleRow struct {
	VehicleRef string `db:"vehicle_ref"`
	Document   []byte `db:"document"`
}

type tripRow struct {
	TripId   string `db:"trip_id"`
	Document []byte `db:"document"`
}

// GetVehicles returns every known vehicle, preferring the in-memory cache and
// falling back to Postgres to prime it on first access.
func (s *Store) GetVehicles(ctx context.Context) ([]*model.Vehicle, error) {
	s.mu.RLock()
	if len(s.vehicles) > 0 {
		result := make([]*model.Vehicle, 0, len(s.vehicles))
		for _, v := range s.vehicles {
			result = append(result, v)
		}
		s.mu.RUnlock()
		return result, nil
	}
	s.mu.RUnlock()

	var rows []vehicleRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT vehicle_ref, document FROM vehicles`); err != nil {
		return nil, fmt.Errorf("store: select vehicles: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]*model.Vehicle, 0, len(rows))
	for _, row := range rows {
		vehicle := new(model.Vehicle)
		if err := json.Unmarshal(row.Document, vehicle); err != nil {
			return nil, fmt.Errorf("store: decode vehicle %s: %w", row.VehicleRef, err)
		}
		s.vehicles[vehicle.VehicleRef] = vehicle
		result = append(result, vehicle)
	}
	return result, nil
}

// GetVehicle returns the vehicle identified by id, or nil if it does not
// exist.
func (s *Store) GetVehicle(ctx context.Context, id string) (*model.Vehicle, error) {
	s.mu.RLock()
	if vehicle, ok := s.vehicles[id]; ok {
		s.mu.RUnlock()
		return vehicle, nil
	}
	s.mu.RUnlock()

	var row vehicleRow
	err := s.db.GetContext(ctx, &row, `SELECT vehicle_ref, document FROM vehicles WHERE vehicle_ref = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: select vehicle %s: %w", id, err)
	}

	vehicle := new(model.Vehicle)
	if err := json.Unmarshal(row.Document, vehicle); err != nil {
		return nil, fmt.Errorf("store: decode vehicle %s: %w", id, err)
	}

	s.mu.Lock()
	s.vehicles[id] = vehicle
	s.mu.Unlock()
	return vehicle, nil
}

// UpdateVehicle persists v, applying the GNSS trim discipline (§4.2) to its
// activity buffer first: samples older than dataReviewSeconds relative to now
// are dropped, then the buffer is truncated to the most recent maxDataPoints,
// preserving order.
func (s *Store) UpdateVehicle(ctx context.Context, v *model.Vehicle, now time.Time) error {
	if v.Activity != nil {
		s.trimGnssBuffer(v.Activity, now)
	}

	document, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode vehicle %s: %w", v.VehicleRef, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO vehicles (vehicle_ref, document)
		VALUES ($1, $2)
		ON CONFLICT (vehicle_ref) DO UPDATE SET document = EXCLUDED.document
	`, v.VehicleRef, document)
	if err != nil {
		return fmt.Errorf("store: upsert vehicle %s: %w", v.VehicleRef, err)
	}

	s.mu.Lock()
	s.vehicles[v.VehicleRef] = v
	s.mu.Unlock()
	return nil
}

func (s *Store) trimGnssBuffer(activity *model.VehicleActivity, now time.Time) {
	cutoff := now.Unix() - int64(s.dataReviewSeconds)
	kept := activity.GnssPositions[:0:0]
	for _, position := range activity.GnssPositions {
		if position.Timestamp > cutoff {
			kept = append(kept, position)
		}
	}
	if len(kept) > s.maxDataPoints {
		kept = kept[len(kept)-s.maxDataPoints:]
	}
	activity.GnssPositions = kept
}

// CleanupVehicleTripRefs clears v's operational trip references (descriptor,
// metrics, candidate probabilities) without touching its technical state,
// used when a trip naturally ends or a vehicle logs off while a differential
// delete for its last trip is still pending.
func (s *Store) CleanupVehicleTripRefs(ctx context.Context, v *model.Vehicle) error {
	if v.Activity != nil {
		v.Activity.TripDescriptor = nil
		v.Activity.TripMetrics = nil
		v.Activity.TripCandidateProbabilities = nil
		v.Activity.TripCandidateConvergence = false
		v.Activity.TripCandidateFailures = 0
	}
	return s.UpdateVehicle(ctx, v, time.Now())
}

// GetTrip returns the persisted trip identified by id, or nil if it does not
// exist.
func (s *Store) GetTrip(ctx context.Context, id string) (*model.Trip, error) {
	s.mu.RLock()
	if trip, ok := s.trips[id]; ok {
		s.mu.RUnlock()
		return trip, nil
	}
	s.mu.RUnlock()

	var row tripRow
	err := s.db.GetContext(ctx, &row, `SELECT trip_id, document FROM trips WHERE trip_id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: select trip %s: %w", id, err)
	}

	trip := new(model.Trip)
	if err := json.Unmarshal(row.Document, trip); err != nil {
		return nil, fmt.Errorf("store: decode trip %s: %w", id, err)
	}

	s.mu.Lock()
	s.trips[id] = trip
	s.mu.Unlock()
	return trip, nil
}

// UpdateTrip persists t, called when a vehicle matches onto a nominal trip
// candidate.
func (s *Store) UpdateTrip(ctx context.Context, t *model.Trip) error {
	document, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("store: encode trip %s: %w", t.Descriptor.TripId, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trips (trip_id, document)
		VALUES ($1, $2)
		ON CONFLICT (trip_id) DO UPDATE SET document = EXCLUDED.document
	`, t.Descriptor.TripId, document)
	if err != nil {
		return fmt.Errorf("store: upsert trip %s: %w", t.Descriptor.TripId, err)
	}

	s.mu.Lock()
	s.trips[t.Descriptor.TripId] = t
	s.mu.Unlock()
	return nil
}

// DeleteTrip removes t from storage, called after its differential log-off
// cleanup has been emitted.
func (s *Store) DeleteTrip(ctx context.Context, t *model.Trip) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM trips WHERE trip_id = $1`, t.Descriptor.TripId); err != nil {
		return fmt.Errorf("store: delete trip %s: %w", t.Descriptor.TripId, err)
	}

	s.mu.Lock()
	delete(s.trips, t.Descriptor.TripId)
	s.mu.Unlock()
	return nil
}

// Schema is the DDL the Store expects. Applied by the service at startup;
// kept here as the single source of truth for the document columns' shape.
const Schema = `
CREATE TABLE IF NOT EXISTS vehicles (
	vehicle_ref TEXT PRIMARY KEY,
	document JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS trips (
	trip_id TEXT PRIMARY KEY,
	document JSONB NOT NULL
);
`
