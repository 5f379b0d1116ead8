// Package gtfsrt assembles GTFS-Realtime FeedMessage payloads (VehiclePosition
// and TripUpdate entities) from the State Store's durable vehicle and trip
// records, in both full-snapshot and single-vehicle differential modes.
package gtfsrt

import (
	"context"
	"fmt"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/sebastianknopf/avl2gtfsrt/business/model"
	"github.com/sebastianknopf/avl2gtfsrt/business/store"
)

// GtfsRealtimeVersion is the header version this assembler emits (§4.5).
const GtfsRealtimeVersion = "2.0"

// Assembler builds GTFS-Realtime feeds from the State Store.
type Assembler struct {
	store    *store.Store
	location *time.Location
}

// NewAssembler builds an Assembler whose header timestamps are rendered in
// location (the configured SERVER_TIMEZONE).
func NewAssembler(st *store.Store, location *time.Location) *Assembler {
	if location == nil {
		location = time.UTC
	}
	return &Assembler{store: st, location: location}
}

func (a *Assembler) now() int64 {
	return time.Now().In(a.location).Unix()
}

func header(now int64, incrementality gtfs.FeedHeader_Incrementality) *gtfs.FeedHeader {
	version := GtfsRealtimeVersion
	ts := uint64(now)
	return &gtfs.FeedHeader{
		GtfsRealtimeVersion: &version,
		Incrementality:      &incrementality,
		Timestamp:           &ts,
	}
}

// BuildFullSnapshot iterates every technically logged-on, non-tombstoned
// vehicle and emits a VehiclePosition entity for each, plus a TripUpdate
// entity for every operationally-on vehicle with trip metrics (§4.5).
func (a *Assembler) BuildFullSnapshot(ctx context.Context) (*gtfs.FeedMessage, error) {
	vehicles, err := a.store.GetVehicles(ctx)
	if err != nil {
		return nil, fmt.Errorf("gtfsrt: load vehicles: %w", err)
	}

	now := a.now()
	var entities []*gtfs.FeedEntity
	var tripUpdateEntities []*gtfs.FeedEntity

	for _, v := range vehicles {
		if !v.TechnicallyLoggedOn || v.DifferentialDeleted {
			continue
		}
		if entity := vehiclePositionEntity(v); entity != nil {
			entities = append(entities, entity)
		}
		if v.OperationallyLoggedOn && v.Activity != nil && v.Activity.TripMetrics != nil && v.Activity.TripDescriptor != nil {
			trip, err := a.store.GetTrip(ctx, v.Activity.TripDescriptor.TripId)
			if err != nil {
				return nil, fmt.Errorf("gtfsrt: load trip %s: %w", v.Activity.TripDescriptor.TripId, err)
			}
			if trip == nil {
				continue
			}
			entity := tripUpdateEntity(v, trip)
			if entity != nil {
				tripUpdateEntities = append(tripUpdateEntities, entity)
			}
		}
	}

	return &gtfs.FeedMessage{
		Header: header(now, gtfs.FeedHeader_FULL_DATASET),
		Entity: append(entities, tripUpdateEntities...),
	}, nil
}

// BuildVehiclePositionsSnapshot returns only the VehiclePosition entities of
// a full snapshot, for the /vehicle-positions.pbf endpoint.
func (a *Assembler) BuildVehiclePositionsSnapshot(ctx context.Context) (*gtfs.FeedMessage, error) {
	full, err := a.BuildFullSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	var entities []*gtfs.FeedEntity
	for _, entity := range full.Entity {
		if entity.Vehicle != nil {
			entities = append(entities, entity)
		}
	}
	full.Entity = entities
	return full, nil
}

// BuildTripUpdatesSnapshot returns only the TripUpdate entities of a full
// snapshot, for the /trip-updates.pbf endpoint.
func (a *Assembler) BuildTripUpdatesSnapshot(ctx context.Context) (*gtfs.FeedMessage, error) {
	full, err := a.BuildFullSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	var entities []*gtfs.FeedEntity
	for _, entity := range full.Entity {
		if entity.TripUpdate != nil {
			entities = append(entities, entity)
		}
	}
	full.Entity = entities
	return full, nil
}

// BuildDifferential assembles a single-vehicle differential feed (§4.5).
// Tombstoned vehicles/trips are represented as is_deleted entities; after
// emitting a tombstoned trip update, the State Store's trip reference is
// cleaned up as a side effect of this call, exactly once per tombstone.
func (a *Assembler) BuildDifferential(ctx context.Context, vehicleRef string) (*gtfs.FeedMessage, error) {
	v, err := a.store.GetVehicle(ctx, vehicleRef)
	if err != nil {
		return nil, fmt.Errorf("gtfsrt: load vehicle %s: %w", vehicleRef, err)
	}
	if v == nil {
		return &gtfs.FeedMessage{Header: header(a.now(), gtfs.FeedHeader_DIFFERENTIAL)}, nil
	}

	var entities []*gtfs.FeedEntity

	if v.DifferentialDeleted {
		entities = append(entities, deletedVehiclePositionEntity(v))
	} else if entity := vehiclePositionEntity(v); entity != nil {
		entities = append(entities, entity)
	}

	if v.Activity != nil && v.Activity.TripDescriptor != nil {
		trip, err := a.store.GetTrip(ctx, v.Activity.TripDescriptor.TripId)
		if err != nil {
			return nil, fmt.Errorf("gtfsrt: load trip %s: %w", v.Activity.TripDescriptor.TripId, err)
		}

		tombstoned := v.DifferentialDeleted || (trip != nil && trip.DifferentialDeleted)
		if tombstoned {
			entities = append(entities, deletedTripUpdateEntity(v.Activity.TripDescriptor.TripId))
			if trip != nil {
				if err := a.store.CleanupVehicleTripRefs(ctx, v); err != nil {
					return nil, fmt.Errorf("gtfsrt: cleanup vehicle %s trip refs: %w", vehicleRef, err)
				}
				if err := a.store.DeleteTrip(ctx, trip); err != nil {
					return nil, fmt.Errorf("gtfsrt: delete trip %s: %w", trip.Descriptor.TripId, err)
				}
			}
		} else if trip != nil && v.Activity.TripMetrics != nil {
			if entity := tripUpdateEntity(v, trip); entity != nil {
				entities = append(entities, entity)
			}
		}
	}

	return &gtfs.FeedMessage{
		Header: header(a.now(), gtfs.FeedHeader_DIFFERENTIAL),
		Entity: entities,
	}, nil
}

// Marshal serializes a FeedMessage as a GTFS-Realtime protocol buffer.
func Marshal(message *gtfs.FeedMessage) ([]byte, error) {
	return proto.Marshal(message)
}

func boolPtr(b bool) *bool { return &b }

func deletedVehiclePositionEntity(v *model.Vehicle) *gtfs.FeedEntity {
	id := v.VehicleRef
	return &gtfs.FeedEntity{
		Id:      &id,
		IsDeleted: boolPtr(true),
	}
}

func deletedTripUpdateEntity(tripId string) *gtfs.FeedEntity {
	id := tripId
	return &gtfs.FeedEntity{
		Id:        &id,
		IsDeleted: boolPtr(true),
	}
}
