package gtfsrt

import (
	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"

	"github.com/sebastianknopf/avl2gtfsrt/business/model"
)

func vehiclePositionEntity(v *model.Vehicle) *gtfs.FeedEntity {
	last := v.Activity.LastPosition()
	if last == nil {
		return nil
	}

	lat := float32(last.Latitude)
	lon := float32(last.Longitude)
	timestamp := uint64(last.Timestamp)

	position := &gtfs.VehiclePosition{
		Position: &gtfs.Position{
			Latitude:  &lat,
			Longitude: &lon,
		},
		Timestamp: &timestamp,
		Vehicle: &gtfs.VehicleDescriptor{
			Id: stringPtr(v.VehicleRef),
		},
	}

	if v.OperationallyLoggedOn && v.Activity.TripDescriptor != nil {
		position.Trip = tripDescriptorProto(v.Activity.TripDescriptor)

		if metrics := v.Activity.TripMetrics; metrics != nil {
			status := vehicleStopStatus(metrics.CurrentStopStatus)
			position.CurrentStatus = &status
			if metrics.CurrentStopId != nil {
				position.StopId = metrics.CurrentStopId
			}
			if metrics.CurrentStopSequence != nil {
				sequence := uint32(*metrics.CurrentStopSequence)
				position.CurrentStopSequence = &sequence
			}
		}
	}

	id := v.VehicleRef
	return &gtfs.FeedEntity{
		Id:      &id,
		Vehicle: position,
	}
}

func tripUpdateEntity(v *model.Vehicle, trip *model.Trip) *gtfs.FeedEntity {
	descriptor := v.Activity.TripDescriptor
	if descriptor == nil {
		return nil
	}

	update := &gtfs.TripUpdate{
		Trip: tripDescriptorProto(descriptor),
		Vehicle: &gtfs.VehicleDescriptor{
			Id: stringPtr(v.VehicleRef),
		},
	}

	nextSequence := 0
	if metrics := v.Activity.TripMetrics; metrics != nil && metrics.NextStopSequence != nil {
		nextSequence = *metrics.NextStopSequence
	}

	currentDelay := 0
	if metrics := v.Activity.TripMetrics; metrics != nil {
		currentDelay = metrics.CurrentDelay
	}

	var stopTimeUpdates []*gtfs.TripUpdate_StopTimeUpdate
	for _, stopTime := range trip.StopTimes {
		if stopTime.StopSequence < nextSequence {
			continue
		}
		stopTimeUpdates = append(stopTimeUpdates, propagatedStopTimeUpdate(stopTime, &currentDelay))
	}
	update.StopTimeUpdate = stopTimeUpdates

	id := descriptor.TripId
	return &gtfs.FeedEntity{
		Id:         &id,
		TripUpdate: update,
	}
}

// propagatedStopTimeUpdate computes one stop's arrival/departure delay from
// currentDelay, mutating currentDelay for the next stop down the line (§4.5).
func propagatedStopTimeUpdate(stopTime model.StopTime, currentDelay *int) *gtfs.TripUpdate_StopTimeUpdate {
	waitingTime := int(stopTime.DepartureTimestamp - stopTime.ArrivalTimestamp)

	var arrivalDelay, departureDelay int
	switch {
	case *currentDelay < 0:
		arrivalDelay = *currentDelay
		if waitingTime > 0 {
			departureDelay = 0
			*currentDelay = 0
		} else {
			departureDelay = *currentDelay
		}
	case *currentDelay > 0:
		arrivalDelay = *currentDelay
		departureDelay = clamp(*currentDelay-waitingTime, minInt(0, *currentDelay), *currentDelay)
		*currentDelay = departureDelay
	default:
		arrivalDelay = 0
		departureDelay = 0
	}

	sequence := uint32(stopTime.StopSequence)
	stopId := stopTime.Stop.StopId

	arrivalTime := stopTime.ArrivalTimestamp + int64(arrivalDelay)
	departureTime := stopTime.DepartureTimestamp + int64(departureDelay)

	arrivalDelay32 := int32(arrivalDelay)
	departureDelay32 := int32(departureDelay)

	return &gtfs.TripUpdate_StopTimeUpdate{
		StopSequence: &sequence,
		StopId:       &stopId,
		Arrival: &gtfs.TripUpdate_StopTimeEvent{
			Delay: &arrivalDelay32,
			Time:  &arrivalTime,
		},
		Departure: &gtfs.TripUpdate_StopTimeEvent{
			Delay: &departureDelay32,
			Time:  &departureTime,
		},
	}
}

func clamp(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func tripDescriptorProto(descriptor *model.TripDescriptor) *gtfs.TripDescriptor {
	proto := &gtfs.TripDescriptor{
		TripId:    stringPtr(descriptor.TripId),
		RouteId:   stringPtr(descriptor.RouteId),
		StartDate: stringPtr(descriptor.StartDate),
		StartTime: stringPtr(descriptor.StartTime),
	}
	if descriptor.DirectionId != nil {
		proto.DirectionId = descriptor.DirectionId
	}
	if descriptor.ScheduleRelationship != nil {
		proto.ScheduleRelationship = scheduleRelationshipProto(*descriptor.ScheduleRelationship)
	}
	return proto
}

func scheduleRelationshipProto(r model.ScheduleRelationship) *gtfs.TripDescriptor_ScheduleRelationship {
	var value gtfs.TripDescriptor_ScheduleRelationship
	switch r {
	case model.AddedRelationship:
		value = gtfs.TripDescriptor_ADDED
	case model.CanceledRelationship:
		value = gtfs.TripDescriptor_CANCELED
	default:
		value = gtfs.TripDescriptor_SCHEDULED
	}
	return &value
}

func vehicleStopStatus(status model.StopStatus) gtfs.VehiclePosition_VehicleStopStatus {
	switch status {
	case model.IncomingAt:
		return gtfs.VehiclePosition_INCOMING_AT
	case model.StoppedAt:
		return gtfs.VehiclePosition_STOPPED_AT
	default:
		return gtfs.VehiclePosition_IN_TRANSIT_TO
	}
}

func stringPtr(s string) *string { return &s }
