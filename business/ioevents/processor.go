package ioevents

import (
	"context"
	"encoding/xml"
	"fmt"
	"log"
	"time"

	"github.com/sebastianknopf/avl2gtfsrt/business/gtfsrt"
	"github.com/sebastianknopf/avl2gtfsrt/business/model"
	"github.com/sebastianknopf/avl2gtfsrt/business/store"
	"github.com/sebastianknopf/avl2gtfsrt/business/vdv435"
	"github.com/sebastianknopf/avl2gtfsrt/business/vehicle"
)

// Topic-level structures subscribed on the inbound bus (§6). The MQTT broker
// transport itself is out of scope; these patterns are translated to NATS
// subjects (dots for slashes) by ToNatsSubject when subscribing.
const (
	ItcsInboxTopic          TopicLevelStructure = "IoM/1.0/DataVersion/+/Inbox/ItcsInbox/Country/de/+/Organisation/{organisationId}/+/ItcsId/{itcsId}/#"
	VehiclePhysicalPosition TopicLevelStructure = "IoM/1.0/DataVersion/+/Country/de/+/Organisation/{organisationId}/+/Vehicle/+/+/PhysicalPosition/#"
	VehicleInboxResponse    TopicLevelStructure = "IoM/1.0/DataVersion/{dataVersion}/Inbox/VehicleInbox/Country/de/any/Organisation/{organisationId}/any/VehicleId/{vehicleId}/CorrelationId/{correlationId}/ResponseData"
)

// ToNatsSubject adapts an MQTT-style topic pattern to a NATS subject: NATS
// forbids '/' in practice but happily carries it as a token separator like
// any other character, and this deployment's publishers emit NATS subjects
// with the same slash-delimited segments as the original MQTT topics, so no
// translation beyond wildcard tokens is needed ('+' and '#' already match
// NATS's own single/multi-token wildcards).
func ToNatsSubject(tls TopicLevelStructure, params map[string]string) string {
	return tls.Render(params)
}

// Processor subscribes to the inbound bus and routes messages to the
// technical log-on/off handlers and the GNSS handler, dispatched per-vehicle
// through a vehicle.Dispatcher.
type Processor struct {
	organisationId string
	itcsId         string

	bus         *Bus
	dispatcher  *vehicle.Dispatcher
	machine     *vehicle.Machine
	store       *store.Store
	pushTrigger *gtfsrt.PushTrigger
	logger      *log.Logger
}

// NewProcessor builds a Processor. pushTrigger may be nil, in which case no
// differential feed is pushed on events (snapshot polling still works).
func NewProcessor(organisationId, itcsId string, bus *Bus, dispatcher *vehicle.Dispatcher, machine *vehicle.Machine, st *store.Store, pushTrigger *gtfsrt.PushTrigger, logger *log.Logger) *Processor {
	return &Processor{
		organisationId: organisationId,
		itcsId:         itcsId,
		bus:            bus,
		dispatcher:     dispatcher,
		machine:        machine,
		store:          st,
		pushTrigger:    pushTrigger,
		logger:         logger,
	}
}

// Start subscribes to the ITCS inbox and vehicle physical-position topics.
func (p *Processor) Start() error {
	params := map[string]string{"organisationId": p.organisationId, "itcsId": p.itcsId}

	itcsSubject := ToNatsSubject(ItcsInboxTopic, params)
	if err := p.bus.Subscribe(itcsSubject, "", 0, p.handleItcsInbox); err != nil {
		return fmt.Errorf("ioevents: subscribe itcs inbox: %w", err)
	}

	positionSubject := ToNatsSubject(VehiclePhysicalPosition, params)
	if err := p.bus.Subscribe(positionSubject, "", 0, p.handlePhysicalPosition); err != nil {
		return fmt.Errorf("ioevents: subscribe physical position: %w", err)
	}
	return nil
}

// handleItcsInbox dispatches technical log-on/off requests, which are
// answered synchronously within the handler (§6: "both reply with either
// ResponseData or ResponseError").
func (p *Processor) handleItcsInbox(msg InboundMessage) {
	dataVersion := ValueAfter(msg.Topic, "DataVersion")
	correlationId := ValueAfter(msg.Topic, "CorrelationId")

	var logOnRequest vdv435.TechnicalVehicleLogOnRequest
	if err := xml.Unmarshal(msg.Payload, &logOnRequest); err == nil && logOnRequest.XMLName.Local == "TechnicalVehicleLogOnRequest" {
		p.handleTechnicalLogOn(logOnRequest, dataVersion, correlationId)
		return
	}

	var logOffRequest vdv435.TechnicalVehicleLogOffRequest
	if err := xml.Unmarshal(msg.Payload, &logOffRequest); err == nil && logOffRequest.XMLName.Local == "TechnicalVehicleLogOffRequest" {
		p.handleTechnicalLogOff(logOffRequest, dataVersion, correlationId)
		return
	}

	p.logger.Printf("ioevents: unrecognized ITCS inbox payload on topic %s", msg.Topic)
}

func (p *Processor) handleTechnicalLogOn(request vdv435.TechnicalVehicleLogOnRequest, dataVersion, correlationId string) {
	ctx := context.Background()
	vehicleRef := request.VehicleRef.Value

	v, err := p.store.GetVehicle(ctx, vehicleRef)
	if err != nil {
		p.logger.Printf("ioevents: fetch vehicle %s for log-on: %s", vehicleRef, err)
		return
	}
	if v == nil {
		v = &model.Vehicle{VehicleRef: vehicleRef}
	}

	var response vdv435.TechnicalVehicleLogOnResponse
	if v.TechnicallyLoggedOn {
		p.logger.Printf("ioevents: vehicle %s tried to log on but is already logged on", vehicleRef)
		response = vdv435.NewTechnicalVehicleLogOnResponseError(request.MessageId, vdv435.LogOnErrorDoubleLogOn)
	} else {
		if err := p.machine.HandleTechnicalLogOn(ctx, v); err != nil {
			p.logger.Printf("ioevents: technical log-on for %s failed: %s", vehicleRef, err)
			return
		}
		p.logger.Printf("ioevents: vehicle %s logged on successfully", vehicleRef)
		response = vdv435.NewTechnicalVehicleLogOnResponseData(request.MessageId)
	}

	p.replyVehicleInbox(dataVersion, vehicleRef, correlationId, response)
	p.pushDifferential(ctx, vehicleRef)
}

func (p *Processor) handleTechnicalLogOff(request vdv435.TechnicalVehicleLogOffRequest, dataVersion, correlationId string) {
	ctx := context.Background()
	vehicleRef := request.VehicleRef.Value

	v, err := p.store.GetVehicle(ctx, vehicleRef)
	if err != nil {
		p.logger.Printf("ioevents: fetch vehicle %s for log-off: %s", vehicleRef, err)
		return
	}

	var response vdv435.TechnicalVehicleLogOffResponse
	if v == nil || !v.TechnicallyLoggedOn {
		p.logger.Printf("ioevents: vehicle %s tried to log off but is not logged on", vehicleRef)
		response = vdv435.NewTechnicalVehicleLogOffResponseError(request.MessageId, vdv435.LogOffErrorVehicleNotLoggedOn)
	} else {
		if err := p.machine.HandleTechnicalLogOff(ctx, v); err != nil {
			p.logger.Printf("ioevents: technical log-off for %s failed: %s", vehicleRef, err)
			return
		}
		p.logger.Printf("ioevents: vehicle %s logged off successfully", vehicleRef)
		response = vdv435.NewTechnicalVehicleLogOffResponseData(request.MessageId)
	}

	p.replyVehicleInbox(dataVersion, vehicleRef, correlationId, response)
	p.pushDifferential(ctx, vehicleRef)
}

// pushDifferential triggers a debounced differential GTFS-Realtime push for
// vehicleRef, a no-op if this Processor was built without a PushTrigger.
func (p *Processor) pushDifferential(ctx context.Context, vehicleRef string) {
	if p.pushTrigger != nil {
		p.pushTrigger.Trigger(ctx, vehicleRef)
	}
}

func (p *Processor) replyVehicleInbox(dataVersion, vehicleId, correlationId string, response interface{}) {
	payload, err := xml.Marshal(response)
	if err != nil {
		p.logger.Printf("ioevents: encode response for %s: %s", vehicleId, err)
		return
	}
	subject := ToNatsSubject(VehicleInboxResponse, map[string]string{
		"organisationId": p.organisationId,
		"dataVersion":    dataVersion,
		"vehicleId":      vehicleId,
		"correlationId":  correlationId,
	})
	if err := p.bus.Publish(subject, payload); err != nil {
		p.logger.Printf("ioevents: publish response to %s: %s", subject, err)
	}
}

// handlePhysicalPosition dispatches a GNSS update through the per-vehicle
// dispatcher, guaranteeing single-writer handling for that vehicle.
func (p *Processor) handlePhysicalPosition(msg InboundMessage) {
	vehicleRef := ValueAfter(msg.Topic, "Vehicle")
	if vehicleRef == "" {
		p.logger.Printf("ioevents: physical position on topic %s has no Vehicle segment", msg.Topic)
		return
	}

	var data vdv435.GnssPhysicalPositionData
	if err := xml.Unmarshal(msg.Payload, &data); err != nil {
		p.logger.Printf("ioevents: decode physical position for %s: %s", vehicleRef, err)
		return
	}

	measuredAt, err := data.MeasurementTime()
	if err != nil {
		p.logger.Printf("ioevents: invalid TimestampOfMeasurement for %s: %s", vehicleRef, err)
		return
	}

	position := model.GnssPosition{
		Latitude:  data.GnssPhysicalPosition.WGS84PhysicalPosition.Latitude,
		Longitude: data.GnssPhysicalPosition.WGS84PhysicalPosition.Longitude,
		Timestamp: measuredAt.Unix(),
	}

	p.dispatcher.Submit(vehicle.Event{
		VehicleRef: vehicleRef,
		Kind:       vehicle.GnssUpdateEvent,
		Payload:    position,
	})
}

// RunGnssUpdateHandler is the vehicle.Handler the dispatcher invokes for
// GnssUpdateEvent events; it loads the vehicle, runs the state machine,
// persists the result and triggers a debounced differential push.
// pushTrigger may be nil to skip the push side effect.
func RunGnssUpdateHandler(ctx context.Context, machine *vehicle.Machine, st *store.Store, pushTrigger *gtfsrt.PushTrigger, logger *log.Logger) vehicle.Handler {
	return func(event vehicle.Event) {
		position, ok := event.Payload.(model.GnssPosition)
		if !ok {
			logger.Printf("ioevents: GNSS event for %s carried unexpected payload type", event.VehicleRef)
			return
		}

		v, err := st.GetVehicle(ctx, event.VehicleRef)
		if err != nil {
			logger.Printf("ioevents: fetch vehicle %s: %s", event.VehicleRef, err)
			return
		}
		if v == nil {
			logger.Printf("ioevents: GNSS update for unknown vehicle %s ignored", event.VehicleRef)
			return
		}

		requestCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := machine.HandleGnssUpdate(requestCtx, v, position); err != nil {
			logger.Printf("ioevents: handling GNSS update for %s failed: %s", event.VehicleRef, err)
			return
		}

		if pushTrigger != nil {
			pushTrigger.Trigger(requestCtx, event.VehicleRef)
		}
	}
}
