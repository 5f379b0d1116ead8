package gtfsrt

import (
	"context"
	"log"
	"sync"
	"time"
)

// DefaultPushMinInterval is the minimum gap between two differential pushes
// for the same vehicle (§9 open question (a): the reference drafts leave the
// debouncing policy for the on_event_message hook unspecified).
const DefaultPushMinInterval = 2 * time.Second

// DifferentialPublisher is the subset of ioevents.DifferentialPublisher the
// push trigger depends on, kept narrow to avoid a gtfsrt → ioevents import.
type DifferentialPublisher interface {
	Publish(dataType, vehicleId string, payload []byte) error
}

// PushTrigger assembles and publishes a differential feed for a vehicle on
// every qualifying event, debounced per vehicle_ref.
type PushTrigger struct {
	assembler   *Assembler
	publisher   DifferentialPublisher
	minInterval time.Duration
	logger      *log.Logger

	mu   sync.Mutex
	last map[string]time.Time
}

// NewPushTrigger builds a PushTrigger. minInterval falls back to
// DefaultPushMinInterval if zero.
func NewPushTrigger(assembler *Assembler, publisher DifferentialPublisher, minInterval time.Duration, logger *log.Logger) *PushTrigger {
	if minInterval <= 0 {
		minInterval = DefaultPushMinInterval
	}
	return &PushTrigger{
		assembler:   assembler,
		publisher:   publisher,
		minInterval: minInterval,
		logger:      logger,
		last:        make(map[string]time.Time),
	}
}

// Trigger assembles and publishes both differential entity types for
// vehicleRef if the per-vehicle debounce interval has elapsed. It runs
// synchronously; push failures are logged, never returned,
// since a differential push is a side effect of handling an inbound event,
// not something the caller should fail on.
func (p *PushTrigger) Trigger(ctx context.Context, vehicleRef string) {
	if !p.shouldPush(vehicleRef) {
		return
	}

	feed, err := p.assembler.BuildDifferential(ctx, vehicleRef)
	if err != nil {
		p.logger.Printf("gtfsrt: build differential feed for %s: %s", vehicleRef, err)
		return
	}

	payload, err := Marshal(feed)
	if err != nil {
		p.logger.Printf("gtfsrt: marshal differential feed for %s: %s", vehicleRef, err)
		return
	}

	if err := p.publisher.Publish("vehicle-positions", vehicleRef, payload); err != nil {
		p.logger.Printf("gtfsrt: publish differential vehicle-positions for %s: %s", vehicleRef, err)
	}
	if err := p.publisher.Publish("trip-updates", vehicleRef, payload); err != nil {
		p.logger.Printf("gtfsrt: publish differential trip-updates for %s: %s", vehicleRef, err)
	}
}

func (p *PushTrigger) shouldPush(vehicleRef string) bool {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if last, ok := p.last[vehicleRef]; ok && now.Sub(last) < p.minInterval {
		return false
	}
	p.last[vehicleRef] = now
	return true
}
