// Package vehicle implements the Vehicle Pipeline: per-vehicle serial
// dispatch of inbound events atop a shared bounded worker pool, and the
// acquisition / tracking state machine that drives a vehicle from technical
// log-on through operational trip matching to log-off.
package vehicle

import (
	"log"
	"sync"
)

// DefaultWorkerPoolSize is the default number of concurrent handlers shared
// across all vehicles (§5).
const DefaultWorkerPoolSize = 10

// DefaultQueueCapacity bounds how many pending events are kept per vehicle
// before the oldest GNSS sample is dropped (§5). Log-on/log-off events are
// never dropped.
const DefaultQueueCapacity = 100

// Event is one unit of work dispatched to a vehicle's handler. Kind
// distinguishes GNSS samples, which may be dropped under backpressure, from
// log-on/log-off events, which may not.
type Event struct {
	VehicleRef string
	Kind       EventKind
	Payload    interface{}
}

// EventKind identifies the shape of Event.Payload.
type EventKind int

const (
	GnssUpdateEvent EventKind = iota
	TechnicalLogOnEvent
	TechnicalLogOffEvent
)

// Droppable reports whether an event of this kind may be dropped from a full
// queue; only GNSS samples are, since they are strictly superseded by newer
// samples.
func (k EventKind) Droppable() bool {
	return k == GnssUpdateEvent
}

// Handler processes one Event for one vehicle. Handlers run with the
// single-writer guarantee: no other handler for the same vehicle_ref runs
// concurrently.
type Handler func(event Event)

// Dispatcher guarantees FIFO, single-writer delivery per vehicle_ref over a
// shared bounded worker pool. Grounded on the teacher's mutex-guarded
// updateCollection pattern, generalized from a map of trip updates to a map
// of per-vehicle locks and queues.
type Dispatcher struct {
	handler Handler
	logger  *log.Logger

	mu             sync.Mutex
	locks          map[string]bool
	queues         map[string][]Event
	queueCapacity  int

	pool chan struct{} // semaphore bounding concurrent handler executions
	wg   sync.WaitGroup

	closed bool
}

// NewDispatcher builds a Dispatcher that invokes handler for each event, with
// at most poolSize handlers running concurrently across all vehicles and at
// most queueCapacity pending events buffered per vehicle.
func NewDispatcher(logger *log.Logger, handler Handler, poolSize, queueCapacity int) *Dispatcher {
	if poolSize <= 0 {
		poolSize = DefaultWorkerPoolSize
	}
	if queueCapacity <= 0 {
		queueCapacity = DefaultQueueCapacity
	}
	return &Dispatcher{
		handler:       handler,
		logger:        logger,
		locks:         make(map[string]bool),
		queues:        make(map[string][]Event),
		queueCapacity: queueCapacity,
		pool:          make(chan struct{}, poolSize),
	}
}

// Submit enqueues event for its vehicle, registering the vehicle if unknown,
// and dispatches it immediately if no handler is currently running for that
// vehicle. Submit never blocks on the worker pool itself; if the pool is
// saturated the vehicle's handler goroutine waits until a slot frees.
func (d *Dispatcher) Submit(event Event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}

	vehicleRef := event.VehicleRef
	if _, known := d.locks[vehicleRef]; !known {
		d.locks[vehicleRef] = false
		d.queues[vehicleRef] = nil
	}

	if d.locks[vehicleRef] {
		queue := d.queues[vehicleRef]
		if len(queue) >= d.queueCapacity {
			if dropped := d.dropOldestDroppable(queue); dropped != nil {
				queue = dropped
			} else {
				d.logger.Printf("vehicle: queue full for %s and no droppable event to evict, growing past capacity", vehicleRef)
			}
		}
		d.queues[vehicleRef] = append(queue, event)
		d.mu.Unlock()
		return
	}

	d.locks[vehicleRef] = true
	d.mu.Unlock()
	d.run(vehicleRef, event)
}

// dropOldestDroppable removes the oldest droppable (GNSS) event from queue to
// make room, returning the updated slice, or nil if no event qualified.
func (d *Dispatcher) dropOldestDroppable(queue []Event) []Event {
	for i, e := range queue {
		if e.Kind.Droppable() {
			return append(append([]Event{}, queue[:i]...), queue[i+1:]...)
		}
	}
	return nil
}

// run executes event on the shared pool, then under the mutex either
// dequeues the next pending event for this vehicle or releases its lock.
func (d *Dispatcher) run(vehicleRef string, event Event) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.recoverAndAdvance(vehicleRef)
		d.pool <- struct{}{}
		defer func() { <-d.pool }()
		d.handler(event)
	}()
}

func (d *Dispatcher) recoverAndAdvance(vehicleRef string) {
	if r := recover(); r != nil {
		d.logger.Printf("vehicle: handler for %s panicked: %v", vehicleRef, r)
	}

	d.mu.Lock()
	queue := d.queues[vehicleRef]
	if len(queue) == 0 {
		d.locks[vehicleRef] = false
		d.mu.Unlock()
		return
	}
	next := queue[0]
	d.queues[vehicleRef] = queue[1:]
	d.mu.Unlock()

	d.run(vehicleRef, next)
}

// Close stops accepting new events and blocks until every in-flight and
// already-queued handler has drained.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}
