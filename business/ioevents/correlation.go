package ioevents

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// CorrelationTimeout is how long a request waits for its matching response
// before failing (§4.4).
const CorrelationTimeout = 30 * time.Second

// CorrelationRegistry generalizes the single correlation-id slot the
// reference client uses into a correlation-id → channel map, letting
// multiple outbound requests be in flight at once as the specification
// allows ("an implementation may extend to a correlation-id → slot map").
type CorrelationRegistry struct {
	counter uint64

	mu   sync.Mutex
	slots map[string]chan []byte
}

// NewCorrelationRegistry builds an empty registry.
func NewCorrelationRegistry() *CorrelationRegistry {
	return &CorrelationRegistry{slots: make(map[string]chan []byte)}
}

// NewCorrelationId generates a unique, monotonically increasing correlation
// id for one outbound request.
func (r *CorrelationRegistry) NewCorrelationId() string {
	return fmt.Sprintf("%d", atomic.AddUint64(&r.counter, 1))
}

// Await registers correlationId and blocks until a matching response arrives
// via Resolve or CorrelationTimeout elapses, whichever comes first.
func (r *CorrelationRegistry) Await(correlationId string) ([]byte, error) {
	slot := make(chan []byte, 1)

	r.mu.Lock()
	r.slots[correlationId] = slot
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.slots, correlationId)
		r.mu.Unlock()
	}()

	select {
	case response := <-slot:
		return response, nil
	case <-time.After(CorrelationTimeout):
		return nil, fmt.Errorf("ioevents: no response for correlation id %s within %s", correlationId, CorrelationTimeout)
	}
}

// Resolve delivers payload to the waiter registered under correlationId, if
// any. Returns false if no waiter is currently registered (a late or
// unmatched response).
func (r *CorrelationRegistry) Resolve(correlationId string, payload []byte) bool {
	r.mu.Lock()
	slot, ok := r.slots[correlationId]
	r.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case slot <- payload:
		return true
	default:
		return false
	}
}
