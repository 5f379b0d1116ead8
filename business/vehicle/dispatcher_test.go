package vehicle

import (
	"log"
	"os"
	"sync"
	"testing"
)

func testLogger() *log.Logger {
	return log.New(os.Stderr, "test : ", log.LstdFlags)
}

func TestDispatcherPreservesFIFOPerVehicle(t *testing.T) {
	var mu sync.Mutex
	var seenA, seenB []int

	handler := func(event Event) {
		n := event.Payload.(int)
		mu.Lock()
		defer mu.Unlock()
		if event.VehicleRef == "A" {
			seenA = append(seenA, n)
		} else {
			seenB = append(seenB, n)
		}
	}

	d := NewDispatcher(testLogger(), handler, 2, 10)
	defer d.Close()

	for i := 0; i < 5; i++ {
		d.Submit(Event{VehicleRef: "A", Kind: TechnicalLogOnEvent, Payload: i})
		d.Submit(Event{VehicleRef: "B", Kind: TechnicalLogOnEvent, Payload: i})
	}

	d.Close()

	mu.Lock()
	defer mu.Unlock()
	for i, n := range seenA {
		if n != i {
			t.Fatalf("vehicle A out of order: %v", seenA)
		}
	}
	for i, n := range seenB {
		if n != i {
			t.Fatalf("vehicle B out of order: %v", seenB)
		}
	}
	if len(seenA) != 5 || len(seenB) != 5 {
		t.Fatalf("expected 5 events per vehicle, got A=%d B=%d", len(seenA), len(seenB))
	}
}

func TestDispatcherDropsOldestDroppableOnOverflow(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	var mu sync.Mutex
	var seen []int
	first := true

	handler := func(event Event) {
		mu.Lock()
		if first {
			first = false
			mu.Unlock()
			started <- struct{}{}
			<-release
			mu.Lock()
		}
		seen = append(seen, event.Payload.(int))
		mu.Unlock()
	}

	d := NewDispatcher(testLogger(), handler, 1, 2)
	defer d.Close()

	d.Submit(Event{VehicleRef: "A", Kind: GnssUpdateEvent, Payload: 0})
	<-started

	for i := 1; i <= 4; i++ {
		d.Submit(Event{VehicleRef: "A", Kind: GnssUpdateEvent, Payload: i})
	}
	close(release)
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) == 0 || seen[0] != 0 {
		t.Fatalf("expected the in-flight event to run first, got %v", seen)
	}
	if seen[len(seen)-1] != 4 {
		t.Fatalf("expected the newest event to survive, got %v", seen)
	}
}

func TestDispatcherRecoversFromPanicWithoutStallingVehicle(t *testing.T) {
	var mu sync.Mutex
	var ran []int

	handler := func(event Event) {
		n := event.Payload.(int)
		if n == 1 {
			panic("boom")
		}
		mu.Lock()
		ran = append(ran, n)
		mu.Unlock()
	}

	d := NewDispatcher(testLogger(), handler, 1, 10)
	d.Submit(Event{VehicleRef: "A", Kind: TechnicalLogOnEvent, Payload: 1})
	d.Submit(Event{VehicleRef: "A", Kind: TechnicalLogOnEvent, Payload: 2})
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(ran) != 1 || ran[0] != 2 {
		t.Fatalf("expected event after panic to still run, got %v", ran)
	}
}
