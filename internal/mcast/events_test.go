package mcast

import (
	"sync"
	"testing"
)

func TestSubscribers_DispatchReachesAllHandlers(t *testing.T) {
	s := newSubscribers()

	var mu sync.Mutex
	var got []Event

	s.Subscribe(func(ev Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})
	s.Subscribe(func(ev Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})

	s.Dispatch(MalformedMessage{Err: nil})

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("got %d deliveries, want 2", len(got))
	}
}

func TestSubscribers_UnsubscribeStopsDelivery(t *testing.T) {
	s := newSubscribers()
	count := 0
	id := s.Subscribe(func(Event) { count++ })

	s.Dispatch(MalformedMessage{})
	s.Unsubscribe(id)
	s.Dispatch(MalformedMessage{})

	if count != 1 {
		t.Errorf("count = %d, want 1 (no delivery after unsubscribe)", count)
	}
}

func TestSubscribers_PanickingHandlerDoesNotStopOthers(t *testing.T) {
	s := newSubscribers()
	second := false

	s.Subscribe(func(Event) { panic("boom") })
	s.Subscribe(func(Event) { second = true })

	s.Dispatch(MalformedMessage{})

	if !second {
		t.Error("second handler should still run after the first panics")
	}
}
