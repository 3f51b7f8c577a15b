package discovery

import (
	"sync"

	"github.com/google/uuid"
)

// SubscriptionID identifies a registered Handler for later removal.
type SubscriptionID = uuid.UUID

// subscribers is a concurrency-safe handler registry: mutated only
// under a lock, invoked outside it.
type subscribers struct {
	mu       sync.RWMutex
	handlers map[SubscriptionID]Handler
}

func newSubscribers() *subscribers {
	return &subscribers{handlers: make(map[SubscriptionID]Handler)}
}

func (s *subscribers) Subscribe(h Handler) SubscriptionID {
	id := uuid.New()
	s.mu.Lock()
	s.handlers[id] = h
	s.mu.Unlock()
	return id
}

func (s *subscribers) Unsubscribe(id SubscriptionID) {
	s.mu.Lock()
	delete(s.handlers, id)
	s.mu.Unlock()
}

func (s *subscribers) Dispatch(ev Event) {
	s.mu.RLock()
	snapshot := make([]Handler, 0, len(s.handlers))
	for _, h := range s.handlers {
		snapshot = append(snapshot, h)
	}
	s.mu.RUnlock()

	for _, h := range snapshot {
		dispatchOne(h, ev)
	}
}

func dispatchOne(h Handler, ev Event) {
	defer func() { _ = recover() }()
	h(ev)
}
