package mcast

import (
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/joshuafuller/beacon/internal/wire"
)

// Event is the sealed set of notifications the multicast service raises.
// Concrete types: QueryReceived, AnswerReceived, MalformedMessage,
// NetworkInterfaceDiscovered.
type Event interface{ isEvent() }

// QueryReceived is raised for an inbound message with QR=0 and at least
// one question.
type QueryReceived struct {
	Message   *wire.Message
	LocalAddr net.IP
	RemoteAddr *net.UDPAddr
}

func (QueryReceived) isEvent() {}

// AnswerReceived is raised for an inbound message with QR=1 and at least
// one answer.
type AnswerReceived struct {
	Message    *wire.Message
	LocalAddr  net.IP
	RemoteAddr *net.UDPAddr
}

func (AnswerReceived) isEvent() {}

// MalformedMessage is raised when an inbound datagram fails to parse;
// the datagram is discarded and parsing never propagates an error to a
// caller.
type MalformedMessage struct {
	Bytes []byte
	Err   error
}

func (MalformedMessage) isEvent() {}

// NetworkInterfaceDiscovered is raised whenever the NIC monitor detects a
// change in the usable interface set.
type NetworkInterfaceDiscovered struct {
	Added   []net.Interface
	Removed []net.Interface
}

func (NetworkInterfaceDiscovered) isEvent() {}

// Handler receives events in arrival order per local receiver; ordering
// across receivers is unspecified. A handler that panics is recovered
// by the dispatcher and the panic value is discarded without being
// logged; it never takes down the receive loop.
type Handler func(Event)

// SubscriptionID identifies a registered Handler for later removal.
type SubscriptionID = uuid.UUID

// subscribers is a concurrency-safe handler registry: mutated only under
// a lock, invoked outside it so a slow or blocking handler cannot stall
// registration.
type subscribers struct {
	mu       sync.RWMutex
	handlers map[SubscriptionID]Handler
}

func newSubscribers() *subscribers {
	return &subscribers{handlers: make(map[SubscriptionID]Handler)}
}

// Subscribe registers h and returns an ID usable with Unsubscribe.
func (s *subscribers) Subscribe(h Handler) SubscriptionID {
	id := uuid.New()
	s.mu.Lock()
	s.handlers[id] = h
	s.mu.Unlock()
	return id
}

// Unsubscribe removes a previously registered handler. Safe to call more
// than once for the same ID.
func (s *subscribers) Unsubscribe(id SubscriptionID) {
	s.mu.Lock()
	delete(s.handlers, id)
	s.mu.Unlock()
}

// Dispatch delivers ev to every current subscriber outside the lock.
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
