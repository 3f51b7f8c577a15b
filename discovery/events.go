package discovery

import "github.com/joshuafuller/beacon/internal/wire"

// Event is the sealed set of DNS-SD-level notifications Service raises,
// derived from scanning AnswerReceived traffic for PTR records under
// ".local" (RFC 6763 §4).
type Event interface{ isEvent() }

// ServiceDiscovered is raised when a PTR answer enumerates a service
// type under "_services._dns-sd._udp.local" (RFC 6763 §9).
type ServiceDiscovered struct {
	ServiceType string
	Message     *wire.Message
}

func (ServiceDiscovered) isEvent() {}

// ServiceInstanceDiscovered is raised when a PTR answer names a live
// service instance (TTL != 0).
type ServiceInstanceDiscovered struct {
	InstanceName string
	Message      *wire.Message
}

func (ServiceInstanceDiscovered) isEvent() {}

// ServiceInstanceShutdown is raised when a PTR answer names a service
// instance with TTL == 0 — a goodbye packet (RFC 6762 §10.1).
type ServiceInstanceShutdown struct {
	InstanceName string
	Message      *wire.Message
}

func (ServiceInstanceShutdown) isEvent() {}

// Handler receives discovery events in arrival order per local answer
// handler; ordering across concurrent answers is unspecified.
type Handler func(Event)
