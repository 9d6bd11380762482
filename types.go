package xhub

import (
	"strconv"
	"time"
)

// MessengerID identifies a registered endpoint. Assigned by the Hub in registration order.
type MessengerID uint64

func (id MessengerID) String() string { return strconv.FormatUint(uint64(id), 10) }

// MessageID identifies a message thread. Every hop of a thread shares it.
type MessageID uint64

func (id MessageID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ClientID identifies a single hop (one MessageClient handed to one recipient).
type ClientID uint64

func (id ClientID) String() string { return strconv.FormatUint(uint64(id), 10) }

// Audience is where an origin message is headed: everyone, or one address.
type Audience[A comparable] struct {
	broadcast bool
	address   A
}

// Broadcast targets every addressable messenger except the sender.
func Broadcast[A comparable]() Audience[A] { return Audience[A]{broadcast: true} }

// Address targets the single addressable messenger registered under a.
func Address[A comparable](a A) Audience[A] { return Audience[A]{address: a} }

func (a Audience[A]) IsBroadcast() bool { return a.broadcast }

// Address returns the target address; ok is false for broadcasts.
func (a Audience[A]) Address() (addr A, ok bool) {
	if a.broadcast {
		return addr, false
	}
	return a.address, true
}

// MessengerType is the kind of a registered endpoint.
type MessengerType[A comparable] struct {
	broker  bool
	address A
}

// Addressable is an endpoint reachable through Address(a).
func Addressable[A comparable](a A) MessengerType[A] { return MessengerType[A]{address: a} }

// Broker is an endpoint inserted ahead of the final target of every origin message.
func Broker[A comparable]() MessengerType[A] { return MessengerType[A]{broker: true} }

func (t MessengerType[A]) IsBroker() bool { return t.broker }

// Address returns the endpoint address; ok is false for brokers.
func (t MessengerType[A]) Address() (addr A, ok bool) {
	if t.broker {
		return addr, false
	}
	return t.address, true
}

func (t MessengerType[A]) String() string {
	if t.broker {
		return "broker"
	}
	return "addressable"
}

// Signature is the stable identity of a messenger.
type Signature[A comparable] struct {
	ID   MessengerID
	Type MessengerType[A]
}

// MessageType is the provenance of a Message.
type MessageType int

const (
	Origin MessageType = iota
	Reply
)

func (t MessageType) String() string {
	switch t {
	case Origin:
		return "origin"
	case Reply:
		return "reply"
	default:
		return "unknown"
	}
}

// DeliveryStatus is a non-payload signal about a message's progress.
type DeliveryStatus string

const (
	Broadcasted   DeliveryStatus = "broadcasted"
	Received      DeliveryStatus = "received"
	Undeliverable DeliveryStatus = "undeliverable"
	Acknowledged  DeliveryStatus = "acknowledged"
)

// EventType enumerates hub lifecycle events for the Observer pattern.
type EventType string

const (
	EventRegistered    EventType = "registered"
	EventDeregistered  EventType = "deregistered"
	EventSent          EventType = "sent"
	EventDelivered     EventType = "delivered"
	EventForwarded     EventType = "forwarded"
	EventCompleted     EventType = "completed"
	EventUndeliverable EventType = "undeliverable"
	EventAcknowledged  EventType = "acknowledged"
	EventDropped       EventType = "dropped"
)

// Event carries telemetry for observers.
type Event struct {
	Type        EventType
	Hub         string
	MessengerID MessengerID
	MessageID   MessageID
	ClientID    ClientID
	MessageType MessageType
	Status      DeliveryStatus
	Duration    time.Duration
	Err         error

	// Internal: attached for async dispatch
	observers []Observer
}

// PoolStats returns telemetry about the observer pool.
type PoolStats struct {
	Dropped      uint64 // Events dropped due to full buffer
	Processed    uint64 // Events successfully processed
	ActiveEvents int    // Current queue depth
	Workers      int    // Number of dispatch goroutines
	BufferSize   int    // Channel capacity
}

// Metrics defines observable telemetry for the hub.
type Metrics struct {
	Messengers        uint64
	Sent              uint64
	Delivered         uint64
	Forwarded         uint64
	Completed         uint64
	Undeliverable     uint64
	Acknowledged      uint64
	Dropped           uint64
	InFlight          uint64
	PendingActions    int
	EventsDropped     uint64
	AvgDeliveryTimeMs float64
}

// HealthStatus indicates hub health for Kubernetes probes.
type HealthStatus struct {
	Status    string // "healthy", "degraded", "unhealthy"
	Metrics   Metrics
	Timestamp time.Time
	Message   string
}

