package xhub

import (
	"context"
	"errors"
	"runtime"
)

// MessageEvent is one item on a Receptor: either a routed message (Client is
// set) or a status update about the thread.
type MessageEvent[P any, A comparable] struct {
	Client *MessageClient[P, A]
	Status DeliveryStatus
}

// IsMessage reports whether the event carries a message rather than a status.
func (e MessageEvent[P, A]) IsMessage() bool { return e.Client != nil }

// Receptor is the single-consumer stream of events for one message thread or
// one registered endpoint. Closing or dropping it is how a caller signals it
// has lost interest; pushes to a closed Receptor fail with ErrReceptorClosed.
// A dropped Receptor is closed once the runtime collects it.
type Receptor[P any, A comparable] struct {
	events  *unboundedChannel[MessageEvent[P, A]]
	hubDone <-chan struct{}
}

// newReceptor creates a Receptor and the Beacon feeding it. owner is the
// messenger on whose behalf clients delivered through the beacon act.
func newReceptor[P any, A comparable](owner *Messenger[P, A]) (*Beacon[P, A], *Receptor[P, A]) {
	events := newUnboundedChannel[MessageEvent[P, A]]()
	r := &Receptor[P, A]{
		events:  events,
		hubDone: owner.hub.done,
	}
	runtime.AddCleanup(r, closeEvents[P, A], events)
	return &Beacon[P, A]{events: events, owner: owner}, r
}

// Next blocks until the next event arrives. Events are returned in the order
// the hub pushed them. It fails with ErrReceptorClosed after Close, with
// ErrHubClosed once the hub stopped and nothing is left, or with ctx's error.
func (r *Receptor[P, A]) Next(ctx context.Context) (MessageEvent[P, A], error) {
	ev, err := r.events.Receive(ctx, r.hubDone)
	switch {
	case err == nil:
		return ev, nil
	case errors.Is(err, errChannelClosed):
		return ev, ErrReceptorClosed
	case errors.Is(err, errDone):
		return ev, ErrHubClosed
	default:
		return ev, err
	}
}

// NextPayload skips status events and returns the next message's payload
// together with the client that must be closed when done with it.
func (r *Receptor[P, A]) NextPayload(ctx context.Context) (P, *MessageClient[P, A], error) {
	for {
		ev, err := r.Next(ctx)
		if err != nil {
			var zero P
			return zero, nil, err
		}
		if ev.IsMessage() {
			return ev.Client.Payload(), ev.Client, nil
		}
	}
}

// TryNext returns the next event without blocking.
func (r *Receptor[P, A]) TryNext() (MessageEvent[P, A], bool) {
	return r.events.TryReceive()
}

// Len is the number of events waiting to be read.
func (r *Receptor[P, A]) Len() int { return r.events.Len() }

// Close stops the stream. Clients still queued are closed so their messages
// keep moving.
func (r *Receptor[P, A]) Close() {
	closeEvents(r.events)
}

// closeEvents closes q and releases every client still queued on it.
func closeEvents[P any, A comparable](q *unboundedChannel[MessageEvent[P, A]]) {
	if !q.Close() {
		return
	}
	for {
		ev, ok := q.TryReceive()
		if !ok {
			return
		}
		if ev.Client != nil {
			ev.Client.Close()
		}
	}
}

func pushEvent[P any, A comparable](q *unboundedChannel[MessageEvent[P, A]], ev MessageEvent[P, A]) error {
	if err := q.Send(ev); err != nil {
		return ErrReceptorClosed
	}
	return nil
}
