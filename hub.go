package xhub

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

var _ HealthChecker = (*Hub[struct{}, string])(nil)

// Hub routes messages between the messengers it creates.
//
// All routing state is owned by a single dispatch goroutine that drains one
// unbounded FIFO of actions. Messengers, clients and builders only ever
// enqueue actions, which yields one total order of routing decisions.
type Hub[P any, A comparable] struct {
	name         string
	clock        xclock.Clock
	logger       *xlog.Logger
	closeTimeout time.Duration
	observerPool *ObserverPool
	observersMu  sync.RWMutex
	observers    []Observer
	metrics      *hubMetrics
	actions      *unboundedChannel[action[P, A]]
	done         chan struct{}
	closed       atomic.Bool
	closeOnce    sync.Once
	messageSeq   atomic.Uint64

	// Owned by the dispatch goroutine.
	lastMessenger MessengerID
	lastClient    ClientID
	endpoints     []*endpoint[P, A]
	addresses     map[A]*endpoint[P, A]
	inflight      map[MessageID]*delivery[P, A]
}

// hubMetrics is read concurrently by GetMetrics.
type hubMetrics struct {
	messengers    atomic.Uint64
	sent          atomic.Uint64
	delivered     atomic.Uint64
	forwarded     atomic.Uint64
	completed     atomic.Uint64
	undeliverable atomic.Uint64
	acknowledged  atomic.Uint64
	dropped       atomic.Uint64
	inflight      atomic.Uint64
	deliveryNs    atomic.Int64
}

type actionKind int

const (
	actionRegister actionKind = iota
	actionDeregister
	actionSend
	actionForward
	actionAcknowledge
)

func (k actionKind) String() string {
	switch k {
	case actionRegister:
		return "register"
	case actionDeregister:
		return "deregister"
	case actionSend:
		return "send"
	case actionForward:
		return "forward"
	case actionAcknowledge:
		return "acknowledge"
	default:
		return "unknown"
	}
}

// action is the only way anything outside the dispatch goroutine affects routing.
type action[P any, A comparable] struct {
	kind     actionKind
	sender   Signature[A]
	message  *Message[P, A]
	beacon   *Beacon[P, A]
	clientID ClientID
	register *registration[P, A]
}

type registration[P any, A comparable] struct {
	messengerType MessengerType[A]
	result        chan registrationResult[P, A]
}

type registrationResult[P any, A comparable] struct {
	messenger *Messenger[P, A]
	receptor  *Receptor[P, A]
	err       error
}

type endpoint[P any, A comparable] struct {
	messenger *Messenger[P, A]
	beacon    *Beacon[P, A]
}

// delivery is the cursor over one thread's ordered candidates.
type delivery[P any, A comparable] struct {
	message    *Message[P, A]
	candidates []*Beacon[P, A]
	cursor     int
	clientID   ClientID
	terminal   DeliveryStatus
	started    time.Time
}

// Name identifies the hub in logs and telemetry.
func (h *Hub[P, A]) Name() string { return h.name }

// Create registers a new endpoint and returns its messenger together with the
// receptor on which it receives messages.
func (h *Hub[P, A]) Create(ctx context.Context, t MessengerType[A]) (*Messenger[P, A], *Receptor[P, A], error) {
	reg := &registration[P, A]{
		messengerType: t,
		result:        make(chan registrationResult[P, A], 1),
	}
	if err := h.enqueue(action[P, A]{kind: actionRegister, register: reg}); err != nil {
		return nil, nil, err
	}

	select {
	case res := <-reg.result:
		return res.messenger, res.receptor, res.err
	case <-h.done:
		return nil, nil, ErrHubClosed
	case <-ctx.Done():
		// The registration may still land; undo it once it does.
		go func() {
			select {
			case res := <-reg.result:
				if res.err == nil {
					res.receptor.Close()
					_ = res.messenger.Close()
				}
			case <-h.done:
			}
		}()
		return nil, nil, ctx.Err()
	}
}

// GetMetrics returns current hub metrics.
func (h *Hub[P, A]) GetMetrics() Metrics {
	return Metrics{
		Messengers:        h.metrics.messengers.Load(),
		Sent:              h.metrics.sent.Load(),
		Delivered:         h.metrics.delivered.Load(),
		Forwarded:         h.metrics.forwarded.Load(),
		Completed:         h.metrics.completed.Load(),
		Undeliverable:     h.metrics.undeliverable.Load(),
		Acknowledged:      h.metrics.acknowledged.Load(),
		Dropped:           h.metrics.dropped.Load(),
		InFlight:          h.metrics.inflight.Load(),
		PendingActions:    h.actions.Len(),
		EventsDropped:     h.observerPool.Stats().Dropped,
		AvgDeliveryTimeMs: float64(h.metrics.deliveryNs.Load()) / 1e6,
	}
}

// Health checks hub health for Kubernetes probes.
func (h *Hub[P, A]) Health(ctx context.Context) HealthStatus {
	if h.closed.Load() {
		return HealthStatus{
			Status:    "unhealthy",
			Timestamp: h.clock.Now(),
			Message:   "hub is closed",
		}
	}

	metrics := h.GetMetrics()
	status := "healthy"
	msg := ""

	// Degraded if more than 5% of deliveries hit a closed receptor
	if metrics.Dropped > 0 && metrics.Delivered+metrics.Dropped > 0 {
		dropRate := float64(metrics.Dropped) / float64(metrics.Delivered+metrics.Dropped)
		if dropRate > 0.05 {
			status = "degraded"
			msg = fmt.Sprintf("%.1f%% of deliveries dropped", dropRate*100)
		}
	}

	return HealthStatus{
		Status:    status,
		Metrics:   metrics,
		Timestamp: h.clock.Now(),
		Message:   msg,
	}
}

// Close stops the dispatch loop once the actions already queued are handled.
// Receptors report ErrHubClosed after draining what was pushed to them.
func (h *Hub[P, A]) Close(ctx context.Context) error {
	var closeErr error

	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.actions.Close()

		wait := h.closeTimeout
		if deadline, ok := ctx.Deadline(); ok {
			wait = time.Until(deadline)
		}
		select {
		case <-h.done:
		case <-ctx.Done():
			closeErr = ctx.Err()
		case <-time.After(wait):
			closeErr = fmt.Errorf("xhub: dispatch loop shutdown timeout after %v", wait)
		}
		if closeErr != nil {
			h.logger.Warn().Err(closeErr).Msg("xhub: close did not drain")
		}

		if err := h.observerPool.Close(h.closeTimeout); err != nil {
			h.logger.Warn().Err(err).Msg("xhub: observer pool shutdown timeout")
			if closeErr == nil {
				closeErr = err
			}
		}
	})

	return closeErr
}

// AddObserver registers an observer (thread-safe).
func (h *Hub[P, A]) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	h.observersMu.Lock()
	h.observers = append(h.observers, obs)
	h.observersMu.Unlock()
}

// RemoveObserver removes an observer.
func (h *Hub[P, A]) RemoveObserver(obs Observer) {
	if obs == nil {
		return
	}
	h.observersMu.Lock()
	defer h.observersMu.Unlock()

	for i, o := range h.observers {
		if o == obs {
			h.observers = append(h.observers[:i], h.observers[i+1:]...)
			break
		}
	}
}

func (h *Hub[P, A]) enqueue(act action[P, A]) error {
	if h.closed.Load() {
		return ErrHubClosed
	}
	if err := h.actions.Send(act); err != nil {
		return ErrHubClosed
	}
	return nil
}

func (h *Hub[P, A]) nextMessageID() MessageID {
	return MessageID(h.messageSeq.Add(1))
}

// run is the dispatch loop.
func (h *Hub[P, A]) run() {
	defer close(h.done)
	for {
		act, err := h.actions.Receive(context.Background(), nil)
		if err != nil {
			return
		}
		h.dispatch(act)
		h.metrics.inflight.Store(uint64(len(h.inflight)))
	}
}

func (h *Hub[P, A]) dispatch(act action[P, A]) {
	switch act.kind {
	case actionRegister:
		h.register(act.register)
	case actionDeregister:
		h.deregister(act.sender)
	case actionSend:
		h.resolve(act)
	case actionForward:
		h.advance(act)
	case actionAcknowledge:
		h.acknowledge(act)
	default:
		h.logger.Warn().Str("action", act.kind.String()).Msg("xhub: unknown action")
	}
}

func (h *Hub[P, A]) register(reg *registration[P, A]) {
	if addr, ok := reg.messengerType.Address(); ok {
		if _, taken := h.addresses[addr]; taken {
			reg.result <- registrationResult[P, A]{err: fmt.Errorf("%w: %v", ErrAddressInUse, addr)}
			return
		}
	}

	h.lastMessenger++
	m := &Messenger[P, A]{
		hub: h,
		sig: Signature[A]{ID: h.lastMessenger, Type: reg.messengerType},
	}
	beacon, receptor := newReceptor(m)
	ep := &endpoint[P, A]{messenger: m, beacon: beacon}
	h.endpoints = append(h.endpoints, ep)
	if addr, ok := reg.messengerType.Address(); ok {
		h.addresses[addr] = ep
	}
	h.metrics.messengers.Store(uint64(len(h.endpoints)))

	h.notifyAsync(Event{Type: EventRegistered, MessengerID: m.sig.ID})
	reg.result <- registrationResult[P, A]{messenger: m, receptor: receptor}
}

func (h *Hub[P, A]) deregister(sig Signature[A]) {
	for i, ep := range h.endpoints {
		if ep.messenger.sig.ID != sig.ID {
			continue
		}
		h.endpoints = append(h.endpoints[:i], h.endpoints[i+1:]...)
		if addr, ok := sig.Type.Address(); ok {
			delete(h.addresses, addr)
		}
		ep.beacon.close()
		h.metrics.messengers.Store(uint64(len(h.endpoints)))
		h.notifyAsync(Event{Type: EventDeregistered, MessengerID: sig.ID})
		return
	}
}

// resolve builds the candidate list for a newly sent message and starts
// delivering it.
func (h *Hub[P, A]) resolve(act action[P, A]) {
	msg := act.message
	h.metrics.sent.Add(1)
	h.notifyAsync(Event{
		Type:        EventSent,
		MessengerID: act.sender.ID,
		MessageID:   msg.id,
		MessageType: msg.messageType,
	})

	d := &delivery[P, A]{
		message:  msg,
		terminal: Received,
		started:  h.clock.Now(),
	}

	switch {
	case msg.messageType == Reply:
		d.candidates = append([]*Beacon[P, A](nil), msg.replyTo.returnPath...)
	case msg.audience.IsBroadcast():
		d.terminal = Broadcasted
		d.candidates = h.brokers(act.sender.ID)
		for _, ep := range h.endpoints {
			if !ep.messenger.sig.Type.IsBroker() && ep.messenger.sig.ID != act.sender.ID {
				d.candidates = append(d.candidates, ep.beacon)
			}
		}
	default:
		addr, _ := msg.audience.Address()
		target, ok := h.addresses[addr]
		if !ok {
			h.metrics.undeliverable.Add(1)
			h.report(msg, Undeliverable)
			h.notifyAsync(Event{
				Type:        EventUndeliverable,
				MessengerID: act.sender.ID,
				MessageID:   msg.id,
				MessageType: msg.messageType,
				Status:      Undeliverable,
			})
			return
		}
		d.candidates = append(h.brokers(act.sender.ID), target.beacon)
	}

	h.inflight[msg.id] = d
	h.deliver(d)
}

// brokers returns the beacons of every broker except the sender, in
// registration order.
func (h *Hub[P, A]) brokers(sender MessengerID) []*Beacon[P, A] {
	var out []*Beacon[P, A]
	for _, ep := range h.endpoints {
		if ep.messenger.sig.Type.IsBroker() && ep.messenger.sig.ID != sender {
			out = append(out, ep.beacon)
		}
	}
	return out
}

// deliver hands the message to the candidate under the cursor, skipping
// candidates whose receptor is gone, and completes the thread when none are left.
func (h *Hub[P, A]) deliver(d *delivery[P, A]) {
	for d.cursor < len(d.candidates) {
		beacon := d.candidates[d.cursor]
		h.lastClient++
		client := newMessageClient(h.lastClient, d.message, beacon.owner)
		if err := beacon.deliver(client); err != nil {
			client.fuse.Defuse()
			h.metrics.dropped.Add(1)
			h.notifyAsync(Event{
				Type:        EventDropped,
				MessengerID: beacon.owner.sig.ID,
				MessageID:   d.message.id,
				ClientID:    client.id,
				MessageType: d.message.messageType,
				Err:         err,
			})
			d.cursor++
			continue
		}
		d.clientID = client.id
		h.metrics.delivered.Add(1)
		h.notifyAsync(Event{
			Type:        EventDelivered,
			MessengerID: beacon.owner.sig.ID,
			MessageID:   d.message.id,
			ClientID:    client.id,
			MessageType: d.message.messageType,
		})
		return
	}

	delete(h.inflight, d.message.id)
	h.report(d.message, d.terminal)
	duration := h.clock.Since(d.started)
	h.recordDeliveryTime(duration.Nanoseconds())
	h.metrics.completed.Add(1)
	h.notifyAsync(Event{
		Type:        EventCompleted,
		MessageID:   d.message.id,
		MessageType: d.message.messageType,
		Status:      d.terminal,
		Duration:    duration,
	})
}

// advance moves a thread's cursor past the hop that forwarded it.
func (h *Hub[P, A]) advance(act action[P, A]) {
	d, ok := h.inflight[act.message.id]
	if !ok || d.clientID != act.clientID {
		h.logger.Debug().
			Str("message_id", act.message.id.String()).
			Str("client_id", act.clientID.String()).
			Msg("xhub: ignoring stale forward")
		return
	}

	d.message = act.message
	d.cursor++
	h.metrics.forwarded.Add(1)
	h.notifyAsync(Event{
		Type:        EventForwarded,
		MessengerID: act.sender.ID,
		MessageID:   act.message.id,
		ClientID:    act.clientID,
		MessageType: act.message.messageType,
	})
	h.deliver(d)
}

func (h *Hub[P, A]) acknowledge(act action[P, A]) {
	h.metrics.acknowledged.Add(1)
	h.report(act.message, Acknowledged)
	h.notifyAsync(Event{
		Type:        EventAcknowledged,
		MessengerID: act.sender.ID,
		MessageID:   act.message.id,
		ClientID:    act.clientID,
		MessageType: act.message.messageType,
		Status:      Acknowledged,
	})
}

// report sends status to every beacon on the message's return path. Closed
// receptors are expected during teardown and skipped.
func (h *Hub[P, A]) report(msg *Message[P, A], status DeliveryStatus) {
	for _, b := range msg.returnPath {
		_ = b.Status(status)
	}
}

// notifyAsync dispatches events asynchronously (non-blocking).
func (h *Hub[P, A]) notifyAsync(e Event) {
	if h.observerPool == nil {
		return
	}

	h.observersMu.RLock()
	if len(h.observers) == 0 {
		h.observersMu.RUnlock()
		return
	}
	observers := make([]Observer, len(h.observers))
	copy(observers, h.observers)
	h.observersMu.RUnlock()

	e.Hub = h.name
	h.observerPool.Notify(e, observers)
}

// recordDeliveryTime records delivery time using exponential moving average.
func (h *Hub[P, A]) recordDeliveryTime(ns int64) {
	const alpha = 0.2 // 20% weight to new sample
	current := h.metrics.deliveryNs.Load()
	if current == 0 {
		h.metrics.deliveryNs.Store(ns)
		return
	}
	// EMA: new = (alpha * sample) + (1-alpha) * old
	h.metrics.deliveryNs.Store(int64(float64(ns)*alpha + float64(current)*(1-alpha)))
}
