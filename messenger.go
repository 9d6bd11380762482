package xhub

import (
	"runtime"
	"sync/atomic"
)

// Messenger is the send handle of one registered endpoint. It never touches
// hub state directly: every operation becomes an action on the hub's queue.
type Messenger[P any, A comparable] struct {
	hub    *Hub[P, A]
	sig    Signature[A]
	closed atomic.Bool
}

// Signature returns the messenger's identity.
func (m *Messenger[P, A]) Signature() Signature[A] { return m.sig }

// Message starts an origin message. Nothing happens until Send.
func (m *Messenger[P, A]) Message(payload P, audience Audience[A]) *MessageBuilder[P, A] {
	return &MessageBuilder[P, A]{
		messenger: m,
		kind:      buildOrigin,
		payload:   payload,
		audience:  audience,
	}
}

// Close deregisters the endpoint and closes its receptor. Messages already in
// flight keep moving; the endpoint is no longer a candidate for new ones.
func (m *Messenger[P, A]) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	return m.hub.enqueue(action[P, A]{kind: actionDeregister, sender: m.sig})
}

// forward hands an in-flight message back to the hub for the hop identified
// by clientID. A non-nil beacon registers interest in the rest of the thread.
func (m *Messenger[P, A]) forward(clientID ClientID, msg *Message[P, A], beacon *Beacon[P, A]) error {
	if beacon != nil {
		msg = msg.addParticipant(beacon)
	}
	return m.hub.enqueue(action[P, A]{
		kind:     actionForward,
		sender:   m.sig,
		message:  msg,
		clientID: clientID,
		beacon:   beacon,
	})
}

type buildKind int

const (
	buildOrigin buildKind = iota
	buildReply
	buildPropagate
)

// MessageBuilder accumulates a message before it is sent.
//
// Builders returned by MessageClient.Reply and MessageClient.Propagate hold a
// handle on the client's forward fuse: the client's message moves on once
// both the client is closed and the builder is sent.
type MessageBuilder[P any, A comparable] struct {
	messenger *Messenger[P, A]
	kind      buildKind
	payload   P
	audience  Audience[A]
	source    *Message[P, A]
	clientID  ClientID
	fuse      *ActionFuse
	sent      atomic.Bool
}

func newDerivedBuilder[P any, A comparable](c *MessageClient[P, A], kind buildKind, payload P) *MessageBuilder[P, A] {
	b := &MessageBuilder[P, A]{
		messenger: c.messenger,
		kind:      kind,
		payload:   payload,
		source:    c.message,
		clientID:  c.id,
		fuse:      c.fuse.Clone(),
	}
	runtime.AddCleanup(b, func(f *ActionFuse) { f.Release() }, b.fuse)
	return b
}

// Payload replaces the payload to send.
func (b *MessageBuilder[P, A]) Payload(payload P) *MessageBuilder[P, A] {
	b.payload = payload
	return b
}

// Send submits the message and returns the receptor on which the sender
// observes status updates and replies for it.
func (b *MessageBuilder[P, A]) Send() (*Receptor[P, A], error) {
	if b.sent.Swap(true) {
		return nil, ErrBuilderSent
	}
	switch b.kind {
	case buildReply:
		defer b.fuse.Release()
		return b.transmit(Reply)
	case buildPropagate:
		defer b.fuse.Release()
		return b.propagate()
	default:
		return b.transmit(Origin)
	}
}

func (b *MessageBuilder[P, A]) transmit(t MessageType) (*Receptor[P, A], error) {
	m := b.messenger
	if m.closed.Load() {
		return nil, ErrMessengerClosed
	}
	beacon, receptor := newReceptor(m)
	msg := &Message[P, A]{
		id:          m.hub.nextMessageID(),
		payload:     b.payload,
		messageType: t,
		author:      m.sig,
		returnPath:  []*Beacon[P, A]{beacon},
	}
	if t == Origin {
		msg.audience = b.audience
	} else {
		msg.replyTo = b.source
	}
	if err := m.hub.enqueue(action[P, A]{kind: actionSend, sender: m.sig, message: msg}); err != nil {
		receptor.Close()
		return nil, err
	}
	return receptor, nil
}

// propagate continues the source message's delivery with the new payload in
// place of the original.
func (b *MessageBuilder[P, A]) propagate() (*Receptor[P, A], error) {
	if !b.fuse.Defuse() {
		return nil, ErrAlreadyForwarded
	}
	beacon, receptor := newReceptor(b.messenger)
	if err := b.messenger.forward(b.clientID, b.source.derive(b.payload), beacon); err != nil {
		receptor.Close()
		return nil, err
	}
	return receptor, nil
}
