package xhub

// Message is one immutable unit of communication travelling the hub.
//
// Messages are created only by the hub's builders. Observers that opt in to a
// thread produce a copy with a longer return path; payload, type and author
// never change.
type Message[P any, A comparable] struct {
	id          MessageID
	payload     P
	messageType MessageType
	author      Signature[A]
	audience    Audience[A]
	replyTo     *Message[P, A]
	returnPath  []*Beacon[P, A]
}

// ID is the message's thread identity.
func (m *Message[P, A]) ID() MessageID { return m.id }

func (m *Message[P, A]) Payload() P { return m.payload }

func (m *Message[P, A]) Type() MessageType { return m.messageType }

// Author is the signature of the messenger that sent this message. For a
// propagated message it stays the author of the message it was derived from.
func (m *Message[P, A]) Author() Signature[A] { return m.author }

// Audience returns the audience of an origin message; ok is false for replies.
func (m *Message[P, A]) Audience() (aud Audience[A], ok bool) {
	if m.messageType != Origin {
		return aud, false
	}
	return m.audience, true
}

// ReplyTo returns the message this one answers, or nil for origin messages.
func (m *Message[P, A]) ReplyTo() *Message[P, A] { return m.replyTo }

// ReturnPath returns a copy of the beacons interested in replies, most recent
// observer first and the author last.
func (m *Message[P, A]) ReturnPath() []*Beacon[P, A] {
	out := make([]*Beacon[P, A], len(m.returnPath))
	copy(out, m.returnPath)
	return out
}

// addParticipant returns a copy with b at the front of the return path.
func (m *Message[P, A]) addParticipant(b *Beacon[P, A]) *Message[P, A] {
	cp := *m
	cp.returnPath = make([]*Beacon[P, A], 0, len(m.returnPath)+1)
	cp.returnPath = append(cp.returnPath, b)
	cp.returnPath = append(cp.returnPath, m.returnPath...)
	return &cp
}

// derive returns a message on the same thread carrying a new payload.
func (m *Message[P, A]) derive(payload P) *Message[P, A] {
	cp := *m
	cp.payload = payload
	cp.returnPath = append([]*Beacon[P, A](nil), m.returnPath...)
	return &cp
}
