package xhub

import "runtime"

// MessageClient is one recipient's exclusive handle on one hop of a message.
//
// Exactly one of these passes the message on: Close without any other action
// (the default), Forward, SpawnObserver, or a Reply/Propagate builder. Always
// Close a client once done with it; an unreachable client is eventually
// released by the runtime, but not promptly.
type MessageClient[P any, A comparable] struct {
	id        ClientID
	message   *Message[P, A]
	messenger *Messenger[P, A]
	fuse      *ActionFuse
}

func newMessageClient[P any, A comparable](id ClientID, msg *Message[P, A], m *Messenger[P, A]) *MessageClient[P, A] {
	c := &MessageClient[P, A]{
		id:        id,
		message:   msg,
		messenger: m,
		fuse: NewActionFuse(func() {
			if err := m.forward(id, msg, nil); err != nil {
				m.hub.logger.Debug().
					Err(err).
					Str("message_id", msg.id.String()).
					Str("client_id", id.String()).
					Msg("xhub: forward after release failed")
			}
		}),
	}
	runtime.AddCleanup(c, func(f *ActionFuse) { f.Release() }, c.fuse)
	return c
}

func (c *MessageClient[P, A]) ID() ClientID { return c.id }

func (c *MessageClient[P, A]) Message() *Message[P, A] { return c.message }

func (c *MessageClient[P, A]) Payload() P { return c.message.payload }

func (c *MessageClient[P, A]) Author() Signature[A] { return c.message.author }

func (c *MessageClient[P, A]) Audience() (Audience[A], bool) { return c.message.Audience() }

// Recipient is the signature of the messenger this hop was delivered to.
func (c *MessageClient[P, A]) Recipient() Signature[A] { return c.messenger.sig }

// Forwarded reports whether the message has been passed on (or the duty to do
// so discharged).
func (c *MessageClient[P, A]) Forwarded() bool { return !c.fuse.Armed() }

// Reply starts a reply threaded back along the message's return path. The
// original keeps moving once both this client is closed and the builder is sent.
func (c *MessageClient[P, A]) Reply(payload P) *MessageBuilder[P, A] {
	return newDerivedBuilder(c, buildReply, payload)
}

// Propagate starts a derived message that replaces the original for the rest
// of its delivery path. Sending it passes the thread on; the returned receptor
// observes later traffic on the thread.
func (c *MessageClient[P, A]) Propagate(payload P) *MessageBuilder[P, A] {
	return newDerivedBuilder(c, buildPropagate, payload)
}

// SpawnObserver forwards the message and returns a receptor that sees every
// later delivery and status on this thread, including replies.
func (c *MessageClient[P, A]) SpawnObserver() (*Receptor[P, A], error) {
	if !c.fuse.Defuse() {
		return nil, ErrAlreadyForwarded
	}
	beacon, receptor := newReceptor(c.messenger)
	if err := c.messenger.forward(c.id, c.message, beacon); err != nil {
		receptor.Close()
		return nil, err
	}
	return receptor, nil
}

// Forward passes the message on now.
func (c *MessageClient[P, A]) Forward() error {
	if !c.fuse.Defuse() {
		return ErrAlreadyForwarded
	}
	return c.messenger.forward(c.id, c.message, nil)
}

// Acknowledge tells everyone on the return path the message arrived. It does
// not move the message on.
func (c *MessageClient[P, A]) Acknowledge() error {
	return c.messenger.hub.enqueue(action[P, A]{
		kind:     actionAcknowledge,
		sender:   c.messenger.sig,
		message:  c.message,
		clientID: c.id,
	})
}

// Close releases the client. If nothing else passed the message on and no
// Reply or Propagate builder is pending, the message is forwarded unchanged.
func (c *MessageClient[P, A]) Close() {
	c.fuse.Release()
}
