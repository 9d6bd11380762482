package xhub

// Beacon is the push side of a Receptor. The hub keeps beacons in registries
// and return paths. A Beacon does not keep its Receptor alive: once the
// Receptor is dropped, pushes fail as if it had been closed.
type Beacon[P any, A comparable] struct {
	events *unboundedChannel[MessageEvent[P, A]]
	owner  *Messenger[P, A]
}

// Status pushes a status event. Delivery is best effort: it fails with
// ErrReceptorClosed when nobody is listening anymore.
func (b *Beacon[P, A]) Status(status DeliveryStatus) error {
	return pushEvent(b.events, MessageEvent[P, A]{Status: status})
}

// Owner is the signature of the messenger the receptor belongs to.
func (b *Beacon[P, A]) Owner() Signature[A] { return b.owner.sig }

// deliver hands one hop's client to the receptor.
func (b *Beacon[P, A]) deliver(c *MessageClient[P, A]) error {
	return pushEvent(b.events, MessageEvent[P, A]{Client: c})
}

// close ends the stream of the Receptor this beacon feeds.
func (b *Beacon[P, A]) close() { closeEvents(b.events) }
