package xhub_test

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickstertwo/xhub"
)

func TestHub_RequestReplyThroughBroker(t *testing.T) {
	h := newTestHub(t)
	svc, svcInbox := create(t, h, xhub.Addressable("svc"))
	_, brokerInbox := create(t, h, xhub.Broker[string]())
	caller, _ := create(t, h, xhub.Addressable("caller"))

	replies, err := caller.Message("ping", xhub.Address("svc")).Send()
	require.NoError(t, err)

	bc := nextMessage(t, brokerInbox)
	assert.Equal(t, "ping", bc.Payload())
	assert.Equal(t, caller.Signature(), bc.Author())
	requireQuiet(t, svcInbox)
	bc.Close()

	sc := nextMessage(t, svcInbox)
	assert.Equal(t, "ping", sc.Payload())
	assert.Equal(t, caller.Signature(), sc.Author())
	aud, ok := sc.Audience()
	require.True(t, ok)
	addr, _ := aud.Address()
	assert.Equal(t, "svc", addr)

	_, err = sc.Reply("pong").Send()
	require.NoError(t, err)
	sc.Close()

	rc := nextMessage(t, replies)
	assert.Equal(t, "pong", rc.Payload())
	assert.Equal(t, svc.Signature(), rc.Author())
	assert.Equal(t, xhub.Reply, rc.Message().Type())
	require.NotNil(t, rc.Message().ReplyTo())
	assert.Equal(t, "ping", rc.Message().ReplyTo().Payload())
	_, ok = rc.Audience()
	assert.False(t, ok, "replies have no audience")
	rc.Close()

	assert.Equal(t, xhub.Received, nextStatus(t, replies))
}

func TestHub_UnknownAddressIsUndeliverable(t *testing.T) {
	h := newTestHub(t)
	_, brokerInbox := create(t, h, xhub.Broker[string]())
	caller, _ := create(t, h, xhub.Addressable("caller"))

	r, err := caller.Message("hello", xhub.Address("nobody")).Send()
	require.NoError(t, err)

	assert.Equal(t, xhub.Undeliverable, nextStatus(t, r))
	requireQuiet(t, r)
	requireQuiet(t, brokerInbox)
	assert.Equal(t, uint64(1), h.GetMetrics().Undeliverable)
}

func TestHub_BroadcastVisitsBrokersThenAddressablesOnce(t *testing.T) {
	h := newTestHub(t)
	a, aInbox := create(t, h, xhub.Addressable("a"))
	_, b1 := create(t, h, xhub.Broker[string]())
	_, bInbox := create(t, h, xhub.Addressable("b"))
	_, b2 := create(t, h, xhub.Broker[string]())
	_, cInbox := create(t, h, xhub.Addressable("c"))

	r, err := a.Message("all", xhub.Broadcast[string]()).Send()
	require.NoError(t, err)

	order := []*testReceptor{b1, b2, bInbox, cInbox}
	for i, inbox := range order {
		c := nextMessage(t, inbox)
		assert.Equal(t, "all", c.Payload(), "hop %d", i)
		aud, ok := c.Audience()
		require.True(t, ok)
		assert.True(t, aud.IsBroadcast())
		for _, other := range order[i+1:] {
			assert.Zero(t, other.Len(), "later candidates wait for the current hop")
		}
		c.Close()
	}

	assert.Equal(t, xhub.Broadcasted, nextStatus(t, r))
	requireQuiet(t, aInbox)
	for _, inbox := range order {
		requireQuiet(t, inbox)
	}
}

func TestHub_BrokerDoesNotReceiveOwnBroadcast(t *testing.T) {
	h := newTestHub(t)
	b1, b1Inbox := create(t, h, xhub.Broker[string]())
	_, b2Inbox := create(t, h, xhub.Broker[string]())

	r, err := b1.Message("from broker", xhub.Broadcast[string]()).Send()
	require.NoError(t, err)

	nextMessage(t, b2Inbox).Close()
	assert.Equal(t, xhub.Broadcasted, nextStatus(t, r))
	requireQuiet(t, b1Inbox)
}

func TestHub_ReplyFollowsReturnPathInReverse(t *testing.T) {
	h := newTestHub(t)
	_, b1Inbox := create(t, h, xhub.Broker[string]())
	_, b2Inbox := create(t, h, xhub.Broker[string]())
	svc, svcInbox := create(t, h, xhub.Addressable("svc"))
	caller, _ := create(t, h, xhub.Addressable("caller"))

	replies, err := caller.Message("ping", xhub.Address("svc")).Send()
	require.NoError(t, err)

	c1 := nextMessage(t, b1Inbox)
	obs1, err := c1.SpawnObserver()
	require.NoError(t, err)
	c1.Close()

	c2 := nextMessage(t, b2Inbox)
	obs2, err := c2.SpawnObserver()
	require.NoError(t, err)
	c2.Close()

	sc := nextMessage(t, svcInbox)
	require.Len(t, sc.Message().ReturnPath(), 3)
	_, err = sc.Reply("pong").Send()
	require.NoError(t, err)
	sc.Close()

	r2 := nextMessage(t, obs2)
	assert.Equal(t, "pong", r2.Payload())
	assert.Equal(t, svc.Signature(), r2.Author())
	requireNoMessage(t, obs1)
	requireNoMessage(t, replies)
	r2.Close()

	r1 := nextMessage(t, obs1)
	assert.Equal(t, "pong", r1.Payload())
	requireNoMessage(t, replies)
	r1.Close()

	rc := nextMessage(t, replies)
	assert.Equal(t, "pong", rc.Payload())
	rc.Close()
}

func TestHub_ObserversSeeThreadStatus(t *testing.T) {
	h := newTestHub(t)
	_, brokerInbox := create(t, h, xhub.Broker[string]())
	_, svcInbox := create(t, h, xhub.Addressable("svc"))
	caller, _ := create(t, h, xhub.Addressable("caller"))

	r, err := caller.Message("ping", xhub.Address("svc")).Send()
	require.NoError(t, err)

	bc := nextMessage(t, brokerInbox)
	obs, err := bc.SpawnObserver()
	require.NoError(t, err)

	nextMessage(t, svcInbox).Close()

	assert.Equal(t, xhub.Received, nextStatus(t, obs))
	assert.Equal(t, xhub.Received, nextStatus(t, r))
}

func TestHub_ForwardHappensExactlyOnce(t *testing.T) {
	h := newTestHub(t)
	_, brokerInbox := create(t, h, xhub.Broker[string]())
	_, svcInbox := create(t, h, xhub.Addressable("svc"))
	caller, _ := create(t, h, xhub.Addressable("caller"))

	_, err := caller.Message("once", xhub.Address("svc")).Send()
	require.NoError(t, err)

	bc := nextMessage(t, brokerInbox)
	assert.False(t, bc.Forwarded())
	require.NoError(t, bc.Forward())
	assert.True(t, bc.Forwarded())
	assert.ErrorIs(t, bc.Forward(), xhub.ErrAlreadyForwarded)
	_, err = bc.SpawnObserver()
	assert.ErrorIs(t, err, xhub.ErrAlreadyForwarded)
	_, err = bc.Propagate("twice").Send()
	assert.ErrorIs(t, err, xhub.ErrAlreadyForwarded)
	bc.Close()
	bc.Close()

	sc := nextMessage(t, svcInbox)
	assert.Equal(t, "once", sc.Payload())
	sc.Close()
	requireQuiet(t, svcInbox)
}

func TestHub_CloseAndForwardAreEquivalent(t *testing.T) {
	observe := func(t *testing.T, pass func(c *testClient)) (string, xhub.Signature[string]) {
		h := newTestHub(t)
		_, brokerInbox := create(t, h, xhub.Broker[string]())
		_, svcInbox := create(t, h, xhub.Addressable("svc"))
		caller, _ := create(t, h, xhub.Addressable("caller"))

		_, err := caller.Message("same", xhub.Address("svc")).Send()
		require.NoError(t, err)
		pass(nextMessage(t, brokerInbox))

		sc := nextMessage(t, svcInbox)
		defer sc.Close()
		return sc.Payload(), sc.Author()
	}

	p1, a1 := observe(t, func(c *testClient) { c.Close() })
	p2, a2 := observe(t, func(c *testClient) { require.NoError(t, c.Forward()) })
	assert.Equal(t, p1, p2)
	assert.Equal(t, a1.Type, a2.Type)
}

func TestHub_DroppedClientIsForwardedByRuntime(t *testing.T) {
	h := newTestHub(t)
	_, brokerInbox := create(t, h, xhub.Broker[string]())
	_, svcInbox := create(t, h, xhub.Addressable("svc"))
	caller, _ := create(t, h, xhub.Addressable("caller"))

	_, err := caller.Message("leaked", xhub.Address("svc")).Send()
	require.NoError(t, err)

	func() {
		ev := nextEvent(t, brokerInbox)
		require.True(t, ev.IsMessage())
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		return svcInbox.Len() > 0
	}, waitFor, 10*time.Millisecond)
	nextMessage(t, svcInbox).Close()
}

func TestHub_AcknowledgeDoesNotForward(t *testing.T) {
	h := newTestHub(t)
	_, svcInbox := create(t, h, xhub.Addressable("svc"))
	caller, _ := create(t, h, xhub.Addressable("caller"))

	r, err := caller.Message("ack me", xhub.Address("svc")).Send()
	require.NoError(t, err)

	sc := nextMessage(t, svcInbox)
	require.NoError(t, sc.Acknowledge())
	assert.Equal(t, xhub.Acknowledged, nextStatus(t, r))
	requireQuiet(t, r)
	assert.False(t, sc.Forwarded())

	sc.Close()
	assert.Equal(t, xhub.Received, nextStatus(t, r))
}

func TestHub_PropagateReplacesPayloadForRemainingHops(t *testing.T) {
	h := newTestHub(t)
	broker, brokerInbox := create(t, h, xhub.Broker[string]())
	_, svcInbox := create(t, h, xhub.Addressable("svc"))
	caller, _ := create(t, h, xhub.Addressable("caller"))

	replies, err := caller.Message("ping", xhub.Address("svc")).Send()
	require.NoError(t, err)

	bc := nextMessage(t, brokerInbox)
	pb := bc.Propagate("ignored").Payload("PING")
	requireQuiet(t, svcInbox)
	watch, err := pb.Send()
	require.NoError(t, err)
	_, err = pb.Send()
	assert.ErrorIs(t, err, xhub.ErrBuilderSent)
	assert.True(t, bc.Forwarded())
	bc.Close()

	sc := nextMessage(t, svcInbox)
	assert.Equal(t, "PING", sc.Payload())
	assert.Equal(t, caller.Signature(), sc.Author())
	assert.Equal(t, bc.Message().ID(), sc.Message().ID())
	path := sc.Message().ReturnPath()
	require.Len(t, path, 2)
	assert.Equal(t, broker.Signature(), path[0].Owner())
	assert.Equal(t, caller.Signature(), path[1].Owner())

	_, err = sc.Reply("PONG").Send()
	require.NoError(t, err)
	sc.Close()

	wc := nextMessage(t, watch)
	assert.Equal(t, "PONG", wc.Payload())
	assert.Equal(t, "PING", wc.Message().ReplyTo().Payload())
	wc.Close()

	rc := nextMessage(t, replies)
	assert.Equal(t, "PONG", rc.Payload())
	rc.Close()
}

func TestHub_ReplyHoldsOriginalUntilSent(t *testing.T) {
	h := newTestHub(t)
	_, b1Inbox := create(t, h, xhub.Broker[string]())
	_, svcInbox := create(t, h, xhub.Addressable("svc"))
	caller, _ := create(t, h, xhub.Addressable("caller"))

	_, err := caller.Message("ping", xhub.Address("svc")).Send()
	require.NoError(t, err)

	bc := nextMessage(t, b1Inbox)
	rb := bc.Reply("early")
	bc.Close()
	requireQuiet(t, svcInbox)

	_, err = rb.Send()
	require.NoError(t, err)
	nextMessage(t, svcInbox).Close()
}

func TestHub_ReplyToReply(t *testing.T) {
	h := newTestHub(t)
	svc, svcInbox := create(t, h, xhub.Addressable("svc"))
	caller, _ := create(t, h, xhub.Addressable("caller"))

	replies, err := caller.Message("1", xhub.Address("svc")).Send()
	require.NoError(t, err)

	sc := nextMessage(t, svcInbox)
	followups, err := sc.Reply("2").Send()
	require.NoError(t, err)
	sc.Close()

	rc := nextMessage(t, replies)
	assert.Equal(t, svc.Signature(), rc.Author())
	_, err = rc.Reply("3").Send()
	require.NoError(t, err)
	rc.Close()

	fc := nextMessage(t, followups)
	assert.Equal(t, "3", fc.Payload())
	assert.Equal(t, caller.Signature(), fc.Author())
	fc.Close()
}

func TestHub_MessagesFromOneSenderArriveInOrder(t *testing.T) {
	h := newTestHub(t)
	_, svcInbox := create(t, h, xhub.Addressable("svc"))
	caller, _ := create(t, h, xhub.Addressable("caller"))

	want := []string{"a", "b", "c", "d", "e"}
	for _, p := range want {
		_, err := caller.Message(p, xhub.Address("svc")).Send()
		require.NoError(t, err)
	}
	for _, p := range want {
		c := nextMessage(t, svcInbox)
		assert.Equal(t, p, c.Payload())
		c.Close()
	}
}

func TestHub_AddressInUse(t *testing.T) {
	h := newTestHub(t)
	create(t, h, xhub.Addressable("svc"))

	_, _, err := h.Create(context.Background(), xhub.Addressable("svc"))
	assert.ErrorIs(t, err, xhub.ErrAddressInUse)

	_, _, err = h.Create(context.Background(), xhub.Broker[string]())
	assert.NoError(t, err)
	_, _, err = h.Create(context.Background(), xhub.Broker[string]())
	assert.NoError(t, err, "brokers have no address to collide on")
}

func TestHub_DeregisteredAddressBecomesUndeliverable(t *testing.T) {
	h := newTestHub(t)
	svc, svcInbox := create(t, h, xhub.Addressable("svc"))
	caller, _ := create(t, h, xhub.Addressable("caller"))

	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())

	_, err := svcInbox.Next(context.Background())
	assert.ErrorIs(t, err, xhub.ErrReceptorClosed)

	r, err := caller.Message("late", xhub.Address("svc")).Send()
	require.NoError(t, err)
	assert.Equal(t, xhub.Undeliverable, nextStatus(t, r))

	_, err = svc.Message("x", xhub.Address("caller")).Send()
	assert.ErrorIs(t, err, xhub.ErrMessengerClosed)

	svc2, _ := create(t, h, xhub.Addressable("svc"))
	assert.NotEqual(t, svc.Signature().ID, svc2.Signature().ID)
}

func TestHub_ClosedReceptorIsSkipped(t *testing.T) {
	h := newTestHub(t)
	_, brokerInbox := create(t, h, xhub.Broker[string]())
	_, svcInbox := create(t, h, xhub.Addressable("svc"))
	caller, _ := create(t, h, xhub.Addressable("caller"))

	brokerInbox.Close()

	_, err := caller.Message("skip", xhub.Address("svc")).Send()
	require.NoError(t, err)
	nextMessage(t, svcInbox).Close()

	m := h.GetMetrics()
	assert.Equal(t, uint64(1), m.Dropped)
	assert.Equal(t, uint64(1), m.Delivered)
}

func TestHub_ClosingReceptorReleasesQueuedClients(t *testing.T) {
	h := newTestHub(t)
	_, brokerInbox := create(t, h, xhub.Broker[string]())
	_, svcInbox := create(t, h, xhub.Addressable("svc"))
	caller, _ := create(t, h, xhub.Addressable("caller"))

	_, err := caller.Message("queued", xhub.Address("svc")).Send()
	require.NoError(t, err)
	require.Eventually(t, func() bool { return brokerInbox.Len() == 1 }, waitFor, time.Millisecond)

	brokerInbox.Close()
	c := nextMessage(t, svcInbox)
	assert.Equal(t, "queued", c.Payload())
	c.Close()
}

func TestHub_BeaconStatusReachesReceptor(t *testing.T) {
	h := newTestHub(t)
	_, svcInbox := create(t, h, xhub.Addressable("svc"))
	caller, _ := create(t, h, xhub.Addressable("caller"))

	r, err := caller.Message("x", xhub.Address("svc")).Send()
	require.NoError(t, err)

	sc := nextMessage(t, svcInbox)
	author := sc.Message().ReturnPath()[0]
	assert.Equal(t, caller.Signature(), author.Owner())
	require.NoError(t, author.Status(xhub.Acknowledged))
	assert.Equal(t, xhub.Acknowledged, nextStatus(t, r))

	r.Close()
	assert.ErrorIs(t, author.Status(xhub.Received), xhub.ErrReceptorClosed)
	sc.Close()
}

func TestHub_CloseStopsEverything(t *testing.T) {
	h, closeFn, err := xhub.New(func(b *xhub.HubBuilder[string, string]) {
		b.WithLogger(testLogger())
	})
	require.NoError(t, err)
	assert.NotEmpty(t, h.Name())

	_, svcInbox, err := h.Create(context.Background(), xhub.Addressable("svc"))
	require.NoError(t, err)
	caller, _, err := h.Create(context.Background(), xhub.Addressable("caller"))
	require.NoError(t, err)

	_, err = caller.Message("before", xhub.Address("svc")).Send()
	require.NoError(t, err)

	require.NoError(t, closeFn())
	require.NoError(t, closeFn())

	c := nextMessage(t, svcInbox)
	assert.Equal(t, "before", c.Payload())
	c.Close()

	_, err = svcInbox.Next(context.Background())
	assert.ErrorIs(t, err, xhub.ErrHubClosed)

	_, err = caller.Message("after", xhub.Address("svc")).Send()
	assert.ErrorIs(t, err, xhub.ErrHubClosed)
	_, _, err = h.Create(context.Background(), xhub.Broker[string]())
	assert.ErrorIs(t, err, xhub.ErrHubClosed)
	assert.Equal(t, "unhealthy", h.Health(context.Background()).Status)
}

func TestHub_CreateHonorsCancelledContext(t *testing.T) {
	h := newTestHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := h.Create(ctx, xhub.Addressable("svc"))
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
		require.Eventually(t, func() bool {
			_, _, err := h.Create(context.Background(), xhub.Addressable("svc"))
			return err == nil
		}, waitFor, 10*time.Millisecond, "an abandoned registration must release its address")
	}
}

func TestHub_MetricsAndHealth(t *testing.T) {
	h := newTestHub(t)
	_, svcInbox := create(t, h, xhub.Addressable("svc"))
	caller, _ := create(t, h, xhub.Addressable("caller"))

	r, err := caller.Message("m", xhub.Address("svc")).Send()
	require.NoError(t, err)
	nextMessage(t, svcInbox).Close()
	assert.Equal(t, xhub.Received, nextStatus(t, r))

	m := h.GetMetrics()
	assert.Equal(t, uint64(2), m.Messengers)
	assert.Equal(t, uint64(1), m.Sent)
	assert.Equal(t, uint64(1), m.Delivered)
	assert.Equal(t, uint64(1), m.Forwarded)
	assert.Equal(t, uint64(1), m.Completed)
	assert.Equal(t, uint64(0), m.InFlight)
	assert.GreaterOrEqual(t, m.AvgDeliveryTimeMs, 0.0)

	hs := h.Health(context.Background())
	assert.Equal(t, "healthy", hs.Status)
	assert.False(t, hs.Timestamp.IsZero())
}

func TestHub_ConcurrentSenders(t *testing.T) {
	h := newTestHub(t)
	_, svcInbox := create(t, h, xhub.Addressable("svc"))

	const senders, each = 8, 50
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		m, _ := create(t, h, xhub.Addressable(fmt.Sprintf("sender-%d", i)))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < each; j++ {
				_, err := m.Message("load", xhub.Address("svc")).Send()
				assert.NoError(t, err)
			}
		}()
	}

	for received := 0; received < senders*each; received++ {
		nextMessage(t, svcInbox).Close()
	}
	wg.Wait()
	requireQuiet(t, svcInbox)
	assert.Equal(t, uint64(senders*each), h.GetMetrics().Sent)
}

func TestHub_ReplyAndPropagateCompose(t *testing.T) {
	h := newTestHub(t)
	broker, brokerInbox := create(t, h, xhub.Broker[string]())
	_, svcInbox := create(t, h, xhub.Addressable("svc"))
	caller, _ := create(t, h, xhub.Addressable("caller"))

	replies, err := caller.Message("ping", xhub.Address("svc")).Send()
	require.NoError(t, err)

	bc := nextMessage(t, brokerInbox)
	_, err = bc.Reply("early answer").Send()
	require.NoError(t, err)
	_, err = bc.Propagate("ping (checked)").Send()
	require.NoError(t, err)
	bc.Close()

	rc := nextMessage(t, replies)
	assert.Equal(t, "early answer", rc.Payload())
	assert.Equal(t, broker.Signature(), rc.Author())
	rc.Close()

	sc := nextMessage(t, svcInbox)
	assert.Equal(t, "ping (checked)", sc.Payload())
	sc.Close()
	requireQuiet(t, svcInbox)
}

func TestHub_DroppedObserverReceptorDoesNotStallReply(t *testing.T) {
	h := newTestHub(t)
	_, brokerInbox := create(t, h, xhub.Broker[string]())
	_, svcInbox := create(t, h, xhub.Addressable("svc"))
	caller, _ := create(t, h, xhub.Addressable("caller"))

	replies, err := caller.Message("ping", xhub.Address("svc")).Send()
	require.NoError(t, err)

	bc := nextMessage(t, brokerInbox)
	func() {
		_, err := bc.SpawnObserver()
		require.NoError(t, err)
	}()

	sc := nextMessage(t, svcInbox)
	_, err = sc.Reply("pong").Send()
	require.NoError(t, err)
	sc.Close()

	rc := nextMessageAfterGC(t, replies)
	assert.Equal(t, "pong", rc.Payload())
	rc.Close()
	requireSettled(t, h)
}

func TestHub_DroppedInboxDoesNotStallBroadcast(t *testing.T) {
	h := newTestHub(t)
	a, _ := create(t, h, xhub.Addressable("a"))
	func() {
		create(t, h, xhub.Addressable("silent"))
	}()
	_, cInbox := create(t, h, xhub.Addressable("c"))

	r, err := a.Message("all", xhub.Broadcast[string]()).Send()
	require.NoError(t, err)

	c := nextMessageAfterGC(t, cInbox)
	assert.Equal(t, "all", c.Payload())
	c.Close()
	assert.Equal(t, xhub.Broadcasted, nextStatus(t, r))
	requireSettled(t, h)
}

func TestHub_ReplySkipsClosedObserverReceptor(t *testing.T) {
	h := newTestHub(t)
	_, brokerInbox := create(t, h, xhub.Broker[string]())
	_, svcInbox := create(t, h, xhub.Addressable("svc"))
	caller, _ := create(t, h, xhub.Addressable("caller"))

	replies, err := caller.Message("ping", xhub.Address("svc")).Send()
	require.NoError(t, err)

	bc := nextMessage(t, brokerInbox)
	obs, err := bc.SpawnObserver()
	require.NoError(t, err)
	obs.Close()

	sc := nextMessage(t, svcInbox)
	answered, err := sc.Reply("pong").Send()
	require.NoError(t, err)
	sc.Close()

	rc := nextMessage(t, replies)
	assert.Equal(t, "pong", rc.Payload())
	rc.Close()

	assert.Equal(t, xhub.Received, nextStatus(t, answered))
	requireSettled(t, h)
	assert.Equal(t, uint64(1), h.GetMetrics().Dropped)
}

func TestHub_ReplySkipsClosedAuthorReceptor(t *testing.T) {
	h := newTestHub(t)
	_, brokerInbox := create(t, h, xhub.Broker[string]())
	_, svcInbox := create(t, h, xhub.Addressable("svc"))
	caller, _ := create(t, h, xhub.Addressable("caller"))

	replies, err := caller.Message("ping", xhub.Address("svc")).Send()
	require.NoError(t, err)

	bc := nextMessage(t, brokerInbox)
	obs, err := bc.SpawnObserver()
	require.NoError(t, err)

	sc := nextMessage(t, svcInbox)
	replies.Close()
	answered, err := sc.Reply("pong").Send()
	require.NoError(t, err)
	sc.Close()

	oc := nextMessage(t, obs)
	assert.Equal(t, "pong", oc.Payload())
	oc.Close()

	assert.Equal(t, xhub.Received, nextStatus(t, answered))
	requireSettled(t, h)
	assert.Equal(t, uint64(1), h.GetMetrics().Dropped)
}

func TestHub_ForwardAfterCloseIsLogged(t *testing.T) {
	logs := &syncBuffer{}
	h, closeFn, err := xhub.New(func(b *xhub.HubBuilder[string, string]) {
		b.WithLogger(loggerTo(logs))
	})
	require.NoError(t, err)
	_, svcInbox, err := h.Create(context.Background(), xhub.Addressable("svc"))
	require.NoError(t, err)
	caller, _, err := h.Create(context.Background(), xhub.Addressable("caller"))
	require.NoError(t, err)

	_, err = caller.Message("late", xhub.Address("svc")).Send()
	require.NoError(t, err)
	sc := nextMessage(t, svcInbox)

	require.NoError(t, closeFn())
	sc.Close()
	assert.Contains(t, logs.String(), "forward after release failed")
}

func TestHub_AbandonedCreateDoesNotLeakAfterClose(t *testing.T) {
	baseline := runtime.NumGoroutine()

	h, closeFn, err := xhub.New(func(b *xhub.HubBuilder[string, string]) {
		b.WithLogger(testLogger()).WithObserverPool(1, 8)
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 10; i++ {
		_, _, _ = h.Create(ctx, xhub.Addressable(fmt.Sprintf("svc-%d", i)))
	}
	require.NoError(t, closeFn())

	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline
	}, waitFor, 10*time.Millisecond)
}
