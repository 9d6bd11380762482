package xhub_test

import (
	"bytes"
	"context"
	"io"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xlog/adapter/zerolog"

	"github.com/trickstertwo/xhub"
)

const waitFor = 2 * time.Second

type (
	testHub      = xhub.Hub[string, string]
	testReceptor = xhub.Receptor[string, string]
	testClient   = xhub.MessageClient[string, string]
)

func testLogger() *xlog.Logger {
	return loggerTo(io.Discard)
}

func loggerTo(w io.Writer) *xlog.Logger {
	return zerolog.Use(zerolog.Config{
		MinLevel: xlog.LevelDebug,
		Console:  false,
		Writer:   w,
	})
}

// syncBuffer collects log output written from several goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// newTestHub builds a hub that is closed when the test ends.
func newTestHub(t *testing.T, init ...func(b *xhub.HubBuilder[string, string])) *testHub {
	t.Helper()
	h, closeFn, err := xhub.New(func(b *xhub.HubBuilder[string, string]) {
		b.WithName(t.Name()).WithLogger(testLogger())
		for _, fn := range init {
			fn(b)
		}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFn() })
	return h
}

func create(t *testing.T, h *testHub, mt xhub.MessengerType[string]) (*xhub.Messenger[string, string], *testReceptor) {
	t.Helper()
	m, r, err := h.Create(context.Background(), mt)
	require.NoError(t, err)
	return m, r
}

func nextEvent(t *testing.T, r *testReceptor) xhub.MessageEvent[string, string] {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	ev, err := r.Next(ctx)
	require.NoError(t, err)
	return ev
}

// nextMessage skips status events.
func nextMessage(t *testing.T, r *testReceptor) *testClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	_, c, err := r.NextPayload(ctx)
	require.NoError(t, err)
	return c
}

func nextStatus(t *testing.T, r *testReceptor) xhub.DeliveryStatus {
	t.Helper()
	ev := nextEvent(t, r)
	require.False(t, ev.IsMessage(), "expected a status, got message %q", payloadOf(ev))
	return ev.Status
}

// requireQuiet asserts nothing arrives on r for a short while.
func requireQuiet(t *testing.T, r *testReceptor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	ev, err := r.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded, "unexpected event: message=%v status=%q payload=%q", ev.IsMessage(), ev.Status, payloadOf(ev))
}

// requireNoMessage drains queued status events and asserts no message is waiting.
func requireNoMessage(t *testing.T, r *testReceptor) {
	t.Helper()
	time.Sleep(50 * time.Millisecond)
	for {
		ev, ok := r.TryNext()
		if !ok {
			return
		}
		require.False(t, ev.IsMessage(), "unexpected message %q", payloadOf(ev))
	}
}

func payloadOf(ev xhub.MessageEvent[string, string]) string {
	if ev.Client == nil {
		return ""
	}
	return ev.Client.Payload()
}

// nextMessageAfterGC collects garbage until a message shows up on r,
// skipping status events.
func nextMessageAfterGC(t *testing.T, r *testReceptor) *testClient {
	t.Helper()
	var got *testClient
	require.Eventually(t, func() bool {
		runtime.GC()
		for {
			ev, ok := r.TryNext()
			if !ok {
				return false
			}
			if ev.IsMessage() {
				got = ev.Client
				return true
			}
		}
	}, waitFor, 10*time.Millisecond)
	return got
}

func requireSettled(t *testing.T, h *testHub) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.GetMetrics().InFlight == 0
	}, waitFor, 5*time.Millisecond)
}
