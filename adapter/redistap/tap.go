package redistap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/xhub"
)

// Tap is a broker endpoint that records every origin message it sees.
type Tap[P any, A comparable] struct {
	cfg       Config
	client    *redis.Client
	ownClient bool
	codec     xhub.Codec
	clock     xclock.Clock
	logger    *xlog.Logger
	hub       *xhub.Hub[P, A]
	messenger *xhub.Messenger[P, A]

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	metrics *tapMetrics
}

type tapMetrics struct {
	recorded    atomic.Uint64
	writeErrors atomic.Uint64
}

// Stats returns tap telemetry.
type Stats struct {
	Recorded    uint64
	WriteErrors uint64
}

// Option configures a Tap.
type Option func(*options)

type options struct {
	logger *xlog.Logger
	clock  xclock.Clock
	client *redis.Client
}

// WithLogger injects a custom xlog logger.
func WithLogger(l *xlog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock injects a custom xclock clock used for ObservedAt.
func WithClock(c xclock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithClient reuses an existing Redis client instead of dialing Config.Addr.
// The tap does not close a client it did not create.
func WithClient(c *redis.Client) Option {
	return func(o *options) { o.client = c }
}

// Attach registers a tap on hub and starts recording.
func Attach[P any, A comparable](ctx context.Context, hub *xhub.Hub[P, A], cfg Config, opts ...Option) (*Tap[P, A], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	codec, err := xhub.NewCodec(cfg.Codec)
	if err != nil {
		return nil, err
	}

	client, ownClient := o.client, false
	if client == nil {
		client, err = NewClient(cfg)
		if err != nil {
			return nil, err
		}
		ownClient = true
	}

	t := &Tap[P, A]{
		cfg:       cfg,
		client:    client,
		ownClient: ownClient,
		codec:     codec,
		clock:     o.clock,
		logger:    o.logger,
		hub:       hub,
		done:      make(chan struct{}),
		metrics:   &tapMetrics{},
	}
	if t.clock == nil {
		t.clock = xclock.Default()
	}
	if t.logger == nil {
		t.logger = xlog.Default()
	}

	messenger, receptor, err := hub.Create(ctx, xhub.Broker[A]())
	if err != nil {
		if ownClient {
			_ = client.Close()
		}
		return nil, err
	}
	t.messenger = messenger

	serveCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	go func() {
		defer close(t.done)
		if err := hub.Serve(serveCtx, receptor, t.record); err != nil && !errors.Is(err, context.Canceled) {
			t.logger.Warn().Err(err).Msg("redistap: serve stopped")
		}
	}()

	return t, nil
}

// NewClient dials Redis with the connection settings of cfg and pings it.
func NewClient(cfg Config) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 1,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{
			MinVersion:    tls.VersionTLS12,
			ServerName:    cfg.TLSServerName,
			Renegotiation: tls.RenegotiateNever,
		}
	}

	client := redis.NewClient(opts)
	if err := ping(client); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Signature is the tap's broker identity on the hub.
func (t *Tap[P, A]) Signature() xhub.Signature[A] { return t.messenger.Signature() }

// Stats returns current tap metrics.
func (t *Tap[P, A]) Stats() Stats {
	return Stats{
		Recorded:    t.metrics.recorded.Load(),
		WriteErrors: t.metrics.writeErrors.Load(),
	}
}

// Close deregisters the tap and releases its Redis client.
func (t *Tap[P, A]) Close() error {
	var closeErr error
	t.closeOnce.Do(func() {
		if err := t.messenger.Close(); err != nil && !errors.Is(err, xhub.ErrHubClosed) {
			closeErr = err
		}
		t.cancel()
		<-t.done
		if t.ownClient {
			if err := t.client.Close(); err != nil && closeErr == nil {
				closeErr = err
			}
		}
	})
	return closeErr
}

// record is the tap's handler. It never passes the message on itself; Serve
// closes the client afterwards and the message continues unchanged.
func (t *Tap[P, A]) record(ctx context.Context, c *xhub.MessageClient[P, A]) error {
	rec, err := newRecord(t.hub.Name(), c, t.codec, t.clock.Now())
	if err != nil {
		t.metrics.writeErrors.Add(1)
		return err
	}

	args := &redis.XAddArgs{
		Stream: t.cfg.Stream,
		ID:     "*",
		Values: rec.values(),
	}
	if t.cfg.MaxLenApprox > 0 {
		args.MaxLen = t.cfg.MaxLenApprox
		args.Approx = true
	}

	wctx, cancel := context.WithTimeout(ctx, t.cfg.WriteTimeout)
	defer cancel()
	if err := t.client.XAdd(wctx, args).Err(); err != nil {
		t.metrics.writeErrors.Add(1)
		if lg, ok := xhub.LoggerFromContext(ctx); ok {
			lg.Warn().Err(err).Str("stream", t.cfg.Stream).Msg("redistap: xadd failed")
		}
		return err
	}
	t.metrics.recorded.Add(1)
	return nil
}

// Read returns up to count records from the tap's stream, oldest first.
func (t *Tap[P, A]) Read(ctx context.Context, count int64) ([]Record, error) {
	msgs, err := t.client.XRangeN(ctx, t.cfg.Stream, "-", "+", count).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(msgs))
	for _, m := range msgs {
		r, err := DecodeRecord(m.ID, m.Values)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func ping(c *redis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := c.Ping(ctx).Result()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("redis ping timeout: %w", err)
		}
		return err
	}

	if strings.ToUpper(res) != "PONG" {
		return fmt.Errorf("unexpected redis ping result: %s", res)
	}
	return nil
}
