package xhub

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// HubBuilder constructs Hub instances (Builder pattern).
type HubBuilder[P any, A comparable] struct {
	cfg       Config
	observers []Observer
	logger    *xlog.Logger
	clock     xclock.Clock
}

// NewHubBuilder returns a new builder with sensible defaults.
func NewHubBuilder[P any, A comparable]() *HubBuilder[P, A] {
	return &HubBuilder[P, A]{cfg: Defaults()}
}

// WithConfig replaces the whole configuration.
func (hb *HubBuilder[P, A]) WithConfig(cfg Config) *HubBuilder[P, A] {
	hb.cfg = cfg
	return hb
}

// WithConfigMap applies a generic config blob (see ConfigFromMap).
func (hb *HubBuilder[P, A]) WithConfigMap(cfg map[string]any) *HubBuilder[P, A] {
	hb.cfg = ConfigFromMap(cfg)
	return hb
}

func (hb *HubBuilder[P, A]) WithName(name string) *HubBuilder[P, A] {
	hb.cfg.Name = name
	return hb
}

func (hb *HubBuilder[P, A]) WithLogger(l *xlog.Logger) *HubBuilder[P, A] {
	hb.logger = l
	return hb
}

func (hb *HubBuilder[P, A]) WithClock(c xclock.Clock) *HubBuilder[P, A] {
	hb.clock = c
	return hb
}

func (hb *HubBuilder[P, A]) WithObserver(obs ...Observer) *HubBuilder[P, A] {
	for _, o := range obs {
		if o != nil {
			hb.observers = append(hb.observers, o)
		}
	}
	return hb
}

// WithObserverPool configures the async observer pool.
func (hb *HubBuilder[P, A]) WithObserverPool(workers, bufferSize int) *HubBuilder[P, A] {
	if workers > 0 {
		hb.cfg.ObserverWorkers = workers
	}
	if bufferSize > 0 {
		hb.cfg.ObserverBuffer = bufferSize
	}
	return hb
}

func (hb *HubBuilder[P, A]) WithCloseTimeout(d time.Duration) *HubBuilder[P, A] {
	if d > 0 {
		hb.cfg.CloseTimeout = d
	}
	return hb
}

// Build validates the configuration and starts the hub's dispatch loop.
func (hb *HubBuilder[P, A]) Build() (*Hub[P, A], error) {
	if err := hb.cfg.Validate(); err != nil {
		return nil, err
	}

	name := hb.cfg.Name
	if name == "" {
		name = uuid.NewString()
	}

	clk := hb.clock
	if clk == nil {
		clk = xclock.Default()
	}
	lg := hb.logger
	if lg == nil {
		// Default to xlog logger; Adapter pattern to platform logging.
		lg = xlog.Default()
	}

	h := &Hub[P, A]{
		name:         name,
		clock:        clk,
		logger:       lg.With(xlog.Str("hub", name)),
		closeTimeout: hb.cfg.CloseTimeout,
		observerPool: NewObserverPool(context.Background(), hb.cfg.ObserverWorkers, hb.cfg.ObserverBuffer),
		metrics:      &hubMetrics{},
		actions:      newUnboundedChannel[action[P, A]](),
		done:         make(chan struct{}),
		addresses:    make(map[A]*endpoint[P, A]),
		inflight:     make(map[MessageID]*delivery[P, A]),
	}

	// Attach logging observer first unless one was supplied explicitly.
	hasLoggingObserver := false
	for _, o := range hb.observers {
		if _, ok := o.(LoggingObserver); ok {
			hasLoggingObserver = true
			break
		}
	}
	if !hasLoggingObserver {
		h.AddObserver(LoggingObserver{Logger: lg})
	}
	for _, o := range hb.observers {
		h.AddObserver(o)
	}

	go h.run()
	return h, nil
}

// New constructs a Hub via Builder and returns a close func for convenience.
func New[P any, A comparable](init func(b *HubBuilder[P, A])) (*Hub[P, A], func() error, error) {
	b := NewHubBuilder[P, A]()
	if init != nil {
		init(b)
	}
	h, err := b.Build()
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() error { return h.Close(context.Background()) }
	return h, closeFn, nil
}

// CreateHub builds a hub with default settings.
func CreateHub[P any, A comparable]() (*Hub[P, A], error) {
	return NewHubBuilder[P, A]().Build()
}
