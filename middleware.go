package xhub

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Handler processes one delivered message. The client is closed by Serve
// after the handler returns, so a handler that takes no action forwards.
type Handler[P any, A comparable] func(ctx context.Context, c *MessageClient[P, A]) error

// Middleware composes processing concerns around a Handler.
type Middleware[P any, A comparable] func(next Handler[P, A]) Handler[P, A]

// RetryConfig controls retry behavior for processing middleware.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first execution.
	MaxAttempts int
	// Backoff computes the base wait before the next attempt (e.g., exponential backoff).
	Backoff func(attempt int) time.Duration
	// RetryIf, when provided, returns true if the error should be retried.
	// If nil, all errors are retried (bounded by MaxAttempts).
	RetryIf func(err error) bool
	// Jitter adds up to [0, Jitter] random delay to the base backoff to avoid thundering herds.
	Jitter time.Duration
}

// RetryMiddleware provides bounded, selective retries around a handler.
// Retrying stops early once the client's message has been passed on.
func RetryMiddleware[P any, A comparable](cfg RetryConfig) Middleware[P, A] {
	return func(next Handler[P, A]) Handler[P, A] {
		return func(ctx context.Context, c *MessageClient[P, A]) error {
			var lastErr error
			attempts := cfg.MaxAttempts
			if attempts < 1 {
				attempts = 1
			}
			shouldRetry := cfg.RetryIf
			if shouldRetry == nil {
				shouldRetry = func(error) bool { return true }
			}
			for i := 1; i <= attempts; i++ {
				lastErr = next(ctx, c)
				if lastErr == nil {
					return nil
				}
				if errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return lastErr
				}
				if i == attempts || !shouldRetry(lastErr) || c.Forwarded() {
					return lastErr
				}
				if cfg.Backoff != nil {
					wait := cfg.Backoff(i)
					if cfg.Jitter > 0 {
						wait += time.Duration(rand.Int63n(int64(cfg.Jitter)))
					}
					select {
					case <-ctx.Done():
						return lastErr
					case <-time.After(wait):
					}
				}
			}
			return lastErr
		}
	}
}

// TimeoutMiddleware enforces a maximum processing time for a handler.
// When exceeded, it returns context.DeadlineExceeded and Serve closes the
// client, forwarding the message if the handler had not already.
func TimeoutMiddleware[P any, A comparable](d time.Duration) Middleware[P, A] {
	if d <= 0 {
		return func(next Handler[P, A]) Handler[P, A] { return next }
	}
	return func(next Handler[P, A]) Handler[P, A] {
		return func(ctx context.Context, c *MessageClient[P, A]) error {
			tctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			errCh := make(chan error, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						errCh <- fmt.Errorf("panic recovered: %v", r)
					}
				}()
				errCh <- next(tctx, c)
			}()

			select {
			case <-tctx.Done():
				return tctx.Err()
			case err := <-errCh:
				return err
			}
		}
	}
}

// RecoveryMiddleware prevents panics from crashing service loops and converts them into errors.
func RecoveryMiddleware[P any, A comparable]() Middleware[P, A] {
	return func(next Handler[P, A]) Handler[P, A] {
		return func(ctx context.Context, c *MessageClient[P, A]) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic recovered: %v", r)
				}
			}()
			return next(ctx, c)
		}
	}
}

// Chain composes middlewares around a handler in order.
func Chain[P any, A comparable](h Handler[P, A], mws ...Middleware[P, A]) Handler[P, A] {
	if len(mws) == 0 {
		return h
	}
	wrapped := h
	// Apply in reverse so that first middleware wraps last.
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		wrapped = mws[i](wrapped)
	}
	return wrapped
}
