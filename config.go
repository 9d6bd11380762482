package xhub

import (
	"fmt"
	"time"
)

// Config controls hub construction.
type Config struct {
	// Name identifies the hub in logs and events (default: random UUID).
	Name string
	// ObserverWorkers is the number of observer dispatch goroutines (default: 4).
	ObserverWorkers int
	// ObserverBuffer is the observer event queue capacity (default: 1024).
	ObserverBuffer int
	// CloseTimeout bounds how long Close waits for queued work (default: 5s).
	CloseTimeout time.Duration
}

// Defaults returns a Config with production-safe defaults.
func Defaults() Config {
	return Config{
		ObserverWorkers: 4,
		ObserverBuffer:  1024,
		CloseTimeout:    5 * time.Second,
	}
}

// Validate checks Config for production readiness.
func (c Config) Validate() error {
	if c.ObserverWorkers < 1 {
		return fmt.Errorf("%w: observer_workers must be >= 1, got %d", ErrInvalidConfig, c.ObserverWorkers)
	}
	if c.ObserverBuffer < 1 {
		return fmt.Errorf("%w: observer_buffer must be >= 1, got %d", ErrInvalidConfig, c.ObserverBuffer)
	}
	if c.CloseTimeout <= 0 {
		return fmt.Errorf("%w: close_timeout must be > 0, got %v", ErrInvalidConfig, c.CloseTimeout)
	}
	return nil
}

// ConfigFromMap safely converts a generic map to Config with defaults.
func ConfigFromMap(cfg map[string]any) Config {
	getInt := func(k string, d int) int {
		switch v := cfg[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		default:
			return d
		}
	}

	getDur := func(k string, d time.Duration) time.Duration {
		switch v := cfg[k].(type) {
		case time.Duration:
			return v
		case string:
			if p, err := time.ParseDuration(v); err == nil {
				return p
			}
		case float64:
			return time.Duration(v)
		}
		return d
	}

	c := Defaults()
	if v, ok := cfg["name"].(string); ok {
		c.Name = v
	}
	c.ObserverWorkers = getInt("observer_workers", c.ObserverWorkers)
	c.ObserverBuffer = getInt("observer_buffer", c.ObserverBuffer)
	c.CloseTimeout = getDur("close_timeout", c.CloseTimeout)
	return c
}

