package xhub

import (
	"context"
)

// Observer receives hub lifecycle events. Implementations should be non-blocking.
type Observer interface {
	OnEvent(e Event)
}

// HealthChecker provides health status for production monitoring.
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}

// Factory mints messengers bound to one hub. *Hub implements it.
type Factory[P any, A comparable] interface {
	Create(ctx context.Context, t MessengerType[A]) (*Messenger[P, A], *Receptor[P, A], error)
}

var _ Factory[struct{}, string] = (*Hub[struct{}, string])(nil)
