package xhub

import (
	"context"
	"errors"
)

// Serve runs handler for every message arriving on r until ctx is done, r is
// closed or the hub shuts down. Messages are handled one at a time in arrival
// order. Each client is closed once the handler returns, so the message moves
// on unless the handler already passed it on or left a reply builder pending.
//
// Serve returns nil when r or the hub closes and ctx's error when cancelled.
func (h *Hub[P, A]) Serve(ctx context.Context, r *Receptor[P, A], handler Handler[P, A], mws ...Middleware[P, A]) error {
	// Recovery always wraps the handler.
	base := RecoveryMiddleware[P, A]()(handler)
	wh := Chain(base, mws...)
	hctx := InjectAll(ctx, h.logger, h.clock)

	for {
		ev, err := r.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrReceptorClosed) || errors.Is(err, ErrHubClosed) {
				return nil
			}
			return err
		}
		if !ev.IsMessage() {
			h.logger.Debug().Str("status", string(ev.Status)).Msg("xhub: status on served receptor")
			continue
		}
		h.handle(hctx, ev.Client, wh)
	}
}

func (h *Hub[P, A]) handle(ctx context.Context, c *MessageClient[P, A], wh Handler[P, A]) {
	defer c.Close()
	if err := wh(ctx, c); err != nil {
		h.logger.Warn().
			Err(err).
			Str("messenger_id", c.Recipient().ID.String()).
			Str("message_id", c.Message().ID().String()).
			Msg("xhub: handler failed")
	}
}
