package service

import (
	"context"

	"github.com/rs/zerolog"
)

// bestEffort attempts fn, logs the outcome and never propagates a failure.
// It detaches from the caller's cancellation so cleanup still runs after the
// inbound request went away; the signaling client bounds each call.
func bestEffort(ctx context.Context, l zerolog.Logger, op string, fn func(context.Context) error) {
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		l.Warn().Err(err).Str("op", op).Msg("Best-effort call failed")
		return
	}
	l.Debug().Str("op", op).Msg("Best-effort call succeeded")
}
