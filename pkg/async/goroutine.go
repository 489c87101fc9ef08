package async

import (
	"context"
	"errors"

	"github.com/platinummonkey/plantops/pkg/observability"
)

// Go runs fn in a goroutine. A returned error is logged unless it is the
// cancellation of ctx, and a panic is recovered and logged.
func Go(ctx context.Context, logger *observability.Logger, name string, fn func(context.Context) error) {
	go func() {
		defer observability.RecoverPanic(logger, name)

		err := fn(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		logger.WithError(err).WithField("task", name).Error("Background task failed")
	}()
}
