package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/plantops/pkg/observability"
)

// Pruner periodically deletes events older than the retention window
type Pruner struct {
	cron      *cron.Cron
	store     Store
	retention time.Duration
	logger    *observability.Logger
	now       func() time.Time
}

// NewPruner validates spec and creates a pruner. It does not run until Start.
func NewPruner(store Store, retention time.Duration, spec string, logger *observability.Logger) (*Pruner, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("audit retention must be positive, got %s", retention)
	}
	p := &Pruner{
		cron:      cron.New(),
		store:     store,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
	if _, err := p.cron.AddFunc(spec, p.tick); err != nil {
		return nil, fmt.Errorf("invalid audit prune schedule %q: %w", spec, err)
	}
	return p, nil
}

func (p *Pruner) tick() {
	defer observability.RecoverPanic(p.logger, "audit pruner")

	if _, err := p.Prune(context.Background()); err != nil {
		p.logger.WithError(err).Warn("Audit prune failed")
	}
}

// Prune deletes expired events once
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	cutoff := p.now().UTC().Add(-p.retention)
	n, err := p.store.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.logger.WithFields(map[string]interface{}{
			"deleted": n,
			"cutoff":  cutoff.Format(time.RFC3339),
		}).Info("Pruned audit events")
	}
	return n, nil
}

// Start begins running scheduled prunes
func (p *Pruner) Start() {
	p.cron.Start()
}

// Stop halts the schedule and waits for a running prune to finish or ctx to end
func (p *Pruner) Stop(ctx context.Context) error {
	done := p.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
