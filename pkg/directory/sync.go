package directory

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/plantops/pkg/audit"
	"github.com/platinummonkey/plantops/pkg/auth"
	"github.com/platinummonkey/plantops/pkg/observability"
)

// Sync triggers, used as metric labels
const (
	TriggerLookupMiss = "lookup_miss"
	TriggerSchedule   = "schedule"
	TriggerManual     = "manual"
)

// ErrEmptyDirectory is returned when the directory reports no members.
// Applying an empty listing would deactivate every user, so it is refused.
var ErrEmptyDirectory = errors.New("directory returned no members")

// MemberSource lists the members of a directory group
type MemberSource interface {
	GroupMembers(ctx context.Context, groupID string) ([]auth.DirectoryMember, error)
}

// UserStore applies a directory listing to the user table
type UserStore interface {
	UpsertDirectoryUsers(ctx context.Context, members []auth.DirectoryMember, defaultRole string) (auth.SyncResult, error)
}

// SyncerConfig configures a Syncer
type SyncerConfig struct {
	GroupID     string
	DefaultRole string
	// Timeout bounds one sync, independent of the caller's context
	Timeout time.Duration
	Logger  *observability.Logger
	Metrics *observability.Metrics
	// Audit records every run, failed or not; nil disables it
	Audit audit.Logger
}

// Syncer mirrors the authorized group into the user table.
// Concurrent syncs share one run.
type Syncer struct {
	source      MemberSource
	store       UserStore
	groupID     string
	defaultRole string
	timeout     time.Duration
	logger      *observability.Logger
	metrics     *observability.Metrics
	audit       audit.Logger
	flight      singleflight.Group
	// runs counts started syncs; a run's generation is its value after the increment
	runs   atomic.Uint64
	onSync []func(context.Context, auth.SyncResult)
}

type syncRun struct {
	generation uint64
	result     auth.SyncResult
}

// NewSyncer creates a syncer
func NewSyncer(source MemberSource, store UserStore, cfg SyncerConfig) *Syncer {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Syncer{
		source:      source,
		store:       store,
		groupID:     cfg.GroupID,
		defaultRole: cfg.DefaultRole,
		timeout:     timeout,
		logger:      logger,
		metrics:     cfg.Metrics,
		audit:       cfg.Audit,
	}
}

// OnSync registers a callback run after each successful sync.
// Register callbacks before the syncer is used.
func (s *Syncer) OnSync(fn func(context.Context, auth.SyncResult)) {
	s.onSync = append(s.onSync, fn)
}

// RefreshAuthorizedUsers syncs on behalf of a claims lookup miss
func (s *Syncer) RefreshAuthorizedUsers(ctx context.Context) error {
	_, err := s.Sync(ctx, TriggerLookupMiss)
	return err
}

// Sync fetches the group and applies it. Callers arriving while a sync is in
// flight wait for it and share its result. A lookup miss only accepts a run
// that started after it asked, since an earlier run may have listed the group
// before the missing user was added.
func (s *Syncer) Sync(ctx context.Context, trigger string) (auth.SyncResult, error) {
	asked := s.runs.Load()
	for {
		run, err := s.join(ctx, trigger)
		if ctx.Err() != nil {
			return auth.SyncResult{}, ctx.Err()
		}
		if trigger == TriggerLookupMiss && run.generation <= asked {
			continue
		}
		if err != nil {
			return auth.SyncResult{}, err
		}
		return run.result, nil
	}
}

func (s *Syncer) join(ctx context.Context, trigger string) (syncRun, error) {
	ch := s.flight.DoChan("sync", func() (interface{}, error) {
		run := syncRun{generation: s.runs.Add(1)}
		// the shared run must not die with whichever caller started it
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		var err error
		run.result, err = s.run(runCtx, trigger)
		return run, err
	})

	select {
	case <-ctx.Done():
		return syncRun{}, ctx.Err()
	case res := <-ch:
		run, _ := res.Val.(syncRun)
		return run, res.Err
	}
}

func (s *Syncer) run(ctx context.Context, trigger string) (result auth.SyncResult, err error) {
	start := time.Now()
	logger := s.logger.WithFields(map[string]interface{}{
		"trigger":  trigger,
		"group_id": s.groupID,
	})
	defer func() {
		s.metrics.RecordDirectoryResync(trigger, time.Since(start), result.Active, err)
		s.record(ctx, trigger, result, err)
	}()

	members, err := s.source.GroupMembers(ctx, s.groupID)
	if err != nil {
		logger.WithError(err).Error("Directory listing failed")
		return auth.SyncResult{}, fmt.Errorf("failed to list directory members: %w", err)
	}

	members = dedupe(members)
	if len(members) == 0 {
		logger.Error("Directory returned no members, refusing to deactivate every user")
		return auth.SyncResult{}, ErrEmptyDirectory
	}

	result, err = s.store.UpsertDirectoryUsers(ctx, members, s.defaultRole)
	if err != nil {
		logger.WithError(err).Error("Applying directory listing failed")
		return auth.SyncResult{}, fmt.Errorf("failed to apply directory members: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"created":     result.Created,
		"updated":     result.Updated,
		"deactivated": result.Deactivated,
		"active":      result.Active,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Directory sync completed")

	for _, fn := range s.onSync {
		fn(ctx, result)
	}
	return result, nil
}

func (s *Syncer) record(ctx context.Context, trigger string, result auth.SyncResult, err error) {
	if s.audit == nil {
		return
	}
	event := audit.NewEvent(ctx, audit.EventDirectorySync, audit.StatusSuccess).
		WithMetadata("trigger", trigger).
		WithMetadata("group_id", s.groupID)
	if err != nil {
		event.Status = audit.StatusFailure
		event.Message = err.Error()
	} else {
		event.WithMetadata("created", result.Created).
			WithMetadata("updated", result.Updated).
			WithMetadata("deactivated", result.Deactivated).
			WithMetadata("active", result.Active)
	}
	audit.Record(ctx, s.audit, event)
}

// dedupe drops members without an object-id and keeps the first of repeated ones
func dedupe(members []auth.DirectoryMember) []auth.DirectoryMember {
	seen := make(map[string]struct{}, len(members))
	out := make([]auth.DirectoryMember, 0, len(members))
	for _, m := range members {
		if m.ObjectID == "" {
			continue
		}
		if _, ok := seen[m.ObjectID]; ok {
			continue
		}
		seen[m.ObjectID] = struct{}{}
		out = append(out, m)
	}
	return out
}

// Scheduler runs periodic syncs on a cron spec
type Scheduler struct {
	cron   *cron.Cron
	syncer *Syncer
	logger *observability.Logger
}

// NewScheduler validates spec (standard cron or @every descriptors)
func NewScheduler(syncer *Syncer, spec string, logger *observability.Logger) (*Scheduler, error) {
	s := &Scheduler{cron: cron.New(), syncer: syncer, logger: logger}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("invalid directory sync schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) tick() {
	defer observability.RecoverPanic(s.logger, "directory scheduler")

	if _, err := s.syncer.Sync(context.Background(), TriggerSchedule); err != nil {
		s.logger.WithError(err).Warn("Scheduled directory sync failed")
	}
}

// Start begins running scheduled syncs in the background
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sync to finish or ctx to end
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
