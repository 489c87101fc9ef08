package directory

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/plantops/pkg/audit"
	"github.com/platinummonkey/plantops/pkg/auth"
	"github.com/platinummonkey/plantops/pkg/observability"
)

type fakeSource struct {
	members []auth.DirectoryMember
	err     error
	calls   atomic.Int32
	release chan struct{}
}

func (f *fakeSource) GroupMembers(ctx context.Context, groupID string) ([]auth.DirectoryMember, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	return f.members, f.err
}

type fakeStore struct {
	mu          sync.Mutex
	applied     []auth.DirectoryMember
	defaultRole string
	err         error
}

func (f *fakeStore) UpsertDirectoryUsers(ctx context.Context, members []auth.DirectoryMember, defaultRole string) (auth.SyncResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return auth.SyncResult{}, f.err
	}
	f.applied = members
	f.defaultRole = defaultRole
	return auth.SyncResult{Created: len(members), Active: len(members)}, nil
}

func newTestSyncer(source MemberSource, store UserStore, metrics *observability.Metrics) *Syncer {
	return NewSyncer(source, store, SyncerConfig{
		GroupID:     "grp-1",
		DefaultRole: "Viewer",
		Timeout:     5 * time.Second,
		Logger:      observability.NewLogger(observability.ErrorLevel, io.Discard),
		Metrics:     metrics,
	})
}

func TestSyncer_Sync(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	source := &fakeSource{members: []auth.DirectoryMember{
		{ObjectID: "oid-1", Email: "a@plant.example"},
		{ObjectID: ""},
		{ObjectID: "oid-2", Email: "b@plant.example"},
		{ObjectID: "oid-1", Email: "dup@plant.example"},
	}}
	store := &fakeStore{}
	syncer := newTestSyncer(source, store, metrics)

	var seen auth.SyncResult
	syncer.OnSync(func(_ context.Context, r auth.SyncResult) { seen = r })

	result, err := syncer.Sync(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, auth.SyncResult{Created: 2, Active: 2}, result)
	assert.Equal(t, result, seen)
	assert.Equal(t, "Viewer", store.defaultRole)
	assert.Equal(t, []auth.DirectoryMember{
		{ObjectID: "oid-1", Email: "a@plant.example"},
		{ObjectID: "oid-2", Email: "b@plant.example"},
	}, store.applied)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DirectoryResyncsTotal.WithLabelValues(TriggerManual, "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.DirectoryUsersActive))
}

func TestSyncer_RefusesEmptyListing(t *testing.T) {
	store := &fakeStore{}
	syncer := newTestSyncer(&fakeSource{members: []auth.DirectoryMember{{ObjectID: ""}}}, store, nil)

	called := false
	syncer.OnSync(func(context.Context, auth.SyncResult) { called = true })

	err := syncer.RefreshAuthorizedUsers(context.Background())
	assert.ErrorIs(t, err, ErrEmptyDirectory)
	assert.Nil(t, store.applied)
	assert.False(t, called)
}

func TestSyncer_Failures(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	listErr := errors.New("directory down")
	_, err := newTestSyncer(&fakeSource{err: listErr}, &fakeStore{}, metrics).Sync(context.Background(), TriggerSchedule)
	assert.ErrorIs(t, err, listErr)

	storeErr := errors.New("db down")
	source := &fakeSource{members: []auth.DirectoryMember{{ObjectID: "oid-1"}}}
	_, err = newTestSyncer(source, &fakeStore{err: storeErr}, metrics).Sync(context.Background(), TriggerSchedule)
	assert.ErrorIs(t, err, storeErr)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.DirectoryResyncsTotal.WithLabelValues(TriggerSchedule, "error")))
}

func TestSyncer_CoalescesConcurrentCalls(t *testing.T) {
	source := &fakeSource{
		members: []auth.DirectoryMember{{ObjectID: "oid-1"}},
		release: make(chan struct{}),
	}
	syncer := newTestSyncer(source, &fakeStore{}, nil)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := syncer.Sync(context.Background(), TriggerSchedule)
			errs <- err
		}()
	}

	require.Eventually(t, func() bool { return source.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	// let the late callers join the in-flight run
	time.Sleep(50 * time.Millisecond)
	close(source.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), source.calls.Load())
}

// stagedSource takes its listing before blocking, so a blocked run holds a
// snapshot that later directory changes do not reach
type stagedSource struct {
	mu      sync.Mutex
	members []auth.DirectoryMember
	calls   atomic.Int32
	gate    chan struct{}
	// second, when set, holds the second listing too
	second chan struct{}
}

func (s *stagedSource) GroupMembers(ctx context.Context, groupID string) ([]auth.DirectoryMember, error) {
	s.mu.Lock()
	listing := append([]auth.DirectoryMember(nil), s.members...)
	s.mu.Unlock()
	switch s.calls.Add(1) {
	case 1:
		<-s.gate
	case 2:
		if s.second != nil {
			<-s.second
		}
	}
	return listing, nil
}

func (s *stagedSource) add(m auth.DirectoryMember) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members = append(s.members, m)
}

func TestSyncer_LookupMissIgnoresRunStartedEarlier(t *testing.T) {
	source := &stagedSource{
		members: []auth.DirectoryMember{{ObjectID: "oid-1"}},
		gate:    make(chan struct{}),
	}
	store := &fakeStore{}
	syncer := newTestSyncer(source, store, nil)

	scheduled := make(chan error, 1)
	go func() {
		_, err := syncer.Sync(context.Background(), TriggerSchedule)
		scheduled <- err
	}()
	require.Eventually(t, func() bool { return source.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	// the user joins the group after the scheduled run took its listing
	source.add(auth.DirectoryMember{ObjectID: "oid-new"})
	miss := make(chan error, 1)
	go func() { miss <- syncer.RefreshAuthorizedUsers(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	close(source.gate)

	require.NoError(t, <-scheduled)
	require.NoError(t, <-miss)
	assert.Equal(t, int32(2), source.calls.Load())

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Contains(t, store.applied, auth.DirectoryMember{ObjectID: "oid-new"})
}

func TestSyncer_ConcurrentLookupMissesShareFreshRun(t *testing.T) {
	source := &stagedSource{
		members: []auth.DirectoryMember{{ObjectID: "oid-1"}},
		gate:    make(chan struct{}),
		second:  make(chan struct{}),
	}
	syncer := newTestSyncer(source, &fakeStore{}, nil)

	go func() { _, _ = syncer.Sync(context.Background(), TriggerSchedule) }()
	require.Eventually(t, func() bool { return source.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	const callers = 6
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, syncer.RefreshAuthorizedUsers(context.Background()))
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(source.gate)

	require.Eventually(t, func() bool { return source.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(source.second)
	wg.Wait()

	// every miss arrived during the first run, so one follow-up run serves them all
	assert.Equal(t, int32(2), source.calls.Load())
}

func TestSyncer_CallerCancellationDoesNotAbortRun(t *testing.T) {
	source := &fakeSource{
		members: []auth.DirectoryMember{{ObjectID: "oid-1"}},
		release: make(chan struct{}),
	}
	store := &fakeStore{}
	syncer := newTestSyncer(source, store, nil)

	done := make(chan struct{})
	syncer.OnSync(func(context.Context, auth.SyncResult) { close(done) })

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- syncer.RefreshAuthorizedUsers(ctx) }()

	require.Eventually(t, func() bool { return source.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(source.release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sync did not finish after the caller went away")
	}
}

func TestNewScheduler(t *testing.T) {
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	syncer := newTestSyncer(&fakeSource{}, &fakeStore{}, nil)

	_, err := NewScheduler(syncer, "not a schedule", logger)
	assert.Error(t, err)

	s, err := NewScheduler(syncer, "@every 1h", logger)
	require.NoError(t, err)
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}

type syncAudit struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (a *syncAudit) Log(_ context.Context, e *audit.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
	return nil
}

func TestSyncer_AuditsRuns(t *testing.T) {
	trail := &syncAudit{}
	source := &fakeSource{members: []auth.DirectoryMember{{ObjectID: "oid-1"}}}
	syncer := NewSyncer(source, &fakeStore{}, SyncerConfig{
		GroupID:     "grp-1",
		DefaultRole: "Viewer",
		Logger:      observability.NewLogger(observability.ErrorLevel, io.Discard),
		Audit:       trail,
	})

	_, err := syncer.Sync(context.Background(), TriggerManual)
	require.NoError(t, err)

	source.members = nil
	_, err = syncer.Sync(context.Background(), TriggerSchedule)
	require.ErrorIs(t, err, ErrEmptyDirectory)

	require.Len(t, trail.events, 2)
	ok, failed := trail.events[0], trail.events[1]

	assert.Equal(t, audit.EventDirectorySync, ok.Type)
	assert.Equal(t, audit.StatusSuccess, ok.Status)
	assert.Equal(t, TriggerManual, ok.Metadata["trigger"])
	assert.Equal(t, 1, ok.Metadata["active"])

	assert.Equal(t, audit.StatusFailure, failed.Status)
	assert.Equal(t, TriggerSchedule, failed.Metadata["trigger"])
	assert.Equal(t, ErrEmptyDirectory.Error(), failed.Message)
}
