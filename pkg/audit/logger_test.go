package audit

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/plantops/pkg/auth"
	"github.com/platinummonkey/plantops/pkg/contextkeys"
	"github.com/platinummonkey/plantops/pkg/observability"
)

type memoryLogger struct {
	events []*Event
	err    error
}

func (m *memoryLogger) Log(_ context.Context, e *Event) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

func TestNewEvent_FromIdentity(t *testing.T) {
	ctx := contextkeys.WithRequestID(context.Background(), "req-1")
	ctx = contextkeys.WithIdentity(ctx, &auth.Identity{UserID: 7, ObjectID: "oid-7", Role: "Planner"})

	e := NewEvent(ctx, EventPermissionChange, StatusSuccess)
	assert.Equal(t, "req-1", e.RequestID)
	assert.Equal(t, "oid-7", e.ObjectID)
	require.NotNil(t, e.UserID)
	assert.Equal(t, int64(7), *e.UserID)
	assert.False(t, e.Timestamp.IsZero())
}

func TestNewEvent_FromPrincipalOnly(t *testing.T) {
	principal := (&auth.Principal{}).WithClaim(auth.ObjectIDClaim, "oid-unknown")
	ctx := contextkeys.WithPrincipal(context.Background(), principal)

	e := NewEvent(ctx, EventAccessDenied, StatusDenied)
	assert.Equal(t, "oid-unknown", e.ObjectID)
	assert.Nil(t, e.UserID)
}

func TestNewEvent_Background(t *testing.T) {
	e := NewEvent(context.Background(), EventDirectorySync, StatusSuccess)
	assert.Empty(t, e.ObjectID)
	assert.Empty(t, e.RequestID)
	assert.Nil(t, e.UserID)
}

func TestNewRequestEvent(t *testing.T) {
	r := httptest.NewRequest("DELETE", "/api/jobs/4", nil)
	e := NewRequestEvent(r, EventAccessDenied, StatusDenied)
	assert.Equal(t, "DELETE", e.Method)
	assert.Equal(t, "/api/jobs/4", e.Path)
}

func TestMultiLogger(t *testing.T) {
	a := &memoryLogger{}
	b := &memoryLogger{err: errors.New("unavailable")}
	c := &memoryLogger{}

	m := NewMultiLogger(a, nil, b, c)
	err := m.Log(context.Background(), &Event{Type: EventDirectorySync})

	assert.ErrorContains(t, err, "unavailable")
	assert.Len(t, a.events, 1)
	assert.Len(t, c.events, 1)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(observability.NewLogger(observability.InfoLevel, &buf))

	e := (&Event{Type: EventAccessDenied, Status: StatusDenied, Area: "Job", Message: "permission not granted"}).
		WithMetadata("permission", "delete")
	require.NoError(t, sink.Log(context.Background(), e))

	out := buf.String()
	assert.Contains(t, out, "audit: permission not granted")
	assert.Contains(t, out, "authz.access_denied")
	assert.Contains(t, out, "audit_permission")
}

func TestRecord_SwallowsErrors(t *testing.T) {
	failing := &memoryLogger{err: errors.New("unavailable")}
	assert.NotPanics(t, func() {
		Record(context.Background(), failing, &Event{Type: EventAccessDenied})
		Record(context.Background(), nil, &Event{Type: EventAccessDenied})
		Record(context.Background(), NopLogger(), nil)
	})
}
