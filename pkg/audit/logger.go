package audit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/platinummonkey/plantops/pkg/auth"
	"github.com/platinummonkey/plantops/pkg/contextkeys"
	"github.com/platinummonkey/plantops/pkg/observability"
)

// Logger records audit events
type Logger interface {
	Log(ctx context.Context, event *Event) error
}

type nopLogger struct{}

func (nopLogger) Log(context.Context, *Event) error { return nil }

// NopLogger returns a Logger that discards every event
func NopLogger() Logger {
	return nopLogger{}
}

// NewEvent creates an event stamped with the current time and whatever the
// context knows about the caller and request.
func NewEvent(ctx context.Context, typ EventType, status EventStatus) *Event {
	e := &Event{
		Timestamp: time.Now().UTC(),
		Type:      typ,
		Status:    status,
		RequestID: contextkeys.GetRequestID(ctx),
	}
	if id := auth.IdentityFromContext(ctx); id != nil {
		e.ObjectID = id.ObjectID
		if id.UserID > 0 {
			userID := id.UserID
			e.UserID = &userID
		}
	}
	if e.ObjectID == "" {
		e.ObjectID = auth.PrincipalFromContext(ctx).ObjectID()
	}
	if e.UserID == nil {
		if raw := contextkeys.GetUserID(ctx); raw != "" {
			if userID, err := strconv.ParseInt(raw, 10, 64); err == nil {
				e.UserID = &userID
			}
		}
	}
	return e
}

// NewRequestEvent is NewEvent plus the method and path of r
func NewRequestEvent(r *http.Request, typ EventType, status EventStatus) *Event {
	e := NewEvent(r.Context(), typ, status)
	e.Method = r.Method
	e.Path = r.URL.Path
	return e
}

// Record logs event through l. Failures are reported to the context logger
// and never returned; an audit outage must not fail the audited request.
func Record(ctx context.Context, l Logger, event *Event) {
	if l == nil || event == nil {
		return
	}
	if err := l.Log(ctx, event); err != nil {
		observability.FromContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"audit_type":   string(event.Type),
			"audit_status": string(event.Status),
		}).Error("Failed to record audit event")
	}
}
