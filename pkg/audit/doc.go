// Package audit keeps a trail of security relevant events: mutating requests
// refused by the permission matrix, edits of the matrix itself and directory
// synchronizations.
//
// Events are written through a Logger. PostgresStore persists them in the
// audit_events table (migration 200), LogSink mirrors them into the
// structured application log and MultiLogger combines both. Record never
// fails the caller; write errors are logged and dropped.
//
//	event := audit.NewRequestEvent(r, audit.EventAccessDenied, audit.StatusDenied)
//	event.Area = "Job"
//	audit.Record(r.Context(), logger, event)
//
// Handlers exposes the trail read-only at GET /api/audit/events and
// GET /api/audit/events/{id} (Audit.List, Audit.Get). Pruner deletes events
// past the retention window on a cron schedule.
package audit
