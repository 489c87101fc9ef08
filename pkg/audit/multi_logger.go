package audit

import (
	"context"
	"errors"

	"github.com/platinummonkey/plantops/pkg/observability"
)

// MultiLogger fans each event out to several loggers
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a logger writing to every non-nil logger given
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

// Log writes to every logger and joins their errors
func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	var errs []error
	for _, l := range m.loggers {
		if err := l.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes events to the structured application log
type LogSink struct {
	logger *observability.Logger
}

// NewLogSink creates a sink over logger
func NewLogSink(logger *observability.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Log emits one info line per event
func (s *LogSink) Log(_ context.Context, event *Event) error {
	fields := map[string]interface{}{
		"audit_type":   string(event.Type),
		"audit_status": string(event.Status),
	}
	if event.ObjectID != "" {
		fields["object_id"] = event.ObjectID
	}
	if event.Area != "" {
		fields["area"] = event.Area
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	for k, v := range event.Metadata {
		fields["audit_"+k] = v
	}
	msg := event.Message
	if msg == "" {
		msg = string(event.Type)
	}
	s.logger.WithFields(fields).Info("audit: " + msg)
	return nil
}
