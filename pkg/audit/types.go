package audit

import (
	"time"
)

// EventType identifies what was audited
type EventType string

const (
	// EventAccessDenied is a mutating request refused by the permission matrix
	EventAccessDenied EventType = "authz.access_denied"
	// EventPermissionChange is an edit of one role x area row
	EventPermissionChange EventType = "authz.permission_change"
	// EventDirectorySync is a completed directory synchronization
	EventDirectorySync EventType = "directory.sync"
)

// Valid reports whether t is a known event type
func (t EventType) Valid() bool {
	switch t {
	case EventAccessDenied, EventPermissionChange, EventDirectorySync:
		return true
	}
	return false
}

// EventStatus is the outcome of the audited action
type EventStatus string

const (
	StatusSuccess EventStatus = "success"
	StatusDenied  EventStatus = "denied"
	StatusFailure EventStatus = "failure"
)

// Event is one audit trail entry
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	Status    EventStatus `json:"status"`

	// Caller; empty for scheduled work
	UserID   *int64 `json:"user_id,omitempty"`
	ObjectID string `json:"object_id,omitempty"`

	Area       string `json:"area,omitempty"`
	Controller string `json:"controller,omitempty"`

	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// WithMetadata sets one metadata key and returns the event
func (e *Event) WithMetadata(key string, value interface{}) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Filter narrows a search of the audit trail. Zero values match everything.
type Filter struct {
	Type     EventType
	ObjectID string
	Area     string
	From     *time.Time
	To       *time.Time

	Limit  int
	Offset int
}
