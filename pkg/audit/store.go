package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEventNotFound is returned by Get for an unknown id
var ErrEventNotFound = errors.New("audit event not found")

// Store persists the audit trail
type Store interface {
	Logger
	Search(ctx context.Context, f Filter) ([]Event, int, error)
	Get(ctx context.Context, id int64) (*Event, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// PostgresStore keeps audit events in the audit_events table
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over db
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const eventColumns = `id, occurred_at, event_type, status, user_id, object_id, area, controller, method, path, request_id, message, metadata`

// Log inserts event and sets its ID
func (s *PostgresStore) Log(ctx context.Context, event *Event) error {
	var metadata []byte
	if len(event.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(event.Metadata); err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_events (occurred_at, event_type, status, user_id, object_id, area, controller, method, path, request_id, message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		event.Timestamp,
		string(event.Type),
		string(event.Status),
		event.UserID,
		event.ObjectID,
		event.Area,
		event.Controller,
		event.Method,
		event.Path,
		event.RequestID,
		event.Message,
		metadata,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Get returns one event
func (s *PostgresStore) Get(ctx context.Context, id int64) (*Event, error) {
	query := `SELECT ` + eventColumns + ` FROM audit_events WHERE id = $1`
	event, err := scanEvent(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit event: %w", err)
	}
	return event, nil
}

// Search returns one page of events, newest first, and the total match count
func (s *PostgresStore) Search(ctx context.Context, f Filter) ([]Event, int, error) {
	where, args := buildWhere(f)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	if total == 0 {
		return []Event{}, 0, nil
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 25
	}
	query := fmt.Sprintf(`SELECT %s FROM audit_events%s ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		eventColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search audit events: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to search audit events: %w", err)
	}
	return events, total, nil
}

// Prune deletes events older than before and returns how many were removed
func (s *PostgresStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM audit_events WHERE occurred_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit events: %w", err)
	}
	return result.RowsAffected()
}

func buildWhere(f Filter) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if f.Type != "" {
		add("event_type = $%d", string(f.Type))
	}
	if f.ObjectID != "" {
		add("object_id = $%d", f.ObjectID)
	}
	if f.Area != "" {
		add("area = $%d", f.Area)
	}
	if f.From != nil {
		add("occurred_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("occurred_at < $%d", *f.To)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row scanner) (*Event, error) {
	var (
		e        Event
		typ      string
		status   string
		userID   sql.NullInt64
		metadata []byte
	)
	err := row.Scan(&e.ID, &e.Timestamp, &typ, &status, &userID, &e.ObjectID, &e.Area,
		&e.Controller, &e.Method, &e.Path, &e.RequestID, &e.Message, &metadata)
	if err != nil {
		return nil, err
	}
	e.Type = EventType(typ)
	e.Status = EventStatus(status)
	if userID.Valid {
		e.UserID = &userID.Int64
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("invalid audit metadata: %w", err)
		}
	}
	return &e, nil
}
