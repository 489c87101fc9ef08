package operations

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique key is already taken
	ErrDuplicate = errors.New("already exists")
	// ErrReference is returned when a foreign key points nowhere or a record is still referenced
	ErrReference = errors.New("reference violation")
)

// ValidationError reports invalid input fields
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

type validator struct {
	problems []string
}

func (v *validator) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.problems = append(v.problems, field+" is required")
	}
}

func (v *validator) maxLength(field, value string, max int) {
	if len(value) > max {
		v.problems = append(v.problems, fmt.Sprintf("%s must be at most %d characters", field, max))
	}
}

func (v *validator) positive(field string, value int64) {
	if value <= 0 {
		v.problems = append(v.problems, field+" must be positive")
	}
}

func (v *validator) oneOf(field, value string, allowed ...string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.problems = append(v.problems, fmt.Sprintf("%s must be one of %s", field, strings.Join(allowed, ", ")))
}

func (v *validator) ordered(fromField string, from time.Time, toField string, to *time.Time) {
	if to != nil && to.Before(from) {
		v.problems = append(v.problems, fmt.Sprintf("%s must not be before %s", toField, fromField))
	}
}

func (v *validator) err() error {
	if len(v.problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: v.problems}
}

// Filter narrows a paged search. Zero values mean "no filter".
// A filter that does not apply to a record type is ignored.
type Filter struct {
	Search      string
	FactoryID   int64
	EquipmentID int64
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
}

// Record is satisfied by a pointer to any record type
type Record[T any] interface {
	*T
	SetID(id int64)
	Validate() error
}

// Factory is a production site
type Factory struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	Location  string    `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (f *Factory) SetID(id int64) { f.ID = id }

func (f *Factory) Validate() error {
	var v validator
	v.required("name", f.Name)
	v.required("code", f.Code)
	v.maxLength("name", f.Name, 200)
	v.maxLength("code", f.Code, 32)
	return v.err()
}

// Equipment statuses
const (
	EquipmentRunning     = "running"
	EquipmentIdle        = "idle"
	EquipmentMaintenance = "maintenance"
	EquipmentRetired     = "retired"
)

// Equipment is a machine installed in a factory
type Equipment struct {
	ID           int64     `json:"id"`
	FactoryID    int64     `json:"factory_id"`
	Name         string    `json:"name"`
	SerialNumber string    `json:"serial_number,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (e *Equipment) SetID(id int64) { e.ID = id }

func (e *Equipment) Validate() error {
	var v validator
	v.positive("factory_id", e.FactoryID)
	v.required("name", e.Name)
	v.maxLength("name", e.Name, 200)
	if e.Status == "" {
		e.Status = EquipmentIdle
	}
	v.oneOf("status", e.Status, EquipmentRunning, EquipmentIdle, EquipmentMaintenance, EquipmentRetired)
	return v.err()
}

// Job statuses
const (
	JobPlanned    = "planned"
	JobInProgress = "in_progress"
	JobDone       = "done"
	JobCancelled  = "cancelled"
)

// Job is a unit of production work
type Job struct {
	ID           int64      `json:"id"`
	FactoryID    int64      `json:"factory_id"`
	EquipmentID  *int64     `json:"equipment_id,omitempty"`
	Title        string     `json:"title"`
	Status       string     `json:"status"`
	PlannedStart time.Time  `json:"planned_start"`
	PlannedEnd   *time.Time `json:"planned_end,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (j *Job) SetID(id int64) { j.ID = id }

func (j *Job) Validate() error {
	var v validator
	v.positive("factory_id", j.FactoryID)
	if j.EquipmentID != nil {
		v.positive("equipment_id", *j.EquipmentID)
	}
	v.required("title", j.Title)
	v.maxLength("title", j.Title, 200)
	if j.PlannedStart.IsZero() {
		v.problems = append(v.problems, "planned_start is required")
	}
	v.ordered("planned_start", j.PlannedStart, "planned_end", j.PlannedEnd)
	if j.Status == "" {
		j.Status = JobPlanned
	}
	v.oneOf("status", j.Status, JobPlanned, JobInProgress, JobDone, JobCancelled)
	return v.err()
}

// Downtime is a period during which equipment could not run
type Downtime struct {
	ID          int64      `json:"id"`
	EquipmentID int64      `json:"equipment_id"`
	Reason      string     `json:"reason"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (d *Downtime) SetID(id int64) { d.ID = id }

func (d *Downtime) Validate() error {
	var v validator
	v.positive("equipment_id", d.EquipmentID)
	v.required("reason", d.Reason)
	v.maxLength("reason", d.Reason, 500)
	if d.StartedAt.IsZero() {
		v.problems = append(v.problems, "started_at is required")
	}
	v.ordered("started_at", d.StartedAt, "ended_at", d.EndedAt)
	return v.err()
}

// MaintenanceSchedule is a recurring maintenance plan for one machine
type MaintenanceSchedule struct {
	ID           int64     `json:"id"`
	EquipmentID  int64     `json:"equipment_id"`
	Name         string    `json:"name"`
	IntervalDays int       `json:"interval_days"`
	NextDueAt    time.Time `json:"next_due_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (s *MaintenanceSchedule) SetID(id int64) { s.ID = id }

func (s *MaintenanceSchedule) Validate() error {
	var v validator
	v.positive("equipment_id", s.EquipmentID)
	v.required("name", s.Name)
	v.maxLength("name", s.Name, 200)
	v.positive("interval_days", int64(s.IntervalDays))
	if s.NextDueAt.IsZero() {
		v.problems = append(v.problems, "next_due_at is required")
	}
	return v.err()
}

// Maintenance task statuses
const (
	TaskOpen      = "open"
	TaskCompleted = "completed"
	TaskSkipped   = "skipped"
)

// MaintenanceTask is one maintenance job, optionally spawned by a schedule
type MaintenanceTask struct {
	ID          int64      `json:"id"`
	ScheduleID  *int64     `json:"schedule_id,omitempty"`
	EquipmentID int64      `json:"equipment_id"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	DueAt       time.Time  `json:"due_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (t *MaintenanceTask) SetID(id int64) { t.ID = id }

func (t *MaintenanceTask) Validate() error {
	var v validator
	if t.ScheduleID != nil {
		v.positive("schedule_id", *t.ScheduleID)
	}
	v.positive("equipment_id", t.EquipmentID)
	v.required("description", t.Description)
	v.maxLength("description", t.Description, 1000)
	if t.DueAt.IsZero() {
		v.problems = append(v.problems, "due_at is required")
	}
	if t.Status == "" {
		t.Status = TaskOpen
	}
	v.oneOf("status", t.Status, TaskOpen, TaskCompleted, TaskSkipped)
	if t.Status == TaskCompleted && t.CompletedAt == nil {
		v.problems = append(v.problems, "completed_at is required for completed tasks")
	}
	return v.err()
}
