package operations

import (
	"database/sql"
)

var factoryTable = &table[Factory]{
	name:    "factories",
	columns: []string{"name", "code", "location"},
	values: func(f *Factory) []interface{} {
		return []interface{}{f.Name, f.Code, f.Location}
	},
	scan: func(s scanner, f *Factory) error {
		return s.Scan(&f.ID, &f.Name, &f.Code, &f.Location, &f.CreatedAt, &f.UpdatedAt)
	},
	key:        func(f *Factory) *int64 { return &f.ID },
	stamps:     func(f *Factory) []interface{} { return []interface{}{&f.CreatedAt, &f.UpdatedAt} },
	searchCols: []string{"name", "code", "location"},
	factoryCol: "id",
	timeCol:    "created_at",
	orderBy:    "name, id",
}

var equipmentTable = &table[Equipment]{
	name:    "equipment",
	columns: []string{"factory_id", "name", "serial_number", "status"},
	values: func(e *Equipment) []interface{} {
		return []interface{}{e.FactoryID, e.Name, e.SerialNumber, e.Status}
	},
	scan: func(s scanner, e *Equipment) error {
		return s.Scan(&e.ID, &e.FactoryID, &e.Name, &e.SerialNumber, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	},
	key:          func(e *Equipment) *int64 { return &e.ID },
	stamps:       func(e *Equipment) []interface{} { return []interface{}{&e.CreatedAt, &e.UpdatedAt} },
	searchCols:   []string{"name", "serial_number"},
	factoryCol:   "factory_id",
	equipmentCol: "id",
	timeCol:      "created_at",
	orderBy:      "name, id",
}

var jobTable = &table[Job]{
	name:    "jobs",
	columns: []string{"factory_id", "equipment_id", "title", "status", "planned_start", "planned_end"},
	values: func(j *Job) []interface{} {
		return []interface{}{j.FactoryID, j.EquipmentID, j.Title, j.Status, j.PlannedStart, j.PlannedEnd}
	},
	scan: func(s scanner, j *Job) error {
		return s.Scan(&j.ID, &j.FactoryID, &j.EquipmentID, &j.Title, &j.Status, &j.PlannedStart, &j.PlannedEnd,
			&j.CreatedAt, &j.UpdatedAt)
	},
	key:          func(j *Job) *int64 { return &j.ID },
	stamps:       func(j *Job) []interface{} { return []interface{}{&j.CreatedAt, &j.UpdatedAt} },
	searchCols:   []string{"title"},
	factoryCol:   "factory_id",
	equipmentCol: "equipment_id",
	timeCol:      "planned_start",
	orderBy:      "planned_start DESC, id DESC",
}

var downtimeTable = &table[Downtime]{
	name:    "downtime",
	columns: []string{"equipment_id", "reason", "started_at", "ended_at"},
	values: func(d *Downtime) []interface{} {
		return []interface{}{d.EquipmentID, d.Reason, d.StartedAt, d.EndedAt}
	},
	scan: func(s scanner, d *Downtime) error {
		return s.Scan(&d.ID, &d.EquipmentID, &d.Reason, &d.StartedAt, &d.EndedAt, &d.CreatedAt, &d.UpdatedAt)
	},
	key:          func(d *Downtime) *int64 { return &d.ID },
	stamps:       func(d *Downtime) []interface{} { return []interface{}{&d.CreatedAt, &d.UpdatedAt} },
	searchCols:   []string{"reason"},
	equipmentCol: "equipment_id",
	timeCol:      "started_at",
	orderBy:      "started_at DESC, id DESC",
}

var scheduleTable = &table[MaintenanceSchedule]{
	name:    "maintenance_schedules",
	columns: []string{"equipment_id", "name", "interval_days", "next_due_at"},
	values: func(m *MaintenanceSchedule) []interface{} {
		return []interface{}{m.EquipmentID, m.Name, m.IntervalDays, m.NextDueAt}
	},
	scan: func(s scanner, m *MaintenanceSchedule) error {
		return s.Scan(&m.ID, &m.EquipmentID, &m.Name, &m.IntervalDays, &m.NextDueAt, &m.CreatedAt, &m.UpdatedAt)
	},
	key:          func(m *MaintenanceSchedule) *int64 { return &m.ID },
	stamps:       func(m *MaintenanceSchedule) []interface{} { return []interface{}{&m.CreatedAt, &m.UpdatedAt} },
	searchCols:   []string{"name"},
	equipmentCol: "equipment_id",
	timeCol:      "next_due_at",
	orderBy:      "next_due_at, id",
}

var taskTable = &table[MaintenanceTask]{
	name:    "maintenance_tasks",
	columns: []string{"schedule_id", "equipment_id", "description", "status", "due_at", "completed_at"},
	values: func(t *MaintenanceTask) []interface{} {
		return []interface{}{t.ScheduleID, t.EquipmentID, t.Description, t.Status, t.DueAt, t.CompletedAt}
	},
	scan: func(s scanner, t *MaintenanceTask) error {
		return s.Scan(&t.ID, &t.ScheduleID, &t.EquipmentID, &t.Description, &t.Status, &t.DueAt, &t.CompletedAt,
			&t.CreatedAt, &t.UpdatedAt)
	},
	key:          func(t *MaintenanceTask) *int64 { return &t.ID },
	stamps:       func(t *MaintenanceTask) []interface{} { return []interface{}{&t.CreatedAt, &t.UpdatedAt} },
	searchCols:   []string{"description"},
	equipmentCol: "equipment_id",
	timeCol:      "due_at",
	orderBy:      "due_at, id",
}

// Services bundles one Service per controller
type Services struct {
	Factories            Service[Factory]
	Equipment            Service[Equipment]
	Jobs                 Service[Job]
	Downtime             Service[Downtime]
	MaintenanceSchedules Service[MaintenanceSchedule]
	MaintenanceTasks     Service[MaintenanceTask]
}

// NewPostgresServices creates PostgreSQL backed services sharing db
func NewPostgresServices(db *sql.DB) *Services {
	return &Services{
		Factories:            &Repository[Factory]{db: db, table: factoryTable},
		Equipment:            &Repository[Equipment]{db: db, table: equipmentTable},
		Jobs:                 &Repository[Job]{db: db, table: jobTable},
		Downtime:             &Repository[Downtime]{db: db, table: downtimeTable},
		MaintenanceSchedules: &Repository[MaintenanceSchedule]{db: db, table: scheduleTable},
		MaintenanceTasks:     &Repository[MaintenanceTask]{db: db, table: taskTable},
	}
}
