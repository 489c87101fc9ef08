package operations

import (
	"github.com/platinummonkey/plantops/pkg/storage"
)

// Migrations returns the operations schema. Versions start at 100 so they
// can be applied together with the identity schema.
func Migrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     100,
			Description: "Create factories table",
			SQL: `
				CREATE TABLE IF NOT EXISTS factories (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(200) NOT NULL,
					code VARCHAR(32) NOT NULL UNIQUE,
					location TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     101,
			Description: "Create equipment table",
			SQL: `
				CREATE TABLE IF NOT EXISTS equipment (
					id BIGSERIAL PRIMARY KEY,
					factory_id BIGINT NOT NULL REFERENCES factories(id),
					name VARCHAR(200) NOT NULL,
					serial_number VARCHAR(100) NOT NULL DEFAULT '',
					status VARCHAR(20) NOT NULL DEFAULT 'idle',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_equipment_factory_id ON equipment(factory_id);
			`,
		},
		{
			Version:     102,
			Description: "Create jobs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS jobs (
					id BIGSERIAL PRIMARY KEY,
					factory_id BIGINT NOT NULL REFERENCES factories(id),
					equipment_id BIGINT REFERENCES equipment(id),
					title VARCHAR(200) NOT NULL,
					status VARCHAR(20) NOT NULL DEFAULT 'planned',
					planned_start TIMESTAMP NOT NULL,
					planned_end TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_jobs_factory_id ON jobs(factory_id);
				CREATE INDEX IF NOT EXISTS idx_jobs_planned_start ON jobs(planned_start);
			`,
		},
		{
			Version:     103,
			Description: "Create downtime table",
			SQL: `
				CREATE TABLE IF NOT EXISTS downtime (
					id BIGSERIAL PRIMARY KEY,
					equipment_id BIGINT NOT NULL REFERENCES equipment(id),
					reason VARCHAR(500) NOT NULL,
					started_at TIMESTAMP NOT NULL,
					ended_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_downtime_equipment_started ON downtime(equipment_id, started_at);
			`,
		},
		{
			Version:     104,
			Description: "Create maintenance tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS maintenance_schedules (
					id BIGSERIAL PRIMARY KEY,
					equipment_id BIGINT NOT NULL REFERENCES equipment(id),
					name VARCHAR(200) NOT NULL,
					interval_days INTEGER NOT NULL CHECK (interval_days > 0),
					next_due_at TIMESTAMP NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS maintenance_tasks (
					id BIGSERIAL PRIMARY KEY,
					schedule_id BIGINT REFERENCES maintenance_schedules(id) ON DELETE SET NULL,
					equipment_id BIGINT NOT NULL REFERENCES equipment(id),
					description VARCHAR(1000) NOT NULL,
					status VARCHAR(20) NOT NULL DEFAULT 'open',
					due_at TIMESTAMP NOT NULL,
					completed_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_maintenance_schedules_due ON maintenance_schedules(next_due_at);
				CREATE INDEX IF NOT EXISTS idx_maintenance_tasks_equipment_due ON maintenance_tasks(equipment_id, due_at);
			`,
		},
	}
}
