package rbac

import (
	"github.com/platinummonkey/plantops/pkg/storage"
)

// Areas seeded for the Administrator role
var seededAreas = []string{
	"Factory",
	"Equipment",
	"Job",
	"Downtime",
	"Maintenance",
	"QualityAssurance",
	"Administration",
}

// Migrations returns the identity and permission matrix schema
func Migrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(100) NOT NULL UNIQUE,
					description TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     2,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					object_id VARCHAR(64) NOT NULL UNIQUE,
					email VARCHAR(320) NOT NULL DEFAULT '',
					display_name VARCHAR(255) NOT NULL DEFAULT '',
					role_id BIGINT NOT NULL REFERENCES roles(id),
					show_release_dialogue BOOLEAN NOT NULL DEFAULT TRUE,
					show_first_login_dialogue BOOLEAN NOT NULL DEFAULT TRUE,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_users_role_id ON users(role_id);
				CREATE INDEX IF NOT EXISTS idx_users_is_active ON users(is_active);
			`,
		},
		{
			Version:     3,
			Description: "Create user_area_details table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_area_details (
					id BIGSERIAL PRIMARY KEY,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					area VARCHAR(100) NOT NULL,
					can_create BOOLEAN NOT NULL DEFAULT FALSE,
					can_edit BOOLEAN NOT NULL DEFAULT FALSE,
					can_delete BOOLEAN NOT NULL DEFAULT FALSE,
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(role_id, area)
				);
			`,
		},
		{
			Version:     4,
			Description: "Seed built-in roles",
			SQL:         seedRolesSQL(),
		},
	}
}

func seedRolesSQL() string {
	stmt := `
		INSERT INTO roles (name, description) VALUES
			('Administrator', 'Full access to every area'),
			('Planner', 'Plans jobs and maintenance'),
			('Viewer', 'Read-only access')
		ON CONFLICT (name) DO NOTHING;
	`
	for _, area := range seededAreas {
		stmt += `
		INSERT INTO user_area_details (role_id, area, can_create, can_edit, can_delete)
		SELECT id, '` + area + `', TRUE, TRUE, TRUE FROM roles WHERE name = 'Administrator'
		ON CONFLICT (role_id, area) DO NOTHING;`
	}
	for _, area := range []string{"Job", "Maintenance"} {
		stmt += `
		INSERT INTO user_area_details (role_id, area, can_create, can_edit, can_delete)
		SELECT id, '` + area + `', TRUE, TRUE, FALSE FROM roles WHERE name = 'Planner'
		ON CONFLICT (role_id, area) DO NOTHING;`
	}
	return stmt
}
