package audit

import (
	"github.com/platinummonkey/plantops/pkg/storage"
)

// Migrations returns the audit trail schema
func Migrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     200,
			Description: "Create audit_events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_events (
					id BIGSERIAL PRIMARY KEY,
					occurred_at TIMESTAMP NOT NULL DEFAULT NOW(),
					event_type VARCHAR(64) NOT NULL,
					status VARCHAR(16) NOT NULL,
					user_id BIGINT,
					object_id VARCHAR(64) NOT NULL DEFAULT '',
					area VARCHAR(100) NOT NULL DEFAULT '',
					controller VARCHAR(100) NOT NULL DEFAULT '',
					method VARCHAR(16) NOT NULL DEFAULT '',
					path TEXT NOT NULL DEFAULT '',
					request_id VARCHAR(64) NOT NULL DEFAULT '',
					message TEXT NOT NULL DEFAULT '',
					metadata JSONB
				);
				CREATE INDEX IF NOT EXISTS idx_audit_events_occurred_at ON audit_events(occurred_at);
				CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(event_type, occurred_at);
				CREATE INDEX IF NOT EXISTS idx_audit_events_object_id ON audit_events(object_id);
			`,
		},
	}
}
