// Package config provides application configuration management from environment variables.
//
// # Overview
//
// Every setting is read from a PLANTOPS_ prefixed environment variable with
// a default, then checked by Config.Validate.
//
// # Configuration Structure
//
// Server settings:
//
//	PLANTOPS_HOST="0.0.0.0"
//	PLANTOPS_PORT="8080"
//	PLANTOPS_HEALTH_PORT="9090"
//	PLANTOPS_MAX_BODY_BYTES="1048576"
//	PLANTOPS_RATE_LIMIT_PER_MINUTE="600"  # 0 disables
//
// Database settings:
//
//	PLANTOPS_DATABASE_URL="postgres://localhost/plantops?sslmode=disable"
//	PLANTOPS_DATABASE_MIGRATE="true"
//
// Authentication settings:
//
//	PLANTOPS_AUTH_ANONYMOUS="false"
//	PLANTOPS_AUTH_ISSUER_URL="https://login.microsoftonline.com/<tenant>/v2.0"
//	PLANTOPS_AUTH_AUDIENCE="api://plantops"
//	PLANTOPS_AUTH_AREA_MAP_FILE="/etc/plantops/areas.yaml"
//	PLANTOPS_ENVIRONMENT="production"
//
// Identity cache settings:
//
//	PLANTOPS_IDENTITY_CACHE_TTL="8h"
//	PLANTOPS_IDENTITY_CACHE_SIZE="10000"
//	PLANTOPS_REDIS_URL="redis://localhost:6379/0"  # shared cache and rate limits
//
// Directory settings:
//
//	PLANTOPS_DIRECTORY_ENABLED="true"
//	PLANTOPS_DIRECTORY_TOKEN_URL="https://login.microsoftonline.com/<tenant>/oauth2/v2.0/token"
//	PLANTOPS_DIRECTORY_CLIENT_ID="..."
//	PLANTOPS_DIRECTORY_CLIENT_SECRET="..."
//	PLANTOPS_DIRECTORY_GROUP_ID="..."
//	PLANTOPS_DIRECTORY_SCHEDULE="@every 1h"
//
// Audit settings:
//
//	PLANTOPS_AUDIT_ENABLED="true"
//	PLANTOPS_AUDIT_RETENTION="2160h"
//	PLANTOPS_AUDIT_PRUNE_SCHEDULE="@daily"  # empty disables pruning
//
// Observability settings:
//
//	PLANTOPS_LOG_LEVEL="info"  # debug, info, warn, error
//	PLANTOPS_METRICS_ENABLED="true"
//	PLANTOPS_OTEL_ENABLED="true"
//	PLANTOPS_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Related Packages
//
//   - pkg/storage: Uses database configuration
//   - pkg/observability: Uses observability configuration
package config
