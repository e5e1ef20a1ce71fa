// Package config provides application configuration management.
//
// Configuration is assembled in three layers: built-in defaults, an
// optional YAML file named by CASETRAIL_CONFIG_FILE, and CASETRAIL_*
// environment variables. Later layers win. The result is validated
// before use.
//
// Server settings:
//
//	CASETRAIL_HOST="0.0.0.0"
//	CASETRAIL_PORT="8080"
//	CASETRAIL_HEALTH_PORT="9090"
//	CASETRAIL_READ_TIMEOUT="15s"
//	CASETRAIL_WRITE_TIMEOUT="15s"
//
// Database settings:
//
//	CASETRAIL_POSTGRES_URL="postgres://localhost/casetrail"
//	CASETRAIL_POSTGRES_MAX_CONNS="25"
//
// Permission cache settings:
//
//	CASETRAIL_CACHE_BACKEND="memory"  # memory, redis
//	CASETRAIL_CACHE_TTL="5m"
//	CASETRAIL_REDIS_URL="redis://localhost:6379"
//
// Evidence storage settings:
//
//	CASETRAIL_EVIDENCE_BACKEND="filesystem"  # filesystem, s3
//	CASETRAIL_EVIDENCE_ROOT="/var/lib/casetrail/evidence"
//	CASETRAIL_S3_BUCKET="casetrail-evidence"
//
// Observability settings:
//
//	CASETRAIL_LOG_LEVEL="info"  # debug, info, warn, error
//	CASETRAIL_METRICS_ENABLED="true"
//	CASETRAIL_OTEL_ENABLED="false"
//	CASETRAIL_OTEL_ENDPOINT="otel-collector:4317"
package config
