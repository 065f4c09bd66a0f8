package postgres

const (
	PostgresPersistentName    string = "postgres"
	PG_PORT_DEFAULT           int    = 5432
	PG_DATABASE_DEFAULT       string = "dtman_db"
	PG_MAX_IDLE_CONNS_DEFAULT int    = 10
	PG_MAX_OPEN_CONNS_DEFAULT int    = 100
	PG_MAX_LIFETIME_DEFAULT   int    = 3600
	PG_MAX_IDLE_TIME_DEFAULT  int    = 10

	PG_TBL_RECORD         string = "tbl_record"
	PG_TBL_CONFIG_ENTRY   string = "tbl_config_entry"
	PG_TBL_AUDIT_REPORT   string = "tbl_audit_report"
	PG_TBL_SCHEMA_VERSION string = "tbl_schema_version"
	PG_TBL_MIGRATION_LOCK string = "tbl_migration_lock"
)

// postgres automigrate has many bugs, so we create tables with sql
var pgSchemas = []string{
	`CREATE TABLE IF NOT EXISTS tbl_record (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_record_created_at ON tbl_record (created_at)`,
	`CREATE TABLE IF NOT EXISTS tbl_config_entry (
		key TEXT NOT NULL,
		scope TEXT NOT NULL DEFAULT 'global',
		value TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (key, scope)
	)`,
	`CREATE TABLE IF NOT EXISTS tbl_audit_report (
		id BIGSERIAL PRIMARY KEY,
		report TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tbl_schema_version (
		version BIGINT PRIMARY KEY,
		unit_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		checksum TEXT NOT NULL DEFAULT '',
		applied_at TIMESTAMPTZ NOT NULL,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		rollback_sql TEXT NOT NULL DEFAULT '',
		rolled_back BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS tbl_migration_lock (
		lock_id TEXT PRIMARY KEY,
		holder TEXT NOT NULL,
		locked_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL
	)`,
}
