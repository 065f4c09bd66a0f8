package mysql

const (
	MysqlPersistentName          string = "mysql"
	MYSQL_PORT_DEFAULT           int    = 3306
	MYSQL_DATABASE_DEFAULT       string = "dtman_db"
	MYSQL_MAX_IDLE_CONNS_DEFAULT int    = 10
	MYSQL_MAX_OPEN_CONNS_DEFAULT int    = 100
	MYSQL_MAX_LIFETIME_DEFAULT   int    = 3600
	MYSQL_MAX_IDLE_TIME_DEFAULT  int    = 10

	MYSQL_TBL_RECORD         string = "tbl_record"
	MYSQL_TBL_CONFIG_ENTRY   string = "tbl_config_entry"
	MYSQL_TBL_AUDIT_REPORT   string = "tbl_audit_report"
	MYSQL_TBL_SCHEMA_VERSION string = "tbl_schema_version"
	MYSQL_TBL_MIGRATION_LOCK string = "tbl_migration_lock"
)
