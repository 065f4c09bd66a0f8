package mysql

import (
	"time"
)

type TblRecord struct {
	Id        string    `gorm:"column:id;primaryKey;type:varchar(64)"`
	Kind      string    `gorm:"column:kind;type:varchar(128)"`
	Payload   string    `gorm:"column:payload;type:longtext"`
	CreatedAt time.Time `gorm:"column:created_at;index"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (v TblRecord) TableName() string {
	return MYSQL_TBL_RECORD
}

type TblConfigEntry struct {
	Key       string    `gorm:"column:key;primaryKey;type:varchar(128)"`
	Scope     string    `gorm:"column:scope;primaryKey;type:varchar(64)"`
	Value     string    `gorm:"column:value;type:text"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (v TblConfigEntry) TableName() string {
	return MYSQL_TBL_CONFIG_ENTRY
}

type TblAuditReport struct {
	Id        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Report    string    `gorm:"column:report;type:longtext"`
	CreatedAt time.Time `gorm:"column:created_at;index"`
}

func (v TblAuditReport) TableName() string {
	return MYSQL_TBL_AUDIT_REPORT
}

type TblSchemaVersion struct {
	Version     int64     `gorm:"column:version;primaryKey;autoIncrement:false"`
	UnitId      string    `gorm:"column:unit_id;type:varchar(128)"`
	Name        string    `gorm:"column:name;type:varchar(255)"`
	Checksum    string    `gorm:"column:checksum;type:varchar(64)"`
	AppliedAt   time.Time `gorm:"column:applied_at"`
	DurationMs  int64     `gorm:"column:duration_ms"`
	RollbackSql string    `gorm:"column:rollback_sql;type:longtext"`
	RolledBack  bool      `gorm:"column:rolled_back"`
}

func (v TblSchemaVersion) TableName() string {
	return MYSQL_TBL_SCHEMA_VERSION
}

type TblMigrationLock struct {
	LockId    string    `gorm:"column:lock_id;primaryKey;type:varchar(64)"`
	Holder    string    `gorm:"column:holder;type:varchar(128)"`
	LockedAt  time.Time `gorm:"column:locked_at"`
	ExpiresAt time.Time `gorm:"column:expires_at"`
}

func (v TblMigrationLock) TableName() string {
	return MYSQL_TBL_MIGRATION_LOCK
}
