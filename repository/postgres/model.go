package postgres

import (
	"time"
)

type TblRecord struct {
	Id        string    `gorm:"column:id;primaryKey"`
	Kind      string    `gorm:"column:kind"`
	Payload   string    `gorm:"column:payload"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (v TblRecord) TableName() string {
	return PG_TBL_RECORD
}

type TblConfigEntry struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Scope     string    `gorm:"column:scope;primaryKey"`
	Value     string    `gorm:"column:value"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (v TblConfigEntry) TableName() string {
	return PG_TBL_CONFIG_ENTRY
}

type TblAuditReport struct {
	Id        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Report    string    `gorm:"column:report"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (v TblAuditReport) TableName() string {
	return PG_TBL_AUDIT_REPORT
}

type TblSchemaVersion struct {
	Version     int64     `gorm:"column:version;primaryKey"`
	UnitId      string    `gorm:"column:unit_id"`
	Name        string    `gorm:"column:name"`
	Checksum    string    `gorm:"column:checksum"`
	AppliedAt   time.Time `gorm:"column:applied_at"`
	DurationMs  int64     `gorm:"column:duration_ms"`
	RollbackSql string    `gorm:"column:rollback_sql"`
	RolledBack  bool      `gorm:"column:rolled_back"`
}

func (v TblSchemaVersion) TableName() string {
	return PG_TBL_SCHEMA_VERSION
}

type TblMigrationLock struct {
	LockId    string    `gorm:"column:lock_id;primaryKey"`
	Holder    string    `gorm:"column:holder"`
	LockedAt  time.Time `gorm:"column:locked_at"`
	ExpiresAt time.Time `gorm:"column:expires_at"`
}

func (v TblMigrationLock) TableName() string {
	return PG_TBL_MIGRATION_LOCK
}
