package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dualtier/dtman/log"
	"github.com/dualtier/dtman/model"
	"github.com/dualtier/dtman/repository"
	"github.com/pkg/errors"
	driver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"moul.io/zapgorm2"
)

type PostgresPersistent struct {
	Config   PostgresConfig
	Client   *gorm.DB
	ParentDB *gorm.DB
}

func NewPostgresPersistent() *PostgresPersistent {
	return &PostgresPersistent{}
}

func (mp *PostgresPersistent) Init(config interface{}) error {
	if config == nil {
		config = PostgresConfig{}
	}
	mp.Config = config.(PostgresConfig)
	mp.Config.Normalize()
	dsn := fmt.Sprintf("host=%s port=%d user=%s dbname=%s password=%s sslmode=disable",
		mp.Config.Host,
		mp.Config.Port,
		mp.Config.User,
		mp.Config.DataBase,
		mp.Config.Password)

	logger := zapgorm2.New(log.ZapLog)
	logger.SetAsDefault()
	db, err := gorm.Open(driver.Open(dsn), &gorm.Config{
		Logger: logger,
	})
	if err != nil {
		return errors.Wrap(err, "")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "")
	}

	// set connection pool
	if sqlDB != nil {
		sqlDB.SetMaxIdleConns(mp.Config.MaxIdleConns)
		sqlDB.SetConnMaxIdleTime(time.Second * time.Duration(mp.Config.ConnMaxIdleTime))
		sqlDB.SetMaxOpenConns(mp.Config.MaxOpenConns)
		sqlDB.SetConnMaxLifetime(time.Second * time.Duration(mp.Config.ConnMaxLifetime))
	}
	mp.Client = db
	mp.ParentDB = mp.Client

	//postgres automigrate has many bugs, so we create tables with sql
	for _, ddl := range pgSchemas {
		if err = mp.Client.Exec(ddl).Error; err != nil {
			return errors.Wrap(err, "")
		}
	}
	return nil
}

func (mp *PostgresPersistent) UnmarshalConfig(configMap map[string]interface{}) interface{} {
	var config PostgresConfig
	data, err := json.Marshal(configMap)
	if err != nil {
		log.Logger.Errorf("marshal postgres configMap failed:%v", err)
		return nil
	}
	if err = json.Unmarshal(data, &config); err != nil {
		log.Logger.Errorf("unmarshal postgres config failed:%v", err)
		return nil
	}
	return config
}

func (mp *PostgresPersistent) Begin() error {
	if mp.Client != mp.ParentDB {
		return repository.ErrTransActionBegin
	}
	tx := mp.Client.Begin()
	mp.Client = tx
	return tx.Error
}

func (mp *PostgresPersistent) Rollback() error {
	if mp.Client == mp.ParentDB {
		return repository.ErrTransActionEnd
	}
	tx := mp.Client.Rollback()
	mp.Client = mp.ParentDB
	return tx.Error
}

func (mp *PostgresPersistent) Commit() error {
	if mp.Client == mp.ParentDB {
		return repository.ErrTransActionEnd
	}
	tx := mp.Client.Commit()
	mp.Client = mp.ParentDB
	return tx.Error
}

func (mp *PostgresPersistent) Ping() error {
	sqlDB, err := mp.ParentDB.DB()
	if err != nil {
		return errors.Wrap(err, "")
	}
	return sqlDB.Ping()
}

func (mp *PostgresPersistent) CreateRecord(record model.Record) error {
	if mp.RecordExists(record.Id) {
		return repository.ErrRecordExists
	}
	tx := mp.Client.Create(recordToTable(record))
	return wrapError(tx.Error)
}

func (mp *PostgresPersistent) UpsertRecord(record model.Record) error {
	if !mp.RecordExists(record.Id) {
		tx := mp.Client.Create(recordToTable(record))
		return wrapError(tx.Error)
	}
	table := recordToTable(record)
	tx := mp.Client.Model(TblRecord{}).Where("id = ?", record.Id).Updates(map[string]interface{}{
		"kind":       table.Kind,
		"payload":    table.Payload,
		"updated_at": table.UpdatedAt,
	})
	return wrapError(tx.Error)
}

func (mp *PostgresPersistent) GetRecordById(id string) (model.Record, error) {
	var table TblRecord
	tx := mp.Client.Where("id = ?", id).First(&table)
	if tx.Error != nil {
		return model.Record{}, wrapError(tx.Error)
	}
	return tableToRecord(table), nil
}

func (mp *PostgresPersistent) RecordExists(id string) bool {
	_, err := mp.GetRecordById(id)
	return err == nil
}

func (mp *PostgresPersistent) GetRecentRecords(limit int) ([]model.Record, error) {
	var tables []TblRecord
	tx := mp.Client.Order("created_at DESC").Limit(limit).Find(&tables)
	if tx.Error != nil && tx.Error != gorm.ErrRecordNotFound {
		return nil, errors.Wrap(tx.Error, "")
	}
	records := make([]model.Record, 0, len(tables))
	for _, table := range tables {
		records = append(records, tableToRecord(table))
	}
	return records, nil
}

func (mp *PostgresPersistent) CountRecordsSince(since time.Time) (int64, error) {
	var count int64
	tx := mp.Client.Model(TblRecord{}).Where("created_at > ?", since).Count(&count)
	return count, wrapError(tx.Error)
}

func (mp *PostgresPersistent) GetConfigEntry(key, scope string) (model.ConfigEntry, error) {
	var table TblConfigEntry
	tx := mp.Client.Where("key = ? AND scope = ?", key, scope).First(&table)
	if tx.Error != nil {
		return model.ConfigEntry{}, wrapError(tx.Error)
	}
	return model.ConfigEntry{
		Key:       table.Key,
		Scope:     table.Scope,
		Value:     table.Value,
		UpdatedAt: table.UpdatedAt,
	}, nil
}

func (mp *PostgresPersistent) SetConfigEntry(entry model.ConfigEntry) error {
	table := TblConfigEntry{
		Key:       entry.Key,
		Scope:     entry.Scope,
		Value:     entry.Value,
		UpdatedAt: time.Now(),
	}
	if _, err := mp.GetConfigEntry(entry.Key, entry.Scope); err != nil {
		tx := mp.Client.Create(&table)
		return wrapError(tx.Error)
	}
	tx := mp.Client.Model(TblConfigEntry{}).
		Where("key = ? AND scope = ?", entry.Key, entry.Scope).
		Updates(map[string]interface{}{"value": table.Value, "updated_at": table.UpdatedAt})
	return wrapError(tx.Error)
}

func (mp *PostgresPersistent) CreateAuditReport(report model.ConsistencyReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return errors.Wrap(err, "")
	}
	table := TblAuditReport{
		Report:    string(data),
		CreatedAt: report.CreatedAt,
	}
	tx := mp.Client.Create(&table)
	return wrapError(tx.Error)
}

func (mp *PostgresPersistent) GetRecentAuditReports(limit int) ([]model.ConsistencyReport, error) {
	var tables []TblAuditReport
	tx := mp.Client.Order("created_at DESC").Limit(limit).Find(&tables)
	if tx.Error != nil && tx.Error != gorm.ErrRecordNotFound {
		return nil, errors.Wrap(tx.Error, "")
	}
	reports := make([]model.ConsistencyReport, 0, len(tables))
	for _, table := range tables {
		var report model.ConsistencyReport
		if err := json.Unmarshal([]byte(table.Report), &report); err != nil {
			return nil, errors.Wrap(err, "")
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (mp *PostgresPersistent) GetSchemaVersions() ([]model.SchemaVersionRecord, error) {
	var tables []TblSchemaVersion
	tx := mp.Client.Order("version ASC").Find(&tables)
	if tx.Error != nil && tx.Error != gorm.ErrRecordNotFound {
		return nil, errors.Wrap(tx.Error, "")
	}
	records := make([]model.SchemaVersionRecord, 0, len(tables))
	for _, table := range tables {
		records = append(records, model.SchemaVersionRecord{
			Version:     table.Version,
			UnitId:      table.UnitId,
			Name:        table.Name,
			Checksum:    table.Checksum,
			AppliedAt:   table.AppliedAt,
			DurationMs:  table.DurationMs,
			RollbackSql: table.RollbackSql,
			RolledBack:  table.RolledBack,
		})
	}
	return records, nil
}

func (mp *PostgresPersistent) GetCurrentVersion() (int64, error) {
	var table TblSchemaVersion
	tx := mp.Client.Where("rolled_back = ?", false).Order("version DESC").First(&table)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, errors.Wrap(tx.Error, "")
	}
	return table.Version, nil
}

func (mp *PostgresPersistent) CreateSchemaVersion(record model.SchemaVersionRecord) error {
	table := TblSchemaVersion{
		Version:     record.Version,
		UnitId:      record.UnitId,
		Name:        record.Name,
		Checksum:    record.Checksum,
		AppliedAt:   record.AppliedAt,
		DurationMs:  record.DurationMs,
		RollbackSql: record.RollbackSql,
		RolledBack:  record.RolledBack,
	}
	tx := mp.Client.Create(&table)
	return wrapError(tx.Error)
}

func (mp *PostgresPersistent) MarkRolledBack(version int64) error {
	tx := mp.Client.Model(TblSchemaVersion{}).Where("version = ?", version).
		Update("rolled_back", true)
	if tx.Error == nil && tx.RowsAffected == 0 {
		return repository.ErrRecordNotFound
	}
	return wrapError(tx.Error)
}

// AcquireLock inserts the advisory lock row, reclaiming it first when the
// previous holder's expiry has passed. A live lock yields ErrLockHeld.
func (mp *PostgresPersistent) AcquireLock(lock model.MigrationLock) error {
	return mp.Client.Transaction(func(tx *gorm.DB) error {
		var row TblMigrationLock
		err := tx.Where("lock_id = ?", lock.LockId).First(&row).Error
		if err == nil {
			if row.ExpiresAt.After(time.Now()) {
				return repository.ErrLockHeld
			}
			// stale lock from a crashed holder, reclaim it
			if err = tx.Where("lock_id = ?", lock.LockId).Delete(&TblMigrationLock{}).Error; err != nil {
				return errors.Wrap(err, "")
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Wrap(err, "")
		}
		return tx.Create(&TblMigrationLock{
			LockId:    lock.LockId,
			Holder:    lock.Holder,
			LockedAt:  lock.LockedAt,
			ExpiresAt: lock.ExpiresAt,
		}).Error
	})
}

func (mp *PostgresPersistent) ReleaseLock(lockId, holder string) error {
	tx := mp.Client.Where("lock_id = ? AND holder = ?", lockId, holder).
		Delete(&TblMigrationLock{})
	return wrapError(tx.Error)
}

func (mp *PostgresPersistent) Exec(sql string) error {
	tx := mp.Client.Exec(sql)
	return wrapError(tx.Error)
}

func recordToTable(record model.Record) *TblRecord {
	now := time.Now()
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return &TblRecord{
		Id:        record.Id,
		Kind:      record.Kind,
		Payload:   record.Payload,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}
}

func tableToRecord(table TblRecord) model.Record {
	return model.Record{
		Id:        table.Id,
		Kind:      table.Kind,
		Payload:   table.Payload,
		CreatedAt: table.CreatedAt,
		UpdatedAt: table.UpdatedAt,
	}
}

func wrapError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = repository.ErrRecordNotFound
	}
	return err
}
