package mysql

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dualtier/dtman/log"
	"github.com/dualtier/dtman/model"
	"github.com/dualtier/dtman/repository"
	"github.com/pkg/errors"
	driver "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"moul.io/zapgorm2"
)

type MysqlPersistent struct {
	Config   MysqlConfig
	Client   *gorm.DB
	ParentDB *gorm.DB
}

func NewMysqlPersistent() *MysqlPersistent {
	return &MysqlPersistent{}
}

func (mp *MysqlPersistent) Init(config interface{}) error {
	if config == nil {
		config = MysqlConfig{}
	}
	mp.Config = config.(MysqlConfig)
	mp.Config.Normalize()
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		mp.Config.User,
		mp.Config.Password,
		mp.Config.Host,
		mp.Config.Port,
		mp.Config.DataBase)

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

	err = mp.Client.Set("gorm:table_options", "ENGINE=InnoDB DEFAULT CHARSET=utf8mb4").AutoMigrate(
		&TblRecord{},
		&TblConfigEntry{},
		&TblAuditReport{},
		&TblSchemaVersion{},
		&TblMigrationLock{},
	)
	if err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func (mp *MysqlPersistent) UnmarshalConfig(configMap map[string]interface{}) interface{} {
	var config MysqlConfig
	data, err := json.Marshal(configMap)
	if err != nil {
		log.Logger.Errorf("marshal mysql configMap failed:%v", err)
		return nil
	}
	if err = json.Unmarshal(data, &config); err != nil {
		log.Logger.Errorf("unmarshal mysql config failed:%v", err)
		return nil
	}
	return config
}

func (mp *MysqlPersistent) Begin() error {
	if mp.Client != mp.ParentDB {
		return repository.ErrTransActionBegin
	}
	tx := mp.Client.Begin()
	mp.Client = tx
	return tx.Error
}

func (mp *MysqlPersistent) Rollback() error {
	if mp.Client == mp.ParentDB {
		return repository.ErrTransActionEnd
	}
	tx := mp.Client.Rollback()
	mp.Client = mp.ParentDB
	return tx.Error
}

func (mp *MysqlPersistent) Commit() error {
	if mp.Client == mp.ParentDB {
		return repository.ErrTransActionEnd
	}
	tx := mp.Client.Commit()
	mp.Client = mp.ParentDB
	return tx.Error
}

func (mp *MysqlPersistent) Ping() error {
	sqlDB, err := mp.ParentDB.DB()
	if err != nil {
		return errors.Wrap(err, "")
	}
	return sqlDB.Ping()
}

func (mp *MysqlPersistent) CreateRecord(record model.Record) error {
	if mp.RecordExists(record.Id) {
		return repository.ErrRecordExists
	}
	tx := mp.Client.Create(recordToTable(record))
	return wrapError(tx.Error)
}

func (mp *MysqlPersistent) UpsertRecord(record model.Record) error {
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

func (mp *MysqlPersistent) GetRecordById(id string) (model.Record, error) {
	var table TblRecord
	tx := mp.Client.Where("id = ?", id).First(&table)
	if tx.Error != nil {
		return model.Record{}, wrapError(tx.Error)
	}
	return tableToRecord(table), nil
}

func (mp *MysqlPersistent) RecordExists(id string) bool {
	_, err := mp.GetRecordById(id)
	return err == nil
}

func (mp *MysqlPersistent) GetRecentRecords(limit int) ([]model.Record, error) {
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

func (mp *MysqlPersistent) CountRecordsSince(since time.Time) (int64, error) {
	var count int64
	tx := mp.Client.Model(TblRecord{}).Where("created_at > ?", since).Count(&count)
	return count, wrapError(tx.Error)
}

func (mp *MysqlPersistent) GetConfigEntry(key, scope string) (model.ConfigEntry, error) {
	var table TblConfigEntry
	tx := mp.Client.Where("`key` = ? AND scope = ?", key, scope).First(&table)
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

func (mp *MysqlPersistent) SetConfigEntry(entry model.ConfigEntry) error {
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
		Where("`key` = ? AND scope = ?", entry.Key, entry.Scope).
		Updates(map[string]interface{}{"value": table.Value, "updated_at": table.UpdatedAt})
	return wrapError(tx.Error)
}

func (mp *MysqlPersistent) CreateAuditReport(report model.ConsistencyReport) error {
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

func (mp *MysqlPersistent) GetRecentAuditReports(limit int) ([]model.ConsistencyReport, error) {
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

func (mp *MysqlPersistent) GetSchemaVersions() ([]model.SchemaVersionRecord, error) {
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

func (mp *MysqlPersistent) GetCurrentVersion() (int64, error) {
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

func (mp *MysqlPersistent) CreateSchemaVersion(record model.SchemaVersionRecord) error {
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

func (mp *MysqlPersistent) MarkRolledBack(version int64) error {
	tx := mp.Client.Model(TblSchemaVersion{}).Where("version = ?", version).
		Update("rolled_back", true)
	if tx.Error == nil && tx.RowsAffected == 0 {
		return repository.ErrRecordNotFound
	}
	return wrapError(tx.Error)
}

func (mp *MysqlPersistent) AcquireLock(lock model.MigrationLock) error {
	return mp.Client.Transaction(func(tx *gorm.DB) error {
		var row TblMigrationLock
		err := tx.Where("lock_id = ?", lock.LockId).First(&row).Error
		if err == nil {
			if row.ExpiresAt.After(time.Now()) {
				return repository.ErrLockHeld
			}
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

func (mp *MysqlPersistent) ReleaseLock(lockId, holder string) error {
	tx := mp.Client.Where("lock_id = ? AND holder = ?", lockId, holder).
		Delete(&TblMigrationLock{})
	return wrapError(tx.Error)
}

func (mp *MysqlPersistent) Exec(sql string) error {
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
