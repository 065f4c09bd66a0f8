package local

import (
	"os"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/dualtier/dtman/log"
	"github.com/dualtier/dtman/model"
	"github.com/dualtier/dtman/repository"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type PersistentData struct {
	Records        map[string]model.Record              `json:"records"`
	ConfigEntries  map[string]model.ConfigEntry         `json:"config_entries"`
	AuditReports   []model.ConsistencyReport            `json:"audit_reports"`
	SchemaVersions map[int64]model.SchemaVersionRecord  `json:"schema_versions"`
	Locks          map[string]model.MigrationLock       `json:"locks"`
}

// LocalPersistent keeps everything in memory and dumps to a json file on
// commit. Meant for development and tests; Exec is unsupported since there
// is no SQL engine behind it.
type LocalPersistent struct {
	Config        LocalConfig
	InTransAction bool
	Data          PersistentData
	Snapshot      PersistentData
	lock          sync.RWMutex
}

func NewLocalPersistent() *LocalPersistent {
	return &LocalPersistent{}
}

func (lp *LocalPersistent) UnmarshalConfig(configMap map[string]interface{}) interface{} {
	var config LocalConfig
	data, err := json.Marshal(configMap)
	if err != nil {
		log.Logger.Errorf("marshal local configMap failed:%v", err)
		return nil
	}
	if err = json.Unmarshal(data, &config); err != nil {
		log.Logger.Errorf("unmarshal local config failed:%v", err)
		return nil
	}
	return config
}

func (lp *LocalPersistent) Init(config interface{}) error {
	if config == nil {
		config = LocalConfig{}
	}
	lp.Config = config.(LocalConfig)
	lp.Config.Normalize()
	lp.InTransAction = false
	lp.Data = emptyData()
	lp.Snapshot = emptyData()
	return lp.load()
}

func emptyData() PersistentData {
	return PersistentData{
		Records:        make(map[string]model.Record),
		ConfigEntries:  make(map[string]model.ConfigEntry),
		SchemaVersions: make(map[int64]model.SchemaVersionRecord),
		Locks:          make(map[string]model.MigrationLock),
	}
}

func deepCopy(dst, src *PersistentData) error {
	data, err := json.Marshal(src)
	if err != nil {
		return errors.Wrap(err, "")
	}
	*dst = emptyData()
	return json.Unmarshal(data, dst)
}

func (lp *LocalPersistent) Begin() error {
	lp.lock.Lock()
	defer lp.lock.Unlock()
	if lp.InTransAction {
		return repository.ErrTransActionBegin
	}
	lp.InTransAction = true
	return deepCopy(&lp.Snapshot, &lp.Data)
}

func (lp *LocalPersistent) Commit() error {
	lp.lock.Lock()
	defer lp.lock.Unlock()
	if !lp.InTransAction {
		return repository.ErrTransActionEnd
	}
	lp.InTransAction = false
	return lp.dump()
}

func (lp *LocalPersistent) Rollback() error {
	lp.lock.Lock()
	defer lp.lock.Unlock()
	if !lp.InTransAction {
		return repository.ErrTransActionEnd
	}
	lp.InTransAction = false
	return deepCopy(&lp.Data, &lp.Snapshot)
}

func (lp *LocalPersistent) Ping() error {
	return nil
}

func (lp *LocalPersistent) CreateRecord(record model.Record) error {
	lp.lock.Lock()
	defer lp.lock.Unlock()
	if _, ok := lp.Data.Records[record.Id]; ok {
		return repository.ErrRecordExists
	}
	lp.Data.Records[record.Id] = stamped(record)
	return lp.maybeDump()
}

func (lp *LocalPersistent) UpsertRecord(record model.Record) error {
	lp.lock.Lock()
	defer lp.lock.Unlock()
	if old, ok := lp.Data.Records[record.Id]; ok {
		record.CreatedAt = old.CreatedAt
	}
	lp.Data.Records[record.Id] = stamped(record)
	return lp.maybeDump()
}

func (lp *LocalPersistent) GetRecordById(id string) (model.Record, error) {
	lp.lock.RLock()
	defer lp.lock.RUnlock()
	record, ok := lp.Data.Records[id]
	if !ok {
		return model.Record{}, repository.ErrRecordNotFound
	}
	return record, nil
}

func (lp *LocalPersistent) RecordExists(id string) bool {
	_, err := lp.GetRecordById(id)
	return err == nil
}

func (lp *LocalPersistent) GetRecentRecords(limit int) ([]model.Record, error) {
	lp.lock.RLock()
	defer lp.lock.RUnlock()
	records := make([]model.Record, 0, len(lp.Data.Records))
	for _, record := range lp.Data.Records {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (lp *LocalPersistent) CountRecordsSince(since time.Time) (int64, error) {
	lp.lock.RLock()
	defer lp.lock.RUnlock()
	var count int64
	for _, record := range lp.Data.Records {
		if record.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

func configKey(key, scope string) string {
	return scope + "/" + key
}

func (lp *LocalPersistent) GetConfigEntry(key, scope string) (model.ConfigEntry, error) {
	lp.lock.RLock()
	defer lp.lock.RUnlock()
	entry, ok := lp.Data.ConfigEntries[configKey(key, scope)]
	if !ok {
		return model.ConfigEntry{}, repository.ErrRecordNotFound
	}
	return entry, nil
}

func (lp *LocalPersistent) SetConfigEntry(entry model.ConfigEntry) error {
	lp.lock.Lock()
	defer lp.lock.Unlock()
	entry.UpdatedAt = time.Now()
	lp.Data.ConfigEntries[configKey(entry.Key, entry.Scope)] = entry
	return lp.maybeDump()
}

func (lp *LocalPersistent) CreateAuditReport(report model.ConsistencyReport) error {
	lp.lock.Lock()
	defer lp.lock.Unlock()
	lp.Data.AuditReports = append(lp.Data.AuditReports, report)
	return lp.maybeDump()
}

func (lp *LocalPersistent) GetRecentAuditReports(limit int) ([]model.ConsistencyReport, error) {
	lp.lock.RLock()
	defer lp.lock.RUnlock()
	reports := make([]model.ConsistencyReport, len(lp.Data.AuditReports))
	copy(reports, lp.Data.AuditReports)
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].CreatedAt.After(reports[j].CreatedAt)
	})
	if limit > 0 && len(reports) > limit {
		reports = reports[:limit]
	}
	return reports, nil
}

func (lp *LocalPersistent) GetSchemaVersions() ([]model.SchemaVersionRecord, error) {
	lp.lock.RLock()
	defer lp.lock.RUnlock()
	records := make([]model.SchemaVersionRecord, 0, len(lp.Data.SchemaVersions))
	for _, record := range lp.Data.SchemaVersions {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Version < records[j].Version
	})
	return records, nil
}

func (lp *LocalPersistent) GetCurrentVersion() (int64, error) {
	lp.lock.RLock()
	defer lp.lock.RUnlock()
	var current int64
	for _, record := range lp.Data.SchemaVersions {
		if !record.RolledBack && record.Version > current {
			current = record.Version
		}
	}
	return current, nil
}

func (lp *LocalPersistent) CreateSchemaVersion(record model.SchemaVersionRecord) error {
	lp.lock.Lock()
	defer lp.lock.Unlock()
	if _, ok := lp.Data.SchemaVersions[record.Version]; ok {
		return repository.ErrRecordExists
	}
	lp.Data.SchemaVersions[record.Version] = record
	return lp.maybeDump()
}

func (lp *LocalPersistent) MarkRolledBack(version int64) error {
	lp.lock.Lock()
	defer lp.lock.Unlock()
	record, ok := lp.Data.SchemaVersions[version]
	if !ok {
		return repository.ErrRecordNotFound
	}
	record.RolledBack = true
	lp.Data.SchemaVersions[version] = record
	return lp.maybeDump()
}

func (lp *LocalPersistent) AcquireLock(lock model.MigrationLock) error {
	lp.lock.Lock()
	defer lp.lock.Unlock()
	if held, ok := lp.Data.Locks[lock.LockId]; ok {
		if held.ExpiresAt.After(time.Now()) {
			return repository.ErrLockHeld
		}
		// stale lock from a crashed holder, reclaim it
		delete(lp.Data.Locks, lock.LockId)
	}
	lp.Data.Locks[lock.LockId] = lock
	return lp.maybeDump()
}

func (lp *LocalPersistent) ReleaseLock(lockId, holder string) error {
	lp.lock.Lock()
	defer lp.lock.Unlock()
	if held, ok := lp.Data.Locks[lockId]; ok && held.Holder == holder {
		delete(lp.Data.Locks, lockId)
	}
	return lp.maybeDump()
}

func (lp *LocalPersistent) Exec(sql string) error {
	return repository.ErrUnsupported
}

func stamped(record model.Record) model.Record {
	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	return record
}

func (lp *LocalPersistent) dataPath() string {
	return path.Join(lp.Config.DataDir, lp.Config.DataFile)
}

// maybeDump persists outside transactions; inside one, Commit dumps.
func (lp *LocalPersistent) maybeDump() error {
	if lp.InTransAction {
		return nil
	}
	return lp.dump()
}

func (lp *LocalPersistent) dump() error {
	if err := os.MkdirAll(lp.Config.DataDir, 0755); err != nil {
		return errors.Wrap(err, "")
	}
	data, err := json.MarshalIndent(&lp.Data, "", "  ")
	if err != nil {
		return errors.Wrap(err, "")
	}
	return os.WriteFile(lp.dataPath(), data, 0644)
}

func (lp *LocalPersistent) load() error {
	data, err := os.ReadFile(lp.dataPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "")
	}
	if len(data) == 0 {
		return nil
	}
	if err = json.Unmarshal(data, &lp.Data); err != nil {
		return errors.Wrap(err, "")
	}
	if lp.Data.Records == nil {
		lp.Data = emptyData()
	}
	return nil
}
