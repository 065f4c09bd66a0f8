package repository

import (
	"fmt"
	"time"

	"github.com/dualtier/dtman/model"
)

var (
	ErrRecordNotFound   = fmt.Errorf("record not found")
	ErrRecordExists     = fmt.Errorf("record is exists already")
	ErrTransActionBegin = fmt.Errorf("transaction already begin")
	ErrTransActionEnd   = fmt.Errorf("transaction already commit or rollback")
	ErrLockHeld         = fmt.Errorf("migration lock is held by another run")
	ErrUnsupported      = fmt.Errorf("operation not supported by this persistent policy")
)

// Global registry mapping adapter name to the adapter factory
var PersistentRegistry map[string]PersistentFactory = make(map[string]PersistentFactory)

type PersistentFactory interface {
	GetPersistentName() string
	// Create an adapter instance
	CreatePersistent() PersistentMgr
}

// PersistentMgr is the durable tier. It is the long-term source of truth
// for business records, config entries, audit history and schema state.
type PersistentMgr interface {
	UnmarshalConfig(configMap map[string]interface{}) interface{}

	Init(config interface{}) error

	//start transaction
	Begin() error

	//commit transaction
	Commit() error

	Rollback() error

	Ping() error

	//business records, keyed by their stable id
	CreateRecord(record model.Record) error
	UpsertRecord(record model.Record) error
	GetRecordById(id string) (model.Record, error)
	RecordExists(id string) bool
	GetRecentRecords(limit int) ([]model.Record, error)
	CountRecordsSince(since time.Time) (int64, error)

	//config entries, keyed by (key, scope)
	GetConfigEntry(key, scope string) (model.ConfigEntry, error)
	SetConfigEntry(entry model.ConfigEntry) error

	//append-only consistency audit log
	CreateAuditReport(report model.ConsistencyReport) error
	GetRecentAuditReports(limit int) ([]model.ConsistencyReport, error)

	//schema version history, source of truth for migration state
	GetSchemaVersions() ([]model.SchemaVersionRecord, error)
	GetCurrentVersion() (int64, error)
	CreateSchemaVersion(record model.SchemaVersionRecord) error
	MarkRolledBack(version int64) error

	//advisory migration lock with expiry reclaim
	AcquireLock(lock model.MigrationLock) error
	ReleaseLock(lockId, holder string) error

	//raw SQL execution for migration units
	Exec(sql string) error
}

func RegistePersistent(fn func() PersistentFactory) {
	if fn == nil {
		return
	}
	factory := fn()
	name := factory.GetPersistentName()
	if name == "" {
		panic("Empty persistent name when registe persistent factory")
	}
	PersistentRegistry[name] = factory
}

func GetPersistentByName(name string) PersistentMgr {
	if factory, ok := PersistentRegistry[name]; ok {
		return factory.CreatePersistent()
	}
	return nil
}
