package model

import "time"

// MigrationUnit is one atomic, versioned schema change loaded from the
// migration directory. A unit is eligible to run only when its version
// exceeds the highest applied version and all dependencies are already
// recorded as applied.
type MigrationUnit struct {
	Id       string   `json:"id"`
	Version  int64    `json:"version"`
	Name     string   `json:"name"`
	Depends  []string `json:"depends"`
	Up       string   `json:"up"`
	Down     string   `json:"down"`
	Checksum string   `json:"checksum"`
	Breaking bool     `json:"breaking"`
}

// SchemaVersionRecord is the durable history row per applied unit. This
// table is the single source of truth for schema state; the engine never
// infers state from live schema objects.
type SchemaVersionRecord struct {
	Version     int64     `json:"version"`
	UnitId      string    `json:"unit_id"`
	Name        string    `json:"name"`
	Checksum    string    `json:"checksum"`
	AppliedAt   time.Time `json:"applied_at"`
	DurationMs  int64     `json:"duration_ms"`
	RollbackSql string    `json:"rollback_sql"`
	RolledBack  bool      `json:"rolled_back"`
}

// MigrationLock is the advisory mutual-exclusion record stored in the
// durable tier. A lock whose expiry has passed is stale and reclaimable.
type MigrationLock struct {
	LockId    string    `json:"lock_id"`
	Holder    string    `json:"holder"`
	LockedAt  time.Time `json:"locked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type UnitOutcome string

const (
	UnitApplied    UnitOutcome = "applied"
	UnitFailed     UnitOutcome = "failed"
	UnitSkipped    UnitOutcome = "skipped"
	UnitRolledBack UnitOutcome = "rolled_back"
)

type MigrationResult struct {
	UnitId     string      `json:"unit_id"`
	Version    int64       `json:"version"`
	Outcome    UnitOutcome `json:"outcome"`
	Error      string      `json:"error,omitempty"`
	DurationMs int64       `json:"duration_ms"`
}

type MigrationStatus struct {
	CurrentVersion int64           `json:"current_version"`
	Applied        []int64         `json:"applied"`
	Pending        []MigrationUnit `json:"pending"`
	Failed         []string        `json:"failed"`
}
