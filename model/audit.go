package model

import "time"

type AuditVerdict string

const (
	AuditPass    AuditVerdict = "pass"
	AuditWarning AuditVerdict = "warning"
	AuditFail    AuditVerdict = "fail"
)

// ConsistencyReport is a point-in-time snapshot of tier drift. Reports
// are immutable once created and appended to the audit log for trend
// analysis.
type ConsistencyReport struct {
	CacheCount      int64         `json:"cache_count"`
	DurableCount    int64         `json:"durable_count"`
	DriftPercent    float64       `json:"drift_percent"`
	QueueDepth      int           `json:"queue_depth"`
	OldestQueuedAge time.Duration `json:"oldest_queued_age"`
	Verdict         AuditVerdict  `json:"verdict"`
	Recommendations []string      `json:"recommendations"`
	FallbackMode    bool          `json:"fallback_mode"`
	CreatedAt       time.Time     `json:"created_at"`
}
