package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/dualtier/dtman/common"
	"github.com/dualtier/dtman/log"
	"github.com/dualtier/dtman/metrics"
	"github.com/dualtier/dtman/model"
)

// RunConsistencyAudit compares the windowed record population of the cache
// tier against the durable tier and appends a report to the audit log. A
// failed verdict is emitted through the notifier so an operator sees it.
func (co *Coordinator) RunConsistencyAudit(ctx context.Context) (model.ConsistencyReport, error) {
	window := time.Duration(co.cfg.AuditWindow) * time.Second
	since := time.Now().Add(-window)

	durableCount, err := co.ps.CountRecordsSince(since)
	if err != nil {
		metrics.AuditsTotal.WithLabelValues(string(model.AuditFail)).Inc()
		return model.ConsistencyReport{}, err
	}
	cacheCount := co.cacheCountSince(ctx, since)

	report := model.ConsistencyReport{
		CacheCount:      cacheCount,
		DurableCount:    durableCount,
		DriftPercent:    driftPercent(cacheCount, durableCount),
		QueueDepth:      co.queue.Depth(),
		OldestQueuedAge: co.queue.OldestAge(),
		FallbackMode:    co.fallback.Load(),
		CreatedAt:       time.Now(),
	}
	co.judge(&report)

	metrics.AuditsTotal.WithLabelValues(string(report.Verdict)).Inc()
	if err := co.ps.CreateAuditReport(report); err != nil {
		log.Logger.Errorf("persist audit report failed: %v", err)
	}
	if report.Verdict == model.AuditFail {
		co.notifier.Notify("consistency audit failed", map[string]interface{}{
			"drift_percent":     report.DriftPercent,
			"queue_depth":       report.QueueDepth,
			"oldest_queued_age": report.OldestQueuedAge.String(),
		})
	}
	log.Logger.Infof("consistency audit: verdict=%s cache=%d durable=%d drift=%.2f%% queue=%d",
		report.Verdict, report.CacheCount, report.DurableCount, report.DriftPercent, report.QueueDepth)
	return report, nil
}

func (co *Coordinator) RecentAuditReports(limit int) ([]model.ConsistencyReport, error) {
	return co.ps.GetRecentAuditReports(limit)
}

// cacheCountSince counts index entries created inside the audit window.
// Entries older than the record TTL point at keys redis already expired,
// so they are pruned here instead of counted. Unparseable entries are
// skipped rather than failing the audit.
func (co *Coordinator) cacheCountSince(ctx context.Context, since time.Time) int64 {
	index, ok := co.cache.HashGetAll(ctx, recordIndexKey)
	if !ok {
		return 0
	}
	expiredBefore := time.Now().Add(-time.Duration(co.cfg.RecordTTL) * time.Second)
	var count int64
	for id, raw := range index {
		createdAt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			continue
		}
		if createdAt.Before(expiredBefore) {
			co.cache.HashDelete(ctx, recordIndexKey, id)
			continue
		}
		if createdAt.After(since) {
			count++
		}
	}
	return count
}

// driftPercent is the absolute tier difference relative to the durable
// count, rounded to two decimals. An empty durable tier means nothing to
// drift from.
func driftPercent(cacheCount, durableCount int64) float64 {
	if durableCount == 0 {
		return 0
	}
	diff := cacheCount - durableCount
	if diff < 0 {
		diff = -diff
	}
	return common.Decimal(float64(diff) / float64(durableCount) * 100)
}

func (co *Coordinator) judge(report *model.ConsistencyReport) {
	report.Verdict = model.AuditPass
	ceiling := time.Duration(co.cfg.QueueAgeCeiling) * time.Second

	if report.DriftPercent >= co.cfg.DriftWarningPercent {
		report.Verdict = model.AuditWarning
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("tier drift %.2f%% is at or above %.2f%%, consider shortening the sync interval", report.DriftPercent, co.cfg.DriftWarningPercent))
	}
	if report.QueueDepth > co.cfg.MaxSyncBatchSize {
		if report.Verdict == model.AuditPass {
			report.Verdict = model.AuditWarning
		}
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("sync queue depth %d exceeds one batch (%d), durable tier may be slow", report.QueueDepth, co.cfg.MaxSyncBatchSize))
	}
	if report.OldestQueuedAge > ceiling {
		report.Verdict = model.AuditFail
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("oldest queued write is %s old, past the %s ceiling; durable tier writes are not landing", report.OldestQueuedAge, ceiling))
	}
	if report.FallbackMode {
		report.Recommendations = append(report.Recommendations,
			"fallback mode is active, cache tier is bypassed")
	}
}
