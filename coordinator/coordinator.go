package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dualtier/dtman/config"
	"github.com/dualtier/dtman/log"
	"github.com/dualtier/dtman/metrics"
	"github.com/dualtier/dtman/model"
	"github.com/dualtier/dtman/notify"
	"github.com/dualtier/dtman/repository"
	"github.com/go-basic/uuid"
	jsoniter "github.com/json-iterator/go"
	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	recordKeyPrefix = "dtman:record:"
	recordIndexKey  = "dtman:records:index"
	configKeyPrefix = "dtman:config:"
)

// CacheStore is the slice of the cache cluster manager the coordinator
// needs. Operations report success, not errors; a false return means the
// caller falls through to the durable tier.
type CacheStore interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttlSeconds int) bool
	HashSet(ctx context.Context, key, field, value string) bool
	HashGetAll(ctx context.Context, key string) (map[string]string, bool)
	HashDelete(ctx context.Context, key, field string) bool
	Delete(ctx context.Context, key string) bool
	Exists(ctx context.Context, key string) bool
}

// Coordinator routes reads and writes between the cache tier and the
// durable tier. Writes land in cache first and reach the durable store via
// the background sync queue; in fallback mode the durable store is written
// synchronously and the cache is bypassed.
type Coordinator struct {
	cfg      *config.CoordinatorConfig
	cache    CacheStore
	ps       repository.PersistentMgr
	notifier *notify.Notifier

	queue       *syncQueue
	fallback    atomic.Bool
	configCache *gocache.Cache

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewCoordinator(cfg *config.CoordinatorConfig, cache CacheStore, ps repository.PersistentMgr, notifier *notify.Notifier) *Coordinator {
	co := &Coordinator{
		cfg:         cfg,
		cache:       cache,
		ps:          ps,
		notifier:    notifier,
		queue:       newSyncQueue(),
		configCache: gocache.New(5*time.Minute, 10*time.Minute),
		stopCh:      make(chan struct{}),
	}
	co.fallback.Store(cfg.FallbackMode)
	return co
}

// Start launches the background sync drain loop.
func (co *Coordinator) Start() {
	co.wg.Add(1)
	go func() {
		defer co.wg.Done()
		ticker := time.NewTicker(time.Duration(co.cfg.SyncInterval) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				co.drainOnce()
			case <-co.stopCh:
				return
			}
		}
	}()
}

// Stop halts the drain loop and flushes whatever is still queued.
func (co *Coordinator) Stop() {
	close(co.stopCh)
	co.wg.Wait()
	for co.queue.Depth() > 0 {
		if co.drainOnce() == 0 {
			break
		}
	}
}

// Store writes a record. The cache takes the write first; the durable copy
// follows through the sync queue unless fallback mode or dual write forces
// a synchronous durable write.
func (co *Coordinator) Store(ctx context.Context, kind, payload string) model.StoreResult {
	record := model.Record{
		Id:        uuid.New(),
		Kind:      kind,
		Payload:   payload,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if co.fallback.Load() {
		if err := co.writeDurable(record); err != nil {
			log.Logger.Errorf("fallback store %s failed: %v", record.Id, err)
			return model.StoreResult{Success: false, Id: record.Id, Error: err.Error()}
		}
		return model.StoreResult{Success: true, Id: record.Id}
	}

	cached := co.writeCache(ctx, record)
	if !cached {
		// cache refused the write, go straight to the durable tier so the
		// record is not lost
		if err := co.writeDurable(record); err != nil {
			log.Logger.Errorf("store %s failed on both tiers: %v", record.Id, err)
			return model.StoreResult{Success: false, Id: record.Id, Error: err.Error()}
		}
		return model.StoreResult{Success: true, Id: record.Id}
	}

	if co.cfg.DualWriteEnabled {
		if err := co.writeDurable(record); err != nil {
			log.Logger.Warnf("dual write %s failed, queueing for sync: %v", record.Id, err)
			co.queue.Push(model.SyncQueueItem{Kind: kind, Op: model.SyncOpUpsert, Record: record})
		}
	} else {
		co.queue.Push(model.SyncQueueItem{Kind: kind, Op: model.SyncOpUpsert, Record: record})
	}
	return model.StoreResult{Success: true, Id: record.Id}
}

// Fetch reads a record cache-first, falling back to the durable store and
// backfilling the cache on a hit there.
func (co *Coordinator) Fetch(ctx context.Context, id string) (model.Record, error) {
	if !co.fallback.Load() {
		if raw, ok := co.cache.Get(ctx, recordKeyPrefix+id); ok {
			var record model.Record
			if err := json.Unmarshal([]byte(raw), &record); err == nil {
				return record, nil
			}
			log.Logger.Warnf("corrupt cache entry for record %s, falling through", id)
		}
	}
	record, err := co.ps.GetRecordById(id)
	if err != nil {
		return model.Record{}, err
	}
	if !co.fallback.Load() {
		co.writeCache(ctx, record)
	}
	return record, nil
}

// Invalidate evicts a record from the cache tier; the next Fetch will
// backfill it from the durable store. The index entry goes with it so the
// audit's cache-side count stays honest.
func (co *Coordinator) Invalidate(ctx context.Context, id string) bool {
	ok := co.cache.Delete(ctx, recordKeyPrefix+id)
	co.cache.HashDelete(ctx, recordIndexKey, id)
	return ok
}

func (co *Coordinator) ListRecent(limit int) ([]model.Record, error) {
	return co.ps.GetRecentRecords(limit)
}

// GetConfig reads a config entry through a short-lived local cache; the
// durable store stays authoritative.
func (co *Coordinator) GetConfig(key, scope string) (model.ConfigEntry, error) {
	ck := configKeyPrefix + scope + "/" + key
	if v, ok := co.configCache.Get(ck); ok {
		return v.(model.ConfigEntry), nil
	}
	entry, err := co.ps.GetConfigEntry(key, scope)
	if err != nil {
		return model.ConfigEntry{}, err
	}
	co.configCache.SetDefault(ck, entry)
	return entry, nil
}

func (co *Coordinator) SetConfig(entry model.ConfigEntry) error {
	if err := co.ps.SetConfigEntry(entry); err != nil {
		return errors.Wrap(err, "")
	}
	co.configCache.Delete(configKeyPrefix + entry.Scope + "/" + entry.Key)
	return nil
}

// EnableFallback routes all traffic to the durable tier until disabled.
func (co *Coordinator) EnableFallback(reason string) {
	if co.fallback.CompareAndSwap(false, true) {
		log.Logger.Warnf("fallback mode enabled: %s", reason)
		co.notifier.Notify("fallback mode enabled", map[string]interface{}{"reason": reason})
	}
}

// DisableFallback restores cache-first routing and drains any writes that
// queued up while fallback was active.
func (co *Coordinator) DisableFallback() {
	if co.fallback.CompareAndSwap(true, false) {
		log.Logger.Infof("fallback mode disabled")
		co.drainOnce()
	}
}

func (co *Coordinator) FallbackMode() bool {
	return co.fallback.Load()
}

func (co *Coordinator) QueueDepth() int {
	return co.queue.Depth()
}

// drainOnce moves one batch from the sync queue to the durable store.
// Failed items are requeued with their retry count bumped; past the retry
// ceiling they are dropped and surfaced as an error, never retried forever.
func (co *Coordinator) drainOnce() int {
	batch := co.queue.PopBatch(co.cfg.MaxSyncBatchSize)
	if len(batch) == 0 {
		return 0
	}
	synced := 0
	for _, item := range batch {
		err := co.ps.UpsertRecord(item.Record)
		if err == nil {
			metrics.DurableWritesTotal.WithLabelValues("queued", "ok").Inc()
			synced++
			continue
		}
		metrics.DurableWritesTotal.WithLabelValues("queued", "error").Inc()
		item.Retries++
		if item.Retries > co.cfg.MaxSyncRetries {
			metrics.SyncDropsTotal.Inc()
			log.Logger.Errorf("dropping sync item %s after %d retries: %v", item.Record.Id, item.Retries-1, err)
			co.notifier.Notify("sync item dropped", map[string]interface{}{
				"record_id": item.Record.Id,
				"retries":   item.Retries - 1,
				"error":     err.Error(),
			})
			continue
		}
		log.Logger.Warnf("sync %s failed (retry %d/%d): %v", item.Record.Id, item.Retries, co.cfg.MaxSyncRetries, err)
		co.queue.Push(item)
	}
	if synced > 0 {
		log.Logger.Debugf("synced %d record(s) to durable store", synced)
	}
	return synced
}

func (co *Coordinator) writeCache(ctx context.Context, record model.Record) bool {
	data, err := json.Marshal(record)
	if err != nil {
		log.Logger.Errorf("marshal record %s failed: %v", record.Id, err)
		return false
	}
	if !co.cache.Set(ctx, recordKeyPrefix+record.Id, string(data), co.cfg.RecordTTL) {
		return false
	}
	// the index hash backs the audit's cache-side count
	co.cache.HashSet(ctx, recordIndexKey, record.Id, record.CreatedAt.Format(time.RFC3339))
	return true
}

func (co *Coordinator) writeDurable(record model.Record) error {
	if err := co.ps.UpsertRecord(record); err != nil {
		metrics.DurableWritesTotal.WithLabelValues("direct", "error").Inc()
		return errors.Wrap(err, "")
	}
	metrics.DurableWritesTotal.WithLabelValues("direct", "ok").Inc()
	return nil
}
