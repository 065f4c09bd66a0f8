package cache

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
	"github.com/pkg/errors"
)

// Stats is a snapshot of the manager's operation counters.
type Stats struct {
	Ops       uint64 `json:"ops"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Failures  uint64 `json:"failures"`
	Failovers uint64 `json:"failovers"`
}

type HealthStatus struct {
	BreakerState string           `json:"breaker_state"`
	Active       string           `json:"active"`
	Endpoints    []model.Endpoint `json:"endpoints"`
}

// ClusterManager owns the cache endpoint pool, the circuit breaker and the
// active connection. Every operation goes through the breaker; callers get
// zero values on failure, never a panic or an unhandled error.
type ClusterManager struct {
	cfg      *config.CacheConfig
	pool     *endpointPool
	breaker  *CircuitBreaker
	factory  ConnFactory
	notifier *notify.Notifier

	mu       sync.RWMutex
	active   Conn
	activeEp *model.Endpoint

	failoverMu sync.Mutex

	ops       uint64
	hits      uint64
	misses    uint64
	failures  uint64
	failovers uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewClusterManager(cfg *config.CacheConfig, notifier *notify.Notifier) (*ClusterManager, error) {
	return newClusterManager(cfg, notifier, newRedisConn)
}

func newClusterManager(cfg *config.CacheConfig, notifier *notify.Notifier, factory ConnFactory) (*ClusterManager, error) {
	pool, err := newEndpointPool(cfg)
	if err != nil {
		return nil, err
	}
	cm := &ClusterManager{
		cfg:      cfg,
		pool:     pool,
		breaker:  NewCircuitBreaker(cfg.FailureThreshold, cfg.SuccessThreshold, time.Duration(cfg.RecoveryTimeout)*time.Second),
		factory:  factory,
		notifier: notifier,
		stopCh:   make(chan struct{}),
	}
	// classify endpoints before first selection; nodes down at startup
	// must not receive traffic
	cm.probeAll()
	if err := cm.reconnect(); err != nil {
		log.Logger.Warnf("no cache endpoint reachable at startup: %v", err)
	}
	return cm, nil
}

// Start launches the periodic health probe loop.
func (cm *ClusterManager) Start() {
	cm.wg.Add(1)
	go func() {
		defer cm.wg.Done()
		ticker := time.NewTicker(time.Duration(cm.cfg.HealthCheckInterval) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cm.probeAll()
				cm.ensureActive()
			case <-cm.stopCh:
				return
			}
		}
	}()
}

func (cm *ClusterManager) Stop() {
	close(cm.stopCh)
	cm.wg.Wait()
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.active != nil {
		_ = cm.active.Close()
		cm.active = nil
		cm.activeEp = nil
	}
}

// probeAll pings every endpoint on a transient connection and updates its
// status and latency. Probing is independent of request traffic.
func (cm *ClusterManager) probeAll() {
	for _, ep := range cm.pool.All() {
		conn := cm.factory(ep, cm.cfg)
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cm.cfg.ConnectTimeout)*time.Millisecond)
		start := time.Now()
		err := conn.Ping(ctx)
		cancel()
		_ = conn.Close()
		if err != nil {
			status := cm.pool.MarkFailure(ep, cm.cfg.OfflineThreshold)
			log.Logger.Debugf("probe %s failed (%s): %v", ep.Addr(), status, err)
			continue
		}
		cm.pool.MarkSuccess(ep, time.Since(start))
	}
}

// ensureActive reconnects when the active endpoint has been probed out of
// the selectable set.
func (cm *ClusterManager) ensureActive() {
	cm.mu.RLock()
	ep := cm.activeEp
	cm.mu.RUnlock()
	if ep == nil || ep.Status == model.EndpointOffline {
		if err := cm.reconnect(); err != nil {
			log.Logger.Debugf("reconnect skipped: %v", err)
		}
	}
}

// reconnect dials the best-ranked selectable endpoint and swaps it in
// atomically. Concurrent callers keep using the old handle until the swap.
func (cm *ClusterManager) reconnect() error {
	ep := cm.pool.Select()
	if ep == nil {
		return ErrCacheUnavailable
	}
	conn := cm.factory(ep, cm.cfg)
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cm.cfg.ConnectTimeout)*time.Millisecond)
	err := conn.Ping(ctx)
	cancel()
	if err != nil {
		_ = conn.Close()
		cm.pool.MarkFailure(ep, cm.cfg.OfflineThreshold)
		return errors.Wrapf(err, "connect %s", ep.Addr())
	}

	cm.mu.Lock()
	old := cm.active
	cm.active = conn
	cm.activeEp = ep
	cm.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	log.Logger.Infof("cache active endpoint is %s (priority %d)", ep.Addr(), ep.Priority)
	return nil
}

func (cm *ClusterManager) conn() (Conn, *model.Endpoint, error) {
	cm.mu.RLock()
	conn, ep := cm.active, cm.activeEp
	cm.mu.RUnlock()
	if conn != nil {
		return conn, ep, nil
	}
	if err := cm.reconnect(); err != nil {
		return nil, nil, ErrCacheUnavailable
	}
	cm.mu.RLock()
	conn, ep = cm.active, cm.activeEp
	cm.mu.RUnlock()
	if conn == nil {
		return nil, nil, ErrCacheUnavailable
	}
	return conn, ep, nil
}

// execute runs op against the active connection behind the circuit
// breaker. A key miss is not a failure. A timeout counts as a failure for
// breaker accounting like any other error.
func (cm *ClusterManager) execute(ctx context.Context, op func(context.Context, Conn) error) error {
	if err := cm.breaker.Allow(); err != nil {
		return err
	}
	atomic.AddUint64(&cm.ops, 1)

	conn, ep, err := cm.conn()
	if err != nil {
		cm.breaker.OnFailure()
		atomic.AddUint64(&cm.failures, 1)
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, time.Duration(cm.cfg.CommandTimeout)*time.Millisecond)
	err = op(opCtx, conn)
	cancel()

	if err != nil && !errors.Is(err, ErrKeyMiss) {
		cm.breaker.OnFailure()
		atomic.AddUint64(&cm.failures, 1)
		status := cm.pool.MarkFailure(ep, cm.cfg.OfflineThreshold)
		if cm.cfg.FailoverEnabled && status == model.EndpointOffline {
			cm.failover(ep)
		}
		return err
	}
	cm.breaker.OnSuccess()
	return err
}

// failover closes the failed active connection, walks the standby
// endpoints, and as a last resort re-probes everything and reconnects to
// the best-ranked healthy endpoint. The event is emitted, not just logged.
func (cm *ClusterManager) failover(failed *model.Endpoint) {
	cm.failoverMu.Lock()
	defer cm.failoverMu.Unlock()

	cm.mu.Lock()
	if cm.activeEp != failed {
		// another caller already swapped the handle
		cm.mu.Unlock()
		return
	}
	old := cm.active
	cm.active = nil
	cm.activeEp = nil
	cm.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	atomic.AddUint64(&cm.failovers, 1)
	metrics.FailoversTotal.Inc()

	var target *model.Endpoint
	for _, ep := range cm.pool.Others(failed) {
		conn := cm.factory(ep, cm.cfg)
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cm.cfg.ConnectTimeout)*time.Millisecond)
		start := time.Now()
		err := conn.Ping(ctx)
		cancel()
		if err != nil {
			_ = conn.Close()
			cm.pool.MarkFailure(ep, cm.cfg.OfflineThreshold)
			continue
		}
		cm.pool.MarkSuccess(ep, time.Since(start))
		cm.mu.Lock()
		cm.active = conn
		cm.activeEp = ep
		cm.mu.Unlock()
		target = ep
		break
	}

	if target == nil {
		// no standby answered; re-run health checks and take the best
		cm.probeAll()
		if err := cm.reconnect(); err == nil {
			cm.mu.RLock()
			target = cm.activeEp
			cm.mu.RUnlock()
		}
	}

	fields := map[string]interface{}{"failed": failed.Addr()}
	if target != nil {
		fields["active"] = target.Addr()
		log.Logger.Warnf("cache failover: %s -> %s", failed.Addr(), target.Addr())
	} else {
		fields["active"] = ""
		log.Logger.Errorf("cache failover: %s -> no endpoint available", failed.Addr())
	}
	cm.notifier.Notify("cache endpoint failover", fields)
}

func (cm *ClusterManager) Get(ctx context.Context, key string) (string, bool) {
	var val string
	err := cm.execute(ctx, func(ctx context.Context, c Conn) error {
		v, err := c.Get(ctx, key)
		val = v
		return err
	})
	if errors.Is(err, ErrKeyMiss) {
		atomic.AddUint64(&cm.misses, 1)
		metrics.CacheMisses.Inc()
		return "", false
	}
	if err != nil {
		cm.opFailed("get", err)
		return "", false
	}
	atomic.AddUint64(&cm.hits, 1)
	metrics.CacheHits.Inc()
	metrics.CacheOpsTotal.WithLabelValues("get", "ok").Inc()
	return val, true
}

func (cm *ClusterManager) Set(ctx context.Context, key, value string, ttlSeconds int) bool {
	err := cm.execute(ctx, func(ctx context.Context, c Conn) error {
		return c.Set(ctx, key, value, time.Duration(ttlSeconds)*time.Second)
	})
	if err != nil {
		cm.opFailed("set", err)
		return false
	}
	metrics.CacheOpsTotal.WithLabelValues("set", "ok").Inc()
	return true
}

func (cm *ClusterManager) HashGet(ctx context.Context, key, field string) (string, bool) {
	var val string
	err := cm.execute(ctx, func(ctx context.Context, c Conn) error {
		v, err := c.HGet(ctx, key, field)
		val = v
		return err
	})
	if errors.Is(err, ErrKeyMiss) {
		atomic.AddUint64(&cm.misses, 1)
		metrics.CacheMisses.Inc()
		return "", false
	}
	if err != nil {
		cm.opFailed("hget", err)
		return "", false
	}
	atomic.AddUint64(&cm.hits, 1)
	metrics.CacheOpsTotal.WithLabelValues("hget", "ok").Inc()
	return val, true
}

func (cm *ClusterManager) HashSet(ctx context.Context, key, field, value string) bool {
	err := cm.execute(ctx, func(ctx context.Context, c Conn) error {
		return c.HSet(ctx, key, field, value)
	})
	if err != nil {
		cm.opFailed("hset", err)
		return false
	}
	metrics.CacheOpsTotal.WithLabelValues("hset", "ok").Inc()
	return true
}

func (cm *ClusterManager) HashGetAll(ctx context.Context, key string) (map[string]string, bool) {
	var val map[string]string
	err := cm.execute(ctx, func(ctx context.Context, c Conn) error {
		v, err := c.HGetAll(ctx, key)
		val = v
		return err
	})
	if err != nil {
		cm.opFailed("hgetall", err)
		return nil, false
	}
	metrics.CacheOpsTotal.WithLabelValues("hgetall", "ok").Inc()
	return val, true
}

func (cm *ClusterManager) HashDelete(ctx context.Context, key, field string) bool {
	err := cm.execute(ctx, func(ctx context.Context, c Conn) error {
		return c.HDel(ctx, key, field)
	})
	if err != nil {
		cm.opFailed("hdel", err)
		return false
	}
	metrics.CacheOpsTotal.WithLabelValues("hdel", "ok").Inc()
	return true
}

func (cm *ClusterManager) Delete(ctx context.Context, key string) bool {
	err := cm.execute(ctx, func(ctx context.Context, c Conn) error {
		return c.Del(ctx, key)
	})
	if err != nil {
		cm.opFailed("del", err)
		return false
	}
	metrics.CacheOpsTotal.WithLabelValues("del", "ok").Inc()
	return true
}

func (cm *ClusterManager) Exists(ctx context.Context, key string) bool {
	var found bool
	err := cm.execute(ctx, func(ctx context.Context, c Conn) error {
		v, err := c.Exists(ctx, key)
		found = v
		return err
	})
	if err != nil {
		cm.opFailed("exists", err)
		return false
	}
	metrics.CacheOpsTotal.WithLabelValues("exists", "ok").Inc()
	return found
}

func (cm *ClusterManager) opFailed(op string, err error) {
	metrics.CacheOpsTotal.WithLabelValues(op, "error").Inc()
	if errors.Is(err, ErrBreakerOpen) {
		log.Logger.Debugf("cache %s rejected: %v", op, err)
		return
	}
	log.Logger.Warnf("cache %s failed: %v", op, err)
}

func (cm *ClusterManager) HealthStatus() HealthStatus {
	cm.mu.RLock()
	active := ""
	if cm.activeEp != nil {
		active = cm.activeEp.Addr()
	}
	cm.mu.RUnlock()
	return HealthStatus{
		BreakerState: cm.breaker.State().String(),
		Active:       active,
		Endpoints:    cm.pool.Snapshot(),
	}
}

func (cm *ClusterManager) Metrics() Stats {
	return Stats{
		Ops:       atomic.LoadUint64(&cm.ops),
		Hits:      atomic.LoadUint64(&cm.hits),
		Misses:    atomic.LoadUint64(&cm.misses),
		Failures:  atomic.LoadUint64(&cm.failures),
		Failovers: atomic.LoadUint64(&cm.failovers),
	}
}

func (cm *ClusterManager) BreakerState() BreakerState {
	return cm.breaker.State()
}
