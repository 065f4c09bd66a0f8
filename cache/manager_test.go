package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dualtier/dtman/config"
	"github.com/dualtier/dtman/log"
	"github.com/dualtier/dtman/model"
	"github.com/dualtier/dtman/notify"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	log.InitLoggerConsole()
	m.Run()
}

// fakeServer is one in-memory cache node shared by every connection dialed
// against its address.
type fakeServer struct {
	mu     sync.Mutex
	kv     map[string]string
	hashes map[string]map[string]string
	down   bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		kv:     make(map[string]string),
		hashes: make(map[string]map[string]string),
	}
}

func (fs *fakeServer) setDown(down bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.down = down
}

type fakeConn struct {
	srv *fakeServer
}

var errNodeDown = errors.New("connection refused")

func (fc *fakeConn) check() error {
	if fc.srv.down {
		return errNodeDown
	}
	return nil
}

func (fc *fakeConn) Get(ctx context.Context, key string) (string, error) {
	fc.srv.mu.Lock()
	defer fc.srv.mu.Unlock()
	if err := fc.check(); err != nil {
		return "", err
	}
	v, ok := fc.srv.kv[key]
	if !ok {
		return "", ErrKeyMiss
	}
	return v, nil
}

func (fc *fakeConn) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	fc.srv.mu.Lock()
	defer fc.srv.mu.Unlock()
	if err := fc.check(); err != nil {
		return err
	}
	fc.srv.kv[key] = value
	return nil
}

func (fc *fakeConn) HGet(ctx context.Context, key, field string) (string, error) {
	fc.srv.mu.Lock()
	defer fc.srv.mu.Unlock()
	if err := fc.check(); err != nil {
		return "", err
	}
	v, ok := fc.srv.hashes[key][field]
	if !ok {
		return "", ErrKeyMiss
	}
	return v, nil
}

func (fc *fakeConn) HSet(ctx context.Context, key, field, value string) error {
	fc.srv.mu.Lock()
	defer fc.srv.mu.Unlock()
	if err := fc.check(); err != nil {
		return err
	}
	if fc.srv.hashes[key] == nil {
		fc.srv.hashes[key] = make(map[string]string)
	}
	fc.srv.hashes[key][field] = value
	return nil
}

func (fc *fakeConn) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	fc.srv.mu.Lock()
	defer fc.srv.mu.Unlock()
	if err := fc.check(); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(fc.srv.hashes[key]))
	for k, v := range fc.srv.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (fc *fakeConn) HDel(ctx context.Context, key, field string) error {
	fc.srv.mu.Lock()
	defer fc.srv.mu.Unlock()
	if err := fc.check(); err != nil {
		return err
	}
	delete(fc.srv.hashes[key], field)
	return nil
}

func (fc *fakeConn) Del(ctx context.Context, key string) error {
	fc.srv.mu.Lock()
	defer fc.srv.mu.Unlock()
	if err := fc.check(); err != nil {
		return err
	}
	delete(fc.srv.kv, key)
	return nil
}

func (fc *fakeConn) Exists(ctx context.Context, key string) (bool, error) {
	fc.srv.mu.Lock()
	defer fc.srv.mu.Unlock()
	if err := fc.check(); err != nil {
		return false, err
	}
	_, ok := fc.srv.kv[key]
	return ok, nil
}

func (fc *fakeConn) Ping(ctx context.Context) error {
	fc.srv.mu.Lock()
	defer fc.srv.mu.Unlock()
	return fc.check()
}

func (fc *fakeConn) Close() error { return nil }

type fakeCluster struct {
	servers map[string]*fakeServer
}

func newFakeCluster(addrs ...string) *fakeCluster {
	fc := &fakeCluster{servers: make(map[string]*fakeServer)}
	for _, addr := range addrs {
		fc.servers[addr] = newFakeServer()
	}
	return fc
}

func (fc *fakeCluster) factory(ep *model.Endpoint, cfg *config.CacheConfig) Conn {
	return &fakeConn{srv: fc.servers[ep.Addr()]}
}

func testCacheConfig() *config.CacheConfig {
	return &config.CacheConfig{
		Endpoints:           []string{"p1:6379"},
		FallbackEndpoints:   []string{"f1:6379"},
		ConnectTimeout:      200,
		CommandTimeout:      200,
		FailureThreshold:    5,
		RecoveryTimeout:     60,
		SuccessThreshold:    3,
		FailoverEnabled:     true,
		HealthCheckInterval: 30,
		OfflineThreshold:    2,
	}
}

func newTestManager(t *testing.T, cluster *fakeCluster, cfg *config.CacheConfig) *ClusterManager {
	t.Helper()
	cm, err := newClusterManager(cfg, notify.NewNotifier(&config.NotifyConfig{}), cluster.factory)
	require.NoError(t, err)
	return cm
}

func TestManagerRoundTrip(t *testing.T) {
	cluster := newFakeCluster("p1:6379", "f1:6379")
	cm := newTestManager(t, cluster, testCacheConfig())
	defer cm.Stop()
	ctx := context.Background()

	assert.True(t, cm.Set(ctx, "k", "v", 60))
	val, ok := cm.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", val)

	assert.True(t, cm.Exists(ctx, "k"))
	assert.True(t, cm.Delete(ctx, "k"))
	assert.False(t, cm.Exists(ctx, "k"))

	assert.True(t, cm.HashSet(ctx, "h", "f", "1"))
	val, ok = cm.HashGet(ctx, "h", "f")
	assert.True(t, ok)
	assert.Equal(t, "1", val)
	all, ok := cm.HashGetAll(ctx, "h")
	assert.True(t, ok)
	assert.Equal(t, map[string]string{"f": "1"}, all)

	assert.True(t, cm.HashDelete(ctx, "h", "f"))
	all, ok = cm.HashGetAll(ctx, "h")
	assert.True(t, ok)
	assert.Empty(t, all)
}

func TestManagerMissIsNotAnError(t *testing.T) {
	cluster := newFakeCluster("p1:6379", "f1:6379")
	cm := newTestManager(t, cluster, testCacheConfig())
	defer cm.Stop()

	val, ok := cm.Get(context.Background(), "nope")
	assert.False(t, ok)
	assert.Equal(t, "", val)

	_, ok = cm.HashGet(context.Background(), "nope", "f")
	assert.False(t, ok)

	// misses never move the breaker
	assert.Equal(t, StateClosed, cm.BreakerState())
	assert.Equal(t, 0, cm.breaker.Failures())
	assert.Equal(t, uint64(2), cm.Metrics().Misses)
}

func TestManagerSkipsNodesDownAtStartup(t *testing.T) {
	cluster := newFakeCluster("p1:6379", "f1:6379")
	cluster.servers["p1:6379"].setDown(true)
	cm := newTestManager(t, cluster, testCacheConfig())
	defer cm.Stop()

	health := cm.HealthStatus()
	assert.Equal(t, "f1:6379", health.Active)
	assert.True(t, cm.Set(context.Background(), "k", "v", 60))
}

func TestManagerFailsOverWhenActiveGoesOffline(t *testing.T) {
	cluster := newFakeCluster("p1:6379", "f1:6379")
	cm := newTestManager(t, cluster, testCacheConfig())
	defer cm.Stop()
	ctx := context.Background()

	require.Equal(t, "p1:6379", cm.HealthStatus().Active)
	cluster.servers["p1:6379"].setDown(true)

	// OfflineThreshold failures push p1 offline and trigger the failover
	assert.False(t, cm.Set(ctx, "k", "v", 60))
	assert.False(t, cm.Set(ctx, "k", "v", 60))

	assert.Equal(t, "f1:6379", cm.HealthStatus().Active)
	assert.Equal(t, uint64(1), cm.Metrics().Failovers)
	assert.True(t, cm.Set(ctx, "k", "v", 60))
	val, ok := cm.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", val)
}

func TestManagerAllNodesDown(t *testing.T) {
	cluster := newFakeCluster("p1:6379", "f1:6379")
	for _, srv := range cluster.servers {
		srv.setDown(true)
	}
	cm := newTestManager(t, cluster, testCacheConfig())
	defer cm.Stop()
	ctx := context.Background()

	// zero values, never errors or panics
	val, ok := cm.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, "", val)
	assert.False(t, cm.Set(ctx, "k", "v", 60))
	assert.False(t, cm.Exists(ctx, "k"))

	// enough consecutive failures open the breaker and shed load
	for i := 0; i < 10; i++ {
		cm.Set(ctx, "k", "v", 60)
	}
	assert.Equal(t, StateOpen, cm.BreakerState())
}

func TestManagerRecoversAfterProbe(t *testing.T) {
	cluster := newFakeCluster("p1:6379", "f1:6379")
	cluster.servers["p1:6379"].setDown(true)
	cm := newTestManager(t, cluster, testCacheConfig())
	defer cm.Stop()

	require.Equal(t, "f1:6379", cm.HealthStatus().Active)

	// p1 comes back; the next probe cycle reinstates it as selectable
	cluster.servers["p1:6379"].setDown(false)
	cm.probeAll()
	for _, ep := range cm.pool.All() {
		if ep.Addr() == "p1:6379" {
			assert.Equal(t, model.EndpointHealthy, ep.Status)
		}
	}
}
