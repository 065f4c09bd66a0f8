package cache

import (
	"testing"

	"github.com/dualtier/dtman/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// go-redis dials lazily, so client construction is testable without a
// server.
func TestNewRedisConnClientMode(t *testing.T) {
	ep, err := ParseEndpoint("127.0.0.1:6379", PriorityPrimary)
	require.NoError(t, err)

	cfg := &config.CacheConfig{ConnectTimeout: 200, CommandTimeout: 200}
	conn := newRedisConn(ep, cfg)
	rc, ok := conn.(*redisConn)
	require.True(t, ok)
	_, isCluster := rc.client.(*redis.ClusterClient)
	assert.False(t, isCluster)
	assert.NoError(t, conn.Close())

	cfg.ClusterMode = true
	conn = newRedisConn(ep, cfg)
	rc, ok = conn.(*redisConn)
	require.True(t, ok)
	_, isCluster = rc.client.(*redis.ClusterClient)
	assert.True(t, isCluster)
	assert.NoError(t, conn.Close())
}
