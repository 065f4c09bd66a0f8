package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArrayDistinct(t *testing.T) {
	arr := []string{"node1", "node2", "node1", "", "node3", "node2"}
	out := ArrayDistinct(arr)
	assert.Equal(t, []string{"node1", "node2", "node3"}, out)
}

func TestGetWithDefault(t *testing.T) {
	assert.Equal(t, 5, GetIntegerwithDefault(0, 5))
	assert.Equal(t, 7, GetIntegerwithDefault(7, 5))
	assert.Equal(t, "local", GetStringwithDefault("", "local"))
	assert.Equal(t, "postgres", GetStringwithDefault("postgres", "local"))
}

func TestMd5CheckSum(t *testing.T) {
	sum := Md5CheckSum("CREATE TABLE records (id TEXT PRIMARY KEY)")
	assert.Len(t, sum, 32)
	assert.Equal(t, sum, Md5CheckSum("CREATE TABLE records (id TEXT PRIMARY KEY)"))
	assert.NotEqual(t, sum, Md5CheckSum("CREATE TABLE records (id TEXT)"))
}
