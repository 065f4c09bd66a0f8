package model

import (
	"fmt"
	"time"
)

type EndpointStatus string

const (
	EndpointHealthy  EndpointStatus = "healthy"
	EndpointDegraded EndpointStatus = "degraded"
	EndpointOffline  EndpointStatus = "offline"
)

// Endpoint is one cache cluster node. Created at configuration load,
// mutated by health probes, never deleted.
type Endpoint struct {
	Host       string         `json:"host"`
	Port       int            `json:"port"`
	Password   string         `json:"-"`
	Priority   int            `json:"priority"`
	Status     EndpointStatus `json:"status"`
	Latency    time.Duration  `json:"latency"`
	ErrorCount int            `json:"error_count"`
	LastProbe  time.Time      `json:"last_probe"`
}

func (e *Endpoint) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}
