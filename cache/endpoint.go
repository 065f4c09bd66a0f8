package cache

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dualtier/dtman/common"
	"github.com/dualtier/dtman/config"
	"github.com/dualtier/dtman/model"
	"github.com/pkg/errors"
)

// Default priorities per configuration tier. Higher wins ties.
const (
	PriorityPrimary  = 100
	PriorityFallback = 50
	PriorityBackup   = 10
)

// ParseEndpoint parses a host:port[:password][@priority] connection string.
func ParseEndpoint(entry string, priority int) (*model.Endpoint, error) {
	raw := entry
	if at := strings.LastIndex(entry, "@"); at >= 0 {
		p, err := strconv.Atoi(entry[at+1:])
		if err != nil {
			return nil, errors.Errorf("invalid priority in endpoint %q", raw)
		}
		priority = p
		entry = entry[:at]
	}
	parts := strings.SplitN(entry, ":", 3)
	if len(parts) < 2 {
		return nil, errors.Errorf("invalid endpoint %q, want host:port[:password]", raw)
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil || port <= 0 {
		return nil, errors.Errorf("invalid port in endpoint %q", raw)
	}
	ep := &model.Endpoint{
		Host:     parts[0],
		Port:     port,
		Priority: priority,
		Status:   model.EndpointHealthy,
	}
	if len(parts) == 3 {
		ep.Password = parts[2]
	}
	return ep, nil
}

// endpointPool owns the endpoint set and the selection policy. Endpoints
// are never removed, only re-classified by probe results.
type endpointPool struct {
	mu        sync.RWMutex
	endpoints []*model.Endpoint
	rr        uint64
}

func newEndpointPool(cfg *config.CacheConfig) (*endpointPool, error) {
	tiers := []struct {
		entries  []string
		priority int
	}{
		{cfg.Endpoints, PriorityPrimary},
		{cfg.FallbackEndpoints, PriorityFallback},
		{cfg.BackupEndpoints, PriorityBackup},
	}
	pool := &endpointPool{}
	for _, tier := range tiers {
		// a connection string listed twice is still one node
		for _, entry := range common.ArrayDistinct(tier.entries) {
			ep, err := ParseEndpoint(entry, tier.priority)
			if err != nil {
				return nil, err
			}
			pool.endpoints = append(pool.endpoints, ep)
		}
	}
	if len(pool.endpoints) == 0 {
		return nil, errors.New("cache endpoint list is empty")
	}
	return pool, nil
}

// Select picks the endpoint traffic should go to: healthy endpoints first,
// otherwise degraded ones by lowest error count; ordered by priority desc
// then latency asc, with a rotating index across priority ties.
func (p *endpointPool) Select() *model.Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	var candidates []*model.Endpoint
	for _, ep := range p.endpoints {
		if ep.Status == model.EndpointHealthy {
			candidates = append(candidates, ep)
		}
	}
	if len(candidates) == 0 {
		for _, ep := range p.endpoints {
			if ep.Status == model.EndpointDegraded {
				candidates = append(candidates, ep)
			}
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].ErrorCount < candidates[j].ErrorCount
		})
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].Latency < candidates[j].Latency
	})

	ties := candidates[:1]
	for _, ep := range candidates[1:] {
		if ep.Priority != candidates[0].Priority {
			break
		}
		ties = append(ties, ep)
	}
	ep := ties[p.rr%uint64(len(ties))]
	p.rr++
	return ep
}

// Others returns every endpoint except the given one, best-ranked first.
// Used by failover to walk the standby list.
func (p *endpointPool) Others(skip *model.Endpoint) []*model.Endpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var others []*model.Endpoint
	for _, ep := range p.endpoints {
		if ep != skip && ep.Status != model.EndpointOffline {
			others = append(others, ep)
		}
	}
	sort.SliceStable(others, func(i, j int) bool {
		if others[i].Priority != others[j].Priority {
			return others[i].Priority > others[j].Priority
		}
		return others[i].Latency < others[j].Latency
	})
	return others
}

func (p *endpointPool) MarkSuccess(ep *model.Endpoint, latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ep.Status = model.EndpointHealthy
	ep.Latency = latency
	ep.ErrorCount = 0
	ep.LastProbe = time.Now()
}

func (p *endpointPool) MarkFailure(ep *model.Endpoint, offlineThreshold int) model.EndpointStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	ep.ErrorCount++
	ep.LastProbe = time.Now()
	if ep.ErrorCount >= offlineThreshold {
		ep.Status = model.EndpointOffline
	} else {
		ep.Status = model.EndpointDegraded
	}
	return ep.Status
}

func (p *endpointPool) All() []*model.Endpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*model.Endpoint, len(p.endpoints))
	copy(out, p.endpoints)
	return out
}

// Snapshot copies endpoint state for health reporting.
func (p *endpointPool) Snapshot() []model.Endpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]model.Endpoint, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		out = append(out, *ep)
	}
	return out
}
