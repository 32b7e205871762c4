// Package app provides application services that orchestrate domain
// logic with I/O through ports.
package app

import (
	"sort"
	"sync"

	"github.com/linkside/gateway/domain/gateway"
	"github.com/linkside/gateway/domain/tier"
)

// EndpointRegistry is the version:path keyed handler table. It holds no
// persistence; callers rebuild it at process start.
type EndpointRegistry struct {
	mu        sync.RWMutex
	endpoints map[string]gateway.Endpoint
}

// NewEndpointRegistry creates an empty registry.
func NewEndpointRegistry() *EndpointRegistry {
	return &EndpointRegistry{
		endpoints: make(map[string]gateway.Endpoint),
	}
}

// Register stores an endpoint. A key collision overwrites the previous
// registration.
func (r *EndpointRegistry) Register(e gateway.Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[e.RegistryKey()] = e
}

// Lookup resolves an endpoint by path and version. Absence is reported
// as (zero, false), never an error.
func (r *EndpointRegistry) Lookup(path, version string) (gateway.Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.endpoints[gateway.Key(version, path)]
	return e, ok
}

// List returns all endpoints accessible to the given tier, sorted by
// registry key.
func (r *EndpointRegistry) List(t tier.Tier) []gateway.Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []gateway.Endpoint
	for _, e := range r.endpoints {
		if t.CanAccess(e.RequiredTier) {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].RegistryKey() < result[j].RegistryKey()
	})
	return result
}

// Len returns the number of registered endpoints.
func (r *EndpointRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.endpoints)
}
