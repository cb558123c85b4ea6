// Package registry is the Service Registry: it owns the set of instances
// registered per service name and answers health-filtered listings for the
// dispatcher.
package registry

import (
	"sync"
	"time"

	"github.com/dsrplatform/fleetcore/infrastructure/errors"
	"github.com/dsrplatform/fleetcore/internal/breaker"
	"github.com/dsrplatform/fleetcore/internal/fleetclock"
	"github.com/dsrplatform/fleetcore/internal/instmetrics"
)

// HealthStatus is an instance's most recently probed liveness state.
type HealthStatus string

const (
	Healthy   HealthStatus = "HEALTHY"
	Degraded  HealthStatus = "DEGRADED"
	Unhealthy HealthStatus = "UNHEALTHY"
	Unknown   HealthStatus = "UNKNOWN"
)

// Instance is a single addressable endpoint of a service.
type Instance struct {
	ID              string
	ServiceName     string
	Host            string
	Port            int
	Weight          int
	RegisteredAt    time.Time
	LastHealthCheck time.Time
	HealthStatus    HealthStatus
}

// Registration is the caller-supplied shape for Register.
type Registration struct {
	ID     string
	Host   string
	Port   int
	Weight int
}

type serviceSet struct {
	mu        sync.RWMutex
	instances map[string]*Instance
}

// Registry holds every service's instance set and the shared breaker and
// metrics registries used to decide health-filtered listings and to release
// per-instance state on deregistration.
type Registry struct {
	clock    fleetclock.Clock
	breakers *breaker.Registry
	metrics  *instmetrics.Registry

	mu       sync.RWMutex
	services map[string]*serviceSet
}

// New wires a Registry to the breaker registry used for health-filtered
// listings and the metrics registry whose per-instance state Deregister
// releases. metrics may be nil, in which case Deregister only releases
// breaker state.
func New(clock fleetclock.Clock, breakers *breaker.Registry, metrics *instmetrics.Registry) *Registry {
	if clock == nil {
		clock = fleetclock.Default
	}
	return &Registry{clock: clock, breakers: breakers, metrics: metrics, services: make(map[string]*serviceSet)}
}

func (r *Registry) setFor(serviceName string) *serviceSet {
	r.mu.RLock()
	s, ok := r.services[serviceName]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok = r.services[serviceName]; ok {
		return s
	}
	s = &serviceSet{instances: make(map[string]*Instance)}
	r.services[serviceName] = s
	return s
}

// Register adds or updates an instance. Re-registration is idempotent on
// (serviceName, id): it refreshes host/port/weight but never resets
// HealthStatus, LastHealthCheck, or the instance's metrics/breaker state.
func (r *Registry) Register(serviceName string, reg Registration) (*Instance, error) {
	if serviceName == "" || reg.ID == "" {
		return nil, errors.InvalidInput("id", "serviceName and id are required")
	}
	if reg.Weight < 0 {
		return nil, errors.InvalidInput("weight", "must be >= 0")
	}

	set := r.setFor(serviceName)
	set.mu.Lock()
	defer set.mu.Unlock()

	if existing, ok := set.instances[reg.ID]; ok {
		existing.Host = reg.Host
		existing.Port = reg.Port
		existing.Weight = reg.Weight
		return existing, nil
	}

	inst := &Instance{
		ID:           reg.ID,
		ServiceName:  serviceName,
		Host:         reg.Host,
		Port:         reg.Port,
		Weight:       reg.Weight,
		RegisteredAt: r.clock.Now(),
		HealthStatus: Unknown,
	}
	set.instances[reg.ID] = inst
	return inst, nil
}

// Deregister removes an instance and releases its metrics/breaker state.
func (r *Registry) Deregister(serviceName, id string) error {
	set := r.setFor(serviceName)
	set.mu.Lock()
	_, ok := set.instances[id]
	delete(set.instances, id)
	set.mu.Unlock()

	if !ok {
		return errors.NotFound("instance", id)
	}
	if r.breakers != nil {
		r.breakers.Remove(id)
	}
	if r.metrics != nil {
		r.metrics.Remove(id)
	}
	return nil
}

// List returns every registered instance for a service, regardless of
// health.
func (r *Registry) List(serviceName string) []*Instance {
	set := r.setFor(serviceName)
	set.mu.RLock()
	defer set.mu.RUnlock()
	out := make([]*Instance, 0, len(set.instances))
	for _, inst := range set.instances {
		out = append(out, inst)
	}
	return out
}

// ListHealthy returns instances whose last probed status is HEALTHY or
// DEGRADED and whose circuit breaker currently admits traffic.
func (r *Registry) ListHealthy(serviceName string) []*Instance {
	all := r.List(serviceName)
	out := make([]*Instance, 0, len(all))
	for _, inst := range all {
		if inst.HealthStatus != Healthy && inst.HealthStatus != Degraded {
			continue
		}
		if r.breakers != nil && r.breakers.Status(inst.ID) == breaker.Open {
			continue
		}
		out = append(out, inst)
	}
	return out
}

// Get returns a single instance by (serviceName, id).
func (r *Registry) Get(serviceName, id string) (*Instance, bool) {
	set := r.setFor(serviceName)
	set.mu.RLock()
	defer set.mu.RUnlock()
	inst, ok := set.instances[id]
	return inst, ok
}

// MarkHealth updates an instance's health status and last check time. The
// health prober does not call it.
func (r *Registry) MarkHealth(serviceName, id string, status HealthStatus, checkedAt time.Time) {
	set := r.setFor(serviceName)
	set.mu.Lock()
	defer set.mu.Unlock()
	if inst, ok := set.instances[id]; ok {
		inst.HealthStatus = status
		inst.LastHealthCheck = checkedAt
	}
}

// ServiceNames returns every service name with at least one registered
// instance.
func (r *Registry) ServiceNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.services))
	for name := range r.services {
		out = append(out, name)
	}
	return out
}
