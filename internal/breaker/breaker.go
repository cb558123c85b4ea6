// Package breaker maintains one circuit breaker per service instance,
// built on infrastructure/resilience's gobreaker-backed CircuitBreaker.
// The dispatcher consults Allow before selecting an instance and reports
// the outcome afterward so that a single bad instance cannot starve a
// healthy one of traffic.
package breaker

import (
	"sync"
	"time"

	"github.com/dsrplatform/fleetcore/infrastructure/logging"
	"github.com/dsrplatform/fleetcore/infrastructure/resilience"
)

// State mirrors the three-state vocabulary used by the dispatcher and the
// administrative HTTP surface, independent of gobreaker's own type.
type State string

const (
	Closed   State = "CLOSED"
	Open     State = "OPEN"
	HalfOpen State = "HALF_OPEN"
)

func fromResilience(s resilience.State) State {
	switch s {
	case resilience.StateOpen:
		return Open
	case resilience.StateHalfOpen:
		return HalfOpen
	default:
		return Closed
	}
}

// Config controls the failure threshold and cooldown applied to every
// instance breaker created by a Registry.
type Config struct {
	FailureThreshold int
	Cooldown         time.Duration
	HalfOpenMax      int
	Logger           *logging.Logger
}

// DefaultConfig matches the fleet-wide defaults (5 consecutive failures,
// 30s cooldown).
func DefaultConfig() Config {
	return Config{FailureThreshold: 5, Cooldown: 30 * time.Second, HalfOpenMax: 1}
}

// Registry lazily creates and owns one breaker per instance id.
type Registry struct {
	cfg Config

	mu   sync.RWMutex
	byID map[string]*resilience.CircuitBreaker
}

func NewRegistry(cfg Config) *Registry {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	return &Registry{cfg: cfg, byID: make(map[string]*resilience.CircuitBreaker)}
}

func (r *Registry) breakerFor(instanceID string) *resilience.CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.byID[instanceID]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok = r.byID[instanceID]; ok {
		return cb
	}

	rcfg := resilience.Config{
		MaxFailures: r.cfg.FailureThreshold,
		Timeout:     r.cfg.Cooldown,
		HalfOpenMax: r.cfg.HalfOpenMax,
	}
	if r.cfg.Logger != nil {
		instance := instanceID
		rcfg.OnStateChange = func(from, to resilience.State) {
			r.cfg.Logger.WithFields(map[string]interface{}{
				"instance":   instance,
				"from_state": from.String(),
				"to_state":   to.String(),
			}).Warn("instance circuit breaker state changed")
		}
	}
	cb = resilience.New(rcfg)
	r.byID[instanceID] = cb
	return cb
}

// Allow reports whether a request may be dispatched to instanceID right
// now, and returns a report function the caller must invoke exactly once
// with the outcome when it becomes known.
func (r *Registry) Allow(instanceID string) (bool, func(success bool)) {
	return r.breakerFor(instanceID).TryAcquire()
}

// Status returns the current state of an instance's breaker without
// affecting it. Unknown instances report Closed (never yet exercised).
func (r *Registry) Status(instanceID string) State {
	r.mu.RLock()
	cb, ok := r.byID[instanceID]
	r.mu.RUnlock()
	if !ok {
		return Closed
	}
	return fromResilience(cb.State())
}

// Reset discards an instance's breaker state, forcing it back to CLOSED on
// next use. Used by the administrative "force reset" endpoint.
func (r *Registry) Reset(instanceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, instanceID)
}

// Remove discards an instance's breaker entirely (used on deregistration).
func (r *Registry) Remove(instanceID string) {
	r.mu.Lock()
	delete(r.byID, instanceID)
	r.mu.Unlock()
}

// Snapshot returns the current state of every known instance breaker.
func (r *Registry) Snapshot() map[string]State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]State, len(r.byID))
	for id, cb := range r.byID {
		out[id] = fromResilience(cb.State())
	}
	return out
}
