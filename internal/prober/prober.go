// Package prober is the Health Prober: it runs HealthCheckFunc-style checks
// against registered targets each time CheckAll is called, tracks
// consecutive failures, and publishes status transitions to subscribers.
package prober

import (
	"context"
	"sync"
	"time"

	"github.com/dsrplatform/fleetcore/infrastructure/service"
	"github.com/dsrplatform/fleetcore/internal/fleetclock"
	"github.com/dsrplatform/fleetcore/internal/registry"
)

// Result is the outcome of one check.
type Result struct {
	Target        string
	Status        registry.HealthStatus
	FailureReason string
	CheckedAt     time.Time
}

// Transition is published whenever a target's status changes.
type Transition struct {
	Target string
	From   registry.HealthStatus
	To     registry.HealthStatus
	At     time.Time
}

// CheckFunc probes one target. It must never panic; all failures are
// reported through the returned Result.
type CheckFunc func(ctx context.Context) service.ComponentHealth

type tracked struct {
	check               CheckFunc
	lastStatus          registry.HealthStatus
	consecutiveFailures int
}

// Prober runs registered checks each time CheckAll is called and fans out
// status transitions to subscribers. The DR orchestrator reads CheckAll
// results directly; neither it nor the breaker registry subscribes.
type Prober struct {
	clock fleetclock.Clock

	mu      sync.Mutex
	targets map[string]*tracked

	subMu sync.Mutex
	subs  []chan Transition
}

func New(clock fleetclock.Clock) *Prober {
	if clock == nil {
		clock = fleetclock.Default
	}
	return &Prober{clock: clock, targets: make(map[string]*tracked)}
}

// Watch registers a target under a name with its check function.
func (p *Prober) Watch(name string, check CheckFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.targets[name] = &tracked{check: check, lastStatus: registry.Unknown}
}

// Unwatch stops probing a target.
func (p *Prober) Unwatch(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.targets, name)
}

// Subscribe returns a channel that receives every status transition. The
// channel is buffered; slow consumers drop transitions rather than block
// the probe loop.
func (p *Prober) Subscribe() <-chan Transition {
	ch := make(chan Transition, 32)
	p.subMu.Lock()
	p.subs = append(p.subs, ch)
	p.subMu.Unlock()
	return ch
}

func (p *Prober) publish(t Transition) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- t:
		default:
		}
	}
}

// CheckAll runs every registered check once, never propagating a panic or
// error upward: a check that errors or panics becomes UNHEALTHY with a
// failure reason.
func (p *Prober) CheckAll(ctx context.Context) []Result {
	p.mu.Lock()
	names := make([]string, 0, len(p.targets))
	checks := make(map[string]*tracked, len(p.targets))
	for name, t := range p.targets {
		names = append(names, name)
		checks[name] = t
	}
	p.mu.Unlock()

	results := make([]Result, 0, len(names))
	for _, name := range names {
		results = append(results, p.checkOne(ctx, name, checks[name]))
	}
	return results
}

func (p *Prober) checkOne(ctx context.Context, name string, t *tracked) (result Result) {
	checkedAt := p.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			result = Result{Target: name, Status: registry.Unhealthy, FailureReason: "check panicked", CheckedAt: checkedAt}
		}
		p.recordResult(name, t, result)
	}()

	health := t.check(ctx)
	status := statusFromComponentHealth(health.Status)
	reason := health.Message
	return Result{Target: name, Status: status, FailureReason: reason, CheckedAt: checkedAt}
}

func statusFromComponentHealth(s string) registry.HealthStatus {
	switch s {
	case "healthy":
		return registry.Healthy
	case "degraded":
		return registry.Degraded
	case "unhealthy":
		return registry.Unhealthy
	default:
		return registry.Unknown
	}
}

func (p *Prober) recordResult(name string, t *tracked, result Result) {
	p.mu.Lock()
	prev := t.lastStatus
	if result.Status == registry.Healthy || result.Status == registry.Degraded {
		t.consecutiveFailures = 0
	} else {
		t.consecutiveFailures++
	}
	t.lastStatus = result.Status
	p.mu.Unlock()

	if prev != result.Status {
		p.publish(Transition{Target: name, From: prev, To: result.Status, At: result.CheckedAt})
	}
}

// ConsecutiveFailures returns how many checks in a row have failed for a
// target.
func (p *Prober) ConsecutiveFailures(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.targets[name]; ok {
		return t.consecutiveFailures
	}
	return 0
}

// Status returns a target's last known status.
func (p *Prober) Status(name string) registry.HealthStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.targets[name]; ok {
		return t.lastStatus
	}
	return registry.Unknown
}
