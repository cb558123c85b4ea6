// Package dispatcher is the load balancer: it selects one instance per
// request out of a service's registered, breaker-admitted instance set
// using a pluggable strategy.
package dispatcher

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	rendezvous "github.com/dgryski/go-rendezvous"

	"github.com/dsrplatform/fleetcore/infrastructure/errors"
	"github.com/dsrplatform/fleetcore/internal/breaker"
	"github.com/dsrplatform/fleetcore/internal/instmetrics"
	"github.com/dsrplatform/fleetcore/internal/registry"
)

// Strategy names the selection algorithm to use for a route call.
type Strategy string

const (
	RoundRobin         Strategy = "ROUND_ROBIN"
	WeightedRoundRobin Strategy = "WEIGHTED_ROUND_ROBIN"
	LeastConnections   Strategy = "LEAST_CONNECTIONS"
	WeightedRespTime   Strategy = "WEIGHTED_RESPONSE_TIME"
	Random             Strategy = "RANDOM"
	ConsistentHash     Strategy = "CONSISTENT_HASH"
)

// AllStrategies enumerates every supported strategy, used by the
// administrative "list strategies" endpoint.
var AllStrategies = []Strategy{RoundRobin, WeightedRoundRobin, LeastConnections, WeightedRespTime, Random, ConsistentHash}

// RequiresKey reports whether a strategy needs a routing key (only
// CONSISTENT_HASH does).
func (s Strategy) RequiresKey() bool { return s == ConsistentHash }

// Dispatcher selects instances and records outcomes back into the metrics
// and breaker registries.
type Dispatcher struct {
	registry *registry.Registry
	breakers *breaker.Registry
	metrics  *instmetrics.Registry

	mu      sync.Mutex
	rrIndex map[string]uint64        // plain round-robin cursor, per service
	wrrSeq  map[string]int           // weighted smooth RR sequence position, per service
	pending map[string][]func(bool) // breaker report closures awaiting RecordOutcome, per instance id
}

func New(reg *registry.Registry, breakers *breaker.Registry, metrics *instmetrics.Registry) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		breakers: breakers,
		metrics:  metrics,
		rrIndex:  make(map[string]uint64),
		wrrSeq:   make(map[string]int),
		pending:  make(map[string][]func(bool)),
	}
}

// Route selects an instance for serviceName using strategy. key is required
// for CONSISTENT_HASH and ignored otherwise.
func (d *Dispatcher) Route(serviceName string, strategy Strategy, key string) (*registry.Instance, error) {
	candidates := d.registry.ListHealthy(serviceName)
	if len(candidates) == 0 {
		return nil, errors.Unavailable("no healthy instance available for " + serviceName)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	switch strategy {
	case RoundRobin:
		return d.roundRobin(serviceName, candidates)
	case WeightedRoundRobin:
		return d.weightedRoundRobin(serviceName, candidates)
	case LeastConnections:
		return d.leastConnections(candidates)
	case WeightedRespTime:
		return d.weightedResponseTime(serviceName, candidates)
	case Random:
		return d.random(candidates)
	case ConsistentHash:
		if key == "" {
			return nil, errors.InvalidInput("key", "CONSISTENT_HASH requires a routing key")
		}
		return d.consistentHash(candidates, key)
	default:
		return nil, errors.InvalidInput("strategy", "unknown strategy "+string(strategy))
	}
}

// tryAdmit consumes one breaker admission permit for inst and returns
// whether it was granted along with the report closure the caller must
// eventually hand to RecordOutcome. This is the actual enforcement point
// for a half-open instance's probe limit: a non-mutating Status() check
// would let every concurrent caller through since they'd all observe the
// same HalfOpen state.
func (d *Dispatcher) tryAdmit(inst *registry.Instance) (bool, func(bool)) {
	if d.breakers == nil {
		return true, nil
	}
	return d.breakers.Allow(inst.ID)
}

// holdReport parks a breaker report closure for inst until a matching
// RecordOutcome call claims it. Route and RecordOutcome run as separate
// HTTP requests, so the closure can't simply be returned up a call stack.
func (d *Dispatcher) holdReport(instanceID string, report func(bool)) {
	if report == nil {
		return
	}
	d.mu.Lock()
	d.pending[instanceID] = append(d.pending[instanceID], report)
	d.mu.Unlock()
}

func (d *Dispatcher) claimReport(instanceID string) func(bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q := d.pending[instanceID]
	if len(q) == 0 {
		return nil
	}
	report := q[0]
	if len(q) == 1 {
		delete(d.pending, instanceID)
	} else {
		d.pending[instanceID] = q[1:]
	}
	return report
}

func (d *Dispatcher) roundRobin(serviceName string, candidates []*registry.Instance) (*registry.Instance, error) {
	d.mu.Lock()
	idx := d.rrIndex[serviceName]
	d.rrIndex[serviceName] = idx + 1
	d.mu.Unlock()

	n := uint64(len(candidates))
	for i := uint64(0); i < n; i++ {
		inst := candidates[(idx+i)%n]
		if ok, report := d.tryAdmit(inst); ok {
			d.holdReport(inst.ID, report)
			return inst, nil
		}
	}
	return nil, errors.Unavailable("all instances breaker-rejected for " + serviceName)
}

func (d *Dispatcher) weightedRoundRobin(serviceName string, candidates []*registry.Instance) (*registry.Instance, error) {
	weighted := make([]*registry.Instance, 0, len(candidates))
	for _, inst := range candidates {
		if inst.Weight <= 0 {
			continue
		}
		weighted = append(weighted, inst)
	}
	if len(weighted) == 0 {
		return d.roundRobin(serviceName, candidates)
	}

	total := 0
	for _, inst := range weighted {
		total += inst.Weight
	}

	d.mu.Lock()
	start := d.wrrSeq[serviceName]
	d.wrrSeq[serviceName] = start + 1
	d.mu.Unlock()

	// Smooth weighted round robin: expand the weighted set into a cycle of
	// length `total` where instance i occupies weight[i] of the slots,
	// interleaved by current-weight accumulation. This yields the same
	// fairness as nginx's smooth WRR without needing mutable per-instance
	// state between calls.
	for attempt := 0; attempt < total; attempt++ {
		pos := (start + attempt) % total
		inst := pickBySmoothWeight(weighted, pos)
		if ok, report := d.tryAdmit(inst); ok {
			d.holdReport(inst.ID, report)
			return inst, nil
		}
	}
	return nil, errors.Unavailable("all instances breaker-rejected for " + serviceName)
}

// pickBySmoothWeight maps a cycle position [0,total) to an instance such
// that over one full cycle each instance is picked exactly weight times,
// spread as evenly as possible rather than clustered.
func pickBySmoothWeight(weighted []*registry.Instance, pos int) *registry.Instance {
	gcdAll := weighted[0].Weight
	for _, inst := range weighted[1:] {
		gcdAll = gcd(gcdAll, inst.Weight)
	}
	maxWeight := 0
	for _, inst := range weighted {
		if inst.Weight > maxWeight {
			maxWeight = inst.Weight
		}
	}

	// Walk a deterministic cycle of (index, currentWeight) states; this is
	// the classic smooth-WRR generator, replayed from scratch each call so
	// no mutable state is needed across goroutines.
	cw := maxWeight
	idx := 0
	for step := 0; ; step++ {
		for {
			idx = (idx + 1) % len(weighted)
			if idx == 0 {
				cw -= gcdAll
				if cw <= 0 {
					cw = maxWeight
				}
			}
			if weighted[idx].Weight >= cw {
				break
			}
		}
		if step == pos {
			return weighted[idx]
		}
	}
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a <= 0 {
		return 1
	}
	return a
}

// leastConnections ranks every candidate by active connections first, then
// admits in ranked order so only the instance actually selected consumes a
// breaker permit; ranking itself reads metrics, which is non-mutating.
func (d *Dispatcher) leastConnections(candidates []*registry.Instance) (*registry.Instance, error) {
	ranked := make([]*registry.Instance, len(candidates))
	copy(ranked, candidates)
	snaps := make(map[string]instmetrics.Snapshot, len(candidates))
	for _, inst := range candidates {
		snaps[inst.ID] = d.metrics.Snapshot(inst.ID)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := snaps[ranked[i].ID], snaps[ranked[j].ID]
		if a.ActiveConnections != b.ActiveConnections {
			return a.ActiveConnections < b.ActiveConnections
		}
		return a.PerformanceScore > b.PerformanceScore
	})
	for _, inst := range ranked {
		if ok, report := d.tryAdmit(inst); ok {
			d.holdReport(inst.ID, report)
			return inst, nil
		}
	}
	return nil, errors.Unavailable("all instances breaker-rejected")
}

func (d *Dispatcher) weightedResponseTime(serviceName string, candidates []*registry.Instance) (*registry.Instance, error) {
	type sampled struct {
		inst  *registry.Instance
		ratio float64
	}
	var ranked []sampled
	for _, inst := range candidates {
		snap := d.metrics.Snapshot(inst.ID)
		if snap.TotalRequests == 0 {
			continue
		}
		weight := float64(inst.Weight)
		if weight <= 0 {
			weight = 1
		}
		ranked = append(ranked, sampled{inst: inst, ratio: snap.AvgResponseTimeMs / weight})
	}
	if len(ranked) == 0 {
		return d.roundRobin(serviceName, candidates)
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].ratio < ranked[j].ratio })

	for _, s := range ranked {
		if ok, report := d.tryAdmit(s.inst); ok {
			d.holdReport(s.inst.ID, report)
			return s.inst, nil
		}
	}
	return nil, errors.Unavailable("all instances breaker-rejected")
}

func (d *Dispatcher) random(candidates []*registry.Instance) (*registry.Instance, error) {
	for _, i := range rand.Perm(len(candidates)) {
		inst := candidates[i]
		if ok, report := d.tryAdmit(inst); ok {
			d.holdReport(inst.ID, report)
			return inst, nil
		}
	}
	return nil, errors.Unavailable("all instances breaker-rejected")
}

func (d *Dispatcher) consistentHash(candidates []*registry.Instance, key string) (*registry.Instance, error) {
	byID := make(map[string]*registry.Instance, len(candidates))
	nodes := make([]string, 0, len(candidates))
	for _, inst := range candidates {
		byID[inst.ID] = inst
		nodes = append(nodes, inst.ID)
	}

	ring := rendezvous.New(nodes, xxhashSeed)
	for i := 0; i < len(nodes); i++ {
		id := ring.Lookup(key)
		inst := byID[id]
		if ok, report := d.tryAdmit(inst); ok {
			d.holdReport(inst.ID, report)
			return inst, nil
		}
		ring.Remove(id)
	}
	return nil, errors.Unavailable("all instances breaker-rejected")
}

func xxhashSeed(s string, seed uint64) uint64 {
	h := xxhash.New()
	var seedBuf [8]byte
	for i := 0; i < 8; i++ {
		seedBuf[i] = byte(seed >> (8 * i))
	}
	_, _ = h.Write(seedBuf[:])
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// RecordOutcome updates metrics and reports the outcome to the instance's
// circuit breaker. Callers MUST invoke this after every dispatched request
// so the breaker reflects reality. The report closure used is the one
// captured by the Route call that selected inst, if that permit is still
// pending; callers that report an outcome without having routed through
// this Dispatcher (direct breaker exercising, e.g. in tests) fall back to
// acquiring and immediately resolving a permit of their own.
func (d *Dispatcher) RecordOutcome(inst *registry.Instance, latencyMs float64, success bool) {
	d.metrics.RecordRequest(inst.ServiceName, inst.ID, latencyMs, success)
	if d.breakers == nil {
		return
	}
	if report := d.claimReport(inst.ID); report != nil {
		report(success)
		return
	}
	if _, report := d.breakers.Allow(inst.ID); report != nil {
		report(success)
	}
}
