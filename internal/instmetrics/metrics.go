// Package instmetrics tracks per-instance request counters, latency, and
// active-connection counts for the service registry, and derives a
// performance score and health status consumed by the dispatcher's
// WEIGHTED_RESPONSE_TIME and LEAST_CONNECTIONS strategies.
package instmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dsrplatform/fleetcore/internal/fleetclock"
)

// HealthStatus buckets a performance score into a coarse label.
type HealthStatus string

const (
	Excellent HealthStatus = "EXCELLENT"
	Good      HealthStatus = "GOOD"
	Fair      HealthStatus = "FAIR"
	Poor      HealthStatus = "POOR"
	Critical  HealthStatus = "CRITICAL"
)

// Snapshot is an immutable, point-in-time read of an instance's metrics.
type Snapshot struct {
	InstanceID         string
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	ActiveConnections  int64
	AvgResponseTimeMs  float64
	MinResponseTimeMs  float64
	MaxResponseTimeMs  float64
	ErrorRate          float64
	SuccessRate        float64
	ThroughputPerSec   float64
	PerformanceScore   float64
	HealthStatus       HealthStatus
	FirstRequestTime   time.Time
	LastRequestTime    time.Time
}

type counters struct {
	mu                 sync.Mutex
	total              int64
	successful         int64
	failed             int64
	active             int64
	sumResponseTimeMs  float64
	minResponseTimeMs  float64
	maxResponseTimeMs  float64
	firstRequestTime   time.Time
	lastRequestTime    time.Time
}

// Registry holds per-instance counters. It is safe for concurrent use; one
// instance's update never blocks a reader or writer of another instance.
type Registry struct {
	clock fleetclock.Clock

	mu   sync.RWMutex
	byID map[string]*counters

	prom *prometheusMetrics
}

type prometheusMetrics struct {
	requestsTotal *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	responseTime  *prometheus.HistogramVec
	activeConns   *prometheus.GaugeVec
}

// New creates a Registry backed by the given clock. If registerer is
// non-nil, per-instance Prometheus series are registered against it.
func New(clock fleetclock.Clock, registerer prometheus.Registerer) *Registry {
	if clock == nil {
		clock = fleetclock.Default
	}
	r := &Registry{clock: clock, byID: make(map[string]*counters)}
	if registerer != nil {
		r.prom = &prometheusMetrics{
			requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fleetcore_instance_requests_total",
				Help: "Total requests dispatched to a service instance.",
			}, []string{"service", "instance"}),
			errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fleetcore_instance_errors_total",
				Help: "Total failed requests for a service instance.",
			}, []string{"service", "instance"}),
			responseTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "fleetcore_instance_response_time_ms",
				Help:    "Response time distribution per service instance, in milliseconds.",
				Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
			}, []string{"service", "instance"}),
			activeConns: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "fleetcore_instance_active_connections",
				Help: "Active connections currently attributed to a service instance.",
			}, []string{"service", "instance"}),
		}
		registerer.MustRegister(r.prom.requestsTotal, r.prom.errorsTotal, r.prom.responseTime, r.prom.activeConns)
	}
	return r
}

func (r *Registry) get(instanceID string) *counters {
	r.mu.RLock()
	c, ok := r.byID[instanceID]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok = r.byID[instanceID]; ok {
		return c
	}
	c = &counters{}
	r.byID[instanceID] = c
	return c
}

// RecordRequest records the outcome and latency of a completed request.
// serviceName is used only for the Prometheus label; counters are keyed by
// instanceID alone.
func (r *Registry) RecordRequest(serviceName, instanceID string, latencyMs float64, success bool) {
	c := r.get(instanceID)

	c.mu.Lock()
	now := r.clock.Now()
	if c.total == 0 {
		c.firstRequestTime = now
		c.minResponseTimeMs = latencyMs
		c.maxResponseTimeMs = latencyMs
	} else {
		if latencyMs < c.minResponseTimeMs {
			c.minResponseTimeMs = latencyMs
		}
		if latencyMs > c.maxResponseTimeMs {
			c.maxResponseTimeMs = latencyMs
		}
	}
	c.total++
	if success {
		c.successful++
	} else {
		c.failed++
	}
	c.sumResponseTimeMs += latencyMs
	c.lastRequestTime = now
	c.mu.Unlock()

	if r.prom != nil {
		r.prom.requestsTotal.WithLabelValues(serviceName, instanceID).Inc()
		if !success {
			r.prom.errorsTotal.WithLabelValues(serviceName, instanceID).Inc()
		}
		r.prom.responseTime.WithLabelValues(serviceName, instanceID).Observe(latencyMs)
	}
}

// IncrementActive increments the active-connection gauge for an instance.
func (r *Registry) IncrementActive(serviceName, instanceID string) {
	c := r.get(instanceID)
	c.mu.Lock()
	c.active++
	active := c.active
	c.mu.Unlock()
	if r.prom != nil {
		r.prom.activeConns.WithLabelValues(serviceName, instanceID).Set(float64(active))
	}
}

// DecrementActive decrements the active-connection gauge for an instance.
func (r *Registry) DecrementActive(serviceName, instanceID string) {
	c := r.get(instanceID)
	c.mu.Lock()
	if c.active > 0 {
		c.active--
	}
	active := c.active
	c.mu.Unlock()
	if r.prom != nil {
		r.prom.activeConns.WithLabelValues(serviceName, instanceID).Set(float64(active))
	}
}

// Snapshot returns a consistent read of an instance's current metrics.
func (r *Registry) Snapshot(instanceID string) Snapshot {
	c := r.get(instanceID)
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		InstanceID:         instanceID,
		TotalRequests:      c.total,
		SuccessfulRequests: c.successful,
		FailedRequests:     c.failed,
		ActiveConnections:  c.active,
		MinResponseTimeMs:  c.minResponseTimeMs,
		MaxResponseTimeMs:  c.maxResponseTimeMs,
		FirstRequestTime:   c.firstRequestTime,
		LastRequestTime:    c.lastRequestTime,
	}
	if c.total > 0 {
		s.AvgResponseTimeMs = c.sumResponseTimeMs / float64(c.total)
		s.ErrorRate = float64(c.failed) / float64(c.total) * 100
		s.SuccessRate = float64(c.successful) / float64(c.total) * 100
		if span := c.lastRequestTime.Sub(c.firstRequestTime).Seconds(); span > 0 {
			s.ThroughputPerSec = float64(c.total) / span
		}
	}
	s.PerformanceScore = performanceScore(s.ErrorRate, s.AvgResponseTimeMs, s.ActiveConnections)
	s.HealthStatus = healthStatusFor(s.PerformanceScore)
	return s
}

// Reset clears all counters for an instance atomically.
func (r *Registry) Reset(instanceID string) {
	c := r.get(instanceID)
	c.mu.Lock()
	*c = counters{}
	c.mu.Unlock()
}

// Remove discards an instance's counters entirely (used on deregistration).
func (r *Registry) Remove(instanceID string) {
	r.mu.Lock()
	delete(r.byID, instanceID)
	r.mu.Unlock()
}

func performanceScore(errorRatePct, avgMs float64, activeConns int64) float64 {
	score := 100.0
	score -= 2 * errorRatePct
	latencyPenalty := avgMs / 20
	if latencyPenalty > 50 {
		latencyPenalty = 50
	}
	score -= latencyPenalty
	connPenalty := float64(activeConns) / 5
	if connPenalty > 20 {
		connPenalty = 20
	}
	score -= connPenalty
	if score < 0 {
		score = 0
	}
	return score
}

func healthStatusFor(score float64) HealthStatus {
	switch {
	case score >= 80:
		return Excellent
	case score >= 60:
		return Good
	case score >= 40:
		return Fair
	case score >= 20:
		return Poor
	default:
		return Critical
	}
}
