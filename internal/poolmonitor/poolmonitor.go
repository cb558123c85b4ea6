// Package poolmonitor samples a connection pool's counters on a fixed
// cadence, keeps a rolling window, and derives tuning recommendations. It
// never mutates the pool it observes.
package poolmonitor

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/dsrplatform/fleetcore/internal/fleetclock"
)

const windowSize = 100

// Sample is a point-in-time read of pool counters.
type Sample struct {
	Active    int
	Idle      int
	Total     int
	Waiting   int
	Max       int
	Min       int
	Timeouts  int
	SampledAt time.Time
}

// PoolSource is the external collaborator the monitor samples. A
// database/sql-backed implementation is provided in sqlpool.go; any pooled
// resource can supply its own.
type PoolSource interface {
	Sample(ctx context.Context) (Sample, error)
}

// Utilization returns active/max, or 0 when max is unset.
func (s Sample) Utilization() float64 {
	if s.Max <= 0 {
		return 0
	}
	return float64(s.Active) / float64(s.Max)
}

// Monitor samples a PoolSource on an interval and keeps the last 100
// samples for trend-aware recommendations.
type Monitor struct {
	source PoolSource
	clock  fleetclock.Clock

	mu      sync.RWMutex
	window  []Sample
	memStat func() (*mem.VirtualMemoryStat, error)
}

func New(source PoolSource, clock fleetclock.Clock) *Monitor {
	if clock == nil {
		clock = fleetclock.Default
	}
	return &Monitor{
		source:  source,
		clock:   clock,
		memStat: mem.VirtualMemory,
	}
}

// Tick takes one sample and appends it to the rolling window, evicting the
// oldest entry once the window is full.
func (m *Monitor) Tick(ctx context.Context) error {
	sample, err := m.source.Sample(ctx)
	if err != nil {
		return err
	}
	sample.SampledAt = m.clock.Now()

	m.mu.Lock()
	m.window = append(m.window, sample)
	if len(m.window) > windowSize {
		m.window = m.window[len(m.window)-windowSize:]
	}
	m.mu.Unlock()
	return nil
}

// Samples returns a copy of the current rolling window, oldest first.
func (m *Monitor) Samples() []Sample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Sample, len(m.window))
	copy(out, m.window)
	return out
}

// Latest returns the most recent sample, or the zero value if none yet.
func (m *Monitor) Latest() (Sample, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.window) == 0 {
		return Sample{}, false
	}
	return m.window[len(m.window)-1], true
}

// Recommendation is a single tuning suggestion with the reasoning behind
// it.
type Recommendation struct {
	Severity string // "info", "warning", "critical"
	Message  string
}

// Recommendations derives tuning guidance from the current window. A
// raise-pool-size recommendation is suppressed when host memory headroom is
// below 10%, since growing the pool would not help and could destabilize
// the host.
func (m *Monitor) Recommendations() []Recommendation {
	latest, ok := m.Latest()
	if !ok {
		return nil
	}

	var recs []Recommendation
	util := latest.Utilization()

	lowMemHeadroom := false
	if m.memStat != nil {
		if vm, err := m.memStat(); err == nil && vm != nil {
			lowMemHeadroom = (100 - vm.UsedPercent) < 10
		}
	}

	if util > 0.9 {
		if lowMemHeadroom {
			recs = append(recs, Recommendation{Severity: "critical", Message: "pool utilization above 90% but host memory headroom is below 10%; address memory pressure before raising pool size"})
		} else {
			recs = append(recs, Recommendation{Severity: "warning", Message: "pool utilization above 90%; consider raising max pool size"})
		}
	}
	if latest.Waiting > 0 {
		recs = append(recs, Recommendation{Severity: "warning", Message: "connections waiting for a pool slot; consider raising max pool size or connection timeout"})
	}
	if latest.Idle == 0 && latest.Active > 0 {
		recs = append(recs, Recommendation{Severity: "info", Message: "no idle connections observed; consider raising min pool size"})
	}
	if latest.Timeouts > 0 {
		recs = append(recs, Recommendation{Severity: "warning", Message: "connection timeouts observed; consider enabling leak detection"})
	}

	if avg := m.averageUtilization(); avg < 0.1 && latest.Max > latest.Min {
		recs = append(recs, Recommendation{Severity: "info", Message: "sustained low utilization; consider lowering max pool size"})
	}

	return recs
}

func (m *Monitor) averageUtilization() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.window) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range m.window {
		sum += s.Utilization()
	}
	return sum / float64(len(m.window))
}
