package instmetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsrplatform/fleetcore/internal/fleetclock"
)

func TestSnapshotComputesRatesAndExtremes(t *testing.T) {
	clock := fleetclock.NewFake(time.Unix(0, 0))
	r := New(clock, nil)

	r.RecordRequest("orders", "a", 10, true)
	clock.Advance(time.Second)
	r.RecordRequest("orders", "a", 30, true)
	clock.Advance(time.Second)
	r.RecordRequest("orders", "a", 5, false)

	snap := r.Snapshot("a")
	assert.Equal(t, int64(3), snap.TotalRequests)
	assert.Equal(t, int64(2), snap.SuccessfulRequests)
	assert.Equal(t, int64(1), snap.FailedRequests)
	assert.Equal(t, 5.0, snap.MinResponseTimeMs)
	assert.Equal(t, 30.0, snap.MaxResponseTimeMs)
	assert.InDelta(t, 15.0, snap.AvgResponseTimeMs, 0.01)
	assert.InDelta(t, 33.33, snap.ErrorRate, 0.1)
	assert.InDelta(t, 1.5, snap.ThroughputPerSec, 0.01)
}

func TestSnapshotOnUnknownInstanceIsZeroValue(t *testing.T) {
	r := New(fleetclock.Default, nil)
	snap := r.Snapshot("never-seen")
	assert.Equal(t, int64(0), snap.TotalRequests)
	assert.Equal(t, Excellent, snap.HealthStatus, "no traffic means no error rate or latency penalty")
}

func TestActiveConnectionsNeverGoNegative(t *testing.T) {
	r := New(fleetclock.Default, nil)
	r.DecrementActive("orders", "a")
	snap := r.Snapshot("a")
	assert.Equal(t, int64(0), snap.ActiveConnections)

	r.IncrementActive("orders", "a")
	r.IncrementActive("orders", "a")
	r.DecrementActive("orders", "a")
	snap = r.Snapshot("a")
	assert.Equal(t, int64(1), snap.ActiveConnections)
}

func TestHighErrorRateAndLatencyDegradeHealthStatus(t *testing.T) {
	r := New(fleetclock.Default, nil)
	for i := 0; i < 10; i++ {
		r.RecordRequest("orders", "a", 2000, false)
	}
	snap := r.Snapshot("a")
	assert.Equal(t, Critical, snap.HealthStatus)
	assert.Equal(t, 0.0, snap.PerformanceScore)
}

func TestResetClearsCountersButKeepsInstanceTracked(t *testing.T) {
	r := New(fleetclock.Default, nil)
	r.RecordRequest("orders", "a", 10, true)
	r.Reset("a")

	snap := r.Snapshot("a")
	assert.Equal(t, int64(0), snap.TotalRequests)
}

func TestRemoveDropsInstanceState(t *testing.T) {
	r := New(fleetclock.Default, nil)
	r.RecordRequest("orders", "a", 10, true)
	r.Remove("a")

	snap := r.Snapshot("a")
	assert.Equal(t, int64(0), snap.TotalRequests)
}

func TestPrometheusSeriesRegisteredWhenRegistererProvided(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(fleetclock.Default, reg)
	r.RecordRequest("orders", "a", 10, false)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
