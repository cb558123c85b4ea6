package poolmonitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsrplatform/fleetcore/internal/fleetclock"
)

type fixedSource struct {
	sample Sample
	err    error
}

func (s fixedSource) Sample(ctx context.Context) (Sample, error) { return s.sample, s.err }

func TestTickAppendsToWindowAndStampsTime(t *testing.T) {
	clock := fleetclock.NewFake(time.Unix(100, 0))
	m := New(fixedSource{sample: Sample{Active: 5, Max: 10}}, clock)

	require.NoError(t, m.Tick(context.Background()))
	latest, ok := m.Latest()
	require.True(t, ok)
	assert.Equal(t, 5, latest.Active)
	assert.Equal(t, clock.Now(), latest.SampledAt)
}

func TestWindowEvictsOldestBeyondCapacity(t *testing.T) {
	clock := fleetclock.NewFake(time.Unix(0, 0))
	m := New(fixedSource{sample: Sample{Active: 1, Max: 10}}, clock)

	for i := 0; i < windowSize+10; i++ {
		require.NoError(t, m.Tick(context.Background()))
	}
	assert.Len(t, m.Samples(), windowSize)
}

func TestTickPropagatesSourceError(t *testing.T) {
	m := New(fixedSource{err: errors.New("pool unreachable")}, fleetclock.Default)
	err := m.Tick(context.Background())
	assert.Error(t, err)
}

func TestRecommendationsEmptyWithoutSamples(t *testing.T) {
	m := New(fixedSource{}, fleetclock.Default)
	assert.Empty(t, m.Recommendations())
}

func TestHighUtilizationWithHeadroomWarns(t *testing.T) {
	m := New(fixedSource{sample: Sample{Active: 95, Max: 100}}, fleetclock.Default)
	m.memStat = func() (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{UsedPercent: 50}, nil
	}
	require.NoError(t, m.Tick(context.Background()))

	recs := m.Recommendations()
	require.NotEmpty(t, recs)
	assert.Equal(t, "warning", recs[0].Severity)
}

func TestHighUtilizationWithLowMemoryHeadroomEscalatesToCritical(t *testing.T) {
	m := New(fixedSource{sample: Sample{Active: 95, Max: 100}}, fleetclock.Default)
	m.memStat = func() (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{UsedPercent: 95}, nil
	}
	require.NoError(t, m.Tick(context.Background()))

	recs := m.Recommendations()
	require.NotEmpty(t, recs)
	assert.Equal(t, "critical", recs[0].Severity)
}

func TestWaitingConnectionsRecommendsRaisingPoolSize(t *testing.T) {
	m := New(fixedSource{sample: Sample{Active: 1, Max: 10, Waiting: 3}}, fleetclock.Default)
	m.memStat = func() (*mem.VirtualMemoryStat, error) { return &mem.VirtualMemoryStat{UsedPercent: 10}, nil }
	require.NoError(t, m.Tick(context.Background()))

	found := false
	for _, r := range m.Recommendations() {
		if r.Message == "connections waiting for a pool slot; consider raising max pool size or connection timeout" {
			found = true
		}
	}
	assert.True(t, found)
}
