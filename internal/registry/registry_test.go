package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsrplatform/fleetcore/internal/breaker"
	"github.com/dsrplatform/fleetcore/internal/fleetclock"
	"github.com/dsrplatform/fleetcore/internal/instmetrics"
)

func TestRegisterIsIdempotentAndPreservesHealth(t *testing.T) {
	clock := fleetclock.NewFake(time.Unix(0, 0))
	reg := New(clock, nil, nil)

	inst, err := reg.Register("orders", Registration{ID: "a", Host: "h1", Port: 1, Weight: 1})
	require.NoError(t, err)
	reg.MarkHealth("orders", "a", Healthy, clock.Now())

	inst2, err := reg.Register("orders", Registration{ID: "a", Host: "h2", Port: 2, Weight: 5})
	require.NoError(t, err)

	assert.Same(t, inst, inst2)
	assert.Equal(t, "h2", inst2.Host)
	assert.Equal(t, 5, inst2.Weight)
	assert.Equal(t, Healthy, inst2.HealthStatus, "re-registration must not reset probed health")
}

func TestListHealthyExcludesUnhealthyAndBreakerOpenInstances(t *testing.T) {
	clock := fleetclock.NewFake(time.Unix(0, 0))
	breakers := breaker.NewRegistry(breaker.Config{FailureThreshold: 1, Cooldown: time.Minute})
	reg := New(clock, breakers, nil)

	_, err := reg.Register("orders", Registration{ID: "healthy", Host: "h", Port: 1})
	require.NoError(t, err)
	_, err = reg.Register("orders", Registration{ID: "unhealthy", Host: "h", Port: 2})
	require.NoError(t, err)
	_, err = reg.Register("orders", Registration{ID: "tripped", Host: "h", Port: 3})
	require.NoError(t, err)

	reg.MarkHealth("orders", "healthy", Healthy, clock.Now())
	reg.MarkHealth("orders", "unhealthy", Unhealthy, clock.Now())
	reg.MarkHealth("orders", "tripped", Healthy, clock.Now())

	ok, done := breakers.Allow("tripped")
	require.True(t, ok)
	done(false)
	require.Equal(t, breaker.Open, breakers.Status("tripped"))

	healthy := reg.ListHealthy("orders")
	require.Len(t, healthy, 1)
	assert.Equal(t, "healthy", healthy[0].ID)
}

func TestDeregisterRemovesInstanceBreakerAndMetricsState(t *testing.T) {
	clock := fleetclock.NewFake(time.Unix(0, 0))
	breakers := breaker.NewRegistry(breaker.Config{FailureThreshold: 1, Cooldown: time.Minute})
	metrics := instmetrics.New(clock, nil)
	reg := New(clock, breakers, metrics)

	_, err := reg.Register("orders", Registration{ID: "a", Host: "h", Port: 1})
	require.NoError(t, err)
	metrics.RecordRequest("orders", "a", 10, true)
	require.Equal(t, int64(1), metrics.Snapshot("a").TotalRequests)

	require.NoError(t, reg.Deregister("orders", "a"))
	_, ok := reg.Get("orders", "a")
	assert.False(t, ok)
	assert.Equal(t, int64(0), metrics.Snapshot("a").TotalRequests, "deregistration must release metrics state")

	err = reg.Deregister("orders", "a")
	assert.Error(t, err)
}

func TestRegisterRejectsMissingFields(t *testing.T) {
	reg := New(fleetclock.Default, nil, nil)
	_, err := reg.Register("", Registration{ID: "a"})
	assert.Error(t, err)
	_, err = reg.Register("orders", Registration{ID: ""})
	assert.Error(t, err)
	_, err = reg.Register("orders", Registration{ID: "a", Weight: -1})
	assert.Error(t, err)
}
