package prober

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsrplatform/fleetcore/infrastructure/service"
	"github.com/dsrplatform/fleetcore/internal/fleetclock"
	"github.com/dsrplatform/fleetcore/internal/registry"
)

func healthOf(status string) CheckFunc {
	return func(ctx context.Context) service.ComponentHealth {
		return service.ComponentHealth{Status: status}
	}
}

func TestCheckAllTracksConsecutiveFailures(t *testing.T) {
	p := New(fleetclock.NewFake(time.Unix(0, 0)))
	status := "unhealthy"
	p.Watch("svc", func(ctx context.Context) service.ComponentHealth {
		return service.ComponentHealth{Status: status}
	})

	for i := 1; i <= 3; i++ {
		p.CheckAll(context.Background())
		assert.Equal(t, i, p.ConsecutiveFailures("svc"))
	}

	status = "healthy"
	p.CheckAll(context.Background())
	assert.Equal(t, 0, p.ConsecutiveFailures("svc"))
	assert.Equal(t, registry.Healthy, p.Status("svc"))
}

func TestCheckAllRecoversFromPanickingCheck(t *testing.T) {
	p := New(fleetclock.Default)
	p.Watch("flaky", func(ctx context.Context) service.ComponentHealth {
		panic("boom")
	})

	results := p.CheckAll(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, registry.Unhealthy, results[0].Status)
	assert.Equal(t, "check panicked", results[0].FailureReason)
}

func TestSubscribePublishesOnlyOnTransition(t *testing.T) {
	p := New(fleetclock.Default)
	ch := p.Subscribe()

	p.Watch("svc", healthOf("healthy"))
	p.CheckAll(context.Background())
	select {
	case tr := <-ch:
		assert.Equal(t, registry.Unknown, tr.From)
		assert.Equal(t, registry.Healthy, tr.To)
	default:
		t.Fatal("expected a transition from the initial check")
	}

	p.CheckAll(context.Background())
	select {
	case tr := <-ch:
		t.Fatalf("unexpected second transition: %+v", tr)
	default:
	}
}

func TestUnwatchStopsFutureChecks(t *testing.T) {
	p := New(fleetclock.Default)
	p.Watch("svc", healthOf("healthy"))
	p.Unwatch("svc")

	results := p.CheckAll(context.Background())
	assert.Empty(t, results)
}
