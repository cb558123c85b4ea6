package drorchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsrplatform/fleetcore/infrastructure/service"
	"github.com/dsrplatform/fleetcore/infrastructure/state"
	"github.com/dsrplatform/fleetcore/internal/backup"
	"github.com/dsrplatform/fleetcore/internal/failover"
	"github.com/dsrplatform/fleetcore/internal/fleetclock"
	"github.com/dsrplatform/fleetcore/internal/prober"
)

type stubStepAdapter struct{}

func (stubStepAdapter) Run(ctx context.Context, sourceSite, targetSite string) error      { return nil }
func (stubStepAdapter) Rollback(ctx context.Context, sourceSite, targetSite string) error { return nil }

func newTestOrchestrator(t *testing.T, primaryHealthy *bool) (*Orchestrator, *prober.Prober) {
	t.Helper()
	clock := fleetclock.NewFake(time.Unix(0, 0))
	ids := fleetclock.NewSequentialIDs("dr")

	prb := prober.New(clock)
	prb.Watch("primary", func(ctx context.Context) service.ComponentHealth {
		status := "healthy"
		if primaryHealthy != nil && !*primaryHealthy {
			status = "unhealthy"
		}
		return service.ComponentHealth{Name: "primary", Status: status, CheckedAt: clock.WallNow()}
	})
	prb.Watch("secondary", func(ctx context.Context) service.ComponentHealth {
		return service.ComponentHealth{Name: "secondary", Status: "healthy", CheckedAt: clock.WallNow()}
	})

	backend := state.NewMemoryBackend(time.Minute)
	backupEngine := backup.NewEngine(backup.Config{BasePath: t.TempDir()}, backup.DefaultAdapters(), backup.NewMetadataRegistry(backend), clock, ids, nil)
	failoverEngine := failover.NewEngine(map[failover.StepType]failover.StepAdapter{
		failover.DatabaseFailover:   stubStepAdapter{},
		failover.LoadBalancerUpdate: stubStepAdapter{},
		failover.HealthCheck:        stubStepAdapter{},
		failover.Notification:       stubStepAdapter{},
	}, nil, backend, clock, ids, nil)

	sites := NewSiteRegistry("primary", []string{"secondary"})

	o := New(Config{
		FailureThreshold: 3,
		AutoFailover:     true,
	}, sites, prb, backupEngine, failoverEngine, nil, nil, clock, ids, nil)

	return o, prb
}

// TestAutomaticFailoverTriggersAfterConsecutiveFailures is SPEC scenario 6:
// once the primary site's consecutive health-check failures cross the
// configured threshold, a monitoring tick with AutoFailover enabled must
// initiate a failover and promote the healthy secondary.
func TestAutomaticFailoverTriggersAfterConsecutiveFailures(t *testing.T) {
	unhealthy := false
	o, _ := newTestOrchestrator(t, &unhealthy)
	unhealthy = true

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		require.NoError(t, o.MonitorTick(ctx))
		primary, _ := o.sites.Primary()
		assert.Equal(t, Primary, primary.Role, "failover must not trigger before the threshold is crossed")
	}

	require.NoError(t, o.MonitorTick(ctx))

	secondary, ok := o.sites.Get("secondary")
	require.True(t, ok)
	assert.Equal(t, Primary, secondary.Role, "the healthy secondary must be promoted once auto-failover fires")

	failedPrimary, ok := o.sites.Get("primary")
	require.True(t, ok)
	assert.Equal(t, SiteFailed, failedPrimary.Role)
}

func TestMonitorTickDoesNothingWhenAutoFailoverDisabled(t *testing.T) {
	unhealthy := true
	o, _ := newTestOrchestrator(t, &unhealthy)
	o.cfg.AutoFailover = false

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, o.MonitorTick(ctx))
	}

	primary, _ := o.sites.Primary()
	assert.Equal(t, Primary, primary.Role, "disabled auto-failover must never promote a secondary")
}

func TestInitiateReportsErrorWhenNoHealthySecondary(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)
	o.sites = NewSiteRegistry("primary", nil)

	_, err := o.Initiate(context.Background(), DisasterRequest{SourceSite: "primary"})
	assert.Error(t, err)
}

func TestNightlyBackupTickRecordsLastBackup(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)

	require.NoError(t, o.NightlyBackupTick(context.Background()))

	status := o.Status(context.Background())
	require.NotNil(t, status.LastBackup)
}
