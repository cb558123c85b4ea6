package drorchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dsrplatform/fleetcore/infrastructure/errors"
	"github.com/dsrplatform/fleetcore/infrastructure/logging"
	"github.com/dsrplatform/fleetcore/internal/backup"
	"github.com/dsrplatform/fleetcore/internal/failover"
	"github.com/dsrplatform/fleetcore/internal/fleetclock"
	"github.com/dsrplatform/fleetcore/internal/prober"
	"github.com/dsrplatform/fleetcore/internal/registry"
)

// ReplicationLagSource reports a secondary site's current replication lag.
// Orchestrators built without one treat every site as zero-lag.
type ReplicationLagSource interface {
	Lag(ctx context.Context, siteID string) (seconds int, err error)
}

// Config controls the orchestrator's failover and backup policy.
type Config struct {
	FailureThreshold   int
	AutoFailover       bool
	RTOMinutes         int
	RPOMinutes         int
	RetentionDays      int
	MonitoringInterval time.Duration
	NightlyCronSpec    string
	BackupCompression  bool
	BackupEncryption   bool
}

// DisasterRequest is a manual or auto-detected trigger for the orchestrator
// to run a failover. TargetSite is optional: when empty the orchestrator
// picks the healthiest secondary by replication lag.
type DisasterRequest struct {
	Type               string
	Severity           string
	AffectedComponents []string
	SourceSite         string
	TargetSite         string
	Automatic          bool
}

// DisasterRecoveryResult is what Initiate returns: the DisasterEvent it
// recorded and, if a failover was attempted, its execution record.
type DisasterRecoveryResult struct {
	Event     DisasterEvent
	Execution *failover.Execution
	Error     string
}

// DisasterRecoveryStatus is the admin-facing snapshot of DR state.
type DisasterRecoveryStatus struct {
	Sites        []SiteStatus
	RTOMinutes   int
	RPOMinutes   int
	RecentEvents []DisasterEvent
	LastBackup   *backup.Metadata
	Warnings     []string
}

// Orchestrator ties the Health Prober, Cache Coordinator, Backup Engine,
// and Failover Engine together: it owns SiteStatus and DisasterEvent
// state, drives the continuous monitoring tick, and triggers automatic
// failover when the primary crosses its failure threshold.
type Orchestrator struct {
	cfg Config

	sites         *SiteRegistry
	prober        *prober.Prober
	backupEngine  *backup.Engine
	failoverEngine *failover.Engine
	notifier      failover.Notifier
	lagSource     ReplicationLagSource

	clock  fleetclock.Clock
	ids    fleetclock.IDGenerator
	logger *logging.Logger
	bus    *eventBus

	mu             sync.Mutex
	activeSince    time.Time
}

func New(cfg Config, sites *SiteRegistry, prb *prober.Prober, backupEngine *backup.Engine, failoverEngine *failover.Engine, notifier failover.Notifier, lagSource ReplicationLagSource, clock fleetclock.Clock, ids fleetclock.IDGenerator, logger *logging.Logger) *Orchestrator {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.MonitoringInterval <= 0 {
		cfg.MonitoringInterval = time.Minute
	}
	if cfg.NightlyCronSpec == "" {
		cfg.NightlyCronSpec = "0 2 * * *"
	}
	if clock == nil {
		clock = fleetclock.Default
	}
	if ids == nil {
		ids = fleetclock.DefaultIDs
	}
	if logger == nil {
		logger = logging.NewFromEnv("dr-orchestrator")
	}
	if notifier == nil {
		notifier = failover.LoggingNotifier{Logger: logger}
	}
	return &Orchestrator{
		cfg:            cfg,
		sites:          sites,
		prober:         prb,
		backupEngine:   backupEngine,
		failoverEngine: failoverEngine,
		notifier:       notifier,
		lagSource:      lagSource,
		clock:          clock,
		ids:            ids,
		logger:         logger,
		bus:            newEventBus(),
	}
}

// Events returns a channel receiving every DisasterEvent and failover
// execution transition, for the admin websocket stream.
func (o *Orchestrator) Events() <-chan StreamEvent {
	return o.bus.Subscribe()
}

// MonitorTick refreshes every watched site's health from the Health
// Prober, then auto-triggers a failover if the primary has crossed its
// consecutive-failure threshold and automatic failover is enabled. Errors
// are logged and swallowed: a single bad tick must not stop the ticker
// worker that calls this.
func (o *Orchestrator) MonitorTick(ctx context.Context) error {
	for _, result := range o.prober.CheckAll(ctx) {
		lag := 0
		if o.lagSource != nil {
			if l, err := o.lagSource.Lag(ctx, result.Target); err == nil {
				lag = l
			}
		}
		o.sites.RecordHealthCheck(result.Target, result.Status == registry.Healthy, lag, result.CheckedAt)
	}

	primary, ok := o.sites.Primary()
	if !ok || primary.ConsecutiveHealthFailures < o.cfg.FailureThreshold {
		return nil
	}

	if !o.cfg.AutoFailover {
		o.notifier.Notify(ctx, "primary site unhealthy, automatic failover disabled", map[string]interface{}{"site": primary.SiteID, "consecutiveFailures": primary.ConsecutiveHealthFailures})
		return nil
	}

	target, ok := o.bestSecondary()
	if !ok {
		o.notifier.Notify(ctx, "automatic failover needed but no healthy secondary is available", map[string]interface{}{"site": primary.SiteID})
		return nil
	}

	_, err := o.Initiate(ctx, DisasterRequest{
		Type:               "SITE_HEALTH_FAILURE",
		Severity:           "critical",
		AffectedComponents: []string{primary.SiteID},
		SourceSite:         primary.SiteID,
		TargetSite:         target.SiteID,
		Automatic:          true,
	})
	if err != nil {
		o.logger.WithError(err).Error("automatic failover did not complete")
	}
	return nil
}

// bestSecondary returns the healthy secondary with the lowest replication
// lag, breaking ties by site id.
func (o *Orchestrator) bestSecondary() (SiteStatus, bool) {
	var healthy []SiteStatus
	for _, s := range o.sites.Secondaries() {
		if s.Healthy {
			healthy = append(healthy, s)
		}
	}
	if len(healthy) == 0 {
		return SiteStatus{}, false
	}
	sort.Slice(healthy, func(i, j int) bool {
		if healthy[i].ReplicationLagSeconds != healthy[j].ReplicationLagSeconds {
			return healthy[i].ReplicationLagSeconds < healthy[j].ReplicationLagSeconds
		}
		return healthy[i].SiteID < healthy[j].SiteID
	})
	return healthy[0], true
}

// Initiate records a DisasterEvent and drives a failover to targetSite (or
// the best available secondary, if targetSite is empty). On a successful
// execution it promotes the target to PRIMARY.
func (o *Orchestrator) Initiate(ctx context.Context, req DisasterRequest) (DisasterRecoveryResult, error) {
	event := DisasterEvent{
		ID:                 o.ids.NewID(),
		Type:               req.Type,
		Severity:           req.Severity,
		AffectedComponents: req.AffectedComponents,
		DetectedAt:         o.clock.WallNow(),
		Status:             Detected,
	}
	o.bus.recordDisasterEvent(event)

	targetSite := req.TargetSite
	if targetSite == "" {
		best, ok := o.bestSecondary()
		if !ok {
			err := errors.Unavailable("no healthy secondary site available for failover")
			o.notifier.Notify(ctx, "failover could not start: no healthy secondary", map[string]interface{}{"source": req.SourceSite})
			return DisasterRecoveryResult{Event: event, Error: err.Error()}, err
		}
		targetSite = best.SiteID
	}

	event.Status = Mitigating
	o.bus.recordDisasterEvent(event)

	o.mu.Lock()
	o.activeSince = o.clock.Now()
	o.mu.Unlock()

	seq := BuildStandardSequence(req.SourceSite, targetSite, req.Automatic)
	exec, err := o.failoverEngine.Execute(ctx, seq)

	o.mu.Lock()
	o.activeSince = time.Time{}
	o.mu.Unlock()

	o.bus.publish(StreamEvent{Kind: "failover_execution", Payload: exec})
	result := DisasterRecoveryResult{Event: event, Execution: &exec}

	if err != nil {
		event.Status = Detected
		o.bus.recordDisasterEvent(event)
		o.notifier.Notify(ctx, "failover execution did not complete", map[string]interface{}{"source": req.SourceSite, "target": targetSite, "error": err.Error()})
		result.Error = err.Error()
		return result, err
	}

	if promoteErr := o.sites.Promote(req.SourceSite, targetSite, o.clock.WallNow()); promoteErr != nil {
		o.logger.WithError(promoteErr).Warn("failover completed but site promotion failed")
	}
	event.Status = Recovered
	o.bus.recordDisasterEvent(event)
	return result, nil
}

// Status returns the current DR snapshot: every site's status, the most
// recent backup, recent events, and any RTO/RPO warnings.
func (o *Orchestrator) Status(ctx context.Context) DisasterRecoveryStatus {
	sites := o.sites.List()

	var lastBackup *backup.Metadata
	if metas, err := o.backupEngine.ListMetadata(ctx); err == nil {
		for i := range metas {
			if lastBackup == nil || metas[i].Manifest.CreatedAt.After(lastBackup.Manifest.CreatedAt) {
				m := metas[i]
				lastBackup = &m
			}
		}
	}

	return DisasterRecoveryStatus{
		Sites:        sites,
		RTOMinutes:   o.cfg.RTOMinutes,
		RPOMinutes:   o.cfg.RPOMinutes,
		RecentEvents: o.bus.RecentDisasterEvents(),
		LastBackup:   lastBackup,
		Warnings:     o.warnings(sites),
	}
}

// warnings flags secondaries exceeding the configured RPO lag and any
// in-flight failover that has run past the configured RTO.
func (o *Orchestrator) warnings(sites []SiteStatus) []string {
	var out []string
	rpoSeconds := o.cfg.RPOMinutes * 60
	for _, s := range sites {
		if s.Role == Secondary && rpoSeconds > 0 && s.ReplicationLagSeconds > rpoSeconds {
			out = append(out, fmt.Sprintf("site %s replication lag %ds exceeds RPO target of %dm", s.SiteID, s.ReplicationLagSeconds, o.cfg.RPOMinutes))
		}
	}

	o.mu.Lock()
	since := o.activeSince
	o.mu.Unlock()
	if !since.IsZero() && o.cfg.RTOMinutes > 0 {
		if elapsed := o.clock.Now().Sub(since); elapsed > time.Duration(o.cfg.RTOMinutes)*time.Minute {
			out = append(out, fmt.Sprintf("in-flight failover has run %s, exceeding RTO target of %dm", elapsed.Round(time.Second), o.cfg.RTOMinutes))
		}
	}
	return out
}

// NightlyBackupTick runs a FULL backup over every recognized component,
// verifies its integrity, and prunes metadata past the retention window.
func (o *Orchestrator) NightlyBackupTick(ctx context.Context) error {
	plan := backup.Plan{
		ID:            o.ids.NewID(),
		Type:          backup.Full,
		Components:    backup.RecognizedComponents(),
		Compression:   o.cfg.BackupCompression,
		Encryption:    o.cfg.BackupEncryption,
		Verification:  true,
		RetentionDays: o.cfg.RetentionDays,
		ScheduledAt:   o.clock.WallNow(),
	}

	result, err := o.backupEngine.Execute(ctx, plan)
	if err != nil {
		o.notifier.Notify(ctx, "nightly backup failed", map[string]interface{}{"error": err.Error()})
		return err
	}

	if result.Metadata.BackupID != "" {
		verified, verr := o.backupEngine.VerifyIntegrity(ctx, result.Metadata.BackupID)
		if verr != nil || !verified {
			o.notifier.Notify(ctx, "nightly backup failed integrity verification", map[string]interface{}{"backupId": result.Metadata.BackupID})
		}
	}

	if o.cfg.RetentionDays > 0 {
		if _, err := o.backupEngine.PruneOlderThan(ctx, o.cfg.RetentionDays); err != nil {
			o.logger.WithError(err).Warn("backup retention sweep failed")
		}
	}
	return nil
}
