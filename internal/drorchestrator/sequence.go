package drorchestrator

import "github.com/dsrplatform/fleetcore/internal/failover"

// BuildStandardSequence assembles the fixed seven-step failover sequence
// the orchestrator submits to the Failover Engine for every site failover,
// manual or automatic. DATABASE_FAILOVER, LOAD_BALANCER_UPDATE, and the
// final HEALTH_CHECK are critical: their failure aborts and rolls back the
// whole sequence. DNS, service restart, configuration sync, and the
// closing notification are best-effort.
func BuildStandardSequence(sourceSite, targetSite string, automatic bool) failover.Sequence {
	return failover.Sequence{
		Name:       "standard-site-failover",
		SourceSite: sourceSite,
		TargetSite: targetSite,
		Automatic:  automatic,
		Steps: []failover.Step{
			{Name: "promote-database-replica", Type: failover.DatabaseFailover, Critical: true},
			{Name: "update-load-balancer", Type: failover.LoadBalancerUpdate, Critical: true},
			{Name: "update-dns", Type: failover.DNSUpdate, Critical: false},
			{Name: "restart-services", Type: failover.ServiceRestart, Critical: false},
			{Name: "sync-configuration", Type: failover.ConfigurationSync, Critical: false},
			{Name: "verify-target-health", Type: failover.HealthCheck, Critical: true},
			{Name: "notify-operators", Type: failover.Notification, Critical: false},
		},
	}
}
