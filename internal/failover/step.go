package failover

import "context"

// StepType identifies one of the fixed failover step kinds.
type StepType string

const (
	DatabaseFailover   StepType = "DATABASE_FAILOVER"
	LoadBalancerUpdate StepType = "LOAD_BALANCER_UPDATE"
	DNSUpdate          StepType = "DNS_UPDATE"
	ServiceRestart     StepType = "SERVICE_RESTART"
	ConfigurationSync  StepType = "CONFIGURATION_UPDATE"
	HealthCheck        StepType = "HEALTH_CHECK"
	Notification       StepType = "NOTIFICATION"
)

// Step is one element of a FailoverSequence.
type Step struct {
	Name     string
	Type     StepType
	Critical bool
}

// StepAdapter performs the action for one step type and, where the action
// is reversible, its inverse for rollback. NOTIFICATION and HEALTH_CHECK
// have no inverse: Rollback is a no-op for those adapters.
type StepAdapter interface {
	Run(ctx context.Context, sourceSite, targetSite string) error
	Rollback(ctx context.Context, sourceSite, targetSite string) error
}

// Verifier checks post-failover system state. Used after all steps
// complete successfully, before the execution is marked COMPLETED.
type Verifier interface {
	Verify(ctx context.Context, targetSite string) error
}
