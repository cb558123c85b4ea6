package failover

import (
	"context"
	"time"

	"github.com/dsrplatform/fleetcore/infrastructure/errors"
	"github.com/dsrplatform/fleetcore/infrastructure/logging"
	"github.com/dsrplatform/fleetcore/infrastructure/resilience"
	"github.com/dsrplatform/fleetcore/internal/registry"
)

// LoadBalancerAdapter redirects traffic for one service by deregistering
// the source site's instances and registering the target site's, wiring
// directly into the Dispatcher's Registry rather than an external system.
type LoadBalancerAdapter struct {
	Registry        *registry.Registry
	ServiceName     string
	SourceInstances []registry.Registration
	TargetInstances []registry.Registration
}

func (a *LoadBalancerAdapter) Run(ctx context.Context, sourceSite, targetSite string) error {
	for _, inst := range a.SourceInstances {
		_ = a.Registry.Deregister(a.ServiceName, inst.ID)
	}
	for _, inst := range a.TargetInstances {
		if _, err := a.Registry.Register(a.ServiceName, inst); err != nil {
			return errors.AdapterFailure("load-balancer-update", err)
		}
	}
	return nil
}

func (a *LoadBalancerAdapter) Rollback(ctx context.Context, sourceSite, targetSite string) error {
	for _, inst := range a.TargetInstances {
		_ = a.Registry.Deregister(a.ServiceName, inst.ID)
	}
	for _, inst := range a.SourceInstances {
		if _, err := a.Registry.Register(a.ServiceName, inst); err != nil {
			return errors.AdapterFailure("load-balancer-rollback", err)
		}
	}
	return nil
}

// retryingAdapter wraps an external-collaborator action (database failover,
// DNS update) with resilience.Retry before the step is marked failed.
type retryingAdapter struct {
	name     string
	run      func(ctx context.Context, sourceSite, targetSite string) error
	rollback func(ctx context.Context, sourceSite, targetSite string) error
	retryCfg resilience.RetryConfig
}

func newRetryingAdapter(name string, run, rollback func(ctx context.Context, sourceSite, targetSite string) error) *retryingAdapter {
	return &retryingAdapter{
		name:     name,
		run:      run,
		rollback: rollback,
		retryCfg: resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second, Multiplier: 2, Jitter: 0.2},
	}
}

func (a *retryingAdapter) Run(ctx context.Context, sourceSite, targetSite string) error {
	err := resilience.Retry(ctx, a.retryCfg, func() error {
		return a.run(ctx, sourceSite, targetSite)
	})
	if err != nil {
		return errors.AdapterFailure(a.name, err)
	}
	return nil
}

func (a *retryingAdapter) Rollback(ctx context.Context, sourceSite, targetSite string) error {
	if a.rollback == nil {
		return nil
	}
	err := resilience.Retry(ctx, a.retryCfg, func() error {
		return a.rollback(ctx, sourceSite, targetSite)
	})
	if err != nil {
		return errors.AdapterFailure(a.name+"-rollback", err)
	}
	return nil
}

// NewDatabaseFailoverAdapter is an external-collaborator stub: production
// deployments replace the run/rollback funcs with a call to the database's
// own promotion/demotion API.
func NewDatabaseFailoverAdapter(logger *logging.Logger) StepAdapter {
	return newRetryingAdapter("database-failover",
		func(ctx context.Context, sourceSite, targetSite string) error {
			logger.WithFields(map[string]interface{}{"source": sourceSite, "target": targetSite}).Info("promoting database replica")
			return nil
		},
		func(ctx context.Context, sourceSite, targetSite string) error {
			logger.WithFields(map[string]interface{}{"source": sourceSite, "target": targetSite}).Info("demoting database replica")
			return nil
		})
}

// NewDNSUpdateAdapter is an external-collaborator stub for a DNS provider's
// record-update API.
func NewDNSUpdateAdapter(logger *logging.Logger) StepAdapter {
	return newRetryingAdapter("dns-update",
		func(ctx context.Context, sourceSite, targetSite string) error {
			logger.WithFields(map[string]interface{}{"target": targetSite}).Info("updating DNS record to target site")
			return nil
		},
		func(ctx context.Context, sourceSite, targetSite string) error {
			logger.WithFields(map[string]interface{}{"target": sourceSite}).Info("reverting DNS record to source site")
			return nil
		})
}

// noInverseAdapter backs step types with no meaningful rollback
// (HEALTH_CHECK, NOTIFICATION).
type noInverseAdapter struct {
	run func(ctx context.Context, sourceSite, targetSite string) error
}

func (a *noInverseAdapter) Run(ctx context.Context, sourceSite, targetSite string) error {
	return a.run(ctx, sourceSite, targetSite)
}

func (a *noInverseAdapter) Rollback(ctx context.Context, sourceSite, targetSite string) error {
	return nil
}

// Notifier is a fire-and-forget alert channel.
type Notifier interface {
	Notify(ctx context.Context, message string, fields map[string]interface{})
}

// LoggingNotifier is the default Notifier implementation.
type LoggingNotifier struct{ Logger *logging.Logger }

func (n LoggingNotifier) Notify(ctx context.Context, message string, fields map[string]interface{}) {
	n.Logger.WithFields(fields).Warn(message)
}

// NewNotificationAdapter fires a Notifier and never fails the sequence.
func NewNotificationAdapter(notifier Notifier, message string) StepAdapter {
	return &noInverseAdapter{run: func(ctx context.Context, sourceSite, targetSite string) error {
		notifier.Notify(ctx, message, map[string]interface{}{"source": sourceSite, "target": targetSite})
		return nil
	}}
}

// NewHealthCheckAdapter runs verify as a mid-sequence step (distinct from
// the end-of-sequence verification pass).
func NewHealthCheckAdapter(verify func(ctx context.Context, targetSite string) error) StepAdapter {
	return &noInverseAdapter{run: func(ctx context.Context, sourceSite, targetSite string) error {
		return verify(ctx, targetSite)
	}}
}

// NewServiceRestartAdapter is an external-collaborator stub for a process
// supervisor's restart API. Rollback is a no-op: restarting back is not a
// meaningful inverse once the new processes have taken traffic.
func NewServiceRestartAdapter(logger *logging.Logger) StepAdapter {
	return &noInverseAdapter{run: func(ctx context.Context, sourceSite, targetSite string) error {
		logger.WithFields(map[string]interface{}{"target": targetSite}).Info("restarting services at target site")
		return nil
	}}
}

// NewConfigurationSyncAdapter is an external-collaborator stub for a
// config-store export/import pair.
func NewConfigurationSyncAdapter(logger *logging.Logger) StepAdapter {
	return newRetryingAdapter("configuration-sync",
		func(ctx context.Context, sourceSite, targetSite string) error {
			logger.WithFields(map[string]interface{}{"target": targetSite}).Info("syncing configuration to target site")
			return nil
		},
		func(ctx context.Context, sourceSite, targetSite string) error {
			logger.WithFields(map[string]interface{}{"target": sourceSite}).Info("reverting configuration to source site")
			return nil
		})
}
