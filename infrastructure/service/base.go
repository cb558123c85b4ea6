package service

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/dsrplatform/fleetcore/infrastructure/logging"
	"github.com/dsrplatform/fleetcore/infrastructure/state"
)

const healthCheckTimeout = 5 * time.Second

// BaseConfig contains shared configuration for every background subsystem.
type BaseConfig struct {
	ID      string
	Name    string
	Version string
	Backend state.PersistenceBackend
	Logger  *logging.Logger
	// RequiredEnv names environment variables that must be present for the
	// subsystem to be considered healthy (e.g. credentials for a remote
	// backup destination).
	RequiredEnv []string
}

// BaseService provides a consistent lifecycle foundation for every
// background subsystem: safe stop-channel management (sync.Once prevents a
// double-close panic), an optional hydration hook for loading state on
// startup, background worker management, and a statistics provider for the
// /info endpoint.
type BaseService struct {
	id, name, version string

	router  *mux.Router
	backend state.PersistenceBackend

	stopCh   chan struct{}
	stopOnce sync.Once

	hydrate func(context.Context) error
	statsFn func() map[string]any

	workers []func(context.Context)

	requiredEnv     []string
	healthMu        sync.RWMutex
	backendHealthy  bool
	envLoaded       bool
	lastHealthCheck time.Time
	startTime       time.Time

	logger *logging.Logger
}

// NewBase constructs a BaseService from shared config.
func NewBase(cfg *BaseConfig) *BaseService {
	cfgValue := BaseConfig{}
	if cfg != nil {
		cfgValue = *cfg
	}

	logger := cfgValue.Logger
	if logger == nil {
		serviceName := cfgValue.ID
		if serviceName == "" {
			serviceName = "service"
		}
		logger = logging.NewFromEnv(serviceName)
	}

	return &BaseService{
		id:             cfgValue.ID,
		name:           cfgValue.Name,
		version:        cfgValue.Version,
		router:         mux.NewRouter(),
		backend:        cfgValue.Backend,
		stopCh:         make(chan struct{}),
		requiredEnv:    mergeUniqueStrings(cfgValue.RequiredEnv),
		backendHealthy: cfgValue.Backend == nil,
		envLoaded:      len(cfgValue.RequiredEnv) == 0,
		logger:         logger,
	}
}

func (b *BaseService) ID() string           { return b.id }
func (b *BaseService) Name() string         { return b.name }
func (b *BaseService) Version() string      { return b.version }
func (b *BaseService) Router() *mux.Router  { return b.router }

// Logger returns the service's structured logger.
func (b *BaseService) Logger() *logging.Logger {
	if b == nil {
		return logging.NewFromEnv("service")
	}
	if b.logger != nil {
		return b.logger
	}
	serviceName := b.id
	if serviceName == "" {
		serviceName = "service"
	}
	b.logger = logging.NewFromEnv(serviceName)
	return b.logger
}

// WithHydrate sets an optional hydrate hook executed during Start.
// The hydrate function runs after the base service starts but before
// background workers are launched. Use this for loading persistent state.
func (b *BaseService) WithHydrate(fn func(context.Context) error) *BaseService {
	b.hydrate = fn
	return b
}

// WithStats sets a statistics provider function for the /info endpoint.
func (b *BaseService) WithStats(fn func() map[string]any) *BaseService {
	b.statsFn = fn
	return b
}

// AddWorker registers a background worker started after hydrate completes.
// Workers receive the context and should respect context cancellation and
// StopChan() for shutdown.
func (b *BaseService) AddWorker(fn func(context.Context)) *BaseService {
	b.workers = append(b.workers, fn)
	return b
}

type tickerWorkerConfig struct {
	name           string
	runImmediately bool
}

// TickerWorkerOption configures AddTickerWorker behavior.
type TickerWorkerOption func(*tickerWorkerConfig)

// WithTickerWorkerName sets a friendly name used in error logs.
func WithTickerWorkerName(name string) TickerWorkerOption {
	return func(cfg *tickerWorkerConfig) {
		cfg.name = name
	}
}

// WithTickerWorkerImmediate causes the worker to run once immediately on
// start, before waiting for the first ticker interval.
func WithTickerWorkerImmediate() TickerWorkerOption {
	return func(cfg *tickerWorkerConfig) {
		cfg.runImmediately = true
	}
}

// AddTickerWorker registers a periodic background worker. This wraps the
// common ticker loop pattern used by the health prober, pool monitor, and
// DR orchestrator's nightly backup and continuous-monitoring jobs.
func (b *BaseService) AddTickerWorker(interval time.Duration, fn func(context.Context) error, opts ...TickerWorkerOption) *BaseService {
	cfg := tickerWorkerConfig{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	worker := func(ctx context.Context) {
		logWorkerError := func(err error) {
			if err == nil {
				return
			}
			entry := b.Logger().WithContext(ctx).WithError(err)
			if cfg.name != "" {
				entry = entry.WithField("worker", cfg.name)
			}
			entry.Warn("worker error")
		}

		if cfg.runImmediately {
			select {
			case <-ctx.Done():
				return
			case <-b.stopCh:
				return
			default:
			}

			if err := fn(ctx); err != nil {
				logWorkerError(err)
			}
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-b.stopCh:
				return
			case <-ticker.C:
				if err := fn(ctx); err != nil {
					logWorkerError(err)
				}
			}
		}
	}
	b.workers = append(b.workers, worker)
	return b
}

// StopChan exposes the stop channel for worker goroutines.
func (b *BaseService) StopChan() <-chan struct{} {
	return b.stopCh
}

// Start runs hydrate once, then spins up background workers.
func (b *BaseService) Start(ctx context.Context) error {
	b.healthMu.Lock()
	if b.startTime.IsZero() {
		b.startTime = time.Now()
	}
	b.healthMu.Unlock()

	if b.hydrate != nil {
		if err := b.hydrate(ctx); err != nil {
			return fmt.Errorf("hydrate: %w", err)
		}
	}

	for _, w := range b.workers {
		worker := w
		go worker(ctx)
	}
	return nil
}

// Stop signals workers to exit. It is idempotent.
func (b *BaseService) Stop() error {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
	return nil
}

// WorkerCount returns the number of registered workers.
func (b *BaseService) WorkerCount() int {
	return len(b.workers)
}

// Workers is an alias for WorkerCount.
func (b *BaseService) Workers() int {
	return b.WorkerCount()
}

// Statistics returns the configured statistics provider's output, or an
// empty map when none was set.
func (b *BaseService) Statistics() map[string]any {
	if b.statsFn == nil {
		return map[string]any{}
	}
	return b.statsFn()
}

// CheckHealth refreshes the cached health state by probing the configured
// persistence backend and required environment variables.
func (b *BaseService) CheckHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	backendHealthy := true
	if b.backend != nil {
		if _, err := b.backend.List(ctx, ""); err != nil {
			backendHealthy = false
		}
	}

	envLoaded := true
	for _, name := range b.requiredEnv {
		if name == "" {
			continue
		}
		if os.Getenv(name) == "" {
			envLoaded = false
			break
		}
	}

	b.healthMu.Lock()
	b.backendHealthy = backendHealthy
	b.envLoaded = envLoaded || len(b.requiredEnv) == 0
	b.lastHealthCheck = time.Now()
	b.healthMu.Unlock()
}

// HealthStatus returns the aggregated health status string.
func (b *BaseService) HealthStatus() string {
	b.CheckHealth()
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()
	return b.healthStatusLocked()
}

// HealthDetails returns a map describing the most recent health state.
func (b *BaseService) HealthDetails() map[string]any {
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()

	details := map[string]any{
		"backend_connected": b.backendHealthy,
		"env_loaded":        len(b.requiredEnv) == 0 || b.envLoaded,
	}

	if !b.lastHealthCheck.IsZero() {
		details["last_check"] = b.lastHealthCheck.Format(time.RFC3339)
	} else {
		details["last_check"] = ""
	}

	uptime := time.Duration(0)
	if !b.startTime.IsZero() {
		uptime = time.Since(b.startTime)
	}
	details["uptime"] = uptime.String()

	return details
}

func (b *BaseService) healthStatusLocked() string {
	if b.backend != nil && !b.backendHealthy {
		return "unhealthy"
	}
	if len(b.requiredEnv) > 0 && !b.envLoaded {
		return "degraded"
	}
	return "healthy"
}

func mergeUniqueStrings(values []string, extras ...string) []string {
	seen := make(map[string]struct{})
	result := make([]string, 0, len(values)+len(extras))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	for _, v := range extras {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ HealthChecker = (*BaseService)(nil)
var _ StatisticsProvider = (*BaseService)(nil)
var _ ComponentService = (*BaseService)(nil)
