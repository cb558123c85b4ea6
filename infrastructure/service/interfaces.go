// Package service provides common lifecycle, health, and HTTP-surface
// infrastructure shared by every background subsystem of the core.
package service

import (
	"context"

	"github.com/gorilla/mux"
)

// ComponentService is the interface every background subsystem implements.
// It ensures consistent lifecycle management across the registry, dispatcher,
// cache coordinator, pool monitor, and DR orchestrator.
type ComponentService interface {
	ID() string
	Name() string
	Version() string

	Start(ctx context.Context) error
	Stop() error

	Router() *mux.Router
}

// StatisticsProvider provides runtime statistics for the /info endpoint.
// Components implementing this interface have their statistics included
// in the standard info response.
type StatisticsProvider interface {
	// Statistics returns component-specific runtime statistics.
	Statistics() map[string]any
}

// Hydratable components can reload state from persistence on startup.
// This is called during Start() after the base service is initialized
// but before background workers are started.
type Hydratable interface {
	Hydrate(ctx context.Context) error
}

// HealthChecker provides custom health check logic.
type HealthChecker interface {
	// HealthStatus returns "healthy", "degraded", or "unhealthy".
	HealthStatus() string

	HealthDetails() map[string]any
}
