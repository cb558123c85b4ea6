// Package adminapi is the fleet resilience core's administrative HTTP
// surface: load balancer, cache coordinator, connection pool monitor, and
// disaster recovery operations, mounted under /admin on a gorilla/mux
// router behind infrastructure/middleware.HeaderGateMiddleware.
package adminapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dsrplatform/fleetcore/infrastructure/errors"
	"github.com/dsrplatform/fleetcore/infrastructure/httputil"
	"github.com/dsrplatform/fleetcore/infrastructure/logging"
	"github.com/dsrplatform/fleetcore/internal/backup"
	"github.com/dsrplatform/fleetcore/internal/breaker"
	"github.com/dsrplatform/fleetcore/internal/cachecoord"
	"github.com/dsrplatform/fleetcore/internal/dispatcher"
	"github.com/dsrplatform/fleetcore/internal/drorchestrator"
	"github.com/dsrplatform/fleetcore/internal/failover"
	"github.com/dsrplatform/fleetcore/internal/instmetrics"
	"github.com/dsrplatform/fleetcore/internal/poolmonitor"
	"github.com/dsrplatform/fleetcore/internal/prober"
	"github.com/dsrplatform/fleetcore/internal/registry"
)

// Deps wires every internal component the administrative surface reaches
// into. All fields are required except Pool, which is nil when no
// PoolSource was configured.
type Deps struct {
	Registry   *registry.Registry
	Dispatcher *dispatcher.Dispatcher
	Breakers   *breaker.Registry
	Metrics    *instmetrics.Registry
	Prober     *prober.Prober
	Cache      *cachecoord.Coordinator
	Pool       *poolmonitor.Monitor
	Backup     *backup.Engine
	Failover   *failover.Engine
	DR         *drorchestrator.Orchestrator
	Logger     *logging.Logger
}

type api struct {
	d *Deps
}

// Register mounts every /admin/... route (§6 of the external interfaces
// contract) onto router. Callers are expected to wrap router with
// middleware.HeaderGateMiddleware before serving it.
func Register(router *mux.Router, deps *Deps) {
	if deps.Logger == nil {
		deps.Logger = logging.NewFromEnv("admin-api")
	}
	a := &api{d: deps}

	lb := router.PathPrefix("/admin/load-balancer").Subrouter()
	lb.HandleFunc("/health", a.lbHealth).Methods(http.MethodGet)
	lb.HandleFunc("/statistics", a.lbStatistics).Methods(http.MethodGet)
	lb.HandleFunc("/strategies", a.lbStrategies).Methods(http.MethodGet)
	lb.HandleFunc("/health-check", a.lbHealthCheck).Methods(http.MethodPost)
	lb.HandleFunc("/circuit-breakers", a.lbCircuitBreakers).Methods(http.MethodGet)
	lb.HandleFunc("/circuit-breakers/{id}/reset", a.lbCircuitBreakerReset).Methods(http.MethodPost)
	lb.HandleFunc("/metrics/{id}", a.lbRecordMetric).Methods(http.MethodPost)
	lb.HandleFunc("/services/{name}/instances", a.lbListInstances).Methods(http.MethodGet)
	lb.HandleFunc("/services/{name}/instances", a.lbRegisterInstance).Methods(http.MethodPost)
	lb.HandleFunc("/services/{name}/instances/{id}", a.lbDeregisterInstance).Methods(http.MethodDelete)
	lb.HandleFunc("/services/{name}/route", a.lbRoute).Methods(http.MethodPost)

	cache := router.PathPrefix("/admin/redis-cluster").Subrouter()
	cache.HandleFunc("/health", a.cacheHealth).Methods(http.MethodGet)
	cache.HandleFunc("/info", a.cacheInfo).Methods(http.MethodGet)
	cache.HandleFunc("/statistics", a.cacheStats).Methods(http.MethodGet)
	cache.HandleFunc("/metrics", a.cacheStats).Methods(http.MethodGet)
	cache.HandleFunc("/nodes", a.cacheInfo).Methods(http.MethodGet)
	cache.HandleFunc("/warmup", a.cacheWarmup).Methods(http.MethodPost)
	cache.HandleFunc("/health-check", a.cacheHealthCheck).Methods(http.MethodPost)
	cache.HandleFunc("/cache", a.cacheClearAll).Methods(http.MethodDelete)
	cache.HandleFunc("/cache/{name}", a.cacheClearNamespace).Methods(http.MethodDelete)
	cache.HandleFunc("/cache/{name}/hit-rate", a.cacheHitRate).Methods(http.MethodGet)

	pool := router.PathPrefix("/admin/pool-monitor").Subrouter()
	pool.HandleFunc("/samples", a.poolSamples).Methods(http.MethodGet)
	pool.HandleFunc("/recommendations", a.poolRecommendations).Methods(http.MethodGet)

	dr := router.PathPrefix("/admin/dr").Subrouter()
	dr.HandleFunc("/backup-plans", a.drSubmitBackupPlan).Methods(http.MethodPost)
	dr.HandleFunc("/backup-plans/{id}", a.drBackupPlanStatus).Methods(http.MethodGet)
	dr.HandleFunc("/failover", a.drInitiateFailover).Methods(http.MethodPost)
	dr.HandleFunc("/status", a.drStatus).Methods(http.MethodGet)
	dr.HandleFunc("/history", a.drHistory).Methods(http.MethodGet)
	dr.HandleFunc("/events/stream", a.drEventsStream)
}

// writeServiceErr maps a *errors.ServiceError to the administrative
// {kind, message, retryable} envelope; any other error becomes a generic
// 500.
func (a *api) writeServiceErr(w http.ResponseWriter, r *http.Request, err error) {
	if svcErr := errors.GetServiceError(err); svcErr != nil {
		httputil.WriteErrorResponse(w, r, svcErr.HTTPStatus, string(svcErr.Code), svcErr.Message, errors.Retryable(svcErr), svcErr.Details)
		return
	}
	httputil.InternalError(w, err.Error())
}

func pathVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}
