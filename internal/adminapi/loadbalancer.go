package adminapi

import (
	"context"
	"net/http"

	"github.com/dsrplatform/fleetcore/infrastructure/errors"
	"github.com/dsrplatform/fleetcore/infrastructure/httputil"
	"github.com/dsrplatform/fleetcore/internal/dispatcher"
	"github.com/dsrplatform/fleetcore/internal/registry"
)

type serviceHealthReport struct {
	ServiceName     string `json:"serviceName"`
	TotalInstances  int    `json:"totalInstances"`
	HealthyInstances int   `json:"healthyInstances"`
}

func (a *api) lbHealth(w http.ResponseWriter, r *http.Request) {
	names := a.d.Registry.ServiceNames()
	reports := make([]serviceHealthReport, 0, len(names))
	for _, name := range names {
		reports = append(reports, serviceHealthReport{
			ServiceName:      name,
			TotalInstances:   len(a.d.Registry.List(name)),
			HealthyInstances: len(a.d.Registry.ListHealthy(name)),
		})
	}
	httputil.WriteJSON(w, http.StatusOK, reports)
}

type instanceStatistics struct {
	Instance registry.Instance  `json:"instance"`
	Metrics  interface{}        `json:"metrics"`
	Breaker  interface{}        `json:"breaker"`
}

func (a *api) lbStatistics(w http.ResponseWriter, r *http.Request) {
	var out []instanceStatistics
	for _, name := range a.d.Registry.ServiceNames() {
		for _, inst := range a.d.Registry.List(name) {
			out = append(out, instanceStatistics{
				Instance: *inst,
				Metrics:  a.d.Metrics.Snapshot(inst.ID),
				Breaker:  a.d.Breakers.Status(inst.ID),
			})
		}
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (a *api) lbStrategies(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		Name        dispatcher.Strategy `json:"name"`
		RequiresKey bool                `json:"requiresKey"`
	}
	out := make([]entry, 0, len(dispatcher.AllStrategies))
	for _, s := range dispatcher.AllStrategies {
		out = append(out, entry{Name: s, RequiresKey: s.RequiresKey()})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (a *api) lbHealthCheck(w http.ResponseWriter, r *http.Request) {
	results := a.d.Prober.CheckAll(r.Context())
	httputil.WriteJSON(w, http.StatusOK, results)
}

func (a *api) lbCircuitBreakers(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, a.d.Breakers.Snapshot())
}

func (a *api) lbCircuitBreakerReset(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	a.d.Breakers.Reset(id)
	httputil.RespondNoContent(w)
}

func (a *api) lbListInstances(w http.ResponseWriter, r *http.Request) {
	name := pathVar(r, "name")
	httputil.WriteJSON(w, http.StatusOK, a.d.Registry.ListHealthy(name))
}

type registerInstanceRequest struct {
	ID     string `json:"id"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Weight int    `json:"weight"`
}

func (a *api) lbRegisterInstance(w http.ResponseWriter, r *http.Request) {
	name := pathVar(r, "name")
	var req registerInstanceRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	inst, err := a.d.Registry.Register(name, registry.Registration{
		ID: req.ID, Host: req.Host, Port: req.Port, Weight: req.Weight,
	})
	if err != nil {
		a.writeServiceErr(w, r, err)
		return
	}
	httputil.RespondCreated(w, inst)
}

func (a *api) lbDeregisterInstance(w http.ResponseWriter, r *http.Request) {
	name := pathVar(r, "name")
	id := pathVar(r, "id")
	if err := a.d.Registry.Deregister(name, id); err != nil {
		a.writeServiceErr(w, r, err)
		return
	}
	httputil.RespondNoContent(w)
}

func (a *api) lbRoute(w http.ResponseWriter, r *http.Request) {
	name := pathVar(r, "name")
	strategy := dispatcher.Strategy(httputil.QueryString(r, "strategy", string(dispatcher.RoundRobin)))
	key := httputil.QueryString(r, "key", "")

	inst, err := a.d.Dispatcher.Route(name, strategy, key)
	if err != nil {
		a.writeServiceErr(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, inst)
}

func (a *api) lbRecordMetric(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	latency := float64(httputil.QueryInt(r, "responseTimeMs", 0))
	success := httputil.QueryBool(r, "success", true)

	inst, ok := a.findInstanceByID(r.Context(), id)
	if !ok {
		a.writeServiceErr(w, r, errors.NotFound("instance", id))
		return
	}
	a.d.Dispatcher.RecordOutcome(inst, latency, success)
	a.d.Metrics.RecordRequest(inst.ServiceName, inst.ID, latency, success)
	httputil.RespondNoContent(w)
}

// findInstanceByID scans every registered service for an instance ID; the
// registry indexes instances per service name, not globally, and the
// metrics-recording endpoint only has the bare instance ID to go on.
func (a *api) findInstanceByID(_ context.Context, id string) (*registry.Instance, bool) {
	for _, name := range a.d.Registry.ServiceNames() {
		if inst, ok := a.d.Registry.Get(name, id); ok {
			return inst, true
		}
	}
	return nil, false
}
