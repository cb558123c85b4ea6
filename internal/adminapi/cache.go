package adminapi

import (
	"net/http"

	"github.com/dsrplatform/fleetcore/infrastructure/httputil"
)

func (a *api) cacheHealth(w http.ResponseWriter, r *http.Request) {
	healthy := a.d.Cache.Healthy(r.Context())
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, map[string]bool{"healthy": healthy})
}

func (a *api) cacheInfo(w http.ResponseWriter, r *http.Request) {
	info, err := a.d.Cache.ClusterInfo(r.Context())
	if err != nil {
		a.writeServiceErr(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, info)
}

func (a *api) cacheStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, a.d.Cache.Stats())
}

func (a *api) cacheWarmup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Namespace string            `json:"namespace"`
		Entries   map[string]string `json:"entries"`
	}
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	entries := make(map[string][]byte, len(req.Entries))
	for k, v := range req.Entries {
		entries[k] = []byte(v)
	}
	if err := a.d.Cache.Warmup(r.Context(), req.Namespace, entries); err != nil {
		a.writeServiceErr(w, r, err)
		return
	}
	httputil.RespondNoContent(w)
}

func (a *api) cacheHealthCheck(w http.ResponseWriter, r *http.Request) {
	a.cacheHealth(w, r)
}

func (a *api) cacheClearAll(w http.ResponseWriter, r *http.Request) {
	for _, ns := range a.d.Cache.Namespaces() {
		if err := a.d.Cache.Clear(r.Context(), ns); err != nil {
			a.writeServiceErr(w, r, err)
			return
		}
	}
	httputil.RespondNoContent(w)
}

func (a *api) cacheClearNamespace(w http.ResponseWriter, r *http.Request) {
	name := pathVar(r, "name")
	if err := a.d.Cache.Clear(r.Context(), name); err != nil {
		a.writeServiceErr(w, r, err)
		return
	}
	httputil.RespondNoContent(w)
}

// cacheHitRate reports the coordinator's aggregate hit rate. The
// coordinator tracks hits/misses globally rather than per namespace, so
// this is the same figure Stats() reports regardless of which namespace is
// named in the path.
func (a *api) cacheHitRate(w http.ResponseWriter, r *http.Request) {
	name := pathVar(r, "name")
	stats := a.d.Cache.Stats()
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"namespace": name,
		"hitRate":   stats.HitRate,
	})
}
