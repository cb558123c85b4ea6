package adminapi

import (
	"net/http"

	"github.com/dsrplatform/fleetcore/infrastructure/httputil"
)

func (a *api) poolSamples(w http.ResponseWriter, r *http.Request) {
	if a.d.Pool == nil {
		httputil.WriteJSON(w, http.StatusOK, []any{})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a.d.Pool.Samples())
}

func (a *api) poolRecommendations(w http.ResponseWriter, r *http.Request) {
	if a.d.Pool == nil {
		httputil.WriteJSON(w, http.StatusOK, []any{})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a.d.Pool.Recommendations())
}
