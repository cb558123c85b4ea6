package adminapi

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/dsrplatform/fleetcore/infrastructure/httputil"
	"github.com/dsrplatform/fleetcore/internal/backup"
	"github.com/dsrplatform/fleetcore/internal/drorchestrator"
)

type backupPlanRequest struct {
	ID            string   `json:"id"`
	Type          string   `json:"type"`
	Components    []string `json:"components"`
	Compression   bool     `json:"compression"`
	Encryption    bool     `json:"encryption"`
	Verification  bool     `json:"verification"`
	RetentionDays int      `json:"retentionDays"`
}

func (a *api) drSubmitBackupPlan(w http.ResponseWriter, r *http.Request) {
	var req backupPlanRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	planType := backup.Full
	if req.Type != "" {
		planType = backup.PlanType(req.Type)
	}
	components := req.Components
	if len(components) == 0 {
		components = backup.RecognizedComponents()
	}
	result, err := a.d.Backup.Execute(r.Context(), backup.Plan{
		ID:            req.ID,
		Type:          planType,
		Components:    components,
		Compression:   req.Compression,
		Encryption:    req.Encryption,
		Verification:  req.Verification,
		RetentionDays: req.RetentionDays,
	})
	if err != nil {
		a.writeServiceErr(w, r, err)
		return
	}
	httputil.RespondCreated(w, result)
}

func (a *api) drBackupPlanStatus(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	meta, err := a.d.Backup.GetMetadata(r.Context(), id)
	if err != nil {
		a.writeServiceErr(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, meta)
}

func (a *api) drInitiateFailover(w http.ResponseWriter, r *http.Request) {
	var req drorchestrator.DisasterRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	result, err := a.d.DR.Initiate(r.Context(), req)
	if err != nil {
		a.writeServiceErr(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (a *api) drStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, a.d.DR.Status(r.Context()))
}

func (a *api) drHistory(w http.ResponseWriter, r *http.Request) {
	history, err := a.d.Failover.History(r.Context())
	if err != nil {
		a.writeServiceErr(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, history)
}

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// drEventsStream upgrades to a websocket and relays every DisasterEvent and
// failover execution transition the orchestrator publishes until the
// client disconnects or the orchestrator's event channel closes.
func (a *api) drEventsStream(w http.ResponseWriter, r *http.Request) {
	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		a.d.Logger.WithError(err).Warn("dr event stream upgrade failed")
		return
	}
	defer conn.Close()

	events := a.d.DR.Events()
	for evt := range events {
		if err := conn.WriteJSON(evt); err != nil {
			return
		}
	}
}
