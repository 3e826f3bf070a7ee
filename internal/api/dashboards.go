package api

import (
	"net/http"

	"github.com/duckmesh/reportdesk/internal/dashboard"
)

type createDashboardRequest struct {
	Name string `json:"name"`
}

type setReportsRequest struct {
	ReportIDs []string `json:"report_ids"`
}

func handleListDashboards(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Dashboards == nil {
		notConfigured(w, r, "dashboard")
		return
	}
	dashboards, err := deps.Dashboards.ListDashboards(r.Context())
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	if dashboards == nil {
		dashboards = []dashboard.Dashboard{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"dashboards": dashboards})
}

func handleCreateDashboard(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Dashboards == nil {
		notConfigured(w, r, "dashboard")
		return
	}
	var req createDashboardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	created, err := deps.Dashboards.CreateDashboard(r.Context(), req.Name)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func handleGetDashboard(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Dashboards == nil {
		notConfigured(w, r, "dashboard")
		return
	}
	loaded, err := deps.Dashboards.LoadDashboard(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, loaded)
}

func handleDeleteDashboard(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Dashboards == nil {
		notConfigured(w, r, "dashboard")
		return
	}
	if err := deps.Dashboards.DeleteDashboard(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleSetDashboardReports(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Dashboards == nil {
		notConfigured(w, r, "dashboard")
		return
	}
	var req setReportsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	updated, err := deps.Dashboards.SetReports(r.Context(), r.PathValue("id"), req.ReportIDs)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleRenderDashboard answers 200 even when some tiles failed; failures are
// reported per tile.
func handleRenderDashboard(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Dashboards == nil {
		notConfigured(w, r, "dashboard")
		return
	}
	loaded, tiles, err := deps.Dashboards.Render(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	if tiles == nil {
		tiles = []dashboard.Tile{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"dashboard": loaded, "tiles": tiles})
}
