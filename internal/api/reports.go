package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/duckmesh/reportdesk/internal/chart"
	"github.com/duckmesh/reportdesk/internal/chartimage"
	"github.com/duckmesh/reportdesk/internal/designer"
	"github.com/duckmesh/reportdesk/internal/export"
	"github.com/duckmesh/reportdesk/internal/observability"
	"github.com/duckmesh/reportdesk/internal/report"
)

type saveReportRequest struct {
	Name           string     `json:"name"`
	SQL            string     `json:"sql"`
	Interpretation string     `json:"interpretation"`
	ChartSpec      chart.Spec `json:"chart_spec"`
}

func handleListReports(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Reports == nil {
		notConfigured(w, r, "report")
		return
	}
	reports, err := deps.Reports.List(r.Context())
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	if reports == nil {
		reports = []report.Report{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

func handleGetReport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Reports == nil {
		notConfigured(w, r, "report")
		return
	}
	loaded, err := deps.Reports.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, loaded)
}

// handleSaveReport creates a report when id is empty and overwrites it
// otherwise.
func handleSaveReport(deps Dependencies, w http.ResponseWriter, r *http.Request, id string) {
	if deps.Designer == nil {
		notConfigured(w, r, "designer")
		return
	}
	var req saveReportRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	saved, err := deps.Designer.Save(r.Context(), designer.Draft{
		ReportID:       id,
		Name:           req.Name,
		SQL:            req.SQL,
		Interpretation: req.Interpretation,
		Spec:           req.ChartSpec,
	})
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	status := http.StatusOK
	if id == "" {
		status = http.StatusCreated
	}
	writeJSON(w, status, saved)
}

func handleDeleteReport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Reports == nil {
		notConfigured(w, r, "report")
		return
	}
	if err := deps.Reports.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleExportReport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	format, snap, ok := exportSnapshot(deps, w, r)
	if !ok {
		return
	}
	file, err := export.Encode(format, snap)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	observability.ObserveExport(string(format), "download")

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.Header().Set("X-Row-Count", strconv.Itoa(file.Rows))
	w.Header().Set("X-Truncated", strconv.FormatBool(snap.Truncated))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Data)
}

// handleReportChart replays a report and draws its chart as a PNG.
func handleReportChart(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Reports == nil || deps.Queries == nil || deps.Charts == nil {
		notConfigured(w, r, "chart")
		return
	}
	opts, err := imageOptions(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), false, nil)
		return
	}
	loaded, err := deps.Reports.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	result, err := deps.Queries.RunSQL(r.Context(), loaded.SQL)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	spec := loaded.Spec
	outcome, err := deps.Charts.Build(result.ResultSet, &spec)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	data, err := chartimage.Render(outcome.Drawable, opts)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	observability.ObserveExport("png", "download")

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", export.BaseName(loaded.Name)+".png"))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Chart-Template", string(outcome.Drawable.Template))
	w.Header().Set("X-Truncated", strconv.FormatBool(result.Truncated))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func imageOptions(r *http.Request) (chartimage.Options, error) {
	var opts chartimage.Options
	for name, target := range map[string]*int{"width": &opts.Width, "height": &opts.Height} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			return chartimage.Options{}, fmt.Errorf("%s must be a positive integer", name)
		}
		*target = value
	}
	return opts, nil
}

func handleArchiveReport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Archiver == nil {
		notConfigured(w, r, "archive")
		return
	}
	format, snap, ok := exportSnapshot(deps, w, r)
	if !ok {
		return
	}
	archived, err := deps.Archiver.Archive(r.Context(), format, snap)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, archived)
}

func handleListArchives(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Archiver == nil || deps.Reports == nil {
		notConfigured(w, r, "archive")
		return
	}
	loaded, err := deps.Reports.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	objects, err := deps.Archiver.List(r.Context(), loaded.ID)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report_id": loaded.ID, "exports": objects})
}

// exportSnapshot loads the report, re-runs its SQL and parses ?format=. On
// failure it has already written the error response.
func exportSnapshot(deps Dependencies, w http.ResponseWriter, r *http.Request) (export.Format, export.Snapshot, bool) {
	if deps.Reports == nil || deps.Queries == nil {
		notConfigured(w, r, "export")
		return "", export.Snapshot{}, false
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return "", export.Snapshot{}, false
	}
	loaded, err := deps.Reports.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return "", export.Snapshot{}, false
	}
	result, err := deps.Queries.RunSQL(r.Context(), loaded.SQL)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return "", export.Snapshot{}, false
	}
	return format, export.Snapshot{
		Report:     loaded,
		Result:     result.ResultSet,
		Truncated:  result.Truncated,
		ExportedAt: deps.Now(),
	}, true
}
