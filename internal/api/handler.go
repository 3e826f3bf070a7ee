package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/duckmesh/reportdesk/internal/chart"
	"github.com/duckmesh/reportdesk/internal/chartimage"
	"github.com/duckmesh/reportdesk/internal/config"
	"github.com/duckmesh/reportdesk/internal/dashboard"
	"github.com/duckmesh/reportdesk/internal/designer"
	"github.com/duckmesh/reportdesk/internal/export"
	"github.com/duckmesh/reportdesk/internal/observability"
	"github.com/duckmesh/reportdesk/internal/query"
	"github.com/duckmesh/reportdesk/internal/report"
	"github.com/duckmesh/reportdesk/internal/resultset"
	"github.com/duckmesh/reportdesk/internal/semantic"
	"github.com/duckmesh/reportdesk/internal/storage"
)

const maxBodyBytes = 1 << 20

type ReadinessCheck func(ctx context.Context) error

type QueryService interface {
	CanTranslate() bool
	RunQuery(ctx context.Context, question string, execute bool) (semantic.Answer, error)
	RunSQL(ctx context.Context, sqlText string) (query.Result, error)
}

type ChartBuilder interface {
	Build(rs resultset.ResultSet, override *chart.Spec) (chart.Outcome, error)
}

type DesignerService interface {
	Preview(ctx context.Context, draft designer.Draft) (designer.Preview, error)
	Save(ctx context.Context, draft designer.Draft) (report.Report, error)
}

type ReportStore interface {
	Load(ctx context.Context, id string) (report.Report, error)
	List(ctx context.Context) ([]report.Report, error)
	Delete(ctx context.Context, id string) error
}

type DashboardService interface {
	CreateDashboard(ctx context.Context, name string) (dashboard.Dashboard, error)
	SetReports(ctx context.Context, id string, reportIDs []string) (dashboard.Dashboard, error)
	LoadDashboard(ctx context.Context, id string) (dashboard.Dashboard, error)
	ListDashboards(ctx context.Context) ([]dashboard.Dashboard, error)
	DeleteDashboard(ctx context.Context, id string) error
	Render(ctx context.Context, id string) (dashboard.Dashboard, []dashboard.Tile, error)
}

type ExportArchiver interface {
	Archive(ctx context.Context, format export.Format, snap export.Snapshot) (export.Archived, error)
	List(ctx context.Context, reportID string) ([]storage.ObjectInfo, error)
}

// Dependencies are optional; routes whose dependency is missing answer 501.
type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	DependencyTimeout time.Duration
	Queries           QueryService
	Charts            ChartBuilder
	Designer          DesignerService
	Reports           ReportStore
	Dashboards        DashboardService
	Archiver          ExportArchiver
	Now               func() time.Time
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})
	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		handleReady(deps, w, r)
	})
	mux.Handle("GET /v1/metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/ask", func(w http.ResponseWriter, r *http.Request) {
		handleAsk(deps, w, r)
	})
	mux.HandleFunc("POST /v1/sql", func(w http.ResponseWriter, r *http.Request) {
		handleSQL(deps, w, r)
	})
	mux.HandleFunc("POST /v1/designer/preview", func(w http.ResponseWriter, r *http.Request) {
		handleDesignerPreview(deps, w, r)
	})

	mux.HandleFunc("GET /v1/reports", func(w http.ResponseWriter, r *http.Request) {
		handleListReports(deps, w, r)
	})
	mux.HandleFunc("POST /v1/reports", func(w http.ResponseWriter, r *http.Request) {
		handleSaveReport(deps, w, r, "")
	})
	mux.HandleFunc("GET /v1/reports/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleGetReport(deps, w, r)
	})
	mux.HandleFunc("PUT /v1/reports/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleSaveReport(deps, w, r, r.PathValue("id"))
	})
	mux.HandleFunc("DELETE /v1/reports/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleDeleteReport(deps, w, r)
	})
	mux.HandleFunc("GET /v1/reports/{id}/export", func(w http.ResponseWriter, r *http.Request) {
		handleExportReport(deps, w, r)
	})
	mux.HandleFunc("GET /v1/reports/{id}/chart.png", func(w http.ResponseWriter, r *http.Request) {
		handleReportChart(deps, w, r)
	})
	mux.HandleFunc("POST /v1/reports/{id}/archive", func(w http.ResponseWriter, r *http.Request) {
		handleArchiveReport(deps, w, r)
	})
	mux.HandleFunc("GET /v1/reports/{id}/archive", func(w http.ResponseWriter, r *http.Request) {
		handleListArchives(deps, w, r)
	})

	mux.HandleFunc("GET /v1/dashboards", func(w http.ResponseWriter, r *http.Request) {
		handleListDashboards(deps, w, r)
	})
	mux.HandleFunc("POST /v1/dashboards", func(w http.ResponseWriter, r *http.Request) {
		handleCreateDashboard(deps, w, r)
	})
	mux.HandleFunc("GET /v1/dashboards/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleGetDashboard(deps, w, r)
	})
	mux.HandleFunc("DELETE /v1/dashboards/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleDeleteDashboard(deps, w, r)
	})
	mux.HandleFunc("PUT /v1/dashboards/{id}/reports", func(w http.ResponseWriter, r *http.Request) {
		handleSetDashboardReports(deps, w, r)
	})
	mux.HandleFunc("GET /v1/dashboards/{id}/render", func(w http.ResponseWriter, r *http.Request) {
		handleRenderDashboard(deps, w, r)
	})

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func handleReady(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Readiness == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
		return
	}
	timeout := deps.DependencyTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	if err := deps.Readiness(ctx); err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func CheckStoreDSN(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Store.DSN == "" {
			return errors.New("store dsn is not configured")
		}
		return nil
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

// decodeJSON reads a single JSON object and rejects unknown fields. On
// failure it has already written the error response.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", false, map[string]any{"details": err.Error()})
		return false
	}
	return true
}

func notConfigured(w http.ResponseWriter, r *http.Request, what string) {
	writeError(r.Context(), w, http.StatusNotImplemented, strings.ToUpper(what)+"_NOT_CONFIGURED", what+" dependency is not configured", false, nil)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}

// writeDomainError maps service errors onto the error envelope.
func writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		unknown  *dashboard.UnknownReportError
		mismatch *chart.RenderSpecMismatchError
		upstream *semantic.UpstreamQueryError
	)
	switch {
	case errors.As(err, &unknown):
		writeError(ctx, w, http.StatusUnprocessableEntity, "UNKNOWN_REPORT", err.Error(), false, map[string]any{"report_id": unknown.ReportID})
	case errors.Is(err, report.ErrNotFound):
		writeError(ctx, w, http.StatusNotFound, "REPORT_NOT_FOUND", "report was not found", false, nil)
	case errors.Is(err, dashboard.ErrNotFound):
		writeError(ctx, w, http.StatusNotFound, "DASHBOARD_NOT_FOUND", "dashboard was not found", false, nil)
	case errors.Is(err, report.ErrInvalid), errors.Is(err, dashboard.ErrInvalid):
		writeError(ctx, w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), false, nil)
	case errors.Is(err, query.ErrNotReadOnly), errors.Is(err, query.ErrEmptySQL):
		writeError(ctx, w, http.StatusBadRequest, "SQL_NOT_ALLOWED", err.Error(), false, nil)
	case errors.Is(err, export.ErrUnsupportedFormat):
		writeError(ctx, w, http.StatusBadRequest, "UNSUPPORTED_FORMAT", err.Error(), false, nil)
	case errors.As(err, &mismatch):
		observability.IncrementSpecMismatch()
		writeError(ctx, w, http.StatusUnprocessableEntity, "SPEC_MISMATCH", err.Error(), false, map[string]any{
			"column": mismatch.Column,
			"role":   mismatch.Role,
		})
	case errors.Is(err, chartimage.ErrNotPlottable):
		writeError(ctx, w, http.StatusUnprocessableEntity, "NOT_PLOTTABLE", err.Error(), false, nil)
	case errors.Is(err, chart.ErrInvalidSpec):
		writeError(ctx, w, http.StatusUnprocessableEntity, "INVALID_SPEC", err.Error(), false, nil)
	case errors.As(err, &upstream):
		status, code := http.StatusBadGateway, "UPSTREAM_QUERY_FAILED"
		if errors.Is(upstream.Err, context.DeadlineExceeded) {
			status, code = http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT"
		}
		retryable := true
		var hinted interface{ Retryable() bool }
		if errors.As(upstream.Err, &hinted) {
			retryable = hinted.Retryable()
		}
		writeError(ctx, w, status, code, fmt.Sprintf("%s step failed", upstream.Op), retryable, map[string]any{
			"op":      upstream.Op,
			"details": upstream.Err.Error(),
		})
	default:
		writeError(ctx, w, http.StatusInternalServerError, "INTERNAL", "internal error", true, map[string]any{"details": err.Error()})
	}
}
