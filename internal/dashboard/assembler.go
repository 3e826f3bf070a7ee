package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/duckmesh/reportdesk/internal/chart"
	"github.com/duckmesh/reportdesk/internal/observability"
	"github.com/duckmesh/reportdesk/internal/query"
	"github.com/duckmesh/reportdesk/internal/report"
	"github.com/duckmesh/reportdesk/internal/resultset"
	"github.com/duckmesh/reportdesk/internal/semantic"
)

const DefaultRenderConcurrency = 4

type ReportLoader interface {
	Load(ctx context.Context, id string) (report.Report, error)
}

type QueryRunner interface {
	RunSQL(ctx context.Context, sqlText string) (query.Result, error)
}

type ChartBuilder interface {
	Build(rs resultset.ResultSet, override *chart.Spec) (chart.Outcome, error)
}

// Tile error kinds.
const (
	KindNotFound      = "not_found"
	KindUpstreamQuery = "upstream_query"
	KindSpecMismatch  = "spec_mismatch"
	KindInvalidSpec   = "invalid_spec"
	KindInternal      = "internal"
)

type TileError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Column  string `json:"column,omitempty"`
}

// Tile is one rendered report. Exactly one of Outcome and Error is set.
type Tile struct {
	Position       int            `json:"position"`
	ReportID       string         `json:"report_id"`
	Name           string         `json:"name,omitempty"`
	Interpretation string         `json:"interpretation,omitempty"`
	Outcome        *chart.Outcome `json:"outcome,omitempty"`
	Truncated      bool           `json:"truncated,omitempty"`
	Error          *TileError     `json:"error,omitempty"`
}

type Assembler struct {
	repo        Repository
	reports     ReportLoader
	runner      QueryRunner
	charts      ChartBuilder
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
}

func NewAssembler(repo Repository, reports ReportLoader, runner QueryRunner, charts ChartBuilder, concurrency int, logger *slog.Logger) *Assembler {
	if concurrency <= 0 {
		concurrency = DefaultRenderConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		repo:        repo,
		reports:     reports,
		runner:      runner,
		charts:      charts,
		concurrency: concurrency,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
}

func (a *Assembler) CreateDashboard(ctx context.Context, name string) (Dashboard, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Dashboard{}, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	now := report.StoreTime(a.now())
	created, err := a.repo.InsertDashboard(ctx, Dashboard{
		ID:        a.newID(),
		Name:      name,
		ReportIDs: []string{},
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Dashboard{}, fmt.Errorf("insert dashboard: %w", err)
	}
	return created, nil
}

// SetReports replaces the membership of dashboard id. Order is kept, repeats
// collapse onto their first position and every report must exist now.
func (a *Assembler) SetReports(ctx context.Context, id string, reportIDs []string) (Dashboard, error) {
	id = strings.TrimSpace(id)
	members := make([]string, 0, len(reportIDs))
	seen := make(map[string]struct{}, len(reportIDs))
	for _, reportID := range reportIDs {
		reportID = strings.TrimSpace(reportID)
		if reportID == "" {
			return Dashboard{}, fmt.Errorf("%w: report id must not be empty", ErrInvalid)
		}
		if _, ok := seen[reportID]; ok {
			continue
		}
		seen[reportID] = struct{}{}
		members = append(members, reportID)
	}

	if _, err := a.LoadDashboard(ctx, id); err != nil {
		return Dashboard{}, err
	}
	for _, reportID := range members {
		if _, err := a.reports.Load(ctx, reportID); err != nil {
			if errors.Is(err, report.ErrNotFound) {
				return Dashboard{}, &UnknownReportError{ReportID: reportID}
			}
			return Dashboard{}, fmt.Errorf("check report %q: %w", reportID, err)
		}
	}

	updated, err := a.repo.SetDashboardReports(ctx, id, members, report.StoreTime(a.now()))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Dashboard{}, err
		}
		return Dashboard{}, fmt.Errorf("set dashboard reports: %w", err)
	}
	return updated, nil
}

func (a *Assembler) LoadDashboard(ctx context.Context, id string) (Dashboard, error) {
	loaded, err := a.repo.GetDashboard(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Dashboard{}, err
		}
		return Dashboard{}, fmt.Errorf("load dashboard %q: %w", id, err)
	}
	return loaded, nil
}

func (a *Assembler) ListDashboards(ctx context.Context) ([]Dashboard, error) {
	dashboards, err := a.repo.ListDashboards(ctx)
	if err != nil {
		return nil, fmt.Errorf("list dashboards: %w", err)
	}
	return dashboards, nil
}

func (a *Assembler) DeleteDashboard(ctx context.Context, id string) error {
	deleted, err := a.repo.DeleteDashboard(ctx, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("delete dashboard %q: %w", id, err)
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

// Render re-runs every member report and renders it with its stored spec.
// A failing tile carries its error and never fails its siblings.
func (a *Assembler) Render(ctx context.Context, id string) (Dashboard, []Tile, error) {
	loaded, err := a.LoadDashboard(ctx, id)
	if err != nil {
		return Dashboard{}, nil, err
	}

	tiles := make([]Tile, len(loaded.ReportIDs))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(a.concurrency)
	for i, reportID := range loaded.ReportIDs {
		group.Go(func() error {
			tiles[i] = a.renderTile(groupCtx, i, reportID)
			return nil
		})
	}
	_ = group.Wait()

	failed := 0
	for _, tile := range tiles {
		if tile.Error != nil {
			failed++
		}
	}
	if failed > 0 {
		a.logger.WarnContext(ctx, "dashboard rendered with failing tiles",
			slog.String("dashboard_id", loaded.ID),
			slog.Int("tiles", len(tiles)),
			slog.Int("failed", failed),
		)
	}
	return loaded, tiles, nil
}

func (a *Assembler) renderTile(ctx context.Context, position int, reportID string) Tile {
	tile := Tile{Position: position, ReportID: reportID}

	rep, err := a.reports.Load(ctx, reportID)
	if err != nil {
		return failTile(tile, err)
	}
	tile.Name = rep.Name
	tile.Interpretation = rep.Interpretation

	result, err := a.runner.RunSQL(ctx, rep.SQL)
	if err != nil {
		return failTile(tile, err)
	}
	tile.Truncated = result.Truncated

	var override *chart.Spec
	if !rep.Spec.IsZero() {
		stored := rep.Spec.Clone()
		override = &stored
	}
	outcome, err := a.charts.Build(result.ResultSet, override)
	if err != nil {
		return failTile(tile, err)
	}
	tile.Outcome = &outcome
	observability.ObserveDashboardTile("ok", "")
	return tile
}

func failTile(tile Tile, err error) Tile {
	tile.Error = tileError(err)
	observability.ObserveDashboardTile("error", tile.Error.Kind)
	return tile
}

func tileError(err error) *TileError {
	var mismatch *chart.RenderSpecMismatchError
	var upstream *semantic.UpstreamQueryError
	switch {
	case errors.Is(err, report.ErrNotFound):
		return &TileError{Kind: KindNotFound, Message: "report no longer exists"}
	case errors.As(err, &mismatch):
		observability.IncrementSpecMismatch()
		return &TileError{Kind: KindSpecMismatch, Message: err.Error(), Column: mismatch.Column}
	case errors.Is(err, chart.ErrInvalidSpec):
		return &TileError{Kind: KindInvalidSpec, Message: err.Error()}
	case errors.As(err, &upstream):
		return &TileError{Kind: KindUpstreamQuery, Message: err.Error()}
	default:
		return &TileError{Kind: KindInternal, Message: err.Error()}
	}
}
