package designer

import (
	"context"
	"fmt"
	"strings"

	"github.com/duckmesh/reportdesk/internal/chart"
	"github.com/duckmesh/reportdesk/internal/observability"
	"github.com/duckmesh/reportdesk/internal/query"
	"github.com/duckmesh/reportdesk/internal/report"
	"github.com/duckmesh/reportdesk/internal/resultset"
)

// Draft is a report being designed. ReportID is set when editing a saved
// report.
type Draft struct {
	ReportID       string     `json:"report_id,omitempty"`
	Name           string     `json:"name"`
	SQL            string     `json:"sql"`
	Interpretation string     `json:"interpretation"`
	Spec           chart.Spec `json:"chart_spec"`
}

type Preview struct {
	Outcome   chart.Outcome `json:"outcome"`
	Truncated bool          `json:"truncated"`
}

type QueryRunner interface {
	RunSQL(ctx context.Context, sqlText string) (query.Result, error)
}

type ChartBuilder interface {
	Build(rs resultset.ResultSet, override *chart.Spec) (chart.Outcome, error)
}

type ReportSaver interface {
	Save(ctx context.Context, in report.Report) (report.Report, error)
}

type Service struct {
	runner  QueryRunner
	charts  ChartBuilder
	reports ReportSaver
}

func NewService(runner QueryRunner, charts ChartBuilder, reports ReportSaver) *Service {
	return &Service{runner: runner, charts: charts, reports: reports}
}

// Preview re-runs the draft SQL and renders it. A non-empty draft spec is
// applied as an override, so a binding to a missing column fails here rather
// than after saving.
func (s *Service) Preview(ctx context.Context, draft Draft) (Preview, error) {
	sqlText := strings.TrimSpace(draft.SQL)
	if sqlText == "" {
		return Preview{}, fmt.Errorf("%w: sql is required", report.ErrInvalid)
	}
	result, err := s.runner.RunSQL(ctx, sqlText)
	if err != nil {
		return Preview{}, err
	}

	var override *chart.Spec
	if !draft.Spec.IsZero() {
		spec := draft.Spec.Clone()
		override = &spec
	}
	outcome, err := s.charts.Build(result.ResultSet, override)
	if err != nil {
		return Preview{}, err
	}
	observability.ObserveChartSelection(string(outcome.Spec.Template), outcome.Selection.Rule)
	return Preview{Outcome: outcome, Truncated: result.Truncated}, nil
}

func (s *Service) Save(ctx context.Context, draft Draft) (report.Report, error) {
	return s.reports.Save(ctx, report.Report{
		ID:             draft.ReportID,
		Name:           draft.Name,
		SQL:            draft.SQL,
		Interpretation: draft.Interpretation,
		Spec:           draft.Spec,
	})
}
