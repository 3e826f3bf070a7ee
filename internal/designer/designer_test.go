package designer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/duckmesh/reportdesk/internal/chart"
	"github.com/duckmesh/reportdesk/internal/query"
	"github.com/duckmesh/reportdesk/internal/report"
	"github.com/duckmesh/reportdesk/internal/resultset"
	"github.com/duckmesh/reportdesk/internal/semantic"
)

func ordersResult() resultset.ResultSet {
	return resultset.ResultSet{
		Columns: []resultset.Column{
			{Name: "order_date", DatabaseType: "DATE"},
			{Name: "region", DatabaseType: "VARCHAR"},
			{Name: "revenue", DatabaseType: "DOUBLE"},
		},
		Rows: [][]any{
			{time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "north", 10.0},
			{time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), "south", 7.5},
		},
	}
}

type fakeRunner struct {
	result query.Result
	err    error
	calls  []string
}

func (f *fakeRunner) RunSQL(_ context.Context, sqlText string) (query.Result, error) {
	f.calls = append(f.calls, sqlText)
	if f.err != nil {
		return query.Result{}, f.err
	}
	return f.result, nil
}

type fakeSaver struct {
	saved []report.Report
}

func (f *fakeSaver) Save(_ context.Context, in report.Report) (report.Report, error) {
	if in.ID == "" {
		in.ID = "r-new"
	}
	f.saved = append(f.saved, in)
	return in, nil
}

func newTestService(runner *fakeRunner, saver *fakeSaver) *Service {
	return NewService(runner, chart.NewEngine(chart.NewRenderer(chart.DefaultMaxKPITiles)), saver)
}

func TestHandoffIsIsolatedFromSourceAndCallers(t *testing.T) {
	answer := semantic.Answer{
		Question:       "revenue by region",
		SQL:            "SELECT * FROM orders",
		Interpretation: "daily revenue split by region",
		Result:         query.Result{ResultSet: ordersResult()},
		Executed:       true,
	}
	spec := chart.Spec{Template: chart.TemplateStackedDateBar, Bindings: []chart.Binding{{Role: chart.RoleX, Column: "order_date"}}}
	handoff := NewHandoff(answer, spec, time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))

	answer.Result.ResultSet.Rows[0][1] = "mutated"
	spec.Bindings[0].Column = "mutated"
	if got := handoff.Result().Rows[0][1]; got != "north" {
		t.Fatalf("handoff row changed with source: %v", got)
	}
	if got := handoff.Spec().Bindings[0].Column; got != "order_date" {
		t.Fatalf("handoff spec changed with source: %q", got)
	}

	leaked := handoff.Result()
	leaked.Rows[1][1] = "mutated"
	if got := handoff.Result().Rows[1][1]; got != "south" {
		t.Fatalf("handoff row changed through accessor: %v", got)
	}

	draft := handoff.Draft("")
	if draft.Name != "revenue by region" || draft.SQL != "SELECT * FROM orders" {
		t.Fatalf("Draft() = %+v", draft)
	}
}

func TestHandoffJSONRoundTripKeepsFields(t *testing.T) {
	handoff := NewHandoff(semantic.Answer{Question: "q", SQL: "SELECT 1", Interpretation: "i"}, chart.Spec{Template: chart.TemplateTable}, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	data, err := json.Marshal(handoff)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	var decoded Handoff
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if decoded.SQL() != "SELECT 1" || decoded.Interpretation() != "i" || decoded.Spec().Template != chart.TemplateTable {
		t.Fatalf("decoded handoff = %s", data)
	}
	if !decoded.CreatedAt().Equal(handoff.CreatedAt()) {
		t.Fatalf("CreatedAt = %v", decoded.CreatedAt())
	}
}

func TestPreviewWithoutSpecSelectsAutomatically(t *testing.T) {
	runner := &fakeRunner{result: query.Result{ResultSet: ordersResult(), Truncated: true}}
	svc := newTestService(runner, &fakeSaver{})

	preview, err := svc.Preview(context.Background(), Draft{SQL: " SELECT * FROM orders "})
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if preview.Outcome.Spec.Template != chart.TemplateStackedDateBar {
		t.Fatalf("template = %q", preview.Outcome.Spec.Template)
	}
	if !preview.Truncated {
		t.Fatal("Truncated = false, want true")
	}
	if len(runner.calls) != 1 || runner.calls[0] != "SELECT * FROM orders" {
		t.Fatalf("RunSQL calls = %q", runner.calls)
	}
}

func TestPreviewAppliesDraftSpec(t *testing.T) {
	runner := &fakeRunner{result: query.Result{ResultSet: ordersResult()}}
	svc := newTestService(runner, &fakeSaver{})

	preview, err := svc.Preview(context.Background(), Draft{
		SQL: "SELECT * FROM orders",
		Spec: chart.Spec{
			Template: chart.TemplateDateBar,
			Bindings: []chart.Binding{{Role: chart.RoleX, Column: "order_date"}, {Role: chart.RoleY, Column: "revenue"}},
		},
	})
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if preview.Outcome.Spec.Template != chart.TemplateDateBar {
		t.Fatalf("template = %q", preview.Outcome.Spec.Template)
	}
}

func TestPreviewReportsSpecMismatch(t *testing.T) {
	runner := &fakeRunner{result: query.Result{ResultSet: ordersResult()}}
	svc := newTestService(runner, &fakeSaver{})

	_, err := svc.Preview(context.Background(), Draft{
		SQL: "SELECT * FROM orders",
		Spec: chart.Spec{
			Template: chart.TemplateDateBar,
			Bindings: []chart.Binding{{Role: chart.RoleX, Column: "order_date"}, {Role: chart.RoleY, Column: "profit"}},
		},
	})
	var mismatch *chart.RenderSpecMismatchError
	if !errors.As(err, &mismatch) || mismatch.Column != "profit" {
		t.Fatalf("Preview() error = %v, want mismatch on profit", err)
	}
}

func TestPreviewRequiresSQL(t *testing.T) {
	runner := &fakeRunner{}
	svc := newTestService(runner, &fakeSaver{})
	if _, err := svc.Preview(context.Background(), Draft{SQL: "  "}); !errors.Is(err, report.ErrInvalid) {
		t.Fatalf("Preview() error = %v, want ErrInvalid", err)
	}
	if len(runner.calls) != 0 {
		t.Fatal("RunSQL should not be called for empty sql")
	}
}

func TestPreviewPassesUpstreamErrorThrough(t *testing.T) {
	upstream := &semantic.UpstreamQueryError{Op: semantic.OpExecute, Err: errors.New("timeout")}
	svc := newTestService(&fakeRunner{err: upstream}, &fakeSaver{})
	_, err := svc.Preview(context.Background(), Draft{SQL: "SELECT 1"})
	var got *semantic.UpstreamQueryError
	if !errors.As(err, &got) {
		t.Fatalf("Preview() error = %v, want UpstreamQueryError", err)
	}
}

func TestSaveForwardsDraft(t *testing.T) {
	saver := &fakeSaver{}
	svc := newTestService(&fakeRunner{}, saver)

	saved, err := svc.Save(context.Background(), Draft{ReportID: "r-7", Name: "Revenue", SQL: "SELECT 1", Interpretation: "total"})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if saved.ID != "r-7" || len(saver.saved) != 1 || saver.saved[0].Interpretation != "total" {
		t.Fatalf("saved = %+v", saver.saved)
	}
}
