package chart

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/duckmesh/reportdesk/internal/resultset"
)

func ordersByRegion(rows int) resultset.ResultSet {
	rs := resultset.ResultSet{Columns: []resultset.Column{
		{Name: "order_date", DatabaseType: "DATE"},
		{Name: "region", DatabaseType: "VARCHAR"},
		{Name: "revenue", DatabaseType: "DOUBLE"},
	}}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	regions := []string{"north", "south"}
	for i := 0; i < rows; i++ {
		rs.Rows = append(rs.Rows, []any{start.AddDate(0, 0, i/2), regions[i%2], float64(i + 1)})
	}
	return rs
}

func TestRenderTemporalCategoricalScenario(t *testing.T) {
	rs := ordersByRegion(50)
	profiles, err := Classify(rs)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	selection := Select(profiles, rs.RowCount())
	if selection.Template != TemplateStackedDateBar {
		t.Fatalf("Select() = %s, want %s", selection.Template, TemplateStackedDateBar)
	}

	spec, err := NewRenderer(0).Render(rs, selection.Template, nil)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if spec.Column(RoleX) != "order_date" || spec.Column(RoleColor) != "region" || spec.Column(RoleY) != "revenue" {
		t.Fatalf("unexpected bindings: %+v", spec.Bindings)
	}
	if spec.Aggregation != AggregationSum {
		t.Fatalf("Aggregation = %s", spec.Aggregation)
	}
	if len(spec.Ignored) != 0 {
		t.Fatalf("Ignored = %v", spec.Ignored)
	}
}

func TestRenderKPIScenario(t *testing.T) {
	rs := resultset.ResultSet{
		Columns: []resultset.Column{
			{Name: "total_sales", DatabaseType: "DECIMAL(18,2)"},
			{Name: "total_orders", DatabaseType: "BIGINT"},
		},
		Rows: [][]any{{1234567.0, int64(4321)}},
	}
	outcome, err := NewEngine(NewRenderer(4)).Build(rs, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if outcome.Selection.Template != TemplateKPI {
		t.Fatalf("template = %s", outcome.Selection.Template)
	}
	tiles := outcome.Drawable.Tiles
	if len(tiles) != 2 {
		t.Fatalf("len(tiles) = %d", len(tiles))
	}
	if tiles[0].Column != "total_sales" || tiles[1].Column != "total_orders" {
		t.Fatalf("tile order = %s, %s", tiles[0].Column, tiles[1].Column)
	}
	if tiles[0].Formatted != "1.2M" || tiles[1].Formatted != "4.3K" {
		t.Fatalf("formatted = %q, %q", tiles[0].Formatted, tiles[1].Formatted)
	}
}

func TestRenderKPICapsTiles(t *testing.T) {
	rs := resultset.ResultSet{Rows: [][]any{{}}}
	for i := 1; i <= 6; i++ {
		rs.Columns = append(rs.Columns, resultset.Column{Name: fmt.Sprintf("m%d", i), DatabaseType: "INTEGER"})
		rs.Rows[0] = append(rs.Rows[0], int32(i))
	}
	outcome, err := NewEngine(NewRenderer(4)).Build(rs, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if got := len(outcome.Drawable.Tiles); got != 4 {
		t.Fatalf("len(tiles) = %d, want 4", got)
	}
	if got := outcome.Spec.Ignored; len(got) != 2 || got[0] != "m5" || got[1] != "m6" {
		t.Fatalf("Ignored = %v", got)
	}
	if len(outcome.Drawable.Notes) != 1 || outcome.Drawable.Notes[0] != "2 extra columns ignored" {
		t.Fatalf("Notes = %v", outcome.Drawable.Notes)
	}
}

func kpiRow(numerics int) resultset.ResultSet {
	rs := resultset.ResultSet{
		Columns: []resultset.Column{{Name: "region", DatabaseType: "VARCHAR"}},
		Rows:    [][]any{{"north"}},
	}
	for i := 0; i < numerics; i++ {
		rs.Columns = append(rs.Columns, resultset.Column{Name: string(rune('a' + i)), DatabaseType: "DOUBLE"})
		rs.Rows[0] = append(rs.Rows[0], float64(i+1))
	}
	return rs
}

func TestRenderKPIIgnoresOnlySurplusNumerics(t *testing.T) {
	outcome, err := NewEngine(NewRenderer(4)).Build(kpiRow(6), nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if outcome.Selection.Template != TemplateKPI {
		t.Fatalf("template = %s", outcome.Selection.Template)
	}
	if got := outcome.Spec.Ignored; len(got) != 2 || got[0] != "e" || got[1] != "f" {
		t.Fatalf("Ignored = %v, want [e f]", got)
	}
	if len(outcome.Drawable.Notes) != 1 || outcome.Drawable.Notes[0] != "2 extra columns ignored" {
		t.Fatalf("Notes = %v", outcome.Drawable.Notes)
	}

	outcome, err = NewEngine(NewRenderer(4)).Build(kpiRow(2), nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if outcome.Spec.Ignored != nil || len(outcome.Drawable.Notes) != 0 {
		t.Fatalf("Ignored = %v, Notes = %v, want none", outcome.Spec.Ignored, outcome.Drawable.Notes)
	}
}

func TestRenderKPIOverrideIgnoresUnboundNumerics(t *testing.T) {
	rs := kpiRow(2)
	override := &Spec{Template: TemplateKPI, Bindings: []Binding{{Role: RoleValue, Column: "a"}}}
	spec, err := NewRenderer(4).Render(rs, TemplateKPI, override)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if len(spec.Ignored) != 1 || spec.Ignored[0] != "b" {
		t.Fatalf("Ignored = %v, want [b]", spec.Ignored)
	}
	drawable, err := NewRenderer(4).ToDrawable(rs, spec)
	if err != nil {
		t.Fatalf("ToDrawable() error = %v", err)
	}
	if len(drawable.Notes) != 1 || drawable.Notes[0] != "1 extra column ignored" {
		t.Fatalf("Notes = %v", drawable.Notes)
	}
}

func TestIgnoredNotePluralizes(t *testing.T) {
	for n, want := range map[int]string{0: "", 1: "1 extra column ignored", 3: "3 extra columns ignored"} {
		if got := ignoredNote(n); got != want {
			t.Fatalf("ignoredNote(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	rs := resultset.ResultSet{
		Columns: []resultset.Column{
			{Name: "channel", DatabaseType: "VARCHAR"},
			{Name: "region", DatabaseType: "VARCHAR"},
			{Name: "segment", DatabaseType: "VARCHAR"},
			{Name: "revenue", DatabaseType: "DOUBLE"},
		},
		Rows: [][]any{{"web", "north", "smb", 10.0}, {"store", "south", "ent", 5.0}},
	}
	renderer := NewRenderer(0)
	first, err := renderer.Render(rs, TemplateCategoryBar, nil)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	second, err := renderer.Render(rs, TemplateCategoryBar, nil)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if !bytes.Equal(a, b) {
		t.Fatalf("specs differ:\n%s\n%s", a, b)
	}
	if first.Column(RoleColor) != "region" {
		t.Fatalf("color = %q", first.Column(RoleColor))
	}
	if got := first.Choices[RoleX]; len(got) != 3 {
		t.Fatalf("Choices[x] = %v", got)
	}
}

func TestRenderOverrideWins(t *testing.T) {
	rs := ordersByRegion(4)
	override := &Spec{
		Template: TemplateStackedDateBar,
		Bindings: []Binding{
			{Role: RoleX, Column: "region"},
			{Role: RoleY, Column: "revenue"},
			{Role: RoleColor, Column: "order_date"},
		},
		Overrides: Overrides{Title: "Revenue by region", Palette: []string{"#111", "#222"}},
	}
	spec, err := NewRenderer(0).Render(rs, TemplateTable, override)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if spec.Template != TemplateStackedDateBar {
		t.Fatalf("Template = %s", spec.Template)
	}
	for i, binding := range override.Bindings {
		if spec.Bindings[i] != binding {
			t.Fatalf("Bindings[%d] = %+v, want %+v", i, spec.Bindings[i], binding)
		}
	}
	if spec.Overrides.Title != "Revenue by region" {
		t.Fatalf("Title = %q", spec.Overrides.Title)
	}

	override.Bindings[0].Column = "changed"
	if spec.Bindings[0].Column != "region" {
		t.Fatal("rendered spec must not alias the override")
	}
}

func TestRenderOverrideWithoutBindingsKeepsDefaults(t *testing.T) {
	rs := ordersByRegion(4)
	spec, err := NewRenderer(0).Render(rs, TemplateStackedDateBar, &Spec{Overrides: Overrides{PointSize: 40}})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if spec.Column(RoleX) != "order_date" || spec.Overrides.PointSize != 40 {
		t.Fatalf("unexpected spec: %+v", spec)
	}
}

func TestRenderOverrideMissingColumn(t *testing.T) {
	rs := ordersByRegion(4)
	override := &Spec{
		Template: TemplateDateBar,
		Bindings: []Binding{{Role: RoleX, Column: "order_date"}, {Role: RoleY, Column: "profit"}},
	}
	_, err := NewRenderer(0).Render(rs, TemplateDateBar, override)
	var mismatch *RenderSpecMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("Render() error = %v, want RenderSpecMismatchError", err)
	}
	if mismatch.Column != "profit" || mismatch.Role != RoleY {
		t.Fatalf("mismatch = %+v", mismatch)
	}
}

func TestRenderOverrideRejectsUnknownRole(t *testing.T) {
	rs := ordersByRegion(4)
	override := &Spec{
		Template: TemplateDateBar,
		Bindings: []Binding{{Role: RoleX, Column: "order_date"}, {Role: RoleY, Column: "revenue"}, {Role: RoleSize, Column: "revenue"}},
	}
	if _, err := NewRenderer(0).Render(rs, TemplateDateBar, override); !errors.Is(err, ErrInvalidSpec) {
		t.Fatalf("Render() error = %v, want ErrInvalidSpec", err)
	}
}

func TestToDrawableSumsAndSortsDateBars(t *testing.T) {
	rs := resultset.ResultSet{
		Columns: []resultset.Column{
			{Name: "order_date", DatabaseType: "DATE"},
			{Name: "revenue", DatabaseType: "DOUBLE"},
		},
		Rows: [][]any{
			{time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), 5.0},
			{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 1.0},
			{time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), 2.5},
		},
	}
	original := rs.Clone()
	renderer := NewRenderer(0)
	spec, err := renderer.Render(rs, TemplateDateBar, nil)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	drawable, err := renderer.ToDrawable(rs, spec)
	if err != nil {
		t.Fatalf("ToDrawable() error = %v", err)
	}
	if len(drawable.Points) != 2 {
		t.Fatalf("len(points) = %d", len(drawable.Points))
	}
	if got := drawable.Points[0]["revenue"]; got != 1.0 {
		t.Fatalf("points[0].revenue = %v", got)
	}
	if got := drawable.Points[1]["revenue"]; got != 7.5 {
		t.Fatalf("points[1].revenue = %v", got)
	}
	if drawable.Encodings[0].Field != FieldTemporal || drawable.Encodings[0].Sort != "ascending" {
		t.Fatalf("x encoding = %+v", drawable.Encodings[0])
	}
	if rs.Rows[0][1] != original.Rows[0][1] || rs.Rows[0][0] != original.Rows[0][0] {
		t.Fatal("ToDrawable mutated the result set")
	}
}

func TestToDrawableTableFallback(t *testing.T) {
	rs := resultset.ResultSet{
		Columns: []resultset.Column{{Name: "region", DatabaseType: "VARCHAR"}},
		Rows:    [][]any{{"north"}},
	}
	outcome, err := NewEngine(NewRenderer(0)).Build(rs, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if outcome.Drawable.Template != TemplateTable || len(outcome.Drawable.Rows) != 1 {
		t.Fatalf("unexpected drawable: %+v", outcome.Drawable)
	}
}

func TestBuildDegradesOnClassificationFailure(t *testing.T) {
	rs := resultset.ResultSet{
		Columns: []resultset.Column{{Name: "blob", DatabaseType: "BLOB"}, {Name: "n", DatabaseType: "INTEGER"}},
		Rows:    [][]any{{[]byte{1}, 1}},
	}
	outcome, err := NewEngine(NewRenderer(0)).Build(rs, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if outcome.Selection.Template != TemplateTable || len(outcome.Warnings) != 1 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestBuildReturnsMismatchForStaleOverride(t *testing.T) {
	rs := ordersByRegion(2)
	override := &Spec{Template: TemplateKPI, Bindings: []Binding{{Role: RoleValue, Column: "total"}}}
	_, err := NewEngine(NewRenderer(0)).Build(rs, override)
	var mismatch *RenderSpecMismatchError
	if !errors.As(err, &mismatch) || mismatch.Column != "total" {
		t.Fatalf("Build() error = %v", err)
	}
}

func TestFormatKPI(t *testing.T) {
	cases := map[float64]string{
		1234567: "1.2M",
		3400:    "3.4K",
		5.61:    "5.6",
		-2500:   "-2.5K",
	}
	for value, want := range cases {
		if got := FormatKPI(value); got != want {
			t.Fatalf("FormatKPI(%v) = %q, want %q", value, got, want)
		}
	}
}
