package chart

import (
	"fmt"
	"sort"

	"github.com/duckmesh/reportdesk/internal/resultset"
)

type FieldType string

const (
	FieldTemporal     FieldType = "temporal"
	FieldQuantitative FieldType = "quantitative"
	FieldNominal      FieldType = "nominal"
)

type Encoding struct {
	Role   Role      `json:"role"`
	Column string    `json:"column"`
	Field  FieldType `json:"field"`
	Sort   string    `json:"sort,omitempty"`
	Stack  bool      `json:"stack,omitempty"`
}

type Tile struct {
	Label     string `json:"label"`
	Column    string `json:"column"`
	Value     any    `json:"value"`
	Formatted string `json:"formatted"`
}

// Point is one projected row keyed by column name.
type Point map[string]any

// Drawable is a spec resolved against concrete rows. Chart templates fill
// Encodings and Points, KPI fills Tiles and the table fallback fills Columns
// and Rows.
type Drawable struct {
	Template  TemplateID `json:"template"`
	Title     string     `json:"title"`
	Mark      string     `json:"mark"`
	Encodings []Encoding `json:"encodings,omitempty"`
	Points    []Point    `json:"points,omitempty"`
	Tiles     []Tile     `json:"tiles,omitempty"`
	Columns   []string   `json:"columns,omitempty"`
	Rows      [][]any    `json:"rows,omitempty"`
	Palette   []string   `json:"palette,omitempty"`
	PointSize float64    `json:"point_size,omitempty"`
	Notes     []string   `json:"notes,omitempty"`
}

// ToDrawable resolves spec against rs. rs is only read.
func (r Renderer) ToDrawable(rs resultset.ResultSet, spec Spec) (Drawable, error) {
	template, ok := LookupTemplate(spec.Template)
	if !ok {
		return Drawable{}, fmt.Errorf("%w: unknown template %q", ErrInvalidSpec, spec.Template)
	}
	for _, binding := range spec.Bindings {
		if !rs.HasColumn(binding.Column) {
			return Drawable{}, &RenderSpecMismatchError{Column: binding.Column, Role: binding.Role}
		}
	}

	out := Drawable{
		Template:  template.ID,
		Title:     template.Title,
		Mark:      template.Mark,
		Palette:   append([]string(nil), spec.Overrides.Palette...),
		PointSize: spec.Overrides.PointSize,
	}
	if spec.Overrides.Title != "" {
		out.Title = spec.Overrides.Title
	}
	if note := ignoredNote(len(spec.Ignored)); note != "" {
		out.Notes = append(out.Notes, note)
	}

	switch template.ID {
	case TemplateTable:
		out.Columns = rs.ColumnNames()
		out.Rows = rs.Clone().Rows
	case TemplateKPI:
		out.Tiles = kpiTiles(rs, spec)
		if rs.RowCount() == 0 {
			out.Notes = append(out.Notes, "no rows to summarize")
		}
	default:
		out.Encodings = encodings(rs, template, spec)
		out.Points = project(rs, spec)
		if spec.Aggregation == AggregationSum {
			out.Points = sumPoints(out.Points, spec)
		}
		if x := spec.Column(RoleX); x != "" && isDateTemplate(template.ID) {
			sort.SliceStable(out.Points, func(i, j int) bool {
				return compareValues(out.Points[i][x], out.Points[j][x]) < 0
			})
		}
	}
	return out, nil
}

func ignoredNote(n int) string {
	switch {
	case n <= 0:
		return ""
	case n == 1:
		return "1 extra column ignored"
	}
	return fmt.Sprintf("%d extra columns ignored", n)
}

func kpiTiles(rs resultset.ResultSet, spec Spec) []Tile {
	tiles := make([]Tile, 0, len(spec.Bindings))
	for _, column := range spec.Columns(RoleValue) {
		tile := Tile{Label: spec.Overrides.label(column), Column: column}
		if rs.RowCount() > 0 {
			tile.Value = rs.Value(0, column)
			if f, ok := toFloat(tile.Value); ok {
				tile.Formatted = FormatKPI(f)
			} else if tile.Value != nil {
				tile.Formatted = fmt.Sprint(tile.Value)
			}
		}
		tiles = append(tiles, tile)
	}
	return tiles
}

func encodings(rs resultset.ResultSet, template Template, spec Spec) []Encoding {
	stacked := spec.Aggregation == AggregationSum && spec.Column(RoleColor) != ""
	out := make([]Encoding, 0, len(spec.Bindings))
	for _, binding := range spec.Bindings {
		encoding := Encoding{Role: binding.Role, Column: binding.Column, Field: fieldType(rs, binding.Column)}
		switch binding.Role {
		case RoleX:
			if isDateTemplate(template.ID) {
				encoding.Sort = "ascending"
			} else if template.ID == TemplateCategoryBar {
				encoding.Sort = "-y"
			}
		case RoleY:
			encoding.Stack = stacked
		}
		out = append(out, encoding)
	}
	return out
}

func fieldType(rs resultset.ResultSet, column string) FieldType {
	index := rs.Index(column)
	if index < 0 {
		return FieldNominal
	}
	semantic, err := ClassifyType(rs.Columns[index].DatabaseType)
	if err != nil {
		return FieldNominal
	}
	switch semantic {
	case Temporal:
		return FieldTemporal
	case Numeric:
		return FieldQuantitative
	}
	return FieldNominal
}

func project(rs resultset.ResultSet, spec Spec) []Point {
	columns := boundColumns(spec)
	points := make([]Point, 0, rs.RowCount())
	for row := 0; row < rs.RowCount(); row++ {
		point := make(Point, len(columns))
		for _, column := range columns {
			point[column] = rs.Value(row, column)
		}
		points = append(points, point)
	}
	return points
}

// sumPoints collapses points sharing the same dimension values, summing the
// measure columns. Groups keep first-seen order.
func sumPoints(points []Point, spec Spec) []Point {
	var dimensions, measures []string
	seen := map[string]struct{}{}
	for _, binding := range spec.Bindings {
		if _, ok := seen[binding.Column]; ok {
			continue
		}
		seen[binding.Column] = struct{}{}
		switch binding.Role {
		case RoleX, RoleColor, RoleShape:
			dimensions = append(dimensions, binding.Column)
		default:
			measures = append(measures, binding.Column)
		}
	}
	if len(measures) == 0 {
		return points
	}

	index := map[string]int{}
	out := make([]Point, 0, len(points))
	for _, point := range points {
		key := ""
		for _, dimension := range dimensions {
			key += keyOf(point[dimension]) + "\x1f"
		}
		at, ok := index[key]
		if !ok {
			group := make(Point, len(point))
			for _, dimension := range dimensions {
				group[dimension] = point[dimension]
			}
			for _, measure := range measures {
				group[measure] = float64(0)
			}
			index[key] = len(out)
			at = len(out)
			out = append(out, group)
		}
		for _, measure := range measures {
			if f, ok := toFloat(point[measure]); ok {
				out[at][measure] = out[at][measure].(float64) + f
			}
		}
	}
	return out
}

func boundColumns(spec Spec) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(spec.Bindings))
	for _, binding := range spec.Bindings {
		if _, ok := seen[binding.Column]; ok {
			continue
		}
		seen[binding.Column] = struct{}{}
		out = append(out, binding.Column)
	}
	return out
}

func isDateTemplate(id TemplateID) bool {
	switch id {
	case TemplateDateBar, TemplateDualAxisLine, TemplateStackedDateBar, TemplateSelectableDateBar:
		return true
	}
	return false
}
