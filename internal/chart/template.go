package chart

type TemplateID string

const (
	TemplateDateBar           TemplateID = "chart1"
	TemplateDualAxisLine      TemplateID = "chart2"
	TemplateStackedDateBar    TemplateID = "chart3"
	TemplateSelectableDateBar TemplateID = "chart4"
	TemplateScatter           TemplateID = "chart5"
	TemplateScatterShape      TemplateID = "chart6"
	TemplateBubble            TemplateID = "chart7"
	TemplateBubbleShape       TemplateID = "chart8"
	TemplateCategoryBar       TemplateID = "chart9"
	TemplateKPI               TemplateID = "chart10"
	TemplateTable             TemplateID = "table"
)

type Role string

const (
	RoleX     Role = "x"
	RoleY     Role = "y"
	RoleY2    Role = "y2"
	RoleColor Role = "color"
	RoleShape Role = "shape"
	RoleSize  Role = "size"
	RoleValue Role = "value"
)

type Aggregation string

const (
	AggregationNone Aggregation = "none"
	AggregationSum  Aggregation = "sum"
)

const unbounded = -1

// Applicability is the column-count range a template is designed for.
type Applicability struct {
	MinTemporal    int `json:"min_temporal"`
	MaxTemporal    int `json:"max_temporal"`
	MinCategorical int `json:"min_categorical"`
	MaxCategorical int `json:"max_categorical"`
	MinNumeric     int `json:"min_numeric"`
	MaxNumeric     int `json:"max_numeric"`
}

func (a Applicability) Allows(shape ShapeKey) bool {
	return within(shape.Temporal, a.MinTemporal, a.MaxTemporal) &&
		within(shape.Categorical, a.MinCategorical, a.MaxCategorical) &&
		within(shape.Numeric, a.MinNumeric, a.MaxNumeric)
}

func within(value, min, max int) bool {
	if value < min {
		return false
	}
	return max == unbounded || value <= max
}

type Template struct {
	ID            TemplateID    `json:"id"`
	Title         string        `json:"title"`
	Mark          string        `json:"mark"`
	Required      []Role        `json:"required_roles"`
	Optional      []Role        `json:"optional_roles"`
	Applicability Applicability `json:"applicability"`
	Aggregation   Aggregation   `json:"aggregation"`
}

func (t Template) accepts(role Role) bool {
	for _, candidate := range t.Required {
		if candidate == role {
			return true
		}
	}
	for _, candidate := range t.Optional {
		if candidate == role {
			return true
		}
	}
	return false
}

var catalog = []Template{
	{
		ID:            TemplateDateBar,
		Title:         "Bar Chart by Date",
		Mark:          "bar",
		Required:      []Role{RoleX, RoleY},
		Applicability: Applicability{MinTemporal: 1, MaxTemporal: unbounded, MaxCategorical: 0, MinNumeric: 1, MaxNumeric: 1},
		Aggregation:   AggregationSum,
	},
	{
		ID:            TemplateDualAxisLine,
		Title:         "Dual Axis Line Chart",
		Mark:          "line",
		Required:      []Role{RoleX, RoleY, RoleY2},
		Applicability: Applicability{MinTemporal: 1, MaxTemporal: unbounded, MaxCategorical: 0, MinNumeric: 2, MaxNumeric: unbounded},
		Aggregation:   AggregationNone,
	},
	{
		ID:            TemplateStackedDateBar,
		Title:         "Stacked Bar Chart by Date",
		Mark:          "bar",
		Required:      []Role{RoleX, RoleY, RoleColor},
		Applicability: Applicability{MinTemporal: 1, MaxTemporal: unbounded, MinCategorical: 1, MaxCategorical: 1, MinNumeric: 1, MaxNumeric: unbounded},
		Aggregation:   AggregationSum,
	},
	{
		ID:            TemplateSelectableDateBar,
		Title:         "Stacked Bar Chart with Selectable Colors",
		Mark:          "bar",
		Required:      []Role{RoleX, RoleY, RoleColor},
		Applicability: Applicability{MinTemporal: 1, MaxTemporal: unbounded, MinCategorical: 2, MaxCategorical: unbounded, MinNumeric: 1, MaxNumeric: unbounded},
		Aggregation:   AggregationSum,
	},
	{
		ID:            TemplateScatter,
		Title:         "Scatter Chart",
		Mark:          "circle",
		Required:      []Role{RoleX, RoleY},
		Optional:      []Role{RoleColor},
		Applicability: Applicability{MaxTemporal: 0, MaxCategorical: 1, MinNumeric: 2, MaxNumeric: 2},
		Aggregation:   AggregationNone,
	},
	{
		ID:            TemplateScatterShape,
		Title:         "Scatter Chart with Multiple Dimensions",
		Mark:          "point",
		Required:      []Role{RoleX, RoleY, RoleColor, RoleShape},
		Applicability: Applicability{MaxTemporal: 0, MinCategorical: 2, MaxCategorical: 2, MinNumeric: 2, MaxNumeric: 2},
		Aggregation:   AggregationNone,
	},
	{
		ID:            TemplateBubble,
		Title:         "Bubble Chart",
		Mark:          "circle",
		Required:      []Role{RoleX, RoleY, RoleSize},
		Optional:      []Role{RoleColor},
		Applicability: Applicability{MaxTemporal: 0, MaxCategorical: 1, MinNumeric: 3, MaxNumeric: unbounded},
		Aggregation:   AggregationNone,
	},
	{
		ID:            TemplateBubbleShape,
		Title:         "Multi-Dimensional Bubble Chart",
		Mark:          "point",
		Required:      []Role{RoleX, RoleY, RoleSize, RoleColor, RoleShape},
		Applicability: Applicability{MaxTemporal: 0, MinCategorical: 2, MaxCategorical: unbounded, MinNumeric: 3, MaxNumeric: unbounded},
		Aggregation:   AggregationNone,
	},
	{
		ID:            TemplateCategoryBar,
		Title:         "Bar Chart with Selectable X-Axis and Color",
		Mark:          "bar",
		Required:      []Role{RoleX, RoleY},
		Optional:      []Role{RoleColor},
		Applicability: Applicability{MaxTemporal: 0, MinCategorical: 1, MaxCategorical: unbounded, MinNumeric: 1, MaxNumeric: unbounded},
		Aggregation:   AggregationSum,
	},
	{
		ID:            TemplateKPI,
		Title:         "KPI Tiles",
		Mark:          "kpi",
		Required:      []Role{RoleValue},
		Applicability: Applicability{MaxTemporal: unbounded, MaxCategorical: unbounded, MinNumeric: 1, MaxNumeric: unbounded},
		Aggregation:   AggregationNone,
	},
	{
		ID:            TemplateTable,
		Title:         "Table",
		Mark:          "table",
		Applicability: Applicability{MaxTemporal: unbounded, MaxCategorical: unbounded, MaxNumeric: unbounded},
		Aggregation:   AggregationNone,
	},
}

// Catalog returns the fixed template catalog: chart1 through chart10 followed
// by the table fallback.
func Catalog() []Template {
	out := make([]Template, len(catalog))
	copy(out, catalog)
	return out
}

func LookupTemplate(id TemplateID) (Template, bool) {
	for _, template := range catalog {
		if template.ID == id {
			return template, true
		}
	}
	return Template{}, false
}
