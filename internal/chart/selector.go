package chart

// ShapeKey is the column-count signature of a result set that drives template
// selection.
type ShapeKey struct {
	Temporal    int  `json:"temporal"`
	Categorical int  `json:"categorical"`
	Numeric     int  `json:"numeric"`
	SingleRow   bool `json:"single_row"`
}

func ShapeOf(profiles []ColumnProfile, rowCount int) ShapeKey {
	shape := ShapeKey{SingleRow: rowCount == 1}
	for _, profile := range profiles {
		switch profile.Type {
		case Temporal:
			shape.Temporal++
		case Categorical:
			shape.Categorical++
		case Numeric:
			shape.Numeric++
		}
	}
	return shape
}

// Rule is one row of the selection decision table.
type Rule struct {
	Name     string
	Template TemplateID
	Match    func(ShapeKey) bool
}

type Selection struct {
	Template TemplateID `json:"template"`
	Shape    ShapeKey   `json:"shape"`
	Rule     string     `json:"rule"`
}

const (
	RuleKPI                       = "kpi"
	RuleTimeSeriesSingle          = "time_series_single"
	RuleTimeSeriesMulti           = "time_series_multi"
	RuleCategoricalScatter        = "categorical_scatter"
	RuleCategoricalScatterShape   = "categorical_scatter_shape"
	RuleCategoricalBubble         = "categorical_bubble"
	RuleCategoricalBubbleShape    = "categorical_bubble_shape"
	RuleCategoricalComparison     = "categorical_comparison"
	RuleTemporalCategoricalSingle = "temporal_categorical_single"
	RuleTemporalCategoricalMulti  = "temporal_categorical_multi"
	RuleNumericScatter            = "numeric_scatter"
	RuleNumericBubble             = "numeric_bubble"
	RuleEmpty                     = "empty"
	RuleFallback                  = "fallback"
)

// rules is evaluated top to bottom; the first match wins. The last rule
// matches every shape so selection never comes up empty.
var rules = []Rule{
	{Name: RuleKPI, Template: TemplateKPI, Match: func(s ShapeKey) bool {
		return s.SingleRow && s.Numeric >= 1
	}},
	{Name: RuleTimeSeriesSingle, Template: TemplateDateBar, Match: func(s ShapeKey) bool {
		return s.Temporal >= 1 && s.Categorical == 0 && s.Numeric == 1
	}},
	{Name: RuleTimeSeriesMulti, Template: TemplateDualAxisLine, Match: func(s ShapeKey) bool {
		return s.Temporal >= 1 && s.Categorical == 0 && s.Numeric >= 2
	}},
	{Name: RuleCategoricalScatter, Template: TemplateScatter, Match: func(s ShapeKey) bool {
		return s.Temporal == 0 && s.Categorical == 1 && s.Numeric == 2
	}},
	{Name: RuleCategoricalScatterShape, Template: TemplateScatterShape, Match: func(s ShapeKey) bool {
		return s.Temporal == 0 && s.Categorical == 2 && s.Numeric == 2
	}},
	{Name: RuleCategoricalBubble, Template: TemplateBubble, Match: func(s ShapeKey) bool {
		return s.Temporal == 0 && s.Categorical == 1 && s.Numeric == 3
	}},
	{Name: RuleCategoricalBubbleShape, Template: TemplateBubbleShape, Match: func(s ShapeKey) bool {
		return s.Temporal == 0 && s.Categorical >= 2 && s.Numeric >= 3
	}},
	{Name: RuleCategoricalComparison, Template: TemplateCategoryBar, Match: func(s ShapeKey) bool {
		return s.Temporal == 0 && s.Categorical >= 1 && s.Numeric >= 1
	}},
	{Name: RuleTemporalCategoricalSingle, Template: TemplateStackedDateBar, Match: func(s ShapeKey) bool {
		return s.Temporal >= 1 && s.Categorical == 1 && s.Numeric >= 1
	}},
	{Name: RuleTemporalCategoricalMulti, Template: TemplateSelectableDateBar, Match: func(s ShapeKey) bool {
		return s.Temporal >= 1 && s.Categorical >= 2 && s.Numeric >= 1
	}},
	{Name: RuleNumericScatter, Template: TemplateScatter, Match: func(s ShapeKey) bool {
		return s.Temporal == 0 && s.Categorical == 0 && s.Numeric == 2
	}},
	{Name: RuleNumericBubble, Template: TemplateBubble, Match: func(s ShapeKey) bool {
		return s.Temporal == 0 && s.Categorical == 0 && s.Numeric >= 3
	}},
	{Name: RuleEmpty, Template: TemplateTable, Match: func(s ShapeKey) bool {
		return s.Temporal == 0 && s.Categorical == 0 && s.Numeric == 0
	}},
	{Name: RuleFallback, Template: TemplateTable, Match: func(ShapeKey) bool {
		return true
	}},
}

// Rules returns the decision table in evaluation order.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

func Select(profiles []ColumnProfile, rowCount int) Selection {
	return SelectShape(ShapeOf(profiles, rowCount))
}

func SelectShape(shape ShapeKey) Selection {
	for _, rule := range rules {
		if rule.Match(shape) {
			return Selection{Template: rule.Template, Shape: shape, Rule: rule.Name}
		}
	}
	// unreachable while the fallback rule is last
	return Selection{Template: TemplateTable, Shape: shape, Rule: RuleFallback}
}
