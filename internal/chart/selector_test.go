package chart

import "testing"

func TestSelectIsTotal(t *testing.T) {
	known := map[TemplateID]bool{}
	for _, template := range Catalog() {
		known[template.ID] = true
	}
	for temporal := 0; temporal <= 4; temporal++ {
		for categorical := 0; categorical <= 6; categorical++ {
			for numeric := 0; numeric <= 7; numeric++ {
				for _, rows := range []int{0, 1, 2, 50} {
					shape := ShapeKey{Temporal: temporal, Categorical: categorical, Numeric: numeric, SingleRow: rows == 1}
					selection := SelectShape(shape)
					if !known[selection.Template] {
						t.Fatalf("SelectShape(%+v) = %q, not in catalog", shape, selection.Template)
					}
					if selection.Shape != shape {
						t.Fatalf("SelectShape(%+v).Shape = %+v", shape, selection.Shape)
					}
				}
			}
		}
	}
}

func TestSelectedTemplateAcceptsShape(t *testing.T) {
	for temporal := 0; temporal <= 3; temporal++ {
		for categorical := 0; categorical <= 4; categorical++ {
			for numeric := 0; numeric <= 5; numeric++ {
				for _, single := range []bool{false, true} {
					shape := ShapeKey{Temporal: temporal, Categorical: categorical, Numeric: numeric, SingleRow: single}
					selection := SelectShape(shape)
					template, _ := LookupTemplate(selection.Template)
					if !template.Applicability.Allows(shape) {
						t.Fatalf("rule %s picked %s for %+v outside its applicability", selection.Rule, selection.Template, shape)
					}
				}
			}
		}
	}
}

func TestSelectRules(t *testing.T) {
	cases := []struct {
		shape    ShapeKey
		rule     string
		template TemplateID
	}{
		{ShapeKey{Numeric: 2, SingleRow: true}, RuleKPI, TemplateKPI},
		{ShapeKey{Temporal: 1, Categorical: 1, Numeric: 1, SingleRow: true}, RuleKPI, TemplateKPI},
		{ShapeKey{Temporal: 1, Numeric: 1}, RuleTimeSeriesSingle, TemplateDateBar},
		{ShapeKey{Temporal: 1, Numeric: 3}, RuleTimeSeriesMulti, TemplateDualAxisLine},
		{ShapeKey{Categorical: 1, Numeric: 2}, RuleCategoricalScatter, TemplateScatter},
		{ShapeKey{Categorical: 2, Numeric: 2}, RuleCategoricalScatterShape, TemplateScatterShape},
		{ShapeKey{Categorical: 1, Numeric: 3}, RuleCategoricalBubble, TemplateBubble},
		{ShapeKey{Categorical: 3, Numeric: 4}, RuleCategoricalBubbleShape, TemplateBubbleShape},
		{ShapeKey{Categorical: 1, Numeric: 1}, RuleCategoricalComparison, TemplateCategoryBar},
		{ShapeKey{Categorical: 3, Numeric: 1}, RuleCategoricalComparison, TemplateCategoryBar},
		{ShapeKey{Categorical: 1, Numeric: 4}, RuleCategoricalComparison, TemplateCategoryBar},
		{ShapeKey{Temporal: 1, Categorical: 1, Numeric: 1}, RuleTemporalCategoricalSingle, TemplateStackedDateBar},
		{ShapeKey{Temporal: 2, Categorical: 3, Numeric: 2}, RuleTemporalCategoricalMulti, TemplateSelectableDateBar},
		{ShapeKey{Numeric: 2}, RuleNumericScatter, TemplateScatter},
		{ShapeKey{Numeric: 5}, RuleNumericBubble, TemplateBubble},
		{ShapeKey{}, RuleEmpty, TemplateTable},
		{ShapeKey{SingleRow: true}, RuleEmpty, TemplateTable},
		{ShapeKey{Categorical: 2}, RuleFallback, TemplateTable},
		{ShapeKey{Temporal: 1, Categorical: 1}, RuleFallback, TemplateTable},
		{ShapeKey{Numeric: 1}, RuleFallback, TemplateTable},
	}
	for _, tc := range cases {
		got := SelectShape(tc.shape)
		if got.Rule != tc.rule || got.Template != tc.template {
			t.Fatalf("SelectShape(%+v) = %s/%s, want %s/%s", tc.shape, got.Rule, got.Template, tc.rule, tc.template)
		}
	}
}

func TestRulesEndWithCatchAll(t *testing.T) {
	all := Rules()
	if len(all) == 0 {
		t.Fatal("expected rules")
	}
	last := all[len(all)-1]
	if last.Name != RuleFallback || last.Template != TemplateTable {
		t.Fatalf("last rule = %s/%s", last.Name, last.Template)
	}
	if !last.Match(ShapeKey{Temporal: 9, Categorical: 9, Numeric: 0}) {
		t.Fatal("fallback rule must match every shape")
	}
}

func TestShapeOfCountsBuckets(t *testing.T) {
	profiles := []ColumnProfile{
		{Name: "order_date", Type: Temporal},
		{Name: "region", Type: Categorical},
		{Name: "revenue", Type: Numeric},
		{Name: "orders", Type: Numeric},
	}
	got := ShapeOf(profiles, 1)
	want := ShapeKey{Temporal: 1, Categorical: 1, Numeric: 2, SingleRow: true}
	if got != want {
		t.Fatalf("ShapeOf() = %+v, want %+v", got, want)
	}
	if ShapeOf(profiles, 0).SingleRow {
		t.Fatal("zero rows must not count as single row")
	}
}
