package chart

import (
	"errors"
	"fmt"

	"github.com/duckmesh/reportdesk/internal/resultset"
)

// Outcome is everything derived while turning one result set into a chart.
type Outcome struct {
	Profiles  []ColumnProfile `json:"profiles"`
	Selection Selection       `json:"selection"`
	Spec      Spec            `json:"spec"`
	Drawable  Drawable        `json:"drawable"`
	Warnings  []string        `json:"warnings,omitempty"`
}

type Engine struct {
	renderer Renderer
}

func NewEngine(renderer Renderer) *Engine {
	return &Engine{renderer: renderer}
}

// Build classifies rs, selects a template and renders it. A failure to
// classify degrades to the table fallback with a warning. Errors are only
// returned for an override that cannot be applied, so callers can show the
// offending binding.
func (e *Engine) Build(rs resultset.ResultSet, override *Spec) (Outcome, error) {
	if override != nil && override.IsZero() {
		override = nil
	}

	profiles, err := Classify(rs)
	if err != nil {
		return e.degrade(rs, err)
	}
	selection := Select(profiles, rs.RowCount())
	outcome := Outcome{Profiles: profiles, Selection: selection}

	spec, err := e.renderer.Render(rs, selection.Template, override)
	if err != nil {
		if override != nil {
			return Outcome{}, err
		}
		return e.degrade(rs, err)
	}
	drawable, err := e.renderer.ToDrawable(rs, spec)
	if err != nil {
		var mismatch *RenderSpecMismatchError
		if errors.As(err, &mismatch) || override != nil {
			return Outcome{}, err
		}
		return e.degrade(rs, err)
	}
	outcome.Spec = spec
	outcome.Drawable = drawable
	return outcome, nil
}

func (e *Engine) degrade(rs resultset.ResultSet, cause error) (Outcome, error) {
	spec := Spec{Template: TemplateTable, Bindings: []Binding{}, Aggregation: AggregationNone}
	drawable, err := e.renderer.ToDrawable(rs, spec)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Selection: Selection{Template: TemplateTable, Rule: RuleFallback},
		Spec:      spec,
		Drawable:  drawable,
		Warnings:  []string{fmt.Sprintf("showing table: %v", cause)},
	}, nil
}
