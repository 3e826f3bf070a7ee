package chart

import (
	"fmt"

	"github.com/duckmesh/reportdesk/internal/resultset"
)

const (
	DefaultMaxKPITiles = 4
	maxChoiceColumns   = 5
)

type Renderer struct {
	MaxKPITiles int
}

func NewRenderer(maxKPITiles int) Renderer {
	if maxKPITiles <= 0 {
		maxKPITiles = DefaultMaxKPITiles
	}
	return Renderer{MaxKPITiles: maxKPITiles}
}

// slot assigns the nth column of a semantic bucket to a role.
type slot struct {
	role     Role
	from     SemanticType
	nth      int
	optional bool
}

var layouts = map[TemplateID][]slot{
	TemplateDateBar: {
		{role: RoleX, from: Temporal},
		{role: RoleY, from: Numeric},
	},
	TemplateDualAxisLine: {
		{role: RoleX, from: Temporal},
		{role: RoleY, from: Numeric},
		{role: RoleY2, from: Numeric, nth: 1},
	},
	TemplateStackedDateBar: {
		{role: RoleX, from: Temporal},
		{role: RoleY, from: Numeric},
		{role: RoleColor, from: Categorical},
	},
	TemplateSelectableDateBar: {
		{role: RoleX, from: Temporal},
		{role: RoleY, from: Numeric},
		{role: RoleColor, from: Categorical},
	},
	TemplateScatter: {
		{role: RoleX, from: Numeric},
		{role: RoleY, from: Numeric, nth: 1},
		{role: RoleColor, from: Categorical, optional: true},
	},
	TemplateScatterShape: {
		{role: RoleX, from: Numeric},
		{role: RoleY, from: Numeric, nth: 1},
		{role: RoleColor, from: Categorical},
		{role: RoleShape, from: Categorical, nth: 1},
	},
	TemplateBubble: {
		{role: RoleX, from: Numeric},
		{role: RoleY, from: Numeric, nth: 1},
		{role: RoleSize, from: Numeric, nth: 2},
		{role: RoleColor, from: Categorical, optional: true},
	},
	TemplateBubbleShape: {
		{role: RoleX, from: Numeric},
		{role: RoleY, from: Numeric, nth: 1},
		{role: RoleSize, from: Numeric, nth: 2},
		{role: RoleColor, from: Categorical},
		{role: RoleShape, from: Categorical, nth: 1},
	},
	TemplateCategoryBar: {
		{role: RoleX, from: Categorical},
		{role: RoleY, from: Numeric},
		{role: RoleColor, from: Categorical, nth: 1, optional: true},
	},
}

// Render produces the spec for drawing rs with the given template. A non-nil
// override with bindings is applied as-is once every bound column is found
// in rs; an override without bindings only contributes its template,
// aggregation and rendering overrides on top of the computed default.
func (r Renderer) Render(rs resultset.ResultSet, templateID TemplateID, override *Spec) (Spec, error) {
	if override != nil && override.Template != "" {
		templateID = override.Template
	}
	template, ok := LookupTemplate(templateID)
	if !ok {
		return Spec{}, fmt.Errorf("%w: unknown template %q", ErrInvalidSpec, templateID)
	}

	if override != nil && len(override.Bindings) > 0 {
		return r.applyOverride(rs, template, *override)
	}

	profiles, err := Classify(rs)
	if err != nil {
		return Spec{}, err
	}
	spec, err := r.defaultSpec(template, profiles)
	if err != nil {
		return Spec{}, err
	}
	if override != nil {
		if override.Aggregation != "" {
			spec.Aggregation = override.Aggregation
		}
		if len(override.Choices) > 0 {
			spec.Choices = presentChoices(rs, override.Choices)
		}
		spec.Overrides = override.Clone().Overrides
	}
	return spec, nil
}

func (r Renderer) defaultSpec(template Template, profiles []ColumnProfile) (Spec, error) {
	spec := Spec{Template: template.ID, Bindings: []Binding{}, Aggregation: template.Aggregation}
	buckets := map[SemanticType][]ColumnProfile{
		Temporal:    profilesOfType(profiles, Temporal),
		Categorical: profilesOfType(profiles, Categorical),
		Numeric:     profilesOfType(profiles, Numeric),
	}

	switch template.ID {
	case TemplateTable:
		return spec, nil
	case TemplateKPI:
		numerics := buckets[Numeric]
		if len(numerics) == 0 {
			return Spec{}, fmt.Errorf("%w: %s needs at least one numeric column", ErrInvalidSpec, template.ID)
		}
		limit := r.maxKPITiles()
		for i, profile := range numerics {
			if i >= limit {
				break
			}
			spec.Bindings = append(spec.Bindings, Binding{Role: RoleValue, Column: profile.Name})
		}
		spec.Ignored = unbound(numerics, spec.Bindings)
		return spec, nil
	}

	for _, s := range layouts[template.ID] {
		candidates := buckets[s.from]
		if s.nth >= len(candidates) {
			if s.optional {
				continue
			}
			return Spec{}, fmt.Errorf("%w: %s needs a %s column for %s", ErrInvalidSpec, template.ID, s.from, s.role)
		}
		spec.Bindings = append(spec.Bindings, Binding{Role: s.role, Column: candidates[s.nth].Name})
	}
	spec.Choices = defaultChoices(template.ID, buckets)
	spec.Ignored = unbound(profiles, spec.Bindings)
	return spec, nil
}

func (r Renderer) applyOverride(rs resultset.ResultSet, template Template, override Spec) (Spec, error) {
	spec := override.Clone()
	spec.Template = template.ID
	if spec.Aggregation == "" {
		spec.Aggregation = template.Aggregation
	}
	for _, binding := range spec.Bindings {
		if !template.accepts(binding.Role) {
			return Spec{}, fmt.Errorf("%w: %s does not draw role %q", ErrInvalidSpec, template.ID, binding.Role)
		}
		if !rs.HasColumn(binding.Column) {
			return Spec{}, &RenderSpecMismatchError{Column: binding.Column, Role: binding.Role}
		}
	}
	for _, role := range template.Required {
		if spec.Column(role) == "" {
			return Spec{}, fmt.Errorf("%w: %s requires role %q", ErrInvalidSpec, template.ID, role)
		}
	}
	if template.ID == TemplateKPI {
		if values := spec.Columns(RoleValue); len(values) > r.maxKPITiles() {
			return Spec{}, fmt.Errorf("%w: %d KPI values exceed the limit of %d", ErrInvalidSpec, len(values), r.maxKPITiles())
		}
	}
	spec.Choices = presentChoices(rs, spec.Choices)

	columns := make([]ColumnProfile, 0, len(rs.Columns))
	for index, column := range rs.Columns {
		columns = append(columns, ColumnProfile{Name: column.Name, Index: index})
	}
	switch template.ID {
	case TemplateTable:
		spec.Ignored = nil
	case TemplateKPI:
		// Only numeric columns compete for tiles.
		profiles, err := Classify(rs)
		if err != nil {
			return Spec{}, err
		}
		spec.Ignored = unbound(profilesOfType(profiles, Numeric), spec.Bindings)
	default:
		spec.Ignored = unbound(columns, spec.Bindings)
	}
	return spec, nil
}

func (r Renderer) maxKPITiles() int {
	if r.MaxKPITiles <= 0 {
		return DefaultMaxKPITiles
	}
	return r.MaxKPITiles
}

// defaultChoices lists the categorical columns a designer may swap into the
// color or x role of the selectable templates.
func defaultChoices(id TemplateID, buckets map[SemanticType][]ColumnProfile) map[Role][]string {
	categoricals := buckets[Categorical]
	if len(categoricals) > maxChoiceColumns {
		categoricals = categoricals[:maxChoiceColumns]
	}
	switch id {
	case TemplateSelectableDateBar:
		return map[Role][]string{RoleColor: names(categoricals)}
	case TemplateBubbleShape:
		return map[Role][]string{RoleColor: names(categoricals), RoleShape: names(categoricals)}
	case TemplateCategoryBar:
		if len(categoricals) < 2 {
			return nil
		}
		return map[Role][]string{RoleX: names(categoricals), RoleColor: names(categoricals)}
	}
	return nil
}

func presentChoices(rs resultset.ResultSet, choices map[Role][]string) map[Role][]string {
	if len(choices) == 0 {
		return nil
	}
	out := make(map[Role][]string, len(choices))
	for _, role := range choiceRoles(choices) {
		kept := make([]string, 0, len(choices[role]))
		for _, column := range choices[role] {
			if rs.HasColumn(column) {
				kept = append(kept, column)
			}
		}
		if len(kept) > 0 {
			out[role] = kept
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func unbound(profiles []ColumnProfile, bindings []Binding) []string {
	bound := make(map[string]struct{}, len(bindings))
	for _, binding := range bindings {
		bound[binding.Column] = struct{}{}
	}
	var out []string
	for _, profile := range profiles {
		if _, ok := bound[profile.Name]; !ok {
			out = append(out, profile.Name)
		}
	}
	return out
}
