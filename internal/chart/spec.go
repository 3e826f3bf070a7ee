package chart

import (
	"errors"
	"sort"
)

// ErrInvalidSpec marks a chart spec that cannot be applied to any result set,
// such as an unknown template or a role the template does not draw.
var ErrInvalidSpec = errors.New("invalid chart spec")

type Binding struct {
	Role   Role   `json:"role"`
	Column string `json:"column"`
}

// Overrides are free-form rendering settings carried with a spec. Labels
// renames KPI tiles by column.
type Overrides struct {
	Title     string            `json:"title,omitempty"`
	Palette   []string          `json:"palette,omitempty"`
	PointSize float64           `json:"point_size,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// Spec binds result columns to the roles of one template. Bindings keep
// declaration order so a spec marshals to the same bytes every time.
type Spec struct {
	Template    TemplateID        `json:"template"`
	Bindings    []Binding         `json:"bindings"`
	Aggregation Aggregation       `json:"aggregation"`
	Choices     map[Role][]string `json:"choices,omitempty"`
	Ignored     []string          `json:"ignored,omitempty"`
	Overrides   Overrides         `json:"overrides"`
}

// Columns returns every column bound to role, in binding order.
func (s Spec) Columns(role Role) []string {
	var out []string
	for _, binding := range s.Bindings {
		if binding.Role == role {
			out = append(out, binding.Column)
		}
	}
	return out
}

func (s Spec) Column(role Role) string {
	for _, binding := range s.Bindings {
		if binding.Role == role {
			return binding.Column
		}
	}
	return ""
}

func (s Spec) IsZero() bool {
	return s.Template == "" && len(s.Bindings) == 0 && s.Aggregation == "" &&
		len(s.Choices) == 0 && len(s.Ignored) == 0 && s.Overrides.isZero()
}

func (s Spec) Clone() Spec {
	out := s
	out.Bindings = append([]Binding(nil), s.Bindings...)
	out.Ignored = append([]string(nil), s.Ignored...)
	if s.Choices != nil {
		out.Choices = make(map[Role][]string, len(s.Choices))
		for role, columns := range s.Choices {
			out.Choices[role] = append([]string(nil), columns...)
		}
	}
	out.Overrides.Palette = append([]string(nil), s.Overrides.Palette...)
	if s.Overrides.Labels != nil {
		out.Overrides.Labels = make(map[string]string, len(s.Overrides.Labels))
		for column, label := range s.Overrides.Labels {
			out.Overrides.Labels[column] = label
		}
	}
	return out
}

func (o Overrides) isZero() bool {
	return o.Title == "" && len(o.Palette) == 0 && o.PointSize == 0 && len(o.Labels) == 0
}

func (o Overrides) label(column string) string {
	if label := o.Labels[column]; label != "" {
		return label
	}
	return column
}

func choiceRoles(choices map[Role][]string) []Role {
	roles := make([]Role, 0, len(choices))
	for role := range choices {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}
