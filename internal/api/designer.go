package api

import (
	"net/http"

	"github.com/duckmesh/reportdesk/internal/chart"
	"github.com/duckmesh/reportdesk/internal/designer"
)

// previewRequest is a draft, optionally seeded from a chat handoff. Explicit
// draft fields win over the handoff.
type previewRequest struct {
	Name           string            `json:"name"`
	SQL            string            `json:"sql"`
	Interpretation string            `json:"interpretation"`
	ChartSpec      chart.Spec        `json:"chart_spec"`
	Handoff        *designer.Handoff `json:"handoff"`
}

func (p previewRequest) draft() designer.Draft {
	draft := designer.Draft{}
	if p.Handoff != nil {
		draft = p.Handoff.Draft(p.Name)
	}
	if p.Name != "" {
		draft.Name = p.Name
	}
	if p.SQL != "" {
		draft.SQL = p.SQL
	}
	if p.Interpretation != "" {
		draft.Interpretation = p.Interpretation
	}
	if !p.ChartSpec.IsZero() {
		draft.Spec = p.ChartSpec.Clone()
	}
	return draft
}

func handleDesignerPreview(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Designer == nil {
		notConfigured(w, r, "designer")
		return
	}
	var req previewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	draft := req.draft()
	preview, err := deps.Designer.Preview(r.Context(), draft)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"draft":     draft,
		"outcome":   preview.Outcome,
		"truncated": preview.Truncated,
	})
}
