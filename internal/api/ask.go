package api

import (
	"net/http"
	"strings"

	"github.com/duckmesh/reportdesk/internal/chart"
	"github.com/duckmesh/reportdesk/internal/designer"
	"github.com/duckmesh/reportdesk/internal/observability"
	"github.com/duckmesh/reportdesk/internal/query"
	"github.com/duckmesh/reportdesk/internal/resultset"
)

type askRequest struct {
	Question string `json:"question"`
	Execute  *bool  `json:"execute"`
}

type sqlRequest struct {
	SQL       string      `json:"sql"`
	ChartSpec *chart.Spec `json:"chart_spec"`
}

type resultPayload struct {
	Columns    []resultset.Column `json:"columns"`
	Rows       [][]any            `json:"rows"`
	RowCount   int                `json:"row_count"`
	Truncated  bool               `json:"truncated"`
	DurationMs int64              `json:"duration_ms"`
}

type askResponse struct {
	Question       string            `json:"question"`
	SQL            string            `json:"sql"`
	Interpretation string            `json:"interpretation"`
	Executed       bool              `json:"executed"`
	Result         *resultPayload    `json:"result,omitempty"`
	Outcome        *chart.Outcome    `json:"outcome,omitempty"`
	Handoff        *designer.Handoff `json:"handoff,omitempty"`
}

type sqlResponse struct {
	Result  resultPayload `json:"result"`
	Outcome chart.Outcome `json:"outcome"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Queries == nil || deps.Charts == nil {
		notConfigured(w, r, "query")
		return
	}
	if !deps.Queries.CanTranslate() {
		writeError(r.Context(), w, http.StatusNotImplemented, "TRANSLATE_NOT_CONFIGURED", "question translation is not configured", false, nil)
		return
	}

	var req askRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}
	execute := req.Execute == nil || *req.Execute

	answer, err := deps.Queries.RunQuery(r.Context(), req.Question, execute)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	response := askResponse{
		Question:       answer.Question,
		SQL:            answer.SQL,
		Interpretation: answer.Interpretation,
		Executed:       answer.Executed,
	}
	if !answer.Executed {
		writeJSON(w, http.StatusOK, response)
		return
	}

	outcome, err := buildOutcome(deps, answer.Result.ResultSet, nil)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	result := newResultPayload(answer.Result)
	handoff := designer.NewHandoff(answer, outcome.Spec, deps.Now())
	response.Result = &result
	response.Outcome = &outcome
	response.Handoff = &handoff
	writeJSON(w, http.StatusOK, response)
}

func handleSQL(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Queries == nil || deps.Charts == nil {
		notConfigured(w, r, "query")
		return
	}

	var req sqlRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sqlText := strings.TrimSpace(req.SQL)
	if sqlText == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}
	if !query.IsReadOnly(sqlText) {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", query.ErrNotReadOnly.Error(), false, nil)
		return
	}

	result, err := deps.Queries.RunSQL(r.Context(), sqlText)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	outcome, err := buildOutcome(deps, result.ResultSet, req.ChartSpec)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, sqlResponse{Result: newResultPayload(result), Outcome: outcome})
}

func buildOutcome(deps Dependencies, rs resultset.ResultSet, override *chart.Spec) (chart.Outcome, error) {
	outcome, err := deps.Charts.Build(rs, override)
	if err != nil {
		return chart.Outcome{}, err
	}
	observability.ObserveChartSelection(string(outcome.Spec.Template), outcome.Selection.Rule)
	return outcome, nil
}

func newResultPayload(result query.Result) resultPayload {
	rows := result.ResultSet.Rows
	if rows == nil {
		rows = [][]any{}
	}
	return resultPayload{
		Columns:    result.ResultSet.Columns,
		Rows:       rows,
		RowCount:   len(rows),
		Truncated:  result.Truncated,
		DurationMs: result.Duration.Milliseconds(),
	}
}
