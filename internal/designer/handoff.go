package designer

import (
	"encoding/json"
	"time"

	"github.com/duckmesh/reportdesk/internal/chart"
	"github.com/duckmesh/reportdesk/internal/resultset"
	"github.com/duckmesh/reportdesk/internal/semantic"
)

// Handoff carries one answered question from the chat flow into the designer.
// It is a value: accessors return copies, so holders cannot change what the
// next holder sees.
type Handoff struct {
	question       string
	sql            string
	interpretation string
	result         resultset.ResultSet
	spec           chart.Spec
	createdAt      time.Time
}

func NewHandoff(answer semantic.Answer, spec chart.Spec, createdAt time.Time) Handoff {
	return Handoff{
		question:       answer.Question,
		sql:            answer.SQL,
		interpretation: answer.Interpretation,
		result:         answer.Result.ResultSet.Clone(),
		spec:           spec.Clone(),
		createdAt:      createdAt.UTC(),
	}
}

func (h Handoff) Question() string       { return h.question }
func (h Handoff) SQL() string            { return h.sql }
func (h Handoff) Interpretation() string { return h.interpretation }
func (h Handoff) CreatedAt() time.Time   { return h.createdAt }

func (h Handoff) Result() resultset.ResultSet {
	return h.result.Clone()
}

func (h Handoff) Spec() chart.Spec {
	return h.spec.Clone()
}

// Draft starts a designer draft from the handoff. The question doubles as the
// report name when name is empty.
func (h Handoff) Draft(name string) Draft {
	if name == "" {
		name = h.question
	}
	return Draft{
		Name:           name,
		SQL:            h.sql,
		Interpretation: h.interpretation,
		Spec:           h.spec.Clone(),
	}
}

type handoffJSON struct {
	Question       string              `json:"question"`
	SQL            string              `json:"sql"`
	Interpretation string              `json:"interpretation"`
	Result         resultset.ResultSet `json:"result"`
	Spec           chart.Spec          `json:"spec"`
	CreatedAt      time.Time           `json:"created_at"`
}

func (h Handoff) MarshalJSON() ([]byte, error) {
	return json.Marshal(handoffJSON{
		Question:       h.question,
		SQL:            h.sql,
		Interpretation: h.interpretation,
		Result:         h.result,
		Spec:           h.spec,
		CreatedAt:      h.createdAt,
	})
}

func (h *Handoff) UnmarshalJSON(data []byte) error {
	var decoded handoffJSON
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*h = Handoff{
		question:       decoded.Question,
		sql:            decoded.SQL,
		interpretation: decoded.Interpretation,
		result:         decoded.Result,
		spec:           decoded.Spec,
		createdAt:      decoded.CreatedAt,
	}
	return nil
}
