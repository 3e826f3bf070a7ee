package semantic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/duckmesh/reportdesk/internal/nl2sql"
	"github.com/duckmesh/reportdesk/internal/observability"
	"github.com/duckmesh/reportdesk/internal/query"
)

const (
	OpSchema    = "schema"
	OpTranslate = "translate"
	OpExecute   = "execute"
)

// UpstreamQueryError wraps any failure of the translator or warehouse. It is
// never retried here.
type UpstreamQueryError struct {
	Op  string
	Err error
}

func (e *UpstreamQueryError) Error() string {
	return fmt.Sprintf("upstream %s failed: %v", e.Op, e.Err)
}

func (e *UpstreamQueryError) Unwrap() error {
	return e.Err
}

// Answer is one question turned into SQL and, when executed, a result.
type Answer struct {
	Question       string       `json:"question"`
	SQL            string       `json:"sql"`
	Interpretation string       `json:"interpretation"`
	Result         query.Result `json:"-"`
	Executed       bool         `json:"executed"`
}

type Config struct {
	MaxRows      int
	QueryTimeout time.Duration
	SampleRows   int
}

type Service struct {
	translator nl2sql.Translator
	engine     query.Engine
	schema     query.SchemaSource
	cfg        Config
}

// NewService wires the query path. translator and schema may be nil, in which
// case RunQuery is unavailable and RunSQL still works.
func NewService(translator nl2sql.Translator, engine query.Engine, schema query.SchemaSource, cfg Config) *Service {
	if cfg.SampleRows < 0 {
		cfg.SampleRows = 0
	}
	return &Service{translator: translator, engine: engine, schema: schema, cfg: cfg}
}

func (s *Service) CanTranslate() bool {
	return s.translator != nil
}

// RunQuery translates question into SQL and, when execute is set, runs it.
// An empty interpretation falls back to the question itself.
func (s *Service) RunQuery(ctx context.Context, question string, execute bool) (Answer, error) {
	question = strings.TrimSpace(question)
	if s.translator == nil {
		return Answer{}, &UpstreamQueryError{Op: OpTranslate, Err: fmt.Errorf("translator is not configured")}
	}

	var tables []query.TableSchema
	if s.schema != nil {
		start := time.Now()
		described, err := s.schema.Tables(ctx, s.cfg.SampleRows)
		observability.ObserveUpstreamCall(OpSchema, err, time.Since(start))
		if err != nil {
			return Answer{}, &UpstreamQueryError{Op: OpSchema, Err: err}
		}
		tables = described
	}

	start := time.Now()
	translated, err := s.translator.Translate(ctx, nl2sql.Request{Question: question, Tables: tables})
	observability.ObserveUpstreamCall(OpTranslate, err, time.Since(start))
	if err != nil {
		return Answer{}, &UpstreamQueryError{Op: OpTranslate, Err: err}
	}

	answer := Answer{
		Question:       question,
		SQL:            translated.SQL,
		Interpretation: strings.TrimSpace(translated.Interpretation),
	}
	if answer.Interpretation == "" {
		answer.Interpretation = question
	}
	if !execute {
		return answer, nil
	}

	result, err := s.RunSQL(ctx, answer.SQL)
	if err != nil {
		return Answer{}, err
	}
	answer.Result = result
	answer.Executed = true
	return answer, nil
}

// RunSQL executes sqlText against the warehouse with the configured row cap
// and timeout.
func (s *Service) RunSQL(ctx context.Context, sqlText string) (query.Result, error) {
	if s.engine == nil {
		return query.Result{}, &UpstreamQueryError{Op: OpExecute, Err: fmt.Errorf("query engine is not configured")}
	}
	if s.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.QueryTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := s.engine.Execute(ctx, query.Request{SQL: sqlText, RowLimit: s.cfg.MaxRows})
	observability.ObserveUpstreamCall(OpExecute, err, time.Since(start))
	if err != nil {
		return query.Result{}, &UpstreamQueryError{Op: OpExecute, Err: err}
	}
	return result, nil
}
