package nl2sql

import (
	"context"

	"github.com/duckmesh/reportdesk/internal/query"
)

type Request struct {
	Question string              `json:"question"`
	Tables   []query.TableSchema `json:"tables"`
}

type Result struct {
	SQL            string `json:"sql"`
	Interpretation string `json:"interpretation"`
	Provider       string `json:"provider"`
	Model          string `json:"model"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}
