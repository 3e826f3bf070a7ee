package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/duckmesh/reportdesk/internal/resultset"
)

var (
	ErrEmptySQL    = errors.New("sql is required")
	ErrNotReadOnly = errors.New("only read-only SELECT/WITH queries are allowed")
)

// Dataset exposes one parquet object from the object store as a table.
type Dataset struct {
	TableName string
	ObjectKey string
}

type Request struct {
	SQL      string
	RowLimit int
}

type Result struct {
	ResultSet resultset.ResultSet
	Truncated bool
	Duration  time.Duration
}

type TableSchema struct {
	TableName  string             `json:"table_name"`
	Columns    []resultset.Column `json:"columns"`
	SampleRows [][]any            `json:"sample_rows,omitempty"`
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

// SchemaSource describes the tables an engine can query.
type SchemaSource interface {
	Tables(ctx context.Context, sampleRows int) ([]TableSchema, error)
}

// ParseDatasets reads "orders=demo/orders.parquet,customers=demo/customers.parquet".
func ParseDatasets(raw string) ([]Dataset, error) {
	var datasets []Dataset
	seen := map[string]struct{}{}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, key, ok := strings.Cut(entry, "=")
		name = strings.TrimSpace(name)
		key = strings.TrimSpace(key)
		if !ok || name == "" || key == "" {
			return nil, fmt.Errorf("invalid dataset %q: want table=object/key.parquet", entry)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate dataset table %q", name)
		}
		seen[name] = struct{}{}
		datasets = append(datasets, Dataset{TableName: name, ObjectKey: key})
	}
	return datasets, nil
}

// IsReadOnly accepts SELECT and WITH statements only.
func IsReadOnly(sqlText string) bool {
	normalized := strings.ToLower(strings.TrimSpace(sqlText))
	if normalized == "" {
		return false
	}
	return strings.HasPrefix(normalized, "select") || strings.HasPrefix(normalized, "with")
}

func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

func QuoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
