package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marcboeker/go-duckdb/v2"

	"github.com/duckmesh/reportdesk/internal/query"
	"github.com/duckmesh/reportdesk/internal/resultset"
	"github.com/duckmesh/reportdesk/internal/storage"
)

type Config struct {
	// DatabasePath is an optional DuckDB file attached read-only.
	DatabasePath string
	Datasets     []query.Dataset
	MaxRows      int
}

type Engine struct {
	Store        storage.ObjectStore
	databasePath string
	datasets     []query.Dataset
	maxRows      int
}

func NewEngine(store storage.ObjectStore, cfg Config) *Engine {
	return &Engine{
		Store:        store,
		databasePath: strings.TrimSpace(cfg.DatabasePath),
		datasets:     append([]query.Dataset(nil), cfg.Datasets...),
		maxRows:      cfg.MaxRows,
	}
}

// Execute runs a read-only query. The row limit is the smaller of the request
// limit and the configured maximum; Result.Truncated reports whether more rows
// were available.
func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText := query.StripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return query.Result{}, query.ErrEmptySQL
	}
	if !query.IsReadOnly(sqlText) {
		return query.Result{}, query.ErrNotReadOnly
	}

	start := time.Now()
	db, cleanup, err := e.open(ctx)
	if err != nil {
		return query.Result{}, err
	}
	defer cleanup()

	limit := e.rowLimit(request.RowLimit)
	if limit > 0 {
		sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, limit+1)
	}
	rs, err := collect(ctx, db, sqlText)
	if err != nil {
		return query.Result{}, err
	}

	truncated := false
	if limit > 0 && len(rs.Rows) > limit {
		rs.Rows = rs.Rows[:limit]
		truncated = true
	}
	return query.Result{ResultSet: rs, Truncated: truncated, Duration: time.Since(start)}, nil
}

// Tables describes every configured dataset, with up to sampleRows rows each.
func (e *Engine) Tables(ctx context.Context, sampleRows int) ([]query.TableSchema, error) {
	db, cleanup, err := e.open(ctx)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if sampleRows < 0 {
		sampleRows = 0
	}
	tables := make([]query.TableSchema, 0, len(e.datasets))
	for _, dataset := range e.datasets {
		rs, err := collect(ctx, db, fmt.Sprintf("SELECT * FROM %s LIMIT %d", query.QuoteIdent(dataset.TableName), sampleRows))
		if err != nil {
			return nil, fmt.Errorf("describe table %q: %w", dataset.TableName, err)
		}
		tables = append(tables, query.TableSchema{TableName: dataset.TableName, Columns: rs.Columns, SampleRows: rs.Rows})
	}
	return tables, nil
}

func (e *Engine) rowLimit(requested int) int {
	switch {
	case e.maxRows <= 0:
		return requested
	case requested <= 0 || requested > e.maxRows:
		return e.maxRows
	}
	return requested
}

func (e *Engine) open(ctx context.Context) (*sql.DB, func(), error) {
	if len(e.datasets) > 0 && e.Store == nil {
		return nil, nil, fmt.Errorf("object store is required")
	}
	workDir, err := os.MkdirTemp("", "reportdesk-query-")
	if err != nil {
		return nil, nil, fmt.Errorf("create query temp dir: %w", err)
	}
	removeWorkDir := func() { _ = os.RemoveAll(workDir) }

	localPaths := make(map[string]string, len(e.datasets))
	for index, dataset := range e.datasets {
		localPath := filepath.Join(workDir, fmt.Sprintf("%s_%d.parquet", sanitizeFileComponent(dataset.TableName), index))
		if _, err := stageDataset(ctx, e.Store, dataset.ObjectKey, localPath); err != nil {
			removeWorkDir()
			return nil, nil, err
		}
		localPaths[dataset.TableName] = localPath
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		removeWorkDir()
		return nil, nil, fmt.Errorf("open duckdb: %w", err)
	}
	cleanup := func() {
		_ = db.Close()
		removeWorkDir()
	}

	if e.databasePath != "" {
		for _, statement := range []string{
			fmt.Sprintf("ATTACH %s AS warehouse (READ_ONLY)", quoteString(e.databasePath)),
			"USE warehouse",
		} {
			if _, err := db.ExecContext(ctx, statement); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("attach database %q: %w", e.databasePath, err)
			}
		}
	}
	for _, dataset := range e.datasets {
		viewSQL := fmt.Sprintf(`CREATE OR REPLACE TEMP VIEW %s AS SELECT * FROM read_parquet(%s)`, query.QuoteIdent(dataset.TableName), quoteString(localPaths[dataset.TableName]))
		if _, err := db.ExecContext(ctx, viewSQL); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("create view for table %q: %w", dataset.TableName, err)
		}
	}
	return db, cleanup, nil
}

func collect(ctx context.Context, db *sql.DB, sqlText string) (resultset.ResultSet, error) {
	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return resultset.ResultSet{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return resultset.ResultSet{}, fmt.Errorf("query columns: %w", err)
	}
	columns := make([]resultset.Column, 0, len(columnTypes))
	for _, columnType := range columnTypes {
		columns = append(columns, resultset.Column{Name: columnType.Name(), DatabaseType: columnType.DatabaseTypeName()})
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return resultset.ResultSet{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(columns, values))
	}
	if err := rows.Err(); err != nil {
		return resultset.ResultSet{}, fmt.Errorf("iterate rows: %w", err)
	}
	return resultset.ResultSet{Columns: columns, Rows: resultRows}, nil
}

// normalizeValues converts driver-specific values into plain JSON-friendly
// ones. HUGEINT values that fit in int64 are narrowed.
func normalizeValues(columns []resultset.Column, values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			if id, err := uuid.FromBytes(typed); err == nil && strings.EqualFold(columns[i].DatabaseType, "UUID") {
				normalized[i] = id.String()
			} else {
				normalized[i] = string(typed)
			}
		case duckdb.Decimal:
			normalized[i] = typed.Float64()
		case *big.Int:
			if typed != nil && typed.IsInt64() {
				normalized[i] = typed.Int64()
			} else {
				normalized[i] = typed
			}
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "table"
	}
	return value
}
