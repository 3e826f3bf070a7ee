package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/duckmesh/reportdesk/internal/chart"
	"github.com/duckmesh/reportdesk/internal/dashboard"
	"github.com/duckmesh/reportdesk/internal/report"
)

// Repository stores reports and dashboards in Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping store db: %w", err)
	}
	return nil
}

func (r *Repository) InsertReport(ctx context.Context, in report.Report) (report.Report, error) {
	spec, err := json.Marshal(in.Spec)
	if err != nil {
		return report.Report{}, fmt.Errorf("encode chart spec: %w", err)
	}
	query := `
INSERT INTO report (id, name, sql_text, interpretation_text, chart_spec, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)`
	if _, err := r.db.ExecContext(ctx, query, in.ID, in.Name, in.SQL, in.Interpretation, string(spec), in.CreatedAt, in.UpdatedAt); err != nil {
		return report.Report{}, fmt.Errorf("insert report: %w", err)
	}
	return in, nil
}

func (r *Repository) UpdateReport(ctx context.Context, in report.Report) (report.Report, error) {
	spec, err := json.Marshal(in.Spec)
	if err != nil {
		return report.Report{}, fmt.Errorf("encode chart spec: %w", err)
	}
	query := `
UPDATE report
SET name = $2, sql_text = $3, interpretation_text = $4, chart_spec = $5::jsonb, updated_at = $6
WHERE id = $1
RETURNING created_at`
	if !isRowID(in.ID) {
		return report.Report{}, report.ErrNotFound
	}
	if err := r.db.QueryRowContext(ctx, query, in.ID, in.Name, in.SQL, in.Interpretation, string(spec), in.UpdatedAt).Scan(&in.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return report.Report{}, report.ErrNotFound
		}
		return report.Report{}, fmt.Errorf("update report: %w", err)
	}
	return in, nil
}

func (r *Repository) GetReport(ctx context.Context, id string) (report.Report, error) {
	query := `
SELECT id, name, sql_text, interpretation_text, chart_spec, created_at, updated_at
FROM report
WHERE id = $1`
	if !isRowID(id) {
		return report.Report{}, report.ErrNotFound
	}
	loaded, err := scanReport(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return report.Report{}, report.ErrNotFound
		}
		return report.Report{}, fmt.Errorf("get report: %w", err)
	}
	return loaded, nil
}

func (r *Repository) ListReports(ctx context.Context) ([]report.Report, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, sql_text, interpretation_text, chart_spec, created_at, updated_at
FROM report
ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	reports := make([]report.Report, 0)
	for rows.Next() {
		loaded, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		reports = append(reports, loaded)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate report rows: %w", err)
	}
	return reports, nil
}

func (r *Repository) DeleteReport(ctx context.Context, id string) (bool, error) {
	if !isRowID(id) {
		return false, nil
	}
	result, err := r.db.ExecContext(ctx, `
DELETE FROM report
WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete report: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete report rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *Repository) InsertDashboard(ctx context.Context, in dashboard.Dashboard) (dashboard.Dashboard, error) {
	ids, err := encodeIDs(in.ReportIDs)
	if err != nil {
		return dashboard.Dashboard{}, err
	}
	query := `
INSERT INTO dashboard (id, name, report_ids, created_at, updated_at)
VALUES ($1, $2, $3::jsonb, $4, $5)`
	if _, err := r.db.ExecContext(ctx, query, in.ID, in.Name, ids, in.CreatedAt, in.UpdatedAt); err != nil {
		return dashboard.Dashboard{}, fmt.Errorf("insert dashboard: %w", err)
	}
	return in, nil
}

func (r *Repository) SetDashboardReports(ctx context.Context, id string, reportIDs []string, updatedAt time.Time) (dashboard.Dashboard, error) {
	ids, err := encodeIDs(reportIDs)
	if err != nil {
		return dashboard.Dashboard{}, err
	}
	query := `
UPDATE dashboard
SET report_ids = $2::jsonb, updated_at = $3
WHERE id = $1
RETURNING id, name, report_ids, created_at, updated_at`
	if !isRowID(id) {
		return dashboard.Dashboard{}, dashboard.ErrNotFound
	}
	updated, err := scanDashboard(r.db.QueryRowContext(ctx, query, id, ids, updatedAt))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dashboard.Dashboard{}, dashboard.ErrNotFound
		}
		return dashboard.Dashboard{}, fmt.Errorf("set dashboard reports: %w", err)
	}
	return updated, nil
}

func (r *Repository) GetDashboard(ctx context.Context, id string) (dashboard.Dashboard, error) {
	query := `
SELECT id, name, report_ids, created_at, updated_at
FROM dashboard
WHERE id = $1`
	if !isRowID(id) {
		return dashboard.Dashboard{}, dashboard.ErrNotFound
	}
	loaded, err := scanDashboard(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dashboard.Dashboard{}, dashboard.ErrNotFound
		}
		return dashboard.Dashboard{}, fmt.Errorf("get dashboard: %w", err)
	}
	return loaded, nil
}

func (r *Repository) ListDashboards(ctx context.Context) ([]dashboard.Dashboard, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, report_ids, created_at, updated_at
FROM dashboard
ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list dashboards: %w", err)
	}
	defer func() { _ = rows.Close() }()

	dashboards := make([]dashboard.Dashboard, 0)
	for rows.Next() {
		loaded, err := scanDashboard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dashboard row: %w", err)
		}
		dashboards = append(dashboards, loaded)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dashboard rows: %w", err)
	}
	return dashboards, nil
}

func (r *Repository) DeleteDashboard(ctx context.Context, id string) (bool, error) {
	if !isRowID(id) {
		return false, nil
	}
	result, err := r.db.ExecContext(ctx, `
DELETE FROM dashboard
WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete dashboard: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete dashboard rows affected: %w", err)
	}
	return affected > 0, nil
}

// isRowID reports whether id can name a row. The id columns are UUID, so any
// other text can never match and would fail the query with a cast error.
func isRowID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (report.Report, error) {
	var out report.Report
	var spec []byte
	if err := row.Scan(&out.ID, &out.Name, &out.SQL, &out.Interpretation, &spec, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return report.Report{}, err
	}
	if len(spec) > 0 {
		var decoded chart.Spec
		if err := json.Unmarshal(spec, &decoded); err != nil {
			return report.Report{}, fmt.Errorf("decode chart spec for report %q: %w", out.ID, err)
		}
		out.Spec = decoded
	}
	return out, nil
}

func scanDashboard(row rowScanner) (dashboard.Dashboard, error) {
	var out dashboard.Dashboard
	var ids []byte
	if err := row.Scan(&out.ID, &out.Name, &ids, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return dashboard.Dashboard{}, err
	}
	out.ReportIDs = []string{}
	if len(ids) > 0 {
		if err := json.Unmarshal(ids, &out.ReportIDs); err != nil {
			return dashboard.Dashboard{}, fmt.Errorf("decode report ids for dashboard %q: %w", out.ID, err)
		}
	}
	return out, nil
}

func encodeIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	encoded, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("encode report ids: %w", err)
	}
	return string(encoded), nil
}
