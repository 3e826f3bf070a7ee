package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/duckmesh/reportdesk/internal/report"
)

var (
	ErrNotFound = errors.New("dashboard: not found")
	ErrInvalid  = errors.New("dashboard: invalid")
)

// Dashboard holds ordered references to reports, never their content.
type Dashboard struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ReportIDs []string  `json:"report_ids"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Repository interface {
	InsertDashboard(ctx context.Context, in Dashboard) (Dashboard, error)
	SetDashboardReports(ctx context.Context, id string, reportIDs []string, updatedAt time.Time) (Dashboard, error)
	GetDashboard(ctx context.Context, id string) (Dashboard, error)
	ListDashboards(ctx context.Context) ([]Dashboard, error)
	DeleteDashboard(ctx context.Context, id string) (bool, error)
}

// UnknownReportError rejects a membership change that names a report which
// does not exist.
type UnknownReportError struct {
	ReportID string
}

func (e *UnknownReportError) Error() string {
	return fmt.Sprintf("report %q does not exist", e.ReportID)
}

func (e *UnknownReportError) Unwrap() error {
	return report.ErrNotFound
}
