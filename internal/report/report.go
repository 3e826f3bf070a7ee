package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/duckmesh/reportdesk/internal/chart"
)

var (
	ErrNotFound = errors.New("report: not found")
	ErrInvalid  = errors.New("report: invalid")
)

// Report is a saved, replayable query with its chart spec. Names are labels
// and may repeat.
type Report struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	SQL            string     `json:"sql"`
	Interpretation string     `json:"interpretation"`
	Spec           chart.Spec `json:"chart_spec"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type Repository interface {
	InsertReport(ctx context.Context, in Report) (Report, error)
	UpdateReport(ctx context.Context, in Report) (Report, error)
	GetReport(ctx context.Context, id string) (Report, error)
	ListReports(ctx context.Context) ([]Report, error)
	DeleteReport(ctx context.Context, id string) (bool, error)
}

type Manager struct {
	repo  Repository
	now   func() time.Time
	newID func() string
}

// StoreTime rounds t to the microsecond precision of a TIMESTAMPTZ column so
// a saved timestamp equals the one a later load returns.
func StoreTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func NewManager(repo Repository) *Manager {
	return &Manager{
		repo:  repo,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Save inserts a report when in.ID is empty and overwrites the stored one
// otherwise. Overwriting an unknown id fails with ErrNotFound.
func (m *Manager) Save(ctx context.Context, in Report) (Report, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Name = strings.TrimSpace(in.Name)
	in.SQL = strings.TrimSpace(in.SQL)
	if err := validate(in); err != nil {
		return Report{}, err
	}
	in.Spec = in.Spec.Clone()

	now := StoreTime(m.now())
	in.UpdatedAt = now
	if in.ID == "" {
		in.ID = m.newID()
		in.CreatedAt = now
		saved, err := m.repo.InsertReport(ctx, in)
		if err != nil {
			return Report{}, fmt.Errorf("insert report: %w", err)
		}
		return saved, nil
	}

	saved, err := m.repo.UpdateReport(ctx, in)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Report{}, err
		}
		return Report{}, fmt.Errorf("update report %q: %w", in.ID, err)
	}
	return saved, nil
}

func (m *Manager) Load(ctx context.Context, id string) (Report, error) {
	loaded, err := m.repo.GetReport(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Report{}, err
		}
		return Report{}, fmt.Errorf("load report %q: %w", id, err)
	}
	return loaded, nil
}

func (m *Manager) List(ctx context.Context) ([]Report, error) {
	reports, err := m.repo.ListReports(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return reports, nil
}

// Delete removes a report. Dashboards that reference it keep the id and show
// a not-found tile.
func (m *Manager) Delete(ctx context.Context, id string) error {
	deleted, err := m.repo.DeleteReport(ctx, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("delete report %q: %w", id, err)
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

func validate(in Report) error {
	if in.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if in.SQL == "" {
		return fmt.Errorf("%w: sql is required", ErrInvalid)
	}
	if in.Spec.Template != "" {
		if _, ok := chart.LookupTemplate(in.Spec.Template); !ok {
			return fmt.Errorf("%w: unknown chart template %q", ErrInvalid, in.Spec.Template)
		}
	}
	return nil
}
