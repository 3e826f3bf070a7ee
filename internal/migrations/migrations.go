// Package migrations applies the report store schema. Scripts are embedded
// from sql/ and named NNNNNN_name.up.sql / NNNNNN_name.down.sql.
package migrations

import (
	"cmp"
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

const (
	migrationTable = "reportdesk_schema_migrations"
	// lockKey is the pg advisory lock held while a runner changes the schema.
	lockKey int64 = 0x7265706f7274
)

var scriptName = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.(up|down)\.sql$`)

// ErrChecksumMismatch means an applied script was edited after it ran.
var ErrChecksumMismatch = errors.New("migrations: applied script changed")

type Runner struct {
	fsys   fs.FS
	logger *slog.Logger
}

func NewRunner() *Runner {
	return &Runner{fsys: embeddedFS, logger: slog.New(slog.DiscardHandler)}
}

// WithLogger returns a runner that logs every applied or rolled back step.
func (r *Runner) WithLogger(logger *slog.Logger) *Runner {
	out := *r
	out.logger = logger
	if out.logger == nil {
		out.logger = slog.New(slog.DiscardHandler)
	}
	return &out
}

type script struct {
	version  int64
	name     string
	up       string
	down     string
	checksum string
}

func (s script) label() string {
	return fmt.Sprintf("%06d_%s", s.version, s.name)
}

type appliedRow struct {
	at       time.Time
	checksum string
}

// Status describes one known migration and whether it has been applied.
type Status struct {
	Version   int64      `json:"version"`
	Name      string     `json:"name"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
	Modified  bool       `json:"modified,omitempty"`
}

// Up applies pending migrations in version order. steps <= 0 applies all.
func (r *Runner) Up(ctx context.Context, db *sql.DB, steps int) (int, error) {
	scripts, err := readScripts(r.fsys)
	if err != nil {
		return 0, err
	}
	count := 0
	err = r.locked(ctx, db, func(conn *sql.Conn, applied map[int64]appliedRow) error {
		for _, s := range scripts {
			if row, ok := applied[s.version]; ok {
				if row.checksum != "" && row.checksum != s.checksum {
					return fmt.Errorf("%w: %s", ErrChecksumMismatch, s.label())
				}
				continue
			}
			if steps > 0 && count >= steps {
				return nil
			}
			record := `INSERT INTO ` + migrationTable + ` (version, name, checksum) VALUES ($1, $2, $3)`
			if err := inTx(ctx, conn, s.up, record, s.version, s.name, s.checksum); err != nil {
				return fmt.Errorf("apply migration %s: %w", s.label(), err)
			}
			r.logger.InfoContext(ctx, "migration applied", "version", s.version, "name", s.name)
			count++
		}
		return nil
	})
	return count, err
}

// Down rolls back the newest applied migrations. steps <= 0 rolls back one.
func (r *Runner) Down(ctx context.Context, db *sql.DB, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}
	scripts, err := readScripts(r.fsys)
	if err != nil {
		return 0, err
	}
	byVersion := make(map[int64]script, len(scripts))
	for _, s := range scripts {
		byVersion[s.version] = s
	}
	count := 0
	err = r.locked(ctx, db, func(conn *sql.Conn, applied map[int64]appliedRow) error {
		versions := make([]int64, 0, len(applied))
		for version := range applied {
			versions = append(versions, version)
		}
		slices.Sort(versions)
		slices.Reverse(versions)
		for _, version := range versions {
			if count >= steps {
				return nil
			}
			s, ok := byVersion[version]
			if !ok {
				return fmt.Errorf("applied migration %d has no script", version)
			}
			record := `DELETE FROM ` + migrationTable + ` WHERE version = $1`
			if err := inTx(ctx, conn, s.down, record, s.version); err != nil {
				return fmt.Errorf("roll back migration %s: %w", s.label(), err)
			}
			r.logger.InfoContext(ctx, "migration rolled back", "version", s.version, "name", s.name)
			count++
		}
		return nil
	})
	return count, err
}

// Status lists every embedded migration. Modified marks applied scripts whose
// contents no longer match what ran.
func (r *Runner) Status(ctx context.Context, db *sql.DB) ([]Status, error) {
	scripts, err := readScripts(r.fsys)
	if err != nil {
		return nil, err
	}
	if err := ensureTable(ctx, db); err != nil {
		return nil, err
	}
	applied, err := readApplied(ctx, db)
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(scripts))
	for _, s := range scripts {
		status := Status{Version: s.version, Name: s.name}
		if row, ok := applied[s.version]; ok {
			at := row.at
			status.AppliedAt = &at
			status.Modified = row.checksum != "" && row.checksum != s.checksum
		}
		out = append(out, status)
	}
	return out, nil
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// locked runs fn on a single connection holding the schema advisory lock so
// concurrent runners apply each script once.
func (r *Runner) locked(ctx context.Context, db *sql.DB, fn func(*sql.Conn, map[int64]appliedRow) error) (err error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, lockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		if _, unlockErr := conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, lockKey); unlockErr != nil && err == nil {
			err = fmt.Errorf("release migration lock: %w", unlockErr)
		}
	}()

	if err := ensureTable(ctx, conn); err != nil {
		return err
	}
	applied, err := readApplied(ctx, conn)
	if err != nil {
		return err
	}
	return fn(conn, applied)
}

func inTx(ctx context.Context, conn *sql.Conn, body, record string, args ...any) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, record, args...); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func ensureTable(ctx context.Context, q queryer) error {
	_, err := q.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+migrationTable+` (
	version BIGINT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	checksum TEXT NOT NULL DEFAULT '',
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`)
	if err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	return nil
}

func readApplied(ctx context.Context, q queryer) (map[int64]appliedRow, error) {
	rows, err := q.QueryContext(ctx, `SELECT version, checksum, applied_at FROM `+migrationTable)
	if err != nil {
		return nil, fmt.Errorf("query applied versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	applied := map[int64]appliedRow{}
	for rows.Next() {
		var (
			version int64
			row     appliedRow
		)
		if err := rows.Scan(&version, &row.checksum, &row.at); err != nil {
			return nil, fmt.Errorf("scan applied version: %w", err)
		}
		applied[version] = row
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied versions: %w", err)
	}
	return applied, nil
}

// readScripts pairs up and down files by version. Files that do not match
// the naming scheme are ignored.
func readScripts(fsys fs.FS) ([]script, error) {
	entries, err := fs.ReadDir(fsys, "sql")
	if err != nil {
		return nil, fmt.Errorf("read migration dir: %w", err)
	}

	byVersion := map[int64]*script{}
	for _, entry := range entries {
		parts := scriptName.FindStringSubmatch(entry.Name())
		if entry.IsDir() || parts == nil {
			continue
		}
		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("migration %q: bad version: %w", entry.Name(), err)
		}
		body, err := fs.ReadFile(fsys, "sql/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", entry.Name(), err)
		}

		s, ok := byVersion[version]
		if !ok {
			s = &script{version: version, name: parts[2]}
			byVersion[version] = s
		}
		if s.name != parts[2] {
			return nil, fmt.Errorf("migration %d is named both %q and %q", version, s.name, parts[2])
		}
		if parts[3] == "up" {
			s.up = string(body)
			sum := sha256.Sum256(body)
			s.checksum = hex.EncodeToString(sum[:])
		} else {
			s.down = string(body)
		}
	}

	out := make([]script, 0, len(byVersion))
	for _, s := range byVersion {
		switch {
		case strings.TrimSpace(s.up) == "":
			return nil, fmt.Errorf("migration %s missing up SQL", s.label())
		case strings.TrimSpace(s.down) == "":
			return nil, fmt.Errorf("migration %s missing down SQL", s.label())
		}
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b script) int { return cmp.Compare(a.version, b.version) })
	return out, nil
}
