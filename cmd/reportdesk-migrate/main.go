package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/duckmesh/reportdesk/internal/config"
	"github.com/duckmesh/reportdesk/internal/migrations"
	reportpostgres "github.com/duckmesh/reportdesk/internal/report/postgres"
)

type invocation struct {
	direction string
	steps     int
	timeout   time.Duration
}

var errUsage = errors.New("usage")

func parseArgs(args []string, stderr io.Writer) (invocation, error) {
	var inv invocation
	fs := flag.NewFlagSet("reportdesk-migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&inv.direction, "direction", "up", "migration direction: up|down|status")
	fs.IntVar(&inv.steps, "steps", 0, "number of migration steps; 0 means all for up, 1 for down")
	fs.DurationVar(&inv.timeout, "timeout", 30*time.Second, "overall deadline")
	if err := fs.Parse(args); err != nil {
		return inv, errUsage
	}
	switch inv.direction {
	case "up", "down", "status":
	default:
		return inv, fmt.Errorf("%w: invalid direction %q", errUsage, inv.direction)
	}
	if inv.steps < 0 || inv.timeout <= 0 {
		return inv, fmt.Errorf("%w: steps must be >= 0 and timeout > 0", errUsage)
	}
	return inv, nil
}

func main() {
	inv, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.LoadFromEnv("reportdesk-migrate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Store.DSN == "" {
		fmt.Fprintln(os.Stderr, "REPORTDESK_STORE_DSN is required")
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Observability.LogLevel}))

	ctx, cancel := context.WithTimeout(context.Background(), inv.timeout)
	defer cancel()

	db, err := reportpostgres.Open(ctx, reportpostgres.DBConfig{DSN: cfg.Store.DSN, ApplicationName: "reportdesk-migrate", MaxOpenConns: 1})
	if err != nil {
		logger.Error("open report store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	runner := migrations.NewRunner().WithLogger(logger)
	if err := execute(ctx, runner, db, inv, os.Stdout); err != nil {
		logger.Error("migration failed", slog.String("direction", inv.direction), slog.Any("error", err))
		os.Exit(1)
	}
}

func execute(ctx context.Context, runner *migrations.Runner, db *sql.DB, inv invocation, stdout io.Writer) error {
	switch inv.direction {
	case "up":
		applied, err := runner.Up(ctx, db, inv.steps)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "applied %d migration(s)\n", applied)
	case "down":
		rolledBack, err := runner.Down(ctx, db, inv.steps)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "rolled back %d migration(s)\n", rolledBack)
	case "status":
		statuses, err := runner.Status(ctx, db)
		if err != nil {
			return err
		}
		for _, status := range statuses {
			state := "pending"
			if status.AppliedAt != nil {
				state = status.AppliedAt.UTC().Format(time.RFC3339)
			}
			if status.Modified {
				state += " (modified)"
			}
			fmt.Fprintf(stdout, "%06d_%s\t%s\n", status.Version, status.Name, state)
		}
	}
	return nil
}
