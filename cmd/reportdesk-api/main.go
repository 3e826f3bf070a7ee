package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/duckmesh/reportdesk/internal/api"
	"github.com/duckmesh/reportdesk/internal/chart"
	"github.com/duckmesh/reportdesk/internal/config"
	"github.com/duckmesh/reportdesk/internal/dashboard"
	"github.com/duckmesh/reportdesk/internal/designer"
	"github.com/duckmesh/reportdesk/internal/export"
	"github.com/duckmesh/reportdesk/internal/nl2sql"
	"github.com/duckmesh/reportdesk/internal/observability"
	"github.com/duckmesh/reportdesk/internal/query"
	duckdbengine "github.com/duckmesh/reportdesk/internal/query/duckdb"
	"github.com/duckmesh/reportdesk/internal/report"
	reportpostgres "github.com/duckmesh/reportdesk/internal/report/postgres"
	"github.com/duckmesh/reportdesk/internal/semantic"
	s3store "github.com/duckmesh/reportdesk/internal/storage/s3"
)

const shutdownGrace = 10 * time.Second

func main() {
	cfg, err := config.LoadFromEnv("reportdesk-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("reportdesk-api stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	deps, closeDeps, err := wire(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDeps()

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      api.NewHandler(cfg, deps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address), slog.Bool("translate", deps.Queries.CanTranslate()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			_ = server.Close()
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// wire builds every service the handler needs. The returned func releases
// the report store.
func wire(ctx context.Context, cfg config.Config, logger *slog.Logger) (api.Dependencies, func(), error) {
	db, err := reportpostgres.Open(ctx, reportpostgres.DBConfig{
		DSN:             cfg.Store.DSN,
		ApplicationName: cfg.Service.Name,
		MaxOpenConns:    cfg.Store.MaxOpenConns,
		MaxIdleConns:    cfg.Store.MaxIdleConns,
		ConnMaxIdleTime: cfg.Store.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
	})
	if err != nil {
		return api.Dependencies{}, nil, fmt.Errorf("open report store: %w", err)
	}
	closeDB := func() { _ = db.Close() }
	fail := func(err error) (api.Dependencies, func(), error) {
		closeDB()
		return api.Dependencies{}, nil, err
	}

	objects := cfg.ObjectStore
	objectStore, err := s3store.New(ctx, s3store.Config{
		Endpoint:         objects.Endpoint,
		Region:           objects.Region,
		Bucket:           objects.Bucket,
		AccessKeyID:      objects.AccessKeyID,
		SecretAccessKey:  objects.SecretAccessKey,
		UseSSL:           objects.UseSSL,
		Prefix:           objects.Prefix,
		AutoCreateBucket: objects.AutoCreateBucket,
	})
	if err != nil {
		return fail(fmt.Errorf("object store: %w", err))
	}

	datasets, err := query.ParseDatasets(cfg.Warehouse.Datasets)
	if err != nil {
		return fail(fmt.Errorf("warehouse datasets: %w", err))
	}
	engine := duckdbengine.NewEngine(objectStore, duckdbengine.Config{
		DatabasePath: cfg.Warehouse.DatabasePath,
		Datasets:     datasets,
		MaxRows:      cfg.Warehouse.MaxRows,
	})
	logger.Debug("warehouse configured", slog.Int("datasets", len(datasets)))

	translator, err := newTranslator(cfg.AI)
	if err != nil {
		return fail(err)
	}

	repo := reportpostgres.NewRepository(db)
	queries := semantic.NewService(translator, engine, engine, semantic.Config{
		MaxRows:      cfg.Warehouse.MaxRows,
		QueryTimeout: cfg.Warehouse.QueryTimeout,
		SampleRows:   cfg.Warehouse.SchemaSampleRows,
	})
	charts := chart.NewEngine(chart.NewRenderer(cfg.Chart.MaxKPITiles))
	reports := report.NewManager(repo)

	return api.Dependencies{
		Logger:            logger,
		Queries:           queries,
		Charts:            charts,
		Designer:          designer.NewService(queries, charts, reports),
		Reports:           reports,
		Dashboards:        dashboard.NewAssembler(repo, reports, queries, charts, cfg.Dashboard.RenderConcurrency, logger),
		Archiver:          export.NewArchiver(objectStore, objectStore, cfg.Export.Prefix, cfg.Export.PresignExpiry),
		Readiness:         api.CombineReadinessChecks(repo.HealthCheck, api.CheckObjectStoreConfig(cfg)),
		DependencyTimeout: time.Second,
	}, closeDB, nil
}

// newTranslator returns nil when translation is disabled; ask requests then
// answer 501.
func newTranslator(cfg config.AIConfig) (nl2sql.Translator, error) {
	if !cfg.TranslateEnabled {
		return nil, nil
	}
	translator, err := nl2sql.NewOpenAITranslator(nl2sql.OpenAIConfig{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("query translator: %w", err)
	}
	return translator, nil
}
