package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/duckmesh/reportdesk/internal/config"
	"github.com/duckmesh/reportdesk/internal/demo/seed"
	"github.com/duckmesh/reportdesk/internal/observability"
	s3store "github.com/duckmesh/reportdesk/internal/storage/s3"
)

func main() {
	seedCfg, err := seed.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		slog.Error("failed to load seed config", slog.Any("error", err))
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use:          "reportdesk-seed",
		Short:        "Generate the demo orders dataset and upload it as parquet",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), seedCfg)
		},
	}
	rootCmd.Flags().StringVar(&seedCfg.TableName, "table", seedCfg.TableName, "dataset table name")
	rootCmd.Flags().StringVar(&seedCfg.Prefix, "prefix", seedCfg.Prefix, "object key prefix for datasets")
	rootCmd.Flags().IntVar(&seedCfg.Rows, "rows", seedCfg.Rows, "number of orders to generate")
	rootCmd.Flags().IntVar(&seedCfg.Days, "days", seedCfg.Days, "days of history ending today")
	rootCmd.Flags().IntVar(&seedCfg.Customers, "customers", seedCfg.Customers, "distinct customers")
	rootCmd.Flags().Int64Var(&seedCfg.Seed, "seed", seedCfg.Seed, "random seed")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, seedCfg seed.Config) error {
	cfg, err := config.LoadFromEnv("reportdesk-seed")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	store, err := s3store.New(ctx, s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
	if err != nil {
		return fmt.Errorf("initialize object store: %w", err)
	}

	seeder, err := seed.NewSeeder(seedCfg, store, logger)
	if err != nil {
		return err
	}
	result, err := seeder.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("uploaded %d rows to %s\nset REPORTDESK_WAREHOUSE_DATASETS=%s\n", result.Rows, result.Key, result.DatasetArg)
	return nil
}
