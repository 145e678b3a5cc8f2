package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"retl/internal/config"
	"retl/internal/diag"
	"retl/internal/enrich"
	"retl/internal/load"
	"retl/internal/manifest"
	"retl/internal/metadata"
	"retl/internal/metrics"
	"retl/internal/pipeline"
	"retl/internal/watermark"
)

func main() {
	var (
		configPath  string
		incremental bool
	)
	flag.StringVar(&configPath, "config", "", "optional config file (env vars take precedence)")
	flag.BoolVar(&incremental, "incremental", false, "only process sales past the stored watermark")
	flag.Parse()

	if err := run(configPath, incremental); err != nil {
		log.Fatalf("etl failed: %v", err)
	}
}

func run(configPath string, incremental bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := newLogger(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx := context.Background()

	if cfg.DatabaseDSN == "" {
		return fmt.Errorf("database-dsn is required (set DATABASE_DSN)")
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	loader := load.New(pool)
	if err := loader.EnsureSchema(ctx); err != nil {
		return err
	}
	wmStore := watermark.NewPostgresStore(pool)
	if err := wmStore.EnsureTable(ctx); err != nil {
		return err
	}

	reg := metrics.NewRegistry()
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", reg.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				sugar.Errorw("metrics server", "err", err)
			}
		}()
	}

	fetcher := metadata.NewFetcher(cfg.APIURL, cfg.APIPageSize, cfg.APIMaxAttempts)
	fetcher.OnPage = reg.PagesFetched.Inc
	fetcher.OnRetry = reg.FetchRetries.Inc

	options := []pipeline.Option{pipeline.WithMetrics(reg)}

	archive, err := diag.OpenArchive(cfg.StateDir + "/diagnostics")
	if err != nil {
		return fmt.Errorf("open diagnostics archive: %w", err)
	}
	defer archive.Close()
	options = append(options, pipeline.WithArchive(archive))

	pub := manifest.Publisher(manifest.NewFilesystemManifest(cfg.StateDir))
	if cfg.KafkaBootstrap != "" {
		pub = manifest.MultiPublisher(pub,
			manifest.NewKafkaManifest(cfg.KafkaBootstrap, cfg.ManifestTopic, "etl-manifest-latest"))
	}
	options = append(options, pipeline.WithPublisher(pub))

	p := pipeline.New(sugar,
		pipeline.Sources{
			ProductsFile:  cfg.ProductsFile,
			SalesFile:     cfg.SalesFile,
			CustomersFile: cfg.CustomersFile,
		},
		fetcher, loader, wmStore,
		enrich.Options{
			BuyerWindowDays:          cfg.BuyerWindowDays,
			DropUnknownCustomerSales: cfg.DropUnknownCustomerSales,
		},
		options...,
	)

	rep, err := p.Run(ctx, incremental)
	if err != nil {
		return err
	}
	if rep.NoOp {
		sugar.Infow("run complete (no-op)", "run_id", rep.RunID)
		return nil
	}
	sugar.Infow("run complete",
		"run_id", rep.RunID,
		"products", rep.RowsLoaded.Products,
		"customers", rep.RowsLoaded.Customers,
		"sales", rep.RowsLoaded.Sales,
		"watermark", rep.WatermarkAfter.Format("2006-01-02"),
		"duration", rep.Duration.String(),
	)
	return nil
}

func newLogger(mode string) (*zap.Logger, error) {
	if mode == "prod" || mode == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
