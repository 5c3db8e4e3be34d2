package main

import (
	"context"
	"net/url"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"autocurator/httputil"
	"autocurator/pipeline"
	"autocurator/sources"
	"autocurator/storage"
	"autocurator/vin"
)

// initStore opens Postgres when DATABASE_URL is set, SQLite otherwise.
func initStore(ctx context.Context) (storage.Store, error) {
	if cfg.DatabaseURL != "" {
		st, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "init postgres store")
		}
		zap.L().Info("connected to postgres", zap.String("url", maskConnectionString(cfg.DatabaseURL)))
		return st, nil
	}

	st, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, eris.Wrap(err, "init sqlite store")
	}
	zap.L().Info("opened sqlite", zap.String("path", cfg.DBPath))
	return st, nil
}

func initClients() *httputil.Clients {
	return httputil.NewClients(httputil.Timeouts{
		VIN:     cfg.VIN.Timeout,
		API:     cfg.HTTPTimeout,
		Scraper: cfg.HTTPTimeout,
	})
}

func initSource(clients *httputil.Clients) (sources.Source, error) {
	src, err := sources.New(cfg.Source(cfg.DataSource), sources.Deps{
		APIClient:      clients.API,
		ScrapingClient: clients.Scraping,
		ApifyAPIKey:    cfg.ApifyAPIKey,
	})
	if err != nil {
		return nil, eris.Wrap(err, "init source")
	}
	return src, nil
}

func initVINClient(clients *httputil.Clients) *vin.Client {
	return vin.NewClient(
		vin.WithBaseURL(cfg.VIN.BaseURL),
		vin.WithDelay(cfg.VIN.Delay),
		vin.WithHTTPClient(clients.VIN),
	)
}

// initPipeline wires a full orchestrator. The returned store must be closed
// by the caller.
func initPipeline(ctx context.Context) (*pipeline.Orchestrator, storage.Store, error) {
	clients := initClients()

	src, err := initSource(clients)
	if err != nil {
		return nil, nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	var opts []pipeline.Option
	if cfg.S3.Enabled() {
		archiver, err := storage.NewS3Archiver(ctx, cfg.S3)
		if err != nil {
			st.Close() //nolint:errcheck
			return nil, nil, eris.Wrap(err, "init s3 archiver")
		}
		opts = append(opts, pipeline.WithArchiver(archiver))
		zap.L().Info("archiving raw batches", zap.String("bucket", cfg.S3.Bucket))
	}

	orch := pipeline.New(src, st, initVINClient(clients), cfg.Criteria, opts...)
	return orch, st, nil
}

// maskConnectionString hides the password of a connection URL for logging.
func maskConnectionString(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}
