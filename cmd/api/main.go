package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"server/internal/http/handlers"
	httpapi "server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/infra/credentials"
	"server/internal/providers/genai"
	"server/internal/render"
	"server/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()

	// Database-backed key pool is optional; env keys cover the single-tenant case.
	var keys handlers.KeySource
	if cfg.DatabaseURL != "" {
		dbpool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer dbpool.Close()
		keys = credentials.NewStore(infra.NewSQLRunner(dbpool, logger))
	}

	uploader, err := newUploader(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to construct storage client")
	}

	runner := newRunner(cfg, logger, uploader)
	app := handlers.NewApp(cfg, logger, runner, keys)
	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("render API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

func newUploader(ctx context.Context, cfg *infra.Config) (render.Uploader, error) {
	if cfg.StorageDriver == "filesystem" {
		return storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	}
	return storage.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Region)
}

func newRunner(cfg *infra.Config, logger infra.Logger, uploader render.Uploader) *render.Runner {
	client := genai.NewClient(genai.Options{
		MaxStreamBytes: cfg.MaxStreamBytes,
		MaxLogBytes:    cfg.MaxShootLogBytes,
		Logger:         logger,
	})
	fetcher := render.NewFetcher(render.FetcherOptions{
		AssetHost: cfg.AssetHost,
		MaxBytes:  cfg.MaxReferenceBytes,
		Timeout:   cfg.ReferenceTimeout,
		Logger:    logger,
	})
	executor := render.NewExecutor(render.ExecutorOptions{
		Client:         client,
		AttemptTimeout: cfg.AttemptTimeout,
		Backoff:        cfg.RetryBackoff,
		Logger:         logger,
	})
	return render.NewRunner(fetcher, executor, uploader, logger)
}
