package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/providers/genai"
	"server/internal/render"
	"server/internal/storage"
	"server/pkg/zip"
)

// renderjob runs one batch job from a JSON file against the env-configured
// key pool and writes the generated images to a local filesystem store.
// Operator tooling for reproducing production jobs without the HTTP surface.

type jobFile struct {
	TaskID string        `json:"taskId"`
	Shots  []domain.Shot `json:"shots"`
}

// capturingStore wraps the file store and keeps the written payloads in
// memory so a bundle can be produced without re-reading the output dir.
type capturingStore struct {
	inner   *storage.FileStore
	entries []zip.Entry
}

func (c *capturingStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	url, err := c.inner.Upload(ctx, key, data, contentType)
	if err != nil {
		return "", err
	}
	c.entries = append(c.entries, zip.Entry{Name: key, Data: data})
	return url, nil
}

func main() {
	var (
		jobPath    string
		outDir     string
		bundlePath string
	)
	flag.StringVar(&jobPath, "job", "", "Path to the job JSON file ({taskId, shots:[...]})")
	flag.StringVar(&outDir, "out", "./data/renderjob", "Directory for generated images")
	flag.StringVar(&bundlePath, "bundle", "", "Optional path for a zip bundle of images plus results.json")
	flag.Parse()

	if jobPath == "" {
		fmt.Fprintln(os.Stderr, "-job is required")
		os.Exit(1)
	}

	_ = godotenv.Load()
	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "renderjob").Logger()

	raw, err := os.ReadFile(jobPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read job file: %v\n", err)
		os.Exit(1)
	}
	var job jobFile
	if err := json.Unmarshal(raw, &job); err != nil {
		fmt.Fprintf(os.Stderr, "parse job file: %v\n", err)
		os.Exit(1)
	}
	if len(job.Shots) == 0 {
		fmt.Fprintln(os.Stderr, "job file contains no shots")
		os.Exit(1)
	}

	pool := domain.NewKeyPool(cfg.GeminiGateway, cfg.GeminiModel, cfg.GeminiAPIKeys)
	if len(pool) == 0 {
		fmt.Fprintln(os.Stderr, "GEMINI_API_KEYS is required")
		os.Exit(1)
	}

	store, err := storage.NewFileStore(outDir, "file://"+outDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init store: %v\n", err)
		os.Exit(1)
	}

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
	capture := &capturingStore{inner: store}
	runner := render.NewRunner(fetcher, executor, capture, logger)

	results := runner.Run(context.Background(), pool, job.Shots)

	out := map[string]any{
		"success": true,
		"taskId":  job.TaskID,
		"results": results,
		"count":   len(results),
	}
	encoded, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(encoded))

	if bundlePath != "" {
		entries := append(capture.entries, zip.Entry{Name: "results.json", Data: encoded})
		if data := zip.Bundle(entries); data != nil {
			if err := os.WriteFile(bundlePath, data, 0o644); err != nil {
				fmt.Fprintf(os.Stderr, "write bundle: %v\n", err)
				os.Exit(1)
			}
			logger.Info().Str("path", bundlePath).Int("entries", len(entries)).Msg("renderjob: bundle written")
		}
	}

	for _, result := range results {
		if !result.Success {
			os.Exit(2)
		}
	}
}
