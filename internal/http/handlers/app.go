package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/infra"
)

// BatchRunner renders the shots of one job.
type BatchRunner interface {
	Run(ctx context.Context, pool domain.KeyPool, shots []domain.Shot) []domain.ShotResult
}

// KeySource supplies the pooled API keys for one job. Implementations may
// read from the database or from the environment.
type KeySource interface {
	GeminiKeys(ctx context.Context) ([]string, error)
}

// App is the handler container wiring configuration, logging and the render
// pipeline into the HTTP surface.
type App struct {
	Config *infra.Config
	Logger zerolog.Logger
	Runner BatchRunner
	Keys   KeySource
}

func NewApp(cfg *infra.Config, logger zerolog.Logger, runner BatchRunner, keys KeySource) *App {
	return &App{Config: cfg, Logger: logger, Runner: runner, Keys: keys}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, map[string]any{"success": false, "error": kind, "message": message})
}
