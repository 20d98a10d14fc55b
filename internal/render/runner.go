package render

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/providers/genai"
)

// Uploader persists one generated image and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Runner processes the shots of one job. Shots run sequentially to bound
// concurrent load on the generation API and the storage service; a failed
// shot never aborts its siblings.
type Runner struct {
	fetcher  *Fetcher
	executor *Executor
	uploader Uploader
	logger   zerolog.Logger
}

func NewRunner(fetcher *Fetcher, executor *Executor, uploader Uploader, logger zerolog.Logger) *Runner {
	return &Runner{fetcher: fetcher, executor: executor, uploader: uploader, logger: logger}
}

// Run returns one result per input shot, in input order, regardless of
// individual failures.
func (r *Runner) Run(ctx context.Context, pool domain.KeyPool, shots []domain.Shot) []domain.ShotResult {
	results := make([]domain.ShotResult, 0, len(shots))
	for _, shot := range shots {
		result := r.renderShot(ctx, pool, shot)
		if result.Success {
			r.logger.Info().Str("shot_id", shot.ShotID).Str("image_url", result.ImageURL).Msg("render: shot completed")
		} else {
			r.logger.Warn().Str("shot_id", shot.ShotID).Str("error", result.Error).Msg("render: shot failed")
		}
		results = append(results, result)
	}
	return results
}

func (r *Runner) renderShot(ctx context.Context, pool domain.KeyPool, shot domain.Shot) domain.ShotResult {
	failed := func(err error) domain.ShotResult {
		return domain.ShotResult{ShotID: shot.ShotID, Success: false, Error: err.Error()}
	}

	images := make([]genai.ResolvedImage, 0, len(shot.Images))
	for _, input := range shot.Images {
		fetched, err := r.fetcher.Fetch(ctx, input)
		if err != nil {
			return failed(err)
		}
		images = append(images, genai.ResolvedImage{
			Data:     fetched.Data,
			MimeType: fetched.MimeType,
			Label:    input.Label,
		})
	}

	body, err := genai.BuildRequest(shot, images)
	if err != nil {
		return failed(err)
	}

	outcome, err := r.executor.Execute(ctx, pool, body)
	if err != nil {
		return failed(err)
	}

	key := objectKey(shot.ShotID, outcome.MimeType)
	imageURL, err := r.uploader.Upload(ctx, key, outcome.ImageBytes, outcome.MimeType)
	if err != nil {
		return failed(fmt.Errorf("store generated image: %w", err))
	}

	return domain.ShotResult{
		ShotID:   shot.ShotID,
		Success:  true,
		ImageURL: imageURL,
		ShootLog: outcome.ShootLog,
	}
}

// objectKey derives a collision-resistant storage key. Keys are always fresh,
// so storage writes are append-only and never race.
func objectKey(shotID, mimeType string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("generated/%s-%d-%s%s", sanitizeShotID(shotID), time.Now().UnixMilli(), suffix, extensionFor(mimeType))
}

func sanitizeShotID(shotID string) string {
	shotID = strings.TrimSpace(shotID)
	if shotID == "" {
		return "shot"
	}
	var b strings.Builder
	for _, r := range shotID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func extensionFor(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
