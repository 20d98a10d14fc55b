package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"server/internal/domain"
)

// renderRequest accepts both the current job shape ({taskId, config, shots})
// and the legacy single-shot shape ({prompt|prompts, referenceImageUrls,
// shotId, config}). Legacy payloads are normalized into the shots form.
type renderRequest struct {
	TaskID string        `json:"taskId"`
	Config renderConfig  `json:"config"`
	Shots  []shotPayload `json:"shots"`

	// legacy single-shot fields
	Prompt             string   `json:"prompt"`
	Prompts            []string `json:"prompts"`
	ReferenceImageURLs []string `json:"referenceImageUrls"`
	ShotID             string   `json:"shotId"`
}

type renderConfig struct {
	PainterModel string   `json:"painterModel"`
	Gateway      string   `json:"gateway"`
	APIKeys      []string `json:"apiKeys"`
}

type shotPayload struct {
	ShotID             string                  `json:"shotId"`
	UserText           string                  `json:"userText"`
	Prompt             string                  `json:"prompt"`
	Images             []domain.ImageInput     `json:"images"`
	ReferenceImageURLs []string                `json:"referenceImageUrls"`
	SystemInstruction  string                  `json:"systemInstruction"`
	History            []domain.HistoryTurn    `json:"history"`
	EditMode           string                  `json:"editMode"`
	Params             domain.GenerationParams `json:"params"`
}

type renderResponse struct {
	Success bool                `json:"success"`
	TaskID  string              `json:"taskId,omitempty"`
	Results []domain.ShotResult `json:"results"`
	Count   int                 `json:"count"`
}

// Render is the batch invocation endpoint: one call per rendering step of the
// task orchestration layer. Overall success is reported even when individual
// shots failed; failures are per-element in results.
func (a *App) Render(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	shots, err := normalizeShots(req)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	pool, err := a.keyPool(r, req.Config)
	if err != nil {
		var re *domain.RenderError
		if errors.As(err, &re) && re.Kind == domain.KindConfig {
			a.Logger.Error().Err(err).Msg("render: job rejected, no usable credentials")
			a.error(w, http.StatusInternalServerError, "config", err.Error())
			return
		}
		a.Logger.Error().Err(err).Msg("render: credential lookup failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load credentials")
		return
	}

	results := a.Runner.Run(r.Context(), pool, shots)
	a.json(w, http.StatusOK, renderResponse{
		Success: true,
		TaskID:  strings.TrimSpace(req.TaskID),
		Results: results,
		Count:   len(results),
	})
}

// keyPool assembles the job's credential pool: request-supplied keys win,
// then the database pool, then environment keys.
func (a *App) keyPool(r *http.Request, cfg renderConfig) (domain.KeyPool, error) {
	gateway := strings.TrimSpace(cfg.Gateway)
	if gateway == "" {
		gateway = a.Config.GeminiGateway
	}
	model := strings.TrimSpace(cfg.PainterModel)
	if model == "" {
		model = a.Config.GeminiModel
	}

	keys := cfg.APIKeys
	if len(keys) == 0 && a.Keys != nil {
		stored, err := a.Keys.GeminiKeys(r.Context())
		if err != nil {
			return nil, err
		}
		keys = stored
	}
	if len(keys) == 0 {
		keys = a.Config.GeminiAPIKeys
	}

	pool := domain.NewKeyPool(gateway, model, keys)
	if len(pool) == 0 {
		return nil, domain.NewConfigError("no generation api keys configured")
	}
	return pool, nil
}

// normalizeShots converts any accepted request shape into a non-empty shot
// list. Multiple legacy prompts become synthetic shots with suffixed ids.
func normalizeShots(req renderRequest) ([]domain.Shot, error) {
	if len(req.Shots) > 0 {
		shots := make([]domain.Shot, 0, len(req.Shots))
		for i, payload := range req.Shots {
			shot, err := shotFromPayload(payload, fmt.Sprintf("shot_%d", i+1))
			if err != nil {
				return nil, err
			}
			shots = append(shots, shot)
		}
		return shots, nil
	}

	baseID := strings.TrimSpace(req.ShotID)
	if baseID == "" {
		baseID = "shot"
	}
	refs := referenceInputs(req.ReferenceImageURLs)

	if len(req.Prompts) > 0 {
		shots := make([]domain.Shot, 0, len(req.Prompts))
		for i, prompt := range req.Prompts {
			shots = append(shots, domain.Shot{
				ShotID:   fmt.Sprintf("%s_%d", baseID, i+1),
				UserText: prompt,
				Images:   refs,
			})
		}
		return shots, nil
	}

	if strings.TrimSpace(req.Prompt) != "" {
		return []domain.Shot{{ShotID: baseID, UserText: req.Prompt, Images: refs}}, nil
	}

	return nil, errors.New("request contains no shots")
}

func shotFromPayload(payload shotPayload, fallbackID string) (domain.Shot, error) {
	shotID := strings.TrimSpace(payload.ShotID)
	if shotID == "" {
		shotID = fallbackID
	}
	userText := payload.UserText
	if strings.TrimSpace(userText) == "" {
		userText = payload.Prompt
	}
	images := payload.Images
	if len(images) == 0 {
		images = referenceInputs(payload.ReferenceImageURLs)
	}
	return domain.Shot{
		ShotID:            shotID,
		UserText:          userText,
		Images:            images,
		SystemInstruction: payload.SystemInstruction,
		History:           payload.History,
		EditMode:          payload.EditMode,
		Params:            payload.Params,
	}, nil
}

func referenceInputs(urls []string) []domain.ImageInput {
	inputs := make([]domain.ImageInput, 0, len(urls))
	for i, url := range urls {
		if url = strings.TrimSpace(url); url == "" {
			continue
		}
		inputs = append(inputs, domain.ImageInput{
			URL:            url,
			Label:          fmt.Sprintf("REF_%d", i+1),
			AllowTransform: true,
		})
	}
	return inputs
}
