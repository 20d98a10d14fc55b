package genai

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"server/internal/domain"
)

// imageOnlySuffix is appended to every prompt. Some model revisions answer
// with prose instead of pixels unless told not to.
const imageOnlySuffix = "\n\nOutput only the final photograph as an image. Do not respond with text."

// ResolvedImage carries the downloaded bytes of one reference image, ready to
// be inlined into the request.
type ResolvedImage struct {
	Data     []byte
	MimeType string
	Label    string
}

// BuildRequest translates one shot plus its resolved reference images into the
// provider-shaped request body. The body is identical across retry attempts.
func BuildRequest(shot domain.Shot, images []ResolvedImage) ([]byte, error) {
	prompt := strings.TrimSpace(shot.UserText)
	if prompt == "" {
		return nil, domain.NewInvalidInputError("shot %s has an empty prompt", shot.ShotID)
	}

	labelled := strings.TrimSpace(shot.SystemInstruction) != ""
	parts := []geminiPart{{Text: prompt + imageOnlySuffix}}
	for _, img := range images {
		if labelled && strings.TrimSpace(img.Label) != "" {
			parts = append(parts, geminiPart{Text: fmt.Sprintf("[%s]", img.Label)})
		}
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: img.MimeType,
			Data:     base64.StdEncoding.EncodeToString(img.Data),
		}})
	}

	req := geminiGenerateContentRequest{
		GenerationConfig: buildGenerationConfig(shot),
	}
	if labelled {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: strings.TrimSpace(shot.SystemInstruction)}}}
		for _, turn := range shot.History {
			role := "user"
			if strings.EqualFold(turn.Role, "model") {
				role = "model"
			}
			req.Contents = append(req.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: turn.Text}}})
		}
	}
	req.Contents = append(req.Contents, geminiContent{Role: "user", Parts: parts})

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal generation request: %w", err)
	}
	return body, nil
}

func buildGenerationConfig(shot domain.Shot) *geminiGenerationConfig {
	params := shot.Params

	modalities := params.ResponseModalities
	if len(modalities) == 0 {
		modalities = []string{"IMAGE"}
	}
	cfg := &geminiGenerationConfig{
		ResponseModalities: modalities,
		CandidateCount:     1,
		ThinkingConfig:     params.ThinkingConfig,
		EditMode:           shot.ResolvedEditMode(),
	}

	if params.Seed != nil {
		cfg.Seed = params.Seed
	}
	if params.Temperature != nil && !math.IsNaN(*params.Temperature) && !math.IsInf(*params.Temperature, 0) {
		cfg.Temperature = params.Temperature
	}

	aspect := strings.TrimSpace(params.AspectRatio)
	size := domain.NormalizeImageSize(params.ImageSize)
	if aspect != "" || size != "" {
		cfg.ImageConfig = &geminiImageConfig{AspectRatio: aspect, ImageSize: size}
	}
	return cfg
}
