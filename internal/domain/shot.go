package domain

import (
	"encoding/json"
	"strings"
)

// ImageInput references one reference/base/mask image used to condition a shot.
type ImageInput struct {
	URL            string `json:"url"`
	Label          string `json:"label,omitempty"`
	AllowTransform bool   `json:"allowTransform,omitempty"`
}

// HistoryTurn is one prior conversation turn replayed before the new user turn.
type HistoryTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// GenerationParams tunes a single generation call. Zero values mean "unset";
// pointer fields are forwarded only when the caller supplied them.
type GenerationParams struct {
	AspectRatio        string          `json:"aspectRatio,omitempty"`
	ImageSize          string          `json:"imageSize,omitempty"`
	Seed               *int64          `json:"seed,omitempty"`
	Temperature        *float64        `json:"temperature,omitempty"`
	ResponseModalities []string        `json:"responseModalities,omitempty"`
	ThinkingConfig     json.RawMessage `json:"thinkingConfig,omitempty"`
	EditMode           string          `json:"editMode,omitempty"`
}

// Shot is one unit of work producing exactly one generated image. It is built
// once from job input and never mutated during processing.
type Shot struct {
	ShotID            string           `json:"shotId"`
	UserText          string           `json:"userText"`
	Images            []ImageInput     `json:"images,omitempty"`
	SystemInstruction string           `json:"systemInstruction,omitempty"`
	History           []HistoryTurn    `json:"history,omitempty"`
	EditMode          string           `json:"editMode,omitempty"`
	Params            GenerationParams `json:"params"`
}

// ResolvedEditMode applies the precedence rule: a mode carried in the
// generation params wins over the shot-level tag.
func (s Shot) ResolvedEditMode() string {
	if mode := strings.TrimSpace(s.Params.EditMode); mode != "" {
		return mode
	}
	return strings.TrimSpace(s.EditMode)
}

// NormalizeImageSize maps free-form size hints onto the canonical values the
// upstream API accepts. Unknown hints are dropped rather than forwarded.
func NormalizeImageSize(size string) string {
	switch strings.ToUpper(strings.TrimSpace(size)) {
	case "1K", "1024", "1024X1024":
		return "1K"
	case "2K", "2048", "2048X2048":
		return "2K"
	case "4K", "4096", "4096X4096":
		return "4K"
	default:
		return ""
	}
}

// GenerationOutcome is the ephemeral result of one successful generation call.
// It is converted to a stored URL immediately and never persisted as-is.
type GenerationOutcome struct {
	ImageBytes []byte
	MimeType   string
	ShootLog   string
}

// ShotResult is the per-shot unit returned to the task orchestration layer.
// Exactly one of ImageURL or Error is populated, matching Success.
type ShotResult struct {
	ShotID   string `json:"shotId"`
	Success  bool   `json:"success"`
	ImageURL string `json:"imageUrl,omitempty"`
	ShootLog string `json:"shootLog,omitempty"`
	Error    string `json:"error,omitempty"`
}
