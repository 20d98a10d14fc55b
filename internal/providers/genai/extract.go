package genai

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"server/internal/domain"
)

// blockedFinishReasons are candidate finish reasons that indicate a policy
// block rather than a transient empty result.
var blockedFinishReasons = map[string]bool{
	"SAFETY":             true,
	"IMAGE_SAFETY":       true,
	"PROHIBITED_CONTENT": true,
	"BLOCKLIST":          true,
	"SPII":               true,
}

// extraction walks response frames in arrival order, accumulating streamed
// text (the shoot log) until the first frame that yields an image.
type extraction struct {
	maxLogBytes int

	sawFrame     bool
	finishReason string
	log          strings.Builder

	imageData []byte
	imageMime string
	fileURI   string
	fileMime  string
}

// consume inspects one frame. done is true once an image (inline bytes or a
// remote file reference) has been located; the stream must not be read past
// that point.
func (e *extraction) consume(payload []byte) (bool, error) {
	var frame geminiFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		// not a content frame; skip without failing the stream
		return false, nil
	}
	e.sawFrame = true

	if frame.PromptFeedback != nil && frame.PromptFeedback.BlockReason != "" {
		return false, domain.NewContentBlockedError("prompt blocked by safety policy: %s", frame.PromptFeedback.BlockReason)
	}
	if len(frame.Candidates) == 0 {
		return false, nil
	}

	candidate := frame.Candidates[0]
	if candidate.FinishReason != "" {
		if blockedFinishReasons[strings.ToUpper(candidate.FinishReason)] {
			return false, domain.NewContentBlockedError("generation blocked by safety policy: %s", candidate.FinishReason)
		}
		e.finishReason = candidate.FinishReason
	}

	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			e.appendLog(part.Text)
		}
		if part.InlineData != nil && part.InlineData.Data != "" {
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return false, domain.NewNoImageDataError("model returned undecodable inline image data: %v", err)
			}
			e.imageData = data
			e.imageMime = firstNonEmpty(part.InlineData.MimeType, "image/png")
			return true, nil
		}
		if part.FileData != nil && part.FileData.FileURI != "" && strings.HasPrefix(part.FileData.MimeType, "image/") {
			e.fileURI = part.FileData.FileURI
			e.fileMime = part.FileData.MimeType
			return true, nil
		}
	}
	return false, nil
}

// appendLog grows the shoot log up to the configured cap; overflow text is
// dropped silently instead of growing without bound.
func (e *extraction) appendLog(text string) {
	room := e.maxLogBytes - e.log.Len()
	if room <= 0 {
		return
	}
	if len(text) > room {
		text = text[:room]
	}
	e.log.WriteString(text)
}

// finishErr reports why the stream ended without an image, distinguishing an
// entirely empty response from one that carried data but no image part.
func (e *extraction) finishErr() error {
	if !e.sawFrame {
		return domain.NewNoImageDataError("model stream ended with no data")
	}
	detail := ""
	if e.finishReason != "" {
		detail = fmt.Sprintf(" (finishReason=%s)", e.finishReason)
	}
	if log := strings.TrimSpace(e.log.String()); log != "" {
		return domain.NewNoImageDataError("no image data found in model response%s; model said: %s", detail, log)
	}
	return domain.NewNoImageDataError("no image data found in model response%s", detail)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
