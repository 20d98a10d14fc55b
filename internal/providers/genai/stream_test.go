package genai

import (
	"errors"
	"io"
	"strings"
	"testing"

	"server/internal/domain"
)

const frameWithImage = `{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"image/png","data":"aW1n"}}]}}]}`
const frameWithText = `{"candidates":[{"content":{"parts":[{"text":"adjusting lighting"}]}}]}`

// collectFrames drives readFrames with a counting handler.
func collectFrames(t *testing.T, body, contentType string, stopAt int) (frames []string, err error) {
	t.Helper()
	err = readFrames(strings.NewReader(body), contentType, 1<<20, func(payload []byte) (bool, error) {
		frames = append(frames, string(payload))
		return stopAt > 0 && len(frames) >= stopAt, nil
	})
	return frames, err
}

func TestReadFramesBufferedJSON(t *testing.T) {
	frames, err := collectFrames(t, frameWithImage, "application/json", 0)
	if err != nil {
		t.Fatalf("readFrames error: %v", err)
	}
	if len(frames) != 1 || frames[0] != frameWithImage {
		t.Fatalf("unexpected frames: %#v", frames)
	}
}

func TestReadFramesSSE(t *testing.T) {
	body := "event: message\n" +
		"data: " + frameWithText + "\n" +
		"\n" +
		": keepalive comment\n" +
		"id: 2\n" +
		"data: " + frameWithImage + "\n" +
		"\n" +
		"data: [DONE]\n\n"
	frames, err := collectFrames(t, body, "text/event-stream; charset=utf-8", 0)
	if err != nil {
		t.Fatalf("readFrames error: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d: %#v", len(frames), frames)
	}
	if frames[0] != frameWithText || frames[1] != frameWithImage {
		t.Fatalf("unexpected frames: %#v", frames)
	}
}

// chunkReader yields the body a few bytes at a time, simulating arbitrary
// network chunk boundaries.
type chunkReader struct {
	data []byte
	size int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.data) == 0 {
		return 0, io.EOF
	}
	n := c.size
	if n > len(c.data) {
		n = len(c.data)
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, c.data[:n])
	c.data = c.data[n:]
	return n, nil
}

func TestReadFramesSSEArbitraryChunking(t *testing.T) {
	body := "data: " + frameWithImage + "\n\n"
	var frames []string
	err := readFrames(&chunkReader{data: []byte(body), size: 3}, "text/event-stream", 1<<20, func(payload []byte) (bool, error) {
		frames = append(frames, string(payload))
		return false, nil
	})
	if err != nil {
		t.Fatalf("readFrames error: %v", err)
	}
	if len(frames) != 1 || frames[0] != frameWithImage {
		t.Fatalf("unexpected frames: %#v", frames)
	}
}

func TestReadFramesSSEWithoutTrailingBlankLine(t *testing.T) {
	body := "data: " + frameWithImage
	frames, err := collectFrames(t, body, "text/event-stream", 0)
	if err != nil {
		t.Fatalf("readFrames error: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected the final frame to flush at EOF, got %#v", frames)
	}
}

func TestReadFramesNDJSON(t *testing.T) {
	body := frameWithText + "\n" + frameWithImage + "\n" + "not-json\n"
	frames, err := collectFrames(t, body, "application/x-ndjson", 0)
	if err != nil {
		t.Fatalf("readFrames error: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected non-JSON lines to be dropped, got %#v", frames)
	}
}

func TestReadFramesEarlyTermination(t *testing.T) {
	var lines []string
	for i := 0; i < 5; i++ {
		frame := frameWithText
		if i == 1 {
			frame = frameWithImage
		}
		lines = append(lines, frame)
	}
	body := strings.Join(lines, "\n")

	frames, err := collectFrames(t, body, "application/x-ndjson", 2)
	if err != nil {
		t.Fatalf("readFrames error: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("reader consumed %d frames, want exactly 2", len(frames))
	}
}

func TestReadFramesSizeLimit(t *testing.T) {
	huge := `{"candidates":[{"content":{"parts":[{"text":"` + strings.Repeat("x", 4096) + `"}]}}]}`
	err := readFrames(strings.NewReader(huge), "application/json", 128, func([]byte) (bool, error) {
		t.Fatal("handler must not run after the size cap trips")
		return false, nil
	})
	if domain.ErrorKindOf(err) != domain.KindSizeLimit {
		t.Fatalf("expected size limit error, got %v", err)
	}
}

func TestReadFramesHandlerErrorStopsReading(t *testing.T) {
	blocked := domain.NewContentBlockedError("safety")
	calls := 0
	err := readFrames(strings.NewReader(frameWithText+"\n"+frameWithImage), "application/x-ndjson", 1<<20, func([]byte) (bool, error) {
		calls++
		return false, blocked
	})
	if !errors.Is(err, blocked) {
		t.Fatalf("expected handler error to propagate, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected reading to stop after the handler error, got %d calls", calls)
	}
}
