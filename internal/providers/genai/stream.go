package genai

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"server/internal/domain"
)

// streamSentinel terminates some gateway-flavored SSE streams. It is not JSON
// and is discarded without error.
const streamSentinel = "[DONE]"

// frameHandler consumes one decoded frame payload. Returning done=true stops
// the reader immediately; remaining frames are never read and the caller is
// expected to abort the underlying connection.
type frameHandler func(payload []byte) (done bool, err error)

// readFrames splits the response body into frames according to the declared
// content type: SSE, NDJSON, or a single buffered JSON document. The body is
// read through a hard byte cap; exceeding it aborts with a size-limit error.
func readFrames(body io.Reader, contentType string, maxBytes int64, handle frameHandler) error {
	limited := &cappedReader{r: body, remaining: maxBytes}
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "text/event-stream"):
		return readEventStream(limited, handle)
	case strings.Contains(ct, "ndjson") || strings.Contains(ct, "jsonl"):
		return readLines(limited, handle)
	default:
		return readBuffered(limited, handle)
	}
}

func readBuffered(body io.Reader, handle frameHandler) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return readErr(err)
	}
	if payload := strings.TrimSpace(string(data)); framePayloadUsable(payload) {
		_, err = handle([]byte(payload))
		return err
	}
	return nil
}

func readLines(body io.Reader, handle frameHandler) error {
	reader := bufio.NewReader(body)
	for {
		line, err := reader.ReadString('\n')
		if payload := strings.TrimSpace(line); framePayloadUsable(payload) {
			done, herr := handle([]byte(payload))
			if herr != nil {
				return herr
			}
			if done {
				return nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return readErr(err)
		}
	}
}

// readEventStream implements the subset of SSE the generation gateways emit:
// consecutive data: lines accumulate into one frame; a blank line, a line of
// another field type, or EOF flushes the frame. event:/id:/retry: lines and
// comments are ignored.
func readEventStream(body io.Reader, handle frameHandler) error {
	reader := bufio.NewReader(body)
	var data strings.Builder

	flush := func() (bool, error) {
		payload := strings.TrimSpace(data.String())
		data.Reset()
		if !framePayloadUsable(payload) {
			return false, nil
		}
		return handle([]byte(payload))
	}

	for {
		line, err := reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		switch {
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, ":"),
			strings.HasPrefix(line, "event:"),
			strings.HasPrefix(line, "id:"),
			strings.HasPrefix(line, "retry:"):
			// field noise between data lines; does not end the frame
		default:
			// blank line or foreign line terminates the accumulated frame
			if data.Len() > 0 {
				done, herr := flush()
				if herr != nil {
					return herr
				}
				if done {
					return nil
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if _, herr := flush(); herr != nil {
					return herr
				}
				return nil
			}
			return readErr(err)
		}
	}
}

// framePayloadUsable filters sentinel terminators and payloads that cannot be
// JSON documents.
func framePayloadUsable(payload string) bool {
	if payload == "" || payload == streamSentinel {
		return false
	}
	return strings.HasPrefix(payload, "{") || strings.HasPrefix(payload, "[")
}

func readErr(err error) error {
	var re *domain.RenderError
	if errors.As(err, &re) {
		return err
	}
	return domain.NewTransportError(err, "read model response stream")
}

// cappedReader fails the read once more than `remaining` bytes have flowed
// through it, so a runaway stream cannot buffer unbounded data.
type cappedReader struct {
	r         io.Reader
	remaining int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if int64(len(p)) > c.remaining+1 {
		p = p[:c.remaining+1]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if c.remaining < 0 {
		return n, domain.NewSizeLimitError("model response exceeded the stream size limit")
	}
	return n, err
}
