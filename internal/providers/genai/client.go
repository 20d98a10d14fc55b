package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

const (
	defaultMaxStreamBytes = 32 << 20 // generated images arrive base64-inflated
	defaultMaxLogBytes    = 8 << 10
)

// Options controls how the generation client is configured.
type Options struct {
	HTTPClient     *http.Client
	MaxStreamBytes int64
	MaxLogBytes    int
	Logger         zerolog.Logger
}

// Client issues generateContent calls against a resolved endpoint and turns
// the response stream back into image bytes. It holds no credential state;
// the endpoint carries the key, so one client serves the whole pool.
type Client struct {
	httpClient     *http.Client
	maxStreamBytes int64
	maxLogBytes    int
	logger         zerolog.Logger
}

// NewClient constructs a generation client with sane defaults. The injected
// HTTP client should not set its own Timeout: per-attempt cancellation is
// driven by the caller's context so a mid-stream abort stays possible.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	maxStream := opts.MaxStreamBytes
	if maxStream <= 0 {
		maxStream = defaultMaxStreamBytes
	}
	maxLog := opts.MaxLogBytes
	if maxLog <= 0 {
		maxLog = defaultMaxLogBytes
	}
	return &Client{
		httpClient:     httpClient,
		maxStreamBytes: maxStream,
		maxLogBytes:    maxLog,
		logger:         opts.Logger,
	}
}

// Generate performs one network attempt: POST the assembled body, split the
// response into frames regardless of framing style, and return the first
// image the stream yields. The connection is aborted as soon as an image is
// found; trailing frames carry nothing useful.
func (c *Client) Generate(ctx context.Context, endpoint string, body []byte) (*domain.GenerationOutcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewConfigError("build generation request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewTransportError(err, "invoke generation endpoint")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, domain.NewUpstreamStatusError(resp.StatusCode, readErrorDetail(resp.Body))
	}

	ex := &extraction{maxLogBytes: c.maxLogBytes}
	if err := readFrames(resp.Body, resp.Header.Get("Content-Type"), c.maxStreamBytes, ex.consume); err != nil {
		return nil, err
	}

	switch {
	case ex.imageData != nil:
		return &domain.GenerationOutcome{
			ImageBytes: ex.imageData,
			MimeType:   ex.imageMime,
			ShootLog:   strings.TrimSpace(ex.log.String()),
		}, nil
	case ex.fileURI != "":
		c.logger.Debug().Str("file_uri", ex.fileURI).Msg("genai: downloading referenced output file")
		data, mime, err := c.downloadFile(ctx, ex.fileURI)
		if err != nil {
			return nil, err
		}
		return &domain.GenerationOutcome{
			ImageBytes: data,
			MimeType:   firstNonEmpty(ex.fileMime, mime, "image/png"),
			ShootLog:   strings.TrimSpace(ex.log.String()),
		}, nil
	default:
		return nil, ex.finishErr()
	}
}

// downloadFile fetches model output referenced by URI instead of inlined. The
// URI is model output, not an untrusted external asset, so no transform is
// ever applied to it.
func (c *Client) downloadFile(ctx context.Context, uri string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, "", domain.NewNoImageDataError("model returned unusable file uri %q: %v", uri, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", domain.NewTransportError(err, "download generated file")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", domain.NewUpstreamStatusError(resp.StatusCode, "downloading generated file")
	}
	data, err := io.ReadAll(&cappedReader{r: resp.Body, remaining: c.maxStreamBytes})
	if err != nil {
		var re *domain.RenderError
		if errors.As(err, &re) {
			return nil, "", err
		}
		return nil, "", domain.NewTransportError(err, "read generated file")
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// readErrorDetail pulls a short human-readable cause out of a non-2xx body.
func readErrorDetail(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4<<10))
	if err != nil || len(data) == 0 {
		return ""
	}
	var apiErr geminiErrorResponse
	if jsonErr := json.Unmarshal(data, &apiErr); jsonErr == nil && apiErr.Error.Message != "" {
		return apiErr.Error.Message
	}
	return strings.TrimSpace(string(data))
}
