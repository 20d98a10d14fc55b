package render

import (
	"context"
	"io"
	"net/http"
	neturl "net/url"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

const (
	defaultMaxReferenceBytes = 20 << 20
	defaultFetchTimeout      = 30 * time.Second

	// transformQuery is the resize/quality operator understood by the asset
	// CDN sitting in front of the first-party bucket. Appending it shrinks
	// reference payloads before download.
	transformQuery = "width=1600&quality=85"
)

// signatureParams mark presigned or otherwise signed URLs. A signed URL must
// never be mutated: changing the query invalidates the signature.
var signatureParams = []string{
	"X-Amz-Signature",
	"X-Amz-Credential",
	"X-Amz-Security-Token",
	"Signature",
	"signature",
	"sig",
	"token",
	"X-Goog-Signature",
}

// FetchedImage is one downloaded reference image.
type FetchedImage struct {
	Data     []byte
	MimeType string
}

// Fetcher downloads reference/base/mask images for a shot. Fetches are not
// cached: jobs are short-lived and reference sets small.
type Fetcher struct {
	httpClient *http.Client
	assetHost  string
	maxBytes   int64
	timeout    time.Duration
	logger     zerolog.Logger
}

// FetcherOptions configures a Fetcher. AssetHost is the first-party storage
// host suffix eligible for CDN-side transforms; leave empty to disable
// transforms entirely.
type FetcherOptions struct {
	HTTPClient *http.Client
	AssetHost  string
	MaxBytes   int64
	Timeout    time.Duration
	Logger     zerolog.Logger
}

func NewFetcher(opts FetcherOptions) *Fetcher {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxReferenceBytes
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Fetcher{
		httpClient: httpClient,
		assetHost:  strings.TrimSpace(opts.AssetHost),
		maxBytes:   maxBytes,
		timeout:    timeout,
		logger:     opts.Logger,
	}
}

// Fetch validates and downloads one reference image, optionally routed
// through the CDN transform when that is provably safe.
func (f *Fetcher) Fetch(ctx context.Context, input domain.ImageInput) (*FetchedImage, error) {
	u, err := neturl.Parse(strings.TrimSpace(input.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, domain.NewInvalidInputError("reference image url %q is not a valid http(s) url", input.URL)
	}

	target := u.String()
	if input.AllowTransform {
		target = f.transformURL(u)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, domain.NewInvalidInputError("reference image url %q is not requestable: %v", input.URL, err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewDownloadError(true, err, "download reference image %s", input.URL)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, domain.NewDownloadError(retryable, nil, "reference image %s returned status %d", input.URL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, domain.NewDownloadError(true, err, "read reference image %s", input.URL)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, domain.NewDownloadError(false, nil, "reference image %s exceeds the %d byte limit", input.URL, f.maxBytes)
	}

	return &FetchedImage{Data: data, MimeType: deriveMimeType(resp.Header.Get("Content-Type"), u.Path)}, nil
}

// transformURL appends the CDN resize operator when every safety condition
// holds: first-party host, no transform already present, no signature params.
// Any doubt leaves the URL byte-for-byte untouched.
func (f *Fetcher) transformURL(u *neturl.URL) string {
	original := u.String()
	if f.assetHost == "" {
		return original
	}
	host := u.Hostname()
	if host != f.assetHost && !strings.HasSuffix(host, "."+f.assetHost) {
		return original
	}
	q := u.Query()
	if q.Get("width") != "" || q.Get("quality") != "" {
		return original
	}
	for _, param := range signatureParams {
		if q.Get(param) != "" {
			return original
		}
	}
	transformed := *u
	if transformed.RawQuery == "" {
		transformed.RawQuery = transformQuery
	} else {
		transformed.RawQuery += "&" + transformQuery
	}
	f.logger.Debug().Str("url", original).Msg("render: applying cdn transform to reference image")
	return transformed.String()
}

// deriveMimeType trusts an image/* Content-Type header first and falls back
// to the URL's file extension, defaulting to JPEG.
func deriveMimeType(contentType, urlPath string) string {
	ct := strings.TrimSpace(strings.ToLower(contentType))
	if idx := strings.Index(ct, ";"); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	if strings.HasPrefix(ct, "image/") {
		return ct
	}
	switch strings.ToLower(path.Ext(urlPath)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".heic":
		return "image/heic"
	default:
		return "image/jpeg"
	}
}
