package render

import (
	"context"
	"net/http"
	"net/http/httptest"
	neturl "net/url"
	"strings"
	"testing"

	"server/internal/domain"
)

func TestTransformURLSafety(t *testing.T) {
	f := NewFetcher(FetcherOptions{AssetHost: "assets.example.com"})
	cases := []struct {
		name string
		url  string
		want string
	}{
		{
			"bare first-party url",
			"https://assets.example.com/u/base.jpg",
			"https://assets.example.com/u/base.jpg?width=1600&quality=85",
		},
		{
			"first-party subdomain",
			"https://cdn.assets.example.com/u/base.jpg",
			"https://cdn.assets.example.com/u/base.jpg?width=1600&quality=85",
		},
		{
			"existing query preserved",
			"https://assets.example.com/u/base.jpg?v=3",
			"https://assets.example.com/u/base.jpg?v=3&width=1600&quality=85",
		},
		{
			"external host untouched",
			"https://images.vendor.net/base.jpg",
			"https://images.vendor.net/base.jpg",
		},
		{
			"lookalike host untouched",
			"https://notassets.example.com.evil.io/base.jpg",
			"https://notassets.example.com.evil.io/base.jpg",
		},
		{
			"width already set",
			"https://assets.example.com/u/base.jpg?width=800",
			"https://assets.example.com/u/base.jpg?width=800",
		},
		{
			"quality already set",
			"https://assets.example.com/u/base.jpg?quality=70",
			"https://assets.example.com/u/base.jpg?quality=70",
		},
		{
			"presigned aws url untouched",
			"https://assets.example.com/u/base.jpg?X-Amz-Credential=abc&X-Amz-Signature=deadbeef",
			"https://assets.example.com/u/base.jpg?X-Amz-Credential=abc&X-Amz-Signature=deadbeef",
		},
		{
			"token-signed url untouched",
			"https://assets.example.com/u/base.jpg?token=abc123",
			"https://assets.example.com/u/base.jpg?token=abc123",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u, err := neturl.Parse(tc.url)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got := f.transformURL(u); got != tc.want {
				t.Fatalf("transformURL(%q) = %q, want %q", tc.url, got, tc.want)
			}
		})
	}
}

func TestTransformDisabledWithoutAssetHost(t *testing.T) {
	f := NewFetcher(FetcherOptions{})
	u, _ := neturl.Parse("https://assets.example.com/u/base.jpg")
	if got := f.transformURL(u); got != "https://assets.example.com/u/base.jpg" {
		t.Fatalf("transformURL = %q, want original", got)
	}
}

func TestFetchRejectsInvalidURL(t *testing.T) {
	f := NewFetcher(FetcherOptions{})
	for _, url := range []string{"", "ftp://host/file.jpg", "not a url", "/relative/path.jpg"} {
		_, err := f.Fetch(context.Background(), domain.ImageInput{URL: url})
		if domain.ErrorKindOf(err) != domain.KindInvalidInput {
			t.Fatalf("Fetch(%q) err = %v, want invalid_input", url, err)
		}
	}
}

func TestFetchDownloadsAndDerivesMime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/webp")
		w.Write([]byte("webp-bytes"))
	}))
	defer srv.Close()

	f := NewFetcher(FetcherOptions{})
	img, err := f.Fetch(context.Background(), domain.ImageInput{URL: srv.URL + "/ref.bin"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(img.Data) != "webp-bytes" {
		t.Fatalf("data = %q", img.Data)
	}
	if img.MimeType != "image/webp" {
		t.Fatalf("mime = %q", img.MimeType)
	}
}

func TestFetchSizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	f := NewFetcher(FetcherOptions{MaxBytes: 1024})
	_, err := f.Fetch(context.Background(), domain.ImageInput{URL: srv.URL + "/huge.png"})
	if domain.ErrorKindOf(err) != domain.KindDownload {
		t.Fatalf("err = %v, want download", err)
	}
	if domain.Retryable(err) {
		t.Fatal("oversize download must not be retryable")
	}
}

func TestFetchStatusRetryability(t *testing.T) {
	cases := []struct {
		status    int
		retryable bool
	}{
		{429, true},
		{503, true},
		{404, false},
		{403, false},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		f := NewFetcher(FetcherOptions{})
		_, err := f.Fetch(context.Background(), domain.ImageInput{URL: srv.URL + "/ref.jpg"})
		srv.Close()
		if domain.ErrorKindOf(err) != domain.KindDownload {
			t.Fatalf("status %d: err = %v, want download", tc.status, err)
		}
		if got := domain.Retryable(err); got != tc.retryable {
			t.Fatalf("status %d: Retryable = %v, want %v", tc.status, got, tc.retryable)
		}
	}
}

func TestDeriveMimeType(t *testing.T) {
	cases := []struct {
		contentType string
		urlPath     string
		want        string
	}{
		{"image/png", "/x.jpg", "image/png"},
		{"image/jpeg; charset=binary", "/x.png", "image/jpeg"},
		{"application/octet-stream", "/photo.PNG", "image/png"},
		{"", "/photo.webp", "image/webp"},
		{"", "/photo.heic", "image/heic"},
		{"text/html", "/photo", "image/jpeg"},
	}
	for _, tc := range cases {
		if got := deriveMimeType(tc.contentType, tc.urlPath); got != tc.want {
			t.Fatalf("deriveMimeType(%q, %q) = %q, want %q", tc.contentType, tc.urlPath, got, tc.want)
		}
	}
}

func TestFetchTransformAppliedOnWire(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpg"))
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	f := NewFetcher(FetcherOptions{AssetHost: strings.Split(host, ":")[0]})
	if _, err := f.Fetch(context.Background(), domain.ImageInput{URL: srv.URL + "/base.jpg", AllowTransform: true}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotQuery != "width=1600&quality=85" {
		t.Fatalf("query on the wire = %q", gotQuery)
	}
}
