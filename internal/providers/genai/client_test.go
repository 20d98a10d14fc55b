package genai

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"server/internal/domain"
)

var testImageBytes = []byte("fake-png-bytes")

func imageFrame(t *testing.T) string {
	t.Helper()
	return `{"candidates":[{"content":{"parts":[` +
		`{"text":"setting up the studio"},` +
		`{"inlineData":{"mimeType":"image/png","data":"` + base64.StdEncoding.EncodeToString(testImageBytes) + `"}}` +
		`]}}]}`
}

func serveBody(t *testing.T, contentType, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("request Content-Type = %q", ct)
		}
		w.Header().Set("Content-Type", contentType)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerateSameImageAcrossFramings(t *testing.T) {
	frame := imageFrame(t)
	cases := []struct {
		name        string
		contentType string
		body        string
	}{
		{"buffered", "application/json", frame},
		{"sse", "text/event-stream", "data: " + frame + "\n\ndata: [DONE]\n\n"},
		{"ndjson", "application/x-ndjson", frame + "\n"},
	}
	client := NewClient(Options{})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := serveBody(t, tc.contentType, tc.body)
			out, err := client.Generate(context.Background(), srv.URL, []byte(`{}`))
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			if string(out.ImageBytes) != string(testImageBytes) {
				t.Fatalf("image bytes = %q, want %q", out.ImageBytes, testImageBytes)
			}
			if out.MimeType != "image/png" {
				t.Fatalf("mime = %q", out.MimeType)
			}
			if out.ShootLog != "setting up the studio" {
				t.Fatalf("shoot log = %q", out.ShootLog)
			}
		})
	}
}

func TestGenerateFileDataFollowup(t *testing.T) {
	fileSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/webp")
		w.Write(testImageBytes)
	}))
	defer fileSrv.Close()

	frame := `{"candidates":[{"content":{"parts":[{"fileData":{"mimeType":"image/webp","fileUri":"` + fileSrv.URL + `"}}]}}]}`
	srv := serveBody(t, "application/json", frame)

	out, err := NewClient(Options{}).Generate(context.Background(), srv.URL, []byte(`{}`))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(out.ImageBytes) != string(testImageBytes) {
		t.Fatalf("image bytes = %q", out.ImageBytes)
	}
	if out.MimeType != "image/webp" {
		t.Fatalf("mime = %q", out.MimeType)
	}
}

func TestGenerateUpstreamStatus(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		body      string
		retryable bool
		wantIn    string
	}{
		{"rate limited", 429, `{"error":{"code":429,"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`, true, "quota exceeded"},
		{"server error", 503, "upstream overloaded", true, "upstream overloaded"},
		{"bad request", 400, `{"error":{"code":400,"message":"invalid model","status":"INVALID_ARGUMENT"}}`, false, "invalid model"},
	}
	client := NewClient(Options{})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := client.Generate(context.Background(), srv.URL, []byte(`{}`))
			if err == nil {
				t.Fatal("expected error")
			}
			if kind := domain.ErrorKindOf(err); kind != domain.KindTransport {
				t.Fatalf("kind = %q, want transport", kind)
			}
			if got := domain.Retryable(err); got != tc.retryable {
				t.Fatalf("Retryable = %v, want %v", got, tc.retryable)
			}
			if !strings.Contains(err.Error(), tc.wantIn) {
				t.Fatalf("error %q does not mention %q", err.Error(), tc.wantIn)
			}
		})
	}
}

func TestGenerateContentBlocked(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"prompt feedback", `{"promptFeedback":{"blockReason":"SAFETY"}}`},
		{"finish reason", `{"candidates":[{"finishReason":"IMAGE_SAFETY","content":{"parts":[]}}]}`},
	}
	client := NewClient(Options{})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := serveBody(t, "application/json", tc.body)
			_, err := client.Generate(context.Background(), srv.URL, []byte(`{}`))
			if domain.ErrorKindOf(err) != domain.KindContentBlocked {
				t.Fatalf("err = %v, want content_blocked", err)
			}
			if domain.Retryable(err) {
				t.Fatal("content block must not be retryable")
			}
		})
	}
}

func TestGenerateNoImageDiagnostics(t *testing.T) {
	client := NewClient(Options{})

	t.Run("empty stream", func(t *testing.T) {
		srv := serveBody(t, "text/event-stream", "data: [DONE]\n\n")
		_, err := client.Generate(context.Background(), srv.URL, []byte(`{}`))
		if domain.ErrorKindOf(err) != domain.KindNoImageData {
			t.Fatalf("err = %v, want no_image_data", err)
		}
		if !strings.Contains(err.Error(), "ended with no data") {
			t.Fatalf("error %q should report an empty stream", err.Error())
		}
	})

	t.Run("text only", func(t *testing.T) {
		body := `{"candidates":[{"finishReason":"STOP","content":{"parts":[{"text":"I cannot render that scene."}]}}]}`
		srv := serveBody(t, "application/json", body)
		_, err := client.Generate(context.Background(), srv.URL, []byte(`{}`))
		if domain.ErrorKindOf(err) != domain.KindNoImageData {
			t.Fatalf("err = %v, want no_image_data", err)
		}
		if !strings.Contains(err.Error(), "finishReason=STOP") || !strings.Contains(err.Error(), "I cannot render that scene.") {
			t.Fatalf("error %q should carry finish reason and model text", err.Error())
		}
	})
}

func TestGenerateStopsAfterFirstImage(t *testing.T) {
	// a frame with an invalid trailer after the image would fail extraction
	// if it were read; the client must stop at the image frame
	body := "data: " + imageFrame(t) + "\n\n" +
		"data: " + `{"promptFeedback":{"blockReason":"SAFETY"}}` + "\n\n"
	srv := serveBody(t, "text/event-stream", body)

	out, err := NewClient(Options{}).Generate(context.Background(), srv.URL, []byte(`{}`))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(out.ImageBytes) != string(testImageBytes) {
		t.Fatalf("image bytes = %q", out.ImageBytes)
	}
}
