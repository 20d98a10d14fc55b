package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies render failures for retry decisions and reporting.
type ErrorKind string

const (
	// KindConfig marks missing gateway/model/credential configuration. Fatal
	// at the job level; no shot runs when the pool cannot be assembled.
	KindConfig ErrorKind = "config"
	// KindInvalidInput marks malformed shot input (empty prompt, bad image
	// URL). Fatal for the shot.
	KindInvalidInput ErrorKind = "invalid_input"
	// KindDownload marks a reference-image fetch failure. Retryable only when
	// the cause was a transient network error, never for size-limit causes.
	KindDownload ErrorKind = "download"
	// KindContentBlocked marks a safety/policy block. Retrying with another
	// credential against the same policy cannot help.
	KindContentBlocked ErrorKind = "content_blocked"
	// KindNoImageData marks a response that completed without yielding an
	// image. Frequently transient model flakiness, so retryable.
	KindNoImageData ErrorKind = "no_image_data"
	// KindTransport marks timeouts, resets, 429 and 5xx responses.
	KindTransport ErrorKind = "transport"
	// KindSizeLimit marks an oversized response body. A larger response is
	// not expected to shrink on retry.
	KindSizeLimit ErrorKind = "size_limit"
)

// RenderError is the typed failure flowing through the generation pipeline.
type RenderError struct {
	Kind      ErrorKind
	Message   string
	Cause     error
	retryable bool
}

func (e *RenderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *RenderError) Unwrap() error { return e.Cause }

func newError(kind ErrorKind, retryable bool, cause error, format string, args ...any) *RenderError {
	return &RenderError{
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
		Cause:     cause,
		retryable: retryable,
	}
}

// NewConfigError reports missing job-level configuration.
func NewConfigError(format string, args ...any) *RenderError {
	return newError(KindConfig, false, nil, format, args...)
}

// NewInvalidInputError reports malformed shot input.
func NewInvalidInputError(format string, args ...any) *RenderError {
	return newError(KindInvalidInput, false, nil, format, args...)
}

// NewDownloadError reports a reference fetch failure. retryable should be true
// only for network-level causes.
func NewDownloadError(retryable bool, cause error, format string, args ...any) *RenderError {
	return newError(KindDownload, retryable, cause, format, args...)
}

// NewContentBlockedError reports a safety/policy block from the model.
func NewContentBlockedError(format string, args ...any) *RenderError {
	return newError(KindContentBlocked, false, nil, format, args...)
}

// NewNoImageDataError reports a response that yielded no image.
func NewNoImageDataError(format string, args ...any) *RenderError {
	return newError(KindNoImageData, true, nil, format, args...)
}

// NewTransportError reports a network-level or upstream-availability failure.
func NewTransportError(cause error, format string, args ...any) *RenderError {
	return newError(KindTransport, true, cause, format, args...)
}

// NewUpstreamStatusError reports a non-2xx upstream response. 429 and 5xx are
// retryable; generation has no caller-visible side effects, so re-issuing the
// same request against another credential is safe. Other 4xx statuses mark a
// structurally bad request and abort the pool walk.
func NewUpstreamStatusError(status int, detail string) *RenderError {
	retryable := status == 429 || status >= 500
	if detail == "" {
		return newError(KindTransport, retryable, nil, "upstream status %d", status)
	}
	return newError(KindTransport, retryable, nil, "upstream status %d: %s", status, detail)
}

// NewSizeLimitError reports an oversized response or download.
func NewSizeLimitError(format string, args ...any) *RenderError {
	return newError(KindSizeLimit, false, nil, format, args...)
}

// ErrorKindOf extracts the kind from an error chain, or "" when the chain
// carries no RenderError.
func ErrorKindOf(err error) ErrorKind {
	var re *RenderError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// retryableSignatures covers errors that reach the executor without a typed
// kind, e.g. raw transport failures surfaced by the HTTP client. Inherited
// from observed upstream behavior; kept deliberately narrow.
var retryableSignatures = []string{
	"no image data",
	"stream ended",
	"no data",
	"connection reset",
	"broken pipe",
	"timeout",
	"timed out",
	"deadline exceeded",
	"request canceled",
	"aborted",
	"status 429",
	"too many requests",
	"status 500",
	"status 502",
	"status 503",
	"status 504",
	"internal server error",
	"bad gateway",
	"service unavailable",
}

// Retryable reports whether rotating to the next pooled credential has a
// chance of succeeding. Typed errors decide by kind; untyped errors fall back
// to message-signature matching.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var re *RenderError
	if errors.As(err, &re) {
		switch re.Kind {
		case KindNoImageData:
			return true
		case KindTransport, KindDownload:
			return re.retryable
		default:
			return false
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range retryableSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
