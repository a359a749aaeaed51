package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"google.golang.org/api/googleapi"
)

var (
	// ErrModelUnavailable means the provider could not produce a completion.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrModelTimeout means the provider did not answer in time.
	ErrModelTimeout = errors.New("model timeout")
)

// ModelError is a failed model call. Kind is ErrModelUnavailable or
// ErrModelTimeout and both Kind and Err match errors.Is.
type ModelError struct {
	Kind       error
	Retryable  bool
	StatusCode int           // provider HTTP status, 0 when unknown
	RetryAfter time.Duration // provider hint, 0 when absent
	Attempts   int           // set once retries are exhausted
	Err        error
}

func (e *ModelError) Error() string {
	msg := e.Kind.Error()
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ModelError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Classify converts a provider error into a *ModelError, deciding whether it is
// worth retrying. Timeouts, 408, 429 and 5xx responses are retryable; other
// client errors and cancellation are not.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var me *ModelError
	if errors.As(err, &me) {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return &ModelError{Kind: ErrModelUnavailable, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &ModelError{Kind: ErrModelTimeout, Retryable: true, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ModelError{Kind: ErrModelTimeout, Retryable: true, Err: err}
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		var header http.Header
		if apiErr.Response != nil {
			header = apiErr.Response.Header
		}
		return fromStatus(apiErr.StatusCode, header, err)
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return fromStatus(gErr.Code, gErr.Header, err)
	}

	return &ModelError{Kind: ErrModelUnavailable, Retryable: true, Err: err}
}

func fromStatus(status int, header http.Header, err error) *ModelError {
	me := &ModelError{Kind: ErrModelUnavailable, StatusCode: status, Err: err}
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		me.Kind = ErrModelTimeout
		me.Retryable = true
	case status == http.StatusTooManyRequests, status >= http.StatusInternalServerError:
		me.Retryable = true
	}
	if header != nil {
		me.RetryAfter = parseRetryAfter(header.Get("Retry-After"))
	}
	return me
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
