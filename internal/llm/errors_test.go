package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantKind      error
		wantRetryable bool
		wantStatus    int
	}{
		{
			name:          "deadline exceeded",
			err:           fmt.Errorf("call: %w", context.DeadlineExceeded),
			wantKind:      ErrModelTimeout,
			wantRetryable: true,
		},
		{
			name:     "canceled",
			err:      context.Canceled,
			wantKind: ErrModelUnavailable,
		},
		{
			name:          "network timeout",
			err:           timeoutErr{},
			wantKind:      ErrModelTimeout,
			wantRetryable: true,
		},
		{
			name:          "rate limited",
			err:           &googleapi.Error{Code: http.StatusTooManyRequests, Message: "quota"},
			wantKind:      ErrModelUnavailable,
			wantRetryable: true,
			wantStatus:    429,
		},
		{
			name:          "server error",
			err:           fmt.Errorf("generate: %w", &googleapi.Error{Code: http.StatusServiceUnavailable}),
			wantKind:      ErrModelUnavailable,
			wantRetryable: true,
			wantStatus:    503,
		},
		{
			name:          "gateway timeout",
			err:           &googleapi.Error{Code: http.StatusGatewayTimeout},
			wantKind:      ErrModelTimeout,
			wantRetryable: true,
			wantStatus:    504,
		},
		{
			name:       "bad request",
			err:        &googleapi.Error{Code: http.StatusBadRequest, Message: "invalid argument"},
			wantKind:   ErrModelUnavailable,
			wantStatus: 400,
		},
		{
			name:          "unknown error",
			err:           errors.New("connection reset by peer"),
			wantKind:      ErrModelUnavailable,
			wantRetryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify(tt.err)
			require.Error(t, err)

			var me *ModelError
			require.True(t, errors.As(err, &me))
			assert.ErrorIs(t, err, tt.wantKind)
			assert.ErrorIs(t, err, tt.err, "original error stays reachable")
			assert.Equal(t, tt.wantRetryable, me.Retryable)
			assert.Equal(t, tt.wantStatus, me.StatusCode)
		})
	}
}

func TestClassify_NilAndIdempotent(t *testing.T) {
	assert.NoError(t, Classify(nil))

	me := &ModelError{Kind: ErrModelTimeout, Err: errors.New("x")}
	assert.Same(t, me, Classify(me))
}

func TestClassify_RetryAfterHeader(t *testing.T) {
	err := Classify(&googleapi.Error{Code: 429, Header: http.Header{"Retry-After": []string{"7"}}})
	var me *ModelError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, 7*time.Second, me.RetryAfter)
}

func TestModelError_Message(t *testing.T) {
	me := &ModelError{Kind: ErrModelUnavailable, StatusCode: 503, Attempts: 3, Err: errors.New("overloaded")}
	assert.Equal(t, "model unavailable (status 503) after 3 attempts: overloaded", me.Error())
}
