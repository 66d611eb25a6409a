package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("lookup: %w", NotFound("job"))

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrNotReady)
	assert.True(t, HasCode(err, CodeNotFound))
}

func TestWriteError_AppError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, "req-1", BackendUnavailable("durable queue"))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, CodeBackendUnavailable, resp.Error.Code)
	assert.Equal(t, "durable queue is unavailable", resp.Error.Message)
}

func TestWriteError_UnknownErrorBecomesInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, "", fmt.Errorf("boom"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, CodeInternalError, resp.Error.Code)
}

func TestStatusCodes(t *testing.T) {
	tests := []struct {
		err    *AppError
		status int
	}{
		{InvalidInput("bad"), http.StatusBadRequest},
		{NotFound("job"), http.StatusNotFound},
		{NotReady("later"), http.StatusBadRequest},
		{ResolutionError("gone"), http.StatusInternalServerError},
		{NoStreamFound(), http.StatusInternalServerError},
		{UploadError("s3"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
		})
	}
}

func TestDetach_KeepsRequestIDDropsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(WithRequestID(context.Background(), "abc"))
	detached := Detach(ctx)
	cancel()

	assert.Equal(t, "abc", GetRequestID(detached))
	assert.NoError(t, detached.Err())
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "given")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "given", seen)
	assert.Equal(t, "given", rec.Header().Get(RequestIDHeader))
}

func TestRetryWithResult_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	_, err := RetryWithResult(context.Background(), UploadRetryConfig(), func(ctx context.Context) (string, error) {
		calls++
		return "", InvalidInput("nope")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryWithResult_RetriesTransient(t *testing.T) {
	cfg := &RetryConfig{MaxRetries: 2, InitialBackoff: 0, MaxBackoff: 0, BackoffFactor: 1}
	calls := 0
	got, err := RetryWithResult(context.Background(), cfg, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", fmt.Errorf("connection reset by peer")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}
