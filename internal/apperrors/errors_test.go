package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusAndCode(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", NewValidationError("evaluate", "question is required"), http.StatusBadRequest, "validation_error"},
		{"not found", NewNotFoundError("load", "application not found"), http.StatusNotFound, "not_found"},
		{"missing credential", NewMissingCredentialError("resolve", "no key"), http.StatusBadRequest, "credential_error"},
		{"undecryptable credential", NewUndecryptableCredentialError("resolve", errors.New("gcm: auth failed")), http.StatusInternalServerError, "credential_error"},
		{"upstream", NewUpstreamError("chat", 429, "rate limited"), http.StatusInternalServerError, "upstream_error"},
		{"parse", NewParseError("decode", "no JSON object"), http.StatusInternalServerError, "parse_error"},
		{"conflict", NewConflictError("lock", "busy"), http.StatusConflict, "conflict"},
		{"internal", NewInternalError("db", errors.New("boom")), http.StatusInternalServerError, "internal_error"},
		{"plain", errors.New("x"), http.StatusInternalServerError, "internal_error"},
		{"wrapped", fmt.Errorf("外层: %w", NewNotFoundError("load", "gone")), http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
			assert.Equal(t, tt.code, Code(tt.err))
		})
	}
	assert.Equal(t, http.StatusOK, HTTPStatus(nil))
}

func TestUpstreamErrorCarriesStatusAndBody(t *testing.T) {
	err := fmt.Errorf("scoring: %w", NewUpstreamError("chat", 502, "bad gateway"))

	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, 502, ue.StatusCode)
	assert.Equal(t, "bad gateway", ue.Body)
	assert.True(t, errors.Is(err, ErrUpstream))
	assert.Contains(t, Message(err), "502")
	assert.Contains(t, Message(err), "bad gateway")

	// 裸 UpstreamError 同样归类为上游错误
	assert.True(t, errors.Is(&UpstreamError{StatusCode: 500}, ErrUpstream))
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "question is required", Message(NewValidationError("evaluate", "question is required")))
	assert.Equal(t, "Invalid request", Message(NewValidationError("evaluate", "")))
	assert.Equal(t, "Internal server error", Message(NewInternalError("db", errors.New("secret dsn"))))
	assert.Equal(t, "Internal server error", Message(errors.New("raw")))
	assert.Equal(t, "", Message(nil))

	unreachable := NewUpstreamUnavailableError("chat", errors.New("dial tcp: i/o timeout"))
	assert.Equal(t, "LLM provider request failed", Message(unreachable))
	assert.Equal(t, "upstream_error", Code(unreachable))
	assert.Equal(t, 500, HTTPStatus(unreachable))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(NewUpstreamError("chat", 500, "")))
	assert.True(t, Retryable(NewUpstreamError("chat", 429, "slow down")))
	assert.False(t, Retryable(NewUpstreamError("chat", 401, "invalid api key")))
	assert.False(t, Retryable(NewUpstreamError("chat", 400, "bad request")))
	assert.False(t, Retryable(fmt.Errorf("score: %w", NewUpstreamError("chat", 403, ""))))
	assert.True(t, Retryable(NewUpstreamUnavailableError("chat", errors.New("dial tcp: i/o timeout"))))
	assert.True(t, Retryable(errors.New("network")))
	assert.False(t, Retryable(NewParseError("decode", "")))
	assert.False(t, Retryable(NewMissingCredentialError("resolve", "")))
	assert.True(t, Retryable(NewConflictError("lock", "")))
	assert.False(t, Retryable(nil))
}
