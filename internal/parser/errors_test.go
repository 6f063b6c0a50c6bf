package parser_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finextract/internal/parser"
)

func TestRateLimitError_ErrorString(t *testing.T) {
	rlErr := parser.NewRateLimitError("claude", fmt.Errorf("rate limited"), 30)

	assert.Contains(t, rlErr.Error(), "claude")
	assert.Contains(t, rlErr.Error(), "rate limited")
	assert.Contains(t, rlErr.Error(), "30s")
}

func TestRateLimitError_ErrorsAs(t *testing.T) {
	rlErr := parser.NewRateLimitError("claude", fmt.Errorf("rate limited"), 30)
	wrapped := fmt.Errorf("structure failed: %w", rlErr)

	var target *parser.RateLimitError
	require.True(t, errors.As(wrapped, &target))
	assert.Equal(t, "claude", target.Provider)
	assert.Equal(t, 30*time.Second, target.RetryAfter)
	assert.True(t, parser.IsRateLimited(wrapped))
	assert.False(t, parser.IsRateLimited(errors.New("boom")))
}

func TestNewRateLimitError_DefaultRetryAfter(t *testing.T) {
	rlErr := parser.NewRateLimitError("openai", fmt.Errorf("err"), 0)

	assert.Equal(t, 60*time.Second, rlErr.RetryAfter)
}

func TestParseRetryAfterHeader(t *testing.T) {
	assert.Equal(t, 0, parser.ParseRetryAfterHeader(""))
	assert.Equal(t, 30, parser.ParseRetryAfterHeader("30"))
	assert.Equal(t, 0, parser.ParseRetryAfterHeader("invalid"))

	future := time.Now().Add(90 * time.Second).UTC().Format(http.TimeFormat)
	secs := parser.ParseRetryAfterHeader(future)
	assert.InDelta(t, 90, secs, 2)
}

func TestCheckStatus(t *testing.T) {
	ok := &http.Response{StatusCode: http.StatusOK, Header: http.Header{}}
	assert.NoError(t, parser.CheckStatus("openai", ok, nil))

	limited := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{"Retry-After": []string{"12"}}}
	err := parser.CheckStatus("openai", limited, []byte("slow down"))
	var rlErr *parser.RateLimitError
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, 12*time.Second, rlErr.RetryAfter)

	bad := &http.Response{StatusCode: http.StatusUnauthorized, Header: http.Header{}}
	err = parser.CheckStatus("claude", bad, []byte("invalid key"))
	var stErr *parser.StatusError
	require.ErrorAs(t, err, &stErr)
	assert.Equal(t, http.StatusUnauthorized, stErr.StatusCode)
	assert.Contains(t, err.Error(), "invalid key")
	assert.False(t, parser.IsRateLimited(err))
}
