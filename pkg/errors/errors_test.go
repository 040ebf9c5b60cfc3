package errors

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesSentinel(t *testing.T) {
	err := Wrap(ErrTranscription, "google recognize call failed")
	require.Error(t, err)
	assert.True(t, Is(err, ErrTranscription))
	assert.False(t, Is(err, ErrValidation))
	assert.Contains(t, err.Error(), "google recognize call failed")
}

func TestWrapNilReturnsNil(t *testing.T) {
	var err *Error = Wrap(nil, "nothing happened")
	assert.Nil(t, err)
}

func TestConstructorsBindSentinels(t *testing.T) {
	testCases := []struct {
		err      *Error
		sentinel error
		code     string
	}{
		{NewValidation("bad codec"), ErrValidation, "VALIDATION_FAILED"},
		{NewTranscription("backend down"), ErrTranscription, "TRANSCRIPTION_FAILED"},
		{NewRedaction("model unavailable"), ErrRedaction, "REDACTION_FAILED"},
		{NewSummarization("backend down"), ErrSummarization, "SUMMARIZATION_FAILED"},
		{NewSynthesis("tts down"), ErrSynthesis, "SYNTHESIS_FAILED"},
		{NewInternal("panic"), ErrInternal, "INTERNAL_ERROR"},
	}

	for _, tc := range testCases {
		assert.True(t, Is(tc.err, tc.sentinel), "expected %v to match sentinel", tc.err)
		assert.Equal(t, tc.code, tc.err.Code)
	}
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(NewValidation("unsupported format")))
	assert.False(t, IsRetryable(NewInternal("bug")))
	assert.True(t, IsRetryable(NewTranscription("transient")))
	assert.True(t, IsRetryable(NewRedaction("detector offline")))
	assert.True(t, IsRetryable(NewSummarization("transient")))
	assert.True(t, IsRetryable(NewSynthesis("transient")))
	assert.True(t, IsRetryable(Wrap(ErrTimeout, "stage timed out")))

	// Wrapping must not change retry eligibility
	wrapped := Wrap(NewValidation("oversized"), "ingest stage failed")
	assert.False(t, IsRetryable(wrapped))
}

func TestWithFieldDoesNotMutateOriginal(t *testing.T) {
	base := New("base error")
	derived := base.WithField("job_id", "abc")

	assert.NotContains(t, base.GetFields(), "job_id")
	assert.Equal(t, "abc", derived.GetFields()["job_id"])
}

func TestLocationPointsAtCaller(t *testing.T) {
	err := New("located")
	assert.True(t, strings.HasPrefix(err.Location(), "errors_test.go:"))
}

func TestHTTPStatusFromError(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatusFromError(NewValidation("bad input")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFromError(NewTranscription("fail")))
	assert.Equal(t, http.StatusNotFound, HTTPStatusFromError(ErrJobNotFound))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFromError(fmt.Errorf("opaque")))

	// Deeply wrapped errors still resolve to the sentinel's status
	deep := Wrap(Wrap(ErrValidation, "inner"), "outer")
	assert.Equal(t, http.StatusBadRequest, HTTPStatusFromError(deep))
}

func TestWriteErrorReturnsDetailOnly(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, NewValidation("unsupported audio format"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "unsupported audio format")
	assert.NotContains(t, body, "errors_test.go", "caller location must never leak to clients")
}
