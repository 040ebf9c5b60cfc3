package errors

import (
	"encoding/json"
	"errors"
	"net/http"
)

// HTTP status code mappings. Validation failures are client-caused and
// map to 4xx; stage failures are server-caused and map to 5xx.
var errorStatusCodes = map[error]int{
	ErrNotFound:          http.StatusNotFound,
	ErrInvalidInput:      http.StatusBadRequest,
	ErrInternal:          http.StatusInternalServerError,
	ErrTimeout:           http.StatusGatewayTimeout,
	ErrUnavailable:       http.StatusServiceUnavailable,
	ErrResourceExhausted: http.StatusTooManyRequests,
	ErrCanceled:          http.StatusRequestTimeout,

	ErrValidation:    http.StatusBadRequest,
	ErrTranscription: http.StatusInternalServerError,
	ErrRedaction:     http.StatusInternalServerError,
	ErrSummarization: http.StatusInternalServerError,
	ErrSynthesis:     http.StatusInternalServerError,
	ErrStorage:       http.StatusInternalServerError,
	ErrJobNotFound:   http.StatusNotFound,
}

// WriteError writes a standardized error response to the HTTP response
// writer. Only the human-readable detail is returned; caller location
// and context fields stay in the logs.
func WriteError(w http.ResponseWriter, err error) {
	var statusCode int
	var response map[string]interface{}

	var serr *Error
	if err == nil {
		statusCode = http.StatusInternalServerError
		response = map[string]interface{}{
			"detail": "unknown error",
		}
	} else if errors.As(err, &serr) {
		statusCode = HTTPStatusFromError(serr.original)
		response = map[string]interface{}{
			"detail": serr.Detail(),
		}
		if serr.Code != "" {
			response["code"] = serr.Code
		}
	} else {
		statusCode = HTTPStatusFromError(err)
		response = map[string]interface{}{
			"detail": err.Error(),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(response)
}

// HTTPStatusFromError determines the appropriate HTTP status code for an error
func HTTPStatusFromError(err error) int {
	for err != nil {
		if code, ok := errorStatusCodes[err]; ok {
			return code
		}

		var serr *Error
		if errors.As(err, &serr) {
			err = serr.original
			continue
		}

		err = errors.Unwrap(err)
	}

	return http.StatusInternalServerError
}
