package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/okian/blindbox/pkg/metrics"
)

const (
	// RequestIDHeader carries the request correlation id.
	RequestIDHeader = "X-Request-ID"
	// ErrorCodeHeader carries the machine-readable code of an error response.
	ErrorCodeHeader = "X-Error-Code"
)

// Contention codes are expected under load and are not the caller's fault.
var contentionCodes = map[string]bool{
	"busy":               true,
	"slot_conflict":      true,
	"reveal_in_progress": true,
}

// MetricsMiddleware records request count and latency per endpoint. Error
// responses are additionally counted by their error code.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		durationMs := float64(time.Since(start).Microseconds()) / 1000
		status := strconv.Itoa(wrapped.statusCode)
		metrics.RecordHTTPRequest(endpoint, r.Method, status)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, status, durationMs)

		if wrapped.statusCode >= http.StatusBadRequest {
			code := errorCode(wrapped)
			metrics.RecordErrorByEndpoint(endpoint, r.Method, code)
			metrics.RecordErrorByType(code, errorSeverity(wrapped.statusCode, code))
		}
	}
}

// RequestIDMiddleware echoes the caller's X-Request-ID or assigns a new one.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// errorCode prefers the code set by writeError; responses written elsewhere
// (promhttp, http.Error) fall back to a status class.
func errorCode(rw *responseWriter) string {
	if code := rw.Header().Get(ErrorCodeHeader); code != "" {
		return code
	}
	switch {
	case rw.statusCode >= http.StatusInternalServerError:
		return "server_error"
	case rw.statusCode == http.StatusNotFound:
		return "not_found"
	default:
		return "client_error"
	}
}

func errorSeverity(status int, code string) string {
	switch {
	case contentionCodes[code]:
		return "medium"
	case status >= http.StatusInternalServerError:
		return "high"
	default:
		return "low"
	}
}

// responseWriter captures the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("failed to write response: %w", err)
	}
	return n, nil
}
