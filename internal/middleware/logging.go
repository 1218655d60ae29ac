package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"go-auth-service/internal/logger"
)

const requestIDHeader = "X-Request-ID"

// maxCapturedBody bounds how much of an error response is kept for logging.
const maxCapturedBody = 4 << 10

// Logging tags each request with an id, attaches a request-scoped logger to
// the context and emits one access line when the handler returns. Only error
// bodies are inspected; success bodies carry tokens.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		reqLogger := slog.Default().With("request_id", requestID)
		r = r.WithContext(logger.IntoContext(r.Context(), reqLogger))

		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Int64("duration_ms", time.Since(started).Milliseconds()),
			slog.String("client_ip", extractClientIP(r)),
		}
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			attrs = append(attrs, slog.String("route", rctx.RoutePattern()))
		}
		if code, message, ok := rec.errorSummary(); ok {
			attrs = append(attrs, slog.String("error_code", code), slog.String("error_message", message))
		}

		reqLogger.LogAttrs(context.Background(), levelForStatus(rec.status), "request", attrs...)
	})
}

func levelForStatus(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	errBody     bytes.Buffer
}

func (rec *statusRecorder) WriteHeader(statusCode int) {
	if rec.wroteHeader {
		return
	}
	rec.status = statusCode
	rec.wroteHeader = true
	rec.ResponseWriter.WriteHeader(statusCode)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	if !rec.wroteHeader {
		rec.WriteHeader(http.StatusOK)
	}
	if rec.status >= http.StatusBadRequest && rec.errBody.Len() < maxCapturedBody {
		rec.errBody.Write(b[:min(len(b), maxCapturedBody-rec.errBody.Len())])
	}
	return rec.ResponseWriter.Write(b)
}

// errorSummary pulls code and message out of a captured error envelope.
func (rec *statusRecorder) errorSummary() (string, string, bool) {
	if rec.errBody.Len() == 0 {
		return "", "", false
	}

	var envelope struct {
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.errBody.Bytes(), &envelope); err != nil || envelope.Error == nil {
		return "", "", false
	}
	return envelope.Error.Code, envelope.Error.Message, true
}
