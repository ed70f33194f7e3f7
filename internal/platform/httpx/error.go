package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/aozora-farm/api/internal/platform/requestctx"
)

const (
	maxCodeLength    = 80
	maxMessageLength = 512
	maxIDLength      = 80
)

// Error is the JSON error envelope every endpoint returns on failure.
// Code is a stable machine-readable identifier; Message is for humans.
type Error struct {
	Code      string
	Message   string
	Status    int
	RequestID string
	TraceID   string
	Details   map[string]any
}

// NewError builds an Error, defaulting a zero status to 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    clamp(code, maxCodeLength),
		Message: clamp(message, maxMessageLength),
		Status:  status,
	}
}

// WithRequestID overrides the request id derived from context.
func (e Error) WithRequestID(id string) Error {
	e.RequestID = clamp(id, maxIDLength)
	return e
}

// WithTraceID overrides the trace id derived from context.
func (e Error) WithTraceID(id string) Error {
	e.TraceID = clamp(id, maxIDLength)
	return e
}

// WithDetails attaches extra top-level JSON fields to the envelope.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		out[k] = v
	}
	e.Details = out
	return e
}

// WriteError renders the envelope as JSON, filling request and trace
// ids from context when the Error does not carry them.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	payload := map[string]any{
		"error":   err.Code,
		"message": err.Message,
		"status":  status,
	}

	if requestID := firstOf(err.RequestID, middleware.GetReqID(ctx)); requestID != "" {
		payload["request_id"] = clamp(requestID, maxIDLength)
	}
	if traceID := firstOf(err.TraceID, requestctx.TraceID(ctx)); traceID != "" {
		payload["trace_id"] = clamp(traceID, maxIDLength)
	}
	for k, v := range err.Details {
		payload[k] = v
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// clamp strips newlines and caps length so envelope fields stay
// log-safe and bounded.
func clamp(value string, limit int) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if limit > 0 && len(value) > limit {
		value = value[:limit]
	}
	return value
}
