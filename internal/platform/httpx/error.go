// Package httpx holds the JSON error envelope shared by handlers and middleware.
package httpx

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/requestctx"
)

const (
	maxCodeLen    = 80
	maxMessageLen = 512
)

// Error is an API failure rendered as
// {"error": code, "message": ..., "status": ..., "request_id": ..., "trace_id": ...}.
// Details are merged into the top-level object.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

func NewError(code, message string, status int) Error {
	if status < 400 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    clip(code, maxCodeLen),
		Message: clip(message, maxMessageLen),
		Status:  status,
	}
}

func (e Error) Error() string {
	return e.Code + ": " + e.Message
}

// WithDetails returns a copy of e carrying extra top-level fields.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) > 0 {
		e.Details = maps.Clone(details)
	}
	return e
}

// WriteError renders e, stamping the request and trace identifiers found on ctx.
func WriteError(ctx context.Context, w http.ResponseWriter, e Error) {
	if e.Status == 0 {
		e.Status = http.StatusInternalServerError
	}
	body := make(map[string]any, len(e.Details)+5)
	maps.Copy(body, e.Details)
	body["error"] = e.Code
	body["message"] = e.Message
	body["status"] = e.Status
	if id := clip(middleware.GetReqID(ctx), maxCodeLen); id != "" {
		body["request_id"] = id
	}
	if id := requestctx.TraceID(ctx); id != "" {
		body["trace_id"] = id
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(e.Status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(body)
}

func clip(value string, limit int) string {
	value = strings.TrimSpace(strings.NewReplacer("\r", " ", "\n", " ").Replace(value))
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
