package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/steward-platform/apiserver/internal/apperr"
	"github.com/steward-platform/apiserver/internal/policy"
	"github.com/steward-platform/apiserver/types"
)

const maxBodyBytes = 1 << 20

type contextKey string

const contextActorKey contextKey = "actor"

func withActor(ctx context.Context, actor policy.Actor) context.Context {
	return context.WithValue(ctx, contextActorKey, actor)
}

func actorFromContext(ctx context.Context) (policy.Actor, error) {
	actor, ok := ctx.Value(contextActorKey).(policy.Actor)
	if !ok || actor.ID < 1 {
		return policy.Actor{}, errors.New("missing actor")
	}
	return actor, nil
}

// currentActor answers 401 when the request carries no authenticated caller.
func currentActor(w http.ResponseWriter, r *http.Request) (policy.Actor, bool) {
	actor, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Access denied. Not authenticated.")
		return policy.Actor{}, false
	}
	return actor, true
}

// Response is the envelope every endpoint answers with.
type Response struct {
	Success bool             `json:"success"`
	Data    any              `json:"data,omitempty"`
	Count   *int             `json:"count,omitempty"`
	Counts  types.TaskCounts `json:"counts,omitempty"`
	Message string           `json:"message,omitempty"`
	Error   string           `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Response{Success: true, Data: data})
}

func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	count := len(items)
	writeJSON(w, http.StatusOK, Response{Success: true, Data: items, Count: &count})
}

// writeDeleted answers with an explicit "data": null.
func writeDeleted(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, struct {
		Success bool   `json:"success"`
		Data    any    `json:"data"`
		Message string `json:"message"`
	}{Success: true, Message: message})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Success: false, Error: message})
}

// errorResponder logs failures with their operation and translates them
// into envelope errors.
type errorResponder struct {
	logger  *slog.Logger
	verbose bool
}

func (e errorResponder) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	kind := apperr.KindOf(err)
	status := kind.Status()
	attrs := []any{
		"op", op,
		"kind", kind.String(),
		"status", status,
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", middleware.GetReqID(r.Context()),
		"error", err,
	}
	if status >= http.StatusInternalServerError {
		e.logger.Error("request failed", attrs...)
	} else {
		e.logger.Warn("request rejected", attrs...)
	}
	writeError(w, status, apperr.PublicMessage(err, e.verbose))
}

// decodeJSON decodes a single JSON object, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("Request body is required")
		}
		return apperr.Validation("Invalid request body: %s", strings.TrimPrefix(err.Error(), "json: "))
	}
	if dec.More() {
		return apperr.Validation("Invalid request body: trailing data")
	}
	return nil
}

func pathID(r *http.Request, name, label string) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || id < 1 {
		return 0, apperr.Validation("Invalid %s ID", label)
	}
	return id, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.Validation("%s must be a non-negative integer", name)
	}
	return n, nil
}

func queryString(r *http.Request, name string) *string {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil
	}
	return &raw
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// NotFound answers unknown routes in the envelope format.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, fmt.Sprintf("Not found - %s", r.URL.Path))
}
