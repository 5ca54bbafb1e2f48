package tracking

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const maxBodyBytes = 64 << 10

const trackSchema = `{
	"type": "object",
	"required": ["user_id", "resource_id"],
	"properties": {
		"user_id":       {"type": "string", "minLength": 1},
		"resource_id":   {"type": "string", "minLength": 1},
		"duration":      {"type": "number", "minimum": 0},
		"state":         {"type": "integer"},
		"iframe":        {"type": "boolean"},
		"fully_watched": {"type": "boolean"}
	}
}`

// Response is the envelope of every tracking API response.
type Response struct {
	Done   bool    `json:"done"`
	Reason *string `json:"reason"`
	Ctx    any     `json:"ctx"`
}

// Handler serves PATCH /api/videos/track.
type Handler struct {
	store  Store
	events EventLogger
	schema *gojsonschema.Schema
}

// NewHandler creates a tracking handler. A nil events logger discards events.
func NewHandler(store Store, events EventLogger) (*Handler, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(trackSchema))
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = NopEventLogger{}
	}
	return &Handler{store: store, events: events, schema: schema}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		w.Header().Set("Allow", http.MethodPatch)
		writeResponse(w, http.StatusMethodNotAllowed, false, "Method Not Allowed", nil)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeResponse(w, http.StatusUnprocessableEntity, false, err.Error(), nil)
		return
	}
	if len(body) == 0 {
		writeResponse(w, http.StatusUnprocessableEntity, false, "Request body required", nil)
		return
	}

	req, err := h.decode(body)
	if err != nil {
		writeResponse(w, http.StatusUnprocessableEntity, false, err.Error(), nil)
		return
	}

	ctx := r.Context()
	if err := h.store.Authorize(ctx, req.UserID, r.Header.Get("Authorization")); err != nil {
		if !errors.Is(err, ErrUnauthorized) {
			slog.Error("authorize failed", "user_id", req.UserID, "error", err)
		}
		writeResponse(w, http.StatusUnauthorized, false, ErrUnauthorized.Error(), nil)
		return
	}

	prefs, err := h.store.Track(ctx, req)
	if errors.Is(err, ErrResourceNotFound) {
		writeResponse(w, http.StatusNotFound, false, "Resource Not Found", nil)
		return
	}
	if err != nil {
		slog.Error("track failed", "user_id", req.UserID, "resource_id", req.ResourceID, "error", err)
		writeResponse(w, http.StatusInternalServerError, false, "Internal Server Error", nil)
		return
	}

	if err := h.events.LogEvent(eventFor(req)); err != nil {
		slog.Warn("failed to log video event", "user_id", req.UserID, "error", err)
	}

	writeResponse(w, http.StatusOK, true, "", prefs)
}

func (h *Handler) decode(body []byte) (TrackRequest, error) {
	result, err := h.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return TrackRequest{}, err
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return TrackRequest{}, errors.New(strings.Join(msgs, "; "))
	}

	var req TrackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return TrackRequest{}, err
	}
	return req, nil
}

func writeResponse(w http.ResponseWriter, status int, done bool, reason string, ctx any) {
	resp := Response{Done: done, Ctx: ctx}
	if reason != "" {
		resp.Reason = &reason
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}
