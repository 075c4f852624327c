package job

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"longrun/internal/middleware"
	"longrun/internal/registry"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// Submit handles POST /jobs.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Type   string         `json:"type"`
		Params map[string]any `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "type is required", http.StatusBadRequest)
		return
	}
	if req.Params == nil {
		req.Params = map[string]any{}
	}

	id, err := h.service.Submit(ctx, req.Type, req.Params)
	if err != nil {
		var missing *registry.MissingParamError
		switch {
		case errors.Is(err, registry.ErrUnknownJobType):
			h.writeError(ctx, w, "UNKNOWN_JOB_TYPE", err.Error(), http.StatusBadRequest)
		case errors.As(err, &missing):
			h.writeError(ctx, w, "INVALID_PARAMS", missing.Error(), http.StatusBadRequest)
		default:
			slog.ErrorContext(ctx, "failed to submit job", "type", req.Type, "error", err)
			h.writeError(ctx, w, "INTERNAL_ERROR", "failed to submit job", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]any{"data": map[string]int64{"job_id": id}}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// Get handles GET /jobs/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "invalid job id", http.StatusBadRequest)
		return
	}

	view, err := h.service.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(ctx, w, "NOT_FOUND", "job not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to get job", "job_id", id, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to get job", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"data": view}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// List handles GET /jobs with state/type filters and pagination.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	f := Filter{
		State: State(q.Get("state")),
		Type:  q.Get("type"),
	}
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))

	result, err := h.service.List(ctx, f, page, pageSize)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list jobs", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to list jobs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]any{
		"data": result.Jobs,
		"meta": map[string]int{
			"total":       result.Total,
			"page":        result.Page,
			"page_size":   result.PageSize,
			"total_pages": result.TotalPages,
		},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// ListTypes handles GET /job-types.
func (h *Handler) ListTypes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	types := h.service.ListTypes()
	if types == nil {
		types = []TypeInfo{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"data": types}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
