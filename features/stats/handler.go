package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"longrun/features/job"
	"longrun/internal/middleware"
)

// orphanAge is how long a PENDING record may sit without a queue
// reference before it counts as an orphaned submission.
const orphanAge = 5 * time.Minute

type JobRepo interface {
	CountByState(ctx context.Context) (map[job.State]int, error)
	CountByType(ctx context.Context) (map[string]int, error)
	CountOrphans(ctx context.Context, olderThan time.Duration) (int, error)
}

type Handler struct {
	jobRepo JobRepo
}

func NewHandler(j JobRepo) *Handler {
	return &Handler{jobRepo: j}
}

type StatsResponse struct {
	States map[job.State]int `json:"states"`
	Types  map[string]int    `json:"types"`

	// Orphaned counts submissions whose enqueue never completed. They
	// are surfaced for operators; nothing heals them automatically.
	Orphaned int `json:"orphaned"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	states, err := h.jobRepo.CountByState(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count jobs by state", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count jobs", http.StatusInternalServerError)
		return
	}

	types, err := h.jobRepo.CountByType(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count jobs by type", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count jobs", http.StatusInternalServerError)
		return
	}

	orphans, err := h.jobRepo.CountOrphans(ctx, orphanAge)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count orphaned jobs", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count jobs", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		States:   states,
		Types:    types,
		Orphaned: orphans,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"data": resp}); err != nil {
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
