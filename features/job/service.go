package job

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"longrun/internal/config"
	"longrun/internal/middleware"
	"longrun/internal/registry"
)

// TaskPublisher is the queue-side collaborator used at submission.
type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

// Service implements job submission and read-only queries over the
// record store and registry.
type Service struct {
	repo Repository
	reg  *registry.Registry
	pub  TaskPublisher
}

func NewService(repo Repository, reg *registry.Registry, pub TaskPublisher) *Service {
	return &Service{repo: repo, reg: reg, pub: pub}
}

// Submit validates the request against the registry, creates a PENDING
// record and enqueues it. Returns the new record id.
//
// If the enqueue fails the record is left PENDING with an empty queue
// reference; the orphan is detectable via stats but not auto-healed.
func (s *Service) Submit(ctx context.Context, typeName string, params map[string]any) (int64, error) {
	cfg, ok := s.reg.Lookup(typeName)
	if !ok {
		return 0, fmt.Errorf("%w: %s", registry.ErrUnknownJobType, typeName)
	}

	if err := s.reg.ValidateParams(typeName, params); err != nil {
		return 0, err
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return 0, fmt.Errorf("marshal params: %w", err)
	}

	j := &Job{Type: typeName, Params: raw}
	if err := s.repo.Create(ctx, j); err != nil {
		return 0, fmt.Errorf("create job record: %w", err)
	}

	env := Envelope{
		JobID:         j.ID,
		Type:          typeName,
		Priority:      cfg.Priority,
		SubmitRef:     uuid.New().String(),
		CorrelationID: middleware.GetCorrelationID(ctx),
	}
	body, err := json.Marshal(env)
	if err != nil {
		return 0, fmt.Errorf("marshal envelope: %w", err)
	}

	if err := s.pub.Publish(config.JobTopic(cfg.Queue), body); err != nil {
		slog.ErrorContext(ctx, "enqueue failed, job record orphaned",
			"job_id", j.ID, "type", typeName, "queue", cfg.Queue, "error", err)
		return 0, fmt.Errorf("enqueue job %d: %w", j.ID, err)
	}

	// The submit ref is replaced by the delivery id once a worker picks
	// the job up; until then it marks the record as successfully queued.
	if err := s.repo.SetQueueRef(ctx, j.ID, env.SubmitRef); err != nil {
		slog.WarnContext(ctx, "failed to persist queue ref", "job_id", j.ID, "error", err)
	}

	slog.InfoContext(ctx, "job submitted", "job_id", j.ID, "type", typeName, "queue", cfg.Queue)
	return j.ID, nil
}

// View is the detail shape returned to callers. Result appears only
// for FINISHED records and ErrorMessage only for FAILED ones.
type View struct {
	ID           int64           `json:"id"`
	Type         string          `json:"type"`
	State        State           `json:"state"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

func (s *Service) Get(ctx context.Context, id int64) (*View, error) {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	v := &View{
		ID:         j.ID,
		Type:       j.Type,
		State:      j.State,
		CreatedAt:  j.CreatedAt,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
	}
	switch j.State {
	case StateFinished:
		v.Result = j.Result
	case StateFailed:
		v.ErrorMessage = j.ErrorMessage
	}
	return v, nil
}

// Summary is the list-row shape: no params, result or error payloads.
type Summary struct {
	ID         int64      `json:"id"`
	Type       string     `json:"type"`
	State      State      `json:"state"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type ListResult struct {
	Jobs       []Summary `json:"jobs"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	TotalPages int       `json:"total_pages"`
}

// List returns a page of job summaries, newest first. Unknown state
// filter values are ignored rather than rejected, and the page size is
// clamped to MaxPageSize.
func (s *Service) List(ctx context.Context, f Filter, page, pageSize int) (*ListResult, error) {
	if !f.State.Valid() {
		f.State = ""
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	jobs, total, err := s.repo.List(ctx, f, page, pageSize)
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(jobs))
	for _, j := range jobs {
		summaries = append(summaries, Summary{
			ID:         j.ID,
			Type:       j.Type,
			State:      j.State,
			CreatedAt:  j.CreatedAt,
			FinishedAt: j.FinishedAt,
		})
	}

	totalPages := (total + pageSize - 1) / pageSize
	return &ListResult{
		Jobs:       summaries,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// TypeInfo is the registry metadata exposed to callers; handler
// references never leave the process.
type TypeInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Timeout     int    `json:"timeout"`
	SoftTimeout int    `json:"soft_timeout"`
	MaxRetries  int    `json:"max_retries"`
	Queue       string `json:"queue"`
	Priority    int    `json:"priority"`
}

// ListTypes returns a snapshot of all registered job types, sorted by
// name.
func (s *Service) ListTypes() []TypeInfo {
	all := s.reg.All()
	types := make([]TypeInfo, 0, len(all))
	for name, cfg := range all {
		types = append(types, TypeInfo{
			Name:        name,
			Description: cfg.Description,
			Timeout:     int(cfg.Timeout.Seconds()),
			SoftTimeout: int(cfg.SoftTimeout.Seconds()),
			MaxRetries:  cfg.MaxRetries,
			Queue:       cfg.Queue,
			Priority:    cfg.Priority,
		})
	}
	sort.Slice(types, func(i, k int) bool { return types[i].Name < types[k].Name })
	return types
}
