// Package worker is the execution engine: an NSQ consumer per queue
// pulls job ids, runs the registered handler and finalizes the record.
// Retries are new deliveries of the same id scheduled through the
// queue; the durable record only reflects the latest attempt.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/nsqio/go-nsq"

	"longrun/features/job"
	"longrun/internal/backoff"
	"longrun/internal/middleware"
	"longrun/internal/registry"
)

// errTimeLimit marks a soft or hard execution time limit. It is
// terminal regardless of the job's retryable kinds.
var errTimeLimit = errors.New("execution time limit exceeded")

// touchInterval is how often an in-flight delivery is touched so nsqd
// does not time the message out under a long-running handler.
const touchInterval = 30 * time.Second

type Engine struct {
	repo job.Repository
	reg  *registry.Registry
}

func NewEngine(repo job.Repository, reg *registry.Registry) *Engine {
	return &Engine{repo: repo, reg: reg}
}

// HandleMessage processes one delivery. A nil return finishes the
// message; a non-nil return lets NSQ redeliver it (used only for
// infrastructure failures such as an unreachable store). Job-level
// retries are requeued explicitly with a computed delay.
func (e *Engine) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var env job.Envelope
	if err := json.Unmarshal(m.Body, &env); err != nil {
		slog.Error("invalid job envelope, dropping", "error", err)
		return nil
	}

	ctx := context.Background()
	if env.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, env.CorrelationID)
	}

	rec, err := e.repo.Get(ctx, env.JobID)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			slog.ErrorContext(ctx, "job record not found, dropping delivery", "job_id", env.JobID)
			return nil
		}
		return fmt.Errorf("load job %d: %w", env.JobID, err)
	}

	deliveryRef := string(m.ID[:])
	attempts, err := e.repo.MarkRunning(ctx, rec.ID, deliveryRef)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) || errors.Is(err, job.ErrFinalized) {
			slog.WarnContext(ctx, "stale delivery, dropping", "job_id", rec.ID, "error", err)
			return nil
		}
		return fmt.Errorf("mark job %d running: %w", rec.ID, err)
	}
	// Attempt numbering starts at 0 for the first execution.
	attempt := attempts - 1

	cfg, ok := e.reg.Lookup(rec.Type)
	if !ok {
		// Retrying cannot resolve a missing registration.
		return e.finalize(ctx, rec.ID, fmt.Sprintf("unknown job type: %s", rec.Type))
	}

	var params map[string]any
	if err := json.Unmarshal(rec.Params, &params); err != nil {
		return e.finalize(ctx, rec.ID, fmt.Sprintf("%s: unreadable params: %v", registry.KindValidation, err))
	}

	slog.InfoContext(ctx, "executing job", "job_id", rec.ID, "type", rec.Type, "attempt", attempt)
	result, err := e.invoke(ctx, m, cfg, rec.ID, params)

	switch {
	case err == nil:
		raw, merr := json.Marshal(result)
		if merr != nil {
			return e.finalize(ctx, rec.ID, fmt.Sprintf("%s: unserializable result: %v", registry.KindInternal, merr))
		}
		ferr := e.repo.MarkFinished(ctx, rec.ID, raw)
		switch {
		case ferr == nil:
			slog.InfoContext(ctx, "job finished", "job_id", rec.ID, "type", rec.Type)
			return nil
		case errors.Is(ferr, job.ErrNotFound) || errors.Is(ferr, job.ErrFinalized):
			slog.WarnContext(ctx, "job record gone or finalized, outcome discarded", "job_id", rec.ID, "error", ferr)
			return nil
		default:
			// Store unreachable: surface the error so NSQ redelivers.
			// MarkRunning/MarkFinished are idempotent under redelivery.
			return fmt.Errorf("mark job %d finished: %w", rec.ID, ferr)
		}

	case errors.Is(err, errTimeLimit):
		// Never retried, whatever the configured kinds say.
		return e.finalize(ctx, rec.ID, errTimeLimit.Error())

	default:
		kind := registry.KindOf(err)
		if e.reg.IsRetryable(rec.Type, kind) && attempt < cfg.MaxRetries {
			delay := backoff.Delay(backoff.Policy{
				Delay:       cfg.RetryDelay,
				Exponential: cfg.RetryBackoff,
				Max:         cfg.RetryBackoffMax,
			}, attempt)
			slog.WarnContext(ctx, "job failed with retryable error, requeueing",
				"job_id", rec.ID, "type", rec.Type, "kind", kind, "attempt", attempt, "delay", delay, "error", err)
			m.RequeueWithoutBackoff(delay)
			return nil
		}
		return e.finalize(ctx, rec.ID, fmt.Sprintf("%s: %v", kind, err))
	}
}

// invoke runs the handler under the job's time limits. The context
// deadline is the soft timeout; a handler that outlives the hard
// timeout is abandoned and its eventual outcome ignored.
func (e *Engine) invoke(ctx context.Context, m *nsq.Message, cfg registry.JobConfig, jobID int64, params map[string]any) (map[string]any, error) {
	runCtx, cancel := context.WithTimeout(ctx, cfg.SoftTimeout)
	defer cancel()

	type outcome struct {
		result map[string]any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: registry.Failf(registry.KindPanic, "%v\n%s", r, debug.Stack())}
			}
		}()
		res, err := cfg.Handler(runCtx, jobID, params)
		done <- outcome{result: res, err: err}
	}()

	hard := time.NewTimer(cfg.Timeout)
	defer hard.Stop()
	touch := time.NewTicker(touchInterval)
	defer touch.Stop()

	for {
		select {
		case o := <-done:
			// A DeadlineExceeded is only this job's soft timeout when the
			// run context actually expired; otherwise it came from some
			// dependency's own deadline and classifies like any other error.
			if o.err != nil && errors.Is(o.err, context.DeadlineExceeded) && runCtx.Err() != nil {
				return nil, errTimeLimit
			}
			return o.result, o.err
		case <-hard.C:
			return nil, errTimeLimit
		case <-touch.C:
			m.Touch()
		}
	}
}

// finalize marks the record FAILED, tolerating records that vanished
// or were finalized elsewhere mid-flight. Infrastructure failures are
// returned so the delivery is retried instead of losing the outcome.
func (e *Engine) finalize(ctx context.Context, id int64, errMsg string) error {
	err := e.repo.MarkFailed(ctx, id, errMsg)
	switch {
	case err == nil:
		slog.ErrorContext(ctx, "job failed", "job_id", id, "error_message", errMsg)
		return nil
	case errors.Is(err, job.ErrNotFound) || errors.Is(err, job.ErrFinalized):
		slog.WarnContext(ctx, "job record gone or finalized, outcome discarded", "job_id", id, "error", err)
		return nil
	default:
		return fmt.Errorf("mark job %d failed: %w", id, err)
	}
}
