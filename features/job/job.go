package job

import (
	"encoding/json"
	"errors"
	"time"
)

// State is the lifecycle state of a job record.
// PENDING -> RUNNING -> {FINISHED, FAILED}; terminal states never change.
type State string

const (
	StatePending  State = "PENDING"
	StateRunning  State = "RUNNING"
	StateFinished State = "FINISHED"
	StateFailed   State = "FAILED"
)

// Valid reports whether s is one of the four known states.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateRunning, StateFinished, StateFailed:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateFailed
}

// Job is the durable record of one submitted job instance. It is
// created by the submission service and mutated only by the execution
// engine.
type Job struct {
	ID     int64           `json:"id"`
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params"`
	State  State           `json:"state"`

	// QueueRef is the opaque queue-engine identifier: the submission
	// reference until the first delivery, then the latest delivery id.
	QueueRef string `json:"queue_ref"`

	// Attempts mirrors the queue-level attempt counter onto the record,
	// so the retry ceiling holds even if the queue's count resets.
	Attempts int `json:"attempts"`

	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Envelope is the queue message published at submission and consumed
// by the execution engine. The record itself stays in the store; only
// the id travels through the queue.
type Envelope struct {
	JobID         int64  `json:"job_id"`
	Type          string `json:"type"`
	Priority      int    `json:"priority"`
	SubmitRef     string `json:"submit_ref"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

var (
	// ErrNotFound is returned when no job record exists for an id.
	ErrNotFound = errors.New("job not found")

	// ErrFinalized is returned by state-transition updates that matched
	// an existing record already in a terminal state.
	ErrFinalized = errors.New("job already finalized")
)
