// Package registry holds the process-wide mapping from job type name to
// execution configuration. The registry is populated once during startup,
// before any queue consumer is connected, and is read-only afterwards.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Handler executes one attempt of a job. The context carries the soft
// timeout deadline; handlers that respect it fail cleanly instead of
// being abandoned at the hard timeout.
type Handler func(ctx context.Context, jobID int64, params map[string]any) (map[string]any, error)

// ParamSchema declares which params are required. Properties carries
// per-field type hints for documentation only; fields are not
// type-checked at submission.
type ParamSchema struct {
	Required   []string          `json:"required"`
	Properties map[string]string `json:"properties,omitempty"`
}

// JobConfig is one registry entry: a handler plus its execution policy.
type JobConfig struct {
	TypeName        string
	Handler         Handler
	Description     string
	Timeout         time.Duration // hard cutoff, handler goroutine is abandoned
	SoftTimeout     time.Duration // context deadline passed to the handler
	MaxRetries      int
	RetryDelay      time.Duration
	RetryBackoff    bool // exponential with jitter vs fixed RetryDelay
	RetryBackoffMax time.Duration
	Queue           string
	Priority        int // 1-10, 10 highest
	ParamSchema     *ParamSchema
	RetryableKinds  []ErrorKind
}

// Defaults applied by Register when the corresponding field is zero.
const (
	DefaultTimeout         = 3600 * time.Second
	DefaultSoftTimeout     = 3300 * time.Second
	DefaultMaxRetries      = 3
	DefaultRetryDelay      = 60 * time.Second
	DefaultRetryBackoffMax = 600 * time.Second
	DefaultQueue           = "default"
	DefaultPriority        = 5
)

// Registry maps type names to job configs. It is safe for concurrent
// use, though writes only happen during the startup phase.
type Registry struct {
	mu    sync.RWMutex
	types map[string]JobConfig
}

func New() *Registry {
	return &Registry{types: make(map[string]JobConfig)}
}

// Register stores cfg under its type name, overwriting any previous
// entry with the same name. Callers must treat an overwrite as a
// configuration mistake; the registry only logs it.
func (r *Registry) Register(cfg JobConfig) {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.SoftTimeout == 0 {
		cfg.SoftTimeout = DefaultSoftTimeout
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.RetryBackoffMax == 0 {
		cfg.RetryBackoffMax = DefaultRetryBackoffMax
	}
	if cfg.Queue == "" {
		cfg.Queue = DefaultQueue
	}
	if cfg.Priority == 0 {
		cfg.Priority = DefaultPriority
	}
	if cfg.RetryableKinds == nil {
		cfg.RetryableKinds = []ErrorKind{KindConnection, KindTimeout}
	}

	r.mu.Lock()
	_, overwrite := r.types[cfg.TypeName]
	r.types[cfg.TypeName] = cfg
	r.mu.Unlock()

	if overwrite {
		slog.Warn("job type re-registered, previous config overwritten", "type", cfg.TypeName)
	} else {
		slog.Info("registered job type", "type", cfg.TypeName, "queue", cfg.Queue)
	}
}

// Lookup returns the config registered under name.
func (r *Registry) Lookup(name string) (JobConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.types[name]
	return cfg, ok
}

// All returns a copy of every registered config. Mutating the result
// does not affect registry state.
func (r *Registry) All() map[string]JobConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]JobConfig, len(r.types))
	for name, cfg := range r.types {
		if cfg.ParamSchema != nil {
			schema := &ParamSchema{
				Required:   append([]string(nil), cfg.ParamSchema.Required...),
				Properties: make(map[string]string, len(cfg.ParamSchema.Properties)),
			}
			for k, v := range cfg.ParamSchema.Properties {
				schema.Properties[k] = v
			}
			cfg.ParamSchema = schema
		}
		cfg.RetryableKinds = append([]ErrorKind(nil), cfg.RetryableKinds...)
		out[name] = cfg
	}
	return out
}

// ValidateParams checks params against the schema registered under name.
// It fails with ErrUnknownJobType for unregistered names and with a
// MissingParamError for each absent required field (first one wins).
// Individual field values are not type-checked.
func (r *Registry) ValidateParams(name string, params map[string]any) error {
	cfg, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJobType, name)
	}
	if cfg.ParamSchema == nil {
		return nil
	}
	for _, field := range cfg.ParamSchema.Required {
		if _, present := params[field]; !present {
			return &MissingParamError{Field: field}
		}
	}
	return nil
}

// IsRetryable reports whether kind is eligible for automatic retry
// under the policy registered for name. Unregistered names are never
// retryable.
func (r *Registry) IsRetryable(name string, kind ErrorKind) bool {
	cfg, ok := r.Lookup(name)
	if !ok {
		return false
	}
	for _, k := range cfg.RetryableKinds {
		if k == kind {
			return true
		}
	}
	return false
}
