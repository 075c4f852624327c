package registry

import (
	"errors"
	"fmt"
)

// ErrorKind is the finite classification handlers use to mark failures
// as retryable or not. It replaces matching on concrete error types so
// that retry policy stays a registry concern.
type ErrorKind string

const (
	KindConnection ErrorKind = "connection" // transient network / dependency failure
	KindTimeout    ErrorKind = "timeout"    // dependency timed out (not the job's own time limit)
	KindValidation ErrorKind = "validation" // bad input discovered at execution time
	KindInternal   ErrorKind = "internal"   // unclassified handler failure
	KindPanic      ErrorKind = "panic"      // recovered panic in the handler
)

var ErrUnknownJobType = errors.New("unknown job type")

// MissingParamError reports a required param absent from a submission.
type MissingParamError struct {
	Field string
}

func (e *MissingParamError) Error() string {
	return fmt.Sprintf("missing required param: %s", e.Field)
}

// KindError attaches an ErrorKind to an underlying error.
type KindError struct {
	Kind ErrorKind
	Err  error
}

func (e *KindError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *KindError) Unwrap() error { return e.Err }

// Fail wraps err with the given kind. Handlers use it to opt into (or
// out of) retry classification.
func Fail(kind ErrorKind, err error) error {
	return &KindError{Kind: kind, Err: err}
}

// Failf is Fail with formatting.
func Failf(kind ErrorKind, format string, args ...any) error {
	return &KindError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the ErrorKind from err. Unwrapped errors classify as
// KindInternal.
func KindOf(err error) ErrorKind {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return KindInternal
}
