package loop

import (
	"context"
	"errors"
	"fmt"
)

// ErrMaxTurnsExceeded matches any *MaxTurnsExceededError via errors.Is.
var ErrMaxTurnsExceeded = errors.New("max turns exceeded")

// ErrTimeout is returned when the run's wall-clock deadline passes.
var ErrTimeout = errors.New("request timed out")

// MaxTurnsExceededError reports that the model kept asking for tools after
// MaxTurns backend calls.
type MaxTurnsExceededError struct {
	MaxTurns int
}

func (e *MaxTurnsExceededError) Error() string {
	return fmt.Sprintf("agent did not finish within %d turns", e.MaxTurns)
}

func (e *MaxTurnsExceededError) Is(target error) bool {
	return target == ErrMaxTurnsExceeded
}

// BackendError wraps a failed backend call. The loop never retries it.
type BackendError struct {
	Turn int
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend call failed on turn %d: %v", e.Turn, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Failure kinds reported in error events and eval rows.
const (
	FailureMaxTurns = "max_turns"
	FailureTimeout  = "timeout"
	FailureBackend  = "backend"
	FailureCanceled = "canceled"
	FailureInternal = "internal"
)

// FailureKind classifies err for callers that need to tell failures apart.
func FailureKind(err error) string {
	var backend *BackendError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMaxTurnsExceeded):
		return FailureMaxTurns
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, context.Canceled):
		return FailureCanceled
	case errors.As(err, &backend):
		return FailureBackend
	default:
		return FailureInternal
	}
}

// UserMessage renders err as a short message for people, distinct per kind.
func UserMessage(err error) string {
	var maxTurns *MaxTurnsExceededError
	var backend *BackendError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &maxTurns):
		return fmt.Sprintf("The agent ran out of turns (limit %d) before finding an answer.", maxTurns.MaxTurns)
	case FailureKind(err) == FailureTimeout:
		return "Request timed out"
	case FailureKind(err) == FailureCanceled:
		return "Request was canceled"
	case errors.As(err, &backend):
		return fmt.Sprintf("The language model backend failed: %v", backend.Err)
	default:
		return "Internal error: " + err.Error()
	}
}
