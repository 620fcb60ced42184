package inference

import (
	"errors"
	"fmt"
)

// Status is the local model initialization status.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

const (
	BackendRemote = "remote"
	BackendLocal  = "local"
)

// ErrModelUnavailable means the local deployment has no usable model.
var ErrModelUnavailable = errors.New("local model is not loaded or failed to load")

// Error is the single inference-failure type surfaced by both variants.
// Status is set for the local variant only.
type Error struct {
	Backend string
	Op      string
	Status  Status
	Err     error
}

func (e *Error) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s %s failed (models %s): %v", e.Backend, e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Backend, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Unavailable reports whether the failure comes from a missing local model
// rather than a transient request failure.
func (e *Error) Unavailable() bool {
	return errors.Is(e.Err, ErrModelUnavailable)
}

func wrapError(backend, op string, status Status, err error) error {
	if err == nil {
		return nil
	}
	var ie *Error
	if errors.As(err, &ie) {
		return err
	}
	return &Error{Backend: backend, Op: op, Status: status, Err: err}
}
