package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrTransient       = errors.New("transient external error")
	ErrInternal        = errors.New("internal error")
	ErrIntegrity       = errors.New("integrity check failed")
)

// TransitionError reports a guard that rejected a transition against the freshly read record.
type TransitionError struct {
	SubmissionID string
	Action       AuditAction
	From         Status
	Reason       string
}

func (e *TransitionError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("transition %s rejected for submission %s in status %s: %s", e.Action, e.SubmissionID, e.From, e.Reason)
}

func (e *TransitionError) Unwrap() error {
	return ErrConflict
}

// ConflictError reports a second non-archived submission for one natural key.
type ConflictError struct {
	Key        NaturalKey
	ExistingID string
}

func (e *ConflictError) Error() string {
	if e == nil {
		return ""
	}
	if e.ExistingID == "" {
		return fmt.Sprintf("submission already exists for %s", e.Key)
	}
	return fmt.Sprintf("submission %s already exists for %s", e.ExistingID, e.Key)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// GatewayError is a retryable failure of the transmission gateway.
type GatewayError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	if e == nil {
		return ""
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("gateway %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() []error {
	return []error{ErrTransient, e.Err}
}

// RefusedError reports a gateway that answered but did not accept the payload.
type RefusedError struct {
	SubmissionID string
	Reason       string
}

func (e *RefusedError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("gateway refused submission %s: %s", e.SubmissionID, e.Reason)
}

func (e *RefusedError) Unwrap() error {
	return ErrConflict
}

type InvariantError struct {
	SubmissionID string
	Reason       string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("submission %s violates invariant: %s", e.SubmissionID, e.Reason)
}

func (e *InvariantError) Unwrap() error {
	return ErrInternal
}

func IsTransitionError(err error) (*TransitionError, bool) {
	var te *TransitionError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
