// Package apperr defines the error taxonomy the HTTP layer maps to
// status codes and error codes. Every sentinel here has a Type()
// method so errors.As can classify a wrapped error without the caller
// knowing its concrete type.
package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors. Wrap these with MessageError/MessageErrorf to attach
// a caller-facing message while keeping errors.Is(err, ErrX) working.
var (
	ErrValidation       = sentinel{"VALIDATION_ERROR", "the request is invalid"}
	ErrInvalidCandidate = sentinel{"INVALID_CANDIDATE", "one or more candidates are invalid"}
	ErrInvalidID        = sentinel{"INVALID_ID", "the id is invalid"}
	ErrNotFound         = sentinel{"NOT_FOUND", "the requested resource does not exist"}
	ErrAlreadyVoted     = sentinel{"ALREADY_VOTED", "this voter has already submitted a ballot"}
	ErrNotVoted         = sentinel{"NOT_VOTED", "this voter has not submitted a ballot yet"}
	ErrPollClosed       = sentinel{"POLL_CLOSED", "the poll is not open for voting"}
	ErrPollNotPublic    = sentinel{"POLL_NOT_PUBLIC", "the poll does not accept anonymous ballots"}
	ErrTabulationFailed = sentinel{"TABULATION_FAILED", "tabulation could not complete"}
	ErrUnauthorized     = sentinel{"UNAUTHORIZED", "the caller is not allowed to perform this action"}
	ErrInternal         = sentinel{"INTERNAL_ERROR", "something went wrong"}
)

// sentinel is a comparable, zero-allocation base error that also
// reports its taxonomy code via Type().
type sentinel struct {
	code string
	msg  string
}

func (s sentinel) Error() string {
	return s.msg
}

// Type returns the taxonomy code from spec.md §7, e.g. "ALREADY_VOTED".
func (s sentinel) Type() string {
	return s.code
}

// messageError pairs a sentinel with a caller-facing message, keeping
// errors.Is(err, ErrX) and errors.As(err, &typed) working through
// fmt.Errorf's %w.
type messageError struct {
	err error
	msg string
}

func (m messageError) Error() string {
	return m.msg
}

func (m messageError) Unwrap() error {
	return m.err
}

// Type forwards to the wrapped sentinel so the HTTP layer can still
// classify the error after it has been given a custom message.
func (m messageError) Type() string {
	var typed interface{ Type() string }
	if errors.As(m.err, &typed) {
		return typed.Type()
	}
	return ErrInternal.code
}

// MessageError wraps err (normally one of the sentinels above) with a
// caller-facing message, analogous to the teacher's vote.MessageError.
func MessageError(err error, msg string) error {
	return messageError{err: err, msg: msg}
}

// MessageErrorf is MessageError with fmt.Sprintf-style formatting.
func MessageErrorf(err error, format string, a ...interface{}) error {
	return messageError{err: err, msg: fmt.Sprintf(format, a...)}
}
