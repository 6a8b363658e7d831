// Package uperr defines the error taxonomy shared by the upload pipeline.
//
// Every failure surfaced by the planner, transfer engine, coordinator, or
// broker client carries one of the kinds below so callers can branch on the
// class of failure (errors.As / KindOf) without string matching.
package uperr

import (
	"errors"
	"fmt"
)

// Kind classifies an upload pipeline failure.
type Kind int

const (
	// KindUnknown is the zero value; errors without a pipeline kind.
	KindUnknown Kind = iota
	// KindInvalidInput indicates a malformed request rejected before any network call.
	KindInvalidInput
	// KindForbidden indicates the caller is not an authorized admin. Not retryable.
	KindForbidden
	// KindPreparationFailed indicates the broker could not initiate an upload
	// or issue part URLs. The file fails before any part is attempted.
	KindPreparationFailed
	// KindPartTransferFailed indicates a part PUT failed (network error or non-2xx).
	KindPartTransferFailed
	// KindMissingETag indicates a part PUT succeeded but returned no ETag header.
	// The part cannot be referenced at completion time, so the file fails.
	KindMissingETag
	// KindCompletionFailed indicates the gateway rejected the completion request.
	// All parts were stored; the multipart upload remains open on the backend.
	KindCompletionFailed
	// KindCancelled indicates a user-initiated cancellation, distinct from failure.
	KindCancelled
	// KindDuplicateKey indicates two files in one batch resolve to the same
	// destination key. The whole batch is rejected before any upload begins.
	KindDuplicateKey
)

// String returns a stable lowercase name for the kind.
func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindForbidden:
		return "forbidden"
	case KindPreparationFailed:
		return "preparation_failed"
	case KindPartTransferFailed:
		return "part_transfer_failed"
	case KindMissingETag:
		return "missing_etag"
	case KindCompletionFailed:
		return "completion_failed"
	case KindCancelled:
		return "cancelled"
	case KindDuplicateKey:
		return "duplicate_key"
	default:
		return "unknown"
	}
}

// Error is a pipeline error carrying a Kind and an optional wrapped cause.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a pipeline error with the given kind and message.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates a pipeline error with a formatted message.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates a pipeline error wrapping cause. Returns nil if cause is nil.
func Wrap(kind Kind, msg string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// KindOf returns the kind of err, or KindUnknown if err carries no pipeline kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
