package transform

import (
	"errors"
	"fmt"
)

// Error represents a refused transformation operation.
//
// Every operation either fully succeeds (model updated, equivalence
// preserved) or fully fails with an Error carrying enough context for the
// recipe driver to report or recover: the operation name, the iname it
// targeted, and the reason.
type Error struct {
	// Code identifies the failure category.
	Code ErrorCode

	// Op is the operation that failed ("split" or "tag").
	Op string

	// Iname is the iname the operation targeted.
	Iname string

	// Message is a human-readable description.
	Message string
}

// ErrorCode categorizes transformation failures.
type ErrorCode string

const (
	// ErrCodeUnknownIname: the operation references a name not present in
	// the current model.
	ErrCodeUnknownIname ErrorCode = "UNKNOWN_INAME"

	// ErrCodeInvalidTransformation: malformed parameters, such as a
	// non-positive split factor or an operation on a retired iname.
	ErrCodeInvalidTransformation ErrorCode = "INVALID_TRANSFORMATION"

	// ErrCodeConflictingTag: incompatible role assignment, either on the
	// iname itself or on the hardware axis it maps to.
	ErrCodeConflictingTag ErrorCode = "CONFLICTING_TAG"

	// ErrCodeInvalidReductionTag: a parallel role on a reduction
	// dimension with no combination strategy.
	ErrCodeInvalidReductionTag ErrorCode = "INVALID_REDUCTION_TAG"

	// ErrCodeUnsatisfiableSchedule: the operation would leave the
	// dependency relation cyclic or a parallel axis racing.
	ErrCodeUnsatisfiableSchedule ErrorCode = "UNSATISFIABLE_SCHEDULE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Iname != "" {
		return fmt.Sprintf("%s: %s %q: %s", e.Code, e.Op, e.Iname, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Op, e.Message)
}

// NewError builds a transform error. Exported so the scheduler, which ends
// the same pipeline, reports failures in the same shape.
func NewError(code ErrorCode, op, iname, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Iname: iname, Message: fmt.Sprintf(format, args...)}
}

func newError(code ErrorCode, op, iname, format string, args ...any) *Error {
	return NewError(code, op, iname, format, args...)
}

// CodeOf returns the error code of err, or "" if err is not a transform
// error. Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// IsUnknownIname reports whether err is an UNKNOWN_INAME failure.
func IsUnknownIname(err error) bool { return CodeOf(err) == ErrCodeUnknownIname }

// IsInvalidTransformation reports whether err is an INVALID_TRANSFORMATION failure.
func IsInvalidTransformation(err error) bool { return CodeOf(err) == ErrCodeInvalidTransformation }

// IsConflictingTag reports whether err is a CONFLICTING_TAG failure.
func IsConflictingTag(err error) bool { return CodeOf(err) == ErrCodeConflictingTag }

// IsInvalidReductionTag reports whether err is an INVALID_REDUCTION_TAG failure.
func IsInvalidReductionTag(err error) bool { return CodeOf(err) == ErrCodeInvalidReductionTag }

// IsUnsatisfiableSchedule reports whether err is an UNSATISFIABLE_SCHEDULE failure.
func IsUnsatisfiableSchedule(err error) bool { return CodeOf(err) == ErrCodeUnsatisfiableSchedule }
