package resultx

import (
	"errors"
	"fmt"
)

// ErrorCode categorises a non-domain error returned by this package.
type ErrorCode string

const (
	// ErrCodeSubmission indicates the broker was unreachable or rejected the signature.
	ErrCodeSubmission ErrorCode = "submission"
	// ErrCodeBackendUnavailable indicates the result store could not be reached.
	ErrCodeBackendUnavailable ErrorCode = "backend_unavailable"
	// ErrCodeSerialization indicates a payload could not be encoded.
	ErrCodeSerialization ErrorCode = "serialization"
	// ErrCodeDecode indicates a stored value matched neither outcome shape.
	// It is always wrapped in an ErrCodeBackendUnavailable error.
	ErrCodeDecode ErrorCode = "decode"
	// ErrCodeTimeout indicates the wait deadline elapsed with no terminal value.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the caller's context ended before the deadline.
	ErrCodeCanceled ErrorCode = "canceled"
)

// Error is a categorised failure of a store, broker or wait operation.
// It supports errors.Is and errors.As through Unwrap.
type Error struct {
	Code    ErrorCode
	TaskID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.TaskID != "" {
		msg = fmt.Sprintf("%s (task_id=%s)", msg, e.TaskID)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(code ErrorCode, taskID string, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		TaskID:  taskID,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// isCode matches code anywhere in the chain of *Error causes.
func isCode(err error, code ErrorCode) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// IsSubmission reports whether err is a submission failure.
func IsSubmission(err error) bool { return isCode(err, ErrCodeSubmission) }

// IsBackendUnavailable reports whether err is a result store connectivity failure.
func IsBackendUnavailable(err error) bool { return isCode(err, ErrCodeBackendUnavailable) }

// IsSerialization reports whether err is an encoding failure.
func IsSerialization(err error) bool { return isCode(err, ErrCodeSerialization) }

// IsDecode reports whether err is an undecodable stored value.
func IsDecode(err error) bool { return isCode(err, ErrCodeDecode) }

// IsTimeout reports whether err is an elapsed wait deadline.
func IsTimeout(err error) bool { return isCode(err, ErrCodeTimeout) }

// IsCanceled reports whether err is a canceled wait.
func IsCanceled(err error) bool { return isCode(err, ErrCodeCanceled) }

// GetCode returns the ErrorCode of the outermost *Error in err, or "".
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// TaskFailure is returned when a task completed with a FailureRecord. The
// full record is kept so callers can inspect message and tracebacks when the
// classification is not specific enough.
type TaskFailure struct {
	Classification
	Record *FailureRecord
}

func (f *TaskFailure) Error() string {
	return fmt.Sprintf("%s failure: %s", f.Kind, f.Record)
}

// Message returns the exception message on one line.
func (f *TaskFailure) Message() string {
	return f.Record.Exception.Message.Flatten()
}

// AsTaskFailure extracts a *TaskFailure from err.
func AsTaskFailure(err error) (*TaskFailure, bool) {
	var f *TaskFailure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// TaskError is returned by task handlers to tag a failure with its kind.
// The kind round-trips through the FailureRecord's exception type and
// module so a native client classifies it without heuristics.
type TaskError struct {
	Kind    FailureKind
	Message string
}

func (e *TaskError) Error() string {
	return e.Message
}

// Expected builds a business-logic failure deliberately raised by a task.
func Expected(message string) error {
	return &TaskError{Kind: KindExpected, Message: message}
}

// Expectedf is Expected with a formatted message.
func Expectedf(format string, args ...any) error {
	return Expected(fmt.Sprintf(format, args...))
}

// Unexpected builds a failure caused by a defect in task logic.
func Unexpected(message string) error {
	return &TaskError{Kind: KindUnexpected, Message: message}
}

// Unexpectedf is Unexpected with a formatted message.
func Unexpectedf(format string, args ...any) error {
	return Unexpected(fmt.Sprintf(format, args...))
}
