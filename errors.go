package usbsas

import (
	"errors"
	"fmt"
	"syscall"
)

// Error is a structured fatal error (spec §7: "Fatal: the transfer cannot
// continue"). Per-file recoverable/rejected/filtered outcomes are never
// represented by this type; they are recorded on the report and the
// transfer continues (see internal/report).
type Error struct {
	Op         string    // operation that failed, e.g. "read_src", "write_dst"
	Worker     string    // worker name the failure originated in, empty if supervisor-local
	TransferID string    // transfer this error belongs to, empty if none active
	Code       ErrorCode // high-level error category
	Errno      syscall.Errno
	Msg        string
	Inner      error
}

func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Worker != "" {
		parts = append(parts, fmt.Sprintf("worker=%s", e.Worker))
	}
	if e.TransferID != "" {
		parts = append(parts, fmt.Sprintf("transfer=%s", e.TransferID))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("usbsas: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("usbsas: %s", msg)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode is a fatal-error category per spec §7's taxonomy.
type ErrorCode string

const (
	ErrCodeNotImplemented    ErrorCode = "not implemented"
	ErrCodeProtocolViolation ErrorCode = "protocol violation"
	ErrCodeSandboxFailed     ErrorCode = "sandbox transition failed"
	ErrCodeWorkerCrashed     ErrorCode = "worker crashed"
	ErrCodeDeviceNotFound    ErrorCode = "device not found"
	ErrCodeDeviceBusy        ErrorCode = "device busy"
	ErrCodeInvalidParameters ErrorCode = "invalid parameters"
	ErrCodePermissionDenied  ErrorCode = "permission denied"
	ErrCodeInsufficientSpace ErrorCode = "destination too small"
	ErrCodeIOError           ErrorCode = "I/O error"
	ErrCodeTimeout           ErrorCode = "timeout"
	ErrCodeUploadFailed      ErrorCode = "network upload failed"
	ErrCodeInvalidTransferID ErrorCode = "unknown transfer id"
	ErrCodeInvalidStateForOp ErrorCode = "request invalid in current state"
)

// NewError creates a new structured fatal error.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewErrorWithErrno creates a new structured error carrying a kernel errno.
func NewErrorWithErrno(op string, code ErrorCode, errno syscall.Errno) *Error {
	return &Error{Op: op, Code: code, Errno: errno, Msg: errno.Error()}
}

// NewWorkerError creates a new error attributed to a specific worker and
// transfer, the shape the supervisor builds when a worker's Error response
// or an unexpected pipe close needs to propagate to the frontend.
func NewWorkerError(op, worker, transferID string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Worker: worker, TransferID: transferID, Code: code, Msg: msg}
}

// WrapError wraps an existing error with usbsas context, mapping syscall
// errnos to an ErrorCode the way the supervisor does when a worker's pipe
// read/write fails.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	if ue, ok := inner.(*Error); ok {
		return &Error{
			Op:         op,
			Worker:     ue.Worker,
			TransferID: ue.TransferID,
			Code:       ue.Code,
			Errno:      ue.Errno,
			Msg:        ue.Msg,
			Inner:      ue.Inner,
		}
	}

	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{Op: op, Code: mapErrnoToCode(errno), Errno: errno, Msg: errno.Error(), Inner: inner}
	}

	return &Error{Op: op, Code: ErrCodeIOError, Msg: inner.Error(), Inner: inner}
}

func mapErrnoToCode(errno syscall.Errno) ErrorCode {
	switch errno {
	case syscall.ENOENT:
		return ErrCodeDeviceNotFound
	case syscall.EBUSY:
		return ErrCodeDeviceBusy
	case syscall.EINVAL, syscall.E2BIG:
		return ErrCodeInvalidParameters
	case syscall.ENOSYS, syscall.EOPNOTSUPP:
		return ErrCodeNotImplemented
	case syscall.EPERM, syscall.EACCES:
		return ErrCodePermissionDenied
	case syscall.ENOMEM, syscall.ENOSPC:
		return ErrCodeInsufficientSpace
	case syscall.ETIMEDOUT:
		return ErrCodeTimeout
	default:
		return ErrCodeIOError
	}
}

// IsCode reports whether err is (or wraps) an *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsErrno reports whether err is (or wraps) an *Error carrying errno.
func IsErrno(err error, errno syscall.Errno) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Errno == errno
	}
	return false
}
