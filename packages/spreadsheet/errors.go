package spreadsheet

import (
	"errors"
	"fmt"
)

// AppErrorCode represents gRPC-style error codes for application-level errors.
// note that we are skipping error codes that don't make sense for our use-case,
// like unauthenticated, or permission denied.
type AppErrorCode int

const (
	// OK indicates the operation completed successfully.
	OK AppErrorCode = 0

	// Unknown error.
	Unknown AppErrorCode = 2

	// InvalidArgument indicates client specified an invalid argument, such
	// as a malformed address or a non-positive sheet dimension.
	InvalidArgument AppErrorCode = 3

	// NotFound means some requested entity (e.g., sheet) was not found.
	NotFound AppErrorCode = 5

	// AlreadyExists means an attempt to create an entity failed because one
	// already exists.
	AlreadyExists AppErrorCode = 6

	// FailedPrecondition indicates operation was rejected because the
	// workbook is not in a state required for the operation's execution,
	// e.g. removing its last sheet.
	FailedPrecondition AppErrorCode = 9

	// OutOfRange means operation was attempted past a sheet's bounds.
	OutOfRange AppErrorCode = 11

	// Internal errors. Means some invariants expected by underlying
	// system has been broken.
	Internal AppErrorCode = 13
)

var appErrorCodeNames = map[AppErrorCode]string{
	OK:                 "OK",
	Unknown:            "UNKNOWN",
	InvalidArgument:    "INVALID_ARGUMENT",
	NotFound:           "NOT_FOUND",
	AlreadyExists:      "ALREADY_EXISTS",
	FailedPrecondition: "FAILED_PRECONDITION",
	OutOfRange:         "OUT_OF_RANGE",
	Internal:           "INTERNAL",
}

func (c AppErrorCode) String() string {
	if name, ok := appErrorCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CODE(%d)", int(c))
}

// AppError represents errors at the application level (not
// spreadsheet formula errors)
type AppError struct {
	Code    AppErrorCode
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

// Is matches any *AppError with the same code, so callers can compare
// against a bare &AppError{Code: NotFound}
func (e *AppError) Is(target error) bool {
	other, ok := target.(*AppError)
	return ok && other.Code == e.Code
}

// NewApplicationError creates a new application error
func NewApplicationError(code AppErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func newApplicationErrorf(code AppErrorCode, format string, args ...any) *AppError {
	return NewApplicationError(code, fmt.Sprintf(format, args...))
}

// CodeOf returns the application error code carried by err, Unknown for
// other non-nil errors
func CodeOf(err error) AppErrorCode {
	if err == nil {
		return OK
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return Unknown
}
