package errors

import (
	stderrors "errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode represents internal error codes for table operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Caller errors
	ErrCodeInvalidArgument     ErrorCode = 1000
	ErrCodeNonMonotonicVersion ErrorCode = 1001
	ErrCodeWriteWhileLocked    ErrorCode = 1002
	ErrCodeKeyTooLarge         ErrorCode = 1003
	ErrCodeValueTooLarge       ErrorCode = 1004
	ErrCodeKeySizeMismatch     ErrorCode = 1005
	ErrCodeClosed              ErrorCode = 1006

	// Storage errors
	ErrCodeInternal        ErrorCode = 2000
	ErrCodeMalformedRecord ErrorCode = 2001
	ErrCodeFilesystem      ErrorCode = 2002
	ErrCodeCorruptedData   ErrorCode = 2003

	// Resource errors
	ErrCodeInsufficientSpace ErrorCode = 3000
)

var codeNames = map[ErrorCode]string{
	ErrCodeOK:                  "ok",
	ErrCodeInvalidArgument:     "invalid_argument",
	ErrCodeNonMonotonicVersion: "non_monotonic_version",
	ErrCodeWriteWhileLocked:    "write_while_locked",
	ErrCodeKeyTooLarge:         "key_too_large",
	ErrCodeValueTooLarge:       "value_too_large",
	ErrCodeKeySizeMismatch:     "key_size_mismatch",
	ErrCodeClosed:              "closed",
	ErrCodeInternal:            "internal",
	ErrCodeMalformedRecord:     "malformed_record",
	ErrCodeFilesystem:          "filesystem",
	ErrCodeCorruptedData:       "corrupted_data",
	ErrCodeInsufficientSpace:   "insufficient_space",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code_%d", int(c))
}

// StorageError represents a structured error with code and context
type StorageError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *StorageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// Is reports a match against another StorageError carrying the same code,
// so errors.Is(err, &StorageError{Code: ...}) works through wrapping.
func (e *StorageError) Is(target error) bool {
	t, ok := target.(*StorageError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// GRPCStatus converts StorageError to gRPC status. status.Code and
// status.FromError find it through wrapping.
func (e *StorageError) GRPCStatus() *status.Status {
	return status.New(e.toGRPCCode(), e.Error())
}

// toGRPCCode maps internal error codes to gRPC codes
func (e *StorageError) toGRPCCode() codes.Code {
	switch e.Code {
	case ErrCodeOK:
		return codes.OK
	case ErrCodeInvalidArgument, ErrCodeKeyTooLarge, ErrCodeValueTooLarge, ErrCodeKeySizeMismatch:
		return codes.InvalidArgument
	case ErrCodeNonMonotonicVersion:
		return codes.FailedPrecondition
	case ErrCodeWriteWhileLocked:
		return codes.Aborted
	case ErrCodeClosed:
		return codes.Unavailable
	case ErrCodeMalformedRecord, ErrCodeCorruptedData:
		return codes.DataLoss
	case ErrCodeInsufficientSpace:
		return codes.ResourceExhausted
	default:
		return codes.Internal
	}
}

// NewStorageError creates a new StorageError
func NewStorageError(code ErrorCode, message string, cause error) *StorageError {
	return &StorageError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *StorageError) WithDetail(key string, value interface{}) *StorageError {
	e.Details[key] = value
	return e
}

// Convenience constructors for common errors

func InvalidArgument(message string, cause error) *StorageError {
	return NewStorageError(ErrCodeInvalidArgument, message, cause)
}

func NonMonotonicVersion(op string, requested, current uint32) *StorageError {
	return NewStorageError(ErrCodeNonMonotonicVersion,
		fmt.Sprintf("%s: version %d is not valid against current version %d", op, requested, current), nil).
		WithDetail("op", op).
		WithDetail("requested", requested).
		WithDetail("current", current)
}

func WriteWhileLocked(table string, readers int) *StorageError {
	return NewStorageError(ErrCodeWriteWhileLocked,
		fmt.Sprintf("table %s has %d open iterator(s)", table, readers), nil).
		WithDetail("table", table).
		WithDetail("readers", readers)
}

func KeyTooLarge(size, maxSize int) *StorageError {
	return NewStorageError(ErrCodeKeyTooLarge, fmt.Sprintf("key size %d exceeds maximum %d", size, maxSize), nil).
		WithDetail("size", size).
		WithDetail("max_size", maxSize)
}

func ValueTooLarge(size, maxSize int) *StorageError {
	return NewStorageError(ErrCodeValueTooLarge, fmt.Sprintf("value size %d exceeds maximum %d", size, maxSize), nil).
		WithDetail("size", size).
		WithDetail("max_size", maxSize)
}

func KeySizeMismatch(kind string, expected, actual int) *StorageError {
	return NewStorageError(ErrCodeKeySizeMismatch,
		fmt.Sprintf("%s: expected %d bytes, got %d", kind, expected, actual), nil).
		WithDetail("kind", kind).
		WithDetail("expected", expected).
		WithDetail("actual", actual)
}

func MalformedRecord(path string, offset int64, cause error) *StorageError {
	return NewStorageError(ErrCodeMalformedRecord, fmt.Sprintf("malformed record in %s at offset %d", path, offset), cause).
		WithDetail("path", path).
		WithDetail("offset", offset)
}

func Filesystem(message string, cause error) *StorageError {
	return NewStorageError(ErrCodeFilesystem, message, cause)
}

func CorruptedData(message string, cause error) *StorageError {
	return NewStorageError(ErrCodeCorruptedData, message, cause)
}

func InsufficientSpace(message string) *StorageError {
	return NewStorageError(ErrCodeInsufficientSpace, message, nil)
}

func Closed(table string) *StorageError {
	return NewStorageError(ErrCodeClosed, fmt.Sprintf("table %s is closed", table), nil).
		WithDetail("table", table)
}

func InternalError(message string, cause error) *StorageError {
	return NewStorageError(ErrCodeInternal, message, cause)
}

// IsStorageError checks if an error is, or wraps, a StorageError
func IsStorageError(err error) bool {
	var se *StorageError
	return stderrors.As(err, &se)
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var se *StorageError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err carries the given code anywhere in its chain
func HasCode(err error, code ErrorCode) bool {
	return stderrors.Is(err, &StorageError{Code: code})
}
