package trashdb

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/Giulio2002/trashdb/engine"
)

// Error represents a trashdb error with an error code
type Error struct {
	Code    ErrorCode
	Message string
	Err     error // wrapped error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("trashdb: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("trashdb: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code, so errors.Is works against
// the Err*Error sentinels regardless of message or wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// ErrorCode classifies trashdb errors
type ErrorCode int

const (
	// Success indicates the operation completed successfully
	Success ErrorCode = iota

	// ErrNotFound indicates the key was not found in the current database
	ErrNotFound

	// ErrDatabaseNotFound indicates no open database has the given name
	ErrDatabaseNotFound

	// ErrOutOfReaderSlots indicates the worker's reader pool is empty
	ErrOutOfReaderSlots

	// ErrInvalidOperation indicates the operation is not allowed in this
	// transaction mode or on this database
	ErrInvalidOperation

	// ErrNoAttachedDatabase indicates the transaction has no current database
	ErrNoAttachedDatabase

	// ErrTxnFull indicates the transaction cannot attach more databases
	ErrTxnFull

	// ErrInvalidName indicates a database name is empty or too long
	ErrInvalidName

	// ErrEnvironmentExists indicates another environment is already open
	// in this process
	ErrEnvironmentExists

	// ErrEnvironmentClosed indicates the environment is closing or closed
	ErrEnvironmentClosed

	// ErrFatal indicates an engine failure the layer cannot recover from:
	// the environment failed to open or a commit failed
	ErrFatal

	// ErrKeyExist indicates a NoOverwrite put hit an existing key
	ErrKeyExist

	// ErrEngine indicates any other engine failure
	ErrEngine
)

// Error descriptions
var errorMessages = map[ErrorCode]string{
	Success:               "success",
	ErrNotFound:           "key not found",
	ErrDatabaseNotFound:   "database not found",
	ErrOutOfReaderSlots:   "out of reader slots",
	ErrInvalidOperation:   "invalid operation",
	ErrNoAttachedDatabase: "no database attached to transaction",
	ErrTxnFull:            "transaction database capacity reached",
	ErrInvalidName:        "invalid database name",
	ErrEnvironmentExists:  "environment already open",
	ErrEnvironmentClosed:  "environment closed",
	ErrFatal:              "fatal engine error",
	ErrKeyExist:           "key already exists",
	ErrEngine:             "engine error",
}

// NewError creates a new Error with the given code
func NewError(code ErrorCode) *Error {
	msg, ok := errorMessages[code]
	if !ok {
		msg = fmt.Sprintf("unknown error code %d", code)
	}
	return &Error{Code: code, Message: msg}
}

// WrapError creates a new Error wrapping another error
func WrapError(code ErrorCode, err error) *Error {
	e := NewError(code)
	e.Err = err
	return e
}

// errorf creates an Error whose message carries extra context.
func errorf(code ErrorCode, format string, args ...any) *Error {
	e := NewError(code)
	e.Message = e.Message + ": " + fmt.Sprintf(format, args...)
	return e
}

// Common error variables for use with errors.Is
var (
	ErrNotFoundError           = NewError(ErrNotFound)
	ErrDatabaseNotFoundError   = NewError(ErrDatabaseNotFound)
	ErrOutOfReaderSlotsError   = NewError(ErrOutOfReaderSlots)
	ErrInvalidOperationError   = NewError(ErrInvalidOperation)
	ErrNoAttachedDatabaseError = NewError(ErrNoAttachedDatabase)
	ErrTxnFullError            = NewError(ErrTxnFull)
	ErrInvalidNameError        = NewError(ErrInvalidName)
	ErrEnvironmentExistsError  = NewError(ErrEnvironmentExists)
	ErrEnvironmentClosedError  = NewError(ErrEnvironmentClosed)
	ErrFatalError              = NewError(ErrFatal)
	ErrKeyExistError           = NewError(ErrKeyExist)
)

// IsNotFound returns true if the error is ErrNotFound
func IsNotFound(err error) bool {
	return Code(err) == ErrNotFound
}

// IsFatal returns true if the error is ErrFatal. A fatal error leaves the
// environment in a state the caller should not keep using.
func IsFatal(err error) bool {
	return Code(err) == ErrFatal
}

// IsOutOfReaderSlots returns true if the error is ErrOutOfReaderSlots
func IsOutOfReaderSlots(err error) bool {
	return Code(err) == ErrOutOfReaderSlots
}

// wrapEngine maps an engine error onto an *Error.
func wrapEngine(err error) error {
	switch {
	case err == nil:
		return nil
	case engine.IsNotFound(err):
		return ErrNotFoundError
	case errors.Is(err, engine.ErrKeyExist):
		return ErrKeyExistError
	}
	return WrapError(ErrEngine, err)
}

// Code returns the error code from an error, or ErrEngine if not a trashdb error
func Code(err error) ErrorCode {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrEngine
}
