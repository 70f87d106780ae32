// Package errors provides structured error types for realmstore.
// All errors include a category, code, message, and retryable flag; errors
// raised against a specific store also carry its canonical path.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by failure domain.
type ErrorCategory string

const (
	ErrCategoryVersion    ErrorCategory = "VERSION"
	ErrCategoryMigration  ErrorCategory = "MIGRATION"
	ErrCategoryState      ErrorCategory = "STATE"
	ErrCategorySchema     ErrorCategory = "SCHEMA"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Version codes
	CodeVersionDowngrade = "VERSION_DOWNGRADE"

	// Migration codes
	CodeMigrationNeeded = "MIGRATION_NEEDED"
	CodeProcedureFailed = "PROCEDURE_FAILED"
	CodeInvalidChange   = "INVALID_CHANGE"

	// State codes
	CodeMigrationConflict = "MIGRATION_CONFLICT"
	CodeStoreInUse        = "STORE_IN_USE"
	CodeStoreClosed       = "STORE_CLOSED"

	// Schema codes
	CodeInvalidSchema = "INVALID_SCHEMA"

	// Storage codes
	CodeStorageFailed     = "STORAGE_FAILED"
	CodeStoreBusy         = "STORE_BUSY"
	CodeNullValuesPresent = "NULL_VALUES_PRESENT"
	CodeSnapshotFailed    = "SNAPSHOT_FAILED"

	// Validation codes
	CodeRequiredField       = "REQUIRED_FIELD"
	CodeDuplicatePrimaryKey = "DUPLICATE_PRIMARY_KEY"
	CodeUnknownField        = "UNKNOWN_FIELD"
	CodeInvalidValue        = "INVALID_VALUE"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// DetailMismatches is the Details key holding every mismatch message of a
// failed verification, in report order.
const DetailMismatches = "mismatches"

// Sentinels for errors.Is matching by category and code.
var (
	ErrVersionDowngrade    = New(ErrCategoryVersion, CodeVersionDowngrade, "schema version downgrade")
	ErrMigrationNeeded     = New(ErrCategoryMigration, CodeMigrationNeeded, "migration needed")
	ErrProcedureFailed     = New(ErrCategoryMigration, CodeProcedureFailed, "migration procedure failed")
	ErrMigrationConflict   = New(ErrCategoryState, CodeMigrationConflict, "migration conflict")
	ErrStoreInUse          = New(ErrCategoryState, CodeStoreInUse, "store in use")
	ErrStoreClosed         = New(ErrCategoryState, CodeStoreClosed, "store closed")
	ErrInvalidSchema       = New(ErrCategorySchema, CodeInvalidSchema, "invalid schema")
	ErrNullValuesPresent   = New(ErrCategoryStorage, CodeNullValuesPresent, "null values present")
	ErrRequiredField       = New(ErrCategoryValidation, CodeRequiredField, "required field")
	ErrDuplicatePrimaryKey = New(ErrCategoryValidation, CodeDuplicatePrimaryKey, "duplicate primary key")
	ErrUnknownField        = New(ErrCategoryValidation, CodeUnknownField, "unknown field")
)

// Error is the structured error type used throughout the system.
type Error struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Path      string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new Error.
func New(category ErrorCategory, code, message string) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// WithPath returns a copy of the error bound to a store path.
func (e *Error) WithPath(path string) *Error {
	cp := *e
	cp.Path = path
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not an *Error.
func GetCategory(err error) ErrorCategory {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not an *Error.
func GetCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// GetPath extracts the store path from an error chain.
func GetPath(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Path
	}
	return ""
}

// Mismatches returns every mismatch message recorded on a migration-needed error.
func Mismatches(err error) []string {
	var e *Error
	if !errors.As(err, &e) || e.Details == nil {
		return nil
	}
	if list, ok := e.Details[DetailMismatches].([]string); ok {
		return list
	}
	return nil
}

// isRetryable determines if an error code is retryable. Only lock contention
// on the store file clears by itself; schema errors never do.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeStoreBusy:
		return true
	case category == ErrCategoryStorage && code == CodeSnapshotFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewVersionDowngrade(path string, stored, expected int64) *Error {
	return New(ErrCategoryVersion, CodeVersionDowngrade,
		fmt.Sprintf("Provided schema version %d is less than last set version %d.", expected, stored)).WithPath(path)
}

// NewMigrationNeeded builds the open failure for a schema mismatch. The message
// is the first mismatch; all of them are kept in Details.
func NewMigrationNeeded(path string, mismatches []string) *Error {
	msg := "migration needed"
	if len(mismatches) > 0 {
		msg = mismatches[0]
	}
	return New(ErrCategoryMigration, CodeMigrationNeeded, msg).
		WithPath(path).
		WithDetails(map[string]interface{}{DetailMismatches: mismatches})
}

func NewProcedureFailed(path string, cause error) *Error {
	return Wrap(ErrCategoryMigration, CodeProcedureFailed, "migration procedure failed", cause).WithPath(path)
}

func NewMigrationConflict(path string) *Error {
	return New(ErrCategoryState, CodeMigrationConflict,
		"cannot migrate a store that is already open; close every handle first").WithPath(path)
}

func NewStoreInUse(path, message string) *Error {
	return New(ErrCategoryState, CodeStoreInUse, message).WithPath(path)
}

func NewInvalidSchema(message string, cause error) *Error {
	return Wrap(ErrCategorySchema, CodeInvalidSchema, message, cause)
}

func NewInvalidChange(message string) *Error {
	return New(ErrCategoryMigration, CodeInvalidChange, message)
}

func NewStorageError(code, message string, cause error) *Error {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewValidationError(code, message string) *Error {
	return New(ErrCategoryValidation, code, message)
}

func NewInternalError(message string, cause error) *Error {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
