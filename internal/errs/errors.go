// Package errs provides the unified error type used across all of protodb.
//
// Every subsystem (catalog drivers, compiler, config, file store, ...) wraps its
// native errors into *errs.Error before returning them to callers. Callers use
// the Is* predicates to decide whether a failure is fatal for the whole run,
// fatal for one schema, or merely logged.
//
// Usage:
//
//	// In a driver, wrap native errors:
//	return errs.Wrap(errs.ErrKindQueryFailed, "list columns", pgErr)
//
//	// In the generator, classify:
//	if errs.IsMigration(err) {
//	    log.Warnf("table stays unversioned: %v", err)
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
// All backends (PostgreSQL, MySQL, MinIO, ...) map their native errors to one
// of these kinds, giving callers a single consistent API.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindNotFound                 // no rows, no object, unknown table
	ErrKindConnectionFailed         // cannot reach the backend
	ErrKindTimeout                  // context deadline / cancellation
	ErrKindQueryFailed              // SQL or storage operation error
	ErrKindInvalidInput             // bad arguments from the caller
	ErrKindPermissionDenied         // access denied / auth failure
	ErrKindCatalog                  // catalog returned a result of unexpected shape
	ErrKindConfig                   // invalid or unresolvable configuration
	ErrKindParse                    // SQL text the compiler cannot handle
	ErrKindContract                 // placeholder naming a column the table lacks
	ErrKindMigration                // best-effort schema change failed
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindCatalog:
		return "catalog"
	case ErrKindConfig:
		return "config"
	case ErrKindParse:
		return "parse"
	case ErrKindContract:
		return "contract"
	case ErrKindMigration:
		return "migration"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all protodb subsystems.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with a format string.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// --- Predicates ---

// IsNotFound reports whether err represents a "not found" result.
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return KindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a backend operation failure.
func IsQueryFailed(err error) bool {
	return KindOf(err) == ErrKindQueryFailed
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == ErrKindPermissionDenied
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool {
	return KindOf(err) == ErrKindConfig
}

// IsParse reports whether err is a SQL parse error.
func IsParse(err error) bool {
	return KindOf(err) == ErrKindParse
}

// IsContract reports whether err is a query builder contract violation.
func IsContract(err error) bool {
	return KindOf(err) == ErrKindContract
}

// IsMigration reports whether err is a failed best-effort migration.
func IsMigration(err error) bool {
	return KindOf(err) == ErrKindMigration
}

// IsCatalogAccess reports whether err came from talking to the live catalog:
// connection, query, timeout, permission or result-shape failures.
func IsCatalogAccess(err error) bool {
	switch KindOf(err) {
	case ErrKindConnectionFailed, ErrKindQueryFailed, ErrKindTimeout,
		ErrKindPermissionDenied, ErrKindCatalog:
		return true
	}
	return false
}

// KindOf extracts the ErrKind from the first *Error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
