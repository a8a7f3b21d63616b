package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can react without string matching.
type ErrorKind string

const (
	// KindNotFound - entity absent (facility, monthly row, cached record).
	KindNotFound ErrorKind = "not_found"
	// KindDuplicateCode - unique-key violation on a business key.
	KindDuplicateCode ErrorKind = "duplicate_code"
	// KindInvariantViolation - contract breach (negative capacity, volume above
	// capacity, constant outside bounds).
	KindInvariantViolation ErrorKind = "invariant_violation"
	// KindInputFormat - workbook path not a file, malformed numeric, missing
	// required column.
	KindInputFormat ErrorKind = "input_format"
	// KindStorageBackend - the underlying database failed (distinct from NotFound).
	KindStorageBackend ErrorKind = "storage_backend"
	// KindQuotaExceeded - a bounded queue rejected a record.
	KindQuotaExceeded ErrorKind = "quota_exceeded"
	// KindTimeout - a load or drain deadline elapsed.
	KindTimeout ErrorKind = "timeout"
)

// Error carries an ErrorKind alongside the message, so services can propagate
// a stable classification to API consumers while logging the full chain.
type Error struct {
	Kind ErrorKind
	msg  string
	err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.err
}

// Is matches two domain errors by kind, so
// errors.Is(err, &Error{Kind: KindNotFound}) works as a category check.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NotFoundf builds a KindNotFound error.
func NotFoundf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, msg: fmt.Sprintf(format, args...)}
}

// DuplicateCodef builds a KindDuplicateCode error.
func DuplicateCodef(format string, args ...interface{}) *Error {
	return &Error{Kind: KindDuplicateCode, msg: fmt.Sprintf(format, args...)}
}

// Invariantf builds a KindInvariantViolation error.
func Invariantf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvariantViolation, msg: fmt.Sprintf(format, args...)}
}

// InputFormatf builds a KindInputFormat error.
func InputFormatf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInputFormat, msg: fmt.Sprintf(format, args...)}
}

// StorageError wraps a database failure with KindStorageBackend.
func StorageError(msg string, err error) *Error {
	return &Error{Kind: KindStorageBackend, msg: msg, err: err}
}

// TimeoutError wraps a deadline failure with KindTimeout.
func TimeoutError(msg string, err error) *Error {
	return &Error{Kind: KindTimeout, msg: msg, err: err}
}

// KindOf extracts the ErrorKind from an error chain. Unclassified errors
// report KindStorageBackend, the conservative default for "something broke
// below the domain layer".
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindStorageBackend
}

// IsNotFound reports whether the error chain carries KindNotFound.
func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == KindNotFound
}
