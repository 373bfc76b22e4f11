// Package memerr classifies errors per the taxonomy in §7: components
// never throw across task boundaries, so every error that crosses a
// component boundary is wrapped in one of these typed errors, letting
// callers errors.As/errors.Is to decide whether to reconnect, skip,
// retry, or degrade.
package memerr

import "fmt"

// Class is the error taxonomy category.
type Class string

const (
	// ClassTransportFatal: connection reset, auth failure — triggers reconnect.
	ClassTransportFatal Class = "transport_fatal"
	// ClassTransportTransient: timeout, one-shot read failure — logged and skipped.
	ClassTransportTransient Class = "transport_transient"
	// ClassRateLimited: 429 or a known error-message substring.
	ClassRateLimited Class = "rate_limited"
	// ClassDecode: non-fatal, annotation degrades to {type: unknown}.
	ClassDecode Class = "decode_error"
	// ClassStoreConflict: duplicate key — the competing write already persisted.
	ClassStoreConflict Class = "store_conflict"
	// ClassConfig: fatal at startup.
	ClassConfig Class = "config_error"
)

// Error wraps an underlying error with a taxonomy class and component context.
type Error struct {
	Class     Class
	Component string
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s[%s]", e.Class, e.Component)
	}
	return fmt.Sprintf("%s[%s]: %v", e.Class, e.Component, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error.
func New(class Class, component string, err error) *Error {
	return &Error{Class: class, Component: component, Err: err}
}

// Is reports whether err is classified with the given class, so callers can
// write `if memerr.Is(err, memerr.ClassRateLimited) { ... }` without a type
// assertion.
func Is(err error, class Class) bool {
	var e *Error
	for err != nil {
		if me, ok := err.(*Error); ok {
			e = me
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Class == class
}
