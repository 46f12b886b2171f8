package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindConfig     Kind = "config"
	KindModule     Kind = "module"
	KindDependency Kind = "dependency"
	KindSecurity   Kind = "security"
	KindStorage    Kind = "storage"
	KindRuntime    Kind = "runtime"
)

// Error is a kinded error with an optional module id and a cause chain.
type Error struct {
	Kind     Kind
	ModuleID string // set for KindModule, best-effort elsewhere
	Msg      string
	Err      error
}

func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.ModuleID != "" {
		prefix = fmt.Sprintf("%s [%s]", e.Kind, e.ModuleID)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Msg)
}

// Unwrap exposes the cause chain to errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.Err }

// Configf builds a configuration error.
func Configf(format string, args ...any) *Error {
	return &Error{Kind: KindConfig, Msg: fmt.Sprintf(format, args...)}
}

// Module builds a module error carrying the module id.
func Module(moduleID string, err error, format string, args ...any) *Error {
	return &Error{Kind: KindModule, ModuleID: moduleID, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Dependencyf builds a dependency-resolution error.
func Dependencyf(format string, args ...any) *Error {
	return &Error{Kind: KindDependency, Msg: fmt.Sprintf(format, args...)}
}

// Securityf builds a security error.
func Securityf(format string, args ...any) *Error {
	return &Error{Kind: KindSecurity, Msg: fmt.Sprintf(format, args...)}
}

// Storage wraps a backend failure as a storage error.
func Storage(err error, format string, args ...any) *Error {
	return &Error{Kind: KindStorage, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Runtimef builds a generic runtime error.
func Runtimef(format string, args ...any) *Error {
	return &Error{Kind: KindRuntime, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new error of the given kind.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or KindRuntime if err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindRuntime
}

// IsKind reports whether err (or anything it wraps) has the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
