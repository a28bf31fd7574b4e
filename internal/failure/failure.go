// Package failure defines the error taxonomy shared by every stage of a run.
//
// Four kinds exist. Configuration errors abort a run before any task is
// scheduled. Geometry, IO and primitive errors are raised inside a tile's
// tasks and are isolated to that tile.
package failure

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks a missing or ambiguous vector layer, bad paths
	// or invalid settings.
	ErrConfiguration = errors.New("configuration error")
	// ErrGeometry marks an invalid or empty cutline after repair, or a
	// feature that cannot be found.
	ErrGeometry = errors.New("geometry error")
	// ErrIO marks read or write failures.
	ErrIO = errors.New("io error")
	// ErrPrimitive marks a numerical primitive rejecting its input, e.g. an
	// all-nodata tile.
	ErrPrimitive = errors.New("primitive failure")
)

// Error attaches an operation and an optional path to one of the kinds.
type Error struct {
	Kind error
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is the error's kind, so errors.Is(err, ErrIO)
// works through any amount of wrapping.
func (e *Error) Is(target error) bool { return e.Kind == target }

func (e *Error) Unwrap() error { return e.Err }

// Configurationf builds a configuration error.
func Configurationf(format string, args ...any) error {
	return &Error{Kind: ErrConfiguration, Err: fmt.Errorf(format, args...)}
}

// Geometryf builds a geometry error.
func Geometryf(format string, args ...any) error {
	return &Error{Kind: ErrGeometry, Err: fmt.Errorf(format, args...)}
}

// Primitivef builds a primitive failure.
func Primitivef(format string, args ...any) error {
	return &Error{Kind: ErrPrimitive, Err: fmt.Errorf(format, args...)}
}

// IO wraps err as an IO error for the given operation and path. A nil err
// stays nil.
func IO(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: ErrIO, Op: op, Path: path, Err: err}
}

// KindOf returns a short label for the error's kind, used in failure reports.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrGeometry):
		return "geometry"
	case errors.Is(err, ErrIO):
		return "io"
	case errors.Is(err, ErrPrimitive):
		return "primitive"
	default:
		return "unknown"
	}
}
