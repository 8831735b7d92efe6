// Package main - errors.go
//
// Error taxonomy for a run. Only window discovery is retried; every error defined
// here ends the run. Running out of matches and operator cancellation are terminal
// states of the controller, not errors.
package main

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a fatal run error
type ErrorKind int

const (
	StartupFailure   ErrorKind = iota // Pattern missing/unreadable, backend unavailable
	CaptureFailure                    // Screen capture failed mid-run
	InjectionFailure                  // Pointer or keyboard injection failed mid-run
	MatchFailure                      // Frame could not be matched (e.g. smaller than pattern)
)

// String returns the string representation of the kind
func (k ErrorKind) String() string {
	switch k {
	case StartupFailure:
		return "StartupFailure"
	case CaptureFailure:
		return "CaptureFailure"
	case InjectionFailure:
		return "InjectionFailure"
	case MatchFailure:
		return "MatchFailure"
	default:
		return "Unknown"
	}
}

// ErrFrameTooSmall is returned when a frame cannot hold the pattern at any offset
var ErrFrameTooSmall = errors.New("frame smaller than pattern")

// ErrFlatPattern is returned for a reference image with a single colour
var ErrFlatPattern = errors.New("pattern has no contrast (single colour)")

// ClickerError carries the kind and the failed operation alongside the cause.
type ClickerError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *ClickerError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *ClickerError) Unwrap() error { return e.Err }

func newError(kind ErrorKind, op string, err error) *ClickerError {
	return &ClickerError{Kind: kind, Op: op, Err: err}
}

// IsKind reports whether err is a ClickerError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ce *ClickerError
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}
