package geolocation

import (
	"context"
	"errors"
	"fmt"
)

// Code is the numeric error code reported by location providers.
type Code int

const (
	CodePermissionDenied    Code = 1
	CodePositionUnavailable Code = 2
	CodeTimeout             Code = 3
)

type Reason int

const (
	ReasonUnknown Reason = iota
	ReasonPermissionDenied
	ReasonPositionUnavailable
	ReasonTimedOut
	ReasonUnsupported
)

// Error is a classified geolocation failure.
type Error struct {
	Reason Reason
	Code   Code
	Err    error
}

// NewError classifies a provider error code.
func NewError(code Code) *Error {
	e := &Error{Code: code}
	switch code {
	case CodePermissionDenied:
		e.Reason = ReasonPermissionDenied
	case CodePositionUnavailable:
		e.Reason = ReasonPositionUnavailable
	case CodeTimeout:
		e.Reason = ReasonTimedOut
	default:
		e.Reason = ReasonUnknown
	}
	return e
}

func Unsupported() *Error {
	return &Error{Reason: ReasonUnsupported}
}

func (e *Error) Error() string {
	switch e.Reason {
	case ReasonPermissionDenied:
		return "Permission denied by user"
	case ReasonPositionUnavailable:
		return "Position unavailable (no signal)"
	case ReasonTimedOut:
		return "Request timed out"
	case ReasonUnsupported:
		return "Geolocation is not supported"
	}
	if e.Code != 0 {
		return fmt.Sprintf("Location error: %d", e.Code)
	}
	if e.Err != nil {
		return "Location error: " + e.Err.Error()
	}
	return "Location error: unknown"
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Classify turns any error returned by a provider into an *Error.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Reason: ReasonTimedOut, Code: CodeTimeout, Err: err}
	}
	return &Error{Reason: ReasonUnknown, Err: err}
}

// IsTimeout reports whether err is a timed-out geolocation failure.
func IsTimeout(err error) bool {
	ge := Classify(err)
	return ge != nil && ge.Reason == ReasonTimedOut
}
