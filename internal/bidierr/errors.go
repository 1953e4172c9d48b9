// Package bidierr defines the BiDi error codes the mapper core raises as
// a small typed-error hierarchy: one Error struct carrying a Kind enum
// other packages can switch on, instead of a separate struct per case.
package bidierr

import "fmt"

// Kind is one of the WebDriver BiDi error codes this core can raise.
type Kind string

const (
	InvalidArgument       Kind = "invalid argument"
	NoSuchFrame           Kind = "no such frame"
	NoSuchHistoryEntry    Kind = "no such history entry"
	NoSuchElement         Kind = "no such element"
	NoSuchNode            Kind = "no such node"
	NoSuchIntercept       Kind = "no such intercept"
	NoSuchRequest         Kind = "no such request"
	UnableToCaptureScreen Kind = "unable to capture screen"
	MoveTargetOutOfBounds Kind = "move target out of bounds"
	UnsupportedOperation  Kind = "unsupported operation"
	UnknownError          Kind = "unknown error"
)

// Error is a BiDi protocol error: a Kind plus a human-readable message. It
// maps directly onto the {id, error, message} response envelope.
type Error struct {
	Kind    Kind
	Message string
	// Cause is the underlying error, if any (e.g. a CDP error being
	// remapped). Unwrap exposes it for errors.Is/As.
	Cause error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with the given kind and formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error that carries an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// As extracts a *Error from err, if any is present in its chain.
func As(err error) (*Error, bool) {
	var be *Error
	if e, ok := err.(*Error); ok {
		return e, true
	}
	_ = be
	type wrapper interface{ Unwrap() error }
	for {
		w, ok := err.(wrapper)
		if !ok {
			return nil, false
		}
		err = w.Unwrap()
		if e, ok := err.(*Error); ok {
			return e, true
		}
		if err == nil {
			return nil, false
		}
	}
}

// Convenience constructors for the common cases, named after the scenario
// that raises them.

func InvalidArgumentf(format string, args ...any) *Error {
	return New(InvalidArgument, format, args...)
}

func NoSuchFrameErr(filter string) *Error {
	return New(NoSuchFrame, "no realm matches filter %s", filter)
}

func NoSuchHistoryEntryErr(delta int) *Error {
	return New(NoSuchHistoryEntry, "no history entry at delta %d", delta)
}

func NoSuchInterceptErr(id string) *Error {
	return New(NoSuchIntercept, "intercept %q not found", id)
}

func NoSuchRequestErr(id string) *Error {
	return New(NoSuchRequest, "request %q not found", id)
}

func MoveTargetOutOfBoundsErr(x, y float64) *Error {
	return New(MoveTargetOutOfBounds, "computed target (%.2f, %.2f) is out of bounds", x, y)
}

func UnsupportedOperationErr(what string) *Error {
	return New(UnsupportedOperation, "%s is not supported", what)
}

func UnknownErrorf(format string, args ...any) *Error {
	return New(UnknownError, format, args...)
}
