// Package errs defines the error taxonomy shared by every component of the
// OCR pipeline: Input, Transient, Transport, Configuration, Parse, Pipeline,
// Fatal. Components wrap underlying causes with these kinds so callers can
// branch with errors.Is/As without parsing strings.
package errs

import "fmt"

// Kind categorizes an error for propagation and logging decisions.
type Kind string

const (
	KindInput         Kind = "input"
	KindTransient      Kind = "transient"
	KindTransport      Kind = "transport"
	KindConfiguration  Kind = "configuration"
	KindParse          Kind = "parse"
	KindPipeline       Kind = "pipeline"
	KindFatal          Kind = "fatal"
)

// Error is a categorized error carrying an optional wrapped cause.
type Error struct {
	Kind    Kind
	Op      string // component/operation that raised it, e.g. "imaging.Validate"
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error of the same Kind, so
// errors.Is(err, errs.ErrCorrupted) matches any KindInput error, not only
// that sentinel. Callers more commonly use KindOf to retrieve Kind directly.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func Wrap(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

// KindOf extracts the Kind of err if it (or something it wraps) is an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind, true
	}
	return "", false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Sentinel error values named in spec.md, used with errors.Is.
var (
	ErrEmptyInput      = New(KindInput, "imaging.Validate", "Empty image content")
	ErrOversizedInput  = New(KindInput, "imaging.Validate", "Image size exceeds limit")
	ErrCorrupted       = New(KindInput, "imaging.Decode", "Corrupted")
	ErrNotConfigured   = New(KindConfiguration, "objectstore", "bucket not configured")
	ErrNoProviders     = New(KindConfiguration, "vision", "NoProvidersConfigured")
	ErrAllProviders    = New(KindTransient, "vision", "All AI providers failed")
)
