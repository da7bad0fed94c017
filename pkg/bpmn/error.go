package bpmn

import "fmt"

// Kind is the error taxonomy callers and the executor reason about.
// EngineError.Error prefixes its text with the Kind, but callers switch on
// the Kind value (see KindOf) rather than parse the string.
type Kind string

const (
	KindParseError        Kind = "ParseError"
	KindInvalidDefinition Kind = "InvalidDefinition"
	KindMalformedProcess  Kind = "MalformedProcess"
	KindDelegateFailure   Kind = "DelegateFailure"
	KindStoreError        Kind = "StoreError"
	KindNotFound          Kind = "NotFound"
	KindConflict          Kind = "Conflict"
	KindValidationError   Kind = "ValidationError"
)

// EngineError is the one error type the engine returns across every layer;
// Kind distinguishes the taxonomy from spec, message carries the detail,
// and cause (if any) wraps the underlying error for errors.Unwrap.
type EngineError struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *EngineError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.cause
}

func newEngineErrorf(kind Kind, format string, args ...interface{}) *EngineError {
	return &EngineError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapEngineError(kind Kind, cause error, format string, args ...interface{}) *EngineError {
	return &EngineError{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// KindOf returns the Kind of err if it is (or wraps) an *EngineError, and
// ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var ee *EngineError
	for err != nil {
		if e, isEE := err.(*EngineError); isEE {
			ee = e
			break
		}
		u, isUnwrap := err.(interface{ Unwrap() error })
		if !isUnwrap {
			break
		}
		err = u.Unwrap()
	}
	if ee == nil {
		return "", false
	}
	return ee.Kind, true
}
