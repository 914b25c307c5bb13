// Package werror defines the typed error kinds produced by the write-command
// core. Every terminal or per-operation error the core raises is one of a
// closed set of kinds so that callers can branch on cause rather than on
// message text.
package werror

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies why an operation failed, independent of the BSON error
// code a server may additionally report.
type Kind int

const (
	// InvalidArg means a write concern (or other caller-supplied argument)
	// was rejected before any I/O took place.
	InvalidArg Kind = iota
	// EmptyBatch means an executor was invoked with zero operations.
	EmptyBatch
	// TooLarge means a single document exceeded max_bson_obj_size even on
	// its own. Carries server error code 2.
	TooLarge
	// MalformedUpdate means a non-operator update document had a dollar or
	// dotted top-level key, or contained invalid UTF-8.
	MalformedUpdate
	// TransportFailure means a send or receive call returned an error.
	TransportFailure
	// ServerWriteError wraps a per-operation error reported in a reply's
	// writeErrors array.
	ServerWriteError
	// ServerWriteConcernError wraps a writeConcernError reported in a reply.
	ServerWriteConcernError
)

func (k Kind) String() string {
	switch k {
	case InvalidArg:
		return "InvalidArg"
	case EmptyBatch:
		return "EmptyBatch"
	case TooLarge:
		return "TooLarge"
	case MalformedUpdate:
		return "MalformedUpdate"
	case TransportFailure:
		return "TransportFailure"
	case ServerWriteError:
		return "ServerWriteError"
	case ServerWriteConcernError:
		return "ServerWriteConcernError"
	default:
		return "Unknown"
	}
}

// TooLargeCode is the server error code synthesized for oversized documents.
const TooLargeCode = 2

// Error is the concrete error type returned by the core. Code is the BSON
// error code when one is known (0 otherwise); Message is a human-readable
// description.
type Error struct {
	Kind    Kind
	Code    int32
	Message string
	cause   error
}

// New builds an *Error with no wrapped cause.
func New(kind Kind, code int32, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap builds an *Error that carries an underlying cause, used for
// TransportFailure where a send/recv call itself returned an error. The
// cause is annotated with github.com/pkg/errors.WithStack, which records
// the call stack at the point Wrap is called; formatting Unwrap() with %+v
// prints that stack, while Error() prints only the messages.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: errors.WithStack(cause)}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s: %s (code %d)", e.Kind, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause, if any, for errors.Is/As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Cause returns the root cause beneath any github.com/pkg/errors stack
// annotation, or nil if this Error carries none.
func (e *Error) Cause() error {
	if e == nil || e.cause == nil {
		return nil
	}
	return errors.Cause(e.cause)
}

// Is reports whether target is an *Error with the same Kind, so callers can
// do errors.Is(err, werror.New(werror.TooLarge, 0, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}
