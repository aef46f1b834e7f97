// Package failure classifies the ways a question can fail so callers can
// decide between reporting, degrading and exiting.
package failure

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable failure category.
type Kind string

const (
	// Configuration means credentials or settings are missing; fatal at startup.
	Configuration Kind = "configuration"
	// SchemaUnavailable means neither introspection nor the context document produced a schema.
	SchemaUnavailable Kind = "schema_unavailable"
	// CompletionService means the completion endpoint failed after retries.
	CompletionService Kind = "completion_service"
	// Validation means generated text was rejected before reaching the store.
	Validation Kind = "validation"
	// Execution means the store rejected or timed out the statement.
	Execution Kind = "execution"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// KindOf returns the kind of the outermost *E in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *E
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the human-friendly message of the outermost *E, falling
// back to err.Error().
func Message(err error) string {
	var e *E
	if errors.As(err, &e) {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
