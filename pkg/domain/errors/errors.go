// Package errors provides structured errors for the taskweave engine.
// Every error carries a machine-readable kind, the module that raised it,
// and optional context for diagnostics.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for machine consumption. Event payloads and
// persisted rows carry the kind next to the verbatim message.
type Kind string

const (
	// KindInvalidGraph covers cycles, duplicate node ids, and dangling
	// node references in a workflow spec.
	KindInvalidGraph Kind = "invalid_graph"
	// KindUnknownTool means a node references a tool that is not registered.
	KindUnknownTool Kind = "unknown_tool"
	// KindUnresolvedInput means an input mapping referenced an upstream
	// node or output field that produced no value.
	KindUnresolvedInput Kind = "unresolved_input"
	// KindInputSchema means resolved inputs violated the tool's input schema.
	KindInputSchema Kind = "input_schema"
	// KindExecution is a failure raised by the tool body itself.
	KindExecution Kind = "execution"
	// KindOutputSchema means the tool returned a shape violating its
	// declared output schema.
	KindOutputSchema Kind = "output_schema"
	// KindCancelled marks cancellation, distinct from generic failure.
	KindCancelled Kind = "cancelled"
	// KindPersistence marks a store failure mid-execution.
	KindPersistence Kind = "persistence"
	// KindAlreadyRegistered marks a tool name collision at registration.
	KindAlreadyRegistered Kind = "already_registered"
	// KindComposition marks schema composition failures.
	KindComposition Kind = "composition"
	// KindConfig marks invalid or missing configuration.
	KindConfig Kind = "config"
)

// Error represents a structured error with kind, module, and context
type Error struct {
	Kind    Kind
	Module  string
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Module != "" {
		return fmt.Sprintf("[%s:%s] %s", e.Module, e.Kind, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error by kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Module != "" && t.Module != e.Module {
		return false
	}
	return e.Kind == t.Kind
}

// WithContext attaches a context value to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new error with the given kind, module, and message
func New(kind Kind, module, message string) *Error {
	return &Error{Kind: kind, Module: module, Message: message}
}

// Newf creates a new error with a formatted message
func Newf(kind Kind, module, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Module: module, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error. The kind of a wrapped engine error is
// preserved so classification survives layering.
func Wrap(err error, kind Kind, module, message string) *Error {
	if err == nil {
		return nil
	}
	var ee *Error
	if errors.As(err, &ee) {
		kind = ee.Kind
	}
	return &Error{Kind: kind, Module: module, Message: message, Cause: err}
}

// InvalidGraph creates a graph validation error. The message is the short
// reason ("cycle", "duplicate id", "unknown node").
func InvalidGraph(module, message string) *Error {
	return New(KindInvalidGraph, module, message)
}

// UnknownTool creates an error for a node referencing an unregistered tool
func UnknownTool(module, name string) *Error {
	return Newf(KindUnknownTool, module, "unknown tool %q", name).WithContext("tool", name)
}

// UnresolvedInput creates an error for a mapping that could not be satisfied
func UnresolvedInput(module, nodeID, reference string) *Error {
	return Newf(KindUnresolvedInput, module, "node %s: unresolved input %q", nodeID, reference).
		WithContext("node_id", nodeID).
		WithContext("reference", reference)
}

// InputSchema creates an error for inputs violating the tool's input schema
func InputSchema(module, nodeID string, cause error) *Error {
	e := Newf(KindInputSchema, module, "node %s: input validation failed: %v", nodeID, cause)
	e.Cause = cause
	return e
}

// OutputSchema creates an error for outputs violating the declared schema
func OutputSchema(module, nodeID string, cause error) *Error {
	e := Newf(KindOutputSchema, module, "node %s: output validation failed: %v", nodeID, cause)
	e.Cause = cause
	return e
}

// Execution wraps a failure raised by a tool body, preserving its message
func Execution(module string, cause error) *Error {
	return &Error{Kind: KindExecution, Module: module, Message: cause.Error(), Cause: cause}
}

// Cancelled creates the distinguished cancellation error
func Cancelled(module string) *Error {
	return New(KindCancelled, module, "cancelled")
}

// Persistence wraps a store failure
func Persistence(module string, cause error) *Error {
	return &Error{
		Kind:    KindPersistence,
		Module:  module,
		Message: fmt.Sprintf("persistence failure: %v", cause),
		Cause:   cause,
	}
}

// AlreadyRegistered creates a registration collision error
func AlreadyRegistered(module, name string) *Error {
	return Newf(KindAlreadyRegistered, module, "tool %q already registered", name).WithContext("tool", name)
}

// Compositionf creates a schema composition error
func Compositionf(module, format string, args ...interface{}) *Error {
	return Newf(KindComposition, module, format, args...)
}

// Configf creates a configuration error
func Configf(module, format string, args ...interface{}) *Error {
	return Newf(KindConfig, module, format, args...)
}

// IsKind reports whether err is an engine error of the given kind
func IsKind(err error, kind Kind) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind == kind
	}
	return false
}

// KindOf returns the kind of an engine error, or KindExecution for
// arbitrary errors
func KindOf(err error) Kind {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return KindExecution
}

// MessageOf returns the bare message of an engine error, or err.Error()
// for arbitrary errors. Event payloads use this so observers see the
// short reason without the module prefix.
func MessageOf(err error) string {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Message
	}
	return err.Error()
}
