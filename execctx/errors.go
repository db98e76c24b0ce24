// Package execctx defines the per-invocation execution context passed to
// the sandbox, the effect types it accumulates, and the runtime error
// taxonomy shared across the sandbox, suspension, and orchestrator layers.
package execctx

import "fmt"

// ErrorKind classifies a RuntimeError per spec §7.
type ErrorKind int

const (
	Timeout ErrorKind = iota
	MemoryLimit
	ResourceLimit
	CompilationError
	ExecutionError
	PermissionDenied
	ExtensionNotFound
	MethodNotFound
	InvalidHandler
	InternalError
)

func (k ErrorKind) String() string {
	switch k {
	case Timeout:
		return "TIMEOUT"
	case MemoryLimit:
		return "MEMORY_LIMIT"
	case ResourceLimit:
		return "RESOURCE_LIMIT"
	case CompilationError:
		return "COMPILATION_ERROR"
	case ExecutionError:
		return "EXECUTION_ERROR"
	case PermissionDenied:
		return "PERMISSION_DENIED"
	case ExtensionNotFound:
		return "EXTENSION_NOT_FOUND"
	case MethodNotFound:
		return "METHOD_NOT_FOUND"
	case InvalidHandler:
		return "INVALID_HANDLER"
	case InternalError:
		return "INTERNAL_ERROR"
	default:
		return "UNKNOWN"
	}
}

// SourceLocation optionally pinpoints where in handler source an error
// occurred, per spec §6.5.
type SourceLocation struct {
	Line          int    `json:"line"`
	Column        int    `json:"column"`
	SourceSnippet string `json:"sourceSnippet,omitempty"`
}

// RuntimeError is the error record carried on ExecutionResult.Error and
// rendered on the wire per spec §6.5 / §7.
type RuntimeError struct {
	Kind     ErrorKind
	Message  string
	Location *SourceLocation
	Err      error // wrapped cause, if any
}

func (e *RuntimeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError builds a RuntimeError of the given kind.
func NewRuntimeError(kind ErrorKind, message string) *RuntimeError {
	return &RuntimeError{Kind: kind, Message: message}
}

// WrapRuntimeError builds a RuntimeError wrapping an underlying cause.
func WrapRuntimeError(kind ErrorKind, message string, cause error) *RuntimeError {
	return &RuntimeError{Kind: kind, Message: message, Err: cause}
}

// terminalKinds are error kinds that cannot be caught by handler code and
// always end the invocation (spec §7).
var terminalKinds = map[ErrorKind]bool{
	Timeout:          true,
	MemoryLimit:      true,
	ResourceLimit:    true,
	CompilationError: true,
	InvalidHandler:   true,
	InternalError:    true,
}

// IsTerminal reports whether this error kind is enforced outside the
// handler and therefore cannot be caught.
func (k ErrorKind) IsTerminal() bool {
	return terminalKinds[k]
}

// Catchable reports whether this error kind is raised inside the
// interpreter, making it observable to a handler-level try/catch.
func (k ErrorKind) Catchable() bool {
	switch k {
	case PermissionDenied, ExtensionNotFound, MethodNotFound:
		return true
	default:
		return false
	}
}
