// Package engineerr defines the closed error-kind taxonomy shared by every
// engine package, so callers can branch on "what kind of failure was this"
// without depending on a specific package's sentinel values.
package engineerr

import "fmt"

// Kind is a closed set of error categories raised anywhere in the engine.
type Kind string

const (
	// MissingInput is raised when a required target port has neither an
	// incoming edge nor a literal value.
	MissingInput Kind = "missing_input"
	// CycleDetected is raised when the demand-reachable subgraph contains a
	// cycle.
	CycleDetected Kind = "cycle_detected"
	// IncompatibleTypes is raised when an edge would connect incompatible
	// port data types.
	IncompatibleTypes Kind = "incompatible_types"
	// ExecutionFailed wraps any failure surfaced by a task executor.
	ExecutionFailed Kind = "execution_failed"
	// Cancelled is raised when a demand observes a tripped cancel signal.
	Cancelled Kind = "cancelled"
	// NotReady is raised by the gateway or a backend when asked to serve a
	// request before it has become ready.
	NotReady Kind = "not_ready"
	// StartupFailed is raised when a backend fails to start.
	StartupFailed Kind = "startup_failed"
	// OutOfMemory is raised when a backend's output is detected to indicate
	// an out-of-memory condition.
	OutOfMemory Kind = "out_of_memory"
	// HTTPError wraps a failed HTTP call to an inference backend.
	HTTPError Kind = "http_error"
	// Compression is raised by undo-stack compression/decompression
	// failures.
	Compression Kind = "compression"
	// Serialization is raised by graph or snapshot (de)serialization
	// failures.
	Serialization Kind = "serialization"
	// IO is raised by filesystem operations (e.g. the orchestration
	// document store).
	IO Kind = "io"
	// ChannelClosed is raised internally when an event sink's receiver has
	// gone away; callers should log it, never propagate it as failure.
	ChannelClosed Kind = "channel_closed"
	// PortNotFound is raised when an edit references a port that does not
	// exist on a node's type.
	PortNotFound Kind = "port_not_found"
	// WouldCreateCycle is raised when adding an edge would create a cycle
	// in the demand-reachable subgraph.
	WouldCreateCycle Kind = "would_create_cycle"
	// Disabled is raised when a disabled subsystem (e.g. recovery) is
	// invoked.
	Disabled Kind = "disabled"
	// InProgress is raised when an operation that disallows re-entrancy
	// (e.g. recovery) is invoked while already running.
	InProgress Kind = "in_progress"
	// ExhaustedAttempts is raised when a bounded retry loop runs out of
	// attempts without success.
	ExhaustedAttempts Kind = "exhausted_attempts"
	// NoRememberedConfig is raised by Gateway.SwitchMode when no config was
	// ever recorded for the target mode.
	NoRememberedConfig Kind = "no_remembered_config"
	// UnknownBackend is raised by Gateway.SwitchBackend for an
	// unregistered backend name.
	UnknownBackend Kind = "unknown_backend"
	// Paused is raised (not logged as failure) when a node's executor
	// suspends pending external input; the demand engine completes the
	// caller's future with this kind rather than writing a cache entry.
	Paused Kind = "paused"
	// PortConflict is raised when a sidecar's intended port is already
	// bound and no alternate port could be found.
	PortConflict Kind = "port_conflict"
	// ReadinessTimeout is raised when a spawned sidecar doesn't emit its
	// readiness token before the caller's deadline.
	ReadinessTimeout Kind = "readiness_timeout"
	// ProcessExited is raised when a spawned sidecar terminates before
	// becoming ready.
	ProcessExited Kind = "process_exited"
	// GraphNotFound is raised when an orchestration DataGraph node
	// references a data-graph id absent from the graph store.
	GraphNotFound Kind = "graph_not_found"
)

// Error is the concrete error type raised across the engine. It always
// carries a Kind and a human message, and optionally the node id that
// caused it and a wrapped cause.
type Error struct {
	Kind    Kind
	NodeID  string
	Message string
	Cause   error
}

// New builds an Error with no node id or cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithNode returns a copy of e with NodeID set.
func (e *Error) WithNode(nodeID string) *Error {
	cp := *e
	cp.NodeID = nodeID
	return &cp
}

// WithCause returns a copy of e with Cause set.
func (e *Error) WithCause(cause error) *Error {
	cp := *e
	cp.Cause = cause
	return &cp
}

// Error implements the error interface. It never includes a stack trace,
// only the kind, node id (if any), and message.
func (e *Error) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s: node %s: %s", e.Kind, e.NodeID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause, if any, so errors.Is/As chain through.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same Kind, so callers
// can write errors.Is(err, engineerr.New(engineerr.Cancelled, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if as(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// as is a small local equivalent of errors.As for *Error, so this file
// needs no import of the stdlib errors package; it follows single
// Unwrap() chains only.
func as(err error, target **Error) bool {
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
