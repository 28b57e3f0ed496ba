// Package event implements the Event Sink: the engine's single channel
// for observing demand execution from the outside (editor UIs, logs,
// metrics). Every event carries an execution id and, where relevant, a
// node id, so subscribers can reconstruct per-node causal order even
// when multiple nodes execute concurrently.
package event

import "time"

// Kind is the closed set of event variants a Sink can emit.
type Kind string

const (
	KindWorkflowStarted              Kind = "workflow_started"
	KindWorkflowCompleted             Kind = "workflow_completed"
	KindWorkflowFailed                Kind = "workflow_failed"
	KindTaskStarted                   Kind = "task_started"
	KindTaskProgress                  Kind = "task_progress"
	KindTaskStream                    Kind = "task_stream"
	KindTaskCompleted                 Kind = "task_completed"
	KindTaskFailed                    Kind = "task_failed"
	KindWaitingForInput               Kind = "waiting_for_input"
	KindGraphModified                 Kind = "graph_modified"
	KindIncrementalExecutionStarted   Kind = "incremental_execution_started"

	// Sidecar process multiplexing (§4.8).
	KindSidecarStdout     Kind = "sidecar_stdout"
	KindSidecarStderr     Kind = "sidecar_stderr"
	KindSidecarError      Kind = "sidecar_error"
	KindSidecarTerminated Kind = "sidecar_terminated"

	// Health monitor (§4.9).
	KindHealthCheckResult    Kind = "health_check_result"
	KindHealthBecameOK       Kind = "health_became_ok"
	KindHealthBecameUnhealthy Kind = "health_became_unhealthy"

	// Recovery manager (§4.10).
	KindRecoveryStarted  Kind = "recovery_started"
	KindRecoveryAttempt  Kind = "recovery_attempt"
	KindRecoveryComplete Kind = "recovery_complete"

	// Orchestration executor (§4.11). These interleave with the Task*
	// events emitted by the data-graph demand engine a DataGraph node
	// runs, so subscribers can reconstruct the two-level causal order.
	KindOrchestrationStarted     Kind = "orchestration_started"
	KindOrchestrationNodeEntered Kind = "orchestration_node_entered"
	KindOrchestrationNodeExited  Kind = "orchestration_node_exited"
	KindOrchestrationCompleted   Kind = "orchestration_completed"
	KindOrchestrationFailed      Kind = "orchestration_failed"
)

// Event is the single envelope type emitted to a Sink. Fields not
// relevant to Kind are left zero.
type Event struct {
	Kind        Kind
	ExecutionID string
	NodeID      string
	Timestamp   time.Time

	// Progress is set for TaskProgress, in [0, 1].
	Progress float64
	// Chunk is set for TaskStream, one partial output increment.
	Chunk any
	// Output is set for TaskCompleted.
	Output any
	// Err is set for WorkflowFailed/TaskFailed.
	Err error
	// Prompt is set for WaitingForInput, describing what's needed.
	Prompt string
	// Message is a free-form human-readable description, set on most
	// kinds for logging/display purposes.
	Message string

	// SidecarName identifies the supervised process for Sidecar* and
	// Recovery* kinds.
	SidecarName string
	// Data carries one Stdout/Stderr line for Sidecar* kinds.
	Data string
	// ExitCode is set for SidecarTerminated; nil if no process state was
	// recorded, and -1 for a process ended by a signal (including a kill).
	ExitCode *int
	// LatencyMS is set for HealthCheckResult.
	LatencyMS int64
	// Healthy is set for HealthCheckResult/HealthBecame* kinds.
	Healthy bool
	// Attempt is set for RecoveryAttempt/RecoveryComplete, the 0-indexed
	// attempt number.
	Attempt int
	// Strategy names the recovery strategy applied for RecoveryAttempt.
	Strategy string
}

// Sink receives Events. Publish must never block the demand engine: a
// slow or gone subscriber degrades to dropped events (reported as
// engineerr.ChannelClosed through the sink's own logger), never to a
// stalled workflow.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(Event)

// Publish implements Sink.
func (f SinkFunc) Publish(e Event) { f(e) }

// NullSink discards every event. It is the default Sink when a caller
// doesn't care about observability.
type NullSink struct{}

// Publish implements Sink by doing nothing.
func (NullSink) Publish(Event) {}
