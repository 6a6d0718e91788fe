package workflow

// EventType discriminates the events of an execution stream.
type EventType string

const (
	// EventStart opens the stream after the workflow row reaches RUNNING.
	EventStart EventType = "start"
	// EventNodeStarted marks a node being dispatched. Optional.
	EventNodeStarted EventType = "node_started"
	// EventNodeCompleted carries the node's outputs and overall progress.
	EventNodeCompleted EventType = "node_completed"
	// EventNodeFailed reports the first fatal node failure. At most one
	// per stream.
	EventNodeFailed EventType = "node_failed"
	// EventWorkflowCompleted carries the full result map. Exclusive with
	// EventWorkflowFailed.
	EventWorkflowCompleted EventType = "workflow_completed"
	// EventWorkflowFailed carries the fatal error.
	EventWorkflowFailed EventType = "workflow_failed"
	// EventComplete terminates every stream, success or failure.
	EventComplete EventType = "complete"
)

// Event is one element of the finite event stream produced by Execute.
type Event struct {
	Type       EventType `json:"type"`
	WorkflowID string    `json:"workflow_id,omitempty"`
	NodeID     string    `json:"node_id,omitempty"`
	TotalNodes int       `json:"total_nodes,omitempty"`
	// Progress is completed nodes over total nodes, in [0, 1].
	Progress float64                `json:"progress,omitempty"`
	Outputs  map[string]interface{} `json:"outputs,omitempty"`
	// Results maps node id to outputs on workflow_completed.
	Results map[string]map[string]interface{} `json:"results,omitempty"`
	// Error is the verbatim failure message; ErrorKind its classification.
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}
