// Package workflow holds the core domain types of taskweave: tool
// contracts, workflow specs, execution records, and the DAG planner.
package workflow

import (
	"context"
	"time"
)

// Category groups tools by their execution profile.
type Category string

const (
	// CategoryUtility is a lightweight in-process tool.
	CategoryUtility Category = "UTILITY"
	// CategoryHeavy is a resource-intensive tool. Heavy tools require
	// isolation unless the contract says otherwise.
	CategoryHeavy Category = "HEAVY"
	// CategoryAdmin is an operator-facing tool.
	CategoryAdmin Category = "ADMIN"
)

// ToolContract describes a tool: its identity, its JSON-Schema input and
// output shapes, and how its outputs feed downstream tools in a pipeline.
type ToolContract struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	// InputSchema and OutputSchema are decoded JSON-Schema documents.
	// Both must describe objects.
	InputSchema  map[string]interface{} `json:"inputSchema"`
	OutputSchema map[string]interface{} `json:"outputSchema"`
	// Dependencies names tools whose outputs this tool consumes. Used by
	// schema composition, not by the planner.
	Dependencies []string `json:"dependencies,omitempty"`
	// OutputMappings maps output field -> input field name it satisfies
	// on downstream tools.
	OutputMappings map[string]string `json:"outputMappings,omitempty"`
	// RequiresIsolation asks the engine for an isolation handle before
	// the tool runs. Defaults to true for HEAVY tools.
	RequiresIsolation bool `json:"requiresIsolation"`
}

// Tool is the plug-in interface executed by the engine. Implementations
// receive decoded-JSON inputs and return decoded-JSON outputs.
type Tool interface {
	Contract() ToolContract
	Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error)
}

// NodeSpec is one node of a submitted workflow.
type NodeSpec struct {
	NodeID string `json:"node_id"`
	Tool   string `json:"tool"`
	// LiteralInputs are constants supplied by the submitter.
	LiteralInputs map[string]interface{} `json:"literal_inputs,omitempty"`
	// InputMappings wires upstream outputs into this node:
	// "<upstream_node_id>.<output_field>" -> local input field.
	InputMappings map[string]string `json:"input_mappings,omitempty"`
}

// Edge is an explicit ordering constraint between two nodes.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Spec is a submitted workflow: a set of nodes plus explicit edges.
// Edges implied by input mappings are unioned in by the planner.
type Spec struct {
	Nodes []NodeSpec `json:"nodes"`
	Edges []Edge     `json:"edges,omitempty"`
}

// Status is the lifecycle state of a workflow or node execution row.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Execution is the persisted record of one workflow run.
type Execution struct {
	ID           string
	Spec         Spec
	Status       Status
	Progress     float64
	ErrorMessage string
	// Results maps node id to that node's outputs, populated on success.
	Results     map[string]map[string]interface{}
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// NodeExecution is the persisted record of one node invocation. At most
// one row exists per node per workflow; nodes are never retried, so
// RetryCount is persisted but never incremented.
type NodeExecution struct {
	ID             string
	WorkflowID     string
	NodeID         string
	Tool           string
	Status         Status
	ResolvedInputs map[string]interface{}
	Outputs        map[string]interface{}
	ErrorMessage   string
	// IsolationHandle identifies the sandbox the node ran in, when the
	// contract required isolation.
	IsolationHandle string
	RetryCount      int
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
}
