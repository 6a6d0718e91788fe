package engine

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskweave/taskweave/pkg/domain/errors"
	"github.com/taskweave/taskweave/pkg/domain/workflow"
	"github.com/taskweave/taskweave/pkg/schema"
)

type nodeResult struct {
	nodeID  string
	outputs map[string]interface{}
	err     error
}

// dispatchNode runs one node and reports its result. When a concurrency
// cap is set, the node waits for a slot first.
func (e *Engine) dispatchNode(
	ctx context.Context,
	workflowID string,
	node workflow.NodeSpec,
	upstream map[string]map[string]interface{},
	out chan<- nodeResult,
) {
	if e.sem != nil {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			out <- nodeResult{nodeID: node.NodeID, err: errors.Cancelled(engineModule)}
			return
		}
		defer e.sem.Release(1)
	}
	outputs, err := e.runNode(ctx, workflowID, node, upstream)
	out <- nodeResult{nodeID: node.NodeID, outputs: outputs, err: err}
}

// runNode resolves the node's inputs, persists its execution row, invokes
// the tool, and finalises the row exactly once. Nodes are never retried.
func (e *Engine) runNode(
	ctx context.Context,
	workflowID string,
	node workflow.NodeSpec,
	upstream map[string]map[string]interface{},
) (map[string]interface{}, error) {
	persistCtx := context.WithoutCancel(ctx)
	now := time.Now().UTC()
	row := &workflow.NodeExecution{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		NodeID:     node.NodeID,
		Tool:       node.Tool,
		Status:     workflow.StatusRunning,
		CreatedAt:  now,
		StartedAt:  &now,
	}

	inputs, err := resolveInputs(node, upstream)
	row.ResolvedInputs = inputs
	if err != nil {
		row.Status = workflow.StatusFailed
		row.ErrorMessage = errors.MessageOf(err)
		row.CompletedAt = &now
		if perr := e.store.CreateNode(persistCtx, row); perr != nil {
			return nil, errors.Persistence(engineModule, perr)
		}
		e.observeNode(row)
		return nil, err
	}

	if perr := e.store.CreateNode(persistCtx, row); perr != nil {
		return nil, errors.Persistence(engineModule, perr)
	}

	tool, ok := e.registry.Lookup(node.Tool)
	if !ok {
		// Validation guarantees registration; a miss here means the
		// registry changed mid-flight.
		return nil, e.finalizeNode(persistCtx, row, nil, errors.UnknownTool(engineModule, node.Tool))
	}
	contract, _ := e.registry.Describe(node.Tool)
	inputSchema, outputSchema, _ := e.registry.Schemas(node.Tool)

	if verr := schema.Validate(inputSchema, inputs); verr != nil {
		return nil, e.finalizeNode(persistCtx, row, nil, errors.InputSchema(engineModule, node.NodeID, verr))
	}

	if ctx.Err() != nil {
		return nil, e.finalizeNode(persistCtx, row, nil, errors.Cancelled(engineModule))
	}

	if contract.RequiresIsolation {
		handle, ierr := e.isolator.Provision(ctx, workflowID, node.NodeID, contract)
		if ierr != nil {
			return nil, e.finalizeNode(persistCtx, row, nil, errors.Execution(engineModule, ierr))
		}
		row.IsolationHandle = handle
		defer func() {
			if rerr := e.isolator.Release(persistCtx, handle); rerr != nil {
				e.log.Warn().Str("node_id", node.NodeID).Err(rerr).Msg("Failed to release isolation handle")
			}
		}()
	}

	outputs, execErr := tool.Execute(ctx, inputs)
	if execErr != nil {
		if ctx.Err() != nil || stderrors.Is(execErr, context.Canceled) || stderrors.Is(execErr, context.DeadlineExceeded) {
			return nil, e.finalizeNode(persistCtx, row, nil, errors.Cancelled(engineModule))
		}
		return nil, e.finalizeNode(persistCtx, row, nil, errors.Execution(engineModule, execErr))
	}
	if outputs == nil {
		outputs = map[string]interface{}{}
	}

	if verr := schema.Validate(outputSchema, outputs); verr != nil {
		return nil, e.finalizeNode(persistCtx, row, nil, errors.OutputSchema(engineModule, node.NodeID, verr))
	}

	if ferr := e.finalizeNode(persistCtx, row, outputs, nil); ferr != nil {
		return nil, ferr
	}
	return outputs, nil
}

// finalizeNode moves the row to its terminal state. It returns the node's
// failure (or a persistence error when the row update itself fails) so
// callers can propagate a single error.
func (e *Engine) finalizeNode(
	ctx context.Context,
	row *workflow.NodeExecution,
	outputs map[string]interface{},
	failure error,
) error {
	finished := time.Now().UTC()
	row.CompletedAt = &finished
	if failure != nil {
		row.Status = workflow.StatusFailed
		row.ErrorMessage = errors.MessageOf(failure)
	} else {
		row.Status = workflow.StatusCompleted
		row.Outputs = outputs
	}
	if perr := e.store.UpdateNode(ctx, row); perr != nil {
		return errors.Persistence(engineModule, perr)
	}
	e.observeNode(row)
	return failure
}

// observeNode reports a terminal node row to the metrics collector.
func (e *Engine) observeNode(row *workflow.NodeExecution) {
	if e.metrics == nil || row.StartedAt == nil || row.CompletedAt == nil {
		return
	}
	e.metrics.ObserveNode(row.Tool, row.Status, row.CompletedAt.Sub(*row.StartedAt))
}

// resolveInputs merges the node's literal inputs with values pulled from
// upstream outputs. Mappings override literals on key collision.
func resolveInputs(node workflow.NodeSpec, upstream map[string]map[string]interface{}) (map[string]interface{}, error) {
	inputs := make(map[string]interface{}, len(node.LiteralInputs)+len(node.InputMappings))
	for k, v := range node.LiteralInputs {
		inputs[k] = v
	}
	for ref, local := range node.InputMappings {
		upstreamID, field, ok := strings.Cut(ref, ".")
		if !ok {
			return inputs, errors.UnresolvedInput(engineModule, node.NodeID, ref)
		}
		outputs, ok := upstream[upstreamID]
		if !ok {
			return inputs, errors.UnresolvedInput(engineModule, node.NodeID, ref)
		}
		value, ok := outputs[field]
		if !ok {
			return inputs, errors.UnresolvedInput(engineModule, node.NodeID, ref)
		}
		inputs[local] = value
	}
	return inputs, nil
}
