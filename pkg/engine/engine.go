// Package engine executes workflow specs: it validates the graph, runs
// nodes batch by batch with intra-batch parallelism, wires upstream
// outputs into downstream inputs, persists every execution, and streams
// lifecycle events to the caller.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/taskweave/taskweave/pkg/domain/errors"
	"github.com/taskweave/taskweave/pkg/domain/workflow"
	"github.com/taskweave/taskweave/pkg/observability/metrics"
	"github.com/taskweave/taskweave/pkg/registry"
	"github.com/taskweave/taskweave/pkg/store"
)

const engineModule = "engine"

// defaultEventBuffer sizes the event channel. Slow consumers apply
// back-pressure once the buffer fills; the stream is always finite.
const defaultEventBuffer = 64

// Engine runs workflows against a registry and a store.
type Engine struct {
	registry *registry.Registry
	store    store.Store
	isolator Isolator
	log      zerolog.Logger
	sem      *semaphore.Weighted
	deadline time.Duration
	buffer   int
	metrics  *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxConcurrency caps the number of nodes executing at once across
// all workflows. Zero means unbounded.
func WithMaxConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithDeadline bounds each workflow's wall-clock time. Expiry behaves
// exactly like cancellation. Zero means no deadline.
func WithDeadline(d time.Duration) Option {
	return func(e *Engine) { e.deadline = d }
}

// WithIsolator replaces the default no-op isolator.
func WithIsolator(iso Isolator) Option {
	return func(e *Engine) {
		if iso != nil {
			e.isolator = iso
		}
	}
}

// WithMetrics attaches a Prometheus collector. Without it nothing is
// recorded.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithEventBuffer overrides the event channel buffer size.
func WithEventBuffer(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.buffer = n
		}
	}
}

// New creates an engine.
func New(reg *registry.Registry, st store.Store, log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		registry: reg,
		store:    st,
		isolator: NoopIsolator{},
		log:      log.With().Str("component", "engine").Logger(),
		buffer:   defaultEventBuffer,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute validates and runs a workflow spec, returning its event stream.
// The channel always ends with a complete event and is then closed, so
// callers can range over it. Cancelling ctx aborts the run; in-flight
// nodes still finalise their rows before the stream ends.
func (e *Engine) Execute(ctx context.Context, spec workflow.Spec) <-chan workflow.Event {
	events := make(chan workflow.Event, e.buffer)
	go e.run(ctx, spec, events)
	return events
}

// ExecuteTool runs a single tool as a degenerate one-node workflow and
// returns its outputs. Used by the single-tool transports.
func (e *Engine) ExecuteTool(ctx context.Context, tool string, args map[string]interface{}) (map[string]interface{}, error) {
	spec := workflow.Spec{Nodes: []workflow.NodeSpec{{
		NodeID:        tool,
		Tool:          tool,
		LiteralInputs: args,
	}}}

	var outputs map[string]interface{}
	var failure error
	for ev := range e.Execute(ctx, spec) {
		switch ev.Type {
		case workflow.EventWorkflowCompleted:
			outputs = ev.Results[tool]
		case workflow.EventWorkflowFailed:
			failure = errors.New(errors.Kind(ev.ErrorKind), engineModule, ev.Error)
		}
	}
	if failure != nil {
		return nil, failure
	}
	return outputs, nil
}

func (e *Engine) run(ctx context.Context, spec workflow.Spec, events chan<- workflow.Event) {
	defer close(events)

	plan, err := workflow.Validate(spec, e.registry)
	if err != nil {
		// Nothing is persisted for specs that fail validation.
		events <- failureEvent("", "", err)
		events <- workflow.Event{Type: workflow.EventComplete}
		return
	}

	now := time.Now().UTC()
	wf := &workflow.Execution{
		ID:        uuid.NewString(),
		Spec:      spec,
		Status:    workflow.StatusPending,
		CreatedAt: now,
	}
	if err := e.store.CreateWorkflow(ctx, wf); err != nil {
		perr := errors.Persistence(engineModule, err)
		events <- failureEvent(wf.ID, "", perr)
		events <- workflow.Event{Type: workflow.EventComplete, WorkflowID: wf.ID}
		return
	}
	started := time.Now().UTC()
	wf.Status = workflow.StatusRunning
	wf.StartedAt = &started
	if err := e.store.UpdateWorkflow(ctx, wf); err != nil {
		e.finalizeWorkflow(ctx, wf, nil, errors.Persistence(engineModule, err), "", events)
		return
	}

	events <- workflow.Event{Type: workflow.EventStart, WorkflowID: wf.ID, TotalNodes: plan.TotalNodes}

	log := e.log.With().Str("workflow_id", wf.ID).Logger()
	log.Info().Int("nodes", plan.TotalNodes).Int("batches", len(plan.Batches)).Msg("Workflow started")

	runCtx := ctx
	if e.deadline > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.deadline)
		defer cancel()
	}

	nodesByID := make(map[string]workflow.NodeSpec, plan.TotalNodes)
	for _, n := range spec.Nodes {
		nodesByID[n.NodeID] = n
	}

	results := make(map[string]map[string]interface{}, plan.TotalNodes)
	completed := 0

	var fatal error
	var fatalNode string

	for _, batch := range plan.Batches {
		if runCtx.Err() != nil {
			fatal = errors.Cancelled(engineModule)
			break
		}

		// Batch goroutines read a snapshot; only the collector below
		// writes to results.
		snapshot := make(map[string]map[string]interface{}, len(results))
		for k, v := range results {
			snapshot[k] = v
		}

		batchCtx, cancelBatch := context.WithCancel(runCtx)
		resCh := make(chan nodeResult, len(batch))
		for _, nodeID := range batch {
			events <- workflow.Event{Type: workflow.EventNodeStarted, WorkflowID: wf.ID, NodeID: nodeID}
			go e.dispatchNode(batchCtx, wf.ID, nodesByID[nodeID], snapshot, resCh)
		}

		for range batch {
			r := <-resCh
			if fatal != nil {
				// First fatal wins; drain the rest silently.
				continue
			}
			if r.err != nil {
				fatal, fatalNode = r.err, r.nodeID
				events <- failureNodeEvent(wf.ID, r.nodeID, r.err)
				e.recordSignature(nodesByID[r.nodeID].Tool, r.err)
				log.Warn().Str("node_id", r.nodeID).Err(r.err).Msg("Node failed, cancelling siblings")
				cancelBatch()
				continue
			}
			results[r.nodeID] = r.outputs
			completed++
			events <- workflow.Event{
				Type:       workflow.EventNodeCompleted,
				WorkflowID: wf.ID,
				NodeID:     r.nodeID,
				Progress:   float64(completed) / float64(plan.TotalNodes),
				Outputs:    r.outputs,
			}
		}
		cancelBatch()
		if fatal != nil {
			break
		}
	}

	e.finalizeWorkflow(ctx, wf, results, fatal, fatalNode, events)
}

// finalizeWorkflow persists the terminal workflow state and emits the
// closing events. Finalisation writes survive caller cancellation.
func (e *Engine) finalizeWorkflow(
	ctx context.Context,
	wf *workflow.Execution,
	results map[string]map[string]interface{},
	fatal error,
	fatalNode string,
	events chan<- workflow.Event,
) {
	persistCtx := context.WithoutCancel(ctx)
	finished := time.Now().UTC()
	wf.CompletedAt = &finished
	if e.metrics != nil {
		status := workflow.StatusCompleted
		if fatal != nil {
			status = workflow.StatusFailed
		}
		started := wf.CreatedAt
		if wf.StartedAt != nil {
			started = *wf.StartedAt
		}
		e.metrics.ObserveWorkflow(status, finished.Sub(started))
	}

	if fatal != nil {
		wf.Status = workflow.StatusFailed
		wf.ErrorMessage = errors.MessageOf(fatal)
		if err := e.store.UpdateWorkflow(persistCtx, wf); err != nil {
			e.log.Error().Str("workflow_id", wf.ID).Err(err).Msg("Failed to persist workflow failure")
		}
		events <- failureEvent(wf.ID, fatalNode, fatal)
		events <- workflow.Event{Type: workflow.EventComplete, WorkflowID: wf.ID}
		return
	}

	wf.Status = workflow.StatusCompleted
	wf.Progress = 1
	wf.Results = results
	if err := e.store.UpdateWorkflow(persistCtx, wf); err != nil {
		perr := errors.Persistence(engineModule, err)
		events <- failureEvent(wf.ID, "", perr)
		events <- workflow.Event{Type: workflow.EventComplete, WorkflowID: wf.ID}
		return
	}
	events <- workflow.Event{
		Type:       workflow.EventWorkflowCompleted,
		WorkflowID: wf.ID,
		Progress:   1,
		Results:    results,
	}
	events <- workflow.Event{Type: workflow.EventComplete, WorkflowID: wf.ID}
}

// recordSignature stores the failure shape off the scheduling path.
// Cancellations are not signatures; failures to record are logged only.
func (e *Engine) recordSignature(tool string, err error) {
	if errors.IsKind(err, errors.KindCancelled) {
		return
	}
	kind := string(errors.KindOf(err))
	message := errors.MessageOf(err)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if rerr := e.store.RecordErrorSignature(ctx, tool, kind, message); rerr != nil {
			e.log.Warn().Str("tool", tool).Err(rerr).Msg("Failed to record error signature")
		}
	}()
}

func failureEvent(workflowID, nodeID string, err error) workflow.Event {
	return workflow.Event{
		Type:       workflow.EventWorkflowFailed,
		WorkflowID: workflowID,
		NodeID:     nodeID,
		Error:      errors.MessageOf(err),
		ErrorKind:  string(errors.KindOf(err)),
	}
}

func failureNodeEvent(workflowID, nodeID string, err error) workflow.Event {
	return workflow.Event{
		Type:       workflow.EventNodeFailed,
		WorkflowID: workflowID,
		NodeID:     nodeID,
		Error:      errors.MessageOf(err),
		ErrorKind:  string(errors.KindOf(err)),
	}
}
