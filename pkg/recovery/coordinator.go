// Package recovery resets executions interrupted by a crash or restart.
// It runs once during bootstrap, before the engine accepts new work.
package recovery

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/taskweave/taskweave/pkg/domain/errors"
	"github.com/taskweave/taskweave/pkg/domain/workflow"
	"github.com/taskweave/taskweave/pkg/store"
)

const recoveryModule = "recovery"

// InterruptedMessage is written into every recovered row.
const InterruptedMessage = "interrupted by restart"

// Report lists the executions that were reset. Operator tooling decides
// what to do with them; nothing restarts automatically.
type Report struct {
	WorkflowIDs []string
	NodeIDs     []string
}

// Coordinator moves rows stranded in PENDING or RUNNING back to PENDING.
type Coordinator struct {
	store store.Store
	log   zerolog.Logger
}

// New creates a recovery coordinator.
func New(st store.Store, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		store: st,
		log:   log.With().Str("component", "recovery").Logger(),
	}
}

// Recover resets every unfinished workflow and node row. Rows keep their
// history; only status and error message change. Safe to run when the
// store is empty.
func (c *Coordinator) Recover(ctx context.Context) (*Report, error) {
	report := &Report{}

	workflows, err := c.store.ListUnfinishedWorkflows(ctx)
	if err != nil {
		return nil, errors.Persistence(recoveryModule, err)
	}
	for _, wf := range workflows {
		wf.Status = workflow.StatusPending
		wf.ErrorMessage = InterruptedMessage
		if err := c.store.UpdateWorkflow(ctx, wf); err != nil {
			return nil, errors.Persistence(recoveryModule, err)
		}
		report.WorkflowIDs = append(report.WorkflowIDs, wf.ID)
	}

	nodes, err := c.store.ListUnfinishedNodes(ctx)
	if err != nil {
		return nil, errors.Persistence(recoveryModule, err)
	}
	for _, node := range nodes {
		node.Status = workflow.StatusPending
		node.ErrorMessage = InterruptedMessage
		if err := c.store.UpdateNode(ctx, node); err != nil {
			return nil, errors.Persistence(recoveryModule, err)
		}
		report.NodeIDs = append(report.NodeIDs, node.ID)
	}

	if len(report.WorkflowIDs) > 0 || len(report.NodeIDs) > 0 {
		c.log.Warn().
			Int("workflows", len(report.WorkflowIDs)).
			Int("nodes", len(report.NodeIDs)).
			Msg("Recovered interrupted executions")
	}
	return report, nil
}
