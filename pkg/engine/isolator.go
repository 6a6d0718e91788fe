package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/taskweave/taskweave/pkg/domain/workflow"
)

// Isolator provisions execution sandboxes for tools whose contracts
// require isolation. The engine asks for a handle before invoking the
// tool and releases it afterwards; the handle is persisted on the node
// row either way.
type Isolator interface {
	Provision(ctx context.Context, workflowID, nodeID string, contract workflow.ToolContract) (string, error)
	Release(ctx context.Context, handle string) error
}

// NoopIsolator hands out synthetic handles without creating a sandbox.
// It is the default; deployments with real sandboxing inject their own.
type NoopIsolator struct{}

func (NoopIsolator) Provision(_ context.Context, _, _ string, _ workflow.ToolContract) (string, error) {
	return "local/" + uuid.NewString(), nil
}

func (NoopIsolator) Release(_ context.Context, _ string) error {
	return nil
}
