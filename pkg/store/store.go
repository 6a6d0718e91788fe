// Package store persists workflow and node executions, error signatures,
// and resolutions. Two implementations exist: the in-memory store in this
// package (tests and dev mode) and the Postgres store in bunstore.
package store

import (
	"context"
	"time"

	"github.com/taskweave/taskweave/pkg/domain/errors"
	"github.com/taskweave/taskweave/pkg/domain/workflow"
)

const storeModule = "store"

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New(errors.KindPersistence, storeModule, "not found")

// ErrorSignature aggregates occurrences of one failure shape. The hash is
// stable across runs so repeated failures accumulate on one row.
type ErrorSignature struct {
	ID              string
	Tool            string
	ErrorKind       string
	Message         string
	Hash            string
	OccurrenceCount int
	FirstSeen       time.Time
	LastSeen        time.Time
}

// Resolution is a remediation recorded against an error signature. The
// engine writes these; nothing reads them back for scheduling.
type Resolution struct {
	ID            string
	SignatureHash string
	Kind          string
	Data          map[string]interface{}
	AppliedCount  int
	SuccessCount  int
	CreatedAt     time.Time
}

// SuccessRate is successes over applications, 0 when never applied.
func (r *Resolution) SuccessRate() float64 {
	if r.AppliedCount == 0 {
		return 0
	}
	return float64(r.SuccessCount) / float64(r.AppliedCount)
}

// Store is the persistence surface of the engine. Every method is safe
// for concurrent use.
type Store interface {
	CreateWorkflow(ctx context.Context, wf *workflow.Execution) error
	UpdateWorkflow(ctx context.Context, wf *workflow.Execution) error
	GetWorkflow(ctx context.Context, id string) (*workflow.Execution, error)
	// ListUnfinishedWorkflows returns workflows still PENDING or RUNNING.
	ListUnfinishedWorkflows(ctx context.Context) ([]*workflow.Execution, error)

	CreateNode(ctx context.Context, node *workflow.NodeExecution) error
	UpdateNode(ctx context.Context, node *workflow.NodeExecution) error
	ListNodes(ctx context.Context, workflowID string) ([]*workflow.NodeExecution, error)
	ListUnfinishedNodes(ctx context.Context) ([]*workflow.NodeExecution, error)

	// RecordErrorSignature upserts an occurrence of a failure shape.
	RecordErrorSignature(ctx context.Context, tool, kind, message string) error
	ListErrorSignatures(ctx context.Context) ([]*ErrorSignature, error)

	CreateResolution(ctx context.Context, res *Resolution) error
	// MarkResolutionApplied bumps applied_count, and success_count when
	// the application worked.
	MarkResolutionApplied(ctx context.Context, id string, success bool) error
	ListResolutions(ctx context.Context, signatureHash string) ([]*Resolution, error)

	Close() error
}
