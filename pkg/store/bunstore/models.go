// Package bunstore is the Postgres implementation of store.Store, built
// on uptrace/bun. Dynamic values (specs, inputs, outputs, results) live
// in jsonb columns.
package bunstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/taskweave/taskweave/pkg/domain/workflow"
	"github.com/taskweave/taskweave/pkg/store"
)

type workflowRow struct {
	bun.BaseModel `bun:"table:workflow_executions,alias:we"`

	ID           string                            `bun:"id,pk"`
	Spec         workflow.Spec                     `bun:"spec,type:jsonb"`
	Status       string                            `bun:"status,notnull"`
	Progress     float64                           `bun:"progress,notnull,default:0"`
	ErrorMessage string                            `bun:"error_message,nullzero"`
	Results      map[string]map[string]interface{} `bun:"results,type:jsonb,nullzero"`
	CreatedAt    time.Time                         `bun:"created_at,notnull"`
	StartedAt    *time.Time                        `bun:"started_at,nullzero"`
	CompletedAt  *time.Time                        `bun:"completed_at,nullzero"`
}

type nodeRow struct {
	bun.BaseModel `bun:"table:node_executions,alias:ne"`

	ID              string                 `bun:"id,pk"`
	WorkflowID      string                 `bun:"workflow_id,notnull"`
	NodeID          string                 `bun:"node_id,notnull"`
	Tool            string                 `bun:"tool,notnull"`
	Status          string                 `bun:"status,notnull"`
	ResolvedInputs  map[string]interface{} `bun:"resolved_inputs,type:jsonb,nullzero"`
	Outputs         map[string]interface{} `bun:"outputs,type:jsonb,nullzero"`
	ErrorMessage    string                 `bun:"error_message,nullzero"`
	IsolationHandle string                 `bun:"isolation_handle,nullzero"`
	RetryCount      int                    `bun:"retry_count,notnull,default:0"`
	CreatedAt       time.Time              `bun:"created_at,notnull"`
	StartedAt       *time.Time             `bun:"started_at,nullzero"`
	CompletedAt     *time.Time             `bun:"completed_at,nullzero"`
}

type signatureRow struct {
	bun.BaseModel `bun:"table:error_signatures,alias:es"`

	ID              string    `bun:"id,pk"`
	Tool            string    `bun:"tool,notnull"`
	ErrorKind       string    `bun:"error_kind,notnull"`
	Message         string    `bun:"message,notnull"`
	Hash            string    `bun:"hash,notnull,unique"`
	OccurrenceCount int       `bun:"occurrence_count,notnull,default:1"`
	FirstSeen       time.Time `bun:"first_seen,notnull"`
	LastSeen        time.Time `bun:"last_seen,notnull"`
}

type resolutionRow struct {
	bun.BaseModel `bun:"table:resolutions,alias:res"`

	ID            string                 `bun:"id,pk"`
	SignatureHash string                 `bun:"signature_hash,notnull"`
	Kind          string                 `bun:"kind,notnull"`
	Data          map[string]interface{} `bun:"data,type:jsonb,nullzero"`
	AppliedCount  int                    `bun:"applied_count,notnull,default:0"`
	SuccessCount  int                    `bun:"success_count,notnull,default:0"`
	CreatedAt     time.Time              `bun:"created_at,notnull"`
}

func toWorkflowRow(wf *workflow.Execution) *workflowRow {
	return &workflowRow{
		ID:           wf.ID,
		Spec:         wf.Spec,
		Status:       string(wf.Status),
		Progress:     wf.Progress,
		ErrorMessage: wf.ErrorMessage,
		Results:      wf.Results,
		CreatedAt:    wf.CreatedAt,
		StartedAt:    wf.StartedAt,
		CompletedAt:  wf.CompletedAt,
	}
}

func (r *workflowRow) toDomain() *workflow.Execution {
	return &workflow.Execution{
		ID:           r.ID,
		Spec:         r.Spec,
		Status:       workflow.Status(r.Status),
		Progress:     r.Progress,
		ErrorMessage: r.ErrorMessage,
		Results:      r.Results,
		CreatedAt:    r.CreatedAt,
		StartedAt:    r.StartedAt,
		CompletedAt:  r.CompletedAt,
	}
}

func toNodeRow(node *workflow.NodeExecution) *nodeRow {
	return &nodeRow{
		ID:              node.ID,
		WorkflowID:      node.WorkflowID,
		NodeID:          node.NodeID,
		Tool:            node.Tool,
		Status:          string(node.Status),
		ResolvedInputs:  node.ResolvedInputs,
		Outputs:         node.Outputs,
		ErrorMessage:    node.ErrorMessage,
		IsolationHandle: node.IsolationHandle,
		RetryCount:      node.RetryCount,
		CreatedAt:       node.CreatedAt,
		StartedAt:       node.StartedAt,
		CompletedAt:     node.CompletedAt,
	}
}

func (r *nodeRow) toDomain() *workflow.NodeExecution {
	return &workflow.NodeExecution{
		ID:              r.ID,
		WorkflowID:      r.WorkflowID,
		NodeID:          r.NodeID,
		Tool:            r.Tool,
		Status:          workflow.Status(r.Status),
		ResolvedInputs:  r.ResolvedInputs,
		Outputs:         r.Outputs,
		ErrorMessage:    r.ErrorMessage,
		IsolationHandle: r.IsolationHandle,
		RetryCount:      r.RetryCount,
		CreatedAt:       r.CreatedAt,
		StartedAt:       r.StartedAt,
		CompletedAt:     r.CompletedAt,
	}
}

func (r *signatureRow) toDomain() *store.ErrorSignature {
	return &store.ErrorSignature{
		ID:              r.ID,
		Tool:            r.Tool,
		ErrorKind:       r.ErrorKind,
		Message:         r.Message,
		Hash:            r.Hash,
		OccurrenceCount: r.OccurrenceCount,
		FirstSeen:       r.FirstSeen,
		LastSeen:        r.LastSeen,
	}
}

func (r *resolutionRow) toDomain() *store.Resolution {
	return &store.Resolution{
		ID:            r.ID,
		SignatureHash: r.SignatureHash,
		Kind:          r.Kind,
		Data:          r.Data,
		AppliedCount:  r.AppliedCount,
		SuccessCount:  r.SuccessCount,
		CreatedAt:     r.CreatedAt,
	}
}
