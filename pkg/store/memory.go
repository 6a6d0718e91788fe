package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskweave/taskweave/pkg/domain/workflow"
)

// Memory is the in-memory Store. It is the default in dev mode and the
// backing store of the test suite. Rows are copied on the way in and out
// so callers never alias store state.
type Memory struct {
	mu          sync.RWMutex
	workflows   map[string]*workflow.Execution
	nodes       map[string]*workflow.NodeExecution
	signatures  map[string]*ErrorSignature
	resolutions map[string]*Resolution
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		workflows:   make(map[string]*workflow.Execution),
		nodes:       make(map[string]*workflow.NodeExecution),
		signatures:  make(map[string]*ErrorSignature),
		resolutions: make(map[string]*Resolution),
	}
}

func (m *Memory) CreateWorkflow(_ context.Context, wf *workflow.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workflows[wf.ID] = copyWorkflow(wf)
	return nil
}

func (m *Memory) UpdateWorkflow(_ context.Context, wf *workflow.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[wf.ID]; !ok {
		return ErrNotFound
	}
	m.workflows[wf.ID] = copyWorkflow(wf)
	return nil
}

func (m *Memory) GetWorkflow(_ context.Context, id string) (*workflow.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wf, ok := m.workflows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyWorkflow(wf), nil
}

func (m *Memory) ListUnfinishedWorkflows(_ context.Context) ([]*workflow.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*workflow.Execution, 0)
	for _, wf := range m.workflows {
		if !wf.Status.Terminal() {
			out = append(out, copyWorkflow(wf))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateNode(_ context.Context, node *workflow.NodeExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[node.ID] = copyNode(node)
	return nil
}

func (m *Memory) UpdateNode(_ context.Context, node *workflow.NodeExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[node.ID]; !ok {
		return ErrNotFound
	}
	m.nodes[node.ID] = copyNode(node)
	return nil
}

func (m *Memory) ListNodes(_ context.Context, workflowID string) ([]*workflow.NodeExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*workflow.NodeExecution, 0)
	for _, node := range m.nodes {
		if node.WorkflowID == workflowID {
			out = append(out, copyNode(node))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ListUnfinishedNodes(_ context.Context) ([]*workflow.NodeExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*workflow.NodeExecution, 0)
	for _, node := range m.nodes {
		if !node.Status.Terminal() {
			out = append(out, copyNode(node))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) RecordErrorSignature(_ context.Context, tool, kind, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	hash := Signature(tool, kind, message)
	if sig, ok := m.signatures[hash]; ok {
		sig.OccurrenceCount++
		sig.LastSeen = now
		return nil
	}
	m.signatures[hash] = &ErrorSignature{
		ID:              uuid.NewString(),
		Tool:            tool,
		ErrorKind:       kind,
		Message:         message,
		Hash:            hash,
		OccurrenceCount: 1,
		FirstSeen:       now,
		LastSeen:        now,
	}
	return nil
}

func (m *Memory) ListErrorSignatures(_ context.Context) ([]*ErrorSignature, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*ErrorSignature, 0, len(m.signatures))
	for _, sig := range m.signatures {
		cp := *sig
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out, nil
}

func (m *Memory) CreateResolution(_ context.Context, res *Resolution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *res
	cp.Data = copyMap(res.Data)
	m.resolutions[res.ID] = &cp
	return nil
}

func (m *Memory) MarkResolutionApplied(_ context.Context, id string, success bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.resolutions[id]
	if !ok {
		return ErrNotFound
	}
	res.AppliedCount++
	if success {
		res.SuccessCount++
	}
	return nil
}

func (m *Memory) ListResolutions(_ context.Context, signatureHash string) ([]*Resolution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Resolution, 0)
	for _, res := range m.resolutions {
		if res.SignatureHash == signatureHash {
			cp := *res
			cp.Data = copyMap(res.Data)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) Close() error {
	return nil
}

func copyWorkflow(wf *workflow.Execution) *workflow.Execution {
	cp := *wf
	if wf.Results != nil {
		cp.Results = make(map[string]map[string]interface{}, len(wf.Results))
		for k, v := range wf.Results {
			cp.Results[k] = copyMap(v)
		}
	}
	return &cp
}

func copyNode(node *workflow.NodeExecution) *workflow.NodeExecution {
	cp := *node
	cp.ResolvedInputs = copyMap(node.ResolvedInputs)
	cp.Outputs = copyMap(node.Outputs)
	return &cp
}

func copyMap(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
