// Package registry is the in-process catalogue of tool contracts. It is
// an explicitly constructed value handed to the engine and transports;
// nothing registers at import time.
package registry

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/taskweave/taskweave/pkg/domain/errors"
	"github.com/taskweave/taskweave/pkg/domain/workflow"
	"github.com/taskweave/taskweave/pkg/schema"
)

const registryModule = "registry"

type entry struct {
	tool     workflow.Tool
	contract workflow.ToolContract
	input    *jsonschema.Schema
	output   *jsonschema.Schema
}

// Registry stores tools by contract name. Reads vastly outnumber writes,
// so it is a map behind a sync.RWMutex.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*entry
	log   zerolog.Logger
}

// New creates an empty registry.
func New(log zerolog.Logger) *Registry {
	return &Registry{
		tools: make(map[string]*entry),
		log:   log.With().Str("component", "registry").Logger(),
	}
}

// Register validates the tool's contract, compiles its schemas, and adds
// it to the catalogue. Duplicate names are rejected and leave the
// registry unchanged. HEAVY tools get isolation switched on.
func (r *Registry) Register(tool workflow.Tool) error {
	contract := tool.Contract()
	if contract.Name == "" {
		return errors.Newf(errors.KindConfig, registryModule, "tool contract has no name")
	}
	if contract.Category == workflow.CategoryHeavy {
		contract.RequiresIsolation = true
	}

	input, err := schema.Compile(contract.InputSchema)
	if err != nil {
		return errors.Wrap(err, errors.KindConfig, registryModule, "tool "+contract.Name+": bad input schema")
	}
	output, err := schema.Compile(contract.OutputSchema)
	if err != nil {
		return errors.Wrap(err, errors.KindConfig, registryModule, "tool "+contract.Name+": bad output schema")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[contract.Name]; exists {
		return errors.AlreadyRegistered(registryModule, contract.Name)
	}
	r.tools[contract.Name] = &entry{tool: tool, contract: contract, input: input, output: output}
	r.log.Debug().
		Str("tool", contract.Name).
		Str("category", string(contract.Category)).
		Bool("isolation", contract.RequiresIsolation).
		Msg("Tool registered")
	return nil
}

// Lookup returns the executable tool by name.
func (r *Registry) Lookup(name string) (workflow.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return e.tool, true
}

// Describe returns the tool's contract, with HEAVY isolation defaulting
// already applied.
func (r *Registry) Describe(name string) (workflow.ToolContract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	if !ok {
		return workflow.ToolContract{}, false
	}
	return e.contract, true
}

// Schemas returns the compiled input and output validators for a tool.
func (r *Registry) Schemas(name string) (input, output *jsonschema.Schema, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, found := r.tools[name]
	if !found {
		return nil, nil, false
	}
	return e.input, e.output, true
}

// List returns registered tool names, sorted, optionally filtered by
// category. An empty category matches everything.
func (r *Registry) List(category workflow.Category) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name, e := range r.tools {
		if category != "" && e.contract.Category != category {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Contracts returns every registered contract, sorted by name.
func (r *Registry) Contracts() []workflow.ToolContract {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]workflow.ToolContract, 0, len(r.tools))
	for _, e := range r.tools {
		out = append(out, e.contract)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
