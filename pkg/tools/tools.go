// Package tools contains the built-in tool plug-ins and a function
// adapter for defining tools inline.
package tools

import (
	"context"

	"github.com/taskweave/taskweave/pkg/domain/workflow"
	"github.com/taskweave/taskweave/pkg/registry"
)

// Func adapts a contract and a function into a workflow.Tool.
type Func struct {
	contract workflow.ToolContract
	fn       func(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error)
}

// NewFunc creates a function-backed tool.
func NewFunc(contract workflow.ToolContract, fn func(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error)) *Func {
	return &Func{contract: contract, fn: fn}
}

func (f *Func) Contract() workflow.ToolContract {
	return f.contract
}

func (f *Func) Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	return f.fn(ctx, inputs)
}

// RegisterBuiltins registers the utility tools shipped with the server.
func RegisterBuiltins(reg *registry.Registry) error {
	builtins := []workflow.Tool{
		Echo(),
		MakeID(),
		Delay(),
		Checksum(),
		TemplateRender(),
	}
	for _, tool := range builtins {
		if err := reg.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	doc := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}
