package tools

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"text/template"
	"time"

	"github.com/google/uuid"

	"github.com/taskweave/taskweave/pkg/domain/workflow"
)

// Echo returns its inputs verbatim. Handy for smoke tests and as a
// pass-through node in pipelines.
func Echo() workflow.Tool {
	contract := workflow.ToolContract{
		Name:         "echo",
		Description:  "Returns its inputs unchanged",
		Category:     workflow.CategoryUtility,
		InputSchema:  map[string]interface{}{"type": "object"},
		OutputSchema: map[string]interface{}{"type": "object"},
	}
	return NewFunc(contract, func(_ context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
		out := make(map[string]interface{}, len(inputs))
		for k, v := range inputs {
			out[k] = v
		}
		return out, nil
	})
}

// MakeID generates a prefixed unique identifier. Its output mapping
// satisfies the "id" input of downstream tools in a pipeline.
func MakeID() workflow.Tool {
	contract := workflow.ToolContract{
		Name:        "make_id",
		Description: "Generates a unique identifier with an optional prefix",
		Category:    workflow.CategoryUtility,
		InputSchema: objectSchema(map[string]interface{}{
			"prefix": map[string]interface{}{"type": "string"},
		}),
		OutputSchema: objectSchema(map[string]interface{}{
			"id": map[string]interface{}{"type": "string"},
		}, "id"),
		OutputMappings: map[string]string{"id": "id"},
	}
	return NewFunc(contract, func(_ context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
		id := uuid.NewString()
		if prefix, ok := inputs["prefix"].(string); ok && prefix != "" {
			id = prefix + "-" + id
		}
		return map[string]interface{}{"id": id}, nil
	})
}

// Delay sleeps for the requested duration, honouring cancellation.
func Delay() workflow.Tool {
	contract := workflow.ToolContract{
		Name:        "delay",
		Description: "Sleeps for duration_ms milliseconds",
		Category:    workflow.CategoryUtility,
		InputSchema: objectSchema(map[string]interface{}{
			"duration_ms": map[string]interface{}{"type": "number", "minimum": 0},
		}, "duration_ms"),
		OutputSchema: objectSchema(map[string]interface{}{
			"slept_ms": map[string]interface{}{"type": "number"},
		}, "slept_ms"),
	}
	return NewFunc(contract, func(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
		ms, ok := inputs["duration_ms"].(float64)
		if !ok {
			if n, isInt := inputs["duration_ms"].(int); isInt {
				ms = float64(n)
			} else {
				return nil, fmt.Errorf("duration_ms must be a number")
			}
		}
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
			return map[string]interface{}{"slept_ms": ms}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

// Checksum hashes a text input with SHA-256.
func Checksum() workflow.Tool {
	contract := workflow.ToolContract{
		Name:        "checksum",
		Description: "Computes the SHA-256 checksum of a text input",
		Category:    workflow.CategoryUtility,
		InputSchema: objectSchema(map[string]interface{}{
			"text": map[string]interface{}{"type": "string"},
		}, "text"),
		OutputSchema: objectSchema(map[string]interface{}{
			"checksum":  map[string]interface{}{"type": "string"},
			"algorithm": map[string]interface{}{"type": "string"},
		}, "checksum"),
		OutputMappings: map[string]string{"checksum": "checksum"},
	}
	return NewFunc(contract, func(_ context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
		text, _ := inputs["text"].(string)
		sum := sha256.Sum256([]byte(text))
		return map[string]interface{}{
			"checksum":  hex.EncodeToString(sum[:]),
			"algorithm": "sha256",
		}, nil
	})
}

// TemplateRender renders a Go text template against a values object.
func TemplateRender() workflow.Tool {
	contract := workflow.ToolContract{
		Name:        "template_render",
		Description: "Renders a Go text template with the given values",
		Category:    workflow.CategoryUtility,
		InputSchema: objectSchema(map[string]interface{}{
			"template": map[string]interface{}{"type": "string"},
			"values":   map[string]interface{}{"type": "object"},
		}, "template"),
		OutputSchema: objectSchema(map[string]interface{}{
			"rendered": map[string]interface{}{"type": "string"},
		}, "rendered"),
	}
	return NewFunc(contract, func(_ context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
		text, _ := inputs["template"].(string)
		values, _ := inputs["values"].(map[string]interface{})

		tmpl, err := template.New("tool").Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("invalid template: %w", err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, values); err != nil {
			return nil, fmt.Errorf("template execution failed: %w", err)
		}
		return map[string]interface{}{"rendered": buf.String()}, nil
	})
}
