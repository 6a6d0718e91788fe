package schema

import (
	"sort"

	"github.com/taskweave/taskweave/pkg/domain/errors"
	"github.com/taskweave/taskweave/pkg/domain/workflow"
)

// maxDependencyDepth bounds dependency inlining in CombinedSchema.
const maxDependencyDepth = 10

// StandaloneSchema returns the tool's declared input schema verbatim.
func StandaloneSchema(catalog workflow.Catalog, tool string) (map[string]interface{}, error) {
	contract, ok := catalog.Describe(tool)
	if !ok {
		return nil, errors.UnknownTool(schemaModule, tool)
	}
	return copyDoc(contract.InputSchema), nil
}

// PipelineSchema computes the effective input schema of a tool pipeline:
// every input field satisfied by some tool's output mappings is dropped,
// because the pipeline wires it internally. Overlapping property names
// keep the first tool's definition; required membership is carried from
// whichever tool contributed the property.
func PipelineSchema(catalog workflow.Catalog, tools []string) (map[string]interface{}, error) {
	contracts := make([]workflow.ToolContract, 0, len(tools))
	for _, name := range tools {
		contract, ok := catalog.Describe(name)
		if !ok {
			return nil, errors.UnknownTool(schemaModule, name)
		}
		contracts = append(contracts, contract)
	}
	return compose(contracts), nil
}

// CombinedSchema computes the effective input schema of a single tool with
// its declared dependencies recursively inlined, dependencies first.
// Inlining is depth-limited; cycles and missing dependencies are
// composition errors.
func CombinedSchema(catalog workflow.Catalog, tool string) (map[string]interface{}, error) {
	var ordered []workflow.ToolContract
	done := make(map[string]bool)
	inProgress := make(map[string]bool)

	var collect func(name string, depth int) error
	collect = func(name string, depth int) error {
		if done[name] {
			return nil
		}
		if inProgress[name] {
			return errors.Compositionf(schemaModule,
				"dependency cycle through %q", name)
		}
		if depth > maxDependencyDepth {
			return errors.Compositionf(schemaModule,
				"dependency chain of %q exceeds depth %d", tool, maxDependencyDepth)
		}
		contract, ok := catalog.Describe(name)
		if !ok {
			return errors.Compositionf(schemaModule,
				"tool %q depends on unknown tool %q", tool, name).
				WithContext("dependency", name)
		}
		inProgress[name] = true
		for _, dep := range contract.Dependencies {
			if err := collect(dep, depth+1); err != nil {
				return err
			}
		}
		inProgress[name] = false
		done[name] = true
		ordered = append(ordered, contract)
		return nil
	}

	if err := collect(tool, 0); err != nil {
		return nil, err
	}
	return compose(ordered), nil
}

// compose merges the input schemas of the contracts in order, subtracting
// every field name that appears as a value of any contract's output
// mappings.
func compose(contracts []workflow.ToolContract) map[string]interface{} {
	provided := make(map[string]bool)
	for _, c := range contracts {
		for _, target := range c.OutputMappings {
			provided[target] = true
		}
	}

	properties := make(map[string]interface{})
	required := make([]string, 0)
	requiredSeen := make(map[string]bool)

	for _, c := range contracts {
		props, _ := c.InputSchema["properties"].(map[string]interface{})
		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		sort.Strings(names)

		requiredHere := requiredSet(c.InputSchema)
		for _, name := range names {
			if provided[name] {
				continue
			}
			if _, exists := properties[name]; exists {
				continue
			}
			properties[name] = copyValue(props[name])
			if requiredHere[name] && !requiredSeen[name] {
				requiredSeen[name] = true
				required = append(required, name)
			}
		}
	}

	composed := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sort.Strings(required)
		composed["required"] = required
	}
	return composed
}

func requiredSet(doc map[string]interface{}) map[string]bool {
	out := make(map[string]bool)
	switch req := doc["required"].(type) {
	case []interface{}:
		for _, v := range req {
			if s, ok := v.(string); ok {
				out[s] = true
			}
		}
	case []string:
		for _, s := range req {
			out[s] = true
		}
	}
	return out
}

func copyDoc(doc map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return copyDoc(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
