package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskweave/taskweave/pkg/domain/errors"
	"github.com/taskweave/taskweave/pkg/domain/workflow"
)

type stubCatalog map[string]workflow.ToolContract

func (c stubCatalog) Describe(name string) (workflow.ToolContract, bool) {
	contract, ok := c[name]
	return contract, ok
}

func contract(name string, props map[string]interface{}, required []string, mappings map[string]string, deps ...string) workflow.ToolContract {
	return workflow.ToolContract{
		Name:     name,
		Category: workflow.CategoryUtility,
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": props,
			"required":   required,
		},
		OutputSchema:   map[string]interface{}{"type": "object"},
		OutputMappings: mappings,
		Dependencies:   deps,
	}
}

func strProp() map[string]interface{} {
	return map[string]interface{}{"type": "string"}
}

func TestStandaloneSchema(t *testing.T) {
	c := stubCatalog{
		"fetch": contract("fetch", map[string]interface{}{"url": strProp()}, []string{"url"}, nil),
	}
	doc, err := StandaloneSchema(c, "fetch")
	require.NoError(t, err)
	props := doc["properties"].(map[string]interface{})
	assert.Contains(t, props, "url")

	_, err = StandaloneSchema(c, "missing")
	assert.True(t, errors.IsKind(err, errors.KindUnknownTool))
}

func TestPipelineSchemaSubtractsMappedFields(t *testing.T) {
	c := stubCatalog{
		"fetch": contract("fetch",
			map[string]interface{}{"url": strProp()},
			[]string{"url"},
			map[string]string{"body": "document"}),
		"summarize": contract("summarize",
			map[string]interface{}{"document": strProp(), "style": strProp()},
			[]string{"document"},
			nil),
	}

	doc, err := PipelineSchema(c, []string{"fetch", "summarize"})
	require.NoError(t, err)

	props := doc["properties"].(map[string]interface{})
	assert.Contains(t, props, "url")
	assert.Contains(t, props, "style")
	// document is satisfied by fetch's output mapping, so callers
	// never supply it.
	assert.NotContains(t, props, "document")

	required := doc["required"].([]string)
	assert.Equal(t, []string{"url"}, required)
}

func TestPipelineSchemaKeepsFirstDefinition(t *testing.T) {
	first := map[string]interface{}{"type": "string", "description": "first wins"}
	second := map[string]interface{}{"type": "number"}
	c := stubCatalog{
		"a": contract("a", map[string]interface{}{"shared": first}, nil, nil),
		"b": contract("b", map[string]interface{}{"shared": second}, nil, nil),
	}

	doc, err := PipelineSchema(c, []string{"a", "b"})
	require.NoError(t, err)
	props := doc["properties"].(map[string]interface{})
	got := props["shared"].(map[string]interface{})
	assert.Equal(t, "first wins", got["description"])
}

func TestPipelineSchemaUnknownTool(t *testing.T) {
	_, err := PipelineSchema(stubCatalog{}, []string{"nope"})
	assert.True(t, errors.IsKind(err, errors.KindUnknownTool))
}

func TestCombinedSchemaInlinesDependencies(t *testing.T) {
	c := stubCatalog{
		"fetch": contract("fetch",
			map[string]interface{}{"url": strProp()},
			[]string{"url"},
			map[string]string{"body": "document"}),
		"summarize": contract("summarize",
			map[string]interface{}{"document": strProp(), "style": strProp()},
			[]string{"document"},
			nil,
			"fetch"),
	}

	doc, err := CombinedSchema(c, "summarize")
	require.NoError(t, err)
	props := doc["properties"].(map[string]interface{})
	assert.Contains(t, props, "url")
	assert.Contains(t, props, "style")
	assert.NotContains(t, props, "document")
}

func TestCombinedSchemaMissingDependency(t *testing.T) {
	c := stubCatalog{
		"top": contract("top", map[string]interface{}{"x": strProp()}, nil, nil, "ghost"),
	}
	_, err := CombinedSchema(c, "top")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindComposition))
}

func TestCombinedSchemaDepthLimit(t *testing.T) {
	// A dependency chain deeper than the limit.
	c := stubCatalog{}
	c[chainName(0)] = contract(chainName(0), map[string]interface{}{"p0": strProp()}, nil, nil)
	for i := 1; i <= 12; i++ {
		c[chainName(i)] = contract(chainName(i), map[string]interface{}{}, nil, nil, chainName(i-1))
	}
	_, err := CombinedSchema(c, chainName(12))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindComposition))
}

func TestCombinedSchemaDependencyCycle(t *testing.T) {
	c := stubCatalog{
		"a": contract("a", map[string]interface{}{"x": strProp()}, nil, nil, "b"),
		"b": contract("b", map[string]interface{}{"y": strProp()}, nil, nil, "a"),
	}
	_, err := CombinedSchema(c, "a")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindComposition))
}

func TestCombinedSchemaSharedDependencyOnce(t *testing.T) {
	// A diamond of dependencies collects the shared tool once.
	c := stubCatalog{
		"base":  contract("base", map[string]interface{}{"seed": strProp()}, []string{"seed"}, nil),
		"left":  contract("left", map[string]interface{}{"l": strProp()}, nil, nil, "base"),
		"right": contract("right", map[string]interface{}{"r": strProp()}, nil, nil, "base"),
		"top":   contract("top", map[string]interface{}{"t": strProp()}, nil, nil, "left", "right"),
	}
	doc, err := CombinedSchema(c, "top")
	require.NoError(t, err)
	props := doc["properties"].(map[string]interface{})
	for _, name := range []string{"seed", "l", "r", "t"} {
		assert.Contains(t, props, name)
	}
	assert.Equal(t, []string{"seed"}, doc["required"])
}

func chainName(i int) string {
	return "chain" + string(rune('a'+i))
}
