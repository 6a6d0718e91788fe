package registry

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskweave/taskweave/pkg/domain/errors"
	"github.com/taskweave/taskweave/pkg/domain/workflow"
)

type staticTool struct {
	contract workflow.ToolContract
}

func (s staticTool) Contract() workflow.ToolContract { return s.contract }

func (s staticTool) Execute(_ context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	return inputs, nil
}

func testTool(name string, category workflow.Category) staticTool {
	return staticTool{contract: workflow.ToolContract{
		Name:         name,
		Category:     category,
		InputSchema:  map[string]interface{}{"type": "object"},
		OutputSchema: map[string]interface{}{"type": "object"},
	}}
}

func TestRegisterAndLookup(t *testing.T) {
	reg := New(zerolog.Nop())
	require.NoError(t, reg.Register(testTool("alpha", workflow.CategoryUtility)))

	tool, ok := reg.Lookup("alpha")
	require.True(t, ok)
	assert.Equal(t, "alpha", tool.Contract().Name)

	contract, ok := reg.Describe("alpha")
	require.True(t, ok)
	assert.Equal(t, workflow.CategoryUtility, contract.Category)

	in, out, ok := reg.Schemas("alpha")
	require.True(t, ok)
	assert.NotNil(t, in)
	assert.NotNil(t, out)
}

func TestRegisterDuplicateRejected(t *testing.T) {
	reg := New(zerolog.Nop())
	require.NoError(t, reg.Register(testTool("dup", workflow.CategoryUtility)))

	err := reg.Register(testTool("dup", workflow.CategoryAdmin))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindAlreadyRegistered))

	// First registration survives.
	contract, ok := reg.Describe("dup")
	require.True(t, ok)
	assert.Equal(t, workflow.CategoryUtility, contract.Category)
}

func TestRegisterRejectsUnnamedContract(t *testing.T) {
	reg := New(zerolog.Nop())
	err := reg.Register(testTool("", workflow.CategoryUtility))
	assert.Error(t, err)
}

func TestRegisterRejectsBadSchema(t *testing.T) {
	reg := New(zerolog.Nop())
	bad := staticTool{contract: workflow.ToolContract{
		Name: "bad",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"x": map[string]interface{}{"type": "not-a-type"}},
		},
		OutputSchema: map[string]interface{}{"type": "object"},
	}}
	err := reg.Register(bad)
	require.Error(t, err)
	_, ok := reg.Lookup("bad")
	assert.False(t, ok)
}

func TestHeavyToolsDefaultToIsolation(t *testing.T) {
	reg := New(zerolog.Nop())
	require.NoError(t, reg.Register(testTool("cruncher", workflow.CategoryHeavy)))
	contract, ok := reg.Describe("cruncher")
	require.True(t, ok)
	assert.True(t, contract.RequiresIsolation)
}

func TestListFiltersByCategory(t *testing.T) {
	reg := New(zerolog.Nop())
	require.NoError(t, reg.Register(testTool("u1", workflow.CategoryUtility)))
	require.NoError(t, reg.Register(testTool("u2", workflow.CategoryUtility)))
	require.NoError(t, reg.Register(testTool("h1", workflow.CategoryHeavy)))

	assert.Equal(t, []string{"h1", "u1", "u2"}, reg.List(""))
	assert.Equal(t, []string{"u1", "u2"}, reg.List(workflow.CategoryUtility))
	assert.Equal(t, []string{"h1"}, reg.List(workflow.CategoryHeavy))
	assert.Empty(t, reg.List(workflow.CategoryAdmin))
}

func TestContractsSorted(t *testing.T) {
	reg := New(zerolog.Nop())
	require.NoError(t, reg.Register(testTool("zeta", workflow.CategoryUtility)))
	require.NoError(t, reg.Register(testTool("alpha", workflow.CategoryUtility)))

	contracts := reg.Contracts()
	require.Len(t, contracts, 2)
	assert.Equal(t, "alpha", contracts[0].Name)
	assert.Equal(t, "zeta", contracts[1].Name)
}

func TestConcurrentRegisterAndRead(t *testing.T) {
	reg := New(zerolog.Nop())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			_ = reg.Register(testTool(string(rune('a'+i%26))+"-tool", workflow.CategoryUtility))
		}
	}()
	for i := 0; i < 50; i++ {
		reg.List("")
		reg.Describe("a-tool")
	}
	<-done
}
