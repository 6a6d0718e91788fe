package tools

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskweave/taskweave/pkg/registry"
)

func TestRegisterBuiltins(t *testing.T) {
	reg := registry.New(zerolog.Nop())
	require.NoError(t, RegisterBuiltins(reg))
	assert.Equal(t, []string{"checksum", "delay", "echo", "make_id", "template_render"}, reg.List(""))
}

func TestEcho(t *testing.T) {
	out, err := Echo().Execute(context.Background(), map[string]interface{}{"a": 1, "b": "two"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"a": 1, "b": "two"}, out)
}

func TestMakeID(t *testing.T) {
	out, err := MakeID().Execute(context.Background(), map[string]interface{}{"prefix": "task"})
	require.NoError(t, err)
	id, ok := out["id"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(id, "task-"))

	out2, err := MakeID().Execute(context.Background(), map[string]interface{}{})
	require.NoError(t, err)
	assert.NotEqual(t, out["id"], out2["id"])
}

func TestDelayHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	_, err := Delay().Execute(ctx, map[string]interface{}{"duration_ms": float64(500)})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestDelaySleeps(t *testing.T) {
	out, err := Delay().Execute(context.Background(), map[string]interface{}{"duration_ms": float64(10)})
	require.NoError(t, err)
	assert.Equal(t, float64(10), out["slept_ms"])
}

func TestChecksum(t *testing.T) {
	out, err := Checksum().Execute(context.Background(), map[string]interface{}{"text": "hello"})
	require.NoError(t, err)
	// SHA-256 of "hello".
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", out["checksum"])
	assert.Equal(t, "sha256", out["algorithm"])
}

func TestTemplateRender(t *testing.T) {
	out, err := TemplateRender().Execute(context.Background(), map[string]interface{}{
		"template": "Hello {{.name}}!",
		"values":   map[string]interface{}{"name": "world"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello world!", out["rendered"])
}

func TestTemplateRenderErrors(t *testing.T) {
	_, err := TemplateRender().Execute(context.Background(), map[string]interface{}{
		"template": "{{.broken",
	})
	assert.Error(t, err)

	_, err = TemplateRender().Execute(context.Background(), map[string]interface{}{
		"template": "{{.missing}}",
		"values":   map[string]interface{}{},
	})
	assert.Error(t, err)
}
