package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskweave/taskweave/pkg/engine"
	"github.com/taskweave/taskweave/pkg/observability/metrics"
	"github.com/taskweave/taskweave/pkg/registry"
	"github.com/taskweave/taskweave/pkg/store"
	"github.com/taskweave/taskweave/pkg/tools"

	domainworkflow "github.com/taskweave/taskweave/pkg/domain/workflow"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	reg := registry.New(zerolog.Nop())
	require.NoError(t, tools.RegisterBuiltins(reg))
	m := metrics.New()
	eng := engine.New(reg, st, zerolog.Nop(), engine.WithMetrics(m))
	srv := httptest.NewServer(New(eng, reg, st, m, zerolog.Nop()).Router())
	t.Cleanup(srv.Close)
	return srv, st
}

func TestSubmitStreamsNDJSON(t *testing.T) {
	srv, st := newTestServer(t)

	body := map[string]interface{}{
		"spec": map[string]interface{}{
			"nodes": []map[string]interface{}{
				{"node_id": "n1", "tool": "echo", "literal_inputs": map[string]interface{}{"a": float64(1)}},
			},
		},
	}
	buf, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/v1/workflows", "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	var events []domainworkflow.Event
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var ev domainworkflow.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())

	require.NotEmpty(t, events)
	assert.Equal(t, domainworkflow.EventStart, events[0].Type)
	assert.Equal(t, domainworkflow.EventComplete, events[len(events)-1].Type)

	var completed *domainworkflow.Event
	for i := range events {
		if events[i].Type == domainworkflow.EventWorkflowCompleted {
			completed = &events[i]
		}
	}
	require.NotNil(t, completed)
	assert.Equal(t, float64(1), completed.Results["n1"]["a"])

	// The run is persisted and queryable afterwards.
	wf, err := st.GetWorkflow(context.Background(), events[0].WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, domainworkflow.StatusCompleted, wf.Status)
}

func TestSubmitInvalidSpecStreamsFailure(t *testing.T) {
	srv, _ := newTestServer(t)

	body := `{"spec":{"nodes":[{"node_id":"a","tool":"echo"}],"edges":[{"from":"a","to":"a"}]}}`
	resp, err := http.Post(srv.URL+"/v1/workflows", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var events []domainworkflow.Event
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var ev domainworkflow.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.Len(t, events, 2)
	assert.Equal(t, domainworkflow.EventWorkflowFailed, events[0].Type)
	assert.Equal(t, "cycle", events[0].Error)
}

// brokenWriter fails every write, like a client that disconnected before
// the stream started.
type brokenWriter struct {
	header http.Header
}

func (w *brokenWriter) Header() http.Header {
	if w.header == nil {
		w.header = make(http.Header)
	}
	return w.header
}

func (w *brokenWriter) WriteHeader(int) {}

func (w *brokenWriter) Write([]byte) (int, error) {
	return 0, stderrors.New("client gone")
}

func TestSubmitDrainsEventsWhenClientGone(t *testing.T) {
	st := store.NewMemory()
	reg := registry.New(zerolog.Nop())
	require.NoError(t, tools.RegisterBuiltins(reg))
	// A one-slot buffer so an undrained stream would park the engine.
	eng := engine.New(reg, st, zerolog.Nop(), engine.WithEventBuffer(1))
	srv := New(eng, reg, st, nil, zerolog.Nop())

	spec := `{"spec":{"nodes":[{"node_id":"a","tool":"echo"},{"node_id":"b","tool":"echo"},{"node_id":"c","tool":"echo"}]}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/workflows", bytes.NewBufferString(spec))
	srv.Router().ServeHTTP(&brokenWriter{}, req)

	// The handler returned on the write failure; the run must still reach
	// a terminal state instead of blocking on the event channel.
	require.Eventually(t, func() bool {
		unfinished, err := st.ListUnfinishedWorkflows(context.Background())
		return err == nil && len(unfinished) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	body := `{"spec":{"nodes":[{"node_id":"n1","tool":"echo"}]}}`
	resp, err := http.Post(srv.URL+"/v1/workflows", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	metricsResp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	require.Equal(t, http.StatusOK, metricsResp.StatusCode)

	raw, err := io.ReadAll(metricsResp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "taskweave_workflows_total")
	assert.Contains(t, string(raw), `taskweave_nodes_total{status="COMPLETED",tool="echo"}`)
}

func TestSubmitMalformedBody(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Post(srv.URL+"/v1/workflows", "application/json", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInvokeTool(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/tools/checksum", "application/json",
		bytes.NewBufferString(`{"text":"hello"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out invokeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "checksum", out.Tool)
	assert.Equal(t, domainworkflow.StatusCompleted, out.Status)
	assert.Equal(t, "sha256", out.Result["algorithm"])
}

func TestInvokeToolFailure(t *testing.T) {
	srv, _ := newTestServer(t)

	// checksum requires text; an empty body violates the input schema.
	resp, err := http.Post(srv.URL+"/v1/tools/checksum", "application/json", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out invokeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, domainworkflow.StatusFailed, out.Status)
	assert.Equal(t, "input_schema", out.ErrorKind)
}

func TestInvokeUnknownTool(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Post(srv.URL+"/v1/tools/ghost", "application/json", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCatalogue(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/tools")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Tools []domainworkflow.ToolContract `json:"tools"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Tools, 5)
	assert.Equal(t, "checksum", out.Tools[0].Name)

	// Category filter.
	resp2, err := http.Get(srv.URL + "/v1/tools?category=admin")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var filtered struct {
		Tools []domainworkflow.ToolContract `json:"tools"`
	}
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&filtered))
	assert.Empty(t, filtered.Tools)
}

func TestToolSchemaEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/tools/checksum/schema")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	props := doc["properties"].(map[string]interface{})
	assert.Contains(t, props, "text")

	resp404, err := http.Get(srv.URL + "/v1/tools/ghost/schema")
	require.NoError(t, err)
	defer resp404.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp404.StatusCode)
}

func TestPipelineSchemaEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/schemas/pipeline?tools=make_id,checksum")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	props := doc["properties"].(map[string]interface{})
	assert.Contains(t, props, "prefix")
	assert.Contains(t, props, "text")

	respMissing, err := http.Get(srv.URL + "/v1/schemas/pipeline")
	require.NoError(t, err)
	defer respMissing.Body.Close()
	assert.Equal(t, http.StatusBadRequest, respMissing.StatusCode)
}

func TestWorkflowStatusEndpoint(t *testing.T) {
	srv, st := newTestServer(t)

	require.NoError(t, st.CreateWorkflow(context.Background(), &domainworkflow.Execution{
		ID:       "wf-1",
		Status:   domainworkflow.StatusCompleted,
		Progress: 1,
	}))
	require.NoError(t, st.CreateNode(context.Background(), &domainworkflow.NodeExecution{
		ID: "n-1", WorkflowID: "wf-1", NodeID: "a", Tool: "echo",
		Status: domainworkflow.StatusCompleted,
	}))

	resp, err := http.Get(srv.URL + "/v1/workflows/wf-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "wf-1", out.ID)
	assert.Equal(t, domainworkflow.StatusCompleted, out.Status)
	require.Len(t, out.Nodes, 1)
	assert.Equal(t, "a", out.Nodes[0].NodeID)

	resp404, err := http.Get(srv.URL + "/v1/workflows/missing")
	require.NoError(t, err)
	defer resp404.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp404.StatusCode)
}
