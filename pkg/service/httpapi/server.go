// Package httpapi exposes the engine over HTTP: workflow submission with
// NDJSON event streaming, single-tool invocation, the tool catalogue,
// and workflow status.
package httpapi

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/taskweave/taskweave/pkg/domain/errors"
	"github.com/taskweave/taskweave/pkg/domain/workflow"
	"github.com/taskweave/taskweave/pkg/engine"
	"github.com/taskweave/taskweave/pkg/observability/metrics"
	"github.com/taskweave/taskweave/pkg/registry"
	"github.com/taskweave/taskweave/pkg/schema"
	"github.com/taskweave/taskweave/pkg/store"
)

// Server wires the HTTP handlers to the engine, registry, and store.
type Server struct {
	engine   *engine.Engine
	registry *registry.Registry
	store    store.Store
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// New creates the HTTP server facade. A nil metrics disables /metrics.
func New(eng *engine.Engine, reg *registry.Registry, st store.Store, m *metrics.Metrics, log zerolog.Logger) *Server {
	return &Server{
		engine:   eng,
		registry: reg,
		store:    st,
		metrics:  m,
		log:      log.With().Str("component", "httpapi").Logger(),
	}
}

// Router builds the chi router for the API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/workflows", s.handleSubmit)
		r.Get("/workflows/{id}", s.handleStatus)
		r.Get("/tools", s.handleCatalogue)
		r.Post("/tools/{name}", s.handleInvoke)
		r.Get("/tools/{name}/schema", s.handleToolSchema)
		r.Get("/schemas/pipeline", s.handlePipelineSchema)
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return r
}

type submitRequest struct {
	Spec workflow.Spec `json:"spec"`
}

// handleSubmit runs a workflow and streams its events as NDJSON, one
// event per line, flushed as they happen. The final line is always the
// complete event.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.Configf("httpapi", "invalid request body: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	enc := json.NewEncoder(w)
	events := s.engine.Execute(r.Context(), req.Spec)
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			// Client went away. Drain the stream so the engine never
			// blocks on a full event buffer.
			s.log.Debug().Err(err).Msg("Event stream write failed")
			for range events {
			}
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

type invokeResponse struct {
	Tool      string                 `json:"tool"`
	Status    workflow.Status        `json:"status"`
	Result    map[string]interface{} `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
	ErrorKind string                 `json:"error_kind,omitempty"`
}

// handleInvoke runs one tool as a degenerate workflow.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := s.registry.Describe(name); !ok {
		s.writeError(w, http.StatusNotFound, errors.UnknownTool("httpapi", name))
		return
	}

	args := map[string]interface{}{}
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil && !stderrors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, errors.Configf("httpapi", "invalid request body: %v", err))
		return
	}

	outputs, err := s.engine.ExecuteTool(r.Context(), name, args)
	if err != nil {
		s.writeJSON(w, http.StatusOK, invokeResponse{
			Tool:      name,
			Status:    workflow.StatusFailed,
			Error:     errors.MessageOf(err),
			ErrorKind: string(errors.KindOf(err)),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, invokeResponse{
		Tool:   name,
		Status: workflow.StatusCompleted,
		Result: outputs,
	})
}

// handleCatalogue lists registered contracts, optionally filtered by
// category.
func (s *Server) handleCatalogue(w http.ResponseWriter, r *http.Request) {
	category := workflow.Category(strings.ToUpper(r.URL.Query().Get("category")))
	contracts := s.registry.Contracts()
	out := make([]workflow.ToolContract, 0, len(contracts))
	for _, c := range contracts {
		if category != "" && c.Category != category {
			continue
		}
		out = append(out, c)
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"tools": out})
}

// handleToolSchema returns a tool's input schema, standalone by default
// or with dependencies inlined when mode=combined.
func (s *Server) handleToolSchema(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var (
		doc map[string]interface{}
		err error
	)
	switch r.URL.Query().Get("mode") {
	case "", "standalone":
		doc, err = schema.StandaloneSchema(s.registry, name)
	case "combined":
		doc, err = schema.CombinedSchema(s.registry, name)
	default:
		s.writeError(w, http.StatusBadRequest, errors.Configf("httpapi", "unknown schema mode"))
		return
	}
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.IsKind(err, errors.KindUnknownTool) {
			status = http.StatusNotFound
		}
		s.writeError(w, status, err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

// handlePipelineSchema composes the effective input schema of an ordered
// tool pipeline: ?tools=a,b,c.
func (s *Server) handlePipelineSchema(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("tools")
	if raw == "" {
		s.writeError(w, http.StatusBadRequest, errors.Configf("httpapi", "tools query parameter required"))
		return
	}
	doc, err := schema.PipelineSchema(s.registry, strings.Split(raw, ","))
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.IsKind(err, errors.KindUnknownTool) {
			status = http.StatusNotFound
		}
		s.writeError(w, status, err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

type statusResponse struct {
	ID           string                            `json:"id"`
	Status       workflow.Status                   `json:"status"`
	Progress     float64                           `json:"progress"`
	Error        string                            `json:"error,omitempty"`
	Results      map[string]map[string]interface{} `json:"results,omitempty"`
	Nodes        []nodeStatus                      `json:"nodes"`
	CreatedAt    string                            `json:"created_at"`
	StartedAt    string                            `json:"started_at,omitempty"`
	CompletedAt  string                            `json:"completed_at,omitempty"`
}

type nodeStatus struct {
	NodeID          string          `json:"node_id"`
	Tool            string          `json:"tool"`
	Status          workflow.Status `json:"status"`
	Error           string          `json:"error,omitempty"`
	IsolationHandle string          `json:"isolation_handle,omitempty"`
}

// handleStatus returns the persisted state of a workflow and its nodes.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	wf, err := s.store.GetWorkflow(r.Context(), id)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, store.ErrNotFound)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	nodes, err := s.store.ListNodes(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	resp := statusResponse{
		ID:        wf.ID,
		Status:    wf.Status,
		Progress:  wf.Progress,
		Error:     wf.ErrorMessage,
		Results:   wf.Results,
		Nodes:     make([]nodeStatus, 0, len(nodes)),
		CreatedAt: wf.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if wf.StartedAt != nil {
		resp.StartedAt = wf.StartedAt.Format("2006-01-02T15:04:05.000Z07:00")
	}
	if wf.CompletedAt != nil {
		resp.CompletedAt = wf.CompletedAt.Format("2006-01-02T15:04:05.000Z07:00")
	}
	for _, n := range nodes {
		resp.Nodes = append(resp.Nodes, nodeStatus{
			NodeID:          n.NodeID,
			Tool:            n.Tool,
			Status:          n.Status,
			Error:           n.ErrorMessage,
			IsolationHandle: n.IsolationHandle,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("Failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{
		"error": errors.MessageOf(err),
		"kind":  string(errors.KindOf(err)),
	})
}
