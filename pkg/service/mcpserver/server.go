// Package mcpserver exposes the engine over the Model Context Protocol
// (stdio). Every registered contract becomes an MCP tool; two extra
// tools submit workflows and query persisted status.
package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/taskweave/taskweave/pkg/domain/errors"
	"github.com/taskweave/taskweave/pkg/domain/workflow"
	"github.com/taskweave/taskweave/pkg/engine"
	"github.com/taskweave/taskweave/pkg/registry"
	"github.com/taskweave/taskweave/pkg/store"
)

const serverName = "taskweave"

// Server wraps the MCP server with taskweave's tool surface.
type Server struct {
	mcp      *server.MCPServer
	engine   *engine.Engine
	registry *registry.Registry
	store    store.Store
	log      zerolog.Logger
}

// toolResult is the JSON envelope serialised into every text response.
type toolResult struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Kind    string      `json:"kind,omitempty"`
}

// New builds the MCP server and registers one tool per contract plus the
// workflow tools.
func New(eng *engine.Engine, reg *registry.Registry, st store.Store, version string, log zerolog.Logger) *Server {
	s := &Server{
		mcp: server.NewMCPServer(
			serverName,
			version,
			server.WithToolCapabilities(true),
		),
		engine:   eng,
		registry: reg,
		store:    st,
		log:      log.With().Str("component", "mcpserver").Logger(),
	}

	for _, contract := range reg.Contracts() {
		s.registerContract(contract)
	}
	s.registerExecuteWorkflow()
	s.registerWorkflowStatus()
	return s
}

// ServeStdio blocks serving MCP over stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerContract(contract workflow.ToolContract) {
	tool := mcp.Tool{
		Name:        contract.Name,
		Description: contract.Description,
		InputSchema: toMCPSchema(contract.InputSchema),
	}
	name := contract.Name
	s.mcp.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		if args == nil {
			args = map[string]interface{}{}
		}
		outputs, err := s.engine.ExecuteTool(ctx, name, args)
		if err != nil {
			return errorResult(err), nil
		}
		return successResult(outputs), nil
	})
}

func (s *Server) registerExecuteWorkflow() {
	tool := mcp.Tool{
		Name:        "execute_workflow",
		Description: "Validates and executes a workflow spec, returning results per node",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"spec": map[string]interface{}{
					"type":        "object",
					"description": "Workflow spec with nodes and optional edges",
				},
			},
			Required: []string{"spec"},
		},
	}
	s.mcp.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		spec, err := decodeSpec(args["spec"])
		if err != nil {
			return errorResult(err), nil
		}

		summary := map[string]interface{}{}
		for ev := range s.engine.Execute(ctx, spec) {
			switch ev.Type {
			case workflow.EventStart:
				summary["workflow_id"] = ev.WorkflowID
			case workflow.EventWorkflowCompleted:
				summary["status"] = string(workflow.StatusCompleted)
				summary["results"] = ev.Results
			case workflow.EventWorkflowFailed:
				summary["status"] = string(workflow.StatusFailed)
				summary["error"] = ev.Error
				summary["error_kind"] = ev.ErrorKind
			}
		}
		if summary["status"] == string(workflow.StatusFailed) {
			res := errorResultMsg(summary["error"].(string), summary["error_kind"].(string))
			return res, nil
		}
		return successResult(summary), nil
	})
}

func (s *Server) registerWorkflowStatus() {
	tool := mcp.Tool{
		Name:        "workflow_status",
		Description: "Returns the persisted state of a workflow and its nodes",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"workflow_id": map[string]interface{}{
					"type": "string",
				},
			},
			Required: []string{"workflow_id"},
		},
	}
	s.mcp.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		id, _ := args["workflow_id"].(string)
		wf, err := s.store.GetWorkflow(ctx, id)
		if err != nil {
			return errorResult(err), nil
		}
		nodes, err := s.store.ListNodes(ctx, id)
		if err != nil {
			return errorResult(err), nil
		}

		nodeSummaries := make([]map[string]interface{}, 0, len(nodes))
		for _, n := range nodes {
			nodeSummaries = append(nodeSummaries, map[string]interface{}{
				"node_id": n.NodeID,
				"tool":    n.Tool,
				"status":  string(n.Status),
				"error":   n.ErrorMessage,
			})
		}
		return successResult(map[string]interface{}{
			"workflow_id": wf.ID,
			"status":      string(wf.Status),
			"progress":    wf.Progress,
			"error":       wf.ErrorMessage,
			"results":     wf.Results,
			"nodes":       nodeSummaries,
		}), nil
	})
}

// decodeSpec round-trips the raw argument through JSON into a Spec.
func decodeSpec(raw interface{}) (workflow.Spec, error) {
	var spec workflow.Spec
	if raw == nil {
		return spec, errors.Configf("mcpserver", "missing required parameter: spec")
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return spec, errors.Configf("mcpserver", "invalid spec: %v", err)
	}
	if err := json.Unmarshal(buf, &spec); err != nil {
		return spec, errors.Configf("mcpserver", "invalid spec: %v", err)
	}
	return spec, nil
}

// toMCPSchema projects a contract's input schema onto the MCP tool
// schema shape.
func toMCPSchema(doc map[string]interface{}) mcp.ToolInputSchema {
	schema := mcp.ToolInputSchema{Type: "object"}
	if props, ok := doc["properties"].(map[string]interface{}); ok {
		schema.Properties = props
	}
	switch req := doc["required"].(type) {
	case []string:
		schema.Required = req
	case []interface{}:
		for _, v := range req {
			if s, ok := v.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	return schema
}

func successResult(data interface{}) *mcp.CallToolResult {
	return textResult(toolResult{Success: true, Data: data}, false)
}

func errorResult(err error) *mcp.CallToolResult {
	return errorResultMsg(errors.MessageOf(err), string(errors.KindOf(err)))
}

func errorResultMsg(message, kind string) *mcp.CallToolResult {
	return textResult(toolResult{Success: false, Error: message, Kind: kind}, true)
}

func textResult(res toolResult, isError bool) *mcp.CallToolResult {
	payload, err := json.Marshal(res)
	if err != nil {
		payload = []byte(`{"success":false,"error":"result serialization failed"}`)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(payload),
			},
		},
		IsError: isError,
	}
}
