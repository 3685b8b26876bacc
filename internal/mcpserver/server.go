// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the hoard to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/cdot/Squirrel-sub002/internal/apperr"
	"github.com/cdot/Squirrel-sub002/internal/hoard"
	"github.com/cdot/Squirrel-sub002/internal/importer"
	"github.com/cdot/Squirrel-sub002/internal/vault"
)

const contractURI = "squirrel://action-contract"

// Server wraps the MCP server with the hoard tools.
type Server struct {
	mcp *server.MCPServer
	svc *vault.Service
}

// New creates a new MCP server with all tools registered. svc must be open.
func New(svc *vault.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Squirrel",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_tree",
		mcp.WithDescription("Return the whole tree as JSON."),
	), s.getTree)

	s.mcp.AddTool(mcp.NewTool("get_node",
		mcp.WithDescription("Return one node of the tree as JSON."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Node path, keys joined with ↘")),
	), s.getNode)

	s.mcp.AddTool(mcp.NewTool("play_action",
		mcp.WithDescription("Apply one action to the tree. "+
			"Read the contract first via the get_action_contract tool or the "+
			contractURI+" resource."),
		mcp.WithString("action", mcp.Required(), mcp.Description(`Action JSON, e.g. {"type":"N","path":["Sites"]}`)),
	), s.playAction)

	s.mcp.AddTool(mcp.NewTool("import_document",
		mcp.WithDescription("Graft a JSON or YAML document into the tree as a new node."),
		mcp.WithString("parent", mcp.Description("Parent path, keys joined with ↘ (empty for the top level)")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Key for the new node")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Document text")),
		mcp.WithString("format", mcp.Description("json or yaml (detected when empty)")),
	), s.importDocument)

	s.mcp.AddTool(mcp.NewTool("list_pending",
		mcp.WithDescription("List actions applied locally since the last sync."),
	), s.listPending)

	s.mcp.AddTool(mcp.NewTool("sync",
		mcp.WithDescription("Reconcile the local tree with the cloud copy."),
	), s.sync)

	s.mcp.AddTool(mcp.NewTool("check_alarms",
		mcp.WithDescription("Ring every alarm that is due and return the ones rung."),
	), s.checkAlarms)

	s.mcp.AddTool(mcp.NewTool("get_action_contract",
		mcp.WithDescription("Returns the action format contract. "+
			"Call this before play_action to ensure correct structure."),
	), s.getActionContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Action Contract",
			mcp.WithResourceDescription("Action types and payloads accepted by play_action."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getTree(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := s.svc.TreeJSON()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) getNode(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.svc.Node(hoard.ParsePath(p))
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", p)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(n)
}

func (s *Server) playAction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	a, err := hoard.ParseAction([]byte(raw), s.svc.Now())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Play(ctx, a)
	return playResult(res, err)
}

func (s *Server) importDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	format, err := importer.ParseFormat(req.GetString("format", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	parent := hoard.ParsePath(req.GetString("parent", ""))
	res, err := s.svc.Import(ctx, parent, name, []byte(content), format)
	return playResult(res, err)
}

func playResult(res hoard.Result, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !res.OK() {
		return mcp.NewToolResultError(res.Conflict), nil
	}
	return mcp.NewToolResultText("applied: " + res.Action.String()), nil
}

func (s *Server) listPending(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pending := s.svc.Pending()
	if len(pending) == 0 {
		return mcp.NewToolResultText("no pending actions"), nil
	}
	lines := make([]string, len(pending))
	for i, a := range pending {
		lines[i] = a.String()
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) sync(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rep, err := s.svc.Sync(ctx)
	if errors.Is(err, vault.ErrNoCloud) {
		return mcp.NewToolResultError("no cloud store configured"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rep)
}

func (s *Server) checkAlarms(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rung, err := s.svc.CheckAlarms(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(rung) == 0 {
		return mcp.NewToolResultText("no alarms due"), nil
	}
	return jsonResult(rung)
}

func (s *Server) getActionContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ActionContract), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     ActionContract,
		},
	}, nil
}
