package mcpserver

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/cdot/Squirrel-sub002/internal/clock"
	"github.com/cdot/Squirrel-sub002/internal/testutil"
	"github.com/cdot/Squirrel-sub002/internal/vault"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	_, store := testutil.TestStore(t)
	svc := vault.New(store, "",
		vault.WithClock(clock.NewFake(time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC))),
		vault.WithLogger(testutil.Logger()))
	if err := svc.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	return New(svc, "test")
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "get_tree":
		result, err = srv.getTree(ctx, req)
	case "get_node":
		result, err = srv.getNode(ctx, req)
	case "play_action":
		result, err = srv.playAction(ctx, req)
	case "import_document":
		result, err = srv.importDocument(ctx, req)
	case "list_pending":
		result, err = srv.listPending(ctx, req)
	case "sync":
		result, err = srv.sync(ctx, req)
	case "check_alarms":
		result, err = srv.checkAlarms(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestPlayAndReadNode(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "play_action", map[string]interface{}{
		"action": `{"type":"N","path":["Sites"]}`,
	})
	if r.IsError || !strings.HasPrefix(resultText(r), "applied: N:Sites") {
		t.Errorf("play result = %q", resultText(r))
	}
	r = callTool(t, srv, "play_action", map[string]interface{}{
		"action": `{"type":"N","path":"Sites↘Bank","data":"pw"}`,
	})
	if r.IsError {
		t.Fatalf("play leaf: %s", resultText(r))
	}

	r = callTool(t, srv, "get_node", map[string]interface{}{"path": "Sites↘Bank"})
	if !strings.Contains(resultText(r), `"data": "pw"`) {
		t.Errorf("node = %q", resultText(r))
	}

	r = callTool(t, srv, "list_pending", map[string]interface{}{})
	if got := strings.Count(resultText(r), "\n") + 1; got != 2 {
		t.Errorf("pending lines = %d, want 2: %q", got, resultText(r))
	}
}

func TestPlayConflict(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "play_action", map[string]interface{}{
		"action": `{"type":"N","path":["Junk","Burger"]}`,
	})
	if !r.IsError || resultText(r) != "Cannot create 'Junk↘Burger': Node not found" {
		t.Errorf("conflict = %v %q", r.IsError, resultText(r))
	}

	r = callTool(t, srv, "play_action", map[string]interface{}{"action": `{"type":"Z"}`})
	if !r.IsError {
		t.Error("expected error for unknown action type")
	}
}

func TestPlayActionStampsLegacyAlarm(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "play_action", map[string]interface{}{"action": `{"type":"N","path":"pw","data":"v"}`})
	r := callTool(t, srv, "play_action", map[string]interface{}{"action": `{"type":"A","path":"pw","data":1}`})
	if r.IsError {
		t.Fatalf("alarm: %s", resultText(r))
	}
	r = callTool(t, srv, "check_alarms", map[string]interface{}{})
	if resultText(r) != "no alarms due" {
		t.Errorf("a one day alarm set now rang immediately: %q", resultText(r))
	}
}

func TestGetNodeMissing(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "get_node", map[string]interface{}{"path": "nope"})
	if !r.IsError {
		t.Error("expected error for missing node")
	}
}

func TestImportDocument(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "import_document", map[string]interface{}{
		"name":    "Bank",
		"content": `{"user": "alice", "pin": "1234"}`,
	})
	if r.IsError {
		t.Fatalf("import: %s", resultText(r))
	}
	r = callTool(t, srv, "get_tree", map[string]interface{}{})
	if !strings.Contains(resultText(r), `"alice"`) {
		t.Errorf("tree = %q", resultText(r))
	}
}

func TestSyncWithoutCloud(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "sync", map[string]interface{}{})
	if !r.IsError || resultText(r) != "no cloud store configured" {
		t.Errorf("sync = %q", resultText(r))
	}
}

func TestCheckAlarmsNoneDue(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "check_alarms", map[string]interface{}{})
	if resultText(r) != "no alarms due" {
		t.Errorf("alarms = %q", resultText(r))
	}
}
