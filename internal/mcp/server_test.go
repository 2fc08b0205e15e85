package mcp_test

import (
	"context"
	"encoding/json"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"trendpress/internal/artifact"
	"trendpress/internal/config"
	"trendpress/internal/journal"
	mcpserver "trendpress/internal/mcp"
	"trendpress/internal/registry"
	"trendpress/internal/run"
)

func newTestServer(t *testing.T) *mcpserver.Server {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.DataDir = dir
	cfg.Discovery.TopN = 2

	reg := registry.NewMemRegistry()
	store, err := artifact.NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	jnl, err := journal.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctrl, err := run.New(cfg, reg, store, jnl)
	if err != nil {
		t.Fatalf("run.New: %v", err)
	}
	return mcpserver.NewServer(ctrl, reg, jnl)
}

func connectInMemory(t *testing.T, ctx context.Context, srv *mcpserver.Server) *sdkmcp.ClientSession {
	t.Helper()
	t1, t2 := sdkmcp.NewInMemoryTransports()
	serverSession, err := srv.MCPServer.Connect(ctx, t1, nil)
	if err != nil {
		t.Fatalf("server.Connect: %v", err)
	}
	t.Cleanup(func() { serverSession.Close() })

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, t2, nil)
	if err != nil {
		t.Fatalf("client.Connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, ctx context.Context, session *sdkmcp.ClientSession, name string, args map[string]any) map[string]any {
	t.Helper()
	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if res.IsError {
		for _, c := range res.Content {
			if tc, ok := c.(*sdkmcp.TextContent); ok {
				t.Fatalf("CallTool(%s) returned error: %s", name, tc.Text)
			}
		}
		t.Fatalf("CallTool(%s) returned error", name)
	}
	result := make(map[string]any)
	for _, c := range res.Content {
		if tc, ok := c.(*sdkmcp.TextContent); ok {
			if err := json.Unmarshal([]byte(tc.Text), &result); err != nil {
				t.Fatalf("unmarshal tool result: %v (text: %s)", err, tc.Text)
			}
			return result
		}
	}
	t.Fatalf("no text content in tool result")
	return nil
}

func TestServerToolDiscovery(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	session := connectInMemory(t, ctx, srv)

	tools, err := session.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}

	want := map[string]bool{
		"start_run":     false,
		"run_status":    false,
		"approve_run":   false,
		"resume_run":    false,
		"list_runs":     false,
		"list_failures": false,
	}
	for _, tool := range tools.Tools {
		if _, ok := want[tool.Name]; ok {
			want[tool.Name] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("tool %q not found in ListTools", name)
		}
	}
}

func TestServerRunLifecycle(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	session := connectInMemory(t, ctx, srv)

	// Start without approval: the run suspends at the gate.
	started := callTool(t, ctx, session, "start_run", map[string]any{})
	runID, _ := started["run_id"].(string)
	if runID == "" {
		t.Fatalf("start_run result: %+v", started)
	}
	if started["state"] != "AWAITING_APPROVAL" || started["suspended"] != true {
		t.Fatalf("start_run result: %+v", started)
	}

	status := callTool(t, ctx, session, "run_status", map[string]any{"run_id": runID})
	if status["state"] != "AWAITING_APPROVAL" {
		t.Errorf("run_status: %+v", status)
	}

	// Resuming without approval leaves the run suspended.
	resumed := callTool(t, ctx, session, "resume_run", map[string]any{"run_id": runID})
	if resumed["state"] != "AWAITING_APPROVAL" {
		t.Errorf("unapproved resume: %+v", resumed)
	}

	approved := callTool(t, ctx, session, "approve_run", map[string]any{"run_id": runID})
	if approved["ok"] != "approved" {
		t.Errorf("approve_run: %+v", approved)
	}

	resumed = callTool(t, ctx, session, "resume_run", map[string]any{"run_id": runID})
	if resumed["state"] != "PUBLISHED" || resumed["status"] != "published" {
		t.Errorf("approved resume: %+v", resumed)
	}

	runs := callTool(t, ctx, session, "list_runs", map[string]any{})
	list, _ := runs["runs"].([]any)
	if len(list) != 1 {
		t.Fatalf("list_runs: %+v", runs)
	}
	row, _ := list[0].(map[string]any)
	if row["run_id"] != runID || row["admin_approved"] != true {
		t.Errorf("run summary: %+v", row)
	}
}

func TestServerStartRunPreApproved(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	session := connectInMemory(t, ctx, srv)

	started := callTool(t, ctx, session, "start_run", map[string]any{"approve": true})
	if started["state"] != "PUBLISHED" || started["status"] != "published" {
		t.Errorf("pre-approved start: %+v", started)
	}
}

func TestServerListFailuresEmpty(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	session := connectInMemory(t, ctx, srv)

	started := callTool(t, ctx, session, "start_run", map[string]any{})
	runID := started["run_id"].(string)

	res := callTool(t, ctx, session, "list_failures", map[string]any{"run_id": runID})
	failures, ok := res["failures"].([]any)
	if !ok || len(failures) != 0 {
		t.Errorf("list_failures: %+v", res)
	}
}

func TestServerUnknownRunErrors(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	session := connectInMemory(t, ctx, srv)

	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      "run_status",
		Arguments: map[string]any{"run_id": "nope"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Error("run_status on unknown run should be a tool error")
	}
}
