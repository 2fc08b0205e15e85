// Package mcp exposes the run controller over the Model Context Protocol
// so an agent can start runs, watch their state, and grant approvals
// through stdio tools.
package mcp

import (
	"context"
	"errors"
	"fmt"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"trendpress/internal/journal"
	"trendpress/internal/registry"
	"trendpress/internal/run"
)

// Server wraps the MCP SDK server around a single controller. Tool calls
// for the same run serialize on the controller's per-run lock.
type Server struct {
	MCPServer  *sdkmcp.Server
	Controller *run.Controller
	Registry   registry.Registry
	Journal    *journal.Journal
}

// NewServer creates an MCP server with the run lifecycle tools registered.
func NewServer(ctrl *run.Controller, reg registry.Registry, jnl *journal.Journal) *Server {
	s := &Server{Controller: ctrl, Registry: reg, Journal: jnl}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "trendpress", Version: "dev"},
		nil,
	)
	s.registerTools()
	return s
}

// Run serves the MCP server over the given transport until ctx ends.
func (s *Server) Run(ctx context.Context, t sdkmcp.Transport) error {
	return s.MCPServer.Run(ctx, t)
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "start_run",
		Description: "Start a new pipeline run in the configured mode. The run advances until it suspends for approval or reaches a terminal state.",
	}, s.handleStartRun)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "run_status",
		Description: "Report a run's current state, approval flag, and failure count without advancing it.",
	}, s.handleRunStatus)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "approve_run",
		Description: "Record the admin approval decision for a run. Does not advance the run; use resume_run afterwards.",
	}, s.handleApproveRun)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "resume_run",
		Description: "Re-enter an existing run. Completed stages are never re-run; a suspended run re-checks the approval gate, a terminal run reports its status unchanged.",
	}, s.handleResumeRun)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_runs",
		Description: "List all known runs with state, approval flag, and terminal status.",
	}, s.handleListRuns)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_failures",
		Description: "Read the append-only failure log for a run, in append order.",
	}, s.handleListFailures)
}

// --- Tool input/output types ---

type startRunInput struct {
	Approve bool `json:"approve,omitempty" jsonschema:"record admin approval up front so the run publishes without suspending"`
}

type runStatusInput struct {
	RunID string `json:"run_id" jsonschema:"run ID from start_run"`
}

type approveRunInput struct {
	RunID string `json:"run_id" jsonschema:"run ID from start_run"`
}

type approveRunOutput struct {
	OK string `json:"ok"`
}

type resumeRunInput struct {
	RunID   string `json:"run_id" jsonschema:"run ID from start_run"`
	Approve bool   `json:"approve,omitempty" jsonschema:"record admin approval before resuming"`
}

type runOutput struct {
	RunID          string `json:"run_id"`
	State          string `json:"state"`
	Suspended      bool   `json:"suspended,omitempty"`
	TerminalStatus string `json:"status,omitempty"`
	Failures       int    `json:"failures"`
}

type listRunsInput struct{}

type runSummary struct {
	RunID          string `json:"run_id"`
	Mode           string `json:"mode"`
	State          string `json:"state"`
	AdminApproved  bool   `json:"admin_approved"`
	TerminalStatus string `json:"status,omitempty"`
	Failures       int    `json:"failures"`
}

type listRunsOutput struct {
	Runs []runSummary `json:"runs"`
}

type listFailuresInput struct {
	RunID string `json:"run_id" jsonschema:"run ID from start_run"`
}

type listFailuresOutput struct {
	Failures []journal.Failure `json:"failures"`
}

// --- Tool handlers ---

func (s *Server) handleStartRun(ctx context.Context, _ *sdkmcp.CallToolRequest, input startRunInput) (*sdkmcp.CallToolResult, runOutput, error) {
	res, err := s.Controller.Start(ctx, input.Approve, "mcp")
	if err != nil && res == nil {
		return nil, runOutput{}, fmt.Errorf("start run: %w", err)
	}
	// A run that failed cleanly still has a reportable terminal state.
	return nil, toRunOutput(res), nil
}

func (s *Server) handleRunStatus(_ context.Context, _ *sdkmcp.CallToolRequest, input runStatusInput) (*sdkmcp.CallToolResult, runOutput, error) {
	res, err := s.Controller.Status(input.RunID)
	if err != nil {
		return nil, runOutput{}, err
	}
	return nil, toRunOutput(res), nil
}

func (s *Server) handleApproveRun(_ context.Context, _ *sdkmcp.CallToolRequest, input approveRunInput) (*sdkmcp.CallToolResult, approveRunOutput, error) {
	if _, err := s.Registry.GetRun(input.RunID); err != nil {
		return nil, approveRunOutput{}, err
	}
	if err := s.Controller.Approve(input.RunID, "mcp"); err != nil {
		return nil, approveRunOutput{}, err
	}
	return nil, approveRunOutput{OK: "approved"}, nil
}

func (s *Server) handleResumeRun(ctx context.Context, _ *sdkmcp.CallToolRequest, input resumeRunInput) (*sdkmcp.CallToolResult, runOutput, error) {
	res, err := s.Controller.Resume(ctx, input.RunID, input.Approve, "mcp")
	if err != nil {
		if res != nil {
			return nil, toRunOutput(res), nil
		}
		if errors.Is(err, registry.ErrNotFound) {
			return nil, runOutput{}, err
		}
		return nil, runOutput{}, fmt.Errorf("resume run: %w", err)
	}
	return nil, toRunOutput(res), nil
}

func (s *Server) handleListRuns(_ context.Context, _ *sdkmcp.CallToolRequest, _ listRunsInput) (*sdkmcp.CallToolResult, listRunsOutput, error) {
	runs, err := s.Registry.ListRuns()
	if err != nil {
		return nil, listRunsOutput{}, err
	}
	out := listRunsOutput{Runs: make([]runSummary, 0, len(runs))}
	for _, r := range runs {
		out.Runs = append(out.Runs, runSummary{
			RunID:          r.ID,
			Mode:           r.Mode,
			State:          r.State,
			AdminApproved:  r.AdminApproved,
			TerminalStatus: r.TerminalStatus,
			Failures:       r.FailureCount,
		})
	}
	return nil, out, nil
}

func (s *Server) handleListFailures(_ context.Context, _ *sdkmcp.CallToolRequest, input listFailuresInput) (*sdkmcp.CallToolResult, listFailuresOutput, error) {
	if _, err := s.Registry.GetRun(input.RunID); err != nil {
		return nil, listFailuresOutput{}, err
	}
	failures, err := s.Journal.Failures(input.RunID)
	if err != nil {
		return nil, listFailuresOutput{}, err
	}
	if failures == nil {
		failures = []journal.Failure{}
	}
	return nil, listFailuresOutput{Failures: failures}, nil
}

func toRunOutput(res *run.Result) runOutput {
	return runOutput{
		RunID:          res.RunID,
		State:          string(res.State),
		Suspended:      res.Suspended,
		TerminalStatus: res.TerminalStatus,
		Failures:       res.Failures,
	}
}
