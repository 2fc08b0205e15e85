// Package registry is the durable index of runs and approval decisions.
// Artifacts and logs live in per-run directories; the registry answers the
// cross-run questions: which runs exist, what state each is in, and whether
// an approval decision has been recorded.
package registry

import (
	"errors"
	"time"
)

// DefaultDBPath is the default relative path for the SQLite DB.
const DefaultDBPath = ".trendpress/trendpress.db"

var (
	// ErrNotFound is returned when a run does not exist.
	ErrNotFound = errors.New("run not found")
	// ErrRunExists is returned when creating a run whose ID is taken.
	ErrRunExists = errors.New("run already exists")
	// ErrAlreadyDecided is returned when an approval decision is recorded
	// for a run that already has one. Decisions are set at most once.
	ErrAlreadyDecided = errors.New("approval already decided")
)

// Run is one pipeline run as the registry sees it.
type Run struct {
	ID             string
	Mode           string // "fixture" or "live"
	State          string
	AdminApproved  bool
	FailureCount   int
	CreatedAt      time.Time
	CompletedAt    time.Time // zero until terminal
	TerminalStatus string    // "", "published", "failed"
}

// Terminal reports whether the run reached a terminal status.
func (r *Run) Terminal() bool { return r.TerminalStatus != "" }

// ApprovalDecision records the explicit external approval action for a run.
// Once a true decision exists it cannot be revoked within that run.
type ApprovalDecision struct {
	RunID     string
	Approved  bool
	Source    string // who supplied the decision: "cli", "mcp", "start-flag"
	DecidedAt time.Time
}

// Registry is the persistence facade for runs and approvals. The CLI, the
// MCP server, and the controller use only this interface; the
// implementation is SQLite or in-memory.
type Registry interface {
	CreateRun(r *Run) error
	GetRun(id string) (*Run, error)
	ListRuns() ([]*Run, error)
	// UpdateState records a state transition; terminalStatus is set only
	// for terminal states and freezes the run.
	UpdateState(id, state, terminalStatus string) error
	IncrementFailures(id string) error
	// RecordApproval stores the decision (at most once per run) and, when
	// approved, sets the run's admin_approved flag.
	RecordApproval(d ApprovalDecision) error
	GetApproval(runID string) (*ApprovalDecision, error)
	Close() error
}
