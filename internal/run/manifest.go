package run

import (
	"time"

	"trendpress/internal/stage"
)

// StageRecord is one per-stage summary row in the manifest.
type StageRecord struct {
	Stage    stage.Stage `json:"stage"`
	Status   string      `json:"status"` // "done" or "failed"
	Count    int         `json:"count"`
	Degraded bool        `json:"degraded,omitempty"`
	Attempts int         `json:"attempts"`
	At       time.Time   `json:"at"`
}

// Manifest is the per-run summary document, atomically replaced on every
// state transition. It is the operator-facing record of what happened.
type Manifest struct {
	RunID          string        `json:"run_id"`
	Mode           string        `json:"mode"`
	State          State         `json:"state"`
	AdminApproved  bool          `json:"admin_approved"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at,omitempty"`
	TerminalStatus string        `json:"status,omitempty"`
	FailureCount   int           `json:"failure_count"`
	Stages         []StageRecord `json:"stages"`
}

// Degraded reports whether any completed stage produced a degraded result.
func (m *Manifest) Degraded() bool {
	for _, s := range m.Stages {
		if s.Degraded {
			return true
		}
	}
	return false
}
