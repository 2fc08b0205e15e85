package run

import (
	"errors"

	"trendpress/internal/registry"
)

// ErrGateViolation is returned when Publish is reached without a satisfied
// approval gate. It is always fatal and never auto-resolved.
var ErrGateViolation = errors.New("publish attempted without approval")

// Gate is the single source of truth for "may this run publish". It reads
// the persisted admin_approved flag and performs no inference: approval is
// binary and externally supplied.
type Gate struct {
	reg registry.Registry
}

// NewGate creates a Gate over the registry.
func NewGate(reg registry.Registry) *Gate { return &Gate{reg: reg} }

// Decide reports whether the run is permitted to publish.
func (g *Gate) Decide(runID string) (bool, error) {
	run, err := g.reg.GetRun(runID)
	if err != nil {
		return false, err
	}
	return run.AdminApproved, nil
}
