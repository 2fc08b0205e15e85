package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemRegistry is an in-memory Registry for tests and the fixture flow.
type MemRegistry struct {
	mu        sync.Mutex
	runs      map[string]*Run
	approvals map[string]*ApprovalDecision
}

// NewMemRegistry creates an empty in-memory registry.
func NewMemRegistry() *MemRegistry {
	return &MemRegistry{
		runs:      make(map[string]*Run),
		approvals: make(map[string]*ApprovalDecision),
	}
}

func (m *MemRegistry) Close() error { return nil }

func (m *MemRegistry) CreateRun(r *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[r.ID]; ok {
		return fmt.Errorf("registry: run %s: %w", r.ID, ErrRunExists)
	}
	cp := *r
	m.runs[r.ID] = &cp
	return nil
}

func (m *MemRegistry) GetRun(id string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemRegistry) ListRuns() ([]*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Run, 0, len(m.runs))
	for _, r := range m.runs {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemRegistry) UpdateState(id, state, terminalStatus string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	if r.TerminalStatus != "" {
		return fmt.Errorf("registry: run %s is terminal (%s)", r.ID, r.TerminalStatus)
	}
	r.State = state
	if terminalStatus != "" {
		r.TerminalStatus = terminalStatus
		r.CompletedAt = time.Now().UTC()
	}
	return nil
}

func (m *MemRegistry) IncrementFailures(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return fmt.Errorf("registry: run %s: %w", id, ErrNotFound)
	}
	r.FailureCount++
	return nil
}

func (m *MemRegistry) RecordApproval(d ApprovalDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[d.RunID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := m.approvals[d.RunID]; ok {
		return fmt.Errorf("registry: run %s: %w", d.RunID, ErrAlreadyDecided)
	}
	cp := d
	m.approvals[d.RunID] = &cp
	if d.Approved {
		r.AdminApproved = true
	}
	return nil
}

func (m *MemRegistry) GetApproval(runID string) (*ApprovalDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.approvals[runID]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}
