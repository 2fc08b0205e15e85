// Package run owns the run lifecycle: the state machine that sequences the
// fixed stage order, validates hand-offs through the stage adapter,
// aggregates failures without crashing the run, enforces the approval gate
// ahead of Publish, and supports idempotent re-entry at any resting state.
package run

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"trendpress/internal/adapter"
	"trendpress/internal/artifact"
	"trendpress/internal/config"
	"trendpress/internal/discover"
	"trendpress/internal/journal"
	"trendpress/internal/logging"
	"trendpress/internal/publish"
	"trendpress/internal/registry"
	"trendpress/internal/review"
	"trendpress/internal/stage"
	"trendpress/internal/verify"
)

// Controller drives runs from creation to a terminal state. One controller
// serves many concurrent runs; per-run exclusive locks serialize stage
// execution within a run.
type Controller struct {
	cfg       config.Config
	reg       registry.Registry
	artifacts *artifact.Store
	journal   *journal.Journal
	gate      *Gate
	impls     map[stage.Stage]adapter.Implementation
	logger    *slog.Logger
}

// New wires a Controller: the Discovery implementation is resolved once
// from the configured mode, the remaining stages get their configured
// implementations.
func New(cfg config.Config, reg registry.Registry, store *artifact.Store, jnl *journal.Journal) (*Controller, error) {
	disc, err := discover.Select(cfg)
	if err != nil {
		return nil, err
	}
	pub, err := publish.Select(cfg.Publish)
	if err != nil {
		return nil, err
	}
	return &Controller{
		cfg:       cfg,
		reg:       reg,
		artifacts: store,
		journal:   jnl,
		gate:      NewGate(reg),
		impls: map[stage.Stage]adapter.Implementation{
			stage.Discovery:    disc,
			stage.Verification: verify.NewFixture(cfg.Verification),
			stage.Review:       review.NewFixture(),
			stage.Publish:      pub,
		},
		logger: logging.New("run"),
	}, nil
}

// SetImplementation overrides one stage implementation. The Discovery
// override must honor the shared output contract; mode selection still
// happens only here, never downstream.
func (c *Controller) SetImplementation(st stage.Stage, impl adapter.Implementation) {
	c.impls[st] = impl
}

// Result is what an invocation reports back to the operator: the run's
// terminal or current state plus the accumulated failure count.
type Result struct {
	RunID          string
	State          State
	TerminalStatus string
	Failures       int
	Suspended      bool
}

// NewRunID derives a unique, time-ordered run identifier.
func NewRunID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return now.UTC().Format("20060102-1504") + "-" + suffix
}

// Start creates a new run in the configured mode and drives it as far as
// the approval gate allows. With approve set, the approval decision is
// recorded before the pipeline starts.
func (c *Controller) Start(ctx context.Context, approve bool, source string) (*Result, error) {
	now := time.Now().UTC()
	runID := NewRunID(now)

	if err := c.reg.CreateRun(&registry.Run{
		ID:        runID,
		Mode:      c.cfg.Mode,
		State:     string(StateInit),
		CreatedAt: now,
	}); err != nil {
		return nil, err
	}
	if err := c.artifacts.WriteManifest(runID, &Manifest{
		RunID:     runID,
		Mode:      c.cfg.Mode,
		State:     StateInit,
		StartedAt: now,
		Stages:    []StageRecord{},
	}); err != nil {
		return nil, err
	}
	if err := c.journal.Event(runID, "", journal.EventRunStarted, c.cfg.Mode); err != nil {
		return nil, err
	}
	if approve {
		if err := c.Approve(runID, source); err != nil {
			return nil, err
		}
	}

	c.logger.Info("run started", "run", runID, "mode", c.cfg.Mode, "approved", approve)
	return c.drive(ctx, runID)
}

// Resume re-enters an existing run. Completed stages are never re-run: a
// suspended run re-checks the gate and proceeds to Publish when satisfied,
// and a terminal run is a no-op reporting its existing status.
func (c *Controller) Resume(ctx context.Context, runID string, approve bool, source string) (*Result, error) {
	run, err := c.reg.GetRun(runID)
	if err != nil {
		return nil, err
	}
	if approve && !run.AdminApproved && !run.Terminal() {
		if err := c.Approve(runID, source); err != nil {
			return nil, err
		}
	}
	return c.drive(ctx, runID)
}

// Approve records the explicit external approval decision for a run. The
// decision is set at most once; approving an already-approved run is a
// no-op, and a recorded rejection cannot be flipped.
func (c *Controller) Approve(runID, source string) error {
	if d, err := c.reg.GetApproval(runID); err != nil {
		return err
	} else if d != nil {
		if d.Approved {
			return nil
		}
		return fmt.Errorf("run %s: approval was explicitly rejected by %s: %w",
			runID, d.Source, registry.ErrAlreadyDecided)
	}
	if err := c.reg.RecordApproval(registry.ApprovalDecision{
		RunID:     runID,
		Approved:  true,
		Source:    source,
		DecidedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}
	return c.journal.Event(runID, "", journal.EventApprovalGranted, source)
}

// Status reports a run without driving it.
func (c *Controller) Status(runID string) (*Result, error) {
	run, err := c.reg.GetRun(runID)
	if err != nil {
		return nil, err
	}
	return c.result(run), nil
}

// drive advances the run until it suspends, terminates, or fails. It holds
// the run's exclusive lock for the whole walk: one active stage execution
// per run at a time.
func (c *Controller) drive(ctx context.Context, runID string) (*Result, error) {
	release := c.artifacts.Lock(runID)
	defer release()

	for {
		run, err := c.reg.GetRun(runID)
		if err != nil {
			return nil, err
		}
		state := State(run.State)

		if state.Terminal() {
			return c.result(run), nil
		}

		// Cooperative cancellation, checked at stage boundaries only.
		if ctx.Err() != nil {
			c.record(c.journal.Event(runID, "", journal.EventRunCancelled, ctx.Err().Error()))
			if err := c.transition(runID, StateFailed, "failed", nil); err != nil {
				return nil, err
			}
			continue
		}

		// Re-entry into an in-flight state: a crash may have landed the
		// artifact without the follow-up transition. Never re-invoke a
		// stage whose artifact already exists.
		if st := pendingStage(state); st != "" {
			if c.artifacts.Exists(runID, st) {
				if err := c.completeStage(runID, st, 1); err != nil {
					return nil, err
				}
				continue
			}
			if err := c.executeStage(ctx, runID, st); err != nil {
				run, _ = c.reg.GetRun(runID)
				return c.result(run), err
			}
			continue
		}

		switch state {
		case StateInit, StateDiscovered, StateVerified, StateApproved:
			st := nextStage(state)
			if c.artifacts.Exists(runID, st) {
				if err := c.completeStage(runID, st, 1); err != nil {
					return nil, err
				}
				continue
			}
			if err := c.runStage(ctx, runID, st); err != nil {
				run, _ = c.reg.GetRun(runID)
				return c.result(run), err
			}

		case StateReviewed:
			if err := c.enterApprovalWait(runID); err != nil {
				run, _ = c.reg.GetRun(runID)
				return c.result(run), err
			}

		case StateAwaitingApproval:
			approved, err := c.gate.Decide(runID)
			if err != nil {
				return nil, err
			}
			if !approved {
				c.record(c.journal.Event(runID, "", journal.EventRunSuspended, "awaiting admin approval"))
				c.logger.Info("run suspended", "run", runID)
				return c.result(run), nil
			}
			if err := c.transition(runID, StateApproved, "", nil); err != nil {
				return nil, err
			}

		default:
			return nil, fmt.Errorf("run %s: unexpected state %s", runID, state)
		}
	}
}

// enterApprovalWait moves a reviewed run into the approval wait, unless a
// degraded upstream artifact is configured to block publication.
func (c *Controller) enterApprovalWait(runID string) error {
	if !c.cfg.DegradedPublishAllowed() {
		var m Manifest
		if err := c.artifacts.ReadManifest(runID, &m); err != nil {
			return err
		}
		if m.Degraded() {
			msg := "degraded upstream artifact is not permitted to reach publish"
			c.record(c.journal.Failure(runID, stage.Review, journal.KindExecutionError, msg))
			c.record(c.reg.IncrementFailures(runID))
			if err := c.transition(runID, StateFailed, "failed", nil); err != nil {
				return err
			}
			return fmt.Errorf("run %s: %s", runID, msg)
		}
	}
	return c.transition(runID, StateAwaitingApproval, "", nil)
}

// runStage transitions into the stage's in-flight state and executes it.
func (c *Controller) runStage(ctx context.Context, runID string, st stage.Stage) error {
	if err := c.transition(runID, activeState(st), "", nil); err != nil {
		return err
	}
	c.record(c.journal.Event(runID, st, journal.EventStageStarted, c.impls[st].Name()))
	return c.executeStage(ctx, runID, st)
}

// executeStage runs the stage adapter with bounded retries on execution
// errors. Schema violations are never retried. The Publish adapter is
// invoked if and only if the approval gate is satisfied at invocation
// time.
func (c *Controller) executeStage(ctx context.Context, runID string, st stage.Stage) error {
	if st == stage.Publish {
		approved, err := c.gate.Decide(runID)
		if err != nil {
			return err
		}
		if !approved {
			msg := "approval gate unsatisfied at publish invocation"
			c.record(c.journal.Failure(runID, stage.Publish, journal.KindGateViolation, msg))
			c.record(c.reg.IncrementFailures(runID))
			if err := c.transition(runID, StateFailed, "failed", nil); err != nil {
				return err
			}
			return fmt.Errorf("run %s: %s: %w", runID, msg, ErrGateViolation)
		}
	}

	input, err := c.stageInput(runID, st)
	if err != nil {
		c.record(c.journal.Failure(runID, st, journal.KindExecutionError, err.Error()))
		c.record(c.reg.IncrementFailures(runID))
		if terr := c.transition(runID, StateFailed, "failed", failedRecord(st)); terr != nil {
			return terr
		}
		return err
	}

	ad := adapter.New(st, c.impls[st], c.artifacts, c.journal)
	maxAttempts := 1 + c.cfg.Retry.MaxAttempts

	var status adapter.Status
	var execErr error
	attempts := 0
	for attempt := 0; attempt < maxAttempts; attempt++ {
		attempts = attempt + 1
		_, status, execErr = ad.Execute(ctx, runID, input, attempt > 0)
		if status == adapter.StatusOK {
			break
		}
		c.record(c.reg.IncrementFailures(runID))
		if status == adapter.StatusSchemaInvalid {
			break // a defect in the external stage, surfaced immediately
		}
		if attempt+1 < maxAttempts {
			c.record(c.journal.Event(runID, st, journal.EventStageRetried,
				fmt.Sprintf("attempt %d of %d", attempt+2, maxAttempts)))
		}
	}

	if status != adapter.StatusOK {
		c.logger.Error("stage escalated", "run", runID, "stage", st, "status", status, "error", execErr)
		if terr := c.transition(runID, StateFailed, "failed", failedRecord(st)); terr != nil {
			return terr
		}
		return execErr
	}
	return c.completeStage(runID, st, attempts)
}

// completeStage summarizes the persisted artifact, records the manifest
// stage row, and advances to the stage's resting state (terminal for
// Publish).
func (c *Controller) completeStage(runID string, st stage.Stage, attempts int) error {
	count, degraded, detail := c.summarize(runID, st)
	if degraded {
		c.record(c.journal.Event(runID, st, journal.EventDegradedResult, detail))
	}
	rec := &StageRecord{
		Stage:    st,
		Status:   "done",
		Count:    count,
		Degraded: degraded,
		Attempts: attempts,
		At:       time.Now().UTC(),
	}
	terminal := ""
	next := doneState(st)
	if next == StatePublished {
		terminal = "published"
	}
	return c.transition(runID, next, terminal, rec)
}

// stageInput builds the input document for a stage: the RunRequest for
// Discovery, the prior stage's artifact otherwise.
func (c *Controller) stageInput(runID string, st stage.Stage) (any, error) {
	switch st {
	case stage.Discovery:
		var m Manifest
		if err := c.artifacts.ReadManifest(runID, &m); err != nil {
			return nil, err
		}
		return stage.RunRequest{
			RunID:       runID,
			Mode:        m.Mode,
			TopN:        c.cfg.Discovery.TopN,
			WindowHours: c.cfg.Discovery.WindowHours,
			StartedAt:   m.StartedAt,
		}, nil
	case stage.Verification:
		var d stage.DiscoveryDoc
		if err := c.artifacts.Read(runID, stage.Discovery, &d); err != nil {
			return nil, err
		}
		return d, nil
	case stage.Review:
		var d stage.VerificationDoc
		if err := c.artifacts.Read(runID, stage.Verification, &d); err != nil {
			return nil, err
		}
		return d, nil
	case stage.Publish:
		var d stage.ReviewDoc
		if err := c.artifacts.Read(runID, stage.Review, &d); err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, fmt.Errorf("run: no input builder for stage %s", st)
}

// summarize derives the stage row's record count and degraded flag from
// the persisted artifact.
func (c *Controller) summarize(runID string, st stage.Stage) (count int, degraded bool, detail string) {
	switch st {
	case stage.Discovery:
		var d stage.DiscoveryDoc
		if err := c.artifacts.Read(runID, st, &d); err != nil {
			return 0, false, ""
		}
		count = len(d.Items)
		if count < c.cfg.Discovery.TopN {
			return count, true, fmt.Sprintf("discovery produced %d of %d requested candidates", count, c.cfg.Discovery.TopN)
		}
		return count, false, ""
	case stage.Verification:
		var d stage.VerificationDoc
		if err := c.artifacts.Read(runID, st, &d); err != nil {
			return 0, false, ""
		}
		for _, it := range d.Items {
			if it.Available {
				count++
			}
		}
		if count < len(d.Items) {
			return count, true, fmt.Sprintf("verification rejected %d of %d items", len(d.Items)-count, len(d.Items))
		}
		return count, false, ""
	case stage.Review:
		var d stage.ReviewDoc
		if err := c.artifacts.Read(runID, st, &d); err != nil {
			return 0, false, ""
		}
		for _, it := range d.Items {
			if it.Verdict != stage.VerdictFail {
				count++
			}
		}
		if count < len(d.Items) {
			return count, true, fmt.Sprintf("review failed %d of %d drafts", len(d.Items)-count, len(d.Items))
		}
		return count, false, ""
	case stage.Publish:
		var d stage.PublishDoc
		if err := c.artifacts.Read(runID, st, &d); err != nil {
			return 0, false, ""
		}
		failed := 0
		for _, p := range d.Posts {
			if p.Status == "success" {
				count++
			} else {
				failed++
			}
		}
		if failed > 0 {
			return count, true, fmt.Sprintf("publish failed for %d of %d posts", failed, len(d.Posts))
		}
		return count, false, ""
	}
	return 0, false, ""
}

// transition writes the manifest for the new state (atomic replace),
// updates the registry row, and journals the change. rec, when set, is
// appended to the manifest's stage history first.
func (c *Controller) transition(runID string, next State, terminalStatus string, rec *StageRecord) error {
	run, err := c.reg.GetRun(runID)
	if err != nil {
		return err
	}
	var m Manifest
	if err := c.artifacts.ReadManifest(runID, &m); err != nil {
		return err
	}
	if rec != nil {
		m.Stages = append(m.Stages, *rec)
	}
	m.State = next
	m.AdminApproved = run.AdminApproved
	m.FailureCount = run.FailureCount
	if terminalStatus != "" {
		m.TerminalStatus = terminalStatus
		m.FinishedAt = time.Now().UTC()
	}
	if err := c.artifacts.WriteManifest(runID, &m); err != nil {
		return err
	}
	if err := c.reg.UpdateState(runID, string(next), terminalStatus); err != nil {
		return err
	}
	c.record(c.journal.Event(runID, "", journal.EventStateChanged, string(next)))
	c.logger.Debug("state changed", "run", runID, "state", next)
	return nil
}

func failedRecord(st stage.Stage) *StageRecord {
	return &StageRecord{Stage: st, Status: "failed", At: time.Now().UTC()}
}

func (c *Controller) result(run *registry.Run) *Result {
	return &Result{
		RunID:          run.ID,
		State:          State(run.State),
		TerminalStatus: run.TerminalStatus,
		Failures:       run.FailureCount,
		Suspended:      State(run.State) == StateAwaitingApproval,
	}
}

// record logs bookkeeping errors that must not abort the run walk.
func (c *Controller) record(err error) {
	if err != nil {
		c.logger.Warn("bookkeeping error", "error", err)
	}
}
