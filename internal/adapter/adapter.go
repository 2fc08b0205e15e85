// Package adapter wraps one external stage implementation behind the
// uniform boundary the controller drives: validate the input document,
// invoke exactly once, validate the output, persist, record the outcome.
// Stage-local errors never escape as uncaught faults; they come back as a
// status the controller turns into retry, tolerate, or escalate.
package adapter

import (
	"context"
	"fmt"
	"log/slog"

	"trendpress/internal/artifact"
	"trendpress/internal/journal"
	"trendpress/internal/logging"
	"trendpress/internal/schema"
	"trendpress/internal/stage"
)

// Status classifies one adapter execution.
type Status string

const (
	StatusOK             Status = "ok"
	StatusSchemaInvalid  Status = "schema_invalid"
	StatusExecutionError Status = "execution_error"
)

// Implementation is one external stage implementation. The adapter treats
// it as opaque and fallible: given an input document it produces an output
// document or an error. It must not persist anything itself.
type Implementation interface {
	Name() string
	Execute(ctx context.Context, runID string, input any) (any, error)
}

// Adapter binds a stage identifier to its implementation and the run's
// artifact store and journal.
type Adapter struct {
	Stage     stage.Stage
	Impl      Implementation
	Artifacts *artifact.Store
	Journal   *journal.Journal

	logger *slog.Logger
}

// New constructs an Adapter.
func New(st stage.Stage, impl Implementation, store *artifact.Store, jnl *journal.Journal) *Adapter {
	return &Adapter{
		Stage:     st,
		Impl:      impl,
		Artifacts: store,
		Journal:   jnl,
		logger:    logging.New("adapter"),
	}
}

// Execute runs one adapter pass for the run.
//
// The input is validated against the stage's declared input schema before
// the implementation is invoked; a violation is fatal for the stage and the
// implementation is never called. The output is validated against the
// declared output schema; on violation nothing is persisted. supersede is
// set by the controller on retries so the prior artifact version is
// archived rather than overwritten.
func (a *Adapter) Execute(ctx context.Context, runID string, input any, supersede bool) (any, Status, error) {
	inDoc, err := schema.ToDoc(input)
	if err != nil {
		a.recordFailure(runID, journal.KindSchemaInvalid, err)
		return nil, StatusSchemaInvalid, err
	}
	if res := stage.InputSchema(a.Stage).Validate(inDoc); !res.OK() {
		err := fmt.Errorf("adapter: %s input: %w", a.Stage, res.Err())
		a.recordFailure(runID, journal.KindSchemaInvalid, err)
		return nil, StatusSchemaInvalid, err
	}

	out, err := a.Impl.Execute(ctx, runID, input)
	if err != nil {
		err = fmt.Errorf("adapter: %s (%s): %w", a.Stage, a.Impl.Name(), err)
		a.recordFailure(runID, journal.KindExecutionError, err)
		return nil, StatusExecutionError, err
	}

	outDoc, err := schema.ToDoc(out)
	if err != nil {
		a.recordFailure(runID, journal.KindSchemaInvalid, err)
		return nil, StatusSchemaInvalid, err
	}
	if res := stage.OutputSchema(a.Stage).Validate(outDoc); !res.OK() {
		err := fmt.Errorf("adapter: %s output: %w", a.Stage, res.Err())
		a.recordFailure(runID, journal.KindSchemaInvalid, err)
		return nil, StatusSchemaInvalid, err
	}

	if supersede {
		err = a.Artifacts.Supersede(runID, a.Stage, out)
	} else {
		err = a.Artifacts.Write(runID, a.Stage, out)
	}
	if err != nil {
		err = fmt.Errorf("adapter: persist %s artifact: %w", a.Stage, err)
		a.recordFailure(runID, journal.KindExecutionError, err)
		return nil, StatusExecutionError, err
	}

	if err := a.Journal.Event(runID, a.Stage, journal.EventStageCompleted, a.Impl.Name()); err != nil {
		a.logger.Warn("event append failed", "run", runID, "stage", a.Stage, "error", err)
	}
	return out, StatusOK, nil
}

func (a *Adapter) recordFailure(runID, kind string, cause error) {
	a.logger.Warn("stage failed", "run", runID, "stage", a.Stage, "kind", kind, "error", cause)
	if err := a.Journal.Failure(runID, a.Stage, kind, cause.Error()); err != nil {
		a.logger.Error("failure append failed", "run", runID, "stage", a.Stage, "error", err)
	}
}
