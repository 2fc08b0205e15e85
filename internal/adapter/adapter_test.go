package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"trendpress/internal/artifact"
	"trendpress/internal/journal"
	"trendpress/internal/stage"
)

type scriptedImpl struct {
	name    string
	out     any
	err     error
	invoked int
}

func (s *scriptedImpl) Name() string { return s.name }

func (s *scriptedImpl) Execute(context.Context, string, any) (any, error) {
	s.invoked++
	return s.out, s.err
}

func newHarness(t *testing.T) (*artifact.Store, *journal.Journal) {
	t.Helper()
	dir := t.TempDir()
	store, err := artifact.NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	jnl, err := journal.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	return store, jnl
}

func goodRequest() stage.RunRequest {
	return stage.RunRequest{RunID: "r1", Mode: "fixture", TopN: 20, WindowHours: 24, StartedAt: time.Now().UTC()}
}

func goodDiscoveryDoc() stage.DiscoveryDoc {
	return stage.DiscoveryDoc{
		RunID:       "r1",
		Mode:        "fixture",
		GeneratedAt: time.Now().UTC(),
		Items: []stage.Candidate{{
			Name:          "cordless vacuum",
			IssueReason:   "spike",
			EvidenceLinks: []string{"https://a"},
			Score:         84,
			ObservedAt:    time.Now().UTC(),
		}},
	}
}

func TestExecuteHappyPath(t *testing.T) {
	store, jnl := newHarness(t)
	impl := &scriptedImpl{name: "disc", out: goodDiscoveryDoc()}
	a := New(stage.Discovery, impl, store, jnl)

	out, status, err := a.Execute(context.Background(), "r1", goodRequest(), false)
	if err != nil || status != StatusOK {
		t.Fatalf("Execute: %v %s", err, status)
	}
	if out == nil || impl.invoked != 1 {
		t.Errorf("out=%v invoked=%d", out, impl.invoked)
	}

	if !store.Exists("r1", stage.Discovery) {
		t.Error("artifact not persisted")
	}
	events, _ := jnl.Events("r1")
	if len(events) != 1 || events[0].Kind != journal.EventStageCompleted {
		t.Errorf("events: %+v", events)
	}
}

func TestInputViolationSkipsInvocation(t *testing.T) {
	store, jnl := newHarness(t)
	impl := &scriptedImpl{name: "disc", out: goodDiscoveryDoc()}
	a := New(stage.Discovery, impl, store, jnl)

	bad := goodRequest()
	bad.Mode = "replay"
	_, status, err := a.Execute(context.Background(), "r1", bad, false)
	if status != StatusSchemaInvalid || err == nil {
		t.Fatalf("status=%s err=%v", status, err)
	}
	if impl.invoked != 0 {
		t.Error("implementation was invoked despite an input violation")
	}

	failures, _ := jnl.Failures("r1")
	if len(failures) != 1 || failures[0].ErrorKind != journal.KindSchemaInvalid {
		t.Errorf("failures: %+v", failures)
	}
}

func TestOutputViolationPersistsNothing(t *testing.T) {
	store, jnl := newHarness(t)
	bad := goodDiscoveryDoc()
	bad.Items[0].Score = 400 // outside the declared band
	impl := &scriptedImpl{name: "disc", out: bad}
	a := New(stage.Discovery, impl, store, jnl)

	_, status, err := a.Execute(context.Background(), "r1", goodRequest(), false)
	if status != StatusSchemaInvalid || err == nil {
		t.Fatalf("status=%s err=%v", status, err)
	}
	if impl.invoked != 1 {
		t.Errorf("invoked=%d", impl.invoked)
	}
	if store.Exists("r1", stage.Discovery) {
		t.Error("violating output was persisted")
	}

	failures, _ := jnl.Failures("r1")
	if len(failures) != 1 || failures[0].ErrorKind != journal.KindSchemaInvalid {
		t.Errorf("failures: %+v", failures)
	}
}

func TestExecutionErrorIsCaught(t *testing.T) {
	store, jnl := newHarness(t)
	impl := &scriptedImpl{name: "disc", err: errors.New("feed unreachable")}
	a := New(stage.Discovery, impl, store, jnl)

	_, status, err := a.Execute(context.Background(), "r1", goodRequest(), false)
	if status != StatusExecutionError || err == nil {
		t.Fatalf("status=%s err=%v", status, err)
	}
	if store.Exists("r1", stage.Discovery) {
		t.Error("artifact persisted after execution error")
	}
	failures, _ := jnl.Failures("r1")
	if len(failures) != 1 || failures[0].ErrorKind != journal.KindExecutionError {
		t.Errorf("failures: %+v", failures)
	}
}

func TestSupersedeArchivesOnRetry(t *testing.T) {
	store, jnl := newHarness(t)
	impl := &scriptedImpl{name: "disc", out: goodDiscoveryDoc()}
	a := New(stage.Discovery, impl, store, jnl)

	if _, status, _ := a.Execute(context.Background(), "r1", goodRequest(), false); status != StatusOK {
		t.Fatalf("first pass: %s", status)
	}
	if _, status, _ := a.Execute(context.Background(), "r1", goodRequest(), true); status != StatusOK {
		t.Fatalf("retry pass: %s", status)
	}
	if got := store.Versions("r1", stage.Discovery); got != 2 {
		t.Errorf("versions: %d", got)
	}
}

func TestWriteWithoutSupersedeRefusesOverwrite(t *testing.T) {
	store, jnl := newHarness(t)
	impl := &scriptedImpl{name: "disc", out: goodDiscoveryDoc()}
	a := New(stage.Discovery, impl, store, jnl)

	if _, status, _ := a.Execute(context.Background(), "r1", goodRequest(), false); status != StatusOK {
		t.Fatal("first pass failed")
	}
	_, status, err := a.Execute(context.Background(), "r1", goodRequest(), false)
	if status != StatusExecutionError || !errors.Is(err, artifact.ErrExists) {
		t.Errorf("overwrite attempt: status=%s err=%v", status, err)
	}
}
