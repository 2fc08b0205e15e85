// Package journal is the per-run append-only audit trail: lifecycle events
// and recoverable failures as JSONL files under the run's namespace.
// Entries are fsynced before the call returns and are never rewritten.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"trendpress/internal/stage"
)

// Failure kinds recorded in the failures log. degraded_result is an event,
// not a failure; it never appears here.
const (
	KindSchemaInvalid  = "schema_invalid"
	KindExecutionError = "execution_error"
	KindGateViolation  = "gate_violation"
)

// Event kinds written to the events log by the controller and adapters.
const (
	EventRunStarted      = "run_started"
	EventStateChanged    = "state_changed"
	EventStageStarted    = "stage_started"
	EventStageCompleted  = "stage_completed"
	EventStageRetried    = "stage_retried"
	EventDegradedResult  = "degraded_result"
	EventApprovalGranted = "approval_granted"
	EventRunSuspended    = "run_suspended"
	EventRunCancelled    = "run_cancelled"
)

// Event is one lifecycle entry. Ordering is append order.
type Event struct {
	TS     time.Time   `json:"ts"`
	Stage  stage.Stage `json:"stage,omitempty"`
	Kind   string      `json:"kind"`
	Detail string      `json:"detail,omitempty"`
}

// Failure is one recorded stage failure. A failure does not by itself
// terminate the run; escalation is the controller's call.
type Failure struct {
	TS        time.Time   `json:"ts"`
	Stage     stage.Stage `json:"stage"`
	ErrorKind string      `json:"error_kind"`
	Message   string      `json:"message"`
	ItemRef   string      `json:"item_ref,omitempty"`
}

const (
	eventsFilename   = "events.jsonl"
	failuresFilename = "failures.jsonl"
)

// Journal appends events and failures under per-run directories. Appends
// for the same run are serialized; appends for different runs interleave
// freely but each run's file preserves its own append order.
type Journal struct {
	base string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Journal rooted at the same base directory as the artifact
// store; each run's logs live next to its artifacts.
func New(base string) (*Journal, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create base dir: %w", err)
	}
	return &Journal{base: base, locks: make(map[string]*sync.Mutex)}, nil
}

func (j *Journal) runLock(runID string) *sync.Mutex {
	j.mu.Lock()
	defer j.mu.Unlock()
	l, ok := j.locks[runID]
	if !ok {
		l = &sync.Mutex{}
		j.locks[runID] = l
	}
	return l
}

// Event appends a lifecycle event for the run.
func (j *Journal) Event(runID string, st stage.Stage, kind, detail string) error {
	return j.append(runID, eventsFilename, Event{
		TS:     time.Now().UTC(),
		Stage:  st,
		Kind:   kind,
		Detail: detail,
	})
}

// Failure appends a failure record for the run.
func (j *Journal) Failure(runID string, st stage.Stage, errorKind, message string) error {
	return j.append(runID, failuresFilename, Failure{
		TS:        time.Now().UTC(),
		Stage:     st,
		ErrorKind: errorKind,
		Message:   message,
	})
}

// FailureItem appends a failure record carrying an item reference.
func (j *Journal) FailureItem(runID string, st stage.Stage, errorKind, message, itemRef string) error {
	return j.append(runID, failuresFilename, Failure{
		TS:        time.Now().UTC(),
		Stage:     st,
		ErrorKind: errorKind,
		Message:   message,
		ItemRef:   itemRef,
	})
}

// append writes one JSONL line with O_APPEND and fsyncs before returning,
// so a crash after return cannot lose the entry.
func (j *Journal) append(runID, filename string, entry any) error {
	l := j.runLock(runID)
	l.Lock()
	defer l.Unlock()

	dir := filepath.Join(j.base, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("journal: create run dir: %w", err)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("journal: marshal entry: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, filename), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("journal: open %s: %w", filename, err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("journal: append %s: %w", filename, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("journal: sync %s: %w", filename, err)
	}
	return nil
}

// Events reads the full event log for a run, in append order. A missing
// file means no events yet.
func (j *Journal) Events(runID string) ([]Event, error) {
	var out []Event
	err := readLines(filepath.Join(j.base, runID, eventsFilename), func(line []byte) error {
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			return fmt.Errorf("journal: parse event: %w", err)
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

// Failures reads the full failures log for a run, in append order.
func (j *Journal) Failures(runID string) ([]Failure, error) {
	var out []Failure
	err := readLines(filepath.Join(j.base, runID, failuresFilename), func(line []byte) error {
		var f Failure
		if err := json.Unmarshal(line, &f); err != nil {
			return fmt.Errorf("journal: parse failure: %w", err)
		}
		out = append(out, f)
		return nil
	})
	return out, err
}

func readLines(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("journal: open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return sc.Err()
}
