package registry

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schemaVersion = 1

const ddl = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);

CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	mode            TEXT NOT NULL,
	state           TEXT NOT NULL,
	admin_approved  INTEGER NOT NULL DEFAULT 0,
	failure_count   INTEGER NOT NULL DEFAULT 0,
	created_at      TEXT NOT NULL,
	completed_at    TEXT,
	terminal_status TEXT
);

CREATE TABLE IF NOT EXISTS approval_decisions (
	run_id     TEXT PRIMARY KEY REFERENCES runs(id),
	approved   INTEGER NOT NULL,
	source     TEXT NOT NULL,
	decided_at TEXT NOT NULL
);
`

// SQLiteRegistry implements Registry with SQLite.
type SQLiteRegistry struct {
	db *sql.DB
}

// Open opens or creates a SQLite DB at path and installs the schema.
// Creates the parent directory (e.g. .trendpress) if it does not exist.
func Open(path string) (*SQLiteRegistry, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("registry: create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("registry: open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("registry: ping sqlite: %w", err)
	}
	r := &SQLiteRegistry{db: db}
	if err := r.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLiteRegistry) migrate() error {
	if _, err := r.db.Exec(ddl); err != nil {
		return fmt.Errorf("registry: create schema: %w", err)
	}
	var v int
	err := r.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := r.db.Exec("INSERT INTO schema_version(version) VALUES(?)", schemaVersion); err != nil {
			return fmt.Errorf("registry: set schema version: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("registry: read schema version: %w", err)
	}
	if v != schemaVersion {
		return fmt.Errorf("registry: unknown schema version %d", v)
	}
	return nil
}

func (r *SQLiteRegistry) Close() error { return r.db.Close() }

func (r *SQLiteRegistry) CreateRun(run *Run) error {
	_, err := r.db.Exec(
		`INSERT INTO runs(id, mode, state, admin_approved, failure_count, created_at) VALUES(?,?,?,?,0,?)`,
		run.ID, run.Mode, run.State, boolToInt(run.AdminApproved), run.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("registry: run %s: %w", run.ID, ErrRunExists)
		}
		return fmt.Errorf("registry: create run: %w", err)
	}
	return nil
}

func (r *SQLiteRegistry) GetRun(id string) (*Run, error) {
	row := r.db.QueryRow(
		`SELECT id, mode, state, admin_approved, failure_count, created_at, completed_at, terminal_status
		 FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

func (r *SQLiteRegistry) ListRuns() ([]*Run, error) {
	rows, err := r.db.Query(
		`SELECT id, mode, state, admin_approved, failure_count, created_at, completed_at, terminal_status
		 FROM runs ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("registry: list runs: %w", err)
	}
	defer rows.Close()
	var out []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (r *SQLiteRegistry) UpdateState(id, state, terminalStatus string) error {
	var res sql.Result
	var err error
	if terminalStatus != "" {
		res, err = r.db.Exec(
			`UPDATE runs SET state = ?, terminal_status = ?, completed_at = ? WHERE id = ? AND terminal_status IS NULL`,
			state, terminalStatus, time.Now().UTC().Format(time.RFC3339), id)
	} else {
		res, err = r.db.Exec(
			`UPDATE runs SET state = ? WHERE id = ? AND terminal_status IS NULL`, state, id)
	}
	if err != nil {
		return fmt.Errorf("registry: update state: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return r.missingOrTerminal(id)
	}
	return nil
}

func (r *SQLiteRegistry) IncrementFailures(id string) error {
	res, err := r.db.Exec(`UPDATE runs SET failure_count = failure_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("registry: increment failures: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("registry: run %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *SQLiteRegistry) RecordApproval(d ApprovalDecision) error {
	if _, err := r.GetRun(d.RunID); err != nil {
		return err
	}
	_, err := r.db.Exec(
		`INSERT INTO approval_decisions(run_id, approved, source, decided_at) VALUES(?,?,?,?)`,
		d.RunID, boolToInt(d.Approved), d.Source, d.DecidedAt.UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("registry: run %s: %w", d.RunID, ErrAlreadyDecided)
		}
		return fmt.Errorf("registry: record approval: %w", err)
	}
	if d.Approved {
		if _, err := r.db.Exec(`UPDATE runs SET admin_approved = 1 WHERE id = ?`, d.RunID); err != nil {
			return fmt.Errorf("registry: set approved flag: %w", err)
		}
	}
	return nil
}

func (r *SQLiteRegistry) GetApproval(runID string) (*ApprovalDecision, error) {
	row := r.db.QueryRow(
		`SELECT run_id, approved, source, decided_at FROM approval_decisions WHERE run_id = ?`, runID)
	var d ApprovalDecision
	var approved int
	var decidedAt string
	if err := row.Scan(&d.RunID, &approved, &d.Source, &decidedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("registry: get approval: %w", err)
	}
	d.Approved = approved != 0
	d.DecidedAt, _ = time.Parse(time.RFC3339, decidedAt)
	return &d, nil
}

// missingOrTerminal distinguishes "no such run" from "run is frozen".
func (r *SQLiteRegistry) missingOrTerminal(id string) error {
	run, err := r.GetRun(id)
	if err != nil {
		return err
	}
	return fmt.Errorf("registry: run %s is terminal (%s)", run.ID, run.TerminalStatus)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var approved, failures int
	var createdAt string
	var completedAt, terminal sql.NullString
	err := row.Scan(&run.ID, &run.Mode, &run.State, &approved, &failures, &createdAt, &completedAt, &terminal)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("registry: scan run: %w", err)
	}
	run.AdminApproved = approved != 0
	run.FailureCount = failures
	run.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if completedAt.Valid {
		run.CompletedAt, _ = time.Parse(time.RFC3339, completedAt.String)
	}
	if terminal.Valid {
		run.TerminalStatus = terminal.String
	}
	return &run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation matches the driver's constraint error without tying the
// registry to driver internals.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
