// Package artifact persists stage documents under a per-run namespace.
// Writes are atomic (temp file + rename) so a reader never observes a
// partially written document, and a stage's artifact is immutable once
// written: a retry supersedes it, archiving the prior version for audit.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"trendpress/internal/stage"
)

// DefaultBasePath is the default root directory for run data.
const DefaultBasePath = ".trendpress/runs"

var (
	// ErrNotFound is returned when no artifact exists for (run, stage).
	ErrNotFound = errors.New("artifact not found")
	// ErrExists is returned by Write when an artifact is already present
	// and the caller did not request a supersede.
	ErrExists = errors.New("artifact already exists")
)

// Store is a per-run artifact store rooted at a base directory. One Store
// may serve many concurrent runs; writers for the same run are serialized
// by the run lock (see Lock).
type Store struct {
	base string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a Store rooted at base, creating the directory if needed.
func NewStore(base string) (*Store, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: create base dir: %w", err)
	}
	return &Store{base: base, locks: make(map[string]*sync.Mutex)}, nil
}

// RunDir returns the namespace directory for a run.
func (s *Store) RunDir(runID string) string {
	return filepath.Join(s.base, runID)
}

// EnsureRunDir creates the run namespace if it does not exist.
func (s *Store) EnsureRunDir(runID string) (string, error) {
	dir := s.RunDir(runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("artifact: create run dir: %w", err)
	}
	return dir, nil
}

// Lock acquires the exclusive per-run lock and returns the release func.
// One active stage execution per run at a time; the journal shares the same
// discipline through the controller holding this lock across a stage call.
func (s *Store) Lock(runID string) func() {
	s.mu.Lock()
	l, ok := s.locks[runID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[runID] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Filename returns the artifact filename for a stage.
func Filename(st stage.Stage) string {
	return string(st) + ".json"
}

// Write persists the artifact for (runID, st). It fails with ErrExists when
// an artifact is already installed; retries must go through Supersede.
func (s *Store) Write(runID string, st stage.Stage, doc any) error {
	dir, err := s.EnsureRunDir(runID)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, Filename(st))
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("artifact: %s for run %s: %w", st, runID, ErrExists)
	}
	return writeAtomic(path, doc)
}

// Supersede installs a new artifact version for (runID, st), archiving any
// existing version as <stage>.json.N (never deleted). Used only when the
// controller explicitly retries a stage.
func (s *Store) Supersede(runID string, st stage.Stage, doc any) error {
	dir, err := s.EnsureRunDir(runID)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, Filename(st))
	if _, err := os.Stat(path); err == nil {
		if err := archive(path); err != nil {
			return err
		}
	}
	return writeAtomic(path, doc)
}

// Read loads the current artifact for (runID, st) into out. Returns
// ErrNotFound when no artifact has been written.
func (s *Store) Read(runID string, st stage.Stage, out any) error {
	path := filepath.Join(s.RunDir(runID), Filename(st))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("artifact: %s for run %s: %w", st, runID, ErrNotFound)
		}
		return fmt.Errorf("artifact: read %s: %w", st, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("artifact: parse %s: %w", st, err)
	}
	return nil
}

// Exists reports whether an artifact is installed for (runID, st).
func (s *Store) Exists(runID string, st stage.Stage) bool {
	_, err := os.Stat(filepath.Join(s.RunDir(runID), Filename(st)))
	return err == nil
}

// Versions returns how many artifact versions exist for (runID, st):
// the current one plus any archived predecessors.
func (s *Store) Versions(runID string, st stage.Stage) int {
	dir := s.RunDir(runID)
	n := 0
	if _, err := os.Stat(filepath.Join(dir, Filename(st))); err == nil {
		n++
	}
	for i := 1; ; i++ {
		if _, err := os.Stat(fmt.Sprintf("%s.%d", filepath.Join(dir, Filename(st)), i)); err != nil {
			break
		}
		n++
	}
	return n
}

const manifestFilename = "manifest.json"

// WriteManifest atomically replaces the run manifest. Unlike stage
// artifacts the manifest is rewritten on every state transition.
func (s *Store) WriteManifest(runID string, m any) error {
	dir, err := s.EnsureRunDir(runID)
	if err != nil {
		return err
	}
	return writeAtomic(filepath.Join(dir, manifestFilename), m)
}

// ReadManifest loads the run manifest into out, or ErrNotFound.
func (s *Store) ReadManifest(runID string, out any) error {
	path := filepath.Join(s.RunDir(runID), manifestFilename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("artifact: manifest for run %s: %w", runID, ErrNotFound)
		}
		return fmt.Errorf("artifact: read manifest: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("artifact: parse manifest: %w", err)
	}
	return nil
}

// writeAtomic marshals doc and installs it at path via a same-directory
// temp file, fsync, and rename. A crash mid-write leaves only the temp
// file; the target either holds the old content or the complete new one.
func writeAtomic(path string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact: marshal %s: %w", filepath.Base(path), err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("artifact: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("artifact: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("artifact: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("artifact: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("artifact: install %s: %w", filepath.Base(path), err)
	}
	return nil
}

// archive moves the current artifact aside to the next free .N suffix.
func archive(path string) error {
	for i := 1; ; i++ {
		dst := fmt.Sprintf("%s.%d", path, i)
		if _, err := os.Stat(dst); os.IsNotExist(err) {
			if err := os.Rename(path, dst); err != nil {
				return fmt.Errorf("artifact: archive %s: %w", filepath.Base(path), err)
			}
			return nil
		}
	}
}
