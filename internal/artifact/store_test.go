package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"trendpress/internal/stage"
)

type testDoc struct {
	RunID string   `json:"run_id"`
	Items []string `json:"items"`
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestWriteAndRead(t *testing.T) {
	s := newTestStore(t)

	in := testDoc{RunID: "r1", Items: []string{"a", "b"}}
	if err := s.Write("r1", stage.Discovery, in); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var out testDoc
	if err := s.Read("r1", stage.Discovery, &out); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if out.RunID != "r1" || len(out.Items) != 2 {
		t.Errorf("round trip mismatch: %+v", out)
	}
}

func TestWriteRefusesOverwrite(t *testing.T) {
	s := newTestStore(t)

	if err := s.Write("r1", stage.Discovery, testDoc{RunID: "r1"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	err := s.Write("r1", stage.Discovery, testDoc{RunID: "other"})
	if !errors.Is(err, ErrExists) {
		t.Fatalf("second Write: got %v want ErrExists", err)
	}

	// The original content must be untouched.
	var out testDoc
	if err := s.Read("r1", stage.Discovery, &out); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if out.RunID != "r1" {
		t.Errorf("artifact was clobbered: %+v", out)
	}
}

func TestSupersedeArchivesPriorVersions(t *testing.T) {
	s := newTestStore(t)

	if err := s.Write("r1", stage.Verification, testDoc{RunID: "v1"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Supersede("r1", stage.Verification, testDoc{RunID: "v2"}); err != nil {
		t.Fatalf("Supersede: %v", err)
	}
	if err := s.Supersede("r1", stage.Verification, testDoc{RunID: "v3"}); err != nil {
		t.Fatalf("Supersede again: %v", err)
	}

	var out testDoc
	if err := s.Read("r1", stage.Verification, &out); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if out.RunID != "v3" {
		t.Errorf("current version: got %s want v3", out.RunID)
	}
	if got := s.Versions("r1", stage.Verification); got != 3 {
		t.Errorf("Versions: got %d want 3", got)
	}

	// Archived copies keep their content.
	data, err := os.ReadFile(filepath.Join(s.RunDir("r1"), Filename(stage.Verification)+".1"))
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if !strings.Contains(string(data), "v1") {
		t.Errorf("first archive content: %s", data)
	}
}

func TestSupersedeWithoutPriorVersion(t *testing.T) {
	s := newTestStore(t)
	if err := s.Supersede("r1", stage.Review, testDoc{RunID: "v1"}); err != nil {
		t.Fatalf("Supersede with no prior artifact: %v", err)
	}
	if got := s.Versions("r1", stage.Review); got != 1 {
		t.Errorf("Versions: got %d want 1", got)
	}
}

func TestReadMissingArtifact(t *testing.T) {
	s := newTestStore(t)
	var out testDoc
	if err := s.Read("r1", stage.Publish, &out); !errors.Is(err, ErrNotFound) {
		t.Errorf("Read missing: got %v want ErrNotFound", err)
	}
	if s.Exists("r1", stage.Publish) {
		t.Error("Exists on missing artifact")
	}
}

func TestCrashMidWriteLeavesNoPartialArtifact(t *testing.T) {
	s := newTestStore(t)
	dir, err := s.EnsureRunDir("r1")
	if err != nil {
		t.Fatalf("EnsureRunDir: %v", err)
	}

	// Emulate a crash between temp-file write and rename: a stray temp
	// file exists but the target was never installed.
	tmp := filepath.Join(dir, "."+Filename(stage.Discovery)+".tmp-123")
	if err := os.WriteFile(tmp, []byte(`{"run_id": "half`), 0o644); err != nil {
		t.Fatal(err)
	}

	if s.Exists("r1", stage.Discovery) {
		t.Error("partial write must not be visible as an artifact")
	}
	var out testDoc
	if err := s.Read("r1", stage.Discovery, &out); !errors.Is(err, ErrNotFound) {
		t.Errorf("Read after simulated crash: got %v want ErrNotFound", err)
	}

	// A later write installs the complete document as usual.
	if err := s.Write("r1", stage.Discovery, testDoc{RunID: "r1"}); err != nil {
		t.Fatalf("Write after simulated crash: %v", err)
	}
	if err := s.Read("r1", stage.Discovery, &out); err != nil || out.RunID != "r1" {
		t.Errorf("Read after recovery: %v %+v", err, out)
	}
}

func TestManifestReplace(t *testing.T) {
	s := newTestStore(t)

	type manifest struct {
		State string `json:"state"`
	}
	if err := s.WriteManifest("r1", manifest{State: "INIT"}); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}
	if err := s.WriteManifest("r1", manifest{State: "DISCOVERING"}); err != nil {
		t.Fatalf("WriteManifest replace: %v", err)
	}
	var m manifest
	if err := s.ReadManifest("r1", &m); err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if m.State != "DISCOVERING" {
		t.Errorf("manifest state: %s", m.State)
	}

	if err := s.ReadManifest("r2", &m); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadManifest missing: %v", err)
	}
}

func TestLockIsPerRunExclusive(t *testing.T) {
	s := newTestStore(t)

	release := s.Lock("r1")
	acquired := make(chan struct{})
	go func() {
		r := s.Lock("r1")
		close(acquired)
		r()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock acquired while first is held")
	case <-time.After(50 * time.Millisecond):
	}

	// A different run's lock is independent.
	r2 := s.Lock("r2")
	r2()

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Lock never acquired after release")
	}
}
