package state_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/capstan/capstan/pkg/state"
	"github.com/capstan/capstan/pkg/types"
)

func newPopulated() *state.RunState {
	r := state.New("abc123")
	r.InitPackage("core", "0.6.0", 0)
	r.InitPackage("plugin", "0.6.0", 1)
	r.InitPackage("sample", "0.5.0", 2)
	return r
}

func TestSetStatus_Transitions(t *testing.T) {
	r := newPopulated()

	for _, s := range []types.ReleaseStatus{
		types.StatusBuilding,
		types.StatusPublishing,
		types.StatusVerifying,
		types.StatusPublished,
	} {
		if err := r.SetStatus("core", s, ""); err != nil {
			t.Fatalf("transition to %s failed: %v", s, err)
		}
	}

	if got, _ := r.Status("core"); got != types.StatusPublished {
		t.Errorf("expected published, got %s", got)
	}
}

func TestSetStatus_TerminalIsMonotonic(t *testing.T) {
	r := newPopulated()

	if err := r.SetStatus("core", types.StatusFailed, "network timeout"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A terminal package is never transitioned again within the run
	if err := r.SetStatus("core", types.StatusPublished, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := r.Status("core")
	if got != types.StatusFailed {
		t.Errorf("terminal status changed: got %s", got)
	}
}

func TestSetStatus_ErrorOnlyForFailed(t *testing.T) {
	r := newPopulated()

	r.SetStatus("core", types.StatusBuilding, "ignored")
	if r.Packages["core"].Error != "" {
		t.Error("error text recorded for non-failed status")
	}

	r.SetStatus("core", types.StatusFailed, "publish rejected")
	if r.Packages["core"].Error != "publish rejected" {
		t.Errorf("expected error text, got %q", r.Packages["core"].Error)
	}
}

func TestSetStatus_UntrackedPackage(t *testing.T) {
	r := state.New("abc")
	if err := r.SetStatus("ghost", types.StatusBuilding, ""); err == nil {
		t.Error("expected error for untracked package")
	}
}

func TestStatusQueries(t *testing.T) {
	r := newPopulated()
	r.SetStatus("plugin", types.StatusFailed, "boom")
	r.SetStatus("core", types.StatusPublished, "")

	if got := r.PendingPackages(); !reflect.DeepEqual(got, []string{"sample"}) {
		t.Errorf("pending = %v", got)
	}
	if got := r.FailedPackages(); !reflect.DeepEqual(got, []string{"plugin"}) {
		t.Errorf("failed = %v", got)
	}
	if got := r.PublishedPackages(); !reflect.DeepEqual(got, []string{"core"}) {
		t.Errorf("published = %v", got)
	}
}

func TestRequeue(t *testing.T) {
	r := newPopulated()
	r.InitPackage("docs", "0.2.0", 2)
	r.SetStatus("core", types.StatusPublished, "")
	r.SetStatus("plugin", types.StatusFailed, "network timeout")
	r.SetStatus("sample", types.StatusBuilding, "")

	got := r.Requeue()
	if !reflect.DeepEqual(got, []string{"plugin", "sample"}) {
		t.Errorf("requeued = %v, want [plugin sample]", got)
	}

	if status, _ := r.Status("core"); status != types.StatusPublished {
		t.Errorf("published package requeued: %s", status)
	}
	for _, name := range []string{"plugin", "sample", "docs"} {
		if status, _ := r.Status(name); status != types.StatusPending {
			t.Errorf("%s status = %s, want pending", name, status)
		}
	}
	if r.Packages["plugin"].Error != "" {
		t.Error("requeue should clear the recorded failure")
	}

	// A requeued failure is retryable again through the normal transitions
	if err := r.SetStatus("plugin", types.StatusBuilding, ""); err != nil {
		t.Fatalf("retry transition failed: %v", err)
	}
}

func TestIsComplete(t *testing.T) {
	r := newPopulated()
	if r.IsComplete() {
		t.Error("fresh run state should not be complete")
	}

	r.SetStatus("core", types.StatusPublished, "")
	r.SetStatus("plugin", types.StatusSkipped, "")
	r.SetStatus("sample", types.StatusFailed, "x")

	if !r.IsComplete() {
		t.Error("all-terminal run state should be complete")
	}
}

func TestValidateSHA(t *testing.T) {
	r := state.New("xyz")

	if err := r.ValidateSHA("abc"); !errors.Is(err, state.ErrSHAMismatch) {
		t.Errorf("expected ErrSHAMismatch, got %v", err)
	}
	if err := r.ValidateSHA("xyz"); err != nil {
		t.Errorf("expected matching SHA to validate, got %v", err)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "release-state.json")

	r := newPopulated()
	r.SetStatus("core", types.StatusPublished, "")
	r.SetStatus("plugin", types.StatusFailed, "registry timeout")

	if err := r.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := state.Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if loaded.GitSHA != r.GitSHA {
		t.Errorf("git sha mismatch: %s != %s", loaded.GitSHA, r.GitSHA)
	}
	if loaded.RunID != r.RunID {
		t.Errorf("run id mismatch: %s != %s", loaded.RunID, r.RunID)
	}
	if !reflect.DeepEqual(loaded.Packages, r.Packages) {
		t.Errorf("package map mismatch:\n%+v\n%+v", loaded.Packages, r.Packages)
	}
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "release-state.json")

	r := newPopulated()
	if err := r.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := r.Save(path); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "release-state.json" {
		t.Errorf("expected only the state file in %s, got %v", dir, entries)
	}
}

func TestLoad_CorruptedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "release-state.json")
	os.WriteFile(path, []byte("{not json"), 0644)

	_, err := state.Load(path)
	if !errors.Is(err, state.ErrCorrupted) {
		t.Errorf("expected ErrCorrupted, got %v", err)
	}
}

func TestLoad_MissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "release-state.json")
	os.WriteFile(path, []byte(`{"created_at": "2026-01-01T00:00:00Z"}`), 0644)

	_, err := state.Load(path)
	if !errors.Is(err, state.ErrCorrupted) {
		t.Errorf("expected ErrCorrupted for missing fields, got %v", err)
	}
}

func TestLoad_IOErrorIsNotCorruption(t *testing.T) {
	_, err := state.Load(filepath.Join(t.TempDir(), "nope.json"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if errors.Is(err, state.ErrCorrupted) {
		t.Error("plain I/O failure must be distinct from corruption")
	}
}

func TestLoad_UnknownStatusDefaultsToPending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "release-state.json")
	content := `{
		"runId": "r1",
		"git_sha": "abc",
		"created_at": "2026-01-01T00:00:00Z",
		"packages": {
			"core": {"name": "core", "status": "exploded", "version": "1.0.0", "error": "", "level": 0}
		}
	}`
	os.WriteFile(path, []byte(content), 0644)

	loaded, err := state.Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got := loaded.Packages["core"].Status; got != types.StatusPending {
		t.Errorf("expected garbled status to default to pending, got %s", got)
	}
}

func TestDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "release-state.json")
	r := newPopulated()
	if err := r.Save(path); err != nil {
		t.Fatal(err)
	}

	if err := state.Delete(path); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("state file still present after delete")
	}
	// Deleting an absent file is not an error
	if err := state.Delete(path); err != nil {
		t.Errorf("delete of absent file errored: %v", err)
	}
}

func TestRenderTable(t *testing.T) {
	r := newPopulated()
	r.SetStatus("plugin", types.StatusFailed, "registry timeout")

	var buf strings.Builder
	if err := r.RenderTable(&buf); err != nil {
		t.Fatalf("render failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"core", "plugin", "registry timeout", "abc123"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}
