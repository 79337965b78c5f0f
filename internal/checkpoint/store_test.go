package checkpoint

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"blender-render-manager/internal/model"
)

func TestStore_LoadMissingReturnsNoCheckpoint(t *testing.T) {
	store := NewStore(t.TempDir())

	cp, ok, err := store.Load("abc123")
	if err != nil {
		t.Fatalf("load missing checkpoint: %v", err)
	}
	if ok {
		t.Fatalf("expected no checkpoint, got %+v", cp)
	}
}

func TestStore_SaveThenLoadRoundTrips(t *testing.T) {
	store := NewStore(t.TempDir())

	if err := store.Save("abc123", 42); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}

	cp, ok, err := store.Load("abc123")
	if err != nil {
		t.Fatalf("load checkpoint: %v", err)
	}
	if !ok {
		t.Fatalf("expected checkpoint to exist")
	}
	if cp.LastCompletedFrame != 42 {
		t.Fatalf("unexpected frame: got %d want %d", cp.LastCompletedFrame, 42)
	}
	if cp.JobKey != "abc123" {
		t.Fatalf("unexpected job key: %q", cp.JobKey)
	}
	if cp.UpdatedAt == "" {
		t.Fatalf("expected updated_at to be set")
	}
}

func TestStore_SaveIsMonotonic(t *testing.T) {
	store := NewStore(t.TempDir())

	if err := store.Save("abc123", 10); err != nil {
		t.Fatalf("save frame 10: %v", err)
	}
	if err := store.Save("abc123", 7); err != nil {
		t.Fatalf("save frame 7: %v", err)
	}

	cp, ok, _ := store.Load("abc123")
	if !ok || cp.LastCompletedFrame != 10 {
		t.Fatalf("expected checkpoint to stay at 10, got %+v (ok=%v)", cp, ok)
	}
}

func TestStore_RecordAttemptSurvivesSave(t *testing.T) {
	store := NewStore(t.TempDir())

	if err := store.RecordAttempt("abc123"); err != nil {
		t.Fatalf("record first attempt: %v", err)
	}
	if err := store.RecordAttempt("abc123"); err != nil {
		t.Fatalf("record second attempt: %v", err)
	}
	if err := store.Save("abc123", 5); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}

	cp, ok, _ := store.Load("abc123")
	if !ok {
		t.Fatalf("expected checkpoint to exist")
	}
	if cp.AttemptCount != 2 {
		t.Fatalf("unexpected attempt count: got %d want %d", cp.AttemptCount, 2)
	}
	if cp.LastCompletedFrame != 5 {
		t.Fatalf("unexpected frame: got %d want %d", cp.LastCompletedFrame, 5)
	}
}

func TestStore_RecordAttemptBeforeAnyFrameIsNotProgress(t *testing.T) {
	store := NewStore(t.TempDir())

	if err := store.RecordAttempt("abc123"); err != nil {
		t.Fatalf("record attempt: %v", err)
	}

	cp, ok, err := store.Load("abc123")
	if err != nil || !ok {
		t.Fatalf("load after attempt: ok=%v err=%v", ok, err)
	}
	if cp.LastCompletedFrame != model.NoFrameCompleted {
		t.Fatalf("attempt bookkeeping must not claim a completed frame, got %d", cp.LastCompletedFrame)
	}
	if cp.AttemptCount != 1 {
		t.Fatalf("unexpected attempt count: %d", cp.AttemptCount)
	}

	// Frame 0 is a real frame and must be persistable afterwards.
	if err := store.Save("abc123", 0); err != nil {
		t.Fatalf("save frame 0: %v", err)
	}
	cp, ok, _ = store.Load("abc123")
	if !ok || cp.LastCompletedFrame != 0 {
		t.Fatalf("expected frame 0 recorded, got %+v (ok=%v)", cp, ok)
	}
}

func TestStore_CorruptCheckpointDowngradesToAbsent(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)

	if err := store.Save("abc123", 9); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}
	path := filepath.Join(store.JobDir("abc123"), "checkpoint.json")
	if err := os.WriteFile(path, []byte("{truncated"), 0o644); err != nil {
		t.Fatalf("corrupt checkpoint: %v", err)
	}

	cp, ok, err := store.Load("abc123")
	if ok {
		t.Fatalf("expected corrupt checkpoint to read as absent, got %+v", cp)
	}
	if err == nil {
		t.Fatalf("expected a warning-grade error for corrupt checkpoint")
	}
}

func TestStore_LoadRejectsForeignJobKey(t *testing.T) {
	store := NewStore(t.TempDir())

	if err := store.Save("abc123", 3); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}
	src := filepath.Join(store.JobDir("abc123"), "checkpoint.json")
	dst := filepath.Join(store.JobDir("def456"), "checkpoint.json")
	if err := Mkdir(filepath.Dir(dst)); err != nil {
		t.Fatalf("make job dir: %v", err)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		t.Fatalf("read checkpoint: %v", err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		t.Fatalf("copy checkpoint: %v", err)
	}

	if _, ok, _ := store.Load("def456"); ok {
		t.Fatalf("expected checkpoint with mismatched job_key to be ignored")
	}
}

func TestStore_ClearIsIdempotent(t *testing.T) {
	store := NewStore(t.TempDir())

	if err := store.Save("abc123", 4); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}
	if err := store.Clear("abc123"); err != nil {
		t.Fatalf("clear checkpoint: %v", err)
	}
	if err := store.Clear("abc123"); err != nil {
		t.Fatalf("clear cleared checkpoint: %v", err)
	}
	if _, ok, _ := store.Load("abc123"); ok {
		t.Fatalf("expected checkpoint to be gone")
	}
}

// A crash during Save must leave either the old or the new value readable.
// Leftover temp files from an interrupted write must not shadow the real
// checkpoint.
func TestStore_InterruptedSaveLeavesPreviousValueReadable(t *testing.T) {
	store := NewStore(t.TempDir())

	if err := store.Save("abc123", 20); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}

	// Simulate dying after the temp file was written but before the rename.
	jobDir := store.JobDir("abc123")
	tmp := filepath.Join(jobDir, ".brm-tmp-crashed")
	if err := os.WriteFile(tmp, []byte(`{"job_key":"abc123","last_completed_frame":999}`), 0o644); err != nil {
		t.Fatalf("write stray temp file: %v", err)
	}

	cp, ok, err := store.Load("abc123")
	if err != nil || !ok {
		t.Fatalf("load after interrupted save: ok=%v err=%v", ok, err)
	}
	if cp.LastCompletedFrame != 20 {
		t.Fatalf("expected previous value 20 to survive, got %d", cp.LastCompletedFrame)
	}
}

func TestWriteBytes_ReplacesExistingFileAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.json")

	if err := WriteBytes(path, []byte("old")); err != nil {
		t.Fatalf("write initial file: %v", err)
	}
	if err := WriteBytes(path, []byte("new")); err != nil {
		t.Fatalf("replace file: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(data) != "new" {
		t.Fatalf("unexpected content: %q", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".brm-tmp-") {
			t.Fatalf("temp file leaked: %s", e.Name())
		}
	}
}
