package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"blender-render-manager/internal/model"
)

const checkpointFileName = "checkpoint.json"

// Store persists one checkpoint record per job key under
// <root>/jobs/<job_key>/checkpoint.json. Saves are atomic; a corrupt or
// missing checkpoint reads back as "no checkpoint" and never fails a run.
type Store struct {
	root string
}

func NewStore(root string) Store {
	return Store{root: strings.TrimSpace(root)}
}

func (s Store) Root() string {
	return s.root
}

// JobDir is the per-job state directory: checkpoint, attempt logs, lock.
func (s Store) JobDir(jobKey string) string {
	return filepath.Join(s.root, "jobs", jobKey)
}

func (s Store) checkpointPath(jobKey string) string {
	return filepath.Join(s.JobDir(jobKey), checkpointFileName)
}

// Load returns the checkpoint for jobKey if one exists. A missing file
// returns ok=false with a nil error; an unreadable or corrupt file also
// returns ok=false but reports the cause so the caller can log a warning.
// Either way the job starts from the beginning rather than failing.
func (s Store) Load(jobKey string) (model.Checkpoint, bool, error) {
	var cp model.Checkpoint
	path := s.checkpointPath(jobKey)
	if err := ReadJSON(path, &cp); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.Checkpoint{}, false, nil
		}
		return model.Checkpoint{}, false, fmt.Errorf("checkpoint unusable, starting over: %w", err)
	}
	if cp.LastCompletedFrame < model.NoFrameCompleted || (cp.JobKey != "" && cp.JobKey != jobKey) {
		return model.Checkpoint{}, false, fmt.Errorf("checkpoint %s does not match job %s, starting over", path, jobKey)
	}
	return cp, true, nil
}

// Save records frame as the last completed frame for jobKey. The stored value
// is monotonic: saving a frame lower than the current one is a no-op, so a
// replayed or out-of-order completion can never roll progress back.
func (s Store) Save(jobKey string, frame int) error {
	if frame < 0 {
		return fmt.Errorf("save checkpoint for %s: negative frame %d", jobKey, frame)
	}
	cp, ok, _ := s.Load(jobKey)
	if ok && cp.LastCompletedFrame >= frame {
		return nil
	}
	cp.JobKey = jobKey
	cp.LastCompletedFrame = frame
	cp.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return WriteJSON(s.checkpointPath(jobKey), cp)
}

// RecordAttempt bumps the attempt counter, creating the checkpoint record if
// this is the first attempt ever for the job. A record created here carries
// NoFrameCompleted until a Save lands a real frame, so attempt bookkeeping
// can never masquerade as progress on frame 0.
func (s Store) RecordAttempt(jobKey string) error {
	cp, ok, _ := s.Load(jobKey)
	if !ok {
		cp = model.Checkpoint{JobKey: jobKey, LastCompletedFrame: model.NoFrameCompleted}
	}
	cp.JobKey = jobKey
	cp.AttemptCount++
	cp.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return WriteJSON(s.checkpointPath(jobKey), cp)
}

// Clear removes the checkpoint for jobKey. Clearing a job that has no
// checkpoint is not an error.
func (s Store) Clear(jobKey string) error {
	if err := os.Remove(s.checkpointPath(jobKey)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear checkpoint for %s: %w", jobKey, err)
	}
	return nil
}
