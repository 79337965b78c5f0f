package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	jobLockDirName   = ".job.lock"
	jobLockOwnerFile = "owner.json"
)

// JobLock serializes supervisors across processes: at most one live render
// attempt per job key, even if two front-ends point at the same job.
type JobLock struct {
	lockDir string
}

type jobLockOwner struct {
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

// AcquireJobLock takes the per-job lock under the job's state directory.
// The mkdir is the atomic acquire; the owner file is advisory detail for
// error messages.
func AcquireJobLock(jobDir string) (JobLock, error) {
	target := strings.TrimSpace(jobDir)
	if target == "" {
		return JobLock{}, fmt.Errorf("job directory is required")
	}
	if err := Mkdir(target); err != nil {
		return JobLock{}, err
	}

	lockDir := filepath.Join(target, jobLockDirName)
	if err := os.Mkdir(lockDir, 0o755); err != nil {
		if os.IsExist(err) {
			ownerPath := filepath.Join(lockDir, jobLockOwnerFile)
			var owner jobLockOwner
			if readErr := ReadJSON(ownerPath, &owner); readErr == nil && owner.PID > 0 && owner.CreatedAt != "" {
				return JobLock{}, fmt.Errorf(
					"job is already being rendered: %s (pid=%d created_at=%s host=%s)",
					target, owner.PID, owner.CreatedAt, owner.Hostname,
				)
			}
			return JobLock{}, fmt.Errorf("job is already being rendered: %s", target)
		}
		return JobLock{}, fmt.Errorf("acquire job lock for %s: %w", target, err)
	}

	owner := jobLockOwner{
		PID:       os.Getpid(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	ownerPath := filepath.Join(lockDir, jobLockOwnerFile)
	if err := WriteJSON(ownerPath, owner); err != nil {
		_ = os.Remove(lockDir)
		return JobLock{}, fmt.Errorf("write job lock owner for %s: %w", target, err)
	}

	return JobLock{lockDir: lockDir}, nil
}

func (l JobLock) Release() error {
	if strings.TrimSpace(l.lockDir) == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.lockDir, jobLockOwnerFile))
	if err := os.Remove(l.lockDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release job lock %s: %w", l.lockDir, err)
	}
	return nil
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}
