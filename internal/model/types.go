package model

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
	"time"
)

// JobDescription is the immutable specification of one render job. It is
// fixed once a supervisor starts running it; per-run knobs (retries, backoff,
// timeouts) are resolved from settings before that point.
type JobDescription struct {
	ScenePath   string `json:"scene_path"`
	OutputDir   string `json:"output_dir"`
	BlenderPath string `json:"blender_path"`
	FramePrefix string `json:"frame_prefix,omitempty"`
	ImageFormat string `json:"image_format,omitempty"`
	FrameStart  int    `json:"frame_start"`
	FrameEnd    int    `json:"frame_end"`

	MaxRetries     int           `json:"max_retries"`
	Backoff        BackoffPolicy `json:"backoff"`
	StallTimeout   time.Duration `json:"stall_timeout,omitempty"`
	AttemptTimeout time.Duration `json:"attempt_timeout,omitempty"`
}

// BackoffPolicy is the delay rule between a failed attempt and the next
// retry: exponential from Base, doubling per consecutive failure, capped at
// Max. Jitter is applied by the supervisor.
type BackoffPolicy struct {
	Base time.Duration `json:"base"`
	Max  time.Duration `json:"max"`
}

// Key returns the stable checkpoint key for this job.
func (j JobDescription) Key() string {
	return JobKey(j.ScenePath, j.OutputDir)
}

// TotalFrames is the full frame span of the job, ignoring any checkpoint.
func (j JobDescription) TotalFrames() int {
	if j.FrameEnd < j.FrameStart {
		return 0
	}
	return j.FrameEnd - j.FrameStart + 1
}

// JobKey derives the durable identity of a job from its scene and output
// paths. Paths are absolutized and cleaned first so the same job reached via
// different relative spellings maps to one checkpoint.
func JobKey(scenePath, outputDir string) string {
	norm := func(p string) string {
		p = strings.TrimSpace(p)
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		return filepath.Clean(p)
	}
	sum := sha256.Sum256([]byte(norm(scenePath) + "\x00" + norm(outputDir)))
	return hex.EncodeToString(sum[:8])
}

// NoFrameCompleted marks a checkpoint that carries attempt bookkeeping but
// no completed frame yet. Frame numbering starts at 0, so 0 is a real frame
// and cannot double as the empty value.
const NoFrameCompleted = -1

// Checkpoint is the durable record of the highest frame fully completed for
// a job, or NoFrameCompleted when attempts have run but no frame landed.
// last_completed_frame never decreases except by an explicit clear.
type Checkpoint struct {
	JobKey             string `json:"job_key"`
	LastCompletedFrame int    `json:"last_completed_frame"`
	AttemptCount       int    `json:"attempt_count"`
	UpdatedAt          string `json:"updated_at"`
}

// StatusUpdate is one entry in the status stream the supervisor emits toward
// whatever front-end is attached (plain printer or watch view).
// CurrentFrame is the frame being rendered right now, or NoFrameCompleted
// when the update is not about a frame in flight; LastFrame is the highest
// completed frame, or FrameStart-1 when none has completed yet.
type StatusUpdate struct {
	JobKey          string  `json:"job_key"`
	Phase           string  `json:"phase"`
	AttemptID       string  `json:"attempt_id,omitempty"`
	CurrentFrame    int     `json:"current_frame"`
	LastFrame       int     `json:"last_frame"`
	FrameEnd        int     `json:"frame_end"`
	Restarts        int     `json:"restarts"`
	SecondsPerFrame float64 `json:"seconds_per_frame,omitempty"`
	Message         string  `json:"message,omitempty"`
}
