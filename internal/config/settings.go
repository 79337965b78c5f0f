package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"blender-render-manager/internal/checkpoint"
	"blender-render-manager/internal/model"
)

const (
	DefaultMaxRetries            = 5
	DefaultBackoffBaseSeconds    = 2
	DefaultBackoffMaxSeconds     = 120
	DefaultStallTimeoutSeconds   = 120
	DefaultAttemptTimeoutSeconds = 0 // disabled: frames can legitimately take minutes
)

// Settings is the global, user-editable configuration. It is read once at
// startup and treated as read-only for the duration of a run.
type Settings struct {
	BlenderPath           string `json:"blender_path,omitempty"`
	StateDir              string `json:"state_dir,omitempty"`
	MaxRetries            int    `json:"max_retries,omitempty"`
	BackoffBaseSeconds    int    `json:"backoff_base_seconds,omitempty"`
	BackoffMaxSeconds     int    `json:"backoff_max_seconds,omitempty"`
	StallTimeoutSeconds   int    `json:"stall_timeout_seconds,omitempty"`
	AttemptTimeoutSeconds int    `json:"attempt_timeout_seconds,omitempty"`
}

func defaultSettings() Settings {
	return Settings{
		MaxRetries:            DefaultMaxRetries,
		BackoffBaseSeconds:    DefaultBackoffBaseSeconds,
		BackoffMaxSeconds:     DefaultBackoffMaxSeconds,
		StallTimeoutSeconds:   DefaultStallTimeoutSeconds,
		AttemptTimeoutSeconds: DefaultAttemptTimeoutSeconds,
	}
}

// Normalize fills zero or out-of-range fields with defaults. Loading and
// saving both pass through here, so a hand-edited file with a missing field
// behaves the same as a fresh one.
func Normalize(raw Settings) Settings {
	norm := raw
	norm.BlenderPath = strings.TrimSpace(norm.BlenderPath)
	norm.StateDir = strings.TrimSpace(norm.StateDir)
	if norm.MaxRetries <= 0 {
		norm.MaxRetries = DefaultMaxRetries
	}
	if norm.BackoffBaseSeconds <= 0 {
		norm.BackoffBaseSeconds = DefaultBackoffBaseSeconds
	}
	if norm.BackoffMaxSeconds < norm.BackoffBaseSeconds {
		norm.BackoffMaxSeconds = DefaultBackoffMaxSeconds
	}
	if norm.StallTimeoutSeconds < 0 {
		norm.StallTimeoutSeconds = DefaultStallTimeoutSeconds
	}
	if norm.AttemptTimeoutSeconds < 0 {
		norm.AttemptTimeoutSeconds = DefaultAttemptTimeoutSeconds
	}
	return norm
}

// DefaultPath is the settings file location, overridable for tests via the
// BRM_CONFIG environment variable.
func DefaultPath() string {
	if env := strings.TrimSpace(os.Getenv("BRM_CONFIG")); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".blender-render-manager", "config.json")
}

// DefaultStateDir resolves where job state (checkpoints, attempt logs)
// lives: the configured directory, or a sibling of the settings file.
func (s Settings) DefaultStateDir(configPath string) string {
	if s.StateDir != "" {
		return s.StateDir
	}
	return filepath.Join(filepath.Dir(configPath), "state")
}

// Backoff converts the stored seconds into the policy the supervisor takes.
func (s Settings) Backoff() model.BackoffPolicy {
	return model.BackoffPolicy{
		Base: time.Duration(s.BackoffBaseSeconds) * time.Second,
		Max:  time.Duration(s.BackoffMaxSeconds) * time.Second,
	}
}

func (s Settings) StallTimeout() time.Duration {
	return time.Duration(s.StallTimeoutSeconds) * time.Second
}

func (s Settings) AttemptTimeout() time.Duration {
	return time.Duration(s.AttemptTimeoutSeconds) * time.Second
}

// Load reads the settings file, returning defaults when it does not exist.
func Load(path string) (Settings, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath()
	}
	var s Settings
	if err := checkpoint.ReadJSON(path, &s); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultSettings(), nil
		}
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return Normalize(s), nil
}

// Save writes the settings atomically, creating parent directories as
// needed.
func Save(path string, s Settings) error {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath()
	}
	return checkpoint.WriteJSON(path, Normalize(s))
}
