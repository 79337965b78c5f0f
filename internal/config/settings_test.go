package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("load missing settings: %v", err)
	}
	if s.MaxRetries != DefaultMaxRetries {
		t.Fatalf("unexpected max retries: %d", s.MaxRetries)
	}
	if s.StallTimeoutSeconds != DefaultStallTimeoutSeconds {
		t.Fatalf("unexpected stall timeout: %d", s.StallTimeoutSeconds)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	in := Settings{
		BlenderPath:        "/opt/blender/blender",
		MaxRetries:         9,
		BackoffBaseSeconds: 1,
		BackoffMaxSeconds:  30,
	}
	if err := Save(path, in); err != nil {
		t.Fatalf("save settings: %v", err)
	}

	out, err := Load(path)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if out.BlenderPath != in.BlenderPath {
		t.Fatalf("unexpected blender path: %q", out.BlenderPath)
	}
	if out.MaxRetries != 9 {
		t.Fatalf("unexpected max retries: %d", out.MaxRetries)
	}
	if out.BackoffMaxSeconds != 30 {
		t.Fatalf("unexpected backoff max: %d", out.BackoffMaxSeconds)
	}
}

func TestNormalize_FillsMissingFields(t *testing.T) {
	s := Normalize(Settings{BackoffMaxSeconds: 1, BackoffBaseSeconds: 10})
	if s.BackoffMaxSeconds < s.BackoffBaseSeconds {
		t.Fatalf("backoff max below base after normalize: %+v", s)
	}
	if s.MaxRetries != DefaultMaxRetries {
		t.Fatalf("unexpected max retries: %d", s.MaxRetries)
	}
}

func TestSettings_DurationHelpers(t *testing.T) {
	s := Settings{BackoffBaseSeconds: 3, BackoffMaxSeconds: 60, StallTimeoutSeconds: 45}
	if got := s.Backoff().Base; got != 3*time.Second {
		t.Fatalf("unexpected backoff base: %s", got)
	}
	if got := s.StallTimeout(); got != 45*time.Second {
		t.Fatalf("unexpected stall timeout: %s", got)
	}
	if got := s.AttemptTimeout(); got != 0 {
		t.Fatalf("expected attempt timeout disabled, got %s", got)
	}
}

func TestSettings_DefaultStateDir(t *testing.T) {
	s := Settings{}
	got := s.DefaultStateDir("/home/u/.blender-render-manager/config.json")
	want := filepath.Join("/home/u/.blender-render-manager", "state")
	if got != want {
		t.Fatalf("unexpected state dir: got %q want %q", got, want)
	}

	s.StateDir = "/var/render-state"
	if got := s.DefaultStateDir("/anything"); got != "/var/render-state" {
		t.Fatalf("configured state dir should win, got %q", got)
	}
}
