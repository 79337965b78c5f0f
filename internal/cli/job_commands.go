package cli

import (
	"flag"
	"fmt"
	"strings"

	"blender-render-manager/internal/blender"
	"blender-render-manager/internal/checkpoint"
	"blender-render-manager/internal/config"
	"blender-render-manager/internal/model"
)

type jobStatus struct {
	Scene              string `json:"scene"`
	OutputDir          string `json:"output_dir"`
	JobKey             string `json:"job_key"`
	HasCheckpoint      bool   `json:"has_checkpoint"`
	LastCompletedFrame int    `json:"last_completed_frame"`
	AttemptCount       int    `json:"attempt_count"`
	UpdatedAt          string `json:"updated_at,omitempty"`
	FramesOnDisk       int    `json:"frames_on_disk"`
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	cfgPath := fs.String("config", config.DefaultPath(), "settings file path")
	stateDir := fs.String("state-dir", "", "job state directory (default: next to settings file)")
	output := fs.String("output", "", "output directory (default: probed from scene)")
	prefix := fs.String("prefix", blender.DefaultFramePrefix, "rendered file name prefix")
	format := fs.String("format", "png", "image format of rendered frames")
	jsonOut := fs.Bool("json", false, "print as JSON")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	scene := strings.TrimSpace(fs.Arg(0))
	if scene == "" {
		return fmt.Errorf("usage: status <scene.blend> [flags]")
	}

	settings, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	outputDir, err := resolveOutputDir(settings, scene, *output)
	if err != nil {
		return err
	}
	store := checkpoint.NewStore(firstNonEmpty(*stateDir, settings.DefaultStateDir(*cfgPath)))

	key := model.JobKey(scene, outputDir)
	cp, ok, err := store.Load(key)
	if err != nil {
		fmt.Printf("warning: checkpoint unreadable, treating as absent: %v\n", err)
	}
	onDisk, err := blender.LastFrameOnDisk(outputDir, *prefix, *format)
	if err != nil {
		return err
	}

	st := jobStatus{
		Scene:              scene,
		OutputDir:          outputDir,
		JobKey:             key,
		HasCheckpoint:      ok,
		LastCompletedFrame: model.NoFrameCompleted,
		FramesOnDisk:       onDisk,
	}
	if ok {
		st.LastCompletedFrame = cp.LastCompletedFrame
		st.AttemptCount = cp.AttemptCount
		st.UpdatedAt = cp.UpdatedAt
	}

	if *jsonOut {
		return printJSON(st)
	}
	fmt.Printf("scene:      %s\n", st.Scene)
	fmt.Printf("output dir: %s\n", st.OutputDir)
	fmt.Printf("job key:    %s\n", st.JobKey)
	switch {
	case st.HasCheckpoint && st.LastCompletedFrame == model.NoFrameCompleted:
		fmt.Printf("checkpoint: no frame completed yet (attempt %d, updated %s)\n", st.AttemptCount, st.UpdatedAt)
	case st.HasCheckpoint:
		fmt.Printf("checkpoint: frame %d (attempt %d, updated %s)\n", st.LastCompletedFrame, st.AttemptCount, st.UpdatedAt)
	default:
		fmt.Println("checkpoint: none")
	}
	if st.FramesOnDisk < 0 {
		fmt.Println("on disk:    no frames")
	} else {
		fmt.Printf("on disk:    highest frame %d\n", st.FramesOnDisk)
	}
	return nil
}

func runClear(args []string) error {
	fs := flag.NewFlagSet("clear", flag.ContinueOnError)
	cfgPath := fs.String("config", config.DefaultPath(), "settings file path")
	stateDir := fs.String("state-dir", "", "job state directory (default: next to settings file)")
	output := fs.String("output", "", "output directory (default: probed from scene)")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	scene := strings.TrimSpace(fs.Arg(0))
	if scene == "" {
		return fmt.Errorf("usage: clear <scene.blend> [flags]")
	}

	settings, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	outputDir, err := resolveOutputDir(settings, scene, *output)
	if err != nil {
		return err
	}
	store := checkpoint.NewStore(firstNonEmpty(*stateDir, settings.DefaultStateDir(*cfgPath)))

	key := model.JobKey(scene, outputDir)
	if err := store.Clear(key); err != nil {
		return err
	}
	fmt.Printf("checkpoint cleared for %s (job %s)\n", scene, key)
	return nil
}

// resolveOutputDir answers status/clear lookups: the flag wins, otherwise a
// scene probe decides, matching what render would do.
func resolveOutputDir(settings config.Settings, scene, flagValue string) (string, error) {
	if dir := strings.TrimSpace(flagValue); dir != "" {
		return dir, nil
	}
	executable, err := blender.ResolveExecutable(settings.BlenderPath)
	if err != nil {
		return "", fmt.Errorf("cannot probe output directory (pass --output to skip the probe): %w", err)
	}
	probe, err := blender.ProbeScene(executable, scene)
	if err != nil {
		return "", err
	}
	return probe.OutputDir, nil
}
