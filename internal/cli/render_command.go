package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"blender-render-manager/internal/blender"
	"blender-render-manager/internal/checkpoint"
	"blender-render-manager/internal/config"
	"blender-render-manager/internal/model"
	"blender-render-manager/internal/supervisor"
)

func runRender(args []string, fromScratch bool) error {
	name := "render"
	if fromScratch {
		name = "restart"
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	cfgPath := fs.String("config", config.DefaultPath(), "settings file path")
	stateDir := fs.String("state-dir", "", "job state directory (default: next to settings file)")
	blenderFlag := fs.String("blender", "", "blender executable (default: settings, then PATH)")
	output := fs.String("output", "", "output directory (default: probed from scene)")
	start := fs.Int("start", -1, "first frame (default: probed from scene)")
	end := fs.Int("end", 0, "last frame (default: probed from scene)")
	prefix := fs.String("prefix", blender.DefaultFramePrefix, "rendered file name prefix")
	format := fs.String("format", "", "image format (default: probed from scene, then png)")
	maxRetries := fs.Int("max-retries", -1, "consecutive failures before giving up (-1 uses settings)")
	watch := fs.Bool("watch", false, "interactive progress view")
	jsonOut := fs.Bool("json", false, "print the final result as JSON")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	scene := strings.TrimSpace(fs.Arg(0))
	if scene == "" {
		return fmt.Errorf("usage: %s <scene.blend> [flags]", name)
	}

	settings, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	job, store, err := buildJob(settings, *cfgPath, jobParams{
		scene:       scene,
		output:      *output,
		stateDir:    *stateDir,
		blenderPath: *blenderFlag,
		prefix:      *prefix,
		format:      *format,
		start:       *start,
		end:         *end,
		maxRetries:  *maxRetries,
	})
	if err != nil {
		return err
	}

	if fromScratch {
		if err := store.Clear(job.Key()); err != nil {
			return err
		}
		fmt.Printf("checkpoint cleared for %s\n", scene)
		fmt.Println("note: frames already in the output directory still count as rendered; remove them to redo the work")
	}

	var res supervisor.Result
	var runErr error
	if *watch && stdinIsTTY() {
		res, runErr = runRenderWatch(job, store)
	} else {
		sup := supervisor.New(job, supervisor.Options{Store: store, Notify: plainNotify(job)})
		stop := cancelOnSignal(sup)
		defer stop()
		res, runErr = sup.Run(context.Background())
	}

	if *jsonOut {
		if err := printJSON(res); err != nil {
			return err
		}
	} else {
		printResult(job, res)
	}
	return runErr
}

type jobParams struct {
	scene       string
	output      string
	stateDir    string
	blenderPath string
	prefix      string
	format      string
	start       int
	end         int
	maxRetries  int
}

// buildJob resolves a complete job description from flags, settings, and,
// where neither answers, a scene probe.
func buildJob(settings config.Settings, cfgPath string, p jobParams) (model.JobDescription, checkpoint.Store, error) {
	executable, err := blender.ResolveExecutable(firstNonEmpty(p.blenderPath, settings.BlenderPath))
	if err != nil {
		return model.JobDescription{}, checkpoint.Store{}, err
	}

	outputDir := strings.TrimSpace(p.output)
	frameStart := p.start
	frameEnd := p.end
	imageFormat := strings.TrimSpace(p.format)

	if outputDir == "" || frameEnd == 0 || frameStart < 0 {
		probe, err := blender.ProbeScene(executable, p.scene)
		if err != nil {
			return model.JobDescription{}, checkpoint.Store{}, err
		}
		if outputDir == "" {
			outputDir = probe.OutputDir
		}
		// -start 0 is a real choice; only a negative value means "ask the
		// scene".
		if frameStart < 0 {
			frameStart = probe.FrameStart
		}
		if frameEnd == 0 {
			frameEnd = probe.FrameEnd
		}
		if imageFormat == "" {
			imageFormat = probe.ImageFormat
		}
	}
	if frameStart < 0 {
		frameStart = 1
	}

	retries := p.maxRetries
	if retries < 0 {
		retries = settings.MaxRetries
	}

	job := model.JobDescription{
		ScenePath:      p.scene,
		OutputDir:      outputDir,
		BlenderPath:    executable,
		FramePrefix:    firstNonEmpty(p.prefix, blender.DefaultFramePrefix),
		ImageFormat:    firstNonEmpty(imageFormat, "png"),
		FrameStart:     frameStart,
		FrameEnd:       frameEnd,
		MaxRetries:     retries,
		Backoff:        settings.Backoff(),
		StallTimeout:   settings.StallTimeout(),
		AttemptTimeout: settings.AttemptTimeout(),
	}
	store := checkpoint.NewStore(firstNonEmpty(p.stateDir, settings.DefaultStateDir(cfgPath)))
	return job, store, nil
}

// cancelOnSignal asks the supervisor to stop on SIGINT or SIGTERM. The
// returned function removes the handler.
func cancelOnSignal(sup *supervisor.Supervisor) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		if _, ok := <-sigCh; !ok {
			return
		}
		fmt.Fprintln(os.Stderr, "cancelling render, waiting for the renderer to stop...")
		sup.Cancel()
	}()
	return func() {
		signal.Stop(sigCh)
		close(sigCh)
	}
}

// plainNotify prints the status stream as log lines for non-interactive
// runs.
func plainNotify(job model.JobDescription) func(model.StatusUpdate) {
	var lastPhase string
	return func(u model.StatusUpdate) {
		switch {
		case u.Phase != lastPhase:
			lastPhase = u.Phase
			if u.Message != "" {
				fmt.Printf("phase %s: %s\n", u.Phase, u.Message)
			} else {
				fmt.Printf("phase %s\n", u.Phase)
			}
		case u.Phase == model.PhaseRunning && u.Message != "":
			fmt.Printf("  %s\n", u.Message)
		case u.Phase == model.PhaseRunning && u.CurrentFrame < 0:
			left := job.FrameEnd - u.LastFrame
			fmt.Printf("  frame %d/%d done, %d left, eta %s\n", u.LastFrame, job.FrameEnd, left, formatETA(left, u.SecondsPerFrame))
		}
	}
}

func printResult(job model.JobDescription, res supervisor.Result) {
	fmt.Println()
	switch res.Phase {
	case model.PhaseCompleted:
		fmt.Printf("render completed: frames %d-%d in %s\n", job.FrameStart, job.FrameEnd, job.OutputDir)
	case model.PhaseCancelled:
		if res.LastCompletedFrame < job.FrameStart {
			fmt.Println("render cancelled before any frame completed; run the same command to resume")
		} else {
			fmt.Printf("render cancelled at frame %d of %d; run the same command to resume\n", res.LastCompletedFrame, job.FrameEnd)
		}
	case model.PhaseFailed:
		if res.LastCompletedFrame < job.FrameStart {
			fmt.Printf("render failed before any frame completed: %s\n", res.LastError)
		} else {
			fmt.Printf("render failed at frame %d of %d: %s\n", res.LastCompletedFrame, job.FrameEnd, res.LastError)
		}
	}
	if res.Restarts > 0 {
		fmt.Printf("renderer restarts: %d\n", res.Restarts)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
