package cli

import (
	"flag"
	"fmt"
	"strings"

	"blender-render-manager/internal/blender"
	"blender-render-manager/internal/config"
)

func runProbe(args []string) error {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	cfgPath := fs.String("config", config.DefaultPath(), "settings file path")
	blenderFlag := fs.String("blender", "", "blender executable (default: settings, then PATH)")
	jsonOut := fs.Bool("json", false, "print as JSON")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	scene := strings.TrimSpace(fs.Arg(0))
	if scene == "" {
		return fmt.Errorf("usage: probe <scene.blend> [flags]")
	}

	settings, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	executable, err := blender.ResolveExecutable(firstNonEmpty(*blenderFlag, settings.BlenderPath))
	if err != nil {
		return err
	}
	probe, err := blender.ProbeScene(executable, scene)
	if err != nil {
		return err
	}

	if *jsonOut {
		return printJSON(probe)
	}
	fmt.Printf("scene:        %s\n", scene)
	fmt.Printf("frame range:  %d-%d (%d frames)\n", probe.FrameStart, probe.FrameEnd, probe.FrameEnd-probe.FrameStart+1)
	fmt.Printf("output dir:   %s\n", probe.OutputDir)
	fmt.Printf("image format: %s\n", probe.ImageFormat)
	return nil
}
