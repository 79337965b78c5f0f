package cli

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"blender-render-manager/internal/config"
)

func runSettings(args []string) error {
	if len(args) == 0 {
		printSettingsUsage()
		return nil
	}
	switch args[0] {
	case "show":
		return runSettingsShow(args[1:])
	case "set":
		return runSettingsSet(args[1:])
	case "help", "-h", "--help":
		printSettingsUsage()
		return nil
	default:
		printSettingsUsage()
		return fmt.Errorf("unknown settings subcommand %q", args[0])
	}
}

func runSettingsShow(args []string) error {
	fs := flag.NewFlagSet("settings show", flag.ContinueOnError)
	cfgPath := fs.String("config", config.DefaultPath(), "settings file path")
	jsonOut := fs.Bool("json", false, "print as JSON")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := strings.TrimSpace(*cfgPath)
	settings, err := config.Load(path)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{
			"config_path": path,
			"settings":    settings,
		})
	}

	fmt.Printf("config: %s\n", path)
	printSettings(settings)
	return nil
}

func runSettingsSet(args []string) error {
	fs := flag.NewFlagSet("settings set", flag.ContinueOnError)
	cfgPath := fs.String("config", config.DefaultPath(), "settings file path")
	blenderPath := fs.String("blender", "", "blender executable path (empty keeps current)")
	stateDir := fs.String("state-dir", "", "job state directory (empty keeps current)")
	maxRetries := fs.Int("max-retries", -1, "consecutive failures before giving up (>=1, -1 keeps current)")
	backoffBase := fs.Int("backoff-base-seconds", -1, "first retry delay in seconds (>=1, -1 keeps current)")
	backoffMax := fs.Int("backoff-max-seconds", -1, "retry delay cap in seconds (>=1, -1 keeps current)")
	stallTimeout := fs.Int("stall-timeout-seconds", -1, "kill an attempt after this much output silence (0 disables, -1 keeps current)")
	attemptTimeout := fs.Int("attempt-timeout-seconds", -1, "kill an attempt after this total runtime (0 disables, -1 keeps current)")
	jsonOut := fs.Bool("json", false, "print as JSON")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := strings.TrimSpace(*cfgPath)
	settings, err := config.Load(path)
	if err != nil {
		return err
	}

	if strings.TrimSpace(*blenderPath) != "" {
		settings.BlenderPath = strings.TrimSpace(*blenderPath)
	}
	if strings.TrimSpace(*stateDir) != "" {
		settings.StateDir = strings.TrimSpace(*stateDir)
	}
	if *maxRetries != -1 {
		if *maxRetries < 1 {
			return errors.New("--max-retries must be >= 1")
		}
		settings.MaxRetries = *maxRetries
	}
	if *backoffBase != -1 {
		if *backoffBase < 1 {
			return errors.New("--backoff-base-seconds must be >= 1")
		}
		settings.BackoffBaseSeconds = *backoffBase
	}
	if *backoffMax != -1 {
		if *backoffMax < 1 {
			return errors.New("--backoff-max-seconds must be >= 1")
		}
		settings.BackoffMaxSeconds = *backoffMax
	}
	if *stallTimeout != -1 {
		if *stallTimeout < 0 {
			return errors.New("--stall-timeout-seconds must be >= 0")
		}
		settings.StallTimeoutSeconds = *stallTimeout
	}
	if *attemptTimeout != -1 {
		if *attemptTimeout < 0 {
			return errors.New("--attempt-timeout-seconds must be >= 0")
		}
		settings.AttemptTimeoutSeconds = *attemptTimeout
	}

	settings = config.Normalize(settings)
	if err := config.Save(path, settings); err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{
			"config_path": path,
			"settings":    settings,
		})
	}

	fmt.Printf("updated settings in %s\n", path)
	printSettings(settings)
	return nil
}

func printSettings(s config.Settings) {
	blenderPath := s.BlenderPath
	if blenderPath == "" {
		blenderPath = "(from PATH)"
	}
	stateDir := s.StateDir
	if stateDir == "" {
		stateDir = "(next to config)"
	}
	fmt.Printf("blender_path: %s\n", blenderPath)
	fmt.Printf("state_dir: %s\n", stateDir)
	fmt.Printf("max_retries: %d\n", s.MaxRetries)
	fmt.Printf("backoff_base_seconds: %d\n", s.BackoffBaseSeconds)
	fmt.Printf("backoff_max_seconds: %d\n", s.BackoffMaxSeconds)
	fmt.Printf("stall_timeout_seconds: %d\n", s.StallTimeoutSeconds)
	fmt.Printf("attempt_timeout_seconds: %d\n", s.AttemptTimeoutSeconds)
}

func printSettingsUsage() {
	fmt.Println("settings: show or update global settings")
	fmt.Println()
	fmt.Println("Subcommands:")
	fmt.Println("  show  print the current settings")
	fmt.Println("  set   change one or more settings")
	fmt.Println()
	fmt.Println("Example:")
	fmt.Println("  blender-render-manager settings set --blender /usr/bin/blender --max-retries 3")
}
