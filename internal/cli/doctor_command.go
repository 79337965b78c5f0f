package cli

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"blender-render-manager/internal/blender"
	"blender-render-manager/internal/checkpoint"
	"blender-render-manager/internal/config"
)

type doctorResult struct {
	OK     bool          `json:"ok"`
	Checks []doctorCheck `json:"checks"`
}

type doctorCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	cfgPath := fs.String("config", config.DefaultPath(), "settings file path")
	stateDir := fs.String("state-dir", "", "job state directory (default: next to settings file)")
	jsonOut := fs.Bool("json", false, "print as JSON")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	settings, settingsErr := config.Load(*cfgPath)
	res := runDoctorChecks(settings, settingsErr, *cfgPath, firstNonEmpty(*stateDir, settings.DefaultStateDir(*cfgPath)))

	if *jsonOut {
		if err := printJSON(res); err != nil {
			return err
		}
	} else {
		for _, c := range res.Checks {
			mark := "ok"
			if !c.OK {
				mark = "FAIL"
			}
			fmt.Printf("%-4s %-20s %s\n", mark, c.Name, c.Message)
		}
	}
	if !res.OK {
		return fmt.Errorf("doctor found problems")
	}
	return nil
}

func runDoctorChecks(settings config.Settings, settingsErr error, cfgPath, stateDir string) doctorResult {
	checks := make([]doctorCheck, 0, 4)

	dep := blender.DependencyStatus(settings.BlenderPath)
	checks = append(checks, doctorCheck{
		Name:    "dependency:blender",
		OK:      dep.BlenderFound,
		Message: dependencyMessage(dep.BlenderFound, dep.BlenderPath, "blender"),
	})

	settingsOK := settingsErr == nil
	settingsMsg := "readable"
	if settingsErr != nil {
		settingsMsg = settingsErr.Error()
	}
	checks = append(checks, doctorCheck{
		Name:    "settings:file",
		OK:      settingsOK,
		Message: settingsMsg,
	})

	cfgOK, cfgMsg := ensureWritableDir(filepath.Dir(cfgPath))
	checks = append(checks, doctorCheck{
		Name:    "directory:config",
		OK:      cfgOK,
		Message: cfgMsg,
	})

	stateOK, stateMsg := ensureWritableDir(stateDir)
	checks = append(checks, doctorCheck{
		Name:    "directory:state",
		OK:      stateOK,
		Message: stateMsg,
	})

	ok := true
	for _, c := range checks {
		if !c.OK {
			ok = false
			break
		}
	}
	return doctorResult{OK: ok, Checks: checks}
}

func dependencyMessage(ok bool, path, name string) string {
	if ok {
		return name + " found at " + path
	}
	return name + " not found (set it with: settings set --blender <path>)"
}

func ensureWritableDir(path string) (bool, string) {
	if strings.TrimSpace(path) == "" {
		return false, "empty path"
	}
	if err := checkpoint.Mkdir(path); err != nil {
		return false, err.Error()
	}
	f, err := os.CreateTemp(path, "blender-render-manager-check-*.tmp")
	if err != nil {
		return false, err.Error()
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return true, "writable"
}
