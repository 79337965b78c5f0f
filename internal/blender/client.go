package blender

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"blender-render-manager/internal/model"
)

const DefaultFramePrefix = "frame_"

// probeExpr prints scene facts as [PROBE] markers on stdout so the caller
// can fill in a job description without opening the file itself.
const probeExpr = `import bpy; s=bpy.context.scene; print("[PROBE] START_FRAME", s.frame_start); print("[PROBE] END_FRAME", s.frame_end); print("[PROBE] OUTPUT_DIR", bpy.path.abspath(s.render.filepath)); print("[PROBE] OUTPUT_FORMAT", s.render.image_settings.file_format)`

type ProbeResult struct {
	FrameStart  int    `json:"frame_start"`
	FrameEnd    int    `json:"frame_end"`
	OutputDir   string `json:"output_dir"`
	ImageFormat string `json:"image_format"`
}

type DependencyReport struct {
	BlenderFound bool   `json:"blender_found"`
	BlenderPath  string `json:"blender_path,omitempty"`
}

// ResolveExecutable picks the renderer binary: an explicitly configured path
// wins, otherwise PATH lookup.
func ResolveExecutable(configured string) (string, error) {
	path := strings.TrimSpace(configured)
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("blender executable %s: %w", path, err)
		}
		return path, nil
	}
	found, err := exec.LookPath("blender")
	if err != nil {
		return "", fmt.Errorf("missing dependency: blender is not installed or not on PATH")
	}
	return found, nil
}

func DependencyStatus(configured string) DependencyReport {
	report := DependencyReport{}
	if path, err := ResolveExecutable(configured); err == nil {
		report.BlenderFound = true
		report.BlenderPath = path
	}
	return report
}

func CheckDependencies(configured string) error {
	if _, err := ResolveExecutable(configured); err != nil {
		return err
	}
	return nil
}

// RenderArgs builds the Blender batch invocation for one attempt covering
// [startFrame, job.FrameEnd]. Blender parses its CLI in order, so the output
// settings must come before -a.
func RenderArgs(job model.JobDescription, startFrame int) []string {
	prefix := job.FramePrefix
	if prefix == "" {
		prefix = DefaultFramePrefix
	}
	format := strings.ToUpper(strings.TrimSpace(job.ImageFormat))
	if format == "" {
		format = "PNG"
	}
	return []string{
		"-b", job.ScenePath,
		"-o", filepath.Join(job.OutputDir, prefix+"#####"),
		"-F", format,
		"-s", strconv.Itoa(startFrame),
		"-e", strconv.Itoa(job.FrameEnd),
		"-a",
	}
}

// ProbeScene runs the renderer once in batch mode to read the scene's frame
// range and output settings. This mirrors a preflight, not a render: the
// process loads the file, prints the probe markers, and exits.
func ProbeScene(blenderPath, scenePath string) (ProbeResult, error) {
	if strings.TrimSpace(scenePath) == "" {
		return ProbeResult{}, fmt.Errorf("scene path is required")
	}
	executable, err := ResolveExecutable(blenderPath)
	if err != nil {
		return ProbeResult{}, err
	}

	cmd := exec.Command(executable, "-b", scenePath, "--python-expr", probeExpr, "--python-exit-code", "1")
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return ProbeResult{}, fmt.Errorf("probe scene %s: %w: %s", scenePath, err, strings.TrimSpace(stderr.String()))
	}
	res, err := parseProbeOutput(stdout.String())
	if err != nil {
		return ProbeResult{}, fmt.Errorf("probe scene %s: %w", scenePath, err)
	}
	if res.OutputDir == "" || res.OutputDir == "//" {
		base := strings.TrimSuffix(filepath.Base(scenePath), filepath.Ext(scenePath))
		res.OutputDir = filepath.Join(filepath.Dir(scenePath), base+"_output")
	}
	return res, nil
}

func parseProbeOutput(output string) (ProbeResult, error) {
	res := ProbeResult{ImageFormat: "png"}
	sawRange := false
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "[PROBE] START_FRAME "):
			v, err := strconv.Atoi(lastField(line))
			if err != nil {
				return ProbeResult{}, fmt.Errorf("bad start frame in probe output: %q", line)
			}
			res.FrameStart = v
			sawRange = true
		case strings.HasPrefix(line, "[PROBE] END_FRAME "):
			v, err := strconv.Atoi(lastField(line))
			if err != nil {
				return ProbeResult{}, fmt.Errorf("bad end frame in probe output: %q", line)
			}
			res.FrameEnd = v
		case strings.HasPrefix(line, "[PROBE] OUTPUT_DIR "):
			res.OutputDir = strings.TrimSpace(strings.TrimPrefix(line, "[PROBE] OUTPUT_DIR"))
		case strings.HasPrefix(line, "[PROBE] OUTPUT_FORMAT "):
			if v := strings.TrimSpace(strings.TrimPrefix(line, "[PROBE] OUTPUT_FORMAT")); v != "" {
				res.ImageFormat = strings.ToLower(v)
			}
		}
	}
	if !sawRange {
		return ProbeResult{}, fmt.Errorf("no probe markers in renderer output")
	}
	return res, nil
}

func lastField(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// LastFrameOnDisk scans outputDir for already-rendered frames matching
// <prefix><digits>.<format> and returns the highest frame number found.
// Returns -1 when the directory is missing or holds no frames; frame 0 is a
// real frame.
func LastFrameOnDisk(outputDir, prefix, format string) (int, error) {
	if prefix == "" {
		prefix = DefaultFramePrefix
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "png"
	}

	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return -1, nil
		}
		return -1, fmt.Errorf("scan output directory %s: %w", outputDir, err)
	}

	pattern, err := regexp.Compile("^" + regexp.QuoteMeta(prefix) + `(\d+)\.(?i:` + regexp.QuoteMeta(format) + `)$`)
	if err != nil {
		return -1, fmt.Errorf("bad frame prefix %q: %w", prefix, err)
	}

	last := -1
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := pattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		if frame, err := strconv.Atoi(m[1]); err == nil && frame > last {
			last = frame
		}
	}
	return last, nil
}
