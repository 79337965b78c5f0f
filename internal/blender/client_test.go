package blender

import (
	"os"
	"path/filepath"
	"testing"

	"blender-render-manager/internal/model"
)

func TestRenderArgs_OrdersOutputBeforeAnimation(t *testing.T) {
	job := model.JobDescription{
		ScenePath:  "/scenes/shot.blend",
		OutputDir:  "/out",
		FrameStart: 1,
		FrameEnd:   250,
	}

	args := RenderArgs(job, 42)
	want := []string{
		"-b", "/scenes/shot.blend",
		"-o", filepath.Join("/out", "frame_#####"),
		"-F", "PNG",
		"-s", "42",
		"-e", "250",
		"-a",
	}
	if len(args) != len(want) {
		t.Fatalf("unexpected arg count: got %v want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("arg %d: got %q want %q (full: %v)", i, args[i], want[i], args)
		}
	}
}

func TestRenderArgs_HonorsPrefixAndFormat(t *testing.T) {
	job := model.JobDescription{
		ScenePath:   "/scenes/shot.blend",
		OutputDir:   "/out",
		FramePrefix: "shot3_",
		ImageFormat: "exr",
		FrameEnd:    10,
	}

	args := RenderArgs(job, 1)
	joined := ""
	for _, a := range args {
		joined += a + " "
	}
	if want := filepath.Join("/out", "shot3_#####"); args[3] != want {
		t.Fatalf("unexpected output pattern: %q (args: %v)", args[3], args)
	}
	if args[5] != "EXR" {
		t.Fatalf("expected format to be upper-cased, got %q (args: %s)", args[5], joined)
	}
}

func TestParseProbeOutput(t *testing.T) {
	output := `Blender 4.2.1
[PROBE] START_FRAME 10
[PROBE] END_FRAME 120
[PROBE] OUTPUT_DIR /renders/shot3
[PROBE] OUTPUT_FORMAT PNG

Blender quit`

	res, err := parseProbeOutput(output)
	if err != nil {
		t.Fatalf("parse probe output: %v", err)
	}
	if res.FrameStart != 10 || res.FrameEnd != 120 {
		t.Fatalf("unexpected frame range: %d-%d", res.FrameStart, res.FrameEnd)
	}
	if res.OutputDir != "/renders/shot3" {
		t.Fatalf("unexpected output dir: %q", res.OutputDir)
	}
	if res.ImageFormat != "png" {
		t.Fatalf("unexpected format: %q", res.ImageFormat)
	}
}

func TestParseProbeOutput_MissingMarkersFails(t *testing.T) {
	if _, err := parseProbeOutput("Blender 4.2.1\nBlender quit\n"); err == nil {
		t.Fatalf("expected error for output without probe markers")
	}
}

func TestLastFrameOnDisk(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"frame_00001.png",
		"frame_00004.png",
		"frame_00003.png",
		"frame_bad.png",
		"other_00099.png",
		"frame_00010.exr",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write fixture %s: %v", name, err)
		}
	}

	last, err := LastFrameOnDisk(dir, "frame_", "png")
	if err != nil {
		t.Fatalf("scan output dir: %v", err)
	}
	if last != 4 {
		t.Fatalf("unexpected last frame: got %d want %d", last, 4)
	}
}

func TestLastFrameOnDisk_MissingDirReportsNone(t *testing.T) {
	last, err := LastFrameOnDisk(filepath.Join(t.TempDir(), "nope"), "frame_", "png")
	if err != nil {
		t.Fatalf("scan missing dir: %v", err)
	}
	if last != -1 {
		t.Fatalf("expected -1 for missing dir, got %d", last)
	}
}

func TestLastFrameOnDisk_FrameZeroIsDistinctFromNone(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "frame_00000.png"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	last, err := LastFrameOnDisk(dir, "frame_", "png")
	if err != nil {
		t.Fatalf("scan output dir: %v", err)
	}
	if last != 0 {
		t.Fatalf("expected frame 0 to be reported, got %d", last)
	}

	empty := t.TempDir()
	last, err = LastFrameOnDisk(empty, "frame_", "png")
	if err != nil {
		t.Fatalf("scan empty dir: %v", err)
	}
	if last != -1 {
		t.Fatalf("expected -1 for empty dir, got %d", last)
	}
}

func TestResolveExecutable_RejectsMissingConfiguredPath(t *testing.T) {
	if _, err := ResolveExecutable(filepath.Join(t.TempDir(), "blender-nope")); err == nil {
		t.Fatalf("expected error for configured path that does not exist")
	}
}
