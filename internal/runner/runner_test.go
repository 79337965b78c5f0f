package runner

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "renderer")
	script := "#!/usr/bin/env bash\n" + body
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake renderer: %v", err)
	}
	return path
}

func drain(p *Process) []string {
	var lines []string
	for line := range p.Lines() {
		lines = append(lines, line)
	}
	return lines
}

func TestLaunch_CleanExitDeliversAllOutputBeforeOutcome(t *testing.T) {
	script := writeScript(t, `
echo "Fra:1 Mem:10M"
echo "Saved: '/out/frame_00001.png'"
echo "stderr noise" >&2
exit 0
`)

	p, err := Launch(Spec{Path: script})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	lines := drain(p)
	outcome := p.Wait()

	if outcome.Kind != OutcomeCompleted {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %v", lines)
	}
}

func TestLaunch_NonZeroExitIsCrashWithCode(t *testing.T) {
	script := writeScript(t, `
echo "Error: render device lost"
exit 7
`)

	p, err := Launch(Spec{Path: script})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	drain(p)
	outcome := p.Wait()

	if outcome.Kind != OutcomeCrashedExitCode {
		t.Fatalf("unexpected outcome kind: %v", outcome.Kind)
	}
	if outcome.ExitCode != 7 {
		t.Fatalf("unexpected exit code: %d", outcome.ExitCode)
	}
}

func TestLaunch_MissingExecutableIsLaunchFailure(t *testing.T) {
	if _, err := Launch(Spec{Path: filepath.Join(t.TempDir(), "no-such-renderer")}); err == nil {
		t.Fatalf("expected launch failure for missing executable")
	}
}

func TestProcess_CancelEndsInCancelledOutcome(t *testing.T) {
	script := writeScript(t, `
echo "Fra:1 Mem:10M"
exec sleep 30
`)

	p, err := Launch(Spec{Path: script, GracePeriod: time.Second})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}

	go func() {
		time.Sleep(200 * time.Millisecond)
		p.Cancel()
	}()
	drain(p)
	outcome := p.Wait()

	if outcome.Kind != OutcomeCancelled {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestProcess_StallTimeoutKillsSilentProcess(t *testing.T) {
	script := writeScript(t, `
echo "Fra:1 Mem:10M"
exec sleep 30
`)

	p, err := Launch(Spec{Path: script, StallTimeout: time.Second})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	drain(p)
	outcome := p.Wait()

	if outcome.Kind != OutcomeTimedOut {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if outcome.Err == nil || !strings.Contains(outcome.Err.Error(), "no output") {
		t.Fatalf("expected stall note in error, got %v", outcome.Err)
	}
}

func TestProcess_TotalTimeoutKillsLongRun(t *testing.T) {
	script := writeScript(t, `
for i in $(seq 1 100); do
  echo "Fra:$i Mem:10M"
  sleep 0.2
done
`)

	p, err := Launch(Spec{Path: script, TotalTimeout: time.Second})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	drain(p)
	outcome := p.Wait()

	if outcome.Kind != OutcomeTimedOut {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestProcess_LogWriterSeesEveryLine(t *testing.T) {
	script := writeScript(t, `
echo "one"
echo "two" >&2
`)

	var sb strings.Builder

	p, err := Launch(Spec{Path: script, LogWriter: &sb})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	drain(p)
	p.Wait()

	logged := sb.String()
	if !strings.Contains(logged, "one") || !strings.Contains(logged, "two") {
		t.Fatalf("log missing lines: %q", logged)
	}
}

func TestSplitByNewlineOrCR(t *testing.T) {
	data := []byte("a\rb\nc")
	advance, token, _ := splitByNewlineOrCR(data, false)
	if advance != 2 || string(token) != "a" {
		t.Fatalf("unexpected first token: advance=%d token=%q", advance, token)
	}

	advance, token, _ = splitByNewlineOrCR([]byte("tail"), true)
	if advance != 4 || string(token) != "tail" {
		t.Fatalf("unexpected EOF token: advance=%d token=%q", advance, token)
	}
}
