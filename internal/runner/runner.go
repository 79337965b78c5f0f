package runner

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	defaultGracePeriod = 10 * time.Second
	watchdogInterval   = 500 * time.Millisecond
)

// Spec describes one subprocess invocation.
type Spec struct {
	Path string
	Args []string
	Dir  string

	// LogWriter, when set, receives every output line verbatim.
	LogWriter io.Writer

	// StallTimeout kills the process when it stays silent for this long;
	// TotalTimeout bounds the whole invocation. Zero disables either.
	StallTimeout time.Duration
	TotalTimeout time.Duration

	// GracePeriod is how long Cancel waits between the polite signal and
	// the forced kill.
	GracePeriod time.Duration
}

type OutcomeKind int

const (
	OutcomeCompleted OutcomeKind = iota
	OutcomeCrashedExitCode
	OutcomeCrashedSignal
	OutcomeTimedOut
	OutcomeCancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCrashedExitCode:
		return "crashed_exit_code"
	case OutcomeCrashedSignal:
		return "crashed_signal"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of one subprocess invocation.
type Outcome struct {
	Kind     OutcomeKind
	ExitCode int
	Signal   string
	Err      error
}

// Process is a single running render attempt. The caller must drain Lines()
// until it closes; Wait() does not report an outcome before the output
// stream has been fully consumed, so no line is lost or attributed to a
// later attempt.
type Process struct {
	cmd   *exec.Cmd
	lines chan string
	done  chan struct{}

	grace time.Duration

	mu          sync.Mutex
	cancelled   bool
	timedOut    bool
	timeoutNote string
	lastOutput  time.Time

	waitErr error
}

// Launch starts the subprocess and begins draining its output. A returned
// error means the process never ran (bad executable, permissions); that is a
// launch failure, distinct from any crash outcome.
func Launch(spec Spec) (*Process, error) {
	if strings.TrimSpace(spec.Path) == "" {
		return nil, fmt.Errorf("renderer executable is required")
	}

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("setup stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("setup stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launch renderer %s: %w", spec.Path, err)
	}

	grace := spec.GracePeriod
	if grace <= 0 {
		grace = defaultGracePeriod
	}

	p := &Process{
		cmd:        cmd,
		lines:      make(chan string, 64),
		done:       make(chan struct{}),
		grace:      grace,
		lastOutput: time.Now(),
	}

	var logMu sync.Mutex
	var wg sync.WaitGroup
	read := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1024*1024)
		scanner.Split(splitByNewlineOrCR)
		for scanner.Scan() {
			line := scanner.Text()
			p.mu.Lock()
			p.lastOutput = time.Now()
			p.mu.Unlock()
			if spec.LogWriter != nil {
				logMu.Lock()
				_, _ = io.WriteString(spec.LogWriter, line+"\n")
				logMu.Unlock()
			}
			p.lines <- line
		}
	}

	wg.Add(2)
	go read(stdoutPipe)
	go read(stderrPipe)

	// Reap only after both pipes hit EOF, so the outcome can never race
	// ahead of output still in flight.
	go func() {
		wg.Wait()
		close(p.lines)
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	if spec.StallTimeout > 0 || spec.TotalTimeout > 0 {
		go p.watchdog(spec.StallTimeout, spec.TotalTimeout)
	}

	return p, nil
}

// Lines is the merged stdout/stderr stream, one element per line. The
// channel closes when the process has exited and all output is delivered.
func (p *Process) Lines() <-chan string {
	return p.lines
}

// Wait blocks until the process has exited and the output stream is fully
// drained, then classifies how the attempt ended.
func (p *Process) Wait() Outcome {
	<-p.done

	p.mu.Lock()
	cancelled := p.cancelled
	timedOut := p.timedOut
	note := p.timeoutNote
	p.mu.Unlock()

	// User intent wins over everything the kill provoked.
	if cancelled {
		return Outcome{Kind: OutcomeCancelled}
	}
	if timedOut {
		return Outcome{Kind: OutcomeTimedOut, Err: errors.New(note)}
	}
	if p.waitErr == nil {
		return Outcome{Kind: OutcomeCompleted}
	}

	var exitErr *exec.ExitError
	if errors.As(p.waitErr, &exitErr) {
		// ExitCode is -1 when the process died from a signal; the
		// ProcessState string then reads "signal: killed" or similar.
		if code := exitErr.ProcessState.ExitCode(); code >= 0 {
			return Outcome{Kind: OutcomeCrashedExitCode, ExitCode: code, Err: p.waitErr}
		}
		sig := strings.TrimPrefix(exitErr.ProcessState.String(), "signal: ")
		return Outcome{Kind: OutcomeCrashedSignal, Signal: sig, Err: p.waitErr}
	}
	return Outcome{Kind: OutcomeCrashedExitCode, ExitCode: -1, Err: p.waitErr}
}

// Cancel requests graceful termination and escalates to a hard kill when the
// process outlives the grace period. Safe to call more than once.
func (p *Process) Cancel() {
	p.mu.Lock()
	if p.cancelled {
		p.mu.Unlock()
		return
	}
	p.cancelled = true
	p.mu.Unlock()

	if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
		// Platforms without interrupt support fall straight through.
		_ = p.cmd.Process.Kill()
		return
	}

	go func() {
		select {
		case <-p.done:
		case <-time.After(p.grace):
			_ = p.cmd.Process.Kill()
		}
	}()
}

func (p *Process) watchdog(stall, total time.Duration) {
	start := time.Now()
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
		}

		p.mu.Lock()
		silent := time.Since(p.lastOutput)
		p.mu.Unlock()

		var note string
		switch {
		case stall > 0 && silent >= stall:
			note = fmt.Sprintf("no output for %s", silent.Round(time.Second))
		case total > 0 && time.Since(start) >= total:
			note = fmt.Sprintf("attempt exceeded %s", total)
		default:
			continue
		}

		p.mu.Lock()
		alreadyStopping := p.timedOut || p.cancelled
		if !p.timedOut && !p.cancelled {
			p.timedOut = true
			p.timeoutNote = note
		}
		p.mu.Unlock()
		if !alreadyStopping {
			_ = p.cmd.Process.Kill()
		}
		return
	}
}

// splitByNewlineOrCR treats both newline and carriage return as line
// terminators; Blender and similar tools rewrite progress lines with bare
// CRs.
func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}
