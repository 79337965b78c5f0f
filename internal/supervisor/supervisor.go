package supervisor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"blender-render-manager/internal/blender"
	"blender-render-manager/internal/checkpoint"
	"blender-render-manager/internal/model"
	"blender-render-manager/internal/progress"
	"blender-render-manager/internal/runner"
)

// Attempt is one live render subprocess as the supervisor sees it.
// *runner.Process satisfies this; tests substitute scripted fakes.
type Attempt interface {
	Lines() <-chan string
	Wait() runner.Outcome
	Cancel()
}

// Launcher starts render attempts. The default launches real subprocesses.
type Launcher interface {
	Launch(spec runner.Spec) (Attempt, error)
}

type execLauncher struct{}

func (execLauncher) Launch(spec runner.Spec) (Attempt, error) {
	return runner.Launch(spec)
}

type Options struct {
	Store    checkpoint.Store
	Launcher Launcher

	// Notify receives every status change and completed frame, in order.
	// The supervisor calls it synchronously after attempting the matching
	// checkpoint write. If that write fails the failure is logged and the
	// frame is still reported: a later resume may redo the frame, which is
	// safe, while aborting a long render over a transient write error is
	// not.
	Notify func(model.StatusUpdate)

	// Logf receives operational warnings (corrupt checkpoint, failed
	// checkpoint write). Defaults to stderr.
	Logf func(format string, args ...any)
}

// Result summarizes a finished run.
type Result struct {
	Phase              string `json:"phase"`
	LastCompletedFrame int    `json:"last_completed_frame"`
	Restarts           int    `json:"restarts"`
	LastError          string `json:"last_error,omitempty"`
}

// Supervisor drives one job to a terminal phase across any number of
// crash/restart cycles. One instance runs one job once; Run is not
// reentrant.
type Supervisor struct {
	job      model.JobDescription
	store    checkpoint.Store
	launcher Launcher
	notify   func(model.StatusUpdate)
	logf     func(format string, args ...any)

	mu        sync.Mutex
	phase     string
	current   Attempt
	cancelled bool
	restarts  int
	lastFrame int

	cancelCh   chan struct{}
	cancelOnce sync.Once
}

func New(job model.JobDescription, opts Options) *Supervisor {
	launcher := opts.Launcher
	if launcher == nil {
		launcher = execLauncher{}
	}
	notify := opts.Notify
	if notify == nil {
		notify = func(model.StatusUpdate) {}
	}
	logf := opts.Logf
	if logf == nil {
		logf = func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}
	}
	return &Supervisor{
		job:      job,
		store:    opts.Store,
		launcher: launcher,
		notify:   notify,
		logf:     logf,
		phase:    model.PhaseIdle,
		cancelCh: make(chan struct{}),
	}
}

// Phase returns the current phase, safe to call from any goroutine.
func (s *Supervisor) Phase() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Cancel requests cooperative cancellation: the running attempt is asked to
// terminate and the supervisor ends in phase Cancelled, checkpoint intact.
// Safe to call from any goroutine, any number of times.
func (s *Supervisor) Cancel() {
	s.cancelOnce.Do(func() {
		s.mu.Lock()
		s.cancelled = true
		cur := s.current
		s.mu.Unlock()
		close(s.cancelCh)
		if cur != nil {
			cur.Cancel()
		}
	})
}

// Run drives the job to a terminal phase. Cancelling ctx behaves like
// Cancel().
func (s *Supervisor) Run(ctx context.Context) (Result, error) {
	if err := validateJob(s.job); err != nil {
		s.setPhase(model.PhaseFailed, err.Error())
		return s.result(err.Error()), err
	}

	key := s.job.Key()
	lock, err := checkpoint.AcquireJobLock(s.store.JobDir(key))
	if err != nil {
		s.setPhase(model.PhaseFailed, err.Error())
		return s.result(err.Error()), err
	}
	defer func() {
		_ = lock.Release()
	}()

	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			s.Cancel()
		case <-stopWatch:
		}
	}()

	s.reconcileOutputDir(key)

	consecutiveFailures := 0
	lastError := ""

	for {
		if s.isCancelled() {
			s.setPhase(model.PhaseCancelled, "cancelled before launch")
			return s.result(lastError), nil
		}

		s.setPhase(model.PhaseStarting, "")

		cp, ok, warn := s.store.Load(key)
		if warn != nil {
			s.logf("warning: %v", warn)
		}
		resume := s.job.FrameStart
		// A checkpoint holding only attempt bookkeeping (NoFrameCompleted)
		// must not advance the resume frame past FrameStart.
		if ok && cp.LastCompletedFrame != model.NoFrameCompleted && cp.LastCompletedFrame+1 > resume {
			resume = cp.LastCompletedFrame + 1
		}
		s.mu.Lock()
		s.lastFrame = resume - 1
		s.mu.Unlock()

		if resume > s.job.FrameEnd {
			s.setPhase(model.PhaseCompleted, "all frames already rendered")
			return s.result(lastError), nil
		}

		if err := s.store.RecordAttempt(key); err != nil {
			s.logf("warning: record attempt: %v", err)
		}

		attemptID := shortID()
		logFile, logErr := os.Create(filepath.Join(s.store.JobDir(key), "attempt-"+attemptID+".log"))
		if logErr != nil {
			s.logf("warning: attempt log unavailable: %v", logErr)
		}

		att, err := s.launcher.Launch(runner.Spec{
			Path:         s.job.BlenderPath,
			Args:         blender.RenderArgs(s.job, resume),
			LogWriter:    logWriterOrNil(logFile),
			StallTimeout: s.job.StallTimeout,
			TotalTimeout: s.job.AttemptTimeout,
		})
		if err != nil {
			// Retrying an unresolvable launch error cannot succeed, so
			// this is terminal without touching the retry budget.
			if logFile != nil {
				_ = logFile.Close()
			}
			msg := err.Error()
			s.setPhase(model.PhaseFailed, msg)
			return s.result(msg), err
		}

		s.mu.Lock()
		s.current = att
		cancelledMeanwhile := s.cancelled
		s.mu.Unlock()
		if cancelledMeanwhile {
			att.Cancel()
		}

		s.setPhase(model.PhaseRunning, fmt.Sprintf("attempt %s rendering from frame %d", attemptID, resume))

		lastCompleted := resume - 1
		parser := progress.NewParser()
		var est frameEstimator

		for line := range att.Lines() {
			ev, ok := parser.Feed(line)
			if !ok {
				continue
			}
			switch ev.Kind {
			case progress.EventFrameCompleted:
				if ev.Frame <= lastCompleted {
					continue
				}
				// Checkpoint first, report after: progress the caller
				// has seen is always durable.
				if err := s.store.Save(key, ev.Frame); err != nil {
					s.logf("warning: checkpoint write failed at frame %d: %v", ev.Frame, err)
				}
				lastCompleted = ev.Frame
				consecutiveFailures = 0
				est.observe(time.Now())
				s.mu.Lock()
				s.lastFrame = lastCompleted
				s.mu.Unlock()
				s.notify(s.update(model.PhaseRunning, attemptID, model.NoFrameCompleted, est.secondsPerFrame(), ""))
			case progress.EventFrameStarted:
				s.notify(s.update(model.PhaseRunning, attemptID, ev.Frame, est.secondsPerFrame(), ""))
			case progress.EventRenderError:
				// Not fatal by itself: severity is decided at process
				// exit.
				lastError = ev.Message
				s.notify(s.update(model.PhaseRunning, attemptID, model.NoFrameCompleted, est.secondsPerFrame(), "renderer error: "+ev.Message))
			case progress.EventRenderWarning:
				s.logf("renderer warning: %s", ev.Message)
			}
		}

		outcome := att.Wait()
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
		if logFile != nil {
			_ = logFile.Close()
		}

		switch outcome.Kind {
		case runner.OutcomeCancelled:
			s.setPhase(model.PhaseCancelled, "cancelled by user")
			return s.result(lastError), nil
		case runner.OutcomeCompleted:
			if lastCompleted >= s.job.FrameEnd {
				s.setPhase(model.PhaseCompleted, "")
				return s.result(lastError), nil
			}
			// Clean exit short of the final frame: absence of an error
			// is not proof of success.
			lastError = firstNonEmpty(lastError, fmt.Sprintf("renderer exited early at frame %d of %d", lastCompleted, s.job.FrameEnd))
		case runner.OutcomeTimedOut:
			lastError = firstNonEmpty(outcomeError(outcome), lastError)
		default:
			lastError = firstNonEmpty(lastError, outcomeError(outcome))
		}

		if s.isCancelled() {
			s.setPhase(model.PhaseCancelled, "cancelled by user")
			return s.result(lastError), nil
		}

		consecutiveFailures++
		s.mu.Lock()
		s.restarts++
		s.mu.Unlock()

		if consecutiveFailures > s.job.MaxRetries {
			msg := fmt.Sprintf("giving up after %d consecutive failures: %s", consecutiveFailures, lastError)
			s.setPhase(model.PhaseFailed, msg)
			return s.result(lastError), fmt.Errorf("render failed: %s", lastError)
		}

		delay := backoffDelay(s.job.Backoff, consecutiveFailures)
		s.setPhase(model.PhaseRestarting, fmt.Sprintf("attempt failed (%s), retrying in %s", describeOutcome(outcome), delay.Round(time.Millisecond)))
		select {
		case <-s.cancelCh:
			s.setPhase(model.PhaseCancelled, "cancelled during backoff")
			return s.result(lastError), nil
		case <-time.After(delay):
		}
	}
}

func (s *Supervisor) reconcileOutputDir(key string) {
	last, err := blender.LastFrameOnDisk(s.job.OutputDir, s.job.FramePrefix, s.job.ImageFormat)
	if err != nil {
		s.logf("warning: %v", err)
		return
	}
	if last < 0 {
		return
	}
	// Frames already on disk fast-forward the checkpoint; Save is
	// monotonic so disk evidence can never roll it back.
	if err := s.store.Save(key, last); err != nil {
		s.logf("warning: reconcile checkpoint from disk: %v", err)
	}
}

func (s *Supervisor) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func (s *Supervisor) setPhase(to, message string) {
	s.mu.Lock()
	from := s.phase
	if err := model.ValidateTransition(from, to); err != nil {
		s.logf("warning: %v", err)
	}
	s.phase = to
	s.mu.Unlock()
	s.notify(s.update(to, "", model.NoFrameCompleted, 0, message))
}

func (s *Supervisor) update(phase, attemptID string, currentFrame int, secondsPerFrame float64, message string) model.StatusUpdate {
	s.mu.Lock()
	lastFrame := s.lastFrame
	restarts := s.restarts
	s.mu.Unlock()
	return model.StatusUpdate{
		JobKey:          s.job.Key(),
		Phase:           phase,
		AttemptID:       attemptID,
		CurrentFrame:    currentFrame,
		LastFrame:       lastFrame,
		FrameEnd:        s.job.FrameEnd,
		Restarts:        restarts,
		SecondsPerFrame: secondsPerFrame,
		Message:         message,
	}
}

func (s *Supervisor) result(lastError string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Result{
		Phase:              s.phase,
		LastCompletedFrame: s.lastFrame,
		Restarts:           s.restarts,
		LastError:          lastError,
	}
}

func validateJob(job model.JobDescription) error {
	if strings.TrimSpace(job.ScenePath) == "" {
		return fmt.Errorf("scene path is required")
	}
	if strings.TrimSpace(job.OutputDir) == "" {
		return fmt.Errorf("output directory is required")
	}
	if strings.TrimSpace(job.BlenderPath) == "" {
		return fmt.Errorf("renderer executable is required")
	}
	if job.FrameStart < 0 {
		return fmt.Errorf("frame start must be >= 0, got %d", job.FrameStart)
	}
	if job.FrameEnd < job.FrameStart {
		return fmt.Errorf("frame range %d-%d is empty", job.FrameStart, job.FrameEnd)
	}
	if job.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0")
	}
	return nil
}

func shortID() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func logWriterOrNil(f *os.File) io.Writer {
	if f == nil {
		return nil
	}
	return f
}

func outcomeError(o runner.Outcome) string {
	if o.Err != nil {
		return o.Err.Error()
	}
	return describeOutcome(o)
}

func describeOutcome(o runner.Outcome) string {
	switch o.Kind {
	case runner.OutcomeCrashedExitCode:
		return fmt.Sprintf("exit code %d", o.ExitCode)
	case runner.OutcomeCrashedSignal:
		return "signal " + o.Signal
	case runner.OutcomeTimedOut:
		return "timed out"
	case runner.OutcomeCancelled:
		return "cancelled"
	default:
		return "clean exit before final frame"
	}
}
