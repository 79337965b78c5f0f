package cli

import (
	"context"
	"fmt"
	"path/filepath"

	bprogress "github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"blender-render-manager/internal/checkpoint"
	"blender-render-manager/internal/model"
	"blender-render-manager/internal/supervisor"
)

var (
	watchTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	watchMutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	watchErrorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	watchOKStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	watchPanelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	watchCancelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

type watchStatusMsg model.StatusUpdate

type watchDoneMsg struct {
	res supervisor.Result
	err error
}

type watchModel struct {
	job   model.JobDescription
	sup   *supervisor.Supervisor
	bar   bprogress.Model
	width int
	phase string
	last  int
	cur   int
	spf   float64
	rsts  int
	msg   string

	cancelAsked bool
	done        bool
	result      supervisor.Result
	runErr      error
}

func newWatchModel(sup *supervisor.Supervisor, job model.JobDescription) watchModel {
	return watchModel{
		job:   job,
		sup:   sup,
		bar:   bprogress.New(bprogress.WithDefaultGradient()),
		phase: model.PhaseIdle,
		last:  job.FrameStart - 1,
	}
}

func (m watchModel) Init() tea.Cmd {
	return nil
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = msg.Width - 10
		if m.bar.Width > 60 {
			m.bar.Width = 60
		}
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "c", "ctrl+c", "q":
			if m.done {
				return m, tea.Quit
			}
			if !m.cancelAsked {
				m.cancelAsked = true
				m.sup.Cancel()
			}
			return m, nil
		case "enter":
			if m.done {
				return m, tea.Quit
			}
			return m, nil
		}
	case watchStatusMsg:
		u := model.StatusUpdate(msg)
		m.phase = u.Phase
		if u.LastFrame > m.last {
			m.last = u.LastFrame
		}
		m.cur = u.CurrentFrame
		m.rsts = u.Restarts
		if u.SecondsPerFrame > 0 {
			m.spf = u.SecondsPerFrame
		}
		if u.Message != "" {
			m.msg = u.Message
		}
		return m, nil
	case watchDoneMsg:
		m.done = true
		m.result = msg.res
		m.runErr = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m watchModel) View() string {
	title := watchTitleStyle.Render("Rendering " + filepath.Base(m.job.ScenePath))

	total := m.job.TotalFrames()
	doneFrames := m.last - m.job.FrameStart + 1
	if doneFrames < 0 {
		doneFrames = 0
	}
	fraction := 0.0
	if total > 0 {
		fraction = float64(doneFrames) / float64(total)
	}

	left := m.job.FrameEnd - m.last
	counter := fmt.Sprintf("%d/%d frames  restarts %d  eta %s", doneFrames, total, m.rsts, formatETA(left, m.spf))
	if m.cur > m.last {
		counter = fmt.Sprintf("rendering frame %d  ", m.cur) + counter
	}

	lines := []string{
		title,
		"",
		m.bar.ViewAs(fraction),
		watchMutedStyle.Render(counter),
	}

	switch {
	case m.done && m.result.Phase == model.PhaseCompleted:
		lines = append(lines, "", watchOKStyle.Render("render completed"))
	case m.done && m.result.Phase == model.PhaseCancelled:
		lines = append(lines, "", watchCancelStyle.Render("render cancelled, checkpoint kept"))
	case m.done:
		lines = append(lines, "", watchErrorStyle.Render("render failed: "+m.result.LastError))
	case m.cancelAsked:
		lines = append(lines, "", watchCancelStyle.Render("cancelling..."))
	case m.msg != "":
		lines = append(lines, "", watchMutedStyle.Render(m.msg))
	}

	lines = append(lines, "", watchMutedStyle.Render("phase: "+m.phase+"   press c to cancel"))
	return watchPanelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// runRenderWatch drives the supervisor under an interactive bubbletea view.
// The supervisor's notify callback feeds the program's message queue, so the
// render loop never blocks on terminal drawing.
func runRenderWatch(job model.JobDescription, store checkpoint.Store) (supervisor.Result, error) {
	var p *tea.Program
	sup := supervisor.New(job, supervisor.Options{
		Store: store,
		Notify: func(u model.StatusUpdate) {
			p.Send(watchStatusMsg(u))
		},
	})
	p = tea.NewProgram(newWatchModel(sup, job))

	stop := cancelOnSignal(sup)
	defer stop()

	go func() {
		res, err := sup.Run(context.Background())
		p.Send(watchDoneMsg{res: res, err: err})
	}()

	finalModel, err := p.Run()
	if err != nil {
		sup.Cancel()
		return supervisor.Result{}, fmt.Errorf("watch view: %w", err)
	}
	m := finalModel.(watchModel)
	if !m.done {
		// View exited before the run finished; fall back to waiting
		// without the UI.
		sup.Cancel()
	}
	return m.result, m.runErr
}
