package viz

import (
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/robustflow/internal/diagnostics"
	"github.com/san-kum/robustflow/internal/dynamo"
	"github.com/san-kum/robustflow/internal/experiment"
	"github.com/san-kum/robustflow/internal/flow"
)

const (
	canvasWidth     = 40
	canvasHeight    = 16
	historyCapacity = 2000
)

// SampleMsg carries one trajectory sample into the watch view.
type SampleMsg struct {
	State dynamo.State
	Time  float64
}

// DoneMsg ends a watched run.
type DoneMsg struct {
	Outcome *experiment.Outcome
	Err     error
}

// Observer forwards every n-th sample to a running program. It is attached
// to the simulator with AddObserver and runs on the integration goroutine.
type Observer struct {
	send  func(tea.Msg)
	every int
	count int
}

func NewObserver(send func(tea.Msg), every int) *Observer {
	if every < 1 {
		every = 1
	}
	return &Observer{send: send, every: every}
}

func (o *Observer) OnSample(x dynamo.State, t float64) {
	if o.count%o.every == 0 {
		o.send(SampleMsg{State: x.Clone(), Time: t})
	}
	o.count++
}

// Snapshot is a watched sample with the quantities shown in the side panel.
type Snapshot struct {
	State  dynamo.State
	Time   float64
	XError float64
}

// WatchModel shows the primal trajectory on a braille canvas next to the
// multiplier values and the distance to the reference as they arrive.
type WatchModel struct {
	title    string
	layout   flow.Layout
	eval     *diagnostics.Evaluator
	refX     []float64
	canvas   *Canvas
	history  []Snapshot
	playHead int
	paused   bool
	pausedAt int
	showHelp bool
	done     bool
	err      error
	report   *diagnostics.Report
}

func NewWatch(exp *experiment.Experiment) WatchModel {
	f := exp.Flow()
	return WatchModel{
		title:    f.Problem().Name(),
		layout:   f.Layout(),
		eval:     exp.Evaluator(),
		refX:     f.Problem().Reference().X,
		canvas:   NewCanvas(canvasWidth, canvasHeight),
		history:  make([]Snapshot, 0, historyCapacity),
		playHead: -1,
	}
}

func (m WatchModel) Init() tea.Cmd { return nil }

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.paused = !m.paused
			m.pausedAt = len(m.history)
		case "[":
			m.scrub(-1)
		case "]":
			m.scrub(1)
		case "t":
			NextTheme()
		case "?":
			m.showHelp = !m.showHelp
		}
	case SampleMsg:
		m.record(msg)
	case DoneMsg:
		m.done = true
		m.err = msg.Err
		if msg.Outcome != nil {
			m.report = msg.Outcome.Report
		}
	}
	return m, nil
}

func (m *WatchModel) record(msg SampleMsg) {
	snap := Snapshot{State: msg.State, Time: msg.Time, XError: math.NaN()}
	if r, err := m.eval.Evaluate(msg.State); err == nil {
		snap.XError = r.XError
	}
	m.history = append(m.history, snap)
	if len(m.history) > historyCapacity {
		m.history = m.history[1:]
		if m.playHead > 0 {
			m.playHead--
		}
		if m.pausedAt > 1 {
			m.pausedAt--
		}
	}
}

// scrub moves the replay position; stepping past the newest sample returns
// to live view.
func (m *WatchModel) scrub(dir int) {
	if len(m.history) == 0 {
		return
	}
	if m.playHead == -1 {
		m.playHead = len(m.history) - 1
	}
	m.playHead += dir
	if m.playHead < 0 {
		m.playHead = 0
	}
	if m.playHead >= len(m.history) {
		m.playHead = -1
	}
}

// visible returns the samples shown: up to the replay position, up to the
// pause point, or all of them.
func (m WatchModel) visible() []Snapshot {
	switch {
	case m.playHead >= 0 && m.playHead < len(m.history):
		return m.history[:m.playHead+1]
	case m.paused && m.pausedAt <= len(m.history):
		return m.history[:m.pausedAt]
	}
	return m.history
}

func (m WatchModel) View() string {
	shown := m.visible()

	m.canvas.Clear()
	if len(shown) > 0 && m.layout.N >= 2 {
		xs, ys := make([]float64, len(shown)), make([]float64, len(shown))
		for i, snap := range shown {
			xs[i], ys[i] = snap.State[0], snap.State[1]
		}
		b := FitBounds(append(xs, m.refX[0]), append(ys, m.refX[1]))
		m.canvas.Polyline(b, xs, ys)
		m.canvas.Marker(b, m.refX[0], m.refX[1])
	}
	canvasView := lipgloss.NewStyle().Padding(1, 2).Render(m.canvas.String())

	var s strings.Builder
	s.WriteString(titleStyle().Render(strings.ToUpper(m.title)) + "\n")
	s.WriteString(m.status() + "\n\n")

	if len(shown) > 0 {
		last := shown[len(shown)-1]
		x, lambda, u, v, err := m.layout.Split(last.State)
		if err == nil {
			s.WriteString(labelStyle().Render("t") + valueStyle().Render(fmt.Sprintf("%.2f", last.Time)) + "\n")
			s.WriteString(labelStyle().Render("x") + valueStyle().Render(formatVec(x)) + "\n")
			s.WriteString(labelStyle().Render("λ") + valueStyle().Render(fmt.Sprintf("%.4f", lambda)) + "\n")
			s.WriteString(labelStyle().Render("u") + valueStyle().Render(formatVec(u)) + "\n")
			s.WriteString(labelStyle().Render("v") + valueStyle().Render(formatVec(v)) + "\n")
			s.WriteString(labelStyle().Render("‖x - x*‖") + valueStyle().Render(fmt.Sprintf("%.3e", last.XError)) + "\n")
		}
		if len(shown) > 1 {
			logErr := make([]float64, len(shown))
			for i, snap := range shown {
				logErr[i] = math.Log10(math.Max(snap.XError, 1e-12))
			}
			chart := PlotSeries(logErr, "log10 ‖x - x*‖", PlotOptions{Width: 36, Height: 5})
			s.WriteString("\n" + graphStyle().Render(chart) + "\n")
		}
	}
	if m.report != nil {
		s.WriteString("\n" + labelStyle().Render("verdict") +
			VerdictStyle(m.report.Verdict).Render(strings.ToUpper(string(m.report.Verdict))) + "\n")
	}
	s.WriteString(hintStyle().Render("\nSP:Pause [ ]:Replay T:Theme ?:Help Q:Quit"))

	side := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, false, true).
		BorderForeground(CurrentTheme.Muted).
		Padding(1, 2).
		Width(64).
		Render(s.String())
	view := lipgloss.JoinHorizontal(lipgloss.Top, canvasView, side)

	if m.showHelp {
		help := panelStyle().Render(strings.Join([]string{
			"Space  pause or resume the live view",
			"[ ]    step back or forward through samples",
			"T      cycle themes",
			"Q      quit",
			"?      toggle this help",
		}, "\n"))
		return help + "\n\n" + view
	}
	return view
}

func (m WatchModel) status() string {
	switch {
	case m.err != nil:
		return VerdictStyle(diagnostics.Fail).Render("FAILED: " + shortError(m.err))
	case m.playHead >= 0:
		return VerdictStyle(diagnostics.Warn).Render(fmt.Sprintf("REPLAY %d/%d", m.playHead+1, len(m.history)))
	case m.done:
		return VerdictStyle(diagnostics.Pass).Render("DONE")
	case m.paused:
		return VerdictStyle(diagnostics.Warn).Render("PAUSED")
	}
	return VerdictStyle(diagnostics.Pass).Render("RUNNING")
}
