package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/recall/internal/session"
)

// Controller is what the interactive view drives: it stops the capture
// loop and answers questions once the session is complete.
type Controller interface {
	Stop()
	Ask(ctx context.Context, question string) (string, error)
}

// TUI forwards capture progress to a running program. It implements ui.UI.
type TUI struct {
	program *tea.Program
}

func NewTUI(p *tea.Program) *TUI {
	return &TUI{program: p}
}

func (t *TUI) UpdateStatus(status string) {
	t.program.Send(StatusMsg(status))
}

func (t *TUI) UpdateIteration(iter int) {
	t.program.Send(IterMsg(iter))
}

func (t *TUI) AddRecord(rec session.Record) {
	t.program.Send(RecordMsg(rec))
}

func (t *TUI) Log(msg string) {
	t.program.Send(LogMsg(msg))
}

// Done tells the view that capture has finished and questions may be asked.
func (t *TUI) Done(records int, err error) {
	t.program.Send(CaptureDoneMsg{Records: records, Err: err})
}

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(lipgloss.Color("#7D56F4")).
		Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#04B575"))

	errorStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FF0000"))

	helpStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#626262"))
)

// Phase is where the session is in its lifecycle.
type Phase int

const (
	PhaseCapturing Phase = iota
	PhaseStopping
	PhaseAsking
	PhaseAnswering
)

type Model struct {
	Title     string
	Status    string
	Iteration int
	MaxIter   int
	Records   []session.Record
	Log       []string
	Err       error
	Phase     Phase
	Progress  progress.Model
	Viewport  viewport.Model
	Input     textinput.Model
	Quitting  bool
	Ready     bool
	Width     int
	Height    int

	ctx        context.Context
	controller Controller
}

type LogMsg string
type StatusMsg string
type IterMsg int
type RecordMsg session.Record

// CaptureDoneMsg switches the view to the question prompt.
type CaptureDoneMsg struct {
	Records int
	Err     error
}

// AnswerMsg carries the result of a question.
type AnswerMsg struct {
	Question string
	Answer   string
	Err      error
}

func NewModel(ctx context.Context, title string, maxIter int, c Controller) Model {
	in := textinput.New()
	in.Placeholder = "What was I working on?"
	in.Prompt = "? "
	in.CharLimit = 500

	return Model{
		Title:      title,
		Status:     "Initializing...",
		MaxIter:    maxIter,
		Progress:   progress.New(progress.WithDefaultGradient()),
		Input:      in,
		ctx:        ctx,
		controller: c,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.Quitting = true
			return m, tea.Quit
		}
		switch m.Phase {
		case PhaseCapturing, PhaseStopping:
			switch msg.String() {
			case "q":
				m.Quitting = true
				return m, tea.Quit
			case "s":
				if m.Phase == PhaseCapturing {
					m.Phase = PhaseStopping
					m.Status = "Stopping after the current capture..."
					m.controller.Stop()
				}
				return m, nil
			}
		case PhaseAsking:
			switch msg.Type {
			case tea.KeyEsc:
				m.Quitting = true
				return m, tea.Quit
			case tea.KeyEnter:
				q := strings.TrimSpace(m.Input.Value())
				if q == "" {
					return m, nil
				}
				m.Input.SetValue("")
				m.Phase = PhaseAnswering
				m.Status = "Thinking..."
				return m, m.ask(q)
			}
			var cmd tea.Cmd
			m.Input, cmd = m.Input.Update(msg)
			return m, cmd
		case PhaseAnswering:
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		if !m.Ready {
			m.Viewport = viewport.New(msg.Width, msg.Height-10)
			m.Ready = true
		} else {
			m.Viewport.Width = msg.Width
			m.Viewport.Height = msg.Height - 10
		}
		m.Progress.Width = msg.Width - 4
		m.refresh()

	case LogMsg:
		m.Log = append(m.Log, string(msg))
		m.refresh()

	case RecordMsg:
		m.Records = append(m.Records, session.Record(msg))
		m.refresh()

	case StatusMsg:
		m.Status = string(msg)

	case IterMsg:
		m.Iteration = int(msg)

	case CaptureDoneMsg:
		m.Phase = PhaseAsking
		m.Err = msg.Err
		m.Status = fmt.Sprintf("Capture complete: %d records", msg.Records)
		cmds = append(cmds, m.Input.Focus())

	case AnswerMsg:
		m.Phase = PhaseAsking
		m.Status = fmt.Sprintf("Capture complete: %d records", len(m.Records))
		m.Log = append(m.Log, "Q: "+msg.Question)
		if msg.Err != nil {
			m.Log = append(m.Log, errorStyle.Render("Error: "+msg.Err.Error()))
		} else {
			m.Log = append(m.Log, "A: "+msg.Answer)
		}
		m.refresh()
	}

	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) ask(q string) tea.Cmd {
	ctx, c := m.ctx, m.controller
	if ctx == nil {
		ctx = context.Background()
	}
	return func() tea.Msg {
		answer, err := c.Ask(ctx, q)
		return AnswerMsg{Question: q, Answer: answer, Err: err}
	}
}

func (m *Model) refresh() {
	var b strings.Builder
	for _, r := range m.Records {
		b.WriteString(r.Summary)
		b.WriteString("\n")
	}
	if len(m.Log) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(m.Log, "\n"))
	}
	m.Viewport.SetContent(b.String())
	m.Viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.Ready {
		return "\n  Initializing..."
	}

	header := titleStyle.Render(" " + m.Title + " ")
	status := infoStyle.Render(fmt.Sprintf(" Status: %s ", m.Status))
	iter := fmt.Sprintf(" Capture: %d/%d ", m.Iteration, m.MaxIter)

	ratio := 0.0
	if m.MaxIter > 0 {
		ratio = float64(m.Iteration) / float64(m.MaxIter)
	}
	if ratio > 1 || m.Phase >= PhaseAsking {
		ratio = 1
	}
	prog := m.Progress.ViewAs(ratio)

	view := fmt.Sprintf("%s%s%s\n\n%s\n\n%s",
		header, status, iter,
		m.Viewport.View(),
		prog)

	if m.Err != nil {
		view += "\n" + errorStyle.Render(" "+m.Err.Error())
	}

	switch m.Phase {
	case PhaseCapturing:
		view += "\n" + helpStyle.Render(" s: stop capturing  q: quit")
	case PhaseAsking, PhaseAnswering:
		view += "\n\n" + m.Input.View() + "\n" + helpStyle.Render(" enter: ask  esc: quit")
	}

	if m.Quitting {
		return view + "\n  Quitting...\n"
	}

	return view
}
