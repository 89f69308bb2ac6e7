// Package tui renders a live view of a conversation: the current phase, what
// the user said and what the agent answered.
package tui

import (
	"fmt"
	"strings"

	orchestration "github.com/JayTiptown/Conduit-coding-test/core"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

const (
	defaultWidth = 80
	maxLines     = 200
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	phaseStyles = map[orchestration.Phase]lipgloss.Style{
		orchestration.PhaseListening:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		orchestration.PhaseDispatched: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		orchestration.PhaseSpeaking:   lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
	}
	userStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	agentStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	pendingStyle = lipgloss.NewStyle().Faint(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helpStyle    = lipgloss.NewStyle().Faint(true)
)

// PhaseMsg reports that the conversation moved to a new phase.
type PhaseMsg struct{ Phase orchestration.Phase }

// WordMsg carries a word the recognizer accepted into the open turn.
type WordMsg struct {
	Text       string
	Start, End float64
}

// TurnMsg reports that a user turn was closed and sent for a reply.
type TurnMsg struct{ ID, Text string }

// SentenceMsg carries a sentence the agent finished speaking.
type SentenceMsg struct{ TurnID, Text string }

// ErrorMsg is shown until the next turn closes.
type ErrorMsg struct{ Err error }

type speaker int

const (
	speakerUser speaker = iota
	speakerAgent
)

type line struct {
	speaker speaker
	turnID  string
	text    string
}

type Model struct {
	spinner spinner.Model
	phase   orchestration.Phase
	pending []string
	lines   []line
	width   int
	err     error
	onQuit  func()
}

// NewModel returns a model in the listening phase. onQuit is called once when
// the user asks to leave.
func NewModel(onQuit func()) Model {
	return Model{
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		phase:   orchestration.PhaseListening,
		width:   defaultWidth,
		onQuit:  onQuit,
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.onQuit != nil {
				m.onQuit()
				m.onQuit = nil
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case PhaseMsg:
		m.phase = msg.Phase

	case WordMsg:
		if text := strings.TrimSpace(msg.Text); text != "" {
			m.pending = append(m.pending, text)
		}

	case TurnMsg:
		m.pending = nil
		m.err = nil
		m.appendLine(line{speaker: speakerUser, turnID: msg.ID, text: msg.Text})

	case SentenceMsg:
		sentence := strings.TrimSpace(msg.Text)
		if sentence == "" {
			break
		}
		if n := len(m.lines); n > 0 && m.lines[n-1].speaker == speakerAgent && m.lines[n-1].turnID == msg.TurnID {
			m.lines[n-1].text += " " + sentence
			break
		}
		m.appendLine(line{speaker: speakerAgent, turnID: msg.TurnID, text: sentence})

	case ErrorMsg:
		m.err = msg.Err
	}

	return m, nil
}

func (m *Model) appendLine(l line) {
	m.lines = append(m.lines, l)
	if len(m.lines) > maxLines {
		m.lines = m.lines[len(m.lines)-maxLines:]
	}
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("conduit"))
	b.WriteString("  ")
	if m.phase == orchestration.PhaseDispatched {
		b.WriteString(m.spinner.View())
	}
	b.WriteString(phaseStyles[m.phase].Render(m.phase.String()))
	b.WriteString("\n\n")

	for _, l := range m.lines {
		prefix, style := "you: ", userStyle
		if l.speaker == speakerAgent {
			prefix, style = "agent: ", agentStyle
		}
		b.WriteString(style.Render(m.wrap(prefix + l.text)))
		b.WriteString("\n")
	}

	if len(m.pending) > 0 {
		b.WriteString(pendingStyle.Render(m.wrap("you: " + strings.Join(m.pending, " ") + " ...")))
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(m.wrap(fmt.Sprintf("error: %v", m.err))))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("q to quit"))
	return b.String()
}

func (m Model) wrap(s string) string {
	return wordwrap.String(s, max(m.width-2, 20))
}
