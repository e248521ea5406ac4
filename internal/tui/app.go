// Package tui is the terminal chat interface: a transcript viewport, an
// input line and an agent switcher, fed by orchestrator update callbacks.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/workspace/chat-client/internal/orchestrator"
	"github.com/workspace/chat-client/internal/profile"
	"github.com/workspace/chat-client/internal/transcript"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true)
	tabStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Padding(0, 1)
	activeTabStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true).Padding(0, 1)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	agentStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	errTextStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("160"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// updateMsg tells the model that an agent's visible state changed.
type updateMsg struct{ agentID string }

type model struct {
	orch   *orchestrator.Orchestrator
	agents []profile.Agent

	width  int
	height int
	ready  bool

	selected int
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	help     help.Model
	keys     keyMap
	showHelp bool
}

// Run drives the chat UI until the user quits. It registers itself as the
// orchestrator's update callback for the duration.
func Run(orch *orchestrator.Orchestrator) error {
	input := textinput.New()
	input.Placeholder = "type a message"
	input.Prompt = "> "
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = dimStyle

	m := model{
		orch:    orch,
		agents:  orch.Agents(),
		input:   input,
		spinner: spin,
		help:    help.New(),
		keys:    defaultKeyMap,
	}
	for i, agent := range m.agents {
		if agent.ID == orch.SelectedAgent() {
			m.selected = i
		}
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	orch.SetNotify(func(agentID string) {
		p.Send(updateMsg{agentID: agentID})
	})
	defer orch.SetNotify(nil)

	_, err := p.Run()
	return err
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.ready = true
		m.refreshTranscript(true)
		return m, nil

	case updateMsg:
		if msg.agentID == m.currentAgentID() {
			m.refreshTranscript(true)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			m.layout()
			return m, nil
		case key.Matches(msg, m.keys.NextAgent):
			m.switchAgent(1)
			return m, nil
		case key.Matches(msg, m.keys.PrevAgent):
			m.switchAgent(-1)
			return m, nil
		case key.Matches(msg, m.keys.Up):
			m.viewport.ScrollUp(1)
			return m, nil
		case key.Matches(msg, m.keys.Down):
			m.viewport.ScrollDown(1)
			return m, nil
		case key.Matches(msg, m.keys.Send):
			text := strings.TrimSpace(m.input.Value())
			if text != "" {
				m.orch.Send(text, m.currentAgentID())
				m.input.SetValue("")
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) View() string {
	if !m.ready {
		return "loading..."
	}

	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.statusView())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	if m.showHelp {
		b.WriteString(m.help.FullHelpView(m.keys.FullHelp()))
	} else {
		b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	}
	return b.String()
}

func (m *model) headerView() string {
	prof := m.orch.Profile()
	name := prof.DisplayName
	if name == "" {
		name = prof.Username
	}

	tabs := make([]string, 0, len(m.agents))
	for i, agent := range m.agents {
		style := tabStyle
		if i == m.selected {
			style = activeTabStyle
		}
		tabs = append(tabs, style.Render(agent.Name))
	}
	return titleStyle.Render(name) + "  " + strings.Join(tabs, "")
}

func (m *model) statusView() string {
	agentID := m.currentAgentID()
	if m.orch.Thinking(agentID) {
		return m.spinner.View() + dimStyle.Render(m.currentAgentName()+" is thinking...")
	}
	if m.orch.Connected(agentID) {
		return statusStyle.Render("connected")
	}
	return statusStyle.Render("")
}

func (m *model) layout() {
	// Header, status, input and help each take one line.
	height := m.height - 4
	if m.showHelp {
		height -= 2
	}
	if height < 1 {
		height = 1
	}
	if m.viewport.Width == 0 {
		m.viewport = viewport.New(m.width, height)
	} else {
		m.viewport.Width = m.width
		m.viewport.Height = height
	}
	m.input.Width = m.width - 4
}

func (m *model) switchAgent(delta int) {
	if len(m.agents) == 0 {
		return
	}
	m.selected = (m.selected + delta + len(m.agents)) % len(m.agents)
	m.orch.SelectAgent(m.agents[m.selected].ID)
	m.refreshTranscript(true)
}

func (m *model) currentAgentID() string {
	if m.selected < 0 || m.selected >= len(m.agents) {
		return ""
	}
	return m.agents[m.selected].ID
}

func (m *model) currentAgentName() string {
	if m.selected < 0 || m.selected >= len(m.agents) {
		return "agent"
	}
	return m.agents[m.selected].Name
}

// refreshTranscript re-renders the viewport from the orchestrator's
// transcript. gotoBottom keeps the latest message visible while streaming.
func (m *model) refreshTranscript(gotoBottom bool) {
	agentID := m.currentAgentID()
	msgs := m.orch.Messages(agentID)

	var b strings.Builder
	if len(msgs) == 0 {
		if greeting := m.greetingFor(agentID); greeting != "" {
			b.WriteString(dimStyle.Render(greeting))
		} else {
			b.WriteString(dimStyle.Render("say hello to " + m.currentAgentName()))
		}
	}
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.renderMessage(msg))
	}

	m.viewport.SetContent(b.String())
	if gotoBottom {
		m.viewport.GotoBottom()
	}
}

func (m *model) renderMessage(msg transcript.Message) string {
	var label, body string
	switch msg.Role {
	case transcript.RoleUser:
		label = userStyle.Render("you")
		body = msg.Content
	default:
		label = agentStyle.Render(m.currentAgentName())
		if strings.HasPrefix(msg.Content, "Error:") {
			body = errTextStyle.Render(msg.Content)
		} else {
			body = msg.Content
		}
	}

	width := m.viewport.Width
	if width <= 0 {
		width = 80
	}
	wrapped := ansi.Wordwrap(body, width, "")
	return fmt.Sprintf("%s  %s\n%s",
		label, dimStyle.Render(msg.CreatedAt.Local().Format("15:04")), wrapped)
}

// greetingFor finds a greeting configured on an agent widget pointing at
// this agent, shown while the transcript is still empty.
func (m *model) greetingFor(agentID string) string {
	for _, w := range m.orch.Profile().Widgets {
		if !w.Enabled {
			continue
		}
		if id, ok := w.ChatAgentID(); ok && id == agentID && w.Agent.Greeting != "" {
			return w.Agent.Greeting
		}
	}
	return ""
}
