// Package tui is a terminal dashboard for a running swarm. It subscribes
// to the event emitter's wildcard handler and renders agent lifecycle and
// strategy-specific events live, instead of replaying a fixed transcript.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/shawkym/agentpipe/pkg/events"
	"github.com/shawkym/agentpipe/pkg/strategy"
	"github.com/shawkym/agentpipe/pkg/swarm"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			Background(lipgloss.Color("63")).
			Padding(0, 1)

	agentStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	systemStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color("244"))

	lineStyle = lipgloss.NewStyle().
			PaddingLeft(2)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	searchStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("226")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)
)

// Model renders the live event stream of one swarm run.
type Model struct {
	ctx    context.Context
	sw     *swarm.Swarm
	input  string

	events        []events.Event
	viewport      viewport.Model
	searchInput   textinput.Model
	commandInput  textinput.Model
	searchMode    bool
	commandMode   bool
	showHelp      bool
	searchResults []int
	currentSearch int
	filterAgent   string
	filterType    string

	width         int
	height        int
	ready         bool
	running       bool
	done          bool
	result        strategy.Result
	err           error
	statusMessage string
}

type eventMsg struct{ event events.Event }

type runDone struct {
	result strategy.Result
	err    error
}

// Run starts the dashboard and drives sw to completion against input,
// blocking until the user quits or the run finishes and the user
// dismisses the summary. It returns the strategy result so the caller can
// still log or save state afterward.
func Run(ctx context.Context, sw *swarm.Swarm, input string) (strategy.Result, error) {
	searchInput := textinput.New()
	searchInput.Placeholder = "Search events..."
	searchInput.CharLimit = 100

	commandInput := textinput.New()
	commandInput.Placeholder = "Enter command (filter <agent> | type <event-type> | clear | pause | resume)..."
	commandInput.CharLimit = 100

	m := Model{
		ctx:           ctx,
		sw:            sw,
		input:         input,
		events:        make([]events.Event, 0, 256),
		searchInput:   searchInput,
		commandInput:  commandInput,
		searchResults: make([]int, 0),
		currentSearch: -1,
	}

	p := tea.NewProgram(m, tea.WithAltScreen())

	unsubscribe := sw.Events().On("*", func(ev events.Event) {
		p.Send(eventMsg{event: ev})
	})
	defer unsubscribe()

	final, err := p.Run()
	if err != nil {
		return strategy.Result{}, err
	}
	fm := final.(Model)
	return fm.result, fm.err
}

func (m Model) Init() tea.Cmd {
	return m.startRun()
}

func (m Model) startRun() tea.Cmd {
	return func() tea.Msg {
		result, err := m.sw.Run(m.ctx, m.input)
		return runDone{result: result, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.commandMode {
			switch msg.Type {
			case tea.KeyEsc:
				m.commandMode = false
				m.commandInput.SetValue("")
				return m, nil
			case tea.KeyEnter:
				m.executeCommand()
				m.commandMode = false
				m.commandInput.SetValue("")
				return m, nil
			default:
				var cmd tea.Cmd
				m.commandInput, cmd = m.commandInput.Update(msg)
				return m, cmd
			}
		}

		if m.searchMode {
			switch msg.Type {
			case tea.KeyEsc:
				m.searchMode = false
				m.searchInput.SetValue("")
				m.searchResults = make([]int, 0)
				m.currentSearch = -1
				return m, nil
			case tea.KeyEnter:
				m.performSearch()
				return m, nil
			default:
				switch msg.String() {
				case "n":
					if len(m.searchResults) > 0 {
						m.currentSearch = (m.currentSearch + 1) % len(m.searchResults)
						m.scrollToSearchResult()
					}
					return m, nil
				case "N":
					if len(m.searchResults) > 0 {
						m.currentSearch--
						if m.currentSearch < 0 {
							m.currentSearch = len(m.searchResults) - 1
						}
						m.scrollToSearchResult()
					}
					return m, nil
				default:
					var cmd tea.Cmd
					m.searchInput, cmd = m.searchInput.Update(msg)
					return m, cmd
				}
			}
		}

		switch msg.String() {
		case "/":
			if m.ready && !m.searchMode && !m.showHelp {
				m.commandMode = true
				return m, nil
			}
		case "?":
			if m.ready && !m.searchMode && !m.commandMode {
				m.showHelp = !m.showHelp
				return m, nil
			}
		}

		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEsc:
			if m.showHelp {
				m.showHelp = false
				return m, nil
			}
			if m.done {
				return m, tea.Quit
			}
		case tea.KeyCtrlF:
			if m.ready {
				m.searchMode = true
				return m, nil
			}
		case tea.KeyCtrlP:
			if m.running {
				m.sw.Pause()
			} else {
				m.sw.Resume()
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-6)
			m.viewport.SetContent(m.renderEvents())
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 6
		}

	case eventMsg:
		m.events = append(m.events, msg.event)
		switch msg.event.Type {
		case "swarm:start":
			m.running = true
		case "swarm:paused":
			m.running = false
		case "swarm:resumed":
			m.running = true
		}
		m.viewport.SetContent(m.renderEvents())
		m.viewport.GotoBottom()

	case runDone:
		m.running = false
		m.done = true
		m.result = msg.result
		m.err = msg.err
	}

	if m.ready {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	if m.showHelp {
		return m.renderHelp()
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("AgentPipe Swarm Monitor - %s", m.sw.Coordinator().SwarmName)))
	b.WriteString("\n\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	status := fmt.Sprintf("Agents: %d | Events: %d | ", len(m.sw.Coordinator().AgentNames()), len(m.events))
	switch {
	case m.done && m.err != nil:
		status += "Status: Failed"
	case m.done:
		status += "Status: Complete"
	case m.running:
		status += "Status: Running"
	default:
		status += "Status: Paused"
	}
	b.WriteString(statusStyle.Render(status))
	b.WriteString("\n")

	b.WriteString(helpStyle.Render("?: Help | Ctrl+C: Quit | Ctrl+P: Pause/Resume | Ctrl+F: Search | /: Command | ↑↓: Scroll"))

	if m.filterAgent != "" || m.filterType != "" {
		b.WriteString("\n")
		b.WriteString(searchStyle.Render(fmt.Sprintf("Filter: agent=%q type=%q", m.filterAgent, m.filterType)))
	}
	if m.statusMessage != "" {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("green")).Render(m.statusMessage))
	}
	if m.commandMode {
		b.WriteString("\n")
		b.WriteString(searchStyle.Render("/") + m.commandInput.View())
	}
	if m.searchMode {
		b.WriteString("\n")
		bar := searchStyle.Render("Search: ") + m.searchInput.View()
		if len(m.searchResults) > 0 {
			bar += fmt.Sprintf(" (%d/%d matches, n/N to navigate)", m.currentSearch+1, len(m.searchResults))
		} else if m.searchInput.Value() != "" {
			bar += " (no matches)"
		}
		b.WriteString(bar)
	}
	if m.done {
		b.WriteString("\n\n")
		if m.err != nil {
			b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render(fmt.Sprintf("Run failed: %v", m.err)))
		} else {
			b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Render("Final output: " + m.result.Output))
		}
		b.WriteString("\n" + helpStyle.Render("Esc to exit"))
	}

	return b.String()
}

func (m Model) visibleEvents() []events.Event {
	if m.filterAgent == "" && m.filterType == "" {
		return m.events
	}
	out := make([]events.Event, 0, len(m.events))
	for _, ev := range m.events {
		if m.filterAgent != "" && ev.AgentName != m.filterAgent {
			continue
		}
		if m.filterType != "" && !strings.Contains(ev.Type, m.filterType) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func (m Model) renderEvents() string {
	var b strings.Builder

	for _, ev := range m.visibleEvents() {
		timestamp := ev.Timestamp.Format("15:04:05")

		var prefix string
		var style lipgloss.Style
		if ev.AgentName == "" {
			prefix = fmt.Sprintf("[%s] %s", timestamp, ev.Type)
			style = systemStyle
		} else {
			prefix = fmt.Sprintf("[%s] %s %s", timestamp, ev.AgentName, ev.Type)
			style = agentStyle
		}

		b.WriteString(style.Render(prefix))
		b.WriteString("\n")
		b.WriteString(lineStyle.Render(formatEventData(ev.Data)))
		b.WriteString("\n\n")
	}

	return b.String()
}

func formatEventData(data interface{}) string {
	fields, ok := data.(map[string]interface{})
	if !ok || len(fields) == 0 {
		return ""
	}
	parts := make([]string, 0, len(fields))
	for k, v := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, " ")
}

func (m *Model) executeCommand() {
	command := strings.TrimSpace(m.commandInput.Value())
	if command == "" {
		return
	}
	parts := strings.Fields(command)

	switch parts[0] {
	case "filter":
		if len(parts) < 2 {
			m.statusMessage = "Usage: filter <agent-name>"
			return
		}
		m.filterAgent = parts[1]
		m.statusMessage = fmt.Sprintf("Filtering by agent: %s", parts[1])
		m.viewport.SetContent(m.renderEvents())
	case "type":
		if len(parts) < 2 {
			m.statusMessage = "Usage: type <event-type-substring>"
			return
		}
		m.filterType = parts[1]
		m.statusMessage = fmt.Sprintf("Filtering by event type: %s", parts[1])
		m.viewport.SetContent(m.renderEvents())
	case "clear":
		m.filterAgent = ""
		m.filterType = ""
		m.statusMessage = "Filters cleared"
		m.viewport.SetContent(m.renderEvents())
	case "pause":
		m.sw.Pause()
	case "resume":
		m.sw.Resume()
	default:
		m.statusMessage = fmt.Sprintf("Unknown command: %s", parts[0])
	}
}

func (m *Model) performSearch() {
	term := strings.ToLower(m.searchInput.Value())
	m.searchResults = make([]int, 0)
	if term == "" {
		m.currentSearch = -1
		return
	}
	visible := m.visibleEvents()
	for i, ev := range visible {
		if strings.Contains(strings.ToLower(ev.Type), term) ||
			strings.Contains(strings.ToLower(ev.AgentName), term) ||
			strings.Contains(strings.ToLower(formatEventData(ev.Data)), term) {
			m.searchResults = append(m.searchResults, i)
		}
	}
	if len(m.searchResults) > 0 {
		m.currentSearch = 0
		m.scrollToSearchResult()
	} else {
		m.currentSearch = -1
	}
}

func (m *Model) scrollToSearchResult() {
	if m.currentSearch < 0 || m.currentSearch >= len(m.searchResults) {
		return
	}
	idx := m.searchResults[m.currentSearch]
	linePos := idx * 3
	total := len(m.visibleEvents()) * 3
	if total <= 0 {
		return
	}
	percent := float64(linePos) / float64(total)
	m.viewport.SetYOffset(int(percent * float64(m.viewport.TotalLineCount())))
}

func (m Model) renderHelp() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("AgentPipe Monitor - Keyboard Shortcuts"))
	b.WriteString("\n\n")

	sections := []struct {
		title string
		items [][2]string
	}{
		{"General", [][2]string{
			{"Ctrl+C", "Quit"},
			{"Esc", "Close modal, or quit after the run finishes"},
			{"?", "Toggle this help screen"},
			{"↑↓", "Scroll the event log"},
		}},
		{"Run control", [][2]string{
			{"Ctrl+P", "Pause/Resume the swarm"},
		}},
		{"Search", [][2]string{
			{"Ctrl+F", "Enter search mode"},
			{"Enter", "Perform search"},
			{"n / N", "Next / previous match"},
			{"Esc", "Exit search mode"},
		}},
		{"Commands", [][2]string{
			{"/", "Enter command mode"},
			{"filter <agent>", "Show only events from one agent"},
			{"type <substr>", "Show only events whose type contains substr"},
			{"clear", "Clear active filters"},
			{"pause / resume", "Pause or resume the swarm"},
		}},
	}

	for _, section := range sections {
		b.WriteString(agentStyle.Render(section.title + ":"))
		b.WriteString("\n")
		for _, item := range section.items {
			b.WriteString(searchStyle.Render(fmt.Sprintf("  %-16s", item[0])))
			b.WriteString("  ")
			b.WriteString(item[1])
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("Press ? or Esc to close this help screen"))
	return b.String()
}
