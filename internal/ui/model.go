// ABOUTME: Bubbletea model for server selection TUI
// ABOUTME: Scans, lists discovered servers and lets the user pick one
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aaxion/aaxion-discovery/pkg/discovery"
)

// ScanFunc runs one discovery scan
type ScanFunc func() ([]discovery.ServiceRecord, error)

type state int

const (
	stateScanning state = iota
	stateList
	stateEmpty
	stateError
)

const frameInterval = 100 * time.Millisecond

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))
	cursorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))
	detailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
	helpStyle = lipgloss.NewStyle().Faint(true)
)

// Model represents the TUI state
type Model struct {
	scan  ScanFunc
	state state
	frame int

	servers  []discovery.ServiceRecord
	cursor   int
	selected *discovery.ServiceRecord
	err      error

	// scanID discards results of superseded scans
	scanID int

	width  int
	height int
}

type scanDoneMsg struct {
	id      int
	servers []discovery.ServiceRecord
	err     error
}

type frameMsg struct{ id int }

// NewModel creates a model that scans with scan
func NewModel(scan ScanFunc) Model {
	return Model{scan: scan, state: stateScanning, scanID: 1}
}

// Init starts the first scan
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.scanCmd(), m.tick())
}

func (m Model) scanCmd() tea.Cmd {
	id, scan := m.scanID, m.scan
	return func() tea.Msg {
		servers, err := scan()
		return scanDoneMsg{id: id, servers: servers, err: err}
	}
}

func (m Model) tick() tea.Cmd {
	id := m.scanID
	return tea.Tick(frameInterval, func(time.Time) tea.Msg {
		return frameMsg{id: id}
	})
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case frameMsg:
		if msg.id == m.scanID && m.state == stateScanning {
			m.frame = (m.frame + 1) % len(spinnerFrames)
			return m, m.tick()
		}
	case scanDoneMsg:
		if msg.id != m.scanID {
			return m, nil
		}
		m.applyScan(msg)
	}

	return m, nil
}

func (m *Model) applyScan(msg scanDoneMsg) {
	m.servers = msg.servers
	m.err = msg.err
	m.cursor = 0
	switch {
	case msg.err != nil:
		m.state = stateError
	case len(msg.servers) == 0:
		m.state = stateEmpty
	default:
		m.state = stateList
	}
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.state == stateList && m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.state == stateList && m.cursor < len(m.servers)-1 {
			m.cursor++
		}
	case "enter":
		if m.state == stateList {
			rec := m.servers[m.cursor]
			m.selected = &rec
			return m, tea.Quit
		}
	case "r":
		if m.state != stateScanning {
			m.scanID++
			m.state = stateScanning
			m.frame = 0
			return m, tea.Batch(m.scanCmd(), m.tick())
		}
	}

	return m, nil
}

// Selected returns the chosen server, or nil
func (m Model) Selected() *discovery.ServiceRecord {
	return m.selected
}

// View renders the TUI
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Aaxion Servers"))
	b.WriteString("\n\n")

	switch m.state {
	case stateScanning:
		b.WriteString(fmt.Sprintf("%s Scanning for servers...\n", spinnerFrames[m.frame]))
	case stateEmpty:
		b.WriteString("No servers found\n")
	case stateError:
		b.WriteString(errorStyle.Render(fmt.Sprintf("Discovery failed: %v", m.err)))
		b.WriteString("\n")
	case stateList:
		b.WriteString(m.renderList())
	}

	b.WriteString("\n")
	b.WriteString(m.renderHelp())
	return boxStyle.Render(b.String())
}

// renderList renders discovered servers with the cursor
func (m Model) renderList() string {
	var b strings.Builder
	for i, rec := range m.servers {
		name := strings.TrimSuffix(rec.Hostname, ".")
		if name == "" {
			name = rec.Fullname
		}
		line := fmt.Sprintf("  %s", name)
		if i == m.cursor {
			line = cursorStyle.Render("› " + name)
		}
		b.WriteString(line)

		addr := rec.URL()
		if addr == "" {
			addr = "no address"
		}
		b.WriteString(detailStyle.Render("  " + addr))
		b.WriteString("\n")
	}
	return b.String()
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	switch m.state {
	case stateList:
		return helpStyle.Render("↑/↓:Move  enter:Select  r:Rescan  q:Quit")
	case stateScanning:
		return helpStyle.Render("q:Quit")
	}
	return helpStyle.Render("r:Rescan  q:Quit")
}
