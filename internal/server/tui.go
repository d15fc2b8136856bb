// ABOUTME: Bridge TUI for displaying connections and scan stats
// ABOUTME: Real-time bridge status display using bubbletea
package server

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// StatusTUI manages the bridge TUI
type StatusTUI struct {
	program  *tea.Program
	updates  chan Status
	quitChan chan struct{} // Signal to stop the bridge

	mu     sync.Mutex
	closed bool
}

// Status holds bridge state for the TUI
type Status struct {
	Listen      string
	Connections int
	Scans       int
	LastServers []string
	LastError   string
	LastScan    time.Time
}

// tuiModel is the bubbletea model for the bridge TUI
type tuiModel struct {
	status    Status
	startTime time.Time
	quitting  bool
	quitChan  chan struct{}
}

type tickMsg time.Time
type statusMsg Status

func (m tuiModel) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
			return m, tea.Quit
		}

	case tickMsg:
		return m, tickEvery()

	case statusMsg:
		m.status = Status(msg)
		return m, nil
	}

	return m, nil
}

var (
	bridgeTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("205")).
				MarginBottom(1)
	bridgeHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("86"))
	bridgeValueStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("250"))
	bridgeListStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("220"))
	bridgeErrorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("196"))
)

func (m tuiModel) View() string {
	if m.quitting {
		return "Shutting down bridge...\n"
	}

	var b strings.Builder

	b.WriteString(bridgeTitleStyle.Render("Aaxion Discovery Bridge"))
	b.WriteString("\n\n")

	field := func(name, value string) {
		b.WriteString(bridgeHeaderStyle.Render(name + ": "))
		b.WriteString(bridgeValueStyle.Render(value))
		b.WriteString("\n")
	}
	field("Listening", m.status.Listen)
	field("Uptime", time.Since(m.startTime).Round(time.Second).String())
	field("Connections", fmt.Sprintf("%d", m.status.Connections))
	field("Scans", fmt.Sprintf("%d", m.status.Scans))
	if !m.status.LastScan.IsZero() {
		field("Last scan", m.status.LastScan.Format("15:04:05"))
	}
	b.WriteString("\n")

	if m.status.LastError != "" {
		b.WriteString(bridgeErrorStyle.Render("Last error: " + m.status.LastError))
		b.WriteString("\n\n")
	}

	b.WriteString(bridgeListStyle.Render(fmt.Sprintf("Servers (%d)", len(m.status.LastServers))))
	b.WriteString("\n\n")
	if len(m.status.LastServers) == 0 {
		b.WriteString(bridgeValueStyle.Render("  No servers found"))
		b.WriteString("\n")
	} else {
		for _, name := range m.status.LastServers {
			b.WriteString("  • " + name + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("Press 'q' or Ctrl+C to quit"))

	return b.String()
}

// NewStatusTUI creates a new bridge TUI
func NewStatusTUI() *StatusTUI {
	return &StatusTUI{
		updates:  make(chan Status, 10),
		quitChan: make(chan struct{}, 1),
	}
}

// Start runs the TUI until it quits
func (t *StatusTUI) Start(listen string) error {
	m := tuiModel{
		status:    Status{Listen: listen},
		startTime: time.Now(),
		quitChan:  t.quitChan,
	}

	program := tea.NewProgram(m, tea.WithAltScreen())
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.program = program
	t.mu.Unlock()

	go func() {
		for status := range t.updates {
			program.Send(statusMsg(status))
		}
	}()

	_, err := program.Run()
	return err
}

// Update sends a status update to the TUI
func (t *StatusTUI) Update(status Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	select {
	case t.updates <- status:
	default:
		// Don't block if channel is full
	}
}

// Stop stops the TUI
func (t *StatusTUI) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	if t.program != nil {
		t.program.Quit()
	}
	close(t.updates)
}

// QuitChan returns the channel that signals when user wants to quit
func (t *StatusTUI) QuitChan() <-chan struct{} {
	return t.quitChan
}
