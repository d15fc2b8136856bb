// ABOUTME: TUI initialization and control
// ABOUTME: Wraps bubbletea program for server selection
package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aaxion/aaxion-discovery/pkg/discovery"
)

// Run shows the selection TUI and returns the chosen server, or nil when
// the user quit without choosing
func Run(scan ScanFunc, opts ...tea.ProgramOption) (*discovery.ServiceRecord, error) {
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	p := tea.NewProgram(NewModel(scan), opts...)

	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("TUI failed: %w", err)
	}
	m, ok := final.(Model)
	if !ok {
		return nil, fmt.Errorf("unexpected TUI model %T", final)
	}
	return m.Selected(), nil
}
