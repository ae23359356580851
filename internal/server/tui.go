// ABOUTME: Server dashboard showing the master, parties and ring levels
// ABOUTME: Real-time bridge status display using bubbletea
package server

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/linksphere/confbridge/internal/bridge"
)

// ServerTUI manages the server TUI
type ServerTUI struct {
	updates  chan ServerStatus
	quitChan chan struct{} // Signal to stop the server
	stopped  chan struct{}
	stopOnce sync.Once
}

// ServerStatus holds server state for TUI
type ServerStatus struct {
	Name     string
	Addr     string
	Master   string
	Clients  []ClientInfo
	Channels []bridge.ChannelStats
}

// ClientInfo holds connection information for display
type ClientInfo struct {
	ID       string
	Remote   string
	Admitted bool
	Since    time.Duration
}

// tuiModel is the bubbletea model for server TUI
type tuiModel struct {
	status    ServerStatus
	startTime time.Time
	quitting  bool
	quitChan  chan struct{} // Channel to signal server stop
}

type tickMsg time.Time
type statusMsg ServerStatus

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("220"))

	admittedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))
)

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
			// Signal the server to stop
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
			return m, tea.Quit
		}

	case tickMsg:
		return m, tickEvery()

	case statusMsg:
		m.status = ServerStatus(msg)
		return m, nil
	}

	return m, nil
}

func (m tuiModel) View() string {
	if m.quitting {
		return "Shutting down bridge...\n"
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Conference Bridge"))
	b.WriteString("\n\n")

	field := func(name, value string) {
		b.WriteString(headerStyle.Render(name + ": "))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}
	field("Bridge", m.status.Name)
	field("Listening", m.status.Addr)
	field("Uptime", time.Since(m.startTime).Round(time.Second).String())
	master := m.status.Master
	if master == "" {
		master = "not connected"
	}
	field("Master", master)
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render(fmt.Sprintf("Connected Parties (%d)", len(m.status.Clients))))
	b.WriteString("\n\n")
	if len(m.status.Clients) == 0 {
		b.WriteString(valueStyle.Render("  No parties connected"))
		b.WriteString("\n")
	}
	for _, c := range m.status.Clients {
		state := valueStyle.Render("waiting")
		if c.Admitted {
			state = admittedStyle.Render("in mix")
		}
		fmt.Fprintf(&b, "  • %s %s %s\n", c.ID, valueStyle.Render("("+c.Remote+", "+c.Since.Round(time.Second).String()+")"), state)
	}
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render(fmt.Sprintf("Mix Channels (%d)", len(m.status.Channels))))
	b.WriteString("\n\n")
	if len(m.status.Channels) > 0 {
		b.WriteString(headerStyle.Render(fmt.Sprintf("  %-24s %8s %8s %12s %12s %13s %13s",
			"channel", "in", "out", "in total", "out total", "in r/w", "out r/w")))
		b.WriteString("\n")
	}
	for _, ch := range m.status.Channels {
		b.WriteString(valueStyle.Render(fmt.Sprintf("  %-24s %8d %8d %12d %12d %13s %13s",
			ch.ID, ch.InboundAvailable, ch.OutboundAvailable, ch.InboundTotal, ch.OutboundTotal,
			fmt.Sprintf("%d/%d", ch.InboundRead, ch.InboundWrite),
			fmt.Sprintf("%d/%d", ch.OutboundRead, ch.OutboundWrite))))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("Press 'q' or Ctrl+C to quit"))

	return b.String()
}

// NewServerTUI creates a new server TUI
func NewServerTUI() *ServerTUI {
	return &ServerTUI{
		updates:  make(chan ServerStatus, 10),
		quitChan: make(chan struct{}, 1),
		stopped:  make(chan struct{}),
	}
}

// Start runs the TUI until it quits
func (t *ServerTUI) Start(name, addr string) error {
	m := tuiModel{
		status: ServerStatus{
			Name: name,
			Addr: addr,
		},
		startTime: time.Now(),
		quitChan:  t.quitChan,
	}

	program := tea.NewProgram(m, tea.WithAltScreen())

	// Forward updates until Stop, then quit the program
	go func() {
		for {
			select {
			case status := <-t.updates:
				program.Send(statusMsg(status))
			case <-t.stopped:
				program.Quit()
				return
			}
		}
	}()

	_, err := program.Run()
	return err
}

// Update sends a status update to the TUI
func (t *ServerTUI) Update(status ServerStatus) {
	select {
	case t.updates <- status:
	default:
		// Don't block if channel is full
	}
}

// Stop stops the TUI
func (t *ServerTUI) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopped)
	})
}

// QuitChan returns the channel that signals when user wants to quit
func (t *ServerTUI) QuitChan() <-chan struct{} {
	return t.quitChan
}
