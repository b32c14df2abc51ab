package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/franksops/trickle/engine"
)

// maxResults bounds the result history kept for the dashboard.
const maxResults = 50

// UIState represents the aggregated state for the TUI
type UIState struct {
	Queued    int
	Capacity  int
	Active    *ActiveTransfer
	Completed int
	Failed    int
	Abandoned int
	Rejected  int
	Evicted   int
	Remaining int // requests not yet handed to the engine
	Results   []Result
	LinkUp    bool
	Done      bool
}

// ActiveTransfer represents the transfer in flight
type ActiveTransfer struct {
	ID        uint64
	Kind      string
	State     string
	Resource  string
	LocalPath string
	Bytes     int64
	BytesSec  float64
}

// Result is one response fragment reported by the engine.
type Result struct {
	ID     uint64
	Text   string
	Parsed bool
}

// NewState builds a UIState from an engine snapshot.
func NewState(s engine.Stats, results []Result, remaining int, linkUp bool, now time.Time) *UIState {
	state := &UIState{
		Queued:    s.Queued,
		Capacity:  s.Capacity,
		Completed: s.Completed,
		Failed:    s.Failed,
		Abandoned: s.Abandoned,
		Rejected:  s.Rejected,
		Evicted:   s.Evicted,
		Remaining: remaining,
		LinkUp:    linkUp,
	}
	if len(results) > maxResults {
		results = results[len(results)-maxResults:]
	}
	state.Results = append([]Result(nil), results...)

	if a := s.Active; a != nil {
		var speed float64
		if elapsed := now.Sub(a.StartedAt).Seconds(); elapsed > 0 {
			speed = float64(a.Bytes) / elapsed
		}
		state.Active = &ActiveTransfer{
			ID:        a.ID,
			Kind:      a.Kind.String(),
			State:     a.State,
			Resource:  a.ResourcePath,
			LocalPath: a.LocalPath,
			Bytes:     a.Bytes,
			BytesSec:  speed,
		}
	}
	return state
}

// TUIModel implements the tea.Model interface
type TUIModel struct {
	engineState *UIState
	spinner     spinner.Model
	progress    progress.Model
	viewport    viewport.Model

	width  int
	height int

	// Styles
	titleStyle   lipgloss.Style
	infoStyle    lipgloss.Style
	streamStyle  lipgloss.Style
	helpStyle    lipgloss.Style
	errorStyle   lipgloss.Style
	successStyle lipgloss.Style
}

// TUIUpdateMsg is sent periodically to update the UI state
type TUIUpdateMsg struct {
	State *UIState
}

func NewTUIModel(initialState *UIState) TUIModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	prog := progress.New(progress.WithDefaultGradient())

	return TUIModel{
		engineState:  initialState,
		spinner:      s,
		progress:     prog,
		titleStyle:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1),
		infoStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		streamStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
		helpStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1),
		errorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		successStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
	}
}

func (m TUIModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
	)
}

func (m TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = msg.Width - 14

		headerHeight := 8
		footerHeight := 2
		m.viewport = viewport.New(msg.Width, max(msg.Height-headerHeight-footerHeight, 1))

	case TUIUpdateMsg:
		m.engineState = msg.State
		if m.engineState.Done {
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m TUIModel) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	st := m.engineState
	var sb strings.Builder

	// Header
	header := fmt.Sprintf("%s Trickle %s", m.spinner.View(), m.titleStyle.Render("Transfer Queue"))
	sb.WriteString(header + "\n")

	link := m.successStyle.Render("up")
	if !st.LinkUp {
		link = m.errorStyle.Render("down")
	}
	opsInfo := fmt.Sprintf("Link: %s | Queue: %d/%d | Waiting: %d | Done: %d | Failed: %d | Abandoned: %d",
		link, st.Queued, st.Capacity, st.Remaining, st.Completed, st.Failed, st.Abandoned)
	sb.WriteString(m.infoStyle.Render(opsInfo) + "\n")

	// Queue fill
	var fill float64
	if st.Capacity > 0 {
		fill = float64(st.Queued) / float64(st.Capacity)
	}
	sb.WriteString(m.progress.ViewAs(fill) + "\n\n")

	// Active transfer
	sb.WriteString("Active Transfer:\n")
	if a := st.Active; a == nil {
		sb.WriteString(m.infoStyle.Render("Nothing in flight...") + "\n")
	} else {
		sb.WriteString(fmt.Sprintf("#%d %-8s %-17s | %s | %-10s | %s -> %s\n",
			a.ID, a.Kind, a.State, formatBytes(a.Bytes), m.streamStyle.Render(formatSpeed(a.BytesSec)),
			truncatePath(a.LocalPath), truncatePath(a.Resource)))
	}
	sb.WriteString("\nResults:\n")

	// Results
	var results strings.Builder
	if len(st.Results) == 0 {
		results.WriteString(m.infoStyle.Render("No results yet..."))
	}
	for i := len(st.Results) - 1; i >= 0; i-- {
		r := st.Results[i]
		text := r.Text
		if !r.Parsed {
			text = m.errorStyle.Render(text)
		}
		results.WriteString(fmt.Sprintf("#%-5d %s\n", r.ID, text))
	}
	m.viewport.SetContent(results.String())
	sb.WriteString(m.viewport.View())

	// Footer
	help := m.helpStyle.Render("q/ctrl+c: quit • up/down: scroll results")
	if st.Done {
		help = m.successStyle.Render("Queue drained!") + " Press 'q' to exit."
	}
	sb.WriteString("\n" + help)

	return sb.String()
}

func truncatePath(p string) string {
	if len(p) > 40 {
		return "..." + p[len(p)-37:]
	}
	return p
}

func formatSpeed(bytesPerSec float64) string {
	if bytesPerSec >= 1024*1024*1024 {
		return fmt.Sprintf("%.2f GB/s", bytesPerSec/(1024*1024*1024))
	} else if bytesPerSec >= 1024*1024 {
		return fmt.Sprintf("%.2f MB/s", bytesPerSec/(1024*1024))
	} else if bytesPerSec >= 1024 {
		return fmt.Sprintf("%.2f KB/s", bytesPerSec/1024)
	}
	return fmt.Sprintf("%.0f B/s", bytesPerSec)
}

func formatBytes(n int64) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.2f MB", float64(n)/(1024*1024))
	case n >= 1024:
		return fmt.Sprintf("%.2f KB", float64(n)/1024)
	}
	return fmt.Sprintf("%d B", n)
}
