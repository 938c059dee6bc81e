// Package ui implements the Bubble Tea terminal UI that follows an analysis
// run phase by phase and lists the tasks that failed.
package ui

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/stackvity/mail-analyzer/internal/cli/hooks"
	"github.com/stackvity/mail-analyzer/pkg/analyzer"
)

// listHeightMargin is the number of rows taken by header, progress line and footer.
const listHeightMargin = 4

const (
	phaseInitializing = "Initializing..."
	phaseComplete     = "Complete"
)

// Model is the TUI state. All methods use pointer receivers.
type Model struct {
	list        list.Model
	spinner     spinner.Model
	width       int
	height      int
	initialized bool
	version     string

	phase     string
	phaseDone int
	phaseMax  int

	failures      []listItem
	summary       Summary
	fatalError    string
	quitting      bool
	updatePending bool
}

// listItem is one failed or lost task.
type listItem struct {
	phase   analyzer.Phase
	path    string
	message string
	lost    bool
}

// Summary holds the counters shown in the footer.
type Summary struct {
	FilesListed int
	FilesParsed int
	Failed      int
	Lost        int
	Senders     int
	StartTime   time.Time
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(m.width, max(m.height-listHeightMargin, 1))
		m.initialized = true

	case tea.KeyMsg:
		if m.quitting {
			return m, nil
		}
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}
		var listCmd tea.Cmd
		m.list, listCmd = m.list.Update(msg)
		cmds = append(cmds, listCmd)

	case spinner.TickMsg:
		if m.quitting {
			return m, nil
		}
		var spinnerCmd tea.Cmd
		m.spinner, spinnerCmd = m.spinner.Update(msg)
		cmds = append(cmds, spinnerCmd)

	case hooks.PhaseStartMsg:
		m.phase = string(msg.Phase)
		m.phaseDone = 0
		m.phaseMax = msg.Total
		if msg.Phase == analyzer.PhaseParse {
			m.summary.FilesListed = msg.Total
		}

	case hooks.TaskCompleteMsg:
		m.phaseDone++
		if msg.Error == "" && !msg.Lost {
			if msg.Phase == analyzer.PhaseParse {
				m.summary.FilesParsed++
			}
			break
		}
		if msg.Lost {
			m.summary.Lost++
		} else {
			m.summary.Failed++
		}
		m.failures = append(m.failures, listItem{phase: msg.Phase, path: msg.Path, message: msg.Error, lost: msg.Lost})
		cmds = append(cmds, m.scheduleListUpdate())

	case hooks.RunCompleteMsg:
		s := msg.Report.Summary
		m.phase = phaseComplete
		m.summary.FilesListed = s.FilesListed
		m.summary.FilesParsed = s.FilesParsed
		m.summary.Senders = s.SenderCount
		m.summary.Lost = s.LostCount
		m.summary.Failed = s.ErrorCount - s.LostCount
		if s.FatalErrorOccurred {
			m.fatalError = "Run halted due to fatal error."
			for _, e := range msg.Report.Errors {
				if e.IsFatal {
					m.fatalError = fmt.Sprintf("Fatal Error (%s): %s", e.Phase, e.Error)
					break
				}
			}
		}

	case UpdateListMsg:
		m.updatePending = false
		items := make([]list.Item, len(m.failures))
		for i, item := range m.failures {
			items[i] = item
		}
		cmds = append(cmds, m.list.SetItems(items))
	}

	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return "Exiting...\n"
	}
	if !m.initialized {
		return phaseInitializing
	}

	headerLeft := fmt.Sprintf("Mail Analyzer %s", m.version)
	headerRight := m.phase
	if m.phase != phaseComplete && m.phase != phaseInitializing {
		headerRight = m.spinner.View() + " " + m.phase
	}
	header := HeaderStyle.Width(m.width).Render(spread(m.width, headerLeft, headerRight))

	progress := ProgressStyle.Render(m.progressLine())

	elapsed := time.Since(m.summary.StartTime).Round(time.Millisecond)
	footerLeft := fmt.Sprintf("Files: %d | Parsed: %d | Failed: %d | Lost: %d | Senders: %d | Elapsed: %s",
		m.summary.FilesListed, m.summary.FilesParsed, m.summary.Failed, m.summary.Lost, m.summary.Senders, elapsed)
	footer := FooterStyle.Width(m.width).Render(spread(m.width, footerLeft, "q: quit"))

	errorView := ""
	if m.fatalError != "" {
		errorView = StatusStyleFailed.Render(m.fatalError) + "\n"
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		progress,
		m.list.View(),
		errorView,
		footer,
	)
}

func (m *Model) progressLine() string {
	switch {
	case m.phase == phaseComplete:
		return "All phases finished."
	case m.phaseMax > 0:
		return fmt.Sprintf("%s: %d/%d tasks", m.phase, m.phaseDone, m.phaseMax)
	case m.phase == phaseInitializing:
		return ""
	default:
		return fmt.Sprintf("%s...", m.phase)
	}
}

// spread places left and right at both ends of a line of the given width.
func spread(width int, left, right string) string {
	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap <= 0 {
		return left + " " + right
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, left, lipgloss.PlaceHorizontal(gap, lipgloss.Center, " "), right)
}

// NewModel creates the initial TUI state.
func NewModel(version string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorSpinner)

	delegate := list.NewDefaultDelegate()
	delegate.SetSpacing(0)
	delegate.ShowDescription = true
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(ColorSelectedFg).
		Background(ColorSelectedBg).
		Bold(true).
		Padding(0, 0, 0, 1)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(ColorSelectedDescFg).
		Background(ColorSelectedBg).
		Padding(0, 0, 0, 1)
	delegate.Styles.NormalTitle = delegate.Styles.NormalTitle.
		Foreground(ColorNormalFg).Padding(0, 0, 0, 1)
	delegate.Styles.NormalDesc = delegate.Styles.NormalDesc.
		Foreground(ColorNormalDescFg).Padding(0, 0, 0, 1)

	l := list.New([]list.Item{}, delegate, 0, 0)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetShowTitle(false)
	l.SetShowFilter(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()

	return Model{
		list:    l,
		spinner: s,
		version: version,
		phase:   phaseInitializing,
		summary: Summary{StartTime: time.Now()},
	}
}

// FilterValue implements list.Item.
func (i listItem) FilterValue() string { return i.path }

// Title implements list.DefaultItem.
func (i listItem) Title() string {
	if i.path == "" {
		return string(i.phase)
	}
	return filepath.Base(filepath.Dir(i.path)) + "/" + filepath.Base(i.path)
}

// Description implements list.DefaultItem.
func (i listItem) Description() string {
	icon, style := "✗", StatusStyleFailed
	if i.lost {
		icon, style = "?", StatusStyleLost
	}
	return fmt.Sprintf("%s %s: %s", style.Render("["+icon+"]"), i.phase, i.message)
}

// UpdateListMsg asks the model to refresh the failure list.
type UpdateListMsg struct{}

// listUpdateDebounceDuration caps list refreshes at about 20 per second.
const listUpdateDebounceDuration = 50 * time.Millisecond

// scheduleListUpdate coalesces bursts of failures into one list refresh.
func (m *Model) scheduleListUpdate() tea.Cmd {
	if m.updatePending {
		return nil
	}
	m.updatePending = true
	return tea.Tick(listUpdateDebounceDuration, func(time.Time) tea.Msg { return UpdateListMsg{} })
}

// --- Styles ---

const (
	ColorHeaderFg = lipgloss.Color("252")
	ColorHeaderBg = lipgloss.Color("62")

	ColorFooterFg = lipgloss.Color("252")
	ColorFooterBg = lipgloss.Color("56")

	ColorNormalFg     = lipgloss.Color("250")
	ColorNormalDescFg = lipgloss.Color("244")

	ColorSelectedFg     = lipgloss.Color("255")
	ColorSelectedBg     = lipgloss.Color("56")
	ColorSelectedDescFg = lipgloss.Color("248")

	ColorSpinner      = lipgloss.Color("205")
	ColorProgress     = lipgloss.Color("39")
	ColorStatusFailed = lipgloss.Color("196")
	ColorStatusLost   = lipgloss.Color("214")
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorHeaderFg).
			Background(ColorHeaderBg).
			Padding(0, 1)

	FooterStyle = lipgloss.NewStyle().
			Foreground(ColorFooterFg).
			Background(ColorFooterBg).
			Padding(0, 1)

	ProgressStyle     = lipgloss.NewStyle().Foreground(ColorProgress).Padding(0, 1)
	StatusStyleFailed = lipgloss.NewStyle().Foreground(ColorStatusFailed)
	StatusStyleLost   = lipgloss.NewStyle().Foreground(ColorStatusLost)
)
