package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hyperknow/hyperknow/models"
	"github.com/hyperknow/hyperknow/pipeline"
)

// Layout constants
const (
	DefaultViewportWidth  = 80
	DefaultViewportHeight = 20
	MinViewportHeight     = 8
	HeaderFooterHeight    = 8
	OutlinePanelWidth     = 32
)

// MsgPipelineUpdate wraps one pipeline update for the bubbletea loop.
type MsgPipelineUpdate struct {
	Update pipeline.Update
	OK     bool
}

// WatchModel is the live generation view: phase banner on top, the outline
// with per-section status on the left, and the article viewport on the right.
type WatchModel struct {
	// State
	Phase    models.Phase
	Query    string
	Content  models.ContentSnapshot
	Sections []models.Section
	Warning  string
	Err      error
	Done     bool

	// expanded keeps per-section expansion keyed by section id. It is view
	// state only; progress updates never touch it.
	expanded map[string]bool
	cursor   int

	// Components
	Spinner  spinner.Model
	Viewport viewport.Model

	updates <-chan pipeline.Update
	width   int
}

// NewWatchModel builds the live view for one run.
func NewWatchModel(query string, updates <-chan pipeline.Update) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = StylePrimary

	vp := viewport.New(DefaultViewportWidth, DefaultViewportHeight)

	return WatchModel{
		Phase:    models.PhaseIdle,
		Query:    query,
		expanded: make(map[string]bool),
		Spinner:  s,
		Viewport: vp,
		updates:  updates,
		width:    DefaultViewportWidth,
	}
}

func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.Spinner.Tick, listenForUpdates(m.updates))
}

// listenForUpdates waits for the next pipeline update. The handler re-arms it
// after each message until the channel closes.
func listenForUpdates(updates <-chan pipeline.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-updates
		return MsgPipelineUpdate{Update: u, OK: ok}
	}
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.Viewport.Width = msg.Width - OutlinePanelWidth - 6
		m.Viewport.Height = msg.Height - HeaderFooterHeight
		if m.Viewport.Height < MinViewportHeight {
			m.Viewport.Height = MinViewportHeight
		}
		m.refreshContent()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "j", "down":
			if m.cursor < len(m.Sections)-1 {
				m.cursor++
			}
			return m, nil
		case "k", "up":
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case "enter", " ":
			if m.cursor < len(m.Sections) {
				id := m.Sections[m.cursor].SectionID
				m.expanded[id] = !m.expanded[id]
			}
			return m, nil
		case "ctrl+d":
			m.Viewport.HalfPageDown()
			return m, nil
		case "ctrl+u":
			m.Viewport.HalfPageUp()
			return m, nil
		case "g":
			m.Viewport.GotoTop()
			return m, nil
		case "G":
			m.Viewport.GotoBottom()
			return m, nil
		}

	case MsgPipelineUpdate:
		if !msg.OK {
			// Pipeline over. Stay on screen so the user can read; q quits.
			m.Done = true
			return m, nil
		}
		u := msg.Update
		switch u.Kind {
		case pipeline.UpdatePhase:
			m.Phase = u.Phase
		case pipeline.UpdateContent:
			m.Content = u.Content
			m.refreshContent()
			m.Viewport.GotoBottom()
		case pipeline.UpdateSections:
			m.Sections = u.Sections
			if m.cursor >= len(m.Sections) && len(m.Sections) > 0 {
				m.cursor = len(m.Sections) - 1
			}
		case pipeline.UpdateWarning:
			m.Warning = u.Err.Error()
		case pipeline.UpdateStalled:
			m.Err = u.Err
		case pipeline.UpdateDone:
			m.Phase = models.PhaseComplete
			if u.Content.Markdown != "" {
				m.Content = u.Content
				m.refreshContent()
			}
		}
		return m, listenForUpdates(m.updates)

	case spinner.TickMsg:
		m.Spinner, cmd = m.Spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// refreshContent re-renders the whole snapshot into the viewport. The
// renderer only ever sees complete documents.
func (m *WatchModel) refreshContent() {
	if m.Content.Markdown == "" {
		if m.Phase != models.PhaseComplete {
			m.Viewport.SetContent(StyleSubtle.Render("Waiting for the first draft..."))
		}
		return
	}
	rendered := RenderMarkdown(m.Content.Markdown, m.Viewport.Width)
	if !m.Content.IsComplete {
		rendered += "\n" + StyleSubtle.Render("▍ still writing...")
	}
	m.Viewport.SetContent(rendered)
}

func (m WatchModel) View() string {
	var s strings.Builder

	// Phase banner
	banner := m.phaseLabel()
	if m.Phase != models.PhaseComplete && m.Err == nil {
		banner = m.Spinner.View() + " " + banner
	}
	s.WriteString(StylePhaseBox.Render(banner) + "\n")

	if m.Err != nil {
		s.WriteString(StyleError.Render("✗ "+m.Err.Error()) + "\n")
	} else if m.Warning != "" {
		s.WriteString(StyleWarning.Render("⚠ "+m.Warning) + "\n")
	}

	// Outline panel and article side by side
	outline := StyleOutlineBox.Width(OutlinePanelWidth).Render(m.outlineView())
	article := m.Viewport.View()
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, outline, " ", article))
	s.WriteString("\n")

	// Footer
	if m.Phase == models.PhaseComplete {
		stats := ComputeStats(m.Content.Markdown)
		s.WriteString(StyleSuccess.Render("✓ complete") + "  " + StyleSubtle.Render(stats.String()) + "\n")
	}
	s.WriteString(StyleSubtle.Render("[j/k] sections  [enter] expand  [ctrl+d/u] scroll  [q] quit"))
	return s.String()
}

func (m WatchModel) phaseLabel() string {
	switch m.Phase {
	case models.PhaseIdle:
		return "Submitting query..."
	case models.PhaseSourceCollecting:
		return "Collecting sources"
	case models.PhaseOutlineGenerating:
		return "Generating outline"
	case models.PhaseSectionWriting, models.PhaseStreaming:
		return "Writing article"
	case models.PhaseComplete:
		return "Article complete"
	}
	return string(m.Phase)
}

func (m WatchModel) outlineView() string {
	if len(m.Sections) == 0 {
		return StyleSubtle.Render("outline pending...")
	}
	var b strings.Builder
	for i, sec := range m.Sections {
		marker := statusMarker(sec.Status)
		title := sec.Title
		if title == "" {
			title = sec.SectionID
		}
		prefix := "  "
		if i == m.cursor {
			prefix = StylePrimary.Render("› ")
		}
		b.WriteString(fmt.Sprintf("%s%s %s\n", prefix, marker, StyleText.Render(title)))
		if m.expanded[sec.SectionID] {
			for _, goal := range sec.LearningGoals {
				b.WriteString(StyleSubtle.Render("      · "+goal) + "\n")
			}
		}
	}
	return b.String()
}

func statusMarker(status models.SectionStatus) string {
	switch status {
	case models.SectionComplete:
		return Icon("●", StyleSectionDone)
	case models.SectionTextComplete:
		return Icon("◐", StyleSectionWriting)
	default:
		return Icon("○", StyleSectionWaiting)
	}
}
