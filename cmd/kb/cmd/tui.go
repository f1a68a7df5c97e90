package cmd

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/localkb/knowledgebase/internal/kb"
)

var (
	tuiTitleStyle = lipgloss.NewStyle().Bold(true)
	tuiDimStyle   = lipgloss.NewStyle().Faint(true)
)

// progressModel renders reindex progress: one bar for document loading
// (phase 1) and one for embedding sync (phase 2). Phase 2 restarts once:
// the first pass is the prefilter scan over all candidates, the second the
// write loop over dirty documents only.
type progressModel struct {
	spin     spinner.Model
	bar      progress.Model
	phase    string
	current  int
	total    int
	detail   string
	done     bool
	err      error
	events   <-chan kb.Event
	scanSeen bool
}

type eventMsg struct {
	event kb.Event
	ok    bool
}

type reindexDoneMsg struct {
	result *kb.ReindexResult
	err    error
}

func newProgressModel(events <-chan kb.Event) progressModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return progressModel{
		spin:   sp,
		bar:    progress.New(progress.WithDefaultGradient()),
		phase:  "Starting",
		events: events,
	}
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, waitForEvent(m.events))
}

func waitForEvent(events <-chan kb.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		return eventMsg{event: e, ok: ok}
	}
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil

	case reindexDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit

	case eventMsg:
		if !msg.ok {
			return m, nil
		}
		switch e := msg.event.(type) {
		case kb.Phase1Start:
			m.phase = "Loading documents"
			m.current, m.total = 0, e.Total
		case kb.Phase1Progress:
			m.current, m.total = e.Current, e.Total
		case kb.Phase1Complete:
			m.detail = fmt.Sprintf("%d documents loaded", e.DocumentsLoaded)
		case kb.Phase2Start:
			if !m.scanSeen {
				m.phase = "Scanning embeddings"
				m.scanSeen = true
			} else {
				m.phase = "Writing embeddings"
			}
			m.current, m.total = 0, e.Total
		case kb.Phase2Progress:
			m.current, m.total = e.Current, e.Total
			m.detail = e.DocumentID
		case kb.Phase2Complete:
			m.detail = fmt.Sprintf("%d synced, %d failed", e.Synced, e.Failed)
		}
		return m, waitForEvent(m.events)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m progressModel) View() string {
	if m.done {
		return ""
	}
	ratio := 0.0
	if m.total > 0 {
		ratio = float64(m.current) / float64(m.total)
	}
	line := fmt.Sprintf("%s %s %s %d/%d",
		m.spin.View(), tuiTitleStyle.Render(m.phase), m.bar.ViewAs(ratio), m.current, m.total)
	if m.detail != "" {
		line += "\n  " + tuiDimStyle.Render(truncate(m.detail, 60))
	}
	return line + "\n"
}

// runReindexTUI drives a reindex while rendering live progress.
func runReindexTUI(ctx context.Context, svc *kb.Service, folder string) (*kb.ReindexResult, error) {
	bus := kb.NewBus(nil, 1024)

	model := newProgressModel(bus.Events())
	prog := tea.NewProgram(model, tea.WithContext(ctx))

	resultCh := make(chan reindexDoneMsg, 1)
	go func() {
		result, err := svc.Reindex(ctx, folder, bus)
		bus.Close()
		resultCh <- reindexDoneMsg{result: result, err: err}
		prog.Send(reindexDoneMsg{result: result, err: err})
	}()

	if _, err := prog.Run(); err != nil {
		return nil, err
	}
	done := <-resultCh
	return done.result, done.err
}
