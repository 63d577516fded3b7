package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/dossier/runstate"
	"github.com/pithecene-io/dossier/stage"
	"github.com/pithecene-io/dossier/types"
	"github.com/pithecene-io/dossier/watch"
)

// runChangedMsg signals that the store holds a newer run document.
type runChangedMsg struct{}

// settledMsg carries the watcher's final outcome.
type settledMsg struct {
	outcome watch.Outcome
}

// WatchModel is a Bubble Tea model rendering live pipeline progress.
// It reads run state from the store on change notification; the watcher
// goroutine owns all writes.
type WatchModel struct {
	runID   string
	store   *runstate.Store
	catalog *stage.Catalog
	changes <-chan struct{}
	outcome <-chan watch.Outcome

	spinner spinner.Model
	run     *types.Run
	final   *watch.Outcome
	aborted bool
	width   int
	height  int
}

// NewWatchModel creates a watch model. The outcome channel must deliver
// exactly one value when the watcher returns.
func NewWatchModel(runID string, store *runstate.Store, catalog *stage.Catalog, outcome <-chan watch.Outcome) WatchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = WarningStyle

	return WatchModel{
		runID:   runID,
		store:   store,
		catalog: catalog,
		changes: store.Changes(),
		outcome: outcome,
		spinner: sp,
		run:     store.Current(),
	}
}

// Init implements tea.Model.
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForChange(), m.waitForOutcome())
}

func (m WatchModel) waitForChange() tea.Cmd {
	return func() tea.Msg {
		<-m.changes
		return runChangedMsg{}
	}
}

func (m WatchModel) waitForOutcome() tea.Cmd {
	return func() tea.Msg {
		return settledMsg{outcome: <-m.outcome}
	}
}

// Update implements tea.Model.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case runChangedMsg:
		m.run = m.store.Current()
		return m, m.waitForChange()

	case settledMsg:
		outcome := msg.outcome
		m.final = &outcome
		if outcome.Run != nil {
			m.run = outcome.Run
		}
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.aborted = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m WatchModel) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Watching run " + m.runID))
	b.WriteString("\n\n")

	status := "loading"
	currentStage := ""
	if m.run != nil {
		status = string(m.run.Status)
		currentStage = m.run.CurrentStage
	}

	for _, v := range stage.Derive(m.catalog, currentStage, runStatus(m.run)) {
		b.WriteString(m.stageLine(v))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %s\n",
		LabelStyle.Render("Status:"),
		StateStyle(status).Render(status)))
	if m.run != nil && m.run.Error != "" {
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render("Error:"),
			ErrorStyle.Render(m.run.Error)))
	}
	if m.final != nil && m.final.ConnectionLost {
		b.WriteString(ErrorStyle.Render("stream lost, state may be stale"))
		b.WriteString("\n")
	}

	content := BoxStyle.Render(b.String())
	help := HelpStyle.Render("Press q or Ctrl+C to stop watching")
	return content + "\n" + help
}

func (m WatchModel) stageLine(v stage.View) string {
	switch v.Status {
	case stage.StatusDone:
		return fmt.Sprintf("%s %s", SuccessStyle.Render("✓"), ValueStyle.Render(v.Label))
	case stage.StatusActive:
		return fmt.Sprintf("%s %s", m.spinner.View(), WarningStyle.Render(v.Label))
	case stage.StatusFailed:
		return fmt.Sprintf("%s %s", ErrorStyle.Render("✗"), ErrorStyle.Render(v.Label))
	default:
		return fmt.Sprintf("%s %s", MutedStyle.Render("○"), MutedStyle.Render(v.Label))
	}
}

func runStatus(run *types.Run) types.RunStatus {
	if run == nil {
		return types.RunStatusPending
	}
	return run.Status
}

// Aborted reports whether the user quit before the run settled.
func (m WatchModel) Aborted() bool { return m.aborted }

// Final returns the watcher outcome if one arrived before the TUI exited.
func (m WatchModel) Final() *watch.Outcome { return m.final }

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// RunWatchTUI runs the live watch view until the run settles or the
// user quits. It returns the final outcome when one arrived; aborted is
// true when the user quit first.
func RunWatchTUI(runID string, store *runstate.Store, catalog *stage.Catalog, outcome <-chan watch.Outcome) (final *watch.Outcome, aborted bool, err error) {
	model := NewWatchModel(runID, store, catalog, outcome)
	p := tea.NewProgram(model)
	res, err := p.Run()
	if err != nil {
		return nil, false, err
	}
	m, ok := res.(WatchModel)
	if !ok {
		return nil, false, fmt.Errorf("unexpected model type %T", res)
	}
	return m.Final(), m.Aborted(), nil
}
