// Package tui renders live session progress in the terminal.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/codeloom/internal/session"
)

// maxEventLines bounds the scrolling event log in the view.
const maxEventLines = 12

// eventMsg carries one session event into the update loop.
type eventMsg session.Event

// streamClosedMsg signals that the session reached a terminal state and
// the event stream ended.
type streamClosedMsg struct{}

// Model is the Bubbletea model for watching a single session.
type Model struct {
	snapshot session.Session
	events   <-chan session.Event
	cancel   func()

	spinner  spinner.Model
	log      []string
	done     bool
	quitting bool
}

// New creates a watch model from a subscription. The snapshot seeds the
// initial view and the channel feeds live updates.
func New(snapshot session.Session, events <-chan session.Event, cancel func()) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = stageStyle

	return Model{
		snapshot: snapshot,
		events:   events,
		cancel:   cancel,
		spinner:  sp,
		done:     snapshot.IsTerminal(),
	}
}

// Run blocks until the session finishes or the user quits.
func (m Model) Run() (session.Session, error) {
	defer m.cancel()

	final, err := tea.NewProgram(m).Run()
	if err != nil {
		return m.snapshot, err
	}
	return final.(Model).snapshot, nil
}

func (m Model) Init() tea.Cmd {
	if m.done {
		return tea.Quit
	}
	return tea.Batch(m.spinner.Tick, m.waitForEvent())
}

// waitForEvent returns a command that delivers the next session event.
func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			m.cancel()
			return m, tea.Quit
		}
		return m, nil

	case eventMsg:
		m.apply(session.Event(msg))
		return m, m.waitForEvent()

	case streamClosedMsg:
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// apply folds one event into the local session view. The stream is
// ordered, so replaying events onto the snapshot keeps it current.
func (m *Model) apply(ev session.Event) {
	switch ev.Type {
	case session.EventStageStarted:
		m.snapshot.Status = session.StatusRunning
		m.snapshot.CurrentStage = ev.Stage
		m.log = append(m.log, fmt.Sprintf("stage %s started", ev.Stage))

	case session.EventStageCompleted:
		m.log = append(m.log, fmt.Sprintf("stage %s completed", ev.Stage))

	case session.EventFileWritten:
		m.snapshot.TouchFile(ev.Path)
		m.log = append(m.log, fileStyle.Render("wrote ")+ev.Path)

	case session.EventSessionCompleted:
		m.snapshot.Status = session.StatusCompleted
		m.snapshot.CurrentStage = ""
		m.log = append(m.log, completedStyle.Render("session completed"))

	case session.EventSessionError:
		m.snapshot.Status = session.StatusError
		m.snapshot.CurrentStage = ""
		m.snapshot.Error = &session.ErrorInfo{Stage: ev.Stage, Reason: ev.Message}
		m.log = append(m.log, errorStyle.Render(fmt.Sprintf("failed at %s: %s", ev.Stage, ev.Message)))
	}

	if len(m.log) > maxEventLines {
		m.log = m.log[len(m.log)-maxEventLines:]
	}
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("codeloom"))
	b.WriteString("  ")
	b.WriteString(promptStyle.Render(truncate(m.snapshot.Prompt, 60)))
	b.WriteString("\n\n")

	status := string(m.snapshot.Status)
	b.WriteString("status: ")
	b.WriteString(statusStyle(status).Render(status))
	if m.snapshot.CurrentStage != "" {
		b.WriteString("  ")
		b.WriteString(m.spinner.View())
		b.WriteString(stageStyle.Render(m.snapshot.CurrentStage))
	}
	b.WriteString("\n")

	if m.snapshot.Error != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("error: %s (stage %s)", m.snapshot.Error.Reason, m.snapshot.Error.Stage)))
		b.WriteString("\n")
	}

	if len(m.snapshot.TouchedFiles) > 0 {
		b.WriteString(fmt.Sprintf("files: %d\n", len(m.snapshot.TouchedFiles)))
	}
	b.WriteString("\n")

	for _, line := range m.log {
		b.WriteString(eventStyle.Render("  " + line))
		b.WriteString("\n")
	}

	if !m.done {
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("q to detach"))
		b.WriteString("\n")
	}

	return b.String()
}

// truncate shortens s to at most n runes, never splitting a multibyte
// character.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
