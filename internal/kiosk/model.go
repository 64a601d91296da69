// Package kiosk renders a capture run in the terminal.
package kiosk

import (
	"context"
	"errors"
	"io"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/kozaktomas/attendance-kiosk/internal/constants"
	"github.com/kozaktomas/attendance-kiosk/internal/scan"
)

// --- Bubble Tea messages ---

// StateMsg carries a new scan state.
type StateMsg struct{ State scan.State }

// OutcomeMsg carries an applied tick outcome and the recent matches after it.
type OutcomeMsg struct {
	Outcome  scan.Outcome
	Decision scan.Decision
	Recent   []scan.RecentMark
}

// StartedMsg is sent when a run acquired the camera.
type StartedMsg struct{ RunID string }

// StartFailedMsg is sent when the camera could not be acquired.
type StartFailedMsg struct {
	Message string
	Err     error
}

// Events bridges scheduler callbacks, which run on scheduler goroutines,
// into the Bubble Tea loop.
type Events struct {
	ch chan tea.Msg
}

// NewEvents creates an event bridge.
func NewEvents() *Events {
	return &Events{ch: make(chan tea.Msg, constants.EventChannelBuffer)}
}

func (e *Events) send(msg tea.Msg) {
	select {
	case e.ch <- msg:
	default:
		// View is behind, drop the event.
	}
}

// Wait returns a command that delivers the next event.
func (e *Events) Wait() tea.Cmd {
	return func() tea.Msg {
		return <-e.ch
	}
}

// Bell cues a recognition with the terminal bell.
type Bell struct {
	W io.Writer
}

// Cue rings the bell.
func (b Bell) Cue(scan.Outcome) {
	_, _ = io.WriteString(b.W, "\a")
}

// Model is the root Bubble Tea model of the kiosk.
type Model struct {
	scheduler *scan.Scheduler
	target    scan.Target
	events    *Events
	ctx       context.Context
	cancel    context.CancelFunc

	keys   KeyMap
	width  int
	height int

	state    scan.State
	running  bool
	starting bool
	runID   string
	message string
	recent  []scan.RecentMark
	cues    int
	last    string
}

// New creates the kiosk model for target. It subscribes to the scheduler's
// state machine, so create one model per scheduler.
func New(scheduler *scan.Scheduler, target scan.Target) Model {
	ctx, cancel := context.WithCancel(context.Background())
	events := NewEvents()
	scheduler.Machine().OnChange(func(st scan.State) {
		events.send(StateMsg{State: st})
	})
	return Model{
		scheduler: scheduler,
		target:    target,
		events:    events,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		state:     scheduler.Machine().State(),
		starting:  true, // Init starts the first run
	}
}

// Init starts the capture run and begins listening for scheduler events.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.start(), m.events.Wait())
}

func (m Model) start() tea.Cmd {
	scheduler, events, target, ctx := m.scheduler, m.events, m.target, m.ctx
	return func() tea.Msg {
		run, err := scheduler.Start(ctx, target, func(o scan.Outcome, d scan.Decision) {
			var recent []scan.RecentMark
			if r := scheduler.Current(); r != nil {
				recent = r.Recent()
			}
			events.send(OutcomeMsg{Outcome: o, Decision: d, Recent: recent})
		})
		if errors.Is(err, scan.ErrStartAborted) {
			return StartFailedMsg{Err: err}
		}
		if err != nil {
			msg := scheduler.Message()
			if msg == "" {
				msg = err.Error()
			}
			return StartFailedMsg{Message: msg, Err: err}
		}
		return StartedMsg{RunID: run.ID}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StateMsg:
		m.state = msg.State
		return m, m.events.Wait()

	case OutcomeMsg:
		if msg.Recent != nil {
			m.recent = msg.Recent
		}
		if msg.Decision.Notify {
			m.cues++
			m.last = msg.Outcome.SubjectName
		}
		return m, m.events.Wait()

	case StartedMsg:
		m.starting = false
		// A stop may have landed between the start and this message.
		m.running = m.scheduler.Current() != nil
		m.runID = msg.RunID
		m.message = ""
		m.recent = nil
		return m, nil

	case StartFailedMsg:
		m.starting = false
		m.running = false
		m.message = msg.Message
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.scheduler.Stop()
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Stop):
		if m.running || m.starting {
			m.scheduler.Stop()
			m.running = false
		}
		return m, nil

	case key.Matches(msg, m.keys.Start):
		if !m.running && !m.starting {
			m.starting = true
			return m, m.start()
		}
		return m, nil
	}
	return m, nil
}
