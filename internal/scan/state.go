package scan

import (
	"fmt"
	"sync"

	"github.com/kozaktomas/attendance-kiosk/internal/config"
)

// StateKind is the user-facing scan status.
type StateKind string

// StateKind constants. Idle is both the initial state and the state after stop.
const (
	StateIdle     StateKind = "idle"
	StateScanning StateKind = "scanning"
	StateMatched  StateKind = "matched"
	StateUnknown  StateKind = "unknown"
	StateNoFace   StateKind = "no_face"
	StateDisabled StateKind = "disabled"
	StateError    StateKind = "error"
)

// State is a scan status with its display label and color.
type State struct {
	Kind  StateKind `json:"kind"`
	Label string    `json:"label"`
	Color string    `json:"color"`
}

// StateMachine derives one scan state from the outcome stream.
type StateMachine struct {
	styles config.ScanConfig

	mu        sync.RWMutex
	state     State
	listeners []func(State)
}

// NewStateMachine creates a machine in the idle state.
func NewStateMachine(styles config.ScanConfig) *StateMachine {
	m := &StateMachine{styles: styles}
	m.state = m.styled(StateIdle, "idle")
	return m
}

// State returns the current state.
func (m *StateMachine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// OnChange registers a listener called on every state change. Listeners run
// with the machine locked and must not call back into it.
func (m *StateMachine) OnChange(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Begin marks a tick as in progress. A matched state is kept so consecutive
// recognitions do not flicker through scanning.
func (m *StateMachine) Begin() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Kind == StateMatched {
		return
	}
	m.set(m.styled(StateScanning, "scanning"))
}

// Apply moves to the state for a completed tick.
func (m *StateMachine) Apply(o Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(m.forOutcome(o))
}

// Stop moves to idle with the stopped label.
func (m *StateMachine) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(m.styled(StateIdle, "stopped"))
}

// Fail moves to the error state after the camera could not be acquired.
func (m *StateMachine) Fail() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(m.styled(StateError, "camera_error"))
}

func (m *StateMachine) forOutcome(o Outcome) State {
	switch o.Kind {
	case KindMatched:
		st := m.styled(StateMatched, "matched")
		suffix := ""
		if o.AlreadyMarked {
			suffix = m.styles.AlreadySuffix
		}
		st.Label = fmt.Sprintf(st.Label, o.SubjectName, suffix, o.Distance)
		return st
	case KindUnknown:
		return m.styled(StateUnknown, "unknown")
	case KindNoFace:
		return m.styled(StateNoFace, "no_face")
	case KindDisabled:
		return m.styled(StateDisabled, "disabled")
	default:
		return m.styled(StateError, "error")
	}
}

func (m *StateMachine) styled(kind StateKind, key string) State {
	style := m.styles.Style(key)
	return State{Kind: kind, Label: style.Label, Color: style.Color}
}

// set must be called with m.mu held.
func (m *StateMachine) set(st State) {
	if st == m.state {
		return
	}
	m.state = st
	for _, fn := range m.listeners {
		fn(st)
	}
}
