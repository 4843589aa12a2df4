package turn

import (
	"errors"
	"fmt"
	"sync"
)

// State is a phase of one voice turn.
type State int

const (
	Idle State = iota
	Speaking
	ListeningSignal
	Recording
	FinishedSignal
	Transcribing
	Done
	Error
)

var stateNames = [...]string{"idle", "speaking", "listening_signal", "recording", "finished_signal", "transcribing", "done", "error"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrInvalidTransition reports a sequencing bug in the orchestrator.
var ErrInvalidTransition = errors.New("invalid turn state transition")

// Done and Error have no exits.
var validTransitions = map[State][]State{
	Idle:            {Speaking, Error},
	Speaking:        {ListeningSignal, Done, Error},
	ListeningSignal: {Recording, Error},
	Recording:       {FinishedSignal, Error},
	FinishedSignal:  {Transcribing, Error},
	Transcribing:    {Done, Error},
}

// Machine tracks one turn's state.
type Machine struct {
	mu      sync.Mutex
	state   State
	history []State
}

func NewMachine() *Machine {
	return &Machine{state: Idle, history: []State{Idle}}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// History returns every state entered, in order.
func (m *Machine) History() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]State(nil), m.history...)
}

// Transition moves to next or returns ErrInvalidTransition.
func (m *Machine) Transition(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, allowed := range validTransitions[m.state] {
		if allowed == next {
			m.state = next
			m.history = append(m.history, next)
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, next)
}

// Fail moves to Error from any non-terminal state.
func (m *Machine) Fail() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Done || m.state == Error {
		return
	}
	m.state = Error
	m.history = append(m.history, Error)
}
