package assoc

import "fmt"

// State is one of the legal SCP association states.
type State int

const (
	StateIdle State = iota
	StateNegotiating
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateNegotiating:
		return "NEGOTIATING"
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ErrInvalidTransition is returned when an event is not legal in the
// association's current state.
type ErrInvalidTransition struct {
	From  State
	Event string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("assoc: event %q is not valid in state %s", e.Event, e.From)
}

// Machine tracks one association's state across the SCP lifecycle:
// Idle -> Negotiating -> Open -> Closed (or Negotiating -> Closed on reject).
type Machine struct {
	state State
}

// NewMachine starts a Machine in StateIdle.
func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// ReceiveAssociateRQ transitions Idle -> Negotiating.
func (m *Machine) ReceiveAssociateRQ() error {
	if m.state != StateIdle {
		return &ErrInvalidTransition{From: m.state, Event: "recv ASSOC-RQ"}
	}
	m.state = StateNegotiating
	return nil
}

// SendAccept transitions Negotiating -> Open.
func (m *Machine) SendAccept() error {
	if m.state != StateNegotiating {
		return &ErrInvalidTransition{From: m.state, Event: "send AC"}
	}
	m.state = StateOpen
	return nil
}

// SendReject transitions Negotiating -> Closed.
func (m *Machine) SendReject() error {
	if m.state != StateNegotiating {
		return &ErrInvalidTransition{From: m.state, Event: "send RJ"}
	}
	m.state = StateClosed
	return nil
}

// ReceiveData is a no-op transition valid only while Open.
func (m *Machine) ReceiveData() error {
	if m.state != StateOpen {
		return &ErrInvalidTransition{From: m.state, Event: "recv P-DATA"}
	}
	return nil
}

// Release transitions Open -> Closed (release request/response exchange).
func (m *Machine) Release() error {
	if m.state != StateOpen {
		return &ErrInvalidTransition{From: m.state, Event: "release"}
	}
	m.state = StateClosed
	return nil
}

// Abort transitions to Closed from any state, matching "Open --recv/send
// ABORT--> Closed" (and is also used to terminate a negotiation in progress
// on a malformed PDU).
func (m *Machine) Abort() {
	m.state = StateClosed
}
