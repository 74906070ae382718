// Package session holds the per-connection protocol state machine. It keeps no
// timer and does no I/O: the connection loop feeds it events and carries out
// the actions it returns.
package session

import (
	"slices"
	"time"
)

type pendingEntry struct {
	id    uint32
	since time.Time
}

// Machine is owned by exactly one connection and is not safe for concurrent use.
type Machine struct {
	state    State
	lastAck  uint32
	pending  []pendingEntry
	timeout  time.Duration
	identity string
	now      func() time.Time
}

type Option func(*Machine)

// WithClock replaces time.Now for pending-entry bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// NewMachine returns a machine in StateDisconnected. Pending entries older
// than timeout are evicted by the next Timeout event.
func NewMachine(timeout time.Duration, opts ...Option) *Machine {
	m := &Machine{
		state:   StateDisconnected,
		timeout: timeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handle applies ev to the current state and returns the new state with the
// actions to perform.
func (m *Machine) Handle(ev Event) Result {
	var actions []Action

	next := StateError
	switch e := ev.(type) {
	case ConnectionLost:
		actions = append(actions, ResetConnection{})
		next = StateDisconnected
	case Timeout:
		actions = m.sweep(actions)
		if m.state == StateError {
			actions = append(actions, DisconnectClient{})
		}
	default:
		next, actions = m.transition(e, actions)
	}

	m.state = next
	return Result{State: next, Actions: actions}
}

func (m *Machine) transition(ev Event, actions []Action) (State, []Action) {
	switch e := ev.(type) {
	case Connect:
		if m.state == StateDisconnected {
			return StateConnected, actions
		}
	case Authenticate:
		if m.state == StateConnected {
			m.identity = e.Identity
			return StateAuthenticating, actions
		}
	case AuthSuccess:
		if m.state == StateAuthenticating {
			return StateReady, actions
		}
	case PacketReceived:
		if m.state == StateReady {
			id := e.Packet.ID()
			actions = append(actions, SendAcknowledgement{ID: id})
			return StateReady, m.track(id, actions)
		}
	case AcknowledgementReceived:
		if m.state == StateReady {
			m.pending = slices.DeleteFunc(m.pending, func(p pendingEntry) bool { return p.id == e.ID })
			return StateReady, actions
		}
	}
	return StateError, append(actions, DisconnectClient{})
}

// track records id as pending on first sight and asks for the earliest
// missing id when it does not follow the last acknowledged one.
func (m *Machine) track(id uint32, actions []Action) []Action {
	if !slices.ContainsFunc(m.pending, func(p pendingEntry) bool { return p.id == id }) {
		m.pending = append(m.pending, pendingEntry{id: id, since: m.now()})
	}
	if id != m.lastAck+1 {
		return append(actions, RequestRetransmission{ID: m.lastAck + 1})
	}
	m.lastAck = id
	return actions
}

// sweep evicts every pending entry older than the timeout, requesting one
// retransmission per evicted entry.
func (m *Machine) sweep(actions []Action) []Action {
	now := m.now()
	kept := m.pending[:0]
	for _, p := range m.pending {
		if now.Sub(p.since) > m.timeout {
			actions = append(actions, RequestRetransmission{ID: p.id})
			continue
		}
		kept = append(kept, p)
	}
	m.pending = kept
	return actions
}

func (m *Machine) State() State { return m.state }

// Identity is the identity recorded by the last Authenticate event.
func (m *Machine) Identity() string { return m.identity }

func (m *Machine) LastAcknowledged() uint32 { return m.lastAck }

// Pending returns the ids awaiting acknowledgement, oldest first.
func (m *Machine) Pending() []uint32 {
	ids := make([]uint32, len(m.pending))
	for i, p := range m.pending {
		ids[i] = p.id
	}
	return ids
}
