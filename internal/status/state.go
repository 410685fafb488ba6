// Package status tracks the lifecycle phase of an open group session.
package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/huddle/internal/bus"
)

// Phase represents the replication phase of one group session.
type Phase string

const (
	// Opening: subscriptions are being registered.
	Opening Phase = "OPENING"
	// Syncing: a fresh join is receiving its initial backlog.
	Syncing Phase = "SYNCING"
	// Live: replication is steady.
	Live Phase = "LIVE"
	// Closed: every subscription of the session was cancelled.
	Closed Phase = "CLOSED"
)

// validTransitions defines allowed phase transitions. Closed is terminal.
var validTransitions = map[Phase][]Phase{
	Opening: {Syncing, Live, Closed},
	Syncing: {Live, Closed},
	Live:    {Closed},
}

// Machine tracks and enforces the phase transitions of one group session.
type Machine struct {
	mu      sync.RWMutex
	group   string
	current Phase
	bus     *bus.Bus
}

// NewMachine creates a new machine for group starting in Opening.
func NewMachine(group string, b *bus.Bus) *Machine {
	return &Machine{
		group:   group,
		current: Opening,
		bus:     b,
	}
}

// Current returns the current phase.
func (m *Machine) Current() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new phase. Returns error if transition is invalid.
func (m *Machine) Transition(to Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Emit(bus.SessionPhaseChanged, m.group, "from", string(from), "to", string(to))
	}
	return nil
}
