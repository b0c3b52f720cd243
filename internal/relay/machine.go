package relay

import (
	"fmt"
	"sync"
	"time"
)

// Applier commits a logical relay state to the physical output. A non-nil
// error means the write was not applied (or not confirmed) and the logical
// state must not advance.
type Applier interface {
	Apply(relayID string, on bool) error
}

// runtime is the mutable state of one relay. The deadline is set iff the
// state is PULSING.
type runtime struct {
	mu          sync.Mutex
	state       State
	returnState State
	deadline    time.Time
}

// Machine owns every relay state transition. A relay's transition is a
// critical section; different relays move independently. The Machine does
// not check the relay's Enabled flag; schedulers and dispatchers do that
// before calling Set, so operator tooling can still drive a disabled relay
// through its own validation path.
type Machine struct {
	applier Applier

	mu     sync.Mutex // guards the states map, not the per-relay state
	states map[string]*runtime
}

// NewMachine creates a Machine that commits transitions through applier.
// All relays start OFF.
func NewMachine(applier Applier) *Machine {
	return &Machine{
		applier: applier,
		states:  make(map[string]*runtime),
	}
}

func (m *Machine) runtime(id string) *runtime {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.states[id]
	if !ok {
		rs = &runtime{state: StateOff}
		m.states[id] = rs
	}
	return rs
}

// State returns the current logical state of the relay.
func (m *Machine) State(id string) State {
	rs := m.runtime(id)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.state
}

// Status returns the current logical state and, while PULSING, the pulse
// deadline (zero otherwise).
func (m *Machine) Status(id string) (State, time.Time) {
	rs := m.runtime(id)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.state, rs.deadline
}

// Set executes a command against the relay. ON and OFF cancel any pending
// pulse and transition immediately. PULSE records the current state as the
// return state, drives its inverse, and arms the deadline; a PULSE while
// already PULSING only extends the deadline. The physical write happens
// before the logical state advances: if the applier fails, in-memory state
// is unchanged and the error is returned for the caller to retry on a later
// tick.
//
// A nil Transition with a nil error means no change was needed.
func (m *Machine) Set(r *Relay, cmd Command, now time.Time) (*Transition, error) {
	rs := m.runtime(r.ID)
	rs.mu.Lock()
	defer rs.mu.Unlock()

	switch cmd {
	case CommandOn, CommandOff:
		target := StateOff
		if cmd == CommandOn {
			target = StateOn
		}
		if rs.state == target {
			return nil, nil
		}
		if err := m.applier.Apply(r.ID, target == StateOn); err != nil {
			return nil, fmt.Errorf("apply %s to relay %s: %w", target, r.ID, err)
		}
		tr := &Transition{RelayID: r.ID, From: rs.state, To: target, At: now}
		rs.state = target
		rs.returnState = ""
		rs.deadline = time.Time{}
		return tr, nil

	case CommandPulse:
		if rs.state == StatePulsing {
			// Extend rather than stack; re-triggering must not queue a
			// second reversion.
			rs.deadline = now.Add(r.PulseTime)
			return nil, nil
		}
		// A pulse drives the inverse of the resting state.
		drive := rs.state == StateOff
		if err := m.applier.Apply(r.ID, drive); err != nil {
			return nil, fmt.Errorf("apply pulse to relay %s: %w", r.ID, err)
		}
		tr := &Transition{RelayID: r.ID, From: rs.state, To: StatePulsing, At: now}
		rs.returnState = rs.state
		rs.state = StatePulsing
		rs.deadline = now.Add(r.PulseTime)
		return tr, nil

	default:
		return nil, fmt.Errorf("relay %s: unknown command %q", r.ID, cmd)
	}
}

// Tick expires a pending pulse. If the relay is PULSING and the deadline
// has passed, it reverts to the recorded return state. An applier failure
// leaves the relay PULSING with its deadline elapsed, so the next tick
// retries the reversion.
func (m *Machine) Tick(r *Relay, now time.Time) (*Transition, error) {
	rs := m.runtime(r.ID)
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.state != StatePulsing || now.Before(rs.deadline) {
		return nil, nil
	}
	target := rs.returnState
	if err := m.applier.Apply(r.ID, target == StateOn); err != nil {
		return nil, fmt.Errorf("restore relay %s to %s: %w", r.ID, target, err)
	}
	tr := &Transition{RelayID: r.ID, From: StatePulsing, To: target, At: now}
	rs.state = target
	rs.returnState = ""
	rs.deadline = time.Time{}
	return tr, nil
}
