package gpio

import (
	"sync"

	"github.com/ValorenceCLE/dpm-controller/internal/relay"
)

// Write records one physical apply for test assertions.
type Write struct {
	RelayID string
	On      bool
}

// FakeDriver is a test double that records applies and can be scripted to
// fail.
type FakeDriver struct {
	mu sync.Mutex

	// writes is every Apply call, in order.
	writes []Write

	// levels tracks the last applied state per relay.
	levels map[string]bool

	// FailFor returns the scripted error for a relay id; nil entries
	// succeed.
	FailFor map[string]error

	// ApplyError, if set, fails every Apply.
	ApplyError error

	// reconfigures is every relay set passed to Reconfigure, in order.
	reconfigures [][]*relay.Relay

	// ReconfigureError, if set, fails every Reconfigure.
	ReconfigureError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeDriver creates a FakeDriver.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		levels:  make(map[string]bool),
		FailFor: make(map[string]error),
	}
}

// Apply records the write, or returns the scripted failure.
func (f *FakeDriver) Apply(relayID string, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ApplyError != nil {
		return f.ApplyError
	}
	if err := f.FailFor[relayID]; err != nil {
		return err
	}
	f.writes = append(f.writes, Write{RelayID: relayID, On: on})
	f.levels[relayID] = on
	return nil
}

// Reconfigure records the new relay set, or returns the scripted failure.
func (f *FakeDriver) Reconfigure(relays []*relay.Relay) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReconfigureError != nil {
		return f.ReconfigureError
	}
	f.reconfigures = append(f.reconfigures, relays)
	return nil
}

// Reconfigures returns every relay set passed to Reconfigure.
func (f *FakeDriver) Reconfigures() [][]*relay.Relay {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]*relay.Relay, len(f.reconfigures))
	copy(out, f.reconfigures)
	return out
}

// Close marks the driver as closed.
func (f *FakeDriver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Writes returns a copy of all recorded applies.
func (f *FakeDriver) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Write, len(f.writes))
	copy(out, f.writes)
	return out
}

// On reports the last applied state for the relay (false if never written).
func (f *FakeDriver) On(relayID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels[relayID]
}

// WriteCount returns how many applies were recorded.
func (f *FakeDriver) WriteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

// Reset clears recorded writes and scripted failures.
func (f *FakeDriver) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = nil
	f.levels = make(map[string]bool)
	f.FailFor = make(map[string]error)
	f.ApplyError = nil
	f.reconfigures = nil
	f.ReconfigureError = nil
	f.Closed = false
}
