// Package status provides a thread-safe status tracker for the controller
// daemon. It is read by the HTTP status server and feeds the snapshot
// payloads of system telemetry events.
package status

import (
	"sync"
	"time"

	"github.com/ValorenceCLE/dpm-controller/internal/relay"
)

// RelayStatus is the displayed state of one relay.
type RelayStatus struct {
	ID            string
	Name          string
	Enabled       bool
	Scheduled     bool
	State         relay.State
	PulseDeadline time.Time // zero unless PULSING
}

// TaskStatus is the displayed state of one task.
type TaskStatus struct {
	ID       string
	Name     string
	Source   string
	Field    string
	Op       string
	Value    float64
	Matching bool
}

// Counts accumulates engine activity since startup.
type Counts struct {
	Ticks            int64
	Transitions      int64
	TaskFires        int64
	TaskClears       int64
	ApplyFailures    int64
	CyclicSuppressed int64
}

// Config contains daemon configuration for display.
type Config struct {
	SystemName string
	SystemID   string
	TickMs     int64
	Broker     string
	HTTPAddr   string
	ConfigPath string
}

// Snapshot is a point-in-time view of daemon state. It is a value type with
// freshly copied slices, safe to use after the lock is released.
type Snapshot struct {
	Relays        []RelayStatus
	Tasks         []TaskStatus
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// UpdateRelays replaces the relay display states. Called every tick.
func (t *Tracker) UpdateRelays(relays []RelayStatus) {
	t.mu.Lock()
	t.snap.Relays = relays
	t.mu.Unlock()
}

// UpdateTasks replaces the task display states. Called every tick.
func (t *Tracker) UpdateTasks(tasks []TaskStatus) {
	t.mu.Lock()
	t.snap.Tasks = tasks
	t.mu.Unlock()
}

// AddCounts accumulates engine activity.
func (t *Tracker) AddCounts(d Counts) {
	t.mu.Lock()
	t.snap.Counts.Ticks += d.Ticks
	t.snap.Counts.Transitions += d.Transitions
	t.snap.Counts.TaskFires += d.TaskFires
	t.snap.Counts.TaskClears += d.TaskClears
	t.snap.Counts.ApplyFailures += d.ApplyFailures
	t.snap.Counts.CyclicSuppressed += d.CyclicSuppressed
	t.mu.Unlock()
}

// SetMQTTConnected sets the broker connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state. The Now field
// is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Relays = append([]RelayStatus(nil), t.snap.Relays...)
	s.Tasks = append([]TaskStatus(nil), t.snap.Tasks...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
