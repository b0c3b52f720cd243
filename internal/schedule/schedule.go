// Package schedule computes the time-of-day/day-of-week desired state for
// every scheduled relay and applies it on schedule edges only.
package schedule

import (
	"log/slog"
	"time"

	"github.com/ValorenceCLE/dpm-controller/internal/relay"
)

// DesiredState reports the state the schedule wants at now. A window whose
// On time is later than its Off time spans midnight; the day mask then
// selects the window's start day, so 18:00-04:59 on a Friday mask covers
// Friday evening and the following Saturday morning.
func DesiredState(s *relay.Schedule, now time.Time) relay.State {
	nowMin := now.Hour()*60 + now.Minute()
	on, off := s.On.Minutes(), s.Off.Minutes()

	switch {
	case on < off:
		if nowMin >= on && nowMin < off && s.Days.Contains(now.Weekday()) {
			return relay.StateOn
		}
	case on > off:
		if nowMin >= on && s.Days.Contains(now.Weekday()) {
			return relay.StateOn
		}
		if nowMin < off && s.Days.Contains(prevWeekday(now.Weekday())) {
			return relay.StateOn
		}
	}
	// on == off is an empty window.
	return relay.StateOff
}

func prevWeekday(d time.Weekday) time.Weekday {
	return (d + 6) % 7
}

// Result reports what one scheduling pass did.
type Result struct {
	Transitions []relay.Transition
	Failures    int // physical applies that failed and will be retried
}

// Engine applies schedules to relays through the state machine. It records
// the last desired state it saw per relay so a Set is issued only on a
// schedule edge; between edges, manual and task-driven commands are
// authoritative. The Engine is not safe for concurrent use; it is driven by
// the single control loop.
type Engine struct {
	machine *relay.Machine
	logger  *slog.Logger
	last    map[string]relay.State
}

// NewEngine creates a schedule engine over the given state machine.
func NewEngine(machine *relay.Machine, logger *slog.Logger) *Engine {
	return &Engine{
		machine: machine,
		logger:  logger,
		last:    make(map[string]relay.State),
	}
}

// Apply runs one scheduling pass over the registry. Disabled relays and
// relays without a schedule are skipped entirely. On an apply failure the
// recorded desired state is not advanced, so the same transition is retried
// next tick.
func (e *Engine) Apply(reg *relay.Registry, now time.Time) Result {
	var res Result
	for _, r := range reg.All() {
		if !r.Enabled || r.Schedule == nil {
			continue
		}

		desired := DesiredState(r.Schedule, now)
		if last, seen := e.last[r.ID]; seen && last == desired {
			continue // no edge; whatever state the relay is in stands
		}

		if e.machine.State(r.ID) == desired {
			e.last[r.ID] = desired
			continue
		}

		cmd := relay.CommandOff
		if desired == relay.StateOn {
			cmd = relay.CommandOn
		}
		tr, err := e.machine.Set(r, cmd, now)
		if err != nil {
			res.Failures++
			e.logger.Warn("schedule apply failed", "relay", r.ID, "desired", desired, "error", err)
			continue
		}
		e.last[r.ID] = desired
		if tr != nil {
			res.Transitions = append(res.Transitions, *tr)
		}
	}
	return res
}
