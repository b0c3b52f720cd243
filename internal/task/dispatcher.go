package task

import (
	"log/slog"
	"time"

	"github.com/ValorenceCLE/dpm-controller/internal/relay"
)

// Rebooter executes a reboot action. The real implementation defers a
// system reboot; tests use a fake.
type Rebooter interface {
	Reboot(reason string)
}

// DispatchResult reports what one dispatch pass did.
type DispatchResult struct {
	Transitions []relay.Transition
	Suppressed  int // cyclic re-triggers suppressed
	Failures    int // physical applies that failed
}

// Dispatcher executes the actions of fired tasks through the relay state
// machine. Task sources and action targets can form cycles (a task whose
// action drives the relay it reads from); the dispatcher bounds each tick
// to a single pass by tracking the in-flight task set and suppressing any
// re-trigger that lands back in it.
type Dispatcher struct {
	registry *relay.Registry
	machine  *relay.Machine
	rebooter Rebooter
	logger   *slog.Logger
	bySource map[string][]*Task
}

// NewDispatcher creates a dispatcher for the given task set. The bySource
// index drives cycle detection: an io action on relay T may re-trigger any
// task sourced on T.
func NewDispatcher(reg *relay.Registry, machine *relay.Machine, tasks []*Task, rebooter Rebooter, logger *slog.Logger) *Dispatcher {
	bySource := make(map[string][]*Task)
	for _, t := range tasks {
		bySource[t.Source] = append(bySource[t.Source], t)
	}
	return &Dispatcher{
		registry: reg,
		machine:  machine,
		rebooter: rebooter,
		logger:   logger,
		bySource: bySource,
	}
}

// Dispatch executes the actions of every fired task in order. Each fired
// task's identity joins the tick's in-flight set before any action runs;
// when an io action changes the state of a relay that feeds a task already
// in flight, the re-trigger is suppressed and logged instead of recursed,
// so the pass terminates regardless of configured cycles.
func (d *Dispatcher) Dispatch(fired []*Task, now time.Time) DispatchResult {
	var res DispatchResult
	if len(fired) == 0 {
		return res
	}

	inFlight := make(map[string]bool, len(fired))
	for _, t := range fired {
		inFlight[t.ID] = true
	}

	for _, t := range fired {
		for _, a := range t.Actions {
			switch a.Type {
			case ActionIO:
				// Only a committed transition can re-trigger anything; a
				// no-op or failed apply suppresses nothing.
				if tr := d.executeIO(t, a, now, &res); tr != nil {
					for _, dep := range d.bySource[a.Target] {
						if inFlight[dep.ID] {
							res.Suppressed++
							d.logger.Warn("cyclic trigger suppressed",
								"task", t.ID, "target", a.Target, "retriggers", dep.ID)
						}
					}
				}

			case ActionLog:
				d.logger.Info("task log action", "task", t.Name, "message", a.Message)

			case ActionReboot:
				d.logger.Warn("task requested reboot", "task", t.Name)
				if d.rebooter != nil {
					d.rebooter.Reboot(t.Name)
				}

			default:
				// Unreachable for validated config.
				d.logger.Error("unknown action type", "task", t.ID, "type", string(a.Type))
			}
		}
	}
	return res
}

// executeIO drives one io action and returns the committed transition, or
// nil when the action was skipped, failed or was already satisfied.
func (d *Dispatcher) executeIO(t *Task, a Action, now time.Time, res *DispatchResult) *relay.Transition {
	r, ok := d.registry.Get(a.Target)
	if !ok {
		d.logger.Error("action targets unknown relay", "task", t.ID, "target", a.Target)
		return nil
	}
	if !r.Enabled {
		d.logger.Debug("action skipped, relay disabled", "task", t.ID, "relay", r.ID)
		return nil
	}

	tr, err := d.machine.Set(r, a.Command, now)
	if err != nil {
		res.Failures++
		d.logger.Warn("io action apply failed", "task", t.ID, "relay", r.ID,
			"command", a.Command, "error", err)
		return nil
	}
	if tr != nil {
		res.Transitions = append(res.Transitions, *tr)
	}
	return tr
}
