// Package control drives the periodic tick that reconciles schedules,
// tasks, pulse expirations and operator commands into relay transitions.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ValorenceCLE/dpm-controller/internal/metrics"
	"github.com/ValorenceCLE/dpm-controller/internal/mqtt"
	"github.com/ValorenceCLE/dpm-controller/internal/relay"
	"github.com/ValorenceCLE/dpm-controller/internal/schedule"
	"github.com/ValorenceCLE/dpm-controller/internal/sensor"
	"github.com/ValorenceCLE/dpm-controller/internal/status"
	"github.com/ValorenceCLE/dpm-controller/internal/task"
)

// Operator command rejections.
var (
	ErrUnknownRelay   = errors.New("unknown relay")
	ErrRelayDisabled  = errors.New("relay disabled")
	ErrUnknownCommand = errors.New("unknown command")
)

// sampleTimeout bounds the per-tick sensor feed call so a slow collaborator
// cannot stall the loop.
const sampleTimeout = time.Second

// Bundle is one atomic configuration unit: the relay registry, the task set
// and their per-bundle evaluation state. Reload builds a new Bundle and the
// loop swaps it whole between ticks, so no tick ever observes a mix.
type Bundle struct {
	Registry *relay.Registry

	schedule   *schedule.Engine
	evaluator  *task.Evaluator
	dispatcher *task.Dispatcher
}

// NewBundle assembles a bundle over the shared state machine. Relay runtime
// state lives in the machine and survives the swap for relay IDs present in
// both registries; schedule edge tracking and task match state start fresh.
func NewBundle(reg *relay.Registry, tasks []*task.Task, machine *relay.Machine, rebooter task.Rebooter, logger *slog.Logger) *Bundle {
	return &Bundle{
		Registry:   reg,
		schedule:   schedule.NewEngine(machine, logger),
		evaluator:  task.NewEvaluator(tasks, logger),
		dispatcher: task.NewDispatcher(reg, machine, tasks, rebooter, logger),
	}
}

// command carries one operator command into the loop goroutine.
type command struct {
	relayID string
	cmd     relay.Command
	reply   chan error
}

// Loop is the tick coordinator. All relay-affecting work is serialized
// through its single Run goroutine; operator commands and reloads arrive on
// channels and are applied between ticks.
type Loop struct {
	machine   *relay.Machine
	source    sensor.Source
	publisher mqtt.Publisher
	mqttConn  mqtt.ConnectionStatus // may be nil
	tracker   *status.Tracker
	logger    *slog.Logger
	now       func() time.Time

	bundle   *Bundle // owned by the Run goroutine
	commands chan command
	reloads  chan *Bundle
}

// New creates a control loop over an initial bundle.
func New(bundle *Bundle, machine *relay.Machine, source sensor.Source, publisher mqtt.Publisher, tracker *status.Tracker, logger *slog.Logger) *Loop {
	l := &Loop{
		machine:   machine,
		source:    source,
		publisher: publisher,
		tracker:   tracker,
		logger:    logger,
		now:       time.Now,
		bundle:    bundle,
		commands:  make(chan command),
		reloads:   make(chan *Bundle),
	}
	if cs, ok := publisher.(mqtt.ConnectionStatus); ok {
		l.mqttConn = cs
	}
	return l
}

// SetNow overrides the clock, for tests.
func (l *Loop) SetNow(now func() time.Time) {
	l.now = now
}

// Command applies an operator command to a relay. It is safe to call from
// any goroutine; the command is handed to the loop and applied immediately,
// and the result is returned synchronously. Unknown and disabled relays are
// rejected.
func (l *Loop) Command(ctx context.Context, relayID string, cmd relay.Command) error {
	c := command{relayID: relayID, cmd: cmd, reply: make(chan error, 1)}
	select {
	case l.commands <- c:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-c.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reload hands a new bundle to the loop. The swap happens between ticks.
func (l *Loop) Reload(ctx context.Context, b *Bundle) error {
	select {
	case l.reloads <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the loop until ctx is cancelled. Shutdown is graceful: an
// in-progress tick finishes, then Run returns nil.
func (l *Loop) Run(ctx context.Context, tick <-chan time.Time) error {
	l.logger.Info("control loop started",
		"relays", l.bundle.Registry.Len(), "tasks", len(l.bundle.evaluator.Tasks()))

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("control loop stopping")
			return nil

		case c := <-l.commands:
			c.reply <- l.applyCommand(c)

		case b := <-l.reloads:
			l.bundle = b
			l.logger.Info("configuration reloaded",
				"relays", b.Registry.Len(), "tasks", len(b.evaluator.Tasks()))
			metrics.IncReload(metrics.ResultSuccess)
			if err := l.publisher.PublishSystem(mqtt.SystemEvent{
				Timestamp: l.now(),
				Event:     "RELOAD",
			}); err != nil {
				l.logger.Warn("reload event publish failed", "error", err)
			}

		case <-tick:
			l.tick(ctx, l.now())
		}
	}
}

func (l *Loop) applyCommand(c command) error {
	r, ok := l.bundle.Registry.Get(c.relayID)
	if !ok {
		metrics.IncCommand(metrics.ResultRejected)
		return fmt.Errorf("%w: %s", ErrUnknownRelay, c.relayID)
	}
	if !r.Enabled {
		metrics.IncCommand(metrics.ResultRejected)
		return fmt.Errorf("%w: %s", ErrRelayDisabled, c.relayID)
	}
	if !c.cmd.Valid() {
		metrics.IncCommand(metrics.ResultRejected)
		return fmt.Errorf("%w: %q", ErrUnknownCommand, c.cmd)
	}

	tr, err := l.machine.Set(r, c.cmd, l.now())
	if err != nil {
		metrics.IncCommand(metrics.ResultFailed)
		metrics.AddApplyFailures("command", 1)
		l.tracker.AddCounts(status.Counts{ApplyFailures: 1})
		return err
	}
	metrics.IncCommand(metrics.ResultApplied)
	l.logger.Info("operator command applied", "relay", c.relayID, "command", c.cmd)
	if tr != nil {
		l.publishTransitions([]relay.Transition{*tr})
	}
	l.updateTracker()
	return nil
}

// tick runs one full pass: sample -> schedule -> evaluate -> dispatch ->
// pulse expirations -> telemetry and status.
func (l *Loop) tick(ctx context.Context, now time.Time) {
	b := l.bundle

	sctx, cancel := context.WithTimeout(ctx, sampleTimeout)
	snap, err := l.source.Sample(sctx)
	cancel()
	if err != nil {
		// No signal this tick; tasks simply skip.
		l.logger.Warn("sensor sample failed", "error", err)
		snap = sensor.Snapshot{}
	}

	var transitions []relay.Transition

	schedRes := b.schedule.Apply(b.Registry, now)
	transitions = append(transitions, schedRes.Transitions...)

	fired, cleared := b.evaluator.Evaluate(snap)

	dispRes := b.dispatcher.Dispatch(fired, now)
	transitions = append(transitions, dispRes.Transitions...)

	pulseFailures := 0
	for _, r := range b.Registry.All() {
		tr, err := l.machine.Tick(r, now)
		if err != nil {
			pulseFailures++
			l.logger.Warn("pulse restore failed", "relay", r.ID, "error", err)
			continue
		}
		if tr != nil {
			transitions = append(transitions, *tr)
		}
	}

	l.publishTransitions(transitions)
	l.publishAlerts(snap, fired, mqtt.AlertStart, now)
	l.publishAlerts(snap, cleared, mqtt.AlertClear, now)

	metrics.IncTick()
	metrics.AddApplyFailures("schedule", schedRes.Failures)
	metrics.AddApplyFailures("task", dispRes.Failures)
	metrics.AddApplyFailures("pulse", pulseFailures)
	metrics.AddCyclicSuppressed(dispRes.Suppressed)
	for range fired {
		metrics.IncTaskEvent("start")
	}
	for range cleared {
		metrics.IncTaskEvent("clear")
	}

	l.tracker.AddCounts(status.Counts{
		Ticks:            1,
		Transitions:      int64(len(transitions)),
		TaskFires:        int64(len(fired)),
		TaskClears:       int64(len(cleared)),
		ApplyFailures:    int64(schedRes.Failures + dispRes.Failures + pulseFailures),
		CyclicSuppressed: int64(dispRes.Suppressed),
	})
	l.updateTracker()
}

func (l *Loop) publishTransitions(trs []relay.Transition) {
	for _, tr := range trs {
		metrics.IncTransition(string(tr.To))
		if err := l.publisher.PublishTransition(tr); err != nil {
			l.logger.Warn("transition publish failed", "relay", tr.RelayID, "error", err)
		}
	}
}

func (l *Loop) publishAlerts(snap sensor.Snapshot, tasks []*task.Task, kind string, now time.Time) {
	for _, t := range tasks {
		v, _ := snap.Value(t.Source, t.Field)
		ev := mqtt.AlertEvent{
			Timestamp: now,
			TaskID:    t.ID,
			TaskName:  t.Name,
			Kind:      kind,
			Source:    t.Source,
			Field:     t.Field,
			Value:     v,
			Threshold: t.Value,
		}
		if err := l.publisher.PublishAlert(ev); err != nil {
			l.logger.Warn("alert publish failed", "task", t.ID, "error", err)
		}
	}
}

func (l *Loop) updateTracker() {
	b := l.bundle

	relays := make([]status.RelayStatus, 0, b.Registry.Len())
	for _, r := range b.Registry.All() {
		st, deadline := l.machine.Status(r.ID)
		relays = append(relays, status.RelayStatus{
			ID:            r.ID,
			Name:          r.Name,
			Enabled:       r.Enabled,
			Scheduled:     r.Schedule != nil,
			State:         st,
			PulseDeadline: deadline,
		})
	}
	l.tracker.UpdateRelays(relays)

	taskDefs := b.evaluator.Tasks()
	tasks := make([]status.TaskStatus, 0, len(taskDefs))
	for _, t := range taskDefs {
		tasks = append(tasks, status.TaskStatus{
			ID:       t.ID,
			Name:     t.Name,
			Source:   t.Source,
			Field:    t.Field,
			Op:       string(t.Op),
			Value:    t.Value,
			Matching: b.evaluator.Matching(t.ID),
		})
	}
	l.tracker.UpdateTasks(tasks)

	if l.mqttConn != nil {
		l.tracker.SetMQTTConnected(l.mqttConn.IsConnected())
	}
}
