package task

import (
	"log/slog"

	"github.com/ValorenceCLE/dpm-controller/internal/sensor"
)

// Evaluator applies every task's predicate to the tick's snapshot and
// reports edge transitions. A task fires only when its predicate goes
// false->true; a continuously-true predicate fires exactly once until it
// drops back to false. The true->false edge is reported separately so
// telemetry can publish an alert clear. Not safe for concurrent use;
// driven by the single control loop.
type Evaluator struct {
	tasks  []*Task
	last   map[string]bool
	logger *slog.Logger
}

// NewEvaluator creates an evaluator over the given task set. All tasks
// start unmatched.
func NewEvaluator(tasks []*Task, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		tasks:  tasks,
		last:   make(map[string]bool, len(tasks)),
		logger: logger,
	}
}

// Tasks returns the task set in configuration order.
func (e *Evaluator) Tasks() []*Task {
	return e.tasks
}

// Evaluate runs every task against the snapshot and returns the tasks whose
// predicate rose (fired) and fell (cleared). A task whose (source, field)
// is absent from the snapshot is skipped for this tick; missing data is
// not an error and leaves the edge state untouched.
func (e *Evaluator) Evaluate(snap sensor.Snapshot) (fired, cleared []*Task) {
	for _, t := range e.tasks {
		v, ok := snap.Value(t.Source, t.Field)
		if !ok {
			continue // no signal yet
		}

		match := t.Op.Compare(v, t.Value)
		prev := e.last[t.ID]
		switch {
		case match && !prev:
			e.logger.Info("task triggered", "task", t.ID, "name", t.Name,
				"source", t.Source, "field", t.Field, "value", v)
			fired = append(fired, t)
		case !match && prev:
			e.logger.Info("task cleared", "task", t.ID, "name", t.Name,
				"source", t.Source, "field", t.Field, "value", v)
			cleared = append(cleared, t)
		}
		e.last[t.ID] = match
	}
	return fired, cleared
}

// Matching reports whether the task's predicate held at its last
// evaluation.
func (e *Evaluator) Matching(id string) bool {
	return e.last[id]
}
