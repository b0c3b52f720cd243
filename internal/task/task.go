// Package task evaluates data-driven rules against the tick's sensor
// snapshot and dispatches the actions of rules that fire.
package task

import (
	"fmt"

	"github.com/ValorenceCLE/dpm-controller/internal/relay"
)

// Operator compares a sampled value against a task's threshold.
type Operator string

const (
	OpGreater        Operator = ">"
	OpLess           Operator = "<"
	OpGreaterOrEqual Operator = ">="
	OpLessOrEqual    Operator = "<="
	OpEqual          Operator = "=="
	OpNotEqual       Operator = "!="
)

// Valid reports whether the operator is supported.
func (o Operator) Valid() bool {
	switch o {
	case OpGreater, OpLess, OpGreaterOrEqual, OpLessOrEqual, OpEqual, OpNotEqual:
		return true
	default:
		return false
	}
}

// Compare applies the operator to (value, threshold).
func (o Operator) Compare(value, threshold float64) bool {
	switch o {
	case OpGreater:
		return value > threshold
	case OpLess:
		return value < threshold
	case OpGreaterOrEqual:
		return value >= threshold
	case OpLessOrEqual:
		return value <= threshold
	case OpEqual:
		return value == threshold
	case OpNotEqual:
		return value != threshold
	default:
		return false
	}
}

// validFields are the readings the DPM's sensor daemons publish.
var validFields = map[string]bool{
	"volts":       true,
	"amps":        true,
	"watts":       true,
	"temperature": true,
	"humidity":    true,
	"sinr":        true,
	"rsrp":        true,
	"rsrq":        true,
}

// ValidField reports whether name is a recognized sensor field.
func ValidField(name string) bool {
	return validFields[name]
}

// ActionType discriminates the Action variant.
type ActionType string

const (
	ActionIO     ActionType = "io"     // drive a relay
	ActionLog    ActionType = "log"    // emit a log line
	ActionReboot ActionType = "reboot" // reboot the board
)

// Action is a tagged variant: Type selects which payload fields apply.
// io uses Target and Command; log uses Message; reboot has no payload.
// Actions are immutable, defined at configuration time.
type Action struct {
	Type    ActionType
	Target  string
	Command relay.Command
	Message string
}

// Validate checks the variant's payload shape. Target existence is checked
// against the registry at configuration build time.
func (a Action) Validate() error {
	switch a.Type {
	case ActionIO:
		if a.Target == "" {
			return fmt.Errorf("io action: missing target")
		}
		if !a.Command.Valid() {
			return fmt.Errorf("io action: invalid command %q", a.Command)
		}
	case ActionLog:
		if a.Message == "" {
			return fmt.Errorf("log action: missing message")
		}
	case ActionReboot:
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	return nil
}

// Task is one data-driven rule: compare Field of Source against Value and
// run Actions on the false->true edge. Definitions are immutable for the
// process lifetime; evaluation state lives in the Evaluator.
type Task struct {
	ID      string
	Name    string
	Source  string
	Field   string
	Op      Operator
	Value   float64
	Actions []Action
}

// Validate checks definition invariants.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task: empty id")
	}
	if t.Source == "" {
		return fmt.Errorf("task %s: empty source", t.ID)
	}
	if !ValidField(t.Field) {
		return fmt.Errorf("task %s: invalid field %q", t.ID, t.Field)
	}
	if !t.Op.Valid() {
		return fmt.Errorf("task %s: invalid operator %q", t.ID, t.Op)
	}
	for _, a := range t.Actions {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("task %s: %w", t.ID, err)
		}
	}
	return nil
}
