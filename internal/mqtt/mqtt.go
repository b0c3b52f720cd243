// Package mqtt publishes controller telemetry with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/ValorenceCLE/dpm-controller/internal/relay"
)

// Topics for controller telemetry.
const (
	TopicTransitions = "dpm/relays/transitions"
	TopicAlerts      = "dpm/tasks/alerts"
	TopicSystem      = "dpm/system"
)

// Publisher publishes controller telemetry. All publishing is
// fire-and-forget from the engine's point of view: a returned error is
// logged, never propagated into the control loop.
type Publisher interface {
	// PublishTransition sends a committed relay transition.
	PublishTransition(tr relay.Transition) error

	// PublishAlert sends a task alert start or clear.
	PublishAlert(ev AlertEvent) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(ev SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the broker connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Alert kinds.
const (
	AlertStart = "alert_start"
	AlertClear = "alert_clear"
)

// AlertEvent is a task predicate edge: Kind is alert_start on false->true
// and alert_clear on true->false.
type AlertEvent struct {
	Timestamp time.Time
	TaskID    string
	TaskName  string
	Kind      string
	Source    string
	Field     string
	Value     float64
	Threshold float64
}

// SystemEvent is a controller lifecycle event (STARTUP, SHUTDOWN, RELOAD).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string
	RawPayload []byte // pre-formatted JSON; if set, FormatSystemPayload returns it directly
	Retained   bool
}

type transitionPayload struct {
	Relay struct {
		Timestamp string `json:"timestamp"`
		ID        string `json:"id"`
		From      string `json:"from"`
		To        string `json:"to"`
	} `json:"relay"`
}

// FormatTransitionPayload creates the JSON payload for a relay transition.
func FormatTransitionPayload(tr relay.Transition) ([]byte, error) {
	var p transitionPayload
	p.Relay.Timestamp = tr.At.UTC().Format(time.RFC3339)
	p.Relay.ID = tr.RelayID
	p.Relay.From = string(tr.From)
	p.Relay.To = string(tr.To)
	return json.Marshal(p)
}

type alertPayload struct {
	Alert struct {
		Timestamp string  `json:"timestamp"`
		Task      string  `json:"task"`
		Name      string  `json:"name"`
		Kind      string  `json:"kind"`
		Source    string  `json:"source"`
		Field     string  `json:"field"`
		Value     float64 `json:"value"`
		Threshold float64 `json:"threshold"`
	} `json:"alert"`
}

// FormatAlertPayload creates the JSON payload for a task alert.
func FormatAlertPayload(ev AlertEvent) ([]byte, error) {
	var p alertPayload
	p.Alert.Timestamp = ev.Timestamp.UTC().Format(time.RFC3339)
	p.Alert.Task = ev.TaskID
	p.Alert.Name = ev.TaskName
	p.Alert.Kind = ev.Kind
	p.Alert.Source = ev.Source
	p.Alert.Field = ev.Field
	p.Alert.Value = ev.Value
	p.Alert.Threshold = ev.Threshold
	return json.Marshal(p)
}

type systemPayload struct {
	System struct {
		Timestamp string `json:"timestamp"`
		Event     string `json:"event"`
		Reason    string `json:"reason,omitempty"`
	} `json:"system"`
}

// FormatSystemPayload creates the JSON payload for a system event. If
// RawPayload is set it is returned directly (used for full status
// snapshots).
func FormatSystemPayload(ev SystemEvent) ([]byte, error) {
	if ev.RawPayload != nil {
		return ev.RawPayload, nil
	}
	var p systemPayload
	p.System.Timestamp = ev.Timestamp.UTC().Format(time.RFC3339)
	p.System.Event = ev.Event
	p.System.Reason = ev.Reason
	return json.Marshal(p)
}
