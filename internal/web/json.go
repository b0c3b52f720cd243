package web

import (
	"encoding/json"
	"time"

	"github.com/ValorenceCLE/dpm-controller/internal/relay"
	"github.com/ValorenceCLE/dpm-controller/internal/status"
)

// StatusJSON is the JSON representation of the daemon status.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Relays        []RelayJSON `json:"relays"`
	Tasks         []TaskJSON  `json:"tasks"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	StartTime     string      `json:"start_time"`
	Timestamp     string      `json:"timestamp"`
	MQTT          MQTTStatus  `json:"mqtt"`
	Counts        CountsJSON  `json:"counts"`
	Config        ConfigJSON  `json:"config"`
}

// RelayJSON is the JSON representation of one relay.
type RelayJSON struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Enabled       bool   `json:"enabled"`
	Scheduled     bool   `json:"scheduled"`
	State         string `json:"state"`
	PulseDeadline string `json:"pulse_deadline,omitempty"`
}

// TaskJSON is the JSON representation of one task.
type TaskJSON struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Source   string  `json:"source"`
	Field    string  `json:"field"`
	Op       string  `json:"op"`
	Value    float64 `json:"value"`
	Matching bool    `json:"matching"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of engine activity counts.
type CountsJSON struct {
	Ticks            int64 `json:"ticks"`
	Transitions      int64 `json:"transitions"`
	TaskFires        int64 `json:"task_fires"`
	TaskClears       int64 `json:"task_clears"`
	ApplyFailures    int64 `json:"apply_failures"`
	CyclicSuppressed int64 `json:"cyclic_suppressed"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	SystemName string `json:"system_name"`
	SystemID   string `json:"system_id"`
	TickMs     int64  `json:"tick_ms"`
	Broker     string `json:"broker"`
	HTTPAddr   string `json:"http_addr"`
	ConfigPath string `json:"config_path"`
}

func formatJSON(snap status.Snapshot) []byte {
	relays := make([]RelayJSON, 0, len(snap.Relays))
	for _, r := range snap.Relays {
		rj := RelayJSON{
			ID:        r.ID,
			Name:      r.Name,
			Enabled:   r.Enabled,
			Scheduled: r.Scheduled,
			State:     string(r.State),
		}
		if !r.PulseDeadline.IsZero() {
			rj.PulseDeadline = r.PulseDeadline.UTC().Format(time.RFC3339)
		}
		relays = append(relays, rj)
	}

	tasks := make([]TaskJSON, 0, len(snap.Tasks))
	for _, t := range snap.Tasks {
		tasks = append(tasks, TaskJSON{
			ID:       t.ID,
			Name:     t.Name,
			Source:   t.Source,
			Field:    t.Field,
			Op:       t.Op,
			Value:    t.Value,
			Matching: t.Matching,
		})
	}

	sj := StatusJSON{
		Status: StatusInner{
			Relays:        relays,
			Tasks:         tasks,
			UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
			StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
			Timestamp:     snap.Now.UTC().Format(time.RFC3339),
			MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
			Counts: CountsJSON{
				Ticks:            snap.Counts.Ticks,
				Transitions:      snap.Counts.Transitions,
				TaskFires:        snap.Counts.TaskFires,
				TaskClears:       snap.Counts.TaskClears,
				ApplyFailures:    snap.Counts.ApplyFailures,
				CyclicSuppressed: snap.Counts.CyclicSuppressed,
			},
			Config: ConfigJSON{
				SystemName: snap.Config.SystemName,
				SystemID:   snap.Config.SystemID,
				TickMs:     snap.Config.TickMs,
				Broker:     snap.Config.Broker,
				HTTPAddr:   snap.Config.HTTPAddr,
				ConfigPath: snap.Config.ConfigPath,
			},
		},
	}

	data, _ := json.MarshalIndent(sj, "", "  ")
	return data
}

// CommandResult is the JSON body returned by a successful operator command.
type CommandResult struct {
	Relay   string `json:"relay"`
	Command string `json:"command"`
	Result  string `json:"result"`
}

func formatCommandResult(relayID string, cmd relay.Command) []byte {
	data, _ := json.Marshal(CommandResult{
		Relay:   relayID,
		Command: string(cmd),
		Result:  "applied",
	})
	return data
}
