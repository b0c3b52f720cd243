package status

import (
	"encoding/json"
	"time"
)

type eventPayload struct {
	System struct {
		Timestamp string `json:"timestamp"`
		Event     string `json:"event"`
		Reason    string `json:"reason,omitempty"`
		Uptime    int64  `json:"uptime_s"`
		Name      string `json:"system_name,omitempty"`
		ID        string `json:"system_id,omitempty"`
	} `json:"system"`
	Relays []relayJSON `json:"relays"`
	Counts countsJSON  `json:"counts"`
}

type relayJSON struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Enabled bool   `json:"enabled"`
	State   string `json:"state"`
}

type countsJSON struct {
	Ticks            int64 `json:"ticks"`
	Transitions      int64 `json:"transitions"`
	TaskFires        int64 `json:"task_fires"`
	TaskClears       int64 `json:"task_clears"`
	ApplyFailures    int64 `json:"apply_failures"`
	CyclicSuppressed int64 `json:"cyclic_suppressed"`
}

// FormatStatusEvent renders a full status snapshot as the payload of a
// system lifecycle event (STARTUP, SHUTDOWN, RELOAD, ...).
func FormatStatusEvent(s Snapshot, event, reason string) []byte {
	var p eventPayload
	p.System.Timestamp = s.Now.UTC().Format(time.RFC3339)
	p.System.Event = event
	p.System.Reason = reason
	p.System.Uptime = int64(s.Uptime().Seconds())
	p.System.Name = s.Config.SystemName
	p.System.ID = s.Config.SystemID

	p.Relays = make([]relayJSON, 0, len(s.Relays))
	for _, r := range s.Relays {
		p.Relays = append(p.Relays, relayJSON{
			ID:      r.ID,
			Name:    r.Name,
			Enabled: r.Enabled,
			State:   string(r.State),
		})
	}
	p.Counts = countsJSON{
		Ticks:            s.Counts.Ticks,
		Transitions:      s.Counts.Transitions,
		TaskFires:        s.Counts.TaskFires,
		TaskClears:       s.Counts.TaskClears,
		ApplyFailures:    s.Counts.ApplyFailures,
		CyclicSuppressed: s.Counts.CyclicSuppressed,
	}

	b, err := json.Marshal(p)
	if err != nil {
		// Snapshot contains only marshalable values.
		return []byte(`{}`)
	}
	return b
}
