package internal

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValorenceCLE/dpm-controller/internal/config"
	"github.com/ValorenceCLE/dpm-controller/internal/gpio"
	"github.com/ValorenceCLE/dpm-controller/internal/mqtt"
	"github.com/ValorenceCLE/dpm-controller/internal/relay"
	"github.com/ValorenceCLE/dpm-controller/internal/schedule"
	"github.com/ValorenceCLE/dpm-controller/internal/sensor"
	"github.com/ValorenceCLE/dpm-controller/internal/task"
)

const siteConfig = `
general:
  system_name: Pole 12
  system_id: dpm-pole-12
relays:
  - id: router
    name: Router
    pin: 17
    pulse_time: 10
    schedule:
      on_time: "06:00"
      off_time: "22:00"
      days_mask: 254
  - id: camera
    name: Camera
    pin: 27
    schedule: false
tasks:
  low_voltage:
    name: Low Voltage
    source: router
    field: volts
    operator: "<"
    value: 10.5
    actions:
      - type: io
        target: camera
        state: "off"
  voltage_bounce:
    name: Voltage Bounce
    source: router
    field: volts
    operator: ">"
    value: 11.5
    actions:
      - type: io
        target: camera
        state: "on"
`

// TestIntegrationScheduleAndTasks drives the whole engine composition
// (config -> registry/tasks -> schedule engine, evaluator, dispatcher,
// state machine) over a simulated day using fakes.
func TestIntegrationScheduleAndTasks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(siteConfig), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	reg, tasks, err := cfg.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	driver := gpio.NewFakeDriver()
	machine := relay.NewMachine(driver)
	publisher := mqtt.NewFakePublisher()
	engine := schedule.NewEngine(machine, logger)
	evaluator := task.NewEvaluator(tasks, logger)
	dispatcher := task.NewDispatcher(reg, machine, tasks, nil, logger)

	// One tick of the control cycle, with publishing.
	tick := func(now time.Time, snap sensor.Snapshot) {
		t.Helper()
		res := engine.Apply(reg, now)
		for _, tr := range res.Transitions {
			publisher.PublishTransition(tr)
		}
		fired, cleared := evaluator.Evaluate(snap)
		disp := dispatcher.Dispatch(fired, now)
		for _, tr := range disp.Transitions {
			publisher.PublishTransition(tr)
		}
		for _, ft := range fired {
			v, _ := snap.Value(ft.Source, ft.Field)
			publisher.PublishAlert(mqtt.AlertEvent{
				Timestamp: now, TaskID: ft.ID, Kind: mqtt.AlertStart,
				Value: v, Threshold: ft.Value,
			})
		}
		for _, ct := range cleared {
			publisher.PublishAlert(mqtt.AlertEvent{
				Timestamp: now, TaskID: ct.ID, Kind: mqtt.AlertClear,
			})
		}
		for _, r := range reg.All() {
			if tr, err := machine.Tick(r, now); err == nil && tr != nil {
				publisher.PublishTransition(*tr)
			}
		}
	}

	healthy := sensor.Snapshot{"router": sensor.Fields{"volts": 12.4}}
	sagging := sensor.Snapshot{"router": sensor.Fields{"volts": 9.8}}

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // a Monday

	// 05:00, before the window: router off, camera off, healthy battery
	// turns the camera on via the bounce task's rising edge.
	tick(day.Add(5*time.Hour), healthy)
	if machine.State("router") != relay.StateOff {
		t.Fatalf("05:00 router = %v, want OFF", machine.State("router"))
	}
	if machine.State("camera") != relay.StateOn {
		t.Fatalf("05:00 camera = %v, want ON (bounce task)", machine.State("camera"))
	}

	// 06:00: schedule edge turns the router on.
	tick(day.Add(6*time.Hour), healthy)
	if machine.State("router") != relay.StateOn {
		t.Fatalf("06:00 router = %v, want ON", machine.State("router"))
	}

	// 09:00: battery sags. Low-voltage task fires and sheds the camera;
	// the bounce task clears.
	tick(day.Add(9*time.Hour), sagging)
	if machine.State("camera") != relay.StateOff {
		t.Fatalf("09:00 camera = %v, want OFF (load shed)", machine.State("camera"))
	}

	// 09:01: still sagging. No re-fire, nothing changes.
	before := len(publisher.Transitions)
	tick(day.Add(9*time.Hour+time.Minute), sagging)
	if len(publisher.Transitions) != before {
		t.Fatalf("09:01 produced transitions: %+v", publisher.Transitions[before:])
	}

	// 10:00: battery recovers. Low-voltage clears, bounce re-fires and
	// restores the camera.
	tick(day.Add(10*time.Hour), healthy)
	if machine.State("camera") != relay.StateOn {
		t.Fatalf("10:00 camera = %v, want ON (restored)", machine.State("camera"))
	}

	// 22:00: window closes, router goes off. The camera is unscheduled
	// and keeps its state.
	tick(day.Add(22*time.Hour), healthy)
	if machine.State("router") != relay.StateOff {
		t.Fatalf("22:00 router = %v, want OFF", machine.State("router"))
	}
	if machine.State("camera") != relay.StateOn {
		t.Fatalf("22:00 camera = %v, want ON", machine.State("camera"))
	}

	// Telemetry kinds line up with the story: 2 starts for each task's
	// first fire plus the bounce re-fire, 2 clears.
	var starts, clears int
	for _, a := range publisher.Alerts {
		switch a.Kind {
		case mqtt.AlertStart:
			starts++
		case mqtt.AlertClear:
			clears++
		}
	}
	if starts != 3 || clears != 2 {
		t.Errorf("alerts: %d starts / %d clears, want 3/2", starts, clears)
	}

	// Every logical transition reached the hardware fake.
	if driver.WriteCount() == 0 {
		t.Error("no physical writes recorded")
	}
}

// TestIntegrationPulseLifecycle covers a pulse issued by a task action,
// including deadline extension on re-fire.
func TestIntegrationPulseLifecycle(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	modem := &relay.Relay{ID: "modem", Enabled: true, PulseTime: 5 * time.Second}
	reg, err := relay.NewRegistry([]*relay.Relay{modem})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	reset := &task.Task{
		ID: "modem_reset", Name: "Modem Reset", Source: "cell", Field: "sinr",
		Op: task.OpLess, Value: -12,
		Actions: []task.Action{{Type: task.ActionIO, Target: "modem", Command: relay.CommandPulse}},
	}

	driver := gpio.NewFakeDriver()
	machine := relay.NewMachine(driver)
	evaluator := task.NewEvaluator([]*task.Task{reset}, logger)
	dispatcher := task.NewDispatcher(reg, machine, []*task.Task{reset}, nil, logger)

	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	bad := sensor.Snapshot{"cell": sensor.Fields{"sinr": -15}}
	good := sensor.Snapshot{"cell": sensor.Fields{"sinr": 4}}

	// SINR drops: pulse the modem (the relay is resting OFF, the pulse
	// drives it ON).
	fired, _ := evaluator.Evaluate(bad)
	dispatcher.Dispatch(fired, now)
	if machine.State("modem") != relay.StatePulsing {
		t.Fatalf("modem = %v, want PULSING", machine.State("modem"))
	}
	if !driver.On("modem") {
		t.Error("pulse from OFF should drive the line high")
	}

	// The pulse expires and the modem returns to rest.
	if _, err := machine.Tick(modem, now.Add(6*time.Second)); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if machine.State("modem") != relay.StateOff {
		t.Fatalf("modem = %v, want OFF after pulse", machine.State("modem"))
	}
	if driver.On("modem") {
		t.Error("line should be low after the pulse returns")
	}

	// Signal recovers and drops again: the task re-fires and pulses again.
	evaluator.Evaluate(good)
	fired, _ = evaluator.Evaluate(bad)
	if len(fired) != 1 {
		t.Fatalf("expected re-fire, got %d", len(fired))
	}
	dispatcher.Dispatch(fired, now.Add(time.Minute))
	if machine.State("modem") != relay.StatePulsing {
		t.Errorf("modem = %v, want PULSING again", machine.State("modem"))
	}
}
