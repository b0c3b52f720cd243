// Package config loads and validates the controller's YAML configuration.
// A configuration file is one atomic unit: any inconsistency (unknown
// action target, malformed time, bad operator) rejects the whole file.
package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ValorenceCLE/dpm-controller/internal/relay"
	"github.com/ValorenceCLE/dpm-controller/internal/task"
)

// Config is the top-level configuration file.
type Config struct {
	General GeneralConfig         `yaml:"general"`
	Control ControlConfig         `yaml:"control"`
	Log     LogConfig             `yaml:"log"`
	MQTT    MQTTConfig            `yaml:"mqtt"`
	HTTP    HTTPConfig            `yaml:"http"`
	Relays  []RelayConfig         `yaml:"relays"`
	Tasks   map[string]TaskConfig `yaml:"tasks"`
}

// GeneralConfig identifies the device.
type GeneralConfig struct {
	SystemName string `yaml:"system_name"`
	SystemID   string `yaml:"system_id"`
}

// ControlConfig tunes the control loop.
type ControlConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
}

// LogConfig selects log level and format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MQTTConfig points at the telemetry broker.
type MQTTConfig struct {
	Broker        string `yaml:"broker"`
	ReadingsTopic string `yaml:"readings_topic"`
}

// HTTPConfig configures the status server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// RelayConfig defines one relay channel.
type RelayConfig struct {
	ID        string         `yaml:"id"`
	Name      string         `yaml:"name"`
	Enabled   *bool          `yaml:"enabled"` // default true
	PulseTime int            `yaml:"pulse_time"`
	Schedule  ScheduleConfig `yaml:"schedule"`
	Pin       int            `yaml:"pin"`
	Normally  string         `yaml:"normally"` // "open" (default) or "closed"
}

// ScheduleConfig accepts either a mapping or the literal false; older DPM
// configs used `schedule: false` for manual-only relays.
type ScheduleConfig struct {
	Enabled  bool     `yaml:"enabled"`
	OnTime   string   `yaml:"on_time"`
	OffTime  string   `yaml:"off_time"`
	DaysMask int      `yaml:"days_mask"`
	Days     []string `yaml:"days"` // alternative to days_mask
}

// UnmarshalYAML handles the bool-or-mapping shape.
func (s *ScheduleConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!bool" {
		var enabled bool
		if err := node.Decode(&enabled); err != nil {
			return err
		}
		*s = ScheduleConfig{Enabled: enabled}
		if enabled {
			return fmt.Errorf("schedule: true is not a schedule; give on_time/off_time")
		}
		return nil
	}

	// A mapping is enabled unless it says otherwise.
	type plain struct {
		Enabled  *bool    `yaml:"enabled"`
		OnTime   string   `yaml:"on_time"`
		OffTime  string   `yaml:"off_time"`
		DaysMask int      `yaml:"days_mask"`
		Days     []string `yaml:"days"`
	}
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*s = ScheduleConfig{
		Enabled:  p.Enabled == nil || *p.Enabled,
		OnTime:   p.OnTime,
		OffTime:  p.OffTime,
		DaysMask: p.DaysMask,
		Days:     p.Days,
	}
	return nil
}

// TaskConfig defines one data-driven rule. The map key in Config.Tasks is
// the task's identity.
type TaskConfig struct {
	Name     string         `yaml:"name"`
	Source   string         `yaml:"source"`
	Field    string         `yaml:"field"`
	Operator string         `yaml:"operator"`
	Value    float64        `yaml:"value"`
	Actions  []ActionConfig `yaml:"actions"`
}

// ActionConfig defines one action of a task.
type ActionConfig struct {
	Type    string `yaml:"type"`
	Target  string `yaml:"target"`
	State   string `yaml:"state"`
	Message string `yaml:"message"`
}

// Load reads, expands and parses the configuration file, then applies
// defaults. Validation happens in Build.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Control.TickInterval == 0 {
		c.Control.TickInterval = time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.MQTT.ReadingsTopic == "" {
		c.MQTT.ReadingsTopic = "dpm/readings"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":80"
	}
	for i := range c.Relays {
		if c.Relays[i].PulseTime == 0 {
			c.Relays[i].PulseTime = 5
		}
		if c.Relays[i].Normally == "" {
			c.Relays[i].Normally = "open"
		}
	}
}

// Build validates the configuration and constructs the relay registry and
// task set. Any inconsistency rejects the whole unit.
func (c *Config) Build() (*relay.Registry, []*task.Task, error) {
	relays := make([]*relay.Relay, 0, len(c.Relays))
	for _, rc := range c.Relays {
		r, err := rc.build()
		if err != nil {
			return nil, nil, err
		}
		relays = append(relays, r)
	}

	reg, err := relay.NewRegistry(relays)
	if err != nil {
		return nil, nil, err
	}

	// Map iteration order is not stable; tasks run in key order.
	keys := make([]string, 0, len(c.Tasks))
	for k := range c.Tasks {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tasks := make([]*task.Task, 0, len(keys))
	for _, k := range keys {
		t, err := c.Tasks[k].build(k, reg)
		if err != nil {
			return nil, nil, err
		}
		tasks = append(tasks, t)
	}

	return reg, tasks, nil
}

func (rc RelayConfig) build() (*relay.Relay, error) {
	if rc.ID == "" {
		return nil, fmt.Errorf("relay: missing id")
	}
	if rc.PulseTime < 1 {
		return nil, fmt.Errorf("relay %s: pulse_time must be >= 1, got %d", rc.ID, rc.PulseTime)
	}

	var closed bool
	switch rc.Normally {
	case "open":
	case "closed":
		closed = true
	default:
		return nil, fmt.Errorf("relay %s: normally must be open or closed, got %q", rc.ID, rc.Normally)
	}

	r := &relay.Relay{
		ID:             rc.ID,
		Name:           rc.Name,
		Enabled:        rc.Enabled == nil || *rc.Enabled,
		PulseTime:      time.Duration(rc.PulseTime) * time.Second,
		Pin:            rc.Pin,
		NormallyClosed: closed,
	}

	if rc.Schedule.Enabled {
		sched, err := rc.Schedule.build()
		if err != nil {
			return nil, fmt.Errorf("relay %s: %w", rc.ID, err)
		}
		r.Schedule = sched
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (sc ScheduleConfig) build() (*relay.Schedule, error) {
	on, err := relay.ParseTimeOfDay(sc.OnTime)
	if err != nil {
		return nil, fmt.Errorf("schedule on_time: %w", err)
	}
	off, err := relay.ParseTimeOfDay(sc.OffTime)
	if err != nil {
		return nil, fmt.Errorf("schedule off_time: %w", err)
	}

	var days relay.DayMask
	switch {
	case len(sc.Days) > 0:
		days, err = relay.DayMaskFromNames(sc.Days)
		if err != nil {
			return nil, fmt.Errorf("schedule days: %w", err)
		}
	default:
		if sc.DaysMask < 0 || sc.DaysMask > int(relay.EveryDay) {
			return nil, fmt.Errorf("schedule days_mask %d out of range [0, %d]", sc.DaysMask, relay.EveryDay)
		}
		days = relay.DayMask(sc.DaysMask)
		if !days.Valid() {
			return nil, fmt.Errorf("schedule days_mask %d uses reserved bit 0", sc.DaysMask)
		}
	}

	return &relay.Schedule{On: on, Off: off, Days: days}, nil
}

func (tc TaskConfig) build(id string, reg *relay.Registry) (*task.Task, error) {
	actions := make([]task.Action, 0, len(tc.Actions))
	for _, ac := range tc.Actions {
		a := task.Action{
			Type:    task.ActionType(ac.Type),
			Target:  ac.Target,
			Message: ac.Message,
		}
		if a.Type == task.ActionIO {
			cmd, err := relay.ParseCommand(ac.State)
			if err != nil {
				return nil, fmt.Errorf("task %s: %w", id, err)
			}
			a.Command = cmd
			if _, ok := reg.Get(ac.Target); !ok {
				return nil, fmt.Errorf("task %s: action targets unknown relay %q", id, ac.Target)
			}
		}
		actions = append(actions, a)
	}

	t := &task.Task{
		ID:      id,
		Name:    tc.Name,
		Source:  tc.Source,
		Field:   tc.Field,
		Op:      task.Operator(tc.Operator),
		Value:   tc.Value,
		Actions: actions,
	}
	if t.Name == "" {
		t.Name = id
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}
