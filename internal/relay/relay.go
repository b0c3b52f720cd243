// Package relay defines the relay bank: static relay definitions, the
// immutable registry built from configuration, and the state machine that
// owns every runtime transition.
// State-machine logic has no external dependencies; time is always
// injectable via time.Time parameters.
package relay

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// State is the logical state of a relay output.
type State string

const (
	StateOff     State = "OFF"
	StateOn      State = "ON"
	StatePulsing State = "PULSING"
)

// Command is a relay command issued by the scheduler, a task action or an
// operator. PULSE is a command, not a resting state: it drives the inverse
// of the current state for the relay's pulse time and then reverts.
type Command string

const (
	CommandOn    Command = "ON"
	CommandOff   Command = "OFF"
	CommandPulse Command = "PULSE"
)

// ParseCommand converts an operator- or config-supplied string into a
// Command. Matching is case-insensitive.
func ParseCommand(s string) (Command, error) {
	switch Command(strings.ToUpper(s)) {
	case CommandOn:
		return CommandOn, nil
	case CommandOff:
		return CommandOff, nil
	case CommandPulse:
		return CommandPulse, nil
	default:
		return "", fmt.Errorf("unknown relay command %q", s)
	}
}

// Valid reports whether c is a recognized command.
func (c Command) Valid() bool {
	switch c {
	case CommandOn, CommandOff, CommandPulse:
		return true
	default:
		return false
	}
}

// TimeOfDay is a wall-clock time of day in the device-local timezone.
type TimeOfDay struct {
	Hour   int
	Minute int
}

var timeOfDayPattern = regexp.MustCompile(`^(\d{2}):(\d{2})$`)

// ParseTimeOfDay parses a strict two-digit "HH:MM" string. Single-digit
// hours and trailing characters are rejected.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	m := timeOfDayPattern.FindStringSubmatch(s)
	if m == nil {
		return TimeOfDay{}, fmt.Errorf("time must be HH:MM, got %q", s)
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("time out of range: %q", s)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// Minutes returns the time of day as minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// DayMask selects the weekdays a schedule is active. Bit 1 is Sunday
// through bit 7 Saturday; bit 0 is unused. This matches the mask values the
// DPM config format has always used (Sunday=2 ... Saturday=128, 254 = every
// day).
type DayMask uint8

const (
	Sunday    DayMask = 1 << 1
	Monday    DayMask = 1 << 2
	Tuesday   DayMask = 1 << 3
	Wednesday DayMask = 1 << 4
	Thursday  DayMask = 1 << 5
	Friday    DayMask = 1 << 6
	Saturday  DayMask = 1 << 7

	// EveryDay is the full mask, value 254.
	EveryDay = Sunday | Monday | Tuesday | Wednesday | Thursday | Friday | Saturday
)

var dayBits = []struct {
	name string
	bit  DayMask
}{
	{"Sunday", Sunday},
	{"Monday", Monday},
	{"Tuesday", Tuesday},
	{"Wednesday", Wednesday},
	{"Thursday", Thursday},
	{"Friday", Friday},
	{"Saturday", Saturday},
}

// Contains reports whether the mask selects the given weekday.
func (m DayMask) Contains(d time.Weekday) bool {
	return m&(1<<(uint(d)+1)) != 0
}

// Valid reports whether the mask uses only the seven day bits.
func (m DayMask) Valid() bool {
	return m&1 == 0
}

// Names returns the selected day names in week order, Sunday first.
func (m DayMask) Names() []string {
	var names []string
	for _, d := range dayBits {
		if m&d.bit != 0 {
			names = append(names, d.name)
		}
	}
	return names
}

func (m DayMask) String() string {
	if m == EveryDay {
		return "every day"
	}
	if m == 0 {
		return "no days"
	}
	return strings.Join(m.Names(), ",")
}

// DayMaskFromNames builds a mask from day names ("Monday", "friday", ...).
func DayMaskFromNames(names []string) (DayMask, error) {
	var m DayMask
	for _, n := range names {
		found := false
		for _, d := range dayBits {
			if strings.EqualFold(n, d.name) {
				m |= d.bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown day name %q", n)
		}
	}
	return m, nil
}

// Schedule is a daily ON window. A window whose On time is later than its
// Off time spans midnight; Days then selects the day the window starts.
type Schedule struct {
	On   TimeOfDay
	Off  TimeOfDay
	Days DayMask
}

// Relay is the static definition of one relay channel. Definitions are
// immutable after the registry is built; runtime state lives in the
// Machine.
type Relay struct {
	ID        string
	Name      string
	Enabled   bool
	PulseTime time.Duration
	Schedule  *Schedule // nil = purely manual/task-driven

	// Hardware binding, consumed only by the gpio driver.
	Pin            int
	NormallyClosed bool
}

// Validate checks definition invariants.
func (r *Relay) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("relay: empty id")
	}
	if r.PulseTime < time.Second {
		return fmt.Errorf("relay %s: pulse time %v below 1s", r.ID, r.PulseTime)
	}
	if r.Schedule != nil && !r.Schedule.Days.Valid() {
		return fmt.Errorf("relay %s: days mask %d uses reserved bit 0", r.ID, r.Schedule.Days)
	}
	return nil
}

// Transition records one committed state change, for telemetry and status.
type Transition struct {
	RelayID string
	From    State
	To      State
	At      time.Time
}
