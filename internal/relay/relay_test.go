package relay

import (
	"testing"
	"time"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		in   string
		want Command
		err  bool
	}{
		{"ON", CommandOn, false},
		{"on", CommandOn, false},
		{"Off", CommandOff, false},
		{"pulse", CommandPulse, false},
		{"PULSE", CommandPulse, false},
		{"toggle", "", true},
		{"", "", true},
	}
	for _, c := range cases {
		got, err := ParseCommand(c.in)
		if c.err {
			if err == nil {
				t.Errorf("ParseCommand(%q): expected error, got %v", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCommand(%q): unexpected error %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseCommand(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseTimeOfDay(t *testing.T) {
	got, err := ParseTimeOfDay("18:30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Hour != 18 || got.Minute != 30 {
		t.Errorf("expected 18:30, got %v", got)
	}
	if got.Minutes() != 18*60+30 {
		t.Errorf("expected 1110 minutes, got %d", got.Minutes())
	}

	// Exactly two digits on each side, nothing more.
	bad := []string{
		"24:00", "12:60", "-1:00", "noon", "1830",
		"8:00", "08:0", "08:00xyz", " 08:00", "08:00 ", "008:00",
	}
	for _, bad := range bad {
		if _, err := ParseTimeOfDay(bad); err == nil {
			t.Errorf("ParseTimeOfDay(%q): expected error", bad)
		}
	}
}

func TestDayMaskValues(t *testing.T) {
	// The config format's historical values: Sunday=2 through Saturday=128.
	if Sunday != 2 {
		t.Errorf("Sunday = %d, want 2", Sunday)
	}
	if Saturday != 128 {
		t.Errorf("Saturday = %d, want 128", Saturday)
	}
	if EveryDay != 254 {
		t.Errorf("EveryDay = %d, want 254", EveryDay)
	}
}

func TestDayMaskContains(t *testing.T) {
	m := Monday | Wednesday | Friday
	want := map[time.Weekday]bool{
		time.Sunday:    false,
		time.Monday:    true,
		time.Tuesday:   false,
		time.Wednesday: true,
		time.Thursday:  false,
		time.Friday:    true,
		time.Saturday:  false,
	}
	for d, expect := range want {
		if m.Contains(d) != expect {
			t.Errorf("mask %d Contains(%v) = %v, want %v", m, d, m.Contains(d), expect)
		}
	}

	for d := time.Sunday; d <= time.Saturday; d++ {
		if !EveryDay.Contains(d) {
			t.Errorf("EveryDay should contain %v", d)
		}
	}
}

func TestDayMaskValid(t *testing.T) {
	if !EveryDay.Valid() {
		t.Error("EveryDay should be valid")
	}
	if DayMask(255).Valid() {
		t.Error("mask with bit 0 set should be invalid")
	}
	if DayMask(1).Valid() {
		t.Error("mask 1 should be invalid")
	}
}

func TestDayMaskFromNames(t *testing.T) {
	m, err := DayMaskFromNames([]string{"monday", "Friday"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != Monday|Friday {
		t.Errorf("expected %d, got %d", Monday|Friday, m)
	}

	if _, err := DayMaskFromNames([]string{"Funday"}); err == nil {
		t.Error("expected error for unknown day name")
	}
}

func TestRelayValidate(t *testing.T) {
	r := &Relay{ID: "relay_1", PulseTime: 5 * time.Second}
	if err := r.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	r = &Relay{ID: "", PulseTime: 5 * time.Second}
	if err := r.Validate(); err == nil {
		t.Error("expected error for empty id")
	}

	r = &Relay{ID: "relay_1", PulseTime: 500 * time.Millisecond}
	if err := r.Validate(); err == nil {
		t.Error("expected error for pulse time below 1s")
	}

	r = &Relay{ID: "relay_1", PulseTime: 5 * time.Second,
		Schedule: &Schedule{Days: DayMask(255)}}
	if err := r.Validate(); err == nil {
		t.Error("expected error for days mask with bit 0")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	relays := []*Relay{
		{ID: "relay_1", PulseTime: 5 * time.Second},
		{ID: "relay_1", PulseTime: 5 * time.Second},
	}
	if _, err := NewRegistry(relays); err == nil {
		t.Error("expected error for duplicate relay id")
	}
}

func TestRegistryOrderAndLookup(t *testing.T) {
	relays := []*Relay{
		{ID: "relay_2", PulseTime: 5 * time.Second},
		{ID: "relay_1", PulseTime: 5 * time.Second},
	}
	reg, err := NewRegistry(relays)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reg.Len() != 2 {
		t.Fatalf("expected 2 relays, got %d", reg.Len())
	}
	all := reg.All()
	if all[0].ID != "relay_2" || all[1].ID != "relay_1" {
		t.Error("All() should preserve configuration order")
	}
	if _, ok := reg.Get("relay_1"); !ok {
		t.Error("Get(relay_1) should succeed")
	}
	if _, ok := reg.Get("relay_9"); ok {
		t.Error("Get(relay_9) should fail")
	}
}
