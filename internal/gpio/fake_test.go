package gpio

import (
	"errors"
	"testing"

	"github.com/ValorenceCLE/dpm-controller/internal/relay"
)

func TestFakeDriverRecordsWrites(t *testing.T) {
	f := NewFakeDriver()

	if err := f.Apply("relay_1", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Apply("relay_1", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Apply("relay_2", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	writes := f.Writes()
	if len(writes) != 3 {
		t.Fatalf("expected 3 writes, got %d", len(writes))
	}
	if writes[0] != (Write{RelayID: "relay_1", On: true}) {
		t.Errorf("unexpected first write: %+v", writes[0])
	}
	if f.On("relay_1") {
		t.Error("relay_1 last level should be off")
	}
	if !f.On("relay_2") {
		t.Error("relay_2 last level should be on")
	}
	if f.WriteCount() != 3 {
		t.Errorf("WriteCount = %d, want 3", f.WriteCount())
	}
}

func TestFakeDriverScriptedFailures(t *testing.T) {
	f := NewFakeDriver()
	f.FailFor["relay_1"] = errors.New("stuck contact")

	if err := f.Apply("relay_1", true); err == nil {
		t.Error("expected scripted failure for relay_1")
	}
	if err := f.Apply("relay_2", true); err != nil {
		t.Errorf("relay_2 should succeed: %v", err)
	}
	if f.WriteCount() != 1 {
		t.Errorf("failed apply must not be recorded, count = %d", f.WriteCount())
	}

	f.ApplyError = errors.New("bus gone")
	if err := f.Apply("relay_2", false); err == nil {
		t.Error("expected global failure")
	}
}

func TestFakeDriverRecordsReconfigures(t *testing.T) {
	f := NewFakeDriver()

	set := []*relay.Relay{{ID: "relay_1", Pin: 17}}
	if err := f.Reconfigure(set); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	recs := f.Reconfigures()
	if len(recs) != 1 || len(recs[0]) != 1 || recs[0][0].ID != "relay_1" {
		t.Errorf("unexpected reconfigure record: %+v", recs)
	}

	f.ReconfigureError = errors.New("line busy")
	if err := f.Reconfigure(set); err == nil {
		t.Error("expected scripted failure")
	}
	if len(f.Reconfigures()) != 1 {
		t.Error("failed reconfigure must not be recorded")
	}
}

func TestFakeDriverReset(t *testing.T) {
	f := NewFakeDriver()
	f.Apply("relay_1", true)
	f.ApplyError = errors.New("x")
	f.Reconfigure([]*relay.Relay{{ID: "relay_1", Pin: 17}})
	f.Close()

	f.Reset()
	if f.WriteCount() != 0 || f.ApplyError != nil || f.Closed {
		t.Error("Reset did not clear state")
	}
	if f.On("relay_1") {
		t.Error("Reset did not clear levels")
	}
	if len(f.Reconfigures()) != 0 {
		t.Error("Reset did not clear reconfigures")
	}
}
