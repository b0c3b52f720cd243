package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ValorenceCLE/dpm-controller/internal/control"
	"github.com/ValorenceCLE/dpm-controller/internal/relay"
	"github.com/ValorenceCLE/dpm-controller/internal/status"
)

// fakeCommander records operator commands and returns a scripted error.
type fakeCommander struct {
	relayIDs []string
	commands []relay.Command
	err      error
}

func (f *fakeCommander) Command(ctx context.Context, relayID string, cmd relay.Command) error {
	f.relayIDs = append(f.relayIDs, relayID)
	f.commands = append(f.commands, cmd)
	return f.err
}

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker, *fakeCommander) {
	t.Helper()
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		SystemName: "Test Site",
		SystemID:   "dpm-test",
		TickMs:     1000,
		Broker:     "tcp://localhost:1883",
		HTTPAddr:   ":80",
	}
	tr := status.NewTracker(start, cfg)
	fc := &fakeCommander{}
	srv := New(":0", tr, fc)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, tr, fc
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr, _ := newTestServer(t)
	tr.UpdateRelays([]status.RelayStatus{
		{ID: "relay_1", Name: "Router", Enabled: true, State: relay.StateOn},
	})
	tr.UpdateTasks([]status.TaskStatus{
		{ID: "low_voltage", Source: "relay_1", Field: "volts", Op: "<", Value: 5, Matching: true},
	})
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sj.Status.Relays) != 1 || sj.Status.Relays[0].State != "ON" {
		t.Errorf("relays = %+v", sj.Status.Relays)
	}
	if len(sj.Status.Tasks) != 1 || !sj.Status.Tasks[0].Matching {
		t.Errorf("tasks = %+v", sj.Status.Tasks)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT connected")
	}
	if sj.Status.Config.SystemID != "dpm-test" {
		t.Errorf("config = %+v", sj.Status.Config)
	}
}

func TestIndexPage(t *testing.T) {
	ts, tr, _ := newTestServer(t)
	tr.UpdateRelays([]status.RelayStatus{
		{ID: "relay_1", Name: "Router", Enabled: true, State: relay.StatePulsing,
			PulseDeadline: time.Date(2026, 3, 2, 12, 0, 5, 0, time.UTC)},
	})

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	html := string(body)
	if !strings.Contains(html, "Test Site") {
		t.Error("page should carry the system name")
	}
	if !strings.Contains(html, "PULSING") {
		t.Error("page should show the relay state")
	}
	if !strings.Contains(html, "Router") {
		t.Error("page should show the relay name")
	}
}

func TestIndexUnknownPathIs404(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatalf("GET /nope: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestCommandEndpoint(t *testing.T) {
	ts, _, fc := newTestServer(t)

	resp, err := http.Post(ts.URL+"/relays/relay_1/pulse", "", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	var cr CommandResult
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cr.Relay != "relay_1" || cr.Command != "PULSE" || cr.Result != "applied" {
		t.Errorf("result = %+v", cr)
	}
	if len(fc.relayIDs) != 1 || fc.relayIDs[0] != "relay_1" || fc.commands[0] != relay.CommandPulse {
		t.Errorf("commander got %v %v", fc.relayIDs, fc.commands)
	}
}

func TestCommandEndpointErrors(t *testing.T) {
	cases := []struct {
		name string
		path string
		err  error
		want int
	}{
		{"unknown relay", "/relays/relay_9/on", control.ErrUnknownRelay, 404},
		{"disabled relay", "/relays/relay_1/on", control.ErrRelayDisabled, 409},
		{"bad command", "/relays/relay_1/toggle", nil, 400},
		{"missing command", "/relays/relay_1", nil, 404},
	}
	for _, c := range cases {
		ts, _, fc := newTestServer(t)
		fc.err = c.err

		resp, err := http.Post(ts.URL+c.path, "", nil)
		if err != nil {
			t.Fatalf("%s: POST: %v", c.name, err)
		}
		resp.Body.Close()
		if resp.StatusCode != c.want {
			t.Errorf("%s: status = %d, want %d", c.name, resp.StatusCode, c.want)
		}
		ts.Close()
	}
}

func TestCommandEndpointRequiresPOST(t *testing.T) {
	ts, _, fc := newTestServer(t)
	resp, err := http.Get(ts.URL + "/relays/relay_1/on")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
	if len(fc.relayIDs) != 0 {
		t.Error("GET must not reach the commander")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
