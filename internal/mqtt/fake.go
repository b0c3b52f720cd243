package mqtt

import (
	"github.com/ValorenceCLE/dpm-controller/internal/relay"
)

// FakePublisher records published telemetry for test assertions.
type FakePublisher struct {
	// Transitions contains all relay transitions that were published.
	Transitions []relay.Transition

	// Alerts contains all task alerts that were published.
	Alerts []AlertEvent

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// PublishError, if set, is returned by every publish method.
	PublishError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{Connected: true}
}

// PublishTransition records the transition.
func (f *FakePublisher) PublishTransition(tr relay.Transition) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Transitions = append(f.Transitions, tr)
	return nil
}

// PublishAlert records the alert.
func (f *FakePublisher) PublishAlert(ev AlertEvent) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Alerts = append(f.Alerts, ev)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(ev SystemEvent) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	f.SystemEvents = append(f.SystemEvents, ev)
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// Reset clears recorded telemetry.
func (f *FakePublisher) Reset() {
	f.Transitions = nil
	f.Alerts = nil
	f.SystemEvents = nil
	f.PublishError = nil
	f.Closed = false
	f.Connected = true
}
