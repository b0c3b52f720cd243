// Package gpio drives the DPM relay bank outputs with hardware abstraction.
// The real implementation uses the Linux GPIO character device; the fake
// allows testing without hardware.
package gpio

import "github.com/ValorenceCLE/dpm-controller/internal/relay"

// Driver commits logical relay states to physical outputs. A logical ON may
// map to an inactive line for normally-closed wiring; the driver owns that
// inversion.
type Driver interface {
	// Apply drives the relay's output to the given logical state.
	// A non-nil error means the write was not applied.
	Apply(relayID string, on bool) error

	// Reconfigure reconciles the driver's line table against a new relay
	// set: lines are requested, released or repolarized as needed. On
	// error the previous line table stays in effect.
	Reconfigure(relays []*relay.Relay) error

	// Close releases GPIO resources.
	Close() error
}

// Chip is the GPIO character device the relay bank hangs off.
const Chip = "gpiochip0"
