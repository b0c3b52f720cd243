//go:build !linux

package gpio

import (
	"errors"

	"github.com/ValorenceCLE/dpm-controller/internal/relay"
)

// RealDriver is not available on non-Linux platforms.
type RealDriver struct{}

// NewRealDriver returns an error on non-Linux platforms.
func NewRealDriver(relays []*relay.Relay) (*RealDriver, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Reconfigure is not implemented on non-Linux platforms.
func (d *RealDriver) Reconfigure(relays []*relay.Relay) error {
	return errors.New("gpio: not supported")
}

// Apply is not implemented on non-Linux platforms.
func (d *RealDriver) Apply(relayID string, on bool) error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (d *RealDriver) Close() error {
	return nil
}
