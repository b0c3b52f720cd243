//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"

	"github.com/ValorenceCLE/dpm-controller/internal/relay"
)

type line struct {
	pin            int
	normallyClosed bool
	out            *gpiocdev.Line
}

// RealDriver drives relay outputs on actual hardware using the Linux GPIO
// character device.
type RealDriver struct {
	mu    sync.Mutex
	lines map[string]*line
}

// NewRealDriver requests an output line for every relay definition. The
// current hardware level is read first and re-requested as the initial
// output value, so a controller restart does not glitch relays that are
// already energized.
func NewRealDriver(relays []*relay.Relay) (*RealDriver, error) {
	d := &RealDriver{lines: make(map[string]*line, len(relays))}

	for _, r := range relays {
		l, err := requestOutput(r.Pin)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("relay %s pin %d: %w", r.ID, r.Pin, err)
		}
		d.lines[r.ID] = &line{pin: r.Pin, normallyClosed: r.NormallyClosed, out: l}
	}
	return d, nil
}

func requestOutput(pin int) (*gpiocdev.Line, error) {
	// Read the current level before taking the line as output.
	in, err := gpiocdev.RequestLine(Chip, pin, gpiocdev.AsInput)
	if err != nil {
		return nil, fmt.Errorf("request input: %w", err)
	}
	val, err := in.Value()
	if err != nil {
		in.Close()
		return nil, fmt.Errorf("read level: %w", err)
	}
	if err := in.Close(); err != nil {
		return nil, fmt.Errorf("release input: %w", err)
	}

	out, err := gpiocdev.RequestLine(Chip, pin, gpiocdev.AsOutput(val))
	if err != nil {
		return nil, fmt.Errorf("request output: %w", err)
	}
	return out, nil
}

// Reconfigure adjusts the requested lines to match a new relay set: lines
// for added relays are requested, lines for removed relays are released
// (levels left as-is) and wiring polarity is updated in place. Pin
// reassignment for a surviving relay ID is treated as remove-then-add.
func (d *RealDriver) Reconfigure(relays []*relay.Relay) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	want := make(map[string]*relay.Relay, len(relays))
	for _, r := range relays {
		want[r.ID] = r
	}

	for id, l := range d.lines {
		r, ok := want[id]
		if ok && r.Pin == l.pin {
			l.normallyClosed = r.NormallyClosed
			continue
		}
		if l.out != nil {
			l.out.Close()
		}
		delete(d.lines, id)
	}

	for id, r := range want {
		if _, ok := d.lines[id]; ok {
			continue
		}
		l, err := requestOutput(r.Pin)
		if err != nil {
			return fmt.Errorf("relay %s pin %d: %w", id, r.Pin, err)
		}
		d.lines[id] = &line{pin: r.Pin, normallyClosed: r.NormallyClosed, out: l}
	}
	return nil
}

// Apply drives the relay to the given logical state, inverting for
// normally-closed wiring.
func (d *RealDriver) Apply(relayID string, on bool) error {
	d.mu.Lock()
	l, ok := d.lines[relayID]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("gpio: unknown relay %q", relayID)
	}

	val := 0
	if on != l.normallyClosed {
		val = 1
	}
	if err := l.out.SetValue(val); err != nil {
		return fmt.Errorf("set relay %s pin %d: %w", relayID, l.pin, err)
	}
	return nil
}

// Close releases all requested lines. Output levels are left as-is so a
// controller restart does not drop loads.
func (d *RealDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for id, l := range d.lines {
		if l.out == nil {
			continue
		}
		if err := l.out.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close relay %s: %w", id, err))
		}
		l.out = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
