// Package sensor defines the per-tick snapshot of live readings and the
// feed that supplies it. The engine never talks to I2C or network sensors
// directly; it consumes whatever the feed reports and treats missing fields
// as "no signal yet".
package sensor

import "context"

// Fields maps a field name (volts, amps, watts, temperature, ...) to its
// most recent reading.
type Fields map[string]float64

// Snapshot is a point-in-time view of every source's readings, captured
// once per tick. All evaluators within a tick observe the same snapshot;
// it must not be mutated after capture.
type Snapshot map[string]Fields

// Value looks up a reading. The second return is false when the source or
// field is absent from the snapshot.
func (s Snapshot) Value(source, field string) (float64, bool) {
	f, ok := s[source]
	if !ok {
		return 0, false
	}
	v, ok := f[field]
	return v, ok
}

// Clone returns an independent copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for src, fields := range s {
		cp := make(Fields, len(fields))
		for k, v := range fields {
			cp[k] = v
		}
		out[src] = cp
	}
	return out
}

// Source supplies a fresh snapshot each tick. May omit sources or fields
// that are currently unavailable.
type Source interface {
	Sample(ctx context.Context) (Snapshot, error)
}
