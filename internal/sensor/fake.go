package sensor

import "context"

// FakeSource is a test double that returns scripted snapshots.
type FakeSource struct {
	// Snapshots contains scripted snapshots. Each call to Sample consumes
	// the next one; when exhausted, the last snapshot is returned
	// repeatedly.
	Snapshots []Snapshot

	// SampleError, if set, is returned by Sample.
	SampleError error

	index int
	calls int
}

// NewFakeSource creates a FakeSource with the given snapshots.
func NewFakeSource(snapshots ...Snapshot) *FakeSource {
	return &FakeSource{Snapshots: snapshots}
}

// Sample returns the next scripted snapshot.
func (f *FakeSource) Sample(ctx context.Context) (Snapshot, error) {
	f.calls++
	if f.SampleError != nil {
		return nil, f.SampleError
	}
	if len(f.Snapshots) == 0 {
		return Snapshot{}, nil
	}
	snap := f.Snapshots[f.index]
	if f.index < len(f.Snapshots)-1 {
		f.index++
	}
	return snap.Clone(), nil
}

// Calls returns how many times Sample was invoked.
func (f *FakeSource) Calls() int {
	return f.calls
}

// Reset rewinds to the first snapshot.
func (f *FakeSource) Reset() {
	f.index = 0
	f.calls = 0
}
