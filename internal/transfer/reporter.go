package transfer

// ProgressReporter receives state transitions and byte deltas from a running unit.
//
// The first callback of a run is (StateInProgress, 0) and the last is exactly one
// terminal state with 0 bytes. In between, byte deltas arrive batched; their sum
// always equals the bytes appended to the target file during the run. Callbacks run
// on the unit's own goroutine, so implementations must not block for long.
type ProgressReporter interface {
	OnProgress(unitID string, state State, bytes int64)
}

// ReporterFunc adapts a function to the ProgressReporter interface.
type ReporterFunc func(unitID string, state State, bytes int64)

func (f ReporterFunc) OnProgress(unitID string, state State, bytes int64) {
	f(unitID, state, bytes)
}
