package sync

import "sync"

// Status is the engine's lifecycle state.
type Status string

const (
	StatusIdle    Status = "Idle"
	StatusSyncing Status = "Syncing"
	StatusSuccess Status = "Success"
	StatusError   Status = "Error"
)

// machine guards the Idle -> Syncing -> {Success, Error} lifecycle.
// Begin checks and transitions under one lock, so two concurrent
// triggers can never both enter Syncing.
type machine struct {
	mu     sync.Mutex
	status Status
}

func newMachine() *machine {
	return &machine{status: StatusIdle}
}

// Begin claims the Syncing state. Any terminal or idle state may start
// a new run; a run already in flight rejects the claim.
func (m *machine) Begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status == StatusSyncing {
		return ErrSyncInProgress
	}
	m.status = StatusSyncing
	return nil
}

// Finish records the terminal state of the run that Begin admitted.
func (m *machine) Finish(terminal Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusSyncing {
		return
	}
	m.status = terminal
}

// Current returns the present state.
func (m *machine) Current() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}
