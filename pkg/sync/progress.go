package sync

import (
	"sync"
	"time"
)

// tracker accumulates progress counters for the current run and fans
// snapshots out to subscribers. All reads go through one lock so a
// consumer never sees processed and total from different moments.
type tracker struct {
	mu sync.RWMutex

	processed int
	total     int
	startedAt time.Time
	message   string

	subs   map[int]chan Snapshot
	nextID int
}

func newTracker() *tracker {
	return &tracker{subs: make(map[int]chan Snapshot)}
}

func (t *tracker) start(message string) {
	t.mu.Lock()
	t.processed = 0
	t.total = 0
	t.startedAt = time.Now()
	t.message = message
	t.mu.Unlock()
}

func (t *tracker) update(processed, total int) {
	t.mu.Lock()
	t.processed = processed
	if total > t.total {
		t.total = total
	}
	t.mu.Unlock()
}

func (t *tracker) setMessage(message string) {
	t.mu.Lock()
	t.message = message
	t.mu.Unlock()
}

// fill copies the counters into a snapshot. The percentage is clamped
// to [0, 100] because the total is an estimate and can lag behind the
// processed count.
func (t *tracker) fill(snap *Snapshot) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap.ProcessedCandidates = t.processed
	snap.TotalCandidates = t.total
	snap.Message = t.message

	if t.total > 0 {
		pct := float64(t.processed) / float64(t.total) * 100
		if pct > 100 {
			pct = 100
		}
		if pct < 0 {
			pct = 0
		}
		snap.ProgressPercentage = pct
	}

	if !t.startedAt.IsZero() {
		elapsed := time.Since(t.startedAt).Seconds()
		if elapsed > 0 {
			snap.Rate = float64(t.processed) / elapsed
		}
	}
}

// Subscribe registers a progress consumer. The returned cancel func
// must be called to release the channel.
func (t *tracker) Subscribe() (<-chan Snapshot, func()) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	ch := make(chan Snapshot, 16)
	t.subs[id] = ch
	t.mu.Unlock()

	cancel := func() {
		t.mu.Lock()
		if existing, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(existing)
		}
		t.mu.Unlock()
	}
	return ch, cancel
}

// publish fans a snapshot out without blocking; a slow consumer drops
// updates instead of stalling the run.
func (t *tracker) publish(snap Snapshot) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, ch := range t.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}
