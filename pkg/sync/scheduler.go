package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/devitechsolutions/vextr-sub000/pkg/logger"
)

// Scheduler drives periodic auto-sync runs. A tick that lands while a
// run is still executing is skipped, never queued.
type Scheduler struct {
	orchestrator *Orchestrator
	log          *logger.Logger

	mu       sync.Mutex
	cron     *cron.Cron
	interval time.Duration
	enabled  bool
}

// NewScheduler creates a stopped scheduler with the given interval.
func NewScheduler(orchestrator *Orchestrator, interval time.Duration, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Scheduler{
		orchestrator: orchestrator,
		log:          log.WithField("component", "scheduler"),
		interval:     interval,
	}
}

// Start begins periodic runs at the configured interval.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked()
}

// Stop halts periodic runs. A run already in flight completes.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Update applies a new interval and enabled flag atomically, restarting
// the cron entries when anything changed.
func (s *Scheduler) Update(interval time.Duration, enabled bool) error {
	if interval < time.Minute {
		return fmt.Errorf("sync interval %s below 1m minimum", interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.interval = interval
	s.stopLocked()
	if !enabled {
		s.orchestrator.SetAutoSync(false)
		return nil
	}
	return s.startLocked()
}

// Enabled reports whether periodic runs are active.
func (s *Scheduler) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Interval returns the configured run interval.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *Scheduler) startLocked() error {
	if s.enabled {
		return nil
	}

	c := cron.New()
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := c.AddFunc(spec, s.tick); err != nil {
		return fmt.Errorf("failed to schedule auto-sync: %w", err)
	}
	c.Start()

	s.cron = c
	s.enabled = true
	s.orchestrator.SetAutoSync(true)
	s.log.WithField("interval", s.interval.String()).Info("Auto-sync started")
	return nil
}

func (s *Scheduler) stopLocked() {
	if !s.enabled {
		return
	}
	s.cron.Stop()
	s.cron = nil
	s.enabled = false
	s.orchestrator.SetAutoSync(false)
	s.log.Info("Auto-sync stopped")
}

func (s *Scheduler) tick() {
	err := s.orchestrator.SyncAll(context.Background(), DirectionFromExternal)
	if errors.Is(err, ErrSyncInProgress) {
		s.log.Debug("Auto-sync tick skipped, run already in progress")
		return
	}
	if err != nil {
		s.log.WithError(err).Error("Auto-sync run failed")
	}
}
