// Package scheduler provides background draining of the sync queue.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/clearpath-app/backend/internal/db"
	"github.com/clearpath-app/backend/internal/logging"
	syncpkg "github.com/clearpath-app/backend/internal/sync"
)

// Scheduler periodically retries pending queue entries while online. It is
// the daemon's counterpart to platform background-sync registration: after
// a pass leaves residual work, the next tick picks it up without the
// hosting application doing anything.
type Scheduler struct {
	engine   syncpkg.SyncEngine
	store    db.QueueStore
	monitor  *syncpkg.Monitor
	interval time.Duration

	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	isRunning bool
	lastDrain time.Time
}

// Config holds scheduler configuration.
type Config struct {
	Interval time.Duration // How often to check for pending work (default: 1 minute)
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{Interval: time.Minute}
}

// New creates a Scheduler.
func New(engine syncpkg.SyncEngine, store db.QueueStore, monitor *syncpkg.Monitor, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Scheduler{
		engine:   engine,
		store:    store,
		monitor:  monitor,
		interval: config.Interval,
		stopCh:   make(chan struct{}),
	}
}

// Start starts the background drain loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)

	logging.Info("Background sync scheduler started", map[string]interface{}{
		"interval_seconds": s.interval.Seconds(),
	})
}

// Stop stops the scheduler gracefully.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	logging.Info("Background sync scheduler stopped")
}

// IsRunning reports whether the loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// LastDrain returns when the scheduler last triggered a pass.
func (s *Scheduler) LastDrain() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastDrain
}

// loop ticks on the interval and drains when there is pending work.
func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.drain(ctx)
		}
	}
}

// drain triggers a pass when online, idle, and holding pending work.
func (s *Scheduler) drain(ctx context.Context) {
	if s.monitor != nil && !s.monitor.IsOnline() {
		return
	}
	if s.engine.State() != syncpkg.StateIdle {
		logging.Debug("Sync already in progress, skipping scheduled drain")
		return
	}

	pending, err := s.store.ListPendingQueue()
	if err != nil {
		logging.Error("Failed to check pending queue", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	logging.Info("Scheduled drain starting", map[string]interface{}{
		"pending": len(pending),
	})

	s.mu.Lock()
	s.lastDrain = time.Now()
	s.mu.Unlock()

	if _, err := s.engine.Sync(ctx, nil); err != nil {
		logging.Error("Scheduled drain failed", err)
	}
}
