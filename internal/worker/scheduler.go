// Package worker provides the run scheduler that drives the pipeline on a
// fixed interval.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/jonesrussell/darc-connector/internal/domain"
	"github.com/jonesrussell/darc-connector/internal/logger"
)

// Runner executes one pipeline traversal.
type Runner interface {
	Run(ctx context.Context) (*domain.RunStats, error)
}

// Scheduler triggers the pipeline immediately on start and then on every
// interval tick until stopped.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   logger.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex

	lastStats *domain.RunStats
	statsMu   sync.RWMutex
}

// NewScheduler creates a scheduler with the given run interval.
func NewScheduler(runner Runner, interval time.Duration, log logger.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   log,
		stopChan: make(chan struct{}),
	}
}

// Start begins the scheduling loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("scheduler started", logger.Duration("interval", s.interval))
}

// Stop gracefully stops the scheduler, waiting for an in-flight run.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// LastStats returns the stats of the most recent completed run, or nil before
// the first one finishes.
func (s *Scheduler) LastStats() *domain.RunStats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return s.lastStats
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	stats, err := s.runner.Run(ctx)
	if err != nil {
		s.logger.Error("pipeline run failed", logger.Error(err))
		return
	}

	s.statsMu.Lock()
	s.lastStats = stats
	s.statsMu.Unlock()
}
