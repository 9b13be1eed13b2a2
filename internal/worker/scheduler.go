// Package worker runs the engine on a fixed interval inside a long-lived process.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"ncbot/pkg/logging"
)

// ErrBusy is returned by Trigger while a run is in progress.
var ErrBusy = errors.New("worker: a run is already in progress")

// RunFunc performs one engine pass.
type RunFunc func(ctx context.Context) error

// Scheduler runs a RunFunc immediately on Start and then every interval.
// Runs never overlap, and a run that has started is allowed to finish even
// when the scheduler's context is cancelled.
type Scheduler struct {
	run      RunFunc
	interval time.Duration
	logger   logging.Logger

	mu      sync.Mutex
	running     bool
	lastRun     time.Time
	lastSuccess time.Time
	lastErr     error
	runs        int
}

// NewScheduler creates a scheduler. interval <= 0 defaults to one hour.
func NewScheduler(run RunFunc, interval time.Duration, logger logging.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{run: run, interval: interval, logger: logger}
}

// Start runs the loop until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.WithField("interval", s.interval).Info("Starting recast scheduler")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping recast scheduler")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Trigger runs one pass now unless another is in progress.
func (s *Scheduler) Trigger(ctx context.Context) error {
	if !s.begin() {
		return ErrBusy
	}
	return s.execute(ctx)
}

// TriggerAsync starts a run in the background unless one is in progress.
// done, if not nil, receives the run's error.
func (s *Scheduler) TriggerAsync(ctx context.Context, done func(error)) error {
	if !s.begin() {
		return ErrBusy
	}
	go func() {
		err := s.execute(ctx)
		if done != nil {
			done(err)
		}
	}()
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.begin() {
		s.logger.Warn("Previous run still in progress; skipping tick")
		return
	}
	_ = s.execute(ctx)
}

func (s *Scheduler) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *Scheduler) execute(ctx context.Context) error {
	started := time.Now()
	err := s.run(context.WithoutCancel(ctx))

	s.mu.Lock()
	s.running = false
	s.lastRun = time.Now()
	if err == nil {
		s.lastSuccess = s.lastRun
	}
	s.lastErr = err
	s.runs++
	s.mu.Unlock()

	log := s.logger.WithField("duration", time.Since(started))
	if err != nil {
		log.WithError(err).Error("Recast run failed")
	} else {
		log.Debug("Recast run finished")
	}
	return err
}

// LastRun returns when the last run finished, or the zero time.
func (s *Scheduler) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// LastSuccess returns when the last successful run finished, or the zero time.
func (s *Scheduler) LastSuccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSuccess
}

// LastError returns the error of the last run.
func (s *Scheduler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Runs returns how many runs have finished.
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}
