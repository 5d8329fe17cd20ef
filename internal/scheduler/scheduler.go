// Package scheduler drives watch mode: one recurring scan job on a
// cron schedule, with an overlap guard so a slow sweep is never stacked
// on top of itself.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/anstrom/netsweep/internal/config"
	"github.com/anstrom/netsweep/internal/errors"
	"github.com/anstrom/netsweep/internal/logging"
	"github.com/anstrom/netsweep/internal/pipeline"
)

// scanRunner executes one full discovery run.
type scanRunner interface {
	ExecuteFullScan(ctx context.Context) (*pipeline.Result, error)
}

// Scheduler triggers scan runs on a cron schedule. Each finished run is
// handed to the onResult callback, where watch mode hooks in report
// writing, history persistence and the status snapshot.
type Scheduler struct {
	schedule   string
	runOnStart bool
	runner     scanRunner
	onResult   func(*pipeline.Result)

	cron    *cron.Cron
	entryID cron.EntryID

	mu         sync.RWMutex
	running    bool
	scanning   bool
	lastRun    time.Time
	lastResult *pipeline.Result

	runs   sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	log    *logging.Logger
}

// New creates a scheduler for the configured cron expression. The
// expression is validated here so watch mode fails before the first
// tick, not at it.
func New(cfg config.WatchConfig, runner scanRunner, onResult func(*pipeline.Result)) (*Scheduler, error) {
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration,
			fmt.Sprintf("Invalid watch schedule %q", cfg.Schedule), err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		schedule:   cfg.Schedule,
		runOnStart: cfg.RunOnStart,
		runner:     runner,
		onResult:   onResult,
		cron:       cron.New(),
		ctx:        ctx,
		cancel:     cancel,
		log:        logging.Default().WithComponent("watch"),
	}, nil
}

// Start registers the scan job and begins the cron loop. With
// RunOnStart set the first scan fires immediately instead of waiting
// for the first tick.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}

	entryID, err := s.cron.AddFunc(s.schedule, s.runScan)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	s.entryID = entryID
	s.cron.Start()
	s.running = true
	s.mu.Unlock()

	s.log.InfoWatch("Watch mode started",
		"schedule", s.schedule,
		"next_run", s.NextRun().Format(time.RFC3339))

	if s.runOnStart {
		go s.runScan()
	}
	return nil
}

// Stop cancels the in-flight run, halts the cron loop and waits until
// every launched scan has returned.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.runs.Wait()

	s.log.InfoWatch("Watch mode stopped")
}

// Running reports whether the scheduler has been started.
func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Scanning reports whether a scan run is currently executing.
func (s *Scheduler) Scanning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanning
}

// LastRun returns when the most recent scan started, zero before the
// first one.
func (s *Scheduler) LastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun
}

// LastResult returns the most recent completed run, nil before the
// first one finishes.
func (s *Scheduler) LastResult() *pipeline.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastResult
}

// NextRun returns the next scheduled fire time, zero when stopped.
func (s *Scheduler) NextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// runScan executes one scan unless the previous one is still going.
func (s *Scheduler) runScan() {
	s.runs.Add(1)
	defer s.runs.Done()

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	if s.scanning {
		s.mu.Unlock()
		s.log.InfoWatch("Previous scan still in progress, skipping this tick")
		return
	}
	s.scanning = true
	s.lastRun = time.Now()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.scanning = false
		s.mu.Unlock()
	}()

	s.log.InfoWatch("Starting scheduled scan")

	result, err := s.runner.ExecuteFullScan(s.ctx)
	if err != nil {
		s.log.ErrorWatch("Scheduled scan aborted", err)
		return
	}

	s.mu.Lock()
	s.lastResult = result
	s.mu.Unlock()

	if s.onResult != nil {
		s.onResult(result)
	}

	s.log.InfoWatch("Scheduled scan finished",
		"status", string(result.Status),
		"devices", len(result.Devices),
		"duration", result.Duration)
}
