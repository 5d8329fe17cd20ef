package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/netsweep/internal/config"
	"github.com/anstrom/netsweep/internal/pipeline"
	"github.com/anstrom/netsweep/internal/scan"
)

// fakeRunner mimics a scan run. When block is set, ExecuteFullScan
// waits on it until release is closed or the context is canceled.
type fakeRunner struct {
	calls   atomic.Int32
	block   bool
	release chan struct{}
	started chan struct{}
	result  *pipeline.Result
}

func newFakeRunner(block bool) *fakeRunner {
	result := pipeline.NewResult()
	result.Complete()
	return &fakeRunner{
		block:   block,
		release: make(chan struct{}),
		started: make(chan struct{}, 8),
		result:  result,
	}
}

func (f *fakeRunner) ExecuteFullScan(ctx context.Context) (*pipeline.Result, error) {
	f.calls.Add(1)
	f.started <- struct{}{}
	if f.block {
		select {
		case <-f.release:
		case <-ctx.Done():
		}
	}
	return f.result, nil
}

func watchConfig(runOnStart bool) config.WatchConfig {
	return config.WatchConfig{Schedule: "@hourly", RunOnStart: runOnStart}
}

func TestNewValidatesSchedule(t *testing.T) {
	tests := []struct {
		name     string
		schedule string
		wantErr  bool
	}{
		{"descriptor", "@hourly", false},
		{"five fields", "*/5 * * * *", false},
		{"daily descriptor", "@daily", false},
		{"gibberish", "whenever", true},
		{"six fields", "0 0 * * * *", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(config.WatchConfig{Schedule: tt.schedule}, newFakeRunner(false), nil)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStartRunsImmediatelyWhenConfigured(t *testing.T) {
	runner := newFakeRunner(false)

	var mu sync.Mutex
	var delivered *pipeline.Result
	s, err := New(watchConfig(true), runner, func(result *pipeline.Result) {
		mu.Lock()
		delivered = result
		mu.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, s.Start())
	defer s.Stop()

	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("run-on-start scan never fired")
	}
	s.Stop()

	assert.Equal(t, int32(1), runner.calls.Load())
	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, delivered, "finished runs reach the callback")
	assert.Equal(t, runner.result.RunID, delivered.RunID)
	assert.Equal(t, runner.result, s.LastResult())
	assert.False(t, s.LastRun().IsZero())
}

func TestStartWithoutRunOnStartWaitsForTick(t *testing.T) {
	runner := newFakeRunner(false)
	s, err := New(watchConfig(false), runner, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start())
	defer s.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), runner.calls.Load())
	assert.True(t, s.LastRun().IsZero())
}

func TestStartTwiceFails(t *testing.T) {
	s, err := New(watchConfig(false), newFakeRunner(false), nil)
	require.NoError(t, err)

	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Error(t, s.Start())
}

func TestOverlappingRunIsSkipped(t *testing.T) {
	runner := newFakeRunner(true)
	s, err := New(watchConfig(false), runner, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	defer s.Stop()

	go s.runScan()
	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first scan never started")
	}
	assert.True(t, s.Scanning())

	// The second tick arrives while the first scan still holds the
	// guard, so it must return without touching the runner.
	done := make(chan struct{})
	go func() {
		s.runScan()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("skipped scan did not return promptly")
	}
	assert.Equal(t, int32(1), runner.calls.Load())

	close(runner.release)
}

func TestStopWaitsForInflightRun(t *testing.T) {
	runner := newFakeRunner(true)
	s, err := New(watchConfig(false), runner, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start())

	go s.runScan()
	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("scan never started")
	}

	// Stop cancels the run context, which unblocks the fake, and must
	// not return before the scan goroutine has finished.
	s.Stop()
	assert.False(t, s.Scanning())
	assert.False(t, s.Running())
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestStopIsIdempotent(t *testing.T) {
	s, err := New(watchConfig(false), newFakeRunner(false), nil)
	require.NoError(t, err)

	require.NoError(t, s.Start())
	s.Stop()
	s.Stop()
	assert.False(t, s.Running())
}

func TestRunScanAfterStopIsNoop(t *testing.T) {
	runner := newFakeRunner(false)
	s, err := New(watchConfig(false), runner, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	s.Stop()

	s.runScan()
	assert.Equal(t, int32(0), runner.calls.Load())
}

func TestNextRun(t *testing.T) {
	s, err := New(watchConfig(false), newFakeRunner(false), nil)
	require.NoError(t, err)

	assert.True(t, s.NextRun().IsZero(), "no next run before start")

	require.NoError(t, s.Start())
	defer s.Stop()

	next := s.NextRun()
	assert.False(t, next.IsZero())
	assert.True(t, next.After(time.Now()))

	s.Stop()
	assert.True(t, s.NextRun().IsZero(), "no next run after stop")
}

func TestResultStatusSurvivesCallback(t *testing.T) {
	runner := newFakeRunner(false)
	partial := pipeline.NewResult()
	record := partial.Phases[scan.PhaseSnmp]
	record.Status = scan.StatusPartial
	partial.Phases[scan.PhaseSnmp] = record
	partial.Complete()
	runner.result = partial

	var got scan.Status
	var mu sync.Mutex
	s, err := New(watchConfig(true), runner, func(result *pipeline.Result) {
		mu.Lock()
		got = result.Status
		mu.Unlock()
	})
	require.NoError(t, err)
	require.NoError(t, s.Start())
	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("run-on-start scan never fired")
	}
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, scan.StatusPartial, got)
}
