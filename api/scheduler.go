/*
scheduler.go - Automated depreciation posting scheduler

PURPOSE:
  Periodically sweeps every Active schedule and posts the rows that are
  due, the way a nightly job would.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each sweep runs as the system actor through
    Engine.PostAllDepreciationEntries, so it is a no-op while automatic
    posting is disabled in the engine settings
  - Rows already posted are skipped by the engine; running twice on the
    same day creates nothing
  - Records sweep runs for audit and UI display when the store supports it
  - Refreshes the asset status gauge after each sweep

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewDepreciationScheduler(engine, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunDepreciation endpoint (manual sweep)
  - depreciation/posting.go: Engine
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/asset-engine/depreciation"
	"github.com/warp/asset-engine/store/sqlite"
)

// AssetGauge refreshes per-status asset counts. Implemented by
// *metrics.Metrics.
type AssetGauge interface {
	UpdateAssetMetrics(ctx context.Context, st depreciation.AssetStore) error
}

// DepreciationScheduler handles automated depreciation posting.
type DepreciationScheduler struct {
	Engine        *depreciation.Engine
	Runs          SweepRunStore
	Gauge         AssetGauge
	Logger        *zap.Logger
	CheckInterval time.Duration
	Enabled       bool
	Today         func() depreciation.Date

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	// sweeps never overlap
	running sync.Mutex
}

// NewDepreciationScheduler creates a new scheduler. Sweep runs are
// recorded when the engine's store implements SweepRunStore.
func NewDepreciationScheduler(engine *depreciation.Engine, logger *zap.Logger) *DepreciationScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &DepreciationScheduler{
		Engine:        engine,
		Logger:        logger,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Today:         depreciation.Today,
		stop:          make(chan struct{}),
	}
	if runs, ok := engine.Store.(SweepRunStore); ok {
		s.Runs = runs
	}
	return s
}

// Start begins the scheduler.
func (ds *DepreciationScheduler) Start() {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if !ds.Enabled {
		ds.Logger.Info("depreciation scheduler disabled, not starting")
		return
	}
	if ds.ticker != nil {
		return
	}

	ds.ticker = time.NewTicker(ds.CheckInterval)
	ds.stop = make(chan struct{})
	ds.wg.Add(1)

	go ds.run()

	ds.Logger.Info("depreciation scheduler started", zap.Duration("check_interval", ds.CheckInterval))
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (ds *DepreciationScheduler) Stop() {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.ticker != nil {
		ds.ticker.Stop()
		close(ds.stop)
		ds.wg.Wait()
		ds.ticker = nil
		ds.Logger.Info("depreciation scheduler stopped")
	}
}

func (ds *DepreciationScheduler) run() {
	defer ds.wg.Done()

	// Run immediately on start
	ds.sweep()

	for {
		select {
		case <-ds.ticker.C:
			ds.sweep()
		case <-ds.stop:
			return
		}
	}
}

func (ds *DepreciationScheduler) sweep() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-ds.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	if _, err := ds.RunNow(ctx); err != nil {
		ds.Logger.Error("depreciation sweep failed", zap.Error(err))
	}
}

// RunNow sweeps immediately as the system actor and records the run.
func (ds *DepreciationScheduler) RunNow(ctx context.Context) (depreciation.SweepReport, error) {
	ds.running.Lock()
	defer ds.running.Unlock()

	ctx = depreciation.WithActor(ctx, depreciation.SystemActor)
	date := ds.Today()
	started := time.Now()
	run := sqlite.SweepRun{
		ID:        fmt.Sprintf("sweep-%s", uuid.NewString()),
		RunDate:   date,
		Status:    "running",
		StartedAt: started,
	}
	ds.saveRun(ctx, run)

	report, err := ds.Engine.PostAllDepreciationEntries(ctx, date)

	completed := time.Now()
	run.CompletedAt = &completed
	run.Schedules = report.Schedules
	run.Postings = report.Postings
	run.Failures = len(report.Failures)
	switch {
	case err != nil:
		run.Status = "failed"
		run.Error = err.Error()
	case report.Disabled:
		run.Status = "skipped"
	case report.Failed():
		run.Status = "completed_with_failures"
		run.Error = report.Failures[0].Message
	default:
		run.Status = "completed"
	}
	ds.saveRun(context.WithoutCancel(ctx), run)

	if ds.Gauge != nil {
		if gerr := ds.Gauge.UpdateAssetMetrics(context.WithoutCancel(ctx), ds.Engine.Store); gerr != nil {
			ds.Logger.Warn("failed to refresh asset metrics", zap.Error(gerr))
		}
	}

	if report.Disabled {
		ds.Logger.Debug("automatic depreciation posting disabled, sweep skipped")
	} else {
		ds.Logger.Info("depreciation sweep completed",
			zap.String("date", date.String()),
			zap.Int("schedules", report.Schedules),
			zap.Int("postings", report.Postings),
			zap.Int("failures", len(report.Failures)))
	}
	return report, err
}

// NextRunTime returns when the next scheduled sweep will occur.
func (ds *DepreciationScheduler) NextRunTime() time.Time {
	return time.Now().Add(ds.CheckInterval)
}

func (ds *DepreciationScheduler) saveRun(ctx context.Context, run sqlite.SweepRun) {
	if ds.Runs == nil {
		return
	}
	if err := ds.Runs.SaveSweepRun(ctx, run); err != nil {
		ds.Logger.Warn("failed to record sweep run", zap.String("run_id", run.ID), zap.Error(err))
	}
}
