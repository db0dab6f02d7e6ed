package watchdog

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"fleetops/internal/cascade"
	"fleetops/internal/store"
)

// Worker periodically re-drives the cascade for terminal jobs that still
// have non-terminal dependents. A cascade sub-step can fail transiently
// and leave a child job or task visibly stuck; the next attempt here
// resolves it. Running tasks stay untouched, the executor owns those.
type Worker struct {
	ctx      context.Context
	cancel   context.CancelFunc
	store    *store.Store
	engine   *cascade.Engine
	logger   *logrus.Entry
	interval time.Duration
	batch    int
}

// Config holds the configuration for the watchdog worker
type Config struct {
	Store       *store.Store
	Engine      *cascade.Engine
	Logger      *logrus.Entry
	IntervalSec int
	BatchSize   int
}

// NewWorker creates a watchdog worker
func NewWorker(cfg *Config) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	interval := time.Duration(cfg.IntervalSec) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Worker{
		ctx:      ctx,
		cancel:   cancel,
		store:    cfg.Store,
		engine:   cfg.Engine,
		logger:   logger.WithField("component", "watchdog"),
		interval: interval,
		batch:    batch,
	}
}

// Start runs the scan loop until Stop is called
func (w *Worker) Start() {
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		w.logger.Infof("watchdog started, interval=%s", w.interval)
		for {
			select {
			case <-w.ctx.Done():
				w.logger.Info("watchdog stopped")
				return
			case <-ticker.C:
				w.scan()
			}
		}
	}()
}

// Stop cancels the scan loop
func (w *Worker) Stop() {
	w.cancel()
}

// scan finds stuck terminal jobs and re-runs the cascade on each.
// Cascades are idempotent, so re-driving a job that another writer just
// fixed is a no-op.
func (w *Worker) scan() {
	jobs, err := w.store.StuckTerminalJobs(w.batch)
	if err != nil {
		w.logger.WithError(err).Error("failed to scan for stuck jobs")
		return
	}
	if len(jobs) == 0 {
		return
	}

	w.logger.Infof("re-driving cascade for %d stuck jobs", len(jobs))
	for i := range jobs {
		w.engine.Cascade(&jobs[i])
	}
}
