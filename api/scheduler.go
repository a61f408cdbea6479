/*
scheduler.go - Automated cycle rollover scheduler

PURPOSE:
  Periodically closes cycles whose season has ended and opens the current
  season's cycle for every group.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on start, then on every tick
  - Rollover is idempotent: a group whose cycle is current is left alone
  - The last run's result is kept for GET /api/admin/scheduler

CONFIGURATION:
  - CheckInterval: How often to check (cycle.check_interval, default 1h)
  - Enabled: Whether scheduler is active (cycle.scheduler_enabled)

USAGE:
  scheduler := NewRolloverScheduler(roller, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - scenarios.go: TriggerRollover endpoint (manual rollover)
  - cycle/roller.go: Rollover
*/
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/agrilink/cig-engine/cycle"
	"go.uber.org/zap"
)

// RolloverScheduler runs cycle rollovers on a timer.
type RolloverScheduler struct {
	Roller        *cycle.Roller
	Logger        *zap.Logger
	CheckInterval time.Duration
	Enabled       bool

	// Now is the rollover clock. Defaults to time.Now.
	Now func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex

	last SchedulerStatus
}

// SchedulerStatus reports the most recent scheduled run.
type SchedulerStatus struct {
	Enabled       bool          `json:"enabled"`
	CheckInterval string        `json:"check_interval"`
	LastRunAt     *time.Time    `json:"last_run_at,omitempty"`
	LastResult    *cycle.Result `json:"last_result,omitempty"`
	LastError     string        `json:"last_error,omitempty"`
	NextRunAt     *time.Time    `json:"next_run_at,omitempty"`
}

// NewRolloverScheduler creates a scheduler with a one hour interval.
func NewRolloverScheduler(roller *cycle.Roller, logger *zap.Logger) *RolloverScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RolloverScheduler{
		Roller:        roller,
		Logger:        logger.Named("scheduler"),
		CheckInterval: time.Hour,
		Enabled:       true,
		Now:           time.Now,
	}
}

// Start begins the scheduler. Calling Start on a running scheduler is a no-op.
func (rs *RolloverScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Logger.Info("disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan struct{})
	rs.cancel = cancel
	rs.wg.Add(1)

	go rs.run(ctx, rs.ticker, rs.stop)

	rs.Logger.Info("started", zap.Duration("check_interval", rs.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight run to finish.
func (rs *RolloverScheduler) Stop() {
	rs.mu.Lock()
	if rs.ticker == nil {
		rs.mu.Unlock()
		return
	}
	rs.ticker.Stop()
	close(rs.stop)
	rs.cancel()
	rs.ticker = nil
	rs.mu.Unlock()

	rs.wg.Wait()
	rs.Logger.Info("stopped")
}

func (rs *RolloverScheduler) run(ctx context.Context, ticker *time.Ticker, stop <-chan struct{}) {
	defer rs.wg.Done()

	rs.RunNow(ctx)

	for {
		select {
		case <-ticker.C:
			rs.RunNow(ctx)
		case <-stop:
			return
		}
	}
}

// RunNow performs one rollover immediately.
func (rs *RolloverScheduler) RunNow(ctx context.Context) (cycle.Result, error) {
	at := rs.Now()
	res, err := rs.Roller.Rollover(ctx, at)
	if err != nil {
		rs.Logger.Error("rollover incomplete", zap.Time("at", at), zap.Error(err))
	} else if res.Closed > 0 || res.Opened > 0 {
		rs.Logger.Info("rollover completed",
			zap.Int("closed", res.Closed),
			zap.Int("opened", res.Opened),
			zap.Int("unchanged", res.Unchanged))
	}

	rs.mu.Lock()
	rs.last.LastRunAt = &at
	rs.last.LastResult = &res
	rs.last.LastError = ""
	if err != nil {
		rs.last.LastError = err.Error()
	}
	rs.mu.Unlock()
	return res, err
}

// Status returns the scheduler configuration and its last run.
func (rs *RolloverScheduler) Status() SchedulerStatus {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	st := rs.last
	st.Enabled = rs.Enabled
	st.CheckInterval = rs.CheckInterval.String()
	if rs.ticker != nil {
		next := rs.Now().Add(rs.CheckInterval)
		if st.LastRunAt != nil {
			next = st.LastRunAt.Add(rs.CheckInterval)
		}
		st.NextRunAt = &next
	}
	return st
}

// GetSchedulerStatus reports the rollover scheduler state.
// GET /api/admin/scheduler
func (h *Handler) GetSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeJSON(w, http.StatusOK, SchedulerStatus{})
		return
	}
	writeJSON(w, http.StatusOK, h.Scheduler.Status())
}
