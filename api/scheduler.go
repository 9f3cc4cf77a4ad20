/*
scheduler.go - Periodic refresh of the cached engine result

PURPOSE:
  Recomputes the portfolio result on a fixed interval so the dashboard
  sees deadline tiers move as days pass without anyone pressing refresh.

DESIGN:
  - Runs a background goroutine with configurable interval
  - Refreshes immediately on start, then on every tick
  - A failed refresh keeps the previous cache and is recorded in the run
    history; the next tick tries again

CONFIGURATION:
  - Interval: How often to refresh (default: 15 minutes)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewRefreshScheduler(handler, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Handler.Refresh, TriggerRefresh endpoint
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultRefreshInterval is used when no interval is configured.
const DefaultRefreshInterval = 15 * time.Minute

// RefreshScheduler keeps the handler's cached result current.
type RefreshScheduler struct {
	Handler  *Handler
	Interval time.Duration
	Enabled  bool
	Logger   *slog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex

	nextMu  sync.Mutex
	nextRun time.Time
}

// NewRefreshScheduler creates a new scheduler.
func NewRefreshScheduler(handler *Handler, logger *slog.Logger) *RefreshScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RefreshScheduler{
		Handler:  handler,
		Interval: DefaultRefreshInterval,
		Enabled:  true,
		Logger:   logger.With("component", "scheduler"),
	}
}

// Start begins the scheduler.
func (rs *RefreshScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Logger.Info("disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}
	if rs.Interval <= 0 {
		rs.Interval = DefaultRefreshInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	rs.cancel = cancel
	rs.stop = make(chan struct{})
	rs.ticker = time.NewTicker(rs.Interval)
	rs.setNextRun(time.Now().Add(rs.Interval))
	rs.wg.Add(1)

	go rs.run(ctx)

	rs.Logger.Info("started", "interval", rs.Interval)
}

// Stop stops the scheduler and waits for an in-flight refresh to finish.
func (rs *RefreshScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.cancel()
		rs.wg.Wait()
		rs.ticker = nil
		rs.setNextRun(time.Time{})
		rs.Logger.Info("stopped")
	}
}

func (rs *RefreshScheduler) run(ctx context.Context) {
	defer rs.wg.Done()

	// Run immediately on start
	rs.refresh(ctx, TriggerStartup)

	for {
		select {
		case tick := <-rs.ticker.C:
			rs.setNextRun(tick.Add(rs.Interval))
			rs.refresh(ctx, TriggerScheduler)
		case <-rs.stop:
			return
		}
	}
}

func (rs *RefreshScheduler) refresh(ctx context.Context, trigger string) {
	res, err := rs.Handler.Refresh(ctx, trigger)
	if err != nil {
		rs.Logger.Error("refresh failed", "trigger", trigger, "error", err)
		return
	}
	rs.Logger.Debug("refresh complete",
		"trigger", trigger,
		"as_of", res.AsOf.String(),
		"grants", len(res.Summaries),
	)
}

// RunNow triggers an immediate refresh (for testing/admin).
func (rs *RefreshScheduler) RunNow(ctx context.Context) {
	rs.refresh(ctx, TriggerScheduler)
}

// NextRunTime returns when the next scheduled refresh will occur, or the
// zero time when the scheduler is not running.
func (rs *RefreshScheduler) NextRunTime() time.Time {
	rs.nextMu.Lock()
	defer rs.nextMu.Unlock()
	return rs.nextRun
}

func (rs *RefreshScheduler) setNextRun(t time.Time) {
	rs.nextMu.Lock()
	rs.nextRun = t
	rs.nextMu.Unlock()
}
