package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Logic-Phantom/DataVille/cmd/server/internal/instrumentation"
	"github.com/Logic-Phantom/DataVille/pkg/config"
)

// Ticker is the simulator surface the scheduler drives.
type Ticker interface {
	Tick()
}

// Broadcaster fans the advanced state out to connected clients.
type Broadcaster interface {
	BroadcastMarket()
}

// Exporter receives a notification after every completed tick. The Kafka
// exporter hangs off this; a nil exporter is skipped.
type Exporter interface {
	ExportTick(ctx context.Context)
}

// Scheduler advances the simulator and broadcasts on a fixed cadence:
// every openInterval while the market-hours window is active, every
// closedInterval otherwise.
type Scheduler struct {
	logger   *zap.Logger
	sim      Ticker
	hub      Broadcaster
	exporter Exporter
	metrics  *instrumentation.Metrics

	open           config.ClockTime
	close          config.ClockTime
	loc            *time.Location
	openInterval   time.Duration
	closedInterval time.Duration
}

func NewScheduler(
	logger *zap.Logger,
	sim Ticker,
	h Broadcaster,
	exporter Exporter,
	metrics *instrumentation.Metrics,
	cfg config.MarketConfig,
) (*Scheduler, error) {
	open, err := config.ParseClock(cfg.Open)
	if err != nil {
		return nil, err
	}
	closeAt, err := config.ParseClock(cfg.Close)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		logger:         logger,
		sim:            sim,
		hub:            h,
		exporter:       exporter,
		metrics:        metrics,
		open:           open,
		close:          closeAt,
		loc:            loc,
		openInterval:   cfg.OpenInterval,
		closedInterval: cfg.ClosedInterval,
	}, nil
}

// Run drives ticks until ctx is cancelled. The underlying timer fires at
// the open-market interval; off-hours firings are skipped until the closed
// interval has elapsed since the last tick.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.openInterval)
	defer ticker.Stop()

	s.logger.Info("Scheduler started",
		zap.Duration("open_interval", s.openInterval),
		zap.Duration("closed_interval", s.closedInterval))

	var lastRun time.Time
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return
		case now := <-ticker.C:
			if now.Sub(lastRun) < s.Interval(now) {
				continue
			}
			lastRun = now
			s.runOnce(ctx)
		}
	}
}

// runOnce performs one tick-and-broadcast cycle.
func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()
	s.sim.Tick()
	s.hub.BroadcastMarket()
	if s.exporter != nil {
		s.exporter.ExportTick(ctx)
	}
	s.metrics.TickDuration.Observe(time.Since(start).Seconds())
}

// Interval returns the effective tick interval at time t.
func (s *Scheduler) Interval(t time.Time) time.Duration {
	if s.IsMarketOpen(t) {
		return s.openInterval
	}
	return s.closedInterval
}

// IsMarketOpen reports whether t falls inside the configured window,
// boundaries inclusive (09:00 and 15:30 both count as open).
func (s *Scheduler) IsMarketOpen(t time.Time) bool {
	local := t.In(s.loc)
	minute := local.Hour()*60 + local.Minute()
	return minute >= s.open.MinuteOfDay() && minute <= s.close.MinuteOfDay()
}
