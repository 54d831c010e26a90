package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/court-inventory/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker snapshots run health on an interval and forwards alerts.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	lookback  int
	log       *zap.Logger
}

// NewChecker creates a Checker. A non-positive check interval falls back to
// five minutes.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  interval,
		lookback:  cfg.LookbackWindowHours,
		log:       zap.L().With(zap.String("component", "monitoring.checker")),
	}
}

// Run checks once, then on every interval until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	c.log.Info("monitoring started",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)
	defer c.log.Info("monitoring stopped")

	if ctx.Err() != nil {
		return
	}
	c.Check(ctx)

	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Check(ctx)
		}
	}
}

// Check takes one snapshot and sends whatever alerts it raises. It returns
// nil when the snapshot could not be collected.
func (c *Checker) Check(ctx context.Context) *MetricsSnapshot {
	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		c.log.Error("collect snapshot", zap.Error(err))
		return nil
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		c.log.Debug("run health ok",
			zap.Int("runs_failed", snap.RunsFailed),
			zap.Int("overdue_sources", snap.OverdueSources),
		)
		return snap
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	c.log.Warn("run health alerts raised",
		zap.Int("raised", len(alerts)),
		zap.Int("sent", sent),
		zap.Float64("run_fail_rate", snap.RunFailRate),
		zap.Float64("api_cost_usd", snap.APICostUSD),
		zap.Int("overdue_sources", snap.OverdueSources),
	)
	return snap
}
