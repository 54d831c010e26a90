// Package monitoring watches inventory health: run outcomes, model API spend
// and the backlog of overdue sources, alerting over a webhook.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/court-inventory/internal/model"
	"github.com/sells-group/court-inventory/internal/store"
)

// MetricsSnapshot holds a point-in-time view of inventory health.
type MetricsSnapshot struct {
	// Runs started within the lookback window.
	RunsTotal     int     `json:"runs_total"`
	RunsCompleted int     `json:"runs_completed"`
	RunsFailed    int     `json:"runs_failed"`
	RunsRunning   int     `json:"runs_running"`
	RunFailRate   float64 `json:"run_fail_rate"`

	// Model API usage within the lookback window.
	APICalls       int     `json:"api_calls"`
	APISuccessRate float64 `json:"api_success_rate"`
	APICostUSD     float64 `json:"api_cost_usd"`

	// Sources currently due for a check.
	OverdueSources int `json:"overdue_sources"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunStats is the store surface the collector reads.
type RunStats interface {
	RunOutcomes(ctx context.Context, since time.Time) (map[model.RunStatus]int, error)
	UsageSummary(ctx context.Context, since time.Time) (*store.UsageSummary, error)
}

// DueCounter counts sources due for a check.
type DueCounter interface {
	CountDue(ctx context.Context) (int, error)
}

// Collector gathers metrics from the store and the source registry.
type Collector struct {
	runs    RunStats
	sources DueCounter
}

// NewCollector creates a metrics collector. sources may be nil.
func NewCollector(runs RunStats, sources DueCounter) *Collector {
	return &Collector{runs: runs, sources: sources}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	if lookbackHours <= 0 {
		lookbackHours = 24
	}
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	outcomes, err := c.runs.RunOutcomes(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: run outcomes")
	}
	snap.RunsCompleted = outcomes[model.RunStatusCompleted]
	snap.RunsFailed = outcomes[model.RunStatusError]
	snap.RunsRunning = outcomes[model.RunStatusRunning]
	snap.RunsTotal = snap.RunsCompleted + snap.RunsFailed + snap.RunsRunning
	if finished := snap.RunsCompleted + snap.RunsFailed; finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}

	usage, err := c.runs.UsageSummary(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: usage summary")
	}
	snap.APICalls = usage.Calls
	snap.APISuccessRate = usage.SuccessRate
	snap.APICostUSD = usage.CostUSD

	if c.sources != nil {
		n, err := c.sources.CountDue(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: count due sources")
		}
		snap.OverdueSources = n
	}

	return snap, nil
}
