package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/court-inventory/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate AlertType = "run_failure_rate"
	AlertCostOverrun    AlertType = "cost_overrun"
	AlertSourceBacklog  AlertType = "source_backlog"
)

// minFinishedRuns is the sample size below which the failure rate is not
// evaluated.
const minFinishedRuns = 3

const defaultCooldown = time.Hour

const serviceName = "court-inventory"

// Alert is the webhook payload.
type Alert struct {
	Service   string         `json:"service"`
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds and
// posts breaches to a webhook.
type Alerter struct {
	cfg      config.MonitoringConfig
	client   *http.Client
	log      *zap.Logger
	cooldown time.Duration
	now      func() time.Time

	mu       sync.Mutex
	lastSent map[AlertType]time.Time
}

// NewAlerter creates an Alerter. The resend cooldown for an alert type is the
// lookback window.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	cooldown := time.Duration(cfg.LookbackWindowHours) * time.Hour
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &Alerter{
		cfg:      cfg,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      zap.L().With(zap.String("component", "monitoring.alerter")),
		cooldown: cooldown,
		now:      time.Now,
		lastSent: make(map[AlertType]time.Time),
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.RunsCompleted + snap.RunsFailed
	if finished >= minFinishedRuns && snap.RunFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Inventory run failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.RunFailRate*100, a.cfg.FailureRateThreshold*100,
				snap.RunsFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.RunFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.RunsFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if a.cfg.CostThresholdUSD > 0 && snap.APICostUSD > a.cfg.CostThresholdUSD {
		alerts = append(alerts, Alert{
			Type:     AlertCostOverrun,
			Severity: "high",
			Message: fmt.Sprintf(
				"Model API cost $%.2f exceeds threshold $%.2f in last %dh",
				snap.APICostUSD, a.cfg.CostThresholdUSD, snap.LookbackHours,
			),
			Details: map[string]any{
				"cost_usd":      snap.APICostUSD,
				"threshold_usd": a.cfg.CostThresholdUSD,
				"api_calls":     snap.APICalls,
			},
			Timestamp: now,
		})
	}

	if a.cfg.OverdueSourcesThreshold > 0 && snap.OverdueSources > a.cfg.OverdueSourcesThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertSourceBacklog,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d sources are overdue for a check (threshold %d)",
				snap.OverdueSources, a.cfg.OverdueSourcesThreshold,
			),
			Details: map[string]any{
				"overdue_sources": snap.OverdueSources,
				"threshold":       a.cfg.OverdueSourcesThreshold,
				"runs_running":    snap.RunsRunning,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL and returns the
// number sent. An alert type already delivered within the cooldown is
// suppressed, so a condition that persists across checks pages once.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	sent := 0
	for _, alert := range alerts {
		if last, ok := a.lastSent[alert.Type]; ok && a.now().Sub(last) < a.cooldown {
			a.log.Debug("alert suppressed", zap.String("type", string(alert.Type)), zap.Time("last_sent", last))
			continue
		}
		if err := a.sendWebhook(ctx, alert); err != nil {
			a.log.Error("send alert failed",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		a.log.Info("alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		a.lastSent[alert.Type] = a.now()
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	if alert.Service == "" {
		alert.Service = serviceName
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
