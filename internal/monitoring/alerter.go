package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertStageFailureRate    AlertType = "stage_failure_rate"
	AlertDeliveryFailureRate AlertType = "delivery_failure_rate"
)

const defaultMinSamples = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *Alerter) minSamples() int {
	if a.cfg.MinSamples > 0 {
		return a.cfg.MinSamples
	}
	return defaultMinSamples
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
// Rates computed from fewer than MinSamples finished items are ignored.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	for _, kind := range []model.RunKind{model.RunKindIngest, model.RunKindQualify, model.RunKindOutreach} {
		st, ok := snap.Stages[kind]
		if !ok {
			continue
		}
		finished := st.Complete + st.Failed
		if finished < a.minSamples() || st.FailRate <= a.cfg.FailureRateThreshold {
			continue
		}
		alerts = append(alerts, Alert{
			Type:     AlertStageFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"%s run failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				kind, st.FailRate*100, a.cfg.FailureRateThreshold*100,
				st.Failed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"stage":        string(kind),
				"failure_rate": st.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       st.Failed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	delivered := snap.EmailsSent + snap.EmailsFailed
	if delivered >= a.minSamples() && snap.DeliveryFailureRate > a.cfg.DeliveryFailureThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertDeliveryFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Email delivery failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d attempted in last %dh)",
				snap.DeliveryFailureRate*100, a.cfg.DeliveryFailureThreshold*100,
				snap.EmailsFailed, delivered, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.DeliveryFailureRate,
				"threshold":    a.cfg.DeliveryFailureThreshold,
				"failed":       snap.EmailsFailed,
				"attempted":    delivered,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
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
