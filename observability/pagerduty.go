// PagerDuty Events API v2 integration: fires alerts when a project's
// ConfigError rate spikes, escalating snapshot and configuration
// failures to on-call rather than letting them pass silently.
package observability

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// PagerDutyConfig holds configuration for PagerDuty Events API v2.
type PagerDutyConfig struct {
	// RoutingKey is the PagerDuty Events API v2 integration key.
	RoutingKey string
	// Enabled controls whether alerts are sent.
	Enabled bool
	// SourceName identifies this service instance (e.g., "vibariant-prod-01").
	SourceName string
	// HTTPTimeout for the PagerDuty API call.
	HTTPTimeout time.Duration
}

// DefaultPagerDutyConfig returns defaults.
func DefaultPagerDutyConfig() PagerDutyConfig {
	return PagerDutyConfig{
		RoutingKey:  "",
		Enabled:     false,
		SourceName:  "vibariant",
		HTTPTimeout: 10 * time.Second,
	}
}

// PagerDutySeverity maps to PagerDuty alert severity.
type PagerDutySeverity string

const (
	PDSeverityCritical PagerDutySeverity = "critical"
	PDSeverityError    PagerDutySeverity = "error"
	PDSeverityWarning  PagerDutySeverity = "warning"
	PDSeverityInfo     PagerDutySeverity = "info"
)

// PagerDutyClient sends incidents to PagerDuty Events API v2.
type PagerDutyClient struct {
	cfg    PagerDutyConfig
	client *http.Client
	logger zerolog.Logger
}

const pagerDutyEventsURL = "https://events.pagerduty.com/v2/enqueue"

// NewPagerDutyClient creates a PagerDuty alerting client.
func NewPagerDutyClient(cfg PagerDutyConfig, logger zerolog.Logger) *PagerDutyClient {
	return &PagerDutyClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		logger: logger.With().Str("component", "pagerduty").Logger(),
	}
}

// TriggerAlert fires a PagerDuty alert.
func (pd *PagerDutyClient) TriggerAlert(
	severity PagerDutySeverity,
	summary string,
	dedupKey string,
	details map[string]interface{},
) error {
	if !pd.cfg.Enabled || pd.cfg.RoutingKey == "" {
		pd.logger.Debug().Str("summary", summary).Msg("PagerDuty disabled — alert suppressed")
		return nil
	}

	payload := map[string]interface{}{
		"routing_key":  pd.cfg.RoutingKey,
		"event_action": "trigger",
		"dedup_key":    dedupKey,
		"payload": map[string]interface{}{
			"summary":   summary,
			"severity":  string(severity),
			"source":    pd.cfg.SourceName,
			"component": "alfred-gateway",
			"group":     "ai-platform",
			"class":     "infrastructure",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"custom_details": details,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("pagerduty: marshal failed: %w", err)
	}

	resp, err := pd.client.Post(pagerDutyEventsURL, "application/json", bytes.NewReader(body))
	if err != nil {
		pd.logger.Error().Err(err).Str("dedup_key", dedupKey).Msg("PagerDuty API call failed")
		return fmt.Errorf("pagerduty: API call failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		pd.logger.Error().Int("status", resp.StatusCode).Str("dedup_key", dedupKey).Msg("PagerDuty API error")
		return fmt.Errorf("pagerduty: HTTP %d", resp.StatusCode)
	}

	pd.logger.Info().Str("dedup_key", dedupKey).Str("severity", string(severity)).Msg("PagerDuty alert triggered")
	return nil
}

// ResolveAlert resolves a previously triggered alert.
func (pd *PagerDutyClient) ResolveAlert(dedupKey string) error {
	if !pd.cfg.Enabled || pd.cfg.RoutingKey == "" {
		return nil
	}

	payload := map[string]interface{}{
		"routing_key":  pd.cfg.RoutingKey,
		"event_action": "resolve",
		"dedup_key":    dedupKey,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("pagerduty: marshal failed: %w", err)
	}

	resp, err := pd.client.Post(pagerDutyEventsURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("pagerduty: resolve call failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	pd.logger.Info().Str("dedup_key", dedupKey).Msg("PagerDuty alert resolved")
	return nil
}

// ─── Convenience Wrappers for Common Alerts ─────────────────

// AlertConfigErrorSpike fires a critical alert when a project's
// ConfigError rate exceeds threshold over the given window.
func (pd *PagerDutyClient) AlertConfigErrorSpike(projectID string, errorRate float64, window string) error {
	return pd.TriggerAlert(
		PDSeverityCritical,
		fmt.Sprintf("vibariant: ConfigError rate %.1f%% for project %s over %s", errorRate*100, projectID, window),
		fmt.Sprintf("vibariant-config-error-spike-%s", projectID),
		map[string]interface{}{
			"project_id": projectID,
			"error_rate": errorRate,
			"window":     window,
		},
	)
}

// AlertConfigErrorRecovered resolves a previously fired ConfigError spike alert.
func (pd *PagerDutyClient) AlertConfigErrorRecovered(projectID string) error {
	return pd.ResolveAlert(fmt.Sprintf("vibariant-config-error-spike-%s", projectID))
}
