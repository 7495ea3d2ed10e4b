// Package vibariant provides a Go client for the statistical decision
// service's HTTP API.
package vibariant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Version is the SDK version.
const Version = "1.0.0"

// DefaultBaseURL is the default decision service base URL.
const DefaultBaseURL = "http://localhost:8080"

// ============================================================
// Client
// ============================================================

// Client is the decision service API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	userAgent  string
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new decision service API client. apiKey is sent
// as a bearer token and doubles as the project ID the server buckets
// history, caching, and concurrency limits by.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		apiKey:    apiKey,
		userAgent: fmt.Sprintf("vibariant-go-sdk/%s", Version),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// request performs an HTTP request.
func (c *Client) request(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseError(resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

// ============================================================
// Error Types
// ============================================================

// Error represents an API error.
type Error struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Code       string `json:"code,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("vibariant: %s (status %d)", e.Message, e.StatusCode)
}

// apiError lets the typed errors below embed Error without the embedded
// field's name hiding the promoted Error method.
type apiError = Error

// AuthenticationError indicates a missing or invalid API key.
type AuthenticationError struct{ apiError }

// InvalidConfigError indicates a rejected EngineConfig (mirrors the
// server's 400 invalid_config response).
type InvalidConfigError struct{ apiError }

// InvalidDataError indicates a rejected snapshot (mirrors the server's
// 422 invalid_data response).
type InvalidDataError struct{ apiError }

// RateLimitError indicates too many requests, or too many concurrent
// evaluations for this caller.
type RateLimitError struct{ apiError }

func parseError(statusCode int, body []byte) error {
	var apiErr struct {
		Code    string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &apiErr)

	baseErr := Error{
		StatusCode: statusCode,
		Message:    apiErr.Message,
		Code:       apiErr.Code,
	}

	if baseErr.Message == "" {
		baseErr.Message = http.StatusText(statusCode)
	}

	switch statusCode {
	case 401:
		return &AuthenticationError{apiError: baseErr}
	case 400:
		return &InvalidConfigError{apiError: baseErr}
	case 422:
		return &InvalidDataError{apiError: baseErr}
	case 429:
		return &RateLimitError{apiError: baseErr}
	default:
		return &baseErr
	}
}

// ============================================================
// Engine wire types
//
// Mirrors engine.ExperimentSnapshot/EngineConfig/EngineResult field
// for field. Duplicated rather than imported so this module keeps its
// own go.mod free of a dependency on the service module, same as the
// decision service keeps no dependency on its callers.
// ============================================================

// VariantKey identifies one arm of an experiment. The first entry in
// EvaluateRequest.Variants is conventionally the control.
type VariantKey = string

// BetaPrior is an explicit Beta(alpha, beta) prior.
type BetaPrior struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
}

// CUPEDSource selects how the CUPED coefficient theta is estimated.
type CUPEDSource string

const (
	CUPEDPooled     CUPEDSource = "pooled"
	CUPEDPerVariant CUPEDSource = "per_variant"
)

// EngineConfig holds the recognized engine options, matching the
// service's engine.EngineConfig. Leave a field zero to let the server
// apply its own default.
type EngineConfig struct {
	Prior            *BetaPrior  `json:"prior,omitempty"`
	LossThreshold    float64     `json:"loss_threshold,omitempty"`
	ROPEHalfWidth    float64     `json:"rope_half_width,omitempty"`
	HDIMass          float64     `json:"hdi_mass,omitempty"`
	MCSamples        int         `json:"mc_samples,omitempty"`
	MCSeed           *int64      `json:"mc_seed,omitempty"`
	MinTotalN        int         `json:"min_total_n,omitempty"`
	ExploreFloor     float64     `json:"explore_floor,omitempty"`
	TopTwoBeta       float64     `json:"top_two_beta,omitempty"`
	UseProxy         bool        `json:"use_proxy,omitempty"`
	WinsorizeP       float64     `json:"winsorize_p,omitempty"`
	CUPEDThetaSource CUPEDSource `json:"cuped_theta_source,omitempty"`
	Shrinkage        bool        `json:"shrinkage,omitempty"`
}

// EvaluateRequest is the POST body for /v1/experiments/{id}/evaluate.
type EvaluateRequest struct {
	Variants    []VariantKey             `json:"variants"`
	Exposures   map[VariantKey]int       `json:"exposures"`
	Conversions map[VariantKey]int       `json:"conversions"`
	Engagement  map[VariantKey][]float64 `json:"engagement,omitempty"`
	Covariate   map[VariantKey][]float64 `json:"covariate,omitempty"`
	Config      *EngineConfig            `json:"config,omitempty"`
}

// DecisionStatus is the outcome of the ROPE/epsilon decision stage.
type DecisionStatus string

const (
	DecisionCollectingData        DecisionStatus = "collecting_data"
	DecisionKeepTesting           DecisionStatus = "keep_testing"
	DecisionReadyToShip           DecisionStatus = "ready_to_ship"
	DecisionPracticallyEquivalent DecisionStatus = "practically_equivalent"
)

// RopeVerdict is the compact classification carried in RopeAnalysis.
type RopeVerdict string

const (
	RopeEquivalent RopeVerdict = "equivalent"
	RopeShipA      RopeVerdict = "ship_a"
	RopeShipB      RopeVerdict = "ship_b"
	RopeUndecided  RopeVerdict = "undecided"
)

// VariantResult is the per-variant slice of EngineResult.
type VariantResult struct {
	VariantKey       VariantKey `json:"variant_key"`
	Exposures        int        `json:"visitors"`
	Conversions      int        `json:"conversions"`
	ConversionRate   float64    `json:"conversion_rate"`
	PosteriorAlpha   float64    `json:"posterior_alpha"`
	PosteriorBeta    float64    `json:"posterior_beta"`
	PosteriorMean    float64    `json:"posterior_mean"`
	CredibleInterval [2]float64 `json:"credible_interval"`
	EngagementScore  *float64   `json:"engagement_score"`
	ProbabilityBest  float64    `json:"probability_best"`
	ExpectedLoss     float64    `json:"expected_loss"`
}

// Decision is the ROPE/epsilon classification for the snapshot.
type Decision struct {
	DecisionStatus     DecisionStatus `json:"decision_status"`
	WinningVariant     *string        `json:"winning_variant"`
	LeadingVariantLoss float64        `json:"leading_variant_loss"`
	EpsilonThreshold   float64        `json:"epsilon_threshold"`
	ConfidencePct      float64        `json:"confidence_pct"`
	EstimatedDays      *int           `json:"estimated_days"`
}

// RopeAnalysis is nil for collecting_data results and populated otherwise.
type RopeAnalysis struct {
	Rope     [2]float64  `json:"rope"`
	HDI      [2]float64  `json:"hdi"`
	Decision RopeVerdict `json:"decision"`
}

// EngineResult is the full decoded response of Evaluate.
type EngineResult struct {
	ExperimentKey       string             `json:"experiment_key"`
	TotalVisitors       int                `json:"total_visitors"`
	Variants            []VariantResult    `json:"variants"`
	ProbabilityBBeatsA  *float64           `json:"probability_b_beats_a"`
	Decision            Decision           `json:"decision"`
	RopeAnalysis        *RopeAnalysis      `json:"rope_analysis"`
	SuggestedAllocation map[string]float64 `json:"suggested_allocation"`
	RawEffectSize       *float64           `json:"raw_effect_size"`
	ShrunkEffectSize    *float64           `json:"shrunk_effect_size"`
	PriorUsed           string             `json:"prior_used"`
	Recommendation      string             `json:"recommendation"`
}

// CalibrationSample is one historical visitor record fed to Calibrate.
type CalibrationSample struct {
	ScrollDepth float64 `json:"scroll_depth"`
	ActiveTime  float64 `json:"active_time"`
	ClickCount  float64 `json:"click_count"`
	FormEngaged float64 `json:"form_engaged"`
	Converted   bool    `json:"converted"`
}

// CalibrateResponse is the response of POST .../calibrate.
type CalibrateResponse struct {
	Weights struct {
		ScrollDepth float64 `json:"scroll_depth"`
		ActiveTime  float64 `json:"active_time"`
		ClickCount  float64 `json:"click_count"`
		FormEngaged float64 `json:"form_engaged"`
	} `json:"weights"`
	SampleCount int `json:"sample_count"`
}

// CacheStats is the response of GET /v1/cache/stats.
type CacheStats struct {
	Entries int     `json:"entries"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Health represents service health.
type Health struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// ============================================================
// Evaluate / Calibrate
// ============================================================

// Evaluate runs the decision engine over a snapshot for experimentKey.
func (c *Client) Evaluate(ctx context.Context, experimentKey string, req *EvaluateRequest) (*EngineResult, error) {
	var result EngineResult
	path := "/v1/experiments/" + experimentKey + "/evaluate"
	if err := c.request(ctx, "POST", path, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Calibrate fits engagement-score weights from historical visitor data.
func (c *Client) Calibrate(ctx context.Context, experimentKey string, samples []CalibrationSample) (*CalibrateResponse, error) {
	var resp CalibrateResponse
	path := "/v1/experiments/" + experimentKey + "/calibrate"
	body := map[string]interface{}{"samples": samples}
	if err := c.request(ctx, "POST", path, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ============================================================
// Result cache administration
// ============================================================

// CacheStats returns result-cache hit-rate statistics.
func (c *Client) CacheStats(ctx context.Context) (*CacheStats, error) {
	var stats CacheStats
	if err := c.request(ctx, "GET", "/v1/cache/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// FlushCache clears every cached result on the server, across all
// projects.
func (c *Client) FlushCache(ctx context.Context) error {
	return c.request(ctx, "DELETE", "/v1/cache", nil, nil)
}

// FlushCacheNamespace clears every cached result under one namespace.
// The server namespaces cached results by project ID (the API key).
func (c *Client) FlushCacheNamespace(ctx context.Context, namespace string) error {
	return c.request(ctx, "DELETE", "/v1/cache/"+namespace, nil, nil)
}

// ============================================================
// Health
// ============================================================

// HealthCheck checks service liveness.
func (c *Client) HealthCheck(ctx context.Context) (*Health, error) {
	var health Health
	if err := c.request(ctx, "GET", "/healthz", nil, &health); err != nil {
		return nil, err
	}
	return &health, nil
}
