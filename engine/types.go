// Package engine implements the statistical decision core of vibariant:
// a Beta-Binomial Bayesian engine that turns per-variant exposure and
// conversion counts (plus optional engagement signals and cross-experiment
// history) into a ship/keep-testing/equivalence decision, a Thompson
// sampling traffic allocation, and a plain-English recommendation.
//
// Evaluate is a pure function of its inputs: it never logs, never blocks
// on I/O, and never mutates caller-owned state. Everything the caller
// needs to persist (calibrated engagement weights, historical priors)
// is returned as ordinary values.
package engine

// VariantKey identifies one arm of an experiment. The first entry in
// ExperimentSnapshot.Variants is conventionally the control.
type VariantKey = string

// ExperimentSnapshot is the immutable input to Evaluate.
type ExperimentSnapshot struct {
	ExperimentKey string                 `json:"experiment_key"`
	Variants      []VariantKey           `json:"variants"`
	Exposures     map[VariantKey]int     `json:"exposures"`
	Conversions   map[VariantKey]int     `json:"conversions"`
	Engagement    map[VariantKey][]float64 `json:"engagement,omitempty"`
	Covariate     map[VariantKey][]float64 `json:"covariate,omitempty"`
	Config        EngineConfig           `json:"config"`
	History       []HistoricalExperiment `json:"history,omitempty"`
}

// HistoricalExperiment summarizes one past completed experiment for the
// same project, used by the Prior Resolver, Shrinkage Corrector, and the
// estimated-days forecast.
type HistoricalExperiment struct {
	ExperimentKey          string  `json:"experiment_key"`
	ControlConversionRate  float64 `json:"control_conversion_rate"`
	ControlSampleSize      int     `json:"control_sample_size"`
	TreatmentConversionRate float64 `json:"treatment_conversion_rate"`
	TreatmentSampleSize    int     `json:"treatment_sample_size"`
	DailyVisitors          float64 `json:"daily_visitors,omitempty"`
}

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

// EngineConfig holds the recognized engine options. Zero values are not
// meaningful on their own — call DefaultConfig() and override fields.
// Evaluate substitutes DefaultConfig() when both MCSamples and HDIMass
// are zero.
type EngineConfig struct {
	Prior            *BetaPrior  `json:"prior,omitempty"`
	LossThreshold    float64     `json:"loss_threshold"`
	ROPEHalfWidth    float64     `json:"rope_half_width"`
	HDIMass          float64     `json:"hdi_mass"`
	MCSamples        int         `json:"mc_samples"`
	MCSeed           *int64      `json:"mc_seed,omitempty"`
	MinTotalN        int         `json:"min_total_n"`
	ExploreFloor     float64     `json:"explore_floor"`
	TopTwoBeta       float64     `json:"top_two_beta"`
	UseProxy         bool        `json:"use_proxy"`
	WinsorizeP       float64     `json:"winsorize_p"`
	CUPEDThetaSource CUPEDSource `json:"cuped_theta_source"`
	Shrinkage        bool        `json:"shrinkage"`
}

// DefaultConfig returns the documented default EngineConfig (§3).
func DefaultConfig() EngineConfig {
	return EngineConfig{
		Prior:            nil,
		LossThreshold:    0.005,
		ROPEHalfWidth:    0.005,
		HDIMass:          0.95,
		MCSamples:        20000,
		MCSeed:           nil,
		MinTotalN:        30,
		ExploreFloor:     0.10,
		TopTwoBeta:       0.5,
		UseProxy:         true,
		WinsorizeP:       0.99,
		CUPEDThetaSource: CUPEDPooled,
		Shrinkage:        true,
	}
}

// PriorSource records which tier of the Prior Resolver's fallback chain
// produced the posterior's prior.
type PriorSource string

const (
	PriorUserSpecified    PriorSource = "user_specified"
	PriorProjectHistorical PriorSource = "project_historical"
	PriorPlatformDefault  PriorSource = "platform_default"
)

// DecisionStatus is the outcome of the ROPE/epsilon decision stage.
type DecisionStatus string

const (
	DecisionCollectingData      DecisionStatus = "collecting_data"
	DecisionKeepTesting         DecisionStatus = "keep_testing"
	DecisionReadyToShip         DecisionStatus = "ready_to_ship"
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
	VariantKey        string   `json:"variant_key"`
	Visitors          int      `json:"visitors"`
	Conversions       int      `json:"conversions"`
	ConversionRate    float64  `json:"conversion_rate"`
	PosteriorAlpha    float64  `json:"posterior_alpha"`
	PosteriorBeta     float64  `json:"posterior_beta"`
	PosteriorMean     float64  `json:"posterior_mean"`
	CredibleInterval  [2]float64 `json:"credible_interval"`
	EngagementScore   *float64 `json:"engagement_score"`
	ProbabilityBest   float64  `json:"probability_best"`
	ExpectedLoss      float64  `json:"expected_loss"`
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

// RopeAnalysis is populated once the snapshot is past collecting_data;
// it is nil for collecting_data results.
type RopeAnalysis struct {
	Rope     [2]float64 `json:"rope"`
	HDI      [2]float64 `json:"hdi"`
	Decision RopeVerdict `json:"decision"`
}

// EngineResult is the full output of Evaluate, per §6.
type EngineResult struct {
	ExperimentKey        string              `json:"experiment_key"`
	TotalVisitors        int                 `json:"total_visitors"`
	Variants             []VariantResult     `json:"variants"`
	ProbabilityBBeatsA   *float64            `json:"probability_b_beats_a"`
	Decision             Decision            `json:"decision"`
	RopeAnalysis         *RopeAnalysis       `json:"rope_analysis"`
	SuggestedAllocation  map[string]float64  `json:"suggested_allocation"`
	RawEffectSize        *float64            `json:"raw_effect_size"`
	ShrunkEffectSize     *float64            `json:"shrunk_effect_size"`
	PriorUsed            PriorSource         `json:"prior_used"`
	Recommendation       string              `json:"recommendation"`

	// StageDurations records wall-clock time spent in each pipeline
	// stage, keyed by stage name, for tracing/diagnostics. Omitted from
	// the wire format; callers that want per-stage spans read this.
	StageDurations map[string]float64 `json:"-"`
}

// PipelineStages lists Evaluate's stages in execution order, matching
// the keys of EngineResult.StageDurations.
var PipelineStages = []string{
	"prior_resolver",
	"proxy_scorer",
	"posterior_engine",
	"monte_carlo_sampler",
	"rope_decision",
	"bandit_allocator",
	"shrinkage_corrector",
	"recommender",
}
