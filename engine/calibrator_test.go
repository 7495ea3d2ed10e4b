package engine

import (
	"math"
	"testing"
)

func TestCalibrateEmptySamplesReturnsDefaults(t *testing.T) {
	weights := Calibrate(nil)
	if weights != DefaultEngagementWeights {
		t.Errorf("weights = %v, want defaults %v", weights, DefaultEngagementWeights)
	}
}

func TestCalibrateWeightsSumToOne(t *testing.T) {
	samples := []CalibrationSample{
		{Features: EngagementFeatures{ScrollDepthPct: 10, ActiveTimeMs: 2000, ClickCount: 1, FormEngaged: 0}, Converted: false},
		{Features: EngagementFeatures{ScrollDepthPct: 90, ActiveTimeMs: 50000, ClickCount: 8, FormEngaged: 1}, Converted: true},
		{Features: EngagementFeatures{ScrollDepthPct: 20, ActiveTimeMs: 5000, ClickCount: 2, FormEngaged: 0}, Converted: false},
		{Features: EngagementFeatures{ScrollDepthPct: 80, ActiveTimeMs: 40000, ClickCount: 6, FormEngaged: 1}, Converted: true},
		{Features: EngagementFeatures{ScrollDepthPct: 30, ActiveTimeMs: 10000, ClickCount: 3, FormEngaged: 0}, Converted: false},
		{Features: EngagementFeatures{ScrollDepthPct: 95, ActiveTimeMs: 58000, ClickCount: 9, FormEngaged: 1}, Converted: true},
		{Features: EngagementFeatures{ScrollDepthPct: 5, ActiveTimeMs: 500, ClickCount: 0, FormEngaged: 0}, Converted: false},
		{Features: EngagementFeatures{ScrollDepthPct: 70, ActiveTimeMs: 35000, ClickCount: 5, FormEngaged: 1}, Converted: true},
	}

	weights := Calibrate(samples)

	sum := 0.0
	for _, w := range weights {
		if w < 0 {
			t.Errorf("weight %v is negative", w)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("weights sum to %.9f, want 1.0", sum)
	}
}

func TestCalibrateSingularDesignFallsBackToDefaults(t *testing.T) {
	// Every feature column constant: X^T X is singular.
	samples := []CalibrationSample{
		{Features: EngagementFeatures{ScrollDepthPct: 50, ActiveTimeMs: 1000, ClickCount: 1, FormEngaged: 1}, Converted: true},
		{Features: EngagementFeatures{ScrollDepthPct: 50, ActiveTimeMs: 1000, ClickCount: 1, FormEngaged: 1}, Converted: false},
		{Features: EngagementFeatures{ScrollDepthPct: 50, ActiveTimeMs: 1000, ClickCount: 1, FormEngaged: 1}, Converted: true},
	}

	weights := Calibrate(samples)
	if weights != DefaultEngagementWeights {
		t.Errorf("weights = %v, want defaults for singular design", weights)
	}
}

func TestBlendEngagementBounded(t *testing.T) {
	f := EngagementFeatures{ScrollDepthPct: 100, ActiveTimeMs: 120000, ClickCount: 50, FormEngaged: 1}
	score := BlendEngagement(f, DefaultEngagementWeights)
	if score < 0 || score > 1 {
		t.Errorf("score = %v, want within [0,1]", score)
	}
	if math.Abs(score-1.0) > 1e-9 {
		t.Errorf("score = %v, want 1.0 for maxed-out features", score)
	}

	zero := BlendEngagement(EngagementFeatures{}, DefaultEngagementWeights)
	if zero != 0 {
		t.Errorf("score = %v, want 0 for zeroed features", zero)
	}
}
