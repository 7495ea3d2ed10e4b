package engine

import (
	"gonum.org/v1/gonum/mat"
)

// EngagementFeatures is one visitor's raw proxy-metric inputs, in the
// order scroll depth, active time, click count, form engagement —
// matching the default-weight ordering documented in §4.2.
type EngagementFeatures struct {
	ScrollDepthPct float64 // 0-100
	ActiveTimeMs   float64
	ClickCount     float64
	FormEngaged    float64 // 0 or 1
}

// CalibrationSample pairs one visitor's raw features with their
// eventual conversion outcome, for offline weight calibration.
type CalibrationSample struct {
	Features    EngagementFeatures
	Converted   bool
}

// DefaultEngagementWeights are the documented default blend weights for
// the Proxy Scorer (§4.2): scroll, time, clicks, form.
var DefaultEngagementWeights = [4]float64{0.3, 0.3, 0.2, 0.2}

// Calibrate fits ordinary least squares of saturated engagement features
// against conversion outcomes across a batch of historical visitors
// (§4.8), projects the fitted coefficients to the non-negative orthant
// by clipping, and renormalizes them to sum to 1. Calibration is pure
// and idempotent: repeated calls on the same samples return the same
// weights within numerical tolerance — callers persist the result as the
// new default engagement weights.
func Calibrate(samples []CalibrationSample) [4]float64 {
	n := len(samples)
	if n == 0 {
		return DefaultEngagementWeights
	}

	X := mat.NewDense(n, 4, nil)
	y := mat.NewDense(n, 1, nil)

	for i, s := range samples {
		X.Set(i, 0, saturate(s.Features.ScrollDepthPct/100, 1))
		X.Set(i, 1, saturate(s.Features.ActiveTimeMs/60000, 1))
		X.Set(i, 2, saturate(s.Features.ClickCount/10, 1))
		X.Set(i, 3, saturate(s.Features.FormEngaged, 1))
		if s.Converted {
			y.Set(i, 0, 1)
		}
	}

	var xtx mat.Dense
	xtx.Mul(X.T(), X)

	var xty mat.Dense
	xty.Mul(X.T(), y)

	var xtxInv mat.Dense
	if err := xtxInv.Inverse(&xtx); err != nil {
		// Singular design matrix (e.g. a constant feature column) — fall
		// back to the documented defaults rather than propagating NaNs.
		return DefaultEngagementWeights
	}

	var beta mat.Dense
	beta.Mul(&xtxInv, &xty)

	var weights [4]float64
	sum := 0.0
	for i := 0; i < 4; i++ {
		w := beta.At(i, 0)
		if w < 0 {
			w = 0
		}
		weights[i] = w
		sum += w
	}

	if sum <= 0 {
		return DefaultEngagementWeights
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights
}

// saturate clips x to [0, ceiling].
func saturate(x, ceiling float64) float64 {
	if x < 0 {
		return 0
	}
	if x > ceiling {
		return ceiling
	}
	return x
}

// BlendEngagement combines the four raw engagement features into the
// bounded [0,1] proxy score the Proxy Scorer (§4.2) consumes, using the
// given weights (DefaultEngagementWeights, or a calibrated vector).
func BlendEngagement(f EngagementFeatures, weights [4]float64) float64 {
	score := weights[0]*saturate(f.ScrollDepthPct/100, 1) +
		weights[1]*saturate(f.ActiveTimeMs/60000, 1) +
		weights[2]*saturate(f.ClickCount/10, 1) +
		weights[3]*saturate(f.FormEngaged, 1)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
