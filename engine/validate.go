package engine

import "math"

const (
	maxMCSamples = 200000
	maxVariants  = 64
)

// validateConfig enforces the documented range of every EngineConfig
// option (§7). Unset numeric fields are assumed to already carry their
// documented default — callers should build configs from DefaultConfig().
func validateConfig(cfg EngineConfig) error {
	if cfg.HDIMass <= 0 || cfg.HDIMass >= 1 {
		return newConfigError("hdi_mass", "must lie in (0,1)")
	}
	if cfg.LossThreshold < 0 {
		return newConfigError("loss_threshold", "must be non-negative")
	}
	if cfg.ROPEHalfWidth < 0 {
		return newConfigError("rope_half_width", "must be non-negative")
	}
	if cfg.MCSamples <= 0 || cfg.MCSamples > maxMCSamples {
		return newConfigError("mc_samples", "must lie in (0, 200000]")
	}
	if cfg.MinTotalN < 0 {
		return newConfigError("min_total_n", "must be non-negative")
	}
	if cfg.ExploreFloor < 0 || cfg.ExploreFloor > 1 {
		return newConfigError("explore_floor", "must lie in [0,1]")
	}
	if cfg.TopTwoBeta < 0 || cfg.TopTwoBeta > 1 {
		return newConfigError("top_two_beta", "must lie in [0,1]")
	}
	if cfg.WinsorizeP <= 0 || cfg.WinsorizeP > 1 {
		return newConfigError("winsorize_p", "must lie in (0,1]")
	}
	if cfg.CUPEDThetaSource != "" && cfg.CUPEDThetaSource != CUPEDPooled && cfg.CUPEDThetaSource != CUPEDPerVariant {
		return newConfigError("cuped_theta_source", "must be 'pooled' or 'per_variant'")
	}
	if cfg.Prior != nil {
		if cfg.Prior.Alpha <= 0 || cfg.Prior.Beta <= 0 {
			return newConfigError("prior", "alpha and beta must be positive")
		}
	}
	return nil
}

// validateSnapshot enforces the data-model invariants of §3/§7 that are
// independent of config: variant list shape, exposure/conversion
// consistency, and finiteness of every numeric input.
func validateSnapshot(s ExperimentSnapshot) error {
	if len(s.Variants) == 0 {
		return newDataError("variants", "variant list must not be empty")
	}
	if len(s.Variants) < 2 {
		return newDataError("variants", "at least two variants are required")
	}
	if len(s.Variants) > maxVariants {
		return newDataError("variants", "exceeds the 64-variant ceiling")
	}

	seen := make(map[string]bool, len(s.Variants))
	for _, v := range s.Variants {
		if seen[v] {
			return newDataError("variants", "duplicate variant key: "+v)
		}
		seen[v] = true
	}

	for v := range s.Exposures {
		if !seen[v] {
			return newDataError("exposures", "unknown variant key: "+v)
		}
	}
	for v := range s.Conversions {
		if !seen[v] {
			return newDataError("conversions", "unknown variant key: "+v)
		}
	}

	for _, v := range s.Variants {
		n := s.Exposures[v]
		k := s.Conversions[v]
		if n < 0 {
			return newDataError("exposures", "negative exposure count for "+v)
		}
		if k < 0 {
			return newDataError("conversions", "negative conversion count for "+v)
		}
		if k > n {
			return newDataError("conversions", "conversions exceed exposures for "+v)
		}
	}

	for v, scores := range s.Engagement {
		if !seen[v] {
			return newDataError("engagement", "unknown variant key: "+v)
		}
		for _, x := range scores {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return newDataError("engagement", "non-finite value for "+v)
			}
		}
	}
	for v, xs := range s.Covariate {
		for _, x := range xs {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return newDataError("covariate", "non-finite value for "+v)
			}
		}
	}
	for _, h := range s.History {
		for _, x := range []float64{h.ControlConversionRate, h.TreatmentConversionRate, h.DailyVisitors} {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return newDataError("history", "non-finite value for "+h.ExperimentKey)
			}
		}
	}

	return nil
}

// totalExposure sums exposures across all declared variants.
func totalExposure(s ExperimentSnapshot) int {
	total := 0
	for _, v := range s.Variants {
		total += s.Exposures[v]
	}
	return total
}
