package engine

// minHistoricalExperiments is the floor on prior historical experiments
// required before empirical Bayes moment-matching is attempted (§4.1).
const minHistoricalExperiments = 3

// platformDefaultAlpha, platformDefaultBeta are the weakly-informative
// fallback prior Beta(1,19): a 5% conversion-rate expectation, used when
// no user prior is given and history is too thin or degenerate.
const (
	platformDefaultAlpha = 1.0
	platformDefaultBeta  = 19.0
)

// resolvePrior implements the three-tier fallback of §4.1. The same
// prior is used for every variant — asymmetric per-variant priors are
// out of scope.
func resolvePrior(cfg EngineConfig, history []HistoricalExperiment) (BetaPrior, PriorSource) {
	if cfg.Prior != nil {
		return *cfg.Prior, PriorUserSpecified
	}

	if prior, err := empiricalBayesPrior(history); err == nil {
		return prior, PriorProjectHistorical
	}

	return BetaPrior{Alpha: platformDefaultAlpha, Beta: platformDefaultBeta}, PriorPlatformDefault
}

// empiricalBayesPrior computes a Beta prior from the control-arm
// conversion rates of past experiments via method-of-moments matching,
// per §4.1. Returns errHistoryDegenerate when fewer than
// minHistoricalExperiments are available, or when the matched alpha/beta
// are non-positive (history's variance exceeds the Bernoulli bound
// m(1-m), which is mathematically impossible for a real Beta fit).
func empiricalBayesPrior(history []HistoricalExperiment) (BetaPrior, error) {
	if len(history) < minHistoricalExperiments {
		return BetaPrior{}, &errHistoryDegenerate{reason: "fewer than 3 historical experiments"}
	}

	rates := make([]float64, 0, len(history))
	for _, h := range history {
		if h.ControlSampleSize > 0 {
			rates = append(rates, h.ControlConversionRate)
		}
	}
	if len(rates) < minHistoricalExperiments {
		return BetaPrior{}, &errHistoryDegenerate{reason: "fewer than 3 usable control-arm rates"}
	}

	m := mean(rates)
	s2 := sampleVariance(rates, m)

	bound := m * (1 - m)
	if s2 <= 0 || s2 >= bound {
		return BetaPrior{}, &errHistoryDegenerate{reason: "sample variance not below m(1-m)"}
	}

	common := (bound / s2) - 1
	alpha := m * common
	beta := (1 - m) * common

	if alpha <= 0 || beta <= 0 {
		return BetaPrior{}, &errHistoryDegenerate{reason: "moment matching produced non-positive alpha or beta"}
	}

	return BetaPrior{Alpha: alpha, Beta: beta}, nil
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleVariance returns the population variance (divide by n, not n-1)
// to match the method-of-moments derivation in §4.1.
func sampleVariance(xs []float64, m float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return sum / float64(len(xs))
}
