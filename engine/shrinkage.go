package engine

// minHistoryForShrinkage is the floor on prior experiments before
// between-experiment variance tau^2 is estimated; below it shrinkage is
// disabled (tau^2 = 0, so the shrunk estimate equals the raw one) per
// §4.7.
const minHistoryForShrinkage = 5

// shrinkageResult carries the raw and James-Stein shrunk effect size for
// the control-vs-leading-treatment comparison. Only computed when there
// are at least two variants; nil raw/shrunk fields otherwise.
type shrinkageResult struct {
	raw   *float64
	shrunk *float64
}

// computeShrinkage implements §4.7: it shrinks the observed effect size
// of the control (first variant) against the leader, or against the
// runner-up when the control leads, toward the cross-experiment mean
// effect, using between-experiment variance estimated from history.
// Shrinkage is diagnostic only — it never feeds back into the decision
// in §4.5, which always uses the raw (unshrunk) posterior samples.
func computeShrinkage(posteriors map[VariantKey]posterior, variants []VariantKey, history []HistoricalExperiment, draws mcDraws, leaderIdx, runnerIdx int, cfg EngineConfig) shrinkageResult {
	if len(variants) < 2 || leaderIdx < 0 || runnerIdx < 0 {
		return shrinkageResult{}
	}

	controlIdx := 0
	treatmentIdx := leaderIdx
	if treatmentIdx == controlIdx {
		treatmentIdx = runnerIdx
	}

	dHat := posteriors[variants[treatmentIdx]].mean() - posteriors[variants[controlIdx]].mean()
	raw := dHat

	if !cfg.Shrinkage {
		return shrinkageResult{raw: &raw, shrunk: &raw}
	}

	dBar, tau2 := crossExperimentEffect(history)
	if tau2 <= 0 {
		// Shrinkage neutrality: no usable history means shrunk == raw.
		shrunk := dHat
		return shrinkageResult{raw: &raw, shrunk: &shrunk}
	}

	diff := draws.pairwiseDifference(treatmentIdx, controlIdx)
	sigma2 := sampleVariance(diff, mean(diff))

	shrunk := dBar + (tau2/(tau2+sigma2))*(dHat-dBar)
	return shrinkageResult{raw: &raw, shrunk: &shrunk}
}

// crossExperimentEffect estimates the grand-mean treatment effect and
// its between-experiment variance from history's control/treatment
// conversion-rate pairs. Returns tau2 = 0 when fewer than
// minHistoryForShrinkage experiments are available, signalling to the
// caller that shrinkage should be a no-op.
func crossExperimentEffect(history []HistoricalExperiment) (float64, float64) {
	if len(history) < minHistoryForShrinkage {
		return 0, 0
	}

	effects := make([]float64, 0, len(history))
	for _, h := range history {
		effects = append(effects, h.TreatmentConversionRate-h.ControlConversionRate)
	}

	dBar := mean(effects)
	tau2 := sampleVariance(effects, dBar)
	return dBar, tau2
}
