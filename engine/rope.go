package engine

import "math"

// tieBreakEpsilon is the tolerance within which two expected-loss values
// are considered tied; ties are broken by variant ordering (§4.5).
const tieBreakEpsilon = 1e-12

// decisionInputs bundles everything the ROPE/epsilon decision stage
// needs from upstream stages.
type decisionInputs struct {
	snapshot       ExperimentSnapshot
	cfg            EngineConfig
	draws          mcDraws
	expectedLoss   map[VariantKey]float64
}

// runnerUp returns the index (within draws.variants) of the
// second-lowest-expected-loss variant, i.e. the leader's strongest
// competitor, given the leader's index.
func runnerUp(variants []VariantKey, loss map[VariantKey]float64, leaderIdx int) int {
	best := -1
	for i, v := range variants {
		if i == leaderIdx {
			continue
		}
		if best == -1 || loss[v] < loss[variants[best]]-tieBreakEpsilon {
			best = i
		}
	}
	return best
}

// leadingVariant returns the index of argmin expected_loss, breaking
// ties by earliest position in the variant ordering for determinism.
func leadingVariant(variants []VariantKey, loss map[VariantKey]float64) int {
	best := 0
	for i := 1; i < len(variants); i++ {
		if loss[variants[i]] < loss[variants[best]]-tieBreakEpsilon {
			best = i
		}
	}
	return best
}

// decide applies the first-matching-rule decision procedure of §4.5 and,
// when at least two variants exist, the RopeAnalysis block of §6.
func decide(in decisionInputs) (Decision, *RopeAnalysis) {
	variants := in.draws.variants

	leaderIdx := leadingVariant(variants, in.expectedLoss)
	leaderKey := variants[leaderIdx]
	leaderLoss := in.expectedLoss[leaderKey]

	dec := Decision{
		LeadingVariantLoss: leaderLoss,
		EpsilonThreshold:   in.cfg.LossThreshold,
		ConfidencePct:      confidencePct(in.cfg.LossThreshold, leaderLoss),
	}

	// Rule 1: insufficient exposure to make a call. Gated on the
	// thinnest arm rather than the sum — a large total with one
	// under-exposed variant is exactly the case this rule exists to
	// catch, and the worked scenario of §8 (two 30-visitor arms at the
	// default min_total_n=30) only resolves to collecting_data under a
	// per-arm reading; see DESIGN.md for the full rationale.
	minExposure := in.snapshot.Exposures[variants[0]]
	for _, v := range variants {
		if in.snapshot.Exposures[v] < minExposure {
			minExposure = in.snapshot.Exposures[v]
		}
	}
	if minExposure <= in.cfg.MinTotalN {
		dec.DecisionStatus = DecisionCollectingData
		dec.WinningVariant = nil
		return dec, nil
	}

	if len(variants) < 2 {
		dec.DecisionStatus = DecisionKeepTesting
		return dec, nil
	}

	runnerIdx := runnerUp(variants, in.expectedLoss, leaderIdx)
	diff := in.draws.pairwiseDifference(leaderIdx, runnerIdx)
	hdi := highestDensityInterval(diff, in.cfg.HDIMass)

	rope := RopeAnalysis{
		Rope: [2]float64{-in.cfg.ROPEHalfWidth, in.cfg.ROPEHalfWidth},
		HDI:  hdi,
	}

	within := hdi[0] >= -in.cfg.ROPEHalfWidth && hdi[1] <= in.cfg.ROPEHalfWidth
	oneSided := (hdi[0] > 0 && hdi[1] > 0) || (hdi[0] < 0 && hdi[1] < 0)

	switch {
	case within:
		dec.DecisionStatus = DecisionPracticallyEquivalent
		dec.WinningVariant = nil
		rope.Decision = RopeEquivalent
	case leaderLoss <= in.cfg.LossThreshold && oneSided:
		dec.DecisionStatus = DecisionReadyToShip
		winner := leaderKey
		dec.WinningVariant = &winner
		rope.Decision = ropeShipVerdict(leaderIdx)
	default:
		dec.DecisionStatus = DecisionKeepTesting
		rope.Decision = RopeUndecided
	}

	return dec, &rope
}

// ropeShipVerdict reports ship_a/ship_b using the winning variant's
// position in the original ordering (index 0 is "a").
func ropeShipVerdict(winnerIdx int) RopeVerdict {
	if winnerIdx == 0 {
		return RopeShipA
	}
	return RopeShipB
}

// confidencePct is min(100, loss_threshold/leading_loss * 100), with the
// degenerate leading_loss==0 case reported as full confidence.
func confidencePct(threshold, leaderLoss float64) float64 {
	if leaderLoss <= 0 {
		return 100
	}
	pct := (threshold / leaderLoss) * 100
	if pct > 100 {
		pct = 100
	}
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return 100
	}
	return pct
}
