package engine

import (
	"math"
	"testing"
)

func seeded(seed int64) EngineConfig {
	cfg := DefaultConfig()
	cfg.MCSeed = &seed
	return cfg
}

func snapshot(variants []string, exposures, conversions map[string]int, cfg EngineConfig) ExperimentSnapshot {
	return ExperimentSnapshot{
		ExperimentKey: "exp-1",
		Variants:      variants,
		Exposures:     exposures,
		Conversions:   conversions,
		Config:        cfg,
	}
}

func mustEvaluate(t *testing.T, s ExperimentSnapshot) *EngineResult {
	t.Helper()
	res, err := Evaluate(s)
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	return res
}

// Scenario 1: A:100/1, B:100/0 — keep_testing, A favored but inconclusive.
func TestScenario1_KeepTestingOneConversion(t *testing.T) {
	s := snapshot([]string{"A", "B"},
		map[string]int{"A": 100, "B": 100},
		map[string]int{"A": 1, "B": 0},
		seeded(42))

	res := mustEvaluate(t, s)

	if res.Decision.DecisionStatus != DecisionKeepTesting {
		t.Errorf("decision_status = %q, want keep_testing", res.Decision.DecisionStatus)
	}

	var probA float64
	for _, v := range res.Variants {
		if v.VariantKey == "A" {
			probA = v.ProbabilityBest
		}
	}
	if probA <= 0.7 {
		t.Errorf("probability_best[A] = %.4f, want > 0.7", probA)
	}
	if res.SuggestedAllocation["A"] <= res.SuggestedAllocation["B"] {
		t.Errorf("allocation A (%.4f) should exceed B (%.4f)", res.SuggestedAllocation["A"], res.SuggestedAllocation["B"])
	}
}

// Scenario 2: A:30/0, B:30/0, no history — collecting_data at the
// min_total_n boundary (see DESIGN.md for the per-arm gating rationale).
func TestScenario2_CollectingDataAtFloor(t *testing.T) {
	s := snapshot([]string{"A", "B"},
		map[string]int{"A": 30, "B": 30},
		map[string]int{"A": 0, "B": 0},
		seeded(7))

	res := mustEvaluate(t, s)

	if res.Decision.DecisionStatus != DecisionCollectingData {
		t.Fatalf("decision_status = %q, want collecting_data", res.Decision.DecisionStatus)
	}

	floor := DefaultConfig().ExploreFloor / 2
	for _, v := range res.Variants {
		if math.Abs(res.SuggestedAllocation[v.VariantKey]-0.5) > 0.5-floor+1e-6 {
			t.Errorf("allocation[%s] = %.4f not within floor of uniform", v.VariantKey, res.SuggestedAllocation[v.VariantKey])
		}
	}
}

// Scenario 3: A:1000/50, B:1000/80 — ready_to_ship, B wins.
func TestScenario3_ReadyToShip(t *testing.T) {
	s := snapshot([]string{"A", "B"},
		map[string]int{"A": 1000, "B": 1000},
		map[string]int{"A": 50, "B": 80},
		seeded(99))

	res := mustEvaluate(t, s)

	if res.Decision.DecisionStatus != DecisionReadyToShip {
		t.Fatalf("decision_status = %q, want ready_to_ship", res.Decision.DecisionStatus)
	}
	if res.Decision.WinningVariant == nil || *res.Decision.WinningVariant != "B" {
		t.Errorf("winning_variant = %v, want B", res.Decision.WinningVariant)
	}
	if res.RawEffectSize == nil {
		t.Fatal("raw_effect_size is nil")
	}
	if math.Abs(*res.RawEffectSize-0.030) > 0.01 {
		t.Errorf("raw_effect_size = %.4f, want close to 0.030", *res.RawEffectSize)
	}
}

// Scenario 4: A:500/50, B:500/51 — practically_equivalent.
func TestScenario4_PracticallyEquivalent(t *testing.T) {
	s := snapshot([]string{"A", "B"},
		map[string]int{"A": 500, "B": 500},
		map[string]int{"A": 50, "B": 51},
		seeded(123))

	res := mustEvaluate(t, s)

	if res.Decision.DecisionStatus != DecisionPracticallyEquivalent {
		t.Fatalf("decision_status = %q, want practically_equivalent", res.Decision.DecisionStatus)
	}
	if res.Decision.WinningVariant != nil {
		t.Errorf("winning_variant = %v, want nil", res.Decision.WinningVariant)
	}
}

// Scenario 5: A:50/0, B:50/0 with engagement favoring B — proxy blend
// should move B's posterior above A's.
func TestScenario5_ProxyBlendFavorsEngagedVariant(t *testing.T) {
	cfg := seeded(5)
	a := make([]float64, 50)
	b := make([]float64, 50)
	for i := range a {
		a[i] = 0.10
		b[i] = 0.40
	}
	s := snapshot([]string{"A", "B"},
		map[string]int{"A": 50, "B": 50},
		map[string]int{"A": 0, "B": 0},
		cfg)
	s.Engagement = map[string][]float64{"A": a, "B": b}

	res := mustEvaluate(t, s)

	var meanA, meanB float64
	for _, v := range res.Variants {
		if v.VariantKey == "A" {
			meanA = v.PosteriorMean
		}
		if v.VariantKey == "B" {
			meanB = v.PosteriorMean
		}
	}
	if meanB <= meanA {
		t.Errorf("posterior_mean[B] (%.5f) should exceed posterior_mean[A] (%.5f)", meanB, meanA)
	}
	if res.SuggestedAllocation["B"] <= res.SuggestedAllocation["A"] {
		t.Errorf("allocation should favor B: A=%.4f B=%.4f", res.SuggestedAllocation["A"], res.SuggestedAllocation["B"])
	}
}

// Scenario 6: three variants, C clearly ahead.
func TestScenario6_ThreeVariantsWinnerC(t *testing.T) {
	s := snapshot([]string{"A", "B", "C"},
		map[string]int{"A": 2000, "B": 2000, "C": 2000},
		map[string]int{"A": 100, "B": 100, "C": 140},
		seeded(55))

	res := mustEvaluate(t, s)

	if res.Decision.DecisionStatus != DecisionReadyToShip {
		t.Fatalf("decision_status = %q, want ready_to_ship", res.Decision.DecisionStatus)
	}
	if res.Decision.WinningVariant == nil || *res.Decision.WinningVariant != "C" {
		t.Errorf("winning_variant = %v, want C", res.Decision.WinningVariant)
	}

	var probC float64
	for _, v := range res.Variants {
		if v.VariantKey == "C" {
			probC = v.ProbabilityBest
		}
	}
	if probC <= 0.95 {
		t.Errorf("probability_best[C] = %.4f, want > 0.95", probC)
	}
	if res.SuggestedAllocation["C"] <= res.SuggestedAllocation["A"] || res.SuggestedAllocation["C"] <= res.SuggestedAllocation["B"] {
		t.Errorf("allocation should favor C over A and B")
	}
}

func TestZeroExposureIsInsufficientDataNotError(t *testing.T) {
	s := snapshot([]string{"A", "B"},
		map[string]int{"A": 0, "B": 0},
		map[string]int{"A": 0, "B": 0},
		DefaultConfig())

	res := mustEvaluate(t, s)
	if res.Decision.DecisionStatus != DecisionCollectingData {
		t.Fatalf("decision_status = %q, want collecting_data", res.Decision.DecisionStatus)
	}
	for _, v := range res.Variants {
		if v.PosteriorAlpha != platformDefaultAlpha || v.PosteriorBeta != platformDefaultBeta {
			t.Errorf("variant %s posterior should equal platform default prior, got alpha=%v beta=%v", v.VariantKey, v.PosteriorAlpha, v.PosteriorBeta)
		}
	}
	for _, share := range res.SuggestedAllocation {
		if math.Abs(share-0.5) > 1e-9 {
			t.Errorf("allocation should be uniform, got %.6f", share)
		}
	}
}

func TestDeterminismSameSeedSameResult(t *testing.T) {
	s := snapshot([]string{"A", "B"},
		map[string]int{"A": 80, "B": 80},
		map[string]int{"A": 5, "B": 9},
		seeded(2024))

	r1 := mustEvaluate(t, s)
	r2 := mustEvaluate(t, s)

	if r1.Decision.DecisionStatus != r2.Decision.DecisionStatus {
		t.Fatalf("decision_status differs across identical calls")
	}
	for i := range r1.Variants {
		if r1.Variants[i].ProbabilityBest != r2.Variants[i].ProbabilityBest {
			t.Errorf("probability_best differs across identical calls for %s", r1.Variants[i].VariantKey)
		}
		if r1.Variants[i].ExpectedLoss != r2.Variants[i].ExpectedLoss {
			t.Errorf("expected_loss differs across identical calls for %s", r1.Variants[i].VariantKey)
		}
	}
	for k := range r1.SuggestedAllocation {
		if r1.SuggestedAllocation[k] != r2.SuggestedAllocation[k] {
			t.Errorf("allocation differs across identical calls for %s", k)
		}
	}
}

func TestAllocationSumsToOne(t *testing.T) {
	s := snapshot([]string{"A", "B", "C", "D"},
		map[string]int{"A": 40, "B": 60, "C": 25, "D": 90},
		map[string]int{"A": 2, "B": 5, "C": 0, "D": 9},
		seeded(11))

	res := mustEvaluate(t, s)

	sum := 0.0
	for _, share := range res.SuggestedAllocation {
		sum += share
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("allocation sums to %.12f, want 1.0 +- 1e-9", sum)
	}
}

func TestProbabilityBestSumsToOne(t *testing.T) {
	s := snapshot([]string{"A", "B", "C"},
		map[string]int{"A": 200, "B": 210, "C": 190},
		map[string]int{"A": 20, "B": 25, "C": 18},
		seeded(3))

	res := mustEvaluate(t, s)

	sum := 0.0
	for _, v := range res.Variants {
		if v.ProbabilityBest < 0 || v.ProbabilityBest > 1 {
			t.Errorf("probability_best[%s] = %.4f out of [0,1]", v.VariantKey, v.ProbabilityBest)
		}
		sum += v.ProbabilityBest
	}
	if math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("sum of probability_best = %.6f, want ~1.0", sum)
	}
}

func TestLeadingVariantHasLowestExpectedLoss(t *testing.T) {
	s := snapshot([]string{"A", "B", "C"},
		map[string]int{"A": 500, "B": 500, "C": 500},
		map[string]int{"A": 40, "B": 55, "C": 50},
		seeded(17))

	res := mustEvaluate(t, s)

	minLoss := math.Inf(1)
	for _, v := range res.Variants {
		if v.ExpectedLoss < minLoss {
			minLoss = v.ExpectedLoss
		}
	}
	if math.Abs(res.Decision.LeadingVariantLoss-minLoss) > 1e-12 {
		t.Errorf("leading_variant_loss (%.6f) should equal the minimum expected_loss (%.6f)", res.Decision.LeadingVariantLoss, minLoss)
	}
}

func TestPriorFallbackPlatformDefault(t *testing.T) {
	s := snapshot([]string{"A", "B"},
		map[string]int{"A": 10, "B": 12},
		map[string]int{"A": 1, "B": 2},
		seeded(1))

	res := mustEvaluate(t, s)

	if res.PriorUsed != PriorPlatformDefault {
		t.Fatalf("prior_used = %q, want platform_default", res.PriorUsed)
	}
	for _, v := range res.Variants {
		n := s.Exposures[v.VariantKey]
		k := s.Conversions[v.VariantKey]
		wantAlpha := platformDefaultAlpha + float64(k)
		wantBeta := platformDefaultBeta + float64(n-k)
		if v.PosteriorAlpha != wantAlpha {
			t.Errorf("%s posterior_alpha = %v, want %v", v.VariantKey, v.PosteriorAlpha, wantAlpha)
		}
		if v.PosteriorBeta != wantBeta {
			t.Errorf("%s posterior_beta = %v, want %v", v.VariantKey, v.PosteriorBeta, wantBeta)
		}
	}
}

func TestShrinkageNeutralityWithEmptyHistory(t *testing.T) {
	s := snapshot([]string{"A", "B"},
		map[string]int{"A": 300, "B": 300},
		map[string]int{"A": 30, "B": 45},
		seeded(9))

	res := mustEvaluate(t, s)

	if res.RawEffectSize == nil || res.ShrunkEffectSize == nil {
		t.Fatal("expected non-nil raw and shrunk effect sizes")
	}
	if *res.RawEffectSize != *res.ShrunkEffectSize {
		t.Errorf("shrunk_effect_size (%.6f) should equal raw_effect_size (%.6f) with empty history", *res.ShrunkEffectSize, *res.RawEffectSize)
	}
}

func TestConfigErrorOnOutOfRangeHDIMass(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HDIMass = 1.5
	s := snapshot([]string{"A", "B"}, map[string]int{"A": 10, "B": 10}, map[string]int{"A": 1, "B": 1}, cfg)

	_, err := Evaluate(s)
	if err == nil {
		t.Fatal("expected ConfigError, got nil")
	}
	if _, ok := err.(*ConfigError); !ok {
		t.Errorf("expected *ConfigError, got %T", err)
	}
}

func TestDataErrorOnConversionsExceedingExposures(t *testing.T) {
	s := snapshot([]string{"A", "B"}, map[string]int{"A": 10, "B": 10}, map[string]int{"A": 11, "B": 1}, DefaultConfig())

	_, err := Evaluate(s)
	if err == nil {
		t.Fatal("expected DataError, got nil")
	}
	if _, ok := err.(*DataError); !ok {
		t.Errorf("expected *DataError, got %T", err)
	}
}

func TestDataErrorOnDuplicateVariant(t *testing.T) {
	s := snapshot([]string{"A", "A"}, map[string]int{"A": 10}, map[string]int{"A": 1}, DefaultConfig())

	_, err := Evaluate(s)
	if err == nil {
		t.Fatal("expected DataError for duplicate variant, got nil")
	}
}

func TestMonotoneConcentrationDoesNotWidenInterval(t *testing.T) {
	cfg := seeded(321)
	small := snapshot([]string{"A", "B"}, map[string]int{"A": 50, "B": 50}, map[string]int{"A": 5, "B": 6}, cfg)
	large := snapshot([]string{"A", "B"}, map[string]int{"A": 500, "B": 500}, map[string]int{"A": 50, "B": 60}, cfg)

	rSmall := mustEvaluate(t, small)
	rLarge := mustEvaluate(t, large)

	for i := range rSmall.Variants {
		widthSmall := rSmall.Variants[i].CredibleInterval[1] - rSmall.Variants[i].CredibleInterval[0]
		widthLarge := rLarge.Variants[i].CredibleInterval[1] - rLarge.Variants[i].CredibleInterval[0]
		if widthLarge > widthSmall {
			t.Errorf("%s: credible interval widened with more data (small=%.5f large=%.5f)",
				rSmall.Variants[i].VariantKey, widthSmall, widthLarge)
		}
	}
}
