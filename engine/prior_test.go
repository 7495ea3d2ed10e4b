package engine

import "testing"

func TestResolvePriorUserSpecifiedWins(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Prior = &BetaPrior{Alpha: 3, Beta: 7}

	prior, source := resolvePrior(cfg, []HistoricalExperiment{
		{ControlConversionRate: 0.1, ControlSampleSize: 100},
		{ControlConversionRate: 0.1, ControlSampleSize: 100},
		{ControlConversionRate: 0.1, ControlSampleSize: 100},
	})

	if source != PriorUserSpecified {
		t.Fatalf("source = %q, want user_specified", source)
	}
	if prior.Alpha != 3 || prior.Beta != 7 {
		t.Errorf("prior = %+v, want Beta(3,7)", prior)
	}
}

func TestResolvePriorFallsBackOnThinHistory(t *testing.T) {
	cfg := DefaultConfig()

	prior, source := resolvePrior(cfg, []HistoricalExperiment{
		{ControlConversionRate: 0.1, ControlSampleSize: 100},
	})

	if source != PriorPlatformDefault {
		t.Fatalf("source = %q, want platform_default", source)
	}
	if prior.Alpha != platformDefaultAlpha || prior.Beta != platformDefaultBeta {
		t.Errorf("prior = %+v, want Beta(%v,%v)", prior, platformDefaultAlpha, platformDefaultBeta)
	}
}

func TestResolvePriorEmpiricalBayesWithConsistentHistory(t *testing.T) {
	cfg := DefaultConfig()

	history := []HistoricalExperiment{
		{ControlConversionRate: 0.05, ControlSampleSize: 500},
		{ControlConversionRate: 0.07, ControlSampleSize: 500},
		{ControlConversionRate: 0.04, ControlSampleSize: 500},
		{ControlConversionRate: 0.06, ControlSampleSize: 500},
	}

	prior, source := resolvePrior(cfg, history)

	if source != PriorProjectHistorical {
		t.Fatalf("source = %q, want project_historical", source)
	}
	if prior.Alpha <= 0 || prior.Beta <= 0 {
		t.Errorf("prior = %+v, expected both components positive", prior)
	}
}

func TestResolvePriorDegenerateVarianceFallsBack(t *testing.T) {
	cfg := DefaultConfig()

	// Rates pinned at 0 and 1 push the sample variance up to m(1-m), where
	// no Beta fits: falls back to the platform default rather than
	// producing a non-positive fit.
	history := []HistoricalExperiment{
		{ControlConversionRate: 0.0, ControlSampleSize: 100},
		{ControlConversionRate: 1.0, ControlSampleSize: 100},
		{ControlConversionRate: 0.0, ControlSampleSize: 100},
		{ControlConversionRate: 1.0, ControlSampleSize: 100},
	}

	_, source := resolvePrior(cfg, history)
	if source != PriorPlatformDefault {
		t.Fatalf("source = %q, want platform_default for degenerate variance", source)
	}
}

func TestSampleVarianceAndMean(t *testing.T) {
	xs := []float64{1, 2, 3, 4}
	m := mean(xs)
	if m != 2.5 {
		t.Errorf("mean = %v, want 2.5", m)
	}
	v := sampleVariance(xs, m)
	if v != 1.25 {
		t.Errorf("sampleVariance = %v, want 1.25", v)
	}
}
