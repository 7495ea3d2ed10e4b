package engine

import "time"

// forecastDailyRate returns the average DailyVisitors across history
// entries that report one, or 0 if none do.
func forecastDailyRate(history []HistoricalExperiment) float64 {
	var sum float64
	var n int
	for _, h := range history {
		if h.DailyVisitors > 0 {
			sum += h.DailyVisitors
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// estimatedDaysRemaining extrapolates linearly from the known daily
// visitor rate to project how many additional days are needed to reach
// min_total_n, when that rate is known (§6 decision.estimated_days).
// Returns nil when no rate can be inferred from history, or when the
// snapshot has already cleared the min_total_n floor.
func estimatedDaysRemaining(snapshot ExperimentSnapshot, cfg EngineConfig) *int {
	total := totalExposure(snapshot)
	if total >= cfg.MinTotalN {
		return nil
	}
	rate := forecastDailyRate(snapshot.History)
	if rate <= 0 {
		return nil
	}
	remaining := float64(cfg.MinTotalN - total)
	days := int(remaining/rate + 0.999999) // ceil
	if days < 0 {
		days = 0
	}
	return &days
}

// Evaluate is the engine's single entry point: a pure function from an
// ExperimentSnapshot to an EngineResult, implementing the pipeline of
// §2 — Prior Resolver, Proxy Scorer, Posterior Engine, Monte-Carlo
// Sampler, ROPE/Epsilon Decision, Bandit Allocator, Shrinkage Corrector,
// and Recommender, strictly leaves-first. It never logs and never
// mutates any argument.
func Evaluate(snapshot ExperimentSnapshot) (*EngineResult, error) {
	cfg := snapshot.Config
	if cfg.MCSamples == 0 && cfg.HDIMass == 0 {
		// Caller passed a zero-value config — apply documented defaults.
		cfg = DefaultConfig()
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if err := validateSnapshot(snapshot); err != nil {
		return nil, err
	}
	snapshot.Config = cfg

	total := totalExposure(snapshot)
	if total == 0 {
		return insufficientDataResult(snapshot, cfg), nil
	}

	stages := make(map[string]float64, len(PipelineStages))
	stage := func(name string, fn func()) {
		start := time.Now()
		fn()
		stages[name] = time.Since(start).Seconds() * 1000
	}

	var prior BetaPrior
	var priorSource PriorSource
	stage("prior_resolver", func() {
		prior, priorSource = resolvePrior(cfg, snapshot.History)
	})

	var proxy proxyScores
	stage("proxy_scorer", func() {
		proxy = computeProxyScores(snapshot, cfg)
	})

	var posteriors map[VariantKey]posterior
	stage("posterior_engine", func() {
		posteriors = computePosteriors(snapshot, cfg, prior, proxy)
	})

	var draws mcDraws
	stage("monte_carlo_sampler", func() {
		draws = drawPosteriorSamples(snapshot.Variants, posteriors, cfg)
	})
	probBest := draws.probabilityBest()
	loss := draws.expectedLoss()

	var dec Decision
	var rope *RopeAnalysis
	stage("rope_decision", func() {
		dec, rope = decide(decisionInputs{
			snapshot:     snapshot,
			cfg:          cfg,
			draws:        draws,
			expectedLoss: loss,
		})
	})
	dec.EstimatedDays = estimatedDaysRemaining(snapshot, cfg)

	variantResults := make([]VariantResult, 0, len(snapshot.Variants))
	for _, v := range snapshot.Variants {
		p := posteriors[v]
		hdi := highestDensityInterval(betaMarginalSamples(draws, v), cfg.HDIMass)

		var engagementScore *float64
		if mu, ok := proxy.mean[v]; ok && proxy.n[v] > 0 {
			muCopy := mu
			engagementScore = &muCopy
		}

		n := snapshot.Exposures[v]
		k := snapshot.Conversions[v]
		rate := 0.0
		if n > 0 {
			rate = float64(k) / float64(n)
		}

		variantResults = append(variantResults, VariantResult{
			VariantKey:       v,
			Visitors:         n,
			Conversions:      k,
			ConversionRate:   rate,
			PosteriorAlpha:   p.Alpha,
			PosteriorBeta:    p.Beta,
			PosteriorMean:    p.mean(),
			CredibleInterval: hdi,
			EngagementScore:  engagementScore,
			ProbabilityBest:  probBest[v],
			ExpectedLoss:     loss[v],
		})
	}

	var probBBeatsA *float64
	if len(snapshot.Variants) == 2 {
		diff := draws.pairwiseDifference(1, 0)
		frac := fractionPositive(diff)
		probBBeatsA = &frac
	}

	var allocation map[string]float64
	stage("bandit_allocator", func() {
		allocation = allocate(draws, cfg)
	})

	leaderIdx := leadingVariant(snapshot.Variants, loss)
	runnerIdx := -1
	if len(snapshot.Variants) >= 2 {
		runnerIdx = runnerUp(snapshot.Variants, loss, leaderIdx)
	}
	var shrink shrinkageResult
	stage("shrinkage_corrector", func() {
		shrink = computeShrinkage(posteriors, snapshot.Variants, snapshot.History, draws, leaderIdx, runnerIdx, cfg)
	})

	result := EngineResult{
		ExperimentKey:       snapshot.ExperimentKey,
		TotalVisitors:       total,
		Variants:            variantResults,
		ProbabilityBBeatsA:  probBBeatsA,
		Decision:            dec,
		RopeAnalysis:        rope,
		SuggestedAllocation: allocation,
		RawEffectSize:       shrink.raw,
		ShrunkEffectSize:    shrink.shrunk,
		PriorUsed:           priorSource,
	}
	stage("recommender", func() {
		result.Recommendation = buildRecommendation(result)
	})
	result.StageDurations = stages

	return &result, nil
}

// insufficientDataResult builds the well-formed InsufficientDataWarning
// result of §7: decision_status collecting_data, posteriors equal to the
// prior, uniform allocation over active arms, and an explanatory
// recommendation. Not an error.
func insufficientDataResult(snapshot ExperimentSnapshot, cfg EngineConfig) *EngineResult {
	prior, priorSource := resolvePrior(cfg, snapshot.History)

	variantResults := make([]VariantResult, 0, len(snapshot.Variants))
	for _, v := range snapshot.Variants {
		priorMean := prior.Alpha / (prior.Alpha + prior.Beta)
		variantResults = append(variantResults, VariantResult{
			VariantKey:       v,
			Visitors:         0,
			Conversions:      0,
			ConversionRate:   0,
			PosteriorAlpha:   prior.Alpha,
			PosteriorBeta:    prior.Beta,
			PosteriorMean:    priorMean,
			CredibleInterval: betaQuantileInterval(prior.Alpha, prior.Beta, cfg.HDIMass),
			EngagementScore:  nil,
			ProbabilityBest:  1.0 / float64(len(snapshot.Variants)),
			ExpectedLoss:     0,
		})
	}

	result := &EngineResult{
		ExperimentKey: snapshot.ExperimentKey,
		TotalVisitors: 0,
		Variants:      variantResults,
		Decision: Decision{
			DecisionStatus:     DecisionCollectingData,
			WinningVariant:     nil,
			LeadingVariantLoss: 0,
			EpsilonThreshold:   cfg.LossThreshold,
			ConfidencePct:      0,
			EstimatedDays:      estimatedDaysRemaining(snapshot, cfg),
		},
		RopeAnalysis:        nil,
		SuggestedAllocation: uniformAllocation(snapshot.Variants),
		RawEffectSize:       nil,
		ShrunkEffectSize:    nil,
		PriorUsed:           priorSource,
	}
	result.Recommendation = buildRecommendation(*result)
	return result
}

// betaMarginalSamples returns variant v's column from the draw matrix.
func betaMarginalSamples(d mcDraws, v VariantKey) []float64 {
	idx := d.indexOf(v)
	if idx < 0 {
		return nil
	}
	return d.samples[idx]
}

// fractionPositive returns the share of xs strictly greater than zero.
func fractionPositive(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	count := 0
	for _, x := range xs {
		if x > 0 {
			count++
		}
	}
	return float64(count) / float64(len(xs))
}
