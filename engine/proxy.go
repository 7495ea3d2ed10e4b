package engine

import "sort"

// proxyScores holds, per variant, the per-visitor bounded proxy score
// array and its summary statistics (§4.2).
type proxyScores struct {
	perVisitor map[VariantKey][]float64
	mean       map[VariantKey]float64
	n          map[VariantKey]int
}

// computeProxyScores turns the raw engagement arrays in the snapshot
// into winsorized, pooled-quantile-capped per-visitor scores and their
// per-variant summaries. Raw engagement values are already assumed to be
// the weighted-feature composite in [0,1] (scroll depth, active time,
// click count, form engagement blended 0.3/0.3/0.2/0.2 upstream of the
// engine boundary, per §4.2) — CUPED adjustment is applied here when a
// parallel covariate array is supplied.
func computeProxyScores(s ExperimentSnapshot, cfg EngineConfig) proxyScores {
	out := proxyScores{
		perVisitor: make(map[VariantKey][]float64),
		mean:       make(map[VariantKey]float64),
		n:          make(map[VariantKey]int),
	}

	if len(s.Engagement) == 0 {
		return out
	}

	// Pool all raw values across variants to compute the winsorization cap.
	var pooled []float64
	for _, v := range s.Variants {
		pooled = append(pooled, s.Engagement[v]...)
	}
	cap := quantile(pooled, cfg.WinsorizeP)

	winsorized := make(map[VariantKey][]float64, len(s.Variants))
	for _, v := range s.Variants {
		raw := s.Engagement[v]
		capped := make([]float64, len(raw))
		for i, x := range raw {
			if x > cap {
				x = cap
			}
			if x < 0 {
				x = 0
			}
			capped[i] = x
		}
		winsorized[v] = capped
	}

	adjusted := applyCUPED(s, cfg, winsorized)

	for _, v := range s.Variants {
		scores := adjusted[v]
		out.perVisitor[v] = scores
		out.n[v] = len(scores)
		if len(scores) > 0 {
			out.mean[v] = mean(scores)
		}
	}

	return out
}

// applyCUPED applies the variance-reduction transform y - theta*(x -
// xbar) per §4.2, when a parallel covariate array is supplied. Absent a
// covariate, the identity transform is returned (theta effectively 0).
func applyCUPED(s ExperimentSnapshot, cfg EngineConfig, winsorized map[VariantKey][]float64) map[VariantKey][]float64 {
	if len(s.Covariate) == 0 {
		return winsorized
	}

	out := make(map[VariantKey][]float64, len(winsorized))

	if cfg.CUPEDThetaSource == CUPEDPerVariant {
		for _, v := range s.Variants {
			y := winsorized[v]
			x := s.Covariate[v]
			theta := cupedTheta(y, x)
			out[v] = cupedAdjust(y, x, theta)
		}
		return out
	}

	// Pooled theta: estimate covariance/variance across all variants'
	// (y,x) pairs jointly, then apply per variant.
	var pooledY, pooledX []float64
	for _, v := range s.Variants {
		pooledY = append(pooledY, winsorized[v]...)
		pooledX = append(pooledX, s.Covariate[v]...)
	}
	theta := cupedTheta(pooledY, pooledX)
	for _, v := range s.Variants {
		out[v] = cupedAdjust(winsorized[v], s.Covariate[v], theta)
	}
	return out
}

func cupedTheta(y, x []float64) float64 {
	n := len(y)
	if n == 0 || len(x) != n {
		return 0
	}
	my := mean(y)
	mx := mean(x)
	var cov, varX float64
	for i := 0; i < n; i++ {
		dy := y[i] - my
		dx := x[i] - mx
		cov += dy * dx
		varX += dx * dx
	}
	if varX == 0 {
		return 0
	}
	return cov / varX
}

func cupedAdjust(y, x []float64, theta float64) []float64 {
	if len(x) != len(y) || theta == 0 {
		out := make([]float64, len(y))
		copy(out, y)
		return out
	}
	mx := mean(x)
	out := make([]float64, len(y))
	for i := range y {
		out[i] = y[i] - theta*(x[i]-mx)
	}
	return out
}

// quantile returns the value at quantile p (0,1] of xs using linear
// interpolation between closest ranks. Returns 1.0 (no capping) for an
// empty input.
func quantile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 1.0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)

	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	if p <= 0 {
		return sorted[0]
	}

	idx := p * float64(len(sorted)-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
