package engine

import "gonum.org/v1/gonum/stat/distuv"

// betaQuantileInterval returns the equal-tailed credible interval of a
// Beta(alpha,beta) distribution at the given mass, via closed-form
// quantiles. Used only for the InsufficientDataWarning fast path (§7),
// where there are zero exposures and therefore no Monte-Carlo draw to
// derive a highest-density interval from — an equal-tailed interval on
// the prior itself is the natural stand-in.
func betaQuantileInterval(alpha, beta, mass float64) [2]float64 {
	dist := distuv.Beta{Alpha: alpha, Beta: beta}
	tail := (1 - mass) / 2
	return [2]float64{dist.Quantile(tail), dist.Quantile(1 - tail)}
}
