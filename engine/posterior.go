package engine

// proxyBlendMinorityCeiling is the "min(k, n-k) < 5" sparsity threshold
// under which the proxy-blended posterior is used instead of the pure
// conjugate one (§4.3).
const proxyBlendMinorityCeiling = 5

// proxyBlendWeightCap caps the pseudo-observation weight contributed by
// the engagement proxy at min(n_v, 30), so a large sample with zero
// conversions doesn't let engagement dominate once real signal exists.
const proxyBlendWeightCap = 30

// posterior is a variant's Beta(alpha, beta) posterior.
type posterior struct {
	Alpha float64
	Beta  float64
}

func (p posterior) mean() float64 {
	return p.Alpha / (p.Alpha + p.Beta)
}

// computePosteriors derives each variant's Beta posterior from the
// resolved prior, observed conversions, and (when applicable) the
// engagement proxy mean, per §4.3. Posteriors are deterministic — no
// randomness here.
func computePosteriors(s ExperimentSnapshot, cfg EngineConfig, prior BetaPrior, proxy proxyScores) map[VariantKey]posterior {
	out := make(map[VariantKey]posterior, len(s.Variants))

	for _, v := range s.Variants {
		n := s.Exposures[v]
		k := s.Conversions[v]

		alpha := prior.Alpha + float64(k)
		beta := prior.Beta + float64(n-k)

		if cfg.UseProxy {
			minority := k
			if n-k < minority {
				minority = n - k
			}
			if minority < proxyBlendMinorityCeiling {
				if mu, ok := proxy.mean[v]; ok && proxy.n[v] > 0 {
					w := float64(n)
					if w > proxyBlendWeightCap {
						w = proxyBlendWeightCap
					}
					alpha += w * mu
					beta += w * (1 - mu)
				}
			}
		}

		out[v] = posterior{Alpha: alpha, Beta: beta}
	}

	return out
}
