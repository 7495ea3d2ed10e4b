package engine

import (
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

// mcDraws is the product of the Monte-Carlo Sampler (§4.4): a draw
// matrix with one column per variant and mc_samples rows, plus the
// per-row best-variant index precomputed once and shared by every
// downstream stage. No stage may redraw — everything below consumes
// these slices.
type mcDraws struct {
	samples   [][]float64 // samples[v][s]
	rowBest   []int       // rowBest[s] = index of the max variant in row s
	rowBest2  []int       // second independent draw's per-row argmax, for the TS challenger
	variants  []VariantKey
}

// drawPosteriorSamples draws S independent samples from each variant's
// posterior using a deterministic RNG seeded from cfg.MCSeed (or from
// fixed default seeds when absent), assembling the matrix M described in §4.4.
// A second, independently seeded draw is produced for the Top-Two
// Thompson challenger construction (§4.6); it reuses none of the primary
// samples, satisfying "all downstream quantities from the same draw
// matrix" for the decision/loss/HDI stages while keeping the challenger
// draw clearly separate.
func drawPosteriorSamples(variants []VariantKey, posteriors map[VariantKey]posterior, cfg EngineConfig) mcDraws {
	S := cfg.MCSamples
	V := len(variants)

	var rng *rand.Rand
	var rng2 *rand.Rand
	if cfg.MCSeed != nil {
		rng = rand.New(rand.NewSource(*cfg.MCSeed))
		rng2 = rand.New(rand.NewSource(int64(uint64(*cfg.MCSeed) ^ 0x9E3779B97F4A7C15)))
	} else {
		rng = rand.New(rand.NewSource(1))
		rng2 = rand.New(rand.NewSource(2))
	}

	samples := make([][]float64, V)
	second := make([][]float64, V)
	for vi, v := range variants {
		p := posteriors[v]
		dist := distuv.Beta{Alpha: p.Alpha, Beta: p.Beta, Src: rng}
		dist2 := distuv.Beta{Alpha: p.Alpha, Beta: p.Beta, Src: rng2}
		col := make([]float64, S)
		col2 := make([]float64, S)
		for i := 0; i < S; i++ {
			col[i] = dist.Rand()
			col2[i] = dist2.Rand()
		}
		samples[vi] = col
		second[vi] = col2
	}

	rowBest := make([]int, S)
	rowBest2 := make([]int, S)
	for i := 0; i < S; i++ {
		best := 0
		best2 := 0
		for vi := 1; vi < V; vi++ {
			if samples[vi][i] > samples[best][i] {
				best = vi
			}
			if second[vi][i] > second[best2][i] {
				best2 = vi
			}
		}
		rowBest[i] = best
		rowBest2[i] = best2
	}

	return mcDraws{
		samples:  samples,
		rowBest:  rowBest,
		rowBest2: rowBest2,
		variants: variants,
	}
}

// probabilityBest returns, for each variant, the fraction of rows where
// that variant's sample equals the row max (§4.4).
func (d mcDraws) probabilityBest() map[VariantKey]float64 {
	S := len(d.rowBest)
	counts := make([]int, len(d.variants))
	for _, b := range d.rowBest {
		counts[b]++
	}
	out := make(map[VariantKey]float64, len(d.variants))
	for vi, v := range d.variants {
		out[v] = float64(counts[vi]) / float64(S)
	}
	return out
}

// expectedLoss returns, for each variant, mean(rowMax - M[:,v]) — the
// expected regret of shipping that variant versus the oracle (§4.4).
func (d mcDraws) expectedLoss() map[VariantKey]float64 {
	S := len(d.rowBest)
	V := len(d.variants)

	rowMax := make([]float64, S)
	for i := 0; i < S; i++ {
		m := d.samples[0][i]
		for vi := 1; vi < V; vi++ {
			if d.samples[vi][i] > m {
				m = d.samples[vi][i]
			}
		}
		rowMax[i] = m
	}

	out := make(map[VariantKey]float64, V)
	for vi, v := range d.variants {
		sum := 0.0
		col := d.samples[vi]
		for i := 0; i < S; i++ {
			sum += rowMax[i] - col[i]
		}
		out[v] = sum / float64(S)
	}
	return out
}

// pairwiseDifference returns the row-wise difference M[:,a] - M[:,b] for
// two variant indices.
func (d mcDraws) pairwiseDifference(a, b int) []float64 {
	S := len(d.rowBest)
	out := make([]float64, S)
	for i := 0; i < S; i++ {
		out[i] = d.samples[a][i] - d.samples[b][i]
	}
	return out
}

// indexOf returns the position of v in d.variants, or -1.
func (d mcDraws) indexOf(v VariantKey) int {
	for i, x := range d.variants {
		if x == v {
			return i
		}
	}
	return -1
}
