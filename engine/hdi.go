package engine

import "sort"

// highestDensityInterval returns the shortest interval containing mass
// (e.g. 0.95) of the empirical distribution given by samples, using the
// standard sliding-window-minimum-width method over the sorted samples
// (§4.4 glossary: HDI). samples is not mutated.
func highestDensityInterval(samples []float64, mass float64) [2]float64 {
	n := len(samples)
	if n == 0 {
		return [2]float64{0, 0}
	}

	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	intervalSize := int(mass * float64(n))
	if intervalSize < 1 {
		intervalSize = 1
	}
	if intervalSize > n {
		intervalSize = n
	}

	bestLo, bestHi := sorted[0], sorted[intervalSize-1]
	bestWidth := bestHi - bestLo

	nCandidates := n - intervalSize
	for i := 1; i <= nCandidates; i++ {
		lo := sorted[i]
		hi := sorted[i+intervalSize-1]
		width := hi - lo
		if width < bestWidth {
			bestWidth = width
			bestLo, bestHi = lo, hi
		}
	}

	return [2]float64{bestLo, bestHi}
}
