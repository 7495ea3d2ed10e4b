package engine

import (
	"math"
	"testing"
)

func TestHighestDensityIntervalUniformSamples(t *testing.T) {
	samples := make([]float64, 1000)
	for i := range samples {
		samples[i] = float64(i) / 1000.0
	}

	hdi := highestDensityInterval(samples, 0.95)
	width := hdi[1] - hdi[0]

	if math.Abs(width-0.95) > 0.01 {
		t.Errorf("hdi width = %.4f, want ~0.95 for a uniform[0,1) sample", width)
	}
	if hdi[0] < 0 || hdi[1] > 1 {
		t.Errorf("hdi = %v out of sample range", hdi)
	}
}

func TestHighestDensityIntervalEmptyInput(t *testing.T) {
	hdi := highestDensityInterval(nil, 0.95)
	if hdi != [2]float64{0, 0} {
		t.Errorf("hdi = %v, want zero interval for empty input", hdi)
	}
}

func TestHighestDensityIntervalDoesNotMutateInput(t *testing.T) {
	samples := []float64{5, 1, 3, 2, 4}
	cp := append([]float64(nil), samples...)

	highestDensityInterval(samples, 0.6)

	for i := range samples {
		if samples[i] != cp[i] {
			t.Fatalf("input samples mutated: got %v, want %v", samples, cp)
		}
	}
}

func TestHighestDensityIntervalNarrowsAroundCluster(t *testing.T) {
	samples := []float64{0.10, 0.11, 0.09, 0.10, 0.10, 0.50, 0.90}

	hdi := highestDensityInterval(samples, 0.7)

	if hdi[0] < 0.05 || hdi[1] > 0.20 {
		t.Errorf("hdi = %v, expected to capture the dense cluster around 0.10", hdi)
	}
}
