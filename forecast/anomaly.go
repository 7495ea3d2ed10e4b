// Package forecast flags anomalous shifts in a variant's engagement
// rate against its own rolling history — a diagnostic signal layered
// on top of the engine's decision, never feeding back into it.
package forecast

import (
	"math"
	"sync"
)

// AnomalyResult reports whether the latest observation deviates from
// the variant's rolling baseline by more than the configured
// threshold, expressed in standard deviations.
type AnomalyResult struct {
	IsAnomaly bool    `json:"is_anomaly"`
	ZScore    float64 `json:"z_score"`
	Value     float64 `json:"value"`
	Mean      float64 `json:"mean"`
	StdDev    float64 `json:"std_dev"`
	Threshold float64 `json:"threshold"`
	Direction string  `json:"direction"` // "spike" or "drop"
}

// AnomalyDetector maintains a rolling window of per-variant engagement
// rates and flags observations more than Threshold standard
// deviations from the window's mean.
type AnomalyDetector struct {
	mu         sync.RWMutex
	windowSize int
	threshold  float64
	history    map[string][]float64
}

// NewAnomalyDetector creates a detector with the given rolling window
// size and z-score threshold. windowSize defaults to 24, threshold to
// 2.0 (2σ) when given as <= 0.
func NewAnomalyDetector(windowSize int, threshold float64) *AnomalyDetector {
	if windowSize <= 0 {
		windowSize = 24
	}
	if threshold <= 0 {
		threshold = 2.0
	}
	return &AnomalyDetector{
		windowSize: windowSize,
		threshold:  threshold,
		history:    make(map[string][]float64),
	}
}

// Check appends value to key's rolling window and evaluates it against
// the window's prior mean and standard deviation (the new value is
// excluded from its own baseline).
func (d *AnomalyDetector) Check(key string, value float64) AnomalyResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	h := append(d.history[key], value)
	if len(h) > d.windowSize {
		h = h[len(h)-d.windowSize:]
	}
	d.history[key] = h

	if len(h) < 5 {
		return AnomalyResult{Value: value, Threshold: d.threshold}
	}

	baseline := h[:len(h)-1]
	n := float64(len(baseline))
	var sum float64
	for _, v := range baseline {
		sum += v
	}
	mean := sum / n

	var variance float64
	for _, v := range baseline {
		diff := v - mean
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / n)

	if stdDev == 0 {
		return AnomalyResult{Value: value, Mean: mean, Threshold: d.threshold}
	}

	zScore := (value - mean) / stdDev
	direction := "spike"
	if zScore < 0 {
		direction = "drop"
	}

	return AnomalyResult{
		IsAnomaly: math.Abs(zScore) > d.threshold,
		ZScore:    zScore,
		Value:     value,
		Mean:      mean,
		StdDev:    stdDev,
		Threshold: d.threshold,
		Direction: direction,
	}
}
