package forecast_test

import (
	"testing"

	"github.com/discordwell/vibariant/forecast"
)

func TestAnomalyDetectorNeedsMinimumHistory(t *testing.T) {
	d := forecast.NewAnomalyDetector(24, 2.0)
	for i := 0; i < 4; i++ {
		r := d.Check("variant-a", 0.10)
		if r.IsAnomaly {
			t.Fatalf("round %d: expected no anomaly verdict before minimum history", i)
		}
	}
}

func TestAnomalyDetectorFlagsSpike(t *testing.T) {
	d := forecast.NewAnomalyDetector(24, 2.0)
	for i := 0; i < 10; i++ {
		d.Check("variant-a", 0.10)
	}
	r := d.Check("variant-a", 0.90)
	if !r.IsAnomaly {
		t.Errorf("expected spike to 0.90 after stable 0.10 baseline to be flagged, z=%v", r.ZScore)
	}
	if r.Direction != "spike" {
		t.Errorf("Direction = %q, want spike", r.Direction)
	}
}

func TestAnomalyDetectorStableSeriesIsNotFlagged(t *testing.T) {
	d := forecast.NewAnomalyDetector(24, 2.0)
	values := []float64{0.10, 0.11, 0.09, 0.105, 0.095, 0.10, 0.102, 0.098, 0.101, 0.099}
	var last forecast.AnomalyResult
	for _, v := range values {
		last = d.Check("variant-a", v)
	}
	if last.IsAnomaly {
		t.Errorf("expected stable series not to be flagged, got z=%v", last.ZScore)
	}
}

func TestAnomalyDetectorWindowIsPerKey(t *testing.T) {
	d := forecast.NewAnomalyDetector(24, 2.0)
	for i := 0; i < 10; i++ {
		d.Check("variant-a", 0.10)
	}
	r := d.Check("variant-b", 0.90)
	if r.IsAnomaly {
		t.Errorf("variant-b has no history yet, should not be flagged relative to variant-a's baseline")
	}
}
