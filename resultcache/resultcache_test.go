package resultcache_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/discordwell/vibariant/engine"
	"github.com/discordwell/vibariant/resultcache"
)

func testSnapshot(seed int64) engine.ExperimentSnapshot {
	cfg := engine.DefaultConfig()
	cfg.MCSeed = &seed
	return engine.ExperimentSnapshot{
		ExperimentKey: "exp-1",
		Variants:      []string{"A", "B"},
		Exposures:     map[string]int{"A": 100, "B": 100},
		Conversions:   map[string]int{"A": 5, "B": 9},
		Config:        cfg,
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	c := resultcache.New(zerolog.Nop())
	snap := testSnapshot(1)
	fp := resultcache.Fingerprint(snap.ExperimentKey, snap)

	if _, ok := c.Get("proj-1", fp); ok {
		t.Fatal("expected miss before Put")
	}

	want := engine.EngineResult{ExperimentKey: "exp-1", TotalVisitors: 200}
	c.Put("proj-1", fp, want)

	got, ok := c.Get("proj-1", fp)
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if got.ExperimentKey != want.ExperimentKey || got.TotalVisitors != want.TotalVisitors {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestFingerprintDistinguishesSnapshots(t *testing.T) {
	a := testSnapshot(1)
	b := testSnapshot(1)
	b.Conversions["A"] = 6

	fpA := resultcache.Fingerprint(a.ExperimentKey, a)
	fpB := resultcache.Fingerprint(b.ExperimentKey, b)

	if fpA == fpB {
		t.Error("expected different fingerprints for different conversion counts")
	}
}

func TestFingerprintDistinguishesConfig(t *testing.T) {
	a := testSnapshot(1)
	b := testSnapshot(1)
	b.Config.LossThreshold = 0.01

	fpA := resultcache.Fingerprint(a.ExperimentKey, a)
	fpB := resultcache.Fingerprint(b.ExperimentKey, b)

	if fpA == fpB {
		t.Error("expected different fingerprints for different loss_threshold config")
	}
}

func TestFingerprintDistinguishesEngagement(t *testing.T) {
	a := testSnapshot(1)
	b := testSnapshot(1)
	b.Engagement = map[string][]float64{"A": {0.1, 0.2}}

	fpA := resultcache.Fingerprint(a.ExperimentKey, a)
	fpB := resultcache.Fingerprint(b.ExperimentKey, b)

	if fpA == fpB {
		t.Error("expected different fingerprints when engagement data is added")
	}
}

func TestFingerprintDistinguishesHistory(t *testing.T) {
	a := testSnapshot(1)
	b := testSnapshot(1)
	b.History = []engine.HistoricalExperiment{{ExperimentKey: "prior-exp", ControlConversionRate: 0.05, ControlSampleSize: 500}}

	fpA := resultcache.Fingerprint(a.ExperimentKey, a)
	fpB := resultcache.Fingerprint(b.ExperimentKey, b)

	if fpA == fpB {
		t.Error("expected different fingerprints when history is added")
	}
}

func TestFingerprintStableAcrossCalls(t *testing.T) {
	s := testSnapshot(42)
	if resultcache.Fingerprint(s.ExperimentKey, s) != resultcache.Fingerprint(s.ExperimentKey, s) {
		t.Error("fingerprint should be deterministic for the same snapshot")
	}
}

func TestNamespaceIsolation(t *testing.T) {
	c := resultcache.New(zerolog.Nop())
	snap := testSnapshot(1)
	fp := resultcache.Fingerprint(snap.ExperimentKey, snap)

	c.Put("proj-a", fp, engine.EngineResult{ExperimentKey: "exp-1"})

	if _, ok := c.Get("proj-b", fp); ok {
		t.Error("expected a miss in a different namespace")
	}
}

func TestExpiredEntryIsAMiss(t *testing.T) {
	c := resultcache.New(zerolog.Nop())
	snap := testSnapshot(1)
	fp := resultcache.Fingerprint(snap.ExperimentKey, snap)

	c.Put("proj-1", fp, engine.EngineResult{ExperimentKey: "exp-1"}, -time.Second)

	if _, ok := c.Get("proj-1", fp); ok {
		t.Error("expected a miss for an already-expired entry")
	}
}

func TestInvalidateAndFlush(t *testing.T) {
	c := resultcache.New(zerolog.Nop())
	snap := testSnapshot(1)
	fp := resultcache.Fingerprint(snap.ExperimentKey, snap)
	c.Put("proj-1", fp, engine.EngineResult{})

	if !c.Invalidate("proj-1", fp) {
		t.Fatal("expected invalidate to report success")
	}
	if _, ok := c.Get("proj-1", fp); ok {
		t.Error("expected a miss after invalidate")
	}

	c.Put("proj-1", fp, engine.EngineResult{})
	c.Put("proj-2", fp, engine.EngineResult{})
	if n := c.FlushAll(); n != 2 {
		t.Errorf("FlushAll returned %d, want 2", n)
	}
}
