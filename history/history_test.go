package history_test

import (
	"context"
	"testing"

	"github.com/discordwell/vibariant/engine"
	"github.com/discordwell/vibariant/history"
)

func TestInMemoryStoreAppendAndList(t *testing.T) {
	s := history.NewInMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		h := engine.HistoricalExperiment{ExperimentKey: string(rune('a' + i))}
		if err := s.Append(ctx, "proj-1", h); err != nil {
			t.Fatalf("Append returned error: %v", err)
		}
	}

	got, err := s.List(ctx, "proj-1", 0)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	// Most recent (last appended) should come first.
	if got[0].ExperimentKey != "c" {
		t.Errorf("got[0].ExperimentKey = %q, want \"c\"", got[0].ExperimentKey)
	}
}

func TestInMemoryStoreListRespectsLimit(t *testing.T) {
	s := history.NewInMemoryStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		s.Append(ctx, "proj-1", engine.HistoricalExperiment{ExperimentKey: "x"})
	}

	got, err := s.List(ctx, "proj-1", 2)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d entries, want 2", len(got))
	}
}

func TestInMemoryStoreUnknownProjectIsEmpty(t *testing.T) {
	s := history.NewInMemoryStore()
	got, err := s.List(context.Background(), "nonexistent", 0)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d entries, want 0", len(got))
	}
}

func TestInMemoryStoreEngagementWeightsRoundTrip(t *testing.T) {
	s := history.NewInMemoryStore()
	ctx := context.Background()

	got, err := s.GetEngagementWeights(ctx, "proj-1")
	if err != nil {
		t.Fatalf("GetEngagementWeights returned error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil weights before any SetEngagementWeights call, got %v", *got)
	}

	want := [4]float64{0.4, 0.3, 0.2, 0.1}
	if err := s.SetEngagementWeights(ctx, "proj-1", want); err != nil {
		t.Fatalf("SetEngagementWeights returned error: %v", err)
	}

	got, err = s.GetEngagementWeights(ctx, "proj-1")
	if err != nil {
		t.Fatalf("GetEngagementWeights returned error: %v", err)
	}
	if got == nil || *got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestInMemoryStoreEngagementWeightsIsolatedPerProject(t *testing.T) {
	s := history.NewInMemoryStore()
	ctx := context.Background()

	if err := s.SetEngagementWeights(ctx, "proj-a", [4]float64{1, 0, 0, 0}); err != nil {
		t.Fatalf("SetEngagementWeights returned error: %v", err)
	}

	got, err := s.GetEngagementWeights(ctx, "proj-b")
	if err != nil {
		t.Fatalf("GetEngagementWeights returned error: %v", err)
	}
	if got != nil {
		t.Errorf("expected proj-b weights to be unset, got %v", *got)
	}
}
