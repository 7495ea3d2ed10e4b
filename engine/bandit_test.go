package engine

import (
	"math"
	"testing"
)

func TestApplyExploreFloorRespectsMinimum(t *testing.T) {
	variants := []VariantKey{"A", "B", "C"}
	raw := map[string]float64{"A": 0.98, "B": 0.01, "C": 0.01}

	floored := applyExploreFloor(raw, variants, 0.30)

	minShare := 0.30 / 3
	sum := 0.0
	for _, v := range variants {
		if floored[v] < minShare-1e-9 {
			t.Errorf("allocation[%s] = %.4f below floor %.4f", v, floored[v], minShare)
		}
		sum += floored[v]
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("allocations sum to %.9f, want 1.0", sum)
	}
}

func TestApplyExploreFloorZeroFloorIsNoOpWhenPositive(t *testing.T) {
	variants := []VariantKey{"A", "B"}
	raw := map[string]float64{"A": 0.7, "B": 0.3}

	floored := applyExploreFloor(raw, variants, 0)

	if math.Abs(floored["A"]-0.7) > 1e-9 || math.Abs(floored["B"]-0.3) > 1e-9 {
		t.Errorf("floored = %+v, want unchanged with zero floor", floored)
	}
}

func TestUniformAllocationSumsToOne(t *testing.T) {
	variants := []VariantKey{"A", "B", "C", "D"}
	alloc := uniformAllocation(variants)

	sum := 0.0
	for _, v := range variants {
		if alloc[v] != 0.25 {
			t.Errorf("allocation[%s] = %v, want 0.25", v, alloc[v])
		}
		sum += alloc[v]
	}
	if math.Abs(sum-1.0) > 1e-12 {
		t.Errorf("sum = %v, want 1.0", sum)
	}
}

func TestAllocateDegenerateZeroTallyFallsBackUniform(t *testing.T) {
	variants := []VariantKey{"A", "B"}
	draws := mcDraws{
		variants: variants,
		rowBest:  []int{},
		rowBest2: []int{},
	}
	cfg := DefaultConfig()

	alloc := allocate(draws, cfg)

	minShare := cfg.ExploreFloor / 2
	for _, v := range variants {
		if alloc[v] < minShare-1e-9 {
			t.Errorf("allocation[%s] = %v below floor", v, alloc[v])
		}
	}
	sum := alloc["A"] + alloc["B"]
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("sum = %v, want 1.0", sum)
	}
}
