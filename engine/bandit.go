package engine

// allocate implements the Top-Two Thompson Sampling allocator of §4.6:
// tally primary-draw winners, blend in a secondary-draw "challenger" at
// half weight with probability top_two_beta, then apply the exploration
// floor over active (exposed-to-traffic) variants and renormalize.
//
// "Active" here means every variant named in the snapshot — the engine
// has no notion of paused variants beyond what the caller omits from
// ExperimentSnapshot.Variants, so the floor is spread over all of them.
func allocate(draws mcDraws, cfg EngineConfig) map[string]float64 {
	variants := draws.variants
	V := len(variants)
	S := len(draws.rowBest)

	tally := make([]float64, V)
	for i := 0; i < S; i++ {
		primary := draws.rowBest[i]
		tally[primary] += 1

		challenger := draws.rowBest2[i]
		if challenger != primary {
			// The challenger receives half the mass of this trial,
			// weighted by the configured top-two exploration probability;
			// the primary keeps the complement.
			tally[primary] -= 0.5 * cfg.TopTwoBeta
			tally[challenger] += 0.5 * cfg.TopTwoBeta
		}
	}

	raw := make(map[string]float64, V)
	sum := 0.0
	for i, v := range variants {
		if tally[i] < 0 {
			tally[i] = 0
		}
		raw[v] = tally[i]
		sum += tally[i]
	}
	if sum <= 0 {
		// Degenerate: fall back to uniform before flooring.
		for _, v := range variants {
			raw[v] = 1.0 / float64(V)
		}
	} else {
		for _, v := range variants {
			raw[v] /= sum
		}
	}

	return applyExploreFloor(raw, variants, cfg.ExploreFloor)
}

// applyExploreFloor replaces each allocation with max(a_v, floor/V) then
// renormalizes, per §4.6 step 4.
func applyExploreFloor(raw map[string]float64, variants []VariantKey, floor float64) map[string]float64 {
	V := len(variants)
	if V == 0 {
		return raw
	}
	minShare := floor / float64(V)

	floored := make(map[string]float64, V)
	sum := 0.0
	for _, v := range variants {
		share := raw[v]
		if share < minShare {
			share = minShare
		}
		floored[v] = share
		sum += share
	}

	if sum <= 0 {
		uniform := 1.0 / float64(V)
		for _, v := range variants {
			floored[v] = uniform
		}
		return floored
	}

	for _, v := range variants {
		floored[v] /= sum
	}
	return floored
}

// uniformAllocation distributes traffic evenly across every variant,
// used for InsufficientDataWarning results and the zero-exposure
// boundary case.
func uniformAllocation(variants []VariantKey) map[string]float64 {
	out := make(map[string]float64, len(variants))
	if len(variants) == 0 {
		return out
	}
	share := 1.0 / float64(len(variants))
	for _, v := range variants {
		out[v] = share
	}
	return out
}
