package engine

import "fmt"

// buildRecommendation selects one of the four decision-status templates
// and fills it with values already present in the decision record —
// the recommender never invents numbers that aren't in the result (§4.9).
func buildRecommendation(result EngineResult) string {
	switch result.Decision.DecisionStatus {
	case DecisionCollectingData:
		return fmt.Sprintf(
			"Still collecting data: %d visitors seen so far. No decision can be made yet — keep the experiment running.",
			result.TotalVisitors,
		)
	case DecisionPracticallyEquivalent:
		ropeHalfWidth := result.Decision.EpsilonThreshold
		if result.RopeAnalysis != nil {
			ropeHalfWidth = result.RopeAnalysis.Rope[1]
		}
		return fmt.Sprintf(
			"The variants are practically equivalent: the credible interval of the difference falls entirely within the ±%.3f%% region of practical equivalence. Ship either on non-statistical grounds.",
			ropeHalfWidth*100,
		)
	case DecisionReadyToShip:
		winner := "the leading variant"
		if result.Decision.WinningVariant != nil {
			winner = *result.Decision.WinningVariant
		}
		return fmt.Sprintf(
			"Ship %s: expected regret if wrong is %.3f%%, below the %.3f%% threshold, and the 95%% HDI of the difference excludes zero.",
			winner,
			result.Decision.LeadingVariantLoss*100,
			result.Decision.EpsilonThreshold*100,
		)
	default: // DecisionKeepTesting
		if result.Decision.LeadingVariantLoss <= result.Decision.EpsilonThreshold {
			return fmt.Sprintf(
				"Keep testing: expected regret of the leading variant is %.3f%%, within the %.3f%% threshold, but the HDI of the difference still includes zero. Allow more traffic to accumulate.",
				result.Decision.LeadingVariantLoss*100,
				result.Decision.EpsilonThreshold*100,
			)
		}
		return fmt.Sprintf(
			"Keep testing: expected regret of the leading variant is %.3f%%, still above the %.3f%% threshold, and the difference has not resolved. Allow more traffic to accumulate.",
			result.Decision.LeadingVariantLoss*100,
			result.Decision.EpsilonThreshold*100,
		)
	}
}
