package nlp

import "sort"

// Confidence thresholds governing fuzzy task matching.
//
//   - best ≥ HighConfidenceThreshold and no runner-up above
//     AmbiguityThreshold: apply the update directly.
//   - anything else with at least one candidate: ask the user to confirm.
const (
	HighConfidenceThreshold = 0.8
	AmbiguityThreshold      = 0.6
)

// EvaluateMatches ranks raw match candidates and decides whether the caller
// needs a user confirmation before acting. The model's own needs_confirmation
// flag is ignored; the policy is enforced here so a creative model cannot
// bypass it.
func EvaluateMatches(all []TaskMatch) *MatchResult {
	if len(all) == 0 {
		return &MatchResult{}
	}

	ranked := make([]TaskMatch, len(all))
	copy(ranked, all)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Confidence > ranked[j].Confidence
	})

	best := ranked[0]

	strong := 0
	for _, m := range ranked {
		if m.Confidence > AmbiguityThreshold {
			strong++
		}
	}

	return &MatchResult{
		Best:              &best,
		All:               ranked,
		NeedsConfirmation: best.Confidence < HighConfidenceThreshold || strong > 1,
	}
}
