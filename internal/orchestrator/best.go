package orchestrator

import "github.com/valpere/devgenie/internal"

// SelectBest scans every candidate and returns the highest-scoring one. The
// comparison is strictly greater-than, so the earliest maximum wins ties.
func SelectBest(candidates []internal.ScoredCandidate) (internal.ScoredCandidate, bool) {
	best := -1
	bestScore := -1
	for i, c := range candidates {
		if c.Score > bestScore {
			bestScore = c.Score
			best = i
		}
	}
	if best < 0 {
		return internal.ScoredCandidate{}, false
	}
	return candidates[best], true
}
