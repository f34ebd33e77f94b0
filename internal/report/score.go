package report

import "math"

// ComputeRiskScore returns the mean of every valid category score across all
// flagged lines, as a percentage rounded half away from zero. No scores gives 0.
func ComputeRiskScore(sections []Section) int {
	var sum float64
	var n int
	for _, s := range sections {
		for _, line := range s.FlaggedLines {
			for _, p := range line.FlaggedCategories.Pairs() {
				if !p.Score.Valid || math.IsNaN(p.Score.Score) {
					continue
				}
				sum += p.Score.Score
				n++
			}
		}
	}
	if n == 0 {
		return 0
	}
	score := int(math.Round(sum / float64(n) * 100))
	// out-of-range inputs from a misbehaving provider
	return min(max(score, 0), 100)
}

func percent(f float64) int {
	return int(math.Round(f * 100))
}
