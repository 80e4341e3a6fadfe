package rating

import (
	"fmt"
	"math"
)

// Quality scores how evenly matched a set of teams is, 0..1, where higher
// values mean a draw is more likely. Advisory output only.
//
// The two-team score is the classic match-quality formula; for more teams the
// geometric mean over all pairs is taken so a single lopsided pairing drags
// the whole score down.
func Quality(teams [][]Rating) (float64, error) {
	if len(teams) < 2 {
		return 0, fmt.Errorf("at least two teams are required, got %d", len(teams))
	}
	for i, t := range teams {
		if len(t) == 0 {
			return 0, fmt.Errorf("team %d has no players", i)
		}
	}

	product := 1.0
	pairs := 0
	for i := 0; i < len(teams); i++ {
		for j := i + 1; j < len(teams); j++ {
			product *= pairQuality(teams[i], teams[j])
			pairs++
		}
	}

	return math.Pow(product, 1/float64(pairs)), nil
}

func pairQuality(a, b []Rating) float64 {
	muA, varA := teamAggregate(a)
	muB, varB := teamAggregate(b)

	totalBetaVar := float64(len(a)+len(b)) * beta * beta
	denom := totalBetaVar + varA + varB

	diff := muA - muB
	return math.Sqrt(totalBetaVar/denom) * math.Exp(-diff*diff/(2*denom))
}
