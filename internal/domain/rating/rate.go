package rating

import (
	"fmt"
	"math"
)

// Rate computes updated ratings for every player in a fully ranked match.
//
// Teams are compared pairwise: for each pair the two-team Gaussian skill
// update is applied to a working copy, so a team's final rating reflects its
// result against every opponent. The routine is pure and deterministic for a
// fixed input.
func Rate(teams []TeamRanking) ([][]Rating, error) {
	if len(teams) < 2 {
		return nil, fmt.Errorf("at least two teams are required, got %d", len(teams))
	}
	for i, t := range teams {
		if len(t.Ratings) == 0 {
			return nil, fmt.Errorf("team %d has no players", i)
		}
		for _, r := range t.Ratings {
			if err := r.Validate(); err != nil {
				return nil, err
			}
		}
	}

	updated := make([][]Rating, len(teams))
	for i, t := range teams {
		updated[i] = append([]Rating(nil), t.Ratings...)
	}

	for i := 0; i < len(teams); i++ {
		for j := i + 1; j < len(teams); j++ {
			pairwiseUpdate(updated[i], teams[i].Rank, updated[j], teams[j].Rank)
		}
	}

	return updated, nil
}

// pairwiseUpdate applies the two-team skill update to a and b in place.
func pairwiseUpdate(a []Rating, rankA Rank, b []Rating, rankB Rank) {
	muA, varA := teamAggregate(a)
	muB, varB := teamAggregate(b)

	playerCount := float64(len(a) + len(b))
	c := math.Sqrt(varA + varB + playerCount*beta*beta)
	eps := drawMargin(playerCount)

	var v, w, sign float64
	switch {
	case rankA == rankB:
		v = vDraw((muA-muB)/c, eps/c)
		w = wDraw((muA-muB)/c, eps/c)
		sign = 1
	case rankA < rankB:
		v = vWin((muA-muB)/c, eps/c)
		w = wWin((muA-muB)/c, eps/c)
		sign = 1
	default:
		v = vWin((muB-muA)/c, eps/c)
		w = wWin((muB-muA)/c, eps/c)
		sign = -1
	}

	applyTeamDelta(a, c, v, w, sign)
	applyTeamDelta(b, c, v, w, -sign)
}

// minVarianceFactor keeps sigma strictly positive even for extreme updates.
const minVarianceFactor = 1e-4

func applyTeamDelta(team []Rating, c, v, w, sign float64) {
	for i, r := range team {
		variance := r.Sigma*r.Sigma + tau*tau
		mu := r.Mu + sign*(variance/c)*v
		sigmaSq := variance * math.Max(1-(variance/(c*c))*w, minVarianceFactor)
		team[i] = Rating{Mu: mu, Sigma: math.Sqrt(sigmaSq)}
	}
}

func teamAggregate(team []Rating) (mu, variance float64) {
	for _, r := range team {
		mu += r.Mu
		variance += r.Sigma * r.Sigma
	}
	return mu, variance
}

func drawMargin(playerCount float64) float64 {
	return invNormCdf((drawProbability+1)/2) * math.Sqrt(playerCount) * beta
}

// Truncated-Gaussian correction terms for a decisive outcome.
func vWin(t, eps float64) float64 {
	denom := normCdf(t - eps)
	if denom < math.SmallestNonzeroFloat64 {
		return -t + eps
	}
	return normPdf(t-eps) / denom
}

func wWin(t, eps float64) float64 {
	v := vWin(t, eps)
	return v * (v + t - eps)
}

// Truncated-Gaussian correction terms for a drawn outcome.
func vDraw(t, eps float64) float64 {
	abs := math.Abs(t)
	denom := normCdf(eps-abs) - normCdf(-eps-abs)
	if denom < math.SmallestNonzeroFloat64 {
		if t < 0 {
			return abs + eps
		}
		return -abs - eps
	}
	numer := normPdf(-eps-abs) - normPdf(eps-abs)
	if t < 0 {
		return -numer / denom
	}
	return numer / denom
}

func wDraw(t, eps float64) float64 {
	abs := math.Abs(t)
	denom := normCdf(eps-abs) - normCdf(-eps-abs)
	if denom < math.SmallestNonzeroFloat64 {
		return 1
	}
	v := vDraw(t, eps)
	return v*v + ((eps-abs)*normPdf(eps-abs)+(eps+abs)*normPdf(-eps-abs))/denom
}
