// Package formation builds teams from a snapshot of queue state. Both
// strategies are pure functions: for a fixed input order and fixed ratings the
// output is identical, with score ties broken by original queue order.
package formation

import (
	"fmt"
	"sort"

	"github.com/pickuphub/pickup-backend/internal/domain/player"
	"github.com/pickuphub/pickup-backend/internal/domain/rating"
)

// Candidate pairs a queued player with the rating snapshot taken at
// formation time.
type Candidate struct {
	Player player.Ref
	Rating rating.Rating
}

// Result is a full team assignment plus an advisory evenness score.
type Result struct {
	Teams [][]Candidate
	// DrawProbability is a symmetric 0..1 quality score of the assignment,
	// used for display only, never to retry formation.
	DrawProbability float64
}

// BalancedSplit assigns players round-robin in current queue order. Team
// sizes differ by at most one.
func BalancedSplit(players []player.Ref, teamCount int) ([][]player.Ref, error) {
	if teamCount < 2 {
		return nil, fmt.Errorf("at least two teams are required, got %d", teamCount)
	}
	if len(players) < teamCount {
		return nil, fmt.Errorf("not enough players for %d teams: %d", teamCount, len(players))
	}

	teams := make([][]player.Ref, teamCount)
	for i, p := range players {
		teams[i%teamCount] = append(teams[i%teamCount], p)
	}
	return teams, nil
}

// BalancedDraft assigns players by skill-weighted snake draft, used for elo
// mode. Players are ordered by conservative score descending; each team in
// turn takes the strongest remaining player and, while at least teamCount
// players remain, also the weakest, so every round pairs one strong and one
// weak pick per team and aggregate strength stays close.
func BalancedDraft(candidates []Candidate, teamCount int) (Result, error) {
	if teamCount < 2 {
		return Result{}, fmt.Errorf("at least two teams are required, got %d", teamCount)
	}
	if len(candidates) < teamCount {
		return Result{}, fmt.Errorf("not enough players for %d teams: %d", teamCount, len(candidates))
	}

	pool := append([]Candidate(nil), candidates...)
	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].Rating.ConservativeScore() > pool[j].Rating.ConservativeScore()
	})

	teams := make([][]Candidate, teamCount)
	for len(pool) > 0 {
		for team := 0; team < teamCount && len(pool) > 0; team++ {
			teams[team] = append(teams[team], pool[0])
			pool = pool[1:]

			// Pair a weak pick with the strong one while more players remain
			// than teams still waiting on their strong pick this round.
			if len(pool) > teamCount-1-team {
				teams[team] = append(teams[team], pool[len(pool)-1])
				pool = pool[:len(pool)-1]
			}
		}
	}

	groups := make([][]rating.Rating, teamCount)
	for i, team := range teams {
		for _, c := range team {
			groups[i] = append(groups[i], c.Rating)
		}
	}
	quality, err := rating.Quality(groups)
	if err != nil {
		return Result{}, fmt.Errorf("compute draw probability: %w", err)
	}

	return Result{Teams: teams, DrawProbability: quality}, nil
}
