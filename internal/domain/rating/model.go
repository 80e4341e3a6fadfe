package rating

import "fmt"

const (
	// DefaultMu is the prior skill mean for an unrated player.
	DefaultMu = 25.0
	// DefaultSigma is the prior skill uncertainty for an unrated player.
	DefaultSigma = DefaultMu / 3.0

	// beta is the skill distance guaranteeing roughly 76% win probability.
	beta = DefaultSigma / 2.0
	// tau keeps ratings from collapsing to certainty over many games.
	tau = DefaultSigma / 100.0
	// drawProbability is the assumed base draw chance between even teams.
	drawProbability = 0.10

	// RerateAmountLimit caps how many rated pickups may complete for the same
	// config before outcome reports for an older pickup are refused.
	RerateAmountLimit = 10
)

// Rating is a Gaussian belief over a player's skill.
type Rating struct {
	Mu    float64
	Sigma float64
}

func Default() Rating {
	return Rating{Mu: DefaultMu, Sigma: DefaultSigma}
}

// ConservativeScore is the lower-bound estimate used to order players when
// drafting: uncertain ratings are penalized so unproven players are not
// overweighted.
func (r Rating) ConservativeScore() float64 {
	return r.Mu - 2*r.Sigma
}

func (r Rating) Validate() error {
	if r.Sigma <= 0 {
		return fmt.Errorf("rating sigma must be positive, got %f", r.Sigma)
	}
	return nil
}

// Rank orders teams by match outcome, lower is better. Equal ranks tie.
type Rank int

const (
	RankWin  Rank = 0
	RankDraw Rank = 1
	RankLoss Rank = 2
)

// TeamRanking is one team's players and final standing in a match.
type TeamRanking struct {
	Ratings []Rating
	Rank    Rank
}
