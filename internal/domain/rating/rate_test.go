package rating

import (
	"math"
	"testing"
)

func TestRate_WinnerGainsLoserDrops(t *testing.T) {
	teams := []TeamRanking{
		{Ratings: []Rating{Default(), Default()}, Rank: RankWin},
		{Ratings: []Rating{Default(), Default()}, Rank: RankLoss},
	}

	updated, err := Rate(teams)
	if err != nil {
		t.Fatalf("rate failed: %v", err)
	}

	for _, r := range updated[0] {
		if r.Mu <= DefaultMu {
			t.Fatalf("winner mu should increase, got %f", r.Mu)
		}
		if r.Sigma >= DefaultSigma {
			t.Fatalf("winner sigma should shrink, got %f", r.Sigma)
		}
	}
	for _, r := range updated[1] {
		if r.Mu >= DefaultMu {
			t.Fatalf("loser mu should decrease, got %f", r.Mu)
		}
	}
}

func TestRate_DrawBetweenEqualTeamsKeepsMu(t *testing.T) {
	teams := []TeamRanking{
		{Ratings: []Rating{Default()}, Rank: RankDraw},
		{Ratings: []Rating{Default()}, Rank: RankDraw},
	}

	updated, err := Rate(teams)
	if err != nil {
		t.Fatalf("rate failed: %v", err)
	}

	if math.Abs(updated[0][0].Mu-updated[1][0].Mu) > 1e-9 {
		t.Fatalf("draw between equal teams must stay symmetric: %f vs %f", updated[0][0].Mu, updated[1][0].Mu)
	}
	if math.Abs(updated[0][0].Mu-DefaultMu) > 1e-6 {
		t.Fatalf("draw between equal teams should not move mu, got %f", updated[0][0].Mu)
	}
	if updated[0][0].Sigma >= DefaultSigma {
		t.Fatalf("a played match should reduce uncertainty, got sigma %f", updated[0][0].Sigma)
	}
}

func TestRate_Deterministic(t *testing.T) {
	teams := []TeamRanking{
		{Ratings: []Rating{{Mu: 28, Sigma: 5}, {Mu: 21, Sigma: 7}}, Rank: RankLoss},
		{Ratings: []Rating{{Mu: 25, Sigma: 6}, {Mu: 24, Sigma: 4}}, Rank: RankWin},
		{Ratings: []Rating{{Mu: 30, Sigma: 8}, {Mu: 18, Sigma: 3}}, Rank: RankLoss},
	}

	first, err := Rate(teams)
	if err != nil {
		t.Fatalf("rate failed: %v", err)
	}
	second, err := Rate(teams)
	if err != nil {
		t.Fatalf("rate failed: %v", err)
	}

	for i := range first {
		for j := range first[i] {
			if first[i][j] != second[i][j] {
				t.Fatalf("rate is not deterministic at team %d player %d", i, j)
			}
		}
	}
}

func TestRate_UpsetMovesMoreThanExpectedWin(t *testing.T) {
	strong := Rating{Mu: 35, Sigma: 4}
	weak := Rating{Mu: 15, Sigma: 4}

	expected, err := Rate([]TeamRanking{
		{Ratings: []Rating{strong}, Rank: RankWin},
		{Ratings: []Rating{weak}, Rank: RankLoss},
	})
	if err != nil {
		t.Fatalf("rate failed: %v", err)
	}

	upset, err := Rate([]TeamRanking{
		{Ratings: []Rating{strong}, Rank: RankLoss},
		{Ratings: []Rating{weak}, Rank: RankWin},
	})
	if err != nil {
		t.Fatalf("rate failed: %v", err)
	}

	expectedGain := expected[0][0].Mu - strong.Mu
	upsetLoss := strong.Mu - upset[0][0].Mu
	if upsetLoss <= expectedGain {
		t.Fatalf("an upset should move ratings more than an expected win: %f vs %f", upsetLoss, expectedGain)
	}
}

func TestRate_RejectsDegenerateInput(t *testing.T) {
	if _, err := Rate([]TeamRanking{{Ratings: []Rating{Default()}, Rank: RankWin}}); err == nil {
		t.Fatal("expected error for single team")
	}
	if _, err := Rate([]TeamRanking{
		{Ratings: []Rating{Default()}, Rank: RankWin},
		{Ratings: nil, Rank: RankLoss},
	}); err == nil {
		t.Fatal("expected error for empty team")
	}
	if _, err := Rate([]TeamRanking{
		{Ratings: []Rating{{Mu: 25, Sigma: 0}}, Rank: RankWin},
		{Ratings: []Rating{Default()}, Rank: RankLoss},
	}); err == nil {
		t.Fatal("expected error for non-positive sigma")
	}
}

func TestQuality_EvenTeamsScoreHigherThanLopsided(t *testing.T) {
	even, err := Quality([][]Rating{{Default()}, {Default()}})
	if err != nil {
		t.Fatalf("quality failed: %v", err)
	}
	lopsided, err := Quality([][]Rating{{{Mu: 40, Sigma: 2}}, {{Mu: 10, Sigma: 2}}})
	if err != nil {
		t.Fatalf("quality failed: %v", err)
	}

	if even <= lopsided {
		t.Fatalf("even teams should score higher: even=%f lopsided=%f", even, lopsided)
	}
	if even <= 0 || even > 1 {
		t.Fatalf("quality out of range: %f", even)
	}
}

func TestInvNormCdf_RoundTrips(t *testing.T) {
	for _, p := range []float64{0.01, 0.1, 0.25, 0.5, 0.55, 0.9, 0.99} {
		x := invNormCdf(p)
		if got := normCdf(x); math.Abs(got-p) > 1e-6 {
			t.Fatalf("cdf(invcdf(%f)) = %f", p, got)
		}
	}
}
