package formation

import (
	"fmt"
	"testing"

	"github.com/pickuphub/pickup-backend/internal/domain/player"
	"github.com/pickuphub/pickup-backend/internal/domain/rating"
)

func candidate(id string, mu float64) Candidate {
	// Sigma chosen so the conservative score equals mu-2.
	return Candidate{
		Player: player.Ref{ID: id, DisplayName: id},
		Rating: rating.Rating{Mu: mu, Sigma: 1},
	}
}

func teamIDs(team []Candidate) []string {
	out := make([]string, 0, len(team))
	for _, c := range team {
		out = append(out, c.Player.ID)
	}
	return out
}

func TestBalancedSplit_RoundRobin(t *testing.T) {
	players := []player.Ref{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}, {ID: "e"}}

	teams, err := BalancedSplit(players, 2)
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}

	if len(teams[0]) != 3 || len(teams[1]) != 2 {
		t.Fatalf("unexpected team sizes: %d, %d", len(teams[0]), len(teams[1]))
	}
	if teams[0][0].ID != "a" || teams[1][0].ID != "b" || teams[0][1].ID != "c" {
		t.Fatalf("round-robin order broken: %v %v", teams[0], teams[1])
	}
}

func TestBalancedSplit_RejectsTooFewPlayers(t *testing.T) {
	if _, err := BalancedSplit([]player.Ref{{ID: "a"}}, 2); err == nil {
		t.Fatal("expected error for too few players")
	}
}

func TestBalancedDraft_SnakePairing(t *testing.T) {
	candidates := []Candidate{
		candidate("p10", 12),
		candidate("p8", 10),
		candidate("p6", 8),
		candidate("p4", 6),
	}

	result, err := BalancedDraft(candidates, 2)
	if err != nil {
		t.Fatalf("draft failed: %v", err)
	}

	got0 := fmt.Sprintf("%v", teamIDs(result.Teams[0]))
	got1 := fmt.Sprintf("%v", teamIDs(result.Teams[1]))
	if got0 != "[p10 p4]" {
		t.Fatalf("team 0 should pair strongest and weakest, got %s", got0)
	}
	if got1 != "[p8 p6]" {
		t.Fatalf("team 1 should take the middle pair, got %s", got1)
	}
	if result.DrawProbability <= 0 || result.DrawProbability > 1 {
		t.Fatalf("draw probability out of range: %f", result.DrawProbability)
	}
}

func TestBalancedDraft_TeamSizesStayEven(t *testing.T) {
	for _, tc := range []struct {
		players, teams int
	}{
		{8, 2}, {10, 2}, {9, 3}, {12, 3}, {12, 4}, {7, 3},
	} {
		candidates := make([]Candidate, tc.players)
		for i := range candidates {
			candidates[i] = candidate(fmt.Sprintf("p%02d", i), float64(40-i))
		}

		result, err := BalancedDraft(candidates, tc.teams)
		if err != nil {
			t.Fatalf("draft %d/%d failed: %v", tc.players, tc.teams, err)
		}

		min, max, total := tc.players, 0, 0
		for _, team := range result.Teams {
			if len(team) < min {
				min = len(team)
			}
			if len(team) > max {
				max = len(team)
			}
			total += len(team)
		}
		if total != tc.players {
			t.Fatalf("draft %d/%d lost players: assigned %d", tc.players, tc.teams, total)
		}
		if max-min > 1 {
			t.Fatalf("draft %d/%d team sizes diverge: min=%d max=%d", tc.players, tc.teams, min, max)
		}
	}
}

func TestBalancedDraft_Deterministic(t *testing.T) {
	candidates := []Candidate{
		candidate("a", 20), candidate("b", 30), candidate("c", 25),
		candidate("d", 25), candidate("e", 18), candidate("f", 33),
	}

	first, err := BalancedDraft(candidates, 2)
	if err != nil {
		t.Fatalf("draft failed: %v", err)
	}
	second, err := BalancedDraft(candidates, 2)
	if err != nil {
		t.Fatalf("draft failed: %v", err)
	}

	for i := range first.Teams {
		a := fmt.Sprintf("%v", teamIDs(first.Teams[i]))
		b := fmt.Sprintf("%v", teamIDs(second.Teams[i]))
		if a != b {
			t.Fatalf("draft is not deterministic: %s vs %s", a, b)
		}
	}
}

func TestBalancedDraft_TieBrokenByQueueOrder(t *testing.T) {
	candidates := []Candidate{
		candidate("first", 25),
		candidate("second", 25),
		candidate("third", 25),
		candidate("fourth", 25),
	}

	result, err := BalancedDraft(candidates, 2)
	if err != nil {
		t.Fatalf("draft failed: %v", err)
	}

	// All scores equal: the stable sort keeps queue order, so team 0 gets the
	// first and last queued players.
	got := fmt.Sprintf("%v", teamIDs(result.Teams[0]))
	if got != "[first fourth]" {
		t.Fatalf("tie-break should follow queue order, got %s", got)
	}
}

func TestBalancedDraft_DoesNotMutateInput(t *testing.T) {
	candidates := []Candidate{
		candidate("a", 10), candidate("b", 40), candidate("c", 20), candidate("d", 30),
	}
	originalOrder := fmt.Sprintf("%v", teamIDs(candidates))

	if _, err := BalancedDraft(candidates, 2); err != nil {
		t.Fatalf("draft failed: %v", err)
	}

	if got := fmt.Sprintf("%v", teamIDs(candidates)); got != originalOrder {
		t.Fatalf("input slice was reordered: %s", got)
	}
}
