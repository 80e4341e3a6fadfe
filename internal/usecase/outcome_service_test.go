package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pickuphub/pickup-backend/internal/domain/pickup"
	"github.com/pickuphub/pickup-backend/internal/domain/player"
	"github.com/pickuphub/pickup-backend/internal/domain/rating"
	"github.com/pickuphub/pickup-backend/internal/infrastructure/repository/memory"
)

type outcomeFixture struct {
	pickupRepo    *memory.PickupRepository
	playerRepo    *memory.PlayerRepository
	communityRepo *memory.CommunityRepository
	stages        *StageService
	outcomes      *OutcomeService
}

func newOutcomeFixture() *outcomeFixture {
	pickupRepo := memory.NewPickupRepository(memory.SeedConfigs())
	playerRepo := memory.NewPlayerRepository()
	communityRepo := memory.NewCommunityRepository(memory.SeedCommunities())
	stages := NewStageService(pickupRepo, playerRepo, nil, nil)
	outcomes := NewOutcomeService(pickupRepo, playerRepo, communityRepo, stages, nil, nil)

	return &outcomeFixture{
		pickupRepo:    pickupRepo,
		playerRepo:    playerRepo,
		communityRepo: communityRepo,
		stages:        stages,
		outcomes:      outcomes,
	}
}

// seedRateable stores a finished pickup awaiting reports. The first player of
// each team is its captain.
func (f *outcomeFixture) seedRateable(t *testing.T, memberIDs [][]string) int64 {
	t.Helper()

	teams := make([]pickup.Team, len(memberIDs))
	captains := make([]pickup.Captain, len(memberIDs))
	var all []player.Ref
	for i, ids := range memberIDs {
		players := make([]player.Ref, len(ids))
		for j, id := range ids {
			players[j] = ref(id)
			all = append(all, players[j])
		}
		teams[i] = pickup.Team{Name: teamName(i), Players: players}
		captains[i] = pickup.Captain{Player: players[0], Team: teamName(i)}
	}

	rateable := pickup.Rateable{
		ConfigID:  memory.ConfigIDTDM,
		Name:      "4v4 TDM",
		StartedAt: time.Now(),
		Captains:  captains,
		Teams:     teams,
	}
	id, err := f.pickupRepo.StoreRateable(t.Context(), memory.CommunityQuakeNet, rateable)
	if err != nil {
		t.Fatalf("store rateable failed: %v", err)
	}

	if err := f.pickupRepo.SaveActive(t.Context(), memory.CommunityQuakeNet, pickup.Active{
		ConfigID:  memory.ConfigIDTDM,
		Players:   all,
		Stage:     pickup.StageAwaitingOutcome,
		StartedAt: rateable.StartedAt,
		Teams:     teams,
		Captains:  captains,
	}); err != nil {
		t.Fatalf("save active failed: %v", err)
	}
	return id
}

func (f *outcomeFixture) teamOutcome(t *testing.T, pickupID int64, team string) pickup.Outcome {
	t.Helper()
	rateable, ok, err := f.pickupRepo.GetLatestRateable(t.Context(), memory.CommunityQuakeNet, "", pickupID)
	if err != nil || !ok {
		t.Fatalf("load rateable failed: ok=%v err=%v", ok, err)
	}
	for _, tm := range rateable.Teams {
		if tm.Name == team {
			return tm.Outcome
		}
	}
	t.Fatalf("team %s not found", team)
	return ""
}

func (f *outcomeFixture) isRated(t *testing.T, pickupID int64) bool {
	t.Helper()
	rateable, ok, err := f.pickupRepo.GetLatestRateable(t.Context(), memory.CommunityQuakeNet, "", pickupID)
	if err != nil || !ok {
		t.Fatalf("load rateable failed: ok=%v err=%v", ok, err)
	}
	return rateable.IsRated
}

func TestOutcomeService_TwoTeamsResolveOnFirstReport(t *testing.T) {
	f := newOutcomeFixture()
	id := f.seedRateable(t, [][]string{{"a1", "a2"}, {"b1", "b2"}})

	if err := f.outcomes.ReportOutcome(t.Context(), memory.CommunityQuakeNet, ref("a1"), 0, pickup.OutcomeLoss); err != nil {
		t.Fatalf("report failed: %v", err)
	}

	if !f.isRated(t, id) {
		t.Fatal("two-team pickup must rate on the first report")
	}
	if got := f.teamOutcome(t, id, "A"); got != pickup.OutcomeLoss {
		t.Fatalf("team A: expected loss, got %s", got)
	}
	if got := f.teamOutcome(t, id, "B"); got != pickup.OutcomeWin {
		t.Fatalf("team B: expected win, got %s", got)
	}

	// Rating moved for winners and losers.
	winner, _ := f.playerRepo.GetRating(t.Context(), memory.CommunityQuakeNet, "b1")
	loser, _ := f.playerRepo.GetRating(t.Context(), memory.CommunityQuakeNet, "a1")
	if winner.Mu <= rating.DefaultMu {
		t.Fatalf("winner mu did not rise: %v", winner.Mu)
	}
	if loser.Mu >= rating.DefaultMu {
		t.Fatalf("loser mu did not drop: %v", loser.Mu)
	}

	// Active pickup retired.
	if _, ok, _ := f.pickupRepo.GetActive(t.Context(), memory.CommunityQuakeNet, memory.ConfigIDTDM); ok {
		t.Fatal("rated pickup must clear its active entry")
	}

	// Further reports hit the rated guard.
	err := f.outcomes.ReportOutcome(t.Context(), memory.CommunityQuakeNet, ref("b1"), 0, pickup.OutcomeLoss)
	if !errors.Is(err, ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict after rating, got %v", err)
	}
}

func TestOutcomeService_TwoTeamDrawClaim(t *testing.T) {
	f := newOutcomeFixture()
	id := f.seedRateable(t, [][]string{{"a1"}, {"b1"}})

	if err := f.outcomes.ReportOutcome(t.Context(), memory.CommunityQuakeNet, ref("a1"), 0, pickup.OutcomeDraw); err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if got := f.teamOutcome(t, id, "A"); got != pickup.OutcomeDraw {
		t.Fatalf("team A: expected draw, got %s", got)
	}
	if got := f.teamOutcome(t, id, "B"); got != pickup.OutcomeDraw {
		t.Fatalf("team B: expected draw, got %s", got)
	}
}

func TestOutcomeService_ThreeTeamsQuorum(t *testing.T) {
	f := newOutcomeFixture()
	id := f.seedRateable(t, [][]string{{"a1", "a2"}, {"b1", "b2"}, {"c1", "c2"}})

	if err := f.outcomes.ReportOutcome(t.Context(), memory.CommunityQuakeNet, ref("a1"), 0, pickup.OutcomeLoss); err != nil {
		t.Fatalf("first report failed: %v", err)
	}
	if f.isRated(t, id) {
		t.Fatal("one report of three teams must not finalize")
	}

	if err := f.outcomes.ReportOutcome(t.Context(), memory.CommunityQuakeNet, ref("b1"), 0, pickup.OutcomeLoss); err != nil {
		t.Fatalf("second report failed: %v", err)
	}
	if !f.isRated(t, id) {
		t.Fatal("two of three reports must finalize")
	}
	if got := f.teamOutcome(t, id, "C"); got != pickup.OutcomeWin {
		t.Fatalf("unreported team: expected win, got %s", got)
	}
}

func TestOutcomeService_FourTeamsTwoDrawsInferDraw(t *testing.T) {
	f := newOutcomeFixture()
	id := f.seedRateable(t, [][]string{{"a1"}, {"b1"}, {"c1"}, {"d1"}})

	if err := f.outcomes.ReportOutcome(t.Context(), memory.CommunityQuakeNet, ref("a1"), 0, pickup.OutcomeLoss); err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if err := f.outcomes.ReportOutcome(t.Context(), memory.CommunityQuakeNet, ref("b1"), 0, pickup.OutcomeDraw); err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if err := f.outcomes.ReportOutcome(t.Context(), memory.CommunityQuakeNet, ref("c1"), 0, pickup.OutcomeDraw); err != nil {
		t.Fatalf("report failed: %v", err)
	}

	if !f.isRated(t, id) {
		t.Fatal("two concordant draw claims at quorum must finalize")
	}
	if got := f.teamOutcome(t, id, "D"); got != pickup.OutcomeDraw {
		t.Fatalf("silent team: expected draw, got %s", got)
	}
	if got := f.teamOutcome(t, id, "A"); got != pickup.OutcomeLoss {
		t.Fatalf("team A: expected loss, got %s", got)
	}
}

func TestOutcomeService_LoneDrawNeverSilentlyFinalizes(t *testing.T) {
	f := newOutcomeFixture()
	id := f.seedRateable(t, [][]string{{"a1"}, {"b1"}, {"c1"}, {"d1"}})

	for _, report := range []struct {
		actor string
		claim pickup.Outcome
	}{
		{"a1", pickup.OutcomeLoss},
		{"b1", pickup.OutcomeLoss},
		{"c1", pickup.OutcomeDraw},
	} {
		if err := f.outcomes.ReportOutcome(t.Context(), memory.CommunityQuakeNet, ref(report.actor), 0, report.claim); err != nil {
			t.Fatalf("report by %s failed: %v", report.actor, err)
		}
	}
	if f.isRated(t, id) {
		t.Fatal("a lone draw claim at quorum must not finalize")
	}

	// The last captain cannot contradict the standing draw with a loss.
	err := f.outcomes.ReportOutcome(t.Context(), memory.CommunityQuakeNet, ref("d1"), 0, pickup.OutcomeLoss)
	if !errors.Is(err, ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict for contradicting loss, got %v", err)
	}

	if err := f.outcomes.ReportOutcome(t.Context(), memory.CommunityQuakeNet, ref("d1"), 0, pickup.OutcomeDraw); err != nil {
		t.Fatalf("resolving draw failed: %v", err)
	}
	if !f.isRated(t, id) {
		t.Fatal("the resolving draw must finalize")
	}
	if got := f.teamOutcome(t, id, "C"); got != pickup.OutcomeDraw {
		t.Fatalf("team C: expected draw, got %s", got)
	}
	if got := f.teamOutcome(t, id, "D"); got != pickup.OutcomeDraw {
		t.Fatalf("team D: expected draw, got %s", got)
	}
	if got := f.teamOutcome(t, id, "A"); got != pickup.OutcomeLoss {
		t.Fatalf("team A: expected loss, got %s", got)
	}
}

func TestOutcomeService_BelowQuorumDoesNotFinalize(t *testing.T) {
	f := newOutcomeFixture()
	id := f.seedRateable(t, [][]string{{"a1"}, {"b1"}, {"c1"}, {"d1"}})

	if err := f.outcomes.ReportOutcome(t.Context(), memory.CommunityQuakeNet, ref("a1"), 0, pickup.OutcomeLoss); err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if err := f.outcomes.ReportOutcome(t.Context(), memory.CommunityQuakeNet, ref("b1"), 0, pickup.OutcomeLoss); err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if f.isRated(t, id) {
		t.Fatal("two of four reports must not finalize")
	}
}

func TestOutcomeService_DuplicateReportRejected(t *testing.T) {
	f := newOutcomeFixture()
	f.seedRateable(t, [][]string{{"a1"}, {"b1"}, {"c1"}, {"d1"}})

	if err := f.outcomes.ReportOutcome(t.Context(), memory.CommunityQuakeNet, ref("a1"), 0, pickup.OutcomeLoss); err != nil {
		t.Fatalf("report failed: %v", err)
	}
	err := f.outcomes.ReportOutcome(t.Context(), memory.CommunityQuakeNet, ref("a1"), 0, pickup.OutcomeDraw)
	if !errors.Is(err, ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict for duplicate report, got %v", err)
	}
}

func TestOutcomeService_NonCaptainRejected(t *testing.T) {
	f := newOutcomeFixture()
	f.seedRateable(t, [][]string{{"a1", "a2"}, {"b1", "b2"}})

	err := f.outcomes.ReportOutcome(t.Context(), memory.CommunityQuakeNet, ref("a2"), 0, pickup.OutcomeLoss)
	if !errors.Is(err, ErrEligibility) {
		t.Fatalf("expected ErrEligibility for non-captain, got %v", err)
	}
}

func TestOutcomeService_WinClaimRejected(t *testing.T) {
	f := newOutcomeFixture()
	f.seedRateable(t, [][]string{{"a1"}, {"b1"}})

	err := f.outcomes.ReportOutcome(t.Context(), memory.CommunityQuakeNet, ref("a1"), 0, pickup.OutcomeWin)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for win claim, got %v", err)
	}
}

func TestOutcomeService_ExpiredPickupRefused(t *testing.T) {
	f := newOutcomeFixture()
	f.seedRateable(t, [][]string{{"a1"}, {"b1"}})

	// The report window of the seed community is two hours.
	f.outcomes.now = func() time.Time { return time.Now().Add(3 * time.Hour) }

	err := f.outcomes.ReportOutcome(t.Context(), memory.CommunityQuakeNet, ref("a1"), 0, pickup.OutcomeLoss)
	if !errors.Is(err, ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict for expired pickup, got %v", err)
	}
	if _, ok, _ := f.pickupRepo.GetActive(t.Context(), memory.CommunityQuakeNet, memory.ConfigIDTDM); ok {
		t.Fatal("expired pickup must clear its active entry")
	}
}

func TestOutcomeService_ConcurrentReportsRateOnce(t *testing.T) {
	f := newOutcomeFixture()
	id := f.seedRateable(t, [][]string{{"a1"}, {"b1"}})

	done := make(chan error, 2)
	for _, actor := range []string{"a1", "b1"} {
		actor := actor
		go func() {
			done <- f.outcomes.ReportOutcome(t.Context(), memory.CommunityQuakeNet, ref(actor), 0, pickup.OutcomeLoss)
		}()
	}

	var failures int
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			failures++
			if !errors.Is(err, ErrStateConflict) {
				t.Fatalf("unexpected error: %v", err)
			}
		}
	}
	if failures != 1 {
		t.Fatalf("expected exactly one racing report to lose, got %d failures", failures)
	}
	if !f.isRated(t, id) {
		t.Fatal("pickup must be rated")
	}

	// Conflicting outcomes cannot both apply; exactly one team won.
	wins := 0
	for _, team := range []string{"A", "B"} {
		if f.teamOutcome(t, id, team) == pickup.OutcomeWin {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winning team, got %d", wins)
	}
}

func TestOutcomeService_UnknownPickupRejected(t *testing.T) {
	f := newOutcomeFixture()

	err := f.outcomes.ReportOutcome(t.Context(), memory.CommunityQuakeNet, ref("a1"), 0, pickup.OutcomeLoss)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// flakyRatingStore fails a configured number of rating writes before
// delegating to the real store.
type flakyRatingStore struct {
	*memory.PlayerRepository
	failures int
}

func (s *flakyRatingStore) SetRating(ctx context.Context, community, playerID string, r rating.Rating) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("connection reset")
	}
	return s.PlayerRepository.SetRating(ctx, community, playerID, r)
}

func TestOutcomeService_InterruptedFinalizeStaysReportable(t *testing.T) {
	f := newOutcomeFixture()
	flaky := &flakyRatingStore{PlayerRepository: f.playerRepo, failures: 1}
	f.outcomes.playerStore = flaky
	id := f.seedRateable(t, [][]string{{"a1"}, {"b1"}})

	err := f.outcomes.ReportOutcome(t.Context(), memory.CommunityQuakeNet, ref("a1"), 0, pickup.OutcomeLoss)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if f.isRated(t, id) {
		t.Fatal("an interrupted finalize must not mark the pickup rated")
	}

	// The retried report completes the rating instead of hitting the
	// duplicate guard.
	if err := f.outcomes.ReportOutcome(t.Context(), memory.CommunityQuakeNet, ref("a1"), 0, pickup.OutcomeLoss); err != nil {
		t.Fatalf("retried report failed: %v", err)
	}
	if !f.isRated(t, id) {
		t.Fatal("the retried report must finalize")
	}
	winner, _ := f.playerRepo.GetRating(t.Context(), memory.CommunityQuakeNet, "b1")
	if winner.Mu <= rating.DefaultMu {
		t.Fatalf("winner mu did not rise: %v", winner.Mu)
	}
}

func TestOutcomeService_TooManyNewerRatedPickupsRefused(t *testing.T) {
	f := newOutcomeFixture()
	id := f.seedRateable(t, [][]string{{"a1"}, {"b1"}})

	for i := 0; i <= rating.RerateAmountLimit; i++ {
		newer, err := f.pickupRepo.StoreRateable(t.Context(), memory.CommunityQuakeNet, pickup.Rateable{
			ConfigID:  memory.ConfigIDTDM,
			Name:      "4v4 TDM",
			StartedAt: time.Now(),
		})
		if err != nil {
			t.Fatalf("store rateable failed: %v", err)
		}
		if err := f.pickupRepo.SetRated(t.Context(), newer); err != nil {
			t.Fatalf("set rated failed: %v", err)
		}
	}

	err := f.outcomes.ReportOutcome(t.Context(), memory.CommunityQuakeNet, ref("a1"), id, pickup.OutcomeLoss)
	if !errors.Is(err, ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict for stale pickup, got %v", err)
	}
	if f.isRated(t, id) {
		t.Fatal("a refused stale report must not rate the pickup")
	}
}

// recordingNotifier captures messages per recipient for assertions.
type recordingNotifier struct {
	mu    sync.Mutex
	notes map[string][]string
}

func (n *recordingNotifier) Notify(_ context.Context, _ string, target, message string, _ Severity) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.notes == nil {
		n.notes = make(map[string][]string)
	}
	n.notes[target] = append(n.notes[target], message)
}

func (n *recordingNotifier) sentTo(target string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.notes[target]...)
}

func TestOutcomeService_LoneDrawPromptsLastCaptain(t *testing.T) {
	f := newOutcomeFixture()
	rec := &recordingNotifier{}
	f.outcomes.notifier = rec
	f.seedRateable(t, [][]string{{"a1"}, {"b1"}, {"c1"}})

	if err := f.outcomes.ReportOutcome(t.Context(), memory.CommunityQuakeNet, ref("a1"), 0, pickup.OutcomeLoss); err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if err := f.outcomes.ReportOutcome(t.Context(), memory.CommunityQuakeNet, ref("b1"), 0, pickup.OutcomeDraw); err != nil {
		t.Fatalf("report failed: %v", err)
	}

	prompts := rec.sentTo("c1")
	if len(prompts) != 1 || prompts[0] != "please report draw to finalize the rating" {
		t.Fatalf("expected a draw prompt for the last captain, got %v", prompts)
	}
}
