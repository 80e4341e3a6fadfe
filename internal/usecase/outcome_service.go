package usecase

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pickuphub/pickup-backend/internal/domain/community"
	"github.com/pickuphub/pickup-backend/internal/domain/pickup"
	"github.com/pickuphub/pickup-backend/internal/domain/player"
	"github.com/pickuphub/pickup-backend/internal/domain/rating"
	"github.com/pickuphub/pickup-backend/internal/platform/logging"
)

// OutcomeService collects captain reports for rateable pickups and resolves
// the match once quorum is reached.
//
// Two-team matches resolve on the first report. For N teams, N-1 independent
// reports are required, with one conservative exception: a lone draw claim is
// never silently finalized, the last captain is prompted to settle it.
// ratingFinalizer is implemented by pickup stores that can persist the whole
// finalize write set (teams, ratings, rated flag) atomically. Stores without
// it fall back to an ordered sequence that keeps the rated flag last.
type ratingFinalizer interface {
	FinalizeRating(ctx context.Context, community string, pickupID int64, teams []pickup.Team, updated map[string]rating.Rating) error
}

type OutcomeService struct {
	pickupRepo    pickup.Repository
	playerStore   player.Store
	communityRepo community.Repository
	stages        *StageService
	notifier      Notifier
	locks         *keyedMutex
	logger        *logging.Logger
	now           func() time.Time
}

func NewOutcomeService(
	pickupRepo pickup.Repository,
	playerStore player.Store,
	communityRepo community.Repository,
	stages *StageService,
	notifier Notifier,
	logger *logging.Logger,
) *OutcomeService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &OutcomeService{
		pickupRepo:    pickupRepo,
		playerStore:   playerStore,
		communityRepo: communityRepo,
		stages:        stages,
		notifier:      notifier,
		locks:         stages.locks,
		logger:        logger,
		now:           time.Now,
	}
}

// ReportOutcome files one captain's claim about their own team. pickupID zero
// selects the latest rateable pickup the actor played in.
func (s *OutcomeService) ReportOutcome(ctx context.Context, communityID string, actor player.Ref, pickupID int64, claim pickup.Outcome) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.OutcomeService.ReportOutcome")
	defer span.End()

	if claim != pickup.OutcomeLoss && claim != pickup.OutcomeDraw {
		return fmt.Errorf("%w: captains report loss or draw, not %q", ErrValidation, claim)
	}
	if communityID == "" || actor.ID == "" {
		return fmt.Errorf("%w: community and actor are required", ErrValidation)
	}

	settings, ok, err := s.communityRepo.GetSettings(ctx, communityID)
	if err != nil {
		return fmt.Errorf("%w: load community settings: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return fmt.Errorf("%w: community %s", ErrNotFound, communityID)
	}

	rateable, ok, err := s.pickupRepo.GetLatestRateable(ctx, communityID, actor.ID, pickupID)
	if err != nil {
		return fmt.Errorf("%w: load rateable pickup: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return fmt.Errorf("%w: no rateable pickup found", ErrNotFound)
	}

	unlock := s.locks.Lock("report/" + strconv.FormatInt(rateable.PickupID, 10))
	defer unlock()

	// Re-read under the lock so two racing reports cannot both finalize.
	rateable, ok, err = s.pickupRepo.GetLatestRateable(ctx, communityID, actor.ID, rateable.PickupID)
	if err != nil {
		return fmt.Errorf("%w: load rateable pickup: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return fmt.Errorf("%w: no rateable pickup found", ErrNotFound)
	}
	if rateable.IsRated {
		return fmt.Errorf("%w: pickup #%d is already rated", ErrStateConflict, rateable.PickupID)
	}

	if rateable.Expired(s.now(), settings.ReportExpireTime) {
		if err := s.stages.MarkExpired(ctx, communityID, rateable.ConfigID); err != nil {
			s.logger.WarnContext(ctx, "mark expired failed", "pickup_id", rateable.PickupID, "error", err)
		}
		return fmt.Errorf("%w: the pickup is too old, outcomes can only be reported for pickups less than %s old",
			ErrStateConflict, settings.ReportExpireTime)
	}

	captain, ok := rateable.CaptainOf(actor.ID)
	if !ok {
		return fmt.Errorf("%w: you are not a captain of this pickup", ErrEligibility)
	}

	reports, err := s.pickupRepo.GetReportedOutcomes(ctx, rateable.PickupID)
	if err != nil {
		return fmt.Errorf("%w: load reported outcomes: %v", ErrStoreUnavailable, err)
	}
	teamCount := len(rateable.Teams)
	for _, r := range reports {
		if r.Team == captain.Team {
			// The stored reports alone reach quorum yet the pickup is still
			// unrated: a previous finalize was interrupted after this report
			// landed. Run it again instead of leaving the match stuck. The
			// repeated claim itself is ignored.
			if quorumReached(teamCount, len(reports), countDrawClaims(reports)) {
				return s.finalize(ctx, communityID, rateable, reports, countDrawClaims(reports))
			}
			return fmt.Errorf("%w: you already reported this pickup", ErrStateConflict)
		}
	}

	completedSince, err := s.pickupRepo.CountRatedSince(ctx, communityID, rateable.ConfigID, rateable.PickupID)
	if err != nil {
		return fmt.Errorf("%w: count rated pickups: %v", ErrStoreUnavailable, err)
	}
	if completedSince > rating.RerateAmountLimit {
		return fmt.Errorf("%w: the pickup is too far in the past, only the last %d rated pickups can be reported",
			ErrStateConflict, rating.RerateAmountLimit)
	}

	full := append(append([]pickup.OutcomeReport(nil), reports...), pickup.OutcomeReport{Team: captain.Team, Outcome: claim})
	drawClaims := countDrawClaims(full)

	// Final report of a lone-draw dispute: the claim must concur with the
	// standing draw, a loss would leave the dispute unresolvable.
	if len(full) == teamCount && drawClaims < 2 && claim == pickup.OutcomeLoss {
		return fmt.Errorf("%w: a draw was claimed for this pickup, report draw to finalize", ErrStateConflict)
	}

	if err := s.pickupRepo.RecordOutcome(ctx, rateable.PickupID, captain.Team, claim); err != nil {
		return fmt.Errorf("%w: record outcome: %v", ErrStoreUnavailable, err)
	}
	s.notifier.Notify(ctx, communityID, actor.ID, fmt.Sprintf(
		"reported %s for team %s @ #%d - %s", claim, captain.DisplayName(), rateable.PickupID, rateable.Name), SeveritySuccess)

	switch {
	case teamCount == 2:
		return s.finalize(ctx, communityID, rateable, full, drawClaims)
	case len(full) >= teamCount:
		return s.finalize(ctx, communityID, rateable, full, drawClaims)
	case len(full) == teamCount-1:
		if drawClaims == 1 {
			// A lone draw claim is never inferred away; the last captain has
			// to settle it.
			s.promptLastCaptain(ctx, communityID, rateable, full)
			return nil
		}
		return s.finalize(ctx, communityID, rateable, full, drawClaims)
	default:
		s.notifyWaiting(ctx, communityID, rateable, full)
		return nil
	}
}

// quorumReached reports whether the given report count alone finalizes the
// match, mirroring the dispatch rules above. A lone draw claim at quorum
// stays open for the last captain.
func quorumReached(teamCount, reportCount, drawClaims int) bool {
	switch {
	case teamCount == 2:
		return reportCount >= 1
	case reportCount >= teamCount:
		return true
	case reportCount == teamCount-1:
		return drawClaims != 1
	default:
		return false
	}
}

func countDrawClaims(reports []pickup.OutcomeReport) int {
	n := 0
	for _, r := range reports {
		if r.Outcome == pickup.OutcomeDraw {
			n++
		}
	}
	return n
}

// finalize infers the unreported team's outcome, rates the match exactly once
// and retires the active pickup.
func (s *OutcomeService) finalize(ctx context.Context, communityID string, rateable pickup.Rateable, reports []pickup.OutcomeReport, drawClaims int) error {
	claimed := make(map[string]pickup.Outcome, len(reports))
	for _, r := range reports {
		claimed[r.Team] = r.Outcome
	}

	// The complement of the reported set: at least two draw claims force the
	// silent team into the draw; otherwise it is the winner.
	inferred := pickup.OutcomeWin
	if drawClaims >= 2 || (len(reports) == 1 && reports[0].Outcome == pickup.OutcomeDraw) {
		inferred = pickup.OutcomeDraw
	}

	teams := make([]pickup.Team, len(rateable.Teams))
	copy(teams, rateable.Teams)
	for i, t := range teams {
		if outcome, ok := claimed[t.Name]; ok {
			teams[i].Outcome = outcome
		} else {
			teams[i].Outcome = inferred
		}
	}

	updated, err := s.rateTeams(ctx, communityID, teams)
	if err != nil {
		return err
	}

	if atomicStore, ok := s.pickupRepo.(ratingFinalizer); ok {
		if err := atomicStore.FinalizeRating(ctx, communityID, rateable.PickupID, teams, updated); err != nil {
			return fmt.Errorf("%w: finalize rating: %v", ErrStoreUnavailable, err)
		}
	} else {
		// Teams and ratings land before the rated flag so an interrupted
		// finalize leaves the pickup reportable; the re-report path above
		// completes it.
		if err := s.pickupRepo.UpdateRateableTeams(ctx, rateable.PickupID, teams); err != nil {
			return fmt.Errorf("%w: store team outcomes: %v", ErrStoreUnavailable, err)
		}
		for playerID, r := range updated {
			if err := s.playerStore.SetRating(ctx, communityID, playerID, r); err != nil {
				return fmt.Errorf("%w: store rating for %s: %v", ErrStoreUnavailable, playerID, err)
			}
		}
		if err := s.pickupRepo.SetRated(ctx, rateable.PickupID); err != nil {
			return fmt.Errorf("%w: mark pickup rated: %v", ErrStoreUnavailable, err)
		}
	}
	if err := s.stages.MarkRated(ctx, communityID, rateable.ConfigID); err != nil {
		s.logger.WarnContext(ctx, "retire active pickup failed", "pickup_id", rateable.PickupID, "error", err)
	}

	s.logger.InfoContext(ctx, "pickup rated",
		"community", communityID, "pickup_id", rateable.PickupID, "config", rateable.ConfigID)
	s.notifier.Notify(ctx, communityID, "", fmt.Sprintf("pickup #%d - %s is rated", rateable.PickupID, rateable.Name), SeveritySuccess)
	return nil
}

// rateTeams runs the skill update over the final outcomes and returns the new
// rating per player id.
func (s *OutcomeService) rateTeams(ctx context.Context, communityID string, teams []pickup.Team) (map[string]rating.Rating, error) {
	rankings := make([]rating.TeamRanking, len(teams))
	for i, t := range teams {
		ratings := make([]rating.Rating, len(t.Players))
		for j, p := range t.Players {
			r, err := s.playerStore.GetRating(ctx, communityID, p.ID)
			if err != nil {
				return nil, fmt.Errorf("%w: load rating for %s: %v", ErrStoreUnavailable, p.ID, err)
			}
			ratings[j] = r
		}
		rankings[i] = rating.TeamRanking{Ratings: ratings, Rank: outcomeRank(t.Outcome)}
	}

	rated, err := rating.Rate(rankings)
	if err != nil {
		return nil, fmt.Errorf("rate match: %w", err)
	}

	updated := make(map[string]rating.Rating)
	for i, t := range teams {
		for j, p := range t.Players {
			updated[p.ID] = rated[i][j]
		}
	}
	return updated, nil
}

func outcomeRank(o pickup.Outcome) rating.Rank {
	switch o {
	case pickup.OutcomeWin:
		return rating.RankWin
	case pickup.OutcomeDraw:
		return rating.RankDraw
	default:
		return rating.RankLoss
	}
}

func (s *OutcomeService) promptLastCaptain(ctx context.Context, communityID string, rateable pickup.Rateable, reports []pickup.OutcomeReport) {
	reported := make(map[string]struct{}, len(reports))
	for _, r := range reports {
		reported[r.Team] = struct{}{}
	}

	for _, c := range rateable.Captains {
		if _, ok := reported[c.Team]; ok {
			continue
		}
		s.notifier.Notify(ctx, communityID, c.Player.ID, "please report draw to finalize the rating", SeverityInfo)
		return
	}
}

func (s *OutcomeService) notifyWaiting(ctx context.Context, communityID string, rateable pickup.Rateable, reports []pickup.OutcomeReport) {
	missing := len(rateable.Teams) - 1 - len(reports)
	if missing < 0 {
		missing = 0
	}
	s.notifier.Notify(ctx, communityID, "", fmt.Sprintf(
		"waiting for %d more report(s) for pickup #%d - %s", missing, rateable.PickupID, rateable.Name), SeverityInfo)
}
