package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/pickuphub/pickup-backend/internal/domain/community"
	"github.com/pickuphub/pickup-backend/internal/domain/pickup"
	"github.com/pickuphub/pickup-backend/internal/domain/player"
	"github.com/pickuphub/pickup-backend/internal/platform/logging"
)

// SubService handles substitute requests against the latest rateable pickup.
// A request targets a participant of that pickup; accepting it swaps the
// requester into the target's team slot so the eventual rating applies to the
// player who actually finished the match.
type SubService struct {
	pickupRepo    pickup.Repository
	playerStore   player.Store
	communityRepo community.Repository
	roles         RoleResolver
	notifier      Notifier
	logger        *logging.Logger
	now           func() time.Time
}

func NewSubService(
	pickupRepo pickup.Repository,
	playerStore player.Store,
	communityRepo community.Repository,
	roles RoleResolver,
	notifier Notifier,
	logger *logging.Logger,
) *SubService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SubService{
		pickupRepo:    pickupRepo,
		playerStore:   playerStore,
		communityRepo: communityRepo,
		roles:         roles,
		notifier:      notifier,
		logger:        logger,
		now:           time.Now,
	}
}

// RequestSub files the actor's request to sub the target in the latest
// rateable pickup. An empty target cancels the actor's standing request.
func (s *SubService) RequestSub(ctx context.Context, communityID string, actor player.Ref, targetID string) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.SubService.RequestSub")
	defer span.End()

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

	rateable, ok, err := s.pickupRepo.GetLatestRateable(ctx, communityID, "", 0)
	if err != nil {
		return fmt.Errorf("%w: load rateable pickup: %v", ErrStoreUnavailable, err)
	}
	if !ok || rateable.IsRated {
		return fmt.Errorf("%w: no rateable pickup found", ErrNotFound)
	}
	if rateable.Expired(s.now(), settings.ReportExpireTime) {
		return fmt.Errorf("%w: the pickup is too old, sub requests are only accepted for pickups less than %s old",
			ErrStateConflict, settings.ReportExpireTime)
	}

	if err := s.checkSubEligibility(ctx, communityID, settings, actor, rateable.ConfigID); err != nil {
		return err
	}

	existing, ok, err := s.playerStore.GetSubRequest(ctx, communityID, actor.ID)
	if err != nil {
		return fmt.Errorf("%w: load sub request: %v", ErrStoreUnavailable, err)
	}

	// No target cancels the standing request.
	if targetID == "" {
		if !ok {
			return fmt.Errorf("%w: no sub request to cancel", ErrNotFound)
		}
		if err := s.playerStore.ClearSubRequest(ctx, communityID, actor.ID); err != nil {
			return fmt.Errorf("%w: clear sub request: %v", ErrStoreUnavailable, err)
		}
		s.notifier.Notify(ctx, communityID, actor.ID, "cancelled sub request", SeveritySuccess)
		return nil
	}

	if rateable.HasPlayer(actor.ID) {
		return fmt.Errorf("%w: you can't send a sub request as participant in the same pickup", ErrEligibility)
	}
	if !rateable.HasPlayer(targetID) {
		return fmt.Errorf("%w: given player is not added to the latest unrated pickup", ErrValidation)
	}
	if ok && existing.TargetID == targetID {
		return fmt.Errorf("%w: you already sent a sub request for the given player", ErrStateConflict)
	}

	if err := s.playerStore.SetSubRequest(ctx, communityID, player.SubRequest{
		RequesterID: actor.ID,
		TargetID:    targetID,
		CreatedAt:   s.now(),
	}); err != nil {
		return fmt.Errorf("%w: store sub request: %v", ErrStoreUnavailable, err)
	}

	s.logger.InfoContext(ctx, "sub requested",
		"community", communityID, "requester", actor.ID, "target", targetID, "pickup_id", rateable.PickupID)
	s.notifier.Notify(ctx, communityID, targetID, fmt.Sprintf(
		"%s requested to sub you in pickup #%d - %s, accept to hand over your spot or ignore the request",
		actor.DisplayName, rateable.PickupID, rateable.Name), SeverityInfo)
	return nil
}

// AcceptSub lets the targeted player hand their slot over to the requester.
// The stored teams are rewritten so the rating lands on the substitute.
func (s *SubService) AcceptSub(ctx context.Context, communityID string, actor player.Ref, requesterID string) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.SubService.AcceptSub")
	defer span.End()

	if communityID == "" || actor.ID == "" || requesterID == "" {
		return fmt.Errorf("%w: community, actor and requester are required", ErrValidation)
	}

	request, ok, err := s.playerStore.GetSubRequest(ctx, communityID, requesterID)
	if err != nil {
		return fmt.Errorf("%w: load sub request: %v", ErrStoreUnavailable, err)
	}
	if !ok || request.TargetID != actor.ID {
		return fmt.Errorf("%w: no sub request from this player for you", ErrNotFound)
	}

	settings, ok, err := s.communityRepo.GetSettings(ctx, communityID)
	if err != nil {
		return fmt.Errorf("%w: load community settings: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return fmt.Errorf("%w: community %s", ErrNotFound, communityID)
	}

	rateable, ok, err := s.pickupRepo.GetLatestRateable(ctx, communityID, actor.ID, 0)
	if err != nil {
		return fmt.Errorf("%w: load rateable pickup: %v", ErrStoreUnavailable, err)
	}
	if !ok || rateable.IsRated {
		return fmt.Errorf("%w: no rateable pickup found", ErrNotFound)
	}
	if rateable.Expired(s.now(), settings.ReportExpireTime) {
		return fmt.Errorf("%w: the pickup is too old to accept a sub", ErrStateConflict)
	}

	requester := player.Ref{ID: requesterID, DisplayName: requesterID}
	if err := requester.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := s.playerStore.Upsert(ctx, communityID, requester); err != nil {
		return fmt.Errorf("%w: store player: %v", ErrStoreUnavailable, err)
	}

	teams, swapped := swapPlayer(rateable.Teams, actor.ID, requester)
	if !swapped {
		return fmt.Errorf("%w: you are not a player of the latest unrated pickup", ErrEligibility)
	}
	if err := s.pickupRepo.UpdateRateableTeams(ctx, rateable.PickupID, teams); err != nil {
		return fmt.Errorf("%w: store team swap: %v", ErrStoreUnavailable, err)
	}
	if err := s.playerStore.ClearSubRequest(ctx, communityID, requesterID); err != nil {
		return fmt.Errorf("%w: clear sub request: %v", ErrStoreUnavailable, err)
	}

	s.logger.InfoContext(ctx, "sub accepted",
		"community", communityID, "out", actor.ID, "in", requesterID, "pickup_id", rateable.PickupID)
	s.notifier.Notify(ctx, communityID, "", fmt.Sprintf(
		"%s subbed for %s in pickup #%d - %s", requesterID, actor.DisplayName, rateable.PickupID, rateable.Name), SeveritySuccess)
	return nil
}

// checkSubEligibility mirrors the add gates for sub requesters: role lists,
// explicit trust, join age and bans all apply.
func (s *SubService) checkSubEligibility(ctx context.Context, communityID string, settings community.Settings, actor player.Ref, configID string) error {
	cfg, ok, err := s.pickupRepo.GetConfig(ctx, communityID, configID)
	if err != nil {
		return fmt.Errorf("%w: load config: %v", ErrStoreUnavailable, err)
	}
	if ok {
		allowed, err := s.passesRoleCheck(ctx, communityID, settings, actor.ID, cfg)
		if err != nil {
			return err
		}
		if !allowed {
			return fmt.Errorf("%w: you are not allowed to send sub requests for this pickup", ErrEligibility)
		}
	}

	if settings.ExplicitTrust {
		trusted, err := s.playerStore.IsTrusted(ctx, communityID, actor.ID)
		if err != nil {
			return fmt.Errorf("%w: trust lookup: %v", ErrStoreUnavailable, err)
		}
		if !trusted {
			played, err := s.playerStore.PlayedBefore(ctx, communityID, actor.ID)
			if err != nil {
				return fmt.Errorf("%w: history lookup: %v", ErrStoreUnavailable, err)
			}
			if !played {
				return fmt.Errorf("%w: no previous pickup game found for you, you need to be trusted to sub", ErrEligibility)
			}
		}
	}

	ban, err := s.playerStore.IsBanned(ctx, communityID, actor.ID)
	if err != nil {
		return fmt.Errorf("%w: ban lookup: %v", ErrStoreUnavailable, err)
	}
	if ban != nil && ban.Active(s.now()) {
		return fmt.Errorf("%w: banned players are not allowed to send sub requests", ErrEligibility)
	}
	return nil
}

// passesRoleCheck mirrors the sub role rules: the config list and the
// community default both have to pass, the config list does not short-circuit
// the community one here.
func (s *SubService) passesRoleCheck(ctx context.Context, communityID string, settings community.Settings, actorID string, cfg pickup.Config) (bool, error) {
	hasRole := func(roleID string) (bool, error) {
		has, err := s.roles.MemberHasRole(ctx, communityID, actorID, roleID)
		if err != nil {
			return false, fmt.Errorf("%w: role lookup: %v", ErrStoreUnavailable, err)
		}
		return has, nil
	}

	if cfg.AllowlistRole != "" {
		has, err := hasRole(cfg.AllowlistRole)
		if err != nil || !has {
			return false, err
		}
	} else if cfg.DenylistRole != "" {
		has, err := hasRole(cfg.DenylistRole)
		if err != nil || has {
			return false, err
		}
	}

	if settings.AllowlistRole != "" {
		return hasRole(settings.AllowlistRole)
	}
	if settings.DenylistRole != "" {
		has, err := hasRole(settings.DenylistRole)
		if err != nil {
			return false, err
		}
		return !has, nil
	}
	return true, nil
}

func swapPlayer(teams []pickup.Team, outID string, in player.Ref) ([]pickup.Team, bool) {
	out := make([]pickup.Team, len(teams))
	swapped := false
	for i, t := range teams {
		players := make([]player.Ref, len(t.Players))
		copy(players, t.Players)
		for j, p := range players {
			if p.ID == outID {
				players[j] = in
				swapped = true
			}
		}
		out[i] = t
		out[i].Players = players
	}
	return out, swapped
}
