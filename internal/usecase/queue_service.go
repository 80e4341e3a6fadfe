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

// QueueService owns queue membership for active pickups. All mutation of one
// active pickup runs inside a per-(community, config) critical section; slow
// collaborator calls (role lookups, trust checks) happen before the section
// and membership is re-validated inside it.
type QueueService struct {
	pickupRepo    pickup.Repository
	playerStore   player.Store
	communityRepo community.Repository
	roles         RoleResolver
	stages        *StageService
	notifier      Notifier
	locks         *keyedMutex
	logger        *logging.Logger
	now           func() time.Time
}

func NewQueueService(
	pickupRepo pickup.Repository,
	playerStore player.Store,
	communityRepo community.Repository,
	roles RoleResolver,
	stages *StageService,
	notifier Notifier,
	logger *logging.Logger,
) *QueueService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &QueueService{
		pickupRepo:    pickupRepo,
		playerStore:   playerStore,
		communityRepo: communityRepo,
		roles:         roles,
		stages:        stages,
		notifier:      notifier,
		locks:         stages.locks,
		logger:        logger,
		now:           time.Now,
	}
}

// Rejection explains why one pickup of an add batch was refused.
type Rejection struct {
	ConfigID string
	Reason   string
}

// AddResult reports the per-pickup outcome of a best-effort add batch.
type AddResult struct {
	Joined   []string
	Rejected []Rejection
}

// AddPlayers adds the actor to each named pickup that passes validation.
// Pickups failing validation are reported individually; the batch never
// aborts as a whole. Filling a pickup to capacity advances its stage
// synchronously before the result is returned.
func (s *QueueService) AddPlayers(ctx context.Context, communityID string, actor player.Ref, configIDs []string) (AddResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.QueueService.AddPlayers")
	defer span.End()

	if err := actor.Validate(); err != nil {
		return AddResult{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if communityID == "" {
		return AddResult{}, fmt.Errorf("%w: community id is required", ErrValidation)
	}
	if len(configIDs) == 0 {
		return AddResult{}, fmt.Errorf("%w: at least one pickup is required", ErrValidation)
	}

	settings, ok, err := s.communityRepo.GetSettings(ctx, communityID)
	if err != nil {
		return AddResult{}, fmt.Errorf("%w: load community settings: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return AddResult{}, fmt.Errorf("%w: community %s", ErrNotFound, communityID)
	}

	if err := s.checkActorStanding(ctx, communityID, settings, actor); err != nil {
		return AddResult{}, err
	}

	// Pending-stage global lock: a player held by any pending pickup may not
	// add anywhere in the community.
	if holder, held := s.stages.PendingHolder(communityID, actor.ID); held {
		return AddResult{}, fmt.Errorf(
			"%w: you cannot add to pickups while added to pickup %s in a pending stage", ErrStateConflict, holder)
	}

	if err := s.playerStore.Upsert(ctx, communityID, actor); err != nil {
		return AddResult{}, fmt.Errorf("%w: store player: %v", ErrStoreUnavailable, err)
	}

	var result AddResult
	for _, configID := range configIDs {
		reason, err := s.addToOne(ctx, communityID, settings, actor, configID)
		if err != nil {
			return result, err
		}
		if reason == "" {
			result.Joined = append(result.Joined, configID)
		} else {
			result.Rejected = append(result.Rejected, Rejection{ConfigID: configID, Reason: reason})
		}
	}
	return result, nil
}

// addToOne returns a non-empty rejection reason when the pickup refused the
// actor, or an error for infrastructure failures that void the whole batch.
func (s *QueueService) addToOne(ctx context.Context, communityID string, settings community.Settings, actor player.Ref, configID string) (string, error) {
	cfg, ok, err := s.pickupRepo.GetConfig(ctx, communityID, configID)
	if err != nil {
		return "", fmt.Errorf("%w: load config: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return "unknown pickup", nil
	}
	if !cfg.Enabled {
		return "pickup is disabled", nil
	}

	// Role checks happen outside the critical section; they can hit the chat
	// platform. The config-level list short-circuits the community default.
	allowed, err := s.passesRoleCheck(ctx, communityID, settings, actor.ID, cfg)
	if err != nil {
		return "", err
	}
	if !allowed {
		return "not allowed (allowlist / denylist)", nil
	}

	unlock := s.locks.Lock(communityID + "/" + configID)
	defer unlock()

	// Re-validate under the lock; the queue may have moved while role checks
	// were in flight.
	if holder, held := s.stages.PendingHolder(communityID, actor.ID); held {
		return fmt.Sprintf("held by pending pickup %s", holder), nil
	}

	active, ok, err := s.pickupRepo.GetActive(ctx, communityID, configID)
	if err != nil {
		return "", fmt.Errorf("%w: load active pickup: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		active = pickup.Active{
			ConfigID:  configID,
			Stage:     pickup.StageFilling,
			StartedAt: s.now(),
		}
	}

	if active.Stage != pickup.StageFilling {
		return "match in progress", nil
	}
	if active.Has(actor.ID) {
		return "already added", nil
	}
	if len(active.Players) >= cfg.MaxPlayers {
		return "pickup is full", nil
	}

	active.Players = append(active.Players, actor)
	if err := s.pickupRepo.SaveActive(ctx, communityID, active); err != nil {
		return "", fmt.Errorf("%w: save active pickup: %v", ErrStoreUnavailable, err)
	}

	s.logger.InfoContext(ctx, "player added",
		"community", communityID, "config", configID, "actor", actor.ID,
		"count", len(active.Players), "max", cfg.MaxPlayers)

	if len(active.Players) == cfg.MaxPlayers {
		if err := s.stages.Advance(ctx, communityID, cfg, active); err != nil {
			return "", err
		}
	}
	return "", nil
}

// RemovePlayer takes the actor out of a filling pickup. Removing from a
// pickup past filling is refused; absence is a no-op.
func (s *QueueService) RemovePlayer(ctx context.Context, communityID string, actorID, configID string) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.QueueService.RemovePlayer")
	defer span.End()

	if communityID == "" || actorID == "" || configID == "" {
		return fmt.Errorf("%w: community, actor and pickup are required", ErrValidation)
	}

	unlock := s.locks.Lock(communityID + "/" + configID)
	defer unlock()

	active, ok, err := s.pickupRepo.GetActive(ctx, communityID, configID)
	if err != nil {
		return fmt.Errorf("%w: load active pickup: %v", ErrStoreUnavailable, err)
	}
	if !ok || !active.Has(actorID) {
		return nil
	}
	if active.Stage != pickup.StageFilling {
		return fmt.Errorf("%w: pickup %s already left filling", ErrStateConflict, configID)
	}

	kept := active.Players[:0:0]
	for _, p := range active.Players {
		if p.ID != actorID {
			kept = append(kept, p)
		}
	}
	active.Players = kept

	if len(active.Players) == 0 {
		if err := s.pickupRepo.ClearActive(ctx, communityID, configID); err != nil {
			return fmt.Errorf("%w: clear active pickup: %v", ErrStoreUnavailable, err)
		}
		return nil
	}
	if err := s.pickupRepo.SaveActive(ctx, communityID, active); err != nil {
		return fmt.Errorf("%w: save active pickup: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// checkActorStanding runs the trust and ban gates shared by add and sub
// requests, in the same order the chat surface presents them.
func (s *QueueService) checkActorStanding(ctx context.Context, communityID string, settings community.Settings, actor player.Ref) error {
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
				return fmt.Errorf("%w: no previous pickup game found for you, you need to be trusted to add", ErrEligibility)
			}
		}
	}

	ban, err := s.playerStore.IsBanned(ctx, communityID, actor.ID)
	if err != nil {
		return fmt.Errorf("%w: ban lookup: %v", ErrStoreUnavailable, err)
	}
	if ban != nil && ban.Active(s.now()) {
		if ban.ExpiresAt != nil {
			return fmt.Errorf("%w: you are banned, time left: %s", ErrEligibility, time.Until(*ban.ExpiresAt).Round(time.Second))
		}
		if ban.Reason != "" {
			return fmt.Errorf("%w: you are permbanned, reason: %s", ErrEligibility, ban.Reason)
		}
		return fmt.Errorf("%w: you are permbanned", ErrEligibility)
	}
	return nil
}

// passesRoleCheck applies the allow/deny-list rules: the config-level list, if
// set, decides alone; otherwise the community default applies.
func (s *QueueService) passesRoleCheck(ctx context.Context, communityID string, settings community.Settings, actorID string, cfg pickup.Config) (bool, error) {
	check := func(roleID string) (bool, error) {
		has, err := s.roles.MemberHasRole(ctx, communityID, actorID, roleID)
		if err != nil {
			return false, fmt.Errorf("%w: role lookup: %v", ErrStoreUnavailable, err)
		}
		return has, nil
	}

	if cfg.AllowlistRole != "" {
		return check(cfg.AllowlistRole)
	}
	if cfg.DenylistRole != "" {
		has, err := check(cfg.DenylistRole)
		if err != nil {
			return false, err
		}
		return !has, nil
	}

	if settings.AllowlistRole != "" {
		return check(settings.AllowlistRole)
	}
	if settings.DenylistRole != "" {
		has, err := check(settings.DenylistRole)
		if err != nil {
			return false, err
		}
		return !has, nil
	}
	return true, nil
}
