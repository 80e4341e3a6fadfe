package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/pickuphub/pickup-backend/internal/domain/formation"
	"github.com/pickuphub/pickup-backend/internal/domain/pickup"
	"github.com/pickuphub/pickup-backend/internal/domain/player"
	"github.com/pickuphub/pickup-backend/internal/platform/logging"
)

// teamName yields the name for formation slot i: A through Z, then AA, AB
// and so on.
func teamName(i int) string {
	var b []byte
	for {
		b = append([]byte{byte('A' + i%26)}, b...)
		i = i/26 - 1
		if i < 0 {
			return string(b)
		}
	}
}

// StageService drives stage transitions for active pickups. Advance runs
// inside the caller's per-pickup critical section; the externally triggered
// transitions (ExitPendingStage, MarkExpired, MarkRated) take it themselves.
// The lock set is shared with the queue and outcome services so every stage
// mutation of one active pickup is serialized.
type StageService struct {
	pickupRepo  pickup.Repository
	playerStore player.Store
	pending     *pendingRegistry
	notifier    Notifier
	locks       *keyedMutex
	logger      *logging.Logger
	now         func() time.Time
}

func NewStageService(
	pickupRepo pickup.Repository,
	playerStore player.Store,
	notifier Notifier,
	logger *logging.Logger,
) *StageService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &StageService{
		pickupRepo:  pickupRepo,
		playerStore: playerStore,
		pending:     newPendingRegistry(),
		notifier:    notifier,
		locks:       newKeyedMutex(),
		logger:      logger,
		now:         time.Now,
	}
}

// PendingHolder returns the config currently holding the player in a pending
// stage, if any. Consulted by the queue before every add.
func (s *StageService) PendingHolder(community, playerID string) (string, bool) {
	return s.pending.HeldBy(community, playerID)
}

// Advance moves a full pickup out of filling. For elo and random modes teams
// are formed immediately; captain and manual modes enter their pending stage
// and wait for an external trigger.
func (s *StageService) Advance(ctx context.Context, community string, cfg pickup.Config, active pickup.Active) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.StageService.Advance")
	defer span.End()

	if active.Stage != pickup.StageFilling {
		return fmt.Errorf("%w: pickup %s is not filling", ErrStateConflict, cfg.Name)
	}

	switch cfg.Mode {
	case pickup.ModeElo:
		return s.advanceElo(ctx, community, cfg, active)
	case pickup.ModeRandom:
		return s.advanceRandom(ctx, community, cfg, active)
	case pickup.ModeCaptains:
		return s.enterPendingStage(ctx, community, cfg, active, pickup.StageCaptainSelection)
	case pickup.ModeManualPick:
		return s.enterPendingStage(ctx, community, cfg, active, pickup.StagePickingManual)
	default:
		return fmt.Errorf("%w: unknown formation mode %q", ErrValidation, cfg.Mode)
	}
}

func (s *StageService) advanceElo(ctx context.Context, community string, cfg pickup.Config, active pickup.Active) error {
	stage, err := active.Stage.Transition(pickup.StageElo)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStateConflict, err)
	}
	active.Stage = stage

	candidates := make([]formation.Candidate, 0, len(active.Players))
	for _, p := range active.Players {
		r, err := s.playerStore.GetRating(ctx, community, p.ID)
		if err != nil {
			return fmt.Errorf("%w: load rating for %s: %v", ErrStoreUnavailable, p.ID, err)
		}
		candidates = append(candidates, formation.Candidate{Player: p, Rating: r})
	}

	result, err := formation.BalancedDraft(candidates, cfg.TeamCount)
	if err != nil {
		return fmt.Errorf("balanced draft: %w", err)
	}

	teams := make([]pickup.Team, len(result.Teams))
	for i, members := range result.Teams {
		refs := make([]player.Ref, len(members))
		for j, c := range members {
			refs[j] = c.Player
		}
		teams[i] = pickup.Team{Name: teamName(i), Players: refs}
	}

	if err := s.lockTeams(ctx, community, cfg, active, teams); err != nil {
		return err
	}

	s.notifier.Notify(ctx, community, "", fmt.Sprintf(
		"**%s** started, teams are drafted by rating (draw probability %.0f%%)",
		cfg.Name, result.DrawProbability*100), SeverityInfo)
	return nil
}

func (s *StageService) advanceRandom(ctx context.Context, community string, cfg pickup.Config, active pickup.Active) error {
	split, err := formation.BalancedSplit(active.Players, cfg.TeamCount)
	if err != nil {
		return fmt.Errorf("balanced split: %w", err)
	}

	teams := make([]pickup.Team, len(split))
	for i, members := range split {
		teams[i] = pickup.Team{Name: teamName(i), Players: members}
	}

	if err := s.lockTeams(ctx, community, cfg, active, teams); err != nil {
		return err
	}

	s.notifier.Notify(ctx, community, "", fmt.Sprintf("**%s** started", cfg.Name), SeverityInfo)
	return nil
}

// lockTeams freezes the formed teams, persists the rateable record when the
// config is rate-enabled and moves the pickup to awaiting_outcome.
func (s *StageService) lockTeams(ctx context.Context, community string, cfg pickup.Config, active pickup.Active, teams []pickup.Team) error {
	stage, err := active.Stage.Transition(pickup.StageAwaitingOutcome)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStateConflict, err)
	}
	active.Stage = stage
	active.Teams = teams
	active.Captains = electCaptains(teams)
	active.StartedAt = s.now()

	if cfg.Rated {
		rateable := pickup.Rateable{
			ConfigID:  cfg.ID,
			Name:      cfg.Name,
			StartedAt: active.StartedAt,
			Captains:  active.Captains,
			Teams:     teams,
		}
		pickupID, err := s.pickupRepo.StoreRateable(ctx, community, rateable)
		if err != nil {
			return fmt.Errorf("%w: store rateable pickup: %v", ErrStoreUnavailable, err)
		}
		s.logger.InfoContext(ctx, "pickup awaiting outcome",
			"community", community, "config", cfg.ID, "pickup_id", pickupID)
	}

	if err := s.pickupRepo.SaveActive(ctx, community, active); err != nil {
		return fmt.Errorf("%w: save active pickup: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// electCaptains picks the first player of each team as its reporting
// authority. For drafted teams that is the strongest pick.
func electCaptains(teams []pickup.Team) []pickup.Captain {
	captains := make([]pickup.Captain, 0, len(teams))
	for _, t := range teams {
		if len(t.Players) == 0 {
			continue
		}
		captains = append(captains, pickup.Captain{Player: t.Players[0], Team: t.Name, Alias: t.Alias})
	}
	return captains
}

func (s *StageService) enterPendingStage(ctx context.Context, community string, cfg pickup.Config, active pickup.Active, next pickup.Stage) error {
	stage, err := active.Stage.Transition(next)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStateConflict, err)
	}
	active.Stage = stage

	if err := s.pickupRepo.SaveActive(ctx, community, active); err != nil {
		return fmt.Errorf("%w: save active pickup: %v", ErrStoreUnavailable, err)
	}

	ids := make([]string, len(active.Players))
	for i, p := range active.Players {
		ids[i] = p.ID
	}
	s.pending.Hold(community, cfg.ID, ids)

	s.notifier.Notify(ctx, community, "", fmt.Sprintf("**%s** is full, entering %s", cfg.Name, next), SeverityInfo)
	return nil
}

// ExitPendingStage completes an externally resolved pending stage (captains
// picked, map vote done) with the final team assignment.
func (s *StageService) ExitPendingStage(ctx context.Context, community, configID string, picked [][]player.Ref) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.StageService.ExitPendingStage")
	defer span.End()

	unlock := s.locks.Lock(community + "/" + configID)
	defer unlock()

	cfg, ok, err := s.pickupRepo.GetConfig(ctx, community, configID)
	if err != nil {
		return fmt.Errorf("%w: load config: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return fmt.Errorf("%w: pickup config %s", ErrNotFound, configID)
	}

	active, ok, err := s.pickupRepo.GetActive(ctx, community, configID)
	if err != nil {
		return fmt.Errorf("%w: load active pickup: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return fmt.Errorf("%w: no active pickup for %s", ErrNotFound, configID)
	}
	if !active.Stage.Pending() {
		return fmt.Errorf("%w: pickup %s is not in a pending stage", ErrStateConflict, cfg.Name)
	}

	if len(picked) != cfg.TeamCount {
		return fmt.Errorf("%w: expected %d teams, got %d", ErrValidation, cfg.TeamCount, len(picked))
	}
	teams := make([]pickup.Team, len(picked))
	for i, members := range picked {
		teams[i] = pickup.Team{Name: teamName(i), Players: members}
	}

	defer s.pending.Release(community, configID)
	return s.lockTeams(ctx, community, cfg, active, teams)
}

// MarkExpired lazily retires a pickup whose outcome window has closed. No
// background timer exists; expiry is observed on access.
func (s *StageService) MarkExpired(ctx context.Context, community, configID string) error {
	unlock := s.locks.Lock(community + "/" + configID)
	defer unlock()

	active, ok, err := s.pickupRepo.GetActive(ctx, community, configID)
	if err != nil {
		return fmt.Errorf("%w: load active pickup: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return nil
	}

	stage, err := active.Stage.Transition(pickup.StageExpired)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStateConflict, err)
	}
	active.Stage = stage

	if err := s.pickupRepo.ClearActive(ctx, community, configID); err != nil {
		return fmt.Errorf("%w: clear active pickup: %v", ErrStoreUnavailable, err)
	}
	s.logger.InfoContext(ctx, "pickup expired without rating", "community", community, "config", configID)
	return nil
}

// MarkRated retires a pickup whose outcome has been fully resolved.
func (s *StageService) MarkRated(ctx context.Context, community, configID string) error {
	unlock := s.locks.Lock(community + "/" + configID)
	defer unlock()

	active, ok, err := s.pickupRepo.GetActive(ctx, community, configID)
	if err != nil {
		return fmt.Errorf("%w: load active pickup: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return nil
	}

	stage, err := active.Stage.Transition(pickup.StageRated)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStateConflict, err)
	}
	active.Stage = stage

	if err := s.pickupRepo.ClearActive(ctx, community, configID); err != nil {
		return fmt.Errorf("%w: clear active pickup: %v", ErrStoreUnavailable, err)
	}
	return nil
}
