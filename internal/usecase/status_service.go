package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/pickuphub/pickup-backend/internal/domain/community"
	"github.com/pickuphub/pickup-backend/internal/domain/pickup"
	"github.com/pickuphub/pickup-backend/internal/domain/player"
	"github.com/pickuphub/pickup-backend/internal/platform/logging"
)

const statusFanoutWidth = 8

// ConfigStatus is the queue snapshot of one configured pickup.
type ConfigStatus struct {
	ConfigID    string
	Name        string
	Stage       pickup.Stage
	Players     []player.Ref
	PlayerCount int
	MaxPlayers  int
}

// CommunityStatus aggregates the state of every configured pickup plus the
// latest unresolved rateable match.
type CommunityStatus struct {
	Community string
	Pickups   []ConfigStatus
	// Unresolved is the newest rateable pickup still waiting on reports, nil
	// when everything is settled.
	Unresolved *pickup.Rateable
}

// StatusService serves read-only queue overviews. Per-config lookups fan out
// concurrently since they are independent reads.
type StatusService struct {
	pickupRepo    pickup.Repository
	communityRepo community.Repository
	logger        *logging.Logger
	now           func() time.Time
}

func NewStatusService(pickupRepo pickup.Repository, communityRepo community.Repository, logger *logging.Logger) *StatusService {
	if logger == nil {
		logger = logging.Default()
	}
	return &StatusService{
		pickupRepo:    pickupRepo,
		communityRepo: communityRepo,
		logger:        logger,
		now:           time.Now,
	}
}

// Overview returns the queue snapshot for a community.
func (s *StatusService) Overview(ctx context.Context, communityID string) (CommunityStatus, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.StatusService.Overview")
	defer span.End()

	if communityID == "" {
		return CommunityStatus{}, fmt.Errorf("%w: community id is required", ErrValidation)
	}

	settings, ok, err := s.communityRepo.GetSettings(ctx, communityID)
	if err != nil {
		return CommunityStatus{}, fmt.Errorf("%w: load community settings: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return CommunityStatus{}, fmt.Errorf("%w: community %s", ErrNotFound, communityID)
	}

	configs, err := s.pickupRepo.ListConfigs(ctx, communityID)
	if err != nil {
		return CommunityStatus{}, fmt.Errorf("%w: list configs: %v", ErrStoreUnavailable, err)
	}

	p := pool.NewWithResults[ConfigStatus]().WithContext(ctx).WithMaxGoroutines(statusFanoutWidth)
	for _, cfg := range configs {
		cfg := cfg
		p.Go(func(ctx context.Context) (ConfigStatus, error) {
			return s.configStatus(ctx, communityID, cfg)
		})
	}
	statuses, err := p.Wait()
	if err != nil {
		return CommunityStatus{}, err
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ConfigID < statuses[j].ConfigID })

	out := CommunityStatus{Community: communityID, Pickups: statuses}

	rateable, ok, err := s.pickupRepo.GetLatestRateable(ctx, communityID, "", 0)
	if err != nil {
		return CommunityStatus{}, fmt.Errorf("%w: load rateable pickup: %v", ErrStoreUnavailable, err)
	}
	if ok && !rateable.IsRated && !rateable.Expired(s.now(), settings.ReportExpireTime) {
		out.Unresolved = &rateable
	}
	return out, nil
}

func (s *StatusService) configStatus(ctx context.Context, communityID string, cfg pickup.Config) (ConfigStatus, error) {
	status := ConfigStatus{
		ConfigID:   cfg.ID,
		Name:       cfg.Name,
		Stage:      pickup.StageFilling,
		MaxPlayers: cfg.MaxPlayers,
	}

	active, ok, err := s.pickupRepo.GetActive(ctx, communityID, cfg.ID)
	if err != nil {
		return ConfigStatus{}, fmt.Errorf("%w: load active pickup for %s: %v", ErrStoreUnavailable, cfg.ID, err)
	}
	if ok {
		status.Stage = active.Stage
		status.Players = active.Players
		status.PlayerCount = len(active.Players)
	}
	return status, nil
}
