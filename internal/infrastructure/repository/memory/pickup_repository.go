package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/pickuphub/pickup-backend/internal/domain/pickup"
)

type rateableRecord struct {
	community string
	rateable  pickup.Rateable
	reports   []pickup.OutcomeReport
}

// PickupRepository is the in-memory pickup store backing tests and local
// development. Rateable ids are assigned from a monotonic counter.
type PickupRepository struct {
	mu        sync.RWMutex
	configs   map[string]map[string]pickup.Config // community -> configID
	actives   map[string]map[string]pickup.Active
	rateables map[int64]*rateableRecord
	nextID    int64
}

func NewPickupRepository(configs []CommunityConfigs) *PickupRepository {
	r := &PickupRepository{
		configs:   make(map[string]map[string]pickup.Config),
		actives:   make(map[string]map[string]pickup.Active),
		rateables: make(map[int64]*rateableRecord),
		nextID:    1,
	}
	for _, cc := range configs {
		byID := make(map[string]pickup.Config, len(cc.Configs))
		for _, cfg := range cc.Configs {
			byID[cfg.ID] = cfg
		}
		r.configs[cc.Community] = byID
	}
	return r
}

func (r *PickupRepository) GetConfig(_ context.Context, community, configID string) (pickup.Config, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[community][configID]
	return cfg, ok, nil
}

func (r *PickupRepository) GetConfigByName(_ context.Context, community, name string) (pickup.Config, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cfg := range r.configs[community] {
		if cfg.Name == name {
			return cfg, true, nil
		}
	}
	return pickup.Config{}, false, nil
}

func (r *PickupRepository) ListConfigs(_ context.Context, community string) ([]pickup.Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]pickup.Config, 0, len(r.configs[community]))
	for _, cfg := range r.configs[community] {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *PickupRepository) GetActive(_ context.Context, community, configID string) (pickup.Active, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	active, ok := r.actives[community][configID]
	return active, ok, nil
}

func (r *PickupRepository) SaveActive(_ context.Context, community string, active pickup.Active) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	byConfig, ok := r.actives[community]
	if !ok {
		byConfig = make(map[string]pickup.Active)
		r.actives[community] = byConfig
	}
	byConfig[active.ConfigID] = active
	return nil
}

func (r *PickupRepository) ClearActive(_ context.Context, community, configID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.actives[community], configID)
	return nil
}

func (r *PickupRepository) StoreRateable(_ context.Context, community string, rateable pickup.Rateable) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	rateable.PickupID = id
	r.rateables[id] = &rateableRecord{community: community, rateable: rateable}
	return id, nil
}

func (r *PickupRepository) UpdateRateableTeams(_ context.Context, pickupID int64, teams []pickup.Team) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rateables[pickupID]
	if !ok {
		return nil
	}
	rec.rateable.Teams = teams
	return nil
}

func (r *PickupRepository) GetLatestRateable(_ context.Context, community, actorID string, pickupID int64) (pickup.Rateable, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if pickupID != 0 {
		rec, ok := r.rateables[pickupID]
		if !ok || rec.community != community {
			return pickup.Rateable{}, false, nil
		}
		if actorID != "" && !rec.rateable.HasPlayer(actorID) {
			return pickup.Rateable{}, false, nil
		}
		return rec.rateable, true, nil
	}

	var best *rateableRecord
	for _, rec := range r.rateables {
		if rec.community != community {
			continue
		}
		if actorID != "" && !rec.rateable.HasPlayer(actorID) {
			continue
		}
		if best == nil || rec.rateable.PickupID > best.rateable.PickupID {
			best = rec
		}
	}
	if best == nil {
		return pickup.Rateable{}, false, nil
	}
	return best.rateable, true, nil
}

func (r *PickupRepository) GetReportedOutcomes(_ context.Context, pickupID int64) ([]pickup.OutcomeReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.rateables[pickupID]
	if !ok {
		return nil, nil
	}
	out := make([]pickup.OutcomeReport, len(rec.reports))
	copy(out, rec.reports)
	return out, nil
}

func (r *PickupRepository) RecordOutcome(_ context.Context, pickupID int64, team string, outcome pickup.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rateables[pickupID]
	if !ok {
		return nil
	}
	rec.reports = append(rec.reports, pickup.OutcomeReport{Team: team, Outcome: outcome})
	return nil
}

func (r *PickupRepository) SetRated(_ context.Context, pickupID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.rateables[pickupID]; ok {
		rec.rateable.IsRated = true
	}
	return nil
}

func (r *PickupRepository) CountRatedSince(_ context.Context, community, configID string, pickupID int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, rec := range r.rateables {
		if rec.community != community || rec.rateable.ConfigID != configID {
			continue
		}
		if rec.rateable.IsRated && rec.rateable.PickupID > pickupID {
			count++
		}
	}
	return count, nil
}
