package memory

import (
	"context"
	"sync"

	"github.com/pickuphub/pickup-backend/internal/domain/player"
	"github.com/pickuphub/pickup-backend/internal/domain/rating"
)

type playerRecord struct {
	ref     player.Ref
	rating  rating.Rating
	trusted bool
	played  bool
	ban     *player.Ban
}

// PlayerRepository keeps per-community player state in memory.
type PlayerRepository struct {
	mu          sync.RWMutex
	players     map[string]map[string]*playerRecord // community -> playerID
	subRequests map[string]map[string]player.SubRequest
}

func NewPlayerRepository() *PlayerRepository {
	return &PlayerRepository{
		players:     make(map[string]map[string]*playerRecord),
		subRequests: make(map[string]map[string]player.SubRequest),
	}
}

func (r *PlayerRepository) record(community, playerID string) *playerRecord {
	byID, ok := r.players[community]
	if !ok {
		byID = make(map[string]*playerRecord)
		r.players[community] = byID
	}
	rec, ok := byID[playerID]
	if !ok {
		rec = &playerRecord{
			ref:    player.Ref{ID: playerID, DisplayName: playerID},
			rating: rating.Default(),
		}
		byID[playerID] = rec
	}
	return rec
}

func (r *PlayerRepository) Upsert(_ context.Context, community string, ref player.Ref) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.record(community, ref.ID)
	rec.ref = ref
	return nil
}

func (r *PlayerRepository) GetRating(_ context.Context, community, playerID string) (rating.Rating, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.record(community, playerID).rating, nil
}

func (r *PlayerRepository) SetRating(_ context.Context, community, playerID string, rt rating.Rating) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(community, playerID).rating = rt
	return nil
}

func (r *PlayerRepository) IsBanned(_ context.Context, community, playerID string) (*player.Ban, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.players[community][playerID]; ok {
		return rec.ban, nil
	}
	return nil, nil
}

func (r *PlayerRepository) IsTrusted(_ context.Context, community, playerID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.players[community][playerID]; ok {
		return rec.trusted, nil
	}
	return false, nil
}

func (r *PlayerRepository) PlayedBefore(_ context.Context, community, playerID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.players[community][playerID]; ok {
		return rec.played, nil
	}
	return false, nil
}

func (r *PlayerRepository) GetSubRequest(_ context.Context, community, requesterID string) (player.SubRequest, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.subRequests[community][requesterID]
	return req, ok, nil
}

func (r *PlayerRepository) SetSubRequest(_ context.Context, community string, req player.SubRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	byRequester, ok := r.subRequests[community]
	if !ok {
		byRequester = make(map[string]player.SubRequest)
		r.subRequests[community] = byRequester
	}
	byRequester[req.RequesterID] = req
	return nil
}

func (r *PlayerRepository) ClearSubRequest(_ context.Context, community, requesterID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subRequests[community], requesterID)
	return nil
}

// SetBan marks a player banned. Test and admin helper.
func (r *PlayerRepository) SetBan(community, playerID string, ban *player.Ban) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(community, playerID).ban = ban
}

// SetTrusted marks a player trusted. Test and admin helper.
func (r *PlayerRepository) SetTrusted(community, playerID string, trusted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(community, playerID).trusted = trusted
}

// SetPlayedBefore marks pickup history for a player. Test and admin helper.
func (r *PlayerRepository) SetPlayedBefore(community, playerID string, played bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(community, playerID).played = played
}
