package memory

import (
	"context"
	"sync"

	"github.com/pickuphub/pickup-backend/internal/domain/community"
)

// CommunityRepository keeps community settings in memory.
type CommunityRepository struct {
	mu    sync.RWMutex
	items map[string]community.Settings
}

func NewCommunityRepository(settings []community.Settings) *CommunityRepository {
	items := make(map[string]community.Settings, len(settings))
	for _, s := range settings {
		items[s.ID] = s
	}
	return &CommunityRepository{items: items}
}

func (r *CommunityRepository) GetSettings(_ context.Context, communityID string) (community.Settings, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.items[communityID]
	return s, ok, nil
}

// PutSettings replaces one community's settings. Test and admin helper.
func (r *CommunityRepository) PutSettings(s community.Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[s.ID] = s
}
