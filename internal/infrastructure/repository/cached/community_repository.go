package cached

import (
	"context"

	"github.com/pickuphub/pickup-backend/internal/domain/community"
	"github.com/pickuphub/pickup-backend/internal/platform/cache"
)

type settingsResult struct {
	settings community.Settings
	found    bool
}

// CommunityRepository caches community settings in front of another
// repository. Settings change rarely and are read on every command, so a
// short TTL removes most of the read load.
type CommunityRepository struct {
	inner community.Repository
	store *cache.Store
}

func NewCommunityRepository(inner community.Repository, store *cache.Store) *CommunityRepository {
	return &CommunityRepository{inner: inner, store: store}
}

func (r *CommunityRepository) GetSettings(ctx context.Context, communityID string) (community.Settings, bool, error) {
	value, err := r.store.GetOrLoad(ctx, "community-settings/"+communityID, func(ctx context.Context) (any, error) {
		settings, found, err := r.inner.GetSettings(ctx, communityID)
		if err != nil {
			return nil, err
		}
		return settingsResult{settings: settings, found: found}, nil
	})
	if err != nil {
		return community.Settings{}, false, err
	}

	result := value.(settingsResult)
	return result.settings, result.found, nil
}

// Invalidate drops the cached settings, forcing the next read through.
func (r *CommunityRepository) Invalidate(ctx context.Context, communityID string) {
	r.store.Delete(ctx, "community-settings/"+communityID)
}
