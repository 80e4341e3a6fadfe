package player

import (
	"context"

	"github.com/pickuphub/pickup-backend/internal/domain/rating"
)

// Store describes player persistence needs from use cases. The core only ever
// holds immutable snapshots of player state during an operation.
type Store interface {
	Upsert(ctx context.Context, community string, ref Ref) error
	GetRating(ctx context.Context, community, playerID string) (rating.Rating, error)
	SetRating(ctx context.Context, community, playerID string, r rating.Rating) error
	IsBanned(ctx context.Context, community, playerID string) (*Ban, error)
	IsTrusted(ctx context.Context, community, playerID string) (bool, error)
	PlayedBefore(ctx context.Context, community, playerID string) (bool, error)

	GetSubRequest(ctx context.Context, community, requesterID string) (SubRequest, bool, error)
	SetSubRequest(ctx context.Context, community string, req SubRequest) error
	ClearSubRequest(ctx context.Context, community, requesterID string) error
}
