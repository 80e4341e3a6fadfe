package httpapi

import (
	"context"

	"github.com/pickuphub/pickup-backend/internal/domain/player"
)

type contextKey string

const (
	actorContextKey     contextKey = "actor"
	requestIDContextKey contextKey = "request_id"
)

func withActor(ctx context.Context, actor player.Ref) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

func actorFromContext(ctx context.Context) (player.Ref, bool) {
	actor, ok := ctx.Value(actorContextKey).(player.Ref)
	return actor, ok
}

func withRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDContextKey).(string)
	return requestID
}
