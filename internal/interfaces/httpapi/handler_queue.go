package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	sonic "github.com/bytedance/sonic"
	"github.com/pickuphub/pickup-backend/internal/usecase"
)

type joinQueueRequest struct {
	ConfigIDs []string `json:"config_ids" validate:"required,min=1,max=10,dive,required"`
}

type joinQueueResponseDTO struct {
	Joined   []string       `json:"joined"`
	Rejected []rejectionDTO `json:"rejected"`
}

type rejectionDTO struct {
	ConfigID string `json:"config_id"`
	Reason   string `json:"reason"`
}

func (h *Handler) JoinQueue(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.JoinQueue")
	defer span.End()

	communityID := strings.TrimSpace(r.PathValue("communityID"))
	actor, ok := actorFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: actor is missing from request context", usecase.ErrValidation))
		return
	}

	var req joinQueueRequest
	decoder := sonic.ConfigDefault.NewDecoder(r.Body)
	if err := decoder.Decode(&req); err != nil {
		writeError(ctx, w, fmt.Errorf("%w: invalid JSON payload: %v", usecase.ErrValidation, err))
		return
	}
	if err := h.validateRequest(ctx, req); err != nil {
		writeError(ctx, w, err)
		return
	}

	result, err := h.queueService.AddPlayers(ctx, communityID, actor, req.ConfigIDs)
	if err != nil {
		h.logger.WarnContext(ctx, "join queue failed",
			"community", communityID, "actor", actor.ID, "error", err)
		writeError(ctx, w, err)
		return
	}

	rejected := make([]rejectionDTO, 0, len(result.Rejected))
	for _, rej := range result.Rejected {
		rejected = append(rejected, rejectionDTO{ConfigID: rej.ConfigID, Reason: rej.Reason})
	}

	writeSuccess(ctx, w, http.StatusOK, joinQueueResponseDTO{
		Joined:   result.Joined,
		Rejected: rejected,
	})
}

func (h *Handler) LeaveQueue(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.LeaveQueue")
	defer span.End()

	communityID := strings.TrimSpace(r.PathValue("communityID"))
	configID := strings.TrimSpace(r.PathValue("configID"))
	actor, ok := actorFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: actor is missing from request context", usecase.ErrValidation))
		return
	}

	if err := h.queueService.RemovePlayer(ctx, communityID, actor.ID, configID); err != nil {
		h.logger.WarnContext(ctx, "leave queue failed",
			"community", communityID, "actor", actor.ID, "config", configID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, map[string]string{"config_id": configID, "status": "removed"})
}
