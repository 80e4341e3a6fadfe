package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	sonic "github.com/bytedance/sonic"
	"github.com/pickuphub/pickup-backend/internal/usecase"
)

type requestSubRequest struct {
	// TargetID empty cancels the actor's standing request.
	TargetID string `json:"target_id"`
}

type acceptSubRequest struct {
	RequesterID string `json:"requester_id" validate:"required"`
}

func (h *Handler) RequestSub(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RequestSub")
	defer span.End()

	communityID := strings.TrimSpace(r.PathValue("communityID"))
	actor, ok := actorFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: actor is missing from request context", usecase.ErrValidation))
		return
	}

	var req requestSubRequest
	decoder := sonic.ConfigDefault.NewDecoder(r.Body)
	if err := decoder.Decode(&req); err != nil {
		writeError(ctx, w, fmt.Errorf("%w: invalid JSON payload: %v", usecase.ErrValidation, err))
		return
	}

	targetID := strings.TrimSpace(req.TargetID)
	if err := h.subService.RequestSub(ctx, communityID, actor, targetID); err != nil {
		h.logger.WarnContext(ctx, "request sub failed",
			"community", communityID, "actor", actor.ID, "target", targetID, "error", err)
		writeError(ctx, w, err)
		return
	}

	status := "sub requested"
	if targetID == "" {
		status = "sub request cancelled"
	}
	writeSuccess(ctx, w, http.StatusOK, map[string]string{"status": status})
}

func (h *Handler) AcceptSub(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.AcceptSub")
	defer span.End()

	communityID := strings.TrimSpace(r.PathValue("communityID"))
	actor, ok := actorFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: actor is missing from request context", usecase.ErrValidation))
		return
	}

	var req acceptSubRequest
	decoder := sonic.ConfigDefault.NewDecoder(r.Body)
	if err := decoder.Decode(&req); err != nil {
		writeError(ctx, w, fmt.Errorf("%w: invalid JSON payload: %v", usecase.ErrValidation, err))
		return
	}
	if err := h.validateRequest(ctx, req); err != nil {
		writeError(ctx, w, err)
		return
	}

	if err := h.subService.AcceptSub(ctx, communityID, actor, req.RequesterID); err != nil {
		h.logger.WarnContext(ctx, "accept sub failed",
			"community", communityID, "actor", actor.ID, "requester", req.RequesterID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, map[string]string{"status": "sub accepted"})
}
