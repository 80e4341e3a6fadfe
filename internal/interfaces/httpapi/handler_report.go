package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	sonic "github.com/bytedance/sonic"
	"github.com/pickuphub/pickup-backend/internal/domain/pickup"
	"github.com/pickuphub/pickup-backend/internal/usecase"
)

type reportOutcomeRequest struct {
	// PickupID zero targets the latest rateable pickup the actor played in.
	PickupID int64  `json:"pickup_id" validate:"min=0"`
	Outcome  string `json:"outcome" validate:"required,oneof=loss draw"`
}

func (h *Handler) ReportOutcome(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ReportOutcome")
	defer span.End()

	communityID := strings.TrimSpace(r.PathValue("communityID"))
	actor, ok := actorFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: actor is missing from request context", usecase.ErrValidation))
		return
	}

	var req reportOutcomeRequest
	decoder := sonic.ConfigDefault.NewDecoder(r.Body)
	if err := decoder.Decode(&req); err != nil {
		writeError(ctx, w, fmt.Errorf("%w: invalid JSON payload: %v", usecase.ErrValidation, err))
		return
	}
	if err := h.validateRequest(ctx, req); err != nil {
		writeError(ctx, w, err)
		return
	}

	err := h.outcomeService.ReportOutcome(ctx, communityID, actor, req.PickupID, pickup.Outcome(req.Outcome))
	if err != nil {
		h.logger.WarnContext(ctx, "report outcome failed",
			"community", communityID, "actor", actor.ID, "pickup_id", req.PickupID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, map[string]string{"status": "report recorded"})
}
