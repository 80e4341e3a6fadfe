package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	sonic "github.com/bytedance/sonic"
	"github.com/pickuphub/pickup-backend/internal/domain/player"
	"github.com/pickuphub/pickup-backend/internal/usecase"
)

type playerRefDTO struct {
	ID          string `json:"id" validate:"required"`
	DisplayName string `json:"display_name"`
}

type submitPicksRequest struct {
	ConfigID string           `json:"config_id" validate:"required"`
	Teams    [][]playerRefDTO `json:"teams" validate:"required,min=2,dive,required,min=1,dive"`
}

// SubmitPicks settles a manual or captain pick phase with the final team
// assignment and moves the pickup on to awaiting its outcome.
func (h *Handler) SubmitPicks(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.SubmitPicks")
	defer span.End()

	communityID := strings.TrimSpace(r.PathValue("communityID"))

	var req submitPicksRequest
	decoder := sonic.ConfigDefault.NewDecoder(r.Body)
	if err := decoder.Decode(&req); err != nil {
		writeError(ctx, w, fmt.Errorf("%w: invalid JSON payload: %v", usecase.ErrValidation, err))
		return
	}
	if err := h.validateRequest(ctx, req); err != nil {
		writeError(ctx, w, err)
		return
	}

	picked := make([][]player.Ref, 0, len(req.Teams))
	for _, team := range req.Teams {
		refs := make([]player.Ref, 0, len(team))
		for _, p := range team {
			name := strings.TrimSpace(p.DisplayName)
			if name == "" {
				name = p.ID
			}
			refs = append(refs, player.Ref{ID: p.ID, DisplayName: name})
		}
		picked = append(picked, refs)
	}

	if err := h.stageService.ExitPendingStage(ctx, communityID, req.ConfigID, picked); err != nil {
		h.logger.WarnContext(ctx, "submit picks failed",
			"community", communityID, "config", req.ConfigID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, map[string]string{"config_id": req.ConfigID, "status": "teams locked"})
}
