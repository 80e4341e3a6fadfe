package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pickuphub/pickup-backend/internal/usecase"
)

type communityStatusDTO struct {
	Community  string            `json:"community"`
	Pickups    []configStatusDTO `json:"pickups"`
	Unresolved *unresolvedDTO    `json:"unresolved,omitempty"`
}

type configStatusDTO struct {
	ConfigID    string   `json:"config_id"`
	Name        string   `json:"name"`
	Stage       string   `json:"stage"`
	Players     []string `json:"players"`
	PlayerCount int      `json:"player_count"`
	MaxPlayers  int      `json:"max_players"`
}

type unresolvedDTO struct {
	PickupID  int64    `json:"pickup_id"`
	Name      string   `json:"name"`
	StartedAt string   `json:"started_at"`
	Teams     []string `json:"teams"`
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetStatus")
	defer span.End()

	communityID := strings.TrimSpace(r.PathValue("communityID"))

	if wait := h.guardService.CheckCooldown(ctx, communityID, "status", h.statusCooldown); wait > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(wait.Seconds())+1))
		writeError(ctx, w, fmt.Errorf("%w: status was requested recently, retry in %s",
			usecase.ErrEligibility, wait.Round(time.Second)))
		return
	}

	status, err := h.statusService.Overview(ctx, communityID)
	if err != nil {
		h.logger.WarnContext(ctx, "status overview failed", "community", communityID, "error", err)
		writeError(ctx, w, err)
		return
	}

	pickups := make([]configStatusDTO, 0, len(status.Pickups))
	for _, cfg := range status.Pickups {
		players := make([]string, 0, len(cfg.Players))
		for _, p := range cfg.Players {
			players = append(players, p.DisplayName)
		}
		pickups = append(pickups, configStatusDTO{
			ConfigID:    cfg.ConfigID,
			Name:        cfg.Name,
			Stage:       string(cfg.Stage),
			Players:     players,
			PlayerCount: cfg.PlayerCount,
			MaxPlayers:  cfg.MaxPlayers,
		})
	}

	dto := communityStatusDTO{
		Community: status.Community,
		Pickups:   pickups,
	}
	if status.Unresolved != nil {
		teams := make([]string, 0, len(status.Unresolved.Teams))
		for _, team := range status.Unresolved.Teams {
			teams = append(teams, team.DisplayName())
		}
		dto.Unresolved = &unresolvedDTO{
			PickupID:  status.Unresolved.PickupID,
			Name:      status.Unresolved.Name,
			StartedAt: status.Unresolved.StartedAt.UTC().Format(time.RFC3339),
			Teams:     teams,
		}
	}

	writeSuccess(ctx, w, http.StatusOK, dto)
}
