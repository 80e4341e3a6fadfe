package postgres

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"github.com/pickuphub/pickup-backend/internal/domain/pickup"
	"github.com/pickuphub/pickup-backend/internal/domain/player"
)

type pickupConfigTableModel struct {
	CommunityID   string `db:"community_id"`
	ConfigID      string `db:"config_id"`
	Name          string `db:"name"`
	MaxPlayers    int    `db:"max_players"`
	TeamCount     int    `db:"team_count"`
	Mode          string `db:"mode"`
	Rated         bool   `db:"rated"`
	Enabled       bool   `db:"enabled"`
	AllowlistRole string `db:"allowlist_role"`
	DenylistRole  string `db:"denylist_role"`
}

func configFromRow(row pickupConfigTableModel) pickup.Config {
	return pickup.Config{
		ID:            row.ConfigID,
		Name:          row.Name,
		MaxPlayers:    row.MaxPlayers,
		TeamCount:     row.TeamCount,
		Mode:          pickup.Mode(row.Mode),
		Rated:         row.Rated,
		Enabled:       row.Enabled,
		AllowlistRole: row.AllowlistRole,
		DenylistRole:  row.DenylistRole,
	}
}

// JSON shapes stored in jsonb columns. Keys are part of the schema since
// queries address them with jsonb path operators.

type playerRefJSON struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type teamJSON struct {
	Name    string          `json:"name"`
	Alias   string          `json:"alias,omitempty"`
	Players []playerRefJSON `json:"players"`
	Outcome string          `json:"outcome,omitempty"`
}

type captainJSON struct {
	Player playerRefJSON `json:"player"`
	Team   string        `json:"team"`
	Alias  string        `json:"alias,omitempty"`
}

func refsToJSON(refs []player.Ref) []playerRefJSON {
	out := make([]playerRefJSON, len(refs))
	for i, r := range refs {
		out[i] = playerRefJSON{ID: r.ID, DisplayName: r.DisplayName}
	}
	return out
}

func refsFromJSON(refs []playerRefJSON) []player.Ref {
	out := make([]player.Ref, len(refs))
	for i, r := range refs {
		out[i] = player.Ref{ID: r.ID, DisplayName: r.DisplayName}
	}
	return out
}

func teamsToJSON(teams []pickup.Team) []teamJSON {
	out := make([]teamJSON, len(teams))
	for i, t := range teams {
		out[i] = teamJSON{
			Name:    t.Name,
			Alias:   t.Alias,
			Players: refsToJSON(t.Players),
			Outcome: string(t.Outcome),
		}
	}
	return out
}

func teamsFromJSON(teams []teamJSON) []pickup.Team {
	out := make([]pickup.Team, len(teams))
	for i, t := range teams {
		out[i] = pickup.Team{
			Name:    t.Name,
			Alias:   t.Alias,
			Players: refsFromJSON(t.Players),
			Outcome: pickup.Outcome(t.Outcome),
		}
	}
	return out
}

func captainsToJSON(captains []pickup.Captain) []captainJSON {
	out := make([]captainJSON, len(captains))
	for i, c := range captains {
		out[i] = captainJSON{
			Player: playerRefJSON{ID: c.Player.ID, DisplayName: c.Player.DisplayName},
			Team:   c.Team,
			Alias:  c.Alias,
		}
	}
	return out
}

func captainsFromJSON(captains []captainJSON) []pickup.Captain {
	out := make([]pickup.Captain, len(captains))
	for i, c := range captains {
		out[i] = pickup.Captain{
			Player: player.Ref{ID: c.Player.ID, DisplayName: c.Player.DisplayName},
			Team:   c.Team,
			Alias:  c.Alias,
		}
	}
	return out
}

type activePickupTableModel struct {
	CommunityID string    `db:"community_id"`
	ConfigID    string    `db:"config_id"`
	Stage       string    `db:"stage"`
	StartedAt   time.Time `db:"started_at"`
	Players     []byte    `db:"players"`
	Teams       []byte    `db:"teams"`
	Captains    []byte    `db:"captains"`
}

func activeFromRow(row activePickupTableModel) (pickup.Active, error) {
	active := pickup.Active{
		ConfigID:  row.ConfigID,
		Stage:     pickup.Stage(row.Stage),
		StartedAt: row.StartedAt,
	}

	var players []playerRefJSON
	if err := sonic.Unmarshal(row.Players, &players); err != nil {
		return pickup.Active{}, fmt.Errorf("decode players: %w", err)
	}
	active.Players = refsFromJSON(players)

	if len(row.Teams) > 0 {
		var teams []teamJSON
		if err := sonic.Unmarshal(row.Teams, &teams); err != nil {
			return pickup.Active{}, fmt.Errorf("decode teams: %w", err)
		}
		active.Teams = teamsFromJSON(teams)
	}
	if len(row.Captains) > 0 {
		var captains []captainJSON
		if err := sonic.Unmarshal(row.Captains, &captains); err != nil {
			return pickup.Active{}, fmt.Errorf("decode captains: %w", err)
		}
		active.Captains = captainsFromJSON(captains)
	}
	return active, nil
}

func activeToRow(community string, active pickup.Active) (activePickupTableModel, error) {
	players, err := sonic.Marshal(refsToJSON(active.Players))
	if err != nil {
		return activePickupTableModel{}, fmt.Errorf("encode players: %w", err)
	}
	teams, err := sonic.Marshal(teamsToJSON(active.Teams))
	if err != nil {
		return activePickupTableModel{}, fmt.Errorf("encode teams: %w", err)
	}
	captains, err := sonic.Marshal(captainsToJSON(active.Captains))
	if err != nil {
		return activePickupTableModel{}, fmt.Errorf("encode captains: %w", err)
	}
	return activePickupTableModel{
		CommunityID: community,
		ConfigID:    active.ConfigID,
		Stage:       string(active.Stage),
		StartedAt:   active.StartedAt,
		Players:     players,
		Teams:       teams,
		Captains:    captains,
	}, nil
}

type rateableTableModel struct {
	ID          int64     `db:"id"`
	CommunityID string    `db:"community_id"`
	ConfigID    string    `db:"config_id"`
	Name        string    `db:"name"`
	StartedAt   time.Time `db:"started_at"`
	Captains    []byte    `db:"captains"`
	Teams       []byte    `db:"teams"`
	IsRated     bool      `db:"is_rated"`
}

func rateableFromRow(row rateableTableModel) (pickup.Rateable, error) {
	out := pickup.Rateable{
		PickupID:  row.ID,
		ConfigID:  row.ConfigID,
		Name:      row.Name,
		StartedAt: row.StartedAt,
		IsRated:   row.IsRated,
	}

	var captains []captainJSON
	if err := sonic.Unmarshal(row.Captains, &captains); err != nil {
		return pickup.Rateable{}, fmt.Errorf("decode captains: %w", err)
	}
	out.Captains = captainsFromJSON(captains)

	var teams []teamJSON
	if err := sonic.Unmarshal(row.Teams, &teams); err != nil {
		return pickup.Rateable{}, fmt.Errorf("decode teams: %w", err)
	}
	out.Teams = teamsFromJSON(teams)
	return out, nil
}

type outcomeReportTableModel struct {
	PickupID int64     `db:"pickup_id"`
	Team     string    `db:"team"`
	Outcome  string    `db:"outcome"`
	Created  time.Time `db:"created_at"`
}

type playerTableModel struct {
	CommunityID  string     `db:"community_id"`
	PlayerID     string     `db:"player_id"`
	DisplayName  string     `db:"display_name"`
	Mu           float64    `db:"rating_mu"`
	Sigma        float64    `db:"rating_sigma"`
	Trusted      bool       `db:"trusted"`
	BanReason    *string    `db:"ban_reason"`
	BanExpiresAt *time.Time `db:"ban_expires_at"`
}

func banFromRow(row playerTableModel) *player.Ban {
	if row.BanReason == nil && row.BanExpiresAt == nil {
		return nil
	}
	ban := &player.Ban{ExpiresAt: row.BanExpiresAt}
	if row.BanReason != nil {
		ban.Reason = *row.BanReason
	}
	return ban
}

type subRequestTableModel struct {
	CommunityID string    `db:"community_id"`
	RequesterID string    `db:"requester_id"`
	TargetID    string    `db:"target_id"`
	CreatedAt   time.Time `db:"created_at"`
}

type communityTableModel struct {
	ID               string `db:"id"`
	AllowlistRole    string `db:"allowlist_role"`
	DenylistRole     string `db:"denylist_role"`
	ExplicitTrust    bool   `db:"explicit_trust"`
	TrustTimeMs      int64  `db:"trust_time_ms"`
	ReportExpireTime int64  `db:"report_expire_ms"`
}
