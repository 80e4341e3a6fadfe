package pickup

import (
	"fmt"
	"time"

	"github.com/pickuphub/pickup-backend/internal/domain/player"
)

// Mode selects how teams are formed once a pickup fills.
type Mode string

const (
	ModeRandom     Mode = "random"
	ModeCaptains   Mode = "captains"
	ModeElo        Mode = "elo"
	ModeManualPick Mode = "manual-pick"
)

var AllModes = map[Mode]struct{}{
	ModeRandom:     {},
	ModeCaptains:   {},
	ModeElo:        {},
	ModeManualPick: {},
}

// Config is a named pickup template within a community. It is immutable for
// the lifetime of a running pickup; edits only affect future pickups.
type Config struct {
	ID            string
	Name          string
	MaxPlayers    int
	TeamCount     int
	Mode          Mode
	Rated         bool
	Enabled       bool
	AllowlistRole string
	DenylistRole  string
}

func (c Config) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("config id is required")
	}
	if c.Name == "" {
		return fmt.Errorf("config name is required")
	}
	if _, ok := AllModes[c.Mode]; !ok {
		return fmt.Errorf("unknown formation mode %q", c.Mode)
	}
	if c.TeamCount < 2 {
		return fmt.Errorf("config needs at least 2 teams, got %d", c.TeamCount)
	}
	if c.MaxPlayers < c.TeamCount {
		return fmt.Errorf("max players %d cannot be below team count %d", c.MaxPlayers, c.TeamCount)
	}
	return nil
}

// Outcome is a team's final result. Empty means not yet reported.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
	OutcomeDraw Outcome = "draw"
)

// Team is one side of a formed match.
type Team struct {
	Name    string
	Alias   string
	Players []player.Ref
	Outcome Outcome
}

func (t Team) DisplayName() string {
	if t.Alias != "" {
		return t.Alias
	}
	return t.Name
}

func (t Team) Has(playerID string) bool {
	for _, p := range t.Players {
		if p.ID == playerID {
			return true
		}
	}
	return false
}

// Captain is the designated reporting authority for one team.
type Captain struct {
	Player player.Ref
	Team   string
	Alias  string
}

func (c Captain) DisplayName() string {
	if c.Alias != "" {
		return c.Alias
	}
	return c.Team
}

// Active is the one in-progress queue instance for a config. Player order is
// insertion order; it matters for draft fallback and display.
type Active struct {
	ConfigID  string
	Players   []player.Ref
	Stage     Stage
	StartedAt time.Time
	Teams     []Team
	Captains  []Captain
}

func (a Active) Has(playerID string) bool {
	for _, p := range a.Players {
		if p.ID == playerID {
			return true
		}
	}
	return false
}

// Rateable is the persisted record of a completed pickup eligible for rating.
type Rateable struct {
	PickupID  int64
	ConfigID  string
	Name      string
	StartedAt time.Time
	Captains  []Captain
	Teams     []Team
	IsRated   bool
}

func (r Rateable) CaptainOf(playerID string) (Captain, bool) {
	for _, c := range r.Captains {
		if c.Player.ID == playerID {
			return c, true
		}
	}
	return Captain{}, false
}

func (r Rateable) TeamByName(name string) (Team, bool) {
	for _, t := range r.Teams {
		if t.Name == name {
			return t, true
		}
	}
	return Team{}, false
}

func (r Rateable) HasPlayer(playerID string) bool {
	for _, t := range r.Teams {
		if t.Has(playerID) {
			return true
		}
	}
	return false
}

// Expired reports whether the outcome window has closed.
func (r Rateable) Expired(now time.Time, reportExpireTime time.Duration) bool {
	return now.After(r.StartedAt.Add(reportExpireTime))
}

// OutcomeReport is one captain's claim about their own team's result.
type OutcomeReport struct {
	Team    string
	Outcome Outcome
}
