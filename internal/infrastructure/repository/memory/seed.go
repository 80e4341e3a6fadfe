package memory

import (
	"time"

	"github.com/pickuphub/pickup-backend/internal/domain/community"
	"github.com/pickuphub/pickup-backend/internal/domain/pickup"
)

// Well-known seed ids used by tests and local development.
const (
	CommunityQuakeNet = "quakenet"

	ConfigIDDuel = "duel"
	ConfigIDTDM  = "tdm"
	ConfigIDCTF  = "ctf"
)

// CommunityConfigs groups pickup configs under their community.
type CommunityConfigs struct {
	Community string
	Configs   []pickup.Config
}

func SeedConfigs() []CommunityConfigs {
	return []CommunityConfigs{
		{
			Community: CommunityQuakeNet,
			Configs: []pickup.Config{
				{
					ID:         ConfigIDDuel,
					Name:       "1v1 Duel",
					MaxPlayers: 2,
					TeamCount:  2,
					Mode:       pickup.ModeElo,
					Rated:      true,
					Enabled:    true,
				},
				{
					ID:         ConfigIDTDM,
					Name:       "4v4 TDM",
					MaxPlayers: 8,
					TeamCount:  2,
					Mode:       pickup.ModeElo,
					Rated:      true,
					Enabled:    true,
				},
				{
					ID:         ConfigIDCTF,
					Name:       "CTF",
					MaxPlayers: 8,
					TeamCount:  2,
					Mode:       pickup.ModeRandom,
					Rated:      false,
					Enabled:    true,
				},
			},
		},
	}
}

func SeedCommunities() []community.Settings {
	return []community.Settings{
		{
			ID:               CommunityQuakeNet,
			ReportExpireTime: 2 * time.Hour,
		},
	}
}
