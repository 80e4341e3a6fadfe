package pickup

import "context"

// Repository describes pickup persistence needs from use cases.
//
// Implementations must apply UpdateActive atomically per (community, configID)
// and must keep SetRated monotonic: once true it never flips back.
type Repository interface {
	GetConfig(ctx context.Context, community, configID string) (Config, bool, error)
	GetConfigByName(ctx context.Context, community, name string) (Config, bool, error)
	ListConfigs(ctx context.Context, community string) ([]Config, error)

	GetActive(ctx context.Context, community, configID string) (Active, bool, error)
	SaveActive(ctx context.Context, community string, active Active) error
	ClearActive(ctx context.Context, community, configID string) error

	StoreRateable(ctx context.Context, community string, r Rateable) (int64, error)
	UpdateRateableTeams(ctx context.Context, pickupID int64, teams []Team) error

	// GetLatestRateable returns the newest stored rateable pickup. A non-zero
	// pickupID selects that exact pickup; a non-empty actorID restricts the
	// search to pickups the actor played in.
	GetLatestRateable(ctx context.Context, community, actorID string, pickupID int64) (Rateable, bool, error)
	GetReportedOutcomes(ctx context.Context, pickupID int64) ([]OutcomeReport, error)
	RecordOutcome(ctx context.Context, pickupID int64, team string, outcome Outcome) error
	SetRated(ctx context.Context, pickupID int64) error
	CountRatedSince(ctx context.Context, community, configID string, pickupID int64) (int, error)
}
