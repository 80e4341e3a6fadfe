package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/pickuphub/pickup-backend/internal/domain/pickup"
	"github.com/pickuphub/pickup-backend/internal/domain/rating"
	qb "github.com/pickuphub/pickup-backend/internal/platform/querybuilder"
)

// jsonb path over the teams column: any team contains a player with this id.
const teamsContainPlayerExpr = `EXISTS (
SELECT 1 FROM jsonb_array_elements(teams) team, jsonb_array_elements(team->'players') p
WHERE p->>'id' = ?)`

type PickupRepository struct {
	db *sqlx.DB
}

func NewPickupRepository(db *sqlx.DB) *PickupRepository {
	return &PickupRepository{db: db}
}

func (r *PickupRepository) GetConfig(ctx context.Context, community, configID string) (pickup.Config, bool, error) {
	query, args, err := qb.Select("*").From("pickup_configs").
		Where(qb.Eq("community_id", community), qb.Eq("config_id", configID)).
		ToSQL()
	if err != nil {
		return pickup.Config{}, false, fmt.Errorf("build get config query: %w", err)
	}

	var row pickupConfigTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return pickup.Config{}, false, nil
		}
		return pickup.Config{}, false, fmt.Errorf("get config: %w", err)
	}
	return configFromRow(row), true, nil
}

func (r *PickupRepository) GetConfigByName(ctx context.Context, community, name string) (pickup.Config, bool, error) {
	query, args, err := qb.Select("*").From("pickup_configs").
		Where(qb.Eq("community_id", community), qb.Eq("name", name)).
		ToSQL()
	if err != nil {
		return pickup.Config{}, false, fmt.Errorf("build get config by name query: %w", err)
	}

	var row pickupConfigTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return pickup.Config{}, false, nil
		}
		return pickup.Config{}, false, fmt.Errorf("get config by name: %w", err)
	}
	return configFromRow(row), true, nil
}

func (r *PickupRepository) ListConfigs(ctx context.Context, community string) ([]pickup.Config, error) {
	query, args, err := qb.Select("*").From("pickup_configs").
		Where(qb.Eq("community_id", community)).
		OrderBy("config_id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list configs query: %w", err)
	}

	var rows []pickupConfigTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list configs: %w", err)
	}

	out := make([]pickup.Config, 0, len(rows))
	for _, row := range rows {
		out = append(out, configFromRow(row))
	}
	return out, nil
}

func (r *PickupRepository) GetActive(ctx context.Context, community, configID string) (pickup.Active, bool, error) {
	query, args, err := qb.Select("*").From("active_pickups").
		Where(qb.Eq("community_id", community), qb.Eq("config_id", configID)).
		ToSQL()
	if err != nil {
		return pickup.Active{}, false, fmt.Errorf("build get active query: %w", err)
	}

	var row activePickupTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return pickup.Active{}, false, nil
		}
		return pickup.Active{}, false, fmt.Errorf("get active pickup: %w", err)
	}

	active, err := activeFromRow(row)
	if err != nil {
		return pickup.Active{}, false, err
	}
	return active, true, nil
}

func (r *PickupRepository) SaveActive(ctx context.Context, community string, active pickup.Active) error {
	row, err := activeToRow(community, active)
	if err != nil {
		return err
	}

	query, args, err := qb.InsertModel("active_pickups", row, `ON CONFLICT (community_id, config_id)
DO UPDATE SET
    stage = EXCLUDED.stage,
    started_at = EXCLUDED.started_at,
    players = EXCLUDED.players,
    teams = EXCLUDED.teams,
    captains = EXCLUDED.captains`)
	if err != nil {
		return fmt.Errorf("build save active query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save active pickup: %w", err)
	}
	return nil
}

func (r *PickupRepository) ClearActive(ctx context.Context, community, configID string) error {
	if _, err := r.db.ExecContext(ctx,
		"DELETE FROM active_pickups WHERE community_id = $1 AND config_id = $2",
		community, configID); err != nil {
		return fmt.Errorf("clear active pickup: %w", err)
	}
	return nil
}

func (r *PickupRepository) StoreRateable(ctx context.Context, community string, rateable pickup.Rateable) (int64, error) {
	captains, err := marshalJSON(captainsToJSON(rateable.Captains))
	if err != nil {
		return 0, fmt.Errorf("encode captains: %w", err)
	}
	teams, err := marshalJSON(teamsToJSON(rateable.Teams))
	if err != nil {
		return 0, fmt.Errorf("encode teams: %w", err)
	}

	query, args, err := qb.InsertInto("rateable_pickups").
		Columns("community_id", "config_id", "name", "started_at", "captains", "teams").
		Values(community, rateable.ConfigID, rateable.Name, rateable.StartedAt, captains, teams).
		Suffix("RETURNING id").
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build store rateable query: %w", err)
	}

	var id int64
	if err := r.db.GetContext(ctx, &id, query, args...); err != nil {
		return 0, fmt.Errorf("store rateable pickup: %w", err)
	}
	return id, nil
}

func (r *PickupRepository) UpdateRateableTeams(ctx context.Context, pickupID int64, teams []pickup.Team) error {
	encoded, err := marshalJSON(teamsToJSON(teams))
	if err != nil {
		return fmt.Errorf("encode teams: %w", err)
	}

	query, args, err := qb.Update("rateable_pickups").
		Set("teams", encoded).
		Where(qb.Eq("id", pickupID)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build update teams query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update rateable teams: %w", err)
	}
	return nil
}

func (r *PickupRepository) GetLatestRateable(ctx context.Context, community, actorID string, pickupID int64) (pickup.Rateable, bool, error) {
	builder := qb.Select("*").From("rateable_pickups").
		Where(qb.Eq("community_id", community))
	if pickupID != 0 {
		builder = builder.Where(qb.Eq("id", pickupID))
	}
	if actorID != "" {
		builder = builder.Where(qb.Expr(teamsContainPlayerExpr, actorID))
	}
	query, args, err := builder.OrderBy("id DESC").Limit(1).ToSQL()
	if err != nil {
		return pickup.Rateable{}, false, fmt.Errorf("build latest rateable query: %w", err)
	}

	var row rateableTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return pickup.Rateable{}, false, nil
		}
		return pickup.Rateable{}, false, fmt.Errorf("get latest rateable: %w", err)
	}

	rateable, err := rateableFromRow(row)
	if err != nil {
		return pickup.Rateable{}, false, err
	}
	return rateable, true, nil
}

func (r *PickupRepository) GetReportedOutcomes(ctx context.Context, pickupID int64) ([]pickup.OutcomeReport, error) {
	query, args, err := qb.Select("*").From("outcome_reports").
		Where(qb.Eq("pickup_id", pickupID)).
		OrderBy("created_at").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build reported outcomes query: %w", err)
	}

	var rows []outcomeReportTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("get reported outcomes: %w", err)
	}

	out := make([]pickup.OutcomeReport, 0, len(rows))
	for _, row := range rows {
		out = append(out, pickup.OutcomeReport{Team: row.Team, Outcome: pickup.Outcome(row.Outcome)})
	}
	return out, nil
}

func (r *PickupRepository) RecordOutcome(ctx context.Context, pickupID int64, team string, outcome pickup.Outcome) error {
	query, args, err := qb.InsertInto("outcome_reports").
		Columns("pickup_id", "team", "outcome").
		Values(pickupID, team, string(outcome)).
		Suffix("ON CONFLICT (pickup_id, team) DO UPDATE SET outcome = EXCLUDED.outcome").
		ToSQL()
	if err != nil {
		return fmt.Errorf("build record outcome query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

func (r *PickupRepository) SetRated(ctx context.Context, pickupID int64) error {
	// Monotonic because the flag is only ever written true; no unrate path
	// exists.
	query, args, err := qb.Update("rateable_pickups").
		Set("is_rated", true).
		Where(qb.Eq("id", pickupID)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build set rated query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("set rated: %w", err)
	}
	return nil
}

// FinalizeRating writes the final team outcomes, the per-player rating
// updates and the rated flag in one transaction, so an aborted finalize
// leaves the pickup fully reportable.
func (r *PickupRepository) FinalizeRating(ctx context.Context, community string, pickupID int64, teams []pickup.Team, updated map[string]rating.Rating) error {
	encoded, err := marshalJSON(teamsToJSON(teams))
	if err != nil {
		return fmt.Errorf("encode teams: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin finalize: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"UPDATE rateable_pickups SET teams = $1, is_rated = TRUE WHERE id = $2",
		encoded, pickupID); err != nil {
		return fmt.Errorf("finalize rateable pickup: %w", err)
	}
	for playerID, rt := range updated {
		if _, err := tx.ExecContext(ctx, `INSERT INTO players (community_id, player_id, display_name, rating_mu, rating_sigma)
VALUES ($1, $2, $2, $3, $4)
ON CONFLICT (community_id, player_id)
DO UPDATE SET rating_mu = EXCLUDED.rating_mu, rating_sigma = EXCLUDED.rating_sigma`,
			community, playerID, rt.Mu, rt.Sigma); err != nil {
			return fmt.Errorf("store rating for %s: %w", playerID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit finalize: %w", err)
	}
	return nil
}

func (r *PickupRepository) CountRatedSince(ctx context.Context, community, configID string, pickupID int64) (int, error) {
	query, args, err := qb.Select("COUNT(*)").From("rateable_pickups").
		Where(
			qb.Eq("community_id", community),
			qb.Eq("config_id", configID),
			qb.Expr("id > ?", pickupID),
			qb.Expr("is_rated = TRUE"),
		).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build count rated query: %w", err)
	}

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count rated pickups: %w", err)
	}
	return count, nil
}
