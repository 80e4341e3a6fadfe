package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/pickuphub/pickup-backend/internal/domain/player"
	"github.com/pickuphub/pickup-backend/internal/domain/rating"
	qb "github.com/pickuphub/pickup-backend/internal/platform/querybuilder"
)

type PlayerRepository struct {
	db *sqlx.DB
}

func NewPlayerRepository(db *sqlx.DB) *PlayerRepository {
	return &PlayerRepository{db: db}
}

func (r *PlayerRepository) Upsert(ctx context.Context, community string, ref player.Ref) error {
	query, args, err := qb.InsertInto("players").
		Columns("community_id", "player_id", "display_name", "rating_mu", "rating_sigma").
		Values(community, ref.ID, ref.DisplayName, rating.DefaultMu, rating.DefaultSigma).
		Suffix(`ON CONFLICT (community_id, player_id)
DO UPDATE SET display_name = EXCLUDED.display_name`).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build upsert player query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert player: %w", err)
	}
	return nil
}

func (r *PlayerRepository) get(ctx context.Context, community, playerID string) (playerTableModel, bool, error) {
	query, args, err := qb.Select("*").From("players").
		Where(qb.Eq("community_id", community), qb.Eq("player_id", playerID)).
		ToSQL()
	if err != nil {
		return playerTableModel{}, false, fmt.Errorf("build get player query: %w", err)
	}

	var row playerTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return playerTableModel{}, false, nil
		}
		return playerTableModel{}, false, fmt.Errorf("get player: %w", err)
	}
	return row, true, nil
}

// GetRating returns the stored rating or the default for unknown players.
func (r *PlayerRepository) GetRating(ctx context.Context, community, playerID string) (rating.Rating, error) {
	row, ok, err := r.get(ctx, community, playerID)
	if err != nil {
		return rating.Rating{}, err
	}
	if !ok {
		return rating.Default(), nil
	}
	return rating.Rating{Mu: row.Mu, Sigma: row.Sigma}, nil
}

func (r *PlayerRepository) SetRating(ctx context.Context, community, playerID string, rt rating.Rating) error {
	query, args, err := qb.InsertInto("players").
		Columns("community_id", "player_id", "display_name", "rating_mu", "rating_sigma").
		Values(community, playerID, playerID, rt.Mu, rt.Sigma).
		Suffix(`ON CONFLICT (community_id, player_id)
DO UPDATE SET rating_mu = EXCLUDED.rating_mu, rating_sigma = EXCLUDED.rating_sigma`).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build set rating query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("set rating: %w", err)
	}
	return nil
}

func (r *PlayerRepository) IsBanned(ctx context.Context, community, playerID string) (*player.Ban, error) {
	row, ok, err := r.get(ctx, community, playerID)
	if err != nil || !ok {
		return nil, err
	}
	return banFromRow(row), nil
}

func (r *PlayerRepository) IsTrusted(ctx context.Context, community, playerID string) (bool, error) {
	row, ok, err := r.get(ctx, community, playerID)
	if err != nil || !ok {
		return false, err
	}
	return row.Trusted, nil
}

// PlayedBefore reports whether any stored pickup has the player on a team.
func (r *PlayerRepository) PlayedBefore(ctx context.Context, community, playerID string) (bool, error) {
	query, args, err := qb.Select("COUNT(*)").From("rateable_pickups").
		Where(
			qb.Eq("community_id", community),
			qb.Expr(teamsContainPlayerExpr, playerID),
		).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("build played before query: %w", err)
	}

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return false, fmt.Errorf("played before lookup: %w", err)
	}
	return count > 0, nil
}

func (r *PlayerRepository) GetSubRequest(ctx context.Context, community, requesterID string) (player.SubRequest, bool, error) {
	query, args, err := qb.Select("*").From("sub_requests").
		Where(qb.Eq("community_id", community), qb.Eq("requester_id", requesterID)).
		ToSQL()
	if err != nil {
		return player.SubRequest{}, false, fmt.Errorf("build get sub request query: %w", err)
	}

	var row subRequestTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return player.SubRequest{}, false, nil
		}
		return player.SubRequest{}, false, fmt.Errorf("get sub request: %w", err)
	}
	return player.SubRequest{
		RequesterID: row.RequesterID,
		TargetID:    row.TargetID,
		CreatedAt:   row.CreatedAt,
	}, true, nil
}

func (r *PlayerRepository) SetSubRequest(ctx context.Context, community string, req player.SubRequest) error {
	query, args, err := qb.InsertInto("sub_requests").
		Columns("community_id", "requester_id", "target_id", "created_at").
		Values(community, req.RequesterID, req.TargetID, req.CreatedAt).
		Suffix(`ON CONFLICT (community_id, requester_id)
DO UPDATE SET target_id = EXCLUDED.target_id, created_at = EXCLUDED.created_at`).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build set sub request query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("set sub request: %w", err)
	}
	return nil
}

func (r *PlayerRepository) ClearSubRequest(ctx context.Context, community, requesterID string) error {
	if _, err := r.db.ExecContext(ctx,
		"DELETE FROM sub_requests WHERE community_id = $1 AND requester_id = $2",
		community, requesterID); err != nil {
		return fmt.Errorf("clear sub request: %w", err)
	}
	return nil
}
