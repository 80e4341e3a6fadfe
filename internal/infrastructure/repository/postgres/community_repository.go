package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pickuphub/pickup-backend/internal/domain/community"
	qb "github.com/pickuphub/pickup-backend/internal/platform/querybuilder"
)

type CommunityRepository struct {
	db *sqlx.DB
}

func NewCommunityRepository(db *sqlx.DB) *CommunityRepository {
	return &CommunityRepository{db: db}
}

func (r *CommunityRepository) GetSettings(ctx context.Context, communityID string) (community.Settings, bool, error) {
	query, args, err := qb.Select("*").From("communities").
		Where(qb.Eq("id", communityID)).
		ToSQL()
	if err != nil {
		return community.Settings{}, false, fmt.Errorf("build get settings query: %w", err)
	}

	var row communityTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return community.Settings{}, false, nil
		}
		return community.Settings{}, false, fmt.Errorf("get community settings: %w", err)
	}

	return community.Settings{
		ID:               row.ID,
		AllowlistRole:    row.AllowlistRole,
		DenylistRole:     row.DenylistRole,
		ExplicitTrust:    row.ExplicitTrust,
		TrustTime:        time.Duration(row.TrustTimeMs) * time.Millisecond,
		ReportExpireTime: time.Duration(row.ReportExpireTime) * time.Millisecond,
	}, true, nil
}
