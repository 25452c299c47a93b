package repository

import (
	"context"
	"database/sql"
	"time"
)

// CampaignLogRepositoryInterface stores liveness markers.
type CampaignLogRepositoryInterface interface {
	Append(ctx context.Context, campaignID, message string, at time.Time) error
}

type CampaignLogRepository struct {
	DB *sql.DB
}

func (r *CampaignLogRepository) Append(ctx context.Context, campaignID, message string, at time.Time) error {
	query := `INSERT INTO campaign_logs (campaign_id, message, created_at) VALUES ($1, $2, $3)`
	_, err := r.DB.ExecContext(ctx, query, campaignID, message, at)
	return err
}

var _ CampaignLogRepositoryInterface = (*CampaignLogRepository)(nil)
