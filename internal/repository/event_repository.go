package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/unclebandit/mailcampaign-sender/internal/model"
)

// EventRepositoryInterface is the append-only campaign event trail.
type EventRepositoryInterface interface {
	Append(ctx context.Context, e *model.CampaignEvent) error
	Recent(ctx context.Context, campaignID string, limit int) ([]*model.CampaignEvent, error)
}

type EventRepository struct {
	DB *sql.DB
}

func (r *EventRepository) Append(ctx context.Context, e *model.CampaignEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	query := `
        INSERT INTO campaign_events (campaign_id, recipient_id, event_type, event_data, created_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id
    `
	return r.DB.QueryRowContext(ctx, query,
		e.CampaignID, e.RecipientID, e.EventType, []byte(e.EventData), e.CreatedAt,
	).Scan(&e.ID)
}

func (r *EventRepository) Recent(ctx context.Context, campaignID string, limit int) ([]*model.CampaignEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := `
        SELECT id, campaign_id, COALESCE(recipient_id::text, ''), event_type, COALESCE(event_data, '{}'), created_at
        FROM campaign_events
        WHERE campaign_id=$1
        ORDER BY created_at DESC
        LIMIT $2
    `
	rows, err := r.DB.QueryContext(ctx, query, campaignID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []*model.CampaignEvent{}
	for rows.Next() {
		e := &model.CampaignEvent{}
		var data []byte
		if err := rows.Scan(&e.ID, &e.CampaignID, &e.RecipientID, &e.EventType, &data, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.EventData = data
		events = append(events, e)
	}
	return events, rows.Err()
}

var _ EventRepositoryInterface = (*EventRepository)(nil)
