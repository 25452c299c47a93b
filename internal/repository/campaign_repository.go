package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/mailcampaign-sender/internal/errors"
	"github.com/unclebandit/mailcampaign-sender/internal/model"
)

type CampaignRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*model.Campaign, error)
	MarkStarted(ctx context.Context, id string, startedAt time.Time) error
	MarkCompleted(ctx context.Context, id, status string, completedAt time.Time) error
	UpdateStatus(ctx context.Context, id, status string) error
}

type CampaignRepository struct {
	DB *sql.DB
}

func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	query := `
        SELECT id, COALESCE(name, ''), COALESCE(subject, ''), COALESCE(body, ''),
               COALESCE(cc, '{}'), COALESCE(bcc, '{}'), COALESCE(reply_to, ''),
               COALESCE(user_token_id::text, ''), status, COALESCE(total_recipients, 0),
               started_at, completed_at, created_at
        FROM email_campaigns WHERE id=$1
    `
	var c model.Campaign
	var cc, bcc pq.StringArray
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.Subject, &c.Body,
		&cc, &bcc, &c.ReplyTo,
		&c.UserTokenID, &c.Status, &c.TotalRecipients,
		&c.StartedAt, &c.CompletedAt, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidID(err) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	c.CC = []string(cc)
	c.BCC = []string(bcc)
	return &c, nil
}

// MarkStarted moves the campaign to sending and stamps started_at.
func (r *CampaignRepository) MarkStarted(ctx context.Context, id string, startedAt time.Time) error {
	query := `UPDATE email_campaigns SET status=$1, started_at=$2, updated_at=NOW() WHERE id=$3`
	_, err := r.DB.ExecContext(ctx, query, model.CampaignSending, startedAt, id)
	return err
}

// MarkCompleted sets a final status and stamps completed_at. A campaign
// paused or cancelled while the run was in flight keeps that status.
func (r *CampaignRepository) MarkCompleted(ctx context.Context, id, status string, completedAt time.Time) error {
	query := `UPDATE email_campaigns SET status=$1, completed_at=$2, updated_at=NOW() WHERE id=$3 AND status NOT IN ($4, $5)`
	_, err := r.DB.ExecContext(ctx, query, status, completedAt, id, model.CampaignPaused, model.CampaignCancelled)
	return err
}

func (r *CampaignRepository) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE email_campaigns SET status=$1, updated_at=NOW() WHERE id=$2`
	res, err := r.DB.ExecContext(ctx, query, status, id)
	if isInvalidID(err) {
		return appErrors.NewCampaignNotFound(id)
	}
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return appErrors.NewCampaignNotFound(id)
	}
	return nil
}

// isInvalidID reports a uuid column compared against text that is not a uuid.
// No row can match such an id.
func isInvalidID(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "22P02"
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
