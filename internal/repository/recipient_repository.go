package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/unclebandit/mailcampaign-sender/internal/model"
)

// RecipientRepositoryInterface is the recipient queue store.
type RecipientRepositoryInterface interface {
	ListDispatchable(ctx context.Context, campaignID string) ([]*model.Recipient, error)
	MarkSending(ctx context.Context, id string) error
	MarkSent(ctx context.Context, id, messageID, provider string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string, f FailureUpdate) error
	StatusCounts(ctx context.Context, campaignID string) (map[string]int, error)
	RequeueFailed(ctx context.Context, campaignID string) (int, error)
	CancelPending(ctx context.Context, campaignID string) (int, error)
}

// FailureUpdate carries the bookkeeping written after a failed attempt.
type FailureUpdate struct {
	Error       string
	RetryCount  int
	FailedAt    time.Time
	NextRetryAt *time.Time
}

type RecipientRepository struct {
	DB *sql.DB
}

// ListDispatchable returns pending and failed jobs, oldest first.
func (r *RecipientRepository) ListDispatchable(ctx context.Context, campaignID string) ([]*model.Recipient, error) {
	query := `
        SELECT id, campaign_id, recipient_email, COALESCE(recipient_name, ''), COALESCE(member_id::text, ''),
               status, COALESCE(retry_count, 0), COALESCE(max_retries, 0), next_retry_at,
               COALESCE(error_message, ''), created_at
        FROM campaign_recipients
        WHERE campaign_id=$1 AND status = ANY($2)
        ORDER BY created_at ASC
    `
	statuses := pq.Array([]string{model.RecipientPending, model.RecipientFailed})
	rows, err := r.DB.QueryContext(ctx, query, campaignID, statuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipients := []*model.Recipient{}
	for rows.Next() {
		rc := &model.Recipient{}
		if err := rows.Scan(
			&rc.ID, &rc.CampaignID, &rc.Email, &rc.Name, &rc.MemberID,
			&rc.Status, &rc.RetryCount, &rc.MaxRetries, &rc.NextRetryAt,
			&rc.ErrorMessage, &rc.CreatedAt,
		); err != nil {
			return nil, err
		}
		recipients = append(recipients, rc)
	}
	return recipients, rows.Err()
}

func (r *RecipientRepository) MarkSending(ctx context.Context, id string) error {
	query := `UPDATE campaign_recipients SET status=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.ExecContext(ctx, query, model.RecipientSending, id)
	return err
}

func (r *RecipientRepository) MarkSent(ctx context.Context, id, messageID, provider string, sentAt time.Time) error {
	query := `
        UPDATE campaign_recipients
        SET status=$1, sent_at=$2, message_id=$3, provider_name=$4, next_retry_at=NULL, updated_at=NOW()
        WHERE id=$5
    `
	_, err := r.DB.ExecContext(ctx, query, model.RecipientSent, sentAt, messageID, provider, id)
	return err
}

func (r *RecipientRepository) MarkFailed(ctx context.Context, id string, f FailureUpdate) error {
	query := `
        UPDATE campaign_recipients
        SET status=$1, failed_at=$2, error_message=$3, retry_count=$4, next_retry_at=$5, updated_at=NOW()
        WHERE id=$6
    `
	_, err := r.DB.ExecContext(ctx, query, model.RecipientFailed, f.FailedAt, f.Error, f.RetryCount, f.NextRetryAt, id)
	return err
}

func (r *RecipientRepository) StatusCounts(ctx context.Context, campaignID string) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM campaign_recipients WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{
		"total":                  0,
		model.RecipientPending:   0,
		model.RecipientSending:   0,
		model.RecipientSent:      0,
		model.RecipientFailed:    0,
		model.RecipientCancelled: 0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
		stats["total"] += count
	}
	return stats, rows.Err()
}

// RequeueFailed moves failed jobs that still have retries left back to pending.
func (r *RecipientRepository) RequeueFailed(ctx context.Context, campaignID string) (int, error) {
	query := `
        UPDATE campaign_recipients
        SET status=$1, next_retry_at=NULL, updated_at=NOW()
        WHERE campaign_id=$2 AND status=$3 AND retry_count < COALESCE(NULLIF(max_retries, 0), $4)
    `
	res, err := r.DB.ExecContext(ctx, query, model.RecipientPending, campaignID, model.RecipientFailed, model.DefaultMaxRetries)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *RecipientRepository) CancelPending(ctx context.Context, campaignID string) (int, error) {
	query := `UPDATE campaign_recipients SET status=$1, updated_at=NOW() WHERE campaign_id=$2 AND status=$3`
	res, err := r.DB.ExecContext(ctx, query, model.RecipientCancelled, campaignID, model.RecipientPending)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

var _ RecipientRepositoryInterface = (*RecipientRepository)(nil)
