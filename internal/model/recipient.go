// internal/model/recipient.go
package model

import "time"

// Recipient job statuses.
const (
	RecipientPending   = "pending"
	RecipientSending   = "sending"
	RecipientSent      = "sent"
	RecipientFailed    = "failed"
	RecipientCancelled = "cancelled"
)

// DefaultMaxRetries applies when a row carries no usable limit.
const DefaultMaxRetries = 3

// Recipient is one send job for a (campaign, address) pair.
type Recipient struct {
	ID           string     `db:"id" json:"id"`
	CampaignID   string     `db:"campaign_id" json:"campaign_id"`
	Email        string     `db:"recipient_email" json:"recipient_email"`
	Name         string     `db:"recipient_name" json:"recipient_name,omitempty"`
	MemberID     string     `db:"member_id" json:"member_id,omitempty"`
	Status       string     `db:"status" json:"status"` // pending, sending, sent, failed, cancelled
	RetryCount   int        `db:"retry_count" json:"retry_count"`
	MaxRetries   int        `db:"max_retries" json:"max_retries"`
	NextRetryAt  *time.Time `db:"next_retry_at" json:"next_retry_at,omitempty"`
	ErrorMessage string     `db:"error_message" json:"error_message,omitempty"`
	SentAt       *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	FailedAt     *time.Time `db:"failed_at" json:"failed_at,omitempty"`
	MessageID    string     `db:"message_id" json:"message_id,omitempty"`
	ProviderName string     `db:"provider_name" json:"provider_name,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// RetryLimit returns MaxRetries, falling back to DefaultMaxRetries.
func (r *Recipient) RetryLimit() int {
	if r.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return r.MaxRetries
}

// DisplayName is the name used on the To: line.
func (r *Recipient) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Email
}
