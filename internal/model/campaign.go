// internal/model/campaign.go
package model

import "time"

// Campaign statuses.
const (
	CampaignDraft           = "draft"
	CampaignScheduled       = "scheduled"
	CampaignSending         = "sending"
	CampaignSent            = "sent"
	CampaignPartiallyFailed = "partially_failed"
	CampaignFailed          = "failed"
	CampaignPaused          = "paused"
	CampaignCancelled       = "cancelled"
)

type Campaign struct {
	ID              string     `db:"id" json:"id"`
	Name            string     `db:"name" json:"name"`
	Subject         string     `db:"subject" json:"subject"`
	Body            string     `db:"body" json:"body"`
	CC              []string   `db:"cc" json:"cc,omitempty"`
	BCC             []string   `db:"bcc" json:"bcc,omitempty"`
	ReplyTo         string     `db:"reply_to" json:"reply_to,omitempty"`
	UserTokenID     string     `db:"user_token_id" json:"user_token_id"`
	Status          string     `db:"status" json:"status"`
	TotalRecipients int        `db:"total_recipients" json:"total_recipients"`
	StartedAt       *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt     *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// IsTerminal reports whether no further sends are expected for the campaign.
func (c *Campaign) IsTerminal() bool {
	switch c.Status {
	case CampaignSent, CampaignPartiallyFailed, CampaignFailed, CampaignCancelled:
		return true
	}
	return false
}
