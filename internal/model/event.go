package model

import (
	"encoding/json"
	"time"
)

// Campaign event types.
const (
	EventQueued = "queued"
	EventSent   = "sent"
	EventFailed = "failed"
)

// CampaignEvent is an append-only lifecycle entry for one recipient.
type CampaignEvent struct {
	ID          int64           `db:"id" json:"id"`
	CampaignID  string          `db:"campaign_id" json:"campaign_id"`
	RecipientID string          `db:"recipient_id" json:"recipient_id"`
	EventType   string          `db:"event_type" json:"event_type"`
	EventData   json.RawMessage `db:"event_data" json:"event_data"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// EventData is the structured payload stored with an event.
type EventData struct {
	Attempt    int    `json:"attempt"`
	MessageID  string `json:"message_id,omitempty"`
	Error      string `json:"error,omitempty"`
	RetryCount *int   `json:"retry_count,omitempty"`
	WillRetry  *bool  `json:"will_retry,omitempty"`
}

// CampaignLog is a liveness marker written while a run is active.
type CampaignLog struct {
	ID         int64     `db:"id" json:"id"`
	CampaignID string    `db:"campaign_id" json:"campaign_id"`
	Message    string    `db:"message" json:"message"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// HeartbeatMessage is the message of liveness log rows.
const HeartbeatMessage = "heartbeat"
