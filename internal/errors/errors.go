// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSendingIdentity means the campaign has no user_token_id bound.
	ErrNoSendingIdentity = errors.New("campaign has no sending identity")

	// ErrRunInProgress means another run holds the campaign's run lock.
	ErrRunInProgress = errors.New("campaign send already in progress")
)

// ErrCampaignNotFound is returned when a campaign row does not exist
type ErrCampaignNotFound struct {
	CampaignID string
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %s not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id string) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrCredentialNotFound is returned when no user_tokens row exists for a sending identity.
type ErrCredentialNotFound struct {
	TokenID string
}

func (e *ErrCredentialNotFound) Error() string {
	return fmt.Sprintf("credential %s not found", e.TokenID)
}

func NewCredentialNotFound(id string) error {
	return &ErrCredentialNotFound{TokenID: id}
}

// ErrTokenRefresh wraps a failed refresh-token exchange.
type ErrTokenRefresh struct {
	TokenID string
	Err     error
}

func (e *ErrTokenRefresh) Error() string {
	return fmt.Sprintf("failed to refresh access token for %s: %v", e.TokenID, e.Err)
}

func (e *ErrTokenRefresh) Unwrap() error { return e.Err }

// ErrInvalidTransition is returned when a control action does not apply to the campaign's status.
type ErrInvalidTransition struct {
	CampaignID string
	From       string
	Action     string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("cannot %s campaign %s in status %s", e.Action, e.CampaignID, e.From)
}

func NewInvalidTransition(id, from, action string) error {
	return &ErrInvalidTransition{CampaignID: id, From: from, Action: action}
}

// IsNotFound reports whether err is a campaign or credential not-found error.
func IsNotFound(err error) bool {
	var c *ErrCampaignNotFound
	var t *ErrCredentialNotFound
	return errors.As(err, &c) || errors.As(err, &t)
}
