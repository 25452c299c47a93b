package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	appErrors "github.com/unclebandit/mailcampaign-sender/internal/errors"
	"github.com/unclebandit/mailcampaign-sender/internal/model"
)

// CredentialRepositoryInterface reads and updates sending-identity tokens.
type CredentialRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*model.Credential, error)
	UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error
}

type CredentialRepository struct {
	DB *sql.DB
}

func (r *CredentialRepository) GetByID(ctx context.Context, id string) (*model.Credential, error) {
	query := `
        SELECT id, COALESCE(name, ''), COALESCE(email, ''), access_token, refresh_token, expires_at
        FROM user_tokens
        WHERE id=$1
    `
	var c model.Credential
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.Email, &c.AccessToken, &c.RefreshToken, &c.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidID(err) {
			return nil, appErrors.NewCredentialNotFound(id)
		}
		return nil, err
	}
	return &c, nil
}

// UpdateTokens replaces all three token fields in one statement.
func (r *CredentialRepository) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error {
	query := `
        UPDATE user_tokens
        SET access_token=$1, refresh_token=$2, expires_at=$3, updated_at=NOW()
        WHERE id=$4
    `
	res, err := r.DB.ExecContext(ctx, query, accessToken, refreshToken, expiresAt, id)
	if isInvalidID(err) {
		return appErrors.NewCredentialNotFound(id)
	}
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return appErrors.NewCredentialNotFound(id)
	}
	return nil
}

var _ CredentialRepositoryInterface = (*CredentialRepository)(nil)
