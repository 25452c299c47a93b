package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/unclebandit/mailcampaign-sender/internal/model"
)

// MemberRepositoryInterface defines methods used by the sender
type MemberRepositoryInterface interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]*model.Member, error)
}

// MemberRepository is the concrete implementation
type MemberRepository struct {
	DB *sql.DB
}

// GetByIDs loads every member in ids with a single query, keyed by id.
func (r *MemberRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*model.Member, error) {
	members := make(map[string]*model.Member, len(ids))
	if len(ids) == 0 {
		return members, nil
	}

	query := `
        SELECT id, COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(full_name, ''),
               COALESCE(email, ''), COALESCE(mobile, ''), COALESCE(company_name, ''),
               COALESCE(address, ''), COALESCE(country, '')
        FROM members
        WHERE id::text = ANY($1)
    `
	rows, err := r.DB.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var m model.Member
		if err := rows.Scan(&m.ID, &m.FirstName, &m.LastName, &m.FullName,
			&m.Email, &m.Mobile, &m.CompanyName, &m.Address, &m.Country); err != nil {
			return nil, err
		}
		members[m.ID] = &m
	}
	return members, rows.Err()
}

var _ MemberRepositoryInterface = (*MemberRepository)(nil)
