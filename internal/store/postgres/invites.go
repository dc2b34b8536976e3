package postgres

import (
	"context"
	"fmt"

	"github.com/aliuyar1234/holidaytree/internal/domain"
	"github.com/aliuyar1234/holidaytree/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const inviteColumns = `id, code, created_at, expires_at, max_uses, use_count, used_by, used_by_phone, last_used_at, used_at`

func scanInvite(row pgx.Row) (domain.Invite, error) {
	var inv domain.Invite
	err := row.Scan(
		&inv.ID,
		&inv.Code,
		&inv.CreatedAt,
		&inv.ExpiresAt,
		&inv.MaxUses,
		&inv.UseCount,
		&inv.UsedBy,
		&inv.UsedByPhone,
		&inv.LastUsedAt,
		&inv.UsedAt,
	)
	return inv, err
}

func (s *Store) CreateInvite(ctx context.Context, inv domain.Invite) (domain.Invite, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO invites (id, code, expires_at, max_uses, use_count)
		VALUES ($1, $2, $3, $4, 0)
		RETURNING `+inviteColumns,
		inv.ID, inv.Code, inv.ExpiresAt, inv.MaxUses,
	)
	created, err := scanInvite(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Invite{}, store.ErrConflict
		}
		return domain.Invite{}, fmt.Errorf("failed to create invite: %w", err)
	}
	return created, nil
}

func (s *Store) GetInvite(ctx context.Context, id uuid.UUID) (domain.Invite, error) {
	inv, err := scanInvite(s.pool.QueryRow(ctx, `SELECT `+inviteColumns+` FROM invites WHERE id = $1`, id))
	if err != nil {
		return domain.Invite{}, mapNoRows(err)
	}
	return inv, nil
}

func (s *Store) GetInviteByCode(ctx context.Context, code string) (domain.Invite, error) {
	inv, err := scanInvite(s.pool.QueryRow(ctx, `SELECT `+inviteColumns+` FROM invites WHERE code = $1`, code))
	if err != nil {
		return domain.Invite{}, mapNoRows(err)
	}
	return inv, nil
}

func (s *Store) ListInvites(ctx context.Context) ([]domain.Invite, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+inviteColumns+` FROM invites ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	defer rows.Close()

	invites := []domain.Invite{}
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invite: %w", err)
		}
		invites = append(invites, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invites: %w", err)
	}
	return invites, nil
}
