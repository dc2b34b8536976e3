package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aliuyar1234/holidaytree/internal/domain"
	"github.com/aliuyar1234/holidaytree/internal/store"
	"github.com/google/uuid"
)

const inviteColumns = `id, code, created_at, expires_at, max_uses, use_count, used_by, used_by_phone, last_used_at, used_at`

func scanInvite(row rowScanner) (domain.Invite, error) {
	var (
		inv                           domain.Invite
		id                            string
		createdAt                     int64
		expiresAt, lastUsedAt, usedAt sql.NullInt64
		maxUses                       sql.NullInt64
		usedBy, usedByPhone           sql.NullString
	)
	if err := row.Scan(&id, &inv.Code, &createdAt, &expiresAt, &maxUses, &inv.UseCount, &usedBy, &usedByPhone, &lastUsedAt, &usedAt); err != nil {
		return domain.Invite{}, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return domain.Invite{}, fmt.Errorf("invalid invite id %q: %w", id, err)
	}
	inv.ID = parsed
	inv.CreatedAt = fromMillis(createdAt)
	inv.ExpiresAt = timePtr(expiresAt)
	if maxUses.Valid {
		n := int(maxUses.Int64)
		inv.MaxUses = &n
	}
	inv.UsedBy = stringPtr(usedBy)
	inv.UsedByPhone = stringPtr(usedByPhone)
	inv.LastUsedAt = timePtr(lastUsedAt)
	inv.UsedAt = timePtr(usedAt)
	return inv, nil
}

func (s *Store) CreateInvite(ctx context.Context, inv domain.Invite) (domain.Invite, error) {
	var maxUses sql.NullInt64
	if inv.MaxUses != nil {
		maxUses = sql.NullInt64{Int64: int64(*inv.MaxUses), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invites (id, code, created_at, expires_at, max_uses, use_count)
		VALUES (?, ?, ?, ?, ?, 0)
	`, inv.ID.String(), inv.Code, toMillis(s.now()), nullMillis(inv.ExpiresAt), maxUses)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Invite{}, store.ErrConflict
		}
		return domain.Invite{}, fmt.Errorf("failed to create invite: %w", err)
	}
	return s.GetInvite(ctx, inv.ID)
}

func (s *Store) GetInvite(ctx context.Context, id uuid.UUID) (domain.Invite, error) {
	inv, err := scanInvite(s.db.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM invites WHERE id = ?`, id.String()))
	if err != nil {
		return domain.Invite{}, mapNoRows(err)
	}
	return inv, nil
}

func (s *Store) GetInviteByCode(ctx context.Context, code string) (domain.Invite, error) {
	inv, err := scanInvite(s.db.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM invites WHERE code = ?`, code))
	if err != nil {
		return domain.Invite{}, mapNoRows(err)
	}
	return inv, nil
}

func (s *Store) ListInvites(ctx context.Context) ([]domain.Invite, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+inviteColumns+` FROM invites ORDER BY created_at DESC, rowid DESC`)
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
