package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/aliuyar1234/holidaytree/internal/domain"
	"github.com/aliuyar1234/holidaytree/internal/store"
	"github.com/google/uuid"
)

const submissionColumns = `id, invite_id, name, phone, image_url, image_key, status, position, created_at, reviewed_at`

func scanSubmission(row rowScanner) (domain.Submission, error) {
	var (
		sub          domain.Submission
		id, inviteID string
		status       string
		position     sql.NullString
		createdAt    int64
		reviewedAt   sql.NullInt64
	)
	if err := row.Scan(&id, &inviteID, &sub.Name, &sub.Phone, &sub.ImageURL, &sub.ImageKey, &status, &position, &createdAt, &reviewedAt); err != nil {
		return domain.Submission{}, err
	}

	var err error
	if sub.ID, err = uuid.Parse(id); err != nil {
		return domain.Submission{}, fmt.Errorf("invalid submission id %q: %w", id, err)
	}
	if sub.InviteID, err = uuid.Parse(inviteID); err != nil {
		return domain.Submission{}, fmt.Errorf("invalid invite id %q: %w", inviteID, err)
	}
	sub.Status = domain.Status(status)
	if position.Valid {
		sub.Position = domain.Position(position.String)
	}
	sub.CreatedAt = fromMillis(createdAt)
	sub.ReviewedAt = timePtr(reviewedAt)
	return sub, nil
}

func nullPosition(p domain.Position) sql.NullString {
	if p == domain.PositionAuto {
		return sql.NullString{}
	}
	return sql.NullString{String: string(p), Valid: true}
}

func (s *Store) CreateSubmission(ctx context.Context, sub domain.Submission, use store.InviteUse) (domain.Submission, domain.Invite, error) {
	var updated domain.Invite
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		inv, err := scanInvite(tx.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM invites WHERE id = ?`, sub.InviteID.String()))
		if err != nil {
			return mapNoRows(err)
		}
		if err := inv.CheckUsable(use.At); err != nil {
			return err
		}

		now := toMillis(s.now())
		_, err = tx.ExecContext(ctx, `
			INSERT INTO submissions (id, invite_id, name, phone, image_url, image_key, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, sub.ID.String(), sub.InviteID.String(), sub.Name, sub.Phone, sub.ImageURL, sub.ImageKey, string(domain.StatusPending), now)
		if err != nil {
			if isUniqueViolation(err) {
				return store.ErrConflict
			}
			return fmt.Errorf("failed to create submission: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE invites
			SET use_count = use_count + 1,
			    used_by = ?,
			    used_by_phone = ?,
			    last_used_at = ?,
			    used_at = CASE WHEN expires_at IS NULL THEN ? ELSE used_at END
			WHERE id = ?
		`, use.Name, use.Phone, now, now, inv.ID.String())
		if err != nil {
			return fmt.Errorf("failed to record invite use: %w", err)
		}

		updated, err = scanInvite(tx.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM invites WHERE id = ?`, inv.ID.String()))
		return err
	})
	if err != nil {
		return domain.Submission{}, domain.Invite{}, err
	}

	created, err := s.GetSubmission(ctx, sub.ID)
	if err != nil {
		return domain.Submission{}, domain.Invite{}, err
	}
	return created, updated, nil
}

func (s *Store) GetSubmission(ctx context.Context, id uuid.UUID) (domain.Submission, error) {
	sub, err := scanSubmission(s.db.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id.String()))
	if err != nil {
		return domain.Submission{}, mapNoRows(err)
	}
	return sub, nil
}

func (s *Store) ListSubmissions(ctx context.Context, filter store.SubmissionFilter) ([]domain.Submission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+submissionColumns+`
		FROM submissions
		WHERE (? = '' OR status = ?)
		ORDER BY created_at DESC, rowid DESC
	`, string(filter.Status), string(filter.Status))
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	subs := []domain.Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating submissions: %w", err)
	}
	return subs, nil
}

func (s *Store) UpdateSubmission(ctx context.Context, id uuid.UUID, update store.SubmissionUpdate) (domain.Submission, error) {
	if len(update.From) == 0 {
		return domain.Submission{}, store.ErrConflict
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(update.From)), ",")
	args := []any{string(update.Status), nullPosition(update.Position), update.SetReviewedAt, toMillis(update.At), id.String()}
	for _, st := range update.From {
		args = append(args, string(st))
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE submissions
		SET status = ?,
		    position = ?,
		    reviewed_at = CASE WHEN ? THEN ? ELSE reviewed_at END
		WHERE id = ?
		  AND status IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("failed to update submission: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return domain.Submission{}, fmt.Errorf("failed to get rows affected: %w", err)
	}

	sub, err := s.GetSubmission(ctx, id)
	if err != nil {
		return domain.Submission{}, err
	}
	if n == 0 {
		return domain.Submission{}, store.ErrConflict
	}
	return sub, nil
}

func (s *Store) ImageKeyInUse(ctx context.Context, key string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM submissions WHERE image_key = ? LIMIT 1`, key).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up image key: %w", err)
	}
	return true, nil
}
