package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/aliuyar1234/holidaytree/internal/domain"
	"github.com/aliuyar1234/holidaytree/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const submissionColumns = `id, invite_id, name, phone, image_url, image_key, status, position, created_at, reviewed_at`

func scanSubmission(row pgx.Row) (domain.Submission, error) {
	var sub domain.Submission
	var position *string
	err := row.Scan(
		&sub.ID,
		&sub.InviteID,
		&sub.Name,
		&sub.Phone,
		&sub.ImageURL,
		&sub.ImageKey,
		&sub.Status,
		&position,
		&sub.CreatedAt,
		&sub.ReviewedAt,
	)
	if position != nil {
		sub.Position = domain.Position(*position)
	}
	return sub, err
}

func nullPosition(p domain.Position) *string {
	if p == domain.PositionAuto {
		return nil
	}
	s := string(p)
	return &s
}

func (s *Store) CreateSubmission(ctx context.Context, sub domain.Submission, use store.InviteUse) (domain.Submission, domain.Invite, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Submission{}, domain.Invite{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	inv, err := scanInvite(tx.QueryRow(ctx, `
		SELECT `+inviteColumns+`
		FROM invites
		WHERE id = $1
		FOR UPDATE
	`, sub.InviteID))
	if err != nil {
		return domain.Submission{}, domain.Invite{}, mapNoRows(err)
	}
	if err := inv.CheckUsable(use.At); err != nil {
		return domain.Submission{}, domain.Invite{}, err
	}

	created, err := scanSubmission(tx.QueryRow(ctx, `
		INSERT INTO submissions (id, invite_id, name, phone, image_url, image_key, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+submissionColumns,
		sub.ID, sub.InviteID, sub.Name, sub.Phone, sub.ImageURL, sub.ImageKey, domain.StatusPending,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Submission{}, domain.Invite{}, store.ErrConflict
		}
		return domain.Submission{}, domain.Invite{}, fmt.Errorf("failed to create submission: %w", err)
	}

	updated, err := scanInvite(tx.QueryRow(ctx, `
		UPDATE invites
		SET use_count = use_count + 1,
		    used_by = $2,
		    used_by_phone = $3,
		    last_used_at = NOW(),
		    used_at = CASE WHEN expires_at IS NULL THEN NOW() ELSE used_at END
		WHERE id = $1
		RETURNING `+inviteColumns,
		inv.ID, use.Name, use.Phone,
	))
	if err != nil {
		return domain.Submission{}, domain.Invite{}, fmt.Errorf("failed to record invite use: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Submission{}, domain.Invite{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return created, updated, nil
}

func (s *Store) GetSubmission(ctx context.Context, id uuid.UUID) (domain.Submission, error) {
	sub, err := scanSubmission(s.pool.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id))
	if err != nil {
		return domain.Submission{}, mapNoRows(err)
	}
	return sub, nil
}

func (s *Store) ListSubmissions(ctx context.Context, filter store.SubmissionFilter) ([]domain.Submission, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+submissionColumns+`
		FROM submissions
		WHERE ($1::text = '' OR status = $1::text)
		ORDER BY created_at DESC, id
	`, string(filter.Status))
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
	from := make([]string, 0, len(update.From))
	for _, st := range update.From {
		from = append(from, string(st))
	}

	sub, err := scanSubmission(s.pool.QueryRow(ctx, `
		UPDATE submissions
		SET status = $3,
		    position = $4,
		    reviewed_at = CASE WHEN $5::boolean THEN $6::timestamptz ELSE reviewed_at END
		WHERE id = $1
		  AND status = ANY($2)
		RETURNING `+submissionColumns,
		id, from, update.Status, nullPosition(update.Position), update.SetReviewedAt, update.At,
	))
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Submission{}, fmt.Errorf("failed to update submission: %w", err)
	}

	// Distinguish a missing row from a failed status precondition.
	if _, err := s.GetSubmission(ctx, id); err != nil {
		return domain.Submission{}, err
	}
	return domain.Submission{}, store.ErrConflict
}

func (s *Store) ImageKeyInUse(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM submissions WHERE image_key = $1)`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to look up image key: %w", err)
	}
	return exists, nil
}
