// Package postgres implements store.Store on PostgreSQL via pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aliuyar1234/holidaytree/internal/domain"
	"github.com/aliuyar1234/holidaytree/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Store is a store.Store backed by a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// New wraps an already connected and migrated pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) AppendAudit(ctx context.Context, ev domain.AuditEvent) error {
	meta := []byte("{}")
	if ev.Meta != nil {
		b, err := json.Marshal(ev.Meta)
		if err != nil {
			return fmt.Errorf("failed to marshal audit meta: %w", err)
		}
		meta = b
	}

	subject := uuid.NullUUID{UUID: ev.SubjectID, Valid: ev.SubjectID != uuid.Nil}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_log (id, action, subject_id, meta)
		VALUES ($1, $2, $3, $4)
	`, ev.ID, ev.Action, subject, meta)
	if err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}
