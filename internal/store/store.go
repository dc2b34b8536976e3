// Package store defines the document collections the application persists to.
// Drivers live under store/postgres and store/sqlite.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/aliuyar1234/holidaytree/internal/domain"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a document does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write violates a uniqueness or state precondition
	ErrConflict = errors.New("conflict")
)

// InviteUse stamps who consumed an invite and when.
type InviteUse struct {
	Name  string
	Phone string
	At    time.Time
}

// SubmissionFilter narrows a submission listing. The zero value lists everything.
type SubmissionFilter struct {
	Status domain.Status
}

// SubmissionUpdate is a conditional moderation write. It applies only when the current
// status is one of From; otherwise the driver returns ErrConflict.
type SubmissionUpdate struct {
	From          []domain.Status
	Status        domain.Status
	Position      domain.Position
	SetReviewedAt bool
	At            time.Time
}

// Store is the persistence boundary for invites, submissions and the audit trail.
type Store interface {
	Ping(ctx context.Context) error
	Close() error

	// CreateInvite inserts inv and returns it with its server-assigned creation time.
	// A duplicate code yields ErrConflict.
	CreateInvite(ctx context.Context, inv domain.Invite) (domain.Invite, error)
	GetInvite(ctx context.Context, id uuid.UUID) (domain.Invite, error)
	GetInviteByCode(ctx context.Context, code string) (domain.Invite, error)
	// ListInvites returns all invites, newest first.
	ListInvites(ctx context.Context) ([]domain.Invite, error)

	// CreateSubmission inserts sub as pending and consumes one use of its invite in a single
	// transaction. The invite row is locked and re-checked with CheckUsable(use.At), so the
	// invite's errors are returned unchanged when it is no longer usable.
	CreateSubmission(ctx context.Context, sub domain.Submission, use InviteUse) (domain.Submission, domain.Invite, error)
	GetSubmission(ctx context.Context, id uuid.UUID) (domain.Submission, error)
	// ListSubmissions returns matching submissions, newest first.
	ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]domain.Submission, error)
	UpdateSubmission(ctx context.Context, id uuid.UUID, update SubmissionUpdate) (domain.Submission, error)
	// ImageKeyInUse reports whether any submission references the blob key.
	ImageKeyInUse(ctx context.Context, key string) (bool, error)

	AppendAudit(ctx context.Context, ev domain.AuditEvent) error
}
