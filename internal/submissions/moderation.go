package submissions

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/aliuyar1234/holidaytree/internal/audit"
	"github.com/aliuyar1234/holidaytree/internal/domain"
	"github.com/aliuyar1234/holidaytree/internal/live"
	"github.com/aliuyar1234/holidaytree/internal/metrics"
	"github.com/aliuyar1234/holidaytree/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	// ErrSubmissionNotFound is returned when a submission does not exist
	ErrSubmissionNotFound = errors.New("submission not found")

	// ErrInvalidTransition is returned when the submission's status does not allow the action
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrConfirmationRequired is returned when a revoke was not confirmed
	ErrConfirmationRequired = errors.New("revoking an approved photo must be confirmed")

	ErrInvalidPosition = domain.ErrInvalidPosition
)

// Moderator applies console actions to submissions.
type Moderator struct {
	store   store.Store
	broker  live.Broker
	auditor *audit.Writer
	now     func() time.Time
}

func NewModerator(st store.Store, broker live.Broker, auditor *audit.Writer) *Moderator {
	return &Moderator{store: st, broker: broker, auditor: auditor, now: time.Now}
}

// Approve puts a pending submission on the tree at position.
func (m *Moderator) Approve(ctx context.Context, id uuid.UUID, position domain.Position) (domain.Submission, error) {
	pos, err := domain.ParsePosition(string(position))
	if err != nil {
		return domain.Submission{}, ErrInvalidPosition
	}
	return m.apply(ctx, id, audit.EventSubmissionApproved, store.SubmissionUpdate{
		From:          []domain.Status{domain.StatusPending},
		Status:        domain.StatusApproved,
		Position:      pos,
		SetReviewedAt: true,
	})
}

// Reject declines a pending submission.
func (m *Moderator) Reject(ctx context.Context, id uuid.UUID) (domain.Submission, error) {
	return m.apply(ctx, id, audit.EventSubmissionRejected, store.SubmissionUpdate{
		From:          []domain.Status{domain.StatusPending},
		Status:        domain.StatusRejected,
		SetReviewedAt: true,
	})
}

// Revoke takes an approved submission off the tree. confirmed must be true.
func (m *Moderator) Revoke(ctx context.Context, id uuid.UUID, confirmed bool) (domain.Submission, error) {
	if !confirmed {
		return domain.Submission{}, ErrConfirmationRequired
	}
	return m.apply(ctx, id, audit.EventSubmissionRevoked, store.SubmissionUpdate{
		From:          []domain.Status{domain.StatusApproved},
		Status:        domain.StatusRejected,
		SetReviewedAt: true,
	})
}

// SetPosition moves an approved submission to another slot. reviewedAt is left alone.
func (m *Moderator) SetPosition(ctx context.Context, id uuid.UUID, position domain.Position) (domain.Submission, error) {
	pos, err := domain.ParsePosition(string(position))
	if err != nil {
		return domain.Submission{}, ErrInvalidPosition
	}
	return m.apply(ctx, id, audit.EventSubmissionPositioned, store.SubmissionUpdate{
		From:     []domain.Status{domain.StatusApproved},
		Status:   domain.StatusApproved,
		Position: pos,
	})
}

func (m *Moderator) apply(ctx context.Context, id uuid.UUID, action string, update store.SubmissionUpdate) (domain.Submission, error) {
	before, err := m.store.GetSubmission(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Submission{}, ErrSubmissionNotFound
		}
		return domain.Submission{}, fmt.Errorf("failed to load submission: %w", err)
	}
	if !slices.Contains(update.From, before.Status) {
		return domain.Submission{}, fmt.Errorf("%w: %s submission cannot be %s", ErrInvalidTransition, before.Status, actionVerb(action))
	}

	update.At = m.now().UTC()
	after, err := m.store.UpdateSubmission(ctx, id, update)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return domain.Submission{}, ErrSubmissionNotFound
		case errors.Is(err, store.ErrConflict):
			// Another moderator changed it first.
			return domain.Submission{}, ErrInvalidTransition
		}
		return domain.Submission{}, fmt.Errorf("failed to update submission: %w", err)
	}

	metrics.ModerationActions.WithLabelValues(actionVerb(action)).Inc()
	if err := m.auditor.LogModeration(ctx, action, before, after); err != nil {
		log.Error().Err(err).Msg("Failed to log audit event")
	}
	live.PublishAll(ctx, m.broker, live.TopicSubmissions)
	return after, nil
}

func actionVerb(action string) string {
	switch action {
	case audit.EventSubmissionApproved:
		return "approved"
	case audit.EventSubmissionRejected:
		return "rejected"
	case audit.EventSubmissionRevoked:
		return "revoked"
	default:
		return "positioned"
	}
}

// List returns submissions with the given status, newest first. An empty status lists all.
func (m *Moderator) List(ctx context.Context, status domain.Status) ([]domain.Submission, error) {
	if status != "" && !status.IsValid() {
		return nil, fmt.Errorf("unknown status %q", status)
	}
	return m.store.ListSubmissions(ctx, store.SubmissionFilter{Status: status})
}

// Approved returns the photos on the tree, most recently approved first.
func (m *Moderator) Approved(ctx context.Context) ([]domain.Submission, error) {
	subs, err := m.store.ListSubmissions(ctx, store.SubmissionFilter{Status: domain.StatusApproved})
	if err != nil {
		return nil, err
	}
	SortByReview(subs)
	return subs, nil
}

// SortByReview orders subs by reviewedAt, newest first. Unreviewed entries sort last.
func SortByReview(subs []domain.Submission) {
	slices.SortStableFunc(subs, func(a, b domain.Submission) int {
		return cmp.Compare(reviewedUnix(b), reviewedUnix(a))
	})
}

func reviewedUnix(s domain.Submission) int64 {
	if s.ReviewedAt == nil {
		return 0
	}
	return s.ReviewedAt.UnixNano()
}
