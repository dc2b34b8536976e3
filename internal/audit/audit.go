package audit

import (
	"context"
	"time"

	"github.com/aliuyar1234/holidaytree/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	EventAdminLogin           = "admin.login"
	EventAdminLoginFailed     = "admin.login_failed"
	EventInviteCreated        = "invite.created"
	EventSubmissionCreated    = "submission.created"
	EventSubmissionApproved   = "submission.approved"
	EventSubmissionRejected   = "submission.rejected"
	EventSubmissionRevoked    = "submission.revoked"
	EventSubmissionPositioned = "submission.position_changed"
)

// Appender persists audit events. store.Store satisfies it.
type Appender interface {
	AppendAudit(ctx context.Context, ev domain.AuditEvent) error
}

// Writer provides methods to write audit log entries.
type Writer struct {
	store Appender
	now   func() time.Time
}

func NewWriter(store Appender) *Writer {
	return &Writer{store: store, now: time.Now}
}

// LogParams contains parameters for logging an audit event.
type LogParams struct {
	SubjectID uuid.UUID
	Action    string
	Meta      map[string]any
}

func (w *Writer) Log(ctx context.Context, params LogParams) error {
	if w == nil {
		return nil
	}

	ev := domain.AuditEvent{
		ID:        uuid.New(),
		Action:    params.Action,
		SubjectID: params.SubjectID,
		Meta:      params.Meta,
		CreatedAt: w.now().UTC(),
	}
	if err := w.store.AppendAudit(ctx, ev); err != nil {
		log.Error().Err(err).Str("action", params.Action).Msg("Failed to write audit log")
		return err
	}

	log.Info().
		Str("action", params.Action).
		Str("subject_id", params.SubjectID.String()).
		Interface("meta", params.Meta).
		Msg("Audit event logged")

	return nil
}

func (w *Writer) LogAdminLogin(ctx context.Context, ip string) error {
	return w.Log(ctx, LogParams{
		Action: EventAdminLogin,
		Meta:   map[string]any{"ip": ip},
	})
}

func (w *Writer) LogAdminLoginFailed(ctx context.Context, ip string) error {
	return w.Log(ctx, LogParams{
		Action: EventAdminLoginFailed,
		Meta:   map[string]any{"ip": ip},
	})
}

func (w *Writer) LogInviteCreated(ctx context.Context, inv domain.Invite) error {
	meta := map[string]any{
		"code":     inv.Code,
		"max_uses": inv.EffectiveMaxUses(),
	}
	if inv.ExpiresAt != nil {
		meta["expires_at"] = inv.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return w.Log(ctx, LogParams{
		SubjectID: inv.ID,
		Action:    EventInviteCreated,
		Meta:      meta,
	})
}

func (w *Writer) LogSubmissionCreated(ctx context.Context, sub domain.Submission, inv domain.Invite) error {
	return w.Log(ctx, LogParams{
		SubjectID: sub.ID,
		Action:    EventSubmissionCreated,
		Meta: map[string]any{
			"invite_id":      inv.ID.String(),
			"invite_code":    inv.Code,
			"name":           sub.Name,
			"remaining_uses": inv.RemainingUses(),
		},
	})
}

// LogModeration records a status or position change made from the console.
func (w *Writer) LogModeration(ctx context.Context, action string, before, after domain.Submission) error {
	return w.Log(ctx, LogParams{
		SubjectID: after.ID,
		Action:    action,
		Meta: map[string]any{
			"previous_status":   string(before.Status),
			"status":            string(after.Status),
			"previous_position": string(before.Position),
			"position":          string(after.Position),
		},
	})
}
