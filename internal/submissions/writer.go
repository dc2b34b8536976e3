// Package submissions stores invited photo submissions and moderates them onto the tree.
package submissions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aliuyar1234/holidaytree/internal/audit"
	"github.com/aliuyar1234/holidaytree/internal/blob"
	"github.com/aliuyar1234/holidaytree/internal/domain"
	"github.com/aliuyar1234/holidaytree/internal/imaging"
	"github.com/aliuyar1234/holidaytree/internal/invites"
	"github.com/aliuyar1234/holidaytree/internal/live"
	"github.com/aliuyar1234/holidaytree/internal/metrics"
	"github.com/aliuyar1234/holidaytree/internal/store"
	"github.com/aliuyar1234/holidaytree/internal/validation"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// KeyPrefix is the blob prefix every uploaded photo lives under.
const KeyPrefix = "submissions/"

var (
	// ErrSubmissionFailed is returned when the photo could not be uploaded or recorded
	ErrSubmissionFailed = errors.New("failed to submit photo")
)

// ValidationError reports a form field the user has to correct.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Request is one encoded photo and the submitter's details.
type Request struct {
	InviteID uuid.UUID
	Name     string
	Phone    string
	Image    []byte
}

// Result is a stored submission plus the uses its invite has left.
type Result struct {
	Submission    domain.Submission `json:"submission"`
	RemainingUses int               `json:"remaining_uses"`
}

// Notifier is told about every new submission. Implementations handle their own failures.
type Notifier interface {
	NotifySubmission(ctx context.Context, sub domain.Submission, inv domain.Invite)
}

// CheckFields validates and trims the submitter's name and phone.
func CheckFields(name, phone string) (string, string, error) {
	name, err := validation.ValidateName(name)
	if err != nil {
		return "", "", &ValidationError{Field: "name", Message: fieldMessage(err)}
	}
	phone, err = validation.ValidatePhone(phone)
	if err != nil {
		return "", "", &ValidationError{Field: "phone", Message: fieldMessage(err)}
	}
	return name, phone, nil
}

func fieldMessage(err error) string {
	switch {
	case errors.Is(err, validation.ErrNameRequired):
		return "Please enter your name"
	case errors.Is(err, validation.ErrPhoneRequired):
		return "Please enter your phone number"
	case errors.Is(err, validation.ErrNameTooLong):
		return fmt.Sprintf("Name must be at most %d characters", validation.MaxNameLength)
	case errors.Is(err, validation.ErrPhoneTooLong):
		return fmt.Sprintf("Phone number must be at most %d characters", validation.MaxPhoneLength)
	default:
		return "Please enter a valid phone number"
	}
}

// Writer stores new submissions.
type Writer struct {
	store    store.Store
	blobs    blob.Store
	broker   live.Broker
	auditor  *audit.Writer
	notifier Notifier
	now      func() time.Time
}

// NewWriter creates a Writer. broker, auditor and notifier may be nil.
func NewWriter(st store.Store, blobs blob.Store, broker live.Broker, auditor *audit.Writer, notifier Notifier) *Writer {
	return &Writer{
		store:    st,
		blobs:    blobs,
		broker:   broker,
		auditor:  auditor,
		notifier: notifier,
		now:      time.Now,
	}
}

// Submit uploads the photo, records a pending submission and consumes one use of the invite.
// Field errors are returned as *ValidationError before anything is written.
func (w *Writer) Submit(ctx context.Context, req Request) (Result, error) {
	name, phone, err := CheckFields(req.Name, req.Phone)
	if err != nil {
		metrics.Submissions.WithLabelValues("invalid").Inc()
		return Result{}, err
	}
	if len(req.Image) == 0 {
		metrics.Submissions.WithLabelValues("invalid").Inc()
		return Result{}, &ValidationError{Field: "photo", Message: "Please select a photo"}
	}
	if req.InviteID == uuid.Nil {
		metrics.Submissions.WithLabelValues("invalid").Inc()
		return Result{}, invites.ErrMissingInvite
	}

	now := w.now().UTC()
	id := uuid.New()
	// The id suffix keeps two uploads on one invite in the same millisecond apart.
	key := fmt.Sprintf("%s%d-%s-%s.jpg", KeyPrefix, now.UnixMilli(), req.InviteID, id.String()[:8])

	url, err := w.blobs.Put(ctx, key, bytes.NewReader(req.Image), imaging.ContentType)
	if err != nil {
		metrics.Submissions.WithLabelValues("failed").Inc()
		return Result{}, fmt.Errorf("%w: upload: %w", ErrSubmissionFailed, err)
	}

	sub := domain.Submission{
		ID:       id,
		InviteID: req.InviteID,
		Name:     name,
		Phone:    phone,
		ImageURL: url,
		ImageKey: key,
		Status:   domain.StatusPending,
	}
	created, inv, err := w.store.CreateSubmission(ctx, sub, store.InviteUse{Name: name, Phone: phone, At: now})
	if err != nil {
		if delErr := w.blobs.Delete(context.WithoutCancel(ctx), key); delErr != nil && !errors.Is(delErr, blob.ErrNotFound) {
			log.Warn().Err(delErr).Str("key", key).Msg("Failed to remove upload of rejected submission")
		}
		switch {
		case errors.Is(err, store.ErrNotFound):
			err = invites.ErrInvalidInvite
		case invites.IsInviteError(err):
		default:
			err = fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
		}
		metrics.Submissions.WithLabelValues(resultLabel(err)).Inc()
		return Result{}, err
	}

	metrics.Submissions.WithLabelValues("created").Inc()
	log.Info().
		Str("submission_id", created.ID.String()).
		Str("invite_code", inv.Code).
		Int("remaining_uses", inv.RemainingUses()).
		Msg("Submission created")

	if err := w.auditor.LogSubmissionCreated(ctx, created, inv); err != nil {
		log.Error().Err(err).Msg("Failed to log audit event")
	}
	live.PublishAll(ctx, w.broker, live.TopicSubmissions, live.TopicInvites)
	if w.notifier != nil {
		go w.notifier.NotifySubmission(context.WithoutCancel(ctx), created, inv)
	}

	return Result{Submission: created, RemainingUses: inv.RemainingUses()}, nil
}

func resultLabel(err error) string {
	if errors.Is(err, ErrSubmissionFailed) {
		return "failed"
	}
	return "invite_" + invites.ResultLabel(err)
}
