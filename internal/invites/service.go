// Package invites creates invite codes and validates them before a photo may be submitted.
package invites

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aliuyar1234/holidaytree/internal/audit"
	"github.com/aliuyar1234/holidaytree/internal/domain"
	"github.com/aliuyar1234/holidaytree/internal/live"
	"github.com/aliuyar1234/holidaytree/internal/metrics"
	"github.com/aliuyar1234/holidaytree/internal/store"
	"github.com/aliuyar1234/holidaytree/internal/validation"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTTL   = 7 * 24 * time.Hour
	codeAttempts = 3

	// maxCodeLength bounds what Validate will look up.
	maxCodeLength = 64
)

var (
	// ErrMissingInvite is returned when no invite code was supplied
	ErrMissingInvite = errors.New("no invite code provided")

	// ErrInvalidInvite is returned when the code is malformed or unknown
	ErrInvalidInvite = errors.New("invalid invite code")

	ErrInviteExpired     = domain.ErrInviteExpired
	ErrInviteExhausted   = domain.ErrInviteExhausted
	ErrInviteAlreadyUsed = domain.ErrInviteAlreadyUsed

	// ErrInvalidMaxUses is returned when an invite is created with a non-positive use limit
	ErrInvalidMaxUses = errors.New("max uses must be between 1 and 100")
)

// Validation is the outcome of a successful invite check.
type Validation struct {
	Invite        domain.Invite `json:"invite"`
	RemainingUses int           `json:"remaining_uses"`
}

// Reader is the read side of the store Validate needs.
type Reader interface {
	GetInviteByCode(ctx context.Context, code string) (domain.Invite, error)
}

// Validate checks code against the stored invite at now. It never mutates the invite.
// The lookup is an exact match on the normalised code, so invites stored with codes
// outside the generator's alphabet still validate.
func Validate(ctx context.Context, r Reader, code string, now time.Time) (Validation, error) {
	code = validation.NormalizeInviteCode(code)
	if code == "" {
		return Validation{}, ErrMissingInvite
	}
	if len(code) > maxCodeLength {
		return Validation{}, ErrInvalidInvite
	}

	inv, err := r.GetInviteByCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			if verr := validation.ValidateInviteCode(code); verr != nil {
				log.Debug().Err(verr).Msg("Malformed invite code")
			}
			return Validation{}, ErrInvalidInvite
		}
		return Validation{}, fmt.Errorf("failed to look up invite: %w", err)
	}

	if err := inv.CheckUsable(now); err != nil {
		return Validation{}, err
	}
	return Validation{Invite: inv, RemainingUses: inv.RemainingUses()}, nil
}

// Options configures a Service.
type Options struct {
	// MaxUses applies to new invites that don't set their own limit.
	MaxUses int
	// TTL applies to new invites that don't set their own lifetime. Zero creates legacy
	// single-use invites.
	TTL     time.Duration
	BaseURL string
}

// Service owns invite creation and validation.
type Service struct {
	store   store.Store
	broker  live.Broker
	auditor *audit.Writer
	opts    Options
	now     func() time.Time
	newCode func() (string, error)
}

func NewService(st store.Store, broker live.Broker, auditor *audit.Writer, opts Options) *Service {
	if opts.MaxUses <= 0 {
		opts.MaxUses = domain.DefaultMaxUses
	}
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	return &Service{
		store:   st,
		broker:  broker,
		auditor: auditor,
		opts:    opts,
		now:     time.Now,
		newCode: GenerateCode,
	}
}

// Validate checks code at the current time and records the outcome.
func (s *Service) Validate(ctx context.Context, code string) (Validation, error) {
	v, err := Validate(ctx, s.store, code, s.now())
	metrics.InviteValidations.WithLabelValues(ResultLabel(err)).Inc()
	return v, err
}

// CreateOptions overrides the service defaults for one invite.
type CreateOptions struct {
	MaxUses int
	TTL     *time.Duration
}

// Create stores a new invite with a fresh random code.
func (s *Service) Create(ctx context.Context, opts CreateOptions) (domain.Invite, error) {
	maxUses := s.opts.MaxUses
	if opts.MaxUses != 0 {
		maxUses = opts.MaxUses
	}
	if maxUses < 1 || maxUses > 100 {
		return domain.Invite{}, ErrInvalidMaxUses
	}
	ttl := s.opts.TTL
	if opts.TTL != nil {
		ttl = *opts.TTL
	}

	inv := domain.Invite{ID: uuid.New()}
	if ttl > 0 {
		expiresAt := s.now().UTC().Add(ttl)
		inv.ExpiresAt = &expiresAt
		inv.MaxUses = &maxUses
	}

	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return domain.Invite{}, err
		}
		inv.Code = code

		created, err := s.store.CreateInvite(ctx, inv)
		if err == nil {
			metrics.InvitesCreated.Inc()
			if err := s.auditor.LogInviteCreated(ctx, created); err != nil {
				log.Error().Err(err).Msg("Failed to log audit event")
			}
			live.PublishAll(ctx, s.broker, live.TopicInvites)
			return created, nil
		}
		if errors.Is(err, store.ErrConflict) {
			// Code collision; retry.
			continue
		}
		return domain.Invite{}, fmt.Errorf("failed to create invite: %w", err)
	}

	return domain.Invite{}, fmt.Errorf("failed to create invite: code collision retry exhausted")
}

// List returns every invite, newest first.
func (s *Service) List(ctx context.Context) ([]domain.Invite, error) {
	return s.store.ListInvites(ctx)
}

// Link is the shareable submission URL for code.
func (s *Service) Link(code string) string {
	return s.opts.BaseURL + "/submit?invite=" + url.QueryEscape(code)
}

// Now is the service clock.
func (s *Service) Now() time.Time {
	return s.now()
}

// ResultLabel names a validation outcome for metrics.
func ResultLabel(err error) string {
	switch {
	case err == nil:
		return "valid"
	case errors.Is(err, ErrMissingInvite):
		return "missing"
	case errors.Is(err, ErrInvalidInvite):
		return "invalid"
	case errors.Is(err, ErrInviteExpired):
		return "expired"
	case errors.Is(err, ErrInviteExhausted):
		return "exhausted"
	case errors.Is(err, ErrInviteAlreadyUsed):
		return "already_used"
	default:
		return "error"
	}
}

// Message is the user-facing text for a validation failure.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrMissingInvite):
		return "No invite code provided"
	case errors.Is(err, ErrInvalidInvite):
		return "Invalid invite code"
	case errors.Is(err, ErrInviteExpired):
		return "This invite link has expired"
	case errors.Is(err, ErrInviteExhausted):
		return "This invite has reached its maximum number of uses"
	case errors.Is(err, ErrInviteAlreadyUsed):
		return "This invite has already been used"
	default:
		return "Error validating invite code"
	}
}

// IsInviteError reports whether err is one of the terminal invite outcomes.
func IsInviteError(err error) bool {
	return errors.Is(err, ErrMissingInvite) ||
		errors.Is(err, ErrInvalidInvite) ||
		errors.Is(err, ErrInviteExpired) ||
		errors.Is(err, ErrInviteExhausted) ||
		errors.Is(err, ErrInviteAlreadyUsed)
}
