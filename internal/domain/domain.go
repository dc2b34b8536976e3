package domain

import (
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxUses applies to expiring invites that carry no explicit limit.
const DefaultMaxUses = 3

var (
	// ErrInviteExpired is returned when an expiring invite is past its expiry time
	ErrInviteExpired = errors.New("invite expired")

	// ErrInviteExhausted is returned when an invite has reached its maximum number of uses
	ErrInviteExhausted = errors.New("invite has reached its maximum number of uses")

	// ErrInviteAlreadyUsed is returned when a legacy single-use invite was already consumed
	ErrInviteAlreadyUsed = errors.New("invite already used")

	// ErrInvalidPosition is returned for a tree position outside the known slots
	ErrInvalidPosition = errors.New("invalid tree position")
)

// Status is the moderation state of a submission.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// CanTransitionTo reports whether moderation may move a submission from s to next.
// Nothing ever moves back to pending.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusApproved || next == StatusRejected
	case StatusApproved:
		return next == StatusRejected
	default:
		return false
	}
}

// Position is an ornament slot on the tree. The empty position means automatic placement.
type Position string

const (
	PositionAuto Position = ""
	PositionStar Position = "star"

	// OrnamentSlots is the number of numbered ornament positions below the star.
	OrnamentSlots = 13
)

// Positions returns every pinnable position in display order.
func Positions() []Position {
	out := make([]Position, 0, OrnamentSlots+1)
	out = append(out, PositionStar)
	for i := 1; i <= OrnamentSlots; i++ {
		out = append(out, Position(strconv.Itoa(i)))
	}
	return out
}

// ParsePosition validates a position string.
func ParsePosition(s string) (Position, error) {
	switch s {
	case "", "auto":
		return PositionAuto, nil
	case string(PositionStar):
		return PositionStar, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > OrnamentSlots || strconv.Itoa(n) != s {
		return PositionAuto, ErrInvalidPosition
	}
	return Position(s), nil
}

// Label returns the human readable name of the position.
func (p Position) Label() string {
	switch p {
	case PositionAuto:
		return "Auto"
	case PositionStar:
		return "Star"
	case "1":
		return "Ornament 1 (Top)"
	default:
		return "Ornament " + string(p)
	}
}

// Invite is a shareable code permitting a bounded number of photo submissions.
// Legacy invites have no ExpiresAt or MaxUses and are consumed once via UsedAt.
type Invite struct {
	ID          uuid.UUID  `json:"id"`
	Code        string     `json:"code"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	MaxUses     *int       `json:"max_uses,omitempty"`
	UseCount    int        `json:"use_count"`
	UsedBy      *string    `json:"used_by,omitempty"`
	UsedByPhone *string    `json:"used_by_phone,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
}

// IsLegacy reports whether the invite uses the single-use shape.
func (i Invite) IsLegacy() bool {
	return i.ExpiresAt == nil
}

// EffectiveMaxUses returns the use limit, applying the default when unset.
func (i Invite) EffectiveMaxUses() int {
	if i.IsLegacy() {
		return 1
	}
	if i.MaxUses == nil || *i.MaxUses <= 0 {
		return DefaultMaxUses
	}
	return *i.MaxUses
}

// CheckUsable returns nil when the invite may be used at now.
// Exhaustion is reported even for invites that have also expired.
func (i Invite) CheckUsable(now time.Time) error {
	if i.IsLegacy() {
		if i.UsedAt != nil {
			return ErrInviteAlreadyUsed
		}
		return nil
	}
	if now.After(*i.ExpiresAt) {
		if i.UseCount >= i.EffectiveMaxUses() {
			return ErrInviteExhausted
		}
		return ErrInviteExpired
	}
	if i.UseCount >= i.EffectiveMaxUses() {
		return ErrInviteExhausted
	}
	return nil
}

// RemainingUses returns how many more submissions the invite permits, ignoring expiry.
func (i Invite) RemainingUses() int {
	if i.IsLegacy() {
		if i.UsedAt != nil {
			return 0
		}
		return 1
	}
	remaining := i.EffectiveMaxUses() - i.UseCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Submission is one user-submitted photo plus its moderation state.
type Submission struct {
	ID         uuid.UUID  `json:"id"`
	InviteID   uuid.UUID  `json:"invite_id"`
	Name       string     `json:"name"`
	Phone      string     `json:"phone"`
	ImageURL   string     `json:"image_url"`
	ImageKey   string     `json:"-"`
	Status     Status     `json:"status"`
	Position   Position   `json:"position,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
}

// AuditEvent is an append-only record of an administrative or submission action.
type AuditEvent struct {
	ID        uuid.UUID      `json:"id"`
	Action    string         `json:"action"`
	SubjectID uuid.UUID      `json:"subject_id"`
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
