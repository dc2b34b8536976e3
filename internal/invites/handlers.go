package invites

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aliuyar1234/holidaytree/internal/apperrors"
	"github.com/aliuyar1234/holidaytree/internal/domain"
	"github.com/rs/zerolog/log"
)

// View is an invite as shown to admins.
type View struct {
	domain.Invite
	Link          string `json:"link"`
	RemainingUses int    `json:"remaining_uses"`
	State         string `json:"state"`
}

// State summarises whether inv can still be used at now.
func State(inv domain.Invite, now time.Time) string {
	switch err := inv.CheckUsable(now); {
	case err == nil:
		return "active"
	case errors.Is(err, ErrInviteExpired):
		return "expired"
	case errors.Is(err, ErrInviteExhausted):
		return "exhausted"
	default:
		return "used"
	}
}

// Views decorates invites for the console.
func (s *Service) Views(invites []domain.Invite) []View {
	now := s.now()
	out := make([]View, 0, len(invites))
	for _, inv := range invites {
		out = append(out, View{
			Invite:        inv,
			Link:          s.Link(inv.Code),
			RemainingUses: inv.RemainingUses(),
			State:         State(inv, now),
		})
	}
	return out
}

// WriteError maps invite failures onto the API error envelope. It reports whether err was one
// of them.
func WriteError(w http.ResponseWriter, r *http.Request, err error) bool {
	msg := Message(err)
	switch {
	case errors.Is(err, ErrMissingInvite):
		apperrors.WriteError(w, r, http.StatusBadRequest, "missing_invite", msg)
	case errors.Is(err, ErrInvalidInvite):
		apperrors.WriteError(w, r, http.StatusNotFound, "invalid_invite", msg)
	case errors.Is(err, ErrInviteExpired):
		apperrors.WriteGone(w, r, "invite_expired", msg)
	case errors.Is(err, ErrInviteExhausted):
		apperrors.WriteError(w, r, http.StatusConflict, "invite_exhausted", msg)
	case errors.Is(err, ErrInviteAlreadyUsed):
		apperrors.WriteError(w, r, http.StatusConflict, "invite_already_used", msg)
	default:
		return false
	}
	return true
}

type validateResponse struct {
	Code          string     `json:"code"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	RemainingUses int        `json:"remaining_uses"`
	Legacy        bool       `json:"legacy"`
}

// HandleValidate handles GET /api/v1/invites/validate?invite=CODE
func HandleValidate(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.Validate(r.Context(), r.URL.Query().Get("invite"))
		if err != nil {
			if WriteError(w, r, err) {
				return
			}
			log.Error().Err(err).Msg("Failed to validate invite")
			apperrors.WriteInternalError(w, r, Message(err))
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invite": validateResponse{
				Code:          v.Invite.Code,
				ExpiresAt:     v.Invite.ExpiresAt,
				RemainingUses: v.RemainingUses,
				Legacy:        v.Invite.IsLegacy(),
			},
		})
	}
}

// CreateRequest is the body of POST /api/v1/admin/invites. Omitted fields use the configured
// defaults; ttl_hours 0 creates a legacy single-use invite.
type CreateRequest struct {
	MaxUses  int  `json:"max_uses"`
	TTLHours *int `json:"ttl_hours"`
}

// Options converts the request into service options.
func (req CreateRequest) Options() (CreateOptions, error) {
	opts := CreateOptions{MaxUses: req.MaxUses}
	if req.TTLHours != nil {
		if *req.TTLHours < 0 || *req.TTLHours > 24*365 {
			return CreateOptions{}, errors.New("ttl_hours must be between 0 and 8760")
		}
		ttl := time.Duration(*req.TTLHours) * time.Hour
		opts.TTL = &ttl
	}
	return opts, nil
}

// HandleCreate handles POST /api/v1/admin/invites
func HandleCreate(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				apperrors.WriteBadRequest(w, r, "Invalid request body")
				return
			}
		}

		opts, err := req.Options()
		if err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		inv, err := svc.Create(r.Context(), opts)
		if err != nil {
			if errors.Is(err, ErrInvalidMaxUses) {
				apperrors.WriteBadRequest(w, r, err.Error())
				return
			}
			log.Error().Err(err).Msg("Failed to create invite")
			apperrors.WriteInternalError(w, r, "Failed to create invite")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"invite": svc.Views([]domain.Invite{inv})[0],
		})
	}
}

// HandleList handles GET /api/v1/admin/invites
func HandleList(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invites, err := svc.List(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("Failed to list invites")
			apperrors.WriteInternalError(w, r, "Failed to list invites")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invites": svc.Views(invites),
		})
	}
}
