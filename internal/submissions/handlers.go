package submissions

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aliuyar1234/holidaytree/internal/apperrors"
	"github.com/aliuyar1234/holidaytree/internal/domain"
	"github.com/aliuyar1234/holidaytree/internal/imaging"
	"github.com/aliuyar1234/holidaytree/internal/invites"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Message is the user-facing text for a submit or moderation failure.
func Message(err error) string {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Message
	case invites.IsInviteError(err):
		return invites.Message(err)
	case errors.Is(err, imaging.ErrCropIncomplete):
		return "Please crop your photo"
	case errors.Is(err, imaging.ErrEncodeFailed):
		return "We could not read that photo. Please try a different one."
	case errors.Is(err, ErrPhotoTooLarge), errors.Is(err, ErrUploadTooLarge):
		return "That photo is too large. Please choose a smaller one."
	case errors.Is(err, ErrMalformedUpload):
		return "The upload could not be read. Please try again."
	case errors.Is(err, ErrSubmissionNotFound):
		return "Submission not found"
	case errors.Is(err, ErrInvalidTransition):
		return "That action is not allowed for this submission's status"
	case errors.Is(err, ErrConfirmationRequired):
		return "Please confirm revoking this photo"
	case errors.Is(err, ErrInvalidPosition):
		return "Unknown tree position"
	default:
		return "Failed to submit photo. Please try again."
	}
}

// WriteError maps submit and moderation failures onto the API error envelope.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	if invites.WriteError(w, r, err) {
		return
	}

	msg := Message(err)
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		apperrors.WriteValidationError(w, r, verr.Field, msg)
	case errors.Is(err, imaging.ErrCropIncomplete):
		apperrors.WriteError(w, r, http.StatusBadRequest, "crop_incomplete", msg)
	case errors.Is(err, imaging.ErrEncodeFailed):
		apperrors.WriteUnprocessable(w, r, msg)
	case errors.Is(err, ErrPhotoTooLarge), errors.Is(err, ErrUploadTooLarge):
		apperrors.WritePayloadTooLarge(w, r, msg)
	case errors.Is(err, ErrMalformedUpload):
		apperrors.WriteBadRequest(w, r, msg)
	case errors.Is(err, ErrSubmissionNotFound):
		apperrors.WriteNotFound(w, r, msg)
	case errors.Is(err, ErrInvalidTransition):
		apperrors.WriteConflict(w, r, msg)
	case errors.Is(err, ErrConfirmationRequired):
		apperrors.WriteError(w, r, http.StatusBadRequest, "confirmation_required", msg)
	case errors.Is(err, ErrInvalidPosition):
		apperrors.WriteValidationError(w, r, "position", msg)
	default:
		log.Error().Err(err).Msg("Submission request failed")
		apperrors.WriteInternalError(w, r, msg)
	}
}

// HandleSubmit handles POST /api/v1/submissions
func HandleSubmit(in *Intake, limits UploadLimits) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		up, err := ParseUpload(w, r, limits)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		res, err := in.Accept(r.Context(), up)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, res)
	}
}

// HandlePhotos handles GET /api/v1/photos
func HandlePhotos(m *Moderator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subs, err := m.Approved(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("Failed to list approved photos")
			apperrors.WriteInternalError(w, r, "Failed to list photos")
			return
		}
		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"photos": PublicPhotos(subs)})
	}
}

// Photo is the public view of an approved submission. Phone numbers never leave the console.
type Photo struct {
	ID       uuid.UUID       `json:"id"`
	Name     string          `json:"name"`
	ImageURL string          `json:"image_url"`
	Position domain.Position `json:"position,omitempty"`
}

// PublicPhotos strips subs down to what the tree shows.
func PublicPhotos(subs []domain.Submission) []Photo {
	out := make([]Photo, 0, len(subs))
	for _, s := range subs {
		out = append(out, Photo{ID: s.ID, Name: s.Name, ImageURL: s.ImageURL, Position: s.Position})
	}
	return out
}

// HandleList handles GET /api/v1/admin/submissions?status=
func HandleList(m *Moderator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := domain.Status(r.URL.Query().Get("status"))
		if status != "" && !status.IsValid() {
			apperrors.WriteValidationError(w, r, "status", "status must be pending, approved or rejected")
			return
		}

		subs, err := m.List(r.Context(), status)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list submissions")
			apperrors.WriteInternalError(w, r, "Failed to list submissions")
			return
		}
		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"submissions": subs})
	}
}

// ActionRequest is the optional JSON body of the moderation endpoints.
type ActionRequest struct {
	Position string `json:"position"`
	Confirm  bool   `json:"confirm"`
}

// Action is a moderation operation addressed by the {action} route segment.
type Action string

const (
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionRevoke   Action = "revoke"
	ActionPosition Action = "position"
)

// Apply runs action against id.
func (m *Moderator) Apply(ctx context.Context, action Action, id uuid.UUID, req ActionRequest) (domain.Submission, error) {
	switch action {
	case ActionApprove, ActionPosition:
		pos, err := domain.ParsePosition(req.Position)
		if err != nil {
			return domain.Submission{}, err
		}
		if action == ActionApprove {
			return m.Approve(ctx, id, pos)
		}
		return m.SetPosition(ctx, id, pos)
	case ActionReject:
		return m.Reject(ctx, id)
	case ActionRevoke:
		return m.Revoke(ctx, id, req.Confirm)
	default:
		return domain.Submission{}, ErrInvalidTransition
	}
}

// HandleAction handles POST /api/v1/admin/submissions/{id}/{action}
func HandleAction(m *Moderator, action Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			apperrors.WriteNotFound(w, r, "Submission not found")
			return
		}

		var req ActionRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				apperrors.WriteBadRequest(w, r, "Invalid request body")
				return
			}
		}

		sub, err := m.Apply(r.Context(), action, id, req)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"submission": sub})
	}
}
