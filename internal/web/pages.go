package web

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/aliuyar1234/holidaytree/internal/invites"
	"github.com/aliuyar1234/holidaytree/internal/submissions"
	"github.com/rs/zerolog/log"
)

// SubmitPage is the data behind the upload and crop form.
type SubmitPage struct {
	Code          string
	RemainingUses int
	// Submitted counts the photos sent through this link during the current visit.
	Submitted   int
	Name        string
	Phone       string
	MaxUploadMB int64
}

// ResultPage is the data behind the thank-you and error pages.
type ResultPage struct {
	OK            bool
	Heading       string
	Message       string
	Name          string
	RemainingUses int
	Submitted     int
	AnotherURL    string
}

// HandleTreePage renders GET /
func HandleTreePage(m *submissions.Moderator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subs, err := m.Approved(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("Failed to load approved photos")
			subs = nil
		}

		RenderTemplate(w, r, "tree.html", &TemplateData{
			Title:   "Our Holiday Memories",
			IsAdmin: isAdmin(r),
			Data:    Arrange(submissions.PublicPhotos(subs)),
		})
	}
}

// HandleSubmitPage renders GET /submit?invite=CODE
func HandleSubmitPage(svc *invites.Service, limits submissions.UploadLimits) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.Validate(r.Context(), r.URL.Query().Get("invite"))
		if err != nil {
			renderFailure(w, r, err)
			return
		}

		RenderTemplate(w, r, "submit.html", &TemplateData{
			Title: "Share a Holiday Memory",
			Data: SubmitPage{
				Code:          v.Invite.Code,
				RemainingUses: v.RemainingUses,
				Submitted:     sessionCount(r),
				MaxUploadMB:   limits.MaxPhotoBytes >> 20,
			},
		})
	}
}

// HandleSubmitPost handles the multipart POST /submit?invite=CODE. Problems the user can fix
// re-render the form; invite problems end on the error page.
func HandleSubmitPost(in *submissions.Intake, limits submissions.UploadLimits) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form := SubmitPage{
			Code:        r.URL.Query().Get("invite"),
			Submitted:   sessionCount(r),
			MaxUploadMB: limits.MaxPhotoBytes >> 20,
		}

		up, err := submissions.ParseUpload(w, r, limits)
		if err != nil {
			renderForm(w, r, form, err)
			return
		}
		form.Code = up.Invite
		form.Name = up.Name
		form.Phone = up.Phone
		form.RemainingUses, _ = strconv.Atoi(r.FormValue("remaining"))

		res, err := in.Accept(r.Context(), up)
		if err != nil {
			if invites.IsInviteError(err) {
				renderFailure(w, r, err)
				return
			}
			renderForm(w, r, form, err)
			return
		}

		submitted := form.Submitted + 1
		page := ResultPage{
			OK:            true,
			Heading:       "Thank You!",
			Message:       "Your photo has been submitted and will appear on the tree once it is approved.",
			Name:          res.Submission.Name,
			RemainingUses: res.RemainingUses,
			Submitted:     submitted,
		}
		if res.RemainingUses > 0 {
			page.AnotherURL = submitURL(form.Code, submitted)
		}
		RenderTemplateStatus(w, r, http.StatusCreated, "submit_result.html", &TemplateData{
			Title: "Thank You!",
			Data:  page,
		})
	}
}

func renderForm(w http.ResponseWriter, r *http.Request, form SubmitPage, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, submissions.ErrPhotoTooLarge), errors.Is(err, submissions.ErrUploadTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, submissions.ErrSubmissionFailed):
		log.Error().Err(err).Msg("Photo submission failed")
		status = http.StatusInternalServerError
	}
	RenderTemplateStatus(w, r, status, "submit.html", &TemplateData{
		Title: "Share a Holiday Memory",
		Error: submissions.Message(err),
		Data:  form,
	})
}

func renderFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, invites.ErrMissingInvite):
		status = http.StatusBadRequest
	case errors.Is(err, invites.ErrInvalidInvite):
		status = http.StatusNotFound
	case errors.Is(err, invites.ErrInviteExpired):
		status = http.StatusGone
	case errors.Is(err, invites.ErrInviteExhausted), errors.Is(err, invites.ErrInviteAlreadyUsed):
		status = http.StatusConflict
	default:
		log.Error().Err(err).Msg("Failed to validate invite")
	}
	RenderTemplateStatus(w, r, status, "submit_result.html", &TemplateData{
		Title: "Oops!",
		Data: ResultPage{
			Heading: "Oops!",
			Message: invites.Message(err),
		},
	})
}

// sessionCount reads the n query parameter the submit-another link carries.
func sessionCount(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("n"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func submitURL(code string, submitted int) string {
	q := url.Values{}
	q.Set("invite", code)
	q.Set("n", strconv.Itoa(submitted))
	return "/submit?" + q.Encode()
}
