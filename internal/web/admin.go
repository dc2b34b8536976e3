package web

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aliuyar1234/holidaytree/internal/auth"
	"github.com/aliuyar1234/holidaytree/internal/domain"
	"github.com/aliuyar1234/holidaytree/internal/invites"
	"github.com/aliuyar1234/holidaytree/internal/submissions"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Tab is one status tab of the dashboard.
type Tab struct {
	Status domain.Status
	Label  string
	Count  int
	Active bool
}

// AdminPage is the data behind the moderation dashboard.
type AdminPage struct {
	Tab         domain.Status
	Tabs        []Tab
	Submissions []domain.Submission
	Invites     []invites.View
	Created     *invites.View
}

var tabLabels = []Tab{
	{Status: domain.StatusPending, Label: "Pending"},
	{Status: domain.StatusApproved, Label: "Approved"},
	{Status: domain.StatusRejected, Label: "Rejected"},
}

func isAdmin(r *http.Request) bool {
	return auth.IsAdmin(r.Context())
}

// HandleLoginPage renders GET /admin/login
func HandleLoginPage(isProduction bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if isAdmin(r) {
			http.Redirect(w, r, safeNext(r.URL.Query().Get("next")), http.StatusSeeOther)
			return
		}

		csrfToken, err := auth.EnsureCSRFToken(w, r, isProduction)
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		RenderTemplate(w, r, "admin_login.html", &TemplateData{
			Title:     "Admin Login",
			CSRFToken: csrfToken,
			Next:      r.URL.Query().Get("next"),
		})
	}
}

// HandleLoginSubmit handles POST /admin/login
func HandleLoginSubmit(a *auth.Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		next := r.PostFormValue("next")
		err := a.Login(r.Context(), w, r.PostFormValue("password"), auth.ClientIP(r))
		if err == nil {
			http.Redirect(w, r, safeNext(next), http.StatusSeeOther)
			return
		}

		status := http.StatusUnauthorized
		msg := "Invalid password"
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			log.Error().Err(err).Msg("Failed to create session")
			status = http.StatusInternalServerError
			msg = "Login failed. Please try again."
		}
		RenderTemplateStatus(w, r, status, "admin_login.html", &TemplateData{
			Title:     "Admin Login",
			CSRFToken: auth.GetCSRFCookie(r),
			Next:      next,
			Error:     msg,
		})
	}
}

// HandleLogoutSubmit handles POST /admin/logout
func HandleLogoutSubmit(a *auth.Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.Logout(w, r)
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// HandleAdminPage renders GET /admin?tab=pending|approved|rejected
func HandleAdminPage(svc *invites.Service, m *submissions.Moderator, isProduction bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		q := r.URL.Query()

		tab := domain.Status(q.Get("tab"))
		if !tab.IsValid() {
			tab = domain.StatusPending
		}

		csrfToken, err := auth.EnsureCSRFToken(w, r, isProduction)
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		all, err := m.List(ctx, "")
		if err != nil {
			log.Error().Err(err).Msg("Failed to load submissions")
			all = nil
		}
		invs, err := svc.List(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to load invites")
			invs = nil
		}

		page := AdminPage{Tab: tab, Invites: svc.Views(invs)}
		for _, t := range tabLabels {
			t.Active = t.Status == tab
			for _, s := range all {
				if s.Status != t.Status {
					continue
				}
				t.Count++
				if t.Active {
					page.Submissions = append(page.Submissions, s)
				}
			}
			page.Tabs = append(page.Tabs, t)
		}
		if tab == domain.StatusApproved {
			submissions.SortByReview(page.Submissions)
		}
		if code := q.Get("created"); code != "" {
			for i := range page.Invites {
				if page.Invites[i].Code == code {
					page.Created = &page.Invites[i]
					break
				}
			}
		}

		RenderTemplate(w, r, "admin.html", &TemplateData{
			Title:     "Holiday Tree Admin",
			IsAdmin:   true,
			CSRFToken: csrfToken,
			Error:     flashMessages[q.Get("error")],
			Success:   flashMessages[q.Get("notice")],
			Data:      page,
		})
	}
}

// HandleAdminCreateInvite handles POST /admin/invites
func HandleAdminCreateInvite(svc *invites.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tab := r.PostFormValue("tab")

		var req invites.CreateRequest
		if v := strings.TrimSpace(r.PostFormValue("max_uses")); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				redirectAdmin(w, r, tab, url.Values{"error": {"max_uses_nan"}})
				return
			}
			req.MaxUses = n
		}
		if v := strings.TrimSpace(r.PostFormValue("ttl_hours")); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				redirectAdmin(w, r, tab, url.Values{"error": {"ttl_nan"}})
				return
			}
			req.TTLHours = &n
		}

		opts, err := req.Options()
		if err != nil {
			redirectAdmin(w, r, tab, url.Values{"error": {"ttl_range"}})
			return
		}
		inv, err := svc.Create(r.Context(), opts)
		if err != nil {
			msg := "invite_failed"
			if errors.Is(err, invites.ErrInvalidMaxUses) {
				msg = "max_uses_range"
			} else {
				log.Error().Err(err).Msg("Failed to create invite")
			}
			redirectAdmin(w, r, tab, url.Values{"error": {msg}})
			return
		}

		redirectAdmin(w, r, tab, url.Values{"created": {inv.Code}})
	}
}

// flashMessages holds every message the dashboard will show. Redirects carry only the key.
var flashMessages = map[string]string{
	"approved":           "Photo approved",
	"rejected":           "Photo rejected",
	"revoked":            "Approval revoked",
	"positioned":         "Position updated",
	"not_found":          "Submission not found",
	"invalid_transition": "That action is not allowed for this submission's status",
	"confirm_required":   "Please confirm revoking this photo",
	"invalid_position":   "Unknown tree position",
	"failed":             "Something went wrong. Please try again.",
	"max_uses_nan":       "Max uses must be a number",
	"max_uses_range":     "Max uses must be between 1 and 100",
	"ttl_nan":            "Lifetime must be a number of hours",
	"ttl_range":          "Lifetime must be between 0 and 8760 hours",
	"invite_failed":      "Failed to create invite",
}

var actionNotices = map[submissions.Action]string{
	submissions.ActionApprove:  "approved",
	submissions.ActionReject:   "rejected",
	submissions.ActionRevoke:   "revoked",
	submissions.ActionPosition: "positioned",
}

// HandleAdminAction handles POST /admin/submissions/{id}/{action}
func HandleAdminAction(m *submissions.Moderator, action submissions.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tab := r.PostFormValue("tab")

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			redirectAdmin(w, r, tab, url.Values{"error": {"not_found"}})
			return
		}

		confirm, _ := strconv.ParseBool(r.PostFormValue("confirm"))
		_, err = m.Apply(r.Context(), action, id, submissions.ActionRequest{
			Position: r.PostFormValue("position"),
			Confirm:  confirm,
		})
		if err != nil {
			if !isModerationError(err) {
				log.Error().Err(err).Str("action", string(action)).Str("submission_id", id.String()).Msg("Moderation failed")
				redirectAdmin(w, r, tab, url.Values{"error": {"failed"}})
				return
			}
			redirectAdmin(w, r, tab, url.Values{"error": {moderationFlash(err)}})
			return
		}

		redirectAdmin(w, r, tab, url.Values{"notice": {actionNotices[action]}})
	}
}

func moderationFlash(err error) string {
	switch {
	case errors.Is(err, submissions.ErrSubmissionNotFound):
		return "not_found"
	case errors.Is(err, submissions.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, submissions.ErrConfirmationRequired):
		return "confirm_required"
	case errors.Is(err, submissions.ErrInvalidPosition):
		return "invalid_position"
	default:
		return "failed"
	}
}

func isModerationError(err error) bool {
	return errors.Is(err, submissions.ErrSubmissionNotFound) ||
		errors.Is(err, submissions.ErrInvalidTransition) ||
		errors.Is(err, submissions.ErrConfirmationRequired) ||
		errors.Is(err, submissions.ErrInvalidPosition)
}

func redirectAdmin(w http.ResponseWriter, r *http.Request, tab string, q url.Values) {
	if domain.Status(tab).IsValid() {
		q.Set("tab", tab)
	}
	http.Redirect(w, r, "/admin?"+q.Encode(), http.StatusSeeOther)
}

// safeNext keeps post-login redirects on this site.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/admin"
	}
	return next
}

// expiresIn is used by the dashboard to show how long an invite stays valid.
func expiresIn(t *time.Time) string {
	if t == nil {
		return "never"
	}
	d := time.Until(*t)
	if d <= 0 {
		return "expired"
	}
	if d >= 48*time.Hour {
		return strconv.Itoa(int(d.Hours()/24)) + " days"
	}
	if d >= time.Hour {
		return strconv.Itoa(int(d.Hours())) + " hours"
	}
	return "less than an hour"
}
