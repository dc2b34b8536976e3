package app

import (
	"context"
	"io/fs"
	"net/http"

	"github.com/aliuyar1234/holidaytree/internal/apperrors"
	"github.com/aliuyar1234/holidaytree/internal/auth"
	"github.com/aliuyar1234/holidaytree/internal/blob"
	"github.com/aliuyar1234/holidaytree/internal/config"
	"github.com/aliuyar1234/holidaytree/internal/domain"
	"github.com/aliuyar1234/holidaytree/internal/invites"
	"github.com/aliuyar1234/holidaytree/internal/live"
	"github.com/aliuyar1234/holidaytree/internal/metrics"
	"github.com/aliuyar1234/holidaytree/internal/store"
	"github.com/aliuyar1234/holidaytree/internal/submissions"
	"github.com/aliuyar1234/holidaytree/internal/web"
	"github.com/aliuyar1234/holidaytree/ui"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

var moderationActions = []submissions.Action{
	submissions.ActionApprove,
	submissions.ActionReject,
	submissions.ActionRevoke,
	submissions.ActionPosition,
}

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(cfg *config.Config, st store.Store, blobs *blob.FSStore, broker live.Broker, svc Services) *chi.Mux {
	r := chi.NewRouter()

	isProduction := !cfg.IsDev()

	// Middleware stack
	r.Use(middleware.RealIP)
	r.Use(apperrors.RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.BaseURL},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", auth.CSRFHeaderName},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(auth.Middleware(svc.Auth.Secret()))

	// Health and metrics
	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(st, broker))
	r.Handle("/metrics", metrics.Handler())

	// Static assets and stored photos
	static, _ := fs.Sub(ui.FS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	r.Handle("/media/*", http.StripPrefix("/media/", blobs.Handler()))

	// Live feeds
	approved := func(ctx context.Context) ([]submissions.Photo, error) {
		subs, err := svc.Moderator.Approved(ctx)
		if err != nil {
			return nil, err
		}
		return submissions.PublicPhotos(subs), nil
	}
	allSubmissions := func(ctx context.Context) ([]domain.Submission, error) {
		return svc.Moderator.List(ctx, "")
	}
	inviteViews := func(ctx context.Context) ([]invites.View, error) {
		invs, err := svc.Invites.List(ctx)
		if err != nil {
			return nil, err
		}
		return svc.Invites.Views(invs), nil
	}
	r.Get("/ws/photos", live.Handler(broker, "photos",
		live.FeedOf(live.TopicSubmissions, "photos", approved),
	))
	r.With(auth.RequireAdmin).Get("/ws/admin", live.Handler(broker, "admin",
		live.FeedOf(live.TopicSubmissions, "submissions", allSubmissions),
		live.FeedOf(live.TopicInvites, "invites", inviteViews),
	))

	submitLimit := SubmissionRateLimitMiddleware(cfg.RateLimitRPM)

	// Public HTML pages
	r.Group(func(r chi.Router) {
		r.Use(NoCacheMiddleware)
		r.Get("/", web.HandleTreePage(svc.Moderator))
		r.Get("/submit", web.HandleSubmitPage(svc.Invites, svc.Limits))
		r.With(submitLimit).Post("/submit", web.HandleSubmitPost(svc.Intake, svc.Limits))
		r.Get("/admin/login", web.HandleLoginPage(isProduction))
		r.With(CSRFMiddleware(isProduction), LoginRateLimitMiddleware()).Post("/admin/login", web.HandleLoginSubmit(svc.Auth))
	})

	// Console pages - require an admin session
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAdminPage)
		r.Use(NoCacheMiddleware)
		r.Use(CSRFMiddleware(isProduction))

		r.Get("/admin", web.HandleAdminPage(svc.Invites, svc.Moderator, isProduction))
		r.Post("/admin/logout", web.HandleLogoutSubmit(svc.Auth))
		r.Post("/admin/invites", web.HandleAdminCreateInvite(svc.Invites))
		for _, action := range moderationActions {
			r.Post("/admin/submissions/{id}/"+string(action), web.HandleAdminAction(svc.Moderator, action))
		}
	})

	// JSON API
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Get("/invites/validate", invites.HandleValidate(svc.Invites))
		r.With(submitLimit).Post("/submissions", submissions.HandleSubmit(svc.Intake, svc.Limits))
		r.Get("/photos", submissions.HandlePhotos(svc.Moderator))

		r.Route("/auth", func(r chi.Router) {
			r.Use(CSRFMiddleware(isProduction))
			r.With(LoginRateLimitMiddleware()).Post("/login", auth.HandleLogin(svc.Auth))
			r.With(auth.RequireAdmin).Post("/logout", auth.HandleLogout(svc.Auth))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			r.Use(CSRFMiddleware(isProduction))

			r.Get("/invites", invites.HandleList(svc.Invites))
			r.Post("/invites", invites.HandleCreate(svc.Invites))
			r.Get("/submissions", submissions.HandleList(svc.Moderator))
			for _, action := range moderationActions {
				r.Post("/submissions/{id}/"+string(action), submissions.HandleAction(svc.Moderator, action))
			}
		})
	})

	return r
}

// handleHealthz returns a simple liveness check
// Always returns 200 OK if the service is running
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

type pinger interface {
	Ping(ctx context.Context) error
}

// handleReadyz returns a readiness check that includes store connectivity and, when live
// updates go through Redis, the broker.
// Returns 200 OK if service is ready to accept traffic, 503 if not
func handleReadyz(st store.Store, broker live.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := st.Ping(r.Context()); err != nil {
			apperrors.WriteServiceUnavailable(w, r, "Store connection failed")
			return
		}

		status := map[string]string{"status": "ready", "store": "ok"}
		if p, ok := broker.(pinger); ok {
			if err := p.Ping(r.Context()); err != nil {
				apperrors.WriteServiceUnavailable(w, r, "Broker connection failed")
				return
			}
			status["broker"] = "ok"
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, status)
	}
}
