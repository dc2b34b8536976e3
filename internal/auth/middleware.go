package auth

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/aliuyar1234/holidaytree/internal/apperrors"
	"github.com/rs/zerolog/log"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// SessionContextKey is the context key for storing the admin session
	SessionContextKey contextKey = "admin_session"
)

// Session is an authenticated console session.
type Session struct {
	ID        string
	ExpiresAt time.Time
}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, SessionContextKey, s)
}

// GetSession retrieves the admin session from the request context
func GetSession(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(SessionContextKey).(Session)
	return s, ok
}

// IsAdmin reports whether ctx carries an admin session.
func IsAdmin(ctx context.Context) bool {
	_, ok := GetSession(ctx)
	return ok
}

// Middleware validates the session cookie and injects the Session into context
// If the session is invalid, it clears the cookie and continues without authentication
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := GetSessionCookie(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := ValidateToken(token, secret)
			if err != nil {
				log.Debug().Err(err).Msg("Invalid session token")
				ClearSessionCookie(w)
				next.ServeHTTP(w, r)
				return
			}

			s := Session{ID: claims.ID}
			if claims.ExpiresAt != nil {
				s.ExpiresAt = claims.ExpiresAt.Time
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}

// RequireAdmin is API middleware that requires a console session
// Returns 401 if there is none
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAdmin(r.Context()) {
			apperrors.WriteUnauthorized(w, r, "Admin login required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdminPage redirects to the login page when there is no console session
func RequireAdminPage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAdmin(r.Context()) {
			http.Redirect(w, r, "/admin/login?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}
