package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/aliuyar1234/holidaytree/internal/apperrors"
	"github.com/aliuyar1234/holidaytree/internal/audit"
	"github.com/rs/zerolog/log"
)

var (
	// ErrInvalidCredentials is returned when the admin password does not match
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Authenticator checks the admin password and issues session tokens.
type Authenticator struct {
	passwordHash string
	secret       string
	sessionDays  int
	isProduction bool
	auditor      *audit.Writer
}

func NewAuthenticator(passwordHash, secret string, sessionDays int, isProduction bool, auditor *audit.Writer) *Authenticator {
	return &Authenticator{
		passwordHash: passwordHash,
		secret:       secret,
		sessionDays:  sessionDays,
		isProduction: isProduction,
		auditor:      auditor,
	}
}

// Secret is the key session tokens are signed with.
func (a *Authenticator) Secret() string {
	return a.secret
}

// Login verifies password and, on success, sets the session cookie on w.
func (a *Authenticator) Login(ctx context.Context, w http.ResponseWriter, password, ip string) error {
	if !CheckAdminPassword(a.passwordHash, password) {
		log.Debug().Str("ip", ip).Msg("Admin login failed: wrong password")
		if err := a.auditor.LogAdminLoginFailed(ctx, ip); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}
		return ErrInvalidCredentials
	}

	token, err := CreateToken(a.secret, a.sessionDays)
	if err != nil {
		return err
	}
	SetSessionCookie(w, token, a.sessionDays, a.isProduction)

	if err := a.auditor.LogAdminLogin(ctx, ip); err != nil {
		log.Error().Err(err).Msg("Failed to log audit event")
	}
	log.Info().Str("ip", ip).Msg("Admin logged in")
	return nil
}

// Logout clears the session cookie.
func (a *Authenticator) Logout(w http.ResponseWriter, r *http.Request) {
	ClearSessionCookie(w)
	if s, ok := GetSession(r.Context()); ok {
		log.Info().Str("session_id", s.ID).Msg("Admin logged out")
	}
}

// LoginRequest represents the login request payload
type LoginRequest struct {
	Password string `json:"password"`
}

// HandleLogin handles POST /api/v1/auth/login
func HandleLogin(a *Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				apperrors.WriteBadRequest(w, r, "Invalid request body")
				return
			}
		} else {
			req.Password = r.PostFormValue("password")
		}

		if err := a.Login(r.Context(), w, req.Password, ClientIP(r)); err != nil {
			if errors.Is(err, ErrInvalidCredentials) {
				apperrors.WriteUnauthorized(w, r, "Invalid password")
				return
			}
			log.Error().Err(err).Msg("Failed to create session")
			apperrors.WriteInternalError(w, r, "Failed to create session")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]bool{"authenticated": true})
	}
}

// HandleLogout handles POST /api/v1/auth/logout
func HandleLogout(a *Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.Logout(w, r)
		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]bool{"authenticated": false})
	}
}

// ClientIP is the request's remote host, as rewritten by middleware.RealIP.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
