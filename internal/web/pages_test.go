package web

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aliuyar1234/holidaytree/internal/audit"
	"github.com/aliuyar1234/holidaytree/internal/auth"
	"github.com/aliuyar1234/holidaytree/internal/blob"
	"github.com/aliuyar1234/holidaytree/internal/domain"
	"github.com/aliuyar1234/holidaytree/internal/invites"
	"github.com/aliuyar1234/holidaytree/internal/live"
	"github.com/aliuyar1234/holidaytree/internal/store/sqlite"
	"github.com/aliuyar1234/holidaytree/internal/store/storetest"
	"github.com/aliuyar1234/holidaytree/internal/submissions"
	"github.com/aliuyar1234/holidaytree/ui"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

const testPassword = "let-it-snow"

func TestMain(m *testing.M) {
	sub, err := fs.Sub(ui.FS, "templates")
	if err != nil {
		panic(err)
	}
	if err := InitTemplates(sub); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type env struct {
	store   *sqlite.Store
	invites *invites.Service
	writer  *submissions.Writer
	mod     *submissions.Moderator
	intake  *submissions.Intake
	auth    *auth.Authenticator
	limits  submissions.UploadLimits
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st, err := sqlite.NewStore(context.Background(), filepath.Join(t.TempDir(), "web.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	blobs, err := blob.NewFSStore(filepath.Join(t.TempDir(), "media"), "/media")
	require.NoError(t, err)

	broker := live.NewLocalBroker()
	t.Cleanup(func() { _ = broker.Close() })

	auditor := audit.NewWriter(st)
	invSvc := invites.NewService(st, broker, auditor, invites.Options{
		MaxUses: 3,
		TTL:     invites.DefaultTTL,
		BaseURL: "https://tree.example.com",
	})
	writer := submissions.NewWriter(st, blobs, broker, auditor, nil)

	return &env{
		store:   st,
		invites: invSvc,
		writer:  writer,
		mod:     submissions.NewModerator(st, broker, auditor),
		intake:  submissions.NewIntake(invSvc, writer),
		auth:    auth.NewAuthenticator(testPassword, strings.Repeat("k", 32), 7, false, auditor),
		limits:  submissions.DefaultUploadLimits(),
	}
}

func (e *env) invite(t *testing.T, code string, maxUses int) domain.Invite {
	t.Helper()
	inv, err := e.store.CreateInvite(context.Background(), storetest.NewInvite(code, time.Now().Add(time.Hour), maxUses))
	require.NoError(t, err)
	return inv
}

func (e *env) submit(t *testing.T, inv domain.Invite, name string) domain.Submission {
	t.Helper()
	res, err := e.writer.Submit(context.Background(), submissions.Request{
		InviteID: inv.ID,
		Name:     name,
		Phone:    "+43 660 1234567",
		Image:    []byte("jpeg"),
	})
	require.NoError(t, err)
	return res.Submission
}

func adminRequest(r *http.Request) *http.Request {
	ctx := auth.WithSession(r.Context(), auth.Session{ID: "test", ExpiresAt: time.Now().Add(time.Hour)})
	return r.WithContext(ctx)
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 60, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartBody(t *testing.T, fields map[string]string, photo []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if photo != nil {
		fw, err := mw.CreateFormFile("photo", "photo.png")
		require.NoError(t, err)
		_, err = fw.Write(photo)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func formRequest(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestTreePage_ShowsApprovedOnly(t *testing.T) {
	e := newEnv(t)
	inv := e.invite(t, "AB3X9K", 3)
	anna := e.submit(t, inv, "Anna")
	e.submit(t, inv, "Bernd")
	_, err := e.mod.Approve(context.Background(), anna.ID, domain.PositionStar)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	HandleTreePage(e.mod)(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "Our Holiday Memories")
	require.Contains(t, body, "Photo from Anna")
	require.NotContains(t, body, "Bernd")
	require.NotContains(t, body, "660 1234567")
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestTreePage_Empty(t *testing.T) {
	e := newEnv(t)

	rec := httptest.NewRecorder()
	HandleTreePage(e.mod)(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "No photos on the tree yet.")
}

func TestSubmitPage_InviteStates(t *testing.T) {
	e := newEnv(t)
	e.invite(t, "AB3X9K", 3)
	single := e.invite(t, "CD4Y8L", 1)
	e.submit(t, single, "Anna")

	tests := []struct {
		name       string
		code       string
		wantStatus int
		wantBody   string
	}{
		{name: "valid", code: "AB3X9K", wantStatus: http.StatusOK, wantBody: "You can submit up to 3 photos with this link."},
		{name: "missing", code: "", wantStatus: http.StatusBadRequest, wantBody: "No invite code provided"},
		{name: "unknown", code: "ZZZZZZ", wantStatus: http.StatusNotFound, wantBody: "Invalid invite code"},
		{name: "exhausted", code: "CD4Y8L", wantStatus: http.StatusConflict, wantBody: "maximum number of uses"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HandleSubmitPage(e.invites, e.limits)(rec, httptest.NewRequest(http.MethodGet, "/submit?invite="+tt.code, nil))

			require.Equal(t, tt.wantStatus, rec.Code)
			require.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestSubmitPost_Success(t *testing.T) {
	e := newEnv(t)
	inv := e.invite(t, "AB3X9K", 3)

	body, contentType := multipartBody(t, map[string]string{
		"invite":      "AB3X9K",
		"name":        "Anna",
		"phone":       "+43 660 1234567",
		"remaining":   "3",
		"crop_unit":   "px",
		"crop_x":      "10",
		"crop_y":      "10",
		"crop_width":  "100",
		"crop_height": "100",
	}, testPNG(t, 160, 120))
	req := httptest.NewRequest(http.MethodPost, "/submit?invite=AB3X9K", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	HandleSubmitPost(e.intake, e.limits)(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := rec.Body.String()
	require.Contains(t, out, "Thank You!")
	require.Contains(t, out, "Submit Another Photo (2 remaining)")
	require.Contains(t, out, "n=1")

	got, err := e.store.GetInvite(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.UseCount)
}

func TestSubmitPost_LastUseHidesAnother(t *testing.T) {
	e := newEnv(t)
	e.invite(t, "AB3X9K", 1)

	body, contentType := multipartBody(t, map[string]string{
		"name":       "Anna",
		"phone":      "+43 660 1234567",
		"crop_width": "50", "crop_height": "50",
	}, testPNG(t, 80, 80))
	req := httptest.NewRequest(http.MethodPost, "/submit?invite=AB3X9K&n=2", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	HandleSubmitPost(e.intake, e.limits)(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotContains(t, rec.Body.String(), "Submit Another Photo")
	require.Contains(t, rec.Body.String(), "You have used every photo on this invite.")
}

func TestSubmitPost_Reprompts(t *testing.T) {
	e := newEnv(t)
	e.invite(t, "AB3X9K", 3)

	tests := []struct {
		name     string
		fields   map[string]string
		photo    []byte
		wantBody string
	}{
		{
			name:     "empty name",
			fields:   map[string]string{"name": " ", "phone": "+43 660 1234567", "crop_width": "50", "crop_height": "50"},
			photo:    testPNG(t, 80, 80),
			wantBody: "Please enter your name",
		},
		{
			name:     "no crop",
			fields:   map[string]string{"name": "Anna", "phone": "+43 660 1234567"},
			photo:    testPNG(t, 80, 80),
			wantBody: "Please crop your photo",
		},
		{
			name:     "no photo",
			fields:   map[string]string{"name": "Anna", "phone": "+43 660 1234567", "crop_width": "50", "crop_height": "50"},
			wantBody: "Please select a photo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartBody(t, tt.fields, tt.photo)
			req := httptest.NewRequest(http.MethodPost, "/submit?invite=AB3X9K", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()

			HandleSubmitPost(e.intake, e.limits)(rec, req)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Contains(t, rec.Body.String(), "Share a Holiday Memory")
			require.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}

	subs, err := e.mod.List(context.Background(), "")
	require.NoError(t, err)
	require.Empty(t, subs)
}

func TestSubmitPost_ExhaustedInviteShowsErrorPage(t *testing.T) {
	e := newEnv(t)
	inv := e.invite(t, "AB3X9K", 1)
	e.submit(t, inv, "Anna")

	body, contentType := multipartBody(t, map[string]string{
		"name": "Bernd", "phone": "+43 660 7654321", "crop_width": "50", "crop_height": "50",
	}, testPNG(t, 80, 80))
	req := httptest.NewRequest(http.MethodPost, "/submit?invite=AB3X9K", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	HandleSubmitPost(e.intake, e.limits)(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "Oops!")
}

func TestLoginPage(t *testing.T) {
	e := newEnv(t)

	t.Run("renders form with csrf cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		HandleLoginPage(false)(rec, httptest.NewRequest(http.MethodGet, "/admin/login?next=/admin?tab=approved", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), "Admin Login")
		var found bool
		for _, c := range rec.Result().Cookies() {
			if c.Name == auth.CSRFCookieName {
				found = true
				require.Contains(t, rec.Body.String(), c.Value)
			}
		}
		require.True(t, found)
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := httptest.NewRecorder()
		HandleLoginSubmit(e.auth)(rec, formRequest("/admin/login", url.Values{"password": {"nope"}}))

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Body.String(), "Invalid password")
	})

	t.Run("success redirects to next", func(t *testing.T) {
		rec := httptest.NewRecorder()
		HandleLoginSubmit(e.auth)(rec, formRequest("/admin/login", url.Values{
			"password": {testPassword},
			"next":     {"/admin?tab=approved"},
		}))

		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Equal(t, "/admin?tab=approved", rec.Header().Get("Location"))
		var session string
		for _, c := range rec.Result().Cookies() {
			if c.Name == auth.SessionCookieName {
				session = c.Value
			}
		}
		require.NotEmpty(t, session)
	})

	t.Run("offsite next is ignored", func(t *testing.T) {
		rec := httptest.NewRecorder()
		HandleLoginSubmit(e.auth)(rec, formRequest("/admin/login", url.Values{
			"password": {testPassword},
			"next":     {"//evil.example.com"},
		}))

		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Equal(t, "/admin", rec.Header().Get("Location"))
	})
}

func TestAdminPage_Tabs(t *testing.T) {
	e := newEnv(t)
	inv := e.invite(t, "AB3X9K", 3)
	anna := e.submit(t, inv, "Anna")
	e.submit(t, inv, "Bernd")
	_, err := e.mod.Approve(context.Background(), anna.ID, "7")
	require.NoError(t, err)

	t.Run("pending by default", func(t *testing.T) {
		rec := httptest.NewRecorder()
		HandleAdminPage(e.invites, e.mod, false)(rec, adminRequest(httptest.NewRequest(http.MethodGet, "/admin", nil)))

		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		require.Contains(t, body, "Holiday Tree Admin")
		require.Contains(t, body, "Pending (1)")
		require.Contains(t, body, "Approved (1)")
		require.Contains(t, body, "Bernd")
		require.NotContains(t, body, "Anna")
		require.Contains(t, body, "AB3X9K")
	})

	t.Run("approved tab shows revoke confirmation", func(t *testing.T) {
		rec := httptest.NewRecorder()
		HandleAdminPage(e.invites, e.mod, false)(rec, adminRequest(httptest.NewRequest(http.MethodGet, "/admin?tab=approved", nil)))

		body := rec.Body.String()
		require.Contains(t, body, "Anna")
		require.Contains(t, body, "Position: Ornament 7")
		require.Contains(t, body, "Are you sure you want to revoke this approval?")
	})

	t.Run("created invite is highlighted", func(t *testing.T) {
		rec := httptest.NewRecorder()
		HandleAdminPage(e.invites, e.mod, false)(rec, adminRequest(httptest.NewRequest(http.MethodGet, "/admin?created=AB3X9K", nil)))

		require.Contains(t, rec.Body.String(), "https://tree.example.com/submit?invite=AB3X9K")
		require.Contains(t, rec.Body.String(), "New invite")
	})

	t.Run("flash keys render fixed messages", func(t *testing.T) {
		rec := httptest.NewRecorder()
		HandleAdminPage(e.invites, e.mod, false)(rec, adminRequest(httptest.NewRequest(http.MethodGet, "/admin?notice=revoked&error=confirm_required", nil)))

		body := rec.Body.String()
		require.Contains(t, body, "Approval revoked")
		require.Contains(t, body, "Please confirm revoking this photo")
	})

	t.Run("unknown flash text is not shown", func(t *testing.T) {
		target := "/admin?" + url.Values{
			"notice": {"Your session expired, call 555-0100"},
			"error":  {"Send your password to support"},
		}.Encode()
		rec := httptest.NewRecorder()
		HandleAdminPage(e.invites, e.mod, false)(rec, adminRequest(httptest.NewRequest(http.MethodGet, target, nil)))

		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		require.NotContains(t, body, "555-0100")
		require.NotContains(t, body, "Send your password")
		require.NotContains(t, body, "alert-error")
		require.NotContains(t, body, "alert-success")
	})
}

func TestAdminCreateInvite(t *testing.T) {
	e := newEnv(t)

	rec := httptest.NewRecorder()
	HandleAdminCreateInvite(e.invites)(rec, formRequest("/admin/invites", url.Values{"max_uses": {"5"}, "tab": {"approved"}}))

	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "approved", loc.Query().Get("tab"))
	code := loc.Query().Get("created")
	require.Len(t, code, 6)

	inv, err := e.store.GetInviteByCode(context.Background(), code)
	require.NoError(t, err)
	require.Equal(t, 5, *inv.MaxUses)

	rec = httptest.NewRecorder()
	HandleAdminCreateInvite(e.invites)(rec, formRequest("/admin/invites", url.Values{"max_uses": {"500"}}))
	loc, err = url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "max_uses_range", loc.Query().Get("error"))
}

func TestAdminAction(t *testing.T) {
	e := newEnv(t)
	inv := e.invite(t, "AB3X9K", 3)
	sub := e.submit(t, inv, "Anna")

	r := chi.NewRouter()
	for _, action := range []submissions.Action{
		submissions.ActionApprove,
		submissions.ActionReject,
		submissions.ActionRevoke,
		submissions.ActionPosition,
	} {
		r.Post("/admin/submissions/{id}/"+string(action), HandleAdminAction(e.mod, action))
	}

	post := func(action string, form url.Values) url.Values {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, formRequest("/admin/submissions/"+sub.ID.String()+"/"+action, form))
		require.Equal(t, http.StatusSeeOther, rec.Code)
		loc, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		return loc.Query()
	}

	q := post("approve", url.Values{"position": {"star"}, "tab": {"pending"}})
	require.Equal(t, "approved", q.Get("notice"))
	require.Equal(t, "pending", q.Get("tab"))

	got, err := e.store.GetSubmission(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusApproved, got.Status)
	require.Equal(t, domain.PositionStar, got.Position)

	q = post("position", url.Values{"position": {"99"}})
	require.Equal(t, "invalid_position", q.Get("error"))

	q = post("reject", nil)
	require.Equal(t, "invalid_transition", q.Get("error"))

	q = post("revoke", url.Values{})
	require.Equal(t, "confirm_required", q.Get("error"))

	q = post("revoke", url.Values{"confirm": {"true"}})
	require.Equal(t, "revoked", q.Get("notice"))

	got, err = e.store.GetSubmission(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusRejected, got.Status)
}
