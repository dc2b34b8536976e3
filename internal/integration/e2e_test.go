package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aliuyar1234/holidaytree/internal/app"
	"github.com/aliuyar1234/holidaytree/internal/auth"
	"github.com/aliuyar1234/holidaytree/internal/config"
	"github.com/aliuyar1234/holidaytree/internal/domain"
	"github.com/aliuyar1234/holidaytree/internal/live"
	"github.com/aliuyar1234/holidaytree/internal/store"
	"github.com/aliuyar1234/holidaytree/internal/store/storetest"
	"github.com/aliuyar1234/holidaytree/internal/submissions"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const adminPassword = "let-it-snow"

type testServer struct {
	*httptest.Server
	app *app.App
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{
		Env:               "dev",
		HTTPAddr:          ":0",
		BaseURL:           "http://localhost",
		StoreDriver:       config.DriverSQLite,
		SQLitePath:        filepath.Join(dir, "holidaytree.db"),
		BlobDir:           filepath.Join(dir, "media"),
		AdminPasswordHash: adminPassword,
		JWTSecret:         strings.Repeat("s", 32),
		SessionDays:       7,
		LogLevel:          "error",
		RateLimitRPM:      120,
		MaxUploadBytes:    5 * 1024 * 1024,
		InviteMaxUses:     3,
		InviteTTLDays:     7,
		OrphanGraceHours:  24,
		SlackTimeoutMS:    2000,
	}

	a, err := app.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	srv := httptest.NewServer(a.Router)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, app: a}
}

// newClient returns a cookie-keeping client that does not follow redirects, with a CSRF
// cookie already set.
func (s *testServer) newClient(t *testing.T) (*http.Client, string) {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	base, err := url.Parse(s.URL)
	require.NoError(t, err)
	token, err := auth.GenerateCSRFToken()
	require.NoError(t, err)
	jar.SetCookies(base, []*http.Cookie{{Name: auth.CSRFCookieName, Value: token, Path: "/"}})

	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}, token
}

type envelopeResponse struct {
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
	Error     *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func do(t *testing.T, client *http.Client, req *http.Request, wantStatus int) envelopeResponse {
	t.Helper()
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, wantStatus, resp.StatusCode, "body: %s", string(body))

	var env envelopeResponse
	require.NoError(t, json.Unmarshal(body, &env), "body: %s", string(body))
	return env
}

func postJSON(t *testing.T, client *http.Client, urlStr, csrfToken string, wantStatus int, payload any) envelopeResponse {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, urlStr, bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.CSRFHeaderName, csrfToken)
	return do(t, client, req, wantStatus)
}

func getJSON(t *testing.T, client *http.Client, urlStr string, wantStatus int) envelopeResponse {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, urlStr, nil)
	require.NoError(t, err)
	return do(t, client, req, wantStatus)
}

func postSubmission(t *testing.T, client *http.Client, urlStr string, fields map[string]string, photo []byte, wantStatus int) envelopeResponse {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	if photo != nil {
		part, err := writer.CreateFormFile("photo", "photo.png")
		require.NoError(t, err)
		_, err = part.Write(photo)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, urlStr, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return do(t, client, req, wantStatus)
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: uint8(x), B: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func createInvite(t *testing.T, client *http.Client, s *testServer, csrf string) string {
	t.Helper()
	env := postJSON(t, client, s.URL+"/api/v1/admin/invites", csrf, http.StatusCreated, map[string]any{})
	var parsed struct {
		Invite struct {
			Code          string `json:"code"`
			Link          string `json:"link"`
			RemainingUses int    `json:"remaining_uses"`
		} `json:"invite"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &parsed))
	require.Len(t, parsed.Invite.Code, 6)
	require.Equal(t, "http://localhost/submit?invite="+parsed.Invite.Code, parsed.Invite.Link)
	require.Equal(t, 3, parsed.Invite.RemainingUses)
	return parsed.Invite.Code
}

func remainingUses(t *testing.T, client *http.Client, s *testServer, code string) int {
	t.Helper()
	env := getJSON(t, client, s.URL+"/api/v1/invites/validate?invite="+code, http.StatusOK)
	var parsed struct {
		Invite struct {
			RemainingUses int `json:"remaining_uses"`
		} `json:"invite"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &parsed))
	return parsed.Invite.RemainingUses
}

func TestE2E_InviteSubmitApproveFlow(t *testing.T) {
	s := newTestServer(t)
	admin, csrf := s.newClient(t)
	guest, _ := s.newClient(t)

	postJSON(t, admin, s.URL+"/api/v1/auth/login", csrf, http.StatusOK, map[string]any{"password": adminPassword})
	code := createInvite(t, admin, s, csrf)

	// Scenario 1: a fresh invite has all of its uses left.
	require.Equal(t, 3, remainingUses(t, guest, s, code))

	// Scenario 2: an unknown code is rejected.
	env := getJSON(t, guest, s.URL+"/api/v1/invites/validate?invite=ZZ11ZZ", http.StatusNotFound)
	require.Equal(t, "invalid_invite", env.Error.Code)

	// Scenario 3: an empty name is rejected before the invite is touched.
	env = postSubmission(t, guest, s.URL+"/api/v1/submissions", map[string]string{
		"invite": code, "name": "", "phone": "+43 660 1234567", "crop_width": "50", "crop_height": "50",
	}, testPNG(t, 120, 90), http.StatusBadRequest)
	require.Equal(t, "invalid_name", env.Error.Code)
	require.Equal(t, 3, remainingUses(t, guest, s, code))

	// Scenario 4: a good submission is pending and consumes exactly one use.
	env = postSubmission(t, guest, s.URL+"/api/v1/submissions?invite="+code, map[string]string{
		"name":        "Anna",
		"phone":       "+43 660 1234567",
		"crop_unit":   "%",
		"crop_x":      "10",
		"crop_y":      "10",
		"crop_width":  "50",
		"crop_height": "50",
		"pixel_ratio": "2",
	}, testPNG(t, 120, 90), http.StatusCreated)
	var result submissions.Result
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Equal(t, domain.StatusPending, result.Submission.Status)
	require.Equal(t, 2, result.RemainingUses)
	require.Equal(t, 2, remainingUses(t, guest, s, code))

	env = getJSON(t, admin, s.URL+"/api/v1/admin/submissions?status=pending", http.StatusOK)
	var pending struct {
		Submissions []domain.Submission `json:"submissions"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &pending))
	require.Len(t, pending.Submissions, 1)
	require.Equal(t, result.Submission.ID, pending.Submissions[0].ID)

	// Nothing is public until approved.
	env = getJSON(t, guest, s.URL+"/api/v1/photos", http.StatusOK)
	require.JSONEq(t, `{"photos":[]}`, string(env.Data))

	postJSON(t, admin, s.URL+"/api/v1/admin/submissions/"+result.Submission.ID.String()+"/approve", csrf, http.StatusOK,
		map[string]any{"position": "star"})

	env = getJSON(t, guest, s.URL+"/api/v1/photos", http.StatusOK)
	require.NotContains(t, string(env.Data), "660")
	var photos struct {
		Photos []submissions.Photo `json:"photos"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &photos))
	require.Len(t, photos.Photos, 1)
	require.Equal(t, domain.PositionStar, photos.Photos[0].Position)

	resp, err := guest.Get(s.URL + photos.Photos[0].ImageURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	decoded, _, err := image.DecodeConfig(resp.Body)
	require.NoError(t, err)
	require.Equal(t, 90, decoded.Width)
	require.Equal(t, 90, decoded.Height)

	page, err := guest.Get(s.URL + "/")
	require.NoError(t, err)
	defer page.Body.Close()
	html, err := io.ReadAll(page.Body)
	require.NoError(t, err)
	require.Contains(t, string(html), "Photo from Anna")

	// Revoking needs an explicit confirmation.
	env = postJSON(t, admin, s.URL+"/api/v1/admin/submissions/"+result.Submission.ID.String()+"/revoke", csrf, http.StatusBadRequest, map[string]any{})
	require.Equal(t, "confirmation_required", env.Error.Code)
	postJSON(t, admin, s.URL+"/api/v1/admin/submissions/"+result.Submission.ID.String()+"/revoke", csrf, http.StatusOK, map[string]any{"confirm": true})

	env = getJSON(t, guest, s.URL+"/api/v1/photos", http.StatusOK)
	require.JSONEq(t, `{"photos":[]}`, string(env.Data))
}

func TestE2E_InviteExhaustion(t *testing.T) {
	s := newTestServer(t)
	admin, csrf := s.newClient(t)
	guest, _ := s.newClient(t)

	postJSON(t, admin, s.URL+"/api/v1/auth/login", csrf, http.StatusOK, map[string]any{"password": adminPassword})
	env := postJSON(t, admin, s.URL+"/api/v1/admin/invites", csrf, http.StatusCreated, map[string]any{"max_uses": 1})
	var parsed struct {
		Invite struct {
			Code string `json:"code"`
		} `json:"invite"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &parsed))

	fields := map[string]string{
		"invite": parsed.Invite.Code, "name": "Anna", "phone": "+43 660 1234567",
		"crop_width": "40", "crop_height": "40",
	}
	postSubmission(t, guest, s.URL+"/api/v1/submissions", fields, testPNG(t, 60, 60), http.StatusCreated)

	env = postSubmission(t, guest, s.URL+"/api/v1/submissions", fields, testPNG(t, 60, 60), http.StatusConflict)
	require.Equal(t, "invite_exhausted", env.Error.Code)

	env = getJSON(t, guest, s.URL+"/api/v1/invites/validate?invite="+parsed.Invite.Code, http.StatusConflict)
	require.Equal(t, "invite_exhausted", env.Error.Code)
}

func TestE2E_AdminRequiresSession(t *testing.T) {
	s := newTestServer(t)
	client, csrf := s.newClient(t)

	env := getJSON(t, client, s.URL+"/api/v1/admin/submissions", http.StatusUnauthorized)
	require.Equal(t, "unauthorized", env.Error.Code)

	env = postJSON(t, client, s.URL+"/api/v1/auth/login", csrf, http.StatusUnauthorized, map[string]any{"password": "wrong"})
	require.Equal(t, "unauthorized", env.Error.Code)

	resp, err := client.Get(s.URL + "/admin?tab=approved")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/admin/login?next=%2Fadmin%3Ftab%3Dapproved", resp.Header.Get("Location"))

	// Login without the CSRF header is refused.
	req, err := http.NewRequest(http.MethodPost, s.URL+"/api/v1/auth/login", strings.NewReader(`{"password":"`+adminPassword+`"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	env = do(t, client, req, http.StatusForbidden)
	require.Equal(t, "forbidden", env.Error.Code)
}

func TestE2E_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	client, _ := s.newClient(t)

	getJSON(t, client, s.URL+"/healthz", http.StatusOK)
	env := getJSON(t, client, s.URL+"/readyz", http.StatusOK)
	require.Contains(t, string(env.Data), `"store":"ok"`)

	resp, err := client.Get(s.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "holidaytree_http_requests_total")
}

func TestE2E_LivePhotosFeed(t *testing.T) {
	s := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws/photos"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "photos", msg.Type)
	require.JSONEq(t, `[]`, string(msg.Data))

	// An approval elsewhere pushes a fresh list.
	ctx := context.Background()
	inv, err := s.app.Store.CreateInvite(ctx, storetest.NewInvite("AB3X9K", time.Now().Add(time.Hour), 3))
	require.NoError(t, err)
	sub, _, err := s.app.Store.CreateSubmission(ctx, storetest.NewSubmission(inv.ID, "Anna"), store.InviteUse{
		Name:  "Anna",
		Phone: "+43 660 1234567",
		At:    time.Now(),
	})
	require.NoError(t, err)
	_, err = s.app.Store.UpdateSubmission(ctx, sub.ID, store.SubmissionUpdate{
		From:          []domain.Status{domain.StatusPending},
		Status:        domain.StatusApproved,
		SetReviewedAt: true,
		At:            time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, s.app.Broker.Publish(ctx, live.TopicSubmissions))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "photos", msg.Type)
	require.Contains(t, string(msg.Data), sub.ID.String())
}
