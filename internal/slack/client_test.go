package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aliuyar1234/holidaytree/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNotifySubmission(t *testing.T) {
	received := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p slackPayload
		if r.Header.Get("Content-Type") != "application/json" || json.NewDecoder(r.Body).Decode(&p) != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		received <- p.Text
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	expires := time.Now().Add(time.Hour)
	maxUses := 3
	c := NewClient(srv.URL, "https://tree.example.com/", 1000)
	c.NotifySubmission(context.Background(),
		domain.Submission{ID: uuid.New(), Name: "Grandma", ImageURL: "/media/submissions/1-x.jpg"},
		domain.Invite{Code: "AB3X9K", ExpiresAt: &expires, MaxUses: &maxUses, UseCount: 1},
	)

	select {
	case text := <-received:
		require.Contains(t, text, "Grandma")
		require.Contains(t, text, "`AB3X9K` (2 uses left)")
		require.Contains(t, text, "https://tree.example.com/media/submissions/1-x.jpg")
		require.Contains(t, text, "https://tree.example.com/admin?tab=pending")
	default:
		t.Fatal("webhook was not called")
	}
}

func TestNotifySubmission_Disabled(t *testing.T) {
	var c *Client
	require.False(t, c.Enabled())
	c.NotifySubmission(context.Background(), domain.Submission{}, domain.Invite{})

	require.False(t, NewClient("", "http://localhost", 100).Enabled())
}

func TestPostSubmissionNotification_FailuresAreSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	NewClient(srv.URL, "", 1000).PostSubmissionNotification(context.Background(), SubmissionMessage{Name: "x"})

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer slow.Close()
	NewClient(slow.URL, "", 20).PostSubmissionNotification(context.Background(), SubmissionMessage{Name: "x"})
}

func TestIsTimeoutError(t *testing.T) {
	require.True(t, isTimeoutError(context.DeadlineExceeded))
	require.False(t, isTimeoutError(context.Canceled))
}
