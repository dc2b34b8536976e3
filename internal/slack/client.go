// Package slack posts new-submission notices to an incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/aliuyar1234/holidaytree/internal/domain"
	"github.com/rs/zerolog/log"
)

// SubmissionMessage contains everything shown in a new-submission notification
type SubmissionMessage struct {
	Name          string
	InviteCode    string
	RemainingUses int
	ImageURL      string
	DashboardURL  string
}

// Client handles Slack webhook notifications
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	webhookURL string
	baseURL    string
}

// NewClient creates a Slack client posting to webhookURL. An empty webhookURL disables it.
func NewClient(webhookURL, baseURL string, timeoutMS int) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutMS) * time.Millisecond,
		},
		timeout:    time.Duration(timeoutMS) * time.Millisecond,
		webhookURL: webhookURL,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// Enabled reports whether a webhook is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.webhookURL != ""
}

// NotifySubmission announces a submission that is waiting for review.
func (c *Client) NotifySubmission(ctx context.Context, sub domain.Submission, inv domain.Invite) {
	if !c.Enabled() {
		return
	}
	c.PostSubmissionNotification(ctx, SubmissionMessage{
		Name:          sub.Name,
		InviteCode:    inv.Code,
		RemainingUses: inv.RemainingUses(),
		ImageURL:      c.absolute(sub.ImageURL),
		DashboardURL:  c.baseURL + "/admin?tab=pending",
	})
}

func (c *Client) absolute(u string) string {
	if strings.HasPrefix(u, "/") {
		return c.baseURL + u
	}
	return u
}

type slackPayload struct {
	Text string `json:"text"`
}

// PostSubmissionNotification sends msg to the webhook.
// It never returns errors; failures are logged at WARN so a Slack outage cannot fail a submission.
func (c *Client) PostSubmissionNotification(ctx context.Context, msg SubmissionMessage) {
	jsonData, err := json.Marshal(slackPayload{Text: buildMessageText(msg)})
	if err != nil {
		log.Warn().Err(err).Str("invite_code", msg.InviteCode).Msg("Failed to marshal Slack payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		log.Warn().
			Err(err).
			Str("webhook_url", "<set>").
			Msg("Failed to create Slack request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeoutError(err) {
			log.Warn().
				Err(err).
				Dur("timeout_ms", c.timeout).
				Str("invite_code", msg.InviteCode).
				Msg("Slack notification timed out")
		} else {
			log.Warn().
				Err(err).
				Str("invite_code", msg.InviteCode).
				Msg("Failed to send Slack notification")
		}
		return
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		log.Warn().
			Int("status_code", resp.StatusCode).
			Str("invite_code", msg.InviteCode).
			Msg("Slack webhook returned client error (4xx)")
		return
	case resp.StatusCode >= 500:
		log.Warn().
			Int("status_code", resp.StatusCode).
			Str("invite_code", msg.InviteCode).
			Msg("Slack webhook returned server error (5xx)")
		return
	case resp.StatusCode != http.StatusOK:
		log.Warn().
			Int("status_code", resp.StatusCode).
			Str("invite_code", msg.InviteCode).
			Msg("Slack webhook returned unexpected status code")
		return
	}

	log.Info().
		Str("invite_code", msg.InviteCode).
		Int("remaining_uses", msg.RemainingUses).
		Msg("Slack notification sent successfully")
}

func buildMessageText(msg SubmissionMessage) string {
	text := fmt.Sprintf(
		"🎄 *New photo waiting for review*\n\n"+
			"*From:* %s\n"+
			"*Invite:* `%s` (%d uses left)\n",
		msg.Name,
		msg.InviteCode,
		msg.RemainingUses,
	)
	if msg.ImageURL != "" {
		text += fmt.Sprintf("<%s|View photo>\n", msg.ImageURL)
	}
	return text + fmt.Sprintf("\n<%s|Open moderation console>", msg.DashboardURL)
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
