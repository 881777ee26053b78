// Package notify delivers alerts for interesting emails to Slack and an
// external webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/brandon/onebox/pkg/types"
)

const previewLimit = 200

// Service sends notifications. Either destination may be unconfigured, in
// which case its delivery path is a no-op returning false.
type Service struct {
	slackURL   string
	webhookURL string
	client     *http.Client
	logger     *logrus.Logger
}

// NewService creates a new notification service
func NewService(slackURL, webhookURL string, logger *logrus.Logger) *Service {
	return &Service{
		slackURL:   slackURL,
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// NotifySlack posts a formatted message to the configured Slack webhook.
// Returns whether delivery succeeded; failures are logged, never propagated.
func (s *Service) NotifySlack(ctx context.Context, email *types.Email) bool {
	if s.slackURL == "" {
		s.logger.Warn("Slack webhook URL not configured, skipping notification")
		return false
	}

	message := map[string]interface{}{
		"blocks": []interface{}{
			map[string]interface{}{
				"type": "header",
				"text": map[string]interface{}{
					"type":  "plain_text",
					"text":  "🎯 Interested Lead Detected!",
					"emoji": true,
				},
			},
			map[string]interface{}{
				"type": "section",
				"fields": []interface{}{
					mrkdwn("*From:* " + orUnknown(email.Headers.From)),
					mrkdwn("*Category:* " + string(email.Category)),
					mrkdwn("*Subject:* " + orUnknown(email.Headers.Subject)),
					mrkdwn("*Received:* " + email.ReceivedDate.Format(time.RFC1123)),
				},
			},
			map[string]interface{}{
				"type": "section",
				"text": mrkdwn("*Email Preview:*\n" + preview(email.Body.Text)),
			},
		},
	}

	ok := s.post(ctx, s.slackURL, message)
	if ok {
		s.logger.WithField("email_id", email.ID).Info("Slack notification sent")
	}
	return ok
}

// NotifyWebhook posts the email summary to the configured external webhook.
func (s *Service) NotifyWebhook(ctx context.Context, email *types.Email) bool {
	if s.webhookURL == "" {
		s.logger.Warn("External webhook URL not configured, skipping notification")
		return false
	}

	payload := map[string]interface{}{
		"id":              email.ID,
		"from":            email.Headers.From,
		"subject":         email.Headers.Subject,
		"category":        email.Category,
		"received_date":   email.ReceivedDate,
		"message_preview": preview(email.Body.Text),
		"account_info": map[string]string{
			"account_id": email.AccountID,
			"folder":     email.Folder,
		},
	}

	ok := s.post(ctx, s.webhookURL, payload)
	if ok {
		s.logger.WithField("email_id", email.ID).Info("Webhook notification sent")
	}
	return ok
}

// post delivers one JSON payload, reporting success as a 2xx response.
func (s *Service) post(ctx context.Context, url string, payload interface{}) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).Error("Failed to marshal notification payload")
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		s.logger.WithError(err).Error("Failed to create notification request")
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.WithError(err).Error("Failed to deliver notification")
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.logger.WithField("status", resp.StatusCode).Error("Notification delivery rejected")
		return false
	}
	return true
}

func mrkdwn(text string) map[string]interface{} {
	return map[string]interface{}{"type": "mrkdwn", "text": text}
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// preview cuts the body to at most previewLimit bytes on a rune boundary.
func preview(text string) string {
	if len(text) <= previewLimit {
		return text
	}
	limit := previewLimit
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit] + "..."
}
