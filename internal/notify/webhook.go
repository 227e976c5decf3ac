package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/omriShneor/calbot/internal/domain"
)

// WebhookNotifier posts created events as JSON to a URL (chat-ops bridges, home automation).
type WebhookNotifier struct {
	httpClient *http.Client
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier() *WebhookNotifier {
	return &WebhookNotifier{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the notifier name
func (w *WebhookNotifier) Name() string {
	return "webhook"
}

// IsConfigured returns true; the destination comes with each Send.
func (w *WebhookNotifier) IsConfigured() bool {
	return true
}

type webhookPayload struct {
	Type   string               `json:"type"`
	Event  domain.CalendarEvent `json:"event"`
	SentAt time.Time            `json:"sentAt"`
}

// Send posts the event to the recipient URL
func (w *WebhookNotifier) Send(ctx context.Context, event domain.CalendarEvent, recipient string) error {
	if recipient == "" {
		return fmt.Errorf("no webhook URL specified")
	}

	jsonData, err := json.Marshal(webhookPayload{
		Type:   "event.created",
		Event:  event,
		SentAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, recipient, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "calbot-webhook/1")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
