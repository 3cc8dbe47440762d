package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SlackChannel posts alerts to a Slack incoming webhook.
type SlackChannel struct {
	webhookURL string
	client     *http.Client
}

// NewSlackChannel creates a Slack channel with the given delivery timeout.
func NewSlackChannel(webhookURL string, timeout time.Duration) *SlackChannel {
	return &SlackChannel{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
	}
}

// Name implements Channel.
func (s *SlackChannel) Name() string { return "slack" }

// Send posts the message to the webhook.
func (s *SlackChannel) Send(ctx context.Context, message string) error {
	if s.webhookURL == "" {
		return fmt.Errorf("slack webhook URL not configured")
	}

	payload, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post to slack: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("slack webhook error: status %d", resp.StatusCode)
	}
	return nil
}
