// Package slack implements a social.Poster for Slack incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/nice-bills/substrate/internal/port/social"
	"github.com/nice-bills/substrate/internal/resilience"
)

const providerName = "slack"

// Poster publishes announcements to a Slack channel via incoming webhook.
type Poster struct {
	webhookURL string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewPoster creates a Slack poster with the given webhook URL.
func NewPoster(webhookURL string, client *http.Client, breaker *resilience.Breaker) *Poster {
	if client == nil {
		client = http.DefaultClient
	}
	return &Poster{
		webhookURL: webhookURL,
		httpClient: client,
		breaker:    breaker,
	}
}

func (p *Poster) Name() string { return providerName }

// slackMessage is the Slack Block Kit message payload.
type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Publish posts text as a single section block. Incoming webhooks do not
// return a message id, so the id is always empty on success.
func (p *Poster) Publish(ctx context.Context, text string) (string, error) {
	if p.webhookURL == "" {
		return "", social.ErrNotConfigured
	}
	if p.breaker == nil {
		return "", p.send(ctx, text)
	}
	return "", p.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		return p.send(ctx, text)
	})
}

func (p *Poster) send(ctx context.Context, text string) error {
	text = social.Truncate(text)
	msg := slackMessage{
		Text: text,
		Blocks: []slackBlock{
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: text}},
		},
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req) //nolint:gosec // webhook URL from trusted config
	if err != nil {
		return fmt.Errorf("slack send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("slack API %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
