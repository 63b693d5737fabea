// Package discord implements a social.Poster for Discord webhooks.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/nice-bills/substrate/internal/port/social"
	"github.com/nice-bills/substrate/internal/resilience"
)

const providerName = "discord"

// embedColor is the Substrate accent used on every announcement.
const embedColor = 0x8E44AD

// Poster publishes announcements to a Discord channel via incoming webhook.
type Poster struct {
	webhookURL string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewPoster creates a Discord poster with the given webhook URL.
// A nil client uses http.DefaultClient; a nil breaker calls straight through.
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

// discordWebhook is the Discord webhook payload with embeds.
type discordWebhook struct {
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Description string `json:"description"`
	Color       int    `json:"color"`
}

// Publish posts text as a single embed and returns the Discord message id.
func (p *Poster) Publish(ctx context.Context, text string) (string, error) {
	if p.webhookURL == "" {
		return "", social.ErrNotConfigured
	}
	var id string
	call := func(ctx context.Context) error {
		var err error
		id, err = p.send(ctx, text)
		return err
	}
	if p.breaker == nil {
		return id, call(ctx)
	}
	return id, p.breaker.ExecuteContext(ctx, call)
}

func (p *Poster) send(ctx context.Context, text string) (string, error) {
	msg := discordWebhook{
		Username: "Substrate",
		Embeds:   []discordEmbed{{Description: social.Truncate(text), Color: embedColor}},
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("discord marshal: %w", err)
	}

	u, err := url.Parse(p.webhookURL)
	if err != nil {
		return "", fmt.Errorf("discord webhook url: %w", err)
	}
	q := u.Query()
	q.Set("wait", "true")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req) //nolint:gosec // webhook URL from trusted config
	if err != nil {
		return "", fmt.Errorf("discord send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("discord API %d: %s", resp.StatusCode, string(respBody))
	}

	// With wait=true Discord answers with the created message.
	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil && resp.StatusCode != http.StatusNoContent {
		return "", fmt.Errorf("discord decode: %w", err)
	}
	return created.ID, nil
}
