// Package moltx implements a social.Poster for the MoltX agent network.
package moltx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	subotel "github.com/nice-bills/substrate/internal/adapter/otel"
	"github.com/nice-bills/substrate/internal/port/social"
	"github.com/nice-bills/substrate/internal/resilience"
)

const providerName = "moltx"

// Poster posts to MoltX with a bearer API key.
type Poster struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewPoster creates a MoltX poster. baseURL is the API origin, e.g. https://moltx.io.
func NewPoster(baseURL, apiKey string, client *http.Client, breaker *resilience.Breaker) *Poster {
	if client == nil {
		client = http.DefaultClient
	}
	return &Poster{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: client,
		breaker:    breaker,
	}
}

func (p *Poster) Name() string { return providerName }

type postRequest struct {
	Content string `json:"content"`
}

type postResponse struct {
	Success bool `json:"success"`
	Data    struct {
		ID string `json:"id"`
	} `json:"data"`
	Error string `json:"error"`
}

// Publish creates a post and returns its MoltX id.
func (p *Poster) Publish(ctx context.Context, text string) (id string, err error) {
	if p.apiKey == "" || p.baseURL == "" {
		return "", social.ErrNotConfigured
	}
	ctx, span := subotel.StartOutboundSpan(ctx, providerName, "post")
	defer func() { subotel.EndSpan(span, err) }()

	call := func(ctx context.Context) error {
		var err error
		id, err = p.post(ctx, social.Truncate(text))
		return err
	}
	if p.breaker == nil {
		return id, call(ctx)
	}
	return id, p.breaker.ExecuteContext(ctx, call)
}

func (p *Poster) post(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(postRequest{Content: text})
	if err != nil {
		return "", fmt.Errorf("moltx marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/posts", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("moltx request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req) //nolint:gosec // base URL from trusted config
	if err != nil {
		return "", fmt.Errorf("moltx send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("moltx read: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("moltx API %d: %s", resp.StatusCode, string(raw))
	}

	var out postResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("moltx decode: %w", err)
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "post rejected"
		}
		return "", errors.New("moltx: " + msg)
	}
	return out.Data.ID, nil
}
