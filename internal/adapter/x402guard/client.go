// Package x402guard is an HTTP client for the x402guard skill scanner.
package x402guard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	subotel "github.com/nice-bills/substrate/internal/adapter/otel"
	"github.com/nice-bills/substrate/internal/port/scanner"
	"github.com/nice-bills/substrate/internal/resilience"
)

// Client calls POST {baseURL}/scan.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a scanner client. apiKey may be empty for open endpoints.
func NewClient(baseURL, apiKey string, client *http.Client, breaker *resilience.Breaker) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: client,
		breaker:    breaker,
	}
}

type scanRequest struct {
	Name     string `json:"name,omitempty"`
	URL      string `json:"skill_url,omitempty"`
	Content  string `json:"content,omitempty"`
	ScanType string `json:"scan_type"`
}

type scanResponse struct {
	ScanID    string            `json:"scan_id"`
	Status    string            `json:"status"`
	RiskScore int               `json:"risk_score"`
	Findings  []scanner.Finding `json:"findings"`
}

// Scan submits r and returns the scanner's report.
func (c *Client) Scan(ctx context.Context, r scanner.Resource) (rep scanner.Report, err error) {
	ctx, span := subotel.StartOutboundSpan(ctx, "x402guard", "scan")
	defer func() { subotel.EndSpan(span, err) }()

	req := scanRequest{Name: r.Name, URL: r.URL, Content: r.Content, ScanType: "standard"}
	if r.Content != "" {
		req.ScanType = "deep"
	}

	call := func(ctx context.Context) error {
		var err error
		rep, err = c.do(ctx, req)
		return err
	}
	if c.breaker == nil {
		return rep, call(ctx)
	}
	return rep, c.breaker.ExecuteContext(ctx, call)
}

func (c *Client) do(ctx context.Context, in scanRequest) (scanner.Report, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return scanner.Report{}, fmt.Errorf("x402guard marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/scan", bytes.NewReader(body))
	if err != nil {
		return scanner.Report{}, fmt.Errorf("x402guard request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // scanner URL from trusted config
	if err != nil {
		return scanner.Report{}, fmt.Errorf("x402guard send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return scanner.Report{}, fmt.Errorf("x402guard API %d: %s", resp.StatusCode, string(msg))
	}

	var out scanResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return scanner.Report{}, fmt.Errorf("x402guard decode: %w", err)
	}
	return scanner.Report{RiskScore: out.RiskScore, Findings: out.Findings}, nil
}
