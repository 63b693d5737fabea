// Package scanner defines the port to the external security scanning service.
package scanner

import (
	"context"
	"errors"
)

// ErrEmptyResource is returned when neither a URL nor content is given.
var ErrEmptyResource = errors.New("scanner: resource has no url or content")

// Resource is what gets scanned: a remote URL, inline content, or both.
type Resource struct {
	Name    string `json:"name,omitempty"`
	URL     string `json:"url,omitempty"`
	Content string `json:"content,omitempty"`
}

// Finding is one issue reported by the scanner.
type Finding struct {
	Severity string `json:"severity"`
	Rule     string `json:"rule"`
	Message  string `json:"message"`
}

// Report is the scanner's verdict. RiskScore ranges 0-100.
type Report struct {
	RiskScore int       `json:"risk_score"`
	Findings  []Finding `json:"findings"`
}

// Scanner scans a resource for security risks.
type Scanner interface {
	Scan(ctx context.Context, r Resource) (Report, error)
}
