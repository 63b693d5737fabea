package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/nice-bills/substrate/internal/domain"
	"github.com/nice-bills/substrate/internal/port/scanner"
)

// maxScanContent bounds inline content sent to the scanner.
const maxScanContent = 256 << 10

// ErrScannerDisabled is returned when no scanner is configured.
var ErrScannerDisabled = errors.New("security scanner not configured")

// SecurityService validates scan requests and forwards them to the external
// scanner. It is independent of the ledger.
type SecurityService struct {
	scanner scanner.Scanner
}

// NewSecurityService creates a SecurityService. A nil scanner disables scanning.
func NewSecurityService(s scanner.Scanner) *SecurityService {
	return &SecurityService{scanner: s}
}

// Enabled reports whether a scanner is configured.
func (s *SecurityService) Enabled() bool { return s.scanner != nil }

// Scan checks r and returns the scanner's report.
func (s *SecurityService) Scan(ctx context.Context, r scanner.Resource) (scanner.Report, error) {
	if s.scanner == nil {
		return scanner.Report{}, ErrScannerDisabled
	}
	r.URL = strings.TrimSpace(r.URL)
	if r.URL == "" && strings.TrimSpace(r.Content) == "" {
		return scanner.Report{}, fmt.Errorf("%w: %w", scanner.ErrEmptyResource, domain.ErrInvalidInput)
	}
	if r.URL != "" {
		u, err := url.Parse(r.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return scanner.Report{}, fmt.Errorf("url must be an absolute http(s) url: %w", domain.ErrInvalidInput)
		}
	}
	if len(r.Content) > maxScanContent {
		return scanner.Report{}, fmt.Errorf("content exceeds %d bytes: %w", maxScanContent, domain.ErrInvalidInput)
	}

	rep, err := s.scanner.Scan(ctx, r)
	if err != nil {
		return scanner.Report{}, fmt.Errorf("scan: %w", err)
	}
	rep.RiskScore = min(max(rep.RiskScore, 0), 100)
	if rep.Findings == nil {
		rep.Findings = []scanner.Finding{}
	}
	return rep, nil
}
