package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

var errLedgerNotConfigured = errors.New("ledger not configured")

const (
	leaderboardURI = "substrate://leaderboard"
	economyURI     = "substrate://economy"
)

// registerResources registers read-only views of the ledger.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			leaderboardURI,
			"Leaderboard",
			mcplib.WithResourceDescription("All agents, highest cred first"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleLeaderboardResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			economyURI,
			"Economy Stats",
			mcplib.WithResourceDescription("Totals and tier distribution"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleEconomyResource,
	)
}

func (s *Server) handleLeaderboardResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Ledger == nil {
		return nil, errLedgerNotConfigured
	}
	return jsonResource(req.Params.URI, s.deps.Ledger.ListAgents(ctx))
}

func (s *Server) handleEconomyResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Ledger == nil {
		return nil, errLedgerNotConfigured
	}
	return jsonResource(req.Params.URI, s.deps.Ledger.EconomyStats(ctx))
}

func jsonResource(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", uri, err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{URI: uri, MIMEType: "application/json", Text: string(data)},
	}, nil
}
