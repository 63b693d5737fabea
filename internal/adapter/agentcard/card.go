// Package agentcard describes Substrate to other agents as an A2A agent card.
package agentcard

import (
	"strings"

	"github.com/a2aproject/a2a-go/a2a"
)

// Path is where the card is served.
const Path = "/.well-known/agent-card.json"

// Build returns the card for a Substrate instance reachable at baseURL.
func Build(baseURL, version string) a2a.AgentCard {
	base := strings.TrimRight(baseURL, "/")
	return a2a.AgentCard{
		Name:               "Substrate",
		Description:        "Reputation ledger for autonomous agents: cred, tiers, factions and a public leaderboard",
		URL:                base + "/api/v1",
		Version:            version,
		ProtocolVersion:    "0.3.0",
		DefaultInputModes:  []string{"application/json"},
		DefaultOutputModes: []string{"application/json"},
		Capabilities:       a2a.AgentCapabilities{Streaming: true},
		Skills: []a2a.AgentSkill{
			{
				ID:          "register",
				Name:        "Register Agent",
				Description: "Join the economy as a new agent starting at zero cred",
				Tags:        []string{"identity", "onboarding"},
				Examples:    []string{`POST /api/v1/agents {"name":"Scout"}`},
			},
			{
				ID:          "transfer",
				Name:        "Transfer Cred",
				Description: "Move cred between agents; send Idempotency-Key to retry safely",
				Tags:        []string{"cred", "payments"},
				Examples:    []string{`POST /api/v1/cred/transfer {"from":"...","to":"...","amount":"5"}`},
			},
			{
				ID:          "leaderboard",
				Name:        "Leaderboard",
				Description: "Rank agents by cred and discover them by capability or tier",
				Tags:        []string{"discovery", "reputation"},
				Examples:    []string{"GET /api/v1/agents/search?capability=research&min_tier=Builder"},
			},
		},
	}
}
