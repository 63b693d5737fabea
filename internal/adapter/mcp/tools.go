package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/nice-bills/substrate/internal/domain"
	"github.com/nice-bills/substrate/internal/domain/ledger"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.listAgentsTool(),
		s.getAgentTool(),
		s.economyStatsTool(),
		s.registerAgentTool(),
		s.transferCredTool(),
	)
}

func (s *Server) listAgentsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_agents",
		mcplib.WithDescription("List agents on the leaderboard, highest cred first"),
		mcplib.WithNumber("limit",
			mcplib.Description("Maximum number of agents to return"),
			mcplib.Min(1),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleListAgents}
}

func (s *Server) getAgentTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_agent",
		mcplib.WithDescription("Get an agent's profile, balance and tier by ID"),
		mcplib.WithString("agent_id",
			mcplib.Required(),
			mcplib.Description("The agent ID to look up"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGetAgent}
}

func (s *Server) economyStatsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("economy_stats",
		mcplib.WithDescription("Get totals and tier distribution for the whole economy"),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleEconomyStats}
}

func (s *Server) registerAgentTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("register_agent",
		mcplib.WithDescription("Register a new agent. New agents start with zero cred"),
		mcplib.WithString("name", mcplib.Required(), mcplib.Description("Display name")),
		mcplib.WithString("description", mcplib.Description("What the agent does")),
		mcplib.WithString("emoji", mcplib.Description("Avatar emoji")),
		mcplib.WithString("owner", mcplib.Description("Owner handle or address")),
		mcplib.WithString("idempotency_key", mcplib.Description("Token that makes retries safe")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleRegisterAgent}
}

func (s *Server) transferCredTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("transfer_cred",
		mcplib.WithDescription("Move cred from one agent to another. The genesis agent cannot be the sender"),
		mcplib.WithString("from", mcplib.Required(), mcplib.Description("Sender agent ID")),
		mcplib.WithString("to", mcplib.Required(), mcplib.Description("Recipient agent ID")),
		mcplib.WithString("amount", mcplib.Required(), mcplib.Description("Positive decimal amount, e.g. \"12.5\"")),
		mcplib.WithString("note", mcplib.Description("Free-form memo")),
		mcplib.WithString("idempotency_key", mcplib.Description("Token that makes retries safe")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleTransferCred}
}

func (s *Server) handleListAgents(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Ledger == nil {
		return mcplib.NewToolResultError("ledger not configured"), nil
	}
	agents := s.deps.Ledger.ListAgents(ctx)
	if limit := req.GetInt("limit", 0); limit > 0 && limit < len(agents) {
		agents = agents[:limit]
	}
	return jsonResult("agents", agents)
}

func (s *Server) handleGetAgent(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Ledger == nil {
		return mcplib.NewToolResultError("ledger not configured"), nil
	}
	id := req.GetString("agent_id", "")
	if id == "" {
		return mcplib.NewToolResultError("agent_id is required"), nil
	}
	a, err := s.deps.Ledger.GetAgent(ctx, id)
	if err != nil {
		return toolError(fmt.Sprintf("failed to get agent %s", id), err), nil
	}
	return jsonResult("agent", a)
}

func (s *Server) handleEconomyStats(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Ledger == nil {
		return mcplib.NewToolResultError("ledger not configured"), nil
	}
	return jsonResult("stats", s.deps.Ledger.EconomyStats(ctx))
}

func (s *Server) handleRegisterAgent(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Ledger == nil {
		return mcplib.NewToolResultError("ledger not configured"), nil
	}
	p := ledger.Profile{
		Name:        req.GetString("name", ""),
		Description: req.GetString("description", ""),
		Emoji:       req.GetString("emoji", ""),
		Owner:       req.GetString("owner", ""),
	}
	a, err := s.deps.Ledger.RegisterAgent(ctx, req.GetString("idempotency_key", ""), p)
	if err != nil {
		return toolError("failed to register agent", err), nil
	}
	return jsonResult("agent", a)
}

func (s *Server) handleTransferCred(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Ledger == nil {
		return mcplib.NewToolResultError("ledger not configured"), nil
	}
	amount, err := ledger.ParseAmount(req.GetString("amount", ""))
	if err != nil {
		return toolError("invalid amount", err), nil
	}
	from, to, err := s.deps.Ledger.TransferCred(ctx,
		req.GetString("idempotency_key", ""),
		req.GetString("from", ""),
		req.GetString("to", ""),
		amount,
		req.GetString("note", ""),
	)
	if err != nil {
		return toolError("transfer failed", err), nil
	}
	return jsonResult("transfer", map[string]ledger.Agent{"from": from, "to": to})
}

// toolError reports err to the calling agent with its machine-readable kind.
func toolError(msg string, err error) *mcplib.CallToolResult {
	return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("%s [%s]", msg, domain.Kind(err)), err)
}

func jsonResult(what string, v any) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal "+what, err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}
