package mcp_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/shopspring/decimal"

	submcp "github.com/nice-bills/substrate/internal/adapter/mcp"
	"github.com/nice-bills/substrate/internal/domain"
	"github.com/nice-bills/substrate/internal/domain/ledger"
)

// --- Mocks ---

type mockLedger struct {
	agents    []ledger.Agent
	tokens    []string
	transfers []string
}

func (m *mockLedger) ListAgents(_ context.Context) []ledger.Agent { return m.agents }

func (m *mockLedger) GetAgent(_ context.Context, id string) (ledger.Agent, error) {
	for _, a := range m.agents {
		if a.ID == id {
			return a, nil
		}
	}
	return ledger.Agent{}, fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
}

func (m *mockLedger) EconomyStats(_ context.Context) ledger.Stats {
	return ledger.Stats{TotalAgents: len(m.agents), TotalCred: decimal.NewFromInt(42)}
}

func (m *mockLedger) RegisterAgent(_ context.Context, token string, p ledger.Profile) (ledger.Agent, error) {
	if p.Name == "" {
		return ledger.Agent{}, fmt.Errorf("name is required: %w", domain.ErrInvalidInput)
	}
	m.tokens = append(m.tokens, token)
	a := ledger.Agent{ID: "new", Name: p.Name}
	m.agents = append(m.agents, a)
	return a, nil
}

func (m *mockLedger) TransferCred(_ context.Context, _ string, from, to string, amount decimal.Decimal, _ string) (ledger.Agent, ledger.Agent, error) {
	if from == "broke" {
		return ledger.Agent{}, ledger.Agent{}, fmt.Errorf("transfer: %w", domain.ErrInsufficientBalance)
	}
	m.transfers = append(m.transfers, from+">"+to+":"+amount.String())
	return ledger.Agent{ID: from}, ledger.Agent{ID: to}, nil
}

func newServer(l submcp.Ledger) *submcp.Server {
	return submcp.NewServer(submcp.ServerConfig{Name: "test", Version: "0.1.0"}, submcp.ServerDeps{Ledger: l})
}

func call(t *testing.T, s *submcp.Server, name string, args map[string]any) *mcplib.CallToolResult {
	t.Helper()
	tool, ok := s.MCPServer().ListTools()[name]
	if !ok {
		t.Fatalf("%s tool not found", name)
	}
	result, err := tool.Handler(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return result
}

func resultText(t *testing.T, r *mcplib.CallToolResult) string {
	t.Helper()
	text, ok := r.Content[0].(mcplib.TextContent)
	if !ok {
		t.Fatal("expected TextContent")
	}
	return text.Text
}

// --- Tests ---

func TestServerStartStop(t *testing.T) {
	s := submcp.NewServer(submcp.ServerConfig{Addr: "127.0.0.1:0", Name: "test", Version: "0.1.0"}, submcp.ServerDeps{})
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestToolRegistration(t *testing.T) {
	tools := newServer(&mockLedger{}).MCPServer().ListTools()

	expected := map[string]bool{
		"list_agents":    false,
		"get_agent":      false,
		"economy_stats":  false,
		"register_agent": false,
		"transfer_cred":  false,
	}
	for name := range tools {
		if _, ok := expected[name]; ok {
			expected[name] = true
		} else {
			t.Errorf("unexpected tool: %s", name)
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("expected tool %q not registered", name)
		}
	}
}

func TestHandleListAgentsLimit(t *testing.T) {
	l := &mockLedger{agents: []ledger.Agent{{ID: "a"}, {ID: "b"}, {ID: "c"}}}
	result := call(t, newServer(l), "list_agents", map[string]any{"limit": 2})
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}
	var agents []ledger.Agent
	if err := json.Unmarshal([]byte(resultText(t, result)), &agents); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if len(agents) != 2 || agents[0].ID != "a" {
		t.Fatalf("expected first 2 agents, got %+v", agents)
	}
}

func TestHandleGetAgentNotFound(t *testing.T) {
	result := call(t, newServer(&mockLedger{}), "get_agent", map[string]any{"agent_id": "ghost"})
	if !result.IsError {
		t.Fatal("expected error result")
	}
	if !strings.Contains(resultText(t, result), domain.KindNotFound) {
		t.Errorf("expected NotFound kind, got %q", resultText(t, result))
	}
}

func TestHandleGetAgentMissingArg(t *testing.T) {
	if result := call(t, newServer(&mockLedger{}), "get_agent", map[string]any{}); !result.IsError {
		t.Fatal("expected error for missing agent_id")
	}
}

func TestHandleRegisterAgent(t *testing.T) {
	l := &mockLedger{}
	result := call(t, newServer(l), "register_agent", map[string]any{"name": "Scout", "idempotency_key": "k1"})
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}
	if len(l.tokens) != 1 || l.tokens[0] != "k1" {
		t.Errorf("expected token k1 forwarded, got %v", l.tokens)
	}
}

func TestHandleTransferCred(t *testing.T) {
	l := &mockLedger{}
	s := newServer(l)

	result := call(t, s, "transfer_cred", map[string]any{"from": "a", "to": "b", "amount": "2.50"})
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}
	if len(l.transfers) != 1 || l.transfers[0] != "a>b:2.5" {
		t.Errorf("unexpected transfers %v", l.transfers)
	}

	if result := call(t, s, "transfer_cred", map[string]any{"from": "a", "to": "b", "amount": "-1"}); !result.IsError {
		t.Error("expected error for negative amount")
	}
	result = call(t, s, "transfer_cred", map[string]any{"from": "broke", "to": "b", "amount": "1"})
	if !result.IsError || !strings.Contains(resultText(t, result), domain.KindInsufficientBalance) {
		t.Errorf("expected InsufficientBalance error, got %v", result.Content)
	}
}

func TestHandleEconomyStats(t *testing.T) {
	result := call(t, newServer(&mockLedger{agents: []ledger.Agent{{ID: "a"}}}), "economy_stats", nil)
	var st ledger.Stats
	if err := json.Unmarshal([]byte(resultText(t, result)), &st); err != nil {
		t.Fatal(err)
	}
	if st.TotalAgents != 1 || !st.TotalCred.Equal(decimal.NewFromInt(42)) {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestNoLedgerConfigured(t *testing.T) {
	if result := call(t, newServer(nil), "list_agents", nil); !result.IsError {
		t.Fatal("expected error without ledger")
	}
}
