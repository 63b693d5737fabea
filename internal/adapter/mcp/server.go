// Package mcp serves the ledger as Model Context Protocol tools so agents can
// use the economy directly.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/shopspring/decimal"

	"github.com/nice-bills/substrate/internal/domain/ledger"
)

// Ledger is the subset of the ledger service the tools call.
type Ledger interface {
	ListAgents(ctx context.Context) []ledger.Agent
	GetAgent(ctx context.Context, id string) (ledger.Agent, error)
	EconomyStats(ctx context.Context) ledger.Stats
	RegisterAgent(ctx context.Context, token string, p ledger.Profile) (ledger.Agent, error)
	TransferCred(ctx context.Context, token, fromID, toID string, amount decimal.Decimal, note string) (ledger.Agent, ledger.Agent, error)
}

// ServerConfig holds the MCP server settings.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
}

// ServerDeps are the services exposed through MCP.
type ServerDeps struct {
	Ledger Ledger
	Logger *slog.Logger
}

// Server hosts the MCP tool server over streamable HTTP at /mcp.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
	httpSrv   *http.Server
	log       *slog.Logger
}

// NewServer creates a server with every tool and resource registered.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithResourceCapabilities(false, false),
		),
		log: log,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server, for tests and embedding.
func (s *Server) MCPServer() *mcpserver.MCPServer { return s.mcpServer }

// Handler returns the streamable HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(s.mcpServer))
	return mux
}

// Start binds cfg.Addr and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("mcp listen %s: %w", s.cfg.Addr, err)
	}
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("mcp server listening", "addr", ln.Addr().String())
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("mcp server error", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down, waiting for in-flight calls until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("mcp shutdown: %w", err)
	}
	return nil
}
