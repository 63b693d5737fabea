package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/nice-bills/substrate/internal/adapter/agentcard"
	subhttp "github.com/nice-bills/substrate/internal/adapter/http"
	submcp "github.com/nice-bills/substrate/internal/adapter/mcp"
	subotel "github.com/nice-bills/substrate/internal/adapter/otel"
	"github.com/nice-bills/substrate/internal/adapter/ws"
	"github.com/nice-bills/substrate/internal/config"
	"github.com/nice-bills/substrate/internal/logger"
	"github.com/nice-bills/substrate/internal/middleware"
	"github.com/nice-bills/substrate/internal/secrets"
	"github.com/nice-bills/substrate/internal/service"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "usage: substrate [--config path] [--port n] [--log-level lvl] [--storage file|postgres] [--dsn dsn] [--nats-url url]")
		fmt.Fprintln(os.Stderr, "       substrate admin <command>")
		os.Exit(2)
	}

	if err := run(flags); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(flags config.CLIFlags) error {
	cfg, configPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	log.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"config_file", configPath,
		"storage", cfg.Storage.Driver,
		"nats", cfg.NATS.URL != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability ---

	shutdownOTEL, err := subotel.Setup(ctx, cfg.OTEL, log)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTEL(sctx); err != nil {
			log.Warn("otel shutdown", "error", err)
		}
	}()
	metrics, err := subotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---

	store, closeStore, err := openSnapshotStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	infra, err := openMessaging(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.close()

	// --- Services ---

	rules, err := cfg.Ledger.Rules()
	if err != nil {
		return fmt.Errorf("ledger rules: %w", err)
	}

	hub := ws.NewHub(log, ws.OriginHosts(cfg.Server.CORSOrigin)...)
	defer hub.Close()

	ledgerSvc := service.NewLedgerService(store, infra.queue, hub, rules)
	ledgerSvc.SetLogger(log)
	ledgerSvc.SetMetrics(metrics)
	genesis, err := ledgerSvc.Open(ctx, cfg.Ledger.GenesisName)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	log.Info("ledger ready", "genesis_id", genesis.ID, "durable_version", ledgerSvc.DurableVersion())

	collab := newCollaborators(cfg, log)

	if collab.poster != nil {
		announcer := service.NewAnnouncerService(infra.queue, collab.poster)
		announcer.SetLogger(log)
		cancelAnnouncer, err := announcer.Start(ctx)
		if err != nil {
			return fmt.Errorf("announcer: %w", err)
		}
		defer cancelAnnouncer()
	}

	chainSvc := service.NewChainViewService(collab.chain, infra.viewCache, cfg.Chain.CacheTTL)
	chainSvc.SetLogger(log)
	securitySvc := service.NewSecurityService(collab.scanner)

	// --- MCP ---

	if cfg.MCP.Addr != "" {
		mcpSrv := submcp.NewServer(submcp.ServerConfig{Addr: cfg.MCP.Addr, Name: "substrate", Version: version},
			submcp.ServerDeps{Ledger: ledgerSvc, Logger: log})
		if err := mcpSrv.Start(); err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mcpSrv.Stop(sctx)
		}()
	}

	// --- HTTP ---

	vault, err := secrets.NewVault(secrets.ConfigLoader(func() (*config.Config, error) {
		c, _, err := config.LoadWithCLI(flags)
		return c, err
	}))
	if err != nil {
		return err
	}
	if vault.Get(secrets.KeyAdminTokenHash) == "" {
		log.Warn("auth.admin_token_hash not set: cred awards are open (development mode)")
	}
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go vault.Watch(ctx, hup, log)

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	handlers := &subhttp.Handlers{
		Ledger:   ledgerSvc,
		Chain:    chainSvc,
		Security: securitySvc,
		Hub:      hub,
		Card:     agentcard.Build(cfg.Server.PublicURL, version),
		Version:  version,
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(subhttp.Logger(log))
	r.Use(chimw.Recoverer)
	r.Use(subotel.HTTPMiddleware(cfg.OTEL.ServiceName))
	r.Use(subhttp.SecurityHeaders)
	r.Use(subhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(limiter.Handler)

	subhttp.MountRoutes(r, handlers, subhttp.RouteOptions{
		AdminTokenHash: vault.Getter(secrets.KeyAdminTokenHash),
		RequestTimeout: cfg.Server.RequestTimeout,
		Idempotency:    middleware.Idempotency(infra.replayCache, cfg.NATS.IdempotencyTTL),
	})

	addr := ":" + cfg.Server.Port

	// No WriteTimeout: /ws streams for the life of the connection.
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
