package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nice-bills/substrate/internal/adapter/discord"
	"github.com/nice-bills/substrate/internal/adapter/evmrpc"
	"github.com/nice-bills/substrate/internal/adapter/filesnap"
	"github.com/nice-bills/substrate/internal/adapter/localqueue"
	"github.com/nice-bills/substrate/internal/adapter/moltx"
	"github.com/nice-bills/substrate/internal/adapter/nats"
	"github.com/nice-bills/substrate/internal/adapter/natskv"
	subotel "github.com/nice-bills/substrate/internal/adapter/otel"
	"github.com/nice-bills/substrate/internal/adapter/postgres"
	"github.com/nice-bills/substrate/internal/adapter/ristretto"
	"github.com/nice-bills/substrate/internal/adapter/slack"
	"github.com/nice-bills/substrate/internal/adapter/tiered"
	"github.com/nice-bills/substrate/internal/adapter/x402guard"
	"github.com/nice-bills/substrate/internal/config"
	"github.com/nice-bills/substrate/internal/port/cache"
	"github.com/nice-bills/substrate/internal/port/chain"
	"github.com/nice-bills/substrate/internal/port/messagequeue"
	"github.com/nice-bills/substrate/internal/port/scanner"
	"github.com/nice-bills/substrate/internal/port/snapshot"
	"github.com/nice-bills/substrate/internal/port/social"
	"github.com/nice-bills/substrate/internal/resilience"
)

const localQueueBuffer = 1024

// openSnapshotStore returns the configured snapshot store and its cleanup.
func openSnapshotStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (snapshot.Store, func(), error) {
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		log.Info("snapshot store: postgres")
		return postgres.NewSnapshotStore(pool), pool.Close, nil
	default:
		store, err := filesnap.New(cfg.Storage.FilePath)
		if err != nil {
			return nil, nil, fmt.Errorf("snapshot file: %w", err)
		}
		log.Info("snapshot store: file", "path", store.Path())
		return store.WithLogger(log), func() {}, nil
	}
}

// messaging bundles the event queue and the caches that share its lifetime.
type messaging struct {
	queue       messagequeue.Queue
	viewCache   cache.Cache // chain views, process local
	replayCache cache.Cache // idempotent responses, shared across replicas when NATS is on
	closers     []func()
}

func (m *messaging) close() {
	for i := len(m.closers) - 1; i >= 0; i-- {
		m.closers[i]()
	}
}

// openMessaging connects to NATS when configured and falls back to the
// in-process queue otherwise.
func openMessaging(ctx context.Context, cfg *config.Config, log *slog.Logger) (*messaging, error) {
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	m := &messaging{viewCache: l1, replayCache: l1}
	m.closers = append(m.closers, l1.Close)

	if cfg.NATS.URL == "" {
		q := localqueue.New(localQueueBuffer, log)
		m.queue = q
		m.closers = append(m.closers, func() {
			if err := q.Drain(); err != nil {
				log.Warn("queue drain", "error", err)
			}
		})
		log.Info("event queue: in-process")
		return m, nil
	}

	q, err := nats.Connect(ctx, cfg.NATS.URL, log)
	if err != nil {
		m.close()
		return nil, fmt.Errorf("nats: %w", err)
	}
	m.queue = q
	m.closers = append(m.closers, func() {
		if err := q.Drain(); err != nil {
			log.Warn("nats drain", "error", err)
		}
	})

	kv, err := q.KeyValue(ctx, cfg.NATS.IdempotencyBucket, cfg.NATS.IdempotencyTTL)
	if err != nil {
		m.close()
		return nil, fmt.Errorf("nats kv: %w", err)
	}
	m.replayCache = tiered.New(l1, natskv.New(kv), cfg.Cache.L2TTL).WithLogger(log)
	log.Info("event queue: nats", "url", cfg.NATS.URL, "idempotency_bucket", cfg.NATS.IdempotencyBucket)
	return m, nil
}

// collaborators holds the outbound integrations. Unconfigured ones stay nil.
type collaborators struct {
	poster  social.Poster
	chain   chain.Reader
	scanner scanner.Scanner
}

func newCollaborators(cfg *config.Config, log *slog.Logger) collaborators {
	breaker := func(name string) *resilience.Breaker {
		return resilience.NewBreaker(name, cfg.Breaker.MaxFailures, cfg.Breaker.Timeout).WithLogger(log)
	}
	client := func(timeout time.Duration) *http.Client {
		return &http.Client{Transport: subotel.Transport(nil), Timeout: timeout}
	}

	var c collaborators

	var posters social.Chain
	if cfg.Social.MoltxKey != "" {
		posters = append(posters, moltx.NewPoster(cfg.Social.MoltxURL, cfg.Social.MoltxKey, client(cfg.Social.Timeout), breaker("moltx")))
	}
	if cfg.Social.DiscordWebhook != "" {
		posters = append(posters, discord.NewPoster(cfg.Social.DiscordWebhook, client(cfg.Social.Timeout), breaker("discord")))
	}
	if cfg.Social.SlackWebhook != "" {
		posters = append(posters, slack.NewPoster(cfg.Social.SlackWebhook, client(cfg.Social.Timeout), breaker("slack")))
	}
	if len(posters) > 0 {
		c.poster = posters
	} else {
		log.Info("announcements disabled: no social poster configured")
	}

	if cfg.Chain.RPCURL != "" {
		reader, err := evmrpc.New(evmrpc.Options{
			URL:             cfg.Chain.RPCURL,
			RegistryAddress: cfg.Chain.RegistryAddress,
			MaxConcurrent:   cfg.Chain.MaxConcurrent,
			MaxIdentities:   cfg.Chain.MaxIdentities,
			HTTPClient:      client(10 * time.Second),
			Breaker:         breaker("evmrpc"),
		})
		if err != nil {
			log.Warn("chain views disabled", "error", err)
		} else {
			c.chain = reader
		}
	}

	if cfg.Scanner.URL != "" {
		c.scanner = x402guard.NewClient(cfg.Scanner.URL, cfg.Scanner.APIKey, client(cfg.Scanner.Timeout), breaker("x402guard"))
	}
	return c
}
