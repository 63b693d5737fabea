package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/nice-bills/substrate/internal/logger"
	"github.com/nice-bills/substrate/internal/port/cache"
	"github.com/nice-bills/substrate/internal/port/chain"
)

// BalanceView is the on-chain balance of one address.
type BalanceView struct {
	Available bool             `json:"available"`
	Address   string           `json:"address"`
	Balance   *decimal.Decimal `json:"balance,omitempty"`
}

// RegistryView lists on-chain identities.
type RegistryView struct {
	Available  bool             `json:"available"`
	Identities []chain.Identity `json:"identities,omitempty"`
}

// ChainViewService serves read-only on-chain views for the leaderboard.
// Results are cached and concurrent misses share one upstream call. Any
// failure degrades to Available=false; nothing here touches the ledger.
type ChainViewService struct {
	reader chain.Reader
	cache  cache.Cache
	ttl    time.Duration
	group  singleflight.Group
	log    *slog.Logger
}

// NewChainViewService creates a ChainViewService. A nil reader reports
// every view as unavailable.
func NewChainViewService(reader chain.Reader, c cache.Cache, ttl time.Duration) *ChainViewService {
	return &ChainViewService{reader: reader, cache: c, ttl: ttl, log: slog.Default()}
}

// SetLogger sets the service logger.
func (s *ChainViewService) SetLogger(l *slog.Logger) { s.log = l }

// Balance returns the on-chain balance of address.
func (s *ChainViewService) Balance(ctx context.Context, address string) BalanceView {
	address = strings.ToLower(strings.TrimSpace(address))
	view := BalanceView{Address: address}
	if s.reader == nil {
		return view
	}
	var bal decimal.Decimal
	if !s.load(ctx, "chain:balance:"+address, &bal, func(ctx context.Context) (any, error) {
		return s.reader.Balance(ctx, address)
	}) {
		return view
	}
	view.Available = true
	view.Balance = &bal
	return view
}

// Registry returns the identities minted in the registry.
func (s *ChainViewService) Registry(ctx context.Context) RegistryView {
	if s.reader == nil {
		return RegistryView{}
	}
	var ids []chain.Identity
	if !s.load(ctx, "chain:registry", &ids, func(ctx context.Context) (any, error) {
		return s.reader.Registry(ctx)
	}) {
		return RegistryView{}
	}
	return RegistryView{Available: true, Identities: ids}
}

// load fills dst from cache or via fetch, reporting whether it succeeded.
func (s *ChainViewService) load(ctx context.Context, key string, dst any, fetch func(context.Context) (any, error)) bool {
	log := logger.From(ctx, s.log)
	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			if json.Unmarshal(data, dst) == nil {
				return true
			}
		}
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		val, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
				log.Warn("chain view: cache set failed", "key", key, "error", err)
			}
		}
		return data, nil
	})
	if err != nil {
		log.Warn("chain view unavailable", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal(v.([]byte), dst); err != nil {
		log.Warn("chain view: decode failed", "key", key, "error", err)
		return false
	}
	return true
}
