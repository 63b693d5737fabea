package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	subotel "github.com/nice-bills/substrate/internal/adapter/otel"
	"github.com/nice-bills/substrate/internal/domain"
	"github.com/nice-bills/substrate/internal/domain/ledger"
	"github.com/nice-bills/substrate/internal/logger"
	"github.com/nice-bills/substrate/internal/port/broadcast"
	"github.com/nice-bills/substrate/internal/port/messagequeue"
	"github.com/nice-bills/substrate/internal/port/snapshot"
)

// LedgerService is the single owner of the reputation ledger. Mutations are
// serialized under one writer lock; each one stages a versioned snapshot and
// returns only after a snapshot at least that new is durable. Events are
// published after the durable commit.
type LedgerService struct {
	store   snapshot.Store
	queue   messagequeue.Queue
	hub     broadcast.Broadcaster
	rules   ledger.Rules
	metrics *subotel.Metrics
	log     *slog.Logger
	now     func() time.Time
	newID   func() string

	mu      sync.RWMutex
	state   *ledger.State
	version uint64
	epoch   uint64
	pending staged

	// persistMu is always taken before mu.
	persistMu sync.Mutex
	durable   staged
	// floors[e] is the durable version when epoch e was rolled back. Versions
	// at or below it were committed; later ones from that epoch were discarded.
	floors []uint64
}

type staged struct {
	version uint64
	data    []byte
}

type ledgerEvent struct {
	subject string
	payload any
}

// NewLedgerService creates a LedgerService. Call Open before use.
// queue may be nil when events are not needed.
func NewLedgerService(store snapshot.Store, queue messagequeue.Queue, hub broadcast.Broadcaster, rules ledger.Rules) *LedgerService {
	if hub == nil {
		hub = broadcast.Nop{}
	}
	return &LedgerService{
		store: store,
		queue: queue,
		hub:   hub,
		rules: rules,
		log:   slog.Default(),
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
		state: ledger.NewState(rules),
	}
}

// SetLogger sets the service logger.
func (s *LedgerService) SetLogger(l *slog.Logger) { s.log = l }

// SetMetrics attaches metric instruments.
func (s *LedgerService) SetMetrics(m *subotel.Metrics) { s.metrics = m }

// SetClock replaces the wall clock, for tests.
func (s *LedgerService) SetClock(now func() time.Time) { s.now = now }

// SetIDGenerator replaces the uuid generator, for tests.
func (s *LedgerService) SetIDGenerator(fn func() string) { s.newID = fn }

// Open loads the durable snapshot and makes sure a genesis agent exists.
// A freshly created genesis is persisted before Open returns.
func (s *LedgerService) Open(ctx context.Context, genesisName string) (ledger.Agent, error) {
	version, data, err := s.store.Load(ctx)
	switch {
	case errors.Is(err, snapshot.ErrNoSnapshot):
		s.log.Info("no ledger snapshot found, starting empty")
	case err != nil:
		return ledger.Agent{}, fmt.Errorf("load snapshot: %w", err)
	default:
		st, err := ledger.RestoreState(s.rules, data)
		if err != nil {
			return ledger.Agent{}, fmt.Errorf("restore snapshot v%d: %w", version, err)
		}
		s.mu.Lock()
		s.state = st
		s.version = version
		s.pending = staged{version: version, data: data}
		s.mu.Unlock()
		s.persistMu.Lock()
		s.durable = staged{version: version, data: data}
		s.persistMu.Unlock()
		s.log.Info("ledger snapshot restored", "version", version, "agents", len(st.Agents()), "factions", len(st.Factions()))
	}

	var (
		genesis ledger.Agent
		created bool
	)
	err = s.mutate(ctx, "", ledger.OpRegisterAgent, func(st *ledger.State, now time.Time) ([]ledgerEvent, error) {
		var err error
		genesis, created, err = st.EnsureGenesis(s.newID(), genesisName, now)
		if err != nil || !created {
			return nil, err
		}
		return []ledgerEvent{{messagequeue.SubjectAgentRegistered, messagequeue.AgentRegisteredPayload{
			AgentID: genesis.ID, Name: genesis.Name, Genesis: true,
		}}}, nil
	})
	if err != nil {
		return ledger.Agent{}, fmt.Errorf("ensure genesis: %w", err)
	}
	if created {
		s.log.Info("genesis agent created", "agent_id", genesis.ID, "name", genesis.Name)
	}
	return genesis, nil
}

// --- Mutations ---

// RegisterAgent creates a new agent with a zero balance.
func (s *LedgerService) RegisterAgent(ctx context.Context, token string, p ledger.Profile) (ledger.Agent, error) {
	var out ledger.Agent
	err := s.mutate(ctx, token, ledger.OpRegisterAgent, func(st *ledger.State, now time.Time) ([]ledgerEvent, error) {
		a, err := st.RegisterAgent(s.newID(), p, now)
		if err != nil {
			return nil, err
		}
		out = a
		return []ledgerEvent{{messagequeue.SubjectAgentRegistered, messagequeue.AgentRegisteredPayload{
			AgentID: a.ID, Name: a.Name, Emoji: a.Emoji,
		}}}, nil
	})
	return out, err
}

// AwardCred credits amount to an agent.
func (s *LedgerService) AwardCred(ctx context.Context, token, agentID string, amount decimal.Decimal, note string) (ledger.Agent, error) {
	var out ledger.Agent
	err := s.mutate(ctx, token, ledger.OpAwardCred, func(st *ledger.State, now time.Time) ([]ledgerEvent, error) {
		before := tiersOf(st, agentID)
		a, err := st.AwardCred(agentID, amount, note, now)
		if err != nil {
			return nil, err
		}
		out = a
		events := []ledgerEvent{{messagequeue.SubjectCredAwarded, messagequeue.CredAwardedPayload{
			AgentID: a.ID, Amount: amount, Balance: a.Balance.String(), Note: note,
		}}}
		return append(events, tierChanges(before, a)...), nil
	})
	return out, err
}

// TransferCred moves amount between two agents, all or nothing.
func (s *LedgerService) TransferCred(ctx context.Context, token, fromID, toID string, amount decimal.Decimal, note string) (from, to ledger.Agent, err error) {
	err = s.mutate(ctx, token, ledger.OpTransferCred, func(st *ledger.State, now time.Time) ([]ledgerEvent, error) {
		before := tiersOf(st, fromID, toID)
		f, t, err := st.TransferCred(fromID, toID, amount, note, now)
		if err != nil {
			return nil, err
		}
		from, to = f, t
		events := []ledgerEvent{{messagequeue.SubjectCredTransferred, messagequeue.CredTransferredPayload{
			FromID: f.ID, ToID: t.ID, Amount: amount, Note: note,
		}}}
		return append(events, tierChanges(before, f, t)...), nil
	})
	return from, to, err
}

// CreateFaction founds a faction with founderID as its first member.
func (s *LedgerService) CreateFaction(ctx context.Context, token, name, metadata, founderID string) (ledger.Faction, error) {
	var out ledger.Faction
	err := s.mutate(ctx, token, ledger.OpCreateFaction, func(st *ledger.State, now time.Time) ([]ledgerEvent, error) {
		f, err := st.CreateFaction(s.newID(), name, metadata, founderID, now)
		if err != nil {
			return nil, err
		}
		out = f
		founder, _ := st.Agent(founderID)
		return []ledgerEvent{{messagequeue.SubjectFactionCreated, messagequeue.FactionCreatedPayload{
			FactionID: f.ID, Name: f.Name, FounderID: founderID, FounderName: founder.Name,
		}}}, nil
	})
	return out, err
}

// JoinFaction adds an agent to a faction.
func (s *LedgerService) JoinFaction(ctx context.Context, token, factionID, agentID string) (ledger.Faction, error) {
	var out ledger.Faction
	err := s.mutate(ctx, token, ledger.OpJoinFaction, func(st *ledger.State, _ time.Time) ([]ledgerEvent, error) {
		f, err := st.JoinFaction(factionID, agentID)
		if err != nil {
			return nil, err
		}
		out = f
		return []ledgerEvent{{messagequeue.SubjectFactionJoined, messagequeue.FactionJoinedPayload{
			FactionID: f.ID, AgentID: agentID, Members: len(f.Members),
		}}}, nil
	})
	return out, err
}

// ContributeTreasury moves cred from a member into the faction treasury.
func (s *LedgerService) ContributeTreasury(ctx context.Context, token, factionID, agentID string, amount decimal.Decimal) (ledger.Faction, ledger.Agent, error) {
	var (
		fac ledger.Faction
		ag  ledger.Agent
	)
	err := s.mutate(ctx, token, ledger.OpContributeTreasury, func(st *ledger.State, now time.Time) ([]ledgerEvent, error) {
		before := tiersOf(st, agentID)
		f, a, err := st.ContributeTreasury(factionID, agentID, amount, now)
		if err != nil {
			return nil, err
		}
		fac, ag = f, a
		events := []ledgerEvent{{messagequeue.SubjectTreasuryContributed, messagequeue.TreasuryContributedPayload{
			FactionID: f.ID, AgentID: a.ID, Amount: amount, Treasury: f.Treasury,
		}}}
		return append(events, tierChanges(before, a)...), nil
	})
	return fac, ag, err
}

// AnnounceAgent records an agent's discovery information.
func (s *LedgerService) AnnounceAgent(ctx context.Context, token, agentID string, d ledger.Discovery) (ledger.Agent, error) {
	var out ledger.Agent
	err := s.mutate(ctx, token, ledger.OpAnnounceAgent, func(st *ledger.State, now time.Time) ([]ledgerEvent, error) {
		a, err := st.Announce(agentID, d, now)
		if err != nil {
			return nil, err
		}
		out = a
		return []ledgerEvent{{messagequeue.SubjectAgentAnnounced, messagequeue.AgentAnnouncedPayload{
			AgentID: a.ID, Endpoint: a.Endpoint, Capabilities: a.Capabilities,
		}}}, nil
	})
	return out, err
}

// FundEscrow opens an escrow paying agentID on release.
func (s *LedgerService) FundEscrow(ctx context.Context, token, agentID string, amount decimal.Decimal, description string) (ledger.Escrow, error) {
	var out ledger.Escrow
	err := s.mutate(ctx, token, ledger.OpFundEscrow, func(st *ledger.State, now time.Time) ([]ledgerEvent, error) {
		e, err := st.FundEscrow(s.newID(), agentID, amount, description, now)
		if err != nil {
			return nil, err
		}
		out = e
		return []ledgerEvent{{messagequeue.SubjectEscrowFunded, messagequeue.EscrowFundedPayload{
			EscrowID: e.ID, AgentID: e.AgentID, Amount: e.Amount,
		}}}, nil
	})
	return out, err
}

// ReleaseEscrow pays a milestone out of an escrow. A zero amount releases
// the remainder.
func (s *LedgerService) ReleaseEscrow(ctx context.Context, token, escrowID string, amount decimal.Decimal, reason string) (ledger.Escrow, ledger.Agent, error) {
	var (
		esc ledger.Escrow
		ag  ledger.Agent
	)
	err := s.mutate(ctx, token, ledger.OpReleaseEscrow, func(st *ledger.State, now time.Time) ([]ledgerEvent, error) {
		var before map[string]ledger.Tier
		if e, err := st.Escrow(escrowID); err == nil {
			before = tiersOf(st, e.AgentID)
		}
		e, a, err := st.ReleaseEscrow(escrowID, amount, reason, now)
		if err != nil {
			return nil, err
		}
		esc, ag = e, a
		paid := e.Milestones[len(e.Milestones)-1]
		events := []ledgerEvent{{messagequeue.SubjectEscrowReleased, messagequeue.EscrowReleasedPayload{
			EscrowID: e.ID, AgentID: a.ID, Amount: paid.Amount, Remaining: e.Remaining(),
			Status: string(e.Status), Reason: paid.Reason,
		}}}
		return append(events, tierChanges(before, a)...), nil
	})
	return esc, ag, err
}

// SubmitRegistration queues a registration for operator review.
func (s *LedgerService) SubmitRegistration(ctx context.Context, token string, req ledger.RegistrationRequest) (ledger.Registration, error) {
	var out ledger.Registration
	err := s.mutate(ctx, token, ledger.OpSubmitRegistration, func(st *ledger.State, now time.Time) ([]ledgerEvent, error) {
		r, err := st.SubmitRegistration(s.newID(), req, now)
		if err != nil {
			return nil, err
		}
		out = r
		return []ledgerEvent{{messagequeue.SubjectRegistrationQueued, messagequeue.RegistrationQueuedPayload{
			RegistrationID: r.ID, Name: r.Name,
		}}}, nil
	})
	return out, err
}

// ProcessRegistration approves or rejects a queued registration. An
// approved registration becomes a Void agent.
func (s *LedgerService) ProcessRegistration(ctx context.Context, token, registrationID string, approve bool) (ledger.Registration, ledger.Agent, error) {
	var (
		reg ledger.Registration
		ag  ledger.Agent
	)
	err := s.mutate(ctx, token, ledger.OpProcessRegistration, func(st *ledger.State, now time.Time) ([]ledgerEvent, error) {
		r, a, err := st.ProcessRegistration(registrationID, s.newID(), approve, now)
		if err != nil {
			return nil, err
		}
		reg, ag = r, a
		events := []ledgerEvent{{messagequeue.SubjectRegistrationDecided, messagequeue.RegistrationDecidedPayload{
			RegistrationID: r.ID, Status: string(r.Status), AgentID: r.AgentID,
		}}}
		if approve {
			events = append(events, ledgerEvent{messagequeue.SubjectAgentRegistered, messagequeue.AgentRegisteredPayload{
				AgentID: a.ID, Name: a.Name,
			}})
		}
		return events, nil
	})
	return reg, ag, err
}

// --- Queries ---

// GetAgent returns one agent.
func (s *LedgerService) GetAgent(_ context.Context, id string) (ledger.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Agent(id)
}

// GetFaction returns one faction.
func (s *LedgerService) GetFaction(_ context.Context, id string) (ledger.Faction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Faction(id)
}

// AgentHistory returns an agent's transaction history, oldest first.
func (s *LedgerService) AgentHistory(_ context.Context, id string) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.History(id)
}

// ListAgents returns the leaderboard.
func (s *LedgerService) ListAgents(_ context.Context) []ledger.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Agents()
}

// ListFactions returns factions by treasury.
func (s *LedgerService) ListFactions(_ context.Context) []ledger.Faction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Factions()
}

// SearchAgents filters the leaderboard by capability and minimum tier.
func (s *LedgerService) SearchAgents(_ context.Context, q ledger.SearchQuery) []ledger.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Search(q)
}

// GetEscrow returns one escrow.
func (s *LedgerService) GetEscrow(_ context.Context, id string) (ledger.Escrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Escrow(id)
}

// ListEscrows returns escrows in funding order.
func (s *LedgerService) ListEscrows(_ context.Context) []ledger.Escrow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Escrows()
}

// ListRegistrations returns registrations with the given status, or all.
func (s *LedgerService) ListRegistrations(_ context.Context, status ledger.RegistrationStatus) []ledger.Registration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Registrations(status)
}

// EconomyStats returns economy-wide aggregates.
func (s *LedgerService) EconomyStats(_ context.Context) ledger.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Stats()
}

// Rules returns the active economy rules.
func (s *LedgerService) Rules() ledger.Rules { return s.rules }

// DurableVersion returns the version of the last snapshot written.
func (s *LedgerService) DurableVersion() uint64 {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	return s.durable.version
}

// --- Commit path ---

// mutation applies one operation. A nil event slice with a nil error means
// nothing changed and no snapshot is staged.
type mutation func(st *ledger.State, now time.Time) ([]ledgerEvent, error)

// mutate runs fn under the writer lock, stages the resulting snapshot and
// waits for it to become durable. A failed fn leaves the state untouched.
func (s *LedgerService) mutate(ctx context.Context, token, op string, fn mutation) (err error) {
	ctx, span := subotel.StartLedgerSpan(ctx, op)
	defer func() {
		result := "ok"
		if err != nil {
			result = domain.Kind(err)
		}
		s.metrics.RecordOperation(ctx, op, result)
		subotel.EndSpan(span, err)
	}()

	s.mu.Lock()
	now := s.now()
	if err := s.state.CheckToken(token, now); err != nil {
		s.mu.Unlock()
		return err
	}
	events, err := fn(s.state, now)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if events == nil {
		s.mu.Unlock()
		return nil
	}
	s.state.RecordToken(token, op, now)
	data, err := s.state.MarshalSnapshot()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	s.version++
	version, epoch := s.version, s.epoch
	s.pending = staged{version: version, data: data}
	s.mu.Unlock()

	if err := s.persist(ctx, version, epoch); err != nil {
		return err
	}
	s.publish(ctx, events)
	return nil
}

// persist makes sure a snapshot at least as new as version is durable.
// Concurrent callers share writes: whoever holds persistMu writes the newest
// staged snapshot, and later callers find their version already covered.
func (s *LedgerService) persist(ctx context.Context, version, epoch uint64) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	current, pending := s.epoch, s.pending
	s.mu.RUnlock()

	if current != epoch {
		if version <= s.floors[epoch] {
			return nil
		}
		return fmt.Errorf("ledger rolled back before commit: %w", domain.ErrPersistence)
	}
	if s.durable.version >= version {
		return nil
	}

	pctx, span := subotel.StartPersistSpan(ctx, pending.version)
	start := time.Now()
	err := s.store.Save(context.WithoutCancel(pctx), pending.version, pending.data)
	s.metrics.RecordPersist(pctx, time.Since(start), err)
	subotel.EndSpan(span, err)
	if err == nil {
		s.durable = pending
		return nil
	}

	s.rollback()
	logger.From(ctx, s.log).Error("ledger snapshot write failed, in-memory state rolled back",
		"version", pending.version,
		"durable_version", s.durable.version,
		"error", err,
	)
	return fmt.Errorf("save snapshot v%d: %w: %w", pending.version, domain.ErrPersistence, err)
}

// rollback resets the in-memory ledger to the durable snapshot and starts a
// new epoch so every caller with an unwritten mutation fails. Versions keep
// increasing across epochs. Caller holds persistMu.
func (s *LedgerService) rollback() {
	st := ledger.NewState(s.rules)
	if s.durable.data != nil {
		restored, err := ledger.RestoreState(s.rules, s.durable.data)
		if err != nil {
			s.log.Error("restore durable snapshot failed", "version", s.durable.version, "error", err)
		} else {
			st = restored
		}
	}

	s.floors = append(s.floors, s.durable.version)

	s.mu.Lock()
	s.state = st
	s.pending = s.durable
	s.epoch++
	s.mu.Unlock()
}

// publish fans events out to the queue and websocket clients. Failures are
// logged; the mutation is already durable.
func (s *LedgerService) publish(ctx context.Context, events []ledgerEvent) {
	log := logger.From(ctx, s.log)
	for _, ev := range events {
		s.hub.BroadcastEvent(ctx, ev.subject, ev.payload)
		if s.queue == nil {
			continue
		}
		data, err := json.Marshal(ev.payload)
		if err != nil {
			log.Error("marshal ledger event", "subject", ev.subject, "error", err)
			continue
		}
		if err := s.queue.Publish(ctx, ev.subject, data); err != nil {
			log.Warn("publish ledger event failed", "subject", ev.subject, "error", err)
		}
	}
}

func tiersOf(st *ledger.State, ids ...string) map[string]ledger.Tier {
	out := make(map[string]ledger.Tier, len(ids))
	for _, id := range ids {
		if a, err := st.Agent(id); err == nil {
			out[id] = a.Tier
		}
	}
	return out
}

func tierChanges(before map[string]ledger.Tier, agents ...ledger.Agent) []ledgerEvent {
	var out []ledgerEvent
	for _, a := range agents {
		prev, ok := before[a.ID]
		if !ok || prev == a.Tier {
			continue
		}
		out = append(out, ledgerEvent{messagequeue.SubjectTierChanged, messagequeue.TierChangedPayload{
			AgentID: a.ID,
			Name:    a.Name,
			From:    prev.String(),
			To:      a.Tier.String(),
			Balance: a.Balance.String(),
		}})
	}
	return out
}
