package ledger

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nice-bills/substrate/internal/domain"
)

// Rules are the tunable parameters of the ledger.
type Rules struct {
	Tiers            TierTable
	FactionMinTier   Tier
	OperationWindow  time.Duration
	OperationLogSize int
}

// DefaultRules returns the stock tier table with Builder as the faction tier.
func DefaultRules() Rules {
	return Rules{
		Tiers:            DefaultTierTable(),
		FactionMinTier:   TierBuilder,
		OperationWindow:  24 * time.Hour,
		OperationLogSize: 10000,
	}
}

// Validate checks the rules for internal consistency.
func (r Rules) Validate() error {
	if err := r.Tiers.Validate(); err != nil {
		return err
	}
	if r.FactionMinTier <= TierVoid || r.FactionMinTier >= TierGenesis {
		return fmt.Errorf("faction tier must be Settler, Builder or Architect, got %s", r.FactionMinTier)
	}
	if r.OperationWindow <= 0 {
		return fmt.Errorf("operation window must be positive")
	}
	if r.OperationLogSize < 1 {
		return fmt.Errorf("operation log size must be at least 1")
	}
	return nil
}

// State is the authoritative in-memory ledger. Every mutating method either
// applies completely or returns an error and leaves the state untouched.
type State struct {
	rules         Rules
	agents        map[string]*Agent
	factions      map[string]*Faction
	escrows       map[string]*Escrow
	registrations map[string]*Registration
	history       map[string][]Entry
	seq           uint64
	volume        decimal.Decimal
	ops           *OperationLog
}

// NewState creates an empty ledger.
func NewState(rules Rules) *State {
	return &State{
		rules:         rules,
		agents:        make(map[string]*Agent),
		factions:      make(map[string]*Faction),
		escrows:       make(map[string]*Escrow),
		registrations: make(map[string]*Registration),
		history:       make(map[string][]Entry),
		ops:           NewOperationLog(rules.OperationWindow, rules.OperationLogSize),
	}
}

// Rules returns the rules the state was built with.
func (s *State) Rules() Rules { return s.rules }

// CheckToken fails with ErrDuplicateOperation for a recently used token.
func (s *State) CheckToken(token string, now time.Time) error {
	return s.ops.Check(token, now)
}

// RecordToken marks token as used by a successful op.
func (s *State) RecordToken(token, op string, now time.Time) {
	s.ops.Record(token, op, now)
}

func (s *State) nextSeq() uint64 {
	s.seq++
	return s.seq
}

func (s *State) tierOf(a *Agent) Tier {
	if a.Genesis {
		return TierGenesis
	}
	return s.rules.Tiers.For(a.Balance.Decimal())
}

func (s *State) agent(id string) (*Agent, error) {
	a, ok := s.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %q: %w", id, domain.ErrNotFound)
	}
	return a, nil
}

func (s *State) faction(id string) (*Faction, error) {
	f, ok := s.factions[id]
	if !ok {
		return nil, fmt.Errorf("faction %q: %w", id, domain.ErrNotFound)
	}
	return f, nil
}

func requirePositive(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be greater than zero: %w", domain.ErrInvalidInput)
	}
	return nil
}

// RegisterAgent creates an agent with a zero balance under id.
func (s *State) RegisterAgent(id string, p Profile, now time.Time) (Agent, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return Agent{}, fmt.Errorf("name is required: %w", domain.ErrInvalidInput)
	}
	if id == "" {
		return Agent{}, fmt.Errorf("agent id is required: %w", domain.ErrInvalidInput)
	}
	if _, exists := s.agents[id]; exists {
		return Agent{}, fmt.Errorf("agent %q already registered: %w", id, domain.ErrInvalidInput)
	}
	a := &Agent{
		ID:             id,
		Name:           name,
		Description:    strings.TrimSpace(p.Description),
		Emoji:          strings.TrimSpace(p.Emoji),
		Owner:          strings.TrimSpace(p.Owner),
		Tier:           TierVoid,
		CreatedAt:      now,
		LastActivityAt: now,
		seq:            s.nextSeq(),
	}
	s.agents[id] = a
	return a.clone(), nil
}

// EnsureGenesis returns the genesis agent, creating it under id if none
// exists. The second result reports whether it was created.
func (s *State) EnsureGenesis(id, name string, now time.Time) (Agent, bool, error) {
	if g := s.genesis(); g != nil {
		return g.clone(), false, nil
	}
	a, err := s.RegisterAgent(id, Profile{Name: name}, now)
	if err != nil {
		return Agent{}, false, err
	}
	g := s.agents[a.ID]
	g.Genesis = true
	g.Balance = Infinite
	g.Tier = TierGenesis
	return g.clone(), true, nil
}

func (s *State) genesis() *Agent {
	for _, a := range s.agents {
		if a.Genesis {
			return a
		}
	}
	return nil
}

// AwardCred credits amount to the agent.
func (s *State) AwardCred(agentID string, amount decimal.Decimal, note string, now time.Time) (Agent, error) {
	if err := requirePositive(amount); err != nil {
		return Agent{}, err
	}
	a, err := s.agent(agentID)
	if err != nil {
		return Agent{}, err
	}
	a.Balance = a.Balance.Add(amount)
	a.Tier = s.tierOf(a)
	a.LastActivityAt = now
	s.history[a.ID] = append(s.history[a.ID], Entry{
		Timestamp: now,
		Amount:    amount,
		Kind:      EntryAward,
		Note:      note,
	})
	return a.clone(), nil
}

// TransferCred moves amount between two distinct agents.
func (s *State) TransferCred(fromID, toID string, amount decimal.Decimal, note string, now time.Time) (Agent, Agent, error) {
	if err := requirePositive(amount); err != nil {
		return Agent{}, Agent{}, err
	}
	if fromID == toID {
		return Agent{}, Agent{}, fmt.Errorf("cannot transfer to self: %w", domain.ErrInvalidInput)
	}
	from, err := s.agent(fromID)
	if err != nil {
		return Agent{}, Agent{}, err
	}
	to, err := s.agent(toID)
	if err != nil {
		return Agent{}, Agent{}, err
	}
	if from.Genesis {
		return Agent{}, Agent{}, fmt.Errorf("genesis cred is issued only through awards: %w", domain.ErrPermissionDenied)
	}
	if !from.Balance.Covers(amount) {
		return Agent{}, Agent{}, fmt.Errorf("agent %q has %s, needs %s: %w",
			fromID, from.Balance, amount, domain.ErrInsufficientBalance)
	}

	from.Balance = from.Balance.Sub(amount)
	to.Balance = to.Balance.Add(amount)
	from.Tier = s.tierOf(from)
	to.Tier = s.tierOf(to)
	from.LastActivityAt = now
	to.LastActivityAt = now
	s.volume = s.volume.Add(amount)

	s.history[from.ID] = append(s.history[from.ID], Entry{
		Timestamp:      now,
		CounterpartyID: to.ID,
		Amount:         amount,
		Kind:           EntryTransferOut,
		Note:           note,
	})
	s.history[to.ID] = append(s.history[to.ID], Entry{
		Timestamp:      now,
		CounterpartyID: from.ID,
		Amount:         amount,
		Kind:           EntryTransferIn,
		Note:           note,
	})
	return from.clone(), to.clone(), nil
}

// CreateFaction founds a faction under id with founderID as its sole member.
func (s *State) CreateFaction(id, name, metadata, founderID string, now time.Time) (Faction, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Faction{}, fmt.Errorf("faction name is required: %w", domain.ErrInvalidInput)
	}
	if id == "" {
		return Faction{}, fmt.Errorf("faction id is required: %w", domain.ErrInvalidInput)
	}
	if _, exists := s.factions[id]; exists {
		return Faction{}, fmt.Errorf("faction %q already exists: %w", id, domain.ErrInvalidInput)
	}
	founder, err := s.agent(founderID)
	if err != nil {
		return Faction{}, err
	}
	if founder.Genesis {
		return Faction{}, fmt.Errorf("genesis agent cannot found a faction: %w", domain.ErrPermissionDenied)
	}
	if tier := s.tierOf(founder); tier < s.rules.FactionMinTier {
		return Faction{}, fmt.Errorf("founder tier %s is below %s: %w",
			tier, s.rules.FactionMinTier, domain.ErrPermissionDenied)
	}
	if founder.FactionID != "" {
		return Faction{}, fmt.Errorf("agent %q belongs to faction %q: %w",
			founderID, founder.FactionID, domain.ErrAlreadyInFaction)
	}

	f := &Faction{
		ID:        id,
		Name:      name,
		Metadata:  metadata,
		FounderID: founder.ID,
		Members:   []string{founder.ID},
		CreatedAt: now,
		seq:       s.nextSeq(),
	}
	s.factions[id] = f
	founder.FactionID = id
	return f.clone(), nil
}

// JoinFaction adds the agent to the faction's membership.
func (s *State) JoinFaction(factionID, agentID string) (Faction, error) {
	f, err := s.faction(factionID)
	if err != nil {
		return Faction{}, err
	}
	a, err := s.agent(agentID)
	if err != nil {
		return Faction{}, err
	}
	if a.FactionID != "" {
		return Faction{}, fmt.Errorf("agent %q belongs to faction %q: %w",
			agentID, a.FactionID, domain.ErrAlreadyInFaction)
	}
	if a.Genesis {
		return Faction{}, fmt.Errorf("genesis agent cannot join a faction: %w", domain.ErrPermissionDenied)
	}
	f.Members = append(f.Members, a.ID)
	a.FactionID = f.ID
	return f.clone(), nil
}

// ContributeTreasury moves amount from a member's balance into the faction treasury.
func (s *State) ContributeTreasury(factionID, agentID string, amount decimal.Decimal, now time.Time) (Faction, Agent, error) {
	if err := requirePositive(amount); err != nil {
		return Faction{}, Agent{}, err
	}
	f, err := s.faction(factionID)
	if err != nil {
		return Faction{}, Agent{}, err
	}
	a, err := s.agent(agentID)
	if err != nil {
		return Faction{}, Agent{}, err
	}
	if a.FactionID != f.ID {
		return Faction{}, Agent{}, fmt.Errorf("agent %q is not a member of %q: %w",
			agentID, factionID, domain.ErrPermissionDenied)
	}
	if !a.Balance.Covers(amount) {
		return Faction{}, Agent{}, fmt.Errorf("agent %q has %s, needs %s: %w",
			agentID, a.Balance, amount, domain.ErrInsufficientBalance)
	}

	a.Balance = a.Balance.Sub(amount)
	a.Tier = s.tierOf(a)
	a.LastActivityAt = now
	f.Treasury = f.Treasury.Add(amount)
	s.history[a.ID] = append(s.history[a.ID], Entry{
		Timestamp:      now,
		CounterpartyID: f.ID,
		Amount:         amount,
		Kind:           EntryTreasury,
	})
	return f.clone(), a.clone(), nil
}

// Announce records discovery information for an agent.
func (s *State) Announce(agentID string, d Discovery, now time.Time) (Agent, error) {
	endpoint := strings.TrimSpace(d.Endpoint)
	if endpoint == "" {
		return Agent{}, fmt.Errorf("endpoint is required: %w", domain.ErrInvalidInput)
	}
	a, err := s.agent(agentID)
	if err != nil {
		return Agent{}, err
	}
	caps := make([]string, 0, len(d.Capabilities))
	for _, c := range d.Capabilities {
		if c = strings.TrimSpace(c); c != "" && !slices.Contains(caps, c) {
			caps = append(caps, c)
		}
	}
	a.Endpoint = endpoint
	a.Capabilities = caps
	if desc := strings.TrimSpace(d.Description); desc != "" {
		a.Description = desc
	}
	announced := now
	a.LastAnnouncedAt = &announced
	return a.clone(), nil
}
