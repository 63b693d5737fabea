package ledger

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"
)

// Agent returns a copy of the agent with the given id.
func (s *State) Agent(id string) (Agent, error) {
	a, err := s.agent(id)
	if err != nil {
		return Agent{}, err
	}
	return a.clone(), nil
}

// Faction returns a copy of the faction with the given id.
func (s *State) Faction(id string) (Faction, error) {
	f, err := s.faction(id)
	if err != nil {
		return Faction{}, err
	}
	return f.clone(), nil
}

// History returns the agent's transaction history, oldest first.
func (s *State) History(agentID string) ([]Entry, error) {
	if _, err := s.agent(agentID); err != nil {
		return nil, err
	}
	return slices.Clone(s.history[agentID]), nil
}

// Agents returns the leaderboard: balance descending, registration order on ties.
func (s *State) Agents() []Agent {
	ordered := make([]*Agent, 0, len(s.agents))
	for _, a := range s.agents {
		ordered = append(ordered, a)
	}
	slices.SortFunc(ordered, func(a, b *Agent) int {
		if c := b.Balance.Cmp(a.Balance); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	out := make([]Agent, len(ordered))
	for i, a := range ordered {
		out[i] = a.clone()
	}
	return out
}

// Factions returns factions by treasury descending, creation order on ties.
func (s *State) Factions() []Faction {
	ordered := make([]*Faction, 0, len(s.factions))
	for _, f := range s.factions {
		ordered = append(ordered, f)
	}
	slices.SortFunc(ordered, func(a, b *Faction) int {
		if c := b.Treasury.Cmp(a.Treasury); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	out := make([]Faction, len(ordered))
	for i, f := range ordered {
		out[i] = f.clone()
	}
	return out
}

// SearchQuery filters agents during discovery. Zero fields match everything.
type SearchQuery struct {
	Capability string
	MinTier    Tier
}

// Search returns agents matching q in leaderboard order.
func (s *State) Search(q SearchQuery) []Agent {
	all := s.Agents()
	out := all[:0]
	for _, a := range all {
		if q.Capability != "" && !a.HasCapability(q.Capability) {
			continue
		}
		if a.Tier < q.MinTier {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Stats aggregates the economy.
type Stats struct {
	TotalAgents      int             `json:"total_agents"`
	TotalFactions    int             `json:"total_factions"`
	TotalCred        decimal.Decimal `json:"total_cred"`
	TransferVolume   decimal.Decimal `json:"transfer_volume"`
	EscrowHeld       decimal.Decimal `json:"escrow_held"`
	TierDistribution map[string]int  `json:"tier_distribution"`
}

// Stats computes aggregates. The genesis sentinel is not counted in TotalCred.
func (s *State) Stats() Stats {
	st := Stats{
		TotalAgents:      len(s.agents),
		TotalFactions:    len(s.factions),
		TransferVolume:   s.volume,
		TierDistribution: make(map[string]int, len(tierNames)),
	}
	for _, t := range AllTiers() {
		st.TierDistribution[t.String()] = 0
	}
	for _, e := range s.escrows {
		st.EscrowHeld = st.EscrowHeld.Add(e.Remaining())
	}
	for _, a := range s.agents {
		st.TierDistribution[s.tierOf(a).String()]++
		if !a.Balance.IsInfinite() {
			st.TotalCred = st.TotalCred.Add(a.Balance.Decimal())
		}
	}
	return st
}
