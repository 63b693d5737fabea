package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const snapshotFormat = 1

type snapshotDoc struct {
	Format     int                           `json:"format"`
	Seq        uint64                        `json:"seq"`
	Volume     decimal.Decimal               `json:"transfer_volume"`
	Agents     map[string]agentRecord        `json:"agents"`
	Factions   map[string]factionRecord      `json:"factions"`
	Escrows    map[string]escrowRecord       `json:"escrows,omitempty"`
	Pending    map[string]registrationRecord `json:"registrations,omitempty"`
	Operations []OpRecord                    `json:"operations,omitempty"`
}

type agentRecord struct {
	Seq             uint64     `json:"seq"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	Emoji           string     `json:"emoji,omitempty"`
	Owner           string     `json:"owner,omitempty"`
	Balance         Cred       `json:"cred_balance"`
	Genesis         bool       `json:"genesis,omitempty"`
	FactionID       string     `json:"faction_id,omitempty"`
	Endpoint        string     `json:"endpoint,omitempty"`
	Capabilities    []string   `json:"capabilities,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	LastActivityAt  time.Time  `json:"last_activity_at"`
	LastAnnouncedAt *time.Time `json:"last_announced_at,omitempty"`
	History         []Entry    `json:"history,omitempty"`
}

type factionRecord struct {
	Seq       uint64          `json:"seq"`
	Name      string          `json:"name"`
	Metadata  string          `json:"metadata,omitempty"`
	FounderID string          `json:"founder_id"`
	Members   []string        `json:"members"`
	Treasury  decimal.Decimal `json:"treasury"`
	CreatedAt time.Time       `json:"created_at"`
}

type escrowRecord struct {
	Seq         uint64          `json:"seq"`
	AgentID     string          `json:"agent_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Milestones  []Milestone     `json:"milestones,omitempty"`
}

type registrationRecord struct {
	Seq         uint64             `json:"seq"`
	Name        string             `json:"name"`
	Metadata    string             `json:"metadata"`
	Owner       string             `json:"owner,omitempty"`
	Contact     string             `json:"contact,omitempty"`
	Status      RegistrationStatus `json:"status"`
	SubmittedAt time.Time          `json:"submitted_at"`
	ProcessedAt *time.Time         `json:"processed_at,omitempty"`
	AgentID     string             `json:"agent_id,omitempty"`
}

// MarshalSnapshot serializes the whole ledger, keyed by id. Tiers are not
// stored; they are recomputed on restore.
func (s *State) MarshalSnapshot() ([]byte, error) {
	doc := snapshotDoc{
		Format:     snapshotFormat,
		Seq:        s.seq,
		Volume:     s.volume,
		Agents:     make(map[string]agentRecord, len(s.agents)),
		Factions:   make(map[string]factionRecord, len(s.factions)),
		Operations: s.ops.Records(),
	}
	for id, a := range s.agents {
		doc.Agents[id] = agentRecord{
			Seq:             a.seq,
			Name:            a.Name,
			Description:     a.Description,
			Emoji:           a.Emoji,
			Owner:           a.Owner,
			Balance:         a.Balance,
			Genesis:         a.Genesis,
			FactionID:       a.FactionID,
			Endpoint:        a.Endpoint,
			Capabilities:    a.Capabilities,
			CreatedAt:       a.CreatedAt,
			LastActivityAt:  a.LastActivityAt,
			LastAnnouncedAt: a.LastAnnouncedAt,
			History:         s.history[id],
		}
	}
	for id, f := range s.factions {
		doc.Factions[id] = factionRecord{
			Seq:       f.seq,
			Name:      f.Name,
			Metadata:  f.Metadata,
			FounderID: f.FounderID,
			Members:   f.Members,
			Treasury:  f.Treasury,
			CreatedAt: f.CreatedAt,
		}
	}
	if len(s.escrows) > 0 {
		doc.Escrows = make(map[string]escrowRecord, len(s.escrows))
	}
	for id, e := range s.escrows {
		doc.Escrows[id] = escrowRecord{
			Seq:         e.seq,
			AgentID:     e.AgentID,
			Amount:      e.Amount,
			Description: e.Description,
			CreatedAt:   e.CreatedAt,
			Milestones:  e.Milestones,
		}
	}
	if len(s.registrations) > 0 {
		doc.Pending = make(map[string]registrationRecord, len(s.registrations))
	}
	for id, r := range s.registrations {
		doc.Pending[id] = registrationRecord{
			Seq:         r.seq,
			Name:        r.Name,
			Metadata:    r.Metadata,
			Owner:       r.Owner,
			Contact:     r.Contact,
			Status:      r.Status,
			SubmittedAt: r.SubmittedAt,
			ProcessedAt: r.ProcessedAt,
			AgentID:     r.AgentID,
		}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// RestoreState rebuilds a ledger from a snapshot and verifies its invariants.
func RestoreState(rules Rules, data []byte) (*State, error) {
	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if doc.Format != snapshotFormat {
		return nil, fmt.Errorf("unsupported snapshot format %d", doc.Format)
	}

	s := NewState(rules)
	s.seq = doc.Seq
	s.volume = doc.Volume
	genesisCount := 0
	for id, r := range doc.Agents {
		if r.Balance.IsInfinite() != r.Genesis {
			return nil, fmt.Errorf("agent %q: only the genesis agent may hold the sentinel balance", id)
		}
		if r.Balance.IsNegative() {
			return nil, fmt.Errorf("agent %q: negative balance %s", id, r.Balance)
		}
		if r.Genesis {
			genesisCount++
		}
		a := &Agent{
			ID:              id,
			Name:            r.Name,
			Description:     r.Description,
			Emoji:           r.Emoji,
			Owner:           r.Owner,
			Balance:         r.Balance,
			Genesis:         r.Genesis,
			FactionID:       r.FactionID,
			Endpoint:        r.Endpoint,
			Capabilities:    r.Capabilities,
			CreatedAt:       r.CreatedAt,
			LastActivityAt:  r.LastActivityAt,
			LastAnnouncedAt: r.LastAnnouncedAt,
			seq:             r.Seq,
		}
		a.Tier = s.tierOf(a)
		s.agents[id] = a
		if len(r.History) > 0 {
			s.history[id] = r.History
		}
	}
	if genesisCount > 1 {
		return nil, fmt.Errorf("snapshot holds %d genesis agents", genesisCount)
	}
	for id, r := range doc.Factions {
		if r.Treasury.IsNegative() {
			return nil, fmt.Errorf("faction %q: negative treasury %s", id, r.Treasury)
		}
		for _, m := range r.Members {
			a, ok := s.agents[m]
			if !ok || a.FactionID != id {
				return nil, fmt.Errorf("faction %q: member %q does not reference it", id, m)
			}
		}
		s.factions[id] = &Faction{
			ID:        id,
			Name:      r.Name,
			Metadata:  r.Metadata,
			FounderID: r.FounderID,
			Members:   r.Members,
			Treasury:  r.Treasury,
			CreatedAt: r.CreatedAt,
			seq:       r.Seq,
		}
	}
	for id, a := range s.agents {
		if a.FactionID == "" {
			continue
		}
		if f, ok := s.factions[a.FactionID]; !ok || !f.HasMember(id) {
			return nil, fmt.Errorf("agent %q references faction %q without membership", id, a.FactionID)
		}
	}
	for id, r := range doc.Escrows {
		if err := restoreEscrow(s, id, r); err != nil {
			return nil, err
		}
	}
	for id, r := range doc.Pending {
		switch r.Status {
		case RegistrationPending, RegistrationRejected:
		case RegistrationApproved:
			if _, ok := s.agents[r.AgentID]; !ok {
				return nil, fmt.Errorf("registration %q: approved agent %q is missing", id, r.AgentID)
			}
		default:
			return nil, fmt.Errorf("registration %q: unknown status %q", id, r.Status)
		}
		s.registrations[id] = &Registration{
			ID:          id,
			Name:        r.Name,
			Metadata:    r.Metadata,
			Owner:       r.Owner,
			Contact:     r.Contact,
			Status:      r.Status,
			SubmittedAt: r.SubmittedAt,
			ProcessedAt: r.ProcessedAt,
			AgentID:     r.AgentID,
			seq:         r.Seq,
		}
	}
	for _, op := range doc.Operations {
		s.ops.records = append(s.ops.records, op)
		s.ops.index[op.Token] = struct{}{}
	}
	return s, nil
}

// restoreEscrow recomputes the released total and status from milestones.
func restoreEscrow(s *State, id string, r escrowRecord) error {
	if !r.Amount.IsPositive() {
		return fmt.Errorf("escrow %q: amount %s is not positive", id, r.Amount)
	}
	if _, ok := s.agents[r.AgentID]; !ok {
		return fmt.Errorf("escrow %q: payee %q is missing", id, r.AgentID)
	}
	released := decimal.Zero
	for _, m := range r.Milestones {
		if !m.Amount.IsPositive() {
			return fmt.Errorf("escrow %q: milestone amount %s is not positive", id, m.Amount)
		}
		released = released.Add(m.Amount)
	}
	if released.GreaterThan(r.Amount) {
		return fmt.Errorf("escrow %q: released %s exceeds %s", id, released, r.Amount)
	}
	s.escrows[id] = &Escrow{
		ID:          id,
		AgentID:     r.AgentID,
		Amount:      r.Amount,
		Released:    released,
		Description: r.Description,
		Status:      escrowStatus(r.Amount, released),
		CreatedAt:   r.CreatedAt,
		Milestones:  r.Milestones,
		seq:         r.Seq,
	}
	return nil
}
