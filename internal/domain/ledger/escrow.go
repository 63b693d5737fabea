package ledger

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nice-bills/substrate/internal/domain"
)

// EscrowStatus tracks how much of an escrow has been paid out.
type EscrowStatus string

const (
	EscrowFunded   EscrowStatus = "funded"
	EscrowPartial  EscrowStatus = "partial"
	EscrowReleased EscrowStatus = "released"
)

// Milestone is one release from an escrow.
type Milestone struct {
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Escrow holds cred earmarked for one agent until it is released, in one go
// or across milestones. Held cred belongs to no agent.
type Escrow struct {
	ID          string          `json:"id"`
	AgentID     string          `json:"agent_id"`
	Amount      decimal.Decimal `json:"amount"`
	Released    decimal.Decimal `json:"released"`
	Description string          `json:"description,omitempty"`
	Status      EscrowStatus    `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	Milestones  []Milestone     `json:"milestones"`

	seq uint64
}

// Remaining is the cred still held.
func (e Escrow) Remaining() decimal.Decimal {
	return e.Amount.Sub(e.Released)
}

func (e *Escrow) clone() Escrow {
	out := *e
	out.Milestones = slices.Clone(e.Milestones)
	if out.Milestones == nil {
		out.Milestones = []Milestone{}
	}
	return out
}

func escrowStatus(amount, released decimal.Decimal) EscrowStatus {
	switch {
	case released.IsZero():
		return EscrowFunded
	case released.LessThan(amount):
		return EscrowPartial
	default:
		return EscrowReleased
	}
}

func (s *State) escrow(id string) (*Escrow, error) {
	e, ok := s.escrows[id]
	if !ok {
		return nil, fmt.Errorf("escrow %q: %w", id, domain.ErrNotFound)
	}
	return e, nil
}

// FundEscrow opens an escrow of amount for agentID. Nothing is debited: the
// cred is issued when it is released.
func (s *State) FundEscrow(id, agentID string, amount decimal.Decimal, description string, now time.Time) (Escrow, error) {
	if err := requirePositive(amount); err != nil {
		return Escrow{}, err
	}
	if id == "" {
		return Escrow{}, fmt.Errorf("escrow id is required: %w", domain.ErrInvalidInput)
	}
	if _, exists := s.escrows[id]; exists {
		return Escrow{}, fmt.Errorf("escrow %q already exists: %w", id, domain.ErrInvalidInput)
	}
	a, err := s.agent(agentID)
	if err != nil {
		return Escrow{}, err
	}
	if a.Genesis {
		return Escrow{}, fmt.Errorf("genesis agent cannot be an escrow payee: %w", domain.ErrInvalidInput)
	}
	e := &Escrow{
		ID:          id,
		AgentID:     agentID,
		Amount:      amount,
		Description: strings.TrimSpace(description),
		Status:      EscrowFunded,
		CreatedAt:   now,
		seq:         s.nextSeq(),
	}
	s.escrows[id] = e
	return e.clone(), nil
}

// ReleaseEscrow pays amount out of the escrow to its agent and records a
// milestone. A zero amount releases everything still held.
func (s *State) ReleaseEscrow(id string, amount decimal.Decimal, reason string, now time.Time) (Escrow, Agent, error) {
	e, err := s.escrow(id)
	if err != nil {
		return Escrow{}, Agent{}, err
	}
	if amount.IsNegative() {
		return Escrow{}, Agent{}, fmt.Errorf("amount must not be negative: %w", domain.ErrInvalidInput)
	}
	remaining := e.Remaining()
	if amount.IsZero() {
		amount = remaining
	}
	if !amount.IsPositive() || amount.GreaterThan(remaining) {
		return Escrow{}, Agent{}, fmt.Errorf("escrow %q holds %s, needs %s: %w",
			id, remaining, amount, domain.ErrInsufficientBalance)
	}
	a, err := s.agent(e.AgentID)
	if err != nil {
		return Escrow{}, Agent{}, err
	}

	reason = strings.TrimSpace(reason)
	e.Released = e.Released.Add(amount)
	e.Status = escrowStatus(e.Amount, e.Released)
	e.Milestones = append(e.Milestones, Milestone{Amount: amount, Reason: reason, Timestamp: now})

	a.Balance = a.Balance.Add(amount)
	a.Tier = s.tierOf(a)
	a.LastActivityAt = now
	s.history[a.ID] = append(s.history[a.ID], Entry{
		Timestamp:      now,
		CounterpartyID: e.ID,
		Amount:         amount,
		Kind:           EntryEscrowRelease,
		Note:           reason,
	})
	return e.clone(), a.clone(), nil
}

// Escrow returns a copy of the escrow with the given id.
func (s *State) Escrow(id string) (Escrow, error) {
	e, err := s.escrow(id)
	if err != nil {
		return Escrow{}, err
	}
	return e.clone(), nil
}

// Escrows returns every escrow in funding order.
func (s *State) Escrows() []Escrow {
	ordered := make([]*Escrow, 0, len(s.escrows))
	for _, e := range s.escrows {
		ordered = append(ordered, e)
	}
	slices.SortFunc(ordered, func(a, b *Escrow) int { return cmp.Compare(a.seq, b.seq) })
	out := make([]Escrow, len(ordered))
	for i, e := range ordered {
		out[i] = e.clone()
	}
	return out
}
