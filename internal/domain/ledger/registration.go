package ledger

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/nice-bills/substrate/internal/domain"
)

// MaxPendingRegistrations caps the review queue.
const MaxPendingRegistrations = 500

// RegistrationStatus is the review state of a submitted registration.
type RegistrationStatus string

const (
	RegistrationPending  RegistrationStatus = "pending"
	RegistrationApproved RegistrationStatus = "approved"
	RegistrationRejected RegistrationStatus = "rejected"
)

// RegistrationRequest is what a human submits on behalf of an agent.
type RegistrationRequest struct {
	Name     string `json:"name"`
	Metadata string `json:"metadata"`
	Owner    string `json:"owner,omitempty"`
	Contact  string `json:"contact,omitempty"`
}

// Registration is a queued request awaiting review by the operator.
type Registration struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Metadata    string             `json:"metadata"`
	Owner       string             `json:"owner,omitempty"`
	Contact     string             `json:"contact,omitempty"`
	Status      RegistrationStatus `json:"status"`
	SubmittedAt time.Time          `json:"submitted_at"`
	ProcessedAt *time.Time         `json:"processed_at,omitempty"`
	AgentID     string             `json:"agent_id,omitempty"`

	seq uint64
}

func (r *Registration) clone() Registration {
	out := *r
	if r.ProcessedAt != nil {
		t := *r.ProcessedAt
		out.ProcessedAt = &t
	}
	return out
}

func (s *State) registration(id string) (*Registration, error) {
	r, ok := s.registrations[id]
	if !ok {
		return nil, fmt.Errorf("registration %q: %w", id, domain.ErrNotFound)
	}
	return r, nil
}

func (s *State) pendingCount() int {
	n := 0
	for _, r := range s.registrations {
		if r.Status == RegistrationPending {
			n++
		}
	}
	return n
}

// SubmitRegistration queues req for review under id.
func (s *State) SubmitRegistration(id string, req RegistrationRequest, now time.Time) (Registration, error) {
	name := strings.TrimSpace(req.Name)
	metadata := strings.TrimSpace(req.Metadata)
	if name == "" || metadata == "" {
		return Registration{}, fmt.Errorf("name and metadata are required: %w", domain.ErrInvalidInput)
	}
	if id == "" {
		return Registration{}, fmt.Errorf("registration id is required: %w", domain.ErrInvalidInput)
	}
	if _, exists := s.registrations[id]; exists {
		return Registration{}, fmt.Errorf("registration %q already exists: %w", id, domain.ErrInvalidInput)
	}
	if s.pendingCount() >= MaxPendingRegistrations {
		return Registration{}, fmt.Errorf("review queue holds %d registrations: %w", MaxPendingRegistrations, domain.ErrInvalidInput)
	}
	r := &Registration{
		ID:          id,
		Name:        name,
		Metadata:    metadata,
		Owner:       strings.TrimSpace(req.Owner),
		Contact:     strings.TrimSpace(req.Contact),
		Status:      RegistrationPending,
		SubmittedAt: now,
		seq:         s.nextSeq(),
	}
	s.registrations[id] = r
	return r.clone(), nil
}

// ProcessRegistration approves or rejects a pending registration. Approval
// registers the agent under agentID; the agent is zero on rejection.
func (s *State) ProcessRegistration(id, agentID string, approve bool, now time.Time) (Registration, Agent, error) {
	r, err := s.registration(id)
	if err != nil {
		return Registration{}, Agent{}, err
	}
	if r.Status != RegistrationPending {
		return Registration{}, Agent{}, fmt.Errorf("registration %q is already %s: %w", id, r.Status, domain.ErrInvalidInput)
	}

	var a Agent
	if approve {
		a, err = s.RegisterAgent(agentID, Profile{Name: r.Name, Description: r.Metadata, Owner: r.Owner}, now)
		if err != nil {
			return Registration{}, Agent{}, err
		}
		r.Status = RegistrationApproved
		r.AgentID = a.ID
	} else {
		r.Status = RegistrationRejected
	}
	processed := now
	r.ProcessedAt = &processed
	return r.clone(), a, nil
}

// Registrations returns registrations in submission order. An empty status
// returns all of them.
func (s *State) Registrations(status RegistrationStatus) []Registration {
	ordered := make([]*Registration, 0, len(s.registrations))
	for _, r := range s.registrations {
		if status == "" || r.Status == status {
			ordered = append(ordered, r)
		}
	}
	slices.SortFunc(ordered, func(a, b *Registration) int { return cmp.Compare(a.seq, b.seq) })
	out := make([]Registration, len(ordered))
	for i, r := range ordered {
		out[i] = r.clone()
	}
	return out
}

// ParseRegistrationStatus accepts pending, approved or rejected, or empty for all.
func ParseRegistrationStatus(s string) (RegistrationStatus, error) {
	switch st := RegistrationStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case "", RegistrationPending, RegistrationApproved, RegistrationRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown registration status %q: %w", s, domain.ErrInvalidInput)
}
