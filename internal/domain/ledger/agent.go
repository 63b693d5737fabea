package ledger

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Agent is a participant in the economy.
type Agent struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	Emoji           string     `json:"emoji,omitempty"`
	Owner           string     `json:"owner,omitempty"`
	Balance         Cred       `json:"cred_balance"`
	Tier            Tier       `json:"tier"`
	Genesis         bool       `json:"genesis,omitempty"`
	FactionID       string     `json:"faction_id,omitempty"`
	Endpoint        string     `json:"endpoint,omitempty"`
	Capabilities    []string   `json:"capabilities,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	LastActivityAt  time.Time  `json:"last_activity_at"`
	LastAnnouncedAt *time.Time `json:"last_announced_at,omitempty"`

	seq uint64
}

// Profile carries the caller-supplied fields of a new agent.
type Profile struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Emoji       string `json:"emoji,omitempty"`
	Owner       string `json:"owner,omitempty"`
}

// Discovery is what an agent publishes about itself via announce.
type Discovery struct {
	Endpoint     string   `json:"endpoint"`
	Description  string   `json:"description,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// HasCapability reports whether the agent announced capability c.
func (a Agent) HasCapability(c string) bool {
	return slices.ContainsFunc(a.Capabilities, func(have string) bool {
		return strings.EqualFold(have, c)
	})
}

func (a *Agent) clone() Agent {
	out := *a
	out.Capabilities = slices.Clone(a.Capabilities)
	if a.LastAnnouncedAt != nil {
		t := *a.LastAnnouncedAt
		out.LastAnnouncedAt = &t
	}
	return out
}

// EntryKind classifies a history record.
type EntryKind string

const (
	EntryAward       EntryKind = "award"
	EntryTransferOut EntryKind = "transfer_out"
	EntryTransferIn  EntryKind = "transfer_in"
	EntryTreasury    EntryKind = "treasury"
	// EntryEscrowRelease credits a milestone; the counterparty is the escrow id.
	EntryEscrowRelease EntryKind = "escrow_release"
)

// Entry is one immutable record in an agent's transaction history.
type Entry struct {
	Timestamp      time.Time       `json:"timestamp"`
	CounterpartyID string          `json:"counterparty_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Kind           EntryKind       `json:"kind"`
	Note           string          `json:"note,omitempty"`
}
