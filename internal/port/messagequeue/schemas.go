package messagequeue

import "github.com/shopspring/decimal"

// AgentRegisteredPayload is the schema for ledger.agent.registered messages.
type AgentRegisteredPayload struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
	Emoji   string `json:"emoji,omitempty"`
	Genesis bool   `json:"genesis,omitempty"`
}

// AgentAnnouncedPayload is the schema for ledger.agent.announced messages.
type AgentAnnouncedPayload struct {
	AgentID      string   `json:"agent_id"`
	Endpoint     string   `json:"endpoint"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// CredAwardedPayload is the schema for ledger.cred.awarded messages.
type CredAwardedPayload struct {
	AgentID string          `json:"agent_id"`
	Amount  decimal.Decimal `json:"amount"`
	Balance string          `json:"balance"`
	Note    string          `json:"note,omitempty"`
}

// CredTransferredPayload is the schema for ledger.cred.transferred messages.
type CredTransferredPayload struct {
	FromID string          `json:"from_id"`
	ToID   string          `json:"to_id"`
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note,omitempty"`
}

// TierChangedPayload is the schema for ledger.tier.changed messages.
type TierChangedPayload struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
	From    string `json:"from"`
	To      string `json:"to"`
	Balance string `json:"balance"`
}

// FactionCreatedPayload is the schema for ledger.faction.created messages.
type FactionCreatedPayload struct {
	FactionID   string `json:"faction_id"`
	Name        string `json:"name"`
	FounderID   string `json:"founder_id"`
	FounderName string `json:"founder_name"`
}

// FactionJoinedPayload is the schema for ledger.faction.joined messages.
type FactionJoinedPayload struct {
	FactionID string `json:"faction_id"`
	AgentID   string `json:"agent_id"`
	Members   int    `json:"members"`
}

// TreasuryContributedPayload is the schema for ledger.treasury.contributed messages.
type TreasuryContributedPayload struct {
	FactionID string          `json:"faction_id"`
	AgentID   string          `json:"agent_id"`
	Amount    decimal.Decimal `json:"amount"`
	Treasury  decimal.Decimal `json:"treasury"`
}

// EscrowFundedPayload is the schema for ledger.escrow.funded messages.
type EscrowFundedPayload struct {
	EscrowID string          `json:"escrow_id"`
	AgentID  string          `json:"agent_id"`
	Amount   decimal.Decimal `json:"amount"`
}

// EscrowReleasedPayload is the schema for ledger.escrow.released messages.
type EscrowReleasedPayload struct {
	EscrowID  string          `json:"escrow_id"`
	AgentID   string          `json:"agent_id"`
	Amount    decimal.Decimal `json:"amount"`
	Remaining decimal.Decimal `json:"remaining"`
	Status    string          `json:"status"`
	Reason    string          `json:"reason,omitempty"`
}

// RegistrationQueuedPayload is the schema for ledger.registration.queued messages.
type RegistrationQueuedPayload struct {
	RegistrationID string `json:"registration_id"`
	Name           string `json:"name"`
}

// RegistrationDecidedPayload is the schema for ledger.registration.decided messages.
type RegistrationDecidedPayload struct {
	RegistrationID string `json:"registration_id"`
	Status         string `json:"status"`
	AgentID        string `json:"agent_id,omitempty"`
}
