package messagequeue

import (
	"encoding/json"
	"fmt"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects only need valid JSON.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	var target any
	var required func() string
	switch subject {
	case SubjectAgentRegistered:
		p := &AgentRegisteredPayload{}
		target, required = p, func() string { return p.AgentID }
	case SubjectAgentAnnounced:
		p := &AgentAnnouncedPayload{}
		target, required = p, func() string { return p.AgentID }
	case SubjectCredAwarded:
		p := &CredAwardedPayload{}
		target, required = p, func() string { return p.AgentID }
	case SubjectCredTransferred:
		p := &CredTransferredPayload{}
		target, required = p, func() string { return min(p.FromID, p.ToID) }
	case SubjectTierChanged:
		p := &TierChangedPayload{}
		target, required = p, func() string { return p.AgentID }
	case SubjectFactionCreated:
		p := &FactionCreatedPayload{}
		target, required = p, func() string { return p.FactionID }
	case SubjectFactionJoined:
		p := &FactionJoinedPayload{}
		target, required = p, func() string { return min(p.FactionID, p.AgentID) }
	case SubjectTreasuryContributed:
		p := &TreasuryContributedPayload{}
		target, required = p, func() string { return min(p.FactionID, p.AgentID) }
	case SubjectEscrowFunded:
		p := &EscrowFundedPayload{}
		target, required = p, func() string { return min(p.EscrowID, p.AgentID) }
	case SubjectEscrowReleased:
		p := &EscrowReleasedPayload{}
		target, required = p, func() string { return min(p.EscrowID, p.AgentID) }
	case SubjectRegistrationQueued:
		p := &RegistrationQueuedPayload{}
		target, required = p, func() string { return p.RegistrationID }
	case SubjectRegistrationDecided:
		p := &RegistrationDecidedPayload{}
		target, required = p, func() string { return p.RegistrationID }
	default:
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	if required() == "" {
		return fmt.Errorf("schema validation failed for %s: missing id", subject)
	}
	return nil
}
