// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
// The context carries request-scoped values such as the request ID.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Ledger event subjects. Events are published only after the mutation is durable.
const (
	SubjectAgentRegistered     = "ledger.agent.registered"
	SubjectAgentAnnounced      = "ledger.agent.announced"
	SubjectCredAwarded         = "ledger.cred.awarded"
	SubjectCredTransferred     = "ledger.cred.transferred"
	SubjectTierChanged         = "ledger.tier.changed"
	SubjectFactionCreated      = "ledger.faction.created"
	SubjectFactionJoined       = "ledger.faction.joined"
	SubjectTreasuryContributed = "ledger.treasury.contributed"
	SubjectEscrowFunded        = "ledger.escrow.funded"
	SubjectEscrowReleased      = "ledger.escrow.released"
	SubjectRegistrationQueued  = "ledger.registration.queued"
	SubjectRegistrationDecided = "ledger.registration.decided"

	// SubjectAll matches every ledger event.
	SubjectAll = "ledger.>"
)
